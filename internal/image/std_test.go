package image

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// TestStdTranscodePNG 测试 PNG 转 JPEG
func TestStdTranscodePNG(t *testing.T) {
	tr := NewStdTranscoder()
	out, err := tr.Transcode(pngBytes(t, 16, 8, color.NRGBA{R: 200, A: 255}))
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 16, cfg.Width)
	assert.Equal(t, 8, cfg.Height)
}

// TestStdTranscodeTransparent 测试透明像素铺白底
func TestStdTranscodeTransparent(t *testing.T) {
	tr := NewStdTranscoder()
	out, err := tr.Transcode(pngBytes(t, 4, 4, color.NRGBA{}))
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	r, g, b, _ := img.At(1, 1).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

// TestStdTranscodeInvalid 测试非图片内容
func TestStdTranscodeInvalid(t *testing.T) {
	_, err := NewStdTranscoder().Transcode([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrDecode)
}

// TestNewTranscoder 测试按名称创建
func TestNewTranscoder(t *testing.T) {
	tr, err := NewTranscoder("std")
	require.NoError(t, err)
	assert.Equal(t, "std", tr.Name())

	_, err = NewTranscoder("magick")
	assert.Error(t, err)
}
