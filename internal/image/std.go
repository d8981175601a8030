package image

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	// 注册解码器
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// StdTranscoder 纯 Go 实现，无需 cgo
type StdTranscoder struct{}

// NewStdTranscoder 创建纯 Go 转码器
func NewStdTranscoder() *StdTranscoder {
	return &StdTranscoder{}
}

// Transcode 解码后铺白底转换为不透明 RGBA，再编码为 JPEG
func (t *StdTranscoder) Transcode(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func (t *StdTranscoder) Name() string { return "std" }

func (t *StdTranscoder) Close() {}
