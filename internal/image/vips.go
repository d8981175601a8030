package image

import (
	"fmt"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

var vipsOnce sync.Once

// VipsTranscoder 基于 libvips 的转码器
type VipsTranscoder struct{}

// NewVipsTranscoder 创建 libvips 转码器，首次调用时启动 libvips
func NewVipsTranscoder() *VipsTranscoder {
	vipsOnce.Do(func() {
		vips.LoggingSettings(nil, vips.LogLevelWarning)
		vips.Startup(nil)
	})
	return &VipsTranscoder{}
}

// Transcode 展平透明通道并转换到 sRGB 后导出 JPEG
func (t *VipsTranscoder) Transcode(data []byte) ([]byte, error) {
	img, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer img.Close()

	if img.HasAlpha() {
		if err := img.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
			return nil, fmt.Errorf("flatten alpha: %w", err)
		}
	}
	if err := img.ToColorSpace(vips.InterpretationSRGB); err != nil {
		return nil, fmt.Errorf("convert colorspace: %w", err)
	}

	out, _, err := img.ExportJpeg(&vips.JpegExportParams{
		Quality:       Quality,
		StripMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("export jpeg: %w", err)
	}
	return out, nil
}

func (t *VipsTranscoder) Name() string { return "vips" }

// Close 关闭 libvips，进程退出前调用一次
func (t *VipsTranscoder) Close() {
	vips.Shutdown()
}
