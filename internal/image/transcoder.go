// Package image 把采集到的图片统一转码为 JPEG
package image

import (
	"errors"
	"fmt"
)

// Quality 固定的 JPEG 输出质量
const Quality = 90

// ErrDecode 内容无法解码为图片
var ErrDecode = errors.New("unable to decode image")

// Transcoder 解码任意支持格式的图片，转换为 RGB 并以固定质量编码为 JPEG
type Transcoder interface {
	Transcode(data []byte) ([]byte, error)
	Name() string
	Close()
}

// NewTranscoder 根据名称创建转码器
func NewTranscoder(name string) (Transcoder, error) {
	switch name {
	case "", "std":
		return NewStdTranscoder(), nil
	case "vips":
		return NewVipsTranscoder(), nil
	default:
		return nil, fmt.Errorf("unsupported image encoder: %s", name)
	}
}
