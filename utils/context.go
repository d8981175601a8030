package utils

import (
	"context"
	"errors"
	"syscall"
)

// IsContextCanceled 错误链中包含 context.Canceled
func IsContextCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsClientDisconnect 客户端在响应完成前断开了连接
func IsClientDisconnect(err error) bool {
	return IsContextCanceled(err) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
