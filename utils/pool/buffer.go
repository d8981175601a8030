// Package pool 复用 I/O 复制缓冲区
package pool

import "sync"

// BufferSize 复制缓冲区大小（64KB），转码后的 JPEG 通常只需几次复制
const BufferSize = 64 * 1024

// 存储 *([]byte) 以避免 SA6002 警告
var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, BufferSize)
		return &buf
	},
}

// GetBuffer 取出一个缓冲区，用完需 PutBuffer 归还
func GetBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

// PutBuffer 归还缓冲区
func PutBuffer(buf *[]byte) {
	if buf == nil || cap(*buf) < BufferSize {
		return
	}
	*buf = (*buf)[:BufferSize]
	bufferPool.Put(buf)
}
