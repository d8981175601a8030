package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsClientDisconnect(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		canceled bool
		expected bool
	}{
		{name: "nil error"},
		{name: "context canceled", err: context.Canceled, canceled: true, expected: true},
		{name: "wrapped canceled", err: fmt.Errorf("query: %w", context.Canceled), canceled: true, expected: true},
		{name: "deadline", err: context.DeadlineExceeded},
		{name: "broken pipe", err: &net.OpError{Op: "write", Err: os.NewSyscallError("write", syscall.EPIPE)}, expected: true},
		{name: "connection reset", err: fmt.Errorf("read: %w", syscall.ECONNRESET), expected: true},
		{name: "other", err: errors.New("disk full")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.canceled, IsContextCanceled(tt.err))
			assert.Equal(t, tt.expected, IsClientDisconnect(tt.err))
		})
	}
}

func TestSanitizeLogMessage(t *testing.T) {
	assert.Equal(t, "a b c", SanitizeLogMessage("a\nb\tc"))
	assert.Equal(t, "bell", SanitizeLogMessage("be\x07ll"))
	assert.Equal(t, "名字", SanitizeLogUsername("名字"))
	long := SanitizeLogUsername("0123456789012345678901234567890123456789012345678901234")
	assert.Len(t, long, 53)
}
