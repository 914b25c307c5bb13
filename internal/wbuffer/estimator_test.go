package wbuffer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/writecore/mwrite/internal/wbuffer"
)

func TestOverflowBySize(t *testing.T) {
	// Ceiling is maxBSON + 16382 = 16482; 16400 + 100 exceeds it.
	require.True(t, wbuffer.Overflow(16_400, 100, 0, 100, 0))
	require.False(t, wbuffer.Overflow(100, 50, 0, 1000, 0))
}

func TestOverflowByCount(t *testing.T) {
	require.True(t, wbuffer.Overflow(0, 1, 1000, 1<<20, 1000))
	require.False(t, wbuffer.Overflow(0, 1, 999, 1<<20, 1000))
}

func TestOverflowCountIgnoredWhenZero(t *testing.T) {
	require.False(t, wbuffer.Overflow(0, 1, 1_000_000, 1<<20, 0))
}

func TestMaxCmdSize(t *testing.T) {
	require.Equal(t, 16382+16_000_000, wbuffer.MaxCmdSize(16_000_000))
}
