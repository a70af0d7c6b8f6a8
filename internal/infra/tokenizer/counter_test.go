package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharCounter(t *testing.T) {
	c := NewCharCounter()

	assert.Equal(t, 5, c.Count("héllo"))
	assert.Equal(t, "", c.Trim("", 10))
	assert.Equal(t, "short", c.Trim("short", 10))

	long := strings.Repeat("a", 1000)
	assert.Len(t, c.Trim(long, 500), 500)
	// 下限より小さい指定でも MinChunkSize は残す
	assert.Len(t, c.Trim(long, 10), MinChunkSize)
}

func TestCounter_Tiktoken(t *testing.T) {
	c, err := NewCounter()
	if err != nil {
		t.Skipf("tiktoken encoding not available: %v", err)
	}

	text := strings.Repeat("mdns_service_add ", 200)
	n := c.Count(text)
	require.Greater(t, n, 50)

	trimmed := c.Trim(text, 50)
	assert.LessOrEqual(t, c.Count(trimmed), 50)
	assert.True(t, strings.HasPrefix(text, trimmed))
	assert.Equal(t, "hello", c.Trim("hello", 50))
}

func TestNewCounterOrFallback(t *testing.T) {
	c := NewCounterOrFallback()
	require.NotNil(t, c)
	assert.Equal(t, "abc", c.Trim("abc", 100))
}
