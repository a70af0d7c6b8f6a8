package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fixedClient struct {
	content string
	err     error
}

func (c fixedClient) Complete(ctx context.Context, req Request) (Response, error) {
	return Response{Content: c.content}, c.err
}

func TestCompleteText(t *testing.T) {
	got := CompleteText(context.Background(), fixedClient{content: "<summary>ok</summary>"}, Request{})
	assert.Equal(t, "<summary>ok</summary>", got)
	assert.False(t, IsErrorText(got))

	got = CompleteText(context.Background(), fixedClient{err: ErrMaxRetriesExceeded}, Request{})
	assert.Equal(t, "Error: max retries exceeded", got)
	assert.True(t, IsErrorText(got))
}

func TestErrorText_Nil(t *testing.T) {
	assert.Empty(t, ErrorText(nil))
}
