package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noJitterPolicy(slept *[]time.Duration) RetryPolicy {
	p := DefaultRetryPolicy()
	p.Jitter = func(time.Duration) time.Duration { return 0 }
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return p
}

func TestRetryPolicy_DoublesDelay(t *testing.T) {
	var slept []time.Duration
	p := noJitterPolicy(&slept)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second}, slept)
}

func TestRetryPolicy_SucceedsAfterFailures(t *testing.T) {
	var slept []time.Duration
	p := noJitterPolicy(&slept)

	var retried []int
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	}, func(attempt int, delay time.Duration, err error) {
		retried = append(retried, attempt)
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
	assert.Len(t, slept, 2)
}

func TestRetryPolicy_JitterBounded(t *testing.T) {
	p := DefaultRetryPolicy()
	for range 50 {
		d := p.Delay(1)
		assert.GreaterOrEqual(t, d, 5*time.Second)
		assert.Less(t, d, 6*time.Second)
	}
}

func TestRetryPolicy_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := DefaultRetryPolicy()

	calls := 0
	err := p.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("boom")
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestErrorText(t *testing.T) {
	assert.Equal(t, "Error: No API key provided. Set API_KEY in .env file or provide it when initializing.", ErrorText(ErrAPIKeyNotSet))
	assert.True(t, IsErrorText(ErrorText(errors.New("x"))))
	assert.False(t, IsErrorText("<refactored_function>\nfoo\n</refactored_function>"))
	assert.Empty(t, ErrorText(nil))
}

type stubClient struct {
	resp Response
	err  error
}

func (s stubClient) Complete(ctx context.Context, req Request) (Response, error) {
	return s.resp, s.err
}

func TestCompleteText_Stub(t *testing.T) {
	ok := stubClient{resp: Response{Content: "hello"}}
	assert.Equal(t, "hello", CompleteText(context.Background(), ok, Request{Prompt: "p"}))

	ng := stubClient{err: errors.New("quota")}
	assert.Equal(t, "Error: quota", CompleteText(context.Background(), ng, Request{Prompt: "p"}))
}
