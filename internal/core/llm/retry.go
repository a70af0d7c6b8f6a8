package llm

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

const (
	// DefaultMaxAttempts は1回の問い合わせで行う最大試行回数
	DefaultMaxAttempts = 5

	// DefaultBaseDelay は指数バックオフの基底時間
	DefaultBaseDelay = 5 * time.Second

	// DefaultMaxJitter はバックオフに加えるゆらぎの上限
	DefaultMaxJitter = time.Second
)

// RetryPolicy は指数バックオフ付きリトライの設定
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration

	// テストで差し替えるためのフック
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func(max time.Duration) time.Duration
}

// DefaultRetryPolicy は 5回・5秒起点・倍々・1秒未満のゆらぎのポリシーを返す
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxJitter:   DefaultMaxJitter,
	}
}

// Delay は attempt 回目（1始まり）の失敗後に待つ時間を返す
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if p.MaxJitter > 0 {
		d += p.jitter()
	}
	return d
}

// Do は fn が成功するまで最大 MaxAttempts 回呼び出す。
// onRetry には失敗した試行番号と次の待機時間が渡される。
// ctx がキャンセルされた場合は待機を打ち切って ctx.Err() を返す。
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error, onRetry func(attempt int, delay time.Duration, err error)) error {
	attempts := max(p.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrMaxRetriesExceeded, attempts, lastErr)
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (p RetryPolicy) jitter() time.Duration {
	if p.Jitter != nil {
		return p.Jitter(p.MaxJitter)
	}
	return rand.N(p.MaxJitter)
}
