package changefeed

import (
	"context"
	"math"
	"time"
)

// RetryConfig 发布重试配置
type RetryConfig struct {
	MaxAttempts   int           // 最大尝试次数（包括首次）
	InitialDelay  time.Duration // 初始退避延迟
	BackoffFactor float64       // 指数退避倍数
	MaxDelay      time.Duration // 单次等待上限
}

// DefaultRetryConfig 3 次尝试，10ms 起步指数退避，单次最多 1s
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  10 * time.Millisecond,
		BackoffFactor: 2.0,
		MaxDelay:      time.Second,
	}
}

func (c RetryConfig) delay(attempt int) time.Duration {
	d := time.Duration(float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(attempt-1)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// Retrying 为下游发布者增加重试
//
// 一批变更作为整体重试；下游需容忍重复投递（Change.ID 可用于去重）。
type Retrying struct {
	next Publisher
	cfg  RetryConfig
}

// WithRetry 包装 next；MaxAttempts <= 1 时原样返回
func WithRetry(next Publisher, cfg RetryConfig) Publisher {
	if next == nil || cfg.MaxAttempts <= 1 {
		return next
	}
	return &Retrying{next: next, cfg: cfg}
}

func (r *Retrying) Publish(ctx context.Context, changes ...Change) error {
	if len(changes) == 0 {
		return nil
	}
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = r.next.Publish(ctx, changes...); lastErr == nil {
			return nil
		}
		if attempt == r.cfg.MaxAttempts {
			break
		}
		select {
		case <-time.After(r.cfg.delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (r *Retrying) Close() error { return r.next.Close() }
