package changefeed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyPublisher 前 failures 次发布失败
type flakyPublisher struct {
	failures int
	calls    int
	closed   bool
	rec      Recorder
}

func (f *flakyPublisher) Publish(ctx context.Context, changes ...Change) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("broker unavailable")
	}
	return f.rec.Publish(ctx, changes...)
}

func (f *flakyPublisher) Close() error {
	f.closed = true
	return nil
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: 5 * time.Millisecond}
}

func TestRetrying_SucceedsAfterFailures(t *testing.T) {
	next := &flakyPublisher{failures: 2}
	p := WithRetry(next, fastRetry(3))

	require.NoError(t, p.Publish(context.Background(), NewChange(OpCreated, "students", 1)))
	assert.Equal(t, 3, next.calls)
	assert.Len(t, next.rec.Changes(), 1)

	require.NoError(t, p.Close())
	assert.True(t, next.closed)
}

func TestRetrying_GivesUp(t *testing.T) {
	next := &flakyPublisher{failures: 5}
	err := WithRetry(next, fastRetry(2)).Publish(context.Background(), NewChange(OpDeleted, "students", 1))
	assert.EqualError(t, err, "broker unavailable")
	assert.Equal(t, 2, next.calls)
}

func TestRetrying_StopsOnCancel(t *testing.T) {
	next := &flakyPublisher{failures: 5}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithRetry(next, fastRetry(3)).Publish(ctx, NewChange(OpCreated, "students", 1))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, next.calls)
}

func TestWithRetry_Passthrough(t *testing.T) {
	next := &flakyPublisher{}
	assert.Same(t, Publisher(next), WithRetry(next, RetryConfig{MaxAttempts: 1}))

	p := WithRetry(next, fastRetry(3))
	require.NoError(t, p.Publish(context.Background()))
	assert.Zero(t, next.calls, "empty batch is not sent")
}

func TestRetryConfig_DelayCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 10 * time.Millisecond, BackoffFactor: 3, MaxDelay: 50 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, cfg.delay(1))
	assert.Equal(t, 30*time.Millisecond, cfg.delay(2))
	assert.Equal(t, 50*time.Millisecond, cfg.delay(3))
}
