// Package redisfeed 将变更写入 Redis Streams。
package redisfeed

import (
	"context"

	"github.com/redis/go-redis/v9"

	"tinyorm/data/orm/changefeed"
	"tinyorm/errors"
	"tinyorm/logging"
)

// client captures the subset of go-redis commands we rely on (for easier testing).
type client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// Config describes how the publisher connects to Redis.
type Config struct {
	Client       redis.UniversalClient
	Addr         string
	Username     string
	Password     string
	DB           int
	StreamPrefix string
	// MaxLen 每个流保留的近似最大长度，0 表示不裁剪
	MaxLen int64
	Logger logging.Logger
}

// Publisher 每张表一个流：{StreamPrefix}{table}
type Publisher struct {
	cfg       Config
	client    client
	ownClient bool
	logger    logging.Logger
}

// New constructs a Redis Streams change publisher.
func New(cfg Config) (*Publisher, error) {
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "tinyorm:"
	}
	var cl client
	var own bool
	if cfg.Client != nil {
		cl = cfg.Client
	} else {
		if cfg.Addr == "" {
			return nil, errors.NewError(errors.ErrCodeInvalidInput, "redisfeed: address not configured")
		}
		cl = redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
		own = true
	}
	return newWithClient(cfg, cl, own), nil
}

func newWithClient(cfg Config, cl client, own bool) *Publisher {
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "tinyorm:"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger().WithFields(logging.String("component", "changefeed.redis"))
	}
	return &Publisher{cfg: cfg, client: cl, ownClient: own, logger: cfg.Logger}
}

// Publish writes changes sequentially; Redis Streams does not support multi append.
func (p *Publisher) Publish(ctx context.Context, changes ...changefeed.Change) error {
	for _, c := range changes {
		args := &redis.XAddArgs{
			Stream: p.streamName(c.Table),
			Values: c.Fields(),
		}
		if p.cfg.MaxLen > 0 {
			args.MaxLen = p.cfg.MaxLen
			args.Approx = true
		}
		if err := p.client.XAdd(ctx, args).Err(); err != nil {
			p.logger.Warn(ctx, "redis xadd failed", logging.String("stream", args.Stream), logging.Error(err))
			return changefeed.PublishError(err, args.Stream)
		}
	}
	return nil
}

func (p *Publisher) streamName(table string) string {
	return p.cfg.StreamPrefix + table
}

// Close closes the client only if the publisher created it.
func (p *Publisher) Close() error {
	if p.ownClient {
		return p.client.Close()
	}
	return nil
}
