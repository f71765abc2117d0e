// Package natsfeed 将变更以 JSON 发布到 NATS 主题。
package natsfeed

import (
	"context"
	"strings"

	"github.com/nats-io/nats.go"

	"tinyorm/data/orm/changefeed"
	"tinyorm/logging"
)

// conn is the subset of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// Config configures the NATS publisher.
type Config struct {
	URL           string
	SubjectPrefix string
	Conn          *nats.Conn
	Logger        logging.Logger
}

// Publisher 每张表一个主题：{SubjectPrefix}.{table}
type Publisher struct {
	cfg      Config
	conn     conn
	ownsConn bool
	logger   logging.Logger
}

// New connects (unless Conn is given) and builds the publisher.
func New(cfg Config) (*Publisher, error) {
	if cfg.Conn != nil {
		return newWithConn(cfg, cfg.Conn, false), nil
	}
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name("tinyorm-changefeed"))
	if err != nil {
		return nil, err
	}
	return newWithConn(cfg, nc, true), nil
}

func newWithConn(cfg Config, c conn, owns bool) *Publisher {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "tinyorm"
	}
	cfg.SubjectPrefix = strings.TrimSuffix(cfg.SubjectPrefix, ".")
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger().WithFields(logging.String("component", "changefeed.nats"))
	}
	return &Publisher{cfg: cfg, conn: c, ownsConn: owns, logger: cfg.Logger}
}

func (p *Publisher) Publish(ctx context.Context, changes ...changefeed.Change) error {
	for _, c := range changes {
		data, err := c.Marshal()
		if err != nil {
			return err
		}
		subject := p.subjectName(c.Table)
		if err := p.conn.Publish(subject, data); err != nil {
			p.logger.Warn(ctx, "nats publish failed", logging.String("subject", subject), logging.Error(err))
			return changefeed.PublishError(err, subject)
		}
	}
	return nil
}

func (p *Publisher) subjectName(table string) string {
	return p.cfg.SubjectPrefix + "." + table
}

func (p *Publisher) Close() error {
	if p.ownsConn {
		p.conn.Close()
	}
	return nil
}
