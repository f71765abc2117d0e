package orm

import (
	"tinyorm/data/orm/changefeed"
	"tinyorm/logging"
)

// Options 提供者配置。
type Options struct {
	Logger   logging.Logger
	Registry *Registry

	// Transactional 每次顶层写操作是否在单个事务中执行。
	// 为 false 时每条语句各自提交，失败后已执行的语句保留。
	Transactional bool

	// MaxDepth 急加载的最大关联深度，0 表示不限制（由访问集合终止环路）
	MaxDepth int

	// ChangeFeed 写操作提交后接收变更通知
	ChangeFeed changefeed.Publisher
}

// Option 用于配置 Options。
type Option func(*Options)

// DefaultOptions 默认配置：事务写、默认注册表、全局日志、无变更通知
func DefaultOptions() Options {
	return Options{
		Logger:        logging.GetLogger(),
		Registry:      DefaultRegistry(),
		Transactional: true,
		ChangeFeed:    changefeed.Nop{},
	}
}

// WithLogger 设置日志器。
func WithLogger(l logging.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithRegistry 使用独立的注册表。
func WithRegistry(r *Registry) Option {
	return func(o *Options) {
		if r != nil {
			o.Registry = r
		}
	}
}

// WithTransactional 设置写操作是否包裹在事务中。
func WithTransactional(on bool) Option {
	return func(o *Options) {
		o.Transactional = on
	}
}

// WithMaxDepth 限制急加载深度。
func WithMaxDepth(depth int) Option {
	return func(o *Options) {
		if depth >= 0 {
			o.MaxDepth = depth
		}
	}
}

// WithChangeFeed 设置变更通知发布者。
func WithChangeFeed(p changefeed.Publisher) Option {
	return func(o *Options) {
		if p != nil {
			o.ChangeFeed = p
		}
	}
}

// CollectOptions 在默认配置之上应用 Option。
func CollectOptions(options ...Option) Options {
	opts := DefaultOptions()
	for _, opt := range options {
		if opt != nil {
			opt(&opts)
		}
	}
	return opts
}
