package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	_ "modernc.org/sqlite"

	core "tinyorm/data/db"
	basicdb "tinyorm/data/db/basic"
	"tinyorm/data/orm"
	"tinyorm/data/orm/basic"
	"tinyorm/data/orm/changefeed"
	"tinyorm/data/orm/changefeed/amqpfeed"
	"tinyorm/data/orm/changefeed/natsfeed"
	"tinyorm/data/orm/changefeed/redisfeed"
	"tinyorm/logging"
)

var (
	flagConfig  string
	flagOutput  string
	flagNoColor bool

	cfg = viper.New()

	// 由 PersistentPreRunE 初始化，供各子命令使用
	database core.IDatabase
	provider *basic.Provider
	feed     changefeed.Publisher
)

var rootCmd = &cobra.Command{
	Use:           "tinyorm",
	Short:         "tinyorm maps school entities to a relational store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagNoColor {
			color.NoColor = true
		}
		if err := loadConfig(cfg, flagConfig); err != nil {
			return err
		}
		return openProvider()
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeProvider()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default: ./tinyorm.yaml)")
	pf.String("driver", defaultDriver, "database driver: sqlite, postgres, mysql")
	pf.String("dsn", defaultDSN, "data source name")
	pf.Bool("transactional", true, "wrap each write in a transaction")
	pf.Int("max-depth", 0, "eager loading depth, 0 = unlimited")
	pf.String("log-level", "warn", "debug, info, warn, error")
	pf.BoolVar(&flagNoColor, "no-color", false, "disable colored output")
	_ = cfg.BindPFlag(cfgKeyDriver, pf.Lookup("driver"))
	_ = cfg.BindPFlag(cfgKeyDSN, pf.Lookup("dsn"))
	_ = cfg.BindPFlag(cfgKeyTransactional, pf.Lookup("transactional"))
	_ = cfg.BindPFlag(cfgKeyMaxDepth, pf.Lookup("max-depth"))
	_ = cfg.BindPFlag(cfgKeyLogLevel, pf.Lookup("log-level"))

	rootCmd.AddCommand(initCmd, seedCmd, demoCmd, infoCmd, listCmd, getCmd, deleteCmd)
}

func openProvider() error {
	logger := logging.NewStdLoggerWithWriter(os.Stderr, "tinyorm", logging.ParseLevel(cfg.GetString(cfgKeyLogLevel)))
	logging.SetLogger(logger)

	db, err := basicdb.New(core.DBConfig{
		Driver: cfg.GetString(cfgKeyDriver),
		DSN:    cfg.GetString(cfgKeyDSN),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	database = db

	feed, err = newChangeFeed(logger)
	if err != nil {
		return err
	}

	provider = basic.New(db,
		orm.WithLogger(logger),
		orm.WithTransactional(cfg.GetBool(cfgKeyTransactional)),
		orm.WithMaxDepth(cfg.GetInt(cfgKeyMaxDepth)),
		orm.WithChangeFeed(feed),
	)
	return nil
}

// closeProvider 释放变更通道与数据库连接，两者的错误合并返回
func closeProvider() error {
	var feedErr, dbErr error
	if c, ok := feed.(io.Closer); ok {
		feedErr = c.Close()
	}
	if database != nil {
		dbErr = database.Close()
	}
	feed, database, provider = nil, nil, nil
	return errors.Join(feedErr, dbErr)
}

func newChangeFeed(logger logging.Logger) (changefeed.Publisher, error) {
	addr := cfg.GetString(cfgKeyFeedAddr)
	prefix := cfg.GetString(cfgKeyFeedPrefix)
	retry := changefeed.DefaultRetryConfig()
	retry.MaxAttempts = cfg.GetInt(cfgKeyFeedRetries)

	var (
		pub changefeed.Publisher
		err error
	)
	switch driver := cfg.GetString(cfgKeyFeedDriver); driver {
	case "", "none":
		return changefeed.Nop{}, nil
	case "redis":
		pub, err = redisfeed.New(redisfeed.Config{Addr: addr, StreamPrefix: prefix, Logger: logger})
	case "nats":
		pub, err = natsfeed.New(natsfeed.Config{URL: addr, SubjectPrefix: prefix, Logger: logger})
	case "amqp":
		pub, err = amqpfeed.New(amqpfeed.Config{
			URL:           addr,
			Exchange:      cfg.GetString(cfgKeyFeedExchange),
			RoutingPrefix: prefix,
			Logger:        logger,
		})
	default:
		return nil, fmt.Errorf("unknown changefeed driver %q (valid: none, redis, nats, amqp)", driver)
	}
	if err != nil {
		return nil, err
	}
	return changefeed.WithRetry(pub, retry), nil
}
