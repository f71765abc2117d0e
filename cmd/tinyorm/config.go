package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"tinyorm/data/orm/changefeed"
)

const (
	cfgKeyDriver        = "driver"
	cfgKeyDSN           = "dsn"
	cfgKeyTransactional = "transactional"
	cfgKeyMaxDepth      = "max_depth"
	cfgKeyLogLevel      = "log_level"
	cfgKeyFeedDriver    = "changefeed.driver"
	cfgKeyFeedAddr      = "changefeed.addr"
	cfgKeyFeedPrefix    = "changefeed.prefix"
	cfgKeyFeedRetries   = "changefeed.retries"
	cfgKeyFeedExchange  = "changefeed.exchange"

	defaultDriver = "sqlite"
	defaultDSN    = "tinyorm.db"
)

// loadConfig 读取 tinyorm.yaml（当前目录或 --config 指定），TINYORM_* 环境变量覆盖文件。
// 配置文件不存在不是错误。
func loadConfig(v *viper.Viper, file string) error {
	v.SetDefault(cfgKeyDriver, defaultDriver)
	v.SetDefault(cfgKeyDSN, defaultDSN)
	v.SetDefault(cfgKeyTransactional, true)
	v.SetDefault(cfgKeyMaxDepth, 0)
	v.SetDefault(cfgKeyLogLevel, "warn")
	v.SetDefault(cfgKeyFeedDriver, "none")
	v.SetDefault(cfgKeyFeedRetries, changefeed.DefaultRetryConfig().MaxAttempts)

	v.SetEnvPrefix("tinyorm")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("tinyorm")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && file == "" {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}
