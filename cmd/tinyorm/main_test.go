package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	basicdb "tinyorm/data/db/basic"
	"tinyorm/data/orm/changefeed"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), args)
	return out.String()
}

func TestCLI_EndToEnd(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "cli.db")
	base := []string{"--dsn", dsn, "--log-level", "error", "--no-color"}

	assert.Contains(t, run(t, append(base, "init")...), "schema ready")
	assert.Contains(t, run(t, append(base, "seed")...), "seeded")

	out := run(t, append(base, "info")...)
	assert.Contains(t, out, "dialect: sqlite")
	assert.Contains(t, out, "capabilities: basic_crud,preload,lazy_load,association_write,transaction")

	out = run(t, append(base, "demo")...)
	assert.Contains(t, out, "saved student 2")
	assert.Contains(t, out, "123 Main Street")
	assert.Contains(t, out, "class 11: Math")

	out = run(t, append(base, "get", "2")...)
	assert.Contains(t, out, `"firstName": "Daniel"`)
	assert.Contains(t, out, `"street": "Aleje Tysiaclecia"`)

	out = run(t, append(base, "list", "-o", "yaml")...)
	assert.Contains(t, out, "firstName: John")
	assert.Contains(t, out, "firstName: Daniel")
	assert.Contains(t, out, "id: 11")

	assert.Contains(t, run(t, append(base, "delete", "2")...), "deleted student 2")

	rootCmd.SetArgs(append(base, "get", "2"))
	require.Error(t, rootCmd.Execute())
}

func TestNewChangeFeed_UnknownDriver(t *testing.T) {
	cfg.Set(cfgKeyFeedDriver, "kafka")
	defer cfg.Set(cfgKeyFeedDriver, "none")
	_, err := newChangeFeed(nil)
	require.Error(t, err)
}

type closingFeed struct {
	err    error
	closed bool
}

func (f *closingFeed) Publish(context.Context, ...changefeed.Change) error { return nil }
func (f *closingFeed) Close() error {
	f.closed = true
	return f.err
}

func TestCloseProvider_ReleasesFeedAndDatabase(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	f := &closingFeed{err: errors.New("broker gone")}
	feed = f
	database = basicdb.Wrap(sqlDB, "sqlite")

	err = closeProvider()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker gone")
	assert.True(t, f.closed)
	require.NoError(t, mock.ExpectationsWereMet(), "数据库连接在通道关闭失败后仍被关闭")
	assert.Nil(t, database)
	assert.Nil(t, feed)

	assert.NoError(t, closeProvider(), "重复调用无副作用")
}
