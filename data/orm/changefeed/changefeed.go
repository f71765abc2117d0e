// Package changefeed 写操作提交后的变更通知。
//
// 提供者在一次顶层写操作中收集 Change，仅在写入提交成功后按顺序发布；
// 发布失败只记录日志，不影响已提交的写入。
package changefeed

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"tinyorm/errors"
)

// Op 变更类型
type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
	OpLinked  Op = "linked"
)

// Change 一行数据的变更
type Change struct {
	ID       string `json:"id"`
	Op       Op     `json:"op"`
	Table    string `json:"table"`
	EntityID int64  `json:"entity_id"`
	// RelatedID 仅用于 OpLinked：中间表另一端的实体标识
	RelatedID int64     `json:"related_id,omitempty"`
	At        time.Time `json:"at"`
}

// NewChange 构造带唯一标识与时间戳的变更
func NewChange(op Op, table string, entityID int64) Change {
	return Change{
		ID:       uuid.NewString(),
		Op:       op,
		Table:    table,
		EntityID: entityID,
		At:       time.Now().UTC(),
	}
}

// Linked 构造中间表关联变更
func Linked(joinTable string, parentID, childID int64) Change {
	c := NewChange(OpLinked, joinTable, parentID)
	c.RelatedID = childID
	return c
}

// Fields 以字符串键值形式展开，供流式存储使用
func (c Change) Fields() map[string]any {
	f := map[string]any{
		"id":        c.ID,
		"op":        string(c.Op),
		"table":     c.Table,
		"entity_id": strconv.FormatInt(c.EntityID, 10),
		"at":        strconv.FormatInt(c.At.UnixNano(), 10),
	}
	if c.RelatedID != 0 {
		f["related_id"] = strconv.FormatInt(c.RelatedID, 10)
	}
	return f
}

// Marshal JSON 编码
func (c Change) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Publisher 变更发布者
type Publisher interface {
	Publish(ctx context.Context, changes ...Change) error
	Close() error
}

// PublishError 以 CHANGEFEED_ERROR 包装下游失败，target 为流/主题/路由键
func PublishError(err error, target string) error {
	if err == nil {
		return nil
	}
	return errors.WrapError(err, errors.ErrCodeChangeFeed, "changefeed: publish failed").
		WithContext("target", target)
}

// Nop 丢弃所有变更
type Nop struct{}

func (Nop) Publish(context.Context, ...Change) error { return nil }
func (Nop) Close() error                             { return nil }

// Recorder 在内存中保留已发布的变更，用于测试与演示
type Recorder struct {
	mu      sync.Mutex
	changes []Change
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, changes ...Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, changes...)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Changes 返回已发布变更的副本
func (r *Recorder) Changes() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Change, len(r.changes))
	copy(out, r.changes)
	return out
}
