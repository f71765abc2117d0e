package changefeed

import (
	"context"
	stdErrors "errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinyorm/errors"
)

func TestNewChange(t *testing.T) {
	c := NewChange(OpCreated, "students", 4)
	_, err := uuid.Parse(c.ID)
	require.NoError(t, err)
	assert.Equal(t, OpCreated, c.Op)
	assert.False(t, c.At.IsZero())

	f := c.Fields()
	assert.Equal(t, "4", f["entity_id"])
	assert.NotContains(t, f, "related_id")
}

func TestLinked(t *testing.T) {
	c := Linked("studentClass", 1, 3)
	assert.Equal(t, OpLinked, c.Op)
	assert.Equal(t, int64(1), c.EntityID)
	assert.Equal(t, int64(3), c.RelatedID)
	assert.Equal(t, "3", c.Fields()["related_id"])
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.Publish(context.Background(), NewChange(OpDeleted, "students", 1)))
	got := r.Changes()
	require.Len(t, got, 1)
	got[0].Table = "mutated"
	assert.Equal(t, "students", r.Changes()[0].Table)
	assert.NoError(t, Nop{}.Publish(context.Background(), got...))
}

func TestPublishError(t *testing.T) {
	assert.NoError(t, PublishError(nil, "tinyorm:students"))

	cause := stdErrors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
	err := PublishError(cause, "tinyorm:students")
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeChangeFeed))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "target=tinyorm:students")
}
