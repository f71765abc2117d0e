package basic_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	core "tinyorm/data/db"
	basicdb "tinyorm/data/db/basic"
	"tinyorm/data/orm"
	"tinyorm/data/orm/basic"
	"tinyorm/data/orm/changefeed"
	"tinyorm/errors"
	"tinyorm/examples/school"
	"tinyorm/logging"
)

func openDB(t *testing.T) core.IDatabase {
	t.Helper()
	db, err := basicdb.New(core.DBConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "school.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newSchool(t *testing.T, opts ...orm.Option) (*basic.Provider, core.IDatabase) {
	t.Helper()
	ctx := context.Background()
	db := openDB(t)
	require.NoError(t, school.EnsureSchema(ctx, db))

	reg := orm.NewRegistry()
	require.NoError(t, school.Register(reg))
	base := []orm.Option{orm.WithRegistry(reg), orm.WithLogger(logging.NewNoopLogger())}
	return basic.New(db, append(base, opts...)...), db
}

func count(t *testing.T, db core.IDatabase, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.QueryRow(context.Background(), `SELECT COUNT(*) FROM "`+table+`"`).Scan(&n))
	return n
}

func TestCreateOrUpdate_InsertAssignsIdentity(t *testing.T) {
	ctx := context.Background()
	p, _ := newSchool(t)

	s := &school.Student{FirstName: school.Str("Ada"), LastName: school.Str("Lovelace")}
	require.NoError(t, p.CreateOrUpdate(ctx, s))
	require.NotNil(t, s.ID)

	got, err := orm.GetByID[school.Student](ctx, p, *s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, *s.ID, *got.ID)
	assert.Equal(t, "Ada", *got.FirstName)
	assert.Equal(t, "Lovelace", *got.LastName)
	assert.Nil(t, got.Address)
	assert.Empty(t, got.Hobbies)
	assert.Empty(t, got.Classes)
}

func TestCreateOrUpdate_NullStaysNil(t *testing.T) {
	ctx := context.Background()
	p, _ := newSchool(t)

	s := &school.Student{FirstName: school.Str("OnlyFirst")}
	require.NoError(t, p.CreateOrUpdate(ctx, s))

	got, err := orm.GetByID[school.Student](ctx, p, *s.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastName, "NULL must not become an empty string")
}

func TestCreateOrUpdate_UpdateKeepsRowCount(t *testing.T) {
	ctx := context.Background()
	p, db := newSchool(t)

	s := school.DemoStudent()
	require.NoError(t, p.CreateOrUpdate(ctx, s))
	id := *s.ID

	s.FirstName = school.Str("Marek")
	s.Hobbies[0].Description = school.Str("Coding stuff :)")
	s.Address.Number = school.Str("222")
	require.NoError(t, p.CreateOrUpdate(ctx, s))

	assert.Equal(t, id, *s.ID)
	assert.Equal(t, int64(1), count(t, db, "students"))
	assert.Equal(t, int64(1), count(t, db, "addresses"))
	assert.Equal(t, int64(1), count(t, db, "hobbies"))

	got, err := orm.GetByID[school.Student](ctx, p, id)
	require.NoError(t, err)
	assert.Equal(t, "Marek", *got.FirstName)
	assert.Equal(t, "222", *got.Address.Number)
	assert.Equal(t, "Coding stuff :)", *got.Hobbies[0].Description)
}

func TestCreateOrUpdate_GraphRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, _ := newSchool(t)

	s := school.DemoStudent()
	require.NoError(t, p.CreateOrUpdate(ctx, s))
	require.NotNil(t, s.Address.ID)
	require.NotNil(t, s.Hobbies[0].ID)
	require.NotNil(t, s.Classes[0].ID)

	got, err := orm.GetByID[school.Student](ctx, p, *s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "Daniel", *got.FirstName)
	assert.Equal(t, "Szwed", *got.LastName)
	require.NotNil(t, got.Address)
	assert.Equal(t, *s.Address.ID, *got.Address.ID)
	assert.Equal(t, "Aleje Tysiaclecia", *got.Address.Street)
	assert.Equal(t, "333", *got.Address.Number)
	assert.Equal(t, "26-110", *got.Address.ZipCode)

	require.Len(t, got.Hobbies, 1)
	assert.Equal(t, "Computer science", *got.Hobbies[0].Name)
	assert.Equal(t, "Coding stuff", *got.Hobbies[0].Description)

	require.Len(t, got.Classes, 1)
	assert.Equal(t, "Klasa jakas tam", *got.Classes[0].Name)
	assert.Nil(t, got.Classes[0].Students, "back reference to the parent type is excluded")
}

func TestCreateOrUpdate_ManyToManyIdempotent(t *testing.T) {
	ctx := context.Background()
	p, db := newSchool(t)

	s := school.DemoStudent()
	require.NoError(t, p.CreateOrUpdate(ctx, s))
	require.NoError(t, p.CreateOrUpdate(ctx, s))
	require.NoError(t, p.CreateOrUpdate(ctx, s))

	assert.Equal(t, int64(1), count(t, db, "studentClass"))
	assert.Equal(t, int64(1), count(t, db, "classes"))
}

func TestCreateOrUpdate_SharedClassLinkedOnce(t *testing.T) {
	ctx := context.Background()
	p, db := newSchool(t)

	math := &school.Class{Name: school.Str("Math")}
	s := &school.Student{FirstName: school.Str("Twice"), Classes: []*school.Class{math, math}}
	require.NoError(t, p.CreateOrUpdate(ctx, s))

	assert.Equal(t, int64(1), count(t, db, "classes"))
	assert.Equal(t, int64(1), count(t, db, "studentClass"))
}

func TestStudentExample(t *testing.T) {
	ctx := context.Background()
	p, db := newSchool(t)
	require.NoError(t, school.Seed(ctx, db))

	daniel := school.DemoStudent()
	require.NoError(t, p.CreateOrUpdate(ctx, daniel))
	assert.NotEqual(t, int64(1), *daniel.ID)

	john, err := orm.GetByID[school.Student](ctx, p, 1)
	require.NoError(t, err)
	require.NotNil(t, john)
	assert.Equal(t, "John", *john.FirstName)
	assert.Equal(t, "Doe", *john.LastName)
	require.NotNil(t, john.Address)
	assert.Equal(t, "123 Main Street", *john.Address.Street)
	require.Len(t, john.Hobbies, 1)
	assert.Equal(t, "Gardening", *john.Hobbies[0].Name)
	require.Len(t, john.Classes, 1)
	assert.Equal(t, int64(11), *john.Classes[0].ID)
	assert.Equal(t, "Math", *john.Classes[0].Name)

	all, err := orm.ReadAll[school.Student](ctx, p)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	classes, err := orm.ReadAll[school.Class](ctx, p)
	require.NoError(t, err)
	require.Len(t, classes, 2)
	for _, c := range classes {
		require.Len(t, c.Students, 1)
		assert.Nil(t, c.Students[0].Classes, "reverse many-to-many stops at the parent type")
		assert.NotNil(t, c.Students[0].FirstName)
	}
}

func TestGetByID_Missing(t *testing.T) {
	ctx := context.Background()
	p, _ := newSchool(t)

	var s school.Student
	found, err := p.GetByID(ctx, 404, &s)
	require.NoError(t, err)
	assert.False(t, found)

	got, err := orm.GetByID[school.Student](ctx, p, 404)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	p, db := newSchool(t)

	s := school.DemoStudent()
	assert.False(t, p.Delete(ctx, s), "transient entity")

	require.NoError(t, p.CreateOrUpdate(ctx, s))
	assert.True(t, p.Delete(ctx, s))
	assert.Equal(t, int64(0), count(t, db, "students"))
	assert.Equal(t, int64(1), count(t, db, "addresses"), "only the root row is removed")

	assert.False(t, p.Delete(ctx, s), "already deleted")

	ghost := &school.Student{}
	ghost.SetPrimaryKey(9999)
	assert.False(t, orm.Delete(ctx, p, ghost))

	assert.False(t, p.Delete(ctx, nil))
	assert.False(t, p.Delete(ctx, "not an entity"))
}

func TestDelete_StoreFailureReturnsFalse(t *testing.T) {
	ctx := context.Background()
	p, db := newSchool(t)

	s := &school.Student{FirstName: school.Str("Gone")}
	require.NoError(t, p.CreateOrUpdate(ctx, s))
	_, err := db.Exec(ctx, `DROP TABLE "students"`)
	require.NoError(t, err)

	assert.False(t, p.Delete(ctx, s))
}

func TestGetNestedEntity(t *testing.T) {
	ctx := context.Background()
	p, _ := newSchool(t)

	s := school.DemoStudent()
	require.NoError(t, p.CreateOrUpdate(ctx, s))

	parent := &school.Student{}
	parent.SetPrimaryKey(*s.ID)

	addr, err := orm.GetNested[*school.Address](ctx, p, parent, "Address")
	require.NoError(t, err)
	require.NotNil(t, addr)
	assert.Equal(t, "Aleje Tysiaclecia", *addr.Street)
	assert.Nil(t, parent.Address, "GetNestedEntity does not mutate the parent")

	classes, err := orm.GetNested[[]*school.Class](ctx, p, parent, "Classes")
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Nil(t, classes[0].Students, "children are loaded without their relations")

	_, err = p.GetNestedEntity(ctx, parent, "Teachers")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	transient := &school.Student{}
	v, err := p.GetNestedEntity(ctx, transient, "Address")
	require.NoError(t, err)
	assert.Nil(t, v)
	v, err = p.GetNestedEntity(ctx, transient, "Hobbies")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestInvalidArguments(t *testing.T) {
	ctx := context.Background()
	p, _ := newSchool(t)

	err := p.CreateOrUpdate(ctx, school.Student{})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput))

	var students []school.Student
	err = p.ReadAll(ctx, &students)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput))

	_, err = p.GetByID(ctx, 1, school.Student{})
	require.Error(t, err)
}

func TestTransactionalRollback(t *testing.T) {
	ctx := context.Background()
	feed := changefeed.NewRecorder()
	p, db := newSchool(t, orm.WithChangeFeed(feed))
	_, err := db.Exec(ctx, `DROP TABLE "hobbies"`)
	require.NoError(t, err)

	s := school.DemoStudent()
	err = p.CreateOrUpdate(ctx, s)
	require.Error(t, err)
	assert.True(t, orm.IsStoreError(err))

	assert.Equal(t, int64(0), count(t, db, "students"))
	assert.Equal(t, int64(0), count(t, db, "addresses"))
	assert.Nil(t, s.ID, "identities assigned inside the rolled back transaction are cleared")
	assert.Nil(t, s.Address.ID)
	assert.Empty(t, feed.Changes())
}

func TestNonTransactionalKeepsPartialWrites(t *testing.T) {
	ctx := context.Background()
	feed := changefeed.NewRecorder()
	p, db := newSchool(t, orm.WithTransactional(false), orm.WithChangeFeed(feed))
	assert.False(t, p.Capabilities().Supports(orm.CapabilityTransaction))
	_, err := db.Exec(ctx, `DROP TABLE "hobbies"`)
	require.NoError(t, err)

	s := school.DemoStudent()
	require.Error(t, p.CreateOrUpdate(ctx, s))

	assert.Equal(t, int64(1), count(t, db, "students"))
	assert.Equal(t, int64(1), count(t, db, "addresses"))
	assert.NotNil(t, s.ID)

	changes := feed.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, "students", changes[0].Table)
	assert.Equal(t, "addresses", changes[1].Table)
}

func TestChangeFeedAfterCommit(t *testing.T) {
	ctx := context.Background()
	feed := changefeed.NewRecorder()
	p, _ := newSchool(t, orm.WithChangeFeed(feed))

	s := school.DemoStudent()
	require.NoError(t, p.CreateOrUpdate(ctx, s))

	changes := feed.Changes()
	require.Len(t, changes, 5)
	expect := []struct {
		op    changefeed.Op
		table string
	}{
		{changefeed.OpCreated, "students"},
		{changefeed.OpCreated, "addresses"},
		{changefeed.OpCreated, "hobbies"},
		{changefeed.OpCreated, "classes"},
		{changefeed.OpLinked, "studentClass"},
	}
	for i, e := range expect {
		assert.Equal(t, e.op, changes[i].Op, i)
		assert.Equal(t, e.table, changes[i].Table, i)
	}
	assert.Equal(t, *s.ID, changes[4].EntityID)
	assert.Equal(t, *s.Classes[0].ID, changes[4].RelatedID)

	require.NoError(t, p.CreateOrUpdate(ctx, s))
	for _, c := range feed.Changes()[5:] {
		assert.Equal(t, changefeed.OpUpdated, c.Op, "second save only updates; link already present")
	}

	require.True(t, p.Delete(ctx, s))
	last := feed.Changes()[len(feed.Changes())-1]
	assert.Equal(t, changefeed.OpDeleted, last.Op)
	assert.Equal(t, *s.ID, last.EntityID)
}

type failingFeed struct{ calls int }

func (f *failingFeed) Publish(context.Context, ...changefeed.Change) error {
	f.calls++
	return errors.NewError(errors.ErrCodeChangeFeed, "broker down")
}

func (f *failingFeed) Close() error { return nil }

func TestChangeFeedFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	feed := &failingFeed{}
	p, db := newSchool(t, orm.WithChangeFeed(feed))

	require.NoError(t, p.CreateOrUpdate(ctx, school.DemoStudent()))
	assert.Equal(t, 1, feed.calls)
	assert.Equal(t, int64(1), count(t, db, "students"))
}

func TestCapabilities(t *testing.T) {
	p, _ := newSchool(t)
	caps := p.Capabilities()
	assert.True(t, caps.Supports(orm.CapabilityBasicCRUD))
	assert.True(t, caps.Supports(orm.CapabilityPreload))
	assert.True(t, caps.Supports(orm.CapabilityLazyLoad))
	assert.True(t, caps.Supports(orm.CapabilityAssociationWrite))
	assert.True(t, caps.Supports(orm.CapabilityTransaction))
	assert.False(t, caps.Supports(orm.CapabilityReturning), "sqlite uses LastInsertId")
}
