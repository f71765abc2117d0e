package basic

import (
	"bytes"
	"context"
	stdErrors "errors"
	"reflect"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	basicdb "tinyorm/data/db/basic"
	"tinyorm/data/orm"
	"tinyorm/examples/school"
	"tinyorm/logging"
)

func newMockExecutor(t *testing.T, driver string) (*Executor, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewExecutor(basicdb.Wrap(conn, driver)), mock
}

func describe(t *testing.T, v any) *orm.Descriptor {
	t.Helper()
	reg := orm.NewRegistry()
	require.NoError(t, school.Register(reg))
	d, err := reg.ResolveValue(v)
	require.NoError(t, err)
	return d
}

func TestExecutor_SelectFiltered(t *testing.T) {
	e, mock := newMockExecutor(t, "sqlite")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "hobbies" WHERE "student_id" IN (?, ?)`)).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "student_id"}).
			AddRow(int64(1), "Gardening", int64(1)).
			AddRow(int64(2), nil, int64(2)))

	rows, err := e.Select(context.Background(), orm.Where("hobbies", "student_id", 1, 2, 1))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	v, ok := rows[0].Get("name")
	require.True(t, ok)
	assert.Equal(t, "Gardening", v)
	_, ok = rows[0].Get("missing")
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_SelectAll(t *testing.T) {
	e, mock := newMockExecutor(t, "sqlite")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "students"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rows, err := e.Select(context.Background(), orm.All("students"))
	require.NoError(t, err)
	assert.Empty(t, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_EmptyFilterSkipsStore(t *testing.T) {
	e, mock := newMockExecutor(t, "sqlite")
	rows, err := e.Select(context.Background(), orm.Where("classes", "id"))
	require.NoError(t, err)
	assert.Empty(t, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_SelectRejectsUnsafeSpecification(t *testing.T) {
	e, _ := newMockExecutor(t, "sqlite")
	_, err := e.Select(context.Background(), orm.Where("students", "id) OR (1=1", 1))
	require.Error(t, err)
}

func TestExecutor_SelectError(t *testing.T) {
	e, mock := newMockExecutor(t, "sqlite")
	driverErr := stdErrors.New("no such table: students")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "students"`)).WillReturnError(driverErr)

	_, err := e.Select(context.Background(), orm.All("students"))
	require.Error(t, err)
	assert.True(t, orm.IsStoreError(err))
	assert.ErrorIs(t, err, driverErr)
}

func TestExecutor_Hydrate(t *testing.T) {
	e, _ := newMockExecutor(t, "sqlite")
	d := describe(t, &school.Student{})

	s := &school.Student{}
	row := Row{
		Columns: []string{"id", "firstName", "lastName", "legacy"},
		Values:  []any{int64(5), []byte("Daniel"), nil, "ignored"},
	}
	require.NoError(t, e.Hydrate(context.Background(), d, row, reflect.ValueOf(s)))
	require.NotNil(t, s.ID)
	assert.Equal(t, int64(5), *s.ID)
	assert.Equal(t, "Daniel", *s.FirstName)
	assert.Nil(t, s.LastName)
}

type memo struct {
	orm.Model
	Title string `orm:"column:title"`
}

func (memo) TableName() string { return "memos" }

func TestExecutor_HydrateNullIntoValueField(t *testing.T) {
	e, _ := newMockExecutor(t, "sqlite")
	d, err := orm.NewRegistry().ResolveValue(&memo{})
	require.NoError(t, err)

	var buf bytes.Buffer
	ctx := logging.ContextWithLogger(context.Background(), logging.NewStdLoggerWithWriter(&buf, "", logging.DebugLevel))

	m := &memo{Title: "draft"}
	row := Row{Columns: []string{"id", "title"}, Values: []any{nil, nil}}
	require.NoError(t, e.Hydrate(ctx, d, row, reflect.ValueOf(m)))
	assert.Equal(t, "", m.Title)
	assert.Contains(t, buf.String(), "null into non-pointer field")
	assert.Contains(t, buf.String(), "column=title")
	assert.Nil(t, m.ID)
	assert.NotContains(t, buf.String(), "column=id", "pointer fields take NULL as nil")
}

func TestExecutor_InsertLastInsertID(t *testing.T) {
	e, mock := newMockExecutor(t, "sqlite")
	d := describe(t, &school.Address{})

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "addresses" ("street", "number", "zipCode", "student_id") VALUES (?, ?, ?, ?)`)).
		WithArgs("Aleje Tysiaclecia", "333", nil, int64(1)).
		WillReturnResult(sqlmock.NewResult(7, 1))

	id, err := e.Insert(context.Background(), d,
		[]string{"street", "number", "zipCode", "student_id"},
		[]any{"Aleje Tysiaclecia", "333", nil, int64(1)})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_InsertDuplicate(t *testing.T) {
	e, mock := newMockExecutor(t, "sqlite")
	d := describe(t, &school.Class{})

	driverErr := stdErrors.New("UNIQUE constraint failed: classes.id")
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "classes" ("name") VALUES (?)`)).
		WithArgs("Math").
		WillReturnError(driverErr)

	_, err := e.Insert(context.Background(), d, []string{"name"}, []any{"Math"})
	require.Error(t, err)
	assert.True(t, orm.IsDuplicate(err))
	assert.True(t, orm.IsStoreError(err))
	assert.ErrorIs(t, err, driverErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_InsertReturningOnPostgres(t *testing.T) {
	e, mock := newMockExecutor(t, "postgres")
	d := describe(t, &school.Student{})

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "students" ("firstName", "lastName") VALUES ($1, $2) RETURNING "id"`)).
		WithArgs("Daniel", "Szwed").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := e.Insert(context.Background(), d, []string{"firstName", "lastName"}, []any{"Daniel", "Szwed"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_InsertDefaultValues(t *testing.T) {
	e, mock := newMockExecutor(t, "sqlite")
	d := describe(t, &school.Class{})

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "classes" DEFAULT VALUES`)).
		WillReturnResult(sqlmock.NewResult(3, 1))
	id, err := e.Insert(context.Background(), d, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
}

func TestExecutor_Update(t *testing.T) {
	e, mock := newMockExecutor(t, "sqlite")
	d := describe(t, &school.Student{})

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "students" SET "firstName" = ?, "lastName" = ? WHERE "id" = ?`)).
		WithArgs("Marek", nil, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, e.Update(context.Background(), d, 3, []string{"firstName", "lastName"}, []any{"Marek", nil}))
	require.NoError(t, e.Update(context.Background(), d, 3, nil, nil), "nothing to set issues no statement")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_Delete(t *testing.T) {
	e, mock := newMockExecutor(t, "sqlite")
	d := describe(t, &school.Student{})
	q := regexp.QuoteMeta(`DELETE FROM "students" WHERE "id" = ?`)

	mock.ExpectExec(q).WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(int64(2)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q).WithArgs(int64(3)).WillReturnError(stdErrors.New("database is locked"))

	ok, err := e.Delete(context.Background(), d, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Delete(context.Background(), d, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.Delete(context.Background(), d, 3)
	require.Error(t, err)
	assert.True(t, orm.IsStoreError(err))
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_LinkExistsAndLink(t *testing.T) {
	e, mock := newMockExecutor(t, "sqlite")
	d := describe(t, &school.Student{})
	rel, ok := d.Relation("Classes")
	require.True(t, ok)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "studentClass" WHERE "student_id" = ? AND "class_id" = ?`)).
		WithArgs(int64(1), int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(int64(0)))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "studentClass" ("student_id", "class_id") VALUES (?, ?)`)).
		WithArgs(int64(1), int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "studentClass" ("student_id", "class_id") VALUES (?, ?)`)).
		WithArgs(int64(1), int64(11)).
		WillReturnError(stdErrors.New("UNIQUE constraint failed: studentClass.student_id, studentClass.class_id"))

	exists, err := e.LinkExists(context.Background(), rel, 1, 11)
	require.NoError(t, err)
	assert.False(t, exists)

	linked, err := e.Link(context.Background(), rel, 1, 11)
	require.NoError(t, err)
	assert.True(t, linked)

	linked, err = e.Link(context.Background(), rel, 1, 11)
	require.NoError(t, err, "a duplicate join row counts as already linked")
	assert.False(t, linked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_LinkOnConflictKeepsTransaction(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	d := describe(t, &school.Student{})
	rel, ok := d.Relation("Classes")
	require.True(t, ok)

	insert := regexp.QuoteMeta(`INSERT INTO "studentClass" ("student_id", "class_id") VALUES ($1, $2) ON CONFLICT DO NOTHING`)
	mock.ExpectBegin()
	mock.ExpectExec(insert).WithArgs(int64(1), int64(11)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).WithArgs(int64(1), int64(11)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "classes" SET "name" = $1 WHERE "id" = $2`)).
		WithArgs("Math", int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := basicdb.Wrap(conn, "postgres").Begin(ctx)
	require.NoError(t, err)
	e := NewExecutor(tx)

	linked, err := e.Link(ctx, rel, 1, 11)
	require.NoError(t, err)
	assert.True(t, linked)

	linked, err = e.Link(ctx, rel, 1, 11)
	require.NoError(t, err)
	assert.False(t, linked, "conflicting join row is skipped inside the statement")

	classes := describe(t, &school.Class{})
	require.NoError(t, e.Update(ctx, classes, 11, []string{"name"}, []any{"Math"}), "transaction stays usable")
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

// 急加载一个学生：1 次根查询 + 地址 + 爱好 + 中间表 + 课程 = 5 条语句
func TestMaterializer_StatementsPerRelation(t *testing.T) {
	e, mock := newMockExecutor(t, "sqlite")
	reg := orm.NewRegistry()
	require.NoError(t, school.Register(reg))
	d, err := reg.ResolveValue(&school.Student{})
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "students" WHERE "id" IN (?)`)).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "firstName", "lastName"}).AddRow(int64(1), "John", "Doe"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "addresses" WHERE "student_id" IN (?)`)).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "street", "student_id"}).AddRow(int64(1), "123 Main Street", int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "hobbies" WHERE "student_id" IN (?)`)).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "student_id"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "studentClass" WHERE "student_id" IN (?)`)).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "class_id"}).AddRow(int64(1), int64(11)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "classes" WHERE "id" IN (?)`)).WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(11), "Math"))

	m := newMaterializer(e, reg, 0)
	ents, err := m.load(context.Background(), d, orm.Where("students", "id", 1), 0)
	require.NoError(t, err)
	require.Len(t, ents, 1)

	s := ents[0].Interface().(*school.Student)
	assert.Equal(t, "123 Main Street", *s.Address.Street)
	assert.NotNil(t, s.Hobbies)
	assert.Empty(t, s.Hobbies)
	require.Len(t, s.Classes, 1)
	assert.Equal(t, "Math", *s.Classes[0].Name)
	assert.Nil(t, s.Classes[0].Students)
	require.NoError(t, mock.ExpectationsWereMet())
}
