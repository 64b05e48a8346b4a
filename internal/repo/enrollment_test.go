package repo

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"finlern/internal/pagination"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	execSQL  []string
	execArgs [][]any
	execTag  string
	execErr  error

	querySQL  string
	queryArgs []any
	rows      [][]any

	rowValues []any
	rowErr    error
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag(f.execTag), nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.querySQL = sql
	f.queryArgs = args
	return &fakeRows{data: f.rows}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{values: f.rowValues, err: f.rowErr}
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

type fakeRows struct {
	data [][]any
	i    int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.data[r.i-1], nil }

func (r *fakeRows) Next() bool {
	if r.i < len(r.data) {
		r.i++
		return true
	}
	return false
}

func (r *fakeRows) Scan(dest ...any) error {
	return assign(dest, r.data[r.i-1])
}

func assign(dest []any, values []any) error {
	if len(dest) != len(values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(values[i]))
	}
	return nil
}

func enrollmentRow(id string, created time.Time) []any {
	return []any{id, "Jane Doe", "jane@example.com", "+358401234567", "Engineer", "Teacher", "Private Lessons", "v1", created}
}

func TestEnrollmentRepo_Append(t *testing.T) {
	db := &fakeDB{execTag: "INSERT 0 1"}
	r := NewEnrollmentRepo(db)

	e := &Enrollment{FullName: "Jane Doe", Email: "jane@example.com", CourseType: "Private Lessons", FormVersion: "v1"}
	require.NoError(t, r.Append(context.Background(), e))

	assert.Len(t, e.ID, 26)
	assert.False(t, e.CreatedAt.IsZero())
	require.Len(t, db.execSQL, 1)
	assert.Contains(t, db.execSQL[0], "ON CONFLICT (id) DO NOTHING")
	assert.NotContains(t, strings.ToUpper(db.execSQL[0]), "UPDATE")
	assert.Equal(t, e.ID, db.execArgs[0][0])
	assert.Equal(t, "v1", db.execArgs[0][7])
}

func TestEnrollmentRepo_AppendDuplicate(t *testing.T) {
	db := &fakeDB{execTag: "INSERT 0 0"}
	err := NewEnrollmentRepo(db).Append(context.Background(), &Enrollment{ID: "01J00000000000000000000000"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestEnrollmentRepo_AppendError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("connection reset")}
	err := NewEnrollmentRepo(db).Append(context.Background(), &Enrollment{})
	assert.EqualError(t, err, "connection reset")
}

func TestEnrollmentRepo_List(t *testing.T) {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	db := &fakeDB{
		rowValues: []any{42},
		rows:      [][]any{enrollmentRow("b", now), enrollmentRow("a", now.Add(-time.Hour))},
	}

	list, total, err := NewEnrollmentRepo(db).List(context.Background(), pagination.NewPager(42, 3, 10))
	require.NoError(t, err)
	assert.Equal(t, 42, total)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "Private Lessons", list[0].CourseType)
	assert.Equal(t, []any{10, 20}, db.queryArgs)
	assert.Contains(t, db.querySQL, "ORDER BY created_at DESC")
}

func TestEnrollmentRepo_ListAll(t *testing.T) {
	now := time.Now()
	db := &fakeDB{rows: [][]any{enrollmentRow("a", now)}}

	list, err := NewEnrollmentRepo(db).ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, now, list[0].CreatedAt)
}

func TestNewEnrollmentID_SortsByTime(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewEnrollmentID(t0)
	b := NewEnrollmentID(t0.Add(time.Millisecond))
	assert.Less(t, a, b)

	parsed, err := ulid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(t0), parsed.Time())
}

func TestMigrate(t *testing.T) {
	db := &fakeDB{rowValues: []any{(*string)(nil)}}
	created, err := Migrate(context.Background(), db)
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, db.execSQL, 1)
	assert.Contains(t, db.execSQL[0], "BEFORE UPDATE OR DELETE ON enrollments")

	existing := "enrollments"
	db = &fakeDB{rowValues: []any{&existing}}
	created, err = Migrate(context.Background(), db)
	require.NoError(t, err)
	assert.False(t, created)

	db = &fakeDB{rowErr: errors.New("no database")}
	_, err = Migrate(context.Background(), db)
	assert.Error(t, err)
}

func TestConfig_ConnString(t *testing.T) {
	cfg := Config{User: "app", Password: "p@ss/word", Host: "db", Port: "5432", Name: "finlern"}
	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5432/finlern?search_path=public&sslmode=disable", cfg.ConnString())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.ConnString(), "sslmode=require")
}
