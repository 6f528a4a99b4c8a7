package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"emailer/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	data    string
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	return dest[0].(*types.Object).Scan([]byte(r.data))
}

// --- Mock Rows ---

type mockRows struct {
	data   []string
	idx    int
	closed bool
	errVal error
}

func newMockRows(data ...string) *mockRows {
	return &mockRows{data: data, idx: -1}
}

func (r *mockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *mockRows) Scan(dest ...any) error {
	return dest[0].(*types.Object).Scan([]byte(r.data[r.idx]))
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.errVal }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

func TestObjectRepository_Get_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewObjectRepository(db)
	ctx := context.Background()

	row := &mockRow{data: `{"id":"c","last_modified":1700000000000,"emailer":{"hooks":[]}}`}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"/buckets/b", "collection", "c"}).Return(row)

	obj, err := repo.Get(ctx, "/buckets/b", types.ResourceCollection, "c")
	require.NoError(t, err)
	assert.Equal(t, "c", obj.ID())
	assert.Equal(t, json.Number("1700000000000"), obj[FieldLastModified])
	assert.Contains(t, obj, "emailer")

	db.AssertExpectations(t)
}

func TestObjectRepository_Get_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewObjectRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"", "bucket", "missing"}).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.Get(ctx, "", types.ResourceBucket, "missing")
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
}

func TestObjectRepository_Get_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewObjectRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("connection reset")})

	_, err := repo.Get(context.Background(), "", types.ResourceBucket, "b")
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalDB, types.ErrorCodeOf(err))
	assert.False(t, types.IsNotFound(err))
}

func TestObjectRepository_List(t *testing.T) {
	db := new(mockDBTX)
	repo := NewObjectRepository(db)

	rows := newMockRows(`{"id":"r2"}`, `{"id":"r1"}`)
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{"/buckets/b/collections/c", "record"}).
		Return(rows, nil)

	out, err := repo.List(context.Background(), "/buckets/b/collections/c", types.ResourceRecord)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "r2", out[0].ID())
	assert.Equal(t, "r1", out[1].ID())
	assert.True(t, rows.closed)
}

func TestObjectRepository_List_Empty(t *testing.T) {
	db := new(mockDBTX)
	repo := NewObjectRepository(db)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(newMockRows(), nil)

	out, err := repo.List(context.Background(), "", types.ResourceBucket)
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestObjectRepository_Insert(t *testing.T) {
	obj := types.Object{"id": "b", FieldLastModified: int64(42)}

	t.Run("inserted", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"", "bucket", "b", obj, int64(42)}).
			Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

		require.NoError(t, NewObjectRepository(db).Insert(context.Background(), "", types.ResourceBucket, obj))
		db.AssertExpectations(t)
	})

	t.Run("conflict", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

		err := NewObjectRepository(db).Insert(context.Background(), "", types.ResourceBucket, obj)
		require.Error(t, err)
		assert.Equal(t, types.ErrCodeConflictExists, types.ErrorCodeOf(err))
	})
}

func TestObjectRepository_Upsert_DBError(t *testing.T) {
	db := new(mockDBTX)
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("boom"))

	err := NewObjectRepository(db).Upsert(context.Background(), "", types.ResourceBucket, types.Object{"id": "b"})
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalDB, types.ErrorCodeOf(err))
}

func TestObjectRepository_Delete_CascadesToChildren(t *testing.T) {
	db := new(mockDBTX)
	repo := NewObjectRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"", "bucket", "my_b"}).
		Return(&mockRow{data: `{"id":"my_b"}`})
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"/buckets/my_b", `/buckets/my\_b/%`}).
		Return(pgconn.NewCommandTag("DELETE 3"), nil)

	old, err := repo.Delete(context.Background(), "", types.ResourceBucket, "my_b")
	require.NoError(t, err)
	assert.Equal(t, "my_b", old.ID())
	db.AssertExpectations(t)
}

func TestObjectRepository_Delete_NotFound(t *testing.T) {
	db := new(mockDBTX)
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := NewObjectRepository(db).Delete(context.Background(), "/buckets/b", types.ResourceGroup, "g")
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestObjectURI(t *testing.T) {
	assert.Equal(t, "/buckets/b", ObjectURI("", types.ResourceBucket, "b"))
	assert.Equal(t, "/buckets/b/groups/g", ObjectURI("/buckets/b", types.ResourceGroup, "g"))
	assert.Equal(t, "/buckets/b/collections/c/records/r", ObjectURI("/buckets/b/collections/c", types.ResourceRecord, "r"))
}

func TestSplitParent(t *testing.T) {
	tests := []struct {
		parent     string
		bucket     string
		collection string
	}{
		{"", "", ""},
		{"/buckets/b", "b", ""},
		{"/buckets/b/collections/c", "b", "c"},
		{"/nonsense", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.parent, func(t *testing.T) {
			b, c := SplitParent(tt.parent)
			assert.Equal(t, tt.bucket, b)
			assert.Equal(t, tt.collection, c)
		})
	}
}

func TestMigrate(t *testing.T) {
	db := new(mockDBTX)
	db.On("Exec", mock.Anything, Schema, []any(nil)).Return(pgconn.NewCommandTag("CREATE TABLE"), nil)

	require.NoError(t, Migrate(context.Background(), db))
	db.AssertExpectations(t)
}
