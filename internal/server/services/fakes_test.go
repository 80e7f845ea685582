package services

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/avezhov/filestorage/internal/common"
	"github.com/avezhov/filestorage/internal/dbx"
	"github.com/avezhov/filestorage/internal/logging"
	"github.com/avezhov/filestorage/internal/server/models"
	"github.com/avezhov/filestorage/internal/server/repositories/files"
	"github.com/avezhov/filestorage/internal/server/repositories/users"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// fakeRepoManager vends the fake repositories regardless of the handle.
type fakeRepoManager struct {
	users *fakeUserRepo
	files *fakeFileRepo
}

func (m *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository                  { return m.users }
func (m *fakeRepoManager) Files(db dbx.DBTX) files.Repository                  { return m.files }

type fakeUserRepo struct {
	createFn        func(ctx context.Context, user *models.User) (*models.User, error)
	getByUsernameFn func(ctx context.Context, username string) (*models.User, error)
}

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	return r.createFn(ctx, user)
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getByUsernameFn(ctx, username)
}

type fakeFileRepo struct {
	getFn            func(ctx context.Context, userID int64, uuid, path string) (*models.File, error)
	createOrUpdateFn func(ctx context.Context, file *models.File) (*models.File, bool, error)
	listByUserFn     func(ctx context.Context, userID int64) ([]*models.File, error)
}

func (r *fakeFileRepo) Get(ctx context.Context, userID int64, uuid, path string) (*models.File, error) {
	return r.getFn(ctx, userID, uuid, path)
}

func (r *fakeFileRepo) Create(ctx context.Context, file *models.File) (*models.File, error) {
	panic("not used")
}

func (r *fakeFileRepo) Update(ctx context.Context, userID int64, path string, size int64) (*models.File, error) {
	panic("not used")
}

func (r *fakeFileRepo) CreateOrUpdate(ctx context.Context, file *models.File) (*models.File, bool, error) {
	return r.createOrUpdateFn(ctx, file)
}

func (r *fakeFileRepo) ListByUser(ctx context.Context, userID int64) ([]*models.File, error) {
	return r.listByUserFn(ctx, userID)
}

// fakeBlobStore records writes in memory keyed by user + path.
type fakeBlobStore struct {
	writeErr  error
	openErr   error
	written   map[string][]byte
	overwrite map[string]bool
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{written: map[string][]byte{}, overwrite: map[string]bool{}}
}

func (s *fakeBlobStore) Write(ctx context.Context, user, catalog, name string, src io.Reader, overwrite bool) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	b, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	key := user + catalog + "/" + name
	s.written[key] = b
	s.overwrite[key] = overwrite
	return nil
}

func (s *fakeBlobStore) Open(ctx context.Context, user, path string) (io.ReadCloser, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	b, ok := s.written[user+path]
	if !ok {
		return nil, common.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}
