package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avezhov/filestorage/internal/common"
	"github.com/avezhov/filestorage/internal/dbx"
	"github.com/avezhov/filestorage/internal/logging"
	"github.com/avezhov/filestorage/internal/server/models"
	"github.com/avezhov/filestorage/internal/server/repositories/files"
	"github.com/avezhov/filestorage/internal/server/repositories/users"
	"github.com/avezhov/filestorage/internal/server/services"
)

// in-memory repositories backing the API tests

type memUserRepo struct {
	mu     sync.Mutex
	seq    int64
	byName map[string]*models.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byName: map[string]*models.User{}}
}

func (r *memUserRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[user.Username]; ok {
		return nil, common.ErrUserAlreadyExists
	}
	r.seq++
	stored := *user
	stored.ID = r.seq
	r.byName[user.Username] = &stored
	out := stored
	return &out, nil
}

func (r *memUserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byName[username]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := *u
	return &out, nil
}

type memFileRepo struct {
	mu     sync.Mutex
	seq    int64
	byPath map[string]*models.File
}

func newMemFileRepo() *memFileRepo {
	return &memFileRepo{byPath: map[string]*models.File{}}
}

func (r *memFileRepo) Get(ctx context.Context, userID int64, uid, path string) (*models.File, error) {
	if userID == 0 || (uid == "" && path == "") {
		return nil, common.ErrFieldRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if uid != "" {
		for _, f := range r.byPath {
			if f.UUID == uid && f.UserID == userID {
				out := *f
				return &out, nil
			}
		}
	}
	if path != "" {
		if f, ok := r.byPath[path]; ok && f.UserID == userID {
			out := *f
			return &out, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *memFileRepo) Create(ctx context.Context, file *models.File) (*models.File, error) {
	panic("not used")
}

func (r *memFileRepo) Update(ctx context.Context, userID int64, path string, size int64) (*models.File, error) {
	panic("not used")
}

func (r *memFileRepo) CreateOrUpdate(ctx context.Context, file *models.File) (*models.File, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byPath[file.Path]; ok {
		if existing.UserID != file.UserID {
			return nil, false, common.ErrFileConflict
		}
		existing.Size = file.Size
		existing.CreatedAt = time.Now()
		out := *existing
		return &out, false, nil
	}
	r.seq++
	stored := *file
	stored.ID = r.seq
	stored.UUID = uuid.NewString()
	stored.CreatedAt = time.Now()
	r.byPath[file.Path] = &stored
	out := stored
	return &out, true, nil
}

func (r *memFileRepo) ListByUser(ctx context.Context, userID int64) ([]*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.File
	for _, f := range r.byPath {
		if f.UserID == userID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memRepoManager struct {
	userRepo *memUserRepo
	fileRepo *memFileRepo
}

func (m *memRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (m *memRepoManager) Users(db dbx.DBTX) users.Repository                  { return m.userRepo }
func (m *memRepoManager) Files(db dbx.DBTX) files.Repository                  { return m.fileRepo }

type memBlobStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{data: map[string][]byte{}}
}

func (s *memBlobStore) Write(ctx context.Context, user, catalog, name string, src io.Reader, overwrite bool) error {
	b, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[user+catalog+"/"+name] = b
	return nil
}

func (s *memBlobStore) Open(ctx context.Context, user, path string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[user+path]
	if !ok {
		return nil, common.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func newTestAPI(t *testing.T) (*httptest.Server, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	repos := &memRepoManager{userRepo: newMemUserRepo(), fileRepo: newMemFileRepo()}

	userService := services.NewUserService(db, repos, "test-secret", time.Hour, logger)
	fileService := services.NewFileService(db, repos, newMemBlobStore(), logger)

	srv := NewServer(":0", userService, fileService, db, logger)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)

	return ts, mock
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := ts.Client().Post(ts.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func multipartBody(t *testing.T, fieldName, fileName, contentType, payload string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, fieldName, fileName))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return &buf, w.FormDataContentType()
}

func uploadFile(t *testing.T, ts *httptest.Server, token, virtualPath, fileName, contentType, payload string) *http.Response {
	t.Helper()
	body, bodyType := multipartBody(t, "file", fileName, contentType, payload)

	req, err := http.NewRequest(http.MethodPost,
		ts.URL+"/api/v1/files/upload?path="+url.QueryEscape(virtualPath), body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", bodyType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func authedGet(t *testing.T, ts *httptest.Server, token, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func TestAPI_FullFlow(t *testing.T) {
	ts, mock := newTestAPI(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectPing()

	creds := map[string]string{"username": "alice", "password": "secret123"}

	// register
	resp := postJSON(t, ts, "/api/v1/register/", creds)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody(t, resp)["created"])

	// duplicate registration
	resp = postJSON(t, ts, "/api/v1/register/", creds)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "User with this username already exist", decodeBody(t, resp)["detail"])

	// wrong password
	resp, err := ts.Client().PostForm(ts.URL+"/api/v1/auth",
		url.Values{"username": {"alice"}, "password": {"wrong"}})
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))
	resp.Body.Close()

	// issue a token
	resp, err = ts.Client().PostForm(ts.URL+"/api/v1/auth",
		url.Values{"username": {"alice"}, "password": {"secret123"}})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	authBody := decodeBody(t, resp)
	token, _ := authBody["access_token"].(string)
	require.NotEmpty(t, token)
	assert.Equal(t, "bearer", authBody["token_type"])

	// upload requires a token
	resp = uploadFile(t, ts, "", "/docs/report.txt", "report.txt", "text/plain", strings.Repeat("x", 42))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// first upload: 42 bytes
	resp = uploadFile(t, ts, token, "/docs/report.txt", "report.txt", "text/plain", strings.Repeat("x", 42))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody(t, resp)
	assert.Equal(t, "/docs/report.txt", created["path"])
	assert.Equal(t, float64(42), created["size"])
	fileID, _ := created["id"].(string)
	require.NotEmpty(t, fileID)

	// replace with 7 bytes: same record, same id
	resp = uploadFile(t, ts, token, "/docs/report.txt", "report.txt", "text/plain", "1234567")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	replaced := decodeBody(t, resp)
	assert.Equal(t, fileID, replaced["id"])
	assert.Equal(t, float64(7), replaced["size"])

	// download by path
	resp = authedGet(t, ts, token, "/api/v1/files/download?path="+url.QueryEscape("/docs/report.txt"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "7", resp.Header.Get("Content-Length"))
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "1234567", string(b))

	// download by uuid
	resp = authedGet(t, ts, token, "/api/v1/files/download?path="+fileID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "1234567", string(b))

	// unknown locator
	resp = authedGet(t, ts, token, "/api/v1/files/download?path="+url.QueryEscape("/docs/missing.txt"))
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// list
	resp = authedGet(t, ts, token, "/api/v1/files/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody(t, resp)
	require.NotEmpty(t, list["account_id"])
	fileList, _ := list["files"].([]any)
	require.Len(t, fileList, 1)
	first, _ := fileList[0].(map[string]any)
	assert.Equal(t, "report.txt", first["name"])
	assert.Equal(t, float64(7), first["size"])

	// ping
	resp, err = ts.Client().Get(ts.URL + "/api/v1/ping")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody(t, resp)["status"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAPI_UploadValidation(t *testing.T) {
	ts, _ := newTestAPI(t)

	resp := postJSON(t, ts, "/api/v1/register/", map[string]string{"username": "bob", "password": "pw"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	authResp, err := ts.Client().PostForm(ts.URL+"/api/v1/auth",
		url.Values{"username": {"bob"}, "password": {"pw"}})
	require.NoError(t, err)
	token, _ := decodeBody(t, authResp)["access_token"].(string)
	require.NotEmpty(t, token)

	// declared type contradicts the path extension
	resp = uploadFile(t, ts, token, "/docs/report.txt", "report.txt", "application/pdf", "12345")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// catalog path without a usable filename
	resp = uploadFile(t, ts, token, "/docs/", "", "text/plain", "12345")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// unresolvable content type
	resp = uploadFile(t, ts, token, "/docs/blob.bin", "blob.bin", "application/x-nonsense", "12345")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// virtual path with parent segments
	resp = uploadFile(t, ts, token, "/../../evil.txt", "evil.txt", "text/plain", "12345")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// uploaded filename with parent segments into a catalog path
	resp = uploadFile(t, ts, token, "/docs/", "../evil.txt", "text/plain", "12345")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_BadToken(t *testing.T) {
	ts, _ := newTestAPI(t)

	resp := authedGet(t, ts, "garbage-token", "/api/v1/files/")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))
	resp.Body.Close()
}
