package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"notekeeper/internal/auth"
	"notekeeper/internal/repository/migrations"
	"notekeeper/internal/repository/sqlite"
	"notekeeper/internal/service"
	"notekeeper/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	store  *memoryStore
}

type serverOption func(*Config)

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	db, err := sqlite.Open(sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	runner, err := migrations.New(db, migrations.DriverSQLite, log)
	require.NoError(t, err)
	require.NoError(t, runner.Up(context.Background()))

	userRepo := sqlite.NewUserRepository(db)
	noteRepo := sqlite.NewNoteRepository(db)
	users := service.NewUserService(userRepo, bcrypt.MinCost)
	tokens, err := auth.NewTokenManager("http-test-secret", time.Hour, "notekeeper", nil)
	require.NoError(t, err)
	store := newMemoryStore()

	cfg := Config{
		Users:    users,
		Notes:    service.NewNoteService(noteRepo, nil),
		Archives: service.NewArchiveService(noteRepo, store, service.ArchiveConfig{Bucket: "archives", KeyPrefix: "exports"}, nil),
		Identity: auth.NewResolver(users, tokens, log),
		Store:    noteRepo,
		Metrics:  NewMetrics(),
		Logger:   log,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	router := gin.New()
	NewHandler(cfg).RegisterRoutes(router)
	return &testServer{router: router, store: store}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// signup registers a user and returns a session token for them.
func (s *testServer) signup(t *testing.T, email string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"user_name": strings.Split(email, "@")[0],
		"email":     email,
		"password":  "correct horse",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": email, "password": "correct horse"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tok tokenResponse
	decode(t, rec, &tok)
	require.NotEmpty(t, tok.AccessToken)
	return tok.AccessToken
}

func (s *testServer) createNote(t *testing.T, token, title, content string) NoteResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/notes", token, gin.H{"note_title": title, "note_content": content})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var note NoteResponse
	decode(t, rec, &note)
	return note
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, rec, &body)
	return body.Error
}

type memoryStore struct {
	mu      sync.Mutex
	objects map[string]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string]int64{}}
}

func (m *memoryStore) PutObject(_ context.Context, bucket, key string, body io.Reader, _ string) (string, error) {
	n, err := io.Copy(io.Discard, body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = n
	return "s3://" + bucket + "/" + key, nil
}

func (m *memoryStore) ListObjects(_ context.Context, _, prefix string) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ObjectInfo
	for k, size := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.ObjectInfo{Key: k, Size: size})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memoryStore) DeletePrefix(_ context.Context, _, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			delete(m.objects, k)
		}
	}
	return nil
}

func (m *memoryStore) GetObjectURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "https://" + bucket + ".s3.test/" + key + "?X-Amz-Signature=stub", nil
}
