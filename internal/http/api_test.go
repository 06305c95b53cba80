package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notekeeper/internal/auth"
	"notekeeper/internal/domain"
	"notekeeper/internal/service"
)

func TestRegister(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"user_name": "ada",
		"email":     "Ada@Example.com",
		"password":  "pw",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var body map[string]any
	decode(t, rec, &body)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "ada@example.com", body["email"])
	assert.NotContains(t, body, "password")
	assert.NotContains(t, body, "password_hash")

	rec = s.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"user_name": "imposter",
		"email":     "ada@example.com",
		"password":  "pw",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email already registered", errorBody(t, rec))
}

func TestRegisterRejectsIncompleteBodies(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name    string
		body    any
		message string
	}{
		{"missing name", gin.H{"email": "a@example.com", "password": "pw"}, "user_name is required"},
		{"blank name", gin.H{"user_name": "  ", "email": "a@example.com", "password": "pw"}, "user_name is required"},
		{"missing email", gin.H{"user_name": "a", "password": "pw"}, "email is required"},
		{"bad email", gin.H{"user_name": "a", "email": "not-an-email", "password": "pw"}, "email must be a valid email address"},
		{"missing password", gin.H{"user_name": "a", "email": "a@example.com"}, "password is required"},
		{"malformed json", `{"user_name":`, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/auth/register", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.message, errorBody(t, rec))
		})
	}
}

func TestLoginAndMe(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "grace@example.com")

	rec := s.do(t, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me userResponse
	decode(t, rec, &me)
	assert.Equal(t, "grace@example.com", me.Email)
	assert.Equal(t, "grace", me.UserName)
	assert.False(t, me.CreatedOn.IsZero())

	rec = s.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "grace@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "incorrect email or password", errorBody(t, rec))

	rec = s.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "nobody@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestNoteRoutesRequireAuthentication(t *testing.T) {
	s := newTestServer(t)
	id := uuid.NewString()
	body := gin.H{"note_title": "t", "note_content": "c"}

	routes := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/notes", nil},
		{http.MethodPost, "/notes", body},
		{http.MethodPost, "/notes", `{"broken"`},
		{http.MethodGet, "/notes/" + id, nil},
		{http.MethodPut, "/notes/" + id, body},
		{http.MethodDelete, "/notes/" + id, nil},
		{http.MethodPost, "/notes/import", gin.H{"version": 1}},
		{http.MethodPost, "/exports", nil},
		{http.MethodGet, "/exports", nil},
		{http.MethodDelete, "/exports", nil},
	}
	for _, token := range []string{"", "garbage.token.value"} {
		for _, r := range routes {
			rec := s.do(t, r.method, r.path, token, r.body)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s token=%q", r.method, r.path, token)
		}
	}
}

func TestNoteLifecycle(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "ada@example.com")

	created := s.createNote(t, token, "  Groceries ", " eggs ")
	assert.Equal(t, "Groceries", created.Title)
	assert.Equal(t, "eggs", created.Content)
	assert.NotEmpty(t, created.UserID)

	rec := s.do(t, http.MethodGet, "/notes/"+created.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got NoteResponse
	decode(t, rec, &got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Groceries", got.Title)
	assert.Equal(t, "eggs", got.Content)
	assert.Equal(t, created.UserID, got.UserID)

	rec = s.do(t, http.MethodPut, "/notes/"+created.ID, token, gin.H{"note_title": "Groceries", "note_content": "eggs, milk"})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated NoteResponse
	decode(t, rec, &updated)
	assert.Equal(t, "eggs, milk", updated.Content)
	assert.False(t, updated.LastUpdate.Before(created.LastUpdate))

	rec = s.do(t, http.MethodDelete, "/notes/"+created.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msg map[string]string
	decode(t, rec, &msg)
	assert.Equal(t, "Note deleted successfully", msg["message"])

	rec = s.do(t, http.MethodGet, "/notes/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodDelete, "/notes/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNoteValidation(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "ada@example.com")

	rec := s.do(t, http.MethodPost, "/notes", token, gin.H{"note_title": strings.Repeat("a", 100), "note_content": "ok"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name    string
		body    any
		message string
	}{
		{"title too long", gin.H{"note_title": strings.Repeat("a", 101), "note_content": "ok"}, "note_title must be at most 100 characters"},
		{"missing title", gin.H{"note_content": "ok"}, "note_title is required"},
		{"whitespace body", gin.H{"note_title": "ok", "note_content": " \t\n"}, "note_content is required"},
		{"missing body", gin.H{"note_title": "ok"}, "note_content is required"},
		{"not json", "title=ok", "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/notes", token, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.message, errorBody(t, rec))
		})
	}

	note := s.createNote(t, token, "keep", "me")
	rec = s.do(t, http.MethodPut, "/notes/"+note.ID, token, gin.H{"note_title": "", "note_content": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotesAreInvisibleToOtherUsers(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup(t, "alice@example.com")
	bob := s.signup(t, "bob@example.com")

	note := s.createNote(t, alice, "diary", "private thoughts")
	missing := uuid.NewString()

	for _, id := range []string{note.ID, missing} {
		get := s.do(t, http.MethodGet, "/notes/"+id, bob, nil)
		put := s.do(t, http.MethodPut, "/notes/"+id, bob, gin.H{"note_title": "mine", "note_content": "now"})
		del := s.do(t, http.MethodDelete, "/notes/"+id, bob, nil)
		for _, rec := range []int{get.Code, put.Code, del.Code} {
			assert.Equal(t, http.StatusNotFound, rec, "id %s", id)
		}
		assert.JSONEq(t, `{"error":"note not found"}`, get.Body.String())
		assert.JSONEq(t, `{"error":"note not found"}`, put.Body.String())
		assert.JSONEq(t, `{"error":"note not found"}`, del.Body.String())
	}

	rec := s.do(t, http.MethodGet, "/notes", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/notes/"+note.ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got NoteResponse
	decode(t, rec, &got)
	assert.Equal(t, "private thoughts", got.Content)
}

func TestListIsOrderedByLastUpdate(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "ada@example.com")

	first := s.createNote(t, token, "first", "1")
	time.Sleep(2 * time.Millisecond)
	s.createNote(t, token, "second", "2")
	time.Sleep(2 * time.Millisecond)
	s.createNote(t, token, "third", "3")
	time.Sleep(2 * time.Millisecond)

	rec := s.do(t, http.MethodPut, "/notes/"+first.ID, token, gin.H{"note_title": "first", "note_content": "1b"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/notes", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []NoteResponse
	decode(t, rec, &list)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"first", "third", "second"}, []string{list[0].Title, list[1].Title, list[2].Title})
}

func TestImportAndExport(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "ada@example.com")

	archive := gin.H{
		"version": 1,
		"notes": []gin.H{
			{"note_id": "legacy-1", "note_title": "from the old app", "note_content": "hello"},
			{"id": "legacy-2", "note_title": "another", "note_content": "world"},
		},
	}
	rec := s.do(t, http.MethodPost, "/notes/import", token, archive)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"imported":2,"skipped":0}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/notes/import", token, archive)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"imported":0,"skipped":2}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/notes/legacy-1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var legacy NoteResponse
	decode(t, rec, &legacy)
	assert.Equal(t, "legacy-1", legacy.NoteID)
	assert.Equal(t, "from the old app", legacy.Title)

	rec = s.do(t, http.MethodPost, "/notes/import", token, gin.H{"version": 2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/exports", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var record exportResponse
	decode(t, rec, &record)
	assert.Equal(t, 2, record.NoteCount)
	assert.True(t, strings.HasPrefix(record.Key, "exports/"))

	rec = s.do(t, http.MethodGet, "/exports", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []exportResponse
	decode(t, rec, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, record.Key, listed[0].Key)
	assert.Contains(t, listed[0].URL, "X-Amz-Signature")

	rec = s.do(t, http.MethodDelete, "/exports", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":true}`, rec.Body.String())
}

func TestExportsWithoutStorage(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.Archives = service.NewArchiveService(nil, nil, service.ArchiveConfig{}, nil)
	})
	token := s.signup(t, "ada@example.com")

	rec := s.do(t, http.MethodPost, "/exports", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type brokenResolver struct{}

func (brokenResolver) ResolveToken(context.Context, string) (domain.Principal, error) {
	return domain.Principal{}, auth.ErrIdentityUnavailable
}

func (brokenResolver) ResolveCredentials(context.Context, string, string) (domain.Principal, error) {
	return domain.Principal{}, auth.ErrIdentityUnavailable
}

func (brokenResolver) Issue(domain.Principal) (string, time.Time, error) {
	return "", time.Time{}, errors.New("unused")
}

func TestIdentityStoreFailureIsNotAnonymous(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.Identity = brokenResolver{} })

	rec := s.do(t, http.MethodGet, "/notes", "some-token", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "identity service unavailable", errorBody(t, rec))

	rec = s.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "a@example.com", "password": "pw"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type failingNotes struct {
	service.NoteService
}

func (failingNotes) List(context.Context, domain.Principal) ([]domain.Note, error) {
	return nil, errors.New("sql: database is closed at /var/lib/notes.db")
}

func TestUnexpectedErrorsAreGeneric(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.Notes = failingNotes{} })
	token := s.signup(t, "ada@example.com")

	rec := s.do(t, http.MethodGet, "/notes", token, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "database")
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	s = newTestServer(t, func(c *Config) { c.Store = failingPinger{} })
	rec = s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	limiter := NewMemoryRateLimiter()
	t.Cleanup(limiter.Close)
	s := newTestServer(t, func(c *Config) {
		c.Limiter = limiter
		c.AuthPerMinute = 2
	})

	body := gin.H{"email": "a@example.com", "password": "pw"}
	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPost, "/auth/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := s.do(t, http.MethodPost, "/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// registration has its own window
	rec = s.do(t, http.MethodPost, "/auth/register", "", gin.H{"user_name": "a", "email": "a@example.com", "password": "pw"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `notekeeper_api_rate_limit_hits_total{route="/auth/login"} 1`)
}

func TestMetricsRecordRoutes(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/health", "", nil)

	rec := s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `notekeeper_api_http_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.CORSOrigin = "https://notes.example.com" })

	rec := s.do(t, http.MethodOptions, "/notes", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://notes.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}
