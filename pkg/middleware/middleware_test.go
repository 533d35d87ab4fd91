package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"smallbiznis-picks/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(store IdempotencyStore, calls *int, status int) *gin.Engine {
	r := gin.New()
	r.Use(Idempotency(store, time.Hour), Error())
	r.POST("/claims", func(c *gin.Context) {
		*calls++
		c.JSON(status, gin.H{"call": *calls})
	})
	return r
}

func do(r http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/claims", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	calls := 0
	r := newEngine(newMemStore(), &calls, http.StatusCreated)

	first := do(r, "k1", `{"adViewId":"1"}`)
	second := do(r, "k1", `{"adViewId":"1"}`)

	require.Equal(t, 1, calls)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Equal(t, "true", second.Header().Get(IdempotencyReplayedHeader))
	require.Empty(t, first.Header().Get(IdempotencyReplayedHeader))
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	calls := 0
	r := newEngine(newMemStore(), &calls, http.StatusCreated)

	do(r, "k1", `{"adViewId":"1"}`)
	w := do(r, "k1", `{"adViewId":"2"}`)

	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, 1, calls)
}

func TestIdempotencyWithoutKeyPassesThrough(t *testing.T) {
	calls := 0
	r := newEngine(newMemStore(), &calls, http.StatusCreated)

	do(r, "", `{}`)
	do(r, "", `{}`)

	require.Equal(t, 2, calls)
}

func TestIdempotencyDoesNotStoreServerErrors(t *testing.T) {
	calls := 0
	r := newEngine(newMemStore(), &calls, http.StatusServiceUnavailable)

	do(r, "k1", `{}`)
	w := do(r, "k1", `{}`)

	require.Equal(t, 2, calls)
	require.Empty(t, w.Header().Get(IdempotencyReplayedHeader))
}

func TestIdempotencyInFlightIsConflict(t *testing.T) {
	store := newMemStore()
	calls := 0
	r := newEngine(store, &calls, http.StatusCreated)

	store.data["picks:idem:lock:POST:/claims:k1"] = []byte("other")
	w := do(r, "k1", `{}`)

	require.Equal(t, http.StatusConflict, w.Code)
	require.Zero(t, calls)
}

func TestIdempotencyStoreDownPassesThrough(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	calls := 0
	r := newEngine(store, &calls, http.StatusCreated)

	require.Equal(t, http.StatusCreated, do(r, "k1", `{}`).Code)
	require.Equal(t, http.StatusCreated, do(r, "k1", `{}`).Code)
	require.Equal(t, 2, calls)
}

func TestErrorRendersBaseError(t *testing.T) {
	r := gin.New()
	r.Use(Error())
	r.GET("/missing", func(c *gin.Context) {
		_ = c.Error(errutil.NotFound("task not found", nil))
	})
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
	})
	r.GET("/busy", func(c *gin.Context) {
		_ = c.Error(errutil.ServiceUnavailable("busy", nil))
	})

	for _, tc := range []struct {
		path   string
		status int
		code   string
	}{
		{"/missing", http.StatusNotFound, string(errutil.StatusNotFound)},
		{"/boom", http.StatusInternalServerError, string(errutil.StatusInternal)},
		{"/busy", http.StatusServiceUnavailable, string(errutil.StatusServiceUnavailable)},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
		require.Equal(t, tc.status, w.Code, tc.path)
		require.Contains(t, w.Body.String(), tc.code, tc.path)
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(RequestIDKey))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, w.Header().Get(RequestIDHeader))
	require.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "abc", w.Body.String())
}
