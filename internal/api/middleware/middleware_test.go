package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ayo6706/mfs-ledger/internal/idempotency"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTraceMiddleware(t *testing.T) {
	var seen string
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
	}))

	known := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceIDHeader, known)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, known, seen)
	assert.Equal(t, known, w.Header().Get(TraceIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceIDHeader, "<script>")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.NotEqual(t, "<script>", seen)
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
}

func TestRecoverMiddleware(t *testing.T) {
	h := TraceMiddleware(RecoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")
	assert.Contains(t, w.Body.String(), "internal/panic")
}

func TestRequireRole(t *testing.T) {
	h := RequireRole("Admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), roleContextKey, "User")))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), roleContextKey, "Admin")))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequireCurrentRole(t *testing.T) {
	stored := map[string]string{"admin": "Admin", "demoted": "User"}
	lookup := func(_ context.Context, mobile string) (string, error) {
		if mobile == "broken" {
			return "", errors.New("store unavailable")
		}
		return stored[mobile], nil
	}
	h := RequireCurrentRole(lookup, "Admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		mobile string
		want   int
	}{
		{mobile: "admin", want: http.StatusNoContent},
		{mobile: "demoted", want: http.StatusForbidden},
		{mobile: "blocked", want: http.StatusForbidden},
		{mobile: "broken", want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.mobile, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			ctx := context.WithValue(req.Context(), mobileContextKey, tc.mobile)
			ctx = context.WithValue(ctx, roleContextKey, "Admin")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req.WithContext(ctx))
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func newIdempotencyStore(t *testing.T) *idempotency.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return idempotency.NewStore(client, time.Hour)
}

func idempotentRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/transfers", strings.NewReader(body))
	req.Header.Set(IdempotencyKeyHeader, key)
	return req.WithContext(context.WithValue(req.Context(), userContextKey, "acct-1"))
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	var calls int32
	h := IdempotencyMiddleware(newIdempotencyStore(t), zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, idempotentRequest("k1", `{"amount":1}`))
	require.Equal(t, http.StatusCreated, w1.Code)

	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, idempotentRequest("k1", `{"amount":1}`))
	assert.Equal(t, http.StatusCreated, w2.Code)
	assert.Equal(t, "true", w2.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t, `{"ok":true}`, w2.Body.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	w3 := httptest.NewRecorder()
	h.ServeHTTP(w3, idempotentRequest("k1", `{"amount":2}`))
	assert.Equal(t, http.StatusConflict, w3.Code)
}

func TestIdempotencyReleasesOnServerError(t *testing.T) {
	var calls int32
	h := IdempotencyMiddleware(newIdempotencyStore(t), zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, idempotentRequest("k2", `{}`))
	require.Equal(t, http.StatusServiceUnavailable, w1.Code)

	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, idempotentRequest("k2", `{}`))
	assert.Equal(t, http.StatusCreated, w2.Code)
	assert.Empty(t, w2.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotencyRequiresKey(t *testing.T) {
	h := IdempotencyMiddleware(newIdempotencyStore(t), zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a key")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, idempotentRequest("", `{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
