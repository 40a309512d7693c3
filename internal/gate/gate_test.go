package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lowc1012/flight-change-api/internal/auth"
	"github.com/lowc1012/flight-change-api/internal/log"
	"github.com/lowc1012/flight-change-api/internal/ratelimiter"
	"github.com/lowc1012/flight-change-api/internal/store"
)

const apiKey = "test-key"

type stubLimiter struct {
	verdict *ratelimiter.Verdict
	err     error
	calls   int
}

func (l *stubLimiter) Check(context.Context, string) (*ratelimiter.Verdict, error) {
	l.calls++
	return l.verdict, l.err
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
}

func newVerifier(t *testing.T) *auth.Verifier {
	t.Helper()
	v, err := auth.NewVerifier(apiKey)
	require.NoError(t, err)
	return v
}

func newLimiter(t *testing.T, limit int64) *ratelimiter.SlidingWindowLimiter {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	s, err := store.NewRedisStore(store.Options{URL: "redis://" + server.Addr(), Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Connect(context.Background()))

	l, err := ratelimiter.NewSlidingWindowLimiter(ratelimiter.Config{
		Store:  s,
		Limit:  limit,
		Window: 30 * time.Second,
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	return l
}

func request(path, key, ip string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, nil)
	if key != "" {
		r.Header.Set(auth.HeaderName, key)
	}
	r.Header.Set("X-Forwarded-For", ip)
	return r
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestGate_Responses(t *testing.T) {
	var tests = []struct {
		name       string
		path       string
		key        string
		limiter    *stubLimiter
		wantStatus int
		wantError  string
		wantCalls  int
	}{
		{
			name:       "missing key",
			path:       "/api/get-flight-details",
			limiter:    &stubLimiter{verdict: &ratelimiter.Verdict{State: ratelimiter.Allow, Limit: 20, Remaining: 19}},
			wantStatus: http.StatusUnauthorized,
			wantError:  msgMissingKey,
		},
		{
			name:       "invalid key",
			path:       "/api/get-flight-details",
			key:        "nope",
			limiter:    &stubLimiter{verdict: &ratelimiter.Verdict{State: ratelimiter.Allow, Limit: 20, Remaining: 19}},
			wantStatus: http.StatusForbidden,
			wantError:  msgInvalidKey,
		},
		{
			name:       "rate limited",
			path:       "/api/get-flight-details",
			key:        apiKey,
			limiter:    &stubLimiter{verdict: &ratelimiter.Verdict{State: ratelimiter.Deny, Limit: 20}},
			wantStatus: http.StatusTooManyRequests,
			wantError:  msgRateLimited,
			wantCalls:  1,
		},
		{
			name:       "fail closed",
			path:       "/api/get-flight-details",
			key:        apiKey,
			limiter:    &stubLimiter{err: fmt.Errorf("%w: %w", ratelimiter.ErrStoreUnavailable, store.ErrUnavailable)},
			wantStatus: http.StatusInternalServerError,
			wantError:  msgStoreFailure,
			wantCalls:  1,
		},
		{
			name:       "unexpected limiter error",
			path:       "/api/get-flight-details",
			key:        apiKey,
			limiter:    &stubLimiter{err: errors.New("boom")},
			wantStatus: http.StatusInternalServerError,
			wantError:  msgInternal,
			wantCalls:  1,
		},
		{
			name:       "admitted",
			path:       "/api/get-flight-details",
			key:        apiKey,
			limiter:    &stubLimiter{verdict: &ratelimiter.Verdict{State: ratelimiter.Allow, Limit: 20, Remaining: 19}},
			wantStatus: http.StatusOK,
			wantCalls:  1,
		},
		{
			name:       "unprotected path",
			path:       "/healthz",
			limiter:    &stubLimiter{verdict: &ratelimiter.Verdict{State: ratelimiter.Deny, Limit: 20}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "path sharing the prefix text only",
			path:       "/apiary",
			limiter:    &stubLimiter{verdict: &ratelimiter.Verdict{State: ratelimiter.Deny, Limit: 20}},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(okHandler(), Config{
				Verifier: newVerifier(t),
				Limiter:  tt.limiter,
				Logger:   zap.NewNop(),
			})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, request(tt.path, tt.key, "10.0.0.1"))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCalls, tt.limiter.calls)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decodeError(t, rec))
			}
		})
	}
}

func TestGate_RateLimitHeaders(t *testing.T) {
	h := New(okHandler(), Config{
		Verifier:          newVerifier(t),
		Limiter:           newLimiter(t, 2),
		AnnotateResponses: true,
		Logger:            zap.NewNop(),
	})

	var want = []struct {
		status    int
		remaining string
	}{
		{http.StatusOK, "1"},
		{http.StatusOK, "0"},
		{http.StatusTooManyRequests, "0"},
	}

	for i, w := range want {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("/api/flight-change-quote", apiKey, "10.0.0.1"))

		assert.Equal(t, w.status, rec.Code, "request %d", i+1)
		assert.Equal(t, "2", rec.Header().Get(HeaderLimit))
		assert.Equal(t, w.remaining, rec.Header().Get(HeaderRemaining))
	}
}

func TestGate_DegradedVerdictIsForwarded(t *testing.T) {
	limiter := &stubLimiter{verdict: &ratelimiter.Verdict{State: ratelimiter.Allow, Limit: 20, Remaining: 0, Degraded: true}}
	h := New(okHandler(), Config{
		Verifier:          newVerifier(t),
		Limiter:           limiter,
		AnnotateResponses: true,
		Logger:            zap.NewNop(),
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request("/api/get-flight-details", apiKey, "10.0.0.1"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.Equal(t, "20", rec.Header().Get(HeaderLimit))
	assert.Equal(t, "0", rec.Header().Get(HeaderRemaining))
	assert.Equal(t, 1, limiter.calls)
}

func TestGate_AnnotationDisabled(t *testing.T) {
	h := New(okHandler(), Config{
		Verifier: newVerifier(t),
		Limiter:  newLimiter(t, 1),
		Logger:   zap.NewNop(),
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request("/api/flight-change-quote", apiKey, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(HeaderLimit))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, request("/api/flight-change-quote", apiKey, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get(HeaderLimit))
	assert.Equal(t, "0", rec.Header().Get(HeaderRemaining))
}

func TestGate_CredentialsCheckedBeforeRateLimit(t *testing.T) {
	h := New(okHandler(), Config{
		Verifier: newVerifier(t),
		Limiter:  newLimiter(t, 1),
		Logger:   zap.NewNop(),
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request("/api/get-ancillary-offers", apiKey, "10.0.0.1"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, request("/api/get-ancillary-offers", apiKey, "10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, request("/api/get-ancillary-offers", "", "10.0.0.1"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, request("/api/get-ancillary-offers", "wrong", "10.0.0.1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// other clients keep their own quota
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, request("/api/get-ancillary-offers", apiKey, "10.0.0.2"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGate_LogsTransitions(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	h := New(okHandler(), Config{
		Verifier: newVerifier(t),
		Limiter:  &stubLimiter{verdict: &ratelimiter.Verdict{State: ratelimiter.Deny, Limit: 20}},
		Logger:   zap.New(core),
	})

	r := request("/api/confirm-flight-change", apiKey, "198.51.100.4")
	r = r.WithContext(log.WithRequestID(r.Context(), "func-inv-1234"))
	h.ServeHTTP(httptest.NewRecorder(), r)

	h.ServeHTTP(httptest.NewRecorder(), request("/api/confirm-flight-change", "", "198.51.100.4"))

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, "gate.rate_limited", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "198.51.100.4", fields["identity"])
	assert.Equal(t, "/api/confirm-flight-change", fields["path"])
	assert.Equal(t, "func-inv-1234", fields["request_id"])
	assert.Equal(t, int64(20), fields["limit"])

	assert.Equal(t, "gate.auth_missing", entries[1].Message)
}
