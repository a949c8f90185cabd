package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"diary/internal/auth"
	"diary/internal/logger"
	"diary/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionAddsSessionToContext(t *testing.T) {
	m := auth.NewManager(auth.NewCookieCodec("secret", time.Hour), auth.NewMemoryStore(time.Hour))

	stored := auth.NewSession()
	stored.Login()
	w := httptest.NewRecorder()
	require.NoError(t, m.Save(context.Background(), w, stored))

	var seen *auth.Session
	h := Session(m, logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.SessionFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(w.Result().Cookies()[0])
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, seen)
	assert.Equal(t, stored.ID, seen.ID)
	assert.True(t, seen.Authenticated)
}

func TestRequireAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// disabled gate lets anonymous requests through
	w := httptest.NewRecorder()
	RequireAuth(false)(ok).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/add_entry/2024-01-01", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	RequireAuth(true)(ok).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/add_entry/2024-01-01", nil))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	s := auth.NewSession()
	s.Login()
	req := httptest.NewRequest(http.MethodPost, "/add_entry/2024-01-01", nil)
	req = req.WithContext(auth.WithSession(req.Context(), s))
	w = httptest.NewRecorder()
	RequireAuth(true)(ok).ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(0, 2)
	assert.True(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("5.6.7.8"))
}

func TestIPRateLimiterCleanup(t *testing.T) {
	l := NewIPRateLimiter(1, 1)
	now := time.Now()
	l.now = func() time.Time { return now }
	l.Allow("1.2.3.4")

	now = now.Add(limiterTTL + time.Second)
	l.Cleanup()
	assert.Empty(t, l.entries)
}

func TestLimitPOSTOnlyLimitsPost(t *testing.T) {
	l := NewIPRateLimiter(0, 1)
	h := l.LimitPOST(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	blocked := metrics.RateLimitBlocked.WithLabelValues("/login")
	before := testutil.ToFloat64(blocked)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(blocked))
}

func TestLoggingAndMetrics(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(Logging(logger.NewWriter(&buf, logger.DEBUG)))
	r.Use(Metrics)
	r.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	counter := metrics.HTTPRequestsTotal.WithLabelValues("/things/{id}", http.MethodGet, "202")
	before := testutil.ToFloat64(counter)

	for _, path := range []string{"/things/7", "/things/8"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusAccepted, w.Code)
	}

	assert.Contains(t, buf.String(), "path=/things/7")
	assert.Contains(t, buf.String(), "status=202")
	assert.Equal(t, before+2, testutil.ToFloat64(counter))
	assert.Zero(t, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("/things/7", http.MethodGet, "202")))
}
