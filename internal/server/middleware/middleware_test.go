package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func echoCaller() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(Caller(r.Context())))
	})
}

func TestAuth(t *testing.T) {
	h := Auth("secret", "/api/health")(echoCaller())

	tests := []struct {
		name   string
		path   string
		header map[string]string
		status int
		body   string
	}{
		{"missing token", "/api/markets", nil, http.StatusUnauthorized, ""},
		{"wrong token", "/api/markets", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized, ""},
		{"bearer", "/api/markets", map[string]string{"Authorization": "Bearer secret", CallerHeader: "alice"}, http.StatusOK, "alice"},
		{"api key header", "/api/markets", map[string]string{"X-API-Key": "secret", CallerHeader: " bob "}, http.StatusOK, "bob"},
		{"public path", "/api/health", nil, http.StatusOK, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if tc.status == http.StatusOK && rec.Body.String() != tc.body {
				t.Fatalf("caller = %q, want %q", rec.Body.String(), tc.body)
			}
		})
	}
}

func TestAuthDisabledTrustsCaller(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CallerHeader, "carol")
	rec := httptest.NewRecorder()
	Auth("")(echoCaller()).ServeHTTP(rec, req)
	if rec.Body.String() != "carol" {
		t.Fatalf("caller = %q", rec.Body.String())
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example"})(echoCaller())

	req := httptest.NewRequest(http.MethodOptions, "/api/markets", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, IdempotencyHeader) {
		t.Fatalf("allow headers = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unexpected CORS header for foreign origin")
	}
}

type stubLimiter struct{ allow bool }

func (s stubLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return s.allow, nil
}

func TestRateLimit(t *testing.T) {
	for _, allow := range []bool{true, false} {
		rec := httptest.NewRecorder()
		RateLimit(stubLimiter{allow: allow}, 10, time.Minute, discard)(echoCaller()).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		want := http.StatusOK
		if !allow {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Fatalf("allow=%v: status = %d, want %d", allow, rec.Code, want)
		}
		if !allow && rec.Header().Get("Retry-After") != "60" {
			t.Fatalf("Retry-After = %q", rec.Header().Get("Retry-After"))
		}
	}
}

func TestLoggingSetsRequestID(t *testing.T) {
	var observed atomic.Int32
	obs := observerFunc(func(method string, status int, _ time.Duration) {
		if method == http.MethodGet && status == http.StatusOK {
			observed.Add(1)
		}
	})
	rec := httptest.NewRecorder()
	Logging(discard, obs)(echoCaller()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("missing request id")
	}
	if observed.Load() != 1 {
		t.Fatalf("observed %d requests", observed.Load())
	}
}

type observerFunc func(string, int, time.Duration)

func (f observerFunc) ObserveHTTP(method string, status int, d time.Duration) { f(method, status, d) }

func TestIdempotency(t *testing.T) {
	var calls atomic.Int32
	status := http.StatusCreated
	h := NewIdempotency(10 * time.Minute).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, `{"call":`+string(rune('0'+n))+`}`)
	}))

	do := func(key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/markets/m1/wagers", strings.NewReader(body))
		if key != "" {
			req.Header.Set(IdempotencyHeader, key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := do("k1", `{"amount":"10"}`)
	replay := do("k1", `{"amount":"10"}`)
	if calls.Load() != 1 {
		t.Fatalf("handler ran %d times, want 1", calls.Load())
	}
	if replay.Code != http.StatusCreated || replay.Body.String() != first.Body.String() {
		t.Fatalf("replay = %d %q, want %d %q", replay.Code, replay.Body.String(), first.Code, first.Body.String())
	}
	if replay.Header().Get(ReplayHeader) != "true" {
		t.Fatal("replay not marked")
	}

	if rec := do("k1", `{"amount":"11"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("reused key with new body: status %d", rec.Code)
	}

	do("", `{"amount":"10"}`)
	do("", `{"amount":"10"}`)
	if calls.Load() != 3 {
		t.Fatalf("requests without a key ran %d times, want 3", calls.Load())
	}

	status = http.StatusInternalServerError
	do("k2", `{}`)
	do("k2", `{}`)
	if calls.Load() != 5 {
		t.Fatalf("server errors were replayed: %d calls", calls.Load())
	}
}

func TestIdempotencyRetriesTransientFailures(t *testing.T) {
	for _, transient := range []int{http.StatusConflict, http.StatusTooManyRequests} {
		t.Run(http.StatusText(transient), func(t *testing.T) {
			var calls atomic.Int32
			h := NewIdempotency(10 * time.Minute).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					w.WriteHeader(transient)
					return
				}
				w.WriteHeader(http.StatusCreated)
			}))

			do := func() *httptest.ResponseRecorder {
				req := httptest.NewRequest(http.MethodPost, "/api/markets/m1/claim", strings.NewReader(`{}`))
				req.Header.Set(IdempotencyHeader, "retry-1")
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, req)
				return rec
			}

			if rec := do(); rec.Code != transient {
				t.Fatalf("first status = %d, want %d", rec.Code, transient)
			}
			rec := do()
			if rec.Code != http.StatusCreated || rec.Header().Get(ReplayHeader) != "" {
				t.Fatalf("retry status = %d replay=%q, want a fresh 201", rec.Code, rec.Header().Get(ReplayHeader))
			}
			if rec := do(); rec.Header().Get(ReplayHeader) != "true" || calls.Load() != 2 {
				t.Fatalf("success not remembered: replay=%q calls=%d", rec.Header().Get(ReplayHeader), calls.Load())
			}
		})
	}
}

func TestIdempotencyExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := NewIdempotency(time.Minute)
	d.now = func() time.Time { return now }
	h := d.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := func() {
		r := httptest.NewRequest(http.MethodPost, "/x", nil)
		r.Header.Set(IdempotencyHeader, "k")
		h.ServeHTTP(httptest.NewRecorder(), r)
	}
	req()
	if d.Len() != 1 {
		t.Fatalf("Len = %d", d.Len())
	}
	now = now.Add(2 * time.Minute)
	req()
	if d.Len() != 1 {
		t.Fatalf("expired entry not swept: Len = %d", d.Len())
	}
}
