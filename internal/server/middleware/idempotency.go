package middleware

import (
	"bytes"
	"crypto/sha256"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	// IdempotencyHeader names the client-chosen key of a retryable request.
	IdempotencyHeader = "Idempotency-Key"
	// ReplayHeader is set on responses served from the idempotency cache.
	ReplayHeader = "Idempotent-Replay"

	maxIdempotentBody = 1 << 20
)

type idemEntry struct {
	seen        time.Time
	fingerprint [32]byte
	done        bool
	status      int
	contentType string
	body        []byte
}

// Idempotency remembers the response to every mutating request carrying an
// Idempotency-Key for ttl and replays it to retries instead of executing
// the handler again. Keys are scoped to the caller, method and path. A key
// reused with a different body is rejected; a retry that arrives while the
// first request is still running gets 409. Responses a retry may change
// (conflicts, throttling and server errors) are not remembered. It is safe
// for concurrent use.
type Idempotency struct {
	ttl       time.Duration
	now       func() time.Time
	mu        sync.Mutex
	seen      map[string]*idemEntry
	lastSweep time.Time
}

// NewIdempotency creates an Idempotency cache with the given ttl.
func NewIdempotency(ttl time.Duration) *Idempotency {
	return &Idempotency{
		ttl:  ttl,
		now:  time.Now,
		seen: make(map[string]*idemEntry),
	}
}

// Middleware returns the http middleware backed by this cache.
func (d *Idempotency) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyHeader)
		if key == "" || (r.Method != http.MethodPost && r.Method != http.MethodPut) {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody+1))
		if err != nil || len(body) > maxIdempotentBody {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		scoped := Caller(r.Context()) + "\x00" + r.Method + "\x00" + r.URL.Path + "\x00" + key
		fp := sha256.Sum256(body)

		entry, fresh := d.reserve(scoped, fp)
		if !fresh {
			switch {
			case entry.fingerprint != fp:
				writeJSONError(w, http.StatusUnprocessableEntity, "idempotency key reused with a different request")
			case !entry.done:
				writeJSONError(w, http.StatusConflict, "request with this idempotency key is in progress")
			default:
				if entry.contentType != "" {
					w.Header().Set("Content-Type", entry.contentType)
				}
				w.Header().Set(ReplayHeader, "true")
				w.WriteHeader(entry.status)
				w.Write(entry.body)
			}
			return
		}

		rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		d.finish(scoped, rec)
	})
}

// Len returns the number of remembered keys.
func (d *Idempotency) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *Idempotency) reserve(key string, fp [32]byte) (idemEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if now.Sub(d.lastSweep) >= d.ttl/2 {
		d.sweepLocked(now)
	}
	if e, ok := d.seen[key]; ok && now.Sub(e.seen) < d.ttl {
		return *e, false
	}
	d.seen[key] = &idemEntry{seen: now, fingerprint: fp}
	return idemEntry{}, true
}

func (d *Idempotency) finish(key string, rec *recordingWriter) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if retryable(rec.status) {
		delete(d.seen, key)
		return
	}
	e, ok := d.seen[key]
	if !ok {
		return
	}
	e.done = true
	e.status = rec.status
	e.contentType = rec.Header().Get("Content-Type")
	e.body = rec.buf.Bytes()
}

// retryable reports whether a response reflects transient state, such as a
// held market lock or a version conflict, rather than the request itself.
func retryable(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return true
	}
	return status >= http.StatusInternalServerError
}

func (d *Idempotency) sweepLocked(now time.Time) {
	for k, e := range d.seen {
		if now.Sub(e.seen) >= d.ttl {
			delete(d.seen, k)
		}
	}
	d.lastSweep = now
}

// recordingWriter tees the response into a buffer.
type recordingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	buf         bytes.Buffer
}

func (rw *recordingWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	rw.buf.Write(b)
	return rw.ResponseWriter.Write(b)
}
