package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Header names carried by signed custody requests.
const (
	HeaderKey       = "X-WB-KEY"
	HeaderTimestamp = "X-WB-TIMESTAMP"
	HeaderSignature = "X-WB-SIGNATURE"
)

// ErrStaleRequest is returned when a signed request's timestamp is outside
// the accepted skew.
var ErrStaleRequest = errors.New("crypto/hmac: stale request")

// ErrSignatureMismatch is returned when the recomputed signature differs.
var ErrSignatureMismatch = errors.New("crypto/hmac: signature mismatch")

// HMACAuth signs requests as HMAC-SHA256(secret, timestamp+method+path+body)
// encoded as base64.
type HMACAuth struct {
	Key    string
	Secret string
}

// Headers returns the signing headers for a request made now.
func (h *HMACAuth) Headers(method, path, body string) map[string]string {
	return h.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is Headers with a caller-supplied Unix timestamp.
func (h *HMACAuth) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderKey:       h.Key,
		HeaderTimestamp: ts,
		HeaderSignature: hmacSHA256Base64([]byte(h.Secret), ts+method+path+body),
	}
}

// Verify checks a signature produced by HeadersAt. maxSkew bounds how far
// the request timestamp may be from now.
func (h *HMACAuth) Verify(method, path, body, timestamp, signature string, now time.Time, maxSkew time.Duration) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("crypto/hmac: bad timestamp: %w", err)
	}
	if d := now.Sub(time.Unix(ts, 0)); d > maxSkew || d < -maxSkew {
		return ErrStaleRequest
	}
	want := hmacSHA256Base64([]byte(h.Secret), timestamp+method+path+body)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}

func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
