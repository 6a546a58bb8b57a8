package postgres

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/wagerbook/internal/domain"
)

func TestDSN(t *testing.T) {
	got := DSN(ClientConfig{Host: "db", User: "wb", Password: "pw", Database: "wagerbook"})
	want := "postgres://wb:pw@db:5432/wagerbook?sslmode=disable"
	if got != want {
		t.Fatalf("DSN = %q, want %q", got, want)
	}
	if got := DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}); got != "postgres://x" {
		t.Fatalf("explicit DSN not preferred: %q", got)
	}
}

func TestAmountRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, math.MaxInt64 + 1, math.MaxUint64} {
		got, err := parseU64(u64(v))
		if err != nil || got != v {
			t.Fatalf("round trip %d = %d, %v", v, got, err)
		}
	}
	if _, err := parseU64("-1"); err == nil {
		t.Fatal("negative amount parsed")
	}
}

func TestAppendPaging(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args := appendPaging("SELECT 1 FROM positions WHERE market_id = $1", []any{"m"},
		domain.ListOpts{Since: &since, Limit: 10, Offset: 20}, "created_at")

	want := "SELECT 1 FROM positions WHERE market_id = $1 AND created_at >= $2 ORDER BY created_at LIMIT $3 OFFSET $4"
	if query != want {
		t.Fatalf("query = %q", query)
	}
	if len(args) != 4 || args[2] != 10 || args[3] != 20 {
		t.Fatalf("args = %v", args)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("23505 not detected")
	}
	if isUniqueViolation(errors.New("boom")) || isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("false positive")
	}
}
