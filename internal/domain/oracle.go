package domain

import (
	"context"
	"time"
)

// OracleReading is one signed observation from an external result feed.
// Value is the feed's raw reported value; the resolver interprets it.
type OracleReading struct {
	FeedID    string
	Value     string
	Timestamp time.Time
	Signer    string
	Signature []byte
}

// FeedSource stores and serves the latest reading per feed.
type FeedSource interface {
	Latest(ctx context.Context, feedID string) (OracleReading, error)
	Publish(ctx context.Context, reading OracleReading) error
}

// ReadingVerifier checks that a reading was produced by a trusted oracle.
type ReadingVerifier interface {
	Verify(reading OracleReading) error
}
