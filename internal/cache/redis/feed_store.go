package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/wagerbook/internal/domain"
)

// FeedStore implements domain.FeedSource with one hash per feed holding the
// newest signed reading. Readings carry their signature so any replica can
// re-verify them before resolving.
type FeedStore struct {
	rdb *redis.Client
}

// NewFeedStore creates a FeedStore backed by the given Client.
func NewFeedStore(c *Client) *FeedStore {
	return &FeedStore{rdb: c.Underlying()}
}

func feedKey(feedID string) string { return "wb:feed:" + feedID }

type readingJSON struct {
	FeedID    string `json:"feed_id"`
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"`
	Signer    string `json:"signer,omitempty"`
	Signature []byte `json:"signature,omitempty"`
}

// Latest returns the newest reading for feedID or domain.ErrNotFound.
func (fs *FeedStore) Latest(ctx context.Context, feedID string) (domain.OracleReading, error) {
	data, err := fs.rdb.HGet(ctx, feedKey(feedID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.OracleReading{}, domain.ErrNotFound
		}
		return domain.OracleReading{}, fmt.Errorf("redis: get feed %s: %w", feedID, err)
	}
	var rj readingJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return domain.OracleReading{}, fmt.Errorf("redis: unmarshal feed %s: %w", feedID, err)
	}
	return domain.OracleReading{
		FeedID:    rj.FeedID,
		Value:     rj.Value,
		Timestamp: time.Unix(rj.Timestamp, 0).UTC(),
		Signer:    rj.Signer,
		Signature: rj.Signature,
	}, nil
}

// Publish stores r unless a reading with a later timestamp is held.
func (fs *FeedStore) Publish(ctx context.Context, r domain.OracleReading) error {
	ts := r.Timestamp.Unix()
	data, err := json.Marshal(readingJSON{
		FeedID:    r.FeedID,
		Value:     r.Value,
		Timestamp: ts,
		Signer:    r.Signer,
		Signature: r.Signature,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal reading %s: %w", r.FeedID, err)
	}
	if err := setIfNewer.Run(ctx, fs.rdb, []string{feedKey(r.FeedID)},
		strconv.FormatInt(ts, 10), data, 0).Err(); err != nil {
		return fmt.Errorf("redis: publish reading %s: %w", r.FeedID, err)
	}
	return nil
}

var _ domain.FeedSource = (*FeedStore)(nil)
