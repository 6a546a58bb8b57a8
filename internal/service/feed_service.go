package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/wagerbook/internal/domain"
)

// maxFutureSkew bounds how far ahead of the local clock a reading may be
// stamped.
const maxFutureSkew = time.Minute

// FeedService accepts signed oracle readings and fans them out: the reading
// is stored in the feed source and announced on the feeds channel.
type FeedService struct {
	feeds    domain.FeedSource
	verifier domain.ReadingVerifier
	bus      domain.SignalBus
	clock    domain.Clock
	logger   *slog.Logger
}

// NewFeedService creates a FeedService. verifier and bus may be nil.
func NewFeedService(
	feeds domain.FeedSource,
	verifier domain.ReadingVerifier,
	bus domain.SignalBus,
	clock domain.Clock,
	logger *slog.Logger,
) *FeedService {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &FeedService{
		feeds:    feeds,
		verifier: verifier,
		bus:      bus,
		clock:    clock,
		logger:   logger,
	}
}

// PublishReading verifies reading and stores it as the latest value of its
// feed. Readings older than the one already held are accepted but do not
// replace it.
func (s *FeedService) PublishReading(ctx context.Context, reading domain.OracleReading) error {
	reading.FeedID = strings.TrimSpace(reading.FeedID)
	if reading.FeedID == "" || reading.Timestamp.IsZero() {
		return fmt.Errorf("feed_service: publish: %w", domain.ErrInvalidFeed)
	}
	if s.clock.Now().Before(reading.Timestamp.Add(-maxFutureSkew)) {
		return fmt.Errorf("feed_service: publish %s: reading from the future: %w", reading.FeedID, domain.ErrInvalidFeed)
	}
	if s.verifier != nil {
		if err := s.verifier.Verify(reading); err != nil {
			return fmt.Errorf("feed_service: verify %s: %w", reading.FeedID, err)
		}
	}
	if err := s.feeds.Publish(ctx, reading); err != nil {
		return fmt.Errorf("feed_service: publish %s: %w", reading.FeedID, err)
	}

	if s.bus != nil {
		evt, _ := json.Marshal(domain.Event{
			Type: domain.EventFeedReading,
			Data: map[string]any{
				"feed_id":   reading.FeedID,
				"value":     reading.Value,
				"timestamp": reading.Timestamp.Unix(),
				"signer":    reading.Signer,
			},
			At: s.clock.Now(),
		})
		if pubErr := s.bus.Publish(ctx, domain.ChannelFeeds, evt); pubErr != nil {
			s.logger.WarnContext(ctx, "feed_service: publish reading event failed",
				slog.String("feed_id", reading.FeedID),
				slog.String("error", pubErr.Error()),
			)
		}
	}

	s.logger.DebugContext(ctx, "feed_service: reading stored",
		slog.String("feed_id", reading.FeedID),
		slog.String("value", reading.Value),
		slog.Time("timestamp", reading.Timestamp),
	)
	return nil
}

// LatestReading returns the newest reading held for feedID.
func (s *FeedService) LatestReading(ctx context.Context, feedID string) (domain.OracleReading, error) {
	r, err := s.feeds.Latest(ctx, feedID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.OracleReading{}, err
		}
		return domain.OracleReading{}, fmt.Errorf("feed_service: latest %s: %w", feedID, err)
	}
	return r, nil
}
