package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/wagerbook/internal/domain"
)

// FeedService defines what the feed handler needs from the service layer.
type FeedService interface {
	PublishReading(ctx context.Context, reading domain.OracleReading) error
	LatestReading(ctx context.Context, feedID string) (domain.OracleReading, error)
}

// FeedHandler lets oracle relays push signed readings and anyone read the
// latest value of a feed.
type FeedHandler struct {
	feeds  FeedService
	logger *slog.Logger
}

// NewFeedHandler creates a FeedHandler.
func NewFeedHandler(feeds FeedService, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{feeds: feeds, logger: logger}
}

// PublishReading stores a signed reading after verifying its signature.
// POST /api/feeds/{feedID}/readings
func (h *FeedHandler) PublishReading(w http.ResponseWriter, r *http.Request) {
	feedID := pathParam(r, "feedID")
	var req readingRequest
	if empty, err := decodeJSON(r, &req); err != nil || empty {
		writeError(w, http.StatusBadRequest, "signed reading required")
		return
	}
	if req.FeedID == "" {
		req.FeedID = feedID
	}
	if req.FeedID != feedID {
		writeError(w, http.StatusBadRequest, "feed_id does not match path")
		return
	}
	reading, err := req.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.feeds.PublishReading(r.Context(), reading); err != nil {
		writeServiceError(w, r, h.logger, "publish reading", err)
		return
	}
	writeJSON(w, http.StatusAccepted, newReadingView(reading))
}

// LatestReading returns the newest reading held for a feed.
// GET /api/feeds/{feedID}
func (h *FeedHandler) LatestReading(w http.ResponseWriter, r *http.Request) {
	reading, err := h.feeds.LatestReading(r.Context(), pathParam(r, "feedID"))
	if err != nil {
		writeServiceError(w, r, h.logger, "latest reading", err)
		return
	}
	writeJSON(w, http.StatusOK, newReadingView(reading))
}
