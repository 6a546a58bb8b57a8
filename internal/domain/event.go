package domain

import "time"

// EventType names a settlement event published on the bus.
type EventType string

const (
	EventMarketCreated   EventType = "market.created"
	EventWagerPlaced     EventType = "wager.placed"
	EventMarketResolved  EventType = "market.resolved"
	EventWinningsClaimed EventType = "winnings.claimed"
	EventFeesCollected   EventType = "fees.collected"
	EventOracleUpdated   EventType = "oracle.updated"
	EventFeedReading     EventType = "feed.reading"
)

// Bus channels and streams.
const (
	ChannelMarkets   = "ch:markets"
	ChannelFeeds     = "ch:feeds"
	StreamSettlement = "stream:settlement"
)

// MarketChannel is the per-market pub/sub channel.
func MarketChannel(marketID string) string { return "ch:market:" + marketID }

// Event is the envelope published for every committed state change.
type Event struct {
	Type     EventType      `json:"type"`
	MarketID string         `json:"market_id"`
	User     string         `json:"user,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	At       time.Time      `json:"at"`
}
