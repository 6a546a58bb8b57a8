package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/wagerbook/internal/cache/memory"
	"github.com/alanyoungcy/wagerbook/internal/domain"
)

type frame struct {
	Type     string          `json:"type"`
	MarketID string          `json:"market_id"`
	Channels []string        `json:"channels"`
	Payload  json.RawMessage `json:"payload"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Fatalf("frame type = %d, want text", msgType)
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return f
}

func publish(t *testing.T, bus *memory.Bus, channel string, evt domain.Event) {
	t.Helper()
	data, _ := json.Marshal(evt)
	if err := bus.Publish(context.Background(), channel, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestHubRoutesMarketEvents(t *testing.T) {
	bus := memory.NewBus()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "api"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if f := readFrame(t, conn); f.Type != "hub.status" {
		t.Fatalf("first frame = %+v, want hub.status", f)
	}

	// Default subscription covers every market.
	publish(t, bus, domain.ChannelMarkets, domain.Event{Type: domain.EventWagerPlaced, MarketID: "m2"})
	if f := readFrame(t, conn); f.MarketID != "m2" {
		t.Fatalf("frame = %+v, want market m2", f)
	}

	sub, _ := json.Marshal(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelMarkets}})
	conn.WriteMessage(websocket.TextMessage, sub)
	readFrame(t, conn)
	sub, _ = json.Marshal(subscribeMsg{Action: "subscribe", Channels: []string{domain.MarketChannel("m1")}})
	conn.WriteMessage(websocket.TextMessage, sub)
	if f := readFrame(t, conn); f.Type != "subscriptions" || len(f.Channels) != 2 {
		t.Fatalf("ack = %+v", f)
	}

	publish(t, bus, domain.ChannelMarkets, domain.Event{Type: domain.EventWagerPlaced, MarketID: "m2"})
	publish(t, bus, domain.ChannelMarkets, domain.Event{Type: domain.EventMarketResolved, MarketID: "m1"})
	if f := readFrame(t, conn); f.MarketID != "m1" || f.Type != string(domain.EventMarketResolved) {
		t.Fatalf("frame = %+v, want m1 resolution only", f)
	}
}

func TestIsSubscribed(t *testing.T) {
	c := &client{subs: map[string]bool{"ch:feeds": true, "ch:market:ab*": true}}
	tests := []struct {
		channel string
		want    bool
	}{
		{"ch:feeds", true},
		{"ch:market:abc", true},
		{"ch:market:xyz", false},
	}
	for _, tc := range tests {
		if got := c.isSubscribed(tc.channel); got != tc.want {
			t.Errorf("isSubscribed(%q) = %v, want %v", tc.channel, got, tc.want)
		}
	}
	c.subs[domain.ChannelMarkets] = true
	if !c.isSubscribed("ch:market:xyz") {
		t.Error("ch:markets should cover every market channel")
	}
}
