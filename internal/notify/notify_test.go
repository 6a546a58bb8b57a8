package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type stubSender struct {
	name  string
	err   error
	calls int
}

func (s *stubSender) Send(context.Context, string, string) error {
	s.calls++
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifierFiltersEvents(t *testing.T) {
	s := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{s}, []string{"market_resolved", " "}, quietLogger())

	if err := n.Notify(context.Background(), "fees_collected", "t", "m"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if s.calls != 0 {
		t.Fatal("filtered event delivered")
	}
	if err := n.Notify(context.Background(), "market_resolved", "t", "m"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := n.NotifyAll(context.Background(), "t", "m"); err != nil {
		t.Fatalf("NotifyAll: %v", err)
	}
	if s.calls != 2 {
		t.Fatalf("calls = %d, want 2", s.calls)
	}
}

func TestNotifierContinuesPastFailures(t *testing.T) {
	boom := errors.New("boom")
	failing := &stubSender{name: "bad", err: boom}
	ok := &stubSender{name: "good"}
	n := NewNotifier([]Sender{failing, ok}, nil, quietLogger())

	err := n.Notify(context.Background(), "any", "t", "m")
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped boom", err)
	}
	if ok.calls != 1 {
		t.Fatal("second sender skipped after failure")
	}
}

func TestDiscordSender(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewDiscordSender(srv.URL).Send(context.Background(), "Market resolved", "home"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(got.Embeds) != 1 || got.Embeds[0].Title != "Market resolved" || got.Embeds[0].Description != "home" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestTelegramSender(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		if got["chat_id"] != "42" {
			http.Error(w, "bad chat", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.apiBase = srv.URL
	if err := s.Send(context.Background(), "A<B", "x & y"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/bottok/sendMessage" {
		t.Fatalf("path = %s", path)
	}
	if text, _ := got["text"].(string); !strings.Contains(text, "A&lt;B") || !strings.Contains(text, "x &amp; y") {
		t.Fatalf("text not escaped: %q", text)
	}

	s.chatID = "7"
	if err := s.Send(context.Background(), "t", "m"); err == nil {
		t.Fatal("expected status error")
	}
}
