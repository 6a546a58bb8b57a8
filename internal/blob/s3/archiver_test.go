package s3blob

import (
	"bytes"
	"context"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/wagerbook/internal/domain"
)

// memBlob is an in-memory BlobWriter and BlobReader.
type memBlob struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemBlob() *memBlob {
	return &memBlob{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	m.types[path] = contentType
	return nil
}

func (m *memBlob) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "multipart")
}

func (m *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlob) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (m *memBlob) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

func TestArchiveMarketRoundTrip(t *testing.T) {
	ctx := context.Background()
	resolvedAt := time.Date(2026, 5, 1, 22, 0, 0, 0, time.UTC)
	m := domain.Market{
		ID:               "0xabc",
		Authority:        "authority",
		GameKey:          "GAME_001",
		StartTime:        resolvedAt.Add(-4 * time.Hour),
		ResolutionTime:   resolvedAt.Add(-time.Hour),
		Pools:            [3]uint64{300, 100, math.MaxUint64},
		FeesCollected:    7,
		Resolved:         true,
		Outcome:          domain.OutcomeHome,
		FinalResultValue: 1,
		OracleRef:        "feed",
		VaultRef:         "0xvault",
		Version:          9,
		ResolvedAt:       &resolvedAt,
	}
	positions := []domain.Position{
		{ID: "p1", MarketID: m.ID, User: "alice", Stakes: [3]uint64{30, 0, 0}},
		{ID: "p2", MarketID: m.ID, User: "bob", Stakes: [3]uint64{0, 100, 0}},
	}

	blob := newMemBlob()
	path, err := NewArchiver(blob).ArchiveMarket(ctx, m, positions)
	if err != nil {
		t.Fatalf("ArchiveMarket: %v", err)
	}
	if path != "markets/2026/05/01/0xabc.jsonl" {
		t.Fatalf("path = %s", path)
	}
	if lines := bytes.Count(blob.objects[path], []byte("\n")); lines != 3 {
		t.Fatalf("archive has %d lines, want 3", lines)
	}

	got, gotPositions, err := ReadMarket(ctx, blob, path)
	if err != nil {
		t.Fatalf("ReadMarket: %v", err)
	}
	if got.Pools != m.Pools || got.Outcome != domain.OutcomeHome || !got.Resolved || !got.Archived {
		t.Fatalf("market = %+v", got)
	}
	if len(gotPositions) != 2 || gotPositions[1].Stakes[domain.SideAway] != 100 {
		t.Fatalf("positions = %+v", gotPositions)
	}
}

func TestReadMarketMissing(t *testing.T) {
	blob := newMemBlob()
	blob.objects["markets/x.jsonl"] = []byte(`{"kind":"position","id":"p","stakes":["1","0","0"],"claimed":"0"}` + "\n")
	if _, _, err := ReadMarket(context.Background(), blob, "markets/x.jsonl"); err == nil {
		t.Fatal("archive without a market record accepted")
	}
}

func TestArchiveAudit(t *testing.T) {
	blob := newMemBlob()
	at := time.Date(2026, 5, 2, 3, 4, 5, 0, time.UTC)
	path, err := NewArchiver(blob).ArchiveAudit(context.Background(), []domain.AuditEntry{
		{ID: 1, Event: "wager.placed", Detail: map[string]any{"amount": 10}},
		{ID: 2, Event: "market.resolved"},
	}, at)
	if err != nil {
		t.Fatalf("ArchiveAudit: %v", err)
	}
	if !strings.HasPrefix(path, "audit/2026/05/02/") {
		t.Fatalf("path = %s", path)
	}
	if blob.types[path] != "application/x-ndjson" {
		t.Fatalf("content type = %s", blob.types[path])
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		ssl  bool
		want string
	}{
		{"localhost:9000", false, "http://localhost:9000"},
		{"s3.example.com", true, "https://s3.example.com"},
		{"https://minio.local", false, "https://minio.local"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.ssl); got != tt.want {
			t.Errorf("normaliseEndpoint(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
