package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/wagerbook/internal/domain"
)

// multipartThreshold switches audit exports to multipart uploads.
const multipartThreshold = 8 * 1024 * 1024

// MarketArchiver implements domain.Archiver by writing JSONL objects through
// a BlobWriter. A market object holds one "market" line followed by one
// "position" line per position.
type MarketArchiver struct {
	writer domain.BlobWriter
}

// NewArchiver creates a MarketArchiver.
func NewArchiver(writer domain.BlobWriter) *MarketArchiver {
	return &MarketArchiver{writer: writer}
}

// Amounts are strings so the full uint64 range survives JSON consumers.
type marketRecord struct {
	Kind             string     `json:"kind"`
	ID               string     `json:"id"`
	Authority        string     `json:"authority"`
	Question         string     `json:"question"`
	HomeTeam         string     `json:"home_team"`
	AwayTeam         string     `json:"away_team"`
	GameKey          string     `json:"game_key"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          time.Time  `json:"end_time"`
	ResolutionTime   time.Time  `json:"resolution_time"`
	Pools            [3]string  `json:"pools"`
	FeesCollected    string     `json:"fees_collected"`
	FeesWithdrawn    string     `json:"fees_withdrawn,omitempty"`
	Outcome          string     `json:"outcome"`
	FinalResultValue int64      `json:"final_result_value"`
	OracleRef        string     `json:"oracle_ref"`
	VaultRef         string     `json:"vault_ref"`
	Asset            string     `json:"asset"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"created_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

type positionRecord struct {
	Kind      string     `json:"kind"`
	ID        string     `json:"id"`
	MarketID  string     `json:"market_id"`
	User      string     `json:"user"`
	Stakes    [3]string  `json:"stakes"`
	Claimed   string     `json:"claimed"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type auditRecord struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func amounts(v [3]uint64) [3]string {
	return [3]string{u64(v[0]), u64(v[1]), u64(v[2])}
}

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

// MarketPath is the object key of a market archive, partitioned by the day
// the market resolved.
//
//	markets/2026/05/01/0xabc....jsonl
func MarketPath(m domain.Market) string {
	at := m.UpdatedAt
	if m.ResolvedAt != nil {
		at = *m.ResolvedAt
	}
	return fmt.Sprintf("markets/%s/%s.jsonl", at.UTC().Format("2006/01/02"), m.ID)
}

// AuditPath is the object key of an audit export taken at at.
func AuditPath(at time.Time) string {
	return fmt.Sprintf("audit/%s/%s.jsonl", at.UTC().Format("2006/01/02"), at.UTC().Format("150405.000000000"))
}

// ArchiveMarket uploads m and its positions and returns the object key.
func (a *MarketArchiver) ArchiveMarket(ctx context.Context, m domain.Market, positions []domain.Position) (string, error) {
	records := make([]any, 0, len(positions)+1)
	records = append(records, marketRecord{
		Kind:             "market",
		ID:               m.ID,
		Authority:        m.Authority,
		Question:         m.Question,
		HomeTeam:         m.HomeTeam,
		AwayTeam:         m.AwayTeam,
		GameKey:          m.GameKey,
		StartTime:        m.StartTime,
		EndTime:          m.EndTime,
		ResolutionTime:   m.ResolutionTime,
		Pools:            amounts(m.Pools),
		FeesCollected:    u64(m.FeesCollected),
		FeesWithdrawn:    u64(m.FeesWithdrawn),
		Outcome:          m.Outcome.String(),
		FinalResultValue: m.FinalResultValue,
		OracleRef:        m.OracleRef,
		VaultRef:         m.VaultRef,
		Asset:            m.Asset,
		Version:          m.Version,
		CreatedAt:        m.CreatedAt,
		ResolvedAt:       m.ResolvedAt,
	})
	for _, p := range positions {
		records = append(records, positionRecord{
			Kind:      "position",
			ID:        p.ID,
			MarketID:  p.MarketID,
			User:      p.User,
			Stakes:    amounts(p.Stakes),
			Claimed:   u64(p.Claimed),
			ClaimedAt: p.ClaimedAt,
			CreatedAt: p.CreatedAt,
		})
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive market %s: %w", m.ID, err)
	}
	path := MarketPath(m)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: archive market %s: %w", m.ID, err)
	}
	return path, nil
}

// ArchiveAudit uploads entries as one JSONL object keyed by at.
func (a *MarketArchiver) ArchiveAudit(ctx context.Context, entries []domain.AuditEntry, at time.Time) (string, error) {
	records := make([]auditRecord, len(entries))
	for i, e := range entries {
		records[i] = auditRecord{ID: e.ID, Event: e.Event, Detail: e.Detail, CreatedAt: e.CreatedAt}
	}
	buf, err := marshalJSONL(records)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive audit: %w", err)
	}

	path := AuditPath(at)
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive audit: %w", err)
	}
	return path, nil
}

// ReadMarket loads a market archive written by ArchiveMarket.
func ReadMarket(ctx context.Context, r domain.BlobReader, path string) (domain.Market, []domain.Position, error) {
	body, err := r.Get(ctx, path)
	if err != nil {
		return domain.Market{}, nil, err
	}
	defer body.Close()

	var (
		m         domain.Market
		seen      bool
		positions []domain.Position
	)
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		var head struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(line, &head); err != nil {
			return domain.Market{}, nil, fmt.Errorf("s3blob: read %s: %w", path, err)
		}
		switch head.Kind {
		case "market":
			var rec marketRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				return domain.Market{}, nil, fmt.Errorf("s3blob: read %s: %w", path, err)
			}
			if m, err = rec.market(); err != nil {
				return domain.Market{}, nil, fmt.Errorf("s3blob: read %s: %w", path, err)
			}
			seen = true
		case "position":
			var rec positionRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				return domain.Market{}, nil, fmt.Errorf("s3blob: read %s: %w", path, err)
			}
			p, err := rec.position()
			if err != nil {
				return domain.Market{}, nil, fmt.Errorf("s3blob: read %s: %w", path, err)
			}
			positions = append(positions, p)
		}
	}
	if err := sc.Err(); err != nil {
		return domain.Market{}, nil, fmt.Errorf("s3blob: read %s: %w", path, err)
	}
	if !seen {
		return domain.Market{}, nil, fmt.Errorf("s3blob: read %s: no market record: %w", path, domain.ErrNotFound)
	}
	return m, positions, nil
}

func parseAmounts(s [3]string) ([3]uint64, error) {
	var out [3]uint64
	for i, v := range s {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return out, err
		}
		out[i] = n
	}
	return out, nil
}

func (r marketRecord) market() (domain.Market, error) {
	pools, err := parseAmounts(r.Pools)
	if err != nil {
		return domain.Market{}, err
	}
	fees, err := strconv.ParseUint(r.FeesCollected, 10, 64)
	if err != nil {
		return domain.Market{}, err
	}
	var withdrawn uint64
	if r.FeesWithdrawn != "" {
		if withdrawn, err = strconv.ParseUint(r.FeesWithdrawn, 10, 64); err != nil {
			return domain.Market{}, err
		}
	}
	outcome, err := domain.ParseOutcome(r.Outcome)
	if err != nil {
		return domain.Market{}, err
	}
	return domain.Market{
		ID:               r.ID,
		Authority:        r.Authority,
		Question:         r.Question,
		HomeTeam:         r.HomeTeam,
		AwayTeam:         r.AwayTeam,
		GameKey:          r.GameKey,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		ResolutionTime:   r.ResolutionTime,
		Pools:            pools,
		FeesCollected:    fees,
		FeesWithdrawn:    withdrawn,
		Resolved:         outcome != domain.OutcomePending,
		Outcome:          outcome,
		FinalResultValue: r.FinalResultValue,
		OracleRef:        r.OracleRef,
		VaultRef:         r.VaultRef,
		Asset:            r.Asset,
		Version:          r.Version,
		Archived:         true,
		CreatedAt:        r.CreatedAt,
		ResolvedAt:       r.ResolvedAt,
	}, nil
}

func (r positionRecord) position() (domain.Position, error) {
	stakes, err := parseAmounts(r.Stakes)
	if err != nil {
		return domain.Position{}, err
	}
	claimed, err := strconv.ParseUint(r.Claimed, 10, 64)
	if err != nil {
		return domain.Position{}, err
	}
	return domain.Position{
		ID:        r.ID,
		MarketID:  r.MarketID,
		User:      r.User,
		Stakes:    stakes,
		Claimed:   claimed,
		ClaimedAt: r.ClaimedAt,
		CreatedAt: r.CreatedAt,
	}, nil
}

// marshalJSONL encodes each record as one compact JSON line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*MarketArchiver)(nil)
