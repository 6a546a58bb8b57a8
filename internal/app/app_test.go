package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/alanyoungcy/wagerbook/internal/config"
	"github.com/alanyoungcy/wagerbook/internal/crypto"
	"github.com/alanyoungcy/wagerbook/internal/domain"
	"github.com/alanyoungcy/wagerbook/internal/oracle"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func memoryConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Store.Backend = "memory"
	cfg.Custody.Backend = "memory"
	cfg.Redis.Enabled = false
	cfg.Oracle.RequireSignature = false
	return &cfg
}

func TestWireMemory(t *testing.T) {
	cfg := memoryConfig()
	cfg.Oracle.RequireSignature = true
	cfg.Oracle.TrustedSigners = []string{"0x71C7656EC7ab88b098defB751B7401B5f6d8976F"}

	deps, cleanup, err := Wire(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if deps.Markets == nil || deps.Positions == nil || deps.Audit == nil || deps.Custody == nil {
		t.Fatal("stores not wired")
	}
	if deps.Funder == nil {
		t.Error("memory custody should accept deposits")
	}
	if deps.Locks == nil || deps.Bus == nil || deps.Cache == nil || deps.Feeds == nil || deps.Limiter == nil {
		t.Error("in-process fallbacks not wired")
	}
	if deps.Archiver != nil || deps.BlobReader != nil {
		t.Error("s3 is disabled, archiver should be nil")
	}
	if deps.Verifier == nil {
		t.Error("verifier should be wired when signatures are required")
	}
	if deps.Metrics == nil {
		t.Error("metrics enabled by default")
	}
	if len(deps.Checks) != 0 {
		t.Errorf("memory backends register no health checks, got %d", len(deps.Checks))
	}
}

func TestFund(t *testing.T) {
	a := New(memoryConfig(), discardLogger())
	defer a.Close()
	ctx := context.Background()

	acct, err := a.Fund(ctx, "alice", "", 2_500)
	if err != nil {
		t.Fatalf("Fund: %v", err)
	}
	if acct.Owner != "alice" || acct.Balance != 2_500 || acct.Asset != "USDC" {
		t.Fatalf("account = %+v", acct)
	}

	if _, err := a.Fund(ctx, "alice", "", 0); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("zero deposit err = %v, want ErrInvalidAmount", err)
	}
}

func TestFundRejectsExternalCustody(t *testing.T) {
	cfg := memoryConfig()
	cfg.Custody.Backend = "http"
	cfg.Custody.Endpoint = "http://127.0.0.1:1"
	a := New(cfg, discardLogger())
	defer a.Close()

	if _, err := a.Fund(context.Background(), "alice", "alice", 10); err == nil {
		t.Fatal("expected error for http custody")
	}
}

func TestSignReadingVerifies(t *testing.T) {
	signer, err := crypto.GenerateSigner(1)
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}
	cfg := memoryConfig()
	cfg.Keys.OraclePrivateKey = signer.PrivateKeyHex()
	a := New(cfg, discardLogger())

	at := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	reading, err := a.SignReading("match-42", "1", at)
	if err != nil {
		t.Fatalf("SignReading: %v", err)
	}
	if reading.Signer != signer.Address().Hex() {
		t.Fatalf("Signer = %s, want %s", reading.Signer, signer.Address().Hex())
	}
	v := oracle.NewVerifier(1, []string{signer.Address().Hex()})
	if err := v.Verify(reading); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestSealOracleKeyRoundTrip(t *testing.T) {
	cfg := memoryConfig()
	cfg.Keys.KeyPassword = "hunter2"
	path := filepath.Join(t.TempDir(), "oracle.key")

	addr, err := New(cfg, discardLogger()).SealOracleKey(path)
	if err != nil {
		t.Fatalf("SealOracleKey: %v", err)
	}

	cfg.Keys.OracleKeyFile = path
	reading, err := New(cfg, discardLogger()).SignReading("match-7", "2", time.Time{})
	if err != nil {
		t.Fatalf("SignReading: %v", err)
	}
	if reading.Signer != addr {
		t.Fatalf("Signer = %s, want sealed address %s", reading.Signer, addr)
	}
}

func TestSignReadingWithoutKey(t *testing.T) {
	if _, err := New(memoryConfig(), discardLogger()).SignReading("f", "1", time.Time{}); err == nil {
		t.Fatal("expected error without a configured key")
	}
}

func TestInspectArchiveRequiresS3(t *testing.T) {
	a := New(memoryConfig(), discardLogger())
	defer a.Close()
	if _, _, err := a.InspectArchive(context.Background(), "markets/x.jsonl"); err == nil {
		t.Fatal("expected error with s3 disabled")
	}
}
