package crypto

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDerivedIDsAreStable(t *testing.T) {
	a := MarketID("GAME_CLAIM_001")
	b := MarketID("GAME_CLAIM_001")
	if a != b {
		t.Fatalf("MarketID not deterministic: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "0x") || len(a) != 66 {
		t.Fatalf("unexpected id format %q", a)
	}
	if a == MarketID("GAME_CLAIM_002") {
		t.Fatal("different game keys produced the same id")
	}
	if PositionID(a, "alice") == PositionID(a, "bob") {
		t.Fatal("different users produced the same position id")
	}
	if VaultID(a) == a {
		t.Fatal("vault id collides with market id")
	}
}

func TestTransferID(t *testing.T) {
	m := MarketID("GAME_CLAIM_001")
	if TransferID("claim", m, "alice") != TransferID("claim", m, "alice") {
		t.Fatal("TransferID not deterministic")
	}
	if TransferID("claim", m, "alice") == TransferID("fees", m, "alice") {
		t.Fatal("kind not part of the id")
	}
	if TransferID("wager", m, "ab", "c") == TransferID("wager", m, "a", "bc") {
		t.Fatal("part boundaries are ambiguous")
	}
}

func TestSignAndRecoverReading(t *testing.T) {
	s, err := GenerateSigner(1)
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}
	sig, err := s.SignReading("feed-1", "1", 1700000000)
	if err != nil {
		t.Fatalf("SignReading: %v", err)
	}

	got, err := RecoverReadingSigner(1, "feed-1", "1", 1700000000, sig)
	if err != nil {
		t.Fatalf("RecoverReadingSigner: %v", err)
	}
	if got != s.Address() {
		t.Fatalf("recovered %s, want %s", got.Hex(), s.Address().Hex())
	}

	tampered, err := RecoverReadingSigner(1, "feed-1", "2", 1700000000, sig)
	if err == nil && tampered == s.Address() {
		t.Fatal("tampered value recovered the original signer")
	}

	otherChain, err := RecoverReadingSigner(5, "feed-1", "1", 1700000000, sig)
	if err == nil && otherChain == s.Address() {
		t.Fatal("signature replayed across chain ids")
	}

	if _, err := RecoverReadingSigner(1, "feed-1", "1", 1700000000, sig[:10]); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("short signature: got %v, want ErrBadSignature", err)
	}
}

func TestSealOpenKey(t *testing.T) {
	s, err := GenerateSigner(1)
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}
	sealed, err := SealKey(s.PrivateKeyHex(), "hunter2", s.Address().Hex())
	if err != nil {
		t.Fatalf("SealKey: %v", err)
	}
	key, err := OpenKey(sealed, "hunter2")
	if err != nil {
		t.Fatalf("OpenKey: %v", err)
	}
	if key != s.PrivateKeyHex() {
		t.Fatal("round-tripped key differs")
	}
	if _, err := OpenKey(sealed, "wrong"); err == nil {
		t.Fatal("expected error for wrong password")
	}
}

func TestHMACVerify(t *testing.T) {
	auth := &HMACAuth{Key: "k", Secret: "s3cret"}
	now := time.Unix(1700000000, 0)
	h := auth.HeadersAt("POST", "/v1/transfers", `{"amount":1}`, now.Unix())

	if err := auth.Verify("POST", "/v1/transfers", `{"amount":1}`, h[HeaderTimestamp], h[HeaderSignature], now, time.Minute); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := auth.Verify("POST", "/v1/transfers", `{"amount":2}`, h[HeaderTimestamp], h[HeaderSignature], now, time.Minute); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("modified body: got %v", err)
	}
	if err := auth.Verify("POST", "/v1/transfers", `{"amount":1}`, h[HeaderTimestamp], h[HeaderSignature], now.Add(time.Hour), time.Minute); !errors.Is(err, ErrStaleRequest) {
		t.Fatalf("stale request: got %v", err)
	}
}
