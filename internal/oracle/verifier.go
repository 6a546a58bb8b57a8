// Package oracle verifies and produces signed result-feed readings.
package oracle

import (
	"errors"
	"strings"

	"github.com/alanyoungcy/wagerbook/internal/crypto"
	"github.com/alanyoungcy/wagerbook/internal/domain"
	"github.com/alanyoungcy/wagerbook/internal/settlement"
	"github.com/ethereum/go-ethereum/common"
)

// Verifier checks reading signatures against a set of trusted oracle
// addresses.
type Verifier struct {
	chainID int
	trusted settlement.SignerSet
}

// NewVerifier creates a Verifier. With no trusted signers any valid
// signature is accepted.
func NewVerifier(chainID int, trustedSigners []string) *Verifier {
	normalized := make([]string, 0, len(trustedSigners))
	for _, s := range trustedSigners {
		if common.IsHexAddress(s) {
			s = common.HexToAddress(s).Hex()
		}
		normalized = append(normalized, s)
	}
	return &Verifier{chainID: chainID, trusted: settlement.NewSignerSet(normalized...)}
}

// Verify recovers the signer of reading. A missing or malformed signature,
// or one that does not match the claimed signer, is ErrInvalidFeed; a valid
// signature from an untrusted key is ErrUnauthorizedResolver.
func (v *Verifier) Verify(reading domain.OracleReading) error {
	if len(reading.Signature) == 0 || reading.Timestamp.IsZero() {
		return domain.ErrInvalidFeed
	}
	addr, err := crypto.RecoverReadingSigner(v.chainID, reading.FeedID, reading.Value, reading.Timestamp.Unix(), reading.Signature)
	if err != nil {
		if errors.Is(err, crypto.ErrBadSignature) {
			return domain.ErrInvalidFeed
		}
		return err
	}
	if reading.Signer != "" && !strings.EqualFold(reading.Signer, addr.Hex()) {
		return domain.ErrInvalidFeed
	}
	return v.trusted.RequireTrustedSigner(addr.Hex())
}

// Sign fills in Signer and Signature on reading using s.
func Sign(s *crypto.Signer, reading domain.OracleReading) (domain.OracleReading, error) {
	sig, err := s.SignReading(reading.FeedID, reading.Value, reading.Timestamp.Unix())
	if err != nil {
		return domain.OracleReading{}, err
	}
	reading.Signer = s.Address().Hex()
	reading.Signature = sig
	return reading, nil
}

var _ domain.ReadingVerifier = (*Verifier)(nil)
