package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// Reading(string feedId,string value,uint256 timestamp)
	readingTypeHash = ethcrypto.Keccak256(
		[]byte("Reading(string feedId,string value,uint256 timestamp)"),
	)
)

const (
	domainName    = "WagerbookOracle"
	domainVersion = "1"
)

// ErrBadSignature is returned when a signature cannot be decoded or
// recovered.
var ErrBadSignature = errors.New("crypto/signer: bad signature")

// Signer signs oracle readings with a secp256k1 key using EIP-712 typed
// hashing. Oracle operators run one; tests use one to produce fixtures.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	domainSep  []byte
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		domainSep:  DomainSeparator(chainID),
	}, nil
}

// GenerateSigner creates a Signer with a fresh random key.
func GenerateSigner(chainID int) (*Signer, error) {
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: generating key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		domainSep:  DomainSeparator(chainID),
	}, nil
}

// Address returns the address derived from the signer's public key.
func (s *Signer) Address() common.Address {
	return s.address
}

// PrivateKeyHex returns the raw key, for writing an encrypted key file.
func (s *Signer) PrivateKeyHex() string {
	return common.Bytes2Hex(ethcrypto.FromECDSA(s.privateKey))
}

// SignReading returns a 65-byte r||s||v signature (v in {27,28}) over the
// typed hash of the reading.
func (s *Signer) SignReading(feedID, value string, unixTS int64) ([]byte, error) {
	digest := eip712Hash(s.domainSep, readingStructHash(feedID, value, unixTS))
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// RecoverReadingSigner returns the address that produced sig for the
// reading. It accepts v in either {0,1} or {27,28}.
func RecoverReadingSigner(chainID int, feedID, value string, unixTS int64, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, ErrBadSignature
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	digest := eip712Hash(DomainSeparator(chainID), readingStructHash(feedID, value, unixTS))
	pub, err := ethcrypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// DomainSeparator returns keccak256(abi.encode(typeHash, nameHash, versionHash, chainId)).
func DomainSeparator(chainID int) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(domainName)),
			ethcrypto.Keccak256([]byte(domainVersion)),
			bigIntTo32Bytes(big.NewInt(int64(chainID))),
		),
	)
}

func readingStructHash(feedID, value string, unixTS int64) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			readingTypeHash,
			ethcrypto.Keccak256([]byte(feedID)),
			ethcrypto.Keccak256([]byte(value)),
			bigIntTo32Bytes(big.NewInt(unixTS)),
		),
	)
}

// eip712Hash computes keccak256("\x19\x01" || domainSeparator || structHash).
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(concatBytes([]byte{0x19, 0x01}, domainSep, structHash))
}

func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
