package crypto

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	marketSeed   = []byte("market")
	positionSeed = []byte("position")
	vaultSeed    = []byte("vault")
	transferSeed = []byte("transfer")
)

// MarketID derives the market identifier from its game key.
func MarketID(gameKey string) string {
	return derive(marketSeed, []byte(gameKey))
}

// PositionID derives the identifier of user's position on marketID.
// marketID is a fixed-width hex digest, so the concatenation is unambiguous.
func PositionID(marketID, user string) string {
	return derive(positionSeed, []byte(marketID), []byte(user))
}

// VaultID derives the custody account that holds a market's stakes.
func VaultID(marketID string) string {
	return derive(vaultSeed, []byte(marketID))
}

func derive(seeds ...[]byte) string {
	return hexutil.Encode(ethcrypto.Keccak256(seeds...))
}

// TransferID derives the custody transfer id of one logical settlement
// step. Custody treats the id as an idempotency key, so a retry of the same
// step after a lost reply replays the original transfer. Parts are length
// prefixed to keep the encoding unambiguous.
func TransferID(kind, marketID string, parts ...string) string {
	seeds := make([][]byte, 0, len(parts)+3)
	seeds = append(seeds, transferSeed, []byte(kind), []byte(marketID))
	for _, p := range parts {
		seeds = append(seeds, []byte(strconv.Itoa(len(p))+":"+p))
	}
	return derive(seeds...)
}
