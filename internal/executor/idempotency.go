package executor

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// ClientOrderID deterministically derives a client order id from the
// insight, symbol, side, and cycle timestamp so a retried execution cycle
// (e.g. after a crash mid-cycle) re-derives the exact same id instead of
// double-submitting the same logical order. Keccak256 is reused here from
// the teacher's on-chain tooling purely as a deterministic, collision-
// resistant hash; no blockchain interaction is involved.
func ClientOrderID(insightID, symbol string, side string, cycleTs int64) string {
	payload := fmt.Sprintf("%s|%s|%s|%d", insightID, symbol, side, cycleTs)
	hash := crypto.Keccak256Hash([]byte(payload))
	return hash.Hex()
}
