package sqlsafe

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint produces a stable identifier for a statement: lowercase the
// SQL, collapse runs of whitespace, and hash the result. A confirmation turn
// matches its pending statement by this value, so incidental formatting
// differences must not change it.
func Fingerprint(sqlQuery string) string {
	normalized := strings.ToLower(strings.TrimSpace(sqlQuery))
	normalized = strings.Join(strings.Fields(normalized), " ")

	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
