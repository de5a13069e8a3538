// Package fingerprint computes stable content hashes for incoming records
// and guards imports against exact re-insertion, which is what makes every
// import script safe to re-run.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"
)

// Fingerprint computes a stable hash over the identifying tuple of a record:
// (business key or source id, date, normalized memo, signed amount). Any
// upstream change to one of these fields produces a different hash. A
// near-duplicate created that way slips past the guard and is surfaced
// later by the duplicate detector.
func Fingerprint(keyOrID string, date time.Time, normalizedMemo string, amount decimal.Decimal) string {
	h := sha256.New()
	h.Write([]byte(keyOrID))
	h.Write([]byte{0x1f})
	h.Write([]byte(date.Format("2006-01-02")))
	h.Write([]byte{0x1f})
	h.Write([]byte(normalizedMemo))
	h.Write([]byte{0x1f})
	h.Write([]byte(amount.StringFixed(2)))
	return hex.EncodeToString(h.Sum(nil))
}
