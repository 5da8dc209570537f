package store

import "encoding/hex"

// Storage prefixes
const (
	BridgeTransactionPrefix = "aethercore_bridge_transactions/"
	UserIndexPrefix         = "aethercore_bridge_transactions_by_user/"
)

func transactionKey(id string) []byte {
	return []byte(BridgeTransactionPrefix + id)
}

// userIndexPrefix hex encodes userID so one user's prefix never covers
// another user's keys.
func userIndexPrefix(userID string) []byte {
	return []byte(UserIndexPrefix + hex.EncodeToString([]byte(userID)) + "/")
}

// userIndexKey sorts a user's entries by creation time.
func userIndexKey(userID string, createdAtNano int64, id string) []byte {
	return append(userIndexPrefix(userID), []byte(fmtNano(createdAtNano)+"/"+id)...)
}

func fmtNano(n int64) string {
	const width = 20
	digits := []byte("00000000000000000000")
	if n < 0 {
		n = 0
	}
	for i := width - 1; i >= 0 && n > 0; i-- {
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits)
}
