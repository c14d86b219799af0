// Package idgen assigns stable internal ids to conversations and
// sources at first insert.
package idgen

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// EncodeBase36 converts data to a base36 string of exactly length
// characters, left-padding with zeros or truncating from the left as
// needed to hit the target width.
func EncodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)

	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}
	for i, j := 0, len(chars)-1; i < j; i, j = i+1, j-1 {
		chars[i], chars[j] = chars[j], chars[i]
	}

	str := string(chars)
	if len(str) < length {
		str = strings.Repeat("0", length-len(str)) + str
	}
	if len(str) > length {
		str = str[len(str)-length:]
	}
	return str
}

// ConversationID derives a stable internal id for a conversation from
// its source, external id (or content-hash if absent) and a
// disambiguating nonce for the rare hash-collision retry.
func ConversationID(sourceID, identityKey string, nonce int) string {
	content := fmt.Sprintf("%s|%s|%d|%d", sourceID, identityKey, time.Now().UnixNano(), nonce)
	sum := sha256.Sum256([]byte(content))
	return "c-" + EncodeBase36(sum[:5], 8)
}

// SourceID derives a stable id for a newly configured source.
func SourceID(adapter, path string, nonce int) string {
	content := fmt.Sprintf("%s|%s|%d", adapter, path, nonce)
	sum := sha256.Sum256([]byte(content))
	return "s-" + EncodeBase36(sum[:4], 6)
}
