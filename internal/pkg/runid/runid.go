// Package runid mints the identifiers used for ingestion runs. An id is a
// prefix, a 6-character base62 timestamp, and a random base62 tail, so ids
// sort lexicographically in mint order and stay friendly to B-tree indexes.
package runid

import (
	"crypto/rand"
	"strings"
	"time"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const (
	timestampLen = 6
	randomLen    = 18
)

// New returns a fresh id like "run_1rK5iqAB3cD5eF7gH9iJ1k".
func New(prefix string) string {
	return prefix + "_" + encodeTimestamp(time.Now().Unix()) + randomBase62(randomLen)
}

// encodeTimestamp renders a Unix timestamp as fixed-width base62. Six
// characters cover ~1800 years, zero-padded so earlier always sorts lower.
func encodeTimestamp(seconds int64) string {
	out := make([]byte, timestampLen)
	n := seconds
	for i := timestampLen - 1; i >= 0; i-- {
		out[i] = alphabet[n%62]
		n /= 62
	}
	return string(out)
}

// randomBase62 draws length characters from crypto/rand. Six bits are taken
// at a time and values 62 and 63 are rejected, keeping the distribution
// uniform over the alphabet.
func randomBase62(length int) string {
	buf := make([]byte, (length*6)/8+4)
	if _, err := rand.Read(buf); err != nil {
		panic("runid: read random bytes: " + err.Error())
	}

	var b strings.Builder
	b.Grow(length)
	var bits uint64
	var width uint
	idx := 0

	for b.Len() < length {
		for width < 6 && idx < len(buf) {
			bits = bits<<8 | uint64(buf[idx])
			width += 8
			idx++
		}

		v := (bits >> (width - 6)) & 0x3f
		width -= 6
		if v < 62 {
			b.WriteByte(alphabet[v])
		}

		if idx >= len(buf) && b.Len() < length {
			if _, err := rand.Read(buf); err != nil {
				panic("runid: read random bytes: " + err.Error())
			}
			idx, bits, width = 0, 0, 0
		}
	}

	return b.String()
}
