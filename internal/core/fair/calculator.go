// Package fair implements the provably-fair crash point derivation.
//
// The provider publishes a seed hash per round; the multiplier is fully
// determined by that hash and a public salt. Recomputing it locally lets the
// engine flag tampered or corrupted feed data.
package fair

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// MinMultiplier is the lowest possible crash point. Malformed input also
// resolves to this value so the capture pipeline never stalls on bad data.
const MinMultiplier = 1.00

// Calculate derives the crash multiplier for a seed hash.
//
// HMAC-SHA256 over the seed bytes keyed with the salt; the first 4 digest
// bytes form an unsigned big-endian integer e; X = (e mod 1e6) / 1e4 lands
// in [0, 100); the multiplier is floor(99 / (1 - X/100)) / 100, clamped to
// MinMultiplier. Pure and total: invalid hex yields MinMultiplier.
func Calculate(seedHex, saltHex string) float64 {
	seed, err := hex.DecodeString(seedHex)
	if err != nil || len(seed) == 0 {
		return MinMultiplier
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) == 0 {
		return MinMultiplier
	}

	mac := hmac.New(sha256.New, salt)
	mac.Write(seed)
	digest := mac.Sum(nil)

	e := binary.BigEndian.Uint32(digest[:4])
	x := float64(e%1_000_000) / 10_000

	raw := 99 / (1 - x/100)
	result := math.Floor(raw) / 100

	if result < MinMultiplier || math.IsInf(result, 0) || math.IsNaN(result) {
		return MinMultiplier
	}
	return result
}

// Matches reports whether a published outcome agrees with the locally
// calculated one within floating-point tolerance.
func Matches(reported, calculated float64) bool {
	return math.Abs(reported-calculated) < 1e-9
}
