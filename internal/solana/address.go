// Package solana holds small helpers for Solana address handling.
package solana

import "github.com/mr-tron/base58"

// ValidAddress reports whether s is a well-formed Solana address:
// base58 (Bitcoin alphabet) decoding to exactly 32 bytes. Both wallet
// addresses and token mints share this format.
func ValidAddress(s string) bool {
	// Base58 for 32 bytes is 32–44 characters; cheap reject before decoding.
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	decoded, err := base58.Decode(s)
	if err != nil {
		return false
	}
	return len(decoded) == 32
}
