package domain

import "github.com/mr-tron/base58"

// solanaAddressLen is the decoded length of a Solana public key.
const solanaAddressLen = 32

// IsSolanaAddress reports whether addr is a base58 encoded 32-byte key.
func IsSolanaAddress(addr string) bool {
	if addr == "" {
		return false
	}
	decoded, err := base58.Decode(addr)
	if err != nil {
		return false
	}
	return len(decoded) == solanaAddressLen
}
