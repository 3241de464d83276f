package chain

import "strings"

// ValidAddress reports whether s looks like an EVM address: 0x followed by
// 40 hex characters.
func ValidAddress(s string) bool {
	if len(s) != 42 || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return false
	}
	for _, r := range s[2:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// NormalizeAddress lowercases an address. Profiles, ledger entries and
// claims all key on the normalized form.
func NormalizeAddress(s string) string {
	return strings.ToLower(s)
}

// ValidTxHash reports whether s looks like a transaction hash: 0x followed
// by 64 hex characters.
func ValidTxHash(s string) bool {
	if len(s) != 66 || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return false
	}
	for _, r := range s[2:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
