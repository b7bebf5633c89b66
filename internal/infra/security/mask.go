package security

import "strings"

const maskPlaceholder = "********"

// Mask renders a secret for display: the placeholder followed by the last four
// characters, or the placeholder alone when the secret has four or fewer.
func Mask(secret string) string {
	r := []rune(secret)
	if len(r) <= 4 {
		return maskPlaceholder
	}
	return maskPlaceholder + string(r[len(r)-4:])
}

// MaskAll masks every occurrence of secret in s. Used before logging bodies
// that may echo a key back.
func MaskAll(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, Mask(secret))
}
