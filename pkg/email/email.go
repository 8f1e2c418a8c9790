// Package email holds helpers for user e-mail addresses.
package email

import (
	"strings"
	"unicode"
)

// DisplayName guesses a human name from the local part of an address:
// "jane.doe@bank.example" becomes "Jane Doe". Only the first and last
// name parts are kept. It returns "" when nothing usable remains.
func DisplayName(address string) string {
	local := address
	if at := strings.IndexByte(address, '@'); at >= 0 {
		local = address[:at]
	}
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+' || unicode.IsDigit(r)
	})
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return capitalize(parts[0])
	default:
		return capitalize(parts[0]) + " " + capitalize(parts[len(parts)-1])
	}
}

func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
