// Package provider validates the attribution codes that name the referring
// entity for a visit.
package provider

// ValidCode reports whether code is a well-formed provider code: exactly six
// ASCII digits. Anything else, including the empty string, is rejected.
func ValidCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
