package emailutil

import "strings"

// Normalize normalizes an email address for consistent comparison
// by converting to lowercase and trimming whitespace
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ExtractDomain extracts domain from email address
func ExtractDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}

// Valid is a shape check for user-supplied addresses: one @, a non-empty
// local part, and a dotted domain. Deliverability is not checked.
func Valid(email string) bool {
	if strings.ContainsAny(email, " \t\r\n<>") {
		return false
	}
	local, _, _ := strings.Cut(email, "@")
	domain := ExtractDomain(email)
	if local == "" || domain == "" {
		return false
	}
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}
