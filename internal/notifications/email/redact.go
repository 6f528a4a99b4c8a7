package email

import "strings"

// RedactEmail masks an address for safe logging by replacing all but the
// first character of the local part with asterisks. For example,
// "john@gmail.com" becomes "j***@gmail.com" and
// "John <john@gmail.com>" becomes "j***@gmail.com".
//
// If the address does not contain an "@" symbol, the entire string is masked.
func RedactEmail(email string) string {
	if email == "" {
		return ""
	}

	// Drop the display name of `Name <local@domain>` forms.
	if open := strings.LastIndex(email, "<"); open >= 0 {
		email = strings.TrimSuffix(email[open+1:], ">")
	}

	parts := strings.SplitN(email, "@", 2)
	if len(parts) != 2 {
		return "***"
	}

	local := parts[0]
	domain := parts[1]

	if len(local) == 0 {
		return "***@" + domain
	}

	return string(local[0]) + "***@" + domain
}

// RedactAll applies RedactEmail to every address.
func RedactAll(addrs []string) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = RedactEmail(a)
	}
	return out
}
