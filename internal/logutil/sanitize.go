// Package logutil holds small helpers for writing untrusted strings to the
// server log.
package logutil

import "strings"

// Sanitize strips control characters from a string before it is logged.
// Device hosts and names come from the inventory and seed files, so a
// crafted value could otherwise inject fake log lines.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(' ')
			continue
		}
		if r >= 32 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
