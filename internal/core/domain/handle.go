package domain

import "strings"

// NormalizeHandle returns the canonical form of a social handle: trimmed,
// without leading '@' and lowercased. Every store read and write goes through it.
func NormalizeHandle(h string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(h), "@"))
}
