// Package mention extracts and strips @handle tokens from chat messages.
package mention

import (
	"regexp"
	"strings"
)

var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_-]+)`)

// Parse returns the first @handle found in msg, lowercased, or "" if none
// match. It does not require a word-boundary before the "@", so strings
// like "foo@bar" yield "bar" and email addresses match on their
// local-plus-at form — both are accepted, known behavior.
func Parse(msg string) string {
	m := mentionPattern.FindStringSubmatch(msg)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// Strip removes every @handle occurrence from msg, collapses any resulting
// run of whitespace to a single space, and trims the result.
func Strip(msg string) string {
	stripped := mentionPattern.ReplaceAllString(msg, "")
	fields := strings.Fields(stripped)
	return strings.Join(fields, " ")
}
