package services

import (
	"strings"
)

// MatchesIgnoreList reports whether sender contains any ignore entry as a
// substring, case-insensitively. Entries are expected pre-normalized (see
// models.ParseIgnoreList) but are lowercased again here so callers cannot
// get it wrong. An empty list never matches.
//
// The raw From header is matched, so an entry can target the display name
// ("Stripe Recruiting") as well as the address or domain ("stripe.com").
func MatchesIgnoreList(ignoreList []string, sender string) bool {
	if len(ignoreList) == 0 {
		return false
	}
	senderLower := strings.ToLower(sender)
	for _, ignored := range ignoreList {
		ignored = strings.ToLower(strings.TrimSpace(ignored))
		// An empty entry would match every sender.
		if ignored == "" {
			continue
		}
		if strings.Contains(senderLower, ignored) {
			return true
		}
	}
	return false
}
