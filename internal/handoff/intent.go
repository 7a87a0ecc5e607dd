package handoff

import "strings"

var intentKeywords = []string{
	"human",
	"real person",
	"live agent",
	"talk to an agent",
	"speak to an agent",
	"talk to agent",
	"speak to agent",
	"representative",
	"customer service",
	"customer support",
	"talk to someone",
	"speak to someone",
	"operator",
}

// DetectIntent reports whether text asks to be handed off to a human.
func DetectIntent(text string) bool {
	lower := strings.ToLower(text)
	for _, keyword := range intentKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
