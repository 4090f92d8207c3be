package flash

import (
	"github.com/cloudflare/ahocorasick"
)

// DefaultPatterns marks an event type as entry-class when it contains "ENTER".
var DefaultPatterns = []string{"ENTER"}

// Matcher decides whether an event type qualifies for a flash by substring
// match against a fixed pattern set. It is not safe for concurrent use.
type Matcher struct {
	m *ahocorasick.Matcher
}

func NewMatcher(patterns []string) *Matcher {
	var clean []string
	for _, p := range patterns {
		if p != "" {
			clean = append(clean, p)
		}
	}
	if len(clean) == 0 {
		clean = DefaultPatterns
	}
	return &Matcher{m: ahocorasick.NewStringMatcher(clean)}
}

func (m *Matcher) Qualifies(eventType string) bool {
	if eventType == "" {
		return false
	}
	return m.m.Contains([]byte(eventType))
}
