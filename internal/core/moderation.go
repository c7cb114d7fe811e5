package core

import "strings"

var defaultBannedWords = []string{"spam", "scam", "fraud", "abuse", "violence"}

// ContentScreen flags messages containing a banned word anywhere, ignoring case.
// Flagged turns are still answered and stored but earn no reward.
type ContentScreen struct {
	words []string
}

func NewContentScreen(words []string) *ContentScreen {
	if len(words) == 0 {
		words = defaultBannedWords
	}
	lowered := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			lowered = append(lowered, w)
		}
	}
	return &ContentScreen{words: lowered}
}

func (c *ContentScreen) Flagged(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range c.words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
