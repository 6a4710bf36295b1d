// Package intent detects conversational intents that override the dialog flow.
package intent

import (
	"regexp"
	"strings"
)

// DefaultUrgentTerms are the emergency-related terms and fragments that trigger the urgency interrupt.
// Fragments such as "falleci" and "emerg" match their inflected forms.
var DefaultUrgentTerms = []string{
	"urgencia",
	"urgente",
	"falleci",
	"falleció",
	"murio",
	"murió",
	"ahora",
	"24",
	"emerg",
}

// Classifier reports whether an inbound text asks for urgent help.
type Classifier interface {
	IsUrgent(text string) bool
}

// PatternClassifier matches text against a fixed set of terms, case-insensitively.
type PatternClassifier struct {
	pattern *regexp.Regexp
}

// NewPatternClassifier builds a classifier for the given terms. With no non-blank terms it uses DefaultUrgentTerms.
func NewPatternClassifier(terms ...string) *PatternClassifier {
	quoted := quoteTerms(terms)
	if len(quoted) == 0 {
		quoted = quoteTerms(DefaultUrgentTerms)
	}
	return &PatternClassifier{pattern: regexp.MustCompile(`(?i)(` + strings.Join(quoted, "|") + `)`)}
}

// IsUrgent reports whether text contains any urgency term.
func (c *PatternClassifier) IsUrgent(text string) bool {
	if text == "" {
		return false
	}
	return c.pattern.MatchString(text)
}

func quoteTerms(terms []string) []string {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(t))
	}
	return quoted
}
