package compliance

import (
	"fmt"
	"regexp"
	"strings"
)

// BannedWords matches a fixed word list against merchant names
type BannedWords struct {
	words    []string
	patterns []*regexp.Regexp
}

// NewBannedWords compiles the list. Matching is case-insensitive on whole
// words; multi-word entries match across any run of whitespace.
func NewBannedWords(words []string) *BannedWords {
	b := &BannedWords{}
	seen := map[string]bool{}
	for _, w := range words {
		w = strings.TrimSpace(w)
		key := strings.ToLower(w)
		if w == "" || seen[key] {
			continue
		}
		seen[key] = true

		parts := strings.Fields(w)
		for i, p := range parts {
			parts[i] = regexp.QuoteMeta(p)
		}
		pattern := `(?i)(?:^|[^\p{L}\p{N}])` + strings.Join(parts, `\s+`) + `(?:$|[^\p{L}\p{N}])`
		b.words = append(b.words, w)
		b.patterns = append(b.patterns, regexp.MustCompile(pattern))
	}
	return b
}

// Words returns the configured list
func (b *BannedWords) Words() []string {
	return append([]string(nil), b.words...)
}

// Match returns the banned words present in text, in list order
func (b *BannedWords) Match(text string) []string {
	var found []string
	for i, p := range b.patterns {
		if p.MatchString(text) {
			found = append(found, b.words[i])
		}
	}
	return found
}

// Escalate applies banned words found in the merchant name to a verdict.
// Only ACCEPTED moves (to REVIEW_REQUIRED); a stricter verdict is kept.
func Escalate(v Verdict, matches []string) Verdict {
	if len(matches) == 0 {
		return v
	}

	v.Violations = append(append([]string(nil), v.Violations...), bannedViolations(matches)...)
	if v.Status == StatusAccepted {
		v.Status = StatusReviewRequired
		v.Reason = strings.TrimSpace(fmt.Sprintf("merchant name contains banned word(s): %s. %s", strings.Join(matches, ", "), v.Reason))
	}
	return v
}

func bannedViolations(matches []string) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = "banned_word:" + strings.ToLower(m)
	}
	return out
}
