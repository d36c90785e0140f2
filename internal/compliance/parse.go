package compliance

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxFallbackReasonLen = 300

var (
	statusToken         = regexp.MustCompile(`\b(ACCEPT(?:ED)?|REJECT(?:ED)?|REVIEW(?:[_ ]REQUIRED)?)\b`)
	labelledConfidence  = regexp.MustCompile(`(?i)\bconfidence\b[^A-Za-z0-9]{0,8}(HIGH|MEDIUM|LOW)\b`)
	uppercaseConfidence = regexp.MustCompile(`\b(HIGH|MEDIUM|LOW)\b`)
)

// modelResponse is the JSON contract requested in the prompt. Fields the
// model omits stay zero.
type modelResponse struct {
	Status          string     `json:"status"`
	Confidence      string     `json:"confidence"`
	ConfidenceScore *float64   `json:"confidence_score"`
	Reason          string     `json:"reason"`
	Violations      stringList `json:"violations_detected"`
}

// stringList accepts either a JSON array of strings or a single string
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	if single != "" {
		*l = []string{single}
	}
	return nil
}

// ParseResponse maps free-form model output onto a Verdict. It never fails:
// text without an explicit status becomes REVIEW_REQUIRED with LOW confidence.
func ParseResponse(text string) Verdict {
	v := Verdict{RawModelText: text}

	resp, hasJSON := extractJSON(text)

	status, ok := Status(""), false
	if hasJSON {
		status, ok = mapStatus(resp.Status)
	}
	if !ok {
		status, ok = strictestStatusToken(text)
	}
	if !ok {
		v.Status = StatusReviewRequired
		v.Confidence = ConfidenceLow
		v.Reason = "model response contained no explicit status"
		if hasJSON && resp.Reason != "" {
			v.Reason = fmt.Sprintf("%s: %s", v.Reason, resp.Reason)
		}
		return v
	}
	v.Status = status

	if hasJSON {
		v.Violations = cleanViolations(resp.Violations)
		v.Reason = strings.TrimSpace(resp.Reason)
	}
	v.Confidence = parseConfidence(text, resp, hasJSON)

	// A model that lists violations cannot also accept the image
	if v.Status == StatusAccepted && len(v.Violations) > 0 {
		v.Status = StatusRejected
		v.Reason = strings.TrimSpace(fmt.Sprintf("violations detected: %s. %s", strings.Join(v.Violations, ", "), v.Reason))
	}

	if v.Reason == "" {
		v.Reason = fallbackReason(text)
	}
	return v
}

// extractJSON finds the outermost JSON object in text, tolerating markdown
// fences and prose around it
func extractJSON(text string) (modelResponse, bool) {
	var resp modelResponse

	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	startIdx := strings.Index(text, "{")
	endIdx := strings.LastIndex(text, "}")
	if startIdx == -1 || endIdx < startIdx {
		return resp, false
	}

	if err := json.Unmarshal([]byte(text[startIdx:endIdx+1]), &resp); err != nil {
		return modelResponse{}, false
	}
	return resp, true
}

// mapStatus maps a JSON status field onto the closed taxonomy
func mapStatus(raw string) (Status, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	switch s {
	case "ACCEPT", "ACCEPTED":
		return StatusAccepted, true
	case "REJECT", "REJECTED":
		return StatusRejected, true
	case "REVIEW", "REVIEW_REQUIRED":
		return StatusReviewRequired, true
	}
	return "", false
}

// statusRank orders statuses from least to most conservative
var statusRank = map[Status]int{
	StatusAccepted:       1,
	StatusReviewRequired: 2,
	StatusRejected:       3,
}

// strictestStatusToken scans prose for uppercase status tokens. Lowercase
// words are ordinary language, not verdicts. When tokens disagree the most
// conservative one wins, so ACCEPT never survives next to REJECT or REVIEW.
func strictestStatusToken(text string) (Status, bool) {
	var best Status
	for _, m := range statusToken.FindAllStringSubmatch(text, -1) {
		if s, ok := mapStatus(m[1]); ok && statusRank[s] > statusRank[best] {
			best = s
		}
	}
	return best, best != ""
}

func parseConfidence(text string, resp modelResponse, hasJSON bool) Confidence {
	if hasJSON {
		if c, ok := mapConfidence(resp.Confidence); ok {
			return c
		}
	}
	if m := labelledConfidence.FindStringSubmatch(text); m != nil {
		if c, ok := mapConfidence(m[1]); ok {
			return c
		}
	}
	if m := uppercaseConfidence.FindStringSubmatch(text); m != nil {
		if c, ok := mapConfidence(m[1]); ok {
			return c
		}
	}
	if hasJSON && resp.ConfidenceScore != nil {
		return scoreConfidence(*resp.ConfidenceScore)
	}
	return ConfidenceLow
}

func mapConfidence(raw string) (Confidence, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "HIGH":
		return ConfidenceHigh, true
	case "MEDIUM":
		return ConfidenceMedium, true
	case "LOW":
		return ConfidenceLow, true
	}
	return "", false
}

func scoreConfidence(score float64) Confidence {
	switch {
	case score >= 0.85:
		return ConfidenceHigh
	case score >= 0.6:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// cleanViolations drops empty entries and placeholders such as "none"
func cleanViolations(in []string) []string {
	var out []string
	for _, v := range in {
		v = strings.TrimSpace(v)
		switch strings.ToLower(v) {
		case "", "none", "n/a", "na", "null", "no violations":
			continue
		}
		out = append(out, v)
	}
	return out
}

func fallbackReason(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= maxFallbackReasonLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxFallbackReasonLen]) + "..."
}
