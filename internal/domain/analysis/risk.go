package analysis

import (
	"regexp"
	"strconv"
	"strings"
)

// Best-effort structured extraction from the reasoning service's free text.
//
// Score rules, first match wins:
//  1. explicit "risk score: N" (case-insensitive, ':' or whitespace), clamped to [0,100]
//  2. severity keywords (critical, severe, high risk) -> 85
//  3. moderate keywords (moderate, medium) -> 50
//  4. otherwise 20
//
// Actions: list-marker lines (1. 2) - * + •), marker stripped, kept when
// longer than 10 characters, at most 5.

const (
	ScoreSevere   = 85
	ScoreModerate = 50
	ScoreLow      = 20

	MaxActions      = 5
	minActionLength = 10
)

var (
	rxRiskScore   = regexp.MustCompile(`risk\s*score[:\s]*(\d+)`)
	rxListMarker  = regexp.MustCompile(`^\s*(?:\d+\s*[.)]?|[-*+•])\s*`)
	severeWords   = []string{"critical", "severe", "high risk"}
	moderateWords = []string{"moderate", "medium"}
)

// ParseRiskScore never fails; absent an explicit score it falls back to keywords.
func ParseRiskScore(text string) (int, ScoreSource) {
	lower := strings.ToLower(text)
	if m := rxRiskScore.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			// digit run too long for int
			return 100, ScoreExplicit
		}
		return clampScore(n), ScoreExplicit
	}
	if containsAny(lower, severeWords) {
		return ScoreSevere, ScoreKeyword
	}
	if containsAny(lower, moderateWords) {
		return ScoreModerate, ScoreKeyword
	}
	return ScoreLow, ScoreDefault
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// ParseActions extracts up to MaxActions recommended actions from list lines.
func ParseActions(text string) []string {
	actions := make([]string, 0, MaxActions)
	for _, line := range strings.Split(text, "\n") {
		loc := rxListMarker.FindStringIndex(line)
		if loc == nil {
			continue
		}
		action := strings.TrimSpace(line[loc[1]:])
		action = strings.Trim(action, "*_ ")
		if len(action) <= minActionLength {
			continue
		}
		actions = append(actions, action)
		if len(actions) == MaxActions {
			break
		}
	}
	return actions
}
