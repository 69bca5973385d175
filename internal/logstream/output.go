package logstream

import (
	"encoding/json"
	"regexp"
	"strings"
)

// timestampPrefix matches "<date> <time> <LEVEL> " line headers such as
// "2026-01-11 04:23:33,350 [INFO] " or "2025-01-01T10:00:00 INFO ".
var timestampPrefix = regexp.MustCompile(
	`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})? (?:\[[^\]]+\]|[A-Z]+) `)

// Normalize strips the timestamp and level header unless keep is set.
func Normalize(line string, keep bool) string {
	if keep {
		return line
	}
	if loc := timestampPrefix.FindStringIndex(line); loc != nil {
		return line[loc[1]:]
	}
	return line
}

// Filter matches lines against a pattern. A pattern that is not a valid
// regular expression is matched as a literal substring.
type Filter struct {
	re      *regexp.Regexp
	literal string
}

// NewFilter returns nil for an empty pattern.
func NewFilter(pattern string) *Filter {
	if pattern == "" {
		return nil
	}
	if re, err := regexp.Compile(pattern); err == nil {
		return &Filter{re: re}
	}
	return &Filter{literal: pattern}
}

// Match reports whether line passes the filter. A nil filter passes everything.
func (f *Filter) Match(line string) bool {
	if f == nil {
		return true
	}
	if f.re != nil {
		return f.re.MatchString(line)
	}
	return strings.Contains(line, f.literal)
}

// containsMarker reports whether raw contains any non-empty marker.
func containsMarker(raw string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(raw, m) {
			return true
		}
	}
	return false
}

// frameContent extracts the log text of one SSE data payload: the
// "content" field of a JSON object, or the payload itself.
func frameContent(data string) string {
	trimmed := strings.TrimSpace(data)
	if strings.HasPrefix(trimmed, "{") {
		var payload struct {
			Content *string `json:"content"`
		}
		if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
			if payload.Content == nil {
				return ""
			}
			return *payload.Content
		}
	}
	return data
}

// splitLines splits on \n, \r\n and \r.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}
