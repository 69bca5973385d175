package tools

import (
	"regexp"
	"unicode/utf8"

	"github.com/gelarm/gims-automation-mcp-server/internal/gims"
)

const (
	maxMatchesPerItem = 5
	matchContextRunes = 50
)

// compileQuery builds a matcher from query. A query that is not a valid
// regular expression is matched literally.
func compileQuery(query string, caseSensitive bool) *regexp.Regexp {
	prefix := ""
	if !caseSensitive {
		prefix = "(?i)"
	}
	if re, err := regexp.Compile(prefix + query); err == nil {
		return re
	}
	return regexp.MustCompile(prefix + regexp.QuoteMeta(query))
}

// SearchField returns the items whose field matches query, annotated with
// match_count, matched_in and up to five matches with surrounding context.
// Positions and context are counted in characters. The code field is dropped
// unless includeCode is set.
func SearchField(items []gims.Object, query, field string, caseSensitive, includeCode bool) []gims.Object {
	re := compileQuery(query, caseSensitive)

	var out []gims.Object
	for _, it := range items {
		text, _ := it[field].(string)
		if text == "" {
			continue
		}
		locs := re.FindAllStringIndex(text, -1)
		if len(locs) == 0 {
			continue
		}

		r := make(gims.Object, len(it)+3)
		for k, v := range it {
			if k != "code" || includeCode {
				r[k] = v
			}
		}
		r["match_count"] = len(locs)
		r["matched_in"] = field

		runes := []rune(text)
		matches := make([]map[string]any, 0, maxMatchesPerItem)
		for _, loc := range locs {
			if len(matches) == maxMatchesPerItem {
				break
			}
			start := utf8.RuneCountInString(text[:loc[0]])
			end := start + utf8.RuneCountInString(text[loc[0]:loc[1]])
			from := max(0, start-matchContextRunes)
			to := min(len(runes), end+matchContextRunes)
			matches = append(matches, map[string]any{
				"position": start,
				"context":  string(runes[from:to]),
			})
		}
		r["matches"] = matches
		out = append(out, r)
	}
	return out
}
