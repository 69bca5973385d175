package logstream

import (
	"fmt"
	"strings"
)

// Text renders the result for the agent: warnings first, a blank line,
// then the collected lines.
func (r *Result) Text() string {
	var warnings []string
	if r.TerminatedBy == TerminatedByTimeout {
		warnings = append(warnings, fmt.Sprintf("WARNING: Timeout (%ds) reached without end marker", int(r.Timeout.Seconds())))
	}
	if r.Truncated {
		warnings = append(warnings, fmt.Sprintf("WARNING: Size limit (%dKB) reached", r.MaxBytes/1024))
	}
	if r.TerminatedBy == TerminatedByError && r.Error != "" {
		warnings = append(warnings, "WARNING: "+r.Error)
	}

	body := strings.Join(r.Lines, "\n")
	if len(warnings) > 0 {
		body = strings.Join(warnings, "\n") + "\n\n" + body
	}
	if body == "" {
		return "No log data received"
	}
	return body
}
