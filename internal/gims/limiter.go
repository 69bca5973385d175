package gims

import "fmt"

// ResponseTooLargeError reports a payload over the configured limit.
type ResponseTooLargeError struct {
	Actual int
	Limit  int
}

func (e *ResponseTooLargeError) Error() string {
	return fmt.Sprintf("Response too large (%dKB, limit %dKB). Please refine your query to reduce results.",
		e.Actual/1024, e.Limit/1024)
}

// Enforce returns body unchanged when it fits within limit bytes.
// A non-positive limit disables the check.
func Enforce(body []byte, limit int) ([]byte, error) {
	if limit > 0 && len(body) > limit {
		return nil, &ResponseTooLargeError{Actual: len(body), Limit: limit}
	}
	return body, nil
}
