package shared

import "errors"

var (
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
	// ErrCancelled is returned when the user declines a confirmation prompt.
	ErrCancelled = errors.New("action cancelled")
	// ErrDuplicateSubmission indicates a form token that was already used.
	ErrDuplicateSubmission = errors.New("duplicate submission")
)

// Confirm asks the user a yes/no question. Destructive operations call it before issuing any request.
type Confirm func(prompt string) bool

// Confirmed is a Confirm that always answers the given value.
func Confirmed(answer bool) Confirm {
	return func(string) bool { return answer }
}

// Ask evaluates the prompt, treating a nil Confirm as a refusal.
func (c Confirm) Ask(prompt string) bool {
	if c == nil {
		return false
	}
	return c(prompt)
}
