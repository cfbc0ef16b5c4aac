package verification

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRemoteUnavailable covers transport failures and non-2xx responses
	// from the verification service. Retryable.
	ErrRemoteUnavailable = errors.New("verification service unavailable")

	// ErrNotEnrolled means the subject has no face profile on the service.
	ErrNotEnrolled = errors.New("subject is not enrolled")

	// ErrSessionInvalid means the attendance session is unknown or expired.
	ErrSessionInvalid = errors.New("attendance session is invalid or expired")

	// ErrVerificationFailed is the generic category for upstream errors that
	// match no more specific marker.
	ErrVerificationFailed = errors.New("verification failed")
)

// LivenessError reports a failed liveness check with the frame breakdown the
// service included, so the user can be told how close they were.
type LivenessError struct {
	Passed   int
	Required int
}

func (e *LivenessError) Error() string {
	return fmt.Sprintf("liveness check failed: %d of %d required frames passed", e.Passed, e.Required)
}

// ClassifyRemoteError maps an untyped upstream error message onto the local
// failure taxonomy by matching textual markers. The upstream contract exposes
// no structured code; if it ever grows one, only this function needs to
// change.
func ClassifyRemoteError(message string, validFrames, required int) error {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "liveness"):
		return &LivenessError{Passed: validFrames, Required: required}
	case strings.Contains(lower, "not enrolled"), strings.Contains(lower, "no enrollment"):
		return ErrNotEnrolled
	case strings.Contains(lower, "session"):
		return ErrSessionInvalid
	default:
		return fmt.Errorf("%w: %s", ErrVerificationFailed, message)
	}
}
