package watchdog

import "fmt"

// RecoveryError represents a forced stream restart that failed.
// It is logged and counted, never returned to callers of the watchdog.
type RecoveryError struct {
	Attempt uint64
	Err     error
}

// Error implements the error interface
func (e *RecoveryError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return "audio stream restart failed"
	}
	return fmt.Sprintf("audio stream restart failed (episode %d): %v", e.Attempt, e.Err)
}

func (e *RecoveryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to match any RecoveryError
func (e *RecoveryError) Is(target error) bool {
	_, ok := target.(*RecoveryError)
	return ok && e != nil
}

// ErrRecoveryFailed matches every RecoveryError
var ErrRecoveryFailed = &RecoveryError{}
