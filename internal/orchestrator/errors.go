package orchestrator

import (
	"errors"

	"github.com/srg/drumthumper/internal/midi"
	"github.com/srg/drumthumper/internal/transport"
)

// Orchestrator errors
var (
	ErrAdapterDisabled = errors.New("bluetooth adapter is disabled")
	ErrStopped         = errors.New("orchestrator stopped")
)

// failureStep names where an attempt failed, for logs and metrics.
func failureStep(err error) string {
	if step := transport.StepOf(err); step != "" {
		return string(step)
	}
	var oerr *midi.OpenError
	if errors.As(err, &oerr) {
		return string(oerr.Kind)
	}
	if errors.Is(err, ErrAdapterDisabled) {
		return "adapter"
	}
	return "unknown"
}
