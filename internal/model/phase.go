package model

import "fmt"

const (
	PhaseIdle       = "idle"
	PhaseStarting   = "starting"
	PhaseRunning    = "running"
	PhaseRestarting = "restarting"
	PhaseCompleted  = "completed"
	PhaseFailed     = "failed"
	PhaseCancelled  = "cancelled"
)

var allowedTransitions = map[string]map[string]bool{
	"": {
		PhaseIdle: true,
	},
	PhaseIdle: {
		PhaseIdle:      true,
		PhaseStarting:  true,
		PhaseFailed:    true, // rejected before the first launch
		PhaseCancelled: true,
	},
	PhaseStarting: {
		PhaseStarting:  true,
		PhaseRunning:   true,
		PhaseCompleted: true, // checkpoint already covers the full range
		PhaseFailed:    true, // launch failure, no subprocess ever ran
		PhaseCancelled: true,
	},
	PhaseRunning: {
		PhaseRunning:    true,
		PhaseCompleted:  true,
		PhaseRestarting: true,
		PhaseFailed:     true,
		PhaseCancelled:  true,
	},
	PhaseRestarting: {
		PhaseRestarting: true,
		PhaseStarting:   true,
		PhaseCancelled:  true,
	},
	PhaseCompleted: {},
	PhaseFailed:    {},
	PhaseCancelled: {},
}

func IsKnownPhase(phase string) bool {
	_, ok := allowedTransitions[phase]
	return ok
}

// IsTerminalPhase reports whether the job can make no further transitions.
func IsTerminalPhase(phase string) bool {
	next, ok := allowedTransitions[phase]
	return ok && len(next) == 0
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func ValidateTransition(from, to string) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid phase transition: %q -> %q", from, to)
	}
	return nil
}
