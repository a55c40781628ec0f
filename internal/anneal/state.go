package anneal

import "fmt"

// State is the driver's position in the run.
type State int

const (
	StateIdle State = iota
	StateForTemperature
	StateForRealization
	StateEquilibrating
	StateSampling
	StateDone
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateForTemperature: "for_temperature",
	StateForRealization: "for_realization",
	StateEquilibrating:  "equilibrating",
	StateSampling:       "sampling",
	StateDone:           "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Phase identifies one of the two sweep phases of a realization.
type Phase int

const (
	PhaseEquilibration Phase = iota
	PhaseSampling
)

func (p Phase) String() string {
	if p == PhaseSampling {
		return "sampling"
	}
	return "equilibration"
}

// Event describes a state transition.
type Event struct {
	State State

	// TempIndex and Temperature are set from StateForTemperature on.
	TempIndex   int
	Temperature float64

	// Realization is 1-based; zero outside a realization.
	Realization int

	// Inherited reports whether the realization started from the previous
	// temperature's configuration.
	Inherited bool

	// Sweeps is the length of the phase being entered.
	Sweeps int
}

// Observer receives every state transition synchronously.
type Observer func(Event)
