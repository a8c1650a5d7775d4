package supertx

import "fmt"

// Phase is a step of the supertransaction flow.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseBalanceCheck
	PhaseBuildCalls
	PhaseQuote
	PhaseExecute
	PhaseConfirm
	PhaseReport
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseBalanceCheck:
		return "balance check"
	case PhaseBuildCalls:
		return "build calls"
	case PhaseQuote:
		return "quote"
	case PhaseExecute:
		return "execute"
	case PhaseConfirm:
		return "confirm"
	case PhaseReport:
		return "report"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// PhaseError records the phase a run failed in.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

func fail(p Phase, err error) error {
	return &PhaseError{Phase: p, Err: err}
}
