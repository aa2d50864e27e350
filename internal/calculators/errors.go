package calculators

import (
	"errors"
	"fmt"
)

var (
	// ErrDataRange indicates a correlation window longer than the trajectory.
	ErrDataRange = errors.New("calculators: data range exceeds the stored configurations")

	ErrUnknown = errors.New("calculators: unknown calculator")

	// ErrParams indicates a parameter that is missing, unknown or out of range.
	ErrParams = errors.New("calculators: invalid parameters")

	ErrTemperature = errors.New("calculators: experiment temperature must be positive")

	// ErrTooFewAtoms indicates a species too small for the analysis.
	ErrTooFewAtoms = errors.New("calculators: not enough atoms")
)

// CalculatorError wraps an error with the calculator, experiment and
// subject it occurred for.
type CalculatorError struct {
	Calculator string
	Experiment string
	Subject    string
	Wrapped    error
}

func (e *CalculatorError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s on %s: %v", e.Calculator, e.Experiment, e.Wrapped)
	}
	return fmt.Sprintf("%s on %s (%s): %v", e.Calculator, e.Experiment, e.Subject, e.Wrapped)
}

func (e *CalculatorError) Unwrap() error {
	return e.Wrapped
}
