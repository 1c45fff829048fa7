package effect

import "fmt"

// FixtureError reports that a target fixture was not registered.
type FixtureError struct {
	Message string
}

func (e *FixtureError) Error() string { return fmt.Sprintf("fixture: %s", e.Message) }

// ParameterError reports an out-of-range or capability-incompatible
// parameter.
type ParameterError struct {
	Message string
}

func (e *ParameterError) Error() string { return fmt.Sprintf("parameter: %s", e.Message) }

// TimingError reports an invalid duration.
type TimingError struct {
	Message string
}

func (e *TimingError) Error() string { return fmt.Sprintf("timing: %s", e.Message) }

func fixtureErrf(format string, args ...interface{}) error {
	return &FixtureError{Message: fmt.Sprintf(format, args...)}
}

func parameterErrf(format string, args ...interface{}) error {
	return &ParameterError{Message: fmt.Sprintf(format, args...)}
}

func timingErrf(format string, args ...interface{}) error {
	return &TimingError{Message: fmt.Sprintf(format, args...)}
}
