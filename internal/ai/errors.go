package ai

import "fmt"

// InferenceError wraps a failed inference call. The analysis worker treats
// it as fatal for the run.
type InferenceError struct {
	Operation string // what was being asked of the model
	Err       error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed during %s: %v", e.Operation, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
