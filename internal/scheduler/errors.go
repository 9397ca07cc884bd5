package scheduler

import "fmt"

// PanicError wraps a value recovered from a panicking flush.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("flush panicked: %v", e.Value)
}
