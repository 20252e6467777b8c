package inference

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrRunnerBusy is returned when Invoke is entered while another Invoke is in flight.
	ErrRunnerBusy = errors.New("runner is busy: Invoke is not safe for concurrent use")
	// ErrRunnerClosed is returned by calls on a Runner after Close.
	ErrRunnerClosed = errors.New("runner is closed")
)

// LoadError reports a failure to bring a model up: missing artifact, unsupported tensors,
// allocation failure or a failed warmup.
type LoadError struct {
	// Path is the model artifact path.
	Path string
	// Op is the load phase that failed: "stat", "open", "buffers" or "warmup".
	Op  string
	Err error
}

// Error implements error.
func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %s: %v", e.Path, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// InvalidInputError reports inputs that do not fit the model's fixed buffers.
type InvalidInputError struct {
	// Tensor is the input name, if one applies.
	Tensor string
	// Expected and Got are element or tensor counts, if the mismatch is numeric.
	Expected int64
	Got      int64
	Reason   string
}

// Error implements error.
func (e *InvalidInputError) Error() string {
	msg := "invalid input"
	if e.Tensor != "" {
		msg += fmt.Sprintf(" %q", e.Tensor)
	}
	msg += ": " + e.Reason
	if e.Expected != 0 || e.Got != 0 {
		msg += fmt.Sprintf(" (expected %d, got %d)", e.Expected, e.Got)
	}
	return msg
}
