package transit

import "errors"

var (
	// ErrInvalidInput matches every *InputError.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoRoute means both stations exist but the current graph does not connect them.
	ErrNoRoute = errors.New("no route found")
)

// InputError is a client-facing validation failure.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string { return e.Reason }

func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }

func invalid(reason string) error {
	return &InputError{Reason: reason}
}
