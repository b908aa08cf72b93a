package task

import "context"

// Handler is the unit of work bound to a task. It returns the exit code
// of the work and an error when the work did not complete. A nil error
// with a non-zero exit code still counts as a failure.
type Handler interface {
	Execute(ctx context.Context) (int, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context) (int, error)

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context) (int, error) {
	return f(ctx)
}
