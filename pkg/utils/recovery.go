package utils

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// PanicError wraps a panic value as an error
type PanicError struct {
	Value      interface{}
	StackTrace string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// RecoverWithCallback recovers from a panic and hands it to callback.
func RecoverWithCallback(callback func(error)) {
	if r := recover(); r != nil {
		stack := string(debug.Stack())
		err := &PanicError{Value: r, StackTrace: stack}
		slog.Error("Recovered from panic", "panic", r, "stack", stack)
		if callback != nil {
			callback(err)
		}
	}
}
