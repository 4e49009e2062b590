package plugin

import (
	"errors"
	"fmt"
)

var (
	// ErrLoad matches every *LoadError via errors.Is.
	ErrLoad = errors.New("plugin load failed")
	// ErrCommandNotFound matches every *CommandNotFoundError via errors.Is.
	ErrCommandNotFound = errors.New("command not found")
	// ErrPluginPanic is wrapped by errors produced from a recovered panic in plugin code.
	ErrPluginPanic = errors.New("plugin panicked")
	// ErrModuleInUse is returned when a module is closed while instances it
	// produced are still open.
	ErrModuleInUse = errors.New("module has open instances")
)

// LoadError reports that a plugin module could not be opened, its factory
// could not be resolved, or the factory did not produce a usable instance.
//
// A LoadError only affects the one plugin; the host skips it and carries on.
type LoadError struct {
	Detail string
	Err    error
}

// NewLoadError builds a LoadError whose detail is "<source>: <cause>".
func NewLoadError(source string, cause error) *LoadError {
	detail := source
	if cause != nil {
		detail = fmt.Sprintf("%s: %v", source, cause)
	}
	return &LoadError{Detail: detail, Err: cause}
}

func (e *LoadError) Error() string {
	return "Failed to load plugin: " + e.Detail
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func (e *LoadError) Is(target error) bool {
	return target == ErrLoad
}

// CommandNotFoundError reports dispatch of a command that no plugin owns, or
// a plugin asked to execute a command outside its advertised set.
type CommandNotFoundError struct {
	Command string
}

func (e *CommandNotFoundError) Error() string {
	return "Command not found: " + e.Command
}

func (e *CommandNotFoundError) Is(target error) bool {
	return target == ErrCommandNotFound
}

// panicError converts a recovered panic value into an error wrapping ErrPluginPanic.
func panicError(op string, r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%w during %s: %w", ErrPluginPanic, op, err)
	}
	return fmt.Errorf("%w during %s: %v", ErrPluginPanic, op, r)
}

// Recover runs fn and converts a panic raised inside it into an error
// wrapping ErrPluginPanic. op names the operation for the message.
func Recover(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(op, r)
		}
	}()
	return fn()
}
