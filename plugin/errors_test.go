package plugin

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestLoadError_Message(t *testing.T) {
	err := &LoadError{Detail: "dlopen failed"}
	if got := err.Error(); got != "Failed to load plugin: dlopen failed" {
		t.Errorf("Error() = %q, want %q", got, "Failed to load plugin: dlopen failed")
	}

	x := &LoadError{Detail: "x"}
	if got := fmt.Sprint(x); got != "Failed to load plugin: x" {
		t.Errorf("Sprint() = %q", got)
	}
}

func TestCommandNotFoundError_Message(t *testing.T) {
	err := &CommandNotFoundError{Command: "y"}
	if got := err.Error(); got != "Command not found: y" {
		t.Errorf("Error() = %q, want %q", got, "Command not found: y")
	}
}

func TestNewLoadError(t *testing.T) {
	cause := errors.New("symbol NewPlugin not found")
	err := NewLoadError("/plugins/a.so", cause)

	if err.Detail != "/plugins/a.so: symbol NewPlugin not found" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if !errors.Is(err, ErrLoad) {
		t.Error("errors.Is(err, ErrLoad) = false, want true")
	}
	if errors.Is(err, ErrCommandNotFound) {
		t.Error("LoadError matched ErrCommandNotFound")
	}

	if got := NewLoadError("only-source", nil).Detail; got != "only-source" {
		t.Errorf("Detail without cause = %q, want %q", got, "only-source")
	}
}

func TestErrorKinds_Distinguishable(t *testing.T) {
	wrapped := fmt.Errorf("dispatch: %w", &CommandNotFoundError{Command: "z"})

	var cnf *CommandNotFoundError
	if !errors.As(wrapped, &cnf) {
		t.Fatal("errors.As(*CommandNotFoundError) = false")
	}
	if cnf.Command != "z" {
		t.Errorf("Command = %q, want z", cnf.Command)
	}
	var le *LoadError
	if errors.As(wrapped, &le) {
		t.Error("CommandNotFoundError matched *LoadError")
	}
}

func TestRecover(t *testing.T) {
	err := Recover("execute", func() error {
		panic("boom")
	})
	if !errors.Is(err, ErrPluginPanic) {
		t.Fatalf("Recover() error = %v, want ErrPluginPanic", err)
	}
	if !strings.Contains(err.Error(), "boom") || !strings.Contains(err.Error(), "execute") {
		t.Errorf("Recover() message = %q", err.Error())
	}

	inner := errors.New("inner")
	err = Recover("help", func() error { panic(inner) })
	if !errors.Is(err, inner) {
		t.Errorf("Recover() did not wrap panicked error: %v", err)
	}

	if err := Recover("noop", func() error { return nil }); err != nil {
		t.Errorf("Recover() error = %v, want nil", err)
	}
}
