package module

import (
	"errors"
	"fmt"
)

var (
	ErrModuleNotFound = errors.New("module not found")
	ErrNotProcessing  = errors.New("module is not processing")
)

// LoadError is a fatal problem with a module's symbol table or options.
type LoadError struct {
	Module string
	Msg    string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("module %q %s: %v", e.Module, e.Msg, e.Err)
	}
	return fmt.Sprintf("module %q %s", e.Module, e.Msg)
}

func (e *LoadError) Unwrap() error { return e.Err }

func loadErrorf(module, format string, args ...any) *LoadError {
	return &LoadError{Module: module, Msg: fmt.Sprintf(format, args...)}
}

// CallError is returned when a lifecycle function reports failure.
type CallError struct {
	Module string
	Stage  string
	Msg    string
}

func (e *CallError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("module %q failed during %s", e.Module, e.Stage)
	}
	return fmt.Sprintf("module %q failed during %s: %s", e.Module, e.Stage, e.Msg)
}
