package process

import (
	"errors"
	"fmt"
)

// Exit codes reserved for failures inside the trampoline.
const (
	ErrorStartProfile = 200
	ErrorStdout       = 201
	ErrorStderr       = 202
	ErrorStdoutDup2   = 203
	ErrorStderrDup2   = 204
	ErrorAffinity     = 205
	ErrorStdinDup2    = 206
	ErrorNotFound     = 207
	ErrorNoAccess     = 208
	ErrorSetenv       = 209
)

var (
	ErrEmptyCommand   = errors.New("process: empty command")
	ErrNotStarted     = errors.New("process: not started")
	ErrAlreadyStarted = errors.New("process: already started")
	ErrNotNotifiable  = errors.New("process: not notifiable")
	ErrNotReadable    = errors.New("process: stdout is redirected and cannot be read")
	ErrNotWritable    = errors.New("process: stdin is not writable")
	ErrNotify         = errors.New("process: notify failed")
	ErrWait           = errors.New("process: wait failed")
)

// StartError is returned when a process could not be spawned.
type StartError struct {
	Reason string
	Err    error
}

func (e *StartError) Error() string {
	if e.Err == nil {
		return "process: could not start: " + e.Reason
	}
	return fmt.Sprintf("process: could not start: %s: %v", e.Reason, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// DescribeExitCode explains trampoline exit codes; other codes belong to
// the command itself.
func DescribeExitCode(code int) string {
	switch code {
	case ErrorStartProfile:
		return "the process was never released (notify failed or the coordinator went away)"
	case ErrorStdout, ErrorStdoutDup2:
		return "stdout redirection failed"
	case ErrorStderr, ErrorStderrDup2:
		return "stderr redirection failed"
	case ErrorAffinity:
		return "CPU affinity could not be set"
	case ErrorStdinDup2:
		return "stdin redirection failed"
	case ErrorNotFound:
		return "command not found"
	case ErrorNoAccess:
		return "permission denied when executing the command"
	case ErrorSetenv:
		return "environment could not be set"
	default:
		if code > 128 && code < 128+65 {
			return fmt.Sprintf("killed by signal %d", code-128)
		}
		return ""
	}
}
