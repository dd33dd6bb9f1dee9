package amod

import "time"

// ID identifies a loaded module for the lifetime of a session.
type ID uint32

// ErrorCode is the code of the last failed API call of a module.
type ErrorCode int

const (
	ErrNone                   ErrorCode = 0
	ErrModuleNotFound         ErrorCode = 1
	ErrOutOfMemory            ErrorCode = 2
	ErrException              ErrorCode = 3
	ErrTerminalNotInitialised ErrorCode = 4
	ErrNotInInit              ErrorCode = 5
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNone:
		return "OK"
	case ErrModuleNotFound:
		return "Module not found"
	case ErrOutOfMemory:
		return "Out of memory"
	case ErrException:
		return "Exception"
	case ErrTerminalNotInitialised:
		return "Terminal not initialised"
	case ErrNotInInit:
		return "Only available during init"
	default:
		return "Unknown error"
	}
}

// ProfileType describes what ProfileInfo points at.
type ProfileType int

const (
	ProfileLinuxProcess ProfileType = 0
)

// ProfileInfo describes the profiled workflow.
type ProfileInfo struct {
	Type ProfileType
	PID  int
}

// Channel is the module end of an injection channel to code running inside
// the workflow.
type Channel interface {
	Read(buf []byte, timeout time.Duration) (int, error)
	ReadLine(timeout time.Duration) (string, error)
	WriteLine(msg string, newline bool) error
	Write(p []byte) error
}

// API is the callback surface available to modules.
type API interface {
	NewContext(id ID, ctx any) bool
	Context(id ID) any
	Option(id ID, key string) Value
	SetError(id ID, msg string) bool
	ErrorCode(id ID) ErrorCode
	ErrorMessage(id ID) string

	LogDir(id ID) string
	Log(id ID, msg, logType string) bool
	Print(id ID, msg string, sub, isErr bool, logType string) bool

	NodeID(id ID) string
	ModuleDir(id ID) string
	TmpDir(id ID) string
	LocalConfigDir(id ID) string
	IsDirectingNode(id ID) bool
	HasInTag(id ID, tag string) bool
	HasOutTag(id ID, tag string) bool
	InTags(id ID) []string
	OutTags(id ID) []string

	// Init phase only.
	SetProfileInfo(id ID, info ProfileInfo) bool
	CPUMask(id ID) string
	SetWillProfile(id ID, willProfile bool) bool

	ProfileInfo(id ID) *ProfileInfo
	ProfileNotify(id ID) bool
	ProfileWait(id ID) int
	ProcessSrcPaths(id ID, paths []string) bool
	InjectionChannel(id ID) Channel

	Timestamp(id ID) uint64
	IsWorkflowRunning(id ID) bool
	WorkflowStartTime(id ID) uint64
	WorkflowEndTime(id ID) uint64
}
