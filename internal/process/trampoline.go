package process

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// NotifySentinel is the byte releasing a gated child.
const NotifySentinel byte = 0x03

const (
	envMode     = "ADAPTYST_TRAMPOLINE"
	envNotifyFD = "ADAPTYST_TRAMPOLINE_NOTIFY_FD"
	envCPUs     = "ADAPTYST_TRAMPOLINE_CPUS"

	modeExec   = "exec"
	funcPrefix = "func:"
)

var (
	funcsMu sync.RWMutex
	funcs   = map[string]func() int{}
)

// RegisterFunc makes fn runnable in a child through NewFunc. Registration
// must happen before Init, typically from an init function or TestMain.
func RegisterFunc(name string, fn func() int) {
	funcsMu.Lock()
	defer funcsMu.Unlock()
	funcs[name] = fn
}

func lookupFunc(name string) (func() int, bool) {
	funcsMu.RLock()
	defer funcsMu.RUnlock()
	fn, ok := funcs[name]
	return fn, ok
}

// Init turns the current process into a trampoline when it was started by
// Process.Start, and never returns in that case. Otherwise it does nothing.
func Init() {
	mode := os.Getenv(envMode)
	if mode == "" {
		return
	}
	os.Exit(trampoline(mode, os.Args[1:]))
}

func trampoline(mode string, argv []string) int {
	notifyFD := os.Getenv(envNotifyFD)
	cpus := os.Getenv(envCPUs)

	for _, key := range []string{envMode, envNotifyFD, envCPUs} {
		if err := os.Unsetenv(key); err != nil {
			return ErrorSetenv
		}
	}

	if notifyFD != "" {
		if code := waitForNotify(notifyFD); code != 0 {
			return code
		}
	}

	runtime.LockOSThread()

	if cpus != "" {
		set, err := parseCPUs(cpus)
		if err != nil || setAffinity(&set) != nil {
			return ErrorAffinity
		}
	}

	if name, ok := strings.CutPrefix(mode, funcPrefix); ok {
		fn, found := lookupFunc(name)
		if !found {
			return ErrorNotFound
		}
		return fn()
	}

	if mode != modeExec || len(argv) == 0 {
		return ErrorNotFound
	}
	return execCommand(argv)
}

func waitForNotify(fdStr string) int {
	fd, err := strconv.Atoi(fdStr)
	if err != nil {
		return ErrorStartProfile
	}
	f := os.NewFile(uintptr(fd), "notify")
	defer f.Close()

	var b [1]byte
	if _, err := io.ReadFull(f, b[:]); err != nil || b[0] != NotifySentinel {
		return ErrorStartProfile
	}
	return 0
}

// setAffinity pins every thread of the process. A Go process is
// multi-threaded by the time this runs and sched_setaffinity only affects
// one thread.
func setAffinity(set *unix.CPUSet) error {
	tasks, err := os.ReadDir("/proc/self/task")
	if err != nil {
		return unix.SchedSetaffinity(0, set)
	}
	for _, task := range tasks {
		tid, err := strconv.Atoi(task.Name())
		if err != nil {
			continue
		}
		if err := unix.SchedSetaffinity(tid, set); err != nil && !errors.Is(err, unix.ESRCH) {
			return err
		}
	}
	return nil
}

func execCommand(argv []string) int {
	path := argv[0]
	if !strings.Contains(path, string(filepath.Separator)) {
		found, err := exec.LookPath(path)
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				return ErrorNoAccess
			}
			return ErrorNotFound
		}
		path = found
	}

	err := syscall.Exec(path, argv, os.Environ())

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ENOENT:
			return ErrorNotFound
		case syscall.EACCES:
			return ErrorNoAccess
		default:
			return int(errno)
		}
	}
	return ErrorNotFound
}
