package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/adaptyst/adaptyst/internal/conn"
	"github.com/creack/pty"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Redirect is where a process's stdout goes.
type Redirect int

const (
	// ToPipe keeps stdout readable through ReadLine.
	ToPipe Redirect = iota
	ToFile
	ToTerminal
	ToProcess
	ToPTY
)

type state int

const (
	notStarted state = iota
	running
	exited
)

// StartOptions control how a process is spawned.
type StartOptions struct {
	// WaitForNotify gates the child until Notify is called.
	WaitForNotify bool

	// CPU pins the child to the profiler or workflow partition when valid.
	CPU      CPUConfig
	Profiler bool

	// Dir is the working directory; empty means the current one.
	Dir string
}

// Process is a supervised child process.
type Process struct {
	argv     []string
	funcName string
	bufSize  int
	env      map[string]string
	logger   *zap.Logger

	stdoutMode     Redirect
	stdoutPath     string
	stdoutConsumer *Process
	stderrPath     string
	extraFiles     []*os.File

	mu         sync.Mutex
	state      state
	cmd        *exec.Cmd
	pid        int
	notifyW    *os.File
	notifiable bool
	stdinW     *os.File
	writable   bool
	stdout     *conn.FDConn
	ptyMaster  *os.File

	joinOnce sync.Once
	exitCode int
	joinErr  error
}

// New creates a process running argv.
func New(argv []string, bufSize int) (*Process, error) {
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	return newProcess(append([]string(nil), argv...), "", bufSize), nil
}

// NewFunc creates a process running a function registered with
// RegisterFunc.
func NewFunc(name string, bufSize int) *Process {
	return newProcess(nil, name, bufSize)
}

func newProcess(argv []string, funcName string, bufSize int) *Process {
	if bufSize <= 0 {
		bufSize = conn.DefaultBufSize
	}
	return &Process{
		argv:     argv,
		funcName: funcName,
		bufSize:  bufSize,
		env:      map[string]string{},
		logger:   zap.NewNop(),
		writable: true,
	}
}

// SetLogger sets the logger used for lifecycle events.
func (p *Process) SetLogger(logger *zap.Logger) {
	p.logger = logger
}

// SetEnv adds an environment variable. Explicit variables override the
// inherited environment.
func (p *Process) SetEnv(key, value string) {
	p.env[key] = value
}

// RedirectStdoutToFile writes stdout to path, truncating it.
func (p *Process) RedirectStdoutToFile(path string) {
	p.stdoutMode, p.stdoutPath, p.stdoutConsumer = ToFile, path, nil
}

// RedirectStdoutToTerminal shares the coordinator's stdout.
func (p *Process) RedirectStdoutToTerminal() {
	p.stdoutMode, p.stdoutPath, p.stdoutConsumer = ToTerminal, "", nil
}

// RedirectStdoutToProcess pipes stdout into consumer's stdin. The consumer
// must be started first and is no longer writable from the coordinator.
func (p *Process) RedirectStdoutToProcess(consumer *Process) {
	p.stdoutMode, p.stdoutPath, p.stdoutConsumer = ToProcess, "", consumer
	consumer.mu.Lock()
	consumer.writable = false
	consumer.mu.Unlock()
}

// RedirectStdoutToPTY gives the child a pseudo-terminal as stdout. The
// master side is available through PTY.
func (p *Process) RedirectStdoutToPTY() {
	p.stdoutMode, p.stdoutPath, p.stdoutConsumer = ToPTY, "", nil
}

// RedirectStderrToFile writes stderr to path, truncating it.
func (p *Process) RedirectStderrToFile(path string) {
	p.stderrPath = path
}

// AddExtraFile passes f to the child and returns the descriptor number it
// will have there. Ownership moves to the process: its copy is closed once
// the child has started.
func (p *Process) AddExtraFile(f *os.File) int {
	p.extraFiles = append(p.extraFiles, f)
	return 2 + len(p.extraFiles)
}

// Start spawns the child and returns its PID.
func (p *Process) Start(opts StartOptions) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != notStarted {
		return 0, ErrAlreadyStarted
	}

	self, err := os.Executable()
	if err != nil {
		return 0, &StartError{Reason: "locating own executable", Err: err}
	}

	var parentClose, onFailure []*os.File
	fail := func(reason string, err error) (int, error) {
		closeAll(parentClose)
		closeAll(onFailure)
		return 0, &StartError{Reason: reason, Err: err}
	}

	mode := modeExec
	if p.funcName != "" {
		mode = funcPrefix + p.funcName
	}

	cmd := &exec.Cmd{
		Path:       self,
		Args:       append([]string{"adaptyst-trampoline"}, p.argv...),
		Dir:        opts.Dir,
		Stderr:     os.Stderr,
		ExtraFiles: append([]*os.File(nil), p.extraFiles...),
		SysProcAttr: &syscall.SysProcAttr{
			Pdeathsig: syscall.SIGKILL,
		},
	}
	parentClose = append(parentClose, p.extraFiles...)

	env := map[string]string{envMode: mode}
	if cpus := opts.CPU.cpusFor(opts.Profiler); len(cpus) > 0 {
		env[envCPUs] = formatCPUs(cpus)
	}

	if opts.WaitForNotify {
		r, w, err := os.Pipe()
		if err != nil {
			return fail("notify pipe", err)
		}
		cmd.ExtraFiles = append(cmd.ExtraFiles, r)
		env[envNotifyFD] = strconv.Itoa(2 + len(cmd.ExtraFiles))
		parentClose = append(parentClose, r)
		onFailure = append(onFailure, w)
		p.notifyW = w
	}

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return fail("stdin pipe", err)
	}
	cmd.Stdin = stdinR
	parentClose = append(parentClose, stdinR)
	onFailure = append(onFailure, stdinW)

	var stdoutReader *os.File
	switch p.stdoutMode {
	case ToPipe:
		r, w, err := os.Pipe()
		if err != nil {
			return fail("stdout pipe", err)
		}
		cmd.Stdout = w
		stdoutReader = r
		parentClose = append(parentClose, w)
		onFailure = append(onFailure, r)
	case ToFile:
		f, err := os.Create(p.stdoutPath)
		if err != nil {
			return fail("opening stdout file", err)
		}
		cmd.Stdout = f
		parentClose = append(parentClose, f)
	case ToTerminal:
		cmd.Stdout = os.Stdout
	case ToProcess:
		w, err := p.stdoutConsumer.takeStdinWriter()
		if err != nil {
			return fail("stdout consumer", err)
		}
		cmd.Stdout = w
		parentClose = append(parentClose, w)
	case ToPTY:
		master, slave, err := pty.Open()
		if err != nil {
			return fail("opening pty", err)
		}
		cmd.Stdout = slave
		parentClose = append(parentClose, slave)
		onFailure = append(onFailure, master)
		p.ptyMaster = master
		stdoutReader = master
	}

	if p.stderrPath != "" {
		f, err := os.Create(p.stderrPath)
		if err != nil {
			return fail("opening stderr file", err)
		}
		cmd.Stderr = f
		parentClose = append(parentClose, f)
	}

	cmd.Env = mergeEnv(os.Environ(), p.env, env)

	if err := cmd.Start(); err != nil {
		p.notifyW, p.ptyMaster = nil, nil
		return fail("spawning", err)
	}

	closeAll(parentClose)

	p.cmd = cmd
	p.pid = cmd.Process.Pid
	p.state = running
	p.notifiable = opts.WaitForNotify
	p.stdinW = stdinW
	if stdoutReader != nil {
		p.stdout = conn.NewFDConnFiles(stdoutReader, nil, p.bufSize)
	}

	p.logger.Debug("process started",
		zap.Int("pid", p.pid),
		zap.Strings("argv", p.argv),
		zap.String("func", p.funcName),
		zap.Bool("gated", opts.WaitForNotify),
		zap.String("cpus", env[envCPUs]))
	return p.pid, nil
}

// takeStdinWriter hands this process's stdin writer over to a producer. The
// coordinator keeps no copy, so the consumer sees EOF once the producer
// exits.
func (p *Process) takeStdinWriter() (*os.File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == notStarted || p.stdinW == nil {
		return nil, errors.New("consumer must be started before its producer")
	}
	w := p.stdinW
	p.stdinW = nil
	p.writable = false
	return w, nil
}

// Notify releases a gated child. It may be called once.
func (p *Process) Notify() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == notStarted {
		return ErrNotStarted
	}
	if !p.notifiable {
		return ErrNotNotifiable
	}

	p.notifiable = false
	w := p.notifyW
	p.notifyW = nil
	defer w.Close()

	if _, err := w.Write([]byte{NotifySentinel}); err != nil {
		return fmt.Errorf("%w: %v", ErrNotify, err)
	}
	p.logger.Debug("process notified", zap.Int("pid", p.pid))
	return nil
}

// ReadLine reads one line of the child's stdout.
func (p *Process) ReadLine(timeout time.Duration) (string, error) {
	p.mu.Lock()
	st, stdout := p.state, p.stdout
	p.mu.Unlock()

	if st == notStarted {
		if p.stdoutMode != ToPipe && p.stdoutMode != ToPTY {
			return "", ErrNotReadable
		}
		return "", ErrNotStarted
	}
	if stdout == nil {
		return "", ErrNotReadable
	}
	return stdout.ReadLine(timeout)
}

// WriteStdin writes raw bytes to the child's stdin.
func (p *Process) WriteStdin(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == notStarted {
		return ErrNotStarted
	}
	if !p.writable || p.stdinW == nil {
		return ErrNotWritable
	}
	if _, err := p.stdinW.Write(b); err != nil {
		return &conn.ConnectionError{Op: "write stdin", Err: err}
	}
	return nil
}

// CloseStdin closes the child's stdin. It may be called once.
func (p *Process) CloseStdin() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == notStarted {
		return ErrNotStarted
	}
	if !p.writable || p.stdinW == nil {
		return ErrNotWritable
	}
	p.writable = false
	err := p.stdinW.Close()
	p.stdinW = nil
	return err
}

// Join waits for the child to exit and returns its exit code. A child
// killed by a signal reports 128 plus the signal number. Repeated and
// concurrent calls return the same result.
func (p *Process) Join() (int, error) {
	p.mu.Lock()
	st, cmd := p.state, p.cmd
	p.mu.Unlock()

	if st == notStarted {
		return 0, ErrNotStarted
	}

	p.joinOnce.Do(func() {
		err := cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			p.joinErr = fmt.Errorf("%w: %v", ErrWait, err)
		}

		code := cmd.ProcessState.ExitCode()
		if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			code = 128 + int(ws.Signal())
		}

		p.mu.Lock()
		p.exitCode = code
		p.state = exited
		p.notifiable = false
		if p.notifyW != nil {
			p.notifyW.Close()
			p.notifyW = nil
		}
		p.mu.Unlock()

		p.logger.Debug("process exited", zap.Int("pid", p.pid), zap.Int("exit_code", code))
	})

	return p.exitCode, p.joinErr
}

// IsRunning reports whether the child is alive without reaping it, so a
// later Join still observes the exit status.
func (p *Process) IsRunning() bool {
	p.mu.Lock()
	st, pid := p.state, p.pid
	p.mu.Unlock()

	if st != running {
		return false
	}

	var info unix.Siginfo
	err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOHANG|unix.WNOWAIT, nil)
	if err != nil {
		return false
	}
	return info.Signo == 0
}

// Terminate sends SIGTERM.
func (p *Process) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == notStarted {
		return ErrNotStarted
	}
	if p.state == exited {
		return nil
	}
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

// PID returns the child's process ID, or 0 before Start.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// PTY returns the master side of the child's pseudo-terminal, if any.
func (p *Process) PTY() *os.File {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ptyMaster
}

// Close releases every descriptor still held for the child.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == notStarted {
		closeAll(p.extraFiles)
		p.extraFiles = nil
	}
	if p.notifyW != nil {
		p.notifyW.Close()
		p.notifyW = nil
		p.notifiable = false
	}
	if p.stdinW != nil {
		p.stdinW.Close()
		p.stdinW = nil
		p.writable = false
	}
	if p.stdout != nil {
		p.stdout.Close()
	}
	return nil
}

func mergeEnv(base []string, layers ...map[string]string) []string {
	merged := map[string]string{}
	for _, kv := range base {
		if k, v, ok := cutEnv(kv); ok {
			merged[k] = v
		}
	}
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}

	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func cutEnv(kv string) (string, string, bool) {
	for i := 1; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

func closeAll(files []*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}
