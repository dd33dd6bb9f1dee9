package terminal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fatih/color"
	"go.uber.org/zap"
)

// Config controls a Terminal.
type Config struct {
	// Batch disables in-place line updates.
	Batch bool
	// Formatted enables colours.
	Formatted bool
	Version   string
	LogDir    string
	// Out defaults to os.Stdout.
	Out    io.Writer
	Logger *zap.Logger
}

// Terminal prints progress and writes per-owner log files. It is safe for
// concurrent use.
type Terminal struct {
	batch     bool
	formatted bool
	version   string
	logDir    string
	logger    *zap.Logger

	mu          sync.Mutex
	out         io.Writer
	lastLineLen int

	section    *color.Color
	subsection *color.Color
	failure    *color.Color
	subFailure *color.Color

	logMu   sync.Mutex
	streams map[string]*os.File
}

// New creates the log directory and the terminal writing into it.
func New(cfg Config) (*Terminal, error) {
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create %s: %w", cfg.LogDir, err)
	}
	dir, err := filepath.Abs(cfg.LogDir)
	if err != nil {
		return nil, err
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	t := &Terminal{
		batch:      cfg.Batch,
		formatted:  cfg.Formatted,
		version:    cfg.Version,
		logDir:     dir,
		logger:     cfg.Logger,
		out:        cfg.Out,
		section:    color.New(color.Bold, color.FgGreen),
		subsection: color.New(color.FgCyan),
		failure:    color.New(color.Bold, color.FgRed),
		subFailure: color.New(color.FgRed),
		streams:    map[string]*os.File{},
	}
	for _, c := range []*color.Color{t.section, t.subsection, t.failure, t.subFailure} {
		if cfg.Formatted {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return t, nil
}

// LogDir returns the absolute log directory.
func (t *Terminal) LogDir() string { return t.logDir }

// PrintNotice prints the version banner and where logs are saved.
func (t *Terminal) PrintNotice() {
	t.mu.Lock()
	fmt.Fprintf(t.out, "Adaptyst %s\n\n", t.version)
	t.mu.Unlock()

	t.Print("All logs are streamed to and saved in form of "+
		"\"<entity/node ID>_<log type>.log\" inside the path below.", false, false)
	t.Print(t.logDir, true, false)
}

// Print writes a line to the terminal.
func (t *Terminal) Print(msg string, sub, isErr bool) {
	t.print(msg, sub, isErr, false)
}

// PrintSameLine overwrites the current line, except in batch mode.
func (t *Terminal) PrintSameLine(msg string, sub, isErr bool) {
	t.print(msg, sub, isErr, true)
}

func (t *Terminal) print(msg string, sub, isErr, sameLine bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	inPlace := sameLine && !t.batch
	if inPlace {
		io.WriteString(t.out, "\r")
	}

	prefix, c := "==> ", t.section
	switch {
	case sub && isErr:
		prefix, c = "-> ", t.subFailure
	case sub:
		prefix, c = "-> ", t.subsection
	case isErr:
		c = t.failure
	}
	io.WriteString(t.out, c.Sprint(prefix+msg))

	n := len(prefix) + len(msg)
	if inPlace {
		if pad := t.lastLineLen - n; pad > 0 {
			io.WriteString(t.out, strings.Repeat(" ", pad))
		}
	} else {
		io.WriteString(t.out, "\n")
	}
	t.lastLineLen = n
}

// PrintFor records a message attributed to owner in its logType log file,
// formatted the way Print would show it.
func (t *Terminal) PrintFor(owner, logType, msg string, sub, isErr bool) error {
	line := "==> " + msg
	if sub {
		line = "-> " + msg
	}
	if isErr {
		line = "[ERROR] " + line
	}
	return t.Log(owner, logType, line)
}

// Log appends a line to <log dir>/<owner>_<logType>.log.
func (t *Terminal) Log(owner, logType, msg string) error {
	key := owner + "_" + logType

	t.logMu.Lock()
	defer t.logMu.Unlock()

	f, ok := t.streams[key]
	if !ok {
		var err error
		f, err = os.Create(filepath.Join(t.logDir, key+".log"))
		if err != nil {
			return err
		}
		t.streams[key] = f
		t.logger.Debug("log stream opened", zap.String("owner", owner), zap.String("type", logType))
	}

	_, err := io.WriteString(f, msg+"\n")
	return err
}

// Close closes every log file.
func (t *Terminal) Close() error {
	t.logMu.Lock()
	defer t.logMu.Unlock()

	var firstErr error
	for key, f := range t.streams {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(t.streams, key)
	}
	return firstErr
}
