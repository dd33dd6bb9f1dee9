package process

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/adaptyst/adaptyst/internal/conn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

const lineTimeout = 5 * time.Second

func TestMain(m *testing.M) {
	RegisterFunc("exit-3", func() int { return 3 })
	RegisterFunc("hello", func() int {
		fmt.Println("hello")
		fmt.Println("world")
		return 0
	})
	RegisterFunc("echo", func() int {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			fmt.Println(sc.Text())
		}
		return 0
	})
	RegisterFunc("wait-stdin", func() int {
		io.Copy(io.Discard, os.Stdin)
		return 0
	})
	RegisterFunc("env", func() int {
		fmt.Println(os.Getenv("ADAPTYST_TEST_VAR"))
		fmt.Println(os.Getenv(envMode) == "")
		return 0
	})
	RegisterFunc("extra-fd", func() int {
		f := os.NewFile(3, "extra")
		fmt.Fprintln(f, "from child")
		f.Close()
		return 0
	})
	RegisterFunc("affinity", func() int {
		var set unix.CPUSet
		if err := unix.SchedGetaffinity(0, &set); err != nil {
			return 1
		}
		fmt.Println(set.Count())
		fmt.Println(set.IsSet(0))
		return 0
	})
	Init()
	os.Exit(m.Run())
}

func start(t *testing.T, p *Process, opts StartOptions) {
	t.Helper()
	pid, err := p.Start(opts)
	require.NoError(t, err)
	require.Positive(t, pid)
	t.Cleanup(func() { p.Close() })
}

func TestNewEmptyCommand(t *testing.T) {
	_, err := New(nil, 0)
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestJoinIsIdempotent(t *testing.T) {
	p := NewFunc("exit-3", 0)

	_, err := p.Join()
	assert.ErrorIs(t, err, ErrNotStarted)

	start(t, p, StartOptions{})

	code, err := p.Join()
	require.NoError(t, err)
	assert.Equal(t, 3, code)

	code, err = p.Join()
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.False(t, p.IsRunning())
}

func TestDoubleStart(t *testing.T) {
	p := NewFunc("exit-3", 0)
	start(t, p, StartOptions{})
	_, err := p.Start(StartOptions{})
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	p.Join()
}

func TestReadStdout(t *testing.T) {
	p := NewFunc("hello", 0)
	start(t, p, StartOptions{})

	line, err := p.ReadLine(lineTimeout)
	require.NoError(t, err)
	assert.Equal(t, "hello", line)

	line, err = p.ReadLine(lineTimeout)
	require.NoError(t, err)
	assert.Equal(t, "world", line)

	_, err = p.ReadLine(lineTimeout)
	assert.ErrorIs(t, err, io.EOF)

	code, err := p.Join()
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestGatedStart(t *testing.T) {
	p := NewFunc("hello", 0)
	start(t, p, StartOptions{WaitForNotify: true})

	// Nothing may run before the notification.
	_, err := p.ReadLine(200 * time.Millisecond)
	assert.ErrorIs(t, err, conn.ErrTimeout)
	assert.True(t, p.IsRunning())

	require.NoError(t, p.Notify())
	assert.ErrorIs(t, p.Notify(), ErrNotNotifiable)

	line, err := p.ReadLine(lineTimeout)
	require.NoError(t, err)
	assert.Equal(t, "hello", line)

	code, err := p.Join()
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestNotifyErrors(t *testing.T) {
	p := NewFunc("exit-3", 0)
	assert.ErrorIs(t, p.Notify(), ErrNotStarted)

	start(t, p, StartOptions{})
	assert.ErrorIs(t, p.Notify(), ErrNotNotifiable)
	p.Join()
}

func TestGatedChildWithoutNotify(t *testing.T) {
	p := NewFunc("hello", 0)
	start(t, p, StartOptions{WaitForNotify: true})

	// Dropping the notify pipe releases the child with a failure code.
	require.NoError(t, p.Close())

	code, err := p.Join()
	require.NoError(t, err)
	assert.Equal(t, ErrorStartProfile, code)
	assert.NotEmpty(t, DescribeExitCode(code))
}

func TestStdinOneShotClose(t *testing.T) {
	p := NewFunc("echo", 0)
	assert.ErrorIs(t, p.CloseStdin(), ErrNotStarted)

	start(t, p, StartOptions{})

	require.NoError(t, p.WriteStdin([]byte("abc\n")))
	line, err := p.ReadLine(lineTimeout)
	require.NoError(t, err)
	assert.Equal(t, "abc", line)

	require.NoError(t, p.CloseStdin())
	assert.ErrorIs(t, p.CloseStdin(), ErrNotWritable)
	assert.ErrorIs(t, p.WriteStdin([]byte("x")), ErrNotWritable)

	code, err := p.Join()
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestIsRunningDoesNotReap(t *testing.T) {
	p := NewFunc("wait-stdin", 0)
	assert.False(t, p.IsRunning())

	start(t, p, StartOptions{})
	assert.True(t, p.IsRunning())

	require.NoError(t, p.CloseStdin())
	assert.Eventually(t, func() bool { return !p.IsRunning() }, lineTimeout, 10*time.Millisecond)

	code, err := p.Join()
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestTerminate(t *testing.T) {
	p := NewFunc("wait-stdin", 0)
	start(t, p, StartOptions{})

	require.NoError(t, p.Terminate())
	code, err := p.Join()
	require.NoError(t, err)
	assert.Equal(t, 128+int(syscall.SIGTERM), code)
	assert.Contains(t, DescribeExitCode(code), "signal")

	assert.NoError(t, p.Terminate())
}

func TestPipelineToProcess(t *testing.T) {
	consumer := NewFunc("echo", 0)
	producer := NewFunc("hello", 0)
	producer.RedirectStdoutToProcess(consumer)

	_, err := producer.Start(StartOptions{})
	var startErr *StartError
	require.ErrorAs(t, err, &startErr)

	start(t, consumer, StartOptions{})
	start(t, producer, StartOptions{})

	assert.ErrorIs(t, consumer.WriteStdin([]byte("x\n")), ErrNotWritable)

	_, err = producer.ReadLine(lineTimeout)
	assert.ErrorIs(t, err, ErrNotReadable)

	for _, want := range []string{"hello", "world"} {
		line, err := consumer.ReadLine(lineTimeout)
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}

	code, err := producer.Join()
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	// The consumer sees EOF once the producer is gone.
	code, err = consumer.Join()
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestRedirectToFiles(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.log")
	errPath := filepath.Join(dir, "err.log")

	p, err := New([]string{"sh", "-c", "echo to-out; echo to-err >&2"}, 0)
	require.NoError(t, err)
	p.RedirectStdoutToFile(out)
	p.RedirectStderrToFile(errPath)

	_, err = p.ReadLine(lineTimeout)
	assert.ErrorIs(t, err, ErrNotReadable)

	start(t, p, StartOptions{})
	code, err := p.Join()
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "to-out\n", string(b))

	b, err = os.ReadFile(errPath)
	require.NoError(t, err)
	assert.Equal(t, "to-err\n", string(b))
}

func TestExecCommand(t *testing.T) {
	p, err := New([]string{"sh", "-c", "echo hi; exit 4"}, 0)
	require.NoError(t, err)
	start(t, p, StartOptions{})

	line, err := p.ReadLine(lineTimeout)
	require.NoError(t, err)
	assert.Equal(t, "hi", line)

	code, err := p.Join()
	require.NoError(t, err)
	assert.Equal(t, 4, code)
}

func TestExecFailureCodes(t *testing.T) {
	noExec := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(noExec, []byte("#!/bin/sh\nexit 0\n"), 0o644))

	tests := []struct {
		name string
		argv []string
		want int
	}{
		{"missing path", []string{"/nonexistent/adaptyst-test"}, ErrorNotFound},
		{"missing in PATH", []string{"adaptyst-no-such-command"}, ErrorNotFound},
		{"not executable", []string{noExec}, ErrorNoAccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.argv, 0)
			require.NoError(t, err)
			start(t, p, StartOptions{})

			code, err := p.Join()
			require.NoError(t, err)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestEnvironment(t *testing.T) {
	p := NewFunc("env", 0)
	p.SetEnv("ADAPTYST_TEST_VAR", "value")
	start(t, p, StartOptions{})

	line, err := p.ReadLine(lineTimeout)
	require.NoError(t, err)
	assert.Equal(t, "value", line)

	// Trampoline markers never leak into the command.
	line, err = p.ReadLine(lineTimeout)
	require.NoError(t, err)
	assert.Equal(t, "true", line)

	p.Join()
}

func TestExtraFiles(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	p := NewFunc("extra-fd", 0)
	assert.Equal(t, 3, p.AddExtraFile(w))
	start(t, p, StartOptions{WaitForNotify: true})
	require.NoError(t, p.Notify())

	line, err := bufio.NewReader(r).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "from child\n", line)

	code, err := p.Join()
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestCPUAffinity(t *testing.T) {
	var own unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(0, &own))
	if !own.IsSet(0) {
		t.Skip("CPU 0 is not available to this process")
	}

	p := NewFunc("affinity", 0)
	start(t, p, StartOptions{CPU: ParseCPUMask("c"), Profiler: false})

	count, err := p.ReadLine(lineTimeout)
	require.NoError(t, err)
	assert.Equal(t, "1", count)

	isZero, err := p.ReadLine(lineTimeout)
	require.NoError(t, err)
	assert.Equal(t, "true", isZero)

	code, err := p.Join()
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}
