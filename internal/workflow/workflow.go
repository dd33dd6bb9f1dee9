package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/adaptyst/adaptyst/internal/process"
)

// Kinds reported in the workflow graph
const (
	KindCommand  = "command"
	KindCompiled = "compiled"
	KindFunc     = "func"
)

var (
	ErrEmptyWorkflow = errors.New("workflow: nothing to run")
	ErrCompile       = errors.New("workflow: compilation failed")
)

// Workflow produces the process to profile.
type Workflow interface {
	// Prepare returns an unstarted process. tmpDir is private to the
	// calling entity.
	Prepare(ctx context.Context, tmpDir string, bufSize int) (*process.Process, error)

	// Graph returns the JSON description passed to modules.
	Graph() string
}

// Graph is the description modules receive when processing starts.
type Graph struct {
	Kind     string   `json:"kind"`
	Argv     []string `json:"argv,omitempty"`
	Source   string   `json:"source,omitempty"`
	Compiler string   `json:"compiler,omitempty"`
	Func     string   `json:"func,omitempty"`
}

func (g Graph) encode() string {
	s, err := sonic.MarshalString(g)
	if err != nil {
		return "{}"
	}
	return s
}

// ParseGraph decodes a description produced by Graph.
func ParseGraph(s string) (Graph, error) {
	var g Graph
	if err := sonic.UnmarshalString(s, &g); err != nil {
		return Graph{}, fmt.Errorf("invalid workflow graph: %w", err)
	}
	return g, nil
}

// Command runs an argv.
type Command struct {
	Argv []string
}

func (c Command) Prepare(_ context.Context, _ string, bufSize int) (*process.Process, error) {
	if len(c.Argv) == 0 {
		return nil, ErrEmptyWorkflow
	}
	return process.New(c.Argv, bufSize)
}

func (c Command) Graph() string {
	return Graph{Kind: KindCommand, Argv: c.Argv}.encode()
}

// Func runs a function registered with process.RegisterFunc.
type Func struct {
	Name string
}

func (f Func) Prepare(_ context.Context, _ string, bufSize int) (*process.Process, error) {
	if f.Name == "" {
		return nil, ErrEmptyWorkflow
	}
	return process.NewFunc(f.Name, bufSize), nil
}

func (f Func) Graph() string {
	return Graph{Kind: KindFunc, Func: f.Name}.encode()
}

// Compiled builds Source with an external compiler before running it.
type Compiled struct {
	Source   string
	Compiler string
	// Args are passed to the compiled program.
	Args   []string
	Logger *zap.Logger
}

// ArtefactName is the executable Compiled produces inside the tmp dir.
const ArtefactName = "workflow.bin"

// Prepare runs the compiler to completion and returns the artefact's
// process. The compiler's output goes to the terminal.
func (c Compiled) Prepare(ctx context.Context, tmpDir string, bufSize int) (*process.Process, error) {
	if c.Source == "" || c.Compiler == "" {
		return nil, ErrEmptyWorkflow
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	src, err := filepath.Abs(c.Source)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create %s: %w", tmpDir, err)
	}
	out := filepath.Join(tmpDir, ArtefactName)

	compiler, err := process.New([]string{c.Compiler, src, out}, bufSize)
	if err != nil {
		return nil, err
	}
	compiler.SetLogger(logger)
	compiler.RedirectStdoutToTerminal()
	if _, err := compiler.Start(process.StartOptions{}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, err)
	}
	defer compiler.Close()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = compiler.Terminate()
		case <-done:
		}
	}()
	code, err := compiler.Join()
	close(done)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, err)
	}
	if code != 0 {
		return nil, fmt.Errorf("%w: %s exited with code %d", ErrCompile, c.Compiler, code)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Info("workflow compiled", zap.String("source", src), zap.String("artefact", out))
	return process.New(append([]string{out}, c.Args...), bufSize)
}

func (c Compiled) Graph() string {
	return Graph{Kind: KindCompiled, Source: c.Source, Compiler: c.Compiler, Argv: c.Args}.encode()
}
