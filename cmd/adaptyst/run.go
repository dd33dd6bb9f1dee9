package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/adaptyst/adaptyst/internal/infrastructure/config"
	"github.com/adaptyst/adaptyst/internal/infrastructure/logging"
	"github.com/adaptyst/adaptyst/internal/infrastructure/monitoring"
	"github.com/adaptyst/adaptyst/internal/infrastructure/resilience"
	"github.com/adaptyst/adaptyst/internal/infrastructure/server"
	"github.com/adaptyst/adaptyst/internal/infrastructure/tracing"
	"github.com/adaptyst/adaptyst/internal/module"
	"github.com/adaptyst/adaptyst/internal/module/builtin"
	"github.com/adaptyst/adaptyst/internal/output"
	"github.com/adaptyst/adaptyst/internal/shared/id"
	"github.com/adaptyst/adaptyst/internal/system"
	"github.com/adaptyst/adaptyst/internal/terminal"
	"github.com/adaptyst/adaptyst/internal/topology"
	"github.com/adaptyst/adaptyst/internal/workflow"
)

// Keys of the config files that override unset environment variables.
const (
	keyModuleDir = "module_dir"
	keyCompiler  = "workflow_compiler"
)

const shutdownTimeout = 5 * time.Second

// run performs one profiling session.
func run(ctx context.Context, opts options, argv []string) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return fail(2, err)
	}

	var sources *output.SourceDestination
	if opts.codes != "" {
		d, err := output.ParseSourceDestination(opts.codes)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return fail(1, err)
		}
		sources = &d
	}

	tmpDir := filepath.Join(cfg.Paths.TmpRoot, "adaptyst.pid."+strconv.Itoa(os.Getpid()))
	if err := makeTmpDir(tmpDir); err != nil {
		fmt.Fprintln(os.Stderr, err, "Exiting.")
		return fail(1, err)
	}
	defer os.RemoveAll(tmpDir)

	parent, name := ".", ""
	if opts.output != "" {
		parent, name = filepath.Split(filepath.Clean(opts.output))
		if parent == "" {
			parent = "."
		}
	}
	out, err := output.NewRunDir(parent, name, opts.label, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return fail(1, err)
	}
	logDir := filepath.Join(out.Name(), "log")

	logger, err := newLogger(cfg, logDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return fail(1, err)
	}
	defer logger.Sync()

	term, err := terminal.New(terminal.Config{
		Batch:     opts.batch,
		Formatted: !opts.noFormat,
		Version:   version,
		LogDir:    logDir,
		Logger:    logger.Component("terminal"),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return fail(1, err)
	}
	defer term.Close()

	term.PrintNotice()
	start := time.Now()

	term.Print("Reading config file(s)...", false, false)
	values, err := cfg.LoadFiles()
	if err != nil {
		term.Print(err.Error(), true, true)
		return fail(2, err)
	}
	applyValues(cfg, values)
	term.Print(fmt.Sprintf("%d setting(s) read", len(values)), true, false)
	logger.Info("Configuration loaded",
		zap.String("module_dir", cfg.Paths.ModuleDir),
		zap.Strings("keys", values.Keys()),
	)

	if err := session(ctx, cfg, opts, argv, out, tmpDir, sources, term, logger); err != nil {
		term.Print(err.Error(), true, true)
		return fail(2, err)
	}

	term.Print("Done in "+formatElapsed(time.Since(start))+" in total! "+
		"You can inspect the results now.", false, false)
	return nil
}

func session(
	ctx context.Context,
	cfg *config.Config,
	opts options,
	argv []string,
	out *output.Path,
	tmpDir string,
	sources *output.SourceDestination,
	term *terminal.Terminal,
	logger *logging.Logger,
) error {
	term.Print("Reading the computer system definition file...", false, false)
	def, err := topology.ParseFile(opts.system)
	if err != nil {
		return err
	}

	sessionID := id.NewSessionID()
	logger = logger.WithSession(sessionID.String())
	metrics := monitoring.NewMetrics()
	tracer := tracing.New(sessionID, logger.Component("tracing"))
	defer tracer.Close()

	root, err := out.Join("system")
	if err != nil {
		return err
	}

	sysCfg := system.Config{
		Definition:     def,
		DefinitionFile: opts.system,
		Root:           root,
		Loader: module.Chain{
			builtin.Loader(),
			module.PluginLoader{Root: cfg.Paths.ModuleDir},
		},
		Terminal:       term,
		Workflow:       newWorkflow(cfg, opts.command, argv, logger),
		TmpDir:         filepath.Join(tmpDir, "system"),
		LocalConfigDir: cfg.LocalConfigDir(),
		BufSize:        cfg.Runtime.BufSize,
		ListenTimeout:  cfg.Runtime.ListenTimeout,
		Sources:        sources,
		Breakers:       resilience.DefaultSettings(),
		Metrics:        metrics,
		Tracer:         tracer,
		Session:        sessionID,
		Logger:         logger.Component("system"),
	}

	var srv *server.Server
	if cfg.Status.Address != "" {
		srv = server.New(server.Config{
			Address:     cfg.Status.Address,
			Metrics:     metrics,
			Tracer:      tracer,
			RateLimit: server.RateLimitConfig{
				RequestsPerSecond: cfg.Status.RPS,
				Burst:             cfg.Status.Burst,
			},
			Development: cfg.Logging.Development,
			Logger:      logger.Logger,
		})
		sysCfg.Events = srv.Publish
		if err := srv.Start(); err != nil {
			return fmt.Errorf("could not start the status server: %w", err)
		}
		term.Print("Status server listening on "+srv.Addr(), true, false)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				logger.Warn("Status server shutdown failed", zap.Error(err))
			}
		}()
	}

	sys, err := system.New(sysCfg)
	if err != nil {
		return err
	}
	defer sys.Close()
	if srv != nil {
		srv.Attach(sys)
	}

	term.Print("Running performance analysis...", false, false)
	err = sys.Process(ctx)
	if errors.Is(err, context.Canceled) {
		return errors.New("the analysis has been interrupted")
	}
	return err
}

func newWorkflow(cfg *config.Config, isCommand bool, argv []string, logger *logging.Logger) workflow.Workflow {
	if isCommand {
		return workflow.Command{Argv: argv}
	}
	return workflow.Compiled{
		Source:   argv[0],
		Compiler: cfg.Workflow.Compiler,
		Logger:   logger.Component("workflow"),
	}
}

func newLogger(cfg *config.Config, logDir string) (*logging.Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	logCfg := logging.DefaultConfig()
	if cfg.Logging.Development {
		logCfg = logging.DevelopmentConfig()
	}
	if cfg.Logging.Level != "" {
		logCfg.Level = cfg.Logging.Level
	}
	// stdout and stderr belong to the terminal.
	logCfg.OutputPaths = nil
	return logging.New(logCfg.WithLogDir(logDir))
}

// applyValues lets config files set what the environment left at defaults.
func applyValues(cfg *config.Config, values config.Values) {
	if v, ok := values[keyModuleDir]; ok && os.Getenv("ADAPTYST_MODULE_DIR") == "" {
		cfg.Paths.ModuleDir = v
	}
	if v, ok := values[keyCompiler]; ok && os.Getenv("ADAPTYST_WORKFLOW_COMPILER") == "" {
		cfg.Workflow.Compiler = v
	}
}

func makeTmpDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("could not clear %s: %w", dir, err)
	}
	for _, d := range []string{dir, filepath.Join(dir, "system"), filepath.Join(dir, "log")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("could not create %s: %w", d, err)
		}
	}
	return nil
}
