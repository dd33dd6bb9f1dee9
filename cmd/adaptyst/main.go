package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/adaptyst/adaptyst/internal/process"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const footer = `If you want to change the paths of the system-wide and local Adaptyst
configuration files, set the environment variables ADAPTYST_CONFIG and
ADAPTYST_LOCAL_CONFIG respectively to values of your choice. Similarly,
you can set the ADAPTYST_MODULE_DIR environment variable to change the path
where Adaptyst looks for modules.`

type options struct {
	system   string
	command  bool
	output   string
	label    string
	codes    string
	batch    bool
	noFormat bool
}

// exitError carries the process exit code of a failed run.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, err error) error { return &exitError{code: code, err: err} }

func main() {
	// The workflow and helper processes re-execute this binary.
	process.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string) int {
	cmd := rootCmd()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	// Run failures have already been printed through the terminal.
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	fmt.Fprintln(cmd.ErrOrStderr(), "Run 'adaptyst --help' for usage.")
	return 1
}

func rootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "adaptyst [flags] COMMAND/PATH",
		Short: "Adaptyst: a performance analysis tool",
		Long: `Adaptyst profiles a workflow on a computer system described by a
definition file. The workflow is either a command (-d) or the path to a
workflow source file built with the configured workflow compiler.

` + footer,
		Version:       version,
		Args:          cobra.MinimumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			argv, err := workflowArgs(opts.command, args, cmd.ArgsLenAtDash() >= 0)
			if err != nil {
				return err
			}
			return run(cmd.Context(), opts, argv)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.system, "system", "s", "", "Path to the definition file of a computer system (required)")
	f.BoolVarP(&opts.command, "command", "d", false, "Treat the positional arguments as a command to analyse rather than a workflow path")
	f.StringVarP(&opts.output, "output", "o", "", "Path to the directory where analysis results should be saved (default: adaptyst_<UTC timestamp>__<positive integer>)")
	f.StringVarP(&opts.label, "label", "l", "", "Label of the performance analysis session (default: the output directory name)")
	f.StringVarP(&opts.codes, "codes", "c", "", `Send the newline-separated list of detected source files to "file:<path>" or "fd:<number>" instead of packing them into src.zip`)
	f.BoolVar(&opts.batch, "batch", false, "Run in batch mode (no in-line updates)")
	f.BoolVar(&opts.noFormat, "no-format", false, "Do not use any non-standard terminal formatting")
	_ = cmd.MarkFlagRequired("system")
	_ = cmd.MarkFlagFilename("system", "yml", "yaml")

	cmd.SetVersionTemplate("Adaptyst {{.Version}}\n")
	return cmd
}
