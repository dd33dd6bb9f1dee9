package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/shlex"
)

var (
	errInvalidCommand = errors.New("the command you have provided is not a valid one")
	errSinglePath     = errors.New("you must provide a single path only")
)

// workflowArgs turns the positional arguments into either an argv
// (isCommand) or a single resolved workflow path. Without "--" every
// command argument is split like a shell would, so `adaptyst -d "ls -l"`
// and `adaptyst -d -- ls -l` are equivalent.
func workflowArgs(isCommand bool, args []string, dashed bool) ([]string, error) {
	if isCommand {
		if dashed {
			for _, a := range args {
				if a == "" {
					return nil, errInvalidCommand
				}
			}
			return args, nil
		}
		var argv []string
		for _, a := range args {
			parts, err := shlex.Split(a)
			if err != nil || len(parts) == 0 {
				return nil, errInvalidCommand
			}
			argv = append(argv, parts...)
		}
		return argv, nil
	}

	if len(args) != 1 {
		return nil, errSinglePath
	}
	if args[0] == "" {
		return nil, errors.New("the path you have provided is not a valid one")
	}
	resolved, err := filepath.EvalSymlinks(args[0])
	if err != nil {
		return nil, fmt.Errorf("the path you have provided does not exist: %s", args[0])
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("the path you have provided does not point to a regular file: %s", args[0])
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return nil, err
	}
	return []string{abs}, nil
}

// formatElapsed renders d as "<n> ms" below a second and "<s>.<ms> s"
// otherwise.
func formatElapsed(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%d ms", ms)
	}
	return fmt.Sprintf("%d.%03d s", ms/1000, ms%1000)
}
