package output

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// SourceDestination is where the list of source files goes when it is not
// packed into src.zip: a file path or an already-open descriptor.
type SourceDestination struct {
	Path string
	FD   int
}

// ParseSourceDestination parses "file:<path>" or "fd:<n>".
func ParseSourceDestination(s string) (SourceDestination, error) {
	if path, ok := strings.CutPrefix(s, "file:"); ok && path != "" {
		return SourceDestination{Path: path, FD: -1}, nil
	}
	if fd, ok := strings.CutPrefix(s, "fd:"); ok {
		n, err := strconv.Atoi(fd)
		if err == nil && n >= 0 {
			return SourceDestination{FD: n}, nil
		}
	}
	return SourceDestination{}, fmt.Errorf("the value must be in form of \"file:<path>\" or \"fd:<number>\", got %q", s)
}

func (d SourceDestination) String() string {
	if d.Path != "" {
		return "file:" + d.Path
	}
	return "fd:" + strconv.Itoa(d.FD)
}

// WriteList writes paths, one per line.
func (d SourceDestination) WriteList(paths []string) error {
	var w io.WriteCloser
	if d.Path != "" {
		f, err := os.Create(d.Path)
		if err != nil {
			return fmt.Errorf("could not open %s for writing: %w", d.Path, err)
		}
		w = f
	} else {
		// Write through a duplicate; the original descriptor stays open.
		dup, err := unix.Dup(d.FD)
		if err != nil {
			return fmt.Errorf("fd %d: %w", d.FD, err)
		}
		w = os.NewFile(uintptr(dup), "fd:"+strconv.Itoa(d.FD))
	}

	for _, p := range paths {
		if _, err := io.WriteString(w, p+"\n"); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
