package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// File is a file of the result tree with a meta_<name>.json sidecar.
type File struct {
	path     *Path
	name     string
	fullPath string
	f        *os.File
	existing []byte
	meta     *metadata
}

// NewFile opens <path>/<name><ext> for writing. Existing content is kept
// readable through Existing; truncate controls whether writes replace it
// or append to it.
func NewFile(path *Path, name, ext string, truncate bool) (*File, error) {
	full := filepath.Join(path.Name(), name+ext)

	var existing []byte
	if info, err := os.Stat(full); err == nil {
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", full)
		}
		if existing, err = os.ReadFile(full); err != nil {
			return nil, fmt.Errorf("could not open %s for reading: %w", full, err)
		}
	}

	flags := os.O_WRONLY | os.O_CREATE
	if truncate {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open %s for writing: %w", full, err)
	}

	meta, err := loadMetadata(filepath.Join(path.Name(), "meta_"+name+".json"))
	if err != nil {
		f.Close()
		return nil, err
	}

	return &File{path: path, name: name, fullPath: full, f: f, existing: existing, meta: meta}, nil
}

func (f *File) Name() string     { return f.name }
func (f *File) FullPath() string { return f.fullPath }

// Existing returns the content the file had before it was opened.
func (f *File) Existing() []byte { return f.existing }

// Writer returns the writable stream.
func (f *File) Writer() io.Writer { return f.f }

func (f *File) SetMetadata(key string, value any) error { return f.meta.set(key, value, true) }
func (f *File) Metadata(key string) (any, bool)         { return f.meta.get(key) }

func (f *File) Close() error { return f.f.Close() }
