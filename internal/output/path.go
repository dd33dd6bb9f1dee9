package output

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirMetaFile is the metadata sidecar of every Path.
const DirMetaFile = "dirmeta.json"

// Path is a directory of the result tree.
type Path struct {
	dir  string
	meta *metadata
}

// NewPath creates dir (and parents) if needed and loads its metadata.
func NewPath(dir string) (*Path, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("could not create directory %s: %w", abs, err)
	}

	meta, err := loadMetadata(filepath.Join(abs, DirMetaFile))
	if err != nil {
		return nil, err
	}
	return &Path{dir: abs, meta: meta}, nil
}

// Name returns the absolute directory path.
func (p *Path) Name() string { return p.dir }

// Join returns a subdirectory, creating it.
func (p *Path) Join(elem ...string) (*Path, error) {
	return NewPath(filepath.Join(append([]string{p.dir}, elem...)...))
}

// SetMetadata stores a key and rewrites dirmeta.json if the value changed.
func (p *Path) SetMetadata(key string, value any) error {
	return p.meta.set(key, value, true)
}

// StageMetadata stores a key without writing; call SaveMetadata afterwards.
func (p *Path) StageMetadata(key string, value any) {
	p.meta.set(key, value, false)
}

func (p *Path) SaveMetadata() error             { return p.meta.save() }
func (p *Path) Metadata(key string) (any, bool) { return p.meta.get(key) }
func (p *Path) MetadataKeys() []string          { return p.meta.keys() }
