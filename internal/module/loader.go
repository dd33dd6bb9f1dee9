package module

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"plugin"

	"github.com/adaptyst/adaptyst/pkg/amod"
)

// SymbolTable resolves exported module symbols by name.
type SymbolTable interface {
	Lookup(name string) (any, bool)
}

// Loader opens the symbol table of a module by name.
type Loader interface {
	Open(name string) (SymbolTable, error)
	// Dir returns the directory holding the module's files, or "".
	Dir(name string) string
}

// PluginLoader loads Go plugins from a module directory.
type PluginLoader struct {
	Root string
}

// LibraryPath returns <root>/<name>/lib<name>.so.
func (l PluginLoader) LibraryPath(name string) string {
	return filepath.Join(l.Root, name, "lib"+name+".so")
}

func (l PluginLoader) Dir(name string) string {
	return filepath.Join(l.Root, name)
}

func (l PluginLoader) Open(name string) (SymbolTable, error) {
	path := l.LibraryPath(name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, path)
		}
		return nil, err
	}

	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	sym, err := p.Lookup("Symbols")
	if err != nil {
		return nil, err
	}

	switch s := sym.(type) {
	case *amod.Symbols:
		return *s, nil
	case amod.Symbols:
		return s, nil
	case *map[string]any:
		return amod.Symbols(*s), nil
	default:
		return nil, fmt.Errorf("symbol table of %s has unexpected type %T", path, sym)
	}
}

// StaticLoader serves symbol tables compiled into the binary.
type StaticLoader map[string]amod.Symbols

func (l StaticLoader) Open(name string) (SymbolTable, error) {
	s, ok := l[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	return s, nil
}

func (l StaticLoader) Dir(string) string { return "" }

// Chain tries each loader in order and returns the first table found.
type Chain []Loader

func (c Chain) Open(name string) (SymbolTable, error) {
	var lastErr error = fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	for _, l := range c {
		table, err := l.Open(name)
		if err == nil {
			return table, nil
		}
		lastErr = err
		if !errors.Is(err, ErrModuleNotFound) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c Chain) Dir(name string) string {
	for _, l := range c {
		if _, err := l.Open(name); err == nil {
			return l.Dir(name)
		}
	}
	return ""
}
