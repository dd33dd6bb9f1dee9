package module

import (
	"fmt"

	"github.com/adaptyst/adaptyst/pkg/amod"
)

// UserOptions are the option values given for a module in the system
// definition, before parsing. A key appears in at most one of the maps.
type UserOptions struct {
	Scalars map[string]string
	Arrays  map[string][]string
}

// OptionMeta describes one option a module accepts.
type OptionMeta struct {
	Name      string
	Help      string
	Type      amod.Type
	ArrayType amod.Type
}

// Option is a resolved option value.
type Option struct {
	OptionMeta
	Value amod.Value
	// Default is true when the module's own default was used.
	Default bool
}

func marshalOptions(module string, table SymbolTable, user UserOptions) ([]Option, error) {
	names, err := lookupStrings(table, amod.SymOptions)
	if err != nil {
		return nil, loadErrorf(module, "doesn't define what options are available")
	}

	opts := make([]Option, 0, len(names))
	for _, name := range names {
		meta, err := optionMeta(module, table, name)
		if err != nil {
			return nil, err
		}

		opt, err := resolveOption(module, table, meta, user)
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}
	return opts, nil
}

func optionMeta(module string, table SymbolTable, name string) (OptionMeta, error) {
	meta := OptionMeta{Name: name}

	help, ok := lookupString(table, name+amod.SuffixHelp)
	if !ok {
		return meta, loadErrorf(module, "doesn't define any help message for option %q", name)
	}
	meta.Help = help

	t, hasType := lookupType(table, name+amod.SuffixType)
	at, hasArrayType := lookupType(table, name+amod.SuffixArrayType)
	if !hasType && !hasArrayType {
		return meta, loadErrorf(module, "doesn't define any type for option %q", name)
	}
	meta.Type, meta.ArrayType = t, at
	return meta, nil
}

func resolveOption(module string, table SymbolTable, meta OptionMeta, user UserOptions) (Option, error) {
	opt := Option{OptionMeta: meta}
	name := meta.Name

	if s, ok := user.Scalars[name]; ok {
		if meta.Type == amod.TypeNone {
			return opt, loadErrorf(module, "expects an array for option %q", name)
		}
		v, err := amod.ParseScalar(meta.Type, s)
		if err != nil {
			return opt, &LoadError{Module: module, Msg: fmt.Sprintf("could not parse value of %q", name), Err: err}
		}
		opt.Value = v
		return opt, nil
	}

	if elems, ok := user.Arrays[name]; ok {
		if meta.ArrayType == amod.TypeNone {
			return opt, loadErrorf(module, "does not accept an array for option %q", name)
		}
		v, idx, err := amod.ParseArray(meta.ArrayType, elems)
		if err != nil {
			if idx < 0 {
				return opt, &LoadError{Module: module, Msg: fmt.Sprintf("could not parse value of %q", name), Err: err}
			}
			return opt, &LoadError{
				Module: module,
				Msg:    fmt.Sprintf("could not parse value of element of index %d of %q", idx, name),
				Err:    err,
			}
		}
		opt.Value = v
		return opt, nil
	}

	opt.Default = true
	if meta.Type != amod.TypeNone {
		if v, ok := lookupValue(table, name+amod.SuffixDefault); ok && !v.IsArray() && v.Type() == meta.Type {
			opt.Value = v
			return opt, nil
		}
	}
	if meta.ArrayType != amod.TypeNone {
		if v, ok := lookupValue(table, name+amod.SuffixArrayDefault); ok && v.IsArray() && v.Type() == meta.ArrayType {
			if size, ok := lookupInt(table, name+amod.SuffixArrayDefaultSize); ok {
				v = amod.Truncate(v, size)
			}
			opt.Value = v
			return opt, nil
		}
	}
	return opt, loadErrorf(module, "requires option %q to be set", name)
}

func lookupStrings(table SymbolTable, name string) ([]string, error) {
	v, ok := table.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("symbol %q not found", name)
	}
	switch s := v.(type) {
	case []string:
		return s, nil
	case *[]string:
		return *s, nil
	default:
		return nil, fmt.Errorf("symbol %q has type %T, expected []string", name, v)
	}
}

func lookupString(table SymbolTable, name string) (string, bool) {
	v, ok := table.Lookup(name)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case *string:
		return *s, true
	}
	return "", false
}

func lookupType(table SymbolTable, name string) (amod.Type, bool) {
	v, ok := table.Lookup(name)
	if !ok {
		return amod.TypeNone, false
	}
	switch t := v.(type) {
	case amod.Type:
		return t, t != amod.TypeNone
	case *amod.Type:
		return *t, *t != amod.TypeNone
	}
	return amod.TypeNone, false
}

func lookupValue(table SymbolTable, name string) (amod.Value, bool) {
	v, ok := table.Lookup(name)
	if !ok {
		return nil, false
	}
	val, ok := v.(amod.Value)
	return val, ok
}

func lookupInt(table SymbolTable, name string) (int, bool) {
	v, ok := table.Lookup(name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case uint:
		return int(n), true
	case uint32:
		return int(n), true
	case *int:
		return *n, true
	}
	return 0, false
}
