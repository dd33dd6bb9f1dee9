package amod

// Symbols is the table a module exports, keyed by symbol name.
type Symbols map[string]any

// Well-known symbol names.
const (
	SymTags      = "tags"
	SymOptions   = "options"
	SymLogTypes  = "log_types"
	SymInjection = "injection"

	SymInit        = "adaptyst_module_init"
	SymProcess     = "adaptyst_module_process"
	SymClose       = "adaptyst_module_close"
	SymRegionStart = "adaptyst_region_start"
	SymRegionEnd   = "adaptyst_region_end"
)

// Per-option symbol suffixes.
const (
	SuffixHelp             = "_help"
	SuffixType             = "_type"
	SuffixArrayType        = "_array_type"
	SuffixDefault          = "_default"
	SuffixArrayDefault     = "_array_default"
	SuffixArrayDefaultSize = "_array_default_size"
)

// Lifecycle function signatures.
type (
	InitFunc    func(id ID, api API) bool
	ProcessFunc func(id ID, graph string) bool
	CloseFunc   func(id ID)
	RegionFunc  func(id ID, name, partID, timestamp string) bool
)

// Lookup implements a symbol table over the map.
func (s Symbols) Lookup(name string) (any, bool) {
	v, ok := s[name]
	return v, ok
}
