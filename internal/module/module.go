package module

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/adaptyst/adaptyst/pkg/amod"
	"go.uber.org/zap"
)

// Host is the part of the session a module is attached to.
type Host interface {
	NodeID() string
}

// Module is one loaded measurement module.
type Module struct {
	name    string
	dir     string
	logger  *zap.Logger
	options []Option
	index   map[string]int
	tags    map[string]struct{}
	logs    []string

	injection string

	init        amod.InitFunc
	process     amod.ProcessFunc
	close       amod.CloseFunc
	regionStart amod.RegionFunc
	regionEnd   amod.RegionFunc

	id   amod.ID
	host Host

	mu          sync.Mutex
	willProfile bool
	ctx         any
	errMsg      string
	channel     amod.Channel
	result      chan error
}

// New loads a module through loader and marshals its options.
func New(name string, loader Loader, user UserOptions, logger *zap.Logger) (*Module, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	table, err := loader.Open(name)
	if err != nil {
		return nil, &LoadError{Module: name, Msg: "could not be loaded", Err: err}
	}

	m := &Module{
		name:   name,
		dir:    loader.Dir(name),
		logger: logger.With(zap.String("module", name)),
		tags:   map[string]struct{}{},
		index:  map[string]int{},
	}

	tags, err := lookupStrings(table, amod.SymTags)
	if err != nil {
		return nil, loadErrorf(name, "doesn't define its tags")
	}
	for _, tag := range tags {
		m.tags[tag] = struct{}{}
	}

	if m.options, err = marshalOptions(name, table, user); err != nil {
		return nil, err
	}
	for i, opt := range m.options {
		m.index[opt.Name] = i
	}

	if logs, err := lookupStrings(table, amod.SymLogTypes); err == nil && len(logs) > 0 {
		m.logs = logs
	} else {
		m.logs = []string{"General"}
	}

	m.injection, _ = lookupString(table, amod.SymInjection)

	if err := m.bindFuncs(table); err != nil {
		return nil, err
	}

	m.logger.Debug("module loaded",
		zap.Strings("tags", m.Tags()),
		zap.Int("options", len(m.options)),
		zap.Bool("injectable", m.Injectable()))
	return m, nil
}

func (m *Module) bindFuncs(table SymbolTable) error {
	var ok bool
	if m.init, ok = initFunc(table); !ok {
		return loadErrorf(m.name, "doesn't define %s", amod.SymInit)
	}
	if m.process, ok = processFunc(table); !ok {
		return loadErrorf(m.name, "doesn't define %s", amod.SymProcess)
	}
	if m.close, ok = closeFunc(table); !ok {
		return loadErrorf(m.name, "doesn't define %s", amod.SymClose)
	}
	m.regionStart, _ = regionFunc(table, amod.SymRegionStart)
	m.regionEnd, _ = regionFunc(table, amod.SymRegionEnd)
	return nil
}

func (m *Module) Name() string { return m.name }
func (m *Module) Dir() string  { return m.dir }
func (m *Module) ID() amod.ID  { return m.id }
func (m *Module) Host() Host   { return m.host }

// LogTypes returns the log types the module writes, "General" by default.
func (m *Module) LogTypes() []string { return append([]string(nil), m.logs...) }

// SetHost attaches the module to its node. It must be called before Init.
func (m *Module) SetHost(h Host) { m.host = h }

// Tags returns the module's tags, sorted.
func (m *Module) Tags() []string {
	out := make([]string, 0, len(m.tags))
	for tag := range m.tags {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func (m *Module) HasTag(tag string) bool {
	_, ok := m.tags[tag]
	return ok
}

// Options returns the resolved options in declaration order.
func (m *Module) Options() []Option {
	return append([]Option(nil), m.options...)
}

// Option returns the value of a declared option.
func (m *Module) Option(key string) (amod.Value, bool) {
	i, ok := m.index[key]
	if !ok {
		return nil, false
	}
	return m.options[i].Value, true
}

// Injectable reports whether the module ships a library to be loaded inside
// the workflow.
func (m *Module) Injectable() bool { return m.injection != "" }

// InjectionPath returns the absolute path of the injected library.
func (m *Module) InjectionPath() string {
	if m.injection == "" || m.dir == "" || filepath.IsAbs(m.injection) {
		return m.injection
	}
	return filepath.Join(m.dir, m.injection)
}

func (m *Module) SetWillProfile(v bool) {
	m.mu.Lock()
	m.willProfile = v
	m.mu.Unlock()
}

func (m *Module) WillProfile() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.willProfile
}

func (m *Module) SetContext(ctx any) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()
}

func (m *Module) Context() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

// SetError stores the module's own description of its last failure.
func (m *Module) SetError(msg string) {
	m.mu.Lock()
	m.errMsg = msg
	m.mu.Unlock()
}

// LastError returns the message set through SetError.
func (m *Module) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errMsg
}

// SetChannel gives the module its end of the injection channel.
func (m *Module) SetChannel(c amod.Channel) {
	m.mu.Lock()
	m.channel = c
	m.mu.Unlock()
}

func (m *Module) Channel() amod.Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channel
}

// Init runs the module's init function. A panic is reported as an init
// failure.
func (m *Module) Init(api amod.API) (err error) {
	m.logger.Debug("initialising module", zap.Uint32("module_id", uint32(m.id)))
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("module panicked while initialising", zap.Any("panic", r))
			err = &CallError{Module: m.name, Stage: "init", Msg: fmt.Sprint("panic: ", r)}
		}
	}()
	if !m.init(m.id, api) {
		return &CallError{Module: m.name, Stage: "init", Msg: m.LastError()}
	}
	return nil
}

// Process starts the module's processing function in its own goroutine.
func (m *Module) Process(graph string) {
	ch := make(chan error, 1)
	m.mu.Lock()
	m.result = ch
	m.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("module panicked while processing", zap.Any("panic", r))
				ch <- &CallError{Module: m.name, Stage: "processing", Msg: "panic"}
			}
		}()
		if m.process(m.id, graph) {
			ch <- nil
			return
		}
		ch <- &CallError{Module: m.name, Stage: "processing", Msg: m.LastError()}
	}()
}

// Wait blocks until the processing started by Process has finished.
func (m *Module) Wait() error {
	m.mu.Lock()
	ch := m.result
	m.mu.Unlock()
	if ch == nil {
		return ErrNotProcessing
	}

	err := <-ch
	ch <- err
	return err
}

// Close runs the module's close function.
func (m *Module) Close() {
	m.close(m.id)
	m.logger.Debug("module closed", zap.Uint32("module_id", uint32(m.id)))
}

// HandlesRegions reports whether the module listens to region events.
func (m *Module) HandlesRegions() bool {
	return m.regionStart != nil || m.regionEnd != nil
}

// RegionStart forwards a region start. Modules without a handler accept
// every region.
func (m *Module) RegionStart(name, partID, timestamp string) bool {
	if m.regionStart == nil {
		return true
	}
	return m.regionStart(m.id, name, partID, timestamp)
}

// RegionEnd forwards a region end.
func (m *Module) RegionEnd(name, partID, timestamp string) bool {
	if m.regionEnd == nil {
		return true
	}
	return m.regionEnd(m.id, name, partID, timestamp)
}

func initFunc(table SymbolTable) (amod.InitFunc, bool) {
	v, _ := table.Lookup(amod.SymInit)
	switch f := v.(type) {
	case amod.InitFunc:
		return f, f != nil
	case func(amod.ID, amod.API) bool:
		return f, f != nil
	}
	return nil, false
}

func processFunc(table SymbolTable) (amod.ProcessFunc, bool) {
	v, _ := table.Lookup(amod.SymProcess)
	switch f := v.(type) {
	case amod.ProcessFunc:
		return f, f != nil
	case func(amod.ID, string) bool:
		return f, f != nil
	}
	return nil, false
}

func closeFunc(table SymbolTable) (amod.CloseFunc, bool) {
	v, _ := table.Lookup(amod.SymClose)
	switch f := v.(type) {
	case amod.CloseFunc:
		return f, f != nil
	case func(amod.ID):
		return f, f != nil
	}
	return nil, false
}

func regionFunc(table SymbolTable, name string) (amod.RegionFunc, bool) {
	v, _ := table.Lookup(name)
	switch f := v.(type) {
	case amod.RegionFunc:
		return f, f != nil
	case func(amod.ID, string, string, string) bool:
		return f, f != nil
	}
	return nil, false
}
