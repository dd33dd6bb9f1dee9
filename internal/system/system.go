package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/adaptyst/adaptyst/internal/conn"
	"github.com/adaptyst/adaptyst/internal/infrastructure/monitoring"
	"github.com/adaptyst/adaptyst/internal/infrastructure/resilience"
	"github.com/adaptyst/adaptyst/internal/infrastructure/tracing"
	"github.com/adaptyst/adaptyst/internal/module"
	"github.com/adaptyst/adaptyst/internal/output"
	"github.com/adaptyst/adaptyst/internal/shared/id"
	"github.com/adaptyst/adaptyst/internal/terminal"
	"github.com/adaptyst/adaptyst/internal/topology"
	"github.com/adaptyst/adaptyst/internal/workflow"
	"github.com/adaptyst/adaptyst/pkg/amod"
)

// DefinitionCopy is the name of the copied system definition in the
// results directory.
const DefinitionCopy = "system.yml"

var ErrNoEntities = errors.New("the system has no entities")

// Config holds everything a System needs.
type Config struct {
	Definition *topology.Definition
	// DefinitionFile is copied into Root when set.
	DefinitionFile string
	Root           *output.Path
	Loader         module.Loader
	// Terminal may be nil, in which case module printing fails with
	// ErrTerminalNotInitialised.
	Terminal *terminal.Terminal
	// Workflow is run by every in-place entity. It may be nil.
	Workflow       workflow.Workflow
	TmpDir         string
	LocalConfigDir string
	BufSize        int
	ListenTimeout  time.Duration
	// Sources redirects the source path list away from src.zip.
	Sources  *output.SourceDestination
	Breakers resilience.Settings
	Metrics  *monitoring.Metrics
	Tracer   *tracing.Tracer
	Session  id.SessionID
	Logger   *zap.Logger
	Events   func(Event)
}

// System is the whole profiled setup: entities, their nodes and modules.
type System struct {
	root           *output.Path
	terminal       *terminal.Terminal
	workflow       workflow.Workflow
	tmpDir         string
	localConfigDir string
	bufSize        int
	listenTimeout  time.Duration
	sources        *output.SourceDestination

	registry *module.Registry
	api      *api
	breakers *resilience.Group
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	ownTrace bool
	session  id.SessionID
	logger   *zap.Logger
	events   func(Event)

	entities []*Entity
	byName   map[string]*Entity

	mu       sync.Mutex
	warnings error

	closeOnce sync.Once
}

// New loads every module of the definition, creates the output tree and
// initialises the modules. Load errors are fatal; modules whose init fails
// are dropped and reported through Warnings.
func New(cfg Config) (*System, error) {
	if cfg.Definition == nil || len(cfg.Definition.Entities) == 0 {
		return nil, ErrNoEntities
	}
	if cfg.Root == nil {
		return nil, errors.New("no output directory")
	}
	if cfg.Loader == nil {
		return nil, errors.New("no module loader")
	}

	s := &System{
		root:           cfg.Root,
		terminal:       cfg.Terminal,
		workflow:       cfg.Workflow,
		tmpDir:         cfg.TmpDir,
		localConfigDir: cfg.LocalConfigDir,
		bufSize:        cfg.BufSize,
		listenTimeout:  cfg.ListenTimeout,
		sources:        cfg.Sources,
		registry:       module.NewRegistry(),
		metrics:        cfg.Metrics,
		tracer:         cfg.Tracer,
		session:        cfg.Session,
		logger:         cfg.Logger,
		events:         cfg.Events,
		byName:         map[string]*Entity{},
	}
	s.api = &api{sys: s}
	s.applyDefaults(cfg)

	span, _ := s.tracer.StartSpan(context.Background(), "system.new")
	defer s.tracer.Submit(span)

	if cfg.DefinitionFile != "" {
		if err := copyFile(cfg.DefinitionFile, filepath.Join(s.root.Name(), DefinitionCopy)); err != nil {
			span.SetError(err)
			return nil, fmt.Errorf("could not copy the system definition: %w", err)
		}
	}
	_ = s.root.SetMetadata("session", s.session.String())

	for _, spec := range cfg.Definition.Entities {
		if err := s.build(spec, cfg.Loader); err != nil {
			span.SetError(err)
			return nil, err
		}
	}

	s.initModules()
	for _, e := range s.entities {
		e.countProfiling()
	}

	s.logger.Info("system ready",
		zap.Int("entities", len(s.entities)),
		zap.Int("modules", s.registry.Len()))
	return s, nil
}

func (s *System) applyDefaults(cfg Config) {
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("system")
	if s.session == "" {
		s.session = id.NewSessionID()
	}
	if s.metrics == nil {
		s.metrics = monitoring.NewMetrics()
	}
	if s.tracer == nil {
		s.tracer = tracing.New(s.session, s.logger)
		s.ownTrace = true
	}
	if s.bufSize <= 0 {
		s.bufSize = conn.DefaultBufSize
	}
	if s.listenTimeout <= 0 {
		s.listenTimeout = time.Second
	}
	if s.tmpDir == "" {
		s.tmpDir = os.TempDir()
	}
	settings := cfg.Breakers
	if settings.ReadyToTrip == nil {
		settings = resilience.DefaultSettings()
	}
	s.breakers = resilience.NewGroup(settings)
}

// build creates an entity, its nodes and modules.
func (s *System) build(spec topology.Entity, loader module.Loader) error {
	dir, err := s.root.Join(spec.Name)
	if err != nil {
		return fmt.Errorf("could not create the directory of entity %q: %w", spec.Name, err)
	}

	e := newEntity(s, spec, dir)
	if err := os.MkdirAll(e.tmpDir, 0o755); err != nil {
		return fmt.Errorf("could not create the temporary directory of entity %q: %w", spec.Name, err)
	}
	dir.StageMetadata("access_mode", spec.AccessMode.String())
	dir.StageMetadata("processing_threads", spec.ProcessingThreads)
	if err := dir.SaveMetadata(); err != nil {
		return err
	}

	for _, nspec := range spec.Nodes {
		n := newNode(nspec.Name, e)
		if n.dir, err = dir.Join(nspec.Name); err != nil {
			return fmt.Errorf("could not create the directory of node %q: %w", nspec.Name, err)
		}

		for _, mspec := range nspec.AllModules() {
			m, err := module.New(mspec.Name, loader, mspec.Options, s.logger)
			if err != nil {
				return fmt.Errorf("node %q of entity %q: %w", nspec.Name, spec.Name, err)
			}
			mdir, err := n.dir.Join(mspec.Name)
			if err != nil {
				return fmt.Errorf("could not create the directory of module %q: %w", mspec.Name, err)
			}
			s.registry.Add(m)
			m.SetHost(&binding{node: n, dir: mdir})
			n.modules = append(n.modules, m)
		}
		e.addNode(n)
	}

	for _, edge := range spec.Edges {
		c := NodeConnection{Name: edge.Name, From: e.byName[edge.From], To: e.byName[edge.To]}
		if c.From == nil || c.To == nil {
			return fmt.Errorf("edge %q of entity %q refers to an unknown node", edge.Name, spec.Name)
		}
		c.connect()
		e.connections = append(e.connections, c)
	}

	s.entities = append(s.entities, e)
	s.byName[e.name] = e
	return nil
}

// initModules runs every init function. Failed modules are dropped.
func (s *System) initModules() {
	for _, e := range s.entities {
		for _, n := range e.nodes {
			for _, m := range n.Modules() {
				b := m.Host().(*binding)
				b.inInit.Store(true)
				err := m.Init(s.api)
				b.inInit.Store(false)

				if err == nil {
					s.metrics.RecordModuleLoaded(m.Name())
					continue
				}

				s.registry.Remove(m.ID())
				n.remove(m)
				s.closeModule(m)
				s.warn(err)
				s.metrics.RecordModuleFailed(m.Name(), "init")
				s.emit(Event{Kind: EventModuleFailed, Entity: e.name, Module: m.Name(), Message: err.Error()})
				s.logger.Warn("module dropped", zap.String("module", m.Name()), zap.Error(err))
				e.print(fmt.Sprintf("Module %q of node %q could not be initialised and will not be used", m.Name(), n.name), true, true)
			}
		}
	}
}

func (s *System) warn(err error) {
	s.mu.Lock()
	s.warnings = multierr.Append(s.warnings, err)
	s.mu.Unlock()
}

// Warnings returns the combined non-fatal failures of the session.
func (s *System) Warnings() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warnings
}

// Process runs every entity concurrently and waits for all of them.
// Cancelling ctx terminates running workflows.
func (s *System) Process(ctx context.Context) error {
	span, ctx := s.tracer.StartSpan(ctx, "system.process")
	defer s.tracer.Submit(span)

	// One entity failing to launch leaves the others running.
	archive := s.sources == nil
	var g errgroup.Group
	for _, e := range s.entities {
		e := e
		g.Go(func() error {
			return e.Run(ctx, s.workflow, archive)
		})
	}
	err := g.Wait()
	if err != nil {
		span.SetError(err)
	}

	var failures error
	for _, e := range s.entities {
		failures = multierr.Append(failures, e.Failures())
	}
	if failures != nil {
		s.warn(failures)
		if s.terminal != nil {
			s.terminal.Print("Not all modules succeeded", false, true)
			for _, f := range multierr.Errors(failures) {
				s.terminal.Print(f.Error(), true, true)
			}
		}
	}

	if s.sources != nil {
		if werr := s.sources.WriteList(s.SourcePaths()); werr != nil {
			err = multierr.Append(err, fmt.Errorf("could not write the source path list: %w", werr))
		}
	}
	return err
}

// SourcePaths returns the source paths registered by every entity.
func (s *System) SourcePaths() []string {
	set := map[string]struct{}{}
	for _, e := range s.entities {
		for _, p := range e.SourcePaths() {
			set[p] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// Close runs every module's close function and releases the tracer.
func (s *System) Close() {
	s.closeOnce.Do(func() {
		s.closeModules()
		if s.ownTrace {
			s.tracer.Close()
		}
	})
}

func (s *System) closeModules() {
	for _, m := range s.registry.All() {
		s.closeModule(m)
	}
}

// closeModule runs m's close function, turning a panic into a warning.
func (s *System) closeModule(m *module.Module) {
	defer func() {
		if p := recover(); p != nil {
			s.warn(&module.CallError{Module: m.Name(), Stage: "close", Msg: fmt.Sprint(p)})
		}
	}()
	m.Close()
}

func (s *System) Registry() *module.Registry   { return s.registry }
func (s *System) API() amod.API                { return s.api }
func (s *System) Session() id.SessionID        { return s.session }
func (s *System) Root() *output.Path           { return s.root }
func (s *System) Metrics() *monitoring.Metrics { return s.metrics }
func (s *System) Tracer() *tracing.Tracer      { return s.tracer }
func (s *System) Breakers() *resilience.Group  { return s.breakers }
func (s *System) Entities() []*Entity          { return append([]*Entity(nil), s.entities...) }
func (s *System) Terminal() *terminal.Terminal { return s.terminal }
func (s *System) Workflow() workflow.Workflow  { return s.workflow }

// Entity returns the entity called name.
func (s *System) Entity(name string) (*Entity, bool) {
	e, ok := s.byName[name]
	return e, ok
}

// Status is a snapshot of the whole session.
type Status struct {
	Session  string            `json:"session"`
	Entities []EntityStatus    `json:"entities"`
	Breakers map[string]string `json:"breakers"`
	Warnings []string          `json:"warnings,omitempty"`
}

// Status returns a snapshot of every entity.
func (s *System) Status() Status {
	st := Status{
		Session:  s.session.String(),
		Breakers: map[string]string{},
	}
	for _, e := range s.entities {
		st.Entities = append(st.Entities, e.Status())
	}
	for name, state := range s.breakers.States() {
		st.Breakers[name] = state.String()
	}
	for _, w := range multierr.Errors(s.Warnings()) {
		st.Warnings = append(st.Warnings, w.Error())
	}
	return st
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
