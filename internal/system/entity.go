package system

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/adaptyst/adaptyst/internal/conn"
	"github.com/adaptyst/adaptyst/internal/infrastructure/monitoring"
	"github.com/adaptyst/adaptyst/internal/inject"
	"github.com/adaptyst/adaptyst/internal/module"
	"github.com/adaptyst/adaptyst/internal/output"
	"github.com/adaptyst/adaptyst/internal/process"
	"github.com/adaptyst/adaptyst/internal/topology"
	"github.com/adaptyst/adaptyst/internal/workflow"
	"github.com/adaptyst/adaptyst/pkg/amod"
)

// WorkflowState is the lifecycle state of an entity's workflow.
type WorkflowState string

const (
	StateNotStarted WorkflowState = "not_started"
	StateLaunched   WorkflowState = "launched"
	StateRunning    WorkflowState = "running"
	StateFinished   WorkflowState = "finished"
)

var (
	ErrNotLaunched = errors.New("workflow has not been launched")
	ErrNotGated    = errors.New("workflow is not waiting for readiness notifications")
	ErrTooManyCPUs = errors.New("not enough CPU cores for the requested processing threads")
	ErrSingleCPU   = errors.New("at least 2 CPU cores are required to compute a CPU mask")
)

// Entity is one profiled workflow and the nodes measuring it.
type Entity struct {
	name              string
	accessMode        topology.AccessMode
	processingThreads uint
	workflowTTY       bool
	directingNode     string

	sys    *System
	logger *zap.Logger
	dir    *output.Path
	tmpDir string

	nodes       []*Node
	byName      map[string]*Node
	connections []NodeConnection

	numCPU func() int

	maskMu   sync.Mutex
	maskDone bool
	mask     string
	maskErr  error

	srcMu   sync.Mutex
	sources map[string]struct{}

	// barrier
	mu         sync.Mutex
	state      WorkflowState
	workflow   *process.Process
	info       *amod.ProfileInfo
	profiling  int
	notified   int
	counted    bool
	ready      map[*module.Module]struct{}
	gated      bool
	abandoned  bool
	startNS    uint64
	startMS    uint64
	endNS      uint64
	endMS      uint64
	timer      *monitoring.Timer
	exit       *int
	injections []injection

	waitMu   sync.Mutex
	finished bool
	exitCode int
	waitErr  error

	failMu   sync.Mutex
	failures error

	listenerDone chan struct{}
	pumps        sync.WaitGroup
}

type injection struct {
	module *module.Module
	line   inject.ModuleLine
}

func newEntity(sys *System, spec topology.Entity, dir *output.Path) *Entity {
	return &Entity{
		name:              spec.Name,
		accessMode:        spec.AccessMode,
		processingThreads: spec.ProcessingThreads,
		workflowTTY:       spec.WorkflowTTY,
		directingNode:     spec.DirectingNode,
		sys:               sys,
		logger:            sys.logger.With(zap.String("entity", spec.Name)),
		dir:               dir,
		tmpDir:            filepath.Join(sys.tmpDir, spec.Name),
		byName:            map[string]*Node{},
		numCPU:            runtime.NumCPU,
		sources:           map[string]struct{}{},
		ready:             map[*module.Module]struct{}{},
		state:             StateNotStarted,
	}
}

func (e *Entity) Name() string                    { return e.name }
func (e *Entity) AccessMode() topology.AccessMode { return e.accessMode }
func (e *Entity) Dir() *output.Path               { return e.dir }
func (e *Entity) TmpDir() string                  { return e.tmpDir }
func (e *Entity) Nodes() []*Node                  { return append([]*Node(nil), e.nodes...) }

// Node returns the node called name.
func (e *Entity) Node(name string) (*Node, bool) {
	n, ok := e.byName[name]
	return n, ok
}

// Connections returns the entity's edges.
func (e *Entity) Connections() []NodeConnection {
	return append([]NodeConnection(nil), e.connections...)
}

// IsDirectingNode reports whether n directs the entity.
func (e *Entity) IsDirectingNode(n *Node) bool {
	return n != nil && n.name == e.directingNode
}

// Modules returns every module of every node.
func (e *Entity) Modules() []*module.Module {
	var mods []*module.Module
	for _, n := range e.nodes {
		mods = append(mods, n.modules...)
	}
	return mods
}

func (e *Entity) addNode(n *Node) {
	e.nodes = append(e.nodes, n)
	e.byName[n.name] = n
}

// State returns the workflow state.
func (e *Entity) State() WorkflowState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// hasWorkflow reports whether the coordinator runs the workflow itself.
func (e *Entity) hasWorkflow() bool { return e.accessMode == topology.InPlace }

// countProfiling fixes the number of notifications the barrier waits for.
// It runs once init has finished. Notifications sent during init only count
// for modules that survived it and will profile.
func (e *Entity) countProfiling() {
	total := 0
	kept := map[*module.Module]struct{}{}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, n := range e.nodes {
		total += n.ProfilingModules()
		for _, m := range n.modules {
			if _, ok := e.ready[m]; ok && m.WillProfile() {
				kept[m] = struct{}{}
			}
		}
	}
	e.profiling = total
	e.ready = kept
	e.notified = len(kept)
	e.counted = true
}

// ProfilingModules returns the number of modules the barrier waits for.
func (e *Entity) ProfilingModules() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profiling
}

// ==================== Profile info ====================

func (e *Entity) SetProfileInfo(info amod.ProfileInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.info = &info
}

// ProfileInfo returns a copy of the profile info, or nil if unset.
func (e *Entity) ProfileInfo() *amod.ProfileInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.info == nil {
		return nil
	}
	info := *e.info
	return &info
}

// ==================== Barrier ====================

// ProfileNotify records that one profiling module is ready. The workflow is
// released when every profiling module has notified.
func (e *Entity) ProfileNotify() error { return e.notify(nil) }

// notify records a notification sent by m, or by an unnamed caller when m
// is nil. Each module counts once.
func (e *Entity) notify(m *module.Module) error {
	if !e.hasWorkflow() {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.sys.metrics.RecordProfileNotify(e.name)

	if m != nil {
		if _, dup := e.ready[m]; dup {
			return ErrNotGated
		}
	}

	switch e.state {
	case StateNotStarted:
		if !e.counted {
			// Still in init: countProfiling settles the count later.
			if m == nil || !m.WillProfile() {
				return ErrNotGated
			}
		} else if e.notified >= e.profiling {
			return ErrNotGated
		}
	case StateLaunched:
		if !e.gated || e.notified >= e.profiling {
			return ErrNotGated
		}
	default:
		return ErrNotGated
	}

	e.notified++
	if m != nil {
		e.ready[m] = struct{}{}
	}
	e.logger.Debug("readiness recorded",
		zap.String("state", string(e.state)),
		zap.Int("notified", e.notified),
		zap.Int("expected", e.profiling))

	if e.state == StateLaunched && e.notified == e.profiling {
		return e.releaseLocked()
	}
	return nil
}

// withdraw takes a profiling module that returned without notifying out of
// the barrier. The workflow is released once the remaining profiling
// modules have all notified, and terminated when none is left.
func (e *Entity) withdraw(m *module.Module) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.ready[m]; ok || e.state != StateLaunched || !e.gated || e.abandoned {
		return
	}
	e.profiling--
	e.logger.Warn("profiling module returned without notifying",
		zap.String("module", m.Name()),
		zap.Int("notified", e.notified),
		zap.Int("expected", e.profiling))
	e.print(fmt.Sprintf("Module %q of entity %q stopped before it was ready to profile", m.Name(), e.name), true, true)

	switch {
	case e.profiling <= 0:
		e.abandonLocked()
	case e.notified >= e.profiling:
		if err := e.releaseLocked(); err != nil {
			e.logger.Error("release after withdrawal failed", zap.Error(err))
			e.abandonLocked()
		}
	}
}

func (e *Entity) releaseLocked() error {
	if err := e.workflow.Notify(); err != nil {
		return fmt.Errorf("could not release the workflow: %w", err)
	}
	e.markRunningLocked()
	return nil
}

func (e *Entity) markRunningLocked() {
	e.state = StateRunning
	if ns, err := inject.Now(); err == nil {
		e.startNS = ns
	}
	e.startMS = uint64(time.Now().UnixMilli())
	e.timer = monitoring.NewTimer(e.sys.metrics, e.name)
	e.sys.metrics.RecordBarrierRelease(e.name, e.gated)
	e.sys.emit(Event{Kind: EventWorkflowReleased, Entity: e.name})
	e.logger.Info("workflow running", zap.Bool("gated", e.gated))
}

// ProfileWait blocks until the workflow exits and returns its exit code.
// Every caller gets the same result; the first one reaps the child.
func (e *Entity) ProfileWait() (int, error) {
	if !e.hasWorkflow() {
		return -1, nil
	}

	e.mu.Lock()
	proc := e.workflow
	e.mu.Unlock()
	if proc == nil {
		return -1, ErrNotLaunched
	}

	e.waitMu.Lock()
	defer e.waitMu.Unlock()

	if e.finished {
		return e.exitCode, e.waitErr
	}

	code, err := proc.Join()

	e.mu.Lock()
	e.state = StateFinished
	if ns, nerr := inject.Now(); nerr == nil {
		e.endNS = ns
	}
	e.endMS = uint64(time.Now().UnixMilli())
	e.exit = &code
	timer := e.timer
	e.mu.Unlock()

	e.finished = true
	e.exitCode = code
	e.waitErr = err

	var elapsed time.Duration
	if timer != nil {
		elapsed = timer.Stop(code)
	}
	e.reportFinish(code, err, elapsed)
	return code, err
}

func (e *Entity) reportFinish(code int, err error, elapsed time.Duration) {
	e.sys.emit(Event{Kind: EventWorkflowFinished, Entity: e.name, Message: strconv.Itoa(code)})

	e.mu.Lock()
	e.dir.StageMetadata("exit_code", code)
	e.dir.StageMetadata("workflow_start_time", e.startMS)
	e.dir.StageMetadata("workflow_end_time", e.endMS)
	e.mu.Unlock()
	if serr := e.dir.SaveMetadata(); serr != nil {
		e.logger.Warn("could not save entity metadata", zap.Error(serr))
	}

	switch {
	case err != nil:
		e.logger.Error("workflow could not be joined", zap.Error(err))
		e.print(fmt.Sprintf("The workflow of entity %q could not be waited for: %v", e.name, err), false, true)
	case code == 0:
		e.logger.Info("workflow finished", zap.Duration("elapsed", elapsed))
		e.print(fmt.Sprintf("The workflow of entity %q has finished", e.name), false, false)
	default:
		e.logger.Warn("workflow finished with an error", zap.Int("exit_code", code))
		e.print(fmt.Sprintf("The workflow of entity %q has finished with exit code %d", e.name, code), false, true)
		if desc := process.DescribeExitCode(code); desc != "" {
			e.print(desc, true, true)
		}
		if code == process.ErrorStartProfile || code > 128 {
			e.print("The workflow appears to have crashed abnormally. "+
				"Check the workflow logs in "+e.logDir()+" for details.", true, true)
		}
	}
}

// print writes to the terminal and the entity's general log.
func (e *Entity) print(msg string, sub, isErr bool) {
	term := e.sys.terminal
	if term == nil {
		return
	}
	term.Print(msg, sub, isErr)
	_ = term.PrintFor(e.name, "General", msg, sub, isErr)
}

// IsWorkflowRunning reports whether the workflow has been released and has
// not been waited for.
func (e *Entity) IsWorkflowRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateRunning
}

// WorkflowStartTime returns the release time in monotonic nanoseconds.
func (e *Entity) WorkflowStartTime() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startNS
}

// WorkflowEndTime returns the exit time in monotonic nanoseconds.
func (e *Entity) WorkflowEndTime() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.endNS
}

// ==================== CPU mask ====================

// CPUMask returns the entity's CPU mask, computing it on first use.
func (e *Entity) CPUMask() (string, error) {
	e.maskMu.Lock()
	defer e.maskMu.Unlock()

	if !e.maskDone {
		e.mask, e.maskErr = cpuMask(e.numCPU(), e.processingThreads)
		e.maskDone = true
		if e.maskErr != nil {
			e.print(fmt.Sprintf("Could not compute the CPU mask of entity %q: %v", e.name, e.maskErr), true, true)
		} else {
			e.logger.Debug("cpu mask computed", zap.String("mask", e.mask))
		}
	}
	return e.mask, e.maskErr
}

// cpuMask splits nproc cores between profilers ('p') and the workflow
// ('c'). The first two cores are left to the system. threads == 0 lets
// everyone use every core ('b').
func cpuMask(nproc int, threads uint) (string, error) {
	if nproc < 1 {
		nproc = 1
	}
	if threads == 0 {
		return repeat('b', nproc), nil
	}
	if nproc >= 4 && int(threads) > nproc-3 {
		return "", fmt.Errorf("%w: %d requested, at most %d available", ErrTooManyCPUs, threads, nproc-3)
	}

	switch nproc {
	case 1:
		return "", ErrSingleCPU
	case 2:
		return "pc", nil
	case 3:
		return "ppc", nil
	}

	rest := nproc - 2 - int(threads)
	return "  " + repeat('p', int(threads)) + repeat('c', rest), nil
}

func repeat(c byte, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = c
	}
	return string(b)
}

// workflowCPUs returns the affinity for the workflow. Only entities whose
// modules asked for the mask get pinned.
func (e *Entity) workflowCPUs() process.CPUConfig {
	e.maskMu.Lock()
	defer e.maskMu.Unlock()
	if !e.maskDone || e.maskErr != nil {
		return process.CPUConfig{}
	}
	return process.ParseCPUMask(e.mask)
}

// ==================== Sources ====================

// AddSourcePaths registers files or patterns to archive with the results.
func (e *Entity) AddSourcePaths(paths []string) {
	e.srcMu.Lock()
	defer e.srcMu.Unlock()
	for _, p := range paths {
		if p != "" {
			e.sources[p] = struct{}{}
		}
	}
}

// SourcePaths returns the registered source paths, sorted.
func (e *Entity) SourcePaths() []string {
	e.srcMu.Lock()
	defer e.srcMu.Unlock()
	return sortedKeys(e.sources)
}

// ==================== Run ====================

// Failures returns the combined module failures of the last run.
func (e *Entity) Failures() error {
	e.failMu.Lock()
	defer e.failMu.Unlock()
	return e.failures
}

func (e *Entity) fail(m *module.Module, stage string, err error) {
	e.failMu.Lock()
	e.failures = multierr.Append(e.failures, err)
	e.failMu.Unlock()

	e.sys.metrics.RecordModuleFailed(m.Name(), stage)
	e.sys.emit(Event{Kind: EventModuleFailed, Entity: e.name, Module: m.Name(), Message: err.Error()})
	e.logger.Warn("module failed", zap.String("module", m.Name()), zap.String("stage", stage), zap.Error(err))
}

// Run launches the workflow (in-place entities only), runs every module to
// completion and waits for the workflow. Module failures are collected in
// Failures; the returned error is fatal for the entity.
func (e *Entity) Run(ctx context.Context, w workflow.Workflow, archive bool) error {
	span, ctx := e.sys.tracer.StartSpan(ctx, "entity.run")
	span.SetTag("entity", e.name)
	defer e.sys.tracer.Submit(span)

	graph := "{}"
	if w != nil {
		graph = w.Graph()
	}

	launched := false
	if e.hasWorkflow() && w != nil {
		if err := e.launch(ctx, w); err != nil {
			span.SetError(err)
			return err
		}
		launched = true
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			e.terminate("run cancelled")
		case <-stop:
		}
	}()

	mods := e.Modules()
	for _, m := range mods {
		m.Process(graph)
	}
	var done sync.WaitGroup
	for _, m := range mods {
		m := m
		done.Add(1)
		go func() {
			defer done.Done()
			if err := m.Wait(); err != nil {
				e.fail(m, "process", err)
			}
			if launched && m.WillProfile() {
				e.withdraw(m)
			}
		}()
	}
	done.Wait()

	if launched {
		e.abandonGate()
		if _, err := e.ProfileWait(); err != nil {
			span.SetError(err)
			e.logger.Warn("workflow wait failed", zap.Error(err))
		}
		<-e.listenerDone
		e.pumps.Wait()
		e.closeChannels()
		e.mu.Lock()
		e.workflow.Close()
		e.mu.Unlock()
	}

	if archive {
		e.saveSources()
	}
	return ctx.Err()
}

// launch prepares the workflow, wires the injection channels and starts it.
// It is gated when at least one module will profile.
func (e *Entity) launch(ctx context.Context, w workflow.Workflow) (err error) {
	bufSize := e.sys.bufSize

	proc, err := w.Prepare(ctx, e.tmpDir, bufSize)
	if err != nil {
		return fmt.Errorf("entity %q: could not prepare the workflow: %w", e.name, err)
	}
	proc.SetLogger(e.logger)

	main, peerRead, peerWrite, err := conn.NewPipePair(bufSize)
	if err != nil {
		return fmt.Errorf("entity %q: could not create the injection channel: %w", e.name, err)
	}
	opened := []interface{ Close() error }{main}
	defer func() {
		if err != nil {
			for _, c := range opened {
				c.Close()
			}
			proc.Close()
		}
	}()

	proc.SetEnv(inject.EnvReadFD1, strconv.Itoa(proc.AddExtraFile(peerRead)))
	proc.SetEnv(inject.EnvReadFD2, "-1")
	proc.SetEnv(inject.EnvWriteFD1, "-1")
	proc.SetEnv(inject.EnvWriteFD2, strconv.Itoa(proc.AddExtraFile(peerWrite)))

	var injections []injection
	for _, m := range e.Modules() {
		if !m.Injectable() {
			continue
		}
		c, r, wr, perr := conn.NewPipePair(bufSize)
		if perr != nil {
			return fmt.Errorf("entity %q: could not create the channel of module %q: %w", e.name, m.Name(), perr)
		}
		opened = append(opened, c)
		m.SetChannel(c)
		injections = append(injections, injection{
			module: m,
			line: inject.ModuleLine{
				Name:     m.Name(),
				ID:       uint32(m.ID()),
				ReadFDs:  [2]int{proc.AddExtraFile(r), -1},
				WriteFDs: [2]int{-1, proc.AddExtraFile(wr)},
				Path:     m.InjectionPath(),
			},
		})
	}

	logDir := e.logDir()
	stdoutPath := filepath.Join(logDir, e.name+"_stdout.log")
	if e.workflowTTY {
		proc.RedirectStdoutToPTY()
	} else {
		proc.RedirectStdoutToFile(stdoutPath)
	}
	proc.RedirectStderrToFile(filepath.Join(logDir, e.name+"_stderr.log"))

	e.mu.Lock()
	defer e.mu.Unlock()

	e.gated = e.profiling > 0
	pid, err := proc.Start(process.StartOptions{
		WaitForNotify: e.gated,
		CPU:           e.workflowCPUs(),
	})
	if err != nil {
		return fmt.Errorf("entity %q: could not start the workflow: %w", e.name, err)
	}

	e.workflow = proc
	e.state = StateLaunched
	e.injections = injections
	e.info = &amod.ProfileInfo{Type: amod.ProfileLinuxProcess, PID: pid}
	e.listenerDone = make(chan struct{})

	e.sys.emit(Event{Kind: EventWorkflowLaunched, Entity: e.name, Message: strconv.Itoa(pid)})
	e.logger.Info("workflow launched",
		zap.Int("pid", pid),
		zap.Bool("gated", e.gated),
		zap.Int("profiling_modules", e.profiling))

	switch {
	case !e.gated:
		e.markRunningLocked()
	case e.notified >= e.profiling:
		if err := e.releaseLocked(); err != nil {
			e.logger.Error("early release failed", zap.Error(err))
		}
	}

	go e.listen(main)
	if e.workflowTTY {
		e.pumps.Add(1)
		go e.pumpPTY(proc)
	}
	return nil
}

// pumpPTY copies the terminal output of the workflow into its stdout log.
func (e *Entity) pumpPTY(proc *process.Process) {
	defer e.pumps.Done()
	for {
		line, err := proc.ReadLine(conn.NoTimeout)
		if err != nil {
			return
		}
		if term := e.sys.terminal; term != nil {
			_ = term.Log(e.name, "stdout", line)
		}
	}
}

// abandonGate terminates a workflow that is still waiting for notifications
// nobody will send.
func (e *Entity) abandonGate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.abandonLocked()
}

func (e *Entity) abandonLocked() {
	if e.state != StateLaunched || !e.gated || e.abandoned {
		return
	}
	e.abandoned = true
	e.logger.Warn("workflow was never released",
		zap.Int("notified", e.notified),
		zap.Int("expected", e.profiling))
	e.print(fmt.Sprintf("Not all profiling modules of entity %q reported readiness, the workflow will not run", e.name), true, true)
	if err := e.workflow.Terminate(); err != nil {
		e.logger.Warn("could not terminate workflow", zap.Error(err))
	}
}

func (e *Entity) terminate(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.workflow == nil || e.state == StateFinished {
		return
	}
	e.logger.Info("terminating workflow", zap.String("reason", reason))
	if err := e.workflow.Terminate(); err != nil {
		e.logger.Warn("could not terminate workflow", zap.Error(err))
	}
}

func (e *Entity) closeChannels() {
	e.mu.Lock()
	injections := e.injections
	e.mu.Unlock()
	for _, inj := range injections {
		if c, ok := inj.module.Channel().(interface{ Close() error }); ok {
			c.Close()
		}
	}
}

func (e *Entity) logDir() string {
	if term := e.sys.terminal; term != nil {
		return term.LogDir()
	}
	return e.tmpDir
}

func (e *Entity) saveSources() {
	paths := e.SourcePaths()
	if len(paths) == 0 {
		return
	}
	index, err := output.SaveSourceArchive(e.dir.Name(), paths)
	if err != nil {
		e.logger.Warn("could not archive sources", zap.Error(err))
		e.print(fmt.Sprintf("Could not save the source code of entity %q: %v", e.name, err), true, true)
		return
	}
	e.logger.Debug("sources archived", zap.Int("files", len(index)))
}

// ==================== Status ====================

// EntityStatus is a point-in-time view of an entity.
type EntityStatus struct {
	Name             string        `json:"name"`
	AccessMode       string        `json:"access_mode"`
	State            WorkflowState `json:"state"`
	PID              int           `json:"pid,omitempty"`
	ExitCode         *int          `json:"exit_code,omitempty"`
	ProfilingModules int           `json:"profiling_modules"`
	Notified         int           `json:"notified"`
	StartTime        uint64        `json:"start_time,omitempty"`
	EndTime          uint64        `json:"end_time,omitempty"`
	Nodes            []NodeStatus  `json:"nodes"`
}

// NodeStatus describes a node and its modules.
type NodeStatus struct {
	Name     string   `json:"name"`
	Modules  []string `json:"modules"`
	InTags   []string `json:"in_tags"`
	OutTags  []string `json:"out_tags"`
	Directed bool     `json:"directing"`
}

// Status returns a snapshot of the entity.
func (e *Entity) Status() EntityStatus {
	e.mu.Lock()
	st := EntityStatus{
		Name:             e.name,
		AccessMode:       e.accessMode.String(),
		State:            e.state,
		ProfilingModules: e.profiling,
		Notified:         e.notified,
		StartTime:        e.startMS,
		EndTime:          e.endMS,
	}
	if e.info != nil {
		st.PID = e.info.PID
	}
	if e.exit != nil {
		code := *e.exit
		st.ExitCode = &code
	}
	e.mu.Unlock()

	for _, n := range e.nodes {
		names := make([]string, 0, len(n.modules))
		for _, m := range n.modules {
			names = append(names, m.Name())
		}
		sort.Strings(names)
		st.Nodes = append(st.Nodes, NodeStatus{
			Name:     n.name,
			Modules:  names,
			InTags:   n.InTags(),
			OutTags:  n.OutTags(),
			Directed: e.IsDirectingNode(n),
		})
	}
	return st
}
