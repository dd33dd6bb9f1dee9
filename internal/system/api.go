package system

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/adaptyst/adaptyst/internal/inject"
	"github.com/adaptyst/adaptyst/internal/module"
	"github.com/adaptyst/adaptyst/internal/output"
	"github.com/adaptyst/adaptyst/pkg/amod"
)

// binding attaches a module to its node and output directory.
type binding struct {
	node   *Node
	dir    *output.Path
	inInit atomic.Bool
}

func (b *binding) NodeID() string { return b.node.name }

// api implements amod.API on top of the session registry. Every method
// resolves the calling module first and records failures against its ID.
type api struct {
	sys *System
}

var _ amod.API = (*api)(nil)

func (a *api) lookup(id amod.ID) (*module.Module, *binding, bool) {
	m, ok := a.sys.registry.Get(id)
	if !ok {
		a.sys.registry.SetError(id, amod.ErrModuleNotFound, "")
		return nil, nil, false
	}
	b, ok := m.Host().(*binding)
	if !ok {
		a.sys.registry.SetError(id, amod.ErrModuleNotFound, "module is not attached to a node")
		return nil, nil, false
	}
	return m, b, true
}

func (a *api) fail(id amod.ID, err error) {
	a.sys.registry.SetError(id, amod.ErrException, err.Error())
	a.sys.logger.Debug("api call failed", zap.Uint32("module_id", uint32(id)), zap.Error(err))
}

// initOnly resolves id and checks that the module is in its init function.
func (a *api) initOnly(id amod.ID) (*module.Module, *binding, bool) {
	m, b, ok := a.lookup(id)
	if !ok {
		return nil, nil, false
	}
	if !b.inInit.Load() {
		a.sys.registry.SetError(id, amod.ErrNotInInit, "")
		return nil, nil, false
	}
	return m, b, true
}

func logOwner(b *binding, m *module.Module) string {
	return b.node.name + "." + m.Name()
}

// ==================== Context and errors ====================

func (a *api) NewContext(id amod.ID, ctx any) bool {
	m, _, ok := a.lookup(id)
	if !ok {
		return false
	}
	m.SetContext(ctx)
	return true
}

func (a *api) Context(id amod.ID) any {
	m, _, ok := a.lookup(id)
	if !ok {
		return nil
	}
	return m.Context()
}

func (a *api) Option(id amod.ID, key string) amod.Value {
	m, _, ok := a.lookup(id)
	if !ok {
		return nil
	}
	v, ok := m.Option(key)
	if !ok {
		a.fail(id, fmt.Errorf("module %q has no option %q", m.Name(), key))
		return nil
	}
	return v
}

func (a *api) SetError(id amod.ID, msg string) bool {
	m, _, ok := a.lookup(id)
	if !ok {
		return false
	}
	m.SetError(msg)
	return true
}

func (a *api) ErrorCode(id amod.ID) amod.ErrorCode {
	code, _ := a.sys.registry.LastError(id)
	return code
}

func (a *api) ErrorMessage(id amod.ID) string {
	_, msg := a.sys.registry.LastError(id)
	return msg
}

// ==================== Terminal ====================

func (a *api) LogDir(id amod.ID) string {
	if _, _, ok := a.lookup(id); !ok {
		return ""
	}
	if a.sys.terminal == nil {
		a.sys.registry.SetError(id, amod.ErrTerminalNotInitialised, "")
		return ""
	}
	return a.sys.terminal.LogDir()
}

func (a *api) Log(id amod.ID, msg, logType string) bool {
	m, b, ok := a.lookup(id)
	if !ok {
		return false
	}
	if a.sys.terminal == nil {
		a.sys.registry.SetError(id, amod.ErrTerminalNotInitialised, "")
		return false
	}
	if err := a.sys.terminal.Log(logOwner(b, m), logType, msg); err != nil {
		a.fail(id, err)
		return false
	}
	return true
}

func (a *api) Print(id amod.ID, msg string, sub, isErr bool, logType string) bool {
	m, b, ok := a.lookup(id)
	if !ok {
		return false
	}
	term := a.sys.terminal
	if term == nil {
		a.sys.registry.SetError(id, amod.ErrTerminalNotInitialised, "")
		return false
	}
	term.Print(msg, sub, isErr)
	if err := term.PrintFor(logOwner(b, m), logType, msg, sub, isErr); err != nil {
		a.fail(id, err)
		return false
	}
	return true
}

// ==================== Placement ====================

func (a *api) NodeID(id amod.ID) string {
	_, b, ok := a.lookup(id)
	if !ok {
		return ""
	}
	return b.node.name
}

func (a *api) ModuleDir(id amod.ID) string {
	_, b, ok := a.lookup(id)
	if !ok {
		return ""
	}
	return b.dir.Name()
}

func (a *api) TmpDir(id amod.ID) string {
	_, b, ok := a.lookup(id)
	if !ok {
		return ""
	}
	return b.node.entity.tmpDir
}

func (a *api) LocalConfigDir(id amod.ID) string {
	if _, _, ok := a.lookup(id); !ok {
		return ""
	}
	if a.sys.localConfigDir == "" {
		a.fail(id, errors.New("no local configuration directory"))
		return ""
	}
	return a.sys.localConfigDir
}

func (a *api) IsDirectingNode(id amod.ID) bool {
	_, b, ok := a.lookup(id)
	if !ok {
		return false
	}
	return b.node.entity.IsDirectingNode(b.node)
}

func (a *api) HasInTag(id amod.ID, tag string) bool {
	_, b, ok := a.lookup(id)
	return ok && b.node.HasInTag(tag)
}

func (a *api) HasOutTag(id amod.ID, tag string) bool {
	_, b, ok := a.lookup(id)
	return ok && b.node.HasOutTag(tag)
}

func (a *api) InTags(id amod.ID) []string {
	_, b, ok := a.lookup(id)
	if !ok {
		return nil
	}
	return b.node.InTags()
}

func (a *api) OutTags(id amod.ID) []string {
	_, b, ok := a.lookup(id)
	if !ok {
		return nil
	}
	return b.node.OutTags()
}

// ==================== Init phase ====================

func (a *api) SetProfileInfo(id amod.ID, info amod.ProfileInfo) bool {
	_, b, ok := a.initOnly(id)
	if !ok {
		return false
	}
	b.node.entity.SetProfileInfo(info)
	return true
}

func (a *api) CPUMask(id amod.ID) string {
	_, b, ok := a.initOnly(id)
	if !ok {
		return ""
	}
	mask, err := b.node.entity.CPUMask()
	if err != nil {
		a.fail(id, err)
		return ""
	}
	return mask
}

func (a *api) SetWillProfile(id amod.ID, willProfile bool) bool {
	m, _, ok := a.initOnly(id)
	if !ok {
		return false
	}
	m.SetWillProfile(willProfile)
	return true
}

// ==================== Workflow ====================

func (a *api) ProfileInfo(id amod.ID) *amod.ProfileInfo {
	_, b, ok := a.lookup(id)
	if !ok {
		return nil
	}
	info := b.node.entity.ProfileInfo()
	if info == nil {
		a.fail(id, errors.New("no profile information is available"))
	}
	return info
}

func (a *api) ProfileNotify(id amod.ID) bool {
	m, b, ok := a.lookup(id)
	if !ok {
		return false
	}
	if err := b.node.entity.notify(m); err != nil {
		a.fail(id, err)
		return false
	}
	return true
}

func (a *api) ProfileWait(id amod.ID) int {
	_, b, ok := a.lookup(id)
	if !ok {
		return -1
	}
	code, err := b.node.entity.ProfileWait()
	if err != nil {
		a.fail(id, err)
	}
	return code
}

func (a *api) ProcessSrcPaths(id amod.ID, paths []string) bool {
	_, b, ok := a.lookup(id)
	if !ok {
		return false
	}
	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			var err error
			if p, err = filepath.Abs(p); err != nil {
				a.fail(id, err)
				return false
			}
		}
		abs = append(abs, p)
	}
	b.node.entity.AddSourcePaths(abs)
	return true
}

func (a *api) InjectionChannel(id amod.ID) amod.Channel {
	m, _, ok := a.lookup(id)
	if !ok {
		return nil
	}
	c := m.Channel()
	if c == nil {
		a.fail(id, fmt.Errorf("module %q has no injection channel", m.Name()))
		return nil
	}
	return c
}

func (a *api) Timestamp(id amod.ID) uint64 {
	if _, _, ok := a.lookup(id); !ok {
		return 0
	}
	ns, err := inject.Now()
	if err != nil {
		a.fail(id, err)
		return 0
	}
	return ns
}

func (a *api) IsWorkflowRunning(id amod.ID) bool {
	_, b, ok := a.lookup(id)
	return ok && b.node.entity.IsWorkflowRunning()
}

func (a *api) WorkflowStartTime(id amod.ID) uint64 {
	_, b, ok := a.lookup(id)
	if !ok {
		return 0
	}
	return b.node.entity.WorkflowStartTime()
}

func (a *api) WorkflowEndTime(id amod.ID) uint64 {
	_, b, ok := a.lookup(id)
	if !ok {
		return 0
	}
	return b.node.entity.WorkflowEndTime()
}
