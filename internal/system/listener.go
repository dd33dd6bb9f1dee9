package system

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/adaptyst/adaptyst/internal/conn"
	"github.com/adaptyst/adaptyst/internal/infrastructure/monitoring"
	"github.com/adaptyst/adaptyst/internal/infrastructure/resilience"
	"github.com/adaptyst/adaptyst/internal/inject"
	"github.com/adaptyst/adaptyst/internal/module"
)

// listen serves the workflow's main channel until the workflow closes it or
// dies.
func (e *Entity) listen(c conn.Conn) {
	defer close(e.listenerDone)
	defer c.Close()

	logger := e.logger.With(zap.String("component", "listener"))
	warnings := rate.NewLimiter(rate.Every(time.Second), 3)

	for {
		msg, err := c.ReadLine(e.sys.listenTimeout)
		switch {
		case err == nil:
			if werr := e.handle(c, msg, warnings, logger); werr != nil {
				logger.Debug("reply failed", zap.Error(werr))
				return
			}
		case errors.Is(err, conn.ErrTimeout):
			if !e.workflowAlive() {
				logger.Debug("workflow gone, listener exiting")
				return
			}
		case errors.Is(err, io.EOF):
			logger.Debug("main channel closed")
			return
		default:
			logger.Warn("main channel failed", zap.Error(err))
			return
		}
	}
}

func (e *Entity) workflowAlive() bool {
	e.mu.Lock()
	proc := e.workflow
	e.mu.Unlock()
	return proc != nil && proc.IsRunning()
}

func (e *Entity) handle(c conn.Conn, msg string, warnings *rate.Limiter, logger *zap.Logger) error {
	if msg == inject.MsgInit {
		return e.handshake(c)
	}

	region, ok := inject.ParseRegion(msg)
	if !ok {
		e.sys.metrics.RecordInvalidMessage(e.name)
		if warnings.Allow() {
			logger.Warn("invalid message from workflow", zap.String("message", msg))
		}
		return c.WriteLine(inject.MsgInvalid, true)
	}

	e.dispatchRegion(region)
	return c.WriteLine(inject.MsgAck, true)
}

// handshake acknowledges init and lists the injectable modules.
func (e *Entity) handshake(c conn.Conn) error {
	e.mu.Lock()
	injections := e.injections
	e.mu.Unlock()

	if err := c.WriteLine(inject.MsgAck, true); err != nil {
		return err
	}
	for _, inj := range injections {
		if err := c.WriteLine(inj.line.String(), true); err != nil {
			return err
		}
	}
	return c.WriteLine(inject.MsgStop, true)
}

// dispatchRegion hands a region marker to every module of the entity that
// handles regions. Modules whose handler keeps failing are skipped by their
// breaker.
func (e *Entity) dispatchRegion(r inject.Region) {
	for _, m := range e.Modules() {
		m := m
		if !m.HandlesRegions() {
			continue
		}

		err := e.sys.breakers.Execute(breakerKey(m), func() error {
			return callRegion(m, r)
		})

		result := monitoring.ResultAck
		switch {
		case err == nil:
		case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
			result = monitoring.ResultSkipped
		default:
			result = monitoring.ResultRejected
			e.logger.Debug("region rejected",
				zap.String("module", m.Name()),
				zap.String("region", r.Name),
				zap.Error(err))
		}
		e.sys.metrics.RecordRegionMessage(r.State, result)
	}
	e.sys.emit(Event{Kind: EventRegion, Entity: e.name, Message: r.String()})
}

func callRegion(m *module.Module, r inject.Region) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &module.CallError{Module: m.Name(), Stage: "region " + r.State, Msg: fmt.Sprint(p)}
		}
	}()

	var ok bool
	if r.State == inject.StateStart {
		ok = m.RegionStart(r.Name, r.PartID, r.Timestamp)
	} else {
		ok = m.RegionEnd(r.Name, r.PartID, r.Timestamp)
	}
	if !ok {
		return &module.CallError{Module: m.Name(), Stage: "region " + r.State, Msg: m.LastError()}
	}
	return nil
}

func breakerKey(m *module.Module) string {
	return fmt.Sprintf("%s#%d", m.Name(), m.ID())
}
