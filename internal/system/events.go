package system

import (
	"time"

	"github.com/adaptyst/adaptyst/internal/shared/id"
)

// EventKind names a lifecycle event.
type EventKind string

const (
	EventWorkflowLaunched EventKind = "workflow_launched"
	EventWorkflowReleased EventKind = "workflow_released"
	EventWorkflowFinished EventKind = "workflow_finished"
	EventModuleFailed     EventKind = "module_failed"
	EventRegion           EventKind = "region"
)

// Event is published to the configured sink as the session progresses.
type Event struct {
	ID      id.EventID `json:"id"`
	Kind    EventKind  `json:"kind"`
	Entity  string     `json:"entity"`
	Module  string     `json:"module,omitempty"`
	Message string     `json:"message,omitempty"`
	Time    time.Time  `json:"time"`
}

func (s *System) emit(ev Event) {
	if s.events == nil {
		return
	}
	ev.ID = id.NewEventID()
	ev.Time = time.Now()
	s.events(ev)
}
