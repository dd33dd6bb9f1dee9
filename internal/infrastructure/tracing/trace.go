package tracing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adaptyst/adaptyst/internal/shared/id"
)

// DefaultRetained is how many finished spans a tracer keeps for the status
// server
const DefaultRetained = 512

// Span is one timed phase of a session, e.g. a module's init or an entity's
// workflow run
type Span struct {
	TraceID   id.SessionID
	SpanID    id.SpanID
	ParentID  id.SpanID
	Name      string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Error     error

	mu   sync.Mutex
	tags map[string]string
}

// Record is the exported form of a finished span
type Record struct {
	TraceID  string            `json:"trace_id"`
	SpanID   string            `json:"span_id"`
	ParentID string            `json:"parent_id,omitempty"`
	Name     string            `json:"name"`
	Start    time.Time         `json:"start"`
	Duration float64           `json:"duration_ms"`
	Tags     map[string]string `json:"tags,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Tracer collects spans of one session
type Tracer struct {
	session id.SessionID
	logger  *zap.Logger
	spans   chan *Span
	done    chan struct{}

	mu       sync.Mutex
	closed   bool
	retained int
	recent   []Record
}

// New creates a tracer for session and starts its collector
func New(session id.SessionID, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracer{
		session:  session,
		logger:   logger,
		spans:    make(chan *Span, 1000),
		done:     make(chan struct{}),
		retained: DefaultRetained,
	}

	go t.collectSpans()

	return t
}

// Session returns the trace ID shared by all spans
func (t *Tracer) Session() id.SessionID { return t.session }

// StartSpan creates a span, child of the span in ctx if there is one
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	span := &Span{
		TraceID:   t.session,
		SpanID:    id.NewSpanID(),
		ParentID:  GetSpanID(ctx),
		Name:      name,
		StartTime: time.Now(),
		tags:      make(map[string]string),
	}
	return span, context.WithValue(ctx, spanIDKey, span.SpanID)
}

// Finish marks the span as complete
func (s *Span) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndTime.IsZero() {
		s.EndTime = time.Now()
		s.Duration = s.EndTime.Sub(s.StartTime)
	}
}

// SetTag adds a tag to the span
func (s *Span) SetTag(key, value string) {
	s.mu.Lock()
	s.tags[key] = value
	s.mu.Unlock()
}

// Tag returns a tag value
func (s *Span) Tag(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.tags[key]
	return v, ok
}

// SetError records an error in the span
func (s *Span) SetError(err error) {
	s.mu.Lock()
	s.Error = err
	s.mu.Unlock()
}

func (s *Span) record() Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := Record{
		TraceID:  string(s.TraceID),
		SpanID:   string(s.SpanID),
		ParentID: string(s.ParentID),
		Name:     s.Name,
		Start:    s.StartTime,
		Duration: float64(s.Duration.Microseconds()) / 1000,
	}
	if len(s.tags) > 0 {
		r.Tags = make(map[string]string, len(s.tags))
		for k, v := range s.tags {
			r.Tags[k] = v
		}
	}
	if s.Error != nil {
		r.Error = s.Error.Error()
	}
	return r
}

// collectSpans processes completed spans
func (t *Tracer) collectSpans() {
	defer close(t.done)
	for span := range t.spans {
		t.processSpan(span)
	}
}

// processSpan logs a span and keeps it for Recent
func (t *Tracer) processSpan(span *Span) {
	r := span.record()

	fields := []zap.Field{
		zap.String("trace_id", r.TraceID),
		zap.String("span_id", r.SpanID),
		zap.String("phase", r.Name),
		zap.Float64("duration_ms", r.Duration),
	}
	if r.ParentID != "" {
		fields = append(fields, zap.String("parent_id", r.ParentID))
	}
	for k, v := range r.Tags {
		fields = append(fields, zap.String(k, v))
	}

	if r.Error != "" {
		fields = append(fields, zap.String("error", r.Error))
		t.logger.Warn("phase completed with error", fields...)
	} else {
		t.logger.Debug("phase completed", fields...)
	}

	t.mu.Lock()
	t.recent = append(t.recent, r)
	if over := len(t.recent) - t.retained; over > 0 {
		t.recent = append([]Record(nil), t.recent[over:]...)
	}
	t.mu.Unlock()
}

// Submit finishes span and hands it to the collector. Spans submitted after
// Close are dropped.
func (t *Tracer) Submit(span *Span) {
	span.Finish()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.spans <- span:
	default:
		t.logger.Warn("span buffer full, dropping span",
			zap.String("span_id", string(span.SpanID)),
			zap.String("phase", span.Name),
		)
	}
}

// Recent returns the finished spans still retained, oldest first
func (t *Tracer) Recent() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Record(nil), t.recent...)
}

// Close stops accepting spans and waits until the submitted ones are
// processed
func (t *Tracer) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.spans)
	t.mu.Unlock()

	<-t.done
}

// Context keys for span propagation
type contextKey string

const spanIDKey contextKey = "span_id"

// GetSpanID retrieves the current span ID from context
func GetSpanID(ctx context.Context) id.SpanID {
	if spanID, ok := ctx.Value(spanIDKey).(id.SpanID); ok {
		return spanID
	}
	return ""
}
