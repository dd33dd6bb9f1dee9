// Package id generates the identifiers used to label a profiling run.
//
// IDs are ULIDs with a short type prefix:
//   - sess_*: one profiling session (a single run of the coordinator)
//   - evt_*: one event published on the status server
//   - cli_*: one client subscribed to status events
//   - span_*: one traced lifecycle phase
//
// ULIDs sort by creation time, so session directories and event streams can
// be ordered without a separate timestamp.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Typed IDs
// ============================================================================

// SessionID identifies a profiling session
type SessionID string

// EventID identifies a status event
type EventID string

// ClientID identifies a status event subscriber
type ClientID string

// SpanID identifies a traced lifecycle phase
type SpanID string

const (
	SessionPrefix = "sess"
	EventPrefix   = "evt"
	ClientPrefix  = "cli"
	SpanPrefix    = "span"
)

// ============================================================================
// Generator
// ============================================================================

// Generator produces ULIDs from an entropy source
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(rand.Reader)
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source,
// e.g. a deterministic reader in tests
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: ulid.Monotonic(entropy, 0)}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// WithPrefix creates a "<prefix>_<ulid>" string
func (g *Generator) WithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate())
}

// ============================================================================
// Constructors
// ============================================================================

func NewSessionID() SessionID { return SessionID(Default().WithPrefix(SessionPrefix)) }
func NewEventID() EventID     { return EventID(Default().WithPrefix(EventPrefix)) }
func NewClientID() ClientID   { return ClientID(Default().WithPrefix(ClientPrefix)) }
func NewSpanID() SpanID       { return SpanID(Default().WithPrefix(SpanPrefix)) }

func (id SessionID) String() string { return string(id) }
func (id EventID) String() string   { return string(id) }
func (id ClientID) String() string  { return string(id) }
func (id SpanID) String() string    { return string(id) }

// ============================================================================
// Parsing
// ============================================================================

// Split separates a prefixed ID into its prefix and ULID
func Split(id string) (string, ulid.ULID, error) {
	prefix, raw, ok := strings.Cut(id, "_")
	if !ok {
		return "", ulid.ULID{}, fmt.Errorf("id %q has no prefix", id)
	}
	u, err := ulid.Parse(raw)
	if err != nil {
		return "", ulid.ULID{}, fmt.Errorf("id %q: %w", id, err)
	}
	return prefix, u, nil
}

// IsValid checks whether id is a prefixed ULID
func IsValid(id string) bool {
	_, _, err := Split(id)
	return err == nil
}

// Timestamp extracts the creation time of a prefixed ID
func Timestamp(id string) (time.Time, error) {
	_, u, err := Split(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
