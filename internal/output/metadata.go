package output

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"sync"

	"github.com/bytedance/sonic"
)

// metadata is a JSON object persisted to a sidecar file.
type metadata struct {
	mu     sync.Mutex
	path   string
	values map[string]any
}

func loadMetadata(path string) (*metadata, error) {
	m := &metadata{path: path, values: map[string]any{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not open %s for reading: %w", path, err)
	}
	if err := sonic.Unmarshal(data, &m.values); err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", path, err)
	}
	return m, nil
}

// set stores value under key and writes the sidecar when save is true and
// the value changed.
func (m *metadata) set(key string, value any, save bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.values[key]; ok && reflect.DeepEqual(old, value) {
		return nil
	}
	m.values[key] = value
	if !save {
		return nil
	}
	return m.saveLocked()
}

func (m *metadata) get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *metadata) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.values))
	for k := range m.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *metadata) save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *metadata) saveLocked() error {
	data, err := sonic.Marshal(m.values)
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("could not open %s for writing: %w", m.path, err)
	}
	return nil
}
