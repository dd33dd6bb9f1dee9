package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

// Values is a flat key/value view of one or more config files.
type Values map[string]string

// LoadFile parses a TOML config file of top-level key/value pairs. Nested
// tables are flattened with dotted keys. A missing file yields empty
// values.
func LoadFile(path string) (Values, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Values{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read config file %s: %w", path, err)
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("could not parse config file %s: %w", path, err)
	}

	values := Values{}
	flatten("", raw, values)
	return values, nil
}

// LoadFiles loads the system file and then the local file; local keys win.
func (c *Config) LoadFiles() (Values, error) {
	merged := Values{}
	for _, path := range []string{c.Paths.SystemFile, c.Paths.LocalFile} {
		if path == "" {
			continue
		}
		values, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for k, v := range values {
			merged[k] = v
		}
	}
	return merged, nil
}

// Keys returns the keys in sorted order.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func flatten(prefix string, in map[string]any, out Values) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}
