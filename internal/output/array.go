package output

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"sync"
)

// Pair is a two-field record, stored as "<first> <second>".
type Pair[A, B any] struct {
	First  A
	Second B
}

func (p Pair[A, B]) String() string {
	return fmt.Sprint(p.First) + " " + fmt.Sprint(p.Second)
}

func (p *Pair[A, B]) scanRecord(line string) error {
	_, err := fmt.Sscan(line, &p.First, &p.Second)
	return err
}

type recordScanner interface {
	scanRecord(line string) error
}

// Array is a list of records persisted as <name>.dat, one per line.
// Records that fail to parse when reloading are skipped.
type Array[T any] struct {
	file *File

	mu   sync.Mutex
	vals []T
}

// NewArray opens <path>/<name>.dat, loading the records already in it.
func NewArray[T any](path *Path, name string) (*Array[T], error) {
	f, err := NewFile(path, name, ".dat", false)
	if err != nil {
		return nil, err
	}

	a := &Array[T]{file: f}
	sc := bufio.NewScanner(bytes.NewReader(f.Existing()))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var v T
		if err := scanRecord(&v, line); err == nil {
			a.vals = append(a.vals, v)
		}
	}
	return a, nil
}

func scanRecord[T any](v *T, line string) error {
	if s, ok := any(v).(recordScanner); ok {
		return s.scanRecord(line)
	}
	_, err := fmt.Sscan(line, v)
	return err
}

// Append adds a record and writes it out.
func (a *Array[T]) Append(v T) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := fmt.Fprintln(a.file.Writer(), v); err != nil {
		return err
	}
	a.vals = append(a.vals, v)
	return nil
}

func (a *Array[T]) At(i int) T {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.vals[i]
}

func (a *Array[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.vals)
}

// File exposes the underlying file, e.g. for metadata.
func (a *Array[T]) File() *File { return a.file }

func (a *Array[T]) Close() error { return a.file.Close() }
