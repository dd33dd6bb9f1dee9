package output

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zip"
)

const (
	SourceArchiveName = "src.zip"
	SourceIndexName   = "index.json"
)

// ExpandSourcePaths turns registered source paths into a sorted list of
// files. Glob patterns are expanded with doublestar, directories are
// walked, and paths that do not exist are dropped.
func ExpandSourcePaths(paths []string) ([]string, error) {
	seen := map[string]struct{}{}
	var mu sync.Mutex
	add := func(p string) {
		mu.Lock()
		seen[p] = struct{}{}
		mu.Unlock()
	}

	for _, p := range paths {
		matches := []string{p}
		if strings.ContainsAny(p, "*?[{") {
			var err error
			if matches, err = doublestar.FilepathGlob(p); err != nil {
				return nil, fmt.Errorf("bad source pattern %q: %w", p, err)
			}
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				continue
			}
			if !info.IsDir() {
				add(match)
				continue
			}

			conf := fastwalk.Config{Follow: false}
			err = fastwalk.Walk(&conf, match, func(path string, d fs.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return nil
				}
				if d.Type().IsRegular() {
					add(path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// IsText reports whether a file looks like source code rather than a
// binary artefact.
func IsText(path string) bool {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// SaveSourceArchive writes dir/src.zip containing every text file among
// paths, stored as <n><ext>, plus index.json mapping each original path to
// its entry. It returns the index.
func SaveSourceArchive(dir string, paths []string) (map[string]string, error) {
	files, err := ExpandSourcePaths(paths)
	if err != nil {
		return nil, err
	}

	out, err := os.Create(filepath.Join(dir, SourceArchiveName))
	if err != nil {
		return nil, err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	index := map[string]string{}

	for _, path := range files {
		if !IsText(path) {
			continue
		}
		entry := strconv.Itoa(len(index)) + filepath.Ext(path)
		if err := addFile(zw, entry, path); err != nil {
			zw.Close()
			return nil, err
		}
		index[path] = entry
	}

	data, err := sonic.Marshal(index)
	if err != nil {
		zw.Close()
		return nil, err
	}
	w, err := zw.Create(SourceIndexName)
	if err != nil {
		zw.Close()
		return nil, err
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		zw.Close()
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return index, out.Close()
}

func addFile(zw *zip.Writer, entry, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := zw.Create(entry)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
