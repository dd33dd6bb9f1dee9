package output

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, sonic.Unmarshal(data, &out))
	return out
}

func TestPathMetadata(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	p, err := NewPath(dir)
	require.NoError(t, err)
	assert.DirExists(t, dir)

	require.NoError(t, p.SetMetadata("label", "run"))
	assert.Equal(t, "run", readJSON(t, filepath.Join(dir, DirMetaFile))["label"])

	// Reopening picks the metadata up again.
	p2, err := NewPath(dir)
	require.NoError(t, err)
	v, ok := p2.Metadata("label")
	require.True(t, ok)
	assert.Equal(t, "run", v)
	assert.Equal(t, []string{"label"}, p2.MetadataKeys())

	sub, err := p.Join("entity", "node")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "entity", "node"), sub.Name())
}

func TestPathBadMetadata(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DirMetaFile), []byte("{nope"), 0o644))
	_, err := NewPath(dir)
	assert.Error(t, err)
}

func TestFile(t *testing.T) {
	p, err := NewPath(t.TempDir())
	require.NoError(t, err)

	f, err := NewFile(p, "trace", ".txt", true)
	require.NoError(t, err)
	_, err = io.WriteString(f.Writer(), "first\n")
	require.NoError(t, err)
	require.NoError(t, f.SetMetadata("events", 3))
	require.NoError(t, f.Close())

	assert.Equal(t, float64(3), readJSON(t, filepath.Join(p.Name(), "meta_trace.json"))["events"])

	f, err = NewFile(p, "trace", ".txt", true)
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(f.Existing()))
	v, ok := f.Metadata("events")
	assert.True(t, ok)
	assert.Equal(t, float64(3), v)
	require.NoError(t, f.Close())

	b, err := os.ReadFile(f.FullPath())
	require.NoError(t, err)
	assert.Empty(t, b)

	require.NoError(t, os.Mkdir(filepath.Join(p.Name(), "dir.txt"), 0o755))
	_, err = NewFile(p, "dir", ".txt", true)
	assert.ErrorContains(t, err, "is a directory")
}

func TestArrayRoundTrip(t *testing.T) {
	p, err := NewPath(t.TempDir())
	require.NoError(t, err)

	a, err := NewArray[Pair[uint64, uint64]](p, "intervals")
	require.NoError(t, err)
	require.NoError(t, a.Append(Pair[uint64, uint64]{10, 20}))
	require.NoError(t, a.Append(Pair[uint64, uint64]{30, 45}))
	require.NoError(t, a.Close())

	b, err := os.ReadFile(filepath.Join(p.Name(), "intervals.dat"))
	require.NoError(t, err)
	assert.Equal(t, "10 20\n30 45\n", string(b))

	a, err = NewArray[Pair[uint64, uint64]](p, "intervals")
	require.NoError(t, err)
	require.Equal(t, 2, a.Len())
	assert.Equal(t, Pair[uint64, uint64]{30, 45}, a.At(1))

	require.NoError(t, a.Append(Pair[uint64, uint64]{50, 60}))
	require.NoError(t, a.Close())
	b, _ = os.ReadFile(filepath.Join(p.Name(), "intervals.dat"))
	assert.Equal(t, 3, strings.Count(string(b), "\n"))

	floats, err := NewArray[float64](p, "values")
	require.NoError(t, err)
	require.NoError(t, floats.Append(1.5))
	require.NoError(t, floats.Close())
	floats, err = NewArray[float64](p, "values")
	require.NoError(t, err)
	assert.Equal(t, 1.5, floats.At(0))
	floats.Close()
}

func TestNewRunDir(t *testing.T) {
	parent := t.TempDir()
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

	assert.Equal(t, "adaptyst_2024_03_09_14_05_07__1", RunDirName(now, 1))

	p1, err := NewRunDir(parent, "", "", now)
	require.NoError(t, err)
	assert.Equal(t, "adaptyst_2024_03_09_14_05_07__1", filepath.Base(p1.Name()))

	p2, err := NewRunDir(parent, "", "mine", now)
	require.NoError(t, err)
	assert.Equal(t, "adaptyst_2024_03_09_14_05_07__2", filepath.Base(p2.Name()))

	meta := readJSON(t, filepath.Join(p1.Name(), DirMetaFile))
	assert.Equal(t, float64(2024), meta["year"])
	assert.Equal(t, float64(3), meta["month"])
	assert.Equal(t, float64(9), meta["day"])
	assert.Equal(t, float64(14), meta["hour"])
	assert.Equal(t, float64(5), meta["minute"])
	assert.Equal(t, float64(7), meta["second"])
	assert.Equal(t, "adaptyst_2024_03_09_14_05_07__1", meta["label"])
	assert.NotEmpty(t, meta["executor"])

	assert.Equal(t, "mine", readJSON(t, filepath.Join(p2.Name(), DirMetaFile))["label"])

	_, err = NewRunDir(parent, filepath.Base(p1.Name()), "", now)
	assert.Error(t, err)
}

func TestSaveSourceArchive(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "pkg", "sub"), 0o755))
	write := func(rel, content string) string {
		path := filepath.Join(src, rel)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}
	mainC := write("main.c", "int main(void) { return 0; }\n")
	libC := write("pkg/lib.c", "int lib(void) { return 1; }\n")
	hdr := write("pkg/sub/lib.h", "int lib(void);\n")
	write("pkg/blob.bin", "\x7fELF\x02\x01\x01\x00\x00\x00\x00\x00\x00\x00\x00\x00")

	out := t.TempDir()
	index, err := SaveSourceArchive(out, []string{
		mainC,
		filepath.Join(src, "pkg"),
		filepath.Join(src, "**", "*.h"),
		filepath.Join(src, "missing.c"),
	})
	require.NoError(t, err)

	assert.Len(t, index, 3)
	assert.Contains(t, index, mainC)
	assert.Contains(t, index, libC)
	assert.Contains(t, index, hdr)
	assert.Equal(t, ".h", filepath.Ext(index[hdr]))

	zr, err := zip.OpenReader(filepath.Join(out, SourceArchiveName))
	require.NoError(t, err)
	defer zr.Close()

	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.True(t, names[SourceIndexName])
	assert.True(t, names[index[mainC]])
	assert.Len(t, names, 4)
}

func TestSourceDestination(t *testing.T) {
	d, err := ParseSourceDestination("file:/tmp/x")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", d.Path)
	assert.Equal(t, "file:/tmp/x", d.String())

	d, err = ParseSourceDestination("fd:7")
	require.NoError(t, err)
	assert.Equal(t, 7, d.FD)

	for _, bad := range []string{"file:", "fd:x", "fd:-1", "http://x"} {
		_, err := ParseSourceDestination(bad)
		assert.Error(t, err, bad)
	}

	path := filepath.Join(t.TempDir(), "list")
	require.NoError(t, SourceDestination{Path: path, FD: -1}.WriteList([]string{"/a.c", "/b.c"}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/a.c\n/b.c\n", string(b))

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, SourceDestination{FD: int(w.Fd())}.WriteList([]string{"/c.c"}))
	w.Close()
	b, err = io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "/c.c\n", string(b))
}
