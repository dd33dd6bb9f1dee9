package builtin

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptyst/adaptyst/internal/inject"
	"github.com/adaptyst/adaptyst/internal/output"
	"github.com/adaptyst/adaptyst/internal/process"
	"github.com/adaptyst/adaptyst/internal/system"
	"github.com/adaptyst/adaptyst/internal/terminal"
	"github.com/adaptyst/adaptyst/internal/topology"
	"github.com/adaptyst/adaptyst/internal/workflow"
)

const funcRegions = "builtin-test-regions"

func TestMain(m *testing.M) {
	process.RegisterFunc(funcRegions, func() int {
		client, err := inject.Connect(inject.Config{Timeout: 5 * time.Second})
		if err != nil {
			return 1
		}
		defer client.Close()
		for _, name := range []string{"solve", "solve", "write output"} {
			if client.RegionStart(name) != nil || client.RegionEnd(name) != nil {
				return 2
			}
		}
		return 0
	})
	process.Init()
	os.Exit(m.Run())
}

func TestSummarise(t *testing.T) {
	got := summarise(map[string][]float64{
		"a": {30, 10, 20},
		"b": {5},
	})

	require.Len(t, got, 2)
	a := got["a"]
	assert.Equal(t, 3, a.Count)
	assert.InDelta(t, 20, a.MeanNS, 1e-9)
	assert.InDelta(t, 20, a.MedNS, 1e-9)
	assert.InDelta(t, 10, a.StdNS, 1e-9)
	assert.Equal(t, 10.0, a.MinNS)
	assert.Equal(t, 30.0, a.MaxNS)

	assert.Equal(t, Summary{Count: 1, MeanNS: 5, MedNS: 5, MinNS: 5, MaxNS: 5}, got["b"])
}

func TestIntervalString(t *testing.T) {
	iv := Interval{Part: "10_11", Start: 100, End: 250, Name: "main loop"}
	assert.Equal(t, "10_11 100 250 main loop", iv.String())
	assert.Equal(t, uint64(150), iv.Duration())
}

func TestRegionsModule(t *testing.T) {
	root, err := output.NewPath(filepath.Join(t.TempDir(), "results"))
	require.NoError(t, err)
	out := &bytes.Buffer{}
	term, err := terminal.New(terminal.Config{Batch: true, LogDir: t.TempDir(), Out: out})
	require.NoError(t, err)
	defer term.Close()

	sys, err := system.New(system.Config{
		Definition: &topology.Definition{Entities: []topology.Entity{{
			Name:          "app",
			AccessMode:    topology.InPlace,
			DirectingNode: "n1",
			Nodes:         []topology.Node{{Name: "n1", Backend: RegionsName}},
		}}},
		Root:     root,
		Loader:   Loader(),
		Terminal: term,
		Workflow: workflow.Func{Name: funcRegions},
		TmpDir:   t.TempDir(),
	})
	require.NoError(t, err)
	defer sys.Close()

	require.NoError(t, sys.Process(context.Background()))
	require.NoError(t, sys.Warnings())

	dir := filepath.Join(root.Name(), "app", "n1", RegionsName)
	data, err := os.ReadFile(filepath.Join(dir, "regions.dat"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[2], " write output"))

	meta, err := os.ReadFile(filepath.Join(dir, "meta_regions.json"))
	require.NoError(t, err)
	var summaries map[string]Summary
	require.NoError(t, sonic.Unmarshal(meta, &summaries))
	assert.Equal(t, 2, summaries["solve"].Count)
	assert.Equal(t, 1, summaries["write output"].Count)

	assert.Contains(t, out.String(), "2 code region(s) recorded")
}
