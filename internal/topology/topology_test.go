package topology

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
entities:
  local:
    options:
      access_mode: in_place
      processing_threads: 2
      workflow_tty: true
    nodes:
      cpu:
        backend: perf
        options:
          freq: 100
          events: [cycles, instructions]
        modules:
          - regions
          - name: extra
            options: {level: 2}
      gpu:
        backend: nvml
    edges:
      link:
        path: [cpu, gpu]
  other:
    options:
      access_mode: custom
    nodes:
      only:
        backend: regions
`

func TestParse(t *testing.T) {
	def, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, def.Entities, 2)

	local := def.Entities[0]
	assert.Equal(t, "local", local.Name)
	assert.Equal(t, InPlace, local.AccessMode)
	assert.Equal(t, uint(2), local.ProcessingThreads)
	assert.True(t, local.WorkflowTTY)
	assert.Equal(t, "cpu", local.DirectingNode)

	require.Len(t, local.Nodes, 2)
	cpu := local.Nodes[0]
	assert.Equal(t, "cpu", cpu.Name)
	assert.Equal(t, "perf", cpu.Backend)
	assert.Equal(t, "100", cpu.Options.Scalars["freq"])
	assert.Equal(t, []string{"cycles", "instructions"}, cpu.Options.Arrays["events"])

	mods := cpu.AllModules()
	require.Len(t, mods, 3)
	assert.Equal(t, "perf", mods[0].Name)
	assert.Equal(t, "regions", mods[1].Name)
	assert.Equal(t, "extra", mods[2].Name)
	assert.Equal(t, "2", mods[2].Options.Scalars["level"])

	assert.Equal(t, []Edge{{Name: "link", From: "cpu", To: "gpu"}}, local.Edges)

	other := def.Entities[1]
	assert.Equal(t, Custom, other.AccessMode)
	assert.Equal(t, uint(1), other.ProcessingThreads)
	assert.False(t, other.WorkflowTTY)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system.yml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	def, err := ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, def.Entities, 2)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"not a map", "- a\n- b\n", "is not a map"},
		{"no entities", "foo: 1\n", `does not have "entities"`},
		{"no options", "entities:\n  e:\n    nodes: {}\n", `does not have "options"`},
		{"no access mode", "entities:\n  e:\n    options: {}\n", `does not have "access_mode"`},
		{"remote", "entities:\n  e:\n    options: {access_mode: remote}\n", "not yet supported"},
		{"custom remote", "entities:\n  e:\n    options: {access_mode: custom_remote}\n", "not yet supported"},
		{"bad mode", "entities:\n  e:\n    options: {access_mode: sideways}\n", "invalid value"},
		{
			"bad threads",
			"entities:\n  e:\n    options: {access_mode: in_place, processing_threads: -1}\n    nodes:\n      n: {backend: b}\n",
			"not a valid unsigned integer",
		},
		{"no nodes", "entities:\n  e:\n    options: {access_mode: in_place}\n", `does not have "nodes"`},
		{"no backend", "entities:\n  e:\n    options: {access_mode: in_place}\n    nodes:\n      n: {}\n", `does not have "backend"`},
		{
			"edge to unknown node",
			"entities:\n  e:\n    options: {access_mode: in_place}\n    nodes:\n      n: {backend: b}\n    edges:\n      x: {path: [n, ghost]}\n",
			`node "ghost" does not exist`,
		},
		{
			"short path",
			"entities:\n  e:\n    options: {access_mode: in_place}\n    nodes:\n      n: {backend: b}\n    edges:\n      x: {path: [n]}\n",
			"exactly 2 elements",
		},
		{
			"nested option",
			"entities:\n  e:\n    options: {access_mode: in_place}\n    nodes:\n      n:\n        backend: b\n        options: {o: {x: 1}}\n",
			"neither a simple value nor an array",
		},
		{
			"unknown directing node",
			"entities:\n  e:\n    options: {access_mode: in_place, directing_node: zz}\n    nodes:\n      n: {backend: b}\n",
			`node "zz" does not exist`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDuplicateEdge(t *testing.T) {
	doc := "entities:\n  e:\n    options: {access_mode: in_place}\n    nodes:\n      a: {backend: b}\n      c: {backend: b}\n" +
		"    edges:\n      x: {path: [a, c]}\n      x: {path: [c, a]}\n"
	_, err := Parse([]byte(doc))
	assert.Error(t, err)
}
