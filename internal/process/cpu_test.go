package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCPUMask(t *testing.T) {
	tests := []struct {
		name     string
		mask     string
		valid    bool
		threads  int
		profiler []int
		workflow []int
	}{
		{"mixed", "bpc ", true, 2, []int{0, 1}, []int{0, 2}},
		{"all both", "bbbb", true, 4, []int{0, 1, 2, 3}, []int{0, 1, 2, 3}},
		{"small machine", "ppc", true, 2, []int{0, 1}, []int{2}},
		{"unused only", "   ", true, 0, []int{}, []int{}},
		{"bad character", "bpx", false, 0, nil, nil},
		{"empty", "", false, 0, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ParseCPUMask(tt.mask)
			assert.Equal(t, tt.valid, c.Valid())
			assert.Equal(t, tt.threads, c.ProfilerThreads())
			assert.Equal(t, tt.mask, c.Mask())
			if tt.valid {
				assert.Equal(t, tt.profiler, c.ProfilerCPUs())
				assert.Equal(t, tt.workflow, c.WorkflowCPUs())
			}
		})
	}
}

func TestCPUsForRole(t *testing.T) {
	c := ParseCPUMask("bpc ")
	assert.Equal(t, []int{0, 1}, c.cpusFor(true))
	assert.Equal(t, []int{0, 2}, c.cpusFor(false))

	assert.Nil(t, ParseCPUMask("zz").cpusFor(true))
	assert.Empty(t, ParseCPUMask("  ").cpusFor(false))
}

func TestCPUListRoundTrip(t *testing.T) {
	set, err := parseCPUs(formatCPUs([]int{0, 3, 7}))
	assert.NoError(t, err)
	assert.Equal(t, []int{0, 3, 7}, cpuList(&set, 8))

	_, err = parseCPUs("1,x")
	assert.Error(t, err)
}
