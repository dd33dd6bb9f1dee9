package process

import (
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// CPUConfig partitions logical cores between profilers and the workflow.
// It is immutable once parsed.
type CPUConfig struct {
	mask            string
	valid           bool
	profilerThreads int
	profiler        unix.CPUSet
	workflow        unix.CPUSet
}

// ParseCPUMask parses a mask with one character per logical core:
// ' ' unused, 'p' profilers only, 'c' workflow only, 'b' both. Any other
// character invalidates the whole config. An empty mask is invalid.
func ParseCPUMask(mask string) CPUConfig {
	c := CPUConfig{mask: mask}
	if mask == "" {
		return c
	}

	c.valid = true
	for i, ch := range []byte(mask) {
		switch ch {
		case 'p':
			c.profilerThreads++
			c.profiler.Set(i)
		case 'c':
			c.workflow.Set(i)
		case 'b':
			c.profilerThreads++
			c.profiler.Set(i)
			c.workflow.Set(i)
		case ' ':
		default:
			return CPUConfig{mask: mask}
		}
	}
	return c
}

func (c CPUConfig) Valid() bool              { return c.valid }
func (c CPUConfig) Mask() string             { return c.mask }
func (c CPUConfig) ProfilerThreads() int     { return c.profilerThreads }
func (c CPUConfig) ProfilerSet() unix.CPUSet { return c.profiler }
func (c CPUConfig) WorkflowSet() unix.CPUSet { return c.workflow }
func (c CPUConfig) ProfilerCPUs() []int      { return cpuList(&c.profiler, len(c.mask)) }
func (c CPUConfig) WorkflowCPUs() []int      { return cpuList(&c.workflow, len(c.mask)) }

// cpusFor returns the CPU list for a role, or nil when affinity should be
// left alone.
func (c CPUConfig) cpusFor(profiler bool) []int {
	if !c.valid {
		return nil
	}
	if profiler {
		return c.ProfilerCPUs()
	}
	return c.WorkflowCPUs()
}

func cpuList(set *unix.CPUSet, n int) []int {
	cpus := []int{}
	for i := 0; i < n; i++ {
		if set.IsSet(i) {
			cpus = append(cpus, i)
		}
	}
	return cpus
}

func formatCPUs(cpus []int) string {
	parts := make([]string, len(cpus))
	for i, cpu := range cpus {
		parts[i] = strconv.Itoa(cpu)
	}
	return strings.Join(parts, ",")
}

func parseCPUs(s string) (unix.CPUSet, error) {
	var set unix.CPUSet
	for _, part := range strings.Split(s, ",") {
		cpu, err := strconv.Atoi(part)
		if err != nil {
			return set, err
		}
		set.Set(cpu)
	}
	return set, nil
}
