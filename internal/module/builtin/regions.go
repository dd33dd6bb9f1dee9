// Package builtin holds modules compiled into the coordinator.
package builtin

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/adaptyst/adaptyst/internal/module"
	"github.com/adaptyst/adaptyst/internal/output"
	"github.com/adaptyst/adaptyst/pkg/amod"
)

// RegionsName is the name the regions module is loaded under.
const RegionsName = "regions"

// Loader serves every built-in module.
func Loader() module.StaticLoader {
	return module.StaticLoader{RegionsName: Regions()}
}

// Interval is one completed region, stored in regions.dat as
// "<part> <start> <end> <name>".
type Interval struct {
	Part  string
	Start uint64
	End   uint64
	Name  string
}

func (i Interval) String() string {
	return i.Part + " " + strconv.FormatUint(i.Start, 10) + " " + strconv.FormatUint(i.End, 10) + " " + i.Name
}

// Duration returns End - Start in nanoseconds.
func (i Interval) Duration() uint64 { return i.End - i.Start }

// Summary is what meta_regions.json holds for every region name.
type Summary struct {
	Count  int     `json:"count"`
	MeanNS float64 `json:"mean_ns"`
	StdNS  float64 `json:"stddev_ns"`
	MedNS  float64 `json:"median_ns"`
	MinNS  float64 `json:"min_ns"`
	MaxNS  float64 `json:"max_ns"`
}

type recorder struct {
	mu        sync.Mutex
	open      map[string]uint64
	intervals map[string][]float64
	unmatched int
	out       *output.Array[Interval]
}

// regions profiles the workflow by recording the code regions it reports.
type regions struct {
	mu   sync.Mutex
	api  amod.API
	recs map[amod.ID]*recorder
}

// Regions returns a fresh symbol table for the regions module.
func Regions() amod.Symbols {
	r := &regions{recs: map[amod.ID]*recorder{}}
	return amod.Symbols{
		amod.SymTags:     []string{"regions", "timing"},
		amod.SymOptions:  []string{"summary"},
		amod.SymLogTypes: []string{"General"},

		"summary_help":    "Print per-region statistics when the workflow finishes",
		"summary_type":    amod.TypeBool,
		"summary_default": amod.Bool(true),

		amod.SymInit:        amod.InitFunc(r.init),
		amod.SymProcess:     amod.ProcessFunc(r.process),
		amod.SymClose:       amod.CloseFunc(r.close),
		amod.SymRegionStart: amod.RegionFunc(r.start),
		amod.SymRegionEnd:   amod.RegionFunc(r.end),
	}
}

func (r *regions) rec(id amod.ID) *recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recs[id]
}

func (r *regions) init(id amod.ID, api amod.API) bool {
	dir, err := output.NewPath(api.ModuleDir(id))
	if err != nil {
		api.SetError(id, err.Error())
		return false
	}
	out, err := output.NewArray[Interval](dir, "regions")
	if err != nil {
		api.SetError(id, err.Error())
		return false
	}
	if !api.SetWillProfile(id, true) {
		out.Close()
		api.SetError(id, "could not register as a profiler: "+api.ErrorMessage(id))
		return false
	}

	r.mu.Lock()
	r.api = api
	r.recs[id] = &recorder{
		open:      map[string]uint64{},
		intervals: map[string][]float64{},
		out:       out,
	}
	r.mu.Unlock()
	return true
}

func key(name, part string) string { return part + "\x00" + name }

func (r *regions) start(id amod.ID, name, part, timestamp string) bool {
	rec := r.rec(id)
	if rec == nil {
		return false
	}
	ts, err := strconv.ParseUint(timestamp, 10, 64)
	if err != nil {
		// The workflow could not read its clock.
		return true
	}
	rec.mu.Lock()
	rec.open[key(name, part)] = ts
	rec.mu.Unlock()
	return true
}

func (r *regions) end(id amod.ID, name, part, timestamp string) bool {
	rec := r.rec(id)
	if rec == nil {
		return false
	}
	ts, err := strconv.ParseUint(timestamp, 10, 64)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	k := key(name, part)
	start, ok := rec.open[k]
	delete(rec.open, k)
	if !ok || err != nil || ts < start {
		rec.unmatched++
		return true
	}

	iv := Interval{Part: part, Start: start, End: ts, Name: name}
	if err := rec.out.Append(iv); err != nil {
		r.api.SetError(id, err.Error())
		return false
	}
	rec.intervals[name] = append(rec.intervals[name], float64(iv.Duration()))
	return true
}

func (r *regions) process(id amod.ID, _ string) bool {
	rec := r.rec(id)
	if rec == nil {
		return false
	}
	r.mu.Lock()
	api := r.api
	r.mu.Unlock()

	if !api.ProfileNotify(id) {
		api.SetError(id, "could not report readiness: "+api.ErrorMessage(id))
		return false
	}
	api.ProfileWait(id)

	rec.mu.Lock()
	summaries := summarise(rec.intervals)
	unmatched := rec.unmatched + len(rec.open)
	rec.mu.Unlock()

	file := rec.out.File()
	names := make([]string, 0, len(summaries))
	for name, s := range summaries {
		if err := file.SetMetadata(name, s); err != nil {
			api.SetError(id, err.Error())
			return false
		}
		names = append(names, name)
	}
	sort.Strings(names)

	if v, ok := api.Option(id, "summary").(amod.Bool); ok && bool(v) && len(names) > 0 {
		api.Print(id, fmt.Sprintf("%d code region(s) recorded", len(names)), false, false, "General")
		for _, name := range names {
			s := summaries[name]
			api.Print(id, fmt.Sprintf("%s: %d run(s), mean %.0f ns, median %.0f ns", name, s.Count, s.MeanNS, s.MedNS), true, false, "General")
		}
	}
	if unmatched > 0 {
		api.Log(id, fmt.Sprintf("%d region marker(s) could not be matched", unmatched), "General")
	}
	return true
}

func (r *regions) close(id amod.ID) {
	r.mu.Lock()
	rec := r.recs[id]
	delete(r.recs, id)
	r.mu.Unlock()
	if rec != nil {
		rec.out.Close()
	}
}

// summarise computes the statistics of every region's durations.
func summarise(intervals map[string][]float64) map[string]Summary {
	out := make(map[string]Summary, len(intervals))
	for name, xs := range intervals {
		if len(xs) == 0 {
			continue
		}
		sorted := append([]float64(nil), xs...)
		sort.Float64s(sorted)

		s := Summary{
			Count:  len(sorted),
			MeanNS: stat.Mean(sorted, nil),
			MedNS:  stat.Quantile(0.5, stat.Empirical, sorted, nil),
			MinNS:  sorted[0],
			MaxNS:  sorted[len(sorted)-1],
		}
		if len(sorted) > 1 {
			s.StdNS = stat.StdDev(sorted, nil)
		}
		out[name] = s
	}
	return out
}
