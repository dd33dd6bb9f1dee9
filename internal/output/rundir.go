package output

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RunDirName returns adaptyst_<UTC %Y_%m_%d_%H_%M_%S>__<index>.
func RunDirName(t time.Time, index int) string {
	return fmt.Sprintf("adaptyst_%s__%d", t.UTC().Format("2006_01_02_15_04_05"), index)
}

// NewRunDir creates the output directory of a run under parent. When name
// is empty the first free RunDirName starting at index 1 is used. The
// timestamp, the executing host and the label (defaulting to the directory
// name) are recorded in dirmeta.json.
func NewRunDir(parent, name, label string, now time.Time) (*Path, error) {
	if name == "" {
		for i := 1; ; i++ {
			name = RunDirName(now, i)
			if _, err := os.Stat(filepath.Join(parent, name)); os.IsNotExist(err) {
				break
			}
		}
	} else if _, err := os.Stat(filepath.Join(parent, name)); err == nil {
		return nil, fmt.Errorf("%s already exists", filepath.Join(parent, name))
	}

	p, err := NewPath(filepath.Join(parent, name))
	if err != nil {
		return nil, err
	}

	utc := now.UTC()
	p.StageMetadata("year", utc.Year())
	p.StageMetadata("month", int(utc.Month()))
	p.StageMetadata("day", utc.Day())
	p.StageMetadata("hour", utc.Hour())
	p.StageMetadata("minute", utc.Minute())
	p.StageMetadata("second", utc.Second())

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "(unknown)"
	}
	p.StageMetadata("executor", host)

	if label == "" {
		label = filepath.Base(name)
	}
	p.StageMetadata("label", label)

	if err := p.SaveMetadata(); err != nil {
		return nil, err
	}
	return p, nil
}
