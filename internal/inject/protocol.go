package inject

import (
	"fmt"
	"strconv"
	"strings"
)

// Environment variables carrying the main channel descriptors. Unused slots
// are set to -1.
const (
	EnvReadFD1  = "ADAPTYST_READ_FD1"
	EnvReadFD2  = "ADAPTYST_READ_FD2"
	EnvWriteFD1 = "ADAPTYST_WRITE_FD1"
	EnvWriteFD2 = "ADAPTYST_WRITE_FD2"
)

// Main channel messages.
const (
	MsgInit    = "init"
	MsgAck     = "ack"
	MsgInvalid = "invalid"
	MsgStop    = "<STOP>"
)

// Region states.
const (
	StateStart = "start"
	StateEnd   = "end"
)

// ModuleLine describes one injectable module during the handshake.
type ModuleLine struct {
	Name string
	ID   uint32
	// ReadFDs and WriteFDs are the child's descriptor numbers, -1 when
	// unused.
	ReadFDs  [2]int
	WriteFDs [2]int
	// Path is the injection library to open.
	Path string
}

func (l ModuleLine) String() string {
	return fmt.Sprintf("%s %d %d %d %d %d %s", l.Name, l.ID,
		l.ReadFDs[0], l.ReadFDs[1], l.WriteFDs[0], l.WriteFDs[1], l.Path)
}

// ParseModuleLine parses a handshake line. The path is the remainder of
// the line and may contain spaces.
func ParseModuleLine(s string) (ModuleLine, error) {
	parts := strings.SplitN(s, " ", 7)
	if len(parts) != 7 || parts[0] == "" || parts[6] == "" {
		return ModuleLine{}, fmt.Errorf("malformed module line %q", s)
	}

	id, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return ModuleLine{}, fmt.Errorf("malformed module ID in %q: %w", s, err)
	}

	var fds [4]int
	for i := range fds {
		fds[i], err = strconv.Atoi(parts[2+i])
		if err != nil {
			return ModuleLine{}, fmt.Errorf("malformed descriptor in %q: %w", s, err)
		}
	}

	return ModuleLine{
		Name:     parts[0],
		ID:       uint32(id),
		ReadFDs:  [2]int{fds[0], fds[1]},
		WriteFDs: [2]int{fds[2], fds[3]},
		Path:     parts[6],
	}, nil
}

// Region is a start or end marker sent by instrumented code.
type Region struct {
	State     string
	PartID    string
	Timestamp string
	Name      string
}

func (r Region) String() string {
	return r.State + " " + r.PartID + " " + r.Timestamp + " " + r.Name
}

// ParseRegion parses "<state> <part-id> <timestamp> <name>". The name comes
// last and may contain spaces.
func ParseRegion(msg string) (Region, bool) {
	parts := strings.SplitN(msg, " ", 4)
	if len(parts) != 4 {
		return Region{}, false
	}
	if parts[0] != StateStart && parts[0] != StateEnd {
		return Region{}, false
	}
	if parts[1] == "" || parts[3] == "" {
		return Region{}, false
	}
	if _, err := strconv.ParseInt(parts[2], 10, 64); err != nil {
		return Region{}, false
	}
	return Region{State: parts[0], PartID: parts[1], Timestamp: parts[2], Name: parts[3]}, true
}
