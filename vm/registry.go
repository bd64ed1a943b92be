package vm

import (
	"sync"

	"github.com/chazu/loomscript/guest"
)

// Process-wide instance tracking. The guest VM has no notion of an
// owner, so natives called from the guest find their instance here.
var (
	instancesMu sync.Mutex
	instances   = make(map[*guest.State]*State)

	// lastActive caches the most recent FromGuest answer. Both fields are
	// nil when the slot is empty.
	lastActive struct {
		g *guest.State
		s *State
	}

	commandLine []string
)

func register(g *guest.State, s *State) {
	instancesMu.Lock()
	defer instancesMu.Unlock()
	instances[g] = s
}

func deregister(g *guest.State) {
	instancesMu.Lock()
	defer instancesMu.Unlock()
	delete(instances, g)
	if lastActive.g == g {
		lastActive.g, lastActive.s = nil, nil
	}
}

func clearLastActive(g *guest.State) {
	instancesMu.Lock()
	defer instancesMu.Unlock()
	if lastActive.g == g {
		lastActive.g, lastActive.s = nil, nil
	}
}

// FromGuest returns the instance owning g, or nil.
func FromGuest(g *guest.State) *State {
	instancesMu.Lock()
	defer instancesMu.Unlock()
	if g != nil && lastActive.g == g {
		return lastActive.s
	}
	s := instances[g]
	if s != nil {
		lastActive.g, lastActive.s = g, s
	}
	return s
}

// LastActive returns the instance in the last-active slot, or nil.
func LastActive() *State {
	instancesMu.Lock()
	defer instancesMu.Unlock()
	return lastActive.s
}

// OpenInstances returns the number of open instances in the process.
func OpenInstances() int {
	instancesMu.Lock()
	defer instancesMu.Unlock()
	return len(instances)
}

// SetCommandLine records the process arguments for the guest.
func SetCommandLine(args []string) {
	instancesMu.Lock()
	defer instancesMu.Unlock()
	commandLine = append([]string(nil), args...)
}

// CommandLine returns the recorded process arguments.
func CommandLine() []string {
	instancesMu.Lock()
	defer instancesMu.Unlock()
	return append([]string(nil), commandLine...)
}
