// Package guest is the embedded guest VM shell that the runtime drives.
//
// It exposes the small embedding surface the host needs: integer registry
// slots, globals, tables (including weak-keyed tables), a value stack,
// a call stack with debug information, collector control and an
// allocator callback. It does not define an instruction set; script
// function bodies are produced by a pluggable ChunkLoader, by default
// the Lua loader installed by OpenLua.
package guest

import (
	"fmt"
	"runtime"
)

// Value is any guest value: nil, bool, float64, string, *Table,
// *Function, or an arbitrary comparable host pointer (light userdata).
type Value any

// AllocFunc is called for every allocation (osize 0), free (nsize 0)
// and resize the guest performs.
type AllocFunc func(osize, nsize int)

// ChunkLoader turns a compiled chunk into a callable body.
type ChunkLoader func(s *State, chunk []byte, chunkName string) (NativeFunc, error)

// Approximate allocation sizes charged to the allocator.
const (
	tableSize    = 56
	entrySize    = 40
	functionSize = 48
	frameSize    = 32

	// gcStepBytes is how much the guest allocates between automatic weak
	// sweeps while the collector is running.
	gcStepBytes = 64 << 10
)

// GCOp selects a collector operation.
type GCOp int

const (
	GCStop GCOp = iota
	GCRestart
	GCCollect
	GCCount
	GCIsRunning
)

// State is one guest VM.
type State struct {
	registry map[int]Value
	globals  *Table

	stack  []Value
	frames []*frame

	// handlers is the stack of error handlers installed by PCall.
	handlers []*Function

	gcRunning  bool
	sinceSweep int
	weakTables []*Table

	alloc  AllocFunc
	live   int
	loader ChunkLoader
	lua    *luaRuntime
	hook   HookFunc
	closed bool
}

// NewState creates a guest VM. The collector starts running, as the
// guest's own default; hosts that want to control cadence stop it.
func NewState(alloc AllocFunc) *State {
	s := &State{
		registry:  make(map[int]Value),
		stack:     make([]Value, 0, 32),
		gcRunning: true,
		alloc:     alloc,
	}
	s.globals = s.NewTable()
	return s
}

// Close releases everything the guest allocated. The state is unusable
// afterwards.
func (s *State) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.charge(s.live, 0)
	s.registry = nil
	s.globals = nil
	s.stack = nil
	s.frames = nil
	s.handlers = nil
	s.weakTables = nil
	s.hook = nil
	if s.lua != nil {
		s.lua.close()
		s.lua = nil
	}
}

// SetHook installs fn to be called on every function call; nil removes
// the hook.
func (s *State) SetHook(fn HookFunc) { s.hook = fn }

// Hook returns the installed call hook.
func (s *State) Hook() HookFunc { return s.hook }

// Closed reports whether Close has been called.
func (s *State) Closed() bool { return s.closed }

func (s *State) charge(osize, nsize int) {
	s.live += nsize - osize
	if s.alloc != nil {
		s.alloc(osize, nsize)
	}
	if nsize > osize && s.gcRunning {
		s.sinceSweep += nsize - osize
		if s.sinceSweep >= gcStepBytes {
			s.sinceSweep = 0
			s.sweepWeak()
		}
	}
}

// Allocated returns the number of bytes the guest currently holds.
func (s *State) Allocated() int { return s.live }

// SetChunkLoader installs the function used by Load.
func (s *State) SetChunkLoader(l ChunkLoader) { s.loader = l }

// Load compiles a chunk into a script function. Without a chunk loader
// the function has an empty body.
func (s *State) Load(chunk []byte, chunkName, name string, lineDefined int) (*Function, error) {
	var body NativeFunc
	if s.loader != nil {
		b, err := s.loader(s, chunk, chunkName)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", chunkName, err)
		}
		body = b
	}
	return s.NewScript(name, chunkName, lineDefined, body), nil
}

// ---------------------------------------------------------------------------
// Registry and globals
// ---------------------------------------------------------------------------

// RawSetI stores v in the registry slot.
func (s *State) RawSetI(slot int, v Value) {
	if v == nil {
		delete(s.registry, slot)
		return
	}
	s.registry[slot] = v
}

// RawGetI returns the registry slot value.
func (s *State) RawGetI(slot int) Value { return s.registry[slot] }

// RegistryTable returns the registry slot value when it is a table.
func (s *State) RegistryTable(slot int) *Table {
	t, _ := s.registry[slot].(*Table)
	return t
}

// Globals returns the global table.
func (s *State) Globals() *Table { return s.globals }

// SetGlobal sets a global variable.
func (s *State) SetGlobal(name string, v Value) { s.globals.Set(name, v) }

// GetGlobal returns a global variable.
func (s *State) GetGlobal(name string) Value { return s.globals.Get(name) }

// ---------------------------------------------------------------------------
// Value stack
// ---------------------------------------------------------------------------

// Push pushes v on the value stack.
func (s *State) Push(v Value) { s.stack = append(s.stack, v) }

// Pop removes n values from the top of the stack.
func (s *State) Pop(n int) {
	if n > len(s.stack) {
		n = len(s.stack)
	}
	s.stack = s.stack[:len(s.stack)-n]
}

// GetTop returns the number of values on the stack.
func (s *State) GetTop() int { return len(s.stack) }

// SetTop truncates or nil-extends the stack to n values.
func (s *State) SetTop(n int) {
	for len(s.stack) < n {
		s.stack = append(s.stack, nil)
	}
	s.stack = s.stack[:n]
}

// Index returns the value at a 1-based index; negative indices count
// from the top. Out of range indices yield nil.
func (s *State) Index(i int) Value {
	if i < 0 {
		i = len(s.stack) + i + 1
	}
	if i < 1 || i > len(s.stack) {
		return nil
	}
	return s.stack[i-1]
}

// StackSize returns the allocated size of the value stack.
func (s *State) StackSize() int { return cap(s.stack) }

// ---------------------------------------------------------------------------
// Collector
// ---------------------------------------------------------------------------

// GC performs a collector operation. GCCount returns kilobytes in use,
// GCCollect returns the number of weak entries reclaimed and
// GCIsRunning returns 1 when automatic collection is enabled.
func (s *State) GC(op GCOp) int {
	switch op {
	case GCStop:
		s.gcRunning = false
	case GCRestart:
		s.gcRunning = true
		s.sinceSweep = 0
	case GCCollect:
		runtime.GC()
		return s.sweepWeak()
	case GCCount:
		return s.live >> 10
	case GCIsRunning:
		if s.gcRunning {
			return 1
		}
	}
	return 0
}

func (s *State) sweepWeak() int {
	n := 0
	for _, t := range s.weakTables {
		n += t.Sweep()
	}
	return n
}

// TypeName returns the guest type name of v.
func TypeName(v Value) string {
	switch v.(type) {
	case nil:
		return "nil"
	case bool:
		return "boolean"
	case float64, int:
		return "number"
	case string:
		return "string"
	case *Table:
		return "table"
	case *Function:
		return "function"
	default:
		return "userdata"
	}
}
