package vm

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"

	"github.com/chazu/loomscript/guest"
	"github.com/chazu/loomscript/manifest"
	"github.com/chazu/loomscript/native"
	"github.com/chazu/loomscript/reflection"
)

var log = commonlog.GetLogger("loom.vm")

// Fixed registry slots installed by Open.
const (
	SlotClasses = iota + 1
	SlotManagedVersion
	SlotManagedUserData
	SlotNativeToScript
	SlotNativeDelegates
	SlotMemberNames
	SlotAssemblyLookup
	SlotMethodLookup
)

// Globals installed by Open.
const (
	GlobalNativeClasses = native.NativeClassesGlobal
	GlobalTraceback     = "__ls_traceback"
)

// ---------------------------------------------------------------------------
// State: one runtime instance
// ---------------------------------------------------------------------------

// State is one runtime instance. It owns exactly one guest VM between
// Open and Close, and every assembly loaded into it.
//
// A State is driven by one goroutine at a time.
type State struct {
	cfg     *manifest.Runtime
	natives *native.Registry

	g *guest.State

	assemblies []*reflection.Assembly

	// types caches every loaded type by full name. First writer wins.
	types map[string]*reflection.Type

	// Foundational types, found while caching the system assembly.
	ObjectType     *reflection.Type
	NullType       *reflection.Type
	BooleanType    *reflection.Type
	NumberType     *reflection.Type
	StringType     *reflection.Type
	FunctionType   *reflection.Type
	VectorType     *reflection.Type
	ReflectionType *reflection.Type

	allocated int64

	phase   LoadPhase
	staged  *reflection.Document
	statics map[*reflection.Type]staticState

	profiler *Profiler
}

// New creates a closed runtime instance. A nil cfg uses the defaults and
// a nil registry has no native bindings.
func New(cfg *manifest.Runtime, natives *native.Registry) *State {
	if cfg == nil {
		cfg = manifest.Default()
	}
	if natives == nil {
		natives = native.NewRegistry()
	}
	return &State{
		cfg:     cfg,
		natives: natives,
		types:   make(map[string]*reflection.Type),
		statics: make(map[*reflection.Type]staticState),
	}
}

// Guest returns the guest VM, or nil while closed.
func (s *State) Guest() *guest.State { return s.g }

// Config returns the instance configuration.
func (s *State) Config() *manifest.Runtime { return s.cfg }

// Natives returns the native binding registry.
func (s *State) Natives() *native.Registry { return s.natives }

// IsCompiling reports whether the instance only caches assemblies.
func (s *State) IsCompiling() bool { return s.cfg.CompileOnly }

// Assemblies returns the loaded assemblies in load order.
func (s *State) Assemblies() []*reflection.Assembly { return s.assemblies }

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Open creates the guest VM and installs the runtime registries. Opening
// an open instance is fatal.
func (s *State) Open() {
	if s.g != nil {
		s.fatalf("vm: Open called on an open instance")
	}

	g := guest.NewState(s.onAlloc)
	s.g = g
	register(g, s)

	// Collection cadence is driven by the host, see CollectGarbage.
	g.GC(guest.GCStop)

	g.OpenLibs()
	g.OpenSocket()
	g.OpenLua()

	for _, slot := range []int{
		SlotClasses,
		SlotManagedVersion,
		SlotManagedUserData,
		SlotNativeToScript,
		SlotNativeDelegates,
		SlotMemberNames,
		SlotAssemblyLookup,
	} {
		g.RawSetI(slot, g.NewTable())
	}

	methods := g.NewTable()
	mode := g.NewTable()
	mode.Set("__mode", "k")
	methods.SetMetatable(mode)
	g.RawSetI(SlotMethodLookup, methods)

	g.SetGlobal(GlobalNativeClasses, g.NewTable())
	g.SetGlobal(GlobalTraceback, g.NewNative(GlobalTraceback, traceback))
	setTraceMessage("")

	s.registerInstanceSupport()

	s.natives.RegisterNativeTypes(g)

	log.Infof("vm: opened (%s in use)", humanize.Bytes(uint64(max(s.allocated, 0))))
}

// Close destroys every owned assembly and the guest VM. Closing an
// instance that is not open is fatal.
func (s *State) Close() {
	if s.g == nil {
		s.fatalf("vm: Close called on an instance that is not open")
	}
	g := s.g

	clearLastActive(g)

	s.DisableProfiler()

	for _, a := range s.assemblies {
		s.destroyAssembly(a)
	}
	s.assemblies = nil
	s.types = make(map[string]*reflection.Type)
	s.statics = make(map[*reflection.Type]staticState)
	s.staged = nil
	s.phase = PhaseIdle
	s.clearFoundationalTypes()

	s.natives.Shutdown(g)

	g.Close()
	deregister(g)
	s.g = nil

	log.Info("vm: closed")
}

// CollectGarbage runs one full guest collection and leaves the collector
// stopped again. It returns the number of weak entries reclaimed.
func (s *State) CollectGarbage() int {
	s.g.GC(guest.GCRestart)
	n := s.g.GC(guest.GCCollect)
	s.g.GC(guest.GCStop)
	log.Debugf("vm: collected %d weak entries, %s in use", n, humanize.Bytes(uint64(max(s.allocated, 0))))
	return n
}

// registerInstanceSupport installs the guest functions the script side
// of the runtime calls back into.
func (s *State) registerInstanceSupport() {
	g := s.g
	support := g.NewTable()
	support.Set("collect", g.NewNative("collect", func(gs *guest.State, args []guest.Value) ([]guest.Value, error) {
		return []guest.Value{float64(FromGuest(gs).CollectGarbage())}, nil
	}))
	support.Set("allocated", g.NewNative("allocated", func(gs *guest.State, args []guest.Value) ([]guest.Value, error) {
		return []guest.Value{float64(FromGuest(gs).AllocatedBytes())}, nil
	}))
	support.Set("commandline", g.NewNative("commandline", func(gs *guest.State, args []guest.Value) ([]guest.Value, error) {
		out := gs.NewTable()
		for i, arg := range CommandLine() {
			out.Set(float64(i+1), arg)
		}
		return []guest.Value{out}, nil
	}))
	support.Set("gettype", g.NewNative("gettype", func(gs *guest.State, args []guest.Value) ([]guest.Value, error) {
		name, _ := argAt(args, 0).(string)
		if t := FromGuest(gs).GetType(name); t != nil {
			return []guest.Value{t}, nil
		}
		return []guest.Value{nil}, nil
	}))
	g.SetGlobal("__ls_vm", support)
}

func argAt(args []guest.Value, i int) guest.Value {
	if i < len(args) {
		return args[i]
	}
	return nil
}

// ---------------------------------------------------------------------------
// Fatal errors
// ---------------------------------------------------------------------------

// FatalError is raised, as a panic, for conditions the runtime cannot
// continue from. Report holds the logged report lines.
type FatalError struct {
	Message string
	Report  []string
}

func (e *FatalError) Error() string { return e.Message }

// Safely runs fn and returns the fatal error it raised, if any. Other
// panics propagate.
func Safely(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if fe, ok := r.(*FatalError); ok {
				err = fe
				return
			}
			panic(r)
		}
	}()
	fn()
	return nil
}

// fatalf reports a fatal condition. While the guest is open the full
// runtime error report is produced.
func (s *State) fatalf(format string, args ...any) {
	if s.g != nil {
		s.TriggerRuntimeError(format, args...)
	}
	msg := fmt.Sprintf(format, args...)
	log.Error(msg)
	panic(&FatalError{Message: msg, Report: []string{msg}})
}
