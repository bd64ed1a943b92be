// Package native holds the host side bindings for script types that are
// implemented, fully or in part, by Go code.
package native

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/loomscript/guest"
	"github.com/chazu/loomscript/reflection"
)

// NativeClassesGlobal is the guest global the registry publishes native
// class descriptors into.
const NativeClassesGlobal = "__ls_nativeclasses"

var log = commonlog.GetLogger("loom.native")

var (
	ErrDuplicateBinding = errors.New("native binding already registered")
	ErrUnboundMethod    = errors.New("native method has no implementation")
)

// Binding describes the host implementation of one script type.
type Binding struct {
	// Name is the full script type name the binding serves.
	Name string

	// CType is the host type name reported in diagnostics.
	CType string

	// Managed bindings leave instance lifetime to the guest collector.
	Managed bool

	// Methods implements the native methods of the script type by name.
	Methods map[string]guest.NativeFunc
}

// IsManaged reports whether instances are owned by the guest.
func (b *Binding) IsManaged() bool { return b.Managed }

// CTypeName returns the host type name.
func (b *Binding) CTypeName() string {
	if b.CType == "" {
		return b.Name
	}
	return b.CType
}

// Validate checks that every native method declared by t has an
// implementation in the binding.
func (b *Binding) Validate(t *reflection.Type) error {
	for _, m := range t.Methods() {
		if !m.IsNative() {
			continue
		}
		if _, ok := b.Methods[m.Name()]; !ok {
			return fmt.Errorf("%w: %s (bound as %s)", ErrUnboundMethod, m.FullMemberName(), b.CTypeName())
		}
	}
	return nil
}

// Registry maps script type names to native bindings. A registry may be
// shared by several runtime instances.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]*Binding
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]*Binding)}
}

// Register adds a binding.
func (r *Registry) Register(b *Binding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bindings[b.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBinding, b.Name)
	}
	r.bindings[b.Name] = b
	return nil
}

// MustRegister is Register for static setup code.
func (r *Registry) MustRegister(b *Binding) {
	if err := r.Register(b); err != nil {
		panic(err)
	}
}

// NativeType returns the binding for t.
func (r *Registry) NativeType(t *reflection.Type) (*Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[t.FullName()]
	return b, ok
}

// ResolveScriptType attaches the host implementations of t's native
// methods as guest functions.
func (r *Registry) ResolveScriptType(s *guest.State, t *reflection.Type) {
	b, ok := r.NativeType(t)
	if !ok {
		return
	}
	for _, m := range t.Methods() {
		if !m.IsNative() || m.Function() != nil {
			continue
		}
		if fn, ok := b.Methods[m.Name()]; ok {
			m.SetFunction(s.NewNative(m.FullMemberName(), fn))
		}
	}
}

func (r *Registry) sortedNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.bindings))
	for name := range r.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterNativeTypes publishes a descriptor table per binding into the
// guest's native class table.
func (r *Registry) RegisterNativeTypes(s *guest.State) {
	classes, ok := s.GetGlobal(NativeClassesGlobal).(*guest.Table)
	if !ok {
		classes = s.NewTable()
		s.SetGlobal(NativeClassesGlobal, classes)
	}
	for _, name := range r.sortedNames() {
		b, _ := r.lookup(name)
		desc := s.NewTable()
		desc.Set("ctype", b.CTypeName())
		desc.Set("managed", b.Managed)
		classes.Set(name, desc)
	}
	log.Debugf("registered %d native types", classes.Len())
}

// Shutdown withdraws the native class table from the guest.
func (r *Registry) Shutdown(s *guest.State) {
	if classes, ok := s.GetGlobal(NativeClassesGlobal).(*guest.Table); ok {
		for _, name := range r.sortedNames() {
			classes.Set(name, nil)
		}
	}
	s.SetGlobal(NativeClassesGlobal, nil)
}

// DumpManagedNatives logs the managed bindings visible to the guest and
// returns their names.
func (r *Registry) DumpManagedNatives(s *guest.State) []string {
	classes, _ := s.GetGlobal(NativeClassesGlobal).(*guest.Table)
	var out []string
	for _, name := range r.sortedNames() {
		b, _ := r.lookup(name)
		if !b.Managed {
			continue
		}
		if classes != nil && classes.Get(name) == nil {
			continue
		}
		out = append(out, name)
		log.Infof("managed native %s (%s)", name, b.CTypeName())
	}
	return out
}

func (r *Registry) lookup(name string) (*Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[name]
	return b, ok
}
