package vm

import (
	"github.com/chazu/loomscript/guest"
	"github.com/chazu/loomscript/reflection"
)

// StaticInitializer is the static method run after a type's static
// fields have their initial values.
const StaticInitializer = "__ls_staticinit"

// Class table keys.
const (
	classType        = "__ls_type"
	className        = "__ls_name"
	classTypeID      = "__ls_typeid"
	classBase        = "__ls_base"
	classInstance    = "__ls_instance"
	classFields      = "__ls_fields"
	classInitialized = "__ls_initialized"
)

type staticState int

const (
	staticsPending staticState = iota
	staticsRunning
	staticsDone
)

// ClassTable returns the guest class table of t, or nil when t has not
// been declared.
func (s *State) ClassTable(t *reflection.Type) *guest.Table {
	if s.g == nil || t == nil {
		return nil
	}
	ct, _ := s.g.RegistryTable(SlotClasses).Get(t).(*guest.Table)
	return ct
}

// RegisterMethodFunction records fn as an implementation of m for
// tracebacks and profiling. Native wrappers that forward to a script
// method register under the same method.
func (s *State) RegisterMethodFunction(fn *guest.Function, m *reflection.MethodInfo) {
	s.g.RegistryTable(SlotMethodLookup).Set(fn, m)
}

// MethodForFunction returns the method fn implements, or nil.
func (s *State) MethodForFunction(fn *guest.Function) *reflection.MethodInfo {
	if s.g == nil {
		return nil
	}
	m, _ := s.g.RegistryTable(SlotMethodLookup).Get(fn).(*reflection.MethodInfo)
	return m
}

// ---------------------------------------------------------------------------
// Declaration
// ---------------------------------------------------------------------------

// declareTypes declares every live type and then validates the native
// bindings of those that have any.
func (s *State) declareTypes(types []*reflection.Type) {
	for _, t := range types {
		if t.Missing() {
			continue
		}
		s.declareClass(t)
	}

	for _, t := range types {
		if t.Missing() {
			continue
		}
		if t.IsNative() || t.HasStaticNativeMember() {
			s.validateNative(t)
		}
	}
}

func (s *State) validateNative(t *reflection.Type) {
	b, ok := s.natives.NativeType(t)
	if !ok {
		s.fatalf("vm: unable to get native binding for type %s", t.FullName())
	}

	if t.IsNativeManaged() != b.IsManaged() {
		if t.IsNativeManaged() {
			s.fatalf("vm: managed mismatch for type %s, script declaration specifies managed while native bindings are unmanaged", t.FullName())
		}
		s.fatalf("vm: managed mismatch for type %s, script declaration specifies unmanaged while native bindings are managed", t.FullName())
	}

	if err := b.Validate(t); err != nil {
		s.fatalf("vm: %v", err)
	}
	t.SetCTypeName(b.CTypeName())
}

// declareClass creates the class table of t. Declaring twice is a no-op.
func (s *State) declareClass(t *reflection.Type) {
	if s.ClassTable(t) != nil {
		return
	}
	g := s.g

	ct := g.NewTable()
	ct.Set(classType, t)
	ct.Set(className, t.FullName())
	ct.Set(classTypeID, float64(t.TypeID()))

	for _, m := range t.Methods() {
		if fn := s.methodFunction(m); fn != nil {
			ct.Set(m.Name(), fn)
		}
	}

	g.RegistryTable(SlotClasses).Set(t, ct)
	log.Debugf("vm: declared %s", t.FullName())
}

// methodFunction returns the guest function implementing m, loading it
// from bytecode for script methods. Unbound natives yield nil.
func (s *State) methodFunction(m *reflection.MethodInfo) *guest.Function {
	if fn := m.Function(); fn != nil {
		s.RegisterMethodFunction(fn, m)
		return fn
	}
	if m.IsNative() {
		return nil
	}

	fn, err := s.g.Load(m.ByteCode, m.Source(), m.FullMemberName(), m.Line)
	if err != nil {
		s.fatalf("vm: unable to load %s: %v", m.FullMemberName(), err)
	}
	m.SetFunction(fn)
	s.RegisterMethodFunction(fn, m)
	return fn
}

// ---------------------------------------------------------------------------
// Initialization
// ---------------------------------------------------------------------------

// initializeTypes caches members, initializes every class, and only then
// runs static initializers, which may read sibling types.
func (s *State) initializeTypes(types []*reflection.Type) {
	for _, t := range types {
		if t.Missing() {
			continue
		}
		t.Cache()
	}

	for _, t := range types {
		if t.Missing() {
			continue
		}
		s.initializeClass(t)
	}

	for _, t := range types {
		if t.Missing() {
			continue
		}
		s.initializeStatics(t)
	}
}

// initializeClass links the class to its base and builds the instance
// method and field tables, inherited entries included.
func (s *State) initializeClass(t *reflection.Type) {
	ct := s.ClassTable(t)
	if ct == nil {
		s.fatalf("vm: class %s initialized before it was declared", t.FullName())
	}
	g := s.g

	if base := s.ClassTable(t.BaseType()); base != nil {
		ct.Set(classBase, base)
	}

	methods := g.NewTable()
	fields := g.NewTable()

	// Bases first so nearer declarations win.
	members := t.FindMembers(reflection.MemberTypes{Method: true, Field: true}, true)
	for i := len(members) - 1; i >= 0; i-- {
		if members[i].IsStatic() {
			continue
		}
		switch m := members[i].(type) {
		case *reflection.MethodInfo:
			if fn := m.Function(); fn != nil {
				methods.Set(m.Name(), fn)
			}
		case *reflection.FieldInfo:
			fields.Set(m.Name(), m.Default)
		}
	}

	ct.Set(classInstance, methods)
	ct.Set(classFields, fields)
	ct.Set(classInitialized, true)
}

// initializeStatics assigns static field values and runs the type's
// static initializer. Types referenced by field initializers are
// initialized first.
func (s *State) initializeStatics(t *reflection.Type) {
	if s.statics[t] != staticsPending {
		return
	}
	s.statics[t] = staticsRunning

	ct := s.ClassTable(t)
	for _, f := range t.Fields() {
		if !f.IsStatic() {
			continue
		}
		v := f.Default
		if f.Init != "" {
			v = s.staticReference(t, f.Init)
		}
		ct.Set(f.Name(), v)
	}

	for _, m := range t.Methods() {
		if m.IsStatic() && m.Name() == StaticInitializer {
			s.callMethod(m)
			break
		}
	}

	s.statics[t] = staticsDone
}

func (s *State) staticReference(from *reflection.Type, ref string) guest.Value {
	typeName, field := reflection.SplitName(ref)
	rt := s.GetType(typeName)
	if rt == nil || s.ClassTable(rt) == nil {
		s.fatalf("vm: static initializer of %s references unknown type %s", from.FullName(), typeName)
	}
	s.initializeStatics(rt)
	return s.ClassTable(rt).Get(field)
}

// StaticField returns the current value of a static field.
func (s *State) StaticField(typeName, field string) guest.Value {
	ct := s.ClassTable(s.GetType(typeName))
	if ct == nil {
		return nil
	}
	return ct.Get(field)
}

// ---------------------------------------------------------------------------
// Runtime validation and bootstrap
// ---------------------------------------------------------------------------

// validateType checks that t is fully materialized in the guest.
func (s *State) validateType(t *reflection.Type) {
	ct := s.ClassTable(t)
	if ct == nil {
		s.fatalf("vm: type %s has no class table", t.FullName())
	}
	if ct.Get(classInitialized) != true {
		s.fatalf("vm: type %s was not initialized", t.FullName())
	}
	if base := t.BaseType(); base != nil && s.ClassTable(base) == nil {
		s.fatalf("vm: base type %s of %s has no class table", base.FullName(), t.FullName())
	}
	for _, m := range t.Methods() {
		if m.Function() == nil {
			s.fatalf("vm: method %s has no implementation", m.FullMemberName())
		}
	}
}

// bootstrap runs the assembly entry point, if it has one.
func (s *State) bootstrap(a *reflection.Assembly) {
	entry := a.EntryPoint()
	if entry == "" {
		return
	}
	typeName, method := reflection.SplitName(entry)
	log.Infof("vm: bootstrapping %s", entry)
	s.InvokeStaticMethod(typeName, method)
}
