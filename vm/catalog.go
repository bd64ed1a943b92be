package vm

import (
	"github.com/chazu/loomscript/guest"
	"github.com/chazu/loomscript/reflection"
)

// Full names of the foundational types.
const (
	ObjectTypeName     = "system.Object"
	NullTypeName       = "system.Null"
	BooleanTypeName    = "system.Boolean"
	NumberTypeName     = "system.Number"
	StringTypeName     = "system.String"
	FunctionTypeName   = "system.Function"
	VectorTypeName     = "system.Vector"
	ReflectionTypeName = "system.reflection.Type"
)

// cacheAssemblyTypes registers a freshly built assembly with the
// instance: assembly lookup, ordinal table, name map, foundational
// types, member name interning and the type cache.
func (s *State) cacheAssemblyTypes(a *reflection.Assembly, types []*reflection.Type) {
	s.g.RegistryTable(SlotAssemblyLookup).Set(a.UniqueID(), a)

	if a.OrdinalTypes() != nil {
		s.fatalf("vm: assembly %s types cache error, ordinal table already exists", a.Name())
	}

	ordinal := make([]*reflection.Type, len(types)+1)
	a.SetOrdinalTypes(ordinal)

	for _, t := range types {
		a.SetType(t)

		id := t.TypeID()
		if id <= 0 || id > len(types) {
			s.fatalf("vm: type %s has id %d outside [1, %d]", t.FullName(), id, len(types))
		}
		if prev := ordinal[id]; prev != nil && prev != t {
			s.fatalf("vm: types %s and %s share id %d", prev.FullName(), t.FullName(), id)
		}
		ordinal[id] = t

		s.recordFoundationalType(t)
		s.internMemberNames(t)

		if _, ok := s.types[t.FullName()]; !ok {
			s.types[t.FullName()] = t
		}
	}

	for _, f := range s.foundationalTypes() {
		if *f.slot == nil {
			s.fatalf("vm: cacheAssemblyTypes - %s not found", f.name)
		}
	}

	s.phase = PhaseCached
}

type foundationalType struct {
	name string
	slot **reflection.Type
}

func (s *State) foundationalTypes() []foundationalType {
	return []foundationalType{
		{ObjectTypeName, &s.ObjectType},
		{NullTypeName, &s.NullType},
		{BooleanTypeName, &s.BooleanType},
		{NumberTypeName, &s.NumberType},
		{StringTypeName, &s.StringType},
		{FunctionTypeName, &s.FunctionType},
		{VectorTypeName, &s.VectorType},
		{ReflectionTypeName, &s.ReflectionType},
	}
}

func (s *State) recordFoundationalType(t *reflection.Type) {
	for _, f := range s.foundationalTypes() {
		if t.FullName() == f.name {
			*f.slot = t
			return
		}
	}
}

func (s *State) clearFoundationalTypes() {
	for _, f := range s.foundationalTypes() {
		*f.slot = nil
	}
}

// isFoundational reports whether t is one of the recorded foundational types.
func (s *State) isFoundational(t *reflection.Type) bool {
	for _, f := range s.foundationalTypes() {
		if *f.slot == t {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Member name interning
// ---------------------------------------------------------------------------

// internMemberNames records, once per type, the short names of the type
// and of each of its own members.
func (s *State) internMemberNames(t *reflection.Type) {
	names := s.g.RegistryTable(SlotMemberNames)
	if names.Get(t) != nil {
		return
	}
	names.Set(t, t.Name())
	for _, m := range t.FindMembers(reflection.AllMembers, false) {
		names.Set(m, m.Name())
	}
}

// MemberName returns the interned name of a type or member, or "".
func (s *State) MemberName(key any) string {
	if s.g == nil {
		return ""
	}
	name, _ := s.g.RegistryTable(SlotMemberNames).Get(key).(string)
	return name
}

// ---------------------------------------------------------------------------
// Teardown
// ---------------------------------------------------------------------------

// purgeType drops every reference the instance holds to t.
func (s *State) purgeType(t *reflection.Type) {
	g := s.g

	g.RegistryTable(SlotMethodLookup).DeleteIf(func(_, v guest.Value) bool {
		m, ok := v.(*reflection.MethodInfo)
		return ok && m.DeclaringType() == t
	})

	names := g.RegistryTable(SlotMemberNames)
	names.Set(t, nil)
	for _, m := range t.FindMembers(reflection.AllMembers, false) {
		names.Set(m, nil)
	}

	g.RegistryTable(SlotClasses).Set(t, nil)

	if s.types[t.FullName()] == t {
		delete(s.types, t.FullName())
	}
	delete(s.statics, t)
}

// destroyType removes t from the instance and from its assembly.
func (s *State) destroyType(t *reflection.Type) {
	if s.isFoundational(t) {
		s.fatalf("vm: foundational type %s cannot be removed: %s", t.FullName(), t.MissingReason())
	}
	s.purgeType(t)
	t.Destroy()
}

func (s *State) destroyAssembly(a *reflection.Assembly) {
	for _, t := range a.Types() {
		s.purgeType(t)
	}
	s.g.RegistryTable(SlotAssemblyLookup).Set(a.UniqueID(), nil)
	a.Destroy()
	log.Debugf("vm: destroyed assembly %s", a.Name())
}
