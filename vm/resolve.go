package vm

import (
	"github.com/chazu/loomscript/reflection"
)

// finalizeAssemblyLoad binds natives, prunes incomplete types and brings
// the survivors to life in the guest.
func (s *State) finalizeAssemblyLoad(a *reflection.Assembly, types []*reflection.Type) []*reflection.Type {
	for _, t := range types {
		if t.IsNative() || t.HasStaticNativeMember() {
			s.natives.ResolveScriptType(s.g, t)
		}
	}

	types = s.pruneMissing(types)

	s.declareTypes(types)
	s.phase = PhaseValidated

	s.initializeTypes(types)

	if s.cfg.ValidateTypes {
		for _, t := range types {
			s.validateType(t)
		}
	}

	s.bootstrap(a)

	s.phase = PhaseFinalized
	return types
}

// incomplete reports whether t or one of its ancestors is missing, or
// whether it imports a missing type.
func incomplete(t *reflection.Type) bool {
	for c := t; c != nil; c = c.BaseType() {
		if c.Missing() {
			return true
		}
	}
	for _, imp := range t.Imports() {
		if imp.Missing() {
			return true
		}
	}
	return false
}

// importIndex maps each imported type to the types in types importing it.
type importIndex map[*reflection.Type][]*reflection.Type

func newImportIndex(types []*reflection.Type) importIndex {
	importers := make(importIndex)
	for _, t := range types {
		for _, imp := range t.Imports() {
			importers[imp] = append(importers[imp], t)
		}
	}
	return importers
}

// markImportersMissing marks every type that imports missing, directly or
// through other importers, as missing. The visited set keeps cyclic
// import graphs finite.
func markImportersMissing(importers importIndex, missing *reflection.Type) {
	visited := map[*reflection.Type]bool{missing: true}
	queue := []*reflection.Type{missing}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, t := range importers[cur] {
			if visited[t] {
				continue
			}
			visited[t] = true
			if !t.Missing() {
				t.SetMissing("missing import %s", cur.FullName())
			}
			queue = append(queue, t)
		}
	}
}

// pruneMissing marks incomplete types missing, propagates that through
// importers, and returns the surviving types in their original order.
// Dropped types are destroyed.
func (s *State) pruneMissing(types []*reflection.Type) []*reflection.Type {
	importers := newImportIndex(types)
	shrink := false
	// A type can precede a base that is only marked missing later in the
	// sweep, so sweep until nothing new is marked.
	marked := make(map[*reflection.Type]bool)
	for changed := true; changed; {
		changed = false
		for _, t := range types {
			if marked[t] || !incomplete(t) {
				continue
			}
			marked[t] = true
			changed, shrink = true, true
			t.SetMissing("incomplete")
			markImportersMissing(importers, t)
		}
	}
	if !shrink {
		return types
	}

	kept := types[:0]
	var dropped []*reflection.Type
	for _, t := range types {
		if t.Missing() {
			dropped = append(dropped, t)
			continue
		}
		kept = append(kept, t)
	}
	for _, t := range dropped {
		log.Warningf("vm: removing type %s: %s", t.FullName(), t.MissingReason())
		s.destroyType(t)
	}
	clear(types[len(kept):])
	return kept
}
