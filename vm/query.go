package vm

import (
	"github.com/chazu/loomscript/reflection"
)

// GetType returns a loaded type by full name, or nil.
func (s *State) GetType(fullName string) *reflection.Type {
	return s.types[fullName]
}

// PackageTypes returns the types of a package across every loaded
// assembly, in load order.
func (s *State) PackageTypes(pkg string) []*reflection.Type {
	var types []*reflection.Type
	for _, a := range s.assemblies {
		types = a.PackageTypes(pkg, types)
	}
	return types
}

// Assembly returns a loaded assembly by name. The name may carry the
// module extension.
func (s *State) Assembly(name string) *reflection.Assembly {
	ext := s.cfg.Extension
	for _, a := range s.assemblies {
		if a.Name() == name {
			return a
		}
		if ext != "" && a.Name()+ext == name {
			return a
		}
	}
	return nil
}

// AssemblyByUID returns a loaded assembly by unique id.
func (s *State) AssemblyByUID(uid string) *reflection.Assembly {
	for _, a := range s.assemblies {
		if a.UniqueID() == uid {
			return a
		}
	}
	return nil
}

// LookupAssembly resolves a unique id through the guest assembly lookup
// table.
func (s *State) LookupAssembly(uid string) *reflection.Assembly {
	if s.g == nil {
		return nil
	}
	a, _ := s.g.RegistryTable(SlotAssemblyLookup).Get(uid).(*reflection.Assembly)
	return a
}

// StackSize returns the size of the guest value stack.
func (s *State) StackSize() int {
	return s.g.StackSize()
}

// DumpManagedNatives logs the managed native types and returns their
// names.
func (s *State) DumpManagedNatives() []string {
	return s.natives.DumpManagedNatives(s.g)
}
