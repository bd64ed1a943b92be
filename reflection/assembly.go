package reflection

// Module is a named group of types inside an assembly. It owns its types.
type Module struct {
	name     string
	assembly *Assembly
	types    []*Type
}

func (m *Module) Name() string { return m.name }

// Assembly returns the owning assembly.
func (m *Module) Assembly() *Assembly { return m.assembly }

// Types returns the types still registered in the module.
func (m *Module) Types() []*Type { return m.types }

// AddType registers t with the module and its assembly.
func (m *Module) AddType(t *Type) {
	t.module = m
	m.types = append(m.types, t)
	if m.assembly != nil {
		m.assembly.byName[t.fullName] = t
	}
}

// RemoveType unregisters t from the module, from its assembly's name map
// and from the assembly's ordinal table.
func (m *Module) RemoveType(t *Type) {
	for i, mt := range m.types {
		if mt == t {
			m.types = append(m.types[:i], m.types[i+1:]...)
			break
		}
	}
	if a := m.assembly; a != nil {
		if a.byName[t.fullName] == t {
			delete(a.byName, t.fullName)
		}
		if id := t.typeID; id > 0 && id < len(a.ordinal) && a.ordinal[id] == t {
			a.ordinal[id] = nil
		}
	}
	t.module = nil
}

// Assembly is one loaded bytecode module with its type catalog.
type Assembly struct {
	name       string
	uniqueID   string
	references []string
	entryPoint string

	modules []*Module
	byName  map[string]*Type

	// ordinal is indexed by type id; slot 0 is unused. nil until the
	// runtime caches the assembly.
	ordinal []*Type
}

// NewAssembly creates an empty assembly.
func NewAssembly(name, uniqueID string) *Assembly {
	return &Assembly{name: name, uniqueID: uniqueID, byName: make(map[string]*Type)}
}

func (a *Assembly) Name() string     { return a.name }
func (a *Assembly) UniqueID() string { return a.uniqueID }

// References lists the assemblies this one was compiled against.
func (a *Assembly) References() []string { return a.references }

// EntryPoint is the "pkg.Type.method" bootstrap entry, or empty.
func (a *Assembly) EntryPoint() string { return a.entryPoint }

// Modules returns the assembly's modules.
func (a *Assembly) Modules() []*Module { return a.modules }

// NewModule creates and attaches a module.
func (a *Assembly) NewModule(name string) *Module {
	m := &Module{name: name, assembly: a}
	a.modules = append(a.modules, m)
	return m
}

// Types returns every registered type in module order.
func (a *Assembly) Types() []*Type {
	var out []*Type
	for _, m := range a.modules {
		out = append(out, m.types...)
	}
	return out
}

// Lookup returns the type registered under a full name.
func (a *Assembly) Lookup(fullName string) *Type { return a.byName[fullName] }

// SetType registers t under its full name in the name map.
func (a *Assembly) SetType(t *Type) { a.byName[t.fullName] = t }

// TypeCount is the number of types in the name map.
func (a *Assembly) TypeCount() int { return len(a.byName) }

// OrdinalTypes returns the type-id indexed table, or nil.
func (a *Assembly) OrdinalTypes() []*Type { return a.ordinal }

// SetOrdinalTypes installs the type-id indexed table.
func (a *Assembly) SetOrdinalTypes(tbl []*Type) { a.ordinal = tbl }

// TypeByID returns the type with the given id, or nil.
func (a *Assembly) TypeByID(id int) *Type {
	if id <= 0 || id >= len(a.ordinal) {
		return nil
	}
	return a.ordinal[id]
}

// PackageTypes appends the types of the named package to types.
func (a *Assembly) PackageTypes(pkg string, types []*Type) []*Type {
	for _, t := range a.Types() {
		if t.packageName == pkg {
			types = append(types, t)
		}
	}
	return types
}

// FreeByteCode drops method bytecode once the executable form exists.
func (a *Assembly) FreeByteCode() {
	for _, t := range a.Types() {
		for _, m := range t.methods {
			m.ByteCode = nil
		}
	}
}

// Destroy destroys every type the assembly still owns.
func (a *Assembly) Destroy() {
	for _, t := range a.Types() {
		t.Destroy()
	}
	a.modules = nil
	a.byName = make(map[string]*Type)
	a.ordinal = nil
}
