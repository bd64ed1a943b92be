package reflection

import (
	"github.com/google/uuid"

	"github.com/chazu/loomscript/guest"
)

// TypeResolver finds an already loaded type by full name, or returns nil.
type TypeResolver func(fullName string) *Type

// Build links a document into an assembly. Base types and imports are
// resolved inside the document first and then through resolve. A type
// whose base or import cannot be found is marked missing; Build itself
// only fails on documents it cannot make sense of at all.
func Build(doc *Document, resolve TypeResolver) (*Assembly, error) {
	if doc.Name == "" {
		return nil, ErrNoName
	}
	uid := doc.UID
	if uid == "" {
		uid = uuid.NewString()
	}

	a := NewAssembly(doc.Name, uid)
	a.references = append([]string(nil), doc.References...)
	a.entryPoint = doc.EntryPoint

	type pending struct {
		t   *Type
		doc *TypeDoc
	}
	var all []pending
	local := make(map[string]*Type)

	for mi := range doc.Modules {
		md := &doc.Modules[mi]
		mod := a.NewModule(md.Name)
		for ti := range md.Types {
			td := &md.Types[ti]
			t := newTypeFromDoc(td)
			mod.AddType(t)
			local[t.fullName] = t
			all = append(all, pending{t, td})
		}
	}

	lookup := func(name string) *Type {
		if t := local[name]; t != nil {
			return t
		}
		if resolve != nil {
			return resolve(name)
		}
		return nil
	}

	for _, p := range all {
		t, td := p.t, p.doc
		if td.BaseType != "" {
			t.baseName = td.BaseType
			if base := lookup(td.BaseType); base != nil {
				t.base = base
			} else {
				t.SetMissing("unresolved base type %s", td.BaseType)
			}
		}
		for _, name := range td.Imports {
			imp := lookup(name)
			if imp == nil {
				t.importNames = append(t.importNames, name)
				t.SetMissing("unresolved import %s", name)
				continue
			}
			t.AddImport(imp)
		}
	}

	return a, nil
}

func newTypeFromDoc(td *TypeDoc) *Type {
	t := NewType(td.Package, td.Name, td.TypeID)
	t.source = td.Source
	if t.source == "" {
		t.source = "@" + t.fullName
	}
	t.SetNative(td.Native, td.NativeManaged)
	if td.Missing != "" {
		t.SetMissing("%s", td.Missing)
	}

	for _, md := range td.Methods {
		m := NewMethod(md.Name, md.Static, md.Native)
		m.Line = md.Line
		m.ByteCode = md.ByteCode
		t.AddMethod(m)
	}
	for _, fd := range td.Fields {
		f := NewField(fd.Name, fd.Static, fd.Native)
		f.Default = normalizeValue(fd.Default)
		f.Init = fd.Init
		t.AddField(f)
	}
	for _, pd := range td.Properties {
		p := NewProperty(pd.Name, pd.Static, pd.Native)
		p.Getter = pd.Getter
		p.Setter = pd.Setter
		t.AddProperty(p)
	}
	return t
}

// normalizeValue maps decoded literals onto guest values: every number
// becomes float64, composite literals are not supported and become nil.
func normalizeValue(v any) guest.Value {
	switch x := v.(type) {
	case nil, bool, string, float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	default:
		return nil
	}
}
