package vm

import (
	"slices"
	"testing"

	"github.com/chazu/loomscript/reflection"
)

func TestMissingnessPropagatesThroughImports(t *testing.T) {
	s := openState(t, nil, nil)
	loadSystem(t, s)

	b := newDoc("Game", "System").module("game")
	b.add("game", "A", ObjectTypeName).Imports = []string{"game.Gone"}
	b.add("game", "B", ObjectTypeName).Imports = []string{"game.A"}
	b.add("game", "C", ObjectTypeName).Imports = []string{"game.B"}
	b.add("game", "D", "game.B")
	b.add("game", "E", ObjectTypeName).Imports = []string{StringTypeName}
	b.add("game", "F", "game.E")

	a := s.LoadAssemblyJSON(b.json(t))

	want := []string{"game.E", "game.F"}
	if got := typeNames(a.Types()); !slices.Equal(got, want) {
		t.Errorf("surviving types = %v, want %v", got, want)
	}
	if got := typeNames(s.PackageTypes("game")); !slices.Equal(got, want) {
		t.Errorf("PackageTypes = %v, want %v", got, want)
	}
	for _, name := range []string{"game.A", "game.B", "game.C", "game.D"} {
		if s.GetType(name) != nil || a.Lookup(name) != nil {
			t.Errorf("%s should have been removed", name)
		}
	}
	e := s.GetType("game.E")
	if e == nil || a.TypeByID(e.TypeID()) != e || s.ClassTable(e) == nil {
		t.Error("game.E should be live and declared")
	}
	for _, id := range []int{1, 2, 3, 4} {
		if a.TypeByID(id) != nil {
			t.Errorf("ordinal slot %d still holds a removed type", id)
		}
	}
}

func TestSubtypeBeforeItsBaseIsRemoved(t *testing.T) {
	for _, validate := range []bool{true, false} {
		name := "validated"
		if !validate {
			name = "unvalidated"
		}
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			cfg.ValidateTypes = validate
			s := openState(t, cfg, nil)
			loadSystem(t, s)

			b := newDoc("Game", "System").module("game")
			b.add("game", "D", "game.B")
			b.add("game", "B", ObjectTypeName).Imports = []string{"game.A"}
			b.add("game", "A", ObjectTypeName).Imports = []string{"game.Gone"}
			b.add("game", "E", ObjectTypeName)

			var a *reflection.Assembly
			if err := Safely(func() { a = s.LoadAssemblyJSON(b.json(t)) }); err != nil {
				t.Fatalf("load failed: %v", err)
			}
			if got := typeNames(a.Types()); !slices.Equal(got, []string{"game.E"}) {
				t.Errorf("surviving types = %v, want [game.E]", got)
			}
			for _, name := range []string{"game.D", "game.B", "game.A"} {
				if s.GetType(name) != nil {
					t.Errorf("%s should have been removed", name)
				}
			}
			for _, typ := range a.Types() {
				for c := typ; c != nil; c = c.BaseType() {
					if c.Missing() {
						t.Errorf("%s survived with missing ancestor %s", typ, c)
					}
				}
			}
		})
	}
}

func newTypes(names ...string) map[string]*reflection.Type {
	out := make(map[string]*reflection.Type)
	for i, name := range names {
		out[name] = reflection.NewType("t", name, i+1)
	}
	return out
}

func TestPruneMissingReasons(t *testing.T) {
	s := openState(t, nil, nil)
	ty := newTypes("A", "B", "C", "Sub", "Free")
	ty["A"].SetMissing("unresolved import t.Gone")
	ty["B"].AddImport(ty["A"])
	ty["C"].AddImport(ty["B"])
	ty["Sub"].SetBaseType(ty["C"])

	list := []*reflection.Type{ty["A"], ty["B"], ty["C"], ty["Sub"], ty["Free"]}
	kept := s.pruneMissing(list)

	if len(kept) != 1 || kept[0] != ty["Free"] {
		t.Fatalf("kept = %v, want [t.Free]", typeNames(kept))
	}
	reasons := map[string]string{
		"A":   "unresolved import t.Gone",
		"B":   "missing import t.A",
		"C":   "missing import t.B",
		"Sub": "incomplete",
	}
	for name, want := range reasons {
		if got := ty[name].MissingReason(); got != want {
			t.Errorf("%s reason = %q, want %q", name, got, want)
		}
	}
	if ty["Free"].Missing() {
		t.Error("t.Free has no path to a missing type and must stay")
	}
}

func TestPruneMissingSubtypeListedFirst(t *testing.T) {
	s := openState(t, nil, nil)
	ty := newTypes("Sub", "Base", "Dep", "Free")
	ty["Sub"].SetBaseType(ty["Base"])
	ty["Base"].AddImport(ty["Dep"])
	ty["Dep"].SetMissing("gone")

	kept := s.pruneMissing([]*reflection.Type{ty["Sub"], ty["Base"], ty["Dep"], ty["Free"]})
	if got := typeNames(kept); !slices.Equal(got, []string{"t.Free"}) {
		t.Errorf("kept = %v, want [t.Free]", got)
	}
	if got := ty["Sub"].MissingReason(); got != "incomplete" {
		t.Errorf("Sub reason = %q, want incomplete", got)
	}
}

func TestPruneMissingKeepsOrder(t *testing.T) {
	s := openState(t, nil, nil)
	ty := newTypes("One", "Bad", "Two", "Three")
	ty["Bad"].SetMissing("gone")

	kept := s.pruneMissing([]*reflection.Type{ty["One"], ty["Bad"], ty["Two"], ty["Three"]})
	if got := typeNames(kept); !slices.Equal(got, []string{"t.One", "t.Two", "t.Three"}) {
		t.Errorf("kept = %v", got)
	}
}

func TestPruneMissingNoop(t *testing.T) {
	s := openState(t, nil, nil)
	ty := newTypes("One", "Two")
	ty["Two"].AddImport(ty["One"])
	list := []*reflection.Type{ty["One"], ty["Two"]}
	if kept := s.pruneMissing(list); len(kept) != 2 {
		t.Errorf("kept = %v", typeNames(kept))
	}
}

func TestCyclicImportsTerminate(t *testing.T) {
	s := openState(t, nil, nil)
	ty := newTypes("X", "Y", "Z", "Root")
	ty["X"].AddImport(ty["Y"])
	ty["Y"].AddImport(ty["X"])
	ty["Y"].AddImport(ty["Z"])
	ty["Z"].AddImport(ty["Y"])
	ty["Z"].AddImport(ty["Root"])
	ty["Root"].SetMissing("gone")

	kept := s.pruneMissing([]*reflection.Type{ty["X"], ty["Y"], ty["Z"], ty["Root"]})
	if len(kept) != 0 {
		t.Errorf("kept = %v, want none", typeNames(kept))
	}
	for _, name := range []string{"X", "Y", "Z"} {
		if !ty[name].Missing() {
			t.Errorf("%s should be missing", name)
		}
	}
}

func TestCyclicImportsWithoutMissingSurvive(t *testing.T) {
	s := openState(t, nil, nil)
	ty := newTypes("X", "Y")
	ty["X"].AddImport(ty["Y"])
	ty["Y"].AddImport(ty["X"])

	if kept := s.pruneMissing([]*reflection.Type{ty["X"], ty["Y"]}); len(kept) != 2 {
		t.Errorf("kept = %v, want both", typeNames(kept))
	}
}

func TestFoundationalTypeCannotBeRemoved(t *testing.T) {
	s := openState(t, nil, nil)
	b := systemDoc()
	b.doc.Modules[0].Types[1].Imports = []string{"system.Gone"}
	fe := mustFatal(t, func() { s.LoadAssemblyJSON(b.json(t)) })
	if fe.Message == "" {
		t.Error("empty fatal message")
	}
}
