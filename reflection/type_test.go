package reflection

import "testing"

func TestSetMissingIsSticky(t *testing.T) {
	typ := NewType("game", "Thing", 1)
	typ.SetMissing("missing import %s", "game.Other")
	typ.SetMissing("incomplete")

	if !typ.Missing() {
		t.Fatal("type should be missing")
	}
	if typ.MissingReason() != "missing import game.Other" {
		t.Errorf("reason = %q, want the first reason", typ.MissingReason())
	}
}

func TestFindMemberNearestWins(t *testing.T) {
	base := NewType("game", "Base", 1)
	base.AddMethod(NewMethod("update", false, false))
	base.AddField(NewField("speed", false, false))

	derived := NewType("game", "Derived", 2)
	derived.SetBaseType(base)
	override := NewMethod("update", false, false)
	derived.AddMethod(override)

	for _, cached := range []bool{false, true} {
		if cached {
			derived.Cache()
		}
		if got := derived.FindMember("update"); got != override {
			t.Errorf("cached=%v: update resolved to %v", cached, got)
		}
		if got := derived.FindMember("speed"); got == nil || got.DeclaringType() != base {
			t.Errorf("cached=%v: speed should come from base", cached)
		}
		if derived.FindMember("nothing") != nil {
			t.Errorf("cached=%v: unknown member should be nil", cached)
		}
	}
	if override.FullMemberName() != "game.Derived:update" {
		t.Errorf("FullMemberName = %q", override.FullMemberName())
	}
}

func TestFindMembersKinds(t *testing.T) {
	base := NewType("", "Base", 1)
	base.AddField(NewField("a", false, false))
	typ := NewType("", "T", 2)
	typ.SetBaseType(base)
	typ.AddMethod(NewMethod("m", false, false))
	typ.AddProperty(NewProperty("p", false, false))

	if n := len(typ.FindMembers(AllMembers, false)); n != 2 {
		t.Errorf("own members = %d, want 2", n)
	}
	if n := len(typ.FindMembers(AllMembers, true)); n != 3 {
		t.Errorf("with bases = %d, want 3", n)
	}
	if n := len(typ.FindMembers(MemberTypes{Method: true}, true)); n != 1 {
		t.Errorf("methods = %d, want 1", n)
	}
}

func TestDestroyDetachesFromAssembly(t *testing.T) {
	a := NewAssembly("A", "uid")
	mod := a.NewModule("m")
	t1 := NewType("p", "One", 1)
	t2 := NewType("p", "Two", 2)
	mod.AddType(t1)
	mod.AddType(t2)
	a.SetOrdinalTypes([]*Type{nil, t1, t2})

	t1.Destroy()

	if a.Lookup("p.One") != nil || a.TypeByID(1) != nil {
		t.Error("destroyed type still reachable from the assembly")
	}
	if a.TypeByID(2) != t2 || len(mod.Types()) != 1 {
		t.Error("surviving type was disturbed")
	}
	if got := a.PackageTypes("p", nil); len(got) != 1 || got[0] != t2 {
		t.Errorf("PackageTypes = %v", got)
	}
}

func TestSplitName(t *testing.T) {
	prefix, last := SplitName("system.reflection.Type")
	if prefix != "system.reflection" || last != "Type" {
		t.Errorf("SplitName = %q, %q", prefix, last)
	}
	if prefix, last := SplitName("Type"); prefix != "" || last != "Type" {
		t.Errorf("SplitName(Type) = %q, %q", prefix, last)
	}
}
