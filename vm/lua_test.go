package vm

import (
	"slices"
	"strings"
	"testing"

	"github.com/chazu/loomscript/guest"
	"github.com/chazu/loomscript/reflection"
)

// luaState opens an instance that compiles method bodies as Lua, the
// loader Open installs. It loads game.L and exposes record and
// callcrash as guest globals.
func luaState(t *testing.T) *State {
	t.Helper()
	s := openState(t, nil, nil)
	loadSystem(t, s)
	g := s.Guest()
	g.OpenLua()

	g.SetGlobal("record", g.NewNative("record", func(_ *guest.State, args []guest.Value) ([]guest.Value, error) {
		tag, _ := args[0].(string)
		callLog = append(callLog, tag)
		return nil, nil
	}))

	b := newDoc("Game", "System").module("game")
	td := b.add("game", "L", ObjectTypeName)
	td.Source = "@game.L"
	td.Fields = []reflection.FieldDoc{staticField("speed", 0.0, "")}
	td.Methods = []reflection.MethodDoc{
		method("sum", true, "local a, b = ...\nreturn a + b"),
		method("crash", true, "local x = 1\nerror('boom')"),
		method("outer", true, "local z = 0\nrecord('outer')\ncallcrash()"),
		method(StaticInitializer, true, "record('init')"),
	}
	s.LoadAssemblyJSON(b.json(t))

	g.SetGlobal("callcrash", g.NewNative("callcrash", func(gs *guest.State, _ []guest.Value) ([]guest.Value, error) {
		fn := s.ClassTable(s.GetType("game.L")).Get("crash").(*guest.Function)
		return gs.Call(fn)
	}))
	return s
}

func TestLuaMethodBodies(t *testing.T) {
	s := luaState(t)
	if !slices.Equal(callLog, []string{"init"}) {
		t.Errorf("callLog = %v, the static initializer should have run", callLog)
	}
	out := s.InvokeStaticMethod("game.L", "sum", 2.0, 3.0)
	if len(out) != 1 || out[0] != 5.0 {
		t.Errorf("sum = %v", out)
	}
}

func TestLuaRuntimeErrorReport(t *testing.T) {
	s := luaState(t)
	fe := mustFatal(t, func() { s.InvokeStaticMethod("game.L", "outer") })

	if !strings.Contains(fe.Message, "boom") {
		t.Errorf("Message = %q", fe.Message)
	}
	outer := reportIndex(fe.Report, "game.L:outer : @game.L : 3")
	crash := reportIndex(fe.Report, "game.L:crash : @game.L : 2")
	if outer < 0 || crash < 0 || outer > crash {
		t.Errorf("report trace = %q", fe.Report)
	}
	if !slices.Contains(callLog, "outer") {
		t.Errorf("callLog = %v", callLog)
	}
}
