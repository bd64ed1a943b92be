package guest

import (
	"errors"
	"strings"
	"testing"
)

func luaState(t *testing.T) *State {
	t.Helper()
	s := NewState(nil)
	s.OpenLibs()
	s.OpenLua()
	t.Cleanup(s.Close)
	return s
}

func mustLoad(t *testing.T, s *State, src string) *Function {
	t.Helper()
	fn, err := s.Load([]byte(src), "@game.T", "game.T:run", 1)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return fn
}

func TestLuaArgumentsAndResults(t *testing.T) {
	s := luaState(t)
	fn := mustLoad(t, s, "local a, b = ...\nreturn a + b, 'ok', a < b")

	out, err := s.Call(fn, 1.0, 2.0)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 || out[0] != 3.0 || out[1] != "ok" || out[2] != true {
		t.Errorf("results = %v", out)
	}
}

func TestLuaResolvesGuestGlobals(t *testing.T) {
	s := luaState(t)
	s.SetGlobal("double", s.NewNative("double", func(_ *State, args []Value) ([]Value, error) {
		return []Value{args[0].(float64) * 2}, nil
	}))
	fn := mustLoad(t, s, "return double(21)")

	out, err := s.Call(fn)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0] != 42.0 {
		t.Errorf("results = %v", out)
	}
}

func TestLuaIndexesGuestTables(t *testing.T) {
	s := luaState(t)
	tbl := s.NewTable()
	tbl.Set("x", 1.0)
	fn := mustLoad(t, s, "local t = ...\nt.x = t.x + 1\nt.name = 'hero'")

	if _, err := s.Call(fn, tbl); err != nil {
		t.Fatal(err)
	}
	if tbl.Get("x") != 2.0 || tbl.Get("name") != "hero" {
		t.Errorf("table = x:%v name:%v", tbl.Get("x"), tbl.Get("name"))
	}
}

func TestLuaTablesBecomeGuestTables(t *testing.T) {
	s := luaState(t)
	fn := mustLoad(t, s, "return {1, 2, k = 'v'}")

	out, err := s.Call(fn)
	if err != nil {
		t.Fatal(err)
	}
	tbl, ok := out[0].(*Table)
	if !ok {
		t.Fatalf("result %T is not a table", out[0])
	}
	if tbl.Get(1.0) != 1.0 || tbl.Get(2.0) != 2.0 || tbl.Get("k") != "v" {
		t.Errorf("table entries wrong, Len = %d", tbl.Len())
	}
}

func TestLuaErrorLine(t *testing.T) {
	s := luaState(t)
	fn := mustLoad(t, s, "local x = 1\nerror('boom')")

	line := -1
	handler := s.NewNative("handler", func(s *State, _ []Value) ([]Value, error) {
		info, _ := s.GetStack(1)
		line = info.CurrentLine
		return nil, nil
	})
	_, err := s.PCall(fn, handler)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v, want boom", err)
	}
	if line != 2 {
		t.Errorf("line at the error site = %d, want 2", line)
	}
}

func TestLuaKeepsGuestErrors(t *testing.T) {
	s := luaState(t)
	deep := Errorf("deep")
	s.SetGlobal("fail", s.NewNative("fail", func(*State, []Value) ([]Value, error) {
		return nil, deep
	}))
	fn := mustLoad(t, s, "local y = 0\nfail()")

	_, err := s.Call(fn)
	var rerr *RuntimeError
	if !errors.As(err, &rerr) || rerr != deep {
		t.Errorf("err = %v, want the guest error itself", err)
	}
}

func TestLuaLoadErrors(t *testing.T) {
	s := luaState(t)
	if _, err := s.Load([]byte("return +"), "@bad", "bad", 1); err == nil {
		t.Error("a syntax error should fail the load")
	}
	fn := mustLoad(t, s, "  \n")
	out, err := s.Call(fn)
	if err != nil || len(out) != 0 {
		t.Errorf("empty chunk = %v, %v", out, err)
	}
}

func TestCloseReleasesLua(t *testing.T) {
	s := NewState(nil)
	s.OpenLua()
	s.Close()
	if s.lua != nil {
		t.Error("Close should release the Lua state")
	}
}
