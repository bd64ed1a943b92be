package guest

import (
	"errors"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// luaRuntime runs script function bodies on a gopher-lua state owned by
// one guest State. Lua globals that the chunk does not define resolve to
// guest globals, and guest functions called from Lua run as guest calls
// so they appear on the guest call stack.
type luaRuntime struct {
	s *State
	L *lua.LState

	// handler runs at the error site, before the Lua stack unwinds.
	handler *lua.LFunction

	// tableMeta lets Lua code index guest tables.
	tableMeta *lua.LTable
}

// OpenLua installs the Lua chunk loader. Method chunks are Lua source;
// they receive their arguments as "...". Calling OpenLua again
// reinstalls the loader on the existing Lua state.
func (s *State) OpenLua() {
	if s.lua == nil {
		s.lua = newLuaRuntime(s)
	}
	s.loader = s.lua.load
}

func newLuaRuntime(s *State) *luaRuntime {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.open), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			panic(err)
		}
	}

	r := &luaRuntime{s: s, L: L}

	r.handler = L.NewFunction(func(L *lua.LState) int {
		if line := luaLine(L); line > 0 {
			r.s.SetLine(line)
		}
		L.Push(L.Get(1))
		return 1
	})

	globals := L.NewTable()
	L.SetField(globals, "__index", L.NewFunction(func(L *lua.LState) int {
		name, ok := L.Get(2).(lua.LString)
		if !ok || r.s.closed {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(r.toLua(r.s.GetGlobal(string(name))))
		return 1
	}))
	L.SetMetatable(L.G.Global, globals)

	r.tableMeta = L.NewTable()
	L.SetField(r.tableMeta, "__index", L.NewFunction(func(L *lua.LState) int {
		t := L.CheckUserData(1).Value.(*Table)
		L.Push(r.toLua(t.Get(r.fromLua(L.Get(2)))))
		return 1
	}))
	L.SetField(r.tableMeta, "__newindex", L.NewFunction(func(L *lua.LState) int {
		t := L.CheckUserData(1).Value.(*Table)
		t.Set(r.fromLua(L.Get(2)), r.fromLua(L.Get(3)))
		return 0
	}))
	return r
}

func (r *luaRuntime) close() {
	r.L.Close()
}

// load compiles chunk. An empty chunk yields a nil body.
func (r *luaRuntime) load(_ *State, chunk []byte, chunkName string) (NativeFunc, error) {
	src := string(chunk)
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	stmts, err := parse.Parse(strings.NewReader(src), chunkName)
	if err != nil {
		return nil, err
	}
	proto, err := lua.Compile(stmts, chunkName)
	if err != nil {
		return nil, err
	}
	return func(_ *State, args []Value) ([]Value, error) {
		return r.call(r.L.NewFunctionFromProto(proto), args)
	}, nil
}

func (r *luaRuntime) call(fn *lua.LFunction, args []Value) ([]Value, error) {
	L := r.L
	base := L.GetTop()
	L.Push(fn)
	for _, a := range args {
		L.Push(r.toLua(a))
	}
	if err := L.PCall(len(args), lua.MultRet, r.handler); err != nil {
		L.SetTop(base)
		return nil, guestError(err)
	}

	n := L.GetTop() - base
	results := make([]Value, n)
	for i := range results {
		results[i] = r.fromLua(L.Get(base + 1 + i))
	}
	L.SetTop(base)
	return results, nil
}

// wrap exposes a guest function to Lua. Guest errors cross the Lua
// boundary as userdata so that the original error comes out the other
// side.
func (r *luaRuntime) wrap(fn *Function) *lua.LFunction {
	return r.L.NewFunction(func(L *lua.LState) int {
		if line := luaLine(L); line > 0 {
			r.s.SetLine(line)
		}
		args := make([]Value, L.GetTop())
		for i := range args {
			args[i] = r.fromLua(L.Get(i + 1))
		}
		results, err := r.s.Call(fn, args...)
		if err != nil {
			ud := L.NewUserData()
			ud.Value = err
			L.Error(ud, 0)
			return 0
		}
		for _, v := range results {
			L.Push(r.toLua(v))
		}
		return len(results)
	})
}

func (r *luaRuntime) toLua(v Value) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case float64:
		return lua.LNumber(x)
	case int:
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	case *Function:
		return r.wrap(x)
	}
	ud := r.L.NewUserData()
	ud.Value = v
	if _, ok := v.(*Table); ok {
		ud.Metatable = r.tableMeta
	}
	return ud
}

func (r *luaRuntime) fromLua(lv lua.LValue) Value {
	return r.fromLuaSeen(lv, nil)
}

func (r *luaRuntime) fromLuaSeen(lv lua.LValue, seen map[*lua.LTable]*Table) Value {
	switch x := lv.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(x)
	case lua.LNumber:
		return float64(x)
	case lua.LString:
		return string(x)
	case *lua.LUserData:
		return x.Value
	case *lua.LFunction:
		return r.s.NewNative("lua", func(_ *State, args []Value) ([]Value, error) {
			return r.call(x, args)
		})
	case *lua.LTable:
		if t, ok := seen[x]; ok {
			return t
		}
		if seen == nil {
			seen = make(map[*lua.LTable]*Table)
		}
		t := r.s.NewTable()
		seen[x] = t
		x.ForEach(func(k, v lua.LValue) {
			t.Set(r.fromLuaSeen(k, seen), r.fromLuaSeen(v, seen))
		})
		return t
	}
	return nil
}

// luaLine returns the current line of the innermost Lua function on the
// stack, or -1.
func luaLine(L *lua.LState) int {
	for level := 0; ; level++ {
		dbg, ok := L.GetStack(level)
		if !ok {
			return -1
		}
		if _, err := L.GetInfo("l", dbg, lua.LNil); err != nil {
			continue
		}
		if dbg.CurrentLine > 0 {
			return dbg.CurrentLine
		}
	}
}

func guestError(err error) error {
	var apiErr *lua.ApiError
	if !errors.As(err, &apiErr) {
		return Errorf("%s", err.Error())
	}
	if ud, ok := apiErr.Object.(*lua.LUserData); ok {
		if gerr, ok := ud.Value.(error); ok {
			return gerr
		}
	}
	if apiErr.Object != nil && apiErr.Object != lua.LNil {
		return &RuntimeError{Message: apiErr.Object.String(), Cause: err}
	}
	return &RuntimeError{Message: err.Error(), Cause: err}
}
