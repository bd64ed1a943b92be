package vm

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/chazu/loomscript/guest"
	"github.com/chazu/loomscript/manifest"
	"github.com/chazu/loomscript/native"
	"github.com/chazu/loomscript/reflection"
)

// callLog records "record" commands run by test scripts.
var callLog []string

// scriptLoader compiles the tiny command language used by test method
// bodies. Commands are separated by ';':
//
//	line N             set the current line
//	fail MSG...        raise a runtime error
//	record TAG         append TAG to callLog
//	call TYPE METHOD   call a method through its class table
//	callglobal NAME    call a global function
//	setstatic TYPE F N set a static field to a number
//	return N           return a number
func scriptLoader(_ *guest.State, chunk []byte, _ string) (guest.NativeFunc, error) {
	src := strings.TrimSpace(string(chunk))
	if src == "" {
		return nil, nil
	}
	var cmds [][]string
	for _, c := range strings.Split(src, ";") {
		if f := strings.Fields(c); len(f) > 0 {
			cmds = append(cmds, f)
		}
	}

	return func(gs *guest.State, args []guest.Value) ([]guest.Value, error) {
		s := FromGuest(gs)
		var ret []guest.Value
		for _, f := range cmds {
			switch f[0] {
			case "line":
				n, _ := strconv.Atoi(f[1])
				gs.SetLine(n)
			case "fail":
				return nil, guest.Errorf("%s", strings.Join(f[1:], " "))
			case "record":
				callLog = append(callLog, f[1])
			case "call":
				fn, _ := s.ClassTable(s.GetType(f[1])).Get(f[2]).(*guest.Function)
				if _, err := gs.Call(fn); err != nil {
					return nil, err
				}
			case "callglobal":
				fn, _ := gs.GetGlobal(f[1]).(*guest.Function)
				if _, err := gs.Call(fn); err != nil {
					return nil, err
				}
			case "setstatic":
				n, _ := strconv.ParseFloat(f[3], 64)
				s.ClassTable(s.GetType(f[1])).Set(f[2], n)
			case "return":
				n, _ := strconv.ParseFloat(f[1], 64)
				ret = []guest.Value{n}
			default:
				return nil, fmt.Errorf("unknown command %q", f[0])
			}
		}
		return ret, nil
	}, nil
}

// testConfig returns defaults with type validation on, so every test
// exercises the runtime validator.
func testConfig() *manifest.Runtime {
	cfg := manifest.Default()
	cfg.ValidateTypes = true
	return cfg
}

// openState opens an instance wired to the test script loader and
// closes it when the test ends.
func openState(t *testing.T, cfg *manifest.Runtime, natives *native.Registry) *State {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	s := New(cfg, natives)
	s.Open()
	s.Guest().SetChunkLoader(scriptLoader)
	callLog = nil
	t.Cleanup(func() {
		if s.Guest() != nil {
			s.Close()
		}
		trace.mu.Lock()
		trace.stack, trace.message = nil, ""
		trace.mu.Unlock()
	})
	return s
}

// mustFatal runs fn and returns the fatal error it must raise.
func mustFatal(t *testing.T, fn func()) *FatalError {
	t.Helper()
	err := Safely(fn)
	if err == nil {
		t.Fatal("expected a fatal error")
	}
	fe, ok := err.(*FatalError)
	if !ok {
		t.Fatalf("error %T is not a *FatalError", err)
	}
	return fe
}

// ---------------------------------------------------------------------------
// Document builders
// ---------------------------------------------------------------------------

type docBuilder struct {
	doc *reflection.Document
	mod *reflection.ModuleDoc
}

func newDoc(name string, refs ...string) *docBuilder {
	d := &reflection.Document{Name: name, References: refs}
	return &docBuilder{doc: d}
}

func (b *docBuilder) module(name string) *docBuilder {
	b.doc.Modules = append(b.doc.Modules, reflection.ModuleDoc{Name: name})
	b.mod = &b.doc.Modules[len(b.doc.Modules)-1]
	return b
}

// add appends a type with the next free type id and returns it for
// further editing.
func (b *docBuilder) add(pkg, name, base string) *reflection.TypeDoc {
	id := 1
	for _, m := range b.doc.Modules {
		id += len(m.Types)
	}
	b.mod.Types = append(b.mod.Types, reflection.TypeDoc{Name: name, Package: pkg, TypeID: id, BaseType: base})
	return &b.mod.Types[len(b.mod.Types)-1]
}

func (b *docBuilder) json(t *testing.T) []byte {
	t.Helper()
	data, err := reflection.EncodeJSON(b.doc)
	if err != nil {
		t.Fatalf("EncodeJSON failed: %v", err)
	}
	return data
}

func (b *docBuilder) binary(t *testing.T) []byte {
	t.Helper()
	data, err := reflection.EncodeBinary(b.doc)
	if err != nil {
		t.Fatalf("EncodeBinary failed: %v", err)
	}
	return data
}

func method(name string, static bool, code string) reflection.MethodDoc {
	return reflection.MethodDoc{Name: name, Static: static, ByteCode: []byte(code)}
}

// systemDoc builds the system assembly: the eight foundational types plus
// system.VM, leaving out any names passed in skip.
func systemDoc(skip ...string) *docBuilder {
	skipped := make(map[string]bool)
	for _, name := range skip {
		skipped[name] = true
	}

	b := newDoc("System").module("system")
	for _, name := range []string{"Object", "Null", "Boolean", "Number", "String", "Function", "Vector", "VM"} {
		if skipped["system."+name] {
			continue
		}
		base := ObjectTypeName
		if name == "Object" {
			base = ""
		}
		td := b.add("system", name, base)
		if name == "Object" {
			td.Methods = []reflection.MethodDoc{method("toString", false, "")}
		}
		if name == "VM" {
			td.Methods = []reflection.MethodDoc{method(TickMethod, true, "line 3; record tick")}
		}
	}
	b.module("system.reflection")
	if !skipped[ReflectionTypeName] {
		b.add("system.reflection", "Type", ObjectTypeName)
	}
	return b
}

// loadSystem loads the system assembly into s.
func loadSystem(t *testing.T, s *State) *reflection.Assembly {
	t.Helper()
	var a *reflection.Assembly
	if err := Safely(func() { a = s.LoadAssemblyJSON(systemDoc().json(t)) }); err != nil {
		t.Fatalf("loading the system assembly failed: %v", err)
	}
	return a
}

func typeNames(types []*reflection.Type) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.FullName()
	}
	return names
}
