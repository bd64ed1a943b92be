package guest

import (
	"errors"
	"fmt"
)

// NativeFunc is a host function callable from the guest.
type NativeFunc func(s *State, args []Value) ([]Value, error)

// HookFunc observes calls as they are entered.
type HookFunc func(s *State, fn *Function)

// Function is a guest function: either a native host function or a
// script function loaded from a chunk.
type Function struct {
	Name        string
	Source      string
	LineDefined int

	native NativeFunc
	body   NativeFunc
}

// NewNative creates a native function.
func (s *State) NewNative(name string, fn NativeFunc) *Function {
	s.charge(0, functionSize)
	return &Function{Name: name, Source: "=[C]", LineDefined: -1, native: fn}
}

// NewScript creates a script function with the given body. A nil body
// returns no values.
func (s *State) NewScript(name, source string, lineDefined int, body NativeFunc) *Function {
	s.charge(0, functionSize)
	return &Function{Name: name, Source: source, LineDefined: lineDefined, body: body}
}

// IsNative reports whether f is implemented by the host.
func (f *Function) IsNative() bool { return f.native != nil }

// RuntimeError is a guest error raised while running a function.
type RuntimeError struct {
	Message string
	Cause   error

	handled bool
}

func (e *RuntimeError) Error() string { return e.Message }

func (e *RuntimeError) Unwrap() error { return e.Cause }

// Errorf builds a guest runtime error.
func Errorf(format string, args ...any) error {
	return &RuntimeError{Message: fmt.Sprintf(format, args...)}
}

type frame struct {
	fn   *Function
	line int
}

// Call runs fn with args on a new frame and returns its results.
func (s *State) Call(fn *Function, args ...Value) ([]Value, error) {
	if fn == nil {
		return nil, Errorf("attempt to call a nil value")
	}

	fr := &frame{fn: fn, line: -1}
	if !fn.IsNative() {
		fr.line = fn.LineDefined
	}
	s.frames = append(s.frames, fr)
	s.charge(0, frameSize)
	defer func() {
		s.frames = s.frames[:len(s.frames)-1]
		s.charge(frameSize, 0)
	}()
	if s.hook != nil {
		s.hook(s, fn)
	}

	impl := fn.native
	if impl == nil {
		impl = fn.body
	}
	if impl == nil {
		return nil, nil
	}

	results, err := impl(s, args)
	if err != nil {
		// Run the innermost error handler while the failing frames are
		// still on the stack, once per error.
		var rerr *RuntimeError
		if !errors.As(err, &rerr) {
			rerr = &RuntimeError{Message: err.Error(), Cause: err}
		}
		if !rerr.handled && len(s.handlers) > 0 {
			rerr.handled = true
			h := s.handlers[len(s.handlers)-1]
			if _, herr := s.Call(h, rerr.Message); herr != nil {
				return nil, herr
			}
		}
		return nil, rerr
	}
	return results, nil
}

// PCall runs fn with handler installed as the error handler. The handler
// receives the error message before the stack unwinds.
func (s *State) PCall(fn, handler *Function, args ...Value) ([]Value, error) {
	if handler != nil {
		s.handlers = append(s.handlers, handler)
		defer func() { s.handlers = s.handlers[:len(s.handlers)-1] }()
	}
	return s.Call(fn, args...)
}

// SetLine sets the current line of the running script function.
func (s *State) SetLine(line int) {
	if len(s.frames) > 0 {
		s.frames[len(s.frames)-1].line = line
	}
}

// DebugInfo describes one active call.
type DebugInfo struct {
	Func        *Function
	Source      string
	ShortSrc    string
	What        string // "C" for native functions, "Lua" otherwise
	Name        string
	CurrentLine int // -1 when unknown
	LineDefined int
}

// GetStack returns debug information for the call at the given level,
// 0 being the running function. ok is false past the bottom of the stack.
func (s *State) GetStack(level int) (info DebugInfo, ok bool) {
	idx := len(s.frames) - 1 - level
	if level < 0 || idx < 0 {
		return DebugInfo{}, false
	}
	fr := s.frames[idx]
	info = fr.fn.Info()
	if !fr.fn.IsNative() {
		info.CurrentLine = fr.line
	}
	return info, true
}

// Info describes f outside of any call; CurrentLine is -1.
func (f *Function) Info() DebugInfo {
	info := DebugInfo{
		Func:        f,
		Source:      f.Source,
		ShortSrc:    shortSource(f.Source),
		Name:        f.Name,
		CurrentLine: -1,
		LineDefined: f.LineDefined,
		What:        "Lua",
	}
	if f.IsNative() {
		info.What = "C"
	}
	return info
}

// CallDepth returns the number of active calls.
func (s *State) CallDepth() int { return len(s.frames) }

func shortSource(src string) string {
	const max = 60
	if len(src) > 0 && (src[0] == '=' || src[0] == '@') {
		src = src[1:]
	}
	if len(src) > max {
		return "..." + src[len(src)-max+3:]
	}
	return src
}
