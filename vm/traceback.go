package vm

import (
	"fmt"
	"sync"

	"github.com/chazu/loomscript/guest"
	"github.com/chazu/loomscript/reflection"
)

// NativeSource is the source label of native frames.
const NativeSource = "[NATIVE]"

// maxTraceMessage bounds the message attached by __ls_traceback.
const maxTraceMessage = 2040

// StackInfo is one captured frame.
type StackInfo struct {
	Method *reflection.MethodInfo
	Source string
	Line   int
}

func (si StackInfo) String() string {
	return fmt.Sprintf("%s : %s : %d", si.Method.FullMemberName(), si.Source, si.Line)
}

// The last capture, newest frame first, and the message attached to it.
// Shared by every instance in the process.
var trace struct {
	mu      sync.Mutex
	stack   []StackInfo
	message string
}

func setTraceMessage(msg string) {
	trace.mu.Lock()
	defer trace.mu.Unlock()
	trace.message = msg
}

// LastCapture returns the current capture, newest frame first, and its
// attached message.
func LastCapture() ([]StackInfo, string) {
	trace.mu.Lock()
	defer trace.mu.Unlock()
	return append([]StackInfo(nil), trace.stack...), trace.message
}

// currentStack walks the guest call stack from the top. Frames that do
// not belong to a registered method are skipped, as is a native frame
// for the method just recorded: only the root call is kept, not the
// native wrapper around it.
func currentStack(g *guest.State) []StackInfo {
	methods := g.RegistryTable(SlotMethodLookup)
	if methods == nil {
		return nil
	}

	var (
		stack []StackInfo
		last  *reflection.MethodInfo
	)
	for level := 0; ; level++ {
		info, ok := g.GetStack(level)
		if !ok {
			return stack
		}

		m, _ := methods.Get(info.Func).(*reflection.MethodInfo)
		if m == nil {
			continue
		}
		if info.What == "C" && m == last {
			continue
		}
		last = m

		si := StackInfo{Method: m, Source: info.Source, Line: info.CurrentLine}
		if m.IsNative() {
			si.Source = NativeSource
		}
		if si.Line == -1 {
			si.Line = 0
		}
		stack = append(stack, si)
	}
}

// CaptureStack replaces the process capture with the current guest call
// stack and returns it, newest frame first.
func (s *State) CaptureStack() []StackInfo {
	stack := currentStack(s.g)
	trace.mu.Lock()
	trace.stack = stack
	trace.mu.Unlock()
	return append([]StackInfo(nil), stack...)
}

// traceback implements __ls_traceback(message): it attaches message and
// captures the stack of the calling guest.
func traceback(g *guest.State, args []guest.Value) ([]guest.Value, error) {
	msg, _ := argAt(args, 0).(string)
	if len(msg) > maxTraceMessage {
		msg = msg[:maxTraceMessage]
	}

	stack := currentStack(g)

	trace.mu.Lock()
	trace.stack = stack
	trace.message = msg
	trace.mu.Unlock()
	return nil, nil
}

// TriggerRuntimeError logs a fatal runtime error report and raises it as
// a *FatalError. The report holds the stack dump, the message, the
// message attached by the last traceback and the captured call trace,
// root call first.
func (s *State) TriggerRuntimeError(format string, args ...any) {
	var report []string
	emit := func(line string) {
		report = append(report, line)
		log.Error(line)
	}

	emit("=====================")
	emit("=   RUNTIME ERROR   =")
	emit("=====================")

	if problem := s.verifyAllocations(); problem != "" {
		emit(problem)
	}

	if s.g != nil {
		for _, line := range s.stackLines() {
			emit(line)
		}
	}

	msg := fmt.Sprintf(format, args...)
	emit(msg)

	trace.mu.Lock()
	attached := trace.message
	trace.message = ""
	trace.mu.Unlock()
	if attached != "" {
		emit(attached)
	}

	// A native assertion has no capture yet.
	trace.mu.Lock()
	empty := len(trace.stack) == 0
	trace.mu.Unlock()
	if empty && s.g != nil {
		s.CaptureStack()
	}

	emit("Stacktrace:")
	trace.mu.Lock()
	stack := trace.stack
	trace.stack = nil
	trace.mu.Unlock()
	for i := len(stack) - 1; i >= 0; i-- {
		emit(stack[i].String())
	}

	emit("Fatal Runtime Error")
	panic(&FatalError{Message: msg, Report: report})
}
