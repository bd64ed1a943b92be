package vm

import (
	"github.com/chazu/loomscript/guest"
	"github.com/chazu/loomscript/reflection"
)

// TickType and TickMethod name the static method Tick invokes.
const (
	TickType   = "system.VM"
	TickMethod = "_tick"
)

// InvokeStaticMethod calls a static method by type path and name. An
// unknown type or member, a member that is not a method and a method
// that is not static are all fatal, as is a runtime error raised by the
// call.
func (s *State) InvokeStaticMethod(typePath, method string, args ...guest.Value) []guest.Value {
	t := s.GetType(typePath)
	if t == nil {
		s.fatalf("vm: InvokeStaticMethod unknown type: %s", typePath)
	}

	member := t.FindMember(method)
	if member == nil {
		s.fatalf("vm: InvokeStaticMethod unknown member: %s:%s", typePath, method)
	}
	m, ok := member.(*reflection.MethodInfo)
	if !ok || !member.IsMethod() {
		s.fatalf("vm: InvokeStaticMethod member: %s:%s is not a method", typePath, method)
	}
	if !m.IsStatic() {
		s.fatalf("vm: InvokeStaticMethod member: %s:%s is not a static method", typePath, method)
	}

	return s.callMethod(m, args...)
}

// Tick runs one frame of the script side.
func (s *State) Tick() {
	s.InvokeStaticMethod(TickType, TickMethod)
}

// callMethod calls m with the traceback handler installed, so that a
// failing call is captured before the guest stack unwinds.
func (s *State) callMethod(m *reflection.MethodInfo, args ...guest.Value) []guest.Value {
	fn := m.Function()
	if fn == nil {
		s.fatalf("vm: method %s has no implementation", m.FullMemberName())
	}
	handler, _ := s.g.GetGlobal(GlobalTraceback).(*guest.Function)
	results, err := s.g.PCall(fn, handler, args...)
	if err != nil {
		s.TriggerRuntimeError("%s", err.Error())
	}
	return results
}
