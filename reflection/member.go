package reflection

import "github.com/chazu/loomscript/guest"

// MemberInfo is a method, field or property of a type.
type MemberInfo interface {
	Name() string
	IsNative() bool
	IsStatic() bool
	IsMethod() bool
	DeclaringType() *Type
	FullMemberName() string
}

type memberBase struct {
	name          string
	native        bool
	static        bool
	declaringType *Type
}

func (m *memberBase) Name() string         { return m.name }
func (m *memberBase) IsNative() bool       { return m.native }
func (m *memberBase) IsStatic() bool       { return m.static }
func (m *memberBase) DeclaringType() *Type { return m.declaringType }

// FullMemberName renders "pkg.Type:member".
func (m *memberBase) FullMemberName() string {
	if m.declaringType == nil {
		return m.name
	}
	return m.declaringType.fullName + ":" + m.name
}

// MethodInfo is a reflected method.
type MethodInfo struct {
	memberBase

	Line     int
	ByteCode []byte

	fn *guest.Function
}

// NewMethod creates a method descriptor.
func NewMethod(name string, static, native bool) *MethodInfo {
	return &MethodInfo{memberBase: memberBase{name: name, static: static, native: native}}
}

func (m *MethodInfo) IsMethod() bool { return true }

// Source is the chunk name script frames of this method report.
func (m *MethodInfo) Source() string {
	if m.declaringType == nil {
		return ""
	}
	return m.declaringType.source
}

// Function returns the guest function bound when the class was declared.
func (m *MethodInfo) Function() *guest.Function { return m.fn }

// SetFunction binds the guest function.
func (m *MethodInfo) SetFunction(fn *guest.Function) { m.fn = fn }

// FieldInfo is a reflected field.
type FieldInfo struct {
	memberBase

	// Default is the literal initial value.
	Default guest.Value

	// Init names another static field ("pkg.Type.field") whose value
	// initializes this one when statics run.
	Init string
}

// NewField creates a field descriptor.
func NewField(name string, static, native bool) *FieldInfo {
	return &FieldInfo{memberBase: memberBase{name: name, static: static, native: native}}
}

func (f *FieldInfo) IsMethod() bool { return false }

// PropertyInfo is a reflected property backed by accessor methods.
type PropertyInfo struct {
	memberBase

	Getter string
	Setter string
}

// NewProperty creates a property descriptor.
func NewProperty(name string, static, native bool) *PropertyInfo {
	return &PropertyInfo{memberBase: memberBase{name: name, static: static, native: native}}
}

func (p *PropertyInfo) IsMethod() bool { return false }
