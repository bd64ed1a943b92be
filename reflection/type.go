// Package reflection models the statically reflected type catalog of a
// loaded assembly: assemblies own modules, modules own types, types own
// their members.
package reflection

import (
	"fmt"
	"strings"
)

// Type is a reflected script type.
//
// Base types and imports are non-owning back-references: the referenced
// types belong to their own modules.
type Type struct {
	name        string
	packageName string
	fullName    string
	typeID      int
	source      string

	missing       bool
	missingReason string

	base        *Type
	baseName    string
	imports     []*Type
	importNames []string

	native        bool
	nativeManaged bool
	cTypeName     string

	module *Module

	methods    []*MethodInfo
	fields     []*FieldInfo
	properties []*PropertyInfo

	memberCache map[string]MemberInfo
}

// NewType creates a detached type. Build is the usual way to get types;
// NewType exists for hosts assembling catalogs by hand.
func NewType(packageName, name string, typeID int) *Type {
	full := name
	if packageName != "" {
		full = packageName + "." + name
	}
	return &Type{name: name, packageName: packageName, fullName: full, typeID: typeID}
}

func (t *Type) Name() string        { return t.name }
func (t *Type) PackageName() string { return t.packageName }
func (t *Type) FullName() string    { return t.fullName }
func (t *Type) TypeID() int         { return t.typeID }
func (t *Type) Source() string      { return t.source }
func (t *Type) Module() *Module     { return t.module }
func (t *Type) BaseType() *Type     { return t.base }

// BaseTypeName is the declared base type name, set even when it could
// not be resolved.
func (t *Type) BaseTypeName() string { return t.baseName }

// Imports returns the resolved imported types.
func (t *Type) Imports() []*Type { return t.imports }

// ImportNames returns the declared import names.
func (t *Type) ImportNames() []string { return t.importNames }

// SetBaseType links the base type.
func (t *Type) SetBaseType(base *Type) {
	t.base = base
	if base != nil {
		t.baseName = base.fullName
	}
}

// AddImport links an imported type.
func (t *Type) AddImport(imp *Type) {
	t.imports = append(t.imports, imp)
	t.importNames = append(t.importNames, imp.fullName)
}

// Missing reports whether the type has been excluded from the live set.
func (t *Type) Missing() bool { return t.missing }

// MissingReason is the reason given when the type was first marked missing.
func (t *Type) MissingReason() string { return t.missingReason }

// SetMissing marks the type missing. Once set the flag is never cleared
// and the first reason is kept.
func (t *Type) SetMissing(format string, args ...any) {
	if t.missing {
		return
	}
	t.missing = true
	t.missingReason = fmt.Sprintf(format, args...)
}

func (t *Type) IsNative() bool        { return t.native }
func (t *Type) IsNativeManaged() bool { return t.nativeManaged }

// SetNative sets the native classification flags.
func (t *Type) SetNative(native, managed bool) {
	t.native = native
	t.nativeManaged = managed
}

// HasStaticNativeMember reports whether any static member is native.
func (t *Type) HasStaticNativeMember() bool {
	for _, m := range t.members() {
		if m.IsStatic() && m.IsNative() {
			return true
		}
	}
	return false
}

// CTypeName is the native type name recorded during binding validation.
func (t *Type) CTypeName() string { return t.cTypeName }

// SetCTypeName records the native type name.
func (t *Type) SetCTypeName(name string) { t.cTypeName = name }

// IsDerivedFrom reports whether t is other or inherits from it.
func (t *Type) IsDerivedFrom(other *Type) bool {
	for c := t; c != nil; c = c.base {
		if c == other {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

func (t *Type) Methods() []*MethodInfo      { return t.methods }
func (t *Type) Fields() []*FieldInfo        { return t.fields }
func (t *Type) Properties() []*PropertyInfo { return t.properties }

// AddMethod adds a method owned by t.
func (t *Type) AddMethod(m *MethodInfo) {
	m.declaringType = t
	t.methods = append(t.methods, m)
	t.memberCache = nil
}

// AddField adds a field owned by t.
func (t *Type) AddField(f *FieldInfo) {
	f.declaringType = t
	t.fields = append(t.fields, f)
	t.memberCache = nil
}

// AddProperty adds a property owned by t.
func (t *Type) AddProperty(p *PropertyInfo) {
	p.declaringType = t
	t.properties = append(t.properties, p)
	t.memberCache = nil
}

func (t *Type) members() []MemberInfo {
	out := make([]MemberInfo, 0, len(t.methods)+len(t.fields)+len(t.properties))
	for _, m := range t.methods {
		out = append(out, m)
	}
	for _, f := range t.fields {
		out = append(out, f)
	}
	for _, p := range t.properties {
		out = append(out, p)
	}
	return out
}

// MemberTypes selects member kinds for FindMembers.
type MemberTypes struct {
	Method   bool
	Field    bool
	Property bool
}

// AllMembers selects every member kind.
var AllMembers = MemberTypes{Method: true, Field: true, Property: true}

// FindMembers returns the members of the selected kinds declared by t,
// followed by inherited ones when includeBases is set.
func (t *Type) FindMembers(kinds MemberTypes, includeBases bool) []MemberInfo {
	var out []MemberInfo
	for c := t; c != nil; c = c.base {
		if kinds.Method {
			for _, m := range c.methods {
				out = append(out, m)
			}
		}
		if kinds.Field {
			for _, f := range c.fields {
				out = append(out, f)
			}
		}
		if kinds.Property {
			for _, p := range c.properties {
				out = append(out, p)
			}
		}
		if !includeBases {
			break
		}
	}
	return out
}

// FindMember looks a member up by name on t and its ancestors. The nearest
// declaration wins.
func (t *Type) FindMember(name string) MemberInfo {
	if t.memberCache != nil {
		return t.memberCache[name]
	}
	for c := t; c != nil; c = c.base {
		for _, m := range c.members() {
			if m.Name() == name {
				return m
			}
		}
	}
	return nil
}

// Cache builds the by-name member lookup used by FindMember.
func (t *Type) Cache() {
	cache := make(map[string]MemberInfo)
	var chain []*Type
	for c := t; c != nil; c = c.base {
		chain = append(chain, c)
	}
	// Root first so that nearer declarations overwrite inherited ones.
	for i := len(chain) - 1; i >= 0; i-- {
		for _, m := range chain[i].members() {
			cache[m.Name()] = m
		}
	}
	t.memberCache = cache
}

// Cached reports whether Cache has run since the last member change.
func (t *Type) Cached() bool { return t.memberCache != nil }

// Destroy detaches t from its module and assembly and drops its members.
// The type must not be used afterwards.
func (t *Type) Destroy() {
	if t.module != nil {
		t.module.RemoveType(t)
	}
	t.methods = nil
	t.fields = nil
	t.properties = nil
	t.memberCache = nil
	t.imports = nil
	t.base = nil
}

func (t *Type) String() string { return t.fullName }

// SplitName splits "a.b.C" into ("a.b", "C").
func SplitName(full string) (prefix, last string) {
	i := strings.LastIndexByte(full, '.')
	if i < 0 {
		return "", full
	}
	return full[:i], full[i+1:]
}
