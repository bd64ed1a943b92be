package reflection

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	json "github.com/goccy/go-json"
)

// Document is the serialized form of an assembly catalog. The textual
// intermediate form is JSON; the payload of a binary module is the same
// document in canonical CBOR.
type Document struct {
	Name       string      `json:"name"`
	UID        string      `json:"uid,omitempty"`
	References []string    `json:"references,omitempty"`
	EntryPoint string      `json:"entry,omitempty"`
	Modules    []ModuleDoc `json:"modules"`
}

// ModuleDoc describes one module.
type ModuleDoc struct {
	Name  string    `json:"name"`
	Types []TypeDoc `json:"types"`
}

// TypeDoc describes one type.
type TypeDoc struct {
	Name          string        `json:"name"`
	Package       string        `json:"package,omitempty"`
	TypeID        int           `json:"typeid"`
	Source        string        `json:"source,omitempty"`
	BaseType      string        `json:"baseType,omitempty"`
	Imports       []string      `json:"imports,omitempty"`
	Native        bool          `json:"native,omitempty"`
	NativeManaged bool          `json:"nativeManaged,omitempty"`
	Missing       string        `json:"missing,omitempty"`
	Methods       []MethodDoc   `json:"methods,omitempty"`
	Fields        []FieldDoc    `json:"fields,omitempty"`
	Properties    []PropertyDoc `json:"properties,omitempty"`
}

// MethodDoc describes one method.
type MethodDoc struct {
	Name     string `json:"name"`
	Static   bool   `json:"static,omitempty"`
	Native   bool   `json:"native,omitempty"`
	Line     int    `json:"line,omitempty"`
	ByteCode []byte `json:"bytecode,omitempty"`
}

// FieldDoc describes one field.
type FieldDoc struct {
	Name    string `json:"name"`
	Static  bool   `json:"static,omitempty"`
	Native  bool   `json:"native,omitempty"`
	Default any    `json:"default,omitempty"`
	Init    string `json:"init,omitempty"`
}

// PropertyDoc describes one property.
type PropertyDoc struct {
	Name   string `json:"name"`
	Static bool   `json:"static,omitempty"`
	Native bool   `json:"native,omitempty"`
	Getter string `json:"getter,omitempty"`
	Setter string `json:"setter,omitempty"`
}

var (
	ErrNoName     = errors.New("assembly document has no name")
	ErrBadCatalog = errors.New("malformed assembly catalog")
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("reflection: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ParseJSON decodes the textual intermediate form.
func ParseJSON(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCatalog, err)
	}
	if doc.Name == "" {
		return nil, ErrNoName
	}
	return &doc, nil
}

// EncodeJSON renders the textual intermediate form.
func EncodeJSON(doc *Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// ParseBinary decodes the inflated payload of a binary module.
func ParseBinary(data []byte) (*Document, error) {
	var doc Document
	if err := cbor.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCatalog, err)
	}
	if doc.Name == "" {
		return nil, ErrNoName
	}
	return &doc, nil
}

// EncodeBinary renders the binary module payload.
func EncodeBinary(doc *Document) ([]byte, error) {
	return cborEncMode.Marshal(doc)
}
