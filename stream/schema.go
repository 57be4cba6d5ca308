package stream

import (
	"fmt"
	"hash/fnv"
	"reflect"
	"strings"
)

// SchemaDescriptor is computed once at Stream construction from the
// EntryType's reflected shape, mirroring the source's SherlockSchema:
// {language, type_name, type_id, type_schema}.
type SchemaDescriptor struct {
	Language   map[string]string `json:"language"`
	TypeName   string            `json:"type_name"`
	TypeID     uint64            `json:"type_id"`
	TypeSchema string            `json:"type_schema"`
}

// SimpleSchema is the {type_id, entry_name, namespace_name} variant
// returned by ?schema&format=simple.
type SimpleSchema struct {
	TypeID        uint64 `json:"type_id"`
	EntryName     string `json:"entry_name"`
	NamespaceName string `json:"namespace_name"`
}

// Simple projects the descriptor down to the simple variant for ns.
func (s SchemaDescriptor) Simple(ns NamespaceName) SimpleSchema {
	return SimpleSchema{TypeID: s.TypeID, EntryName: ns.EntryName, NamespaceName: ns.Namespace}
}

func computeSchema[E any]() SchemaDescriptor {
	var zero E
	t := reflect.TypeOf(zero)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := "unknown"
	schemaText := "unknown"
	if t != nil {
		name = t.Name()
		schemaText = renderGoType(t)
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(schemaText))
	return SchemaDescriptor{
		Language:   map[string]string{"go": schemaText},
		TypeName:   name,
		TypeID:     h.Sum64(),
		TypeSchema: schemaText,
	}
}

// renderGoType renders a best-effort Go struct literal description of t,
// used both as the full type_schema and as the "go" language text.
func renderGoType(t reflect.Type) string {
	if t.Kind() != reflect.Struct {
		return t.String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "type %s struct {\n", t.Name())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := ""
		if jsonTag := f.Tag.Get("json"); jsonTag != "" {
			tag = fmt.Sprintf(" `json:%q`", jsonTag)
		}
		fmt.Fprintf(&b, "\t%s %s%s\n", f.Name, f.Type.String(), tag)
	}
	b.WriteString("}")
	return b.String()
}
