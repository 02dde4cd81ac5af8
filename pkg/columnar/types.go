package columnar

import (
	"strings"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
)

// ColumnType represents the data type of a column
type ColumnType int

const (
	ColumnTypeInvalid ColumnType = iota
	ColumnTypeInt32
	ColumnTypeInt64
	ColumnTypeFloat32
	ColumnTypeFloat64
	ColumnTypeBool
	// ColumnTypeString is dictionary encoded: one byte index per row
	ColumnTypeString
)

// Width returns the number of bytes one cell occupies in the column buffer,
// or 0 for an unsupported type.
func (t ColumnType) Width() int {
	switch t {
	case ColumnTypeInt32, ColumnTypeFloat32:
		return 4
	case ColumnTypeInt64, ColumnTypeFloat64:
		return 8
	case ColumnTypeBool, ColumnTypeString:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the type belongs to the supported primitive set
func (t ColumnType) Valid() bool {
	return t.Width() > 0
}

// Numeric reports whether values of the type can be summed
func (t ColumnType) Numeric() bool {
	switch t {
	case ColumnTypeInt32, ColumnTypeInt64, ColumnTypeFloat32, ColumnTypeFloat64, ColumnTypeBool:
		return true
	}
	return false
}

func (t ColumnType) String() string {
	switch t {
	case ColumnTypeInt32:
		return "int32"
	case ColumnTypeInt64:
		return "int64"
	case ColumnTypeFloat32:
		return "float32"
	case ColumnTypeFloat64:
		return "float64"
	case ColumnTypeBool:
		return "bool"
	case ColumnTypeString:
		return "string"
	default:
		return "invalid"
	}
}

// ParseColumnType maps a type name to a ColumnType. Unknown names yield a
// schema error.
func ParseColumnType(name string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "int32", "int":
		return ColumnTypeInt32, nil
	case "int64", "long":
		return ColumnTypeInt64, nil
	case "float32", "float":
		return ColumnTypeFloat32, nil
	case "float64", "double":
		return ColumnTypeFloat64, nil
	case "bool", "boolean":
		return ColumnTypeBool, nil
	case "string", "dict", "dictionary":
		return ColumnTypeString, nil
	default:
		return ColumnTypeInvalid, errors.New(errors.ErrorTypeSchema, "unsupported column type").
			WithDetail("type", name)
	}
}

// Schema defines the ordered columns of a table
type Schema struct {
	Fields []FieldSchema
}

// FieldSchema defines a single field in the schema
type FieldSchema struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// NewSchema builds a schema from fields in order
func NewSchema(fields ...FieldSchema) *Schema {
	return &Schema{Fields: fields}
}

// ParseSchema parses the compact "name:type,name:type?" notation. A trailing
// '?' on the type marks the column nullable.
func ParseSchema(spec string) (*Schema, error) {
	schema := &Schema{}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, typ, ok := strings.Cut(part, ":")
		if !ok {
			return nil, errors.New(errors.ErrorTypeSchema, "field must be written as name:type").
				WithDetail("field", part)
		}
		nullable := strings.HasSuffix(typ, "?")
		colType, err := ParseColumnType(strings.TrimSuffix(typ, "?"))
		if err != nil {
			return nil, err
		}
		schema.Fields = append(schema.Fields, FieldSchema{
			Name:     strings.TrimSpace(name),
			Type:     colType,
			Nullable: nullable,
		})
	}
	return schema, schema.Validate()
}

// Validate checks every field against the supported type set and rejects
// empty or duplicate names.
func (s *Schema) Validate() error {
	if s == nil || len(s.Fields) == 0 {
		return errors.New(errors.ErrorTypeSchema, "schema has no fields")
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == "" {
			return errors.New(errors.ErrorTypeSchema, "field name is empty").WithDetail("index", i)
		}
		if _, dup := seen[f.Name]; dup {
			return errors.New(errors.ErrorTypeSchema, "duplicate field name").WithDetail("field", f.Name)
		}
		seen[f.Name] = struct{}{}
		if !f.Type.Valid() {
			return errors.New(errors.ErrorTypeSchema, "unsupported column type").
				WithDetail("field", f.Name).
				WithDetail("type", int(f.Type))
		}
	}
	return nil
}

// Names returns the field names in schema order
func (s *Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// String formats the schema in the notation ParseSchema reads
func (s *Schema) String() string {
	var b strings.Builder
	for i, f := range s.Fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.Name)
		b.WriteByte(':')
		b.WriteString(f.Type.String())
		if f.Nullable {
			b.WriteByte('?')
		}
	}
	return b.String()
}
