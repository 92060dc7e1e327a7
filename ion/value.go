// Package ion implements the subset of the Amazon Ion 1.0 binary encoding used
// by KFX containers.
//
// Values are plain Go types implementing [Value]. Symbols are carried as
// numeric ids only; resolving ids to text is the job of the caller's symbol
// table, which the [Encoder] consults through a [Resolver] so that a value can
// never reference a symbol the container does not declare.
package ion

import (
	"sort"
	"strconv"
)

// SymbolID is a numeric Ion symbol id.
type SymbolID uint32

// Ion system symbol ids.
const (
	SymIon                  SymbolID = 1
	SymIon10                SymbolID = 2
	SymIonSymbolTable       SymbolID = 3
	SymName                 SymbolID = 4
	SymVersion              SymbolID = 5
	SymImports              SymbolID = 6
	SymSymbols              SymbolID = 7
	SymMaxID                SymbolID = 8
	SymIonSharedSymbolTable SymbolID = 9
)

// SystemMaxID is the largest id reserved by the Ion system symbol table.
const SystemMaxID = SymIonSharedSymbolTable

// BVM is the Ion 1.0 binary version marker.
var BVM = [4]byte{0xE0, 0x01, 0x00, 0xEA}

// Type identifies the Ion type of a value.
type Type uint8

const (
	TypeNull Type = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeDecimal
	TypeTimestamp
	TypeSymbol
	TypeString
	TypeClob
	TypeBlob
	TypeList
	TypeSExp
	TypeStruct
	TypeAnnotation
)

func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeDecimal:
		return "decimal"
	case TypeTimestamp:
		return "timestamp"
	case TypeSymbol:
		return "symbol"
	case TypeString:
		return "string"
	case TypeClob:
		return "clob"
	case TypeBlob:
		return "blob"
	case TypeList:
		return "list"
	case TypeSExp:
		return "sexp"
	case TypeStruct:
		return "struct"
	case TypeAnnotation:
		return "annotation"
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// Value is any encodable Ion value.
type Value interface {
	Type() Type
}

// Null is an Ion null. Of selects a typed null (null.int, null.struct, ...);
// the zero value is the untyped null.
type Null struct {
	Of Type
}

type (
	Bool   bool
	Int    int64
	Float  float64
	String string
	Symbol SymbolID
	Blob   []byte
	List   []Value
	SExp   []Value
)

// Field is one symbol-keyed member of a Struct.
type Field struct {
	Name  SymbolID
	Value Value
}

// F is shorthand for a Field literal.
func F(name SymbolID, v Value) Field { return Field{Name: name, Value: v} }

// Struct is an ordered, symbol-keyed Ion struct. Fields are encoded in slice
// order.
type Struct struct {
	Fields []Field
}

// NewStruct returns a struct holding fields in the given order.
func NewStruct(fields ...Field) Struct { return Struct{Fields: fields} }

// Annotated wraps a value with one or more annotation symbols.
type Annotated struct {
	Annotations []SymbolID
	Value       Value
}

// Annotate wraps v with a single annotation.
func Annotate(annot SymbolID, v Value) Annotated {
	return Annotated{Annotations: []SymbolID{annot}, Value: v}
}

func (Null) Type() Type      { return TypeNull }
func (Bool) Type() Type      { return TypeBool }
func (Int) Type() Type       { return TypeInt }
func (Float) Type() Type     { return TypeFloat }
func (Decimal) Type() Type   { return TypeDecimal }
func (String) Type() Type    { return TypeString }
func (Symbol) Type() Type    { return TypeSymbol }
func (Blob) Type() Type      { return TypeBlob }
func (List) Type() Type      { return TypeList }
func (SExp) Type() Type      { return TypeSExp }
func (Struct) Type() Type    { return TypeStruct }
func (Annotated) Type() Type { return TypeAnnotation }

// Get returns the first field named name.
func (s Struct) Get(name SymbolID) (Value, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Set replaces the first field named name, or appends it.
func (s *Struct) Set(name SymbolID, v Value) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			s.Fields[i].Value = v
			return
		}
	}
	s.Fields = append(s.Fields, Field{Name: name, Value: v})
}

// Len reports the number of fields.
func (s Struct) Len() int { return len(s.Fields) }

// Sorted returns a copy of s with fields in ascending symbol order. The sort
// is stable so repeated names keep their relative order.
func (s Struct) Sorted() Struct {
	out := make([]Field, len(s.Fields))
	copy(out, s.Fields)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return Struct{Fields: out}
}

// Unwrap strips any annotation wrappers from v.
func Unwrap(v Value) Value {
	for {
		a, ok := v.(Annotated)
		if !ok {
			return v
		}
		v = a.Value
	}
}
