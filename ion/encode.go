package ion

import (
	"fmt"
	"math"
	"strconv"
)

// Resolver reports whether a symbol id is declared by the active symbol
// table.
type Resolver interface {
	Resolves(id SymbolID) bool
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(id SymbolID) bool

func (f ResolverFunc) Resolves(id SymbolID) bool { return f(id) }

// SystemResolver resolves only the Ion system symbols.
var SystemResolver Resolver = ResolverFunc(func(id SymbolID) bool { return id <= SystemMaxID })

// Type descriptor high nibbles.
const (
	tdNull       = 0x0
	tdBool       = 0x1
	tdPosInt     = 0x2
	tdNegInt     = 0x3
	tdFloat      = 0x4
	tdDecimal    = 0x5
	tdTimestamp  = 0x6
	tdSymbol     = 0x7
	tdString     = 0x8
	tdClob       = 0x9
	tdBlob       = 0xA
	tdList       = 0xB
	tdSExp       = 0xC
	tdStruct     = 0xD
	tdAnnotation = 0xE

	lenVar  = 0xE
	lenNull = 0xF
)

// Encoder serializes values, checking every symbol reference against its
// resolver. An Encoder holds no per-value state and may be reused.
type Encoder struct {
	res Resolver
}

// NewEncoder returns an encoder that resolves symbols through r. A nil r
// resolves only system symbols.
func NewEncoder(r Resolver) *Encoder {
	if r == nil {
		r = SystemResolver
	}
	return &Encoder{res: r}
}

// Marshal encodes v as a standalone Ion stream: BVM followed by the value.
func Marshal(v Value, r Resolver) ([]byte, error) {
	return NewEncoder(r).EncodeStream(v)
}

// EncodeStream encodes the BVM followed by each value.
func (e *Encoder) EncodeStream(vs ...Value) ([]byte, error) {
	out := append([]byte(nil), BVM[:]...)
	for i, v := range vs {
		var err error
		out, err = e.appendValue(out, v)
		if err != nil {
			if len(vs) > 1 {
				return nil, within(err, "["+strconv.Itoa(i)+"]")
			}
			return nil, err
		}
	}
	return out, nil
}

// Encode encodes v without a BVM.
func (e *Encoder) Encode(v Value) ([]byte, error) {
	return e.appendValue(nil, v)
}

// AppendValue appends the encoding of v to dst.
func (e *Encoder) AppendValue(dst []byte, v Value) ([]byte, error) {
	return e.appendValue(dst, v)
}

func (e *Encoder) appendValue(dst []byte, v Value) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return append(dst, tdNull<<4|lenNull), nil
	case Null:
		return append(dst, nullDescriptor(x.Of)), nil
	case Bool:
		if x {
			return append(dst, tdBool<<4|1), nil
		}
		return append(dst, tdBool<<4), nil
	case Int:
		return appendInt(dst, int64(x)), nil
	case Float:
		bits := math.Float64bits(float64(x))
		dst = append(dst, tdFloat<<4|8)
		for i := 7; i >= 0; i-- {
			dst = append(dst, byte(bits>>(uint(i)*8)))
		}
		return dst, nil
	case Decimal:
		return appendDecimal(dst, x)
	case String:
		dst = appendHeader(dst, tdString, len(x))
		return append(dst, x...), nil
	case Symbol:
		id := SymbolID(x)
		if !e.res.Resolves(id) {
			return nil, &SymbolError{ID: id}
		}
		dst = appendHeader(dst, tdSymbol, uintLen(uint64(id)))
		return appendUInt(dst, uint64(id)), nil
	case Blob:
		dst = appendHeader(dst, tdBlob, len(x))
		return append(dst, x...), nil
	case List:
		return e.appendSequence(dst, tdList, x)
	case SExp:
		return e.appendSequence(dst, tdSExp, x)
	case Struct:
		return e.appendStruct(dst, x)
	case *Struct:
		if x == nil {
			return append(dst, tdStruct<<4|lenNull), nil
		}
		return e.appendStruct(dst, *x)
	case Annotated:
		return e.appendAnnotated(dst, x)
	}
	return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidValue, v)
}

func (e *Encoder) appendSequence(dst []byte, td byte, items []Value) ([]byte, error) {
	var body []byte
	for i, item := range items {
		var err error
		body, err = e.appendValue(body, item)
		if err != nil {
			return nil, within(err, "["+strconv.Itoa(i)+"]")
		}
	}
	dst = appendHeader(dst, td, len(body))
	return append(dst, body...), nil
}

func (e *Encoder) appendStruct(dst []byte, s Struct) ([]byte, error) {
	var body []byte
	for _, f := range s.Fields {
		if !e.res.Resolves(f.Name) {
			return nil, &SymbolError{ID: f.Name}
		}
		body = appendVarUInt(body, uint64(f.Name))
		var err error
		body, err = e.appendValue(body, f.Value)
		if err != nil {
			return nil, within(err, "$"+strconv.FormatUint(uint64(f.Name), 10))
		}
	}
	dst = appendHeader(dst, tdStruct, len(body))
	return append(dst, body...), nil
}

func (e *Encoder) appendAnnotated(dst []byte, a Annotated) ([]byte, error) {
	if len(a.Annotations) == 0 {
		return nil, fmt.Errorf("%w: annotation wrapper without annotations", ErrInvalidValue)
	}
	if _, nested := a.Value.(Annotated); nested {
		return nil, fmt.Errorf("%w: nested annotation wrapper", ErrInvalidValue)
	}
	var annots []byte
	for _, id := range a.Annotations {
		if !e.res.Resolves(id) {
			return nil, &SymbolError{ID: id}
		}
		annots = appendVarUInt(annots, uint64(id))
	}
	inner, err := e.appendValue(nil, a.Value)
	if err != nil {
		return nil, err
	}
	body := appendVarUInt(nil, uint64(len(annots)))
	body = append(body, annots...)
	body = append(body, inner...)
	dst = appendHeader(dst, tdAnnotation, len(body))
	return append(dst, body...), nil
}

func appendHeader(dst []byte, td byte, n int) []byte {
	if n < lenVar {
		return append(dst, td<<4|byte(n))
	}
	dst = append(dst, td<<4|lenVar)
	return appendVarUInt(dst, uint64(n))
}

func appendInt(dst []byte, v int64) []byte {
	if v >= 0 {
		dst = appendHeader(dst, tdPosInt, uintLen(uint64(v)))
		return appendUInt(dst, uint64(v))
	}
	mag := uint64(-(v + 1)) + 1
	dst = appendHeader(dst, tdNegInt, uintLen(mag))
	return appendUInt(dst, mag)
}

// appendDecimal rejects a coefficient of MinInt64: its sign-and-magnitude
// form needs nine bytes and no longer reads back as an int64.
func appendDecimal(dst []byte, d Decimal) ([]byte, error) {
	if d.Coefficient == math.MinInt64 {
		return nil, fmt.Errorf("%w: decimal coefficient %d out of range", ErrInvalidValue, d.Coefficient)
	}
	if d.Coefficient == 0 && d.Exponent == 0 {
		return append(dst, tdDecimal<<4), nil
	}
	body := appendVarInt(nil, int64(d.Exponent))
	body = appendSignedInt(body, d.Coefficient)
	dst = appendHeader(dst, tdDecimal, len(body))
	return append(dst, body...), nil
}

func nullDescriptor(t Type) byte {
	switch t {
	case TypeBool:
		return tdBool<<4 | lenNull
	case TypeInt:
		return tdPosInt<<4 | lenNull
	case TypeFloat:
		return tdFloat<<4 | lenNull
	case TypeDecimal:
		return tdDecimal<<4 | lenNull
	case TypeTimestamp:
		return tdTimestamp<<4 | lenNull
	case TypeSymbol:
		return tdSymbol<<4 | lenNull
	case TypeString:
		return tdString<<4 | lenNull
	case TypeClob:
		return tdClob<<4 | lenNull
	case TypeBlob:
		return tdBlob<<4 | lenNull
	case TypeList:
		return tdList<<4 | lenNull
	case TypeSExp:
		return tdSExp<<4 | lenNull
	case TypeStruct:
		return tdStruct<<4 | lenNull
	}
	return tdNull<<4 | lenNull
}
