package ion

import (
	"bytes"
	"fmt"
	"math"
)

// DefaultMaxDepth bounds container nesting accepted by the decoder.
const DefaultMaxDepth = 4096

// Decoder parses binary Ion produced by Encoder. It is used by verification
// tooling only and accepts exactly the subset the encoder emits, plus typed
// nulls and sorted-struct headers.
type Decoder struct {
	MaxDepth int
}

// Unmarshal decodes a BVM-prefixed stream into its top-level values.
func Unmarshal(data []byte) ([]Value, error) {
	return (&Decoder{}).DecodeStream(data)
}

// UnmarshalOne decodes a BVM-prefixed stream holding exactly one value.
func UnmarshalOne(data []byte) (Value, error) {
	vs, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if len(vs) != 1 {
		return nil, fmt.Errorf("%w: expected one top-level value, got %d", ErrMalformed, len(vs))
	}
	return vs[0], nil
}

// DecodeStream decodes a BVM-prefixed stream.
func (d *Decoder) DecodeStream(data []byte) ([]Value, error) {
	if len(data) < len(BVM) || !bytes.Equal(data[:len(BVM)], BVM[:]) {
		return nil, fmt.Errorf("%w: missing binary version marker", ErrMalformed)
	}
	return d.DecodeValues(data[len(BVM):])
}

// DecodeValues decodes consecutive values with no BVM.
func (d *Decoder) DecodeValues(data []byte) ([]Value, error) {
	var out []Value
	for len(data) > 0 {
		if len(data) >= len(BVM) && bytes.Equal(data[:len(BVM)], BVM[:]) {
			data = data[len(BVM):]
			continue
		}
		v, n, err := d.decodeValue(data, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		data = data[n:]
	}
	return out, nil
}

func (d *Decoder) maxDepth() int {
	if d.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return d.MaxDepth
}

// header reads a type descriptor and its length, returning the body start.
func header(b []byte) (td, ln byte, length, hdr int, err error) {
	if len(b) == 0 {
		return 0, 0, 0, 0, fmt.Errorf("%w: truncated value", ErrMalformed)
	}
	td, ln = b[0]>>4, b[0]&0x0F
	hdr = 1
	length = int(ln)
	if ln == lenVar && td != tdBool && td != tdNull {
		v, n, err := readVarUInt(b[1:])
		if err != nil {
			return 0, 0, 0, 0, err
		}
		if v > uint64(len(b)) {
			return 0, 0, 0, 0, fmt.Errorf("%w: length %d past end of input", ErrMalformed, v)
		}
		length = int(v)
		hdr += n
	}
	if ln == lenNull || td == tdBool {
		length = 0
	}
	if hdr+length > len(b) {
		return 0, 0, 0, 0, fmt.Errorf("%w: value length %d past end of input", ErrMalformed, length)
	}
	return td, ln, length, hdr, nil
}

func (d *Decoder) decodeValue(b []byte, depth int) (Value, int, error) {
	if depth > d.maxDepth() {
		return nil, 0, fmt.Errorf("%w: nesting deeper than %d", ErrMalformed, d.maxDepth())
	}
	td, ln, length, hdr, err := header(b)
	if err != nil {
		return nil, 0, err
	}
	body := b[hdr : hdr+length]
	total := hdr + length
	if ln == lenNull && td != tdAnnotation {
		return Null{Of: nullType(td)}, total, nil
	}
	switch td {
	case tdNull:
		return nil, 0, fmt.Errorf("%w: NOP padding is not supported", ErrMalformed)
	case tdBool:
		if ln > 1 {
			return nil, 0, fmt.Errorf("%w: bool length %d", ErrMalformed, ln)
		}
		return Bool(ln == 1), 1, nil
	case tdPosInt:
		mag, err := readUInt(body)
		if err != nil {
			return nil, 0, err
		}
		if mag > math.MaxInt64 {
			return nil, 0, fmt.Errorf("%w: int overflows int64", ErrMalformed)
		}
		return Int(int64(mag)), total, nil
	case tdNegInt:
		mag, err := readUInt(body)
		if err != nil {
			return nil, 0, err
		}
		if mag == 0 {
			return nil, 0, fmt.Errorf("%w: negative zero int", ErrMalformed)
		}
		if mag > 1<<63 {
			return nil, 0, fmt.Errorf("%w: int overflows int64", ErrMalformed)
		}
		return Int(-int64(mag-1) - 1), total, nil
	case tdFloat:
		switch length {
		case 0:
			return Float(0), total, nil
		case 4:
			bits := uint32(body[0])<<24 | uint32(body[1])<<16 | uint32(body[2])<<8 | uint32(body[3])
			return Float(math.Float32frombits(bits)), total, nil
		case 8:
			var bits uint64
			for _, c := range body {
				bits = bits<<8 | uint64(c)
			}
			return Float(math.Float64frombits(bits)), total, nil
		}
		return nil, 0, fmt.Errorf("%w: float length %d", ErrMalformed, length)
	case tdDecimal:
		if length == 0 {
			return Decimal{}, total, nil
		}
		exp, n, err := readVarInt(body)
		if err != nil {
			return nil, 0, err
		}
		if exp < math.MinInt32 || exp > math.MaxInt32 {
			return nil, 0, fmt.Errorf("%w: decimal exponent %d", ErrMalformed, exp)
		}
		coef, err := readSignedInt(body[n:])
		if err != nil {
			return nil, 0, err
		}
		return Decimal{Coefficient: coef, Exponent: int32(exp)}, total, nil
	case tdSymbol:
		id, err := readUInt(body)
		if err != nil {
			return nil, 0, err
		}
		if id > math.MaxUint32 {
			return nil, 0, fmt.Errorf("%w: symbol id %d", ErrMalformed, id)
		}
		return Symbol(id), total, nil
	case tdString:
		return String(body), total, nil
	case tdBlob:
		return Blob(append([]byte(nil), body...)), total, nil
	case tdList, tdSExp:
		items, err := d.decodeSequence(body, depth)
		if err != nil {
			return nil, 0, err
		}
		if td == tdList {
			return List(items), total, nil
		}
		return SExp(items), total, nil
	case tdStruct:
		if ln == 1 {
			// Sorted struct: the length always follows as a VarUInt.
			v, n, err := readVarUInt(b[1:])
			if err != nil {
				return nil, 0, err
			}
			if 1+n+int(v) > len(b) {
				return nil, 0, fmt.Errorf("%w: struct length past end of input", ErrMalformed)
			}
			body = b[1+n : 1+n+int(v)]
			total = 1 + n + int(v)
		}
		s, err := d.decodeStruct(body, depth)
		if err != nil {
			return nil, 0, err
		}
		return s, total, nil
	case tdAnnotation:
		a, err := d.decodeAnnotated(body, depth)
		if err != nil {
			return nil, 0, err
		}
		return a, total, nil
	}
	return nil, 0, fmt.Errorf("%w: unsupported type descriptor 0x%02X", ErrMalformed, b[0])
}

func (d *Decoder) decodeSequence(body []byte, depth int) ([]Value, error) {
	items := []Value{}
	for len(body) > 0 {
		v, n, err := d.decodeValue(body, depth+1)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		body = body[n:]
	}
	return items, nil
}

func (d *Decoder) decodeStruct(body []byte, depth int) (Struct, error) {
	var s Struct
	for len(body) > 0 {
		name, n, err := readVarUInt(body)
		if err != nil {
			return Struct{}, err
		}
		if name > math.MaxUint32 {
			return Struct{}, fmt.Errorf("%w: field id %d", ErrMalformed, name)
		}
		body = body[n:]
		v, n, err := d.decodeValue(body, depth+1)
		if err != nil {
			return Struct{}, err
		}
		s.Fields = append(s.Fields, Field{Name: SymbolID(name), Value: v})
		body = body[n:]
	}
	return s, nil
}

func (d *Decoder) decodeAnnotated(body []byte, depth int) (Annotated, error) {
	alen, n, err := readVarUInt(body)
	if err != nil {
		return Annotated{}, err
	}
	body = body[n:]
	if alen == 0 || alen > uint64(len(body)) {
		return Annotated{}, fmt.Errorf("%w: annotation length %d", ErrMalformed, alen)
	}
	annots := body[:alen]
	var a Annotated
	for len(annots) > 0 {
		id, n, err := readVarUInt(annots)
		if err != nil {
			return Annotated{}, err
		}
		if id > math.MaxUint32 {
			return Annotated{}, fmt.Errorf("%w: annotation id %d", ErrMalformed, id)
		}
		a.Annotations = append(a.Annotations, SymbolID(id))
		annots = annots[n:]
	}
	inner := body[alen:]
	v, n, err := d.decodeValue(inner, depth+1)
	if err != nil {
		return Annotated{}, err
	}
	if n != len(inner) {
		return Annotated{}, fmt.Errorf("%w: trailing bytes in annotation wrapper", ErrMalformed)
	}
	a.Value = v
	return a, nil
}

func nullType(td byte) Type {
	switch td {
	case tdBool:
		return TypeBool
	case tdPosInt, tdNegInt:
		return TypeInt
	case tdFloat:
		return TypeFloat
	case tdDecimal:
		return TypeDecimal
	case tdTimestamp:
		return TypeTimestamp
	case tdSymbol:
		return TypeSymbol
	case tdString:
		return TypeString
	case tdClob:
		return TypeClob
	case tdBlob:
		return TypeBlob
	case tdList:
		return TypeList
	case tdSExp:
		return TypeSExp
	case tdStruct:
		return TypeStruct
	}
	return TypeNull
}
