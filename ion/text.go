package ion

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// Format renders v in Ion text notation. names maps symbol ids to text; when
// it is nil or returns "", symbols render as $id.
func Format(v Value, names func(SymbolID) string) string {
	var sb strings.Builder
	formatValue(&sb, v, names)
	return sb.String()
}

func symbolText(id SymbolID, names func(SymbolID) string) string {
	if names != nil {
		if s := names(id); s != "" {
			return s
		}
	}
	return "$" + strconv.FormatUint(uint64(id), 10)
}

func formatValue(sb *strings.Builder, v Value, names func(SymbolID) string) {
	switch x := v.(type) {
	case nil:
		sb.WriteString("null")
	case Null:
		sb.WriteString("null")
		if x.Of != TypeNull {
			sb.WriteString("." + x.Of.String())
		}
	case Bool:
		sb.WriteString(strconv.FormatBool(bool(x)))
	case Int:
		sb.WriteString(strconv.FormatInt(int64(x), 10))
	case Float:
		sb.WriteString(strconv.FormatFloat(float64(x), 'e', -1, 64))
	case Decimal:
		sb.WriteString(strconv.FormatInt(x.Coefficient, 10))
		sb.WriteString("d")
		sb.WriteString(strconv.FormatInt(int64(x.Exponent), 10))
	case String:
		sb.WriteString(strconv.Quote(string(x)))
	case Symbol:
		sb.WriteString(symbolText(SymbolID(x), names))
	case Blob:
		sb.WriteString("{{" + base64.StdEncoding.EncodeToString(x) + "}}")
	case List:
		formatSeq(sb, "[", "]", ", ", x, names)
	case SExp:
		formatSeq(sb, "(", ")", " ", x, names)
	case Struct:
		sb.WriteString("{")
		for i, f := range x.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(symbolText(f.Name, names))
			sb.WriteString(": ")
			formatValue(sb, f.Value, names)
		}
		sb.WriteString("}")
	case *Struct:
		formatValue(sb, *x, names)
	case Annotated:
		for _, a := range x.Annotations {
			sb.WriteString(symbolText(a, names))
			sb.WriteString("::")
		}
		formatValue(sb, x.Value, names)
	default:
		sb.WriteString("?")
	}
}

func formatSeq(sb *strings.Builder, start, end, sep string, items []Value, names func(SymbolID) string) {
	sb.WriteString(start)
	for i, item := range items {
		if i > 0 {
			sb.WriteString(sep)
		}
		formatValue(sb, item, names)
	}
	sb.WriteString(end)
}
