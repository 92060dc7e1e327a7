// Package style maps CSS-like declarations onto KFX style properties and
// deduplicates the resulting style fragments.
package style

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/logicossoftware/go-kfx/ion"
	"github.com/logicossoftware/go-kfx/symtab"
)

// Declaration is one CSS property assignment, e.g. {"font-weight", "bold"}.
type Declaration struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

// Property is one mapped KFX style property.
type Property struct {
	ID    ion.SymbolID
	Value ion.Value
}

// Properties is an ordered property list.
type Properties []Property

// Struct returns the style fragment value named name. Properties keep their
// order.
func (p Properties) Struct(name ion.SymbolID) ion.Struct {
	s := ion.Struct{Fields: make([]ion.Field, 0, len(p)+1)}
	s.Fields = append(s.Fields, ion.F(symtab.StyleName, ion.Symbol(name)))
	for _, prop := range p {
		s.Fields = append(s.Fields, ion.F(prop.ID, prop.Value))
	}
	return s
}

// Kind classifies how a property's value is written.
type Kind uint8

const (
	KindKeyword Kind = iota + 1
	KindLength
	KindColor
	KindNumber
	KindString
	KindFlag
)

// DecimalPlaces is the precision kept for lengths and numbers.
const DecimalPlaces = 3

type propertyDef struct {
	css  string
	id   ion.SymbolID
	kind Kind
	// keyword values; a zero id marks a value with no effect.
	keywords map[string]ion.SymbolID
}

var (
	alignments = map[string]ion.SymbolID{
		"left": 0, "start": 0, "right": symtab.Right, "end": symtab.Right,
		"center": symtab.Center, "justify": symtab.Justify,
	}
	weights = map[string]ion.SymbolID{
		"normal": 0, "400": 0,
		"bold": symtab.Bold, "bolder": symtab.Bold, "700": symtab.Bold, "lighter": symtab.Weight300,
		"100": symtab.Weight100, "200": symtab.Weight200, "300": symtab.Weight300,
		"500": symtab.Weight500, "600": symtab.Weight600,
		"800": symtab.Weight800, "900": symtab.Weight900,
	}
	fontStyles = map[string]ion.SymbolID{
		"normal": 0, "italic": symtab.Italic, "oblique": symtab.Oblique,
	}
	transforms = map[string]ion.SymbolID{
		"none": 0, "uppercase": symtab.Uppercase, "lowercase": symtab.Lowercase,
		"capitalize": symtab.Titlecase,
	}
	baselines = map[string]ion.SymbolID{
		"baseline": 0, "super": symtab.Superscript, "sub": symtab.Subscript,
	}
	variants = map[string]ion.SymbolID{
		"normal": 0, "small-caps": symtab.SmallCaps,
	}
)

// keywordNames is the preferred CSS spelling of each keyword value.
var keywordNames = map[ion.SymbolID]string{
	symtab.Right: "right", symtab.Center: "center", symtab.Justify: "justify",
	symtab.Bold: "bold", symtab.Weight100: "100", symtab.Weight200: "200",
	symtab.Weight300: "300", symtab.Weight500: "500", symtab.Weight600: "600",
	symtab.Weight800: "800", symtab.Weight900: "900",
	symtab.Italic: "italic", symtab.Oblique: "oblique",
	symtab.Uppercase: "uppercase", symtab.Lowercase: "lowercase", symtab.Titlecase: "capitalize",
	symtab.Superscript: "super", symtab.Subscript: "sub", symtab.SmallCaps: "small-caps",
}

var propertyDefs = []propertyDef{
	{css: "font-family", id: symtab.FontFamily, kind: KindString},
	{css: "font-style", id: symtab.FontStyle, kind: KindKeyword, keywords: fontStyles},
	{css: "font-weight", id: symtab.FontWeight, kind: KindKeyword, keywords: weights},
	{css: "font-size", id: symtab.FontSize, kind: KindLength},
	{css: "font-variant", id: symtab.FontVariant, kind: KindKeyword, keywords: variants},
	{css: "color", id: symtab.TextColor, kind: KindColor},
	{css: "background-color", id: symtab.TextBackgroundColor, kind: KindColor},
	{css: "letter-spacing", id: symtab.Letterspacing, kind: KindLength},
	{css: "word-spacing", id: symtab.Wordspacing, kind: KindLength},
	{css: "text-align", id: symtab.TextAlignment, kind: KindKeyword, keywords: alignments},
	{css: "text-indent", id: symtab.TextIndent, kind: KindLength},
	{css: "text-transform", id: symtab.TextTransform, kind: KindKeyword, keywords: transforms},
	{css: "line-height", id: symtab.LineHeight, kind: KindLength},
	{css: "vertical-align", id: symtab.BaselineStyle, kind: KindKeyword, keywords: baselines},
	{css: "white-space", id: symtab.Nowrap, kind: KindFlag},
	{css: "margin-top", id: symtab.MarginTop, kind: KindLength},
	{css: "margin-left", id: symtab.MarginLeft, kind: KindLength},
	{css: "margin-bottom", id: symtab.MarginBottom, kind: KindLength},
	{css: "margin-right", id: symtab.MarginRight, kind: KindLength},
	{css: "padding-top", id: symtab.PaddingTop, kind: KindLength},
	{css: "padding-right", id: symtab.PaddingRight, kind: KindLength},
	{css: "padding-bottom", id: symtab.PaddingBottom, kind: KindLength},
	{css: "padding-left", id: symtab.PaddingLeft, kind: KindLength},
	{css: "width", id: symtab.Width, kind: KindLength},
	{css: "height", id: symtab.Height, kind: KindLength},
	{css: "max-width", id: symtab.MaxWidth, kind: KindLength},
	{css: "opacity", id: symtab.FillOpacity, kind: KindNumber},
	{css: "lang", id: symtab.Language, kind: KindString},
	// text-decoration fans out to one of three properties.
	{css: "-kfx-underline", id: symtab.Underline, kind: KindFlag},
	{css: "-kfx-strikethrough", id: symtab.Strikethrough, kind: KindFlag},
	{css: "-kfx-overline", id: symtab.Overline, kind: KindFlag},
}

var lengthUnits = map[string]ion.SymbolID{
	"em": symtab.UnitEm, "ex": symtab.UnitEx, "%": symtab.UnitPct,
	"cm": symtab.UnitCm, "mm": symtab.UnitMm, "in": symtab.UnitIn,
	"pt": symtab.UnitPt, "rem": symtab.UnitRem,
}

var namedColors = map[string]uint32{
	"black": 0x000000, "white": 0xFFFFFF, "red": 0xFF0000, "green": 0x008000,
	"blue": 0x0000FF, "gray": 0x808080, "grey": 0x808080, "silver": 0xC0C0C0,
	"maroon": 0x800000, "navy": 0x000080, "yellow": 0xFFFF00, "purple": 0x800080,
}

// Mapper translates declarations to KFX properties and back. A Mapper is
// read-only after construction and may be shared between builds.
type Mapper struct {
	byCSS map[string]*propertyDef
	byID  map[ion.SymbolID]*propertyDef
}

// NewMapper returns a mapper over the built-in property table.
func NewMapper() *Mapper {
	m := &Mapper{
		byCSS: make(map[string]*propertyDef, len(propertyDefs)),
		byID:  make(map[ion.SymbolID]*propertyDef, len(propertyDefs)),
	}
	for i := range propertyDefs {
		d := &propertyDefs[i]
		m.byCSS[d.css] = d
		m.byID[d.id] = d
	}
	return m
}

// Known reports whether property is a mapped CSS property or shorthand.
func (m *Mapper) Known(property string) bool {
	property = strings.ToLower(strings.TrimSpace(property))
	switch property {
	case "margin", "padding", "text-decoration":
		return true
	}
	_, ok := m.byCSS[property]
	return ok
}

// Map converts one declaration. Pruned declarations (unknown property,
// unparseable value, or a value with no effect) return nil.
func (m *Mapper) Map(d Declaration) Properties {
	var out Properties
	for _, p := range m.resolve(d) {
		if p.Value != nil {
			out = append(out, p)
		}
	}
	return out
}

// Canonical maps decls, keeps the last declaration of each property and
// sorts by property id. A later no-effect value clears an earlier one.
func (m *Mapper) Canonical(decls []Declaration) Properties {
	last := make(map[ion.SymbolID]ion.Value)
	for _, d := range decls {
		for _, p := range m.resolve(d) {
			if p.Value == nil {
				delete(last, p.ID)
				continue
			}
			last[p.ID] = p.Value
		}
	}
	out := make(Properties, 0, len(last))
	for id, v := range last {
		out = append(out, Property{ID: id, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// resolve maps d; properties it recognises but whose value has no effect come
// back with a nil Value.
func (m *Mapper) resolve(d Declaration) Properties {
	prop := strings.ToLower(strings.TrimSpace(d.Property))
	val := strings.TrimSpace(d.Value)
	val = strings.TrimSpace(strings.TrimSuffix(val, "!important"))
	switch prop {
	case "margin", "padding":
		return m.mapBox(prop, val)
	case "text-decoration":
		return mapDecoration(val)
	}
	def, ok := m.byCSS[prop]
	if !ok {
		return nil
	}
	v, _ := def.value(val)
	return Properties{{ID: def.id, Value: v}}
}

// Reverse maps properties back to declarations. Properties the mapper never
// produces are rendered as "$id".
func (m *Mapper) Reverse(props Properties) []Declaration {
	out := make([]Declaration, 0, len(props))
	for _, p := range props {
		def, ok := m.byID[p.ID]
		if !ok {
			out = append(out, Declaration{
				Property: "$" + strconv.FormatUint(uint64(p.ID), 10),
				Value:    ion.Format(p.Value, symtab.CatalogSymbolName),
			})
			continue
		}
		out = append(out, def.reverse(p.Value))
	}
	return out
}

func (m *Mapper) mapBox(prop, val string) Properties {
	parts := strings.Fields(val)
	var top, right, bottom, left string
	switch len(parts) {
	case 1:
		top, right, bottom, left = parts[0], parts[0], parts[0], parts[0]
	case 2:
		top, right, bottom, left = parts[0], parts[1], parts[0], parts[1]
	case 3:
		top, right, bottom, left = parts[0], parts[1], parts[2], parts[1]
	case 4:
		top, right, bottom, left = parts[0], parts[1], parts[2], parts[3]
	default:
		return nil
	}
	var out Properties
	for _, side := range []struct{ name, v string }{
		{"top", top}, {"right", right}, {"bottom", bottom}, {"left", left},
	} {
		out = append(out, m.resolve(Declaration{Property: prop + "-" + side.name, Value: side.v})...)
	}
	return out
}

// mapDecoration sets each of the three decoration lines; lines not named are
// cleared.
func mapDecoration(val string) Properties {
	out := Properties{{ID: symtab.Underline}, {ID: symtab.Strikethrough}, {ID: symtab.Overline}}
	for _, word := range strings.Fields(strings.ToLower(val)) {
		switch word {
		case "underline":
			out[0].Value = ion.Symbol(symtab.Solid)
		case "line-through":
			out[1].Value = ion.Symbol(symtab.Solid)
		case "overline":
			out[2].Value = ion.Symbol(symtab.Solid)
		}
	}
	return out
}

func (d *propertyDef) value(val string) (ion.Value, bool) {
	switch d.kind {
	case KindKeyword:
		id, ok := d.keywords[strings.ToLower(val)]
		if !ok || id == 0 {
			return nil, false
		}
		return ion.Symbol(id), true
	case KindLength:
		return parseLength(d.id, val)
	case KindColor:
		rgb, ok := parseColor(val)
		if !ok {
			return nil, false
		}
		return ion.Int(0xFF000000 | int64(rgb)), true
	case KindNumber:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f == 1 {
			return nil, false
		}
		dec, err := ion.DecimalFromFloat(f, DecimalPlaces)
		if err != nil {
			return nil, false
		}
		return dec, true
	case KindString:
		val = strings.Trim(val, `"'`)
		if val == "" {
			return nil, false
		}
		return ion.String(val), true
	case KindFlag:
		switch strings.ToLower(val) {
		case "nowrap":
			return ion.Bool(true), true
		case "solid", "true":
			return ion.Symbol(symtab.Solid), true
		}
		return nil, false
	}
	return nil, false
}

func (d *propertyDef) reverse(v ion.Value) Declaration {
	out := Declaration{Property: d.css}
	switch d.kind {
	case KindKeyword:
		if s, ok := v.(ion.Symbol); ok {
			out.Value = keywordNames[ion.SymbolID(s)]
		}
	case KindLength:
		if s, ok := v.(ion.Struct); ok {
			mag, _ := s.Get(symtab.Value)
			unit, _ := s.Get(symtab.Unit)
			dec, _ := mag.(ion.Decimal)
			out.Value = strconv.FormatFloat(dec.Float64(), 'f', -1, 64) + unitText(unit)
		}
	case KindColor:
		if n, ok := v.(ion.Int); ok {
			out.Value = "#" + leftPad(strconv.FormatInt(int64(n)&0xFFFFFF, 16), 6)
		}
	case KindNumber:
		if dec, ok := v.(ion.Decimal); ok {
			out.Value = strconv.FormatFloat(dec.Float64(), 'f', -1, 64)
		}
	case KindString:
		if s, ok := v.(ion.String); ok {
			out.Value = string(s)
		}
	case KindFlag:
		switch d.id {
		case symtab.Nowrap:
			out.Value = "nowrap"
		case symtab.Underline:
			out = Declaration{Property: "text-decoration", Value: "underline"}
		case symtab.Strikethrough:
			out = Declaration{Property: "text-decoration", Value: "line-through"}
		case symtab.Overline:
			out = Declaration{Property: "text-decoration", Value: "overline"}
		}
	}
	return out
}

// Length returns the unit+magnitude struct for a length value.
func Length(magnitude float64, unit ion.SymbolID) (ion.Struct, error) {
	dec, err := ion.DecimalFromFloat(magnitude, DecimalPlaces)
	if err != nil {
		return ion.Struct{}, err
	}
	return ion.NewStruct(
		ion.F(symtab.Unit, ion.Symbol(unit)),
		ion.F(symtab.Value, dec),
	), nil
}

// parseLength converts "1.5em", "12px", "0" and friends. Zero lengths and
// "normal" have no effect. px converts to pt at 0.75; unitless line heights
// are em multiples and other unitless values are px.
func parseLength(prop ion.SymbolID, val string) (ion.Value, bool) {
	val = strings.ToLower(val)
	if val == "normal" || val == "auto" || val == "" {
		return nil, false
	}
	i := len(val)
	for i > 0 && (val[i-1] < '0' || val[i-1] > '9') && val[i-1] != '.' {
		i--
	}
	num, unit := val[:i], val[i:]
	f, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	if f == 0 {
		return nil, false
	}
	var id ion.SymbolID
	switch unit {
	case "px":
		f, id = f*0.75, symtab.UnitPt
	case "":
		if prop == symtab.LineHeight {
			id = symtab.UnitEm
		} else {
			f, id = f*0.75, symtab.UnitPt
		}
	default:
		var ok bool
		if id, ok = lengthUnits[unit]; !ok {
			return nil, false
		}
	}
	s, err := Length(f, id)
	if err != nil {
		return nil, false
	}
	if dec, _ := s.Get(symtab.Value); dec == (ion.Decimal{}) {
		return nil, false
	}
	return s, true
}

func parseColor(val string) (uint32, bool) {
	val = strings.ToLower(strings.TrimSpace(val))
	if rgb, ok := namedColors[val]; ok {
		return rgb, true
	}
	if strings.HasPrefix(val, "#") {
		hex := val[1:]
		if len(hex) == 3 {
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		}
		if len(hex) != 6 {
			return 0, false
		}
		n, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return 0, false
		}
		return uint32(n), true
	}
	if strings.HasPrefix(val, "rgb(") && strings.HasSuffix(val, ")") {
		parts := strings.Split(val[4:len(val)-1], ",")
		if len(parts) != 3 {
			return 0, false
		}
		var rgb uint32
		for _, p := range parts {
			n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
			if err != nil {
				return 0, false
			}
			rgb = rgb<<8 | uint32(n)
		}
		return rgb, true
	}
	return 0, false
}

func unitText(v ion.Value) string {
	s, ok := v.(ion.Symbol)
	if !ok {
		return ""
	}
	switch ion.SymbolID(s) {
	case symtab.UnitPct:
		return "%"
	case symtab.UnitPt:
		return "pt"
	}
	for name, id := range lengthUnits {
		if id == ion.SymbolID(s) {
			return name
		}
	}
	return ""
}

func leftPad(s string, n int) string {
	for len(s) < n {
		s = "0" + s
	}
	return s
}

// ParseInline splits a CSS declaration list such as
// "font-weight: bold; color: #333" into declarations. Property names are
// lowercased; entries without a colon or with an empty side are skipped.
func ParseInline(s string) []Declaration {
	var out []Declaration
	for _, part := range strings.Split(s, ";") {
		prop, val, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "!important"))
		if prop == "" || val == "" {
			continue
		}
		out = append(out, Declaration{Property: prop, Value: val})
	}
	return out
}
