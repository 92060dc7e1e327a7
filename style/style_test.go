package style

import (
	"errors"
	"testing"

	"github.com/logicossoftware/go-kfx/ion"
	"github.com/logicossoftware/go-kfx/symtab"
)

func decls(kv ...string) []Declaration {
	out := make([]Declaration, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, Declaration{Property: kv[i], Value: kv[i+1]})
	}
	return out
}

func TestMapKeywords(t *testing.T) {
	m := NewMapper()
	cases := []struct {
		prop, val string
		id        ion.SymbolID
		want      ion.SymbolID
	}{
		{"font-weight", "bold", symtab.FontWeight, symtab.Bold},
		{"font-weight", "700", symtab.FontWeight, symtab.Bold},
		{"font-weight", "300", symtab.FontWeight, symtab.Weight300},
		{"font-style", "italic", symtab.FontStyle, symtab.Italic},
		{"text-align", "center", symtab.TextAlignment, symtab.Center},
		{"text-align", "justify", symtab.TextAlignment, symtab.Justify},
		{"text-transform", "capitalize", symtab.TextTransform, symtab.Titlecase},
		{"vertical-align", "super", symtab.BaselineStyle, symtab.Superscript},
		{"font-variant", "small-caps", symtab.FontVariant, symtab.SmallCaps},
		{"TEXT-ALIGN", "Right !important", symtab.TextAlignment, symtab.Right},
	}
	for _, tc := range cases {
		props := m.Map(Declaration{Property: tc.prop, Value: tc.val})
		if len(props) != 1 {
			t.Fatalf("%s:%s mapped to %d properties", tc.prop, tc.val, len(props))
		}
		if props[0].ID != tc.id || props[0].Value != ion.Symbol(tc.want) {
			t.Fatalf("%s:%s = %+v", tc.prop, tc.val, props[0])
		}
	}
}

func TestMapPrunesNoEffectValues(t *testing.T) {
	m := NewMapper()
	for _, d := range decls(
		"text-align", "left",
		"font-weight", "normal",
		"font-weight", "400",
		"font-style", "normal",
		"text-decoration", "none",
		"text-transform", "none",
		"margin-top", "0",
		"margin", "0 0",
		"padding-left", "0em",
		"text-indent", "0",
		"vertical-align", "baseline",
		"opacity", "1",
		"letter-spacing", "normal",
		"word-spacing", "0",
		"cursor", "pointer",
		"font-size", "large-ish",
	) {
		if props := m.Map(d); len(props) != 0 {
			t.Fatalf("%s:%s not pruned: %+v", d.Property, d.Value, props)
		}
	}
}

func TestMapLengths(t *testing.T) {
	m := NewMapper()
	cases := []struct {
		decl Declaration
		unit ion.SymbolID
		val  ion.Decimal
	}{
		{Declaration{"font-size", "1.5em"}, symtab.UnitEm, ion.Decimal{Coefficient: 15, Exponent: -1}},
		{Declaration{"margin-top", "12pt"}, symtab.UnitPt, ion.Decimal{Coefficient: 12}},
		{Declaration{"margin-left", "16px"}, symtab.UnitPt, ion.Decimal{Coefficient: 12}},
		{Declaration{"width", "50%"}, symtab.UnitPct, ion.Decimal{Coefficient: 50}},
		{Declaration{"line-height", "1.2"}, symtab.UnitEm, ion.Decimal{Coefficient: 12, Exponent: -1}},
		{Declaration{"text-indent", "-2em"}, symtab.UnitEm, ion.Decimal{Coefficient: -2}},
	}
	for _, tc := range cases {
		props := m.Map(tc.decl)
		if len(props) != 1 {
			t.Fatalf("%v: got %d properties", tc.decl, len(props))
		}
		s, ok := props[0].Value.(ion.Struct)
		if !ok {
			t.Fatalf("%v: value is %T", tc.decl, props[0].Value)
		}
		unit, _ := s.Get(symtab.Unit)
		val, _ := s.Get(symtab.Value)
		if unit != ion.Symbol(tc.unit) || val != tc.val {
			t.Fatalf("%v: unit %v value %v", tc.decl, unit, val)
		}
	}
}

func TestLengthRoundTrip(t *testing.T) {
	for _, f := range []float64{1, 1.5, 0.125, 12.75, -3.25, 100} {
		s, err := Length(f, symtab.UnitEm)
		if err != nil {
			t.Fatal(err)
		}
		data, err := ion.Marshal(s, symtab.New(0))
		if err != nil {
			t.Fatal(err)
		}
		v, err := ion.UnmarshalOne(data)
		if err != nil {
			t.Fatal(err)
		}
		dec, _ := v.(ion.Struct).Get(symtab.Value)
		if got := dec.(ion.Decimal).Float64(); got != f {
			t.Fatalf("round trip %v -> %v", f, got)
		}
	}
}

func TestMapShorthandsAndColors(t *testing.T) {
	m := NewMapper()
	props := m.Canonical(decls("margin", "1em 0 2em"))
	if len(props) != 2 || props[0].ID != symtab.MarginTop || props[1].ID != symtab.MarginBottom {
		t.Fatalf("margin shorthand: %+v", props)
	}
	props = m.Canonical(decls("text-decoration", "underline line-through"))
	if len(props) != 2 || props[0].ID != symtab.Underline || props[1].ID != symtab.Strikethrough {
		t.Fatalf("text-decoration: %+v", props)
	}
	for val, want := range map[string]int64{
		"#ff0000":        0xFFFF0000,
		"#0f0":           0xFF00FF00,
		"rgb(0, 0, 255)": 0xFF0000FF,
		"black":          0xFF000000,
		"Navy":           0xFF000080,
	} {
		props := m.Map(Declaration{Property: "color", Value: val})
		if len(props) != 1 || props[0].Value != ion.Int(want) {
			t.Fatalf("color %q: %+v", val, props)
		}
	}
}

func TestCanonicalLastDeclarationWins(t *testing.T) {
	m := NewMapper()
	props := m.Canonical(decls("font-weight", "bold", "text-align", "center", "font-weight", "normal"))
	if len(props) != 1 || props[0].ID != symtab.TextAlignment {
		t.Fatalf("expected only text-align, got %+v", props)
	}
	props = m.Canonical(decls("text-align", "center", "font-style", "italic"))
	if props[0].ID != symtab.FontStyle || props[1].ID != symtab.TextAlignment {
		t.Fatalf("properties not sorted by id: %+v", props)
	}
}

func TestReverse(t *testing.T) {
	m := NewMapper()
	in := decls("font-weight", "bold", "text-align", "center", "font-size", "1.5em", "color", "#ff0000")
	out := m.Reverse(m.Canonical(in))
	want := map[string]string{
		"font-weight": "bold", "text-align": "center", "font-size": "1.5em", "color": "#ff0000",
	}
	if len(out) != len(want) {
		t.Fatalf("Reverse: %+v", out)
	}
	for _, d := range out {
		if want[d.Property] != d.Value {
			t.Fatalf("Reverse %s = %q, want %q", d.Property, d.Value, want[d.Property])
		}
	}
}

func TestCacheInternIsIdempotent(t *testing.T) {
	table := symtab.New(0)
	c := NewCache(table, nil)
	a, err := c.Intern(decls("font-weight", "bold", "text-align", "center"))
	if err != nil {
		t.Fatal(err)
	}
	// Same canonical set reached from a different declaration order and
	// equivalent spellings.
	b, err := c.Intern(decls("text-align", "center", "font-weight", "700", "text-align", "center"))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("same style interned as %d and %d", a, b)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
	if table.Name(a) != "style-1" {
		t.Fatalf("style name = %q", table.Name(a))
	}
	other, err := c.Intern(decls("font-style", "italic"))
	if err != nil {
		t.Fatal(err)
	}
	if other == a || table.Name(other) != "style-2" {
		t.Fatalf("second style = %d (%q)", other, table.Name(other))
	}
}

func TestCacheEmptyStyleIsZero(t *testing.T) {
	c := NewCache(symtab.New(0), nil)
	id, err := c.Intern(decls("text-align", "left", "unknown", "x"))
	if err != nil || id != 0 {
		t.Fatalf("Intern = %d, %v", id, err)
	}
	if c.Len() != 0 {
		t.Fatalf("empty style allocated a fragment")
	}
}

func TestCacheFreeze(t *testing.T) {
	c := NewCache(symtab.New(0), nil)
	id, err := c.Intern(decls("font-weight", "bold"))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Freeze(); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if got, err := c.Intern(decls("font-weight", "bold")); err != nil || got != id {
		t.Fatalf("existing style after freeze = %d, %v", got, err)
	}
	if _, err := c.Intern(decls("font-style", "italic")); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen, got %v", err)
	}
}

func TestCacheFreezeDetectsConflict(t *testing.T) {
	c := NewCache(symtab.New(0), nil)
	if _, err := c.Intern(decls("font-weight", "bold")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Intern(decls("font-style", "italic")); err != nil {
		t.Fatal(err)
	}
	// Corrupt the second entry so both share one signature.
	c.frags[1].Props = c.frags[0].Props
	c.sigs[1] = c.sigs[0]
	if err := c.Freeze(); !errors.Is(err, ErrStyleSignatureConflict) {
		t.Fatalf("expected ErrStyleSignatureConflict, got %v", err)
	}
}

func TestCacheCapacity(t *testing.T) {
	c := NewCache(symtab.New(1), nil)
	if _, err := c.Intern(decls("font-weight", "bold")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Intern(decls("font-style", "italic")); !errors.Is(err, symtab.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestFragmentValue(t *testing.T) {
	table := symtab.New(0)
	c := NewCache(table, nil)
	id, err := c.Intern(decls("font-weight", "bold"))
	if err != nil {
		t.Fatal(err)
	}
	f, ok := c.Lookup(id)
	if !ok {
		t.Fatal("Lookup failed")
	}
	s := f.Value().(ion.Struct)
	if name, _ := s.Get(symtab.StyleName); name != ion.Symbol(id) {
		t.Fatalf("style_name = %v", name)
	}
	if _, err := ion.Marshal(s, table); err != nil {
		t.Fatalf("style fragment does not encode: %v", err)
	}
}

func TestParseInline(t *testing.T) {
	got := ParseInline(" Font-Weight: bold ; color:#333 !important;;junk; margin-top: ; text-align:center")
	want := decls("font-weight", "bold", "color", "#333", "text-align", "center")
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("decl %d = %v, want %v", i, got[i], want[i])
		}
	}
	if ParseInline("") != nil {
		t.Fatal("empty input produced declarations")
	}
}
