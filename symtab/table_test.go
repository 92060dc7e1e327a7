package symtab

import (
	"errors"
	"testing"

	"github.com/logicossoftware/go-kfx/ion"
)

func TestCatalogIDsAreFixed(t *testing.T) {
	cases := map[string]ion.SymbolID{
		"storyline":      Storyline,
		"section":        Section,
		"style":          Style,
		"content_list":   ContentList,
		"book_metadata":  BookMetadata,
		"document_data":  DocumentData,
		"bcRawMedia":     RawMedia,
		"content_role":   ContentRole,
		"bodymatter":     Bodymatter,
		"resource_width": ResourceWidth,
	}
	tab := New(0)
	for name, want := range cases {
		got, err := tab.Intern(name)
		if err != nil {
			t.Fatalf("Intern(%q): %v", name, err)
		}
		if got != want {
			t.Fatalf("Intern(%q) = %d, want %d", name, got, want)
		}
	}
	if tab.LocalCount() != 0 {
		t.Fatalf("catalog lookups allocated %d local symbols", tab.LocalCount())
	}
}

func TestInternAssignsLocalIDsInFirstUseOrder(t *testing.T) {
	tab := New(0)
	names := []string{"section-1", "story-1", "content-1", "section-1", "story-2"}
	want := []ion.SymbolID{860, 861, 862, 860, 863}
	for i, name := range names {
		got, err := tab.Intern(name)
		if err != nil {
			t.Fatalf("Intern(%q): %v", name, err)
		}
		if got != want[i] {
			t.Fatalf("Intern(%q) = %d, want %d", name, got, want[i])
		}
	}
	locals := tab.Locals()
	if len(locals) != 4 || locals[0] != "section-1" || locals[3] != "story-2" {
		t.Fatalf("Locals() = %v", locals)
	}
	if tab.MaxID() != 863 {
		t.Fatalf("MaxID() = %d", tab.MaxID())
	}
}

func TestInternNeverReturnsSystemIDs(t *testing.T) {
	tab := New(0)
	for _, name := range []string{"name", "version", "symbols", "imports", "max_id", "$ion"} {
		id, err := tab.Intern(name)
		if err != nil {
			t.Fatalf("Intern(%q): %v", name, err)
		}
		if id <= ion.SystemMaxID {
			t.Fatalf("Intern(%q) = %d, a system id", name, id)
		}
	}
}

func TestInternSymbolReference(t *testing.T) {
	tab := New(0)
	id, err := tab.Intern("$538")
	if err != nil || id != DocumentData {
		t.Fatalf("Intern($538) = %d, %v", id, err)
	}
	if _, err := tab.Intern("$900"); !errors.Is(err, ion.ErrUnresolvedSymbol) {
		t.Fatalf("expected ErrUnresolvedSymbol, got %v", err)
	}
	if _, err := tab.Intern("$abc"); err != nil {
		t.Fatalf("non-numeric reference should be a plain local name: %v", err)
	}
}

func TestInternErrors(t *testing.T) {
	tab := New(2)
	if _, err := tab.Intern(""); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if _, err := tab.Intern("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := tab.Intern("b"); err != nil {
		t.Fatal(err)
	}
	if _, err := tab.Intern("c"); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if id, err := tab.Intern("a"); err != nil || id != LocalMinID {
		t.Fatalf("existing name after capacity: %d, %v", id, err)
	}

	tab = New(0)
	tab.Freeze()
	if _, err := tab.Intern("late"); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen, got %v", err)
	}
	if _, err := tab.Intern("text"); err != nil {
		t.Fatalf("catalog name on frozen table: %v", err)
	}
}

func TestResolves(t *testing.T) {
	tab := New(0)
	if _, err := tab.Intern("x"); err != nil {
		t.Fatal(err)
	}
	for _, id := range []ion.SymbolID{1, 9, 10, 500, 859, 860} {
		if !tab.Resolves(id) {
			t.Fatalf("Resolves(%d) = false", id)
		}
	}
	for _, id := range []ion.SymbolID{0, 861, 5000} {
		if tab.Resolves(id) {
			t.Fatalf("Resolves(%d) = true", id)
		}
	}
	if s, ok := tab.Symbol(860); !ok || s.Name != "x" || s.Scope != ScopeLocal {
		t.Fatalf("Symbol(860) = %+v, %v", s, ok)
	}
	if tab.Name(Storyline) != "storyline" || tab.Name(ion.SymImports) != "imports" {
		t.Fatalf("unexpected names")
	}
}

func TestTablesAreIndependent(t *testing.T) {
	a, b := New(0), New(0)
	if _, err := a.Intern("only-in-a"); err != nil {
		t.Fatal(err)
	}
	if _, ok := b.Lookup("only-in-a"); ok {
		t.Fatal("symbol leaked between tables")
	}
	id, err := b.Intern("first-in-b")
	if err != nil || id != LocalMinID {
		t.Fatalf("b.Intern = %d, %v", id, err)
	}
}

func TestSymbolTableValueRoundTrip(t *testing.T) {
	tab := New(0)
	for _, name := range []string{"section-1", "story-1", "style-1"} {
		if _, err := tab.Intern(name); err != nil {
			t.Fatal(err)
		}
	}
	data, err := ion.Marshal(tab.SymbolTableValue(), tab)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	v, err := ion.UnmarshalOne(data)
	if err != nil {
		t.Fatalf("UnmarshalOne: %v", err)
	}
	locals, err := ParseSymbolTable(v)
	if err != nil {
		t.Fatalf("ParseSymbolTable: %v", err)
	}
	loaded := Load(locals)
	for _, name := range tab.Locals() {
		want, _ := tab.Lookup(name)
		got, ok := loaded.Lookup(name)
		if !ok || got != want {
			t.Fatalf("%q: loaded id %d, want %d", name, got, want)
		}
	}
	if !loaded.Frozen() {
		t.Fatal("loaded table should be frozen")
	}
}

func TestParseSymbolTableRejectsForeignImport(t *testing.T) {
	v := ion.Annotate(ion.SymIonSymbolTable, ion.NewStruct(
		ion.F(ion.SymImports, ion.List{ion.NewStruct(
			ion.F(ion.SymName, ion.String("other")),
			ion.F(ion.SymMaxID, ion.Int(CatalogMaxID)),
		)}),
	))
	if _, err := ParseSymbolTable(v); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestMustCatalog(t *testing.T) {
	if MustCatalog("nav_container") != NavContainer {
		t.Fatal("nav_container id mismatch")
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown catalog name")
		}
	}()
	MustCatalog("not-a-catalog-symbol")
}
