// Package symtab manages KFX symbol ids: the fixed YJ_symbols shared catalog
// plus a per-document local table.
//
// A Table is owned by exactly one build. Local ids are assigned in first-use
// order, so the same traversal always produces the same ids.
package symtab

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/logicossoftware/go-kfx/ion"
)

var (
	ErrCapacityExceeded = errors.New("symtab: capacity exceeded")
	ErrFrozen           = errors.New("symtab: table is frozen")
	ErrInvalidName      = errors.New("symtab: invalid symbol name")
)

// DefaultMaxLocalSymbols caps the local table when no explicit limit is set.
const DefaultMaxLocalSymbols = 1 << 20

type Scope uint8

const (
	ScopeSystem Scope = iota + 1
	ScopeCatalog
	ScopeLocal
)

func (s Scope) String() string {
	switch s {
	case ScopeSystem:
		return "system"
	case ScopeCatalog:
		return "catalog"
	case ScopeLocal:
		return "local"
	}
	return "unknown"
}

// Symbol is one resolved table entry.
type Symbol struct {
	ID    ion.SymbolID
	Name  string
	Scope Scope
}

// Table is a two-tier symbol table. It is not safe for concurrent use; each
// build owns its own instance.
type Table struct {
	maxLocal int
	ids      map[string]ion.SymbolID
	locals   []string
	frozen   bool
}

// New returns an empty table that accepts up to maxLocal local symbols. A
// maxLocal of zero selects DefaultMaxLocalSymbols.
func New(maxLocal int) *Table {
	if maxLocal <= 0 {
		maxLocal = DefaultMaxLocalSymbols
	}
	return &Table{maxLocal: maxLocal, ids: make(map[string]ion.SymbolID)}
}

// Load rebuilds a table from a decoded local symbol list.
func Load(locals []string) *Table {
	t := New(len(locals))
	for _, name := range locals {
		t.ids[name] = LocalMinID + ion.SymbolID(len(t.locals))
		t.locals = append(t.locals, name)
	}
	t.frozen = true
	return t
}

// Intern returns the id for name, allocating a local id on first use.
// Catalog names resolve to their fixed catalog id and "$NNN" resolves to NNN.
// Document names never resolve into the system range.
func (t *Table) Intern(name string) (ion.SymbolID, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if id, ok := parseRef(name); ok {
		if !t.Resolves(id) {
			return 0, &ion.SymbolError{ID: id}
		}
		return id, nil
	}
	if id, ok := catalogIDs[name]; ok {
		return id, nil
	}
	if id, ok := t.ids[name]; ok {
		return id, nil
	}
	if t.frozen {
		return 0, fmt.Errorf("%w: cannot intern %q", ErrFrozen, name)
	}
	if len(t.locals) >= t.maxLocal {
		return 0, fmt.Errorf("%w: more than %d local symbols", ErrCapacityExceeded, t.maxLocal)
	}
	id := LocalMinID + ion.SymbolID(len(t.locals))
	t.ids[name] = id
	t.locals = append(t.locals, name)
	return id, nil
}

// MustCatalog returns the catalog id for name and panics when the catalog
// does not define it.
func MustCatalog(name string) ion.SymbolID {
	id, ok := catalogIDs[name]
	if !ok {
		panic("symtab: " + name + " is not a catalog symbol")
	}
	return id
}

// Lookup returns the id for name without allocating.
func (t *Table) Lookup(name string) (ion.SymbolID, bool) {
	if id, ok := parseRef(name); ok {
		return id, t.Resolves(id)
	}
	if id, ok := catalogIDs[name]; ok {
		return id, true
	}
	id, ok := t.ids[name]
	return id, ok
}

// Symbol describes id, or reports false when id is not declared.
func (t *Table) Symbol(id ion.SymbolID) (Symbol, bool) {
	switch {
	case id == 0:
		return Symbol{}, false
	case id <= ion.SystemMaxID:
		return Symbol{ID: id, Name: systemNames[id], Scope: ScopeSystem}, true
	case id <= CatalogMaxID:
		return Symbol{ID: id, Name: catalogNames[id], Scope: ScopeCatalog}, true
	}
	i := int(id - LocalMinID)
	if i >= len(t.locals) {
		return Symbol{}, false
	}
	return Symbol{ID: id, Name: t.locals[i], Scope: ScopeLocal}, true
}

// Name returns the text of id, or "" when unknown or unnamed.
func (t *Table) Name(id ion.SymbolID) string {
	s, _ := t.Symbol(id)
	return s.Name
}

// Resolves implements ion.Resolver.
func (t *Table) Resolves(id ion.SymbolID) bool {
	_, ok := t.Symbol(id)
	return ok
}

// Locals returns the local symbol names in id order.
func (t *Table) Locals() []string {
	return append([]string(nil), t.locals...)
}

// LocalCount reports the number of local symbols.
func (t *Table) LocalCount() int { return len(t.locals) }

// Len reports the number of declared ids, system and catalog included.
func (t *Table) Len() int { return int(t.MaxID()) }

// MaxID returns the largest declared id.
func (t *Table) MaxID() ion.SymbolID {
	return CatalogMaxID + ion.SymbolID(len(t.locals))
}

// Freeze stops further local allocation. Lookups of existing names still
// succeed.
func (t *Table) Freeze() { t.frozen = true }

// Frozen reports whether Freeze was called.
func (t *Table) Frozen() bool { return t.frozen }

// SymbolTableValue returns the $ion_symbol_table declaration importing the
// shared catalog and listing the local symbols.
func (t *Table) SymbolTableValue() ion.Value {
	symbols := make(ion.List, len(t.locals))
	for i, name := range t.locals {
		symbols[i] = ion.String(name)
	}
	imports := ion.List{ion.NewStruct(
		ion.F(ion.SymName, ion.String(CatalogName)),
		ion.F(ion.SymVersion, ion.Int(CatalogVersion)),
		ion.F(ion.SymMaxID, ion.Int(CatalogMaxID)),
	)}
	return ion.Annotate(ion.SymIonSymbolTable, ion.NewStruct(
		ion.F(ion.SymImports, imports),
		ion.F(ion.SymSymbols, symbols),
	))
}

// ParseSymbolTable extracts the local symbol names from a decoded
// $ion_symbol_table value. The import must name the shared catalog.
func ParseSymbolTable(v ion.Value) ([]string, error) {
	a, ok := v.(ion.Annotated)
	if !ok || len(a.Annotations) == 0 || a.Annotations[0] != ion.SymIonSymbolTable {
		return nil, fmt.Errorf("%w: not a symbol table", ErrInvalidName)
	}
	st, ok := a.Value.(ion.Struct)
	if !ok {
		return nil, fmt.Errorf("%w: symbol table is %T", ErrInvalidName, a.Value)
	}
	if imp, ok := st.Get(ion.SymImports); ok {
		list, _ := imp.(ion.List)
		for _, item := range list {
			is, _ := item.(ion.Struct)
			name, _ := is.Get(ion.SymName)
			maxID, _ := is.Get(ion.SymMaxID)
			if name != ion.String(CatalogName) {
				return nil, fmt.Errorf("%w: unknown import %v", ErrInvalidName, name)
			}
			if maxID != ion.Int(CatalogMaxID) {
				return nil, fmt.Errorf("%w: import max_id %v", ErrInvalidName, maxID)
			}
		}
	}
	var out []string
	if syms, ok := st.Get(ion.SymSymbols); ok {
		list, ok := syms.(ion.List)
		if !ok {
			return nil, fmt.Errorf("%w: symbols is %T", ErrInvalidName, syms)
		}
		for _, s := range list {
			str, ok := s.(ion.String)
			if !ok {
				return nil, fmt.Errorf("%w: symbol entry is %T", ErrInvalidName, s)
			}
			out = append(out, string(str))
		}
	}
	return out, nil
}

// parseRef recognises "$NNN" symbol references.
func parseRef(name string) (ion.SymbolID, bool) {
	if !strings.HasPrefix(name, "$") || len(name) < 2 {
		return 0, false
	}
	n, err := strconv.ParseUint(name[1:], 10, 32)
	if err != nil {
		return 0, false
	}
	return ion.SymbolID(n), true
}
