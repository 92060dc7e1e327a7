package style

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/logicossoftware/go-kfx/ion"
	"github.com/logicossoftware/go-kfx/symtab"
)

var (
	ErrStyleSignatureConflict = errors.New("style: signature conflict")
	ErrFrozen                 = errors.New("style: cache is frozen")
)

// NamePrefix prefixes generated style names ("style-1", "style-2", ...).
const NamePrefix = "style-"

// Fragment is one deduplicated style.
type Fragment struct {
	Name  ion.SymbolID
	Props Properties
}

// Value returns the $157 fragment value.
func (f Fragment) Value() ion.Value { return f.Props.Struct(f.Name) }

// Cache deduplicates canonical property sets. Two declaration lists with the
// same canonical properties share one style id. A Cache belongs to one build.
type Cache struct {
	mapper *Mapper
	table  *symtab.Table
	enc    *ion.Encoder
	bySig  map[string]ion.SymbolID
	frags  []Fragment
	sigs   []string
	frozen bool
}

// NewCache returns a cache allocating style names in table. A nil mapper
// selects NewMapper().
func NewCache(table *symtab.Table, mapper *Mapper) *Cache {
	if mapper == nil {
		mapper = NewMapper()
	}
	return &Cache{
		mapper: mapper,
		table:  table,
		enc:    ion.NewEncoder(table),
		bySig:  make(map[string]ion.SymbolID),
	}
}

// Mapper returns the cache's mapper.
func (c *Cache) Mapper() *Mapper { return c.mapper }

// Intern returns the style id for decls, allocating a new style on first
// sight of its canonical signature. A set that maps to no properties yields
// id 0.
func (c *Cache) Intern(decls []Declaration) (ion.SymbolID, error) {
	props := c.mapper.Canonical(decls)
	if len(props) == 0 {
		return 0, nil
	}
	sig, err := c.signature(props)
	if err != nil {
		return 0, err
	}
	if id, ok := c.bySig[sig]; ok {
		return id, nil
	}
	if c.frozen {
		return 0, fmt.Errorf("%w: new style after freeze", ErrFrozen)
	}
	name, err := c.table.Intern(NamePrefix + strconv.Itoa(len(c.frags)+1))
	if err != nil {
		return 0, fmt.Errorf("style: allocate name: %w", err)
	}
	c.bySig[sig] = name
	c.frags = append(c.frags, Fragment{Name: name, Props: props})
	c.sigs = append(c.sigs, sig)
	return name, nil
}

// Lookup returns the fragment named id.
func (c *Cache) Lookup(id ion.SymbolID) (Fragment, bool) {
	for _, f := range c.frags {
		if f.Name == id {
			return f, true
		}
	}
	return Fragment{}, false
}

// Len reports the number of distinct styles.
func (c *Cache) Len() int { return len(c.frags) }

// Fragments returns the styles in creation order.
func (c *Cache) Fragments() []Fragment {
	return append([]Fragment(nil), c.frags...)
}

// Freeze stops allocation and re-checks that every stored signature is
// unique.
func (c *Cache) Freeze() error {
	c.frozen = true
	seen := make(map[string]ion.SymbolID, len(c.frags))
	for i, f := range c.frags {
		sig, err := c.signature(f.Props)
		if err != nil {
			return err
		}
		if sig != c.sigs[i] {
			return fmt.Errorf("%w: %s changed after interning", ErrStyleSignatureConflict, c.table.Name(f.Name))
		}
		if prev, ok := seen[sig]; ok {
			return fmt.Errorf("%w: %s and %s", ErrStyleSignatureConflict, c.table.Name(prev), c.table.Name(f.Name))
		}
		seen[sig] = f.Name
	}
	return nil
}

// signature is the encoded Ion of the canonical property struct.
func (c *Cache) signature(props Properties) (string, error) {
	s := ion.Struct{Fields: make([]ion.Field, len(props))}
	for i, p := range props {
		s.Fields[i] = ion.F(p.ID, p.Value)
	}
	b, err := c.enc.Encode(s)
	if err != nil {
		return "", fmt.Errorf("style: signature: %w", err)
	}
	return string(b), nil
}
