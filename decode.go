package kfx

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/logicossoftware/go-kfx/ion"
	"github.com/logicossoftware/go-kfx/symtab"
)

// Container is a decoded KFX container. It is produced by Decode for
// inspection and verification only.
type Container struct {
	Info      ContainerInfo
	Index     []IndexEntry
	Symbols   *symtab.Table
	Generator string
	Entities  []Entity

	byKey map[fragmentKey]int
}

// Entity is one decoded index entry. Raw media keeps its bytes in Raw; every
// other entity carries its Ion value.
type Entity struct {
	IndexEntry
	Value ion.Value
	Raw   []byte
}

// FID returns the fragment id of e, or 0 for singletons.
func (e Entity) FID() ion.SymbolID {
	if e.ID == SingletonEntityID {
		return 0
	}
	return ion.SymbolID(e.ID)
}

// Lookup returns the entity of the given type and fragment id.
func (c *Container) Lookup(typ, fid ion.SymbolID) (Entity, bool) {
	i, ok := c.byKey[fragmentKey{typ, fid}]
	if !ok {
		return Entity{}, false
	}
	return c.Entities[i], true
}

// OfType returns the entities of type typ in index order.
func (c *Container) OfType(typ ion.SymbolID) []Entity {
	var out []Entity
	for _, e := range c.Entities {
		if ion.SymbolID(e.Type) == typ {
			out = append(out, e)
		}
	}
	return out
}

// Name returns the text of a symbol in the container's table.
func (c *Container) Name(id ion.SymbolID) string { return c.Symbols.Name(id) }

// Text returns every $145 text entry in container order.
func (c *Container) Text() []string {
	var out []string
	for _, e := range c.OfType(symtab.Content) {
		st, _ := e.Value.(ion.Struct)
		list, _ := field[ion.List](st, symtab.ContentList)
		for _, v := range list {
			if s, ok := v.(ion.String); ok {
				out = append(out, string(s))
			}
		}
	}
	return out
}

// GeneratorInfo parses the kfxgen block into its key/value pairs.
func (c *Container) GeneratorInfo() map[string]string {
	out := make(map[string]string)
	body := strings.TrimSuffix(strings.TrimPrefix(c.Generator, "["), "]")
	for _, item := range strings.Split(body, "},{") {
		item = strings.Trim(item, "{}")
		key, value, ok := strings.Cut(item, ",value:")
		if !ok {
			continue
		}
		out[strings.TrimPrefix(key, "key:")] = value
	}
	return out
}

// ReadFile decodes the container stored at path.
func ReadFile(path string, opts ...ReadOption) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	return Decode(f, opts...)
}

// Decode reads a container from r.
//
// Decode checks the header, that the index records tile the payload region
// exactly, every entity header, and that every symbol resolves against the
// document symbol table. It returns ErrInvalidMagic, ErrUnsupportedVersion,
// ErrInvalidHeader, ErrInvalidEntity, ErrUnresolvedSymbol or
// ErrLimitExceeded.
func Decode(r io.Reader, opts ...ReadOption) (*Container, error) {
	cfg := newReadConfig(opts)
	data, err := readAll(io.LimitReader(r, int64(cfg.limits.MaxContainerSize)+1))
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > cfg.limits.MaxContainerSize {
		return nil, fmt.Errorf("%w: container larger than %d bytes", ErrLimitExceeded, cfg.limits.MaxContainerSize)
	}
	return decode(data, cfg)
}

// DecodeBytes decodes a container held in memory.
func DecodeBytes(data []byte, opts ...ReadOption) (*Container, error) {
	return decode(data, newReadConfig(opts))
}

func decode(data []byte, cfg readConfig) (*Container, error) {
	h, err := readContainerHeader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if err := validateContainerHeader(h, len(data)); err != nil {
		return nil, err
	}
	dec := &ion.Decoder{MaxDepth: cfg.limits.MaxIonDepth}
	infoVal, err := decodeOne(dec, data[h.InfoOffset:h.InfoOffset+h.InfoLength])
	if err != nil {
		return nil, fmt.Errorf("%w: container info: %v", ErrInvalidHeader, err)
	}
	info, err := parseContainerInfo(infoVal)
	if err != nil {
		return nil, err
	}
	region := func(name string, off, n uint32) ([]byte, error) {
		end := uint64(off) + uint64(n)
		if off < containerHeaderSize || end > uint64(h.HeaderLen) {
			return nil, fmt.Errorf("%w: %s at %d+%d outside header", ErrInvalidHeader, name, off, n)
		}
		return data[off:end], nil
	}
	idx, err := region("index table", info.IndexOffset, info.IndexLength)
	if err != nil {
		return nil, err
	}
	if len(idx)%indexRecordSize != 0 {
		return nil, fmt.Errorf("%w: index table length %d", ErrInvalidHeader, len(idx))
	}
	if n := len(idx) / indexRecordSize; n > cfg.limits.MaxEntities {
		return nil, fmt.Errorf("%w: %d entities", ErrLimitExceeded, n)
	}
	symBytes, err := region("document symbols", info.SymbolsOffset, info.SymbolsLength)
	if err != nil {
		return nil, err
	}
	symVal, err := decodeOne(dec, symBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: document symbols: %v", ErrInvalidHeader, err)
	}
	locals, err := symtab.ParseSymbolTable(symVal)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if len(locals) > cfg.limits.MaxLocalSymbols {
		return nil, fmt.Errorf("%w: %d local symbols", ErrLimitExceeded, len(locals))
	}
	c := &Container{
		Info:      info,
		Symbols:   symtab.Load(locals),
		Generator: string(data[h.InfoOffset+h.InfoLength : h.HeaderLen]),
		byKey:     make(map[fragmentKey]int),
	}
	for i := 0; i < len(idx); i += indexRecordSize {
		c.Index = append(c.Index, readIndexEntry(idx[i:]))
	}
	if err := checkTiling(c.Index, uint64(len(data))-uint64(h.HeaderLen)); err != nil {
		return nil, err
	}
	enc := ion.NewEncoder(c.Symbols)
	payloads := data[h.HeaderLen:]
	for _, e := range c.Index {
		ent, err := decodeEntity(dec, e, payloads[e.Offset:e.Offset+e.Length])
		if err != nil {
			return nil, err
		}
		if ent.Value != nil {
			if _, err := enc.Encode(ent.Value); err != nil {
				return nil, fmt.Errorf("kfx: entity %d type $%d: %w", e.ID, e.Type, err)
			}
		}
		key := fragmentKey{ion.SymbolID(e.Type), ent.FID()}
		if _, dup := c.byKey[key]; dup {
			return nil, fmt.Errorf("%w: duplicate entity %d type $%d", ErrInvalidEntity, e.ID, e.Type)
		}
		c.byKey[key] = len(c.Entities)
		c.Entities = append(c.Entities, ent)
	}
	return c, nil
}

func decodeOne(dec *ion.Decoder, b []byte) (ion.Value, error) {
	vs, err := dec.DecodeStream(b)
	if err != nil {
		return nil, err
	}
	if len(vs) != 1 {
		return nil, fmt.Errorf("%w: %d top-level values", ion.ErrMalformed, len(vs))
	}
	return vs[0], nil
}

// checkTiling requires the index records, in order, to cover [0, size) of
// the payload region without gaps or overlaps.
func checkTiling(index []IndexEntry, size uint64) error {
	var next uint64
	for i, e := range index {
		if e.Offset != next {
			return fmt.Errorf("%w: entry %d at offset %d, expected %d", ErrInvalidEntity, i, e.Offset, next)
		}
		if e.Length < entityHeaderSize || e.Length > size-next {
			return fmt.Errorf("%w: entry %d length %d", ErrInvalidEntity, i, e.Length)
		}
		next += e.Length
	}
	if next != size {
		return fmt.Errorf("%w: entries cover %d of %d payload bytes", ErrInvalidEntity, next, size)
	}
	return nil
}

func decodeEntity(dec *ion.Decoder, e IndexEntry, p []byte) (Entity, error) {
	h, err := readEntityHeader(p)
	if err != nil {
		return Entity{}, err
	}
	if h.Magic != EntityMagic {
		return Entity{}, fmt.Errorf("%w: entity %d", ErrInvalidMagic, e.ID)
	}
	if h.Version != EntityVersion {
		return Entity{}, fmt.Errorf("%w: entity version %d", ErrUnsupportedVersion, h.Version)
	}
	if h.HeaderLen < entityHeaderSize || uint64(h.HeaderLen) > uint64(len(p)) {
		return Entity{}, fmt.Errorf("%w: entity %d header length %d", ErrInvalidEntity, e.ID, h.HeaderLen)
	}
	if _, err := decodeOne(dec, p[entityHeaderSize:h.HeaderLen]); err != nil {
		return Entity{}, fmt.Errorf("%w: entity %d header: %v", ErrInvalidEntity, e.ID, err)
	}
	ent := Entity{IndexEntry: e}
	body := p[h.HeaderLen:]
	if ion.SymbolID(e.Type) == symtab.RawMedia {
		ent.Raw = body
		return ent, nil
	}
	if ent.Value, err = decodeOne(dec, body); err != nil {
		return Entity{}, fmt.Errorf("%w: entity %d type $%d: %v", ErrInvalidEntity, e.ID, e.Type, err)
	}
	return ent, nil
}

func parseContainerInfo(v ion.Value) (ContainerInfo, error) {
	st, ok := v.(ion.Struct)
	if !ok {
		return ContainerInfo{}, fmt.Errorf("%w: container info is %T", ErrInvalidHeader, v)
	}
	var ci ContainerInfo
	id, ok := field[ion.String](st, symtab.ContainerID)
	if !ok {
		return ContainerInfo{}, fmt.Errorf("%w: container info has no id", ErrInvalidHeader)
	}
	ci.ContainerID = string(id)
	ints := []struct {
		name ion.SymbolID
		dst  *uint32
	}{
		{symtab.IndexTabOffset, &ci.IndexOffset},
		{symtab.IndexTabLength, &ci.IndexLength},
		{symtab.DocSymbolOffset, &ci.SymbolsOffset},
		{symtab.DocSymbolLength, &ci.SymbolsLength},
		{symtab.FCapabilitiesOffset, &ci.FormatCapOffset},
		{symtab.FCapabilitiesLength, &ci.FormatCapLength},
	}
	for _, f := range ints {
		n, ok := field[ion.Int](st, f.name)
		if !ok || n < 0 || n > 1<<32-1 {
			return ContainerInfo{}, fmt.Errorf("%w: container info field $%d", ErrInvalidHeader, f.name)
		}
		*f.dst = uint32(n)
	}
	if n, ok := field[ion.Int](st, symtab.ComprType); ok {
		ci.Compression = int(n)
	}
	if n, ok := field[ion.Int](st, symtab.DRMScheme); ok {
		ci.DRMScheme = int(n)
	}
	if n, ok := field[ion.Int](st, symtab.ChunkSize); ok {
		ci.ChunkSize = int(n)
	}
	return ci, nil
}

// field returns the named struct field when it has type T.
func field[T ion.Value](st ion.Struct, name ion.SymbolID) (T, bool) {
	var zero T
	v, ok := st.Get(name)
	if !ok {
		return zero, false
	}
	t, ok := ion.Unwrap(v).(T)
	return t, ok
}

// Report summarizes a verified container.
type Report struct {
	ContainerID string
	Entities    int
	Symbols     int
	Sections    int
	Storylines  int
	TextChunks  int
	Resources   int
	Characters  int
	Types       map[string]int
}

// Verify decodes data and checks its fragment graph: entity ids name local
// symbols, the entity map lists every fragment, section and storyline
// references resolve, and the generator digest matches the payloads.
// Failures wrap ErrVerification or a Decode error.
func Verify(data []byte, opts ...ReadOption) (*Report, error) {
	c, err := DecodeBytes(data, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.verify(data); err != nil {
		return nil, err
	}
	r := &Report{
		ContainerID: c.Info.ContainerID,
		Entities:    len(c.Entities),
		Symbols:     c.Symbols.LocalCount(),
		Sections:    len(c.OfType(symtab.Section)),
		Storylines:  len(c.OfType(symtab.Storyline)),
		TextChunks:  len(c.OfType(symtab.Content)),
		Resources:   len(c.OfType(symtab.ExternalResource)),
		Types:       make(map[string]int),
	}
	for _, t := range c.Text() {
		r.Characters += utf8.RuneCountInString(t)
	}
	for _, e := range c.Entities {
		r.Types[c.Name(ion.SymbolID(e.Type))]++
	}
	return r, nil
}

func verifyErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrVerification}, args...)...)
}

func (c *Container) verify(data []byte) error {
	if !ValidContainerID(c.Info.ContainerID) {
		return verifyErr("container id %q", c.Info.ContainerID)
	}
	for _, e := range c.Entities {
		if e.ID != SingletonEntityID && ion.SymbolID(e.ID) < symtab.LocalMinID {
			return verifyErr("entity id %d outside the local symbol range", e.ID)
		}
	}
	if err := c.verifyEntityMap(); err != nil {
		return err
	}
	for _, s := range c.OfType(symtab.Section) {
		if err := c.verifySection(s); err != nil {
			return err
		}
	}
	for _, s := range c.OfType(symtab.Storyline) {
		if err := c.verifyStoryline(s); err != nil {
			return err
		}
	}
	h, _ := readContainerHeader(bytes.NewReader(data))
	sum := sha1.Sum(data[h.HeaderLen:])
	if got := c.GeneratorInfo()["kfxgen_payload_sha1"]; got != hex.EncodeToString(sum[:]) {
		return verifyErr("payload digest %q does not match", got)
	}
	return nil
}

func (c *Container) verifyEntityMap() error {
	m, ok := c.Lookup(symtab.ContainerEntityMap, 0)
	if !ok {
		return verifyErr("no entity map")
	}
	st, _ := m.Value.(ion.Struct)
	containers, _ := field[ion.List](st, symtab.ContainerList)
	listed := make(map[ion.SymbolID]bool)
	for _, item := range containers {
		cs, _ := item.(ion.Struct)
		names, _ := field[ion.List](cs, symtab.Contains)
		for _, n := range names {
			if s, ok := n.(ion.Symbol); ok {
				listed[ion.SymbolID(s)] = true
			}
		}
	}
	var missing []string
	for _, e := range c.Entities {
		if fid := e.FID(); fid != 0 && !listed[fid] {
			missing = append(missing, c.Name(fid))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return verifyErr("entity map omits %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Container) verifySection(e Entity) error {
	st, _ := e.Value.(ion.Struct)
	templates, _ := field[ion.List](st, symtab.PageTemplates)
	if len(templates) == 0 {
		return verifyErr("section %s has no page templates", c.Name(e.FID()))
	}
	for _, t := range templates {
		ts, _ := t.(ion.Struct)
		story, ok := field[ion.Symbol](ts, symtab.StoryName)
		if !ok {
			return verifyErr("section %s page template has no story", c.Name(e.FID()))
		}
		if _, ok := c.Lookup(symtab.Storyline, ion.SymbolID(story)); !ok {
			return verifyErr("section %s names missing storyline %s", c.Name(e.FID()), c.Name(ion.SymbolID(story)))
		}
	}
	return nil
}

func (c *Container) verifyStoryline(e Entity) error {
	st, _ := e.Value.(ion.Struct)
	items, _ := field[ion.List](st, symtab.ContentList)
	stack := append([]ion.Value(nil), items...)
	for len(stack) > 0 {
		item, _ := stack[len(stack)-1].(ion.Struct)
		stack = stack[:len(stack)-1]
		typ, _ := field[ion.Symbol](item, symtab.Type)
		switch ion.SymbolID(typ) {
		case symtab.Text:
			ref, _ := field[ion.Struct](item, symtab.Content)
			name, _ := field[ion.Symbol](ref, symtab.ID)
			n, _ := field[ion.Int](ref, symtab.TextOffset)
			if _, ok := c.textEntry(ion.SymbolID(name), int(n)); !ok {
				return verifyErr("storyline %s references missing text %s[%d]", c.Name(e.FID()), c.Name(ion.SymbolID(name)), n)
			}
		case symtab.Image:
			res, _ := field[ion.Symbol](item, symtab.ResourceName)
			if _, ok := c.Lookup(symtab.ExternalResource, ion.SymbolID(res)); !ok {
				return verifyErr("storyline %s references missing resource %s", c.Name(e.FID()), c.Name(ion.SymbolID(res)))
			}
		default:
			children, _ := field[ion.List](item, symtab.ContentList)
			stack = append(stack, children...)
		}
	}
	return nil
}

// textEntry returns entry n of the $145 fragment name.
func (c *Container) textEntry(name ion.SymbolID, n int) (string, bool) {
	e, ok := c.Lookup(symtab.Content, name)
	if !ok {
		return "", false
	}
	st, _ := e.Value.(ion.Struct)
	list, _ := field[ion.List](st, symtab.ContentList)
	if n < 0 || n >= len(list) {
		return "", false
	}
	s, ok := list[n].(ion.String)
	return string(s), ok
}
