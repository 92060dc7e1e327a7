package kfx

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strconv"

	"github.com/zeebo/blake3"

	"github.com/logicossoftware/go-kfx/ion"
	"github.com/logicossoftware/go-kfx/symtab"
)

// decodeImageConfig is swapped by tests.
var decodeImageConfig = func(data []byte) (image.Config, string, error) {
	return image.DecodeConfig(bytes.NewReader(data))
}

// imageFormats maps image.DecodeConfig format names to their $161 symbol.
var imageFormats = map[string]ion.SymbolID{
	"png":  symtab.PNG,
	"jpeg": symtab.JPG,
	"gif":  symtab.GIF,
}

// resource is one emitted $164/$417 pair. Inputs with identical bytes share
// a resource.
type resource struct {
	name   ion.SymbolID // $164 fid
	media  ion.SymbolID // $417 fid
	path   string       // $165 location, the text of media
	format ion.SymbolID
	mime   string
	width  int
	height int
	data   []byte
}

func (r *resource) fragments() []Fragment {
	meta := ion.NewStruct(
		ion.F(symtab.ResourceName, ion.Symbol(r.name)),
		ion.F(symtab.Format, ion.Symbol(r.format)),
		ion.F(symtab.MIME, ion.String(r.mime)),
		ion.F(symtab.Location, ion.String(r.path)),
		ion.F(symtab.ResourceWidth, ion.Int(r.width)),
		ion.F(symtab.ResourceHeight, ion.Int(r.height)),
	)
	return []Fragment{
		{FID: r.name, Type: symtab.ExternalResource, Value: meta},
		{FID: r.media, Type: symtab.RawMedia, Raw: r.data},
	}
}

// resourceSet resolves image references against Book.Resources. Resources
// are registered on first reference, so unreferenced inputs are not emitted.
type resourceSet struct {
	table    *symtab.Table
	inputs   map[string]*Resource
	byID     map[string]*resource
	byDigest map[[32]byte]*resource
	order    []*resource
}

func newResourceSet(table *symtab.Table, limits Limits, inputs []Resource) (*resourceSet, error) {
	s := &resourceSet{
		table:    table,
		inputs:   make(map[string]*Resource, len(inputs)),
		byID:     make(map[string]*resource),
		byDigest: make(map[[32]byte]*resource),
	}
	for i := range inputs {
		in := &inputs[i]
		path := "resources[" + strconv.Itoa(i) + "]"
		if in.ID == "" {
			return nil, malformed(path, "resource has no id")
		}
		if _, dup := s.inputs[in.ID]; dup {
			return nil, malformed(path, "duplicate resource id %q", in.ID)
		}
		if len(in.Data) == 0 {
			return nil, malformed(path, "resource %q has no data", in.ID)
		}
		if uint64(len(in.Data)) > limits.MaxResourceSize {
			return nil, malformed(path, "resource %q is %d bytes, limit %d", in.ID, len(in.Data), limits.MaxResourceSize)
		}
		s.inputs[in.ID] = in
	}
	return s, nil
}

// resolve returns the resource for id, registering it on first use. path
// locates the referencing node for error reports.
func (s *resourceSet) resolve(id, path string) (*resource, error) {
	if r, ok := s.byID[id]; ok {
		return r, nil
	}
	in, ok := s.inputs[id]
	if !ok {
		return nil, malformed(path, "unknown resource %q", id)
	}
	digest := blake3.Sum256(in.Data)
	if r, ok := s.byDigest[digest]; ok {
		s.byID[id] = r
		return r, nil
	}
	cfg, format, err := decodeImageConfig(in.Data)
	if err != nil {
		return nil, malformed(path, "resource %q is not a readable image: %v", id, err)
	}
	sym, ok := imageFormats[format]
	if !ok {
		return nil, malformed(path, "resource %q has unsupported image format %s", id, format)
	}
	n := strconv.Itoa(len(s.order) + 1)
	name, err := s.table.Intern("rsrc-" + n)
	if err != nil {
		return nil, err
	}
	loc := "resource/rsrc-" + n
	media, err := s.table.Intern(loc)
	if err != nil {
		return nil, err
	}
	mime := in.MediaType
	if mime == "" {
		mime = "image/" + format
	}
	r := &resource{
		name:   name,
		media:  media,
		path:   loc,
		format: sym,
		mime:   mime,
		width:  cfg.Width,
		height: cfg.Height,
		data:   in.Data,
	}
	s.byID[id] = r
	s.byDigest[digest] = r
	s.order = append(s.order, r)
	return r, nil
}
