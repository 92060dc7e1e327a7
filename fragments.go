package kfx

import (
	"github.com/logicossoftware/go-kfx/ion"
	"github.com/logicossoftware/go-kfx/symtab"
)

// Fragment is one entity of the container graph. FID names the fragment;
// zero marks a singleton root fragment, stored under SingletonEntityID.
// $417 raw media carries Raw instead of Value.
type Fragment struct {
	ID    EntityID
	FID   ion.SymbolID
	Type  ion.SymbolID
	Value ion.Value
	Raw   []byte
}

// Singleton reports whether f exists once per container.
func (f Fragment) Singleton() bool { return f.FID == 0 }

// EntityID returns the index id the fragment is stored under.
func (f Fragment) EntityID() EntityID {
	if f.Singleton() {
		return SingletonEntityID
	}
	return EntityID(f.FID)
}

func singleton(typ ion.SymbolID, v ion.Value) Fragment {
	return Fragment{Type: typ, Value: v}
}

// capability is one reader feature advertised in $585.
type capability struct {
	namespace string
	key       string
	major     int
	minor     int
}

var contentFeatures = []capability{
	{"com.amazon.yjconversion", "reflow-style", 6, 0},
	{"SDK.Marker", "CanonicalFormat", 1, 0},
	{"com.amazon.yjconversion", "yj_hdv", 1, 0},
}

func contentFeaturesFragment() Fragment {
	list := make(ion.List, len(contentFeatures))
	for i, c := range contentFeatures {
		list[i] = ion.NewStruct(
			ion.F(symtab.Namespace, ion.String(c.namespace)),
			ion.F(symtab.Key, ion.String(c.key)),
			ion.F(symtab.VersionInfo, ion.NewStruct(
				ion.F(ion.SymVersion, ion.NewStruct(
					ion.F(symtab.MajorVersion, ion.Int(c.major)),
					ion.F(symtab.MinorVersion, ion.Int(c.minor)),
				)),
			)),
		)
	}
	return singleton(symtab.ContentFeatures, ion.NewStruct(ion.F(symtab.Features, list)))
}

// metadataGroup is one $491 category.
type metadataGroup struct {
	category string
	entries  ion.List
}

func (g *metadataGroup) add(key string, v ion.Value) {
	g.entries = append(g.entries, ion.NewStruct(
		ion.F(symtab.Key, ion.String(key)),
		ion.F(symtab.Value, v),
	))
}

func (b *builder) bookMetadataFragment(containerID string) Fragment {
	m := b.book.Metadata
	ebook := &metadataGroup{category: "kindle_ebook_metadata"}
	ebook.add("selection", ion.String("enabled"))
	ebook.add("nested_span", ion.String("enabled"))

	title := &metadataGroup{category: "kindle_title_metadata"}
	title.add("title", ion.String(m.Title))
	for _, a := range m.Authors {
		title.add("author", ion.String(a))
	}
	title.add("language", ion.String(b.language()))
	if m.Publisher != "" {
		title.add("publisher", ion.String(m.Publisher))
	}
	if m.Description != "" {
		title.add("description", ion.String(m.Description))
	}
	asin := m.ASIN
	if asin == "" {
		asin = containerID[len(ContainerIDPrefix):]
	}
	title.add("ASIN", ion.String(asin))
	title.add("content_id", ion.String(asin))
	if m.BookID != "" {
		title.add("book_id", ion.String(m.BookID))
	}
	title.add("asset_id", ion.String(containerID))
	title.add("cde_content_type", ion.String("EBOK"))
	if b.cover != nil {
		title.add("cover_image", ion.Symbol(b.cover.name))
	}

	audit := &metadataGroup{category: "kindle_audit_metadata"}
	audit.add("file_creator", ion.String(b.cfg.appVersion))
	audit.add("creator_version", ion.String(b.cfg.pkgVersion))

	capability := &metadataGroup{category: "kindle_capability_metadata"}

	groups := []*metadataGroup{ebook, title, audit, capability}
	list := make(ion.List, len(groups))
	for i, g := range groups {
		entries := g.entries
		if entries == nil {
			entries = ion.List{}
		}
		list[i] = ion.NewStruct(
			ion.F(symtab.Category, ion.String(g.category)),
			ion.F(symtab.Metadata, entries),
		)
	}
	return singleton(symtab.BookMetadata, ion.NewStruct(ion.F(symtab.CategorisedMetadata, list)))
}

func (b *builder) language() string {
	if b.book.Metadata.Language == "" {
		return "en"
	}
	return b.book.Metadata.Language
}

func (b *builder) readingOrders() ion.List {
	names := make(ion.List, len(b.sections))
	for i, s := range b.sections {
		names[i] = ion.Symbol(s.name)
	}
	return ion.List{ion.NewStruct(
		ion.F(symtab.ReadingOrderName, ion.Symbol(symtab.Default)),
		ion.F(symtab.Sections, names),
	)}
}

func (b *builder) metadataFragment() Fragment {
	return singleton(symtab.Metadata, ion.NewStruct(ion.F(symtab.ReadingOrders, b.readingOrders())))
}

// documentDataFragment writes the $538 reader defaults. Field 8 holds the
// largest position id in use.
func (b *builder) documentDataFragment() Fragment {
	em := func(c int64, exp int32) ion.Struct {
		return ion.NewStruct(
			ion.F(symtab.Value, ion.Decimal{Coefficient: c, Exponent: exp}),
			ion.F(symtab.Unit, ion.Symbol(symtab.UnitEm)),
		)
	}
	return singleton(symtab.DocumentData, ion.NewStruct(
		ion.F(ion.SymMaxID, ion.Int(b.nextEID-1)),
		ion.F(symtab.FontSize, em(1, 0)),
		ion.F(symtab.LineHeight, em(12, -1)),
		ion.F(symtab.ColumnCount, ion.Symbol(symtab.Auto)),
		ion.F(symtab.ReadingOrders, b.readingOrders()),
		ion.F(symtab.Direction, ion.Symbol(symtab.LTR)),
		ion.F(symtab.Selection, ion.Symbol(symtab.Enabled)),
		ion.F(symtab.SpacingBase, ion.Symbol(symtab.Width)),
		ion.F(symtab.WritingMode, ion.Symbol(symtab.HorizontalTB)),
	))
}

func navTarget(eid int64) ion.Struct {
	return ion.NewStruct(
		ion.F(symtab.EID, ion.Int(eid)),
		ion.F(symtab.Offset, ion.Int(0)),
	)
}

func navEntry(label string, eid int64) ion.Struct {
	return ion.NewStruct(
		ion.F(symtab.Representation, ion.NewStruct(ion.F(symtab.Label, ion.String(label)))),
		ion.F(symtab.TargetPosition, navTarget(eid)),
	)
}

// navigationFragment builds $389 with a table of contents mirroring the
// section nesting and a landmarks container. Untitled sections contribute
// their titled descendants to their parent's level.
func (b *builder) navigationFragment() (Fragment, error) {
	tocName, err := b.table.Intern("nav-toc")
	if err != nil {
		return Fragment{}, err
	}
	landmarksName, err := b.table.Intern("nav-landmarks")
	if err != nil {
		return Fragment{}, err
	}

	children := make([][]int, len(b.sections))
	var roots []int
	for i, s := range b.sections {
		if s.parent < 0 {
			roots = append(roots, i)
		} else {
			children[s.parent] = append(children[s.parent], i)
		}
	}
	// Children follow their parent in reading order, so a reverse pass sees
	// every child list complete before its parent.
	entries := make([]ion.List, len(b.sections))
	for i := len(b.sections) - 1; i >= 0; i-- {
		s := b.sections[i]
		if s.cover != nil {
			continue
		}
		var kids ion.List
		for _, c := range children[i] {
			kids = append(kids, entries[c]...)
		}
		if s.title == "" {
			entries[i] = kids
			continue
		}
		e := navEntry(s.title, s.firstEID())
		if len(kids) > 0 {
			e.Fields = append(e.Fields, ion.F(symtab.Entries, kids))
		}
		entries[i] = ion.List{ion.Annotate(symtab.NavUnit, e)}
	}
	toc := ion.List{}
	for _, r := range roots {
		toc = append(toc, entries[r]...)
	}

	landmarks := ion.List{}
	if b.cover != nil {
		e := navEntry("Cover", b.sections[0].firstEID())
		e.Fields = append(e.Fields, ion.F(symtab.LandmarkType, ion.Symbol(symtab.CoverPage)))
		landmarks = append(landmarks, ion.Annotate(symtab.NavUnit, e))
	}
	if body := b.firstBodySection(); body != nil {
		label := body.title
		if label == "" {
			label = "Content"
		}
		e := navEntry(label, body.firstEID())
		e.Fields = append(e.Fields, ion.F(symtab.LandmarkType, ion.Symbol(symtab.Bodymatter)))
		landmarks = append(landmarks, ion.Annotate(symtab.NavUnit, e))
	}

	container := func(typ, name ion.SymbolID, list ion.List) ion.Value {
		return ion.Annotate(symtab.NavContainer, ion.NewStruct(
			ion.F(symtab.NavType, ion.Symbol(typ)),
			ion.F(symtab.NavContainerName, ion.Symbol(name)),
			ion.F(symtab.Entries, list),
		))
	}
	nav := ion.List{ion.NewStruct(
		ion.F(symtab.ReadingOrderName, ion.Symbol(symtab.Default)),
		ion.F(symtab.NavContainers, ion.List{
			container(symtab.TOC, tocName, toc),
			container(symtab.Landmarks, landmarksName, landmarks),
		}),
	)}
	return singleton(symtab.BookNavigation, nav), nil
}

func (b *builder) firstBodySection() *section {
	for _, s := range b.sections {
		if s.cover == nil {
			return s
		}
	}
	return nil
}

func (b *builder) sectionFragments() []Fragment {
	out := make([]Fragment, 0, len(b.sections))
	for _, s := range b.sections {
		templates := make(ion.List, len(s.stories))
		for i, st := range s.stories {
			t := ion.NewStruct(ion.F(symtab.EID, ion.Int(st.eid)))
			if s.cover == nil {
				t.Fields = append(t.Fields, ion.F(symtab.Type, ion.Symbol(symtab.Text)))
			}
			t.Fields = append(t.Fields, ion.F(symtab.StoryName, ion.Symbol(st.name)))
			templates[i] = t
		}
		v := ion.NewStruct(ion.F(symtab.SectionName, ion.Symbol(s.name)))
		if s.cover != nil {
			v.Fields = append(v.Fields,
				ion.F(symtab.SectionWidth, ion.Int(s.cover.width)),
				ion.F(symtab.SectionHeight, ion.Int(s.cover.height)),
				ion.F(symtab.Layout, ion.Symbol(symtab.ScaleFit)),
			)
		}
		v.Fields = append(v.Fields, ion.F(symtab.PageTemplates, templates))
		out = append(out, Fragment{FID: s.name, Type: symtab.Section, Value: v})
	}
	return out
}

func (b *builder) storyFragments() []Fragment {
	var out []Fragment
	for _, s := range b.sections {
		for _, st := range s.stories {
			items := make(ion.List, len(st.items))
			for i, n := range st.items {
				items[i] = nodeValue(n)
			}
			out = append(out, Fragment{FID: st.name, Type: symtab.Storyline, Value: ion.NewStruct(
				ion.F(symtab.StoryName, ion.Symbol(st.name)),
				ion.F(symtab.ContentList, items),
			)})
		}
	}
	return out
}

func (b *builder) textFragments() []Fragment {
	var out []Fragment
	for _, s := range b.sections {
		for _, c := range s.chunks {
			texts := make(ion.List, len(c.texts))
			for i, t := range c.texts {
				texts[i] = ion.String(t)
			}
			out = append(out, Fragment{FID: c.name, Type: symtab.Content, Value: ion.NewStruct(
				ion.F(symtab.ID, ion.Symbol(c.name)),
				ion.F(symtab.ContentList, texts),
			)})
		}
	}
	return out
}

func (b *builder) styleFragments() []Fragment {
	styles := b.styles.Fragments()
	out := make([]Fragment, len(styles))
	for i, s := range styles {
		out[i] = Fragment{FID: s.Name, Type: symtab.Style, Value: s.Value()}
	}
	return out
}

// anchorFragments resolves every link. Internal targets that name no
// section or block fail the build.
func (b *builder) anchorFragments() ([]Fragment, error) {
	out := make([]Fragment, 0, len(b.links))
	for _, l := range b.links {
		v := ion.NewStruct(ion.F(symtab.AnchorName, ion.Symbol(l.name)))
		if l.external {
			v.Fields = append(v.Fields, ion.F(symtab.URI, ion.String(l.href)))
		} else {
			t, ok := b.targets[l.target]
			if !ok {
				return nil, malformed(l.path, "link %q names no section or block", l.href)
			}
			v.Fields = append(v.Fields, ion.F(symtab.Position, ion.NewStruct(ion.F(symtab.EID, ion.Int(t.eid())))))
		}
		out = append(out, Fragment{FID: l.name, Type: symtab.Anchor, Value: v})
	}
	return out, nil
}

func (b *builder) auxiliaryFragments() ([]Fragment, error) {
	out := make([]Fragment, 0, len(b.sections))
	for _, s := range b.sections {
		name, err := b.table.Intern(b.table.Name(s.name) + "-ad")
		if err != nil {
			return nil, err
		}
		out = append(out, Fragment{FID: name, Type: symtab.AuxiliaryData, Value: ion.NewStruct(
			ion.F(symtab.KfxID, ion.Symbol(name)),
			ion.F(symtab.Metadata, ion.List{ion.NewStruct(
				ion.F(symtab.Key, ion.String("IS_TARGET_SECTION")),
				ion.F(symtab.Value, ion.Bool(true)),
			)}),
		)})
	}
	return out, nil
}

func (b *builder) resourceFragments() []Fragment {
	var out []Fragment
	for _, r := range b.res.order {
		out = append(out, r.fragments()...)
	}
	return out
}

// positionMapFragment lists every position id of each section.
func (b *builder) positionMapFragment() Fragment {
	list := make(ion.List, len(b.sections))
	for i, s := range b.sections {
		eids := make(ion.List, len(s.eids))
		for j, e := range s.eids {
			eids[j] = ion.Int(e)
		}
		list[i] = ion.NewStruct(
			ion.F(symtab.SectionName, ion.Symbol(s.name)),
			ion.F(symtab.Contains, eids),
		)
	}
	return singleton(symtab.PositionMap, list)
}

// span is one run of reading positions owned by a position id.
type span struct {
	eid    int64
	length int
	entry  bool // listed in $265
	start  bool // first content of its section
}

// spans lists the reading positions of the book in order. A page template
// and a container each occupy one position; text occupies its rune count.
func (b *builder) spans() []span {
	var out []span
	for _, s := range b.sections {
		first := true
		for _, st := range s.stories {
			out = append(out, span{eid: st.eid, length: 1, entry: true})
			for _, item := range st.items {
				walkNodes(item, func(n ContentNode) {
					sp := span{eid: n.Position(), length: 1, entry: true}
					switch n := n.(type) {
					case *TextNode:
						sp.length = n.Length
					case *ContainerNode:
						sp.entry = false
					}
					if first && sp.entry {
						sp.start = true
						first = false
					}
					out = append(out, sp)
				})
			}
		}
	}
	return out
}

// positionIDMapFragment maps cumulative reading positions to position ids,
// closed by an entry for id 0 at the end position.
func (b *builder) positionIDMapFragment(spans []span) Fragment {
	list := ion.List{}
	pid := 0
	for _, sp := range spans {
		if sp.entry {
			list = append(list, ion.NewStruct(
				ion.F(symtab.PID, ion.Int(pid)),
				ion.F(symtab.PositionEID, ion.Int(sp.eid)),
			))
		}
		pid += sp.length
	}
	list = append(list, ion.NewStruct(
		ion.F(symtab.PID, ion.Int(pid)),
		ion.F(symtab.PositionEID, ion.Int(0)),
	))
	return singleton(symtab.PositionIDMap, list)
}

// locationMapFragment places a location every CharsPerLocation positions.
// The spacing restarts at the first content of each section.
func (b *builder) locationMapFragment(spans []span) Fragment {
	locs := ion.List{}
	pid, next := 0, -1
	for _, sp := range spans {
		if sp.start {
			next = pid
		}
		if next < 0 {
			pid += sp.length
			continue
		}
		at, off := pid, 0
		for {
			if at == next {
				locs = append(locs, ion.NewStruct(
					ion.F(symtab.EID, ion.Int(sp.eid)),
					ion.F(symtab.Offset, ion.Int(off)),
				))
				next += CharsPerLocation
			}
			gap := next - at
			if sp.length-off <= gap {
				break
			}
			off += gap
			at = next
		}
		pid += sp.length
	}
	return singleton(symtab.LocationMap, ion.List{ion.NewStruct(ion.F(symtab.Locations, locs))})
}

// entityMapFragment lists every named fragment of the container and the
// mandatory dependencies of sections on resources and of resources on
// their media.
func (b *builder) entityMapFragment(containerID string, frags []Fragment) Fragment {
	names := ion.List{}
	for _, f := range frags {
		if !f.Singleton() {
			names = append(names, ion.Symbol(f.FID))
		}
	}
	v := ion.NewStruct(ion.F(symtab.ContainerList, ion.List{ion.NewStruct(
		ion.F(symtab.EID, ion.String(containerID)),
		ion.F(symtab.Contains, names),
	)}))
	deps := ion.List{}
	for _, s := range b.sections {
		if len(s.deps) == 0 {
			continue
		}
		list := make(ion.List, len(s.deps))
		for i, d := range s.deps {
			list[i] = ion.Symbol(d)
		}
		deps = append(deps, ion.NewStruct(
			ion.F(symtab.EID, ion.Symbol(s.name)),
			ion.F(symtab.MandatoryDependencies, list),
		))
	}
	for _, r := range b.res.order {
		deps = append(deps, ion.NewStruct(
			ion.F(symtab.EID, ion.Symbol(r.name)),
			ion.F(symtab.MandatoryDependencies, ion.List{ion.Symbol(r.media)}),
		))
	}
	if len(deps) > 0 {
		v.Fields = append(v.Fields, ion.F(symtab.EntityDependencies, deps))
	}
	return singleton(symtab.ContainerEntityMap, v)
}
