package kfx

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/logicossoftware/go-kfx/ion"
	"github.com/logicossoftware/go-kfx/style"
	"github.com/logicossoftware/go-kfx/symtab"
)

// Result is a built fragment graph. Symbols and Styles are frozen.
type Result struct {
	ContainerID string
	Symbols     *symtab.Table
	Styles      *style.Cache
	// Fragments are in container order.
	Fragments []Fragment

	Sections   int
	Storylines int
	TextChunks int
	Resources  int

	cfg buildConfig
}

// Build converts book into its KFX fragment graph. The book is only read.
func Build(book *Book, opts ...BuildOption) (*Result, error) {
	return build(book, newBuildConfig(opts))
}

func build(book *Book, cfg buildConfig) (*Result, error) {
	if err := validateBook(book); err != nil {
		return nil, err
	}
	id, err := cfg.resolveContainerID(book.Metadata)
	if err != nil {
		return nil, err
	}
	b, err := newBuilder(book, cfg)
	if err != nil {
		return nil, err
	}
	frags, err := b.run(id)
	if err != nil {
		return nil, err
	}
	res := &Result{
		ContainerID: id,
		Symbols:     b.table,
		Styles:      b.styles,
		Fragments:   frags,
		Sections:    len(b.sections),
		TextChunks:  b.chunks,
		Resources:   len(b.res.order),
		cfg:         cfg,
	}
	for _, s := range b.sections {
		res.Storylines += len(s.stories)
	}
	b.log.Debug().
		Str("container_id", id).
		Int("fragments", len(frags)).
		Int("sections", res.Sections).
		Int("storylines", res.Storylines).
		Int("styles", b.styles.Len()).
		Int("symbols", b.table.LocalCount()).
		Msg("book built")
	return res, nil
}

// builder holds the state of one Build. Nothing in it is shared between
// builds.
type builder struct {
	cfg    buildConfig
	log    zerolog.Logger
	book   *Book
	table  *symtab.Table
	styles *style.Cache
	res    *resourceSet

	sections  []*section
	cover     *resource
	targets   map[string]target
	links     []*link
	linkByRef map[string]*link

	blocksSeen map[*Block]string
	chunks     int
	stories    int
	nextEID    int64
}

type section struct {
	path    string
	title   string
	parent  int // index of the enclosing section, -1 at top level
	name    ion.SymbolID
	cover   *resource
	items   []ContentNode
	chunks  []*textChunk
	stories []*story
	deps    []ion.SymbolID
	eids    []int64
}

// firstEID is the position of the section's first content node.
func (s *section) firstEID() int64 {
	return s.stories[0].items[0].Position()
}

func (s *section) addDep(name ion.SymbolID) {
	for _, d := range s.deps {
		if d == name {
			return
		}
	}
	s.deps = append(s.deps, name)
}

// story is one $259 storyline and the page template that shows it.
type story struct {
	name  ion.SymbolID
	eid   int64
	items []ContentNode
}

// textChunk is one $145 fragment. Entries never straddle chunks.
type textChunk struct {
	name  ion.SymbolID
	texts []string
	chars int
}

// target is the destination of an internal link: a block's node, or a
// section's first content.
type target struct {
	node ContentNode
	sec  *section
	path string
}

func (t target) eid() int64 {
	if t.node != nil {
		return t.node.Position()
	}
	return t.sec.firstEID()
}

type link struct {
	href     string
	target   string
	external bool
	name     ion.SymbolID
	path     string
}

func newBuilder(book *Book, cfg buildConfig) (*builder, error) {
	table := symtab.New(cfg.limits.MaxLocalSymbols)
	res, err := newResourceSet(table, cfg.limits, book.Resources)
	if err != nil {
		return nil, err
	}
	return &builder{
		cfg:        cfg,
		log:        cfg.logger,
		book:       book,
		table:      table,
		styles:     style.NewCache(table, cfg.mapper),
		res:        res,
		targets:    make(map[string]target),
		linkByRef:  make(map[string]*link),
		blocksSeen: make(map[*Block]string),
		nextEID:    int64(symtab.LocalMinID),
	}, nil
}

func (b *builder) run(containerID string) ([]Fragment, error) {
	if b.book.CoverImage != "" {
		if err := b.addCover(); err != nil {
			return nil, err
		}
	}
	if err := b.walkSections(); err != nil {
		return nil, err
	}
	for _, s := range b.sections {
		if err := b.group(s); err != nil {
			return nil, err
		}
	}
	b.assignPositions()
	return b.emit(containerID)
}

// addCover places the cover image in its own first section.
func (b *builder) addCover() error {
	r, err := b.res.resolve(b.book.CoverImage, "cover_image")
	if err != nil {
		return err
	}
	name, err := b.table.Intern("cover-section")
	if err != nil {
		return err
	}
	b.cover = r
	s := &section{path: "cover_image", parent: -1, name: name, cover: r}
	s.items = []ContentNode{&ImageNode{Resource: r.name}}
	s.addDep(r.name)
	b.sections = append(b.sections, s)
	return nil
}

// walkSections flattens the section tree into reading order, a parent
// before its children, and builds every section's content nodes.
func (b *builder) walkSections() error {
	type frame struct {
		src    *Section
		path   string
		parent int
		depth  int
	}
	seen := make(map[*Section]string)
	stack := make([]frame, 0, len(b.book.Sections))
	for i := len(b.book.Sections) - 1; i >= 0; i-- {
		stack = append(stack, frame{b.book.Sections[i], "sections[" + strconv.Itoa(i) + "]", -1, 1})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.src == nil {
			return malformed(f.path, "section is nil")
		}
		if prev, ok := seen[f.src]; ok {
			return malformed(f.path, "section already appears at %s", prev)
		}
		seen[f.src] = f.path
		if f.depth > b.cfg.limits.MaxTreeDepth {
			return malformed(f.path, "sections nest deeper than %d", b.cfg.limits.MaxTreeDepth)
		}
		name, err := b.table.Intern("section-" + strconv.Itoa(len(seen)))
		if err != nil {
			return err
		}
		if err := validText(f.path+".title", f.src.Title); err != nil {
			return err
		}
		s := &section{path: f.path, title: strings.TrimSpace(f.src.Title), parent: f.parent, name: name}
		idx := len(b.sections)
		b.sections = append(b.sections, s)
		if f.src.ID != "" {
			if err := b.addTarget(f.src.ID, f.path, target{sec: s}); err != nil {
				return err
			}
		}
		if err := b.walkBlocks(s, f.src, f.depth); err != nil {
			return err
		}
		for i := len(f.src.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{f.src.Children[i], f.path + ".children[" + strconv.Itoa(i) + "]", idx, f.depth + 1})
		}
	}
	return nil
}

func (b *builder) addTarget(id, path string, t target) error {
	if prev, ok := b.targets[id]; ok {
		return malformed(path, "duplicate id %q, first used at %s", id, prev.path)
	}
	t.path = path
	b.targets[id] = t
	return nil
}

// walkBlocks converts a section's block tree to content nodes with an
// explicit work stack. A section without blocks shows its title as a
// heading.
func (b *builder) walkBlocks(s *section, src *Section, depth int) error {
	type frame struct {
		block  *Block
		path   string
		depth  int
		parent *ContainerNode
	}
	blocks := src.Blocks
	if len(blocks) == 0 {
		if s.title == "" {
			return malformed(s.path, "section has no blocks and no title")
		}
		level := src.Level
		if level < 1 || level > 6 {
			level = min(depth, 6)
		}
		blocks = []*Block{{Kind: BlockHeading, Level: level, Text: s.title}}
	}
	stack := make([]frame, 0, len(blocks))
	for i := len(blocks) - 1; i >= 0; i-- {
		stack = append(stack, frame{blocks[i], s.path + ".blocks[" + strconv.Itoa(i) + "]", 1, nil})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.block == nil {
			return malformed(f.path, "block is nil")
		}
		if prev, ok := b.blocksSeen[f.block]; ok {
			return malformed(f.path, "block already appears at %s", prev)
		}
		b.blocksSeen[f.block] = f.path
		if f.depth > b.cfg.limits.MaxTreeDepth {
			return malformed(f.path, "blocks nest deeper than %d", b.cfg.limits.MaxTreeDepth)
		}
		if f.parent != nil && f.parent.Type == symtab.List && f.block.Kind != BlockListItem {
			return malformed(f.path, "list contains a %s", f.block.Kind)
		}
		if f.block.Kind == BlockListItem && (f.parent == nil || f.parent.Type != symtab.List) {
			return malformed(f.path, "list item outside a list")
		}
		n, err := b.node(s, f.block, f.path)
		if err != nil {
			return err
		}
		if f.parent == nil {
			s.items = append(s.items, n)
		} else {
			f.parent.Children = append(f.parent.Children, n)
		}
		if f.block.ID != "" {
			if err := b.addTarget(f.block.ID, f.path, target{node: n}); err != nil {
				return err
			}
		}
		c, ok := n.(*ContainerNode)
		if !ok {
			continue
		}
		kids := f.block.Children
		c.Children = make([]ContentNode, 0, len(kids))
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, frame{kids[i], f.path + ".children[" + strconv.Itoa(i) + "]", f.depth + 1, c})
		}
	}
	return nil
}

// headingSizes are the implicit font sizes of heading levels 1-6.
var headingSizes = [...]string{"2em", "1.5em", "1.17em", "1em", "0.83em", "0.67em"}

func headingStyle(level int, own []style.Declaration) []style.Declaration {
	decls := make([]style.Declaration, 0, 2+len(own))
	decls = append(decls,
		style.Declaration{Property: "font-weight", Value: "bold"},
		style.Declaration{Property: "font-size", Value: headingSizes[level-1]},
	)
	return append(decls, own...)
}

func (b *builder) node(s *section, blk *Block, path string) (ContentNode, error) {
	if blk.Kind.leaf() && len(blk.Children) > 0 {
		return nil, malformed(path, "%s has children", blk.Kind)
	}
	switch blk.Kind {
	case BlockParagraph, BlockHeading:
		if blk.Text == "" {
			return nil, malformed(path, "%s has no text", blk.Kind)
		}
		if err := validText(path, blk.Text); err != nil {
			return nil, err
		}
		decls := blk.Style
		if blk.Kind == BlockHeading {
			level := blk.Level
			if level == 0 {
				level = 1
			}
			if level < 1 || level > 6 {
				return nil, malformed(path, "heading level %d outside 1-6", blk.Level)
			}
			decls = headingStyle(level, blk.Style)
		}
		st, err := b.styles.Intern(decls)
		if err != nil {
			return nil, err
		}
		n := &TextNode{Style: st, Length: utf8.RuneCountInString(blk.Text)}
		if n.Content, n.Index, err = b.addText(s, blk.Text); err != nil {
			return nil, err
		}
		if n.Runs, err = b.runs(blk, path, n.Length); err != nil {
			return nil, err
		}
		return n, nil

	case BlockImage:
		if blk.Src == "" {
			return nil, malformed(path, "image has no src")
		}
		r, err := b.res.resolve(blk.Src, path)
		if err != nil {
			return nil, err
		}
		s.addDep(r.name)
		st, err := b.styles.Intern(blk.Style)
		if err != nil {
			return nil, err
		}
		if err := validText(path, blk.Alt); err != nil {
			return nil, err
		}
		return &ImageNode{Resource: r.name, Alt: blk.Alt, Style: st}, nil

	case BlockContainer, BlockList, BlockListItem:
		if blk.Text != "" || len(blk.Spans) > 0 {
			return nil, malformed(path, "%s carries text", blk.Kind)
		}
		if len(blk.Children) == 0 {
			return nil, malformed(path, "%s has no children", blk.Kind)
		}
		st, err := b.styles.Intern(blk.Style)
		if err != nil {
			return nil, err
		}
		c := &ContainerNode{Type: symtab.Container, Style: st}
		switch blk.Kind {
		case BlockList:
			c.Type, c.ListStyle = symtab.List, symtab.ListDisc
			if blk.Ordered {
				c.ListStyle = symtab.ListDecimal
			}
		case BlockListItem:
			c.Type = symtab.ListItem
		}
		return c, nil
	}
	return nil, malformed(path, "unknown block kind %d", uint8(blk.Kind))
}

// addText appends text to the section's current $145 chunk, opening a new
// chunk when it would pass MaxTextChunkChars.
func (b *builder) addText(s *section, text string) (ion.SymbolID, int, error) {
	n := utf8.RuneCountInString(text)
	var cur *textChunk
	if len(s.chunks) > 0 {
		cur = s.chunks[len(s.chunks)-1]
	}
	if cur == nil || (cur.chars > 0 && cur.chars+n > b.cfg.limits.MaxTextChunkChars) {
		b.chunks++
		name, err := b.table.Intern("content-" + strconv.Itoa(b.chunks))
		if err != nil {
			return 0, 0, err
		}
		cur = &textChunk{name: name}
		s.chunks = append(s.chunks, cur)
	}
	cur.texts = append(cur.texts, text)
	cur.chars += n
	return cur.name, len(cur.texts) - 1, nil
}

// runs converts spans to inline runs. Spans that neither style nor link
// are dropped.
func (b *builder) runs(blk *Block, path string, textLen int) ([]InlineRun, error) {
	var runs []InlineRun
	for i, sp := range blk.Spans {
		spath := path + ".spans[" + strconv.Itoa(i) + "]"
		if sp.Start < 0 || sp.End <= sp.Start || sp.End > textLen {
			return nil, malformed(spath, "span [%d,%d) outside text of %d characters", sp.Start, sp.End, textLen)
		}
		st, err := b.styles.Intern(sp.Style)
		if err != nil {
			return nil, err
		}
		var anchor ion.SymbolID
		if sp.Href != "" {
			if anchor, err = b.link(sp.Href, spath); err != nil {
				return nil, err
			}
		}
		if st == 0 && anchor == 0 {
			continue
		}
		runs = append(runs, InlineRun{Offset: sp.Start, Length: sp.End - sp.Start, Style: st, Anchor: anchor})
	}
	if err := validateRuns(runs, textLen); err != nil {
		return nil, malformed(path, "%v", err)
	}
	return runs, nil
}

func externalHref(href string) bool {
	for _, p := range []string{"http://", "https://", "mailto:"} {
		if len(href) > len(p) && strings.EqualFold(href[:len(p)], p) {
			return true
		}
	}
	return false
}

// link returns the anchor symbol for href, allocating one per distinct
// href. Internal targets are resolved after the walk.
func (b *builder) link(href, path string) (ion.SymbolID, error) {
	if l, ok := b.linkByRef[href]; ok {
		return l.name, nil
	}
	l := &link{href: href, path: path}
	switch {
	case strings.HasPrefix(href, "#") && len(href) > 1:
		l.target = href[1:]
	case externalHref(href):
		l.external = true
	default:
		return 0, malformed(path, "link %q is neither #id nor an http, https or mailto URL", href)
	}
	name, err := b.table.Intern("anchor-" + strconv.Itoa(len(b.links)+1))
	if err != nil {
		return 0, err
	}
	l.name = name
	b.links = append(b.links, l)
	b.linkByRef[href] = l
	return name, nil
}

// measure returns the node count and height of the subtree at n.
func measure(n ContentNode) (count, depth int) {
	type frame struct {
		node  ContentNode
		level int
	}
	stack := []frame{{n, 1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		count++
		depth = max(depth, f.level)
		if c, ok := f.node.(*ContainerNode); ok {
			for _, child := range c.Children {
				stack = append(stack, frame{child, f.level + 1})
			}
		}
	}
	return count, depth
}

// group splits a section's top-level items into storylines of at most
// MaxStorylineItems nodes. An oversized container is split into
// continuation containers, each in its own storyline; other items deeper
// than StorylineSplitDepth stand alone.
func (b *builder) group(s *section) error {
	limits := b.cfg.limits
	var cur []ContentNode
	count := 0
	flush := func() error {
		if len(cur) == 0 {
			return nil
		}
		if err := b.addStory(s, cur); err != nil {
			return err
		}
		cur, count = nil, 0
		return nil
	}
	for _, item := range s.items {
		n, depth := measure(item)
		c, isContainer := item.(*ContainerNode)
		switch {
		case n > limits.MaxStorylineItems && isContainer && len(c.Children) > 0:
			if err := flush(); err != nil {
				return err
			}
			parts := splitContainer(c, limits.MaxStorylineItems)
			b.log.Debug().Str("section", s.path).Int("nodes", n).Int("parts", len(parts)).Msg("splitting container across storylines")
			for _, p := range parts {
				if err := b.addStory(s, []ContentNode{p}); err != nil {
					return err
				}
			}
		case depth > limits.StorylineSplitDepth:
			if err := flush(); err != nil {
				return err
			}
			b.log.Debug().Str("section", s.path).Int("depth", depth).Msg("isolating deep item in its own storyline")
			if err := b.addStory(s, []ContentNode{item}); err != nil {
				return err
			}
		default:
			if count > 0 && count+n > limits.MaxStorylineItems {
				if err := flush(); err != nil {
					return err
				}
			}
			cur = append(cur, item)
			count += n
		}
	}
	return flush()
}

// splitContainer distributes c's children over c and continuation clones of
// c so each part holds at most limit nodes. Oversized child containers are
// split the same way, so every part repeats the wrapper path down to the
// split point. A part exceeds limit only when the nesting itself is deeper
// than limit.
func splitContainer(c *ContainerNode, limit int) []*ContainerNode {
	budget := max(limit-1, 1)
	var parts []*ContainerNode
	var cur []ContentNode
	used := 0
	cut := func() {
		if len(cur) == 0 {
			return
		}
		p := c
		if len(parts) > 0 {
			p = &ContainerNode{Type: c.Type, Style: c.Style, ListStyle: c.ListStyle}
		}
		p.Children = cur
		parts = append(parts, p)
		cur, used = nil, 0
	}
	for _, k := range c.Children {
		n, _ := measure(k)
		if kc, ok := k.(*ContainerNode); ok && n > budget && len(kc.Children) > 0 {
			cut()
			subs := splitContainer(kc, budget)
			for _, sub := range subs[:len(subs)-1] {
				cur = []ContentNode{sub}
				cut()
			}
			last := subs[len(subs)-1]
			cur = []ContentNode{last}
			used, _ = measure(last)
			continue
		}
		if used > 0 && used+n > budget {
			cut()
		}
		cur = append(cur, k)
		used += n
	}
	cut()
	return parts
}

func (b *builder) addStory(s *section, items []ContentNode) error {
	var text string
	if s.cover != nil {
		text = "cover-story"
	} else {
		b.stories++
		text = "story-" + strconv.Itoa(b.stories)
	}
	name, err := b.table.Intern(text)
	if err != nil {
		return err
	}
	s.stories = append(s.stories, &story{name: name, items: items})
	return nil
}

// assignPositions numbers page templates and content nodes in reading
// order, pre-order within each storyline. Text without inline runs gets
// role 2 when it opens its section and 3 otherwise.
func (b *builder) assignPositions() {
	for _, s := range b.sections {
		first := true
		for _, st := range s.stories {
			st.eid = b.eid()
			s.eids = append(s.eids, st.eid)
			for _, item := range st.items {
				walkNodes(item, func(n ContentNode) {
					eid := b.eid()
					switch n := n.(type) {
					case *ContainerNode:
						n.EID = eid
					case *TextNode:
						n.EID = eid
						if len(n.Runs) == 0 {
							n.Role = 3
							if first {
								n.Role = 2
							}
						}
					case *ImageNode:
						n.EID = eid
					}
					first = false
					s.eids = append(s.eids, eid)
				})
			}
		}
	}
}

func (b *builder) eid() int64 {
	e := b.nextEID
	b.nextEID++
	return e
}

// emit produces the fragments in container order and freezes the symbol
// table and style cache.
func (b *builder) emit(containerID string) ([]Fragment, error) {
	anchors, err := b.anchorFragments()
	if err != nil {
		return nil, err
	}
	aux, err := b.auxiliaryFragments()
	if err != nil {
		return nil, err
	}
	nav, err := b.navigationFragment()
	if err != nil {
		return nil, err
	}
	frags := []Fragment{
		contentFeaturesFragment(),
		b.bookMetadataFragment(containerID),
		b.metadataFragment(),
		b.documentDataFragment(),
		nav,
	}
	frags = append(frags, b.sectionFragments()...)
	frags = append(frags, b.storyFragments()...)
	frags = append(frags, b.textFragments()...)
	frags = append(frags, b.styleFragments()...)
	frags = append(frags, anchors...)
	frags = append(frags, aux...)
	frags = append(frags, b.resourceFragments()...)
	spans := b.spans()
	frags = append(frags,
		b.positionMapFragment(),
		b.positionIDMapFragment(spans),
		b.locationMapFragment(spans),
	)
	frags = append(frags, b.entityMapFragment(containerID, frags))

	b.table.Freeze()
	if err := b.styles.Freeze(); err != nil {
		return nil, err
	}
	return frags, nil
}
