package kfx

import (
	"errors"
	"strings"
	"testing"

	"github.com/logicossoftware/go-kfx/ion"
	"github.com/logicossoftware/go-kfx/style"
	"github.com/logicossoftware/go-kfx/symtab"
)

func bookOf(blocks ...*Block) *Book {
	return &Book{
		Metadata: Metadata{Title: "T"},
		Sections: []*Section{{Title: "S", Blocks: blocks}},
	}
}

func TestBuildRejectsMalformedInput(t *testing.T) {
	shared := para("shared")
	cases := []struct {
		name string
		book *Book
		path string
	}{
		{"nil book", nil, ""},
		{"no title", &Book{Sections: []*Section{{Title: "S"}}}, "metadata.title"},
		{"no sections", &Book{Metadata: Metadata{Title: "T"}}, "sections"},
		{"nil section", &Book{Metadata: Metadata{Title: "T"}, Sections: []*Section{nil}}, "sections[0]"},
		{"empty untitled section", &Book{Metadata: Metadata{Title: "T"}, Sections: []*Section{{}}}, "sections[0]"},
		{"nil block", bookOf(nil), "sections[0].blocks[0]"},
		{"empty paragraph", bookOf(&Block{Kind: BlockParagraph}), "sections[0].blocks[0]"},
		{"paragraph with children", bookOf(&Block{Kind: BlockParagraph, Text: "x", Children: []*Block{para("y")}}), "sections[0].blocks[0]"},
		{"heading level 7", bookOf(&Block{Kind: BlockHeading, Level: 7, Text: "x"}), "sections[0].blocks[0]"},
		{"image without src", bookOf(&Block{Kind: BlockImage}), "sections[0].blocks[0]"},
		{"unknown image", bookOf(&Block{Kind: BlockImage, Src: "nope"}), "sections[0].blocks[0]"},
		{"empty container", bookOf(&Block{Kind: BlockContainer}), "sections[0].blocks[0]"},
		{"container with text", bookOf(&Block{Kind: BlockContainer, Text: "x", Children: []*Block{para("y")}}), "sections[0].blocks[0]"},
		{"paragraph in list", bookOf(&Block{Kind: BlockList, Children: []*Block{para("x")}}), "sections[0].blocks[0].children[0]"},
		{"orphan list item", bookOf(&Block{Kind: BlockListItem, Children: []*Block{para("x")}}), "sections[0].blocks[0]"},
		{"unknown kind", bookOf(&Block{Kind: 99, Text: "x"}), "sections[0].blocks[0]"},
		{"shared block", bookOf(shared, &Block{Kind: BlockContainer, Children: []*Block{shared}}), "sections[0].blocks[1].children[0]"},
		{"span past end", bookOf(&Block{Kind: BlockParagraph, Text: "abc", Spans: []Span{{Start: 1, End: 4, Style: []style.Declaration{bold}}}}), "sections[0].blocks[0].spans[0]"},
		{"empty span", bookOf(&Block{Kind: BlockParagraph, Text: "abc", Spans: []Span{{Start: 2, End: 2}}}), "sections[0].blocks[0].spans[0]"},
		{"overlapping spans", bookOf(&Block{Kind: BlockParagraph, Text: "abcdef", Spans: []Span{
			{Start: 0, End: 4, Style: []style.Declaration{bold}},
			{Start: 2, End: 5, Style: []style.Declaration{italic}},
		}}), "sections[0].blocks[0]"},
		{"bad href", bookOf(&Block{Kind: BlockParagraph, Text: "abc", Spans: []Span{{Start: 0, End: 1, Href: "ftp://x"}}}), "sections[0].blocks[0].spans[0]"},
		{"dangling link", bookOf(&Block{Kind: BlockParagraph, Text: "abc", Spans: []Span{{Start: 0, End: 1, Href: "#missing"}}}), "sections[0].blocks[0].spans[0]"},
		{"duplicate id", bookOf(&Block{Kind: BlockParagraph, ID: "a", Text: "x"}, &Block{Kind: BlockParagraph, ID: "a", Text: "y"}), "sections[0].blocks[1]"},
		{"invalid utf8", bookOf(para("bad \xff")), "sections[0].blocks[0]"},
		{"bad language", &Book{Metadata: Metadata{Title: "T", Language: "english!"}, Sections: []*Section{{Title: "S"}}}, "metadata.language"},
		{"unknown cover", &Book{Metadata: Metadata{Title: "T"}, CoverImage: "c", Sections: []*Section{{Title: "S"}}}, "cover_image"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(tc.book)
			if !errors.Is(err, ErrMalformedInputTree) {
				t.Fatalf("err = %v, want ErrMalformedInputTree", err)
			}
			var me *MalformedInputError
			if !errors.As(err, &me) {
				t.Fatalf("err = %T, want *MalformedInputError", err)
			}
			if me.Path != tc.path {
				t.Fatalf("path = %q, want %q", me.Path, tc.path)
			}
		})
	}
}

func TestSectionCycleRejected(t *testing.T) {
	s := &Section{Title: "loop"}
	s.Children = []*Section{s}
	_, err := Build(&Book{Metadata: Metadata{Title: "T"}, Sections: []*Section{s}})
	if !errors.Is(err, ErrMalformedInputTree) {
		t.Fatalf("err = %v", err)
	}
}

func TestTreeDepthLimit(t *testing.T) {
	root := &Block{Kind: BlockContainer}
	cur := root
	for i := 0; i < 10; i++ {
		next := &Block{Kind: BlockContainer}
		cur.Children = []*Block{next}
		cur = next
	}
	cur.Kind = BlockParagraph
	cur.Text = "deep"
	if _, err := Build(bookOf(root), WithLimits(Limits{MaxTreeDepth: 5})); !errors.Is(err, ErrMalformedInputTree) {
		t.Fatalf("err = %v", err)
	}
	if _, err := Build(bookOf(root), WithLimits(Limits{MaxTreeDepth: 11})); err != nil {
		t.Fatal(err)
	}
	if _, err := Build(bookOf(root), WithLimits(Limits{MaxTreeDepth: -1})); err != nil {
		t.Fatalf("negative depth limit: %v", err)
	}
}

func styleValue(res *Result, id, prop ion.SymbolID) (ion.Value, bool) {
	f, ok := res.Styles.Lookup(id)
	if !ok {
		return nil, false
	}
	for _, p := range f.Props {
		if p.ID == prop {
			return p.Value, true
		}
	}
	return nil, false
}

func TestBlocklessSectionGetsHeading(t *testing.T) {
	res := mustBuild(t, &Book{
		Metadata: Metadata{Title: "T"},
		Sections: []*Section{{Title: "Only a title"}},
	})
	n, ok := storyAt(t, res, 0).items[0].(*TextNode)
	if !ok {
		t.Fatal("first item is not text")
	}
	c, _ := mustContainer(t, res)
	if got := c.Text(); len(got) != 1 || got[0] != "Only a title" {
		t.Fatalf("text = %q", got)
	}
	if w, _ := styleValue(res, n.Style, symtab.FontWeight); w != ion.Symbol(symtab.Bold) {
		t.Fatalf("heading weight = %v", w)
	}
}

func TestHeadingOwnStyleOverridesImplicit(t *testing.T) {
	normal := style.Declaration{Property: "font-weight", Value: "normal"}
	res := mustBuild(t, bookOf(
		&Block{Kind: BlockHeading, Level: 2, Text: "plain", Style: []style.Declaration{normal}},
		&Block{Kind: BlockHeading, Level: 2, Text: "bold"},
	))
	st := storyAt(t, res, 0)
	plain := st.items[0].(*TextNode).Style
	strong := st.items[1].(*TextNode).Style
	if _, ok := styleValue(res, plain, symtab.FontWeight); ok {
		t.Fatal("font-weight: normal did not clear the heading weight")
	}
	if _, ok := styleValue(res, strong, symtab.FontWeight); !ok {
		t.Fatal("heading lost its implicit weight")
	}
	if _, ok := styleValue(res, plain, symtab.FontSize); !ok {
		t.Fatal("heading lost its implicit size")
	}
}

func TestStorylineSplitByCount(t *testing.T) {
	blocks := make([]*Block, 7)
	for i := range blocks {
		blocks[i] = para("p")
	}
	res := mustBuild(t, bookOf(blocks...), WithLimits(Limits{MaxStorylineItems: 3}))
	if res.Storylines != 3 {
		t.Fatalf("storylines = %d, want 3", res.Storylines)
	}
	for i, want := range []int{3, 3, 1} {
		if got := len(storyAt(t, res, i).items); got != want {
			t.Fatalf("storyline %d has %d items, want %d", i, got, want)
		}
	}
	if _, err := Verify(mustMarshal(t, res)); err != nil {
		t.Fatal(err)
	}
}

func TestStorylineSplitsOversizedContainer(t *testing.T) {
	list := &Block{Kind: BlockList}
	for i := 0; i < 10; i++ {
		list.Children = append(list.Children, &Block{Kind: BlockListItem, Children: []*Block{para("item")}})
	}
	res := mustBuild(t, bookOf(list), WithLimits(Limits{MaxStorylineItems: 5}))
	if res.Storylines != 5 {
		t.Fatalf("storylines = %d, want 5", res.Storylines)
	}
	for i := 0; i < 5; i++ {
		st := storyAt(t, res, i)
		c, ok := st.items[0].(*ContainerNode)
		if !ok || c.Type != symtab.List || len(c.Children) != 2 {
			t.Fatalf("storyline %d: %#v", i, st.items[0])
		}
	}
	c, _ := mustContainer(t, res)
	if got := len(c.Text()); got != 10 {
		t.Fatalf("text entries = %d, want 10", got)
	}
}

// checkStorylineSizes fails when a storyline holds more than limit nodes and
// returns the number of text entries across all storylines.
func checkStorylineSizes(t *testing.T, res *Result, limit int) int {
	t.Helper()
	texts := 0
	for i := 0; i < res.Storylines; i++ {
		total := 0
		for _, item := range storyAt(t, res, i).items {
			n, _ := measure(item)
			total += n
			walkNodes(item, func(n ContentNode) {
				if _, ok := n.(*TextNode); ok {
					texts++
				}
			})
		}
		if total > limit {
			t.Fatalf("storyline %d: %d nodes (limit %d)", i, total, limit)
		}
	}
	return texts
}

func TestStorylineSplitsNestedOversizedList(t *testing.T) {
	list := &Block{Kind: BlockList, Ordered: true}
	for i := 0; i < 300; i++ {
		list.Children = append(list.Children, &Block{Kind: BlockListItem, Children: []*Block{para("item")}})
	}
	wrapper := &Block{Kind: BlockContainer, Children: []*Block{list}}
	res := mustBuild(t, bookOf(wrapper), WithLimits(Limits{MaxStorylineItems: 100}))
	if res.Storylines < 7 {
		t.Fatalf("storylines = %d, want at least 7", res.Storylines)
	}
	if got := checkStorylineSizes(t, res, 100); got != 300 {
		t.Fatalf("text nodes = %d, want 300", got)
	}
	for i := 0; i < res.Storylines; i++ {
		outer, ok := storyAt(t, res, i).items[0].(*ContainerNode)
		if !ok || len(outer.Children) != 1 {
			t.Fatalf("storyline %d: wrapper %#v", i, storyAt(t, res, i).items[0])
		}
		if inner, ok := outer.Children[0].(*ContainerNode); !ok || inner.Type != symtab.List {
			t.Fatalf("storyline %d: missing list clone", i)
		}
	}
	if _, err := Verify(mustMarshal(t, res)); err != nil {
		t.Fatal(err)
	}
}

func TestStorylineSplitsDeepOversizedItem(t *testing.T) {
	inner := &Block{Kind: BlockContainer}
	for i := 0; i < 300; i++ {
		inner.Children = append(inner.Children, para("p"))
	}
	deep := inner
	for i := 0; i < 5; i++ {
		deep = &Block{Kind: BlockContainer, Children: []*Block{deep}}
	}
	res := mustBuild(t, bookOf(para("before"), deep), WithLimits(Limits{MaxStorylineItems: 100, StorylineSplitDepth: 3}))
	if res.Storylines < 4 {
		t.Fatalf("storylines = %d, want at least 4", res.Storylines)
	}
	if got := checkStorylineSizes(t, res, 100); got != 301 {
		t.Fatalf("text nodes = %d, want 301", got)
	}
	if _, err := Verify(mustMarshal(t, res)); err != nil {
		t.Fatal(err)
	}
}

func TestDeepItemGetsOwnStoryline(t *testing.T) {
	deep := &Block{Kind: BlockContainer, Children: []*Block{
		{Kind: BlockContainer, Children: []*Block{para("deep")}},
	}}
	res := mustBuild(t, bookOf(para("a"), deep, para("b")), WithLimits(Limits{StorylineSplitDepth: 2}))
	if res.Storylines != 3 {
		t.Fatalf("storylines = %d, want 3", res.Storylines)
	}
}

func TestTextChunking(t *testing.T) {
	res := mustBuild(t, bookOf(para("abcdef"), para("ghijkl"), para("mn"), para(strings.Repeat("z", 25))),
		WithLimits(Limits{MaxTextChunkChars: 10}))
	if res.TextChunks != 3 {
		t.Fatalf("chunks = %d, want 3", res.TextChunks)
	}
	st := storyAt(t, res, 0)
	want := []struct {
		chunk string
		index int
	}{{"content-1", 0}, {"content-2", 0}, {"content-2", 1}, {"content-3", 0}}
	for i, w := range want {
		n := st.items[i].(*TextNode)
		if res.Symbols.Name(n.Content) != w.chunk || n.Index != w.index {
			t.Fatalf("item %d -> %s[%d], want %s[%d]", i, res.Symbols.Name(n.Content), n.Index, w.chunk, w.index)
		}
	}
}

func TestPositionsAreSequential(t *testing.T) {
	res := mustBuild(t, sampleBook(t))
	want := int64(symtab.LocalMinID)
	for _, f := range res.Fragments {
		if f.Type != symtab.Section {
			continue
		}
		templates, _ := field[ion.List](f.Value.(ion.Struct), symtab.PageTemplates)
		for _, tv := range templates {
			eid, _ := field[ion.Int](tv.(ion.Struct), symtab.EID)
			if int64(eid) < want {
				t.Fatalf("page template position %d reused", eid)
			}
			want = int64(eid) + 1
		}
	}
	for _, f := range res.Fragments {
		if f.Type != symtab.DocumentData {
			continue
		}
		maxID, _ := field[ion.Int](f.Value.(ion.Struct), ion.SymMaxID)
		seen := map[int64]bool{}
		for _, pf := range res.Fragments {
			if pf.Type != symtab.PositionMap {
				continue
			}
			for _, sv := range pf.Value.(ion.List) {
				eids, _ := field[ion.List](sv.(ion.Struct), symtab.Contains)
				for _, e := range eids {
					id := int64(e.(ion.Int))
					if seen[id] {
						t.Fatalf("position %d listed twice", id)
					}
					seen[id] = true
				}
			}
		}
		if int64(len(seen)) != int64(maxID)-int64(symtab.LocalMinID)+1 {
			t.Fatalf("position map lists %d ids, max id %d", len(seen), maxID)
		}
		return
	}
	t.Fatal("no document data")
}

func TestContentRoles(t *testing.T) {
	res := mustBuild(t, bookOf(para("first"), para("second"),
		&Block{Kind: BlockParagraph, Text: "linked", Spans: []Span{{Start: 0, End: 6, Href: "mailto:a@b.c"}}}))
	st := storyAt(t, res, 0)
	for i, want := range []int{2, 3, 0} {
		if got := st.items[i].(*TextNode).Role; got != want {
			t.Fatalf("item %d role %d, want %d", i, got, want)
		}
	}
}

func TestLocationMapSpacing(t *testing.T) {
	res := mustBuild(t, bookOf(para(strings.Repeat("a", 250))))
	text := storyAt(t, res, 0).items[0].(*TextNode)
	for _, f := range res.Fragments {
		if f.Type != symtab.LocationMap {
			continue
		}
		outer := f.Value.(ion.List)[0].(ion.Struct)
		locs, _ := field[ion.List](outer, symtab.Locations)
		if len(locs) != 3 {
			t.Fatalf("locations = %d, want 3", len(locs))
		}
		for i, l := range locs {
			eid, _ := field[ion.Int](l.(ion.Struct), symtab.EID)
			off, _ := field[ion.Int](l.(ion.Struct), symtab.Offset)
			if int64(eid) != text.EID || int(off) != i*CharsPerLocation {
				t.Fatalf("location %d = (%d, %d)", i, eid, off)
			}
		}
		return
	}
	t.Fatal("no location map")
}

func TestPositionIDMapEndsWithTotal(t *testing.T) {
	res := mustBuild(t, bookOf(para("abcde"), para("fg")))
	for _, f := range res.Fragments {
		if f.Type != symtab.PositionIDMap {
			continue
		}
		list := f.Value.(ion.List)
		last := list[len(list)-1].(ion.Struct)
		pid, _ := field[ion.Int](last, symtab.PID)
		eid, _ := field[ion.Int](last, symtab.PositionEID)
		if pid != 8 || eid != 0 {
			t.Fatalf("end entry = (%d, %d), want (8, 0)", pid, eid)
		}
		return
	}
	t.Fatal("no position id map")
}

func TestAnchorsResolve(t *testing.T) {
	res := mustBuild(t, sampleBook(t))
	var target int64
	for _, f := range res.Fragments {
		if f.Type != symtab.Storyline {
			continue
		}
		walkIon(f.Value, func(v ion.Value) {
			st, ok := v.(ion.Struct)
			if !ok {
				return
			}
			ref, ok := field[ion.Struct](st, symtab.Content)
			if !ok {
				return
			}
			name, _ := field[ion.Symbol](ref, symtab.ID)
			idx, _ := field[ion.Int](ref, symtab.TextOffset)
			if res.Symbols.Name(ion.SymbolID(name)) == "content-2" && idx == 0 {
				eid, _ := field[ion.Int](st, symtab.EID)
				target = int64(eid)
			}
		})
	}
	var internal, external int
	for _, f := range res.Fragments {
		if f.Type != symtab.Anchor {
			continue
		}
		st := f.Value.(ion.Struct)
		if uri, ok := field[ion.String](st, symtab.URI); ok {
			if uri != "https://example.com" {
				t.Fatalf("uri = %q", uri)
			}
			external++
			continue
		}
		pos, _ := field[ion.Struct](st, symtab.Position)
		eid, _ := field[ion.Int](pos, symtab.EID)
		if int64(eid) != target {
			t.Fatalf("anchor points at %d, want %d", eid, target)
		}
		internal++
	}
	if internal != 1 || external != 1 {
		t.Fatalf("anchors internal=%d external=%d", internal, external)
	}
}

func TestNavigationMirrorsSections(t *testing.T) {
	res := mustBuild(t, sampleBook(t))
	for _, f := range res.Fragments {
		if f.Type != symtab.BookNavigation {
			continue
		}
		ro := f.Value.(ion.List)[0].(ion.Struct)
		containers, _ := field[ion.List](ro, symtab.NavContainers)
		if len(containers) != 2 {
			t.Fatalf("nav containers = %d", len(containers))
		}
		toc := containers[0].(ion.Annotated).Value.(ion.Struct)
		entries, _ := field[ion.List](toc, symtab.Entries)
		labels := navLabels(entries)
		want := []string{"Chapter One", "  Part A", "Chapter Two"}
		if strings.Join(labels, "|") != strings.Join(want, "|") {
			t.Fatalf("toc = %q, want %q", labels, want)
		}
		marks := containers[1].(ion.Annotated).Value.(ion.Struct)
		lm, _ := field[ion.List](marks, symtab.Entries)
		if len(lm) != 2 {
			t.Fatalf("landmarks = %d, want cover and bodymatter", len(lm))
		}
		return
	}
	t.Fatal("no navigation")
}

func navLabels(entries ion.List) []string {
	var out []string
	type frame struct {
		list   ion.List
		indent string
	}
	stack := []frame{{entries, ""}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if len(f.list) == 0 {
			continue
		}
		e := f.list[0].(ion.Annotated).Value.(ion.Struct)
		stack = append(stack, frame{f.list[1:], f.indent})
		rep, _ := field[ion.Struct](e, symtab.Representation)
		label, _ := field[ion.String](rep, symtab.Label)
		out = append(out, f.indent+string(label))
		if kids, ok := field[ion.List](e, symtab.Entries); ok {
			stack = append(stack, frame{kids, f.indent + "  "})
		}
	}
	return out
}

func TestEntityMapListsEveryFragment(t *testing.T) {
	res := mustBuild(t, sampleBook(t))
	last := res.Fragments[len(res.Fragments)-1]
	if last.Type != symtab.ContainerEntityMap {
		t.Fatalf("last fragment is %s", res.Symbols.Name(last.Type))
	}
	st := last.Value.(ion.Struct)
	conts, _ := field[ion.List](st, symtab.ContainerList)
	names, _ := field[ion.List](conts[0].(ion.Struct), symtab.Contains)
	var named int
	for _, f := range res.Fragments {
		if !f.Singleton() {
			named++
		}
	}
	if len(names) != named {
		t.Fatalf("entity map lists %d of %d fragments", len(names), named)
	}
	deps, ok := field[ion.List](st, symtab.EntityDependencies)
	if !ok || len(deps) == 0 {
		t.Fatal("no dependencies for a book with images")
	}
}

func TestBuildDoesNotModifyBook(t *testing.T) {
	book := sampleBook(t)
	before := book.Sections[0].Blocks[3].Children[0].Children[0].Text
	mustBuild(t, book)
	mustBuild(t, book)
	if book.Sections[0].Blocks[3].Children[0].Children[0].Text != before {
		t.Fatal("book modified")
	}
}

func TestContainerIDOption(t *testing.T) {
	id := "CR!" + strings.Repeat("A", 28)
	res := mustBuild(t, sampleBook(t), WithContainerID(id))
	if res.ContainerID != id {
		t.Fatalf("container id %q", res.ContainerID)
	}
	if _, err := Build(sampleBook(t), WithContainerID("CR!short")); !errors.Is(err, ErrMalformedInputTree) {
		t.Fatalf("err = %v", err)
	}
	a := mustBuild(t, sampleBook(t), WithRandomContainerID(true))
	b := mustBuild(t, sampleBook(t), WithRandomContainerID(true))
	if a.ContainerID == b.ContainerID {
		t.Fatal("random container ids repeat")
	}
}

func mustMarshal(t testing.TB, res *Result) []byte {
	t.Helper()
	data, err := res.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	return data
}
