// Package xhtml loads XHTML chapter documents as kfx sections.
//
// Block elements map onto block kinds: p to paragraphs, h1-h6 to headings,
// img to images, ul and ol to lists, and the sectioning elements (div,
// section, blockquote and similar) to containers. Inline formatting (b, i,
// em, strong, u, s, sub, sup, span with a style attribute, a with an href)
// becomes non-overlapping spans over the collapsed paragraph text.
package xhtml

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antchfx/xmlquery"

	"github.com/logicossoftware/go-kfx"
	"github.com/logicossoftware/go-kfx/style"
)

// ErrNoBody is returned for documents without a body element.
var ErrNoBody = errors.New("xhtml: document has no body")

// Chapter is one loaded document.
type Chapter struct {
	Section *kfx.Section
	// Images lists the distinct img src values in document order. Image
	// blocks reference them as resource ids.
	Images []string
}

// ParseFile loads the chapter stored at path.
func ParseFile(path string) (*Chapter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ch, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ch, nil
}

// Parse loads a chapter from r. The section title is the document title,
// or the text of the first heading when the title is empty.
func Parse(r io.Reader) (*Chapter, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("xhtml: parse: %w", err)
	}
	body := xmlquery.FindOne(doc, "//*[local-name()='body']")
	if body == nil {
		return nil, ErrNoBody
	}
	l := &loader{seen: make(map[string]bool)}
	sec := &kfx.Section{ID: body.SelectAttr("id")}
	if t := xmlquery.FindOne(doc, "//*[local-name()='head']/*[local-name()='title']"); t != nil {
		sec.Title = collapse(t.InnerText())
	}
	sec.Blocks = l.blocks(body)
	if sec.Title == "" {
		sec.Title = firstHeading(sec.Blocks)
	}
	return &Chapter{Section: sec, Images: l.images}, nil
}

func firstHeading(blocks []*kfx.Block) string {
	stack := slices.Clone(blocks)
	slices.Reverse(stack)
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if b.Kind == kfx.BlockHeading {
			return b.Text
		}
		for i := len(b.Children) - 1; i >= 0; i-- {
			stack = append(stack, b.Children[i])
		}
	}
	return ""
}

var containerTags = map[string]bool{
	"div": true, "section": true, "blockquote": true, "article": true,
	"aside": true, "figure": true, "header": true, "footer": true,
	"nav": true, "main": true, "figcaption": true, "center": true,
}

var skippedTags = map[string]bool{
	"script": true, "style": true, "head": true, "hr": true,
}

type loader struct {
	images []string
	seen   map[string]bool
}

// blocks converts the children of parent. Runs of inline content between
// block elements become anonymous paragraphs.
func (l *loader) blocks(parent *xmlquery.Node) []*kfx.Block {
	var out []*kfx.Block
	var pending []*xmlquery.Node
	flush := func() {
		if len(pending) > 0 {
			out = append(out, l.textBlocks(kfx.BlockParagraph, 0, "", nil, pending)...)
			pending = nil
		}
	}
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.TextNode, xmlquery.CharDataNode:
			pending = append(pending, c)
			continue
		case xmlquery.ElementNode:
		default:
			continue
		}
		tag := strings.ToLower(c.Data)
		switch {
		case skippedTags[tag]:
		case tag == "p":
			flush()
			out = append(out, l.textBlocks(kfx.BlockParagraph, 0, c.SelectAttr("id"), attrStyle(c), children(c))...)
		case len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6':
			flush()
			level, _ := strconv.Atoi(tag[1:])
			out = append(out, l.textBlocks(kfx.BlockHeading, level, c.SelectAttr("id"), attrStyle(c), children(c))...)
		case tag == "img":
			flush()
			if img := l.image(c); img != nil {
				out = append(out, img)
			}
		case tag == "ul" || tag == "ol":
			flush()
			if list := l.list(c, tag == "ol"); list != nil {
				out = append(out, list)
			}
		case containerTags[tag]:
			flush()
			if kids := l.blocks(c); len(kids) > 0 {
				out = append(out, &kfx.Block{
					Kind:     kfx.BlockContainer,
					ID:       c.SelectAttr("id"),
					Style:    attrStyle(c),
					Children: kids,
				})
			}
		default:
			pending = append(pending, c)
		}
	}
	flush()
	return out
}

func children(n *xmlquery.Node) []*xmlquery.Node {
	var out []*xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

func (l *loader) list(n *xmlquery.Node, ordered bool) *kfx.Block {
	list := &kfx.Block{Kind: kfx.BlockList, ID: n.SelectAttr("id"), Ordered: ordered, Style: attrStyle(n)}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode || strings.ToLower(c.Data) != "li" {
			continue
		}
		if kids := l.blocks(c); len(kids) > 0 {
			list.Children = append(list.Children, &kfx.Block{
				Kind:     kfx.BlockListItem,
				ID:       c.SelectAttr("id"),
				Style:    attrStyle(c),
				Children: kids,
			})
		}
	}
	if len(list.Children) == 0 {
		return nil
	}
	return list
}

func (l *loader) image(n *xmlquery.Node) *kfx.Block {
	src := strings.TrimSpace(n.SelectAttr("src"))
	if src == "" {
		return nil
	}
	if !l.seen[src] {
		l.seen[src] = true
		l.images = append(l.images, src)
	}
	return &kfx.Block{
		Kind:  kfx.BlockImage,
		ID:    n.SelectAttr("id"),
		Src:   src,
		Alt:   n.SelectAttr("alt"),
		Style: attrStyle(n),
	}
}

// textBlocks builds one text block from inline nodes, followed by any
// images found among them. A block whose collapsed text is empty is
// dropped; its id moves to the first image, if any.
func (l *loader) textBlocks(kind kfx.BlockKind, level int, id string, decls []style.Declaration, nodes []*xmlquery.Node) []*kfx.Block {
	in := &inline{l: l, space: true}
	for _, n := range nodes {
		in.node(n, nil, "")
	}
	text, spans := in.finish()
	var out []*kfx.Block
	if text != "" {
		out = append(out, &kfx.Block{Kind: kind, ID: id, Level: level, Text: text, Spans: spans, Style: decls})
		id = ""
	}
	if len(in.imgs) > 0 && in.imgs[0].ID == "" {
		in.imgs[0].ID = id
	}
	return append(out, in.imgs...)
}

// inline accumulates whitespace-collapsed text and the formatting of each
// text segment.
type inline struct {
	l     *loader
	sb    strings.Builder
	n     int  // runes written
	space bool // nothing written yet, or the last rune is a space
	spans []kfx.Span
	imgs  []*kfx.Block
}

func (in *inline) node(n *xmlquery.Node, decls []style.Declaration, href string) {
	switch n.Type {
	case xmlquery.TextNode, xmlquery.CharDataNode:
		in.text(n.Data, decls, href)
		return
	case xmlquery.ElementNode:
	default:
		return
	}
	tag := strings.ToLower(n.Data)
	switch {
	case skippedTags[tag]:
		return
	case tag == "br":
		in.text(" ", decls, href)
		return
	case tag == "img":
		if img := in.l.image(n); img != nil {
			in.imgs = append(in.imgs, img)
		}
		return
	}
	if extra := append(tagStyle(tag), attrStyle(n)...); len(extra) > 0 {
		decls = append(slices.Clip(decls), extra...)
	}
	if tag == "a" {
		if h := normalizeHref(n.SelectAttr("href")); h != "" {
			href = h
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		in.node(c, decls, href)
	}
}

func (in *inline) text(s string, decls []style.Declaration, href string) {
	start := in.n
	for _, r := range s {
		if unicode.IsSpace(r) {
			if in.space {
				continue
			}
			r = ' '
			in.space = true
		} else {
			in.space = false
		}
		in.sb.WriteRune(r)
		in.n++
	}
	if in.n == start || (len(decls) == 0 && href == "") {
		return
	}
	sp := kfx.Span{Start: start, End: in.n, Style: decls, Href: href}
	if k := len(in.spans) - 1; k >= 0 && in.spans[k].End == start && in.spans[k].Href == href && slices.Equal(in.spans[k].Style, decls) {
		in.spans[k].End = in.n
		return
	}
	in.spans = append(in.spans, sp)
}

// finish trims the trailing space and clamps spans to the final text.
func (in *inline) finish() (string, []kfx.Span) {
	text := in.sb.String()
	if strings.HasSuffix(text, " ") {
		text = text[:len(text)-1]
	}
	n := utf8.RuneCountInString(text)
	var spans []kfx.Span
	for _, sp := range in.spans {
		sp.End = min(sp.End, n)
		if sp.End > sp.Start {
			spans = append(spans, sp)
		}
	}
	return text, spans
}

func tagStyle(tag string) []style.Declaration {
	switch tag {
	case "b", "strong":
		return []style.Declaration{{Property: "font-weight", Value: "bold"}}
	case "i", "em", "cite", "var", "dfn":
		return []style.Declaration{{Property: "font-style", Value: "italic"}}
	case "u", "ins":
		return []style.Declaration{{Property: "text-decoration", Value: "underline"}}
	case "s", "strike", "del":
		return []style.Declaration{{Property: "text-decoration", Value: "line-through"}}
	case "sub":
		return []style.Declaration{{Property: "vertical-align", Value: "sub"}}
	case "sup":
		return []style.Declaration{{Property: "vertical-align", Value: "super"}}
	case "code", "kbd", "samp", "tt":
		return []style.Declaration{{Property: "font-family", Value: "monospace"}}
	}
	return nil
}

func attrStyle(n *xmlquery.Node) []style.Declaration {
	return style.ParseInline(n.SelectAttr("style"))
}

// normalizeHref keeps external URLs and reduces links into other chapter
// files to their fragment, since element ids are unique across the book.
// Links to a whole file carry no target and are dropped.
func normalizeHref(h string) string {
	h = strings.TrimSpace(h)
	lower := strings.ToLower(h)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "mailto:") {
		return h
	}
	if _, frag, ok := strings.Cut(h, "#"); ok && frag != "" {
		return "#" + frag
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
