package kfx

import (
	"fmt"

	"github.com/logicossoftware/go-kfx/ion"
	"github.com/logicossoftware/go-kfx/symtab"
)

// ContentNode is one storyline item. The set of implementations is closed:
// *ContainerNode, *TextNode and *ImageNode.
type ContentNode interface {
	// Position returns the node's position id (EID).
	Position() int64
	contentNode()
}

// ContainerNode groups children. Type is $270 (container), $276 (list) or
// $277 (list item).
type ContainerNode struct {
	Type      ion.SymbolID
	Style     ion.SymbolID
	ListStyle ion.SymbolID
	EID       int64
	Children  []ContentNode
}

// TextNode references entry Index of the $145 text fragment Content.
type TextNode struct {
	Content ion.SymbolID
	Index   int
	Style   ion.SymbolID
	Runs    []InlineRun
	EID     int64
	// Length is the text length in runes; it is not written to the item.
	Length int
	// Role is written as $790 on items without inline runs.
	Role int
}

// ImageNode references a $164 resource.
type ImageNode struct {
	Resource ion.SymbolID
	Alt      string
	Style    ion.SymbolID
	EID      int64
}

func (n *ContainerNode) Position() int64 { return n.EID }
func (n *TextNode) Position() int64      { return n.EID }
func (n *ImageNode) Position() int64     { return n.EID }

func (*ContainerNode) contentNode() {}
func (*TextNode) contentNode()      {}
func (*ImageNode) contentNode()     {}

// InlineRun applies an override style to runes [Offset, Offset+Length) of a
// text item. Anchor, when set, links the run.
type InlineRun struct {
	Offset int
	Length int
	Style  ion.SymbolID
	Anchor ion.SymbolID
}

// validateRuns checks that runs are ordered by offset, non-overlapping and
// inside a text of textLen runes.
func validateRuns(runs []InlineRun, textLen int) error {
	end := 0
	for i, r := range runs {
		if r.Length <= 0 {
			return fmt.Errorf("run %d is empty", i)
		}
		if r.Offset < end {
			return fmt.Errorf("run %d at %d overlaps or precedes the previous run ending at %d", i, r.Offset, end)
		}
		if r.Offset+r.Length > textLen {
			return fmt.Errorf("run %d ends at %d past text length %d", i, r.Offset+r.Length, textLen)
		}
		end = r.Offset + r.Length
	}
	return nil
}

func (r InlineRun) value() ion.Struct {
	s := ion.NewStruct(
		ion.F(symtab.Offset, ion.Int(r.Offset)),
		ion.F(symtab.Length, ion.Int(r.Length)),
	)
	if r.Style != 0 {
		s.Fields = append(s.Fields, ion.F(symtab.Style, ion.Symbol(r.Style)))
	}
	if r.Anchor != 0 {
		s.Fields = append(s.Fields, ion.F(symtab.LinkTo, ion.Symbol(r.Anchor)))
	}
	return s
}

func (n *TextNode) value() ion.Struct {
	s := ion.NewStruct(
		ion.F(symtab.Type, ion.Symbol(symtab.Text)),
		ion.F(symtab.Content, ion.NewStruct(
			ion.F(symtab.ID, ion.Symbol(n.Content)),
			ion.F(symtab.TextOffset, ion.Int(n.Index)),
		)),
	)
	if n.Style != 0 {
		s.Fields = append(s.Fields, ion.F(symtab.Style, ion.Symbol(n.Style)))
	}
	if len(n.Runs) > 0 {
		runs := make(ion.List, len(n.Runs))
		for i, r := range n.Runs {
			runs[i] = r.value()
		}
		s.Fields = append(s.Fields, ion.F(symtab.StyleEvents, runs))
	} else if n.Role != 0 {
		s.Fields = append(s.Fields, ion.F(symtab.ContentRole, ion.Int(n.Role)))
	}
	s.Fields = append(s.Fields, ion.F(symtab.EID, ion.Int(n.EID)))
	return s
}

func (n *ImageNode) value() ion.Struct {
	s := ion.NewStruct(
		ion.F(symtab.Type, ion.Symbol(symtab.Image)),
		ion.F(symtab.ResourceName, ion.Symbol(n.Resource)),
		ion.F(symtab.AltText, ion.String(n.Alt)),
	)
	if n.Style != 0 {
		s.Fields = append(s.Fields, ion.F(symtab.Style, ion.Symbol(n.Style)))
	}
	s.Fields = append(s.Fields, ion.F(symtab.EID, ion.Int(n.EID)))
	return s
}

// value returns the container item holding the already converted children.
func (n *ContainerNode) value(children ion.List) ion.Struct {
	s := ion.NewStruct(ion.F(symtab.Type, ion.Symbol(n.Type)))
	if n.ListStyle != 0 {
		s.Fields = append(s.Fields, ion.F(symtab.ListStyle, ion.Symbol(n.ListStyle)))
	}
	if n.Style != 0 {
		s.Fields = append(s.Fields, ion.F(symtab.Style, ion.Symbol(n.Style)))
	}
	s.Fields = append(s.Fields,
		ion.F(symtab.ContentList, children),
		ion.F(symtab.EID, ion.Int(n.EID)),
	)
	return s
}

// nodeValue converts a node tree to its Ion item without recursion: a
// post-order pass over an explicit stack fills each container's children
// before the container itself is closed.
func nodeValue(root ContentNode) ion.Value {
	type frame struct {
		node  *ContainerNode
		next  int
		items ion.List
	}
	leaf := func(n ContentNode) ion.Value {
		switch n := n.(type) {
		case *TextNode:
			return n.value()
		case *ImageNode:
			return n.value()
		}
		return nil
	}
	c, ok := root.(*ContainerNode)
	if !ok {
		return leaf(root)
	}
	stack := []*frame{{node: c, items: make(ion.List, 0, len(c.Children))}}
	var result ion.Value
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next < len(top.node.Children) {
			child := top.node.Children[top.next]
			top.next++
			if cc, ok := child.(*ContainerNode); ok {
				stack = append(stack, &frame{node: cc, items: make(ion.List, 0, len(cc.Children))})
				continue
			}
			top.items = append(top.items, leaf(child))
			continue
		}
		v := top.node.value(top.items)
		stack = stack[:len(stack)-1]
		if len(stack) == 0 {
			result = v
			break
		}
		parent := stack[len(stack)-1]
		parent.items = append(parent.items, v)
	}
	return result
}

// walkNodes visits root and its descendants in document order.
func walkNodes(root ContentNode, visit func(ContentNode)) {
	stack := []ContentNode{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(n)
		if c, ok := n.(*ContainerNode); ok {
			for i := len(c.Children) - 1; i >= 0; i-- {
				stack = append(stack, c.Children[i])
			}
		}
	}
}
