package kfx

import (
	"fmt"
	"strings"

	"github.com/logicossoftware/go-kfx/style"
)

const (
	ContainerVersion uint16 = 2
	EntityVersion    uint16 = 1

	containerHeaderSize = 18
	indexRecordSize     = 24
	entityHeaderSize    = 10

	// DefaultChunkSize is the bcChunkSize advertised in container info.
	DefaultChunkSize = 4096
	// CharsPerLocation is the reading-location granularity of $550.
	CharsPerLocation = 110
)

// ContainerMagic and EntityMagic open a container and each entity payload.
var (
	ContainerMagic = [4]byte{'C', 'O', 'N', 'T'}
	EntityMagic    = [4]byte{'E', 'N', 'T', 'Y'}
)

// EntityID addresses one entity in the index table. It is numerically the
// fragment id's symbol, or SingletonEntityID for root fragments.
type EntityID uint32

// SingletonEntityID is the id shared by all fragments that exist once per
// container ($348).
const SingletonEntityID EntityID = 348

type BlockKind uint8

const (
	BlockParagraph BlockKind = iota + 1
	BlockHeading
	BlockImage
	BlockContainer
	BlockList
	BlockListItem
)

var blockKindNames = map[BlockKind]string{
	BlockParagraph: "paragraph",
	BlockHeading:   "heading",
	BlockImage:     "image",
	BlockContainer: "container",
	BlockList:      "list",
	BlockListItem:  "list-item",
}

func (k BlockKind) String() string {
	if s, ok := blockKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("BlockKind(%d)", uint8(k))
}

func (k BlockKind) MarshalText() ([]byte, error) {
	s, ok := blockKindNames[k]
	if !ok {
		return nil, fmt.Errorf("kfx: unknown block kind %d", uint8(k))
	}
	return []byte(s), nil
}

func (k *BlockKind) UnmarshalText(b []byte) error {
	name := strings.ToLower(string(b))
	for kind, s := range blockKindNames {
		if s == name {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("kfx: unknown block kind %q", string(b))
}

// leaf reports whether blocks of kind k carry text or media rather than
// children.
func (k BlockKind) leaf() bool {
	return k == BlockParagraph || k == BlockHeading || k == BlockImage
}

// Metadata is the descriptive book metadata written to $490.
type Metadata struct {
	Title       string   `json:"title"`
	Authors     []string `json:"authors,omitempty"`
	Language    string   `json:"language,omitempty"`
	Publisher   string   `json:"publisher,omitempty"`
	Description string   `json:"description,omitempty"`
	ASIN        string   `json:"asin,omitempty"`
	// BookID seeds the content id and, unless overridden, the container id.
	BookID string `json:"book_id,omitempty"`
}

// Book is the input document tree.
type Book struct {
	Metadata   Metadata   `json:"metadata"`
	Sections   []*Section `json:"sections"`
	Resources  []Resource `json:"resources,omitempty"`
	CoverImage string     `json:"cover_image,omitempty"` // resource ID
}

// Section is one reading-order section. Children are flattened into the
// reading order after the section itself and nest in the table of contents.
type Section struct {
	ID       string     `json:"id,omitempty"`
	Title    string     `json:"title,omitempty"`
	Level    int        `json:"level,omitempty"`
	Blocks   []*Block   `json:"blocks,omitempty"`
	Children []*Section `json:"children,omitempty"`
}

// Block is one content node. Paragraphs and headings carry Text and Spans,
// images carry Src and Alt, and the container kinds carry Children.
type Block struct {
	Kind     BlockKind           `json:"kind"`
	ID       string              `json:"id,omitempty"`
	Level    int                 `json:"level,omitempty"` // heading level 1-6
	Text     string              `json:"text,omitempty"`
	Spans    []Span              `json:"spans,omitempty"`
	Style    []style.Declaration `json:"style,omitempty"`
	Ordered  bool                `json:"ordered,omitempty"`
	Src      string              `json:"src,omitempty"`
	Alt      string              `json:"alt,omitempty"`
	Children []*Block            `json:"children,omitempty"`
}

// Span applies an override style and/or a link to runes [Start, End) of its
// block's Text.
type Span struct {
	Start int                 `json:"start"`
	End   int                 `json:"end"`
	Style []style.Declaration `json:"style,omitempty"`
	Href  string              `json:"href,omitempty"`
}

// Resource is a binary asset referenced by image blocks and the cover.
type Resource struct {
	ID        string `json:"id"`
	MediaType string `json:"media_type"`
	Data      []byte `json:"data"`
}

// Compression selects the algorithm used by Pack.
type Compression uint16

const (
	CompNone Compression = 0x0
	CompZIP  Compression = 0x1
	CompZSTD Compression = 0x2
	CompLZ4  Compression = 0x3
	CompBR   Compression = 0x4
	CompXZ   Compression = 0x5
)

var compressionNames = map[Compression]string{
	CompNone: "none", CompZIP: "zip", CompZSTD: "zstd",
	CompLZ4: "lz4", CompBR: "brotli", CompXZ: "xz",
}

func (c Compression) String() string {
	if s, ok := compressionNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Compression(%d)", uint16(c))
}

// ParseCompression maps a name such as "zstd" to its Compression.
func ParseCompression(name string) (Compression, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "br" {
		return CompBR, nil
	}
	for c, s := range compressionNames {
		if s == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown compression %q", ErrInvalidPayload, name)
}
