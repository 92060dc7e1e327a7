// Package kfx writes Kindle Format 10 (KFX) book containers.
//
// A KFX container is a single binary file holding a set of fragments, each an
// Amazon Ion value addressed by a fragment type and a fragment id. This
// package turns a [Book], a tree of sections and content blocks with inline
// styling, into the fragment graph a Kindle reader expects: reading-order
// sections and storylines, text chunks, deduplicated styles, resources,
// anchors, navigation, and the position and location maps.
//
// # File Format Overview
//
// A container consists of:
//   - An 18-byte header with magic "CONT", version and the position of the
//     container info block
//   - An entity index table of 24-byte records (id, type, offset, length)
//   - The document symbol table, format capabilities and container info, all
//     encoded as Ion binary
//   - The kfxgen generator info text
//   - The entity payloads, each an "ENTY" header followed by one Ion value or,
//     for raw media, the resource bytes
//
// Symbols are numbered against the system and YJ_symbols shared tables; names
// the catalog does not define are allocated as local symbols starting at 860.
//
// # Basic Usage
//
// To build a book and write it:
//
//	book := &kfx.Book{
//		Metadata: kfx.Metadata{Title: "My Book", Language: "en"},
//		Sections: []*kfx.Section{{
//			Title: "Chapter 1",
//			Blocks: []*kfx.Block{
//				{Kind: kfx.BlockParagraph, Text: "Hello world"},
//			},
//		}},
//	}
//	err := kfx.WriteFile("book.kfx", book)
//
// To read a container back and check its fragment graph:
//
//	data, _ := os.ReadFile("book.kfx")
//	report, err := kfx.Verify(data)
//
// # Packing
//
// [Pack] wraps a finished container in a compressed envelope (ZIP,
// Zstandard, LZ4, Brotli or XZ) with a BLAKE3 digest, and [WriteBundle]
// gathers several containers into a KFX-ZIP archive.
//
// # Security Considerations
//
// Readers enforce configurable [Limits] on container size, entity and symbol
// counts, Ion nesting depth and decompressed sizes, so untrusted input cannot
// force unbounded allocation.
package kfx
