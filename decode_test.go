package kfx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"unicode/utf8"

	"github.com/logicossoftware/go-kfx/symtab"
)

func sampleContainer(t *testing.T) ([]byte, containerHeader, *Container) {
	t.Helper()
	c, data := mustContainer(t, mustBuild(t, sampleBook(t)))
	h, err := readContainerHeader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return data, h, c
}

func TestDecodeRejectsCorruptContainers(t *testing.T) {
	data, h, _ := sampleContainer(t)
	mutate := func(f func([]byte)) []byte {
		b := append([]byte(nil), data...)
		f(b)
		return b
	}
	idx1 := containerHeaderSize + indexRecordSize // second index record
	cases := []struct {
		name string
		in   []byte
		want error
	}{
		{"short", data[:10], ErrInvalidHeader},
		{"magic", mutate(func(b []byte) { b[0] = 'X' }), ErrInvalidMagic},
		{"version", mutate(func(b []byte) { b[4] = 9 }), ErrUnsupportedVersion},
		{"header length", mutate(func(b []byte) { binary.LittleEndian.PutUint32(b[6:10], uint32(len(b)+1)) }), ErrInvalidHeader},
		{"info offset", mutate(func(b []byte) { binary.LittleEndian.PutUint32(b[10:14], h.HeaderLen) }), ErrInvalidHeader},
		{"gap", mutate(func(b []byte) {
			off := binary.LittleEndian.Uint64(b[idx1+8:])
			binary.LittleEndian.PutUint64(b[idx1+8:], off+1)
		}), ErrInvalidEntity},
		{"overrun", mutate(func(b []byte) {
			binary.LittleEndian.PutUint64(b[containerHeaderSize+16:], uint64(len(b)))
		}), ErrInvalidEntity},
		{"trailing bytes", append(append([]byte(nil), data...), 0), ErrInvalidEntity},
		{"entity magic", mutate(func(b []byte) { b[h.HeaderLen] = 'X' }), ErrInvalidMagic},
		{"entity version", mutate(func(b []byte) { b[h.HeaderLen+4] = 7 }), ErrUnsupportedVersion},
		{"entity header length", mutate(func(b []byte) { b[h.HeaderLen+6] = 2 }), ErrInvalidEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeBytes(tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDecodeLimits(t *testing.T) {
	data, _, c := sampleContainer(t)
	cases := []struct {
		name   string
		limits Limits
	}{
		{"size", Limits{MaxContainerSize: uint64(len(data) - 1)}},
		{"entities", Limits{MaxEntities: len(c.Index) - 1}},
		{"symbols", Limits{MaxLocalSymbols: c.Symbols.LocalCount() - 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(bytes.NewReader(data), WithReadLimits(tc.limits)); !errors.Is(err, ErrLimitExceeded) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestDecodeReadError(t *testing.T) {
	orig := readAll
	readAll = func(io.Reader) ([]byte, error) { return nil, io.ErrUnexpectedEOF }
	defer func() { readAll = orig }()
	if _, err := Decode(bytes.NewReader(nil)); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err = %v", err)
	}
}

func TestContainerAccessors(t *testing.T) {
	res := mustBuild(t, sampleBook(t))
	c, _ := mustContainer(t, res)
	if c.Info.ChunkSize != DefaultChunkSize {
		t.Fatalf("chunk size = %d", c.Info.ChunkSize)
	}
	sections := c.OfType(symtab.Section)
	if len(sections) != res.Sections {
		t.Fatalf("sections = %d, want %d", len(sections), res.Sections)
	}
	e, ok := c.Lookup(symtab.Section, sections[0].FID())
	if !ok || e.ID != sections[0].ID {
		t.Fatalf("lookup = %+v, %v", e, ok)
	}
	if _, ok := c.Lookup(symtab.Section, symtab.LocalMinID+100000); ok {
		t.Fatal("lookup of unknown fid succeeded")
	}
	if _, ok := c.Lookup(symtab.BookMetadata, 0); !ok {
		t.Fatal("no book metadata")
	}
	media := c.OfType(symtab.RawMedia)
	if len(media) != 2 || media[0].Raw == nil || media[0].Value != nil {
		t.Fatalf("raw media = %+v", media)
	}
	if c.Name(sections[0].FID()) != "cover-section" {
		t.Fatalf("first section = %q", c.Name(sections[0].FID()))
	}
}

func TestVerifyReport(t *testing.T) {
	res := mustBuild(t, sampleBook(t))
	data := mustMarshal(t, res)
	r, err := Verify(data)
	if err != nil {
		t.Fatal(err)
	}
	if r.ContainerID != res.ContainerID || r.Entities != len(res.Fragments) {
		t.Fatalf("report = %+v", r)
	}
	if r.Sections != res.Sections || r.Storylines != res.Storylines || r.TextChunks != res.TextChunks || r.Resources != res.Resources {
		t.Fatalf("report = %+v, result = %+v", r, res)
	}
	if r.Symbols != res.Symbols.LocalCount() {
		t.Fatalf("symbols = %d, want %d", r.Symbols, res.Symbols.LocalCount())
	}
	chars := 0
	for _, s := range []string{"Chapter One", "Hello world", "first", "second", "See the web", "Back to target"} {
		chars += utf8.RuneCountInString(s)
	}
	if r.Characters != chars {
		t.Fatalf("characters = %d, want %d", r.Characters, chars)
	}
	if r.Types["section"] != res.Sections || r.Types["bcRawMedia"] != 2 {
		t.Fatalf("types = %v", r.Types)
	}
}

func TestVerifyDetectsPayloadTampering(t *testing.T) {
	data, h, c := sampleContainer(t)
	media := c.OfType(symtab.RawMedia)[0]
	b := append([]byte(nil), data...)
	b[uint64(h.HeaderLen)+media.Offset+media.Length-1] ^= 0xFF
	if _, err := DecodeBytes(b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := Verify(b); !errors.Is(err, ErrVerification) {
		t.Fatalf("err = %v, want ErrVerification", err)
	}
}

func TestVerifyPassesDecodeErrors(t *testing.T) {
	if _, err := Verify([]byte("CONT")); !errors.Is(err, ErrInvalidHeader) {
		t.Fatalf("err = %v", err)
	}
}

func TestCheckTiling(t *testing.T) {
	ok := []IndexEntry{{Offset: 0, Length: 20}, {Offset: 20, Length: 10}}
	if err := checkTiling(ok, 30); err != nil {
		t.Fatal(err)
	}
	bad := [][]IndexEntry{
		{{Offset: 0, Length: 20}, {Offset: 21, Length: 9}},
		{{Offset: 0, Length: 20}, {Offset: 10, Length: 20}},
		{{Offset: 0, Length: 5}},
		{{Offset: 0, Length: 20}},
	}
	for i, idx := range bad {
		if err := checkTiling(idx, 30); !errors.Is(err, ErrInvalidEntity) {
			t.Fatalf("%d: err = %v", i, err)
		}
	}
}
