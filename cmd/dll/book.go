package main

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/logicossoftware/go-kfx"
)

func parseBook(bookJSON []byte, resources []kfx.Resource) (*kfx.Book, error) {
	var book kfx.Book
	if err := json.Unmarshal(bookJSON, &book); err != nil {
		return nil, err
	}
	book.Resources = append(book.Resources, resources...)
	return &book, nil
}

func buildBook(bookJSON []byte, resources []kfx.Resource, comp kfx.Compression) ([]byte, error) {
	book, err := parseBook(bookJSON, resources)
	if err != nil {
		return nil, err
	}
	return encode(book, comp)
}

func encode(book *kfx.Book, comp kfx.Compression) ([]byte, error) {
	res, err := kfx.Build(book)
	if err != nil {
		return nil, err
	}
	data, err := res.Marshal()
	if err != nil || comp == kfx.CompNone {
		return data, err
	}
	var buf bytes.Buffer
	if err := kfx.Pack(&buf, data, comp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildSimple(title, text string) ([]byte, error) {
	sec := &kfx.Section{Title: title}
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if para = strings.Join(strings.Fields(para), " "); para != "" {
			sec.Blocks = append(sec.Blocks, &kfx.Block{Kind: kfx.BlockParagraph, Text: para})
		}
	}
	book := &kfx.Book{
		Metadata: kfx.Metadata{Title: title},
		Sections: []*kfx.Section{sec},
	}
	return encode(book, kfx.CompNone)
}

func validateBook(bookJSON []byte, resources []kfx.Resource) error {
	book, err := parseBook(bookJSON, resources)
	if err != nil {
		return err
	}
	return kfx.Validate(book)
}

func verifyReport(data []byte) ([]byte, error) {
	report, err := kfx.Verify(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(report)
}

func unpack(data []byte) ([]byte, error) {
	out, _, err := kfx.Unpack(bytes.NewReader(data))
	return out, err
}
