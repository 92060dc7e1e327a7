package kfx

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	languageTag = regexp.MustCompile(`^[A-Za-z]{2,3}(-[A-Za-z0-9]{1,8})*$`)
	asinPattern = regexp.MustCompile(`^[A-Z0-9]{10,32}$`)
)

// Validate reports whether book would build with opts. It runs a complete
// build and discards the result.
func Validate(book *Book, opts ...BuildOption) error {
	_, err := Build(book, opts...)
	return err
}

func validateBook(book *Book) error {
	if book == nil {
		return malformed("", "book is nil")
	}
	if err := validateMetadata(book.Metadata); err != nil {
		return err
	}
	if len(book.Sections) == 0 {
		return malformed("sections", "book has no sections")
	}
	for i, r := range book.Resources {
		if r.MediaType != "" && !strings.HasPrefix(r.MediaType, "image/") {
			return malformed("resources["+strconv.Itoa(i)+"]", "media type %q is not an image type", r.MediaType)
		}
	}
	return nil
}

func validateMetadata(m Metadata) error {
	if strings.TrimSpace(m.Title) == "" {
		return malformed("metadata.title", "book has no title")
	}
	fields := []struct{ path, value string }{
		{"metadata.title", m.Title},
		{"metadata.language", m.Language},
		{"metadata.publisher", m.Publisher},
		{"metadata.description", m.Description},
		{"metadata.book_id", m.BookID},
	}
	for i, a := range m.Authors {
		fields = append(fields, struct{ path, value string }{"metadata.authors[" + strconv.Itoa(i) + "]", a})
	}
	for _, f := range fields {
		if err := validText(f.path, f.value); err != nil {
			return err
		}
	}
	for i, a := range m.Authors {
		if strings.TrimSpace(a) == "" {
			return malformed("metadata.authors["+strconv.Itoa(i)+"]", "author is empty")
		}
	}
	if m.Language != "" && !languageTag.MatchString(m.Language) {
		return malformed("metadata.language", "%q is not a language tag", m.Language)
	}
	if m.ASIN != "" && !asinPattern.MatchString(m.ASIN) {
		return malformed("metadata.asin", "%q is not an ASIN", m.ASIN)
	}
	return nil
}

// validText rejects strings that cannot be written as Ion strings.
func validText(path, s string) error {
	if !utf8.ValidString(s) {
		return malformed(path, "text is not valid UTF-8")
	}
	return nil
}
