package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/logicossoftware/go-kfx"
)

const testBook = `{"metadata":{"title":"DLL"},"sections":[{"title":"S","blocks":[
{"kind":"paragraph","text":"x"},{"kind":"image","src":"pic"}]}]}`

var onePixelGIF = []byte{
	'G', 'I', 'F', '8', '9', 'a', 1, 0, 1, 0, 0x80, 0, 0,
	0, 0, 0, 0xFF, 0xFF, 0xFF,
	0x2C, 0, 0, 0, 0, 1, 0, 1, 0, 0,
	0x02, 0x02, 0x44, 0x01, 0,
	0x3B,
}

func TestBuildBookAndVerify(t *testing.T) {
	res := []kfx.Resource{{ID: "pic", Data: onePixelGIF}}
	data, err := buildBook([]byte(testBook), res, kfx.CompNone)
	if err != nil {
		t.Fatal(err)
	}
	out, err := verifyReport(data)
	if err != nil {
		t.Fatal(err)
	}
	var report kfx.Report
	if err := json.Unmarshal(out, &report); err != nil {
		t.Fatal(err)
	}
	if report.Resources != 1 || report.Sections != 1 {
		t.Fatalf("report = %+v", report)
	}

	packed, err := buildBook([]byte(testBook), res, kfx.CompBR)
	if err != nil {
		t.Fatal(err)
	}
	back, err := unpack(packed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back, data) {
		t.Fatal("unpacked container differs")
	}
}

func TestBuildBookErrors(t *testing.T) {
	if _, err := buildBook([]byte(`{`), nil, kfx.CompNone); err == nil {
		t.Fatal("expected JSON error")
	}
	if err := validateBook([]byte(testBook), nil); !errors.Is(err, kfx.ErrMalformedInputTree) {
		t.Fatalf("missing resource: %v", err)
	}
	if err := validateBook([]byte(testBook), []kfx.Resource{{ID: "pic", Data: onePixelGIF}}); err != nil {
		t.Fatal(err)
	}
	if _, err := verifyReport([]byte("nope")); err == nil {
		t.Fatal("expected verify error")
	}
}

func TestBuildSimple(t *testing.T) {
	data, err := buildSimple("Plain", "First  line\ncontinued.\r\n\r\nSecond.\n\n\n")
	if err != nil {
		t.Fatal(err)
	}
	c, err := kfx.DecodeBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	text := c.Text()
	if len(text) != 2 || text[0] != "First line continued." || text[1] != "Second." {
		t.Fatalf("text = %q", text)
	}
}
