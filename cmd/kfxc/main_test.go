package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/logicossoftware/go-kfx"
	"github.com/logicossoftware/go-kfx/internal/logging"
)

const bookJSON = `{
  "metadata": {"title": "CLI Book", "authors": ["A. Writer"], "language": "en"},
  "sections": [
    {"id": "one", "title": "One", "blocks": [
      {"kind": "heading", "level": 1, "text": "One"},
      {"kind": "paragraph", "text": "Hello from the command line.",
       "spans": [{"start": 0, "end": 5, "style": [{"property": "font-weight", "value": "bold"}]}]}
    ]},
    {"id": "two", "title": "Two", "blocks": [{"kind": "paragraph", "text": "Second."}]}
  ]
}`

var onePixelGIF = []byte{
	'G', 'I', 'F', '8', '9', 'a', 1, 0, 1, 0, 0x80, 0, 0,
	0, 0, 0, 0xFF, 0xFF, 0xFF,
	0x2C, 0, 0, 0, 0, 1, 0, 1, 0, 0,
	0x02, 0x02, 0x44, 0x01, 0,
	0x3B,
}

func quietLogs(t *testing.T) {
	t.Helper()
	old := logging.Output
	logging.Output = io.Discard
	t.Cleanup(func() { logging.Output = old })
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	return stdout.String(), err
}

func TestBuildVerifyDumpFromJSON(t *testing.T) {
	quietLogs(t)
	dir := t.TempDir()
	in := writeFile(t, dir, "book.json", []byte(bookJSON))
	out := filepath.Join(dir, "book.kfx")

	if _, err := runCLI(t, "build", in, "-o", out, "--pack", "zstd"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(out + ".pack"); err != nil {
		t.Fatalf("packed copy: %v", err)
	}

	stdout, err := runCLI(t, "verify", out)
	if err != nil {
		t.Fatal(err)
	}
	var report kfx.Report
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("report %q: %v", stdout, err)
	}
	if report.Sections != 2 || !kfx.ValidContainerID(report.ContainerID) {
		t.Fatalf("report = %+v", report)
	}

	stdout, err = runCLI(t, "dump", "--text", out)
	if err != nil {
		t.Fatal(err)
	}
	var dump dumpSummary
	if err := json.Unmarshal([]byte(stdout), &dump); err != nil {
		t.Fatal(err)
	}
	if dump.ContainerID != report.ContainerID || len(dump.Entities) != report.Entities {
		t.Fatalf("dump = %+v", dump)
	}
	if !strings.Contains(strings.Join(dump.Text, "\n"), "Hello from the command line.") {
		t.Fatalf("text = %q", dump.Text)
	}
	var sections int
	for _, e := range dump.Entities {
		if e.Type == "section" {
			sections++
			if e.Name == "" {
				t.Fatalf("section without name: %+v", e)
			}
		}
	}
	if sections != 2 {
		t.Fatalf("sections = %d", sections)
	}
}

func TestPackUnpackCommands(t *testing.T) {
	quietLogs(t)
	dir := t.TempDir()
	in := writeFile(t, dir, "book.json", []byte(bookJSON))
	out := filepath.Join(dir, "book.kfx")
	if _, err := runCLI(t, "build", in, "-o", out); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(out + ".pack"); !os.IsNotExist(err) {
		t.Fatalf("unexpected packed copy: %v", err)
	}

	packed := filepath.Join(dir, "book.xz")
	if _, err := runCLI(t, "pack", out, "-o", packed, "-c", "xz"); err != nil {
		t.Fatal(err)
	}
	back := filepath.Join(dir, "back.kfx")
	if _, err := runCLI(t, "unpack", packed, "-o", back); err != nil {
		t.Fatal(err)
	}
	want, _ := os.ReadFile(out)
	got, _ := os.ReadFile(back)
	if !bytes.Equal(got, want) {
		t.Fatal("unpacked container differs")
	}

	if _, err := runCLI(t, "pack", out, "-c", "rar"); err == nil {
		t.Fatal("expected unknown compression error")
	}
}

func TestBuildFromXHTML(t *testing.T) {
	quietLogs(t)
	dir := t.TempDir()
	writeFile(t, dir, "text/images/fig.gif", onePixelGIF)
	ch1 := writeFile(t, dir, "text/ch1.xhtml", []byte(`<html><head><title>First</title></head>
<body id="c1"><h1>First</h1><p>See <a href="ch2.xhtml#c2">next</a>.</p><p><img src="images/fig.gif" alt="fig"/></p></body></html>`))
	ch2 := writeFile(t, dir, "text/ch2.xhtml", []byte(`<html><body id="c2"><h1>Second</h1><p>The end.</p></body></html>`))
	cover := writeFile(t, dir, "cover.gif", onePixelGIF)
	out := filepath.Join(dir, "chapters.kfx")

	if _, err := runCLI(t, "build", ch1, ch2, "-o", out, "--author", "Someone", "--cover", cover); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	report, err := kfx.Verify(data)
	if err != nil {
		t.Fatal(err)
	}
	if report.Resources != 1 {
		t.Fatalf("resources = %d, want identical images shared", report.Resources)
	}

	missing := writeFile(t, dir, "text/ch3.xhtml", []byte(`<html><body><img src="nope.png"/></body></html>`))
	if _, err := runCLI(t, "build", missing, "-o", filepath.Join(dir, "x.kfx")); err == nil {
		t.Fatal("expected missing image error")
	}
}

func TestBatchWritesBundle(t *testing.T) {
	quietLogs(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", []byte(bookJSON))
	b := writeFile(t, dir, "b.json", []byte(strings.Replace(bookJSON, "CLI Book", "Other Book", 1)))
	outDir := t.TempDir()
	bundle := filepath.Join(dir, "books.zip")

	if _, err := runCLI(t, "batch", a, b, "--out-dir", outDir, "--bundle", bundle, "--workers", "2"); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.kfx", "b.kfx"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Fatal(err)
		}
	}
	f, err := os.Open(bundle)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		t.Fatal(err)
	}
	files, err := kfx.ReadBundle(f, st.Size())
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("bundle files = %d", len(files))
	}
}

func TestConfigFileApplies(t *testing.T) {
	quietLogs(t)
	dir := t.TempDir()
	const id = "CR!ABCDEFGHIJKLMNOPQRSTUVWXYZ01"
	cfg := writeFile(t, dir, "kfxc.toml", []byte("container_id = \""+id+"\"\npack = \"lz4\"\n"))
	in := writeFile(t, dir, "book.json", []byte(bookJSON))
	out := filepath.Join(dir, "book.kfx")

	if _, err := runCLI(t, "--config", cfg, "build", in, "-o", out); err != nil {
		t.Fatal(err)
	}
	c, err := kfx.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if c.Info.ContainerID != id {
		t.Fatalf("container id = %q", c.Info.ContainerID)
	}
	if _, err := os.Stat(out + ".pack"); err != nil {
		t.Fatalf("config pack setting ignored: %v", err)
	}

	bad := writeFile(t, dir, "bad.toml", []byte("workers = -3\n"))
	if _, err := runCLI(t, "--config", bad, "build", in, "-o", out); err == nil {
		t.Fatal("expected config error")
	}
}

func TestVerifyRejectsCorruptFile(t *testing.T) {
	quietLogs(t)
	dir := t.TempDir()
	in := writeFile(t, dir, "junk.kfx", []byte("CONT not really a container"))
	if _, err := runCLI(t, "verify", in); err == nil {
		t.Fatal("expected verification error")
	}
	if _, err := runCLI(t, "dump", in); err == nil {
		t.Fatal("expected decode error")
	}
}
