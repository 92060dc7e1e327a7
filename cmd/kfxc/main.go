// Command kfxc builds, inspects and packs KFX containers.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"github.com/logicossoftware/go-kfx"
	"github.com/logicossoftware/go-kfx/internal/config"
	"github.com/logicossoftware/go-kfx/internal/logging"
	"github.com/logicossoftware/go-kfx/internal/xhtml"
	"github.com/logicossoftware/go-kfx/ion"
	"github.com/logicossoftware/go-kfx/symtab"
)

// Globals are the flags shared by every command.
type Globals struct {
	Config   string `help:"TOML configuration file" type:"existingfile"`
	LogLevel string `name:"log-level" help:"Log level (debug, info, warn, error); overrides the config file"`
	LogJSON  bool   `name:"log-json" help:"Write logs as JSON lines"`

	stdout io.Writer `kong:"-"`
}

// CLI defines the command-line interface of kfxc.
type CLI struct {
	Globals

	Build  BuildCmd  `cmd:"" help:"Build a container from a JSON book or XHTML chapters"`
	Batch  BatchCmd  `cmd:"" help:"Build several JSON books in parallel"`
	Dump   DumpCmd   `cmd:"" help:"Print a JSON summary of a container"`
	Verify VerifyCmd `cmd:"" help:"Check a container's structure and fragment graph"`
	Pack   PackCmd   `cmd:"" help:"Wrap a container in a compressed envelope"`
	Unpack UnpackCmd `cmd:"" help:"Extract a container from a compressed envelope"`
}

// setup loads the configuration and builds the logger.
func (g *Globals) setup() (config.Config, zerolog.Logger, error) {
	cfg := config.Default()
	if g.Config != "" {
		var err error
		if cfg, err = config.Load(g.Config); err != nil {
			return cfg, zerolog.Nop(), err
		}
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	if g.LogJSON {
		cfg.LogJSON = true
	}
	log, err := logging.New("kfxc", cfg.LogLevel, cfg.LogJSON)
	return cfg, log, err
}

func (g *Globals) printJSON(v any) error {
	enc := json.NewEncoder(g.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// BuildCmd builds one container.
type BuildCmd struct {
	Inputs   []string `arg:"" help:"A book.json, or XHTML chapter files in reading order" type:"existingfile"`
	Out      string   `short:"o" required:"" help:"Output .kfx path" type:"path"`
	Title    string   `help:"Book title for XHTML input (default: first chapter title)"`
	Author   []string `help:"Author for XHTML input; repeatable"`
	Language string   `help:"Language tag for XHTML input"`
	Cover    string   `help:"Cover image for XHTML input" type:"existingfile"`
	Pack     string   `help:"Also write a packed copy to <out>.pack with this compression (overrides the config file)"`
}

func (c *BuildCmd) Run(g *Globals) error {
	cfg, log, err := g.setup()
	if err != nil {
		return err
	}
	var book *kfx.Book
	if len(c.Inputs) == 1 && strings.EqualFold(filepath.Ext(c.Inputs[0]), ".json") {
		book, err = readBookJSON(c.Inputs[0])
	} else {
		book, err = c.bookFromXHTML()
	}
	if err != nil {
		return err
	}
	res, err := kfx.Build(book, cfg.BuildOptions(log)...)
	if err != nil {
		return err
	}
	if err := res.WriteFile(c.Out); err != nil {
		return err
	}
	log.Info().
		Str("out", c.Out).
		Str("container_id", res.ContainerID).
		Int("sections", res.Sections).
		Int("storylines", res.Storylines).
		Int("resources", res.Resources).
		Msg("container written")

	comp := cfg.Pack
	if c.Pack != "" {
		if comp, err = kfx.ParseCompression(c.Pack); err != nil {
			return err
		}
	}
	if comp == kfx.CompNone && c.Pack == "" {
		return nil
	}
	return packFile(c.Out, c.Out+".pack", comp)
}

func readBookJSON(path string) (*kfx.Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var book kfx.Book
	if err := json.Unmarshal(data, &book); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &book, nil
}

// bookFromXHTML loads each input as one section. Image sources are read
// relative to the chapter that references them.
func (c *BuildCmd) bookFromXHTML() (*kfx.Book, error) {
	book := &kfx.Book{Metadata: kfx.Metadata{
		Title:    c.Title,
		Authors:  c.Author,
		Language: c.Language,
	}}
	seen := make(map[string]bool)
	for _, in := range c.Inputs {
		ch, err := xhtml.ParseFile(in)
		if err != nil {
			return nil, err
		}
		book.Sections = append(book.Sections, ch.Section)
		for _, src := range ch.Images {
			if seen[src] {
				continue
			}
			seen[src] = true
			data, err := os.ReadFile(filepath.Join(filepath.Dir(in), filepath.FromSlash(src)))
			if err != nil {
				return nil, fmt.Errorf("%s: image: %w", in, err)
			}
			book.Resources = append(book.Resources, kfx.Resource{ID: src, Data: data})
		}
	}
	if book.Metadata.Title == "" && len(book.Sections) > 0 {
		book.Metadata.Title = book.Sections[0].Title
	}
	if c.Cover != "" {
		data, err := os.ReadFile(c.Cover)
		if err != nil {
			return nil, err
		}
		const coverID = "kfxc-cover"
		book.Resources = append(book.Resources, kfx.Resource{ID: coverID, Data: data})
		book.CoverImage = coverID
	}
	return book, nil
}

// BatchCmd builds several JSON books on a worker pool.
type BatchCmd struct {
	Inputs  []string `arg:"" help:"JSON book files" type:"existingfile"`
	OutDir  string   `name:"out-dir" short:"o" required:"" help:"Directory for the .kfx files" type:"existingdir"`
	Bundle  string   `help:"Also write all containers into this KFX-ZIP bundle" type:"path"`
	Workers int      `help:"Parallel builds (0 uses the config file, then GOMAXPROCS)"`
}

func (c *BatchCmd) Run(g *Globals) error {
	cfg, log, err := g.setup()
	if err != nil {
		return err
	}
	books := make([]*kfx.Book, len(c.Inputs))
	for i, in := range c.Inputs {
		if books[i], err = readBookJSON(in); err != nil {
			return err
		}
	}
	workers := c.Workers
	if workers == 0 {
		workers = cfg.Workers
	}
	results, buildErr := kfx.BuildAll(context.Background(), books, workers, cfg.BuildOptions(log)...)
	var files []kfx.BundleFile
	for i, res := range results {
		if res == nil {
			continue
		}
		name := strings.TrimSuffix(filepath.Base(c.Inputs[i]), filepath.Ext(c.Inputs[i])) + ".kfx"
		data, err := res.Marshal()
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(c.OutDir, name), data, 0o644); err != nil {
			return err
		}
		files = append(files, kfx.BundleFile{Name: name, Data: data})
		log.Info().Str("book", c.Inputs[i]).Str("out", name).Msg("container written")
	}
	if c.Bundle != "" && len(files) > 0 {
		var buf bytes.Buffer
		if err := kfx.WriteBundle(&buf, files); err != nil {
			return err
		}
		if err := os.WriteFile(c.Bundle, buf.Bytes(), 0o644); err != nil {
			return err
		}
	}
	return buildErr
}

// DumpCmd prints the entities of a container.
type DumpCmd struct {
	File string `arg:"" help:"Container to dump" type:"existingfile"`
	Text bool   `help:"Include the text content"`
}

type entitySummary struct {
	ID     uint32 `json:"id"`
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`
	Length uint64 `json:"length"`
}

type dumpSummary struct {
	ContainerID string            `json:"container_id"`
	Generator   map[string]string `json:"generator"`
	Symbols     int               `json:"local_symbols"`
	Entities    []entitySummary   `json:"entities"`
	Text        []string          `json:"text,omitempty"`
}

func (c *DumpCmd) Run(g *Globals) error {
	cfg, _, err := g.setup()
	if err != nil {
		return err
	}
	ct, err := kfx.ReadFile(c.File, cfg.ReadOptions()...)
	if err != nil {
		return err
	}
	s := dumpSummary{
		ContainerID: ct.Info.ContainerID,
		Generator:   ct.GeneratorInfo(),
		Symbols:     ct.Symbols.LocalCount(),
	}
	for _, e := range ct.Entities {
		es := entitySummary{
			ID:     uint32(e.ID),
			Type:   symtab.CatalogSymbolName(ion.SymbolID(e.Type)),
			Length: e.Length,
		}
		if fid := e.FID(); fid != 0 {
			es.Name = ct.Name(fid)
		}
		s.Entities = append(s.Entities, es)
	}
	if c.Text {
		s.Text = ct.Text()
	}
	return g.printJSON(s)
}

// VerifyCmd checks a container and prints its report.
type VerifyCmd struct {
	File string `arg:"" help:"Container to verify" type:"existingfile"`
}

func (c *VerifyCmd) Run(g *Globals) error {
	cfg, log, err := g.setup()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	report, err := kfx.Verify(data, cfg.ReadOptions()...)
	if err != nil {
		log.Error().Err(err).Str("file", c.File).Msg("verification failed")
		return err
	}
	return g.printJSON(report)
}

// PackCmd wraps a container in a compressed envelope.
type PackCmd struct {
	File        string `arg:"" help:"Container to pack" type:"existingfile"`
	Out         string `short:"o" help:"Output path (default: <file>.pack)" type:"path"`
	Compression string `short:"c" help:"none, zip, zstd, lz4, brotli or xz (default: the config file's pack setting)"`
}

func (c *PackCmd) Run(g *Globals) error {
	cfg, log, err := g.setup()
	if err != nil {
		return err
	}
	comp := cfg.Pack
	if c.Compression != "" {
		if comp, err = kfx.ParseCompression(c.Compression); err != nil {
			return err
		}
	}
	out := c.Out
	if out == "" {
		out = c.File + ".pack"
	}
	if err := packFile(c.File, out, comp); err != nil {
		return err
	}
	log.Info().Str("out", out).Stringer("compression", comp).Msg("container packed")
	return nil
}

func packFile(in, out string, comp kfx.Compression) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := kfx.Pack(&buf, data, comp); err != nil {
		return err
	}
	return os.WriteFile(out, buf.Bytes(), 0o644)
}

// UnpackCmd extracts a packed container.
type UnpackCmd struct {
	File     string `arg:"" help:"Packed container" type:"existingfile"`
	Out      string `short:"o" required:"" help:"Output .kfx path" type:"path"`
	NoDigest bool   `name:"no-digest" help:"Skip the BLAKE3 digest check"`
	NoVerify bool   `name:"no-verify" help:"Skip verifying the extracted container"`
}

func (c *UnpackCmd) Run(g *Globals) error {
	cfg, log, err := g.setup()
	if err != nil {
		return err
	}
	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()
	opts := append(cfg.ReadOptions(), kfx.WithVerifyDigest(!c.NoDigest))
	data, comp, err := kfx.Unpack(f, opts...)
	if err != nil {
		return err
	}
	if !c.NoVerify {
		if _, err := kfx.Verify(data, cfg.ReadOptions()...); err != nil {
			return err
		}
	}
	if err := os.WriteFile(c.Out, data, 0o644); err != nil {
		return err
	}
	log.Info().Str("out", c.Out).Stringer("compression", comp).Int("bytes", len(data)).Msg("container unpacked")
	return nil
}

// run parses args and executes the selected command.
func run(args []string, stdout, stderr io.Writer) error {
	var cli CLI
	cli.stdout = stdout
	parser, err := kong.New(&cli,
		kong.Name("kfxc"),
		kong.Description("Build, inspect and pack KFX containers."),
		kong.Writers(stdout, stderr),
		kong.UsageOnError(),
	)
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return ctx.Run(&cli.Globals)
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "kfxc:", err)
		var me *kfx.MalformedInputError
		if errors.As(err, &me) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
