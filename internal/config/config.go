// Package config loads the kfxc TOML configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/logicossoftware/go-kfx"
)

// ErrInvalid reports a configuration value that fails validation.
var ErrInvalid = errors.New("config: invalid")

// Config is the resolved configuration of a kfxc run.
type Config struct {
	LogLevel             string
	LogJSON              bool
	Pack                 kfx.Compression
	Workers              int
	ContainerID          string
	RandomContainerID    bool
	GeneratorApplication string
	GeneratorPackage     string
	Limits               kfx.Limits
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel:             "info",
		Pack:                 kfx.CompNone,
		GeneratorApplication: kfx.DefaultApplicationVersion,
		GeneratorPackage:     kfx.DefaultPackageVersion,
		Limits:               kfx.DefaultLimits(),
	}
}

type fileConfig struct {
	LogLevel             string     `toml:"log_level"`
	LogJSON              bool       `toml:"log_json"`
	Pack                 string     `toml:"pack"`
	Workers              int        `toml:"workers"`
	ContainerID          string     `toml:"container_id"`
	RandomContainerID    bool       `toml:"random_container_id"`
	GeneratorApplication string     `toml:"generator_application"`
	GeneratorPackage     string     `toml:"generator_package"`
	Limits               fileLimits `toml:"limits"`
}

type fileLimits struct {
	MaxLocalSymbols     int    `toml:"max_local_symbols"`
	MaxEntities         int    `toml:"max_entities"`
	MaxContainerSize    uint64 `toml:"max_container_size"`
	MaxStorylineItems   int    `toml:"max_storyline_items"`
	StorylineSplitDepth int    `toml:"storyline_split_depth"`
	MaxTextChunkChars   int    `toml:"max_text_chunk_chars"`
	MaxTreeDepth        int    `toml:"max_tree_depth"`
	MaxResourceSize     uint64 `toml:"max_resource_size"`
	MaxPackUncompressed uint64 `toml:"max_pack_uncompressed"`
	MaxIonDepth         int    `toml:"max_ion_depth"`
}

// Load reads the file at path over Default.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	defer f.Close()
	cfg, err := Parse(f)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML from r over Default. Only keys present in the input
// override defaults; unknown keys are an error. The result is validated.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.NewDecoder(r).Decode(&raw)
	if err != nil {
		return Config{}, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(keys, ", "))
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_json") {
		cfg.LogJSON = raw.LogJSON
	}
	if meta.IsDefined("pack") {
		comp, err := kfx.ParseCompression(raw.Pack)
		if err != nil {
			return Config{}, fmt.Errorf("%w: pack: %v", ErrInvalid, err)
		}
		cfg.Pack = comp
	}
	if meta.IsDefined("workers") {
		cfg.Workers = raw.Workers
	}
	if meta.IsDefined("container_id") {
		cfg.ContainerID = strings.TrimSpace(raw.ContainerID)
	}
	if meta.IsDefined("random_container_id") {
		cfg.RandomContainerID = raw.RandomContainerID
	}
	if meta.IsDefined("generator_application") {
		cfg.GeneratorApplication = strings.TrimSpace(raw.GeneratorApplication)
	}
	if meta.IsDefined("generator_package") {
		cfg.GeneratorPackage = strings.TrimSpace(raw.GeneratorPackage)
	}

	l := &cfg.Limits
	in := raw.Limits
	ints := []struct {
		key string
		dst *int
		v   int
	}{
		{"max_local_symbols", &l.MaxLocalSymbols, in.MaxLocalSymbols},
		{"max_entities", &l.MaxEntities, in.MaxEntities},
		{"max_storyline_items", &l.MaxStorylineItems, in.MaxStorylineItems},
		{"storyline_split_depth", &l.StorylineSplitDepth, in.StorylineSplitDepth},
		{"max_text_chunk_chars", &l.MaxTextChunkChars, in.MaxTextChunkChars},
		{"max_tree_depth", &l.MaxTreeDepth, in.MaxTreeDepth},
		{"max_ion_depth", &l.MaxIonDepth, in.MaxIonDepth},
	}
	for _, f := range ints {
		if meta.IsDefined("limits", f.key) {
			*f.dst = f.v
		}
	}
	sizes := []struct {
		key string
		dst *uint64
		v   uint64
	}{
		{"max_container_size", &l.MaxContainerSize, in.MaxContainerSize},
		{"max_resource_size", &l.MaxResourceSize, in.MaxResourceSize},
		{"max_pack_uncompressed", &l.MaxPackUncompressed, in.MaxPackUncompressed},
	}
	for _, f := range sizes {
		if meta.IsDefined("limits", f.key) {
			*f.dst = f.v
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and conflicting settings.
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers %d is negative", ErrInvalid, c.Workers)
	}
	if c.ContainerID != "" && !kfx.ValidContainerID(c.ContainerID) {
		return fmt.Errorf("%w: container_id %q", ErrInvalid, c.ContainerID)
	}
	if c.ContainerID != "" && c.RandomContainerID {
		return fmt.Errorf("%w: container_id and random_container_id are exclusive", ErrInvalid)
	}
	l := c.Limits
	for _, f := range []struct {
		key string
		v   int
	}{
		{"max_local_symbols", l.MaxLocalSymbols},
		{"max_entities", l.MaxEntities},
		{"max_storyline_items", l.MaxStorylineItems},
		{"storyline_split_depth", l.StorylineSplitDepth},
		{"max_text_chunk_chars", l.MaxTextChunkChars},
		{"max_tree_depth", l.MaxTreeDepth},
		{"max_ion_depth", l.MaxIonDepth},
	} {
		if f.v < 0 {
			return fmt.Errorf("%w: limits.%s %d is negative", ErrInvalid, f.key, f.v)
		}
	}
	return nil
}

// BuildOptions returns the build options c describes, logging to log.
func (c Config) BuildOptions(log zerolog.Logger) []kfx.BuildOption {
	opts := []kfx.BuildOption{
		kfx.WithLimits(c.Limits),
		kfx.WithLogger(log),
		kfx.WithGeneratorVersion(c.GeneratorApplication, c.GeneratorPackage),
	}
	if c.ContainerID != "" {
		opts = append(opts, kfx.WithContainerID(c.ContainerID))
	}
	if c.RandomContainerID {
		opts = append(opts, kfx.WithRandomContainerID(true))
	}
	return opts
}

// ReadOptions returns the read options c describes.
func (c Config) ReadOptions() []kfx.ReadOption {
	return []kfx.ReadOption{kfx.WithReadLimits(c.Limits)}
}
