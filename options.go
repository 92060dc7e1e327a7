package kfx

import (
	"github.com/rs/zerolog"

	"github.com/logicossoftware/go-kfx/style"
)

// Generator versions written to the kfxgen info block.
const (
	DefaultApplicationVersion = "go-kfx"
	DefaultPackageVersion     = "go-kfx-1.0"
)

type buildConfig struct {
	limits      Limits
	logger      zerolog.Logger
	containerID string
	randomID    bool
	appVersion  string
	pkgVersion  string
	mapper      *style.Mapper
}

func newBuildConfig(opts []BuildOption) buildConfig {
	cfg := buildConfig{
		limits:     defaultLimits(),
		logger:     zerolog.Nop(),
		appVersion: DefaultApplicationVersion,
		pkgVersion: DefaultPackageVersion,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.limits = cfg.limits.withDefaults()
	if cfg.mapper == nil {
		cfg.mapper = style.NewMapper()
	}
	return cfg
}

type BuildOption func(*buildConfig)

func WithLimits(l Limits) BuildOption {
	return func(c *buildConfig) { c.limits = l }
}

// WithLogger routes build diagnostics to l. The default discards them.
func WithLogger(l zerolog.Logger) BuildOption {
	return func(c *buildConfig) { c.logger = l }
}

// WithContainerID fixes the container id. It must have the form
// "CR!" followed by 28 uppercase letters or digits.
func WithContainerID(id string) BuildOption {
	return func(c *buildConfig) { c.containerID = id }
}

// WithRandomContainerID draws a fresh container id per build instead of
// deriving it from the book metadata.
func WithRandomContainerID(v bool) BuildOption {
	return func(c *buildConfig) { c.randomID = v }
}

func WithGeneratorVersion(application, pkg string) BuildOption {
	return func(c *buildConfig) {
		c.appVersion = application
		c.pkgVersion = pkg
	}
}

// WithStyleMapper replaces the CSS property mapper.
func WithStyleMapper(m *style.Mapper) BuildOption {
	return func(c *buildConfig) { c.mapper = m }
}

type readConfig struct {
	limits       Limits
	verifyDigest bool
}

func newReadConfig(opts []ReadOption) readConfig {
	cfg := readConfig{limits: defaultLimits(), verifyDigest: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.limits = cfg.limits.withDefaults()
	return cfg
}

type ReadOption func(*readConfig)

func WithReadLimits(l Limits) ReadOption {
	return func(c *readConfig) { c.limits = l }
}

// WithVerifyDigest controls whether Unpack checks the envelope's BLAKE3
// digest. It is on by default.
func WithVerifyDigest(v bool) ReadOption {
	return func(c *readConfig) { c.verifyDigest = v }
}
