package kfx

import (
	"math"

	"github.com/logicossoftware/go-kfx/ion"
	"github.com/logicossoftware/go-kfx/symtab"
)

// Limits bounds a build and the readers. Zero fields take their defaults.
type Limits struct {
	MaxLocalSymbols     int
	MaxEntities         int
	MaxContainerSize    uint64 // capped at math.MaxUint32, the width of the header offsets
	MaxStorylineItems   int    // content nodes per storyline before a split
	StorylineSplitDepth int    // top-level items nested deeper than this get their own storyline
	MaxTextChunkChars   int    // characters per $145 text fragment
	MaxTreeDepth        int
	MaxResourceSize     uint64
	MaxPackUncompressed uint64
	MaxIonDepth         int
}

func defaultLimits() Limits {
	return Limits{
		MaxLocalSymbols:     symtab.DefaultMaxLocalSymbols,
		MaxEntities:         1 << 20,
		MaxContainerSize:    math.MaxUint32,
		MaxStorylineItems:   1_000,
		StorylineSplitDepth: 32,
		MaxTextChunkChars:   15_000,
		MaxTreeDepth:        1_024,    // each level costs two Ion containers
		MaxResourceSize:     64 << 20, // 64 MiB
		MaxPackUncompressed: 2 << 30,  // 2 GiB
		MaxIonDepth:         ion.DefaultMaxDepth,
	}
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits { return defaultLimits() }

// withDefaults replaces zero and negative fields with their defaults.
func (l Limits) withDefaults() Limits {
	d := defaultLimits()
	if l.MaxLocalSymbols <= 0 {
		l.MaxLocalSymbols = d.MaxLocalSymbols
	}
	if l.MaxEntities <= 0 {
		l.MaxEntities = d.MaxEntities
	}
	if l.MaxContainerSize == 0 || l.MaxContainerSize > math.MaxUint32 {
		l.MaxContainerSize = d.MaxContainerSize
	}
	if l.MaxStorylineItems <= 0 {
		l.MaxStorylineItems = d.MaxStorylineItems
	}
	if l.StorylineSplitDepth <= 0 {
		l.StorylineSplitDepth = d.StorylineSplitDepth
	}
	if l.MaxTextChunkChars <= 0 {
		l.MaxTextChunkChars = d.MaxTextChunkChars
	}
	if l.MaxTreeDepth <= 0 {
		l.MaxTreeDepth = d.MaxTreeDepth
	}
	if l.MaxResourceSize == 0 {
		l.MaxResourceSize = d.MaxResourceSize
	}
	if l.MaxPackUncompressed == 0 {
		l.MaxPackUncompressed = d.MaxPackUncompressed
	}
	if l.MaxIonDepth <= 0 {
		l.MaxIonDepth = d.MaxIonDepth
	}
	return l
}
