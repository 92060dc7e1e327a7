package kfx

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/logicossoftware/go-kfx/ion"
	"github.com/logicossoftware/go-kfx/symtab"
)

// AssemblerState is a phase of container assembly.
type AssemblerState uint8

const (
	StateCollecting AssemblerState = iota
	StateOffsetting
	StateIndexed
	StateFinalized
	StateFailed
)

func (s AssemblerState) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateOffsetting:
		return "offsetting"
	case StateIndexed:
		return "indexed"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("AssemblerState(%d)", uint8(s))
}

// ContainerInfo is the decoded container info block.
type ContainerInfo struct {
	ContainerID     string
	Compression     int
	DRMScheme       int
	ChunkSize       int
	IndexOffset     uint32
	IndexLength     uint32
	SymbolsOffset   uint32
	SymbolsLength   uint32
	FormatCapOffset uint32
	FormatCapLength uint32
}

func (ci ContainerInfo) value() ion.Struct {
	return ion.NewStruct(
		ion.F(symtab.ContainerID, ion.String(ci.ContainerID)),
		ion.F(symtab.ComprType, ion.Int(ci.Compression)),
		ion.F(symtab.DRMScheme, ion.Int(ci.DRMScheme)),
		ion.F(symtab.ChunkSize, ion.Int(ci.ChunkSize)),
		ion.F(symtab.IndexTabOffset, ion.Int(ci.IndexOffset)),
		ion.F(symtab.IndexTabLength, ion.Int(ci.IndexLength)),
		ion.F(symtab.DocSymbolOffset, ion.Int(ci.SymbolsOffset)),
		ion.F(symtab.DocSymbolLength, ion.Int(ci.SymbolsLength)),
		ion.F(symtab.FCapabilitiesOffset, ion.Int(ci.FormatCapOffset)),
		ion.F(symtab.FCapabilitiesLength, ion.Int(ci.FormatCapLength)),
	)
}

type fragmentKey struct {
	typ ion.SymbolID
	fid ion.SymbolID
}

// Assembler lays fragments out as a container. Calls must follow the order
// Add*, Offset, Index, Finalize; any failure leaves the assembler in
// StateFailed and later calls return ErrInvalidState.
type Assembler struct {
	state       AssemblerState
	table       *symtab.Table
	containerID string
	cfg         buildConfig
	log         zerolog.Logger
	enc         *ion.Encoder

	frags    []Fragment
	seen     map[fragmentKey]struct{}
	payloads [][]byte
	index    []IndexEntry
	header   []byte
	out      []byte
}

// NewAssembler returns an assembler writing symbols from table under
// containerID. Only the limits, logger and generator versions of opts apply.
func NewAssembler(table *symtab.Table, containerID string, opts ...BuildOption) *Assembler {
	return newAssembler(table, containerID, newBuildConfig(opts))
}

func newAssembler(table *symtab.Table, containerID string, cfg buildConfig) *Assembler {
	return &Assembler{
		table:       table,
		containerID: containerID,
		cfg:         cfg,
		log:         cfg.logger,
		enc:         ion.NewEncoder(table),
		seen:        make(map[fragmentKey]struct{}),
	}
}

// State returns the current phase.
func (a *Assembler) State() AssemblerState { return a.state }

func (a *Assembler) expect(s AssemblerState, op string) error {
	if a.state != s {
		return fmt.Errorf("%w: %s while %s", ErrInvalidState, op, a.state)
	}
	return nil
}

func (a *Assembler) fail(err error) error {
	a.state = StateFailed
	return err
}

// Add appends a fragment. A second fragment with the same type and fid is
// rejected.
func (a *Assembler) Add(f Fragment) error {
	if err := a.expect(StateCollecting, "add"); err != nil {
		return err
	}
	key := fragmentKey{f.Type, f.FID}
	if _, dup := a.seen[key]; dup {
		return a.fail(fmt.Errorf("%w: duplicate %s fragment %s", ErrInvalidEntity, a.table.Name(f.Type), a.table.Name(f.FID)))
	}
	if len(a.frags) >= a.cfg.limits.MaxEntities {
		return a.fail(fmt.Errorf("%w: more than %d entities", ErrCapacityExceeded, a.cfg.limits.MaxEntities))
	}
	if f.Type == symtab.RawMedia && f.Raw == nil {
		return a.fail(fmt.Errorf("%w: raw media %s has no data", ErrInvalidEntity, a.table.Name(f.FID)))
	}
	f.ID = f.EntityID()
	a.seen[key] = struct{}{}
	a.frags = append(a.frags, f)
	return nil
}

// Offset encodes every fragment into its entity payload and assigns
// payload offsets.
func (a *Assembler) Offset() error {
	if err := a.expect(StateCollecting, "offset"); err != nil {
		return err
	}
	if len(a.frags) == 0 {
		return a.fail(fmt.Errorf("%w: no fragments", ErrInvalidState))
	}
	entHeader, err := a.enc.EncodeStream(ion.NewStruct(
		ion.F(symtab.ComprType, ion.Int(0)),
		ion.F(symtab.DRMScheme, ion.Int(0)),
	))
	if err != nil {
		return a.fail(err)
	}
	a.payloads = make([][]byte, 0, len(a.frags))
	a.index = make([]IndexEntry, 0, len(a.frags))
	var off uint64
	for _, f := range a.frags {
		p := appendEntityHeader(nil, entityHeader{
			Magic:     EntityMagic,
			Version:   EntityVersion,
			HeaderLen: uint32(entityHeaderSize + len(entHeader)),
		})
		p = append(p, entHeader...)
		if f.Type == symtab.RawMedia {
			p = append(p, f.Raw...)
		} else {
			body, err := a.enc.EncodeStream(f.Value)
			if err != nil {
				return a.fail(fmt.Errorf("kfx: encode %s %s: %w", a.table.Name(f.Type), a.table.Name(f.FID), err))
			}
			p = append(p, body...)
		}
		a.index = append(a.index, IndexEntry{ID: f.ID, Type: uint32(f.Type), Offset: off, Length: uint64(len(p))})
		a.payloads = append(a.payloads, p)
		off += uint64(len(p))
		if off > a.cfg.limits.MaxContainerSize {
			return a.fail(fmt.Errorf("%w: payloads exceed %d bytes", ErrCapacityExceeded, a.cfg.limits.MaxContainerSize))
		}
	}
	a.state = StateOffsetting
	return nil
}

// Index serializes the header region: index table, document symbols,
// format capabilities, container info and generator info.
func (a *Assembler) Index() error {
	if err := a.expect(StateOffsetting, "index"); err != nil {
		return err
	}
	idx := make([]byte, 0, len(a.index)*indexRecordSize)
	for _, e := range a.index {
		idx = appendIndexEntry(idx, e)
	}
	syms, err := a.enc.EncodeStream(a.table.SymbolTableValue())
	if err != nil {
		return a.fail(err)
	}
	fcaps, err := a.enc.EncodeStream(formatCapabilities())
	if err != nil {
		return a.fail(err)
	}
	info := ContainerInfo{
		ContainerID:     a.containerID,
		ChunkSize:       DefaultChunkSize,
		IndexOffset:     containerHeaderSize,
		IndexLength:     uint32(len(idx)),
		SymbolsOffset:   uint32(containerHeaderSize + len(idx)),
		SymbolsLength:   uint32(len(syms)),
		FormatCapOffset: uint32(containerHeaderSize + len(idx) + len(syms)),
		FormatCapLength: uint32(len(fcaps)),
	}
	infoBytes, err := a.enc.EncodeStream(info.value())
	if err != nil {
		return a.fail(err)
	}
	infoOffset := containerHeaderSize + len(idx) + len(syms) + len(fcaps)
	gen := a.generatorInfo()
	headerLen := uint64(infoOffset) + uint64(len(infoBytes)) + uint64(len(gen))

	var total uint64
	for _, e := range a.index {
		total += e.Length
	}
	if headerLen+total > a.cfg.limits.MaxContainerSize {
		return a.fail(fmt.Errorf("%w: container of %d bytes exceeds %d", ErrCapacityExceeded, headerLen+total, a.cfg.limits.MaxContainerSize))
	}

	h := make([]byte, 0, headerLen)
	h = appendContainerHeader(h, containerHeader{
		Magic:      ContainerMagic,
		Version:    ContainerVersion,
		HeaderLen:  uint32(headerLen),
		InfoOffset: uint32(infoOffset),
		InfoLength: uint32(len(infoBytes)),
	})
	h = append(h, idx...)
	h = append(h, syms...)
	h = append(h, fcaps...)
	h = append(h, infoBytes...)
	h = append(h, gen...)
	a.header = h
	a.state = StateIndexed
	return nil
}

// Finalize joins the header region and payloads.
func (a *Assembler) Finalize() error {
	if err := a.expect(StateIndexed, "finalize"); err != nil {
		return err
	}
	size := len(a.header)
	for _, p := range a.payloads {
		size += len(p)
	}
	out := make([]byte, 0, size)
	out = append(out, a.header...)
	for _, p := range a.payloads {
		out = append(out, p...)
	}
	a.out = out
	a.payloads = nil
	a.state = StateFinalized
	a.log.Debug().
		Str("container_id", a.containerID).
		Int("entities", len(a.index)).
		Int("header_bytes", len(a.header)).
		Int("bytes", len(out)).
		Msg("container assembled")
	return nil
}

// Bytes returns the finished container.
func (a *Assembler) Bytes() ([]byte, error) {
	if err := a.expect(StateFinalized, "bytes"); err != nil {
		return nil, err
	}
	return a.out, nil
}

// Entries returns the entity index records, valid from StateOffsetting on.
func (a *Assembler) Entries() []IndexEntry {
	return append([]IndexEntry(nil), a.index...)
}

func formatCapabilities() ion.Value {
	return ion.Annotate(symtab.FormatCapabilities, ion.List{ion.NewStruct(
		ion.F(symtab.Key, ion.String("kfxgen.textBlock")),
		ion.F(ion.SymVersion, ion.Int(1)),
	)})
}

// generatorInfo is the kfxgen block closing the header. Its payload digest
// is the SHA-1 of all entity payloads in index order.
func (a *Assembler) generatorInfo() []byte {
	h := sha1.New()
	for _, p := range a.payloads {
		h.Write(p)
	}
	pairs := [][2]string{
		{"kfxgen_package_version", a.cfg.pkgVersion},
		{"kfxgen_application_version", a.cfg.appVersion},
		{"kfxgen_payload_sha1", hex.EncodeToString(h.Sum(nil))},
		{"kfxgen_acr", a.containerID},
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i, p := range pairs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("{key:")
		sb.WriteString(p[0])
		sb.WriteString(",value:")
		sb.WriteString(p[1])
		sb.WriteByte('}')
	}
	sb.WriteByte(']')
	return []byte(sb.String())
}

// assemble runs every phase over frags.
func assemble(table *symtab.Table, containerID string, cfg buildConfig, frags []Fragment) ([]byte, error) {
	a := newAssembler(table, containerID, cfg)
	for _, f := range frags {
		if err := a.Add(f); err != nil {
			return nil, err
		}
	}
	for _, step := range []func() error{a.Offset, a.Index, a.Finalize} {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return a.Bytes()
}
