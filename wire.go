package kfx

import (
	"encoding/binary"
	"fmt"
	"io"
)

type containerHeader struct {
	Magic      [4]byte
	Version    uint16
	HeaderLen  uint32
	InfoOffset uint32
	InfoLength uint32
}

// IndexEntry is one 24-byte record of the entity index table. Offset is
// relative to the start of the payload region.
type IndexEntry struct {
	ID     EntityID
	Type   uint32
	Offset uint64
	Length uint64
}

type entityHeader struct {
	Magic     [4]byte
	Version   uint16
	HeaderLen uint32
}

func readContainerHeader(r io.Reader) (containerHeader, error) {
	var buf [containerHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return containerHeader{}, err
	}
	var h containerHeader
	copy(h.Magic[:], buf[0:4])
	h.Version = binary.LittleEndian.Uint16(buf[4:6])
	h.HeaderLen = binary.LittleEndian.Uint32(buf[6:10])
	h.InfoOffset = binary.LittleEndian.Uint32(buf[10:14])
	h.InfoLength = binary.LittleEndian.Uint32(buf[14:18])
	return h, nil
}

func appendContainerHeader(dst []byte, h containerHeader) []byte {
	var buf [containerHeaderSize]byte
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint32(buf[6:10], h.HeaderLen)
	binary.LittleEndian.PutUint32(buf[10:14], h.InfoOffset)
	binary.LittleEndian.PutUint32(buf[14:18], h.InfoLength)
	return append(dst, buf[:]...)
}

func readIndexEntry(b []byte) IndexEntry {
	return IndexEntry{
		ID:     EntityID(binary.LittleEndian.Uint32(b[0:4])),
		Type:   binary.LittleEndian.Uint32(b[4:8]),
		Offset: binary.LittleEndian.Uint64(b[8:16]),
		Length: binary.LittleEndian.Uint64(b[16:24]),
	}
}

func appendIndexEntry(dst []byte, e IndexEntry) []byte {
	var buf [indexRecordSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(e.ID))
	binary.LittleEndian.PutUint32(buf[4:8], e.Type)
	binary.LittleEndian.PutUint64(buf[8:16], e.Offset)
	binary.LittleEndian.PutUint64(buf[16:24], e.Length)
	return append(dst, buf[:]...)
}

func readEntityHeader(b []byte) (entityHeader, error) {
	if len(b) < entityHeaderSize {
		return entityHeader{}, fmt.Errorf("%w: payload shorter than entity header", ErrInvalidEntity)
	}
	var h entityHeader
	copy(h.Magic[:], b[0:4])
	h.Version = binary.LittleEndian.Uint16(b[4:6])
	h.HeaderLen = binary.LittleEndian.Uint32(b[6:10])
	return h, nil
}

func appendEntityHeader(dst []byte, h entityHeader) []byte {
	var buf [entityHeaderSize]byte
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint32(buf[6:10], h.HeaderLen)
	return append(dst, buf[:]...)
}

func validateContainerHeader(h containerHeader, size int) error {
	if h.Magic != ContainerMagic {
		return ErrInvalidMagic
	}
	if h.Version != ContainerVersion {
		return fmt.Errorf("%w: container version %d", ErrUnsupportedVersion, h.Version)
	}
	if h.HeaderLen < containerHeaderSize || int64(h.HeaderLen) > int64(size) {
		return fmt.Errorf("%w: header length %d", ErrInvalidHeader, h.HeaderLen)
	}
	end := uint64(h.InfoOffset) + uint64(h.InfoLength)
	if h.InfoOffset < containerHeaderSize || end > uint64(h.HeaderLen) {
		return fmt.Errorf("%w: container info at %d+%d outside header", ErrInvalidHeader, h.InfoOffset, h.InfoLength)
	}
	return nil
}

// PackMagic opens a compressed container envelope written by Pack.
var PackMagic = [8]byte{'K', 'F', 'X', 'P', 'A', 'C', 'K', 0x1A}

const (
	PackVersion    uint16 = 1
	packHeaderSize uint32 = 64
)

type packHeader struct {
	Magic           [8]byte
	Version         uint16
	Compression     uint16
	HeaderSize      uint32
	UncompressedLen uint64
	PayloadLen      uint64
	Digest          [32]byte // BLAKE3 of the uncompressed container
}

func readPackHeader(r io.Reader) (packHeader, error) {
	var buf [packHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return packHeader{}, err
	}
	var h packHeader
	copy(h.Magic[:], buf[0:8])
	h.Version = binary.LittleEndian.Uint16(buf[8:10])
	h.Compression = binary.LittleEndian.Uint16(buf[10:12])
	h.HeaderSize = binary.LittleEndian.Uint32(buf[12:16])
	h.UncompressedLen = binary.LittleEndian.Uint64(buf[16:24])
	h.PayloadLen = binary.LittleEndian.Uint64(buf[24:32])
	copy(h.Digest[:], buf[32:64])
	return h, nil
}

func writePackHeader(w io.Writer, h packHeader) error {
	var buf [packHeaderSize]byte
	copy(buf[0:8], h.Magic[:])
	binary.LittleEndian.PutUint16(buf[8:10], h.Version)
	binary.LittleEndian.PutUint16(buf[10:12], h.Compression)
	binary.LittleEndian.PutUint32(buf[12:16], h.HeaderSize)
	binary.LittleEndian.PutUint64(buf[16:24], h.UncompressedLen)
	binary.LittleEndian.PutUint64(buf[24:32], h.PayloadLen)
	copy(buf[32:64], h.Digest[:])
	_, err := w.Write(buf[:])
	return err
}

func validatePackHeader(h packHeader) error {
	if h.Magic != PackMagic {
		return ErrInvalidMagic
	}
	if h.Version != PackVersion {
		return fmt.Errorf("%w: pack version %d", ErrUnsupportedVersion, h.Version)
	}
	if h.HeaderSize != packHeaderSize {
		return fmt.Errorf("%w: pack header size %d", ErrInvalidHeader, h.HeaderSize)
	}
	switch Compression(h.Compression) {
	case CompNone, CompZIP, CompZSTD, CompLZ4, CompBR, CompXZ:
	default:
		return fmt.Errorf("%w: unknown compression %d", ErrInvalidHeader, h.Compression)
	}
	if Compression(h.Compression) == CompNone && h.PayloadLen != h.UncompressedLen {
		return fmt.Errorf("%w: uncompressed payload length %d != %d", ErrInvalidHeader, h.PayloadLen, h.UncompressedLen)
	}
	return nil
}
