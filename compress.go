package kfx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"
)

// Function variables for testing injection.
var (
	newZstdWriter = func() (*zstd.Encoder, error) { return zstd.NewWriter(nil) }
	newZstdReader = func() (*zstd.Decoder, error) { return zstd.NewReader(nil) }
	zipCreate     = func(zw *zip.Writer, name string) (io.Writer, error) { return zw.Create(name) }
	zipClose      = func(zw *zip.Writer) error { return zw.Close() }
	zipOpen       = func(zf *zip.File) (io.ReadCloser, error) { return zf.Open() }
	readAll       = io.ReadAll
	lz4Close      = func(w *lz4.Writer) error { return w.Close() }
	brotliClose   = func(w *brotli.Writer) error { return w.Close() }
	brotliWrite   = func(w *brotli.Writer, p []byte) (int, error) { return w.Write(p) }
	newXZWriter   = func(w io.Writer) (*xz.Writer, error) { return xz.NewWriter(w) }
	xzClose       = func(w *xz.Writer) error { return w.Close() }
)

// packEntryName is the single entry of a CompZIP payload.
const packEntryName = "container.kfx"

// Pack writes container to w inside a compressed envelope: a 64-byte
// header carrying the algorithm, both lengths and the BLAKE3 digest of
// container, followed by the payload.
func Pack(w io.Writer, container []byte, comp Compression) error {
	payload, err := compressPayload(comp, container)
	if err != nil {
		return err
	}
	h := packHeader{
		Magic:           PackMagic,
		Version:         PackVersion,
		Compression:     uint16(comp),
		HeaderSize:      packHeaderSize,
		UncompressedLen: uint64(len(container)),
		PayloadLen:      uint64(len(payload)),
		Digest:          blake3.Sum256(container),
	}
	if err := writePackHeader(w, h); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// Unpack reads an envelope written by Pack and returns the container
// bytes. It enforces MaxPackUncompressed and, unless disabled with
// WithVerifyDigest(false), the BLAKE3 digest.
func Unpack(r io.Reader, opts ...ReadOption) ([]byte, Compression, error) {
	cfg := newReadConfig(opts)
	h, err := readPackHeader(r)
	if err != nil {
		return nil, 0, err
	}
	if err := validatePackHeader(h); err != nil {
		return nil, 0, err
	}
	if h.UncompressedLen > cfg.limits.MaxPackUncompressed {
		return nil, 0, fmt.Errorf("%w: uncompressed length %d exceeds limit", ErrLimitExceeded, h.UncompressedLen)
	}
	if h.PayloadLen > cfg.limits.MaxPackUncompressed {
		return nil, 0, fmt.Errorf("%w: payload length %d exceeds limit", ErrLimitExceeded, h.PayloadLen)
	}
	payload, err := readAll(io.LimitReader(r, int64(h.PayloadLen)))
	if err != nil {
		return nil, 0, err
	}
	if uint64(len(payload)) != h.PayloadLen {
		return nil, 0, fmt.Errorf("%w: payload truncated at %d of %d bytes", ErrInvalidPayload, len(payload), h.PayloadLen)
	}
	comp := Compression(h.Compression)
	out, err := decompressPayload(comp, payload, h.UncompressedLen)
	if err != nil {
		return nil, 0, err
	}
	if cfg.verifyDigest && blake3.Sum256(out) != h.Digest {
		return nil, 0, fmt.Errorf("%w: digest mismatch", ErrInvalidPayload)
	}
	return out, comp, nil
}

// compressPayload compresses in with comp. CompNone returns in unchanged.
func compressPayload(comp Compression, in []byte) ([]byte, error) {
	switch comp {
	case CompNone:
		return in, nil
	case CompZIP:
		return zipCompress(in)
	case CompZSTD:
		return zstdCompress(in)
	case CompLZ4:
		return lz4Compress(in)
	case CompBR:
		return brotliCompress(in)
	case CompXZ:
		return xzCompress(in)
	}
	return nil, fmt.Errorf("%w: unknown compression %d", ErrInvalidPayload, comp)
}

// decompressPayload reverses compressPayload. The output must be exactly
// expected bytes; decoders are bounded so larger streams are rejected
// before they are fully expanded.
func decompressPayload(comp Compression, payload []byte, expected uint64) ([]byte, error) {
	var out []byte
	var err error
	switch comp {
	case CompNone:
		out = payload
	case CompZIP:
		out, err = zipDecompress(payload, expected)
	case CompZSTD:
		out, err = zstdDecompress(payload, expected)
	case CompLZ4:
		out, err = lz4Decompress(payload, expected)
	case CompBR:
		out, err = brotliDecompress(payload, expected)
	case CompXZ:
		out, err = xzDecompress(payload, expected)
	default:
		return nil, fmt.Errorf("%w: unknown compression %d", ErrInvalidPayload, comp)
	}
	if err != nil {
		return nil, err
	}
	if uint64(len(out)) != expected {
		return nil, fmt.Errorf("%w: decompressed length %d != expected %d", ErrInvalidPayload, len(out), expected)
	}
	return out, nil
}

func zipCompress(in []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := zipCompressNamed(&buf, packEntryName, in); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// zipCompressNamed creates a ZIP archive with a single entry.
func zipCompressNamed(w io.Writer, name string, in []byte) error {
	zw := zip.NewWriter(w)
	entry, err := zipCreate(zw, name)
	if err != nil {
		_ = zipClose(zw)
		return err
	}
	if _, err := entry.Write(in); err != nil {
		_ = zipClose(zw)
		return err
	}
	return zipClose(zw)
}

// zipDecompress extracts the single container entry of a ZIP payload.
func zipDecompress(zipBytes []byte, expected uint64) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, err
	}
	if len(zr.File) != 1 {
		return nil, fmt.Errorf("%w: zip must contain exactly one entry", ErrInvalidPayload)
	}
	zf := zr.File[0]
	if zf.Name != packEntryName {
		return nil, fmt.Errorf("%w: zip entry name must be %s", ErrInvalidPayload, packEntryName)
	}
	if zf.UncompressedSize64 != expected {
		return nil, fmt.Errorf("%w: zip uncompressed size %d != expected %d", ErrInvalidPayload, zf.UncompressedSize64, expected)
	}
	return readZipFile(zf, expected)
}

func readZipFile(zf *zip.File, limit uint64) ([]byte, error) {
	rc, err := zipOpen(zf)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return readAll(io.LimitReader(rc, int64(limit)))
}

func zstdCompress(in []byte) ([]byte, error) {
	enc, err := newZstdWriter()
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(in, nil), nil
}

func zstdDecompress(in []byte, expected uint64) ([]byte, error) {
	dec, err := newZstdReader()
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	if err := dec.Reset(bytes.NewReader(in)); err != nil {
		return nil, err
	}
	return readAll(io.LimitReader(dec, int64(expected)+1))
}

func lz4Compress(in []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(in); err != nil {
		_ = lz4Close(zw)
		return nil, err
	}
	if err := lz4Close(zw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lz4Decompress(in []byte, expected uint64) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(in))
	return readAll(io.LimitReader(r, int64(expected)+1))
}

func brotliCompress(in []byte) ([]byte, error) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	if _, err := brotliWrite(bw, in); err != nil {
		_ = brotliClose(bw)
		return nil, err
	}
	if err := brotliClose(bw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func brotliDecompress(in []byte, expected uint64) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(in))
	return readAll(io.LimitReader(r, int64(expected)+1))
}

func xzCompress(in []byte) ([]byte, error) {
	var buf bytes.Buffer
	xw, err := newXZWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := xw.Write(in); err != nil {
		_ = xzClose(xw)
		return nil, err
	}
	if err := xzClose(xw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func xzDecompress(in []byte, expected uint64) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(in))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return readAll(io.LimitReader(r, int64(expected)+1))
}

// BundleFile is one container of a KFX-ZIP bundle.
type BundleFile struct {
	Name string
	Data []byte
}

// WriteBundle writes containers as a KFX-ZIP archive, one deflated entry
// per file. Names must be unique base names ending in ".kfx".
func WriteBundle(w io.Writer, files []BundleFile) error {
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if err := validBundleName(f.Name); err != nil {
			return err
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate bundle entry %q", ErrInvalidPayload, f.Name)
		}
		seen[f.Name] = true
	}
	zw := zip.NewWriter(w)
	for _, f := range files {
		entry, err := zipCreate(zw, f.Name)
		if err != nil {
			_ = zipClose(zw)
			return err
		}
		if _, err := entry.Write(f.Data); err != nil {
			_ = zipClose(zw)
			return err
		}
	}
	return zipClose(zw)
}

// ReadBundle reads a KFX-ZIP archive. Each entry is bounded by
// MaxContainerSize.
func ReadBundle(r io.ReaderAt, size int64, opts ...ReadOption) ([]BundleFile, error) {
	cfg := newReadConfig(opts)
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(zr.File) > cfg.limits.MaxEntities {
		return nil, fmt.Errorf("%w: %d bundle entries", ErrLimitExceeded, len(zr.File))
	}
	out := make([]BundleFile, 0, len(zr.File))
	for _, zf := range zr.File {
		if err := validBundleName(zf.Name); err != nil {
			return nil, err
		}
		if zf.UncompressedSize64 > cfg.limits.MaxContainerSize {
			return nil, fmt.Errorf("%w: bundle entry %s is %d bytes", ErrLimitExceeded, zf.Name, zf.UncompressedSize64)
		}
		b, err := readZipFile(zf, zf.UncompressedSize64)
		if err != nil {
			return nil, err
		}
		if uint64(len(b)) != zf.UncompressedSize64 {
			return nil, fmt.Errorf("%w: bundle entry %s truncated", ErrInvalidPayload, zf.Name)
		}
		out = append(out, BundleFile{Name: zf.Name, Data: b})
	}
	return out, nil
}

func validBundleName(name string) error {
	if name == "" || path.Base(name) != name || strings.ContainsAny(name, `\:`) || !strings.HasSuffix(name, ".kfx") || name == ".kfx" {
		return fmt.Errorf("%w: bundle entry name %q", ErrInvalidPayload, name)
	}
	return nil
}
