package ion

import "fmt"

// appendVarUInt appends v as an Ion VarUInt: 7 data bits per byte, most
// significant group first, end flag on the last byte.
func appendVarUInt(dst []byte, v uint64) []byte {
	var tmp [10]byte
	i := len(tmp) - 1
	tmp[i] = byte(v&0x7F) | 0x80
	v >>= 7
	for v > 0 {
		i--
		tmp[i] = byte(v & 0x7F)
		v >>= 7
	}
	return append(dst, tmp[i:]...)
}

func readVarUInt(b []byte) (uint64, int, error) {
	var v uint64
	for i := 0; i < len(b); i++ {
		if v>>57 != 0 {
			return 0, 0, fmt.Errorf("%w: VarUInt overflow", ErrMalformed)
		}
		v = v<<7 | uint64(b[i]&0x7F)
		if b[i]&0x80 != 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: truncated VarUInt", ErrMalformed)
}

// appendVarInt appends v as an Ion VarInt. The first byte carries the sign in
// bit 6 and six data bits.
func appendVarInt(dst []byte, v int64) []byte {
	neg := v < 0
	mag := uint64(v)
	if neg {
		mag = uint64(-(v + 1)) + 1
	}
	n := 1
	for bits := 6; bits < 64 && mag>>uint(bits) != 0; bits += 7 {
		n++
	}
	out := make([]byte, n)
	for i := n - 1; i > 0; i-- {
		out[i] = byte(mag & 0x7F)
		mag >>= 7
	}
	out[0] = byte(mag & 0x3F)
	if neg {
		out[0] |= 0x40
	}
	out[n-1] |= 0x80
	return append(dst, out...)
}

func readVarInt(b []byte) (int64, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("%w: truncated VarInt", ErrMalformed)
	}
	neg := b[0]&0x40 != 0
	mag := uint64(b[0] & 0x3F)
	n := 1
	end := b[0]&0x80 != 0
	for !end {
		if n >= len(b) {
			return 0, 0, fmt.Errorf("%w: truncated VarInt", ErrMalformed)
		}
		if n >= 10 || mag>>57 != 0 {
			return 0, 0, fmt.Errorf("%w: VarInt overflow", ErrMalformed)
		}
		mag = mag<<7 | uint64(b[n]&0x7F)
		end = b[n]&0x80 != 0
		n++
	}
	if mag > 1<<63 || (!neg && mag == 1<<63) {
		return 0, 0, fmt.Errorf("%w: VarInt overflow", ErrMalformed)
	}
	if neg {
		return -int64(mag-1) - 1, n, nil
	}
	return int64(mag), n, nil
}

// appendUInt appends the minimal big-endian magnitude of v. Zero has no bytes.
func appendUInt(dst []byte, v uint64) []byte {
	n := uintLen(v)
	for i := n - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(uint(i)*8)))
	}
	return dst
}

func uintLen(v uint64) int {
	n := 0
	for v > 0 {
		n++
		v >>= 8
	}
	return n
}

func readUInt(b []byte) (uint64, error) {
	if len(b) > 8 {
		return 0, fmt.Errorf("%w: UInt wider than 64 bits", ErrMalformed)
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

// appendSignedInt appends v as an Ion signed-magnitude Int field. Zero has no
// bytes.
func appendSignedInt(dst []byte, v int64) []byte {
	if v == 0 {
		return dst
	}
	neg := v < 0
	mag := uint64(v)
	if neg {
		mag = uint64(-(v + 1)) + 1
	}
	start := len(dst)
	dst = appendUInt(dst, mag)
	if dst[start]&0x80 != 0 {
		dst = append(dst, 0)
		copy(dst[start+1:], dst[start:len(dst)-1])
		dst[start] = 0
	}
	if neg {
		dst[start] |= 0x80
	}
	return dst
}

func readSignedInt(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if len(b) > 8 {
		return 0, fmt.Errorf("%w: Int wider than 64 bits", ErrMalformed)
	}
	neg := b[0]&0x80 != 0
	mag := uint64(b[0] & 0x7F)
	for _, c := range b[1:] {
		mag = mag<<8 | uint64(c)
	}
	if neg {
		return -int64(mag), nil
	}
	return int64(mag), nil
}
