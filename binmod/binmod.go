// Package binmod reads and writes the compressed binary module container
// used for executable assemblies.
//
// A module is a fixed 16 byte header followed by a zlib stream:
//
//	offset  field
//	0       magic            Magic
//	4       major version    VersionMajor
//	8       minor version    VersionMinor
//	12      payload size N   size of the inflated payload
//	16..    zlib stream      inflates to exactly N bytes
//
// All header fields are little-endian uint32. The codec knows nothing
// about the payload contents.
package binmod

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

const (
	// Magic identifies a binary module ("LOOM" in file byte order).
	Magic uint32 = 0x4D4F4F4C

	// VersionMajor and VersionMinor are the only accepted versions.
	// There is no forward or backward compatibility.
	VersionMajor uint32 = 1
	VersionMinor uint32 = 4

	// HeaderSize is the size of the fixed header in bytes.
	HeaderSize = 16
)

var (
	ErrShortHeader    = errors.New("binary module shorter than header")
	ErrBadMagic       = errors.New("binary id mismatch")
	ErrMajorVersion   = errors.New("major version mismatch")
	ErrMinorVersion   = errors.New("minor version mismatch")
	ErrCorruptPayload = errors.New("problem uncompressing executable assembly")
	ErrSizeMismatch   = errors.New("read size mismatch")
)

// Header is the parsed fixed header of a binary module.
type Header struct {
	Magic       uint32
	Major       uint32
	Minor       uint32
	PayloadSize uint32
}

// ReadHeader parses and validates the header without touching the payload.
func ReadHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: got %d bytes", ErrShortHeader, len(buf))
	}

	h := Header{
		Magic:       binary.LittleEndian.Uint32(buf[0:]),
		Major:       binary.LittleEndian.Uint32(buf[4:]),
		Minor:       binary.LittleEndian.Uint32(buf[8:]),
		PayloadSize: binary.LittleEndian.Uint32(buf[12:]),
	}

	if h.Magic != Magic {
		return h, fmt.Errorf("%w: expected %#08x, got %#08x", ErrBadMagic, Magic, h.Magic)
	}
	if h.Major != VersionMajor {
		return h, fmt.Errorf("%w: expected %d, got %d", ErrMajorVersion, VersionMajor, h.Major)
	}
	if h.Minor != VersionMinor {
		return h, fmt.Errorf("%w: expected %d, got %d", ErrMinorVersion, VersionMinor, h.Minor)
	}
	return h, nil
}

// Decode validates the header and inflates the payload. The returned
// buffer is owned by the caller and is exactly PayloadSize bytes long, so
// buf may be released (or unmapped) as soon as Decode returns.
func Decode(buf []byte) ([]byte, error) {
	h, err := ReadHeader(buf)
	if err != nil {
		return nil, err
	}

	zr, err := zlib.NewReader(bytes.NewReader(buf[HeaderSize:]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	defer zr.Close()

	// The declared size is untrusted; the buffer grows with the stream and
	// one byte past the declared size is enough to detect a longer payload.
	size := int64(h.PayloadSize)
	out, err := io.ReadAll(io.LimitReader(zr, size+1))
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	if int64(len(out)) > size {
		return nil, fmt.Errorf("%w: payload exceeds declared %d bytes", ErrSizeMismatch, h.PayloadSize)
	}
	if err != nil || int64(len(out)) < size {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrSizeMismatch, h.PayloadSize, len(out))
	}
	return out, nil
}

// Encode wraps payload in a binary module using the given zlib level
// (zlib.DefaultCompression when unsure).
func Encode(payload []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(payload)/2)

	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], Magic)
	binary.LittleEndian.PutUint32(hdr[4:], VersionMajor)
	binary.LittleEndian.PutUint32(hdr[8:], VersionMinor)
	binary.LittleEndian.PutUint32(hdr[12:], uint32(len(payload)))
	buf.Write(hdr[:])

	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("binmod: %w", err)
	}
	if _, err := zw.Write(payload); err != nil {
		return nil, fmt.Errorf("binmod: compress payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("binmod: compress payload: %w", err)
	}
	return buf.Bytes(), nil
}
