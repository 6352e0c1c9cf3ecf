package qmesh

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Compression selects how a tile payload is inflated.
type Compression uint8

// Supported compressions.
const (
	CompressionAuto Compression = iota // gzip or zlib by header, else raw deflate
	CompressionGzip
	CompressionZlib
	CompressionDeflate
	CompressionNone // payload is already inflated
)

// String returns the compression name as used in configuration files.
func (c Compression) String() string {
	switch c {
	case CompressionAuto:
		return "auto"
	case CompressionGzip:
		return "gzip"
	case CompressionZlib:
		return "zlib"
	case CompressionDeflate:
		return "deflate"
	case CompressionNone:
		return "none"
	default:
		return fmt.Sprintf("Unknown(%d)", c)
	}
}

// ParseCompression parses a compression name.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(name) {
	case "", "auto":
		return CompressionAuto, nil
	case "gzip", "gz":
		return CompressionGzip, nil
	case "zlib":
		return CompressionZlib, nil
	case "deflate", "flate":
		return CompressionDeflate, nil
	case "none", "raw":
		return CompressionNone, nil
	default:
		return CompressionAuto, fmt.Errorf("unknown compression %q", name)
	}
}

// sniffCompression guesses the container of a compressed payload.
func sniffCompression(data []byte) Compression {
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		return CompressionGzip
	}
	// zlib: CM = 8 and the 16-bit header is a multiple of 31.
	if len(data) >= 2 && data[0]&0x0f == 8 && (uint16(data[0])<<8|uint16(data[1]))%31 == 0 {
		return CompressionZlib
	}
	return CompressionDeflate
}

// inflate decompresses data into a new buffer of at most limit bytes.
func inflate(data []byte, comp Compression, limit int64) ([]byte, error) {
	if comp == CompressionAuto {
		comp = sniffCompression(data)
	}

	var r io.ReadCloser
	var err error
	switch comp {
	case CompressionNone:
		if int64(len(data)) > limit {
			return nil, fmt.Errorf("%w: payload of %d bytes exceeds limit of %d", ErrDecompression, len(data), limit)
		}
		return append([]byte(nil), data...), nil
	case CompressionGzip:
		r, err = gzip.NewReader(bytes.NewReader(data))
	case CompressionZlib:
		r, err = zlib.NewReader(bytes.NewReader(data))
	case CompressionDeflate:
		r = flate.NewReader(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: unsupported compression %s", ErrDecompression, comp)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s stream: %v", ErrDecompression, comp, err)
	}
	defer r.Close()

	// Size hint only; never reserve more than the limit allows.
	hint := int64(len(data)) * 4
	if hint > limit {
		hint = limit
	}
	var buf bytes.Buffer
	buf.Grow(int(hint))
	n, err := io.Copy(&buf, io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: inflating %s stream: %v", ErrDecompression, comp, err)
	}
	if n > limit {
		return nil, fmt.Errorf("%w: inflated payload exceeds limit of %d bytes", ErrDecompression, limit)
	}
	return buf.Bytes(), nil
}
