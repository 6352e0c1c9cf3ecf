package qmesh

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// EncodeOptions configures Encode.
type EncodeOptions struct {
	// Compression of the output. CompressionAuto writes gzip.
	Compression Compression

	// Level is the compression level, from flate.NoCompression (0) to
	// flate.BestCompression (9). Nil means flate.DefaultCompression.
	Level *int
}

// Encode writes t in quantized-mesh wire format.
func Encode(w io.Writer, t *Tile, opts EncodeOptions) error {
	raw, err := Marshal(t)
	if err != nil {
		return err
	}

	level := flate.DefaultCompression
	if opts.Level != nil {
		level = *opts.Level
	}

	var zw io.WriteCloser
	switch opts.Compression {
	case CompressionNone:
		_, err := w.Write(raw)
		return err
	case CompressionAuto, CompressionGzip:
		zw, err = gzip.NewWriterLevel(w, level)
	case CompressionZlib:
		zw, err = zlib.NewWriterLevel(w, level)
	case CompressionDeflate:
		zw, err = flate.NewWriter(w, level)
	default:
		return fmt.Errorf("unsupported compression %s", opts.Compression)
	}
	if err != nil {
		return fmt.Errorf("creating %s writer: %w", opts.Compression, err)
	}
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return fmt.Errorf("writing tile: %w", err)
	}
	return zw.Close()
}

// Marshal returns the uncompressed wire bytes of t.
func Marshal(t *Tile) ([]byte, error) {
	v := &t.Vertices
	if v.Count > MaxVertices {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrUnsupportedVertexCount, v.Count, MaxVertices)
	}
	n := int(v.Count)
	if len(v.U) != n || len(v.V) != n || len(v.Height) != n {
		return nil, fmt.Errorf("vertex arrays have lengths %d/%d/%d, want %d", len(v.U), len(v.V), len(v.Height), n)
	}
	if len(t.Triangles.Indices) != 3*int(t.Triangles.Count) {
		return nil, fmt.Errorf("triangle index array has %d entries, want %d",
			len(t.Triangles.Indices), 3*int(t.Triangles.Count))
	}
	if err := checkIndices(t.Triangles.Indices, v.Count, "triangle index"); err != nil {
		return nil, err
	}
	codes, err := EncodeHighWaterMark(t.Triangles.Indices)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	buf.Write(t.Header.Raw)

	binary.Write(buf, binary.LittleEndian, v.Count)
	for _, channel := range [][]uint16{v.U, v.V, v.Height} {
		binary.Write(buf, binary.LittleEndian, encodeDeltas(channel))
	}

	binary.Write(buf, binary.LittleEndian, t.Triangles.Count)
	binary.Write(buf, binary.LittleEndian, codes)

	for _, edge := range [][]uint16{t.Edges.West, t.Edges.South, t.Edges.East, t.Edges.North} {
		if err := checkIndices(edge, v.Count, "edge index"); err != nil {
			return nil, err
		}
		binary.Write(buf, binary.LittleEndian, uint32(len(edge)))
		binary.Write(buf, binary.LittleEndian, edge)
	}

	for _, ext := range t.Extensions {
		payload := ext.Payload()
		buf.WriteByte(uint8(ext.ID()))
		binary.Write(buf, binary.LittleEndian, uint32(len(payload)))
		buf.Write(payload)
	}

	return buf.Bytes(), nil
}

// encodeDeltas returns the zigzag+delta codes of cumulative values.
func encodeDeltas(values []uint16) []uint16 {
	codes := make([]uint16, len(values))
	var prev uint16
	for i, v := range values {
		codes[i] = ZigZagEncode(v - prev)
		prev = v
	}
	return codes
}
