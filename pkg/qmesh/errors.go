package qmesh

import (
	"errors"
	"fmt"
)

// Decode errors. Every error returned by a decode is a *DecodeError wrapping
// one of these, so both errors.Is and errors.As work on the result.
var (
	ErrDecompression          = errors.New("decompression failed")
	ErrTruncatedBuffer        = errors.New("truncated buffer")
	ErrUnsupportedVertexCount = errors.New("unsupported vertex count")
	ErrIndexOutOfRange        = errors.New("index out of range")
	ErrFraming                = errors.New("framing error")
	ErrCancelled              = errors.New("decode cancelled")
)

// Stage identifies the part of a tile being decoded when an error occurred.
type Stage uint8

// Decode stages, in wire order.
const (
	StageDecompress Stage = iota
	StageHeader
	StageVertices
	StageTriangles
	StageEdges
	StageExtensions
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageDecompress:
		return "decompress"
	case StageHeader:
		return "header"
	case StageVertices:
		return "vertices"
	case StageTriangles:
		return "triangles"
	case StageEdges:
		return "edges"
	case StageExtensions:
		return "extensions"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// DecodeError reports the stage and byte offset of a failed decode.
// Offset is relative to the decompressed payload; it is always 0 for
// StageDecompress failures.
type DecodeError struct {
	Stage  Stage
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("qmesh: %s at offset %d: %v", e.Stage, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ErrorKind returns a short, stable name for the class of a decode error.
// It is meant for metric labels and log fields.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrDecompression):
		return "decompression"
	case errors.Is(err, ErrFraming):
		return "framing"
	case errors.Is(err, ErrTruncatedBuffer):
		return "truncated"
	case errors.Is(err, ErrUnsupportedVertexCount):
		return "vertex_count"
	case errors.Is(err, ErrIndexOutOfRange):
		return "index_range"
	default:
		return "other"
	}
}
