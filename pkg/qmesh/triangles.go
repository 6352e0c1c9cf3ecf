package qmesh

import "fmt"

// Triangles holds the triangle corner indices of a tile. Every three
// consecutive entries of Indices form one triangle.
type Triangles struct {
	Count   uint32
	Indices []uint16
}

// Triangle returns the corners of triangle i.
func (t *Triangles) Triangle(i int) [3]uint16 {
	return [3]uint16{t.Indices[3*i], t.Indices[3*i+1], t.Indices[3*i+2]}
}

// DecodeHighWaterMark decodes high-water-mark index codes in place.
// A zero code refers to the next unseen vertex and advances the mark;
// any other code is a backward offset from the mark.
func DecodeHighWaterMark(codes []uint16) []uint16 {
	var highest uint16
	for i, code := range codes {
		codes[i] = highest - code
		if code == 0 {
			highest++
		}
	}
	return codes
}

// EncodeHighWaterMark is the inverse of DecodeHighWaterMark. It requires
// that every index is at most one above the highest index seen before it.
func EncodeHighWaterMark(indices []uint16) ([]uint16, error) {
	codes := make([]uint16, len(indices))
	var highest uint32
	for i, idx := range indices {
		if uint32(idx) > highest {
			return nil, fmt.Errorf("%w: index %d at position %d skips past next vertex %d",
				ErrIndexOutOfRange, idx, i, highest)
		}
		code := uint16(highest - uint32(idx))
		codes[i] = code
		if code == 0 {
			highest++
		}
	}
	return codes, nil
}

// checkIndices fails if any index addresses a vertex past count.
func checkIndices(indices []uint16, count uint32, what string) error {
	for i, idx := range indices {
		if uint32(idx) >= count {
			return fmt.Errorf("%w: %s[%d] = %d, vertex count %d", ErrIndexOutOfRange, what, i, idx, count)
		}
	}
	return nil
}

func decodeTriangles(c *Cursor, vertexCount uint32) (Triangles, error) {
	count, err := c.ReadUint32()
	if err != nil {
		return Triangles{}, fmt.Errorf("reading triangle count: %w", err)
	}

	n := 3 * uint64(count)
	if n > uint64(c.Remaining()/2) {
		return Triangles{}, fmt.Errorf("%w: %d triangles need %d bytes, %d remain",
			ErrTruncatedBuffer, count, 2*n, c.Remaining())
	}
	codes, err := c.ReadUint16s(int(n))
	if err != nil {
		return Triangles{}, fmt.Errorf("reading triangle indices: %w", err)
	}

	t := Triangles{Count: count, Indices: DecodeHighWaterMark(codes)}
	if err := checkIndices(t.Indices, vertexCount, "triangle index"); err != nil {
		return Triangles{}, err
	}
	return t, nil
}
