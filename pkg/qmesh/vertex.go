package qmesh

import "fmt"

// MaxVertices is the largest vertex count addressable by 16-bit indices.
const MaxVertices = 65536

// Vertices holds per-vertex quantized coordinates as parallel arrays.
// U, V and Height have Count entries each; values span [0, 32767] for
// well-formed tiles, though any 16-bit value is reproduced as encoded.
type Vertices struct {
	Count  uint32
	U      []uint16
	V      []uint16
	Height []uint16
}

// HeightRange returns the smallest and largest quantized height.
func (v *Vertices) HeightRange() (min, max uint16) {
	if len(v.Height) == 0 {
		return 0, 0
	}

	min, max = v.Height[0], v.Height[0]
	for _, h := range v.Height[1:] {
		if h < min {
			min = h
		}
		if h > max {
			max = h
		}
	}
	return min, max
}

// ZigZagDecode maps a zigzag code back to its 16-bit two's complement delta.
func ZigZagDecode(code uint16) uint16 {
	return (code >> 1) ^ (0 - (code & 1))
}

// ZigZagEncode maps a 16-bit two's complement delta to its zigzag code.
func ZigZagEncode(delta uint16) uint16 {
	d := int16(delta)
	return uint16((d << 1) ^ (d >> 15))
}

// decodeDeltas turns zigzag codes into cumulative values in place.
func decodeDeltas(codes []uint16) {
	var acc uint16
	for i, code := range codes {
		acc += ZigZagDecode(code)
		codes[i] = acc
	}
}

func decodeVertices(c *Cursor) (Vertices, error) {
	count, err := c.ReadUint32()
	if err != nil {
		return Vertices{}, fmt.Errorf("reading vertex count: %w", err)
	}
	if count > MaxVertices {
		return Vertices{}, fmt.Errorf("%w: %d exceeds %d", ErrUnsupportedVertexCount, count, MaxVertices)
	}

	// Channels are stored one after another, not interleaved per vertex.
	n := int(count)
	v := Vertices{Count: count}
	if v.U, err = c.ReadUint16s(n); err != nil {
		return Vertices{}, fmt.Errorf("reading u: %w", err)
	}
	if v.V, err = c.ReadUint16s(n); err != nil {
		return Vertices{}, fmt.Errorf("reading v: %w", err)
	}
	if v.Height, err = c.ReadUint16s(n); err != nil {
		return Vertices{}, fmt.Errorf("reading height: %w", err)
	}

	decodeDeltas(v.U)
	decodeDeltas(v.V)
	decodeDeltas(v.Height)
	return v, nil
}
