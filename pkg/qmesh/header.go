package qmesh

import "fmt"

// HeaderSize is the length of the canonical quantized-mesh tile header.
const HeaderSize = 88

// Header is the fixed-size block at the start of a tile. The decoder passes
// it through opaquely; Fields interprets the canonical layout on demand.
type Header struct {
	Raw []byte
}

// HeaderFields is the canonical 88-byte header layout.
type HeaderFields struct {
	// Center of the tile in Earth-centered Fixed coordinates.
	CenterX, CenterY, CenterZ float64

	// Height range of the tile, in meters.
	MinimumHeight float32
	MaximumHeight float32

	BoundingSphereCenterX float64
	BoundingSphereCenterY float64
	BoundingSphereCenterZ float64
	BoundingSphereRadius  float64

	HorizonOcclusionPointX float64
	HorizonOcclusionPointY float64
	HorizonOcclusionPointZ float64
}

// Fields parses the header using the canonical layout.
func (h Header) Fields() (HeaderFields, error) {
	if len(h.Raw) < HeaderSize {
		return HeaderFields{}, fmt.Errorf("%w: header is %d bytes, need %d", ErrTruncatedBuffer, len(h.Raw), HeaderSize)
	}

	c := NewCursor(h.Raw)
	var f HeaderFields
	var err error
	f64 := func(dst *float64) {
		if err == nil {
			*dst, err = c.ReadFloat64()
		}
	}
	f32 := func(dst *float32) {
		if err == nil {
			*dst, err = c.ReadFloat32()
		}
	}

	f64(&f.CenterX)
	f64(&f.CenterY)
	f64(&f.CenterZ)
	f32(&f.MinimumHeight)
	f32(&f.MaximumHeight)
	f64(&f.BoundingSphereCenterX)
	f64(&f.BoundingSphereCenterY)
	f64(&f.BoundingSphereCenterZ)
	f64(&f.BoundingSphereRadius)
	f64(&f.HorizonOcclusionPointX)
	f64(&f.HorizonOcclusionPointY)
	f64(&f.HorizonOcclusionPointZ)
	if err != nil {
		return HeaderFields{}, fmt.Errorf("reading header fields: %w", err)
	}
	return f, nil
}

func decodeHeader(c *Cursor, size int) (Header, error) {
	raw, err := c.ReadBytes(size)
	if err != nil {
		return Header{}, fmt.Errorf("reading %d-byte header: %w", size, err)
	}
	return Header{Raw: append([]byte(nil), raw...)}, nil
}
