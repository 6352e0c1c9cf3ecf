package qmesh

import (
	"fmt"

	"github.com/segmentio/encoding/json"
)

// ExtensionID identifies a trailing extension record.
type ExtensionID uint8

// Known extension ids.
const (
	ExtensionOctNormals ExtensionID = 1
	ExtensionWaterMask  ExtensionID = 2
	ExtensionMetadata   ExtensionID = 4
)

// String returns a human-readable extension name.
func (id ExtensionID) String() string {
	switch id {
	case ExtensionOctNormals:
		return "OctNormals"
	case ExtensionWaterMask:
		return "WaterMask"
	case ExtensionMetadata:
		return "Metadata"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(id))
	}
}

// extensionHeaderSize is the id byte plus the u32 payload length.
const extensionHeaderSize = 5

// WaterMaskSize is the side length of a per-texel water mask.
const WaterMaskSize = 256

// Extension is one record of the extension chain.
type Extension interface {
	ID() ExtensionID
	// Payload returns the record body exactly as it appeared on the wire.
	Payload() []byte
}

// OctNormals holds one oct-encoded normal per vertex as raw byte pairs.
type OctNormals struct {
	XY []byte
}

func (OctNormals) ID() ExtensionID { return ExtensionOctNormals }
func (n OctNormals) Payload() []byte { return n.XY }

// Normal returns the oct-encoded byte pair of vertex i.
func (n OctNormals) Normal(i int) (x, y uint8) {
	return n.XY[2*i], n.XY[2*i+1]
}

// WaterMask marks which parts of a tile are water. A single byte covers the
// whole tile (0 = land, 255 = water); otherwise Mask is 256x256 texels,
// row-major from north to south.
type WaterMask struct {
	Mask []byte
}

func (WaterMask) ID() ExtensionID { return ExtensionWaterMask }
func (w WaterMask) Payload() []byte { return w.Mask }

// Uniform reports whether the mask is a single value for the whole tile.
func (w WaterMask) Uniform() bool {
	return len(w.Mask) == 1
}

// Metadata carries a JSON document attached to the tile.
type Metadata struct {
	JSON []byte
}

func (Metadata) ID() ExtensionID { return ExtensionMetadata }

// Payload reconstructs the length-prefixed wire body.
func (m Metadata) Payload() []byte {
	n := len(m.JSON)
	out := make([]byte, 4, 4+n)
	out[0], out[1], out[2], out[3] = byte(n), byte(n>>8), byte(n>>16), byte(n>>24)
	return append(out, m.JSON...)
}

// Decode unmarshals the metadata document into v.
func (m Metadata) Decode(v any) error {
	if err := json.Unmarshal(m.JSON, v); err != nil {
		return fmt.Errorf("decoding tile metadata: %w", err)
	}
	return nil
}

// UnknownExtension is a record whose id the decoder does not interpret.
// It is kept verbatim so the chain can be inspected or re-encoded.
type UnknownExtension struct {
	ExtID ExtensionID
	Data  []byte
}

func (u UnknownExtension) ID() ExtensionID { return u.ExtID }
func (u UnknownExtension) Payload() []byte { return u.Data }

// decodeExtensions reads records until the buffer is exhausted. Running out
// of bytes mid-record is a framing error, not a plain truncation.
func decodeExtensions(c *Cursor, vertexCount uint32) ([]Extension, error) {
	var exts []Extension
	for c.HasRemaining() {
		if c.Remaining() < extensionHeaderSize {
			return nil, fmt.Errorf("%w: %d trailing bytes after last extension", ErrFraming, c.Remaining())
		}
		id, err := c.ReadUint8()
		if err != nil {
			return nil, err
		}
		length, err := c.ReadUint32()
		if err != nil {
			return nil, err
		}
		if uint64(length) > uint64(c.Remaining()) {
			return nil, fmt.Errorf("%w: extension %s declares %d bytes, %d remain: %w",
				ErrFraming, ExtensionID(id), length, c.Remaining(), ErrTruncatedBuffer)
		}
		payload, err := c.ReadBytes(int(length))
		if err != nil {
			return nil, err
		}

		ext, err := parseExtension(ExtensionID(id), payload, vertexCount)
		if err != nil {
			return nil, err
		}
		exts = append(exts, ext)
	}
	return exts, nil
}

// parseExtension interprets one payload. The payload is copied so the
// result does not alias the decode buffer.
func parseExtension(id ExtensionID, payload []byte, vertexCount uint32) (Extension, error) {
	body := append([]byte(nil), payload...)

	switch id {
	case ExtensionOctNormals:
		if uint64(len(body)) != 2*uint64(vertexCount) {
			return nil, fmt.Errorf("%w: oct normals are %d bytes, want %d for %d vertices",
				ErrFraming, len(body), 2*uint64(vertexCount), vertexCount)
		}
		return OctNormals{XY: body}, nil

	case ExtensionWaterMask:
		if len(body) != 1 && len(body) != WaterMaskSize*WaterMaskSize {
			return nil, fmt.Errorf("%w: water mask is %d bytes, want 1 or %d",
				ErrFraming, len(body), WaterMaskSize*WaterMaskSize)
		}
		return WaterMask{Mask: body}, nil

	case ExtensionMetadata:
		mc := NewCursor(body)
		n, err := mc.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("%w: metadata length: %w", ErrFraming, err)
		}
		if uint64(n) != uint64(mc.Remaining()) {
			return nil, fmt.Errorf("%w: metadata declares %d JSON bytes, record holds %d",
				ErrFraming, n, mc.Remaining())
		}
		return Metadata{JSON: body[4:]}, nil

	default:
		return UnknownExtension{ExtID: id, Data: body}, nil
	}
}
