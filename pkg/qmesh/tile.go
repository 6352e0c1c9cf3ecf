package qmesh

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxTileBytes bounds the inflated size of a tile.
const DefaultMaxTileBytes = 32 << 20

// Tile is a fully decoded quantized-mesh tile. It owns all of its slices;
// nothing in it aliases the input passed to Decode.
type Tile struct {
	Header     Header
	Vertices   Vertices
	Triangles  Triangles
	Edges      Edges
	Extensions []Extension
}

// TriangleCount returns the number of triangles in the tile.
func (t *Tile) TriangleCount() int {
	return int(t.Triangles.Count)
}

// Triangle returns the corner indices of triangle i.
func (t *Tile) Triangle(i int) [3]uint16 {
	return t.Triangles.Triangle(i)
}

// Extension returns the first extension record with the given id.
func (t *Tile) Extension(id ExtensionID) (Extension, bool) {
	for _, ext := range t.Extensions {
		if ext.ID() == id {
			return ext, true
		}
	}
	return nil, false
}

// Normals returns the oct-encoded vertex normals, if the tile has them.
func (t *Tile) Normals() (OctNormals, bool) {
	ext, ok := t.Extension(ExtensionOctNormals)
	if !ok {
		return OctNormals{}, false
	}
	n, ok := ext.(OctNormals)
	return n, ok
}

// Options configures a Decoder. The zero value is usable.
type Options struct {
	// HeaderSize is the length of the opaque header block. Zero means HeaderSize.
	HeaderSize int

	// Compression of the input payload.
	Compression Compression

	// MaxTileBytes bounds the inflated payload. Zero means DefaultMaxTileBytes.
	MaxTileBytes int64

	// Logger receives per-stage debug output. Nil disables logging.
	Logger *zap.Logger
}

// Decoder decodes tiles. It holds no per-tile state, so one Decoder may be
// used from many goroutines at once.
type Decoder struct {
	headerSize   int
	compression  Compression
	maxTileBytes int64
	log          *zap.Logger
}

// NewDecoder returns a decoder for the given options.
func NewDecoder(opts Options) *Decoder {
	d := &Decoder{
		headerSize:   opts.HeaderSize,
		compression:  opts.Compression,
		maxTileBytes: opts.MaxTileBytes,
		log:          opts.Logger,
	}
	if d.headerSize <= 0 {
		d.headerSize = HeaderSize
	}
	if d.maxTileBytes <= 0 {
		d.maxTileBytes = DefaultMaxTileBytes
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	return d
}

// Options returns the effective options of the decoder, with defaults filled in.
func (d *Decoder) Options() Options {
	return Options{
		HeaderSize:   d.headerSize,
		Compression:  d.compression,
		MaxTileBytes: d.maxTileBytes,
		Logger:       d.log,
	}
}

// Decode decodes a tile with default options.
func Decode(data []byte) (*Tile, error) {
	return NewDecoder(Options{}).Decode(context.Background(), data)
}

// DecodeFile reads and decodes a tile from disk.
func (d *Decoder) DecodeFile(ctx context.Context, path string) (*Tile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tile file: %w", err)
	}
	return d.Decode(ctx, data)
}

// Decode inflates data and decodes the tile it contains. On failure it
// returns a *DecodeError and no tile.
func (d *Decoder) Decode(ctx context.Context, data []byte) (*Tile, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, &DecodeError{Stage: StageDecompress, Err: fmt.Errorf("%w: %v", ErrCancelled, err)}
	}
	buf, err := inflate(data, d.compression, d.maxTileBytes)
	if err != nil {
		return nil, &DecodeError{Stage: StageDecompress, Err: err}
	}

	c := NewCursor(buf).WithContext(ctx)
	tile := &Tile{}

	if err := d.stage(c, StageHeader, func() (err error) {
		tile.Header, err = decodeHeader(c, d.headerSize)
		return err
	}); err != nil {
		return nil, err
	}
	if err := d.stage(c, StageVertices, func() (err error) {
		tile.Vertices, err = decodeVertices(c)
		return err
	}); err != nil {
		return nil, err
	}
	vertexCount := tile.Vertices.Count
	if err := d.stage(c, StageTriangles, func() (err error) {
		tile.Triangles, err = decodeTriangles(c, vertexCount)
		return err
	}); err != nil {
		return nil, err
	}
	if err := d.stage(c, StageEdges, func() (err error) {
		tile.Edges, err = decodeEdges(c, vertexCount)
		return err
	}); err != nil {
		return nil, err
	}
	if err := d.stage(c, StageExtensions, func() (err error) {
		tile.Extensions, err = decodeExtensions(c, vertexCount)
		return err
	}); err != nil {
		return nil, err
	}

	d.log.Debug("decoded tile",
		zap.Int("compressed_bytes", len(data)),
		zap.Int("inflated_bytes", len(buf)),
		zap.Uint32("vertices", tile.Vertices.Count),
		zap.Uint32("triangles", tile.Triangles.Count),
		zap.Int("extensions", len(tile.Extensions)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return tile, nil
}

// stage runs one decode step and attaches the stage and failure offset to
// any error it returns.
func (d *Decoder) stage(c *Cursor, s Stage, fn func() error) error {
	if err := c.Err(); err != nil {
		return &DecodeError{Stage: s, Offset: c.Offset(), Err: err}
	}
	begin := c.Offset()
	if err := fn(); err != nil {
		d.log.Debug("tile stage failed",
			zap.Stringer("stage", s),
			zap.Int("offset", c.Offset()),
			zap.Error(err),
		)
		return &DecodeError{Stage: s, Offset: c.Offset(), Err: err}
	}
	d.log.Debug("tile stage done",
		zap.Stringer("stage", s),
		zap.Int("offset", begin),
		zap.Int("bytes", c.Offset()-begin),
	)
	return nil
}
