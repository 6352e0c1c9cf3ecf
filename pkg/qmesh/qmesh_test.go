package qmesh

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"runtime"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

// testExtension is a raw extension record for fixtures.
type testExtension struct {
	id      uint8
	payload []byte
}

// testTile describes the wire-level content of a fixture tile.
type testTile struct {
	uCodes, vCodes, hCodes []uint16
	vertexCount            uint32 // overrides len(uCodes) when non-zero
	triangleCodes          []uint16
	triangleCount          uint32 // overrides len(triangleCodes)/3 when non-zero
	edges                  [4][]uint16
	extensions             []testExtension
	trailing               []byte
}

// createTestTile writes the uncompressed wire bytes of tt.
func createTestTile(tt testTile) []byte {
	buf := new(bytes.Buffer)

	header := make([]byte, HeaderSize)
	for i := range header {
		header[i] = byte(i)
	}
	buf.Write(header)

	count := uint32(len(tt.uCodes))
	if tt.vertexCount != 0 {
		count = tt.vertexCount
	}
	binary.Write(buf, binary.LittleEndian, count)
	binary.Write(buf, binary.LittleEndian, tt.uCodes)
	binary.Write(buf, binary.LittleEndian, tt.vCodes)
	binary.Write(buf, binary.LittleEndian, tt.hCodes)

	triangles := uint32(len(tt.triangleCodes) / 3)
	if tt.triangleCount != 0 {
		triangles = tt.triangleCount
	}
	binary.Write(buf, binary.LittleEndian, triangles)
	binary.Write(buf, binary.LittleEndian, tt.triangleCodes)

	for _, edge := range tt.edges {
		binary.Write(buf, binary.LittleEndian, uint32(len(edge)))
		binary.Write(buf, binary.LittleEndian, edge)
	}

	for _, ext := range tt.extensions {
		buf.WriteByte(ext.id)
		binary.Write(buf, binary.LittleEndian, uint32(len(ext.payload)))
		buf.Write(ext.payload)
	}
	buf.Write(tt.trailing)

	return buf.Bytes()
}

func gzipBytes(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// fourVertexTile is a small well-formed tile: two triangles over four vertices.
func fourVertexTile() testTile {
	return testTile{
		uCodes:        []uint16{0, 10, 0, 14}, // 0, 5, 5, 12
		vCodes:        []uint16{2, 1, 4, 3},   // 1, 0, 2, 0
		hCodes:        []uint16{200, 0, 1, 2}, // 100, 100, 99, 100
		triangleCodes: []uint16{0, 0, 0, 1, 0, 2},
		edges:         [4][]uint16{{0}, {0, 1}, {3}, {2, 3}},
	}
}

func decodeRaw(t *testing.T, raw []byte) (*Tile, error) {
	t.Helper()
	return NewDecoder(Options{Compression: CompressionNone}).Decode(context.Background(), raw)
}

func requireDecodeError(t *testing.T, err error, target error, stage Stage) *DecodeError {
	t.Helper()
	require.ErrorIs(t, err, target)
	var de *DecodeError
	require.True(t, errors.As(err, &de), "expected *DecodeError, got %T", err)
	require.Equal(t, stage, de.Stage)
	return de
}

func TestDecode_WellFormedTile(t *testing.T) {
	tile, err := Decode(gzipBytes(t, createTestTile(fourVertexTile())))
	require.NoError(t, err)

	require.Len(t, tile.Header.Raw, HeaderSize)
	require.Equal(t, uint32(4), tile.Vertices.Count)
	require.Equal(t, []uint16{0, 5, 5, 12}, tile.Vertices.U)
	require.Equal(t, []uint16{1, 0, 2, 0}, tile.Vertices.V)
	require.Equal(t, []uint16{100, 100, 99, 100}, tile.Vertices.Height)

	require.Equal(t, 2, tile.TriangleCount())
	require.Equal(t, []uint16{0, 1, 2, 2, 3, 2}, tile.Triangles.Indices)
	require.Equal(t, [3]uint16{2, 3, 2}, tile.Triangle(1))

	require.Equal(t, []uint16{0}, tile.Edges.West)
	require.Equal(t, []uint16{0, 1}, tile.Edges.South)
	require.Equal(t, []uint16{3}, tile.Edges.East)
	require.Equal(t, []uint16{2, 3}, tile.Edges.North)
	require.Empty(t, tile.Extensions)
}

func TestDecode_EmptyTile(t *testing.T) {
	tile, err := decodeRaw(t, createTestTile(testTile{}))
	require.NoError(t, err)
	require.Zero(t, tile.Vertices.Count)
	require.Empty(t, tile.Triangles.Indices)
}

func TestDecode_UnsupportedVertexCount(t *testing.T) {
	raw := createTestTile(testTile{vertexCount: MaxVertices + 1})

	_, err := decodeRaw(t, raw)
	de := requireDecodeError(t, err, ErrUnsupportedVertexCount, StageVertices)
	require.Equal(t, HeaderSize+4, de.Offset)
}

func TestDecode_TruncatedVertexBlock(t *testing.T) {
	tt := fourVertexTile()
	tt.vertexCount = 100

	_, err := decodeRaw(t, createTestTile(tt))
	requireDecodeError(t, err, ErrTruncatedBuffer, StageVertices)
}

func TestDecode_TruncatedHeader(t *testing.T) {
	_, err := decodeRaw(t, make([]byte, HeaderSize-1))
	de := requireDecodeError(t, err, ErrTruncatedBuffer, StageHeader)
	require.Zero(t, de.Offset)
}

func TestDecode_TriangleIndexOutOfRange(t *testing.T) {
	tt := fourVertexTile()
	// 0,0,0,0 then 0 again reaches index 4 == vertexCount.
	tt.triangleCodes = []uint16{0, 0, 0, 0, 0, 1}

	_, err := decodeRaw(t, createTestTile(tt))
	requireDecodeError(t, err, ErrIndexOutOfRange, StageTriangles)
}

func TestDecode_TriangleCountTooLarge(t *testing.T) {
	tt := fourVertexTile()
	tt.triangleCount = 1 << 30

	_, err := decodeRaw(t, createTestTile(tt))
	requireDecodeError(t, err, ErrTruncatedBuffer, StageTriangles)
}

func TestDecode_EdgeIndexOutOfRange(t *testing.T) {
	for side := 0; side < 4; side++ {
		tt := fourVertexTile()
		tt.edges[side] = []uint16{1, 4}

		_, err := decodeRaw(t, createTestTile(tt))
		requireDecodeError(t, err, ErrIndexOutOfRange, StageEdges)
	}
}

func TestDecode_SkipsUnknownExtension(t *testing.T) {
	tt := fourVertexTile()
	normals := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	tt.extensions = []testExtension{
		{id: 9, payload: []byte("ABCD")},
		{id: 1, payload: normals},
	}

	tile, err := decodeRaw(t, createTestTile(tt))
	require.NoError(t, err)
	require.Len(t, tile.Extensions, 2)

	unknown, ok := tile.Extensions[0].(UnknownExtension)
	require.True(t, ok)
	require.Equal(t, ExtensionID(9), unknown.ID())
	require.Equal(t, []byte("ABCD"), unknown.Payload())

	n, ok := tile.Normals()
	require.True(t, ok)
	require.Equal(t, normals, n.XY)
	x, y := n.Normal(3)
	require.Equal(t, uint8(7), x)
	require.Equal(t, uint8(8), y)
}

func TestDecode_OctNormalsWrongLength(t *testing.T) {
	tt := fourVertexTile()
	tt.extensions = []testExtension{{id: 1, payload: []byte{1, 2, 3}}}

	_, err := decodeRaw(t, createTestTile(tt))
	requireDecodeError(t, err, ErrFraming, StageExtensions)
}

func TestDecode_TrailingBytes(t *testing.T) {
	for n := 1; n < extensionHeaderSize; n++ {
		tt := fourVertexTile()
		tt.extensions = []testExtension{{id: 9, payload: []byte("ABCD")}}
		tt.trailing = bytes.Repeat([]byte{0xAA}, n)

		_, err := decodeRaw(t, createTestTile(tt))
		requireDecodeError(t, err, ErrFraming, StageExtensions)
	}
}

func TestDecode_ExtensionPayloadShort(t *testing.T) {
	raw := createTestTile(fourVertexTile())
	raw = append(raw, 9)
	raw = binary.LittleEndian.AppendUint32(raw, 100)
	raw = append(raw, "short"...)

	_, err := decodeRaw(t, raw)
	requireDecodeError(t, err, ErrFraming, StageExtensions)
	require.ErrorIs(t, err, ErrTruncatedBuffer)
}

func TestDecode_WaterMaskAndMetadata(t *testing.T) {
	doc := []byte(`{"available":[[{"startX":0,"startY":0,"endX":1,"endY":1}]]}`)
	meta := binary.LittleEndian.AppendUint32(nil, uint32(len(doc)))
	meta = append(meta, doc...)

	tt := fourVertexTile()
	tt.extensions = []testExtension{
		{id: 2, payload: []byte{255}},
		{id: 4, payload: meta},
	}

	tile, err := decodeRaw(t, createTestTile(tt))
	require.NoError(t, err)

	ext, ok := tile.Extension(ExtensionWaterMask)
	require.True(t, ok)
	require.True(t, ext.(WaterMask).Uniform())

	ext, ok = tile.Extension(ExtensionMetadata)
	require.True(t, ok)
	md := ext.(Metadata)
	require.Equal(t, doc, md.JSON)
	require.Equal(t, meta, md.Payload())

	var parsed struct {
		Available [][]struct {
			StartX int `json:"startX"`
			StartY int `json:"startY"`
			EndX   int `json:"endX"`
			EndY   int `json:"endY"`
		} `json:"available"`
	}
	require.NoError(t, md.Decode(&parsed))
	require.Len(t, parsed.Available, 1)
	require.Equal(t, 1, parsed.Available[0][0].EndX)
}

func TestDecode_WaterMaskWrongSize(t *testing.T) {
	tt := fourVertexTile()
	tt.extensions = []testExtension{{id: 2, payload: []byte{0, 1}}}

	_, err := decodeRaw(t, createTestTile(tt))
	requireDecodeError(t, err, ErrFraming, StageExtensions)
}

func TestDecode_MalformedCompression(t *testing.T) {
	compressed := gzipBytes(t, createTestTile(fourVertexTile()))

	_, err := Decode(compressed[:len(compressed)/2])
	requireDecodeError(t, err, ErrDecompression, StageDecompress)

	_, err = NewDecoder(Options{Compression: CompressionZlib}).Decode(context.Background(), []byte("not zlib"))
	requireDecodeError(t, err, ErrDecompression, StageDecompress)
}

func TestDecode_MaxTileBytes(t *testing.T) {
	raw := createTestTile(fourVertexTile())
	d := NewDecoder(Options{MaxTileBytes: int64(len(raw) - 1)})

	_, err := d.Decode(context.Background(), gzipBytes(t, raw))
	requireDecodeError(t, err, ErrDecompression, StageDecompress)
}

func TestDecode_MaxTileBytesBoundsAllocation(t *testing.T) {
	// 0xFF starts a deflate block with the reserved type, so the stream is
	// corrupt from its first byte.
	payload := bytes.Repeat([]byte{0xFF}, 64<<20)
	d := NewDecoder(Options{Compression: CompressionDeflate, MaxTileBytes: 1024})

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	_, err := d.Decode(context.Background(), payload)
	runtime.ReadMemStats(&after)

	requireDecodeError(t, err, ErrDecompression, StageDecompress)
	allocated := after.TotalAlloc - before.TotalAlloc
	require.Less(t, allocated, uint64(4<<20), "decode allocated %d bytes with a 1KiB limit", allocated)
}

// pollLimitContext reports cancellation once Err has been called more than
// limit times, making the point of cancellation deterministic.
type pollLimitContext struct {
	context.Context
	mu    sync.Mutex
	polls int
	limit int
}

func (c *pollLimitContext) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls++
	if c.polls > c.limit {
		return context.Canceled
	}
	return nil
}

func TestDecode_CancelledMidStage(t *testing.T) {
	tt := fourVertexTile()
	tt.extensions = []testExtension{
		{id: 9, payload: make([]byte, 2*cancelCheckInterval)},
		{id: 9, payload: []byte("ABCD")},
	}
	raw := createTestTile(tt)

	// Polls before the second extension header: the entry check, one per
	// stage, and the first cursor read. The next poll comes after the large
	// payload has pushed the cursor past the check interval.
	ctx := &pollLimitContext{Context: context.Background(), limit: 7}

	_, err := NewDecoder(Options{Compression: CompressionNone}).Decode(ctx, raw)
	de := requireDecodeError(t, err, ErrCancelled, StageExtensions)
	require.Greater(t, de.Offset, cancelCheckInterval)
	require.Less(t, de.Offset, len(raw))
}

func TestDecode_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDecoder(Options{}).Decode(ctx, gzipBytes(t, createTestTile(fourVertexTile())))
	require.ErrorIs(t, err, ErrCancelled)
	require.Equal(t, "cancelled", ErrorKind(err))
}

func TestDecode_DoesNotAliasInput(t *testing.T) {
	tt := fourVertexTile()
	tt.extensions = []testExtension{{id: 9, payload: []byte("ABCD")}}
	raw := createTestTile(tt)

	tile, err := decodeRaw(t, raw)
	require.NoError(t, err)

	for i := range raw {
		raw[i] = 0
	}
	require.Equal(t, byte(1), tile.Header.Raw[1])
	require.Equal(t, []byte("ABCD"), tile.Extensions[0].Payload())
}

func TestDecode_ConcurrentMatchesSequential(t *testing.T) {
	second := testTile{
		uCodes:        []uint16{4, 2, 1},
		vCodes:        []uint16{0, 6, 5},
		hCodes:        []uint16{65534, 1, 1},
		triangleCodes: []uint16{0, 0, 0},
		edges:         [4][]uint16{{0}, {1}, {2}, {}},
	}
	inputs := [][]byte{
		gzipBytes(t, createTestTile(fourVertexTile())),
		gzipBytes(t, createTestTile(second)),
	}

	d := NewDecoder(Options{})
	want := make([]*Tile, len(inputs))
	for i, in := range inputs {
		tile, err := d.Decode(context.Background(), in)
		require.NoError(t, err)
		want[i] = tile
	}

	const rounds = 16
	got := make([]*Tile, rounds*len(inputs))
	errs := make([]error, len(got))
	var wg sync.WaitGroup
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], errs[i] = d.Decode(context.Background(), inputs[i%len(inputs)])
		}(i)
	}
	wg.Wait()

	for i := range got {
		require.NoError(t, errs[i])
		require.Equal(t, want[i%len(inputs)], got[i])
	}
}

func TestDecodeErrorMessage(t *testing.T) {
	err := &DecodeError{Stage: StageEdges, Offset: 120, Err: ErrIndexOutOfRange}
	require.Equal(t, "qmesh: edges at offset 120: index out of range", err.Error())
	require.Equal(t, "index_range", ErrorKind(err))
	require.Equal(t, "none", ErrorKind(nil))
	require.Equal(t, "other", ErrorKind(errors.New("boom")))
}
