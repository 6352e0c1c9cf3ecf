package qmesh

import "fmt"

// Edges lists the vertices lying on each tile border, used to stitch
// neighbouring tiles. The lists are membership sets with no geometric order.
type Edges struct {
	West  []uint16 `json:"west"`
	South []uint16 `json:"south"`
	East  []uint16 `json:"east"`
	North []uint16 `json:"north"`
}

func decodeEdges(c *Cursor, vertexCount uint32) (Edges, error) {
	var e Edges
	lists := []struct {
		name string
		dst  *[]uint16
	}{
		{"west", &e.West},
		{"south", &e.South},
		{"east", &e.East},
		{"north", &e.North},
	}

	for _, l := range lists {
		count, err := c.ReadUint32()
		if err != nil {
			return Edges{}, fmt.Errorf("reading %s edge count: %w", l.name, err)
		}
		if uint64(count) > uint64(c.Remaining()/2) {
			return Edges{}, fmt.Errorf("%w: %s edge has %d indices, %d bytes remain",
				ErrTruncatedBuffer, l.name, count, c.Remaining())
		}
		indices, err := c.ReadUint16s(int(count))
		if err != nil {
			return Edges{}, fmt.Errorf("reading %s edge: %w", l.name, err)
		}
		if err := checkIndices(indices, vertexCount, l.name+" edge"); err != nil {
			return Edges{}, err
		}
		*l.dst = indices
	}
	return e, nil
}
