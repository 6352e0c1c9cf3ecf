package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/segmentio/encoding/json"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/qmesh/internal/logger"
	"github.com/Faultbox/qmesh/internal/pipeline"
	"github.com/Faultbox/qmesh/internal/tilecache"
	"github.com/Faultbox/qmesh/pkg/qmesh"
)

func (a *app) cmdInfo(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: qmtool info <tile>")
		return 1
	}

	tile, ok := a.decodeFile(args[0])
	if !ok {
		return 1
	}

	fmt.Printf("Tile:       %s\n", args[0])
	if h, err := tile.Header.Fields(); err == nil {
		fmt.Printf("Center:     %.3f, %.3f, %.3f\n", h.CenterX, h.CenterY, h.CenterZ)
		fmt.Printf("Heights:    %.2f .. %.2f m\n", h.MinimumHeight, h.MaximumHeight)
		fmt.Printf("Sphere:     r=%.3f\n", h.BoundingSphereRadius)
	} else {
		fmt.Printf("Header:     %d bytes (non-canonical)\n", len(tile.Header.Raw))
	}

	minH, maxH := tile.Vertices.HeightRange()
	fmt.Printf("Vertices:   %d (quantized height %d..%d)\n", tile.Vertices.Count, minH, maxH)
	fmt.Printf("Triangles:  %d\n", tile.TriangleCount())
	fmt.Printf("Edges:      west=%d south=%d east=%d north=%d\n",
		len(tile.Edges.West), len(tile.Edges.South), len(tile.Edges.East), len(tile.Edges.North))

	if len(tile.Extensions) == 0 {
		fmt.Println("Extensions: none")
		return 0
	}
	fmt.Println("Extensions:")
	for _, ext := range tile.Extensions {
		fmt.Printf("  %-12s id=%-3d %d bytes\n", ext.ID(), uint8(ext.ID()), len(ext.Payload()))
	}
	return 0
}

// tileDump is the JSON shape printed by dump -json.
type tileDump struct {
	Header     *qmesh.HeaderFields `json:"header,omitempty"`
	HeaderSize int                 `json:"headerSize"`
	Vertices   struct {
		Count  uint32   `json:"count"`
		U      []uint16 `json:"u"`
		V      []uint16 `json:"v"`
		Height []uint16 `json:"height"`
	} `json:"vertices"`
	Indices    []uint16        `json:"indices"`
	Edges      qmesh.Edges     `json:"edges"`
	Extensions []extensionDump `json:"extensions"`
}

type extensionDump struct {
	ID     uint8           `json:"id"`
	Name   string          `json:"name"`
	Length int             `json:"length"`
	JSON   json.RawMessage `json:"json,omitempty"`
}

func newTileDump(tile *qmesh.Tile) tileDump {
	var d tileDump
	if h, err := tile.Header.Fields(); err == nil {
		d.Header = &h
	}
	d.HeaderSize = len(tile.Header.Raw)
	d.Vertices.Count = tile.Vertices.Count
	d.Vertices.U = tile.Vertices.U
	d.Vertices.V = tile.Vertices.V
	d.Vertices.Height = tile.Vertices.Height
	d.Indices = tile.Triangles.Indices
	d.Edges = tile.Edges

	d.Extensions = make([]extensionDump, 0, len(tile.Extensions))
	for _, ext := range tile.Extensions {
		ed := extensionDump{
			ID:     uint8(ext.ID()),
			Name:   ext.ID().String(),
			Length: len(ext.Payload()),
		}
		if md, ok := ext.(qmesh.Metadata); ok && json.Valid(md.JSON) {
			ed.JSON = md.JSON
		}
		d.Extensions = append(d.Extensions, ed)
	}
	return d
}

func (a *app) cmdDump(args []string) int {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print as JSON")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: qmtool dump [-json] <tile>")
		return 1
	}

	tile, ok := a.decodeFile(fs.Arg(0))
	if !ok {
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(newTileDump(tile)); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
			return 1
		}
		return 0
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	fmt.Fprintf(w, "# vertices (%d): index u v height\n", tile.Vertices.Count)
	for i := 0; i < int(tile.Vertices.Count); i++ {
		fmt.Fprintf(w, "%d %d %d %d\n", i, tile.Vertices.U[i], tile.Vertices.V[i], tile.Vertices.Height[i])
	}
	fmt.Fprintf(w, "# triangles (%d)\n", tile.TriangleCount())
	for i := 0; i < tile.TriangleCount(); i++ {
		tri := tile.Triangle(i)
		fmt.Fprintf(w, "%d %d %d\n", tri[0], tri[1], tri[2])
	}
	for _, edge := range []struct {
		name    string
		indices []uint16
	}{
		{"west", tile.Edges.West},
		{"south", tile.Edges.South},
		{"east", tile.Edges.East},
		{"north", tile.Edges.North},
	} {
		fmt.Fprintf(w, "# %s edge (%d): %v\n", edge.name, len(edge.indices), edge.indices)
	}
	for _, ext := range tile.Extensions {
		fmt.Fprintf(w, "# extension %s: %d bytes\n", ext.ID(), len(ext.Payload()))
	}
	return 0
}

func (a *app) cmdVerify(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: qmtool verify <tile>...")
		return 1
	}

	failed := 0
	for _, path := range args {
		if _, ok := a.decodeFile(path); !ok {
			failed++
			continue
		}
		fmt.Printf("OK   %s\n", path)
	}

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "\n%d of %d tiles failed\n", failed, len(args))
		return 1
	}
	return 0
}

// collectTiles expands directories into the tile files below them.
func collectTiles(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".terrain") {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", arg, err)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (a *app) cmdBatch(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: qmtool batch <dir|tile>...")
		return 1
	}

	paths, err := collectTiles(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "No .terrain files found")
		return 1
	}

	var cache *tilecache.Cache
	if a.cfg.Cache.Enabled {
		if cache, err = tilecache.New(a.cfg.Cache.Size); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	p := pipeline.New(pipeline.Options{
		Decoder: a.decoder,
		Cache:   cache,
		Workers: a.cfg.Batch.Workers,
		Timeout: a.cfg.Batch.Timeout,
		Logger:  logger.Log.Named("pipeline"),
	})

	start := time.Now()
	results, err := p.DecodeFiles(context.Background(), paths)
	elapsed := time.Since(start)

	var vertices, triangles uint64
	cached := 0
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		if r.Cached {
			cached++
		}
		vertices += uint64(r.Tile.Vertices.Count)
		triangles += uint64(r.Tile.Triangles.Count)
	}
	failures := multierr.Errors(err)

	fmt.Printf("Tiles:      %d (%d failed, %d cached)\n", len(results), len(failures), cached)
	fmt.Printf("Vertices:   %d\n", vertices)
	fmt.Printf("Triangles:  %d\n", triangles)
	fmt.Printf("Elapsed:    %s with %d workers\n", elapsed.Round(time.Millisecond), a.cfg.Batch.Workers)
	for _, f := range failures {
		fmt.Fprintf(os.Stderr, "  %v\n", f)
	}

	logger.Info("batch finished",
		zap.Int("tiles", len(results)),
		zap.Int("failed", len(failures)),
		zap.Duration("elapsed", elapsed),
	)

	if a.cfg.Metrics.Output != "" {
		if err := writeMetrics(a.cfg.Metrics.Output, prometheus.DefaultGatherer); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing metrics: %v\n", err)
			return 1
		}
	}

	if len(failures) > 0 {
		return 1
	}
	return 0
}

// writeMetrics dumps the qmesh metric families in Prometheus text format.
func writeMetrics(path string, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "qmesh_") {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (a *app) cmdStrip(args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: qmtool strip <in> <out>")
		return 1
	}

	tile, ok := a.decodeFile(args[0])
	if !ok {
		return 1
	}

	kept := tile.Extensions[:0:0]
	dropped := 0
	for _, ext := range tile.Extensions {
		if _, unknown := ext.(qmesh.UnknownExtension); unknown {
			dropped++
			continue
		}
		kept = append(kept, ext)
	}
	stripped := *tile
	stripped.Extensions = kept

	out, err := os.Create(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := qmesh.Encode(out, &stripped, qmesh.EncodeOptions{Compression: qmesh.CompressionGzip}); err != nil {
		out.Close()
		fmt.Fprintf(os.Stderr, "Error encoding tile: %v\n", err)
		return 1
	}
	if err := out.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("Wrote: %s (%d extensions dropped)\n", args[1], dropped)
	return 0
}
