// Package pipeline decodes batches of tile files on a bounded worker pool.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/qmesh/internal/tilecache"
	"github.com/Faultbox/qmesh/pkg/qmesh"
)

// Result is the outcome of decoding one tile.
type Result struct {
	Path    string
	Tile    *qmesh.Tile
	Cached  bool
	Elapsed time.Duration
	Err     error
}

// Options configures a Pipeline.
type Options struct {
	Decoder *qmesh.Decoder
	Cache   *tilecache.Cache // optional
	Workers int
	Timeout time.Duration // per tile, 0 = none
	Logger  *zap.Logger
}

// Pipeline decodes many tiles concurrently with a shared Decoder.
type Pipeline struct {
	decoder *qmesh.Decoder
	cache   *tilecache.Cache
	workers int
	timeout time.Duration
	log     *zap.Logger
}

// New returns a pipeline for the given options.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		decoder: opts.Decoder,
		cache:   opts.Cache,
		workers: opts.Workers,
		timeout: opts.Timeout,
		log:     opts.Logger,
	}
	if p.decoder == nil {
		p.decoder = qmesh.NewDecoder(qmesh.Options{Logger: opts.Logger})
	}
	if p.workers < 1 {
		p.workers = 1
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	return p
}

// DecodeFiles decodes every path and returns one result per path, in input
// order. The returned error combines all per-file failures; results for the
// files that succeeded are valid regardless.
func (p *Pipeline) DecodeFiles(ctx context.Context, paths []string) ([]Result, error) {
	results := make([]Result, len(paths))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < p.workers && w < len(paths); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = p.decodeFile(ctx, paths[i])
			}
		}()
	}

feed:
	for i := range paths {
		select {
		case jobs <- i:
		case <-ctx.Done():
			for j := i; j < len(paths); j++ {
				results[j] = Result{Path: paths[j], Err: fmt.Errorf("%w: %v", qmesh.ErrCancelled, ctx.Err())}
			}
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	var err error
	for _, r := range results {
		if r.Err != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", r.Path, r.Err))
		}
	}
	return results, err
}

func (p *Pipeline) decodeFile(ctx context.Context, path string) Result {
	data, err := os.ReadFile(path)
	if err != nil {
		p.log.Warn("reading tile failed", zap.String("path", path), zap.Error(err))
		return Result{Path: path, Err: fmt.Errorf("reading tile: %w", err)}
	}
	r := p.DecodeBytes(ctx, data)
	r.Path = path
	if r.Err != nil {
		p.log.Warn("decoding tile failed",
			zap.String("path", path),
			zap.String("kind", qmesh.ErrorKind(r.Err)),
			zap.Error(r.Err),
		)
	}
	return r
}

// DecodeBytes decodes one compressed payload, consulting the cache first.
// A cached Tile is shared with other callers and must not be modified.
func (p *Pipeline) DecodeBytes(ctx context.Context, data []byte) Result {
	start := time.Now()

	var key tilecache.Key
	if p.cache != nil {
		if err := ctx.Err(); err != nil {
			return Result{Err: fmt.Errorf("%w: %v", qmesh.ErrCancelled, err), Elapsed: time.Since(start)}
		}
		key = tilecache.KeyOf(data, p.decoder.Options())
		if tile, ok := p.cache.Get(key); ok {
			instrumentCacheHit()
			return Result{Tile: tile, Cached: true, Elapsed: time.Since(start)}
		}
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	tile, err := p.decoder.Decode(ctx, data)
	instrumentDecode(start, len(data), err)
	if err != nil {
		return Result{Err: err, Elapsed: time.Since(start)}
	}

	if p.cache != nil {
		p.cache.Add(key, tile)
	}
	return Result{Tile: tile, Elapsed: time.Since(start)}
}
