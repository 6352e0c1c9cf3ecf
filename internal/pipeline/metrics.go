package pipeline

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Faultbox/qmesh/pkg/qmesh"
)

const (
	resultLabel = "result"
	stageLabel  = "stage"
)

var (
	tilesDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qmesh_tiles_decoded",
		Help: "The number of tiles processed, by outcome.",
	}, []string{
		resultLabel,
	})

	tileDecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qmesh_tile_decode_errors",
		Help: "The decode failures, by failing stage.",
	}, []string{
		stageLabel,
	})

	tileDecodeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qmesh_tile_decode_latency",
		Help:    "The time to read and decode one tile, in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	tileBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qmesh_tile_bytes",
		Help: "The number of compressed tile bytes read.",
	})
)

func instrumentDecode(start time.Time, size int, err error) {
	tileDecodeLatency.Observe(time.Since(start).Seconds())
	tileBytes.Add(float64(size))
	result := "ok"
	if err != nil {
		result = qmesh.ErrorKind(err)
	}
	tilesDecoded.With(prometheus.Labels{
		resultLabel: result,
	}).Inc()

	var de *qmesh.DecodeError
	if errors.As(err, &de) {
		tileDecodeErrors.With(prometheus.Labels{
			stageLabel: de.Stage.String(),
		}).Inc()
	}
}

func instrumentCacheHit() {
	tilesDecoded.With(prometheus.Labels{
		resultLabel: "cached",
	}).Inc()
}
