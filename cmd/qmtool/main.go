// qmtool is a CLI utility for inspecting and checking quantized-mesh terrain tiles.
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/qmesh/internal/config"
	"github.com/Faultbox/qmesh/internal/logger"
	"github.com/Faultbox/qmesh/pkg/qmesh"
)

func main() {
	config.ParseFlags()
	args := config.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	app, err := newApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	command := args[0]
	rest := args[1:]

	var code int
	switch command {
	case "info":
		code = app.cmdInfo(rest)
	case "dump":
		code = app.cmdDump(rest)
	case "verify", "check":
		code = app.cmdVerify(rest)
	case "batch":
		code = app.cmdBatch(rest)
	case "strip":
		code = app.cmdStrip(rest)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		code = 1
	}

	logger.Sync()
	os.Exit(code)
}

func printUsage() {
	fmt.Println(`qmtool - quantized-mesh terrain tile utility

Usage:
  qmtool [global flags] <command> [options]

Commands:
  info <tile>                   Show tile summary
  dump [-json] <tile>           Print all decoded arrays
  verify <tile>...              Decode tiles and report failures
  batch <dir|tile>...           Decode many tiles concurrently
  strip <in> <out>              Re-encode a tile without unknown extensions

Global flags:
  -config <file>    Config file (default ./qmtool.yaml)
  -debug            Enable debug logging
  -workers <n>      Concurrent decode workers
  -compression <c>  auto, gzip, zlib, deflate or none
  -no-cache         Disable the decoded tile cache
  -metrics-out <f>  Write decode metrics after batch

Examples:
  qmtool info 0/0/0.terrain
  qmtool dump -json 12/2048/1400.terrain > tile.json
  qmtool -workers 8 -metrics-out metrics.prom batch ./tiles`)
}

// app holds what every command needs.
type app struct {
	cfg     *config.Config
	decoder *qmesh.Decoder
}

func newApp(cfg *config.Config) (*app, error) {
	opts, err := cfg.Decoder.Options()
	if err != nil {
		return nil, err
	}
	opts.Logger = logger.Log.Named("qmesh")
	return &app{cfg: cfg, decoder: qmesh.NewDecoder(opts)}, nil
}

// decodeFile decodes one tile and prints any error in a uniform way.
func (a *app) decodeFile(path string) (*qmesh.Tile, bool) {
	tile, err := a.decoder.DecodeFile(context.Background(), path)
	if err != nil {
		logger.Debug("decode failed", zap.String("path", path), zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", path, err)
		return nil, false
	}
	return tile, true
}
