// Command treefs mounts an in-memory tree read-only through FUSE. The
// tree starts empty or is restored from an encoded seed file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	internal "github.com/ZanzyTHEbar/treefs/tfs"
	"github.com/ZanzyTHEbar/treefs/tfs/codec"
	"github.com/ZanzyTHEbar/treefs/tfs/config"
	"github.com/ZanzyTHEbar/treefs/tfs/filesystem/fusefs"
	"github.com/ZanzyTHEbar/treefs/tfs/filesystem/ops"
	"github.com/ZanzyTHEbar/treefs/tfs/trees"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		mountpoint string
		seedFile   string
		logLevel   string
	)
	flag.StringVar(&configPath, "config", "", "config file (default: search ., ~/.config/treefs, /etc/treefs)")
	flag.StringVar(&mountpoint, "mountpoint", "", "directory to mount the tree at (overrides mount.point)")
	flag.StringVar(&seedFile, "seed", "", "encoded tree to restore before mounting (overrides tree.seedFile)")
	flag.StringVar(&logLevel, "log-level", "", "log level (overrides log.level)")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if flag.CommandLine.Changed("mountpoint") {
		cfg.Mount.Point = mountpoint
	}
	if flag.CommandLine.Changed("seed") {
		cfg.Tree.SeedFile = seedFile
	}
	if flag.CommandLine.Changed("log-level") {
		cfg.Log.Level = logLevel
	}

	logger := internal.NewLogger(cfg.Log.Level, cfg.Log.Pretty)

	tree := trees.NewTree(
		trees.WithLogger(logger),
		trees.WithPathIndex(cfg.Tree.PathIndex),
	)
	if cfg.Tree.SeedFile != "" {
		if err := restoreSeed(tree, cfg.Tree.SeedFile, cfg.Tree.MaxDecodeDepth, logger); err != nil {
			return err
		}
	}

	adapter := ops.New(tree)

	server, err := fusefs.Mount(fusefs.Options{
		Mountpoint:   cfg.Mount.Point,
		Adapter:      adapter,
		FsName:       cfg.Mount.FsName,
		AllowOther:   cfg.Mount.AllowOther,
		Debug:        cfg.Mount.Debug,
		EntryTimeout: cfg.Mount.EntryTimeout(),
		AttrTimeout:  cfg.Mount.AttrTimeout(),
		Logger:       tree.Logger(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	served := make(chan struct{})
	go func() {
		server.Wait()
		close(served)
	}()

	log := tree.Logger()
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		if err := server.Unmount(); err != nil {
			return fmt.Errorf("unmounting %s: %w", cfg.Mount.Point, err)
		}
		<-served
	case <-served:
		log.Info().Msg("filesystem unmounted externally")
	}

	stats := adapter.Stats()
	event := log.Info()
	for op, st := range stats.Operations {
		event = event.Dict(op, zerolog.Dict().Int64("calls", st.Calls).Int64("errors", st.Errors))
	}
	if idx, ok := tree.IndexStats(); ok {
		event = event.Dict("path_index", zerolog.Dict().
			Int64("lookups", idx.PathLookups).
			Int64("hits", idx.Hits).
			Int64("misses", idx.Misses).
			Int64("rebuilds", idx.Rebuilds))
	}
	event.Msg("operation totals")
	return nil
}

func restoreSeed(tree *trees.Tree, path string, maxDepth int, logger zerolog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}
	if err := codec.Restore(tree, data, codec.WithMaxDepth(maxDepth)); err != nil {
		return fmt.Errorf("restoring seed file %s: %w", path, err)
	}

	m := tree.Metrics()
	logger.Info().
		Str("seed", path).
		Int64("files", m.TotalFiles).
		Int64("dirs", m.TotalDirs).
		Int64("bytes", m.TotalBytes).
		Int("max_depth", m.MaxDepth).
		Msg("tree restored")

	for _, err := range tree.ValidateIndex() {
		logger.Warn().Err(err).Msg("path index disagrees with tree")
	}
	return nil
}
