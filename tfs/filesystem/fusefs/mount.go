package fusefs

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/treefs/tfs/filesystem/ops"
)

// DefaultFsName is reported as the mount source when Options.FsName is
// empty.
const DefaultFsName = "treefs"

const negativeTimeout = 100 * time.Millisecond

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted. It is
	// created if it does not exist.
	Mountpoint string

	// Adapter answers every request.
	Adapter *ops.Adapter

	FsName     string
	AllowOther bool
	Debug      bool

	// Kernel cache lifetimes. Zero uses one second.
	EntryTimeout time.Duration
	AttrTimeout  time.Duration

	Logger zerolog.Logger
}

// Mount serves the adapter at the configured mountpoint. The caller must
// call Unmount on the returned server when done.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, errors.New("mountpoint is required")
	}
	if options.Adapter == nil {
		return nil, errors.New("adapter is required")
	}
	if options.FsName == "" {
		options.FsName = DefaultFsName
	}
	if options.EntryTimeout <= 0 {
		options.EntryTimeout = time.Second
	}
	if options.AttrTimeout <= 0 {
		options.AttrTimeout = time.Second
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	logger := options.Logger.With().Str("component", "fusefs").Logger()
	root := NewRoot(options.Adapter, logger)

	entryTimeout := options.EntryTimeout
	attrTimeout := options.AttrTimeout
	negative := negativeTimeout

	server, err := fs.Mount(options.Mountpoint, root, &fs.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negative,
		MountOptions: fuse.MountOptions{
			FsName:     options.FsName,
			Name:       DefaultFsName,
			AllowOther: options.AllowOther,
			Debug:      options.Debug,
			Options:    []string{"ro"},
		},
		UID: uint32(os.Getuid()),
		GID: uint32(os.Getgid()),
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	logger.Info().
		Str("mountpoint", options.Mountpoint).
		Str("fs_name", options.FsName).
		Bool("allow_other", options.AllowOther).
		Msg("filesystem mounted")
	return server, nil
}
