package internal

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// DefaultAppName is used for config lookup paths and the FUSE fs name
	DefaultAppName        = "treefs"
	DefaultConfigPath     = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultSystemConfig   = filepath.Join("/etc", DefaultAppName)
	DefaultMountPoint     = filepath.Join(os.TempDir(), DefaultAppName)
	DefaultEnvPrefix      = "TREEFS"
	DefaultLogLevel       = "info"
	DefaultEntryTimeout   = 1
	DefaultAttrTimeout    = 1
	DefaultMaxDecodeDepth = 1024
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current working directory if home directory is unavailable
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// GetLogger returns a properly configured zerolog logger instance
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// NewLogger builds the process logger from the configured level name.
// Unknown levels fall back to info. With pretty set, output goes through
// zerolog's console writer instead of JSON lines.
func NewLogger(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if !pretty {
		return GetLogger().Level(lvl)
	}

	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(out).With().Timestamp().Logger().Level(lvl)
}
