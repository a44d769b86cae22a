// Package cli implements the stackforge command-line interface.
//
// Commands load a TOML recipe, resolve its options for a target platform and
// drive the lifecycle runner:
//   - run: execute the lifecycle of one or more recipes
//   - options, requirements: inspect the resolved configuration
//   - graph: render the requirement graph as DOT or SVG
//   - info: show a published package
//   - cache: manage the stage cache
//   - serve: run the package-info registry
//
// All commands support --verbose (-v) for debug-level logging.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackforge/pkg/buildinfo"
	"github.com/matzehuels/stackforge/pkg/cache"
	"github.com/matzehuels/stackforge/pkg/pkginfo"
)

const (
	// appName is the application name used for directories and display.
	appName = "stackforge"

	// envCacheDir overrides the cache directory.
	envCacheDir = "STACKFORGE_CACHE_DIR"
	// envStoreDir overrides the package store directory.
	envStoreDir = "STACKFORGE_STORE_DIR"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// global flags
	redisURL string
	mongoURI string
	mongoDB  string
	storeDir string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Stackforge builds native packages from declarative recipes",
		Long:         `Stackforge resolves a recipe's options for a target platform, acquires and patches its source, emits build configuration, builds, installs and publishes package information for consumers.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())

	pf := root.PersistentFlags()
	pf.StringVar(&c.redisURL, "redis-addr", "", "share the stage cache through Redis (redis://host:6379/0)")
	pf.StringVar(&c.mongoURI, "mongo-uri", "", "publish package info to MongoDB instead of the local store")
	pf.StringVar(&c.mongoDB, "mongo-db", appName, "MongoDB database name")
	pf.StringVar(&c.storeDir, "store", "", "package store directory (default: XDG data dir)")

	root.AddCommand(c.runCommand())
	root.AddCommand(c.optionsCommand())
	root.AddCommand(c.requirementsCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.infoCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.versionCommand())
	root.AddCommand(c.completionCommand())
	registerCompletions(root)

	return root
}

// newCache opens the configured stage cache: Redis when --redis-addr is set,
// otherwise the file cache.
func (c *CLI) newCache(ctx context.Context, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	if c.redisURL != "" {
		return cache.NewRedisCache(ctx, c.redisURL)
	}
	dir, err := cacheDir()
	if err != nil {
		c.Logger.Warn("cache disabled", "error", err)
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// openStore opens the package-info store: MongoDB when --mongo-uri is set,
// otherwise a directory tree.
func (c *CLI) openStore(ctx context.Context) (pkginfo.Store, error) {
	if c.mongoURI != "" {
		return pkginfo.NewMongoStore(ctx, c.mongoURI, c.mongoDB)
	}
	dir := c.storeDir
	if dir == "" {
		var err error
		if dir, err = storeDir(); err != nil {
			return nil, err
		}
	}
	return pkginfo.NewFileStore(dir)
}

// cacheDir returns the cache directory ($XDG_CACHE_HOME/stackforge unless
// STACKFORGE_CACHE_DIR is set).
func cacheDir() (string, error) {
	if dir := os.Getenv(envCacheDir); dir != "" {
		return dir, nil
	}
	return filepath.Join(xdg.CacheHome, appName), nil
}

// storeDir returns the package store directory.
func storeDir() (string, error) {
	if dir := os.Getenv(envStoreDir); dir != "" {
		return dir, nil
	}
	return filepath.Join(xdg.DataHome, appName, "packages"), nil
}
