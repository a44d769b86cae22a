// Package cache stores lifecycle results that are expensive to recompute.
//
// The lifecycle runner uses a [Cache] to remember which source trees have
// already been acquired (keyed by upstream URL, pinned revision, submodule
// depth and the ordered patch digests) and the package-info published by the
// last successful run. Three backends are provided:
//
//   - [FileCache]: JSON entries under a local directory, for the CLI
//   - [RedisCache]: a shared Redis instance, for build farms running many hosts
//   - [NullCache]: never stores anything, disables caching
//
// Keys are derived by a [Keyer]; [ScopedKeyer] adds a namespace prefix so
// several workspaces can share one backend.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with optional expiry.
type Cache interface {
	// Get returns the stored value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}

// Keyer derives cache keys from lifecycle inputs.
type Keyer interface {
	// SourceKey identifies an acquired, patched source tree.
	SourceKey(opts SourceKeyOpts) string
	// PackageKey identifies published package-info for one configuration.
	PackageKey(name, version string, opts PackageKeyOpts) string
}

// SourceKeyOpts are the inputs that determine an acquired source tree.
type SourceKeyOpts struct {
	URL            string   `json:"url"`
	Revision       string   `json:"revision"`
	SubmoduleDepth int      `json:"submodule_depth"`
	Patches        []string `json:"patches"` // content digests, in application order
}

// PackageKeyOpts are the inputs that determine a package's binary identity.
type PackageKeyOpts struct {
	Platform string            `json:"platform"`
	Profile  string            `json:"profile"`
	Options  map[string]string `json:"options"`
}

// DefaultKeyer hashes key inputs with SHA-256.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// SourceKey implements Keyer.
func (DefaultKeyer) SourceKey(opts SourceKeyOpts) string {
	if opts.Patches == nil {
		opts.Patches = []string{}
	}
	return hashKey("source", opts.URL, opts.Revision, opts.SubmoduleDepth, opts.Patches)
}

// PackageKey implements Keyer. Option maps are encoded by encoding/json,
// which sorts keys, so equal option sets hash equally.
func (DefaultKeyer) PackageKey(name, version string, opts PackageKeyOpts) string {
	return hashKey("package:"+name+"/"+version, opts.Platform, opts.Profile, opts.Options)
}
