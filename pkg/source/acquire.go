package source

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/opencontainers/go-digest"

	"github.com/matzehuels/stackforge/pkg/cache"
	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/observability"
)

// Acquirer fetches and patches source trees, skipping work whose result is
// already in place.
type Acquirer struct {
	Fetcher Fetcher
	Cache   cache.Cache
	Keyer   cache.Keyer
	Logger  *log.Logger
	TTL     time.Duration // cache entry lifetime, zero for no expiry
}

// NewAcquirer creates an acquirer. A nil cache disables the idempotence
// guard; a nil keyer uses cache.DefaultKeyer.
func NewAcquirer(f Fetcher, c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Acquirer {
	if c == nil {
		c = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Acquirer{Fetcher: f, Cache: c, Keyer: keyer, Logger: logger}
}

// Key returns the cache key that identifies the patched tree.
func (a *Acquirer) Key(spec Spec, patches []Patch) string {
	digests := make([]string, len(patches))
	for i, p := range patches {
		digests[i] = p.Digest().String()
	}
	depth := -1
	if spec.Submodules {
		depth = spec.SubmoduleDepth
	}
	return a.Keyer.SourceKey(cache.SourceKeyOpts{
		URL:            spec.URL,
		Revision:       spec.Revision,
		SubmoduleDepth: depth,
		Patches:        digests,
	})
}

// Acquire produces the patched tree for spec at dest. When the cache records
// an acquisition with the same key at dest and the tree there still has the
// recorded digest, nothing is fetched and the second result is true.
//
// Fetch and patch failures are AcquisitionErrors; patch failures wrap a
// *PatchError. On any failure dest is left as it was.
func (a *Acquirer) Acquire(ctx context.Context, dest string, spec Spec, patches []Patch) (*Tree, bool, error) {
	if err := spec.Validate(); err != nil {
		return nil, false, err
	}
	dest, err := filepath.Abs(dest)
	if err != nil {
		return nil, false, errors.Wrap(errors.ErrCodeInternal, err, "resolve %s", dest)
	}
	key := a.Key(spec, patches)

	if tree, ok := a.lookup(ctx, key, dest); ok {
		observability.Cache().OnCacheHit(ctx, "source")
		a.Logger.Debug("source cache hit", "dir", dest, "digest", tree.Digest)
		return tree, true, nil
	}
	observability.Cache().OnCacheMiss(ctx, "source")

	tree, err := a.acquire(ctx, dest, spec, patches)
	if err != nil {
		return nil, false, err
	}

	data, err := json.Marshal(tree)
	if err != nil {
		return nil, false, errors.Wrap(errors.ErrCodeInternal, err, "encode tree")
	}
	if err := a.Cache.Set(ctx, key, data, a.TTL); err != nil {
		a.Logger.Warn("source cache write failed", "error", err)
	} else {
		observability.Cache().OnCacheSet(ctx, "source", len(data))
	}
	return tree, false, nil
}

// Invalidate drops the cache entry for spec and patches.
func (a *Acquirer) Invalidate(ctx context.Context, spec Spec, patches []Patch) error {
	return a.Cache.Delete(ctx, a.Key(spec, patches))
}

func (a *Acquirer) lookup(ctx context.Context, key, dest string) (*Tree, bool) {
	data, hit, err := a.Cache.Get(ctx, key)
	if err != nil {
		a.Logger.Warn("source cache read failed", "error", err)
		return nil, false
	}
	if !hit {
		return nil, false
	}
	var tree Tree
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, false
	}
	if tree.Dir != dest {
		return nil, false
	}
	got, err := TreeDigest(dest)
	if err != nil || got != tree.Digest {
		a.Logger.Info("cached source tree changed, re-acquiring", "dir", dest)
		return nil, false
	}
	return &tree, true
}

func (a *Acquirer) acquire(ctx context.Context, dest string, spec Spec, patches []Patch) (*Tree, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeAcquisition, err, "prepare %s", filepath.Dir(dest))
	}
	staging, err := os.MkdirTemp(filepath.Dir(dest), ".staging-"+filepath.Base(dest)+"-")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAcquisition, err, "create staging directory")
	}
	defer os.RemoveAll(staging)
	if err := os.Chmod(staging, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeAcquisition, err, "prepare staging directory")
	}

	a.Logger.Info("fetching source", "url", spec.URL, "revision", spec.Revision)
	if err := a.Fetcher.Fetch(ctx, spec, staging); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.GetCode(err) == errors.ErrCodeAcquisition {
			return nil, err
		}
		return nil, errors.Wrap(errors.ErrCodeAcquisition, err, "fetch %s@%s", spec.URL, spec.Revision)
	}

	upstream, err := TreeDigest(staging)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAcquisition, err, "digest upstream")
	}

	applied := make([]digest.Digest, 0, len(patches))
	for _, p := range patches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a.Logger.Debug("applying patch", "patch", p.Path)
		if err := Apply(staging, p.Path, p.Data); err != nil {
			return nil, errors.Wrap(errors.ErrCodeAcquisition, err, "apply %s", p.Path)
		}
		applied = append(applied, p.Digest())
	}

	final := upstream
	if len(patches) > 0 {
		if final, err = TreeDigest(staging); err != nil {
			return nil, errors.Wrap(errors.ErrCodeAcquisition, err, "digest patched tree")
		}
	}

	if err := os.RemoveAll(dest); err != nil {
		return nil, errors.Wrap(errors.ErrCodeAcquisition, err, "clear %s", dest)
	}
	if err := os.Rename(staging, dest); err != nil {
		return nil, errors.Wrap(errors.ErrCodeAcquisition, err, "move tree into %s", dest)
	}

	return &Tree{
		Dir:            dest,
		URL:            spec.URL,
		Revision:       spec.Revision,
		Digest:         final,
		UpstreamDigest: upstream,
		Patches:        applied,
		AcquiredAt:     time.Now().UTC(),
	}, nil
}
