package cache

// ScopedKeyer wraps a Keyer with a prefix so several workspaces can share one
// cache backend without seeing each other's entries.
//
// Example usage:
//
//	// Per-workspace keys on a shared Redis
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "ws:ci-linux:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// SourceKey generates a prefixed source tree key.
func (k *ScopedKeyer) SourceKey(opts SourceKeyOpts) string {
	return k.prefix + k.inner.SourceKey(opts)
}

// PackageKey generates a prefixed package-info key.
func (k *ScopedKeyer) PackageKey(name, version string, opts PackageKeyOpts) string {
	return k.prefix + k.inner.PackageKey(name, version, opts)
}
