// Package observability provides hooks for metrics, tracing, and logging.
//
// Libraries in this module emit events through package-level hook
// registries instead of importing a metrics backend. The CLI and the
// registry server register real implementations at startup; everything else
// sees no-ops.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    hooks := observability.NewPrometheusHooks(prometheus.DefaultRegisterer)
//	    observability.SetLifecycleHooks(hooks)
//	    observability.SetCacheHooks(hooks)
//	    observability.SetToolHooks(hooks)
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Lifecycle().OnStageStart(ctx, "libdatachannel", "source")
//	// ... acquire source ...
//	observability.Lifecycle().OnStageComplete(ctx, "libdatachannel", "source", duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Lifecycle Hooks
// =============================================================================

// LifecycleHooks receives events from recipe lifecycle runs.
type LifecycleHooks interface {
	OnRunStart(ctx context.Context, recipe string)
	OnStageStart(ctx context.Context, recipe, stage string)
	OnStageComplete(ctx context.Context, recipe, stage string, duration time.Duration, err error)
	OnRunComplete(ctx context.Context, recipe, state string, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// Tool Hooks
// =============================================================================

// ToolHooks receives events from external program invocations (git, cmake).
type ToolHooks interface {
	OnCommand(ctx context.Context, tool, step string, duration time.Duration, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopLifecycleHooks is a no-op implementation of LifecycleHooks.
type NoopLifecycleHooks struct{}

func (NoopLifecycleHooks) OnRunStart(context.Context, string)                                    {}
func (NoopLifecycleHooks) OnStageStart(context.Context, string, string)                          {}
func (NoopLifecycleHooks) OnStageComplete(context.Context, string, string, time.Duration, error) {}
func (NoopLifecycleHooks) OnRunComplete(context.Context, string, string, time.Duration, error)   {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopToolHooks is a no-op implementation of ToolHooks.
type NoopToolHooks struct{}

func (NoopToolHooks) OnCommand(context.Context, string, string, time.Duration, error) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	lifecycleHooks LifecycleHooks = NoopLifecycleHooks{}
	cacheHooks     CacheHooks     = NoopCacheHooks{}
	toolHooks      ToolHooks      = NoopToolHooks{}
	hooksMu        sync.RWMutex
)

// SetLifecycleHooks registers custom lifecycle hooks.
// This should be called once at application startup before any run starts.
func SetLifecycleHooks(h LifecycleHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		lifecycleHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetToolHooks registers custom tool hooks.
func SetToolHooks(h ToolHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		toolHooks = h
	}
}

// Lifecycle returns the registered lifecycle hooks.
func Lifecycle() LifecycleHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return lifecycleHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Tool returns the registered tool hooks.
func Tool() ToolHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return toolHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	lifecycleHooks = NoopLifecycleHooks{}
	cacheHooks = NoopCacheHooks{}
	toolHooks = NoopToolHooks{}
}
