// Package host runs recipes on one machine: it resolves requirements
// against packages already published to a store and schedules several
// recipe lifecycles at once.
package host

import (
	"context"

	"github.com/matzehuels/stackforge/pkg/buildconfig"
	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/pkginfo"
	"github.com/matzehuels/stackforge/pkg/platform"
	"github.com/matzehuels/stackforge/pkg/requirement"
)

// LocalResolver resolves requirements to packages published in a store.
// Requirements with no published package are left out of the graph; the
// generate stage reports them.
type LocalResolver struct {
	Store pkginfo.Store
}

// NewLocalResolver returns a resolver reading from store.
func NewLocalResolver(store pkginfo.Store) *LocalResolver {
	return &LocalResolver{Store: store}
}

// Resolve implements lifecycle.Resolver. A package published for a
// different operating system or architecture is a ConfigurationError;
// build-only requirements are exempt because they run on the build machine.
func (l *LocalResolver) Resolve(ctx context.Context, reqs requirement.Requirements, p platform.Platform) (buildconfig.Graph, error) {
	g := make(buildconfig.Graph, len(reqs))
	for _, r := range reqs {
		info, err := l.Store.Load(ctx, r.Name, r.Version)
		if errors.Is(err, errors.ErrCodeNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "resolve %s", r.Ref())
		}
		build := r.Has(requirement.FlagBuild)
		if !build && (info.Platform.OS != p.OS || info.Platform.Arch != p.Arch) {
			return nil, errors.Configuration("requirement %s is published for %s/%s, not %s/%s",
				r.Ref(), info.Platform.OS, info.Platform.Arch, p.OS, p.Arch)
		}
		g[r.Name] = Dependency(info, build)
	}
	return g, nil
}

// Dependency converts published package-info into a resolved dependency.
func Dependency(info *pkginfo.Info, build bool) buildconfig.Dependency {
	d := buildconfig.Dependency{
		Name:    info.Name,
		Version: info.Version,
		Root:    info.Root,
		Build:   build,
	}
	for _, c := range info.Components {
		if c.CMakeTarget != "" {
			d.Components = append(d.Components, c.CMakeTarget)
		}
		d.Libs = append(d.Libs, c.Libs...)
	}
	return d
}
