package source

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/matzehuels/stackforge/pkg/errors"
)

// DefaultSubmoduleDepth is the history depth used for submodule clones.
const DefaultSubmoduleDepth = 1

// Spec pins an upstream source.
type Spec struct {
	URL      string // remote URL or absolute local path
	Revision string // tag, branch or commit

	// Submodules enables recursive submodule initialization.
	Submodules bool
	// SubmoduleDepth bounds the history fetched for each submodule.
	// Zero fetches full history.
	SubmoduleDepth int
}

// Validate checks the URL and revision.
func (s Spec) Validate() error {
	if err := errors.ValidateSourceURL(s.URL); err != nil {
		return errors.Wrap(errors.ErrCodeConfiguration, err, "source url")
	}
	if strings.TrimSpace(s.Revision) == "" {
		return errors.Configuration("source revision must be pinned")
	}
	if strings.HasPrefix(s.Revision, "-") {
		return errors.Configuration("invalid source revision %q", s.Revision)
	}
	if s.SubmoduleDepth < 0 {
		return errors.Configuration("submodule depth must not be negative")
	}
	return nil
}

// PatchSpec names a patch file relative to the recipe directory.
type PatchSpec struct {
	Path        string
	Description string
}

// Patch is a loaded patch file.
type Patch struct {
	PatchSpec
	Data []byte
}

// Digest returns the content digest of the patch file.
func (p Patch) Digest() digest.Digest { return digest.FromBytes(p.Data) }

// LoadPatches reads patch files relative to baseDir, preserving order.
// A missing patch file is a ConfigurationError: the recipe is incomplete.
func LoadPatches(baseDir string, specs []PatchSpec) ([]Patch, error) {
	out := make([]Patch, 0, len(specs))
	for _, ps := range specs {
		if err := errors.ValidatePath(ps.Path); err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "patch %s", ps.Path)
		}
		data, err := os.ReadFile(filepath.Join(baseDir, filepath.FromSlash(ps.Path)))
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "read patch %s", ps.Path)
		}
		out = append(out, Patch{PatchSpec: ps, Data: data})
	}
	return out, nil
}

// Tree describes an acquired source tree.
type Tree struct {
	Dir            string          `json:"dir"`
	URL            string          `json:"url"`
	Revision       string          `json:"revision"`
	Digest         digest.Digest   `json:"digest"`
	UpstreamDigest digest.Digest   `json:"upstream_digest"`
	Patches        []digest.Digest `json:"patches,omitempty"`
	AcquiredAt     time.Time       `json:"acquired_at"`
}
