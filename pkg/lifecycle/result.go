package lifecycle

import (
	"time"

	"github.com/matzehuels/stackforge/pkg/buildconfig"
	"github.com/matzehuels/stackforge/pkg/buildtool"
	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/option"
	"github.com/matzehuels/stackforge/pkg/pkginfo"
	"github.com/matzehuels/stackforge/pkg/platform"
	"github.com/matzehuels/stackforge/pkg/requirement"
	"github.com/matzehuels/stackforge/pkg/source"
)

// Result contains the outputs of a lifecycle run. On failure the fields of
// stages that completed are still set.
type Result struct {
	RunID    string            `json:"run_id"`
	Recipe   string            `json:"recipe"`
	Platform platform.Platform `json:"platform"`
	Profile  string            `json:"profile,omitempty"`
	Layout   Layout            `json:"layout"`

	// State is Published on success, Failed otherwise.
	State       State   `json:"state"`
	FailedStage Stage   `json:"failed_stage,omitempty"`
	Executed    []Stage `json:"executed"`
	// Skipped lists stages that completed without work because the recipe
	// has no source to build.
	Skipped []Stage `json:"skipped,omitempty"`
	// Failure describes the failing stage; nil on success.
	Failure *Failure `json:"failure,omitempty"`

	Options      option.Set               `json:"options"`
	Ignored      []string                 `json:"ignored_overrides,omitempty"`
	Requirements requirement.Requirements `json:"requirements"`
	Source       *source.Tree             `json:"source,omitempty"`
	Dependencies buildconfig.Graph        `json:"dependencies,omitempty"`
	Config       buildconfig.Config       `json:"config,omitempty"`
	Artifacts    *buildconfig.Artifacts   `json:"artifacts,omitempty"`
	Components   []pkginfo.Component      `json:"components,omitempty"`
	Info         *pkginfo.Info            `json:"info,omitempty"`

	Stats     Stats     `json:"stats"`
	CacheInfo CacheInfo `json:"cache"`
}

// Failure is the serializable form of a StageError.
type Failure struct {
	Stage   Stage       `json:"stage"`
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
	// ToolOutput is the build tool's combined output, unabridged.
	ToolOutput string `json:"tool_output,omitempty"`
}

func newFailure(serr *StageError) *Failure {
	f := &Failure{Stage: serr.Stage, Code: serr.Code(), Message: errors.UserMessage(serr.Cause)}
	if out, ok := buildtool.Output(serr.Cause); ok {
		f.ToolOutput = out
	}
	return f
}

// Stats contains run timing.
type Stats struct {
	Started   time.Time               `json:"started"`
	Total     time.Duration           `json:"total"`
	Durations map[Stage]time.Duration `json:"durations"`
}

// CacheInfo tracks which stages were satisfied from the cache.
type CacheInfo struct {
	SourceHit  bool   `json:"source_hit"`
	PackageKey string `json:"package_key,omitempty"`
}

// Published reports whether the run reached Published.
func (r *Result) Published() bool { return r.State == StatePublished }
