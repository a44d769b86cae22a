package lifecycle

import "fmt"

// Stage is one step of the lifecycle.
type Stage string

// Stages in execution order.
const (
	StageConfigOptions Stage = "config_options"
	StageConfigure     Stage = "configure"
	StageLayout        Stage = "layout"
	StageRequirements  Stage = "requirements"
	StageSource        Stage = "source"
	StageGenerate      Stage = "generate"
	StageBuild         Stage = "build"
	StagePackage       Stage = "package"
	StagePackageInfo   Stage = "package_info"
)

// Stages returns every stage in execution order.
func Stages() []Stage {
	return []Stage{
		StageConfigOptions, StageConfigure, StageLayout, StageRequirements,
		StageSource, StageGenerate, StageBuild, StagePackage, StagePackageInfo,
	}
}

// ParseStage parses a stage name.
func ParseStage(s string) (Stage, error) {
	for _, st := range Stages() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// State is the state a run reaches when a stage completes.
type State string

// States in order. Failed is terminal and reachable from any non-terminal
// state.
const (
	StateInitial              State = "Initial"
	StateOptionsResolved      State = "OptionsResolved"
	StateConfigured           State = "Configured"
	StateLayoutReady          State = "LayoutReady"
	StateRequirementsDeclared State = "RequirementsDeclared"
	StateSourceAcquired       State = "SourceAcquired"
	StateConfigEmitted        State = "ConfigEmitted"
	StateBuilt                State = "Built"
	StatePackaged             State = "Packaged"
	StatePublished            State = "Published"
	StateFailed               State = "Failed"
)

// Reaches returns the state a successful stage transitions into.
func (s Stage) Reaches() State {
	switch s {
	case StageConfigOptions:
		return StateOptionsResolved
	case StageConfigure:
		return StateConfigured
	case StageLayout:
		return StateLayoutReady
	case StageRequirements:
		return StateRequirementsDeclared
	case StageSource:
		return StateSourceAcquired
	case StageGenerate:
		return StateConfigEmitted
	case StageBuild:
		return StateBuilt
	case StagePackage:
		return StatePackaged
	case StagePackageInfo:
		return StatePublished
	}
	return ""
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return s == StatePublished || s == StateFailed }

// machine enforces the stage order of a single run: each stage runs exactly
// once, in order, and nothing runs after a terminal state.
type machine struct {
	state   State
	next    int // index into Stages() of the stage allowed to run
	history []Stage
	failed  Stage
}

func newMachine() *machine { return &machine{state: StateInitial} }

// begin checks that stage is the one allowed to run now.
func (m *machine) begin(stage Stage) error {
	if m.state.Terminal() {
		return fmt.Errorf("run is %s, cannot start %s", m.state, stage)
	}
	stages := Stages()
	if m.next >= len(stages) || stages[m.next] != stage {
		return fmt.Errorf("stage %s out of order in state %s (expected %s)", stage, m.state, stages[m.next])
	}
	return nil
}

// complete records a successful stage and advances the state.
func (m *machine) complete(stage Stage) {
	m.state = stage.Reaches()
	m.history = append(m.history, stage)
	m.next++
}

// fail moves the run to Failed at stage.
func (m *machine) fail(stage Stage) {
	m.state = StateFailed
	m.failed = stage
}
