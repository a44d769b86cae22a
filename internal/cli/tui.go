package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/lifecycle"
)

var (
	tuiHeaderStyle = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	tuiDimStyle    = lipgloss.NewStyle().Foreground(colorDim)
)

type stageStatus int

const (
	stagePending stageStatus = iota
	stageRunning
	stageDone
	stageSkipped
	stageFailed
)

// progressMsg carries a lifecycle event into the program.
type progressMsg lifecycle.ProgressEvent

// runDoneMsg ends the program with the run outcome.
type runDoneMsg struct {
	res *lifecycle.Result
	err error
}

type tickMsg time.Time

// StageModel is the bubbletea model of the live stage progress view.
type StageModel struct {
	Recipe string
	Stages []lifecycle.Stage
	Status map[lifecycle.Stage]stageStatus
	Start  map[lifecycle.Stage]time.Time
	Took   map[lifecycle.Stage]time.Duration
	Err    error
	Result *lifecycle.Result

	cancel context.CancelFunc
	now    time.Time
	done   bool
}

// NewStageModel creates a progress view for recipe. cancel is called when
// the user quits before the run finishes.
func NewStageModel(recipe string, cancel context.CancelFunc) StageModel {
	return StageModel{
		Recipe: recipe,
		Stages: lifecycle.Stages(),
		Status: make(map[lifecycle.Stage]stageStatus),
		Start:  make(map[lifecycle.Stage]time.Time),
		Took:   make(map[lifecycle.Stage]time.Duration),
		cancel: cancel,
		now:    time.Now(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m StageModel) Init() tea.Cmd {
	return tick()
}

func (m StageModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.done && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case tickMsg:
		m.now = time.Time(msg)
		if m.done {
			return m, nil
		}
		return m, tick()
	case progressMsg:
		m.apply(lifecycle.ProgressEvent(msg))
	case runDoneMsg:
		m.done = true
		m.Result = msg.res
		m.Err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m *StageModel) apply(e lifecycle.ProgressEvent) {
	switch {
	case !e.Done:
		m.Status[e.Stage] = stageRunning
		m.Start[e.Stage] = time.Now()
	case e.Err != nil:
		m.Status[e.Stage] = stageFailed
		m.Err = e.Err
	case e.Skipped:
		m.Status[e.Stage] = stageSkipped
	default:
		m.Status[e.Stage] = stageDone
	}
	if e.Done {
		m.Took[e.Stage] = time.Since(m.Start[e.Stage])
	}
}

func (m StageModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render(m.Recipe))
	b.WriteString("\n")
	b.WriteString(tuiDimStyle.Render("q quit"))
	b.WriteString("\n\n")

	rows := make([][]string, 0, len(m.Stages))
	for _, s := range m.Stages {
		var icon, took string
		switch m.Status[s] {
		case stageRunning:
			icon = "…"
			took = m.now.Sub(m.Start[s]).Round(100 * time.Millisecond).String()
		case stageDone:
			icon = iconSuccess
			took = m.Took[s].Round(time.Millisecond).String()
		case stageSkipped:
			icon = iconSkipped
			took = "skipped"
		case stageFailed:
			icon = iconError
			took = m.Took[s].Round(time.Millisecond).String()
		default:
			icon = " "
		}
		rows = append(rows, []string{icon, string(s), string(s.Reaches()), took})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Stage", "State", "Time").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tuiHeaderStyle
			}
			if row < 0 || row >= len(m.Stages) {
				return lipgloss.NewStyle()
			}
			switch m.Status[m.Stages[row]] {
			case stageRunning:
				return lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
			case stageDone:
				return lipgloss.NewStyle().Foreground(colorGreen)
			case stageFailed:
				return lipgloss.NewStyle().Foreground(colorRed)
			default:
				return lipgloss.NewStyle().Foreground(colorDim)
			}
		})

	b.WriteString(t.Render())
	b.WriteString("\n")
	if m.Err != nil {
		b.WriteString("\n")
		b.WriteString(StyleError.Render(errors.UserMessage(m.Err)))
		b.WriteString("\n")
	}
	return b.String()
}

// runWithTUI executes run while showing the stage progress view. It returns
// the run outcome once both the run and the view have finished.
func runWithTUI(ctx context.Context, recipe string, run func(ctx context.Context, progress func(lifecycle.ProgressEvent)) (*lifecycle.Result, error)) (*lifecycle.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewStageModel(recipe, cancel), tea.WithContext(ctx))
	outcome := make(chan runDoneMsg, 1)
	go func() {
		res, err := run(ctx, func(e lifecycle.ProgressEvent) { p.Send(progressMsg(e)) })
		outcome <- runDoneMsg{res: res, err: err}
		p.Send(runDoneMsg{res: res, err: err})
	}()

	if _, err := p.Run(); err != nil && errors.GetCode(err) != errors.ErrCodeCanceled {
		cancel()
		<-outcome
		return nil, fmt.Errorf("progress view: %w", err)
	}
	cancel()
	done := <-outcome
	return done.res, done.err
}
