package shell

import (
	"context"
	"sync"
)

// Recorder is an Executor that records commands instead of running them.
// Handler, when set, decides each command's outcome.
type Recorder struct {
	Handler func(ctx context.Context, cmd Command) (Result, error)

	mu       sync.Mutex
	commands []Command
}

// Run records cmd and delegates to Handler.
func (r *Recorder) Run(ctx context.Context, cmd Command) (Result, error) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1}, err
	}
	if r.Handler == nil {
		return Result{}, nil
	}
	return r.Handler(ctx, cmd)
}

// Commands returns the recorded commands in order.
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.commands...)
}

var (
	_ Executor = (*Exec)(nil)
	_ Executor = (*Recorder)(nil)
)
