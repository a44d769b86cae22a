package cli

import (
	"context"
	"testing"
	"time"
)

func TestSpinnerStop(t *testing.T) {
	s := newSpinner("libdatachannel/0.20.2: source")
	s.Start()
	time.Sleep(100 * time.Millisecond)
	s.Stop()
	s.Stop()

	// Stop cancels the spinner's own context.
	if !s.Cancelled() {
		t.Error("Cancelled() = false after Stop, want true")
	}
}

func TestSpinnerCancel(t *testing.T) {
	tests := []struct {
		name string
		ctx  func() (context.Context, context.CancelFunc)
	}{
		{"parent canceled", func() (context.Context, context.CancelFunc) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			return ctx, cancel
		}},
		{"parent deadline", func() (context.Context, context.CancelFunc) {
			return context.WithTimeout(context.Background(), 30*time.Millisecond)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.ctx()
			defer cancel()

			s := newSpinnerWithContext(ctx, "libdatachannel/0.20.2: build")
			s.Start()
			time.Sleep(100 * time.Millisecond)
			if !s.Cancelled() {
				t.Error("Cancelled() = false, want true once the parent context is done")
			}
			s.Stop()
		})
	}
}

func TestSpinnerSetMessage(t *testing.T) {
	s := newSpinner("libdatachannel/0.20.2: config_options")
	s.Start()
	defer s.Stop()

	wide := len("libdatachannel/0.20.2: config_options")
	s.SetMessage("libdatachannel/0.20.2: build")

	s.mu.Lock()
	msg, width := s.message, s.width
	s.mu.Unlock()
	if msg != "libdatachannel/0.20.2: build" {
		t.Errorf("message = %q, want the new stage", msg)
	}
	if width != wide {
		t.Errorf("width = %d, want %d so the longer message is cleared", width, wide)
	}

	longer := "libdatachannel/0.20.2: package_info (publishing 2 components)"
	s.SetMessage(longer)
	s.mu.Lock()
	width = s.width
	s.mu.Unlock()
	if width != len(longer) {
		t.Errorf("width = %d, want %d", width, len(longer))
	}
}

func TestSpinnerResult(t *testing.T) {
	s := newSpinner("libdatachannel/0.20.2: package")
	s.Start()
	s.StopWithSuccess("libdatachannel/0.20.2 published")

	s = newSpinner("openssl/3.2.1: build")
	s.Start()
	s.StopWithError("openssl/3.2.1 failed at build")
}
