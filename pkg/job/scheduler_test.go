package job

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HorseArcher567/pathfinder/pkg/xlog"
)

func TestAddJobValidation(t *testing.T) {
	s := NewScheduler(xlog.Nop())

	tests := []struct {
		name    string
		job     *Job
		wantErr bool
	}{
		{"nil", nil, true},
		{"no name", &Job{Func: func(context.Context, *xlog.Logger) error { return nil }}, true},
		{"no func", &Job{Name: "x"}, true},
		{"ok", &Job{Name: "x", Func: func(context.Context, *xlog.Logger) error { return nil }}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.AddJob(tt.job); (err != nil) != tt.wantErr {
				t.Errorf("AddJob() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(xlog.Nop())

	var running, finished atomic.Int32
	loop := func(ctx context.Context, _ *xlog.Logger) error {
		running.Add(1)
		<-ctx.Done()
		finished.Add(1)
		return ctx.Err()
	}
	_ = s.AddJob(&Job{Name: "a", Func: loop})
	_ = s.AddJob(&Job{Name: "b", Func: loop})
	_ = s.AddJob(&Job{Name: "failing", Func: func(context.Context, *xlog.Logger) error {
		return errors.New("boom")
	}})

	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for running.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if finished.Load() != 2 {
		t.Errorf("finished = %d, want 2", finished.Load())
	}
}

func TestStopTimeout(t *testing.T) {
	s := NewScheduler(nil)
	release := make(chan struct{})
	defer close(release)

	_ = s.AddJob(&Job{Name: "stubborn", Func: func(context.Context, *xlog.Logger) error {
		<-release
		return nil
	}})
	s.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop() error = %v, want DeadlineExceeded", err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	if err := NewScheduler(nil).Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}
