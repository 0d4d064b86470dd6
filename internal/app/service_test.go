package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeService struct {
	name    string
	startFn func(ctx context.Context) error
	mu      sync.Mutex
	stopped bool
}

func (s *fakeService) Name() string { return s.name }

func (s *fakeService) Start(ctx context.Context) error {
	if s.startFn != nil {
		return s.startFn(ctx)
	}
	<-ctx.Done()
	return nil
}

func (s *fakeService) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeService) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func TestRunnerStopsAllServicesAndRunsCleanupInReverse(t *testing.T) {
	failing := &fakeService{name: "http", startFn: func(context.Context) error {
		return errors.New("listen failed")
	}}
	idle := &fakeService{name: "worker"}

	var order []string
	runner := NewRunner(failing, idle)
	runner.OnShutdown(func() error {
		order = append(order, "first")
		return nil
	})
	runner.OnShutdown(func() error {
		order = append(order, "second")
		return errors.New("ignored")
	})

	err := runner.Run(context.Background(), time.Second, zap.NewNop().Sugar())
	if err == nil || err.Error() != "listen failed" {
		t.Fatalf("expected start error, got %v", err)
	}
	if !failing.isStopped() || !idle.isStopped() {
		t.Fatalf("all services should be stopped")
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Fatalf("cleanup order want [second first] got %v", order)
	}
}

func TestRunnerCanceledContextIsNotAnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := NewRunner(&fakeService{name: "worker"})
	if err := runner.Run(ctx, time.Second, nil); err != nil {
		t.Fatalf("expected nil on cancel, got %v", err)
	}
}

func TestBuildRunnerRejectsUnknownMode(t *testing.T) {
	if _, err := BuildRunner(nil, nil, ModeAll); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
