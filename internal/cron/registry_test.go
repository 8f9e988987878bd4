package cron

import (
	"context"
	"testing"
	"time"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryRejectsDuplicatesAndNil(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&stubJob{name: "gc"}, time.Hour); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(&stubJob{name: "gc"}, time.Minute); err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}
	if err := registry.Register(nil, time.Minute); err == nil {
		t.Fatal("expected nil job to be rejected")
	}
	if n := len(registry.Jobs()); n != 1 {
		t.Fatalf("expected 1 job, got %d", n)
	}
}

func TestRegistryDueHonoursCadence(t *testing.T) {
	registry := NewRegistry()
	sweep := &stubJob{name: "stale-sweep"}
	gc := &stubJob{name: "counter-gc"}
	mustRegister(t, registry, sweep, 0)
	mustRegister(t, registry, gc, 24*time.Hour)

	start := time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC)
	if due := registry.Due(start); len(due) != 2 {
		t.Fatalf("first cycle should run everything, got %d", len(due))
	}
	registry.MarkRan("stale-sweep", start)
	registry.MarkRan("counter-gc", start)

	due := registry.Due(start.Add(time.Hour))
	if len(due) != 1 || due[0] != sweep {
		t.Fatalf("only the every-cycle job should be due, got %v", due)
	}
	if due := registry.Due(start.Add(24 * time.Hour)); len(due) != 2 {
		t.Fatalf("daily job should be due after a day, got %d", len(due))
	}
}

func mustRegister(t *testing.T, r *Registry, job Job, every time.Duration) {
	t.Helper()
	if err := r.Register(job, every); err != nil {
		t.Fatalf("register %s: %v", job.Name(), err)
	}
}
