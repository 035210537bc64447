package scavenger

import (
	"context"
	"errors"
	"testing"

	"github.com/yehzhang/dmscrape/internal/types"
)

func drain(t *testing.T, s *Scavenger) {
	t.Helper()
	s.Close()
	if err := s.Wait(context.Background()); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
}

func TestSuccessIncrementsCount(t *testing.T) {
	s := New(nil)
	s.Success()
	s.Success()
	drain(t, s)

	r := s.Report()
	if r.SuccessCount != 2 {
		t.Fatalf("SuccessCount = %d, want 2", r.SuccessCount)
	}
	if len(r.Failures) != 0 {
		t.Fatalf("Failures = %v, want empty", r.Failures)
	}
}

func TestPageNotFoundCountsAsSuccessNotFailure(t *testing.T) {
	s := New(nil)
	s.Failure(types.ErrPageNotFound, 42, true)
	drain(t, s)

	r := s.Report()
	if r.SuccessCount != 1 {
		t.Fatalf("SuccessCount = %d, want 1 (page-not-found is a success)", r.SuccessCount)
	}
	if len(r.Failures) != 0 {
		t.Fatalf("Failures = %v, want empty: page-not-found must not appear as a failure", r.Failures)
	}
}

func TestCancelledHasNoEffect(t *testing.T) {
	s := New(nil)
	s.Cancelled()
	drain(t, s)

	r := s.Report()
	if r.SuccessCount != 0 || len(r.Failures) != 0 {
		t.Fatalf("Report after Cancelled = %+v, want all-zero", r)
	}
	if s.IsDead() {
		t.Fatal("IsDead() = true after a mere cancellation")
	}
}

func TestFailureRecordsTargetAndDamage(t *testing.T) {
	s := New(nil)
	s.Failure(&types.HostError{Op: "read", Err: errors.New("x")}, 7, true)
	drain(t, s)

	r := s.Report()
	if len(r.Failures) != 1 || r.Failures[0] != 7 {
		t.Fatalf("Failures = %v, want [7]", r.Failures)
	}
	if s.Health() >= maxHealth {
		t.Fatalf("Health() = %d, want less than starting health after damage", s.Health())
	}
}

func TestFailureWithoutItemNotRecordedAsTarget(t *testing.T) {
	s := New(nil)
	s.Failure(&types.HostError{Op: "connect", Err: errors.New("x")}, 0, false)
	drain(t, s)

	r := s.Report()
	if len(r.Failures) != 0 {
		t.Fatalf("Failures = %v, want empty: failure had no claimed item", r.Failures)
	}
}

func TestRepeatedFailuresKillTheRun(t *testing.T) {
	s := New(nil)
	for i := 0; i < 10; i++ {
		s.Failure(&types.HostError{Op: "read", Err: errors.New("x")}, int64(i), true)
	}
	drain(t, s)

	if !s.IsDead() {
		t.Fatal("IsDead() = false after enough host-error damage to drain health")
	}
}

func TestSetRecordersRescalesHealthProportionally(t *testing.T) {
	s := New(nil)
	s.SetRecorders(4)
	drain(t, s)

	if got := s.Health(); got != maxHealth*4 {
		t.Fatalf("Health() after SetRecorders(4) = %d, want %d", got, maxHealth*4)
	}
}

func TestUnexpectedErrorUsesDefaultDamage(t *testing.T) {
	s := New(nil)
	s.Failure(errors.New("not a Damager"), 1, true)
	drain(t, s)

	// 120 starting health minus 119.9 damage leaves just under 1, which
	// truncates to 0 but is not yet <= 0, so the run survives.
	if got := s.Health(); got != 0 {
		t.Fatalf("Health() = %d, want 0", got)
	}
	if s.IsDead() {
		t.Fatal("IsDead() = true, want false: health is just above zero")
	}
}
