package services

import (
	"context"
	"testing"
	"time"

	"github.com/drakejin/cday2025-minigame-sub000/apperr"
	"github.com/drakejin/cday2025-minigame-sub000/models"
	"github.com/drakejin/cday2025-minigame-sub000/testutil"
)

func TestCreateOrUpdateTrial(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	now := e.clock.Now()
	r := testutil.SeedRound(t, e.db, 2, models.RoundScheduled, now, now.Add(time.Hour))

	created, err := e.trials.CreateOrUpdateTrial(ctx, admin, r.ID, TrialInput{TrialNo: 2, Level: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.WeightMultiplier != 2 || created.MaxPoints != 200 || created.Status != models.RoundScheduled {
		t.Fatalf("unexpected trial %+v", created)
	}

	c := e.character(t, "u1", "A")
	testutil.SeedResult(t, e.db, created.ID, c.ID, 10, false)

	// same values: results untouched
	same, err := e.trials.CreateOrUpdateTrial(ctx, admin, r.ID, TrialInput{TrialNo: 2, Level: 2, Weight: intPtr(2)})
	if err != nil || same.ID != created.ID {
		t.Fatalf("idempotent update: %+v %v", same, err)
	}
	if n := e.countResults(t, "needs_revalidation = ?", true); n != 0 {
		t.Fatalf("unchanged trial staled %d results", n)
	}

	updated, err := e.trials.CreateOrUpdateTrial(ctx, admin, r.ID, TrialInput{TrialNo: 2, Level: 2, Weight: intPtr(3)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != created.ID || updated.WeightMultiplier != 3 || updated.MaxPoints != 300 {
		t.Fatalf("unexpected update %+v", updated)
	}
	if n := e.countResults(t, "needs_revalidation = ?", true); n != 1 {
		t.Fatalf("weight change should stale the result, got %d", n)
	}

	var count int64
	e.db.Model(&models.Trial{}).Where("round_id = ?", r.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected one trial per (round, trial_no), got %d", count)
	}
}

func TestCreateOrUpdateTrialValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	now := e.clock.Now()
	r := testutil.SeedRound(t, e.db, 1, models.RoundScheduled, now, now.Add(time.Hour))
	done := testutil.SeedRound(t, e.db, 2, models.RoundCompleted, now, now.Add(time.Hour))

	cases := []struct {
		name    string
		roundID string
		in      TrialInput
		want    apperr.Code
	}{
		{"trial_no too high", r.ID, TrialInput{TrialNo: 4, Level: 1}, apperr.CodeInvalidArgument},
		{"level zero", r.ID, TrialInput{TrialNo: 1, Level: 0}, apperr.CodeInvalidArgument},
		{"weight too high", r.ID, TrialInput{TrialNo: 1, Level: 1, Weight: intPtr(5)}, apperr.CodeInvalidArgument},
		{"missing round", "nope", TrialInput{TrialNo: 1, Level: 1}, apperr.CodeRoundNotFound},
		{"completed round", done.ID, TrialInput{TrialNo: 1, Level: 1}, apperr.CodeInvalidTransition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.trials.CreateOrUpdateTrial(ctx, admin, tc.roundID, tc.in)
			if !apperr.Is(err, tc.want) {
				t.Fatalf("expected %s, got %v", tc.want, err)
			}
		})
	}
}

func TestDeleteTrial(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, used := e.activeRound(t, 1, 1)
	now := e.clock.Now()
	r2 := testutil.SeedRound(t, e.db, 2, models.RoundScheduled, now.Add(time.Hour), now.Add(2*time.Hour))
	unused := testutil.SeedTrial(t, e.db, r2.ID, 2, 2, 2)

	c := e.character(t, "u1", "A")
	testutil.SeedResult(t, e.db, used.ID, c.ID, 51, false)

	if err := e.trials.DeleteTrial(ctx, admin, used.ID); !apperr.Is(err, apperr.CodeTrialHasResults) {
		t.Fatalf("expected TrialHasResults, got %v", err)
	}
	if err := e.trials.DeleteTrial(ctx, admin, unused.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := e.trials.DeleteTrial(ctx, admin, unused.ID); !apperr.Is(err, apperr.CodeTrialNotFound) {
		t.Fatalf("expected TrialNotFound, got %v", err)
	}
}

func TestActiveTrial(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	if _, err := e.trials.ActiveTrial(ctx); !apperr.Is(err, apperr.CodeRoundNotActive) {
		t.Fatalf("expected RoundNotActive, got %v", err)
	}

	now := e.clock.Now()
	bare := testutil.SeedRound(t, e.db, 1, models.RoundActive, now.Add(-time.Minute), now.Add(time.Hour))
	if _, err := e.trials.ActiveTrial(ctx); !apperr.Is(err, apperr.CodeTrialNotFound) {
		t.Fatalf("expected TrialNotFound, got %v", err)
	}

	want := testutil.SeedTrial(t, e.db, bare.ID, 1, 1, 1)
	got, err := e.trials.ActiveTrial(ctx)
	if err != nil || got.ID != want.ID {
		t.Fatalf("active trial: %+v %v", got, err)
	}

	list, err := e.trials.ListForRound(ctx, bare.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %v", list, err)
	}
	if _, err := e.trials.ListForRound(ctx, "missing"); !apperr.Is(err, apperr.CodeRoundNotFound) {
		t.Fatalf("expected RoundNotFound, got %v", err)
	}
}
