package services

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/drakejin/cday2025-minigame-sub000/apperr"
	"github.com/drakejin/cday2025-minigame-sub000/models"
	"github.com/drakejin/cday2025-minigame-sub000/testutil"
)

func TestCreateRoundNumbersSequentially(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	now := e.clock.Now()

	for i := 1; i <= 4; i++ {
		r, err := e.rounds.Create(ctx, admin, CreateRoundInput{StartTime: now, EndTime: now.Add(time.Hour)})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if r.RoundNumber != i || r.Status != models.RoundScheduled {
			t.Fatalf("round %d: got number %d status %s", i, r.RoundNumber, r.Status)
		}
		if want := models.DefaultTrialNo(i); r.TrialNo != want {
			t.Fatalf("round %d: trial_no %d, want %d", i, r.TrialNo, want)
		}
	}

	r, err := e.rounds.Create(ctx, admin, CreateRoundInput{StartTime: now, EndTime: now.Add(time.Hour), TrialNo: intPtr(2)})
	if err != nil {
		t.Fatalf("create with trial_no: %v", err)
	}
	if r.TrialNo != 2 {
		t.Fatalf("explicit trial_no ignored: %d", r.TrialNo)
	}
}

func TestCreateRoundRejectsBadWindow(t *testing.T) {
	e := newTestEnv(t)
	now := e.clock.Now()
	for _, end := range []time.Time{now, now.Add(-time.Second), now.Add(500 * time.Millisecond)} {
		_, err := e.rounds.Create(context.Background(), admin, CreateRoundInput{StartTime: now, EndTime: end})
		if !apperr.Is(err, apperr.CodeInvalidTimeRange) {
			t.Fatalf("end %v: expected InvalidTimeRange, got %v", end, err)
		}
	}
	var n int64
	e.db.Model(&models.Round{}).Count(&n)
	if n != 0 {
		t.Fatalf("rejected creates wrote %d rounds", n)
	}
}

func TestCreateRoundNumberTakenConcurrently(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	now := e.clock.Now()
	testutil.SeedRound(t, e.db, 1, models.RoundCompleted, now.Add(-2*time.Hour), now.Add(-time.Hour))

	// another writer takes the number between the MAX read and the insert
	claimed := false
	if err := e.db.Callback().Create().Before("gorm:create").Register("test:take_round_number", func(tx *gorm.DB) {
		if r, ok := tx.Statement.Dest.(*models.Round); ok && !claimed {
			claimed = true
			r.RoundNumber = 1
		}
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	_, err := e.rounds.Create(ctx, admin, CreateRoundInput{StartTime: now, EndTime: now.Add(time.Hour)})
	if !apperr.Is(err, apperr.CodeInvalidTransition) {
		t.Fatalf("expected InvalidTransition, got %v", err)
	}
	if apperr.HTTPStatus(apperr.CodeOf(err)) != http.StatusConflict {
		t.Fatalf("status = %d, want 409", apperr.HTTPStatus(apperr.CodeOf(err)))
	}

	r, err := e.rounds.Create(ctx, admin, CreateRoundInput{StartTime: now, EndTime: now.Add(time.Hour)})
	if err != nil || r.RoundNumber != 2 {
		t.Fatalf("retry: %+v %v", r, err)
	}
}

func TestConcurrentCreateNumbersUniquely(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	now := e.clock.Now()

	const n = 6
	var wg sync.WaitGroup
	var mu sync.Mutex
	numbers := map[int]bool{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := e.rounds.Create(ctx, admin, CreateRoundInput{StartTime: now, EndTime: now.Add(time.Hour)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				if numbers[r.RoundNumber] {
					t.Errorf("round number %d handed out twice", r.RoundNumber)
				}
				numbers[r.RoundNumber] = true
			case apperr.Is(err, apperr.CodeInvalidTransition):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	var stored int64
	e.db.Model(&models.Round{}).Count(&stored)
	if int(stored) != len(numbers) {
		t.Fatalf("stored %d rounds, callers saw %d", stored, len(numbers))
	}
}

func TestStartRoundTransitions(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	now := e.clock.Now()
	r1 := testutil.SeedRound(t, e.db, 1, models.RoundScheduled, now, now.Add(time.Hour))
	r2 := testutil.SeedRound(t, e.db, 2, models.RoundScheduled, now.Add(time.Hour), now.Add(2*time.Hour))
	trial := testutil.SeedTrial(t, e.db, r1.ID, 1, 1, 1)

	events, unsubscribe := e.hub.Subscribe(8)
	defer unsubscribe()

	started, err := e.rounds.Start(ctx, admin, r1.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != models.RoundActive || !started.IsActive {
		t.Fatalf("round not active: %+v", started)
	}
	if started.StartedBy == nil || *started.StartedBy != admin.UserID {
		t.Fatalf("started_by not recorded")
	}
	var tr models.Trial
	e.db.First(&tr, "id = ?", trial.ID)
	if tr.Status != models.RoundActive {
		t.Fatalf("trial status %s, want active", tr.Status)
	}
	if evt := <-events; evt.Type != EventRoundStarted || evt.RoundID != r1.ID {
		t.Fatalf("unexpected event %+v", evt)
	}

	if _, err := e.rounds.Start(ctx, admin, r2.ID); !apperr.Is(err, apperr.CodeRoundAlreadyActive) {
		t.Fatalf("second start: expected RoundAlreadyActive, got %v", err)
	}
	if _, err := e.rounds.Start(ctx, admin, r1.ID); !apperr.Is(err, apperr.CodeInvalidTransition) {
		t.Fatalf("restart: expected InvalidTransition, got %v", err)
	}
	if _, err := e.rounds.Start(ctx, admin, "missing"); !apperr.Is(err, apperr.CodeRoundNotFound) {
		t.Fatalf("missing: expected RoundNotFound, got %v", err)
	}
}

func TestConcurrentStartLeavesOneActive(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	now := e.clock.Now()

	const n = 6
	ids := make([]string, n)
	for i := range ids {
		ids[i] = testutil.SeedRound(t, e.db, i+1, models.RoundScheduled, now, now.Add(time.Hour)).ID
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := e.rounds.Start(ctx, admin, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperr.Is(err, apperr.CodeRoundAlreadyActive):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	if succeeded != 1 || rejected != n-1 {
		t.Fatalf("succeeded=%d rejected=%d", succeeded, rejected)
	}
	var active int64
	e.db.Model(&models.Round{}).Where("status = ?", models.RoundActive).Count(&active)
	if active != 1 {
		t.Fatalf("expected exactly one active round, got %d", active)
	}
}

func TestEndRoundFreezesSnapshot(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	r, trial := e.activeRound(t, 1, 1)
	a := e.character(t, "u1", "A")
	b := e.character(t, "u2", "B")
	testutil.SeedPlan(t, e.db, a.ID, testutil.Lv1)
	testutil.SeedPlan(t, e.db, b.ID, testutil.Lv1)
	testutil.SeedResult(t, e.db, trial.ID, a.ID, 100, false)
	// stale rows are recomputed before freezing
	testutil.SeedResult(t, e.db, trial.ID, b.ID, 0, true)

	e.clock.Advance(10 * time.Minute)
	ended, err := e.rounds.End(ctx, admin, r.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.Status != models.RoundCompleted || ended.ActualEndTime == nil {
		t.Fatalf("unexpected round after end: %+v", ended)
	}
	if !ended.ActualEndTime.Equal(testutil.Epoch.Add(10 * time.Minute)) {
		t.Fatalf("actual_end_time = %v", ended.ActualEndTime)
	}

	var rows []models.LeaderboardSnapshot
	e.db.Where("round_number = ?", 1).Order("rank ASC").Find(&rows)
	if len(rows) != 2 {
		t.Fatalf("expected 2 snapshot rows, got %d", len(rows))
	}
	if rows[0].CharacterID != a.ID || rows[0].TotalScore != 100 || rows[0].Rank != 1 {
		t.Fatalf("unexpected first row %+v", rows[0])
	}
	if rows[1].CharacterID != b.ID || rows[1].TotalScore != testutil.Lv1.Sum() || rows[1].Rank != 2 {
		t.Fatalf("unexpected second row %+v", rows[1])
	}
	if n := e.countResults(t, "needs_revalidation = ?", true); n != 0 {
		t.Fatalf("stale rows left after end: %d", n)
	}

	if _, err := e.rounds.End(ctx, admin, r.ID); !apperr.Is(err, apperr.CodeInvalidTransition) {
		t.Fatalf("double end: expected InvalidTransition, got %v", err)
	}
	if _, err := e.rounds.Cancel(ctx, admin, r.ID, "late"); !apperr.Is(err, apperr.CodeInvalidTransition) {
		t.Fatalf("cancel completed: expected InvalidTransition, got %v", err)
	}
}

func TestEndScheduledRoundIsInvalid(t *testing.T) {
	e := newTestEnv(t)
	now := e.clock.Now()
	r := testutil.SeedRound(t, e.db, 1, models.RoundScheduled, now, now.Add(time.Hour))
	if _, err := e.rounds.End(context.Background(), admin, r.ID); !apperr.Is(err, apperr.CodeInvalidTransition) {
		t.Fatalf("expected InvalidTransition, got %v", err)
	}
}

func TestExtendBoundary(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	r, _ := e.activeRound(t, 1, 1)

	if _, err := e.rounds.Extend(ctx, admin, r.ID, r.StartTime); !apperr.Is(err, apperr.CodeInvalidTimeRange) {
		t.Fatalf("end == start: expected InvalidTimeRange, got %v", err)
	}
	extended, err := e.rounds.Extend(ctx, admin, r.ID, r.StartTime.Add(time.Second))
	if err != nil {
		t.Fatalf("start + 1s: %v", err)
	}
	if !extended.EndTime.Equal(r.StartTime.Add(time.Second)) {
		t.Fatalf("end_time = %v", extended.EndTime)
	}

	later, err := e.rounds.Extend(ctx, admin, r.ID, r.StartTime.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if later.Status != models.RoundActive {
		t.Fatalf("extend changed status to %s", later.Status)
	}

	if _, err := e.rounds.Cancel(ctx, admin, r.ID, "test"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := e.rounds.Extend(ctx, admin, r.ID, r.StartTime.Add(4*time.Hour)); !apperr.Is(err, apperr.CodeInvalidTransition) {
		t.Fatalf("extend cancelled: expected InvalidTransition, got %v", err)
	}
}

func TestCancelRound(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	r, trial := e.activeRound(t, 1, 1)

	cancelled, err := e.rounds.Cancel(ctx, admin, r.ID, "server issue")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.RoundCancelled || cancelled.CancelReason != "server issue" {
		t.Fatalf("unexpected round %+v", cancelled)
	}
	var tr models.Trial
	e.db.First(&tr, "id = ?", trial.ID)
	if tr.Status != models.RoundCancelled {
		t.Fatalf("trial not cancelled: %s", tr.Status)
	}
	var snapshots int64
	e.db.Model(&models.LeaderboardSnapshot{}).Count(&snapshots)
	if snapshots != 0 {
		t.Fatalf("cancel must not freeze a snapshot")
	}

	// a cancelled round frees the active slot
	now := e.clock.Now()
	next := testutil.SeedRound(t, e.db, 2, models.RoundScheduled, now, now.Add(time.Hour))
	if _, err := e.rounds.Start(ctx, admin, next.ID); err != nil {
		t.Fatalf("start after cancel: %v", err)
	}
}

func TestCurrentAndNextRound(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	now := e.clock.Now()

	if r, err := e.rounds.CurrentRound(ctx); err != nil || r != nil {
		t.Fatalf("empty db: round=%v err=%v", r, err)
	}

	active := testutil.SeedRound(t, e.db, 1, models.RoundActive, now, now.Add(time.Hour))
	upcoming := testutil.SeedRound(t, e.db, 2, models.RoundScheduled, now.Add(2*time.Hour), now.Add(3*time.Hour))

	cur, err := e.rounds.CurrentRound(ctx)
	if err != nil || cur == nil || cur.ID != active.ID {
		t.Fatalf("current at start boundary: %v %v", cur, err)
	}
	next, err := e.rounds.NextRound(ctx)
	if err != nil || next == nil || next.ID != upcoming.ID {
		t.Fatalf("next: %v %v", next, err)
	}

	// the end instant is outside the window
	e.clock.Advance(time.Hour)
	if cur, _ := e.rounds.CurrentRound(ctx); cur != nil {
		t.Fatalf("round still current at its end time")
	}
	overdue, err := e.rounds.Overdue(ctx)
	if err != nil || len(overdue) != 1 || overdue[0].ID != active.ID {
		t.Fatalf("overdue: %v %v", overdue, err)
	}
}

func TestListRounds(t *testing.T) {
	e := newTestEnv(t)
	now := e.clock.Now()
	for i := 1; i <= 3; i++ {
		testutil.SeedRound(t, e.db, i, models.RoundScheduled, now, now.Add(time.Hour))
	}
	list, err := e.rounds.List(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].RoundNumber != 3 || list[1].RoundNumber != 2 {
		t.Fatalf("unexpected page %+v", list)
	}
}

func TestLatestCompleted(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	now := e.clock.Now()

	if r, err := e.rounds.LatestCompleted(ctx); err != nil || r != nil {
		t.Fatalf("empty: %+v %v", r, err)
	}
	testutil.SeedRound(t, e.db, 1, models.RoundCompleted, now.Add(-3*time.Hour), now.Add(-2*time.Hour))
	testutil.SeedRound(t, e.db, 2, models.RoundCompleted, now.Add(-2*time.Hour), now.Add(-time.Hour))
	testutil.SeedRound(t, e.db, 3, models.RoundCancelled, now.Add(-time.Hour), now)

	r, err := e.rounds.LatestCompleted(ctx)
	if err != nil || r == nil || r.RoundNumber != 2 {
		t.Fatalf("latest completed = %+v %v", r, err)
	}
}
