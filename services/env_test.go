package services

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"github.com/drakejin/cday2025-minigame-sub000/models"
	"github.com/drakejin/cday2025-minigame-sub000/testutil"
)

var admin = models.Actor{UserID: "admin-1", Role: models.RoleAdmin}

func player(userID string) models.Actor {
	return models.Actor{UserID: userID, Role: models.RolePlayer}
}

// testEnv wires every service the way main does, over an in-memory database and a fake clock.
type testEnv struct {
	db    *gorm.DB
	clock *clockwork.FakeClock
	hub   *EventHub

	rounds      *RoundService
	trials      *TrialService
	scoring     *ScoringService
	leaderboard *LeaderboardService
	plans       *PlanService
	submissions *SubmissionService
	characters  *CharacterService
	players     *PlayerService
	prompts     *PromptService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.DB(t)
	clock := testutil.Clock(t)
	hub := NewEventHub(testutil.Logger(t), clock)
	d := Deps{DB: db, Log: testutil.Logger(t), Clock: clock, Notify: hub}

	e := &testEnv{db: db, clock: clock, hub: hub}
	e.leaderboard = NewLeaderboardService(d, nil, nil)
	e.scoring = NewScoringService(d, 4, e.leaderboard)
	e.rounds = NewRoundService(d, e.scoring, e.leaderboard)
	e.trials = NewTrialService(d, e.rounds, e.leaderboard)
	e.players = NewPlayerService(d, e.leaderboard)
	e.characters = NewCharacterService(d, e.players, e.leaderboard)
	e.plans = NewPlanService(d, e.scoring, e.leaderboard)
	e.submissions = NewSubmissionService(d, e.rounds, e.trials, e.plans, e.scoring, e.leaderboard)
	e.prompts = NewPromptService(d, e.leaderboard)
	return e
}

// activeRound seeds round n as active around the fake clock's now, with its trial.
func (e *testEnv) activeRound(t *testing.T, n, level int) (*models.Round, *models.Trial) {
	t.Helper()
	now := e.clock.Now()
	r := testutil.SeedRound(t, e.db, n, models.RoundActive, now.Add(-time.Hour), now.Add(time.Hour))
	tr := testutil.SeedTrial(t, e.db, r.ID, r.TrialNo, level, models.DefaultWeight(level))
	return r, tr
}

func (e *testEnv) character(t *testing.T, userID, name string) *models.Character {
	t.Helper()
	testutil.SeedPlayer(t, e.db, userID, userID+"-name")
	return testutil.SeedCharacter(t, e.db, userID, name, e.clock.Now())
}

func (e *testEnv) countResults(t *testing.T, where string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&models.TrialResult{}).Where(where, args...).Count(&n).Error; err != nil {
		t.Fatalf("count results: %v", err)
	}
	return n
}

func intPtr(v int) *int { return &v }
