package testutil

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/drakejin/cday2025-minigame-sub000/models"
)

// SeedRound inserts a round directly, bypassing lifecycle checks.
func SeedRound(tb testing.TB, db *gorm.DB, number int, status models.RoundStatus, start, end time.Time) *models.Round {
	tb.Helper()
	r := &models.Round{
		RoundNumber: number,
		TrialNo:     models.DefaultTrialNo(number),
		StartTime:   start.UTC(),
		EndTime:     end.UTC(),
		Status:      status,
	}
	if err := db.Create(r).Error; err != nil {
		tb.Fatalf("seed round: %v", err)
	}
	r.IsActive = status == models.RoundActive
	return r
}

// SeedTrial inserts a trial carrying its round's status, scheduled when the round is unknown.
func SeedTrial(tb testing.TB, db *gorm.DB, roundID string, trialNo, level, weight int) *models.Trial {
	tb.Helper()
	status := models.RoundScheduled
	var statuses []models.RoundStatus
	if err := db.Model(&models.Round{}).Where("id = ?", roundID).Pluck("status", &statuses).Error; err != nil {
		tb.Fatalf("seed trial: load round: %v", err)
	}
	if len(statuses) == 1 {
		status = statuses[0]
	}
	t := &models.Trial{
		RoundID:          roundID,
		TrialNo:          trialNo,
		Level:            level,
		WeightMultiplier: weight,
		Status:           status,
	}
	if err := db.Create(t).Error; err != nil {
		tb.Fatalf("seed trial: %v", err)
	}
	t.MaxPoints = models.PointsPerTier * weight
	return t
}

func SeedPlayer(tb testing.TB, db *gorm.DB, userID, username string) *models.Player {
	tb.Helper()
	p := &models.Player{ExternalUserID: userID, Username: username}
	if err := db.Create(p).Error; err != nil {
		tb.Fatalf("seed player: %v", err)
	}
	return p
}

// SeedCharacter inserts an active character. createdAt orders leaderboard ties.
func SeedCharacter(tb testing.TB, db *gorm.DB, userID, name string, createdAt time.Time) *models.Character {
	tb.Helper()
	c := &models.Character{UserID: userID, Name: name, IsActive: true}
	c.CreatedAt = createdAt.UTC()
	if err := db.Create(c).Error; err != nil {
		tb.Fatalf("seed character: %v", err)
	}
	return c
}

func SeedPlan(tb testing.TB, db *gorm.DB, characterID string, tiers ...models.StatVector) *models.CharacterPlan {
	tb.Helper()
	p := &models.CharacterPlan{CharacterID: characterID, Revision: 1}
	for i, v := range tiers {
		p.SetTier(i+1, models.PlanTier{StatVector: v, Skill: "skill"})
	}
	if err := db.Create(p).Error; err != nil {
		tb.Fatalf("seed plan: %v", err)
	}
	return p
}

func SeedResult(tb testing.TB, db *gorm.DB, trialID, characterID string, weighted int, stale bool) *models.TrialResult {
	tb.Helper()
	r := &models.TrialResult{
		TrialID:           trialID,
		CharacterID:       characterID,
		TotalScore:        weighted,
		WeightedTotal:     weighted,
		NeedsRevalidation: stale,
		EvaluatedAt:       Epoch,
	}
	if err := db.Create(r).Error; err != nil {
		tb.Fatalf("seed result: %v", err)
	}
	return r
}

// Common plan vectors.
var (
	Lv1 = models.StatVector{Str: 15, Dex: 14, Con: 12, Int: 10}
	Lv2 = models.StatVector{Str: 16, Dex: 15, Con: 12, Int: 10}
	Lv3 = models.StatVector{Str: 16, Dex: 15, Con: 13, Int: 11}
)
