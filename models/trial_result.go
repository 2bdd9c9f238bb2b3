package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TrialResult is the derived score of one character in one trial.
// Rows flagged NeedsRevalidation are stale and excluded from rankings until recomputed.
type TrialResult struct {
	ID                string    `json:"id" gorm:"primaryKey"`
	TrialID           string    `json:"trial_id" gorm:"not null;uniqueIndex:idx_trial_results_pair"`
	CharacterID       string    `json:"character_id" gorm:"not null;uniqueIndex:idx_trial_results_pair;index"`
	ScoreStrength     int       `json:"score_strength"`
	ScoreDexterity    int       `json:"score_dexterity"`
	ScoreConstitution int       `json:"score_constitution"`
	ScoreIntelligence int       `json:"score_intelligence"`
	TotalScore        int       `json:"total_score"`
	WeightedTotal     int       `json:"weighted_total"`
	NeedsRevalidation bool      `json:"needs_revalidation" gorm:"not null;index"`
	PlanRevision      int       `json:"plan_revision"`
	EvaluatedAt       time.Time `json:"evaluated_at"`
	CreatedAt         time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (r *TrialResult) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
