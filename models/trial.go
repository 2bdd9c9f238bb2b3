package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MaxTrialNo    = 3
	MaxLevel      = 3
	MaxWeight     = 4
	PointsPerTier = 100
)

// defaultWeights maps a trial level to its multiplier.
var defaultWeights = map[int]int{1: 1, 2: 2, 3: 4}

// DefaultWeight returns the multiplier used when an admin does not set one.
func DefaultWeight(level int) int {
	if w, ok := defaultWeights[level]; ok {
		return w
	}
	return 1
}

func ValidWeight(w int) bool { return w >= 1 && w <= MaxWeight }

// Trial is a scored evaluation bound to a round.
type Trial struct {
	ID               string      `json:"id" gorm:"primaryKey"`
	RoundID          string      `json:"round_id" gorm:"not null;uniqueIndex:idx_trials_round_trial_no"`
	TrialNo          int         `json:"trial_no" gorm:"not null;uniqueIndex:idx_trials_round_trial_no"`
	Level            int         `json:"level" gorm:"not null"`
	WeightMultiplier int         `json:"weight_multiplier" gorm:"not null;default:1"`
	Status           RoundStatus `json:"status" gorm:"type:varchar(16);not null;default:'scheduled'"`
	CreatedAt        time.Time   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time   `json:"updated_at" gorm:"autoUpdateTime"`

	MaxPoints int `json:"max_points" gorm:"-"`
}

func (t *Trial) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

func (t *Trial) AfterFind(tx *gorm.DB) error {
	t.MaxPoints = PointsPerTier * t.WeightMultiplier
	return nil
}
