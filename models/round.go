package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoundStatus is the lifecycle state of a round.
type RoundStatus string

const (
	RoundScheduled RoundStatus = "scheduled"
	RoundActive    RoundStatus = "active"
	RoundCompleted RoundStatus = "completed"
	RoundCancelled RoundStatus = "cancelled"
)

// roundTransitions lists the statuses each status may move to.
var roundTransitions = map[RoundStatus][]RoundStatus{
	RoundScheduled: {RoundActive, RoundCancelled},
	RoundActive:    {RoundCompleted, RoundCancelled},
}

// CanTransition reports whether from -> to is an edge of the round state machine.
func CanTransition(from, to RoundStatus) bool {
	for _, s := range roundTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SourcesOf returns the statuses that may move to `to`, in lifecycle order.
// Conditional updates use it as their prior-status filter.
func SourcesOf(to RoundStatus) []RoundStatus {
	var from []RoundStatus
	for _, s := range []RoundStatus{RoundScheduled, RoundActive, RoundCompleted, RoundCancelled} {
		if CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

func (s RoundStatus) Terminal() bool {
	return s == RoundCompleted || s == RoundCancelled
}

// Round is one submission window. At most one round is active at any time.
type Round struct {
	ID            string      `json:"id" gorm:"primaryKey"`
	RoundNumber   int         `json:"round_number" gorm:"uniqueIndex;not null"`
	TrialNo       int         `json:"trial_no" gorm:"not null;default:1"`
	StartTime     time.Time   `json:"start_time" gorm:"not null"`
	EndTime       time.Time   `json:"end_time" gorm:"not null"`
	Status        RoundStatus `json:"status" gorm:"type:varchar(16);not null;default:'scheduled';index"`
	ActualEndTime *time.Time  `json:"actual_end_time,omitempty"`
	StartedBy     *string     `json:"started_by,omitempty"`
	EndedBy       *string     `json:"ended_by,omitempty"`
	Notes         string      `json:"notes"`
	CancelReason  string      `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time   `json:"updated_at" gorm:"autoUpdateTime"`

	// Derived from Status, never stored.
	IsActive bool `json:"is_active" gorm:"-"`
}

func (r *Round) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

func (r *Round) AfterFind(tx *gorm.DB) error {
	r.IsActive = r.Status == RoundActive
	return nil
}

// Contains reports whether t falls inside [StartTime, EndTime).
func (r *Round) Contains(t time.Time) bool {
	return !t.Before(r.StartTime) && t.Before(r.EndTime)
}

// DefaultTrialNo maps a round number onto the three trials.
func DefaultTrialNo(roundNumber int) int {
	switch {
	case roundNumber < 1:
		return 1
	case roundNumber > MaxTrialNo:
		return MaxTrialNo
	default:
		return roundNumber
	}
}
