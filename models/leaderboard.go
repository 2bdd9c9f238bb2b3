package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LeaderboardSnapshot is one frozen row of the ranking taken when a round completes.
type LeaderboardSnapshot struct {
	ID                 string    `json:"id" gorm:"primaryKey"`
	RoundID            string    `json:"round_id" gorm:"not null;index"`
	RoundNumber        int       `json:"round_number" gorm:"not null;uniqueIndex:idx_snapshot_round_character"`
	CharacterID        string    `json:"character_id" gorm:"not null;uniqueIndex:idx_snapshot_round_character"`
	Rank               int       `json:"rank" gorm:"not null"`
	TotalScore         int       `json:"total_score" gorm:"not null"`
	CharacterName      string    `json:"character_name"`
	PlayerName         string    `json:"player_name"`
	CurrentPrompt      string    `json:"current_prompt"`
	CharacterCreatedAt time.Time `json:"character_created_at"`
	FrozenAt           time.Time `json:"frozen_at"`
}

func (s *LeaderboardSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// LeaderboardEntry is one ranked row as served to clients.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	CharacterID   string `json:"character_id"`
	CharacterName string `json:"character_name"`
	PlayerName    string `json:"player_name"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	CurrentPrompt string `json:"current_prompt"`
	TotalScore    int    `json:"total_score"`

	CreatedAt time.Time `json:"-"`
}
