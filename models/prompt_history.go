package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PromptHistory records one accepted submission. Moderation soft-deletes rows;
// a deleted row frees the (character, round) slot again.
type PromptHistory struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	CharacterID  string     `json:"character_id" gorm:"not null;index"`
	RoundID      string     `json:"round_id" gorm:"not null;index"`
	RoundNumber  int        `json:"round_number" gorm:"not null"`
	Level        int        `json:"level" gorm:"not null"`
	Prompt       string     `json:"prompt" gorm:"not null"`
	GainStr      int        `json:"gain_str"`
	GainDex      int        `json:"gain_dex"`
	GainCon      int        `json:"gain_con"`
	GainInt      int        `json:"gain_int"`
	IsDeleted    bool       `json:"is_deleted" gorm:"not null"`
	DeletedBy    *string    `json:"deleted_by,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	DeleteReason string     `json:"delete_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

func (p *PromptHistory) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (p *PromptHistory) Gains() StatVector {
	return StatVector{Str: p.GainStr, Dex: p.GainDex, Con: p.GainCon, Int: p.GainInt}
}
