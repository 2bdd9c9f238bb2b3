package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Character is a player's game persona. A user has at most one active character.
type Character struct {
	ID            string `json:"id" gorm:"primaryKey"`
	UserID        string `json:"user_id" gorm:"not null;index"`
	Name          string `json:"name" gorm:"not null"`
	CurrentPrompt string `json:"current_prompt"`
	IsActive      bool   `json:"is_active" gorm:"not null;index"`

	Timestamps
}

func (c *Character) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
