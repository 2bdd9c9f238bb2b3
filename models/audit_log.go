package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog is an append-only record of one administrative mutation.
type AuditLog struct {
	ID           string         `json:"id" gorm:"primaryKey"`
	ActorID      string         `json:"actor_id" gorm:"index"`
	Action       string         `json:"action" gorm:"not null;index"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id" gorm:"index"`
	Changes      datatypes.JSON `json:"changes,omitempty"`
	CreatedAt    time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Role of the caller as asserted by the gateway.
type Role string

const (
	RolePlayer Role = "player"
	RoleAdmin  Role = "admin"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// System is the actor used by background jobs.
var System = Actor{UserID: "system", Role: RoleAdmin}
