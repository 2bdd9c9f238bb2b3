package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/drakejin/cday2025-minigame-sub000/logger"
	"github.com/drakejin/cday2025-minigame-sub000/models"
)

// Audit actions.
const (
	ActionRoundCreate   = "round.create"
	ActionRoundStart    = "round.start"
	ActionRoundEnd      = "round.end"
	ActionRoundExtend   = "round.extend"
	ActionRoundCancel   = "round.cancel"
	ActionTrialUpsert   = "trial.upsert"
	ActionTrialDelete   = "trial.delete"
	ActionPlanUpsert    = "plan.upsert"
	ActionPromptDelete  = "prompt.delete"
	ActionPlayerBan     = "player.ban"
	ActionPlayerUnban   = "player.unban"
	ActionScoresRecheck = "scores.revalidate"
)

type AuditEntry struct {
	Actor        models.Actor
	Action       string
	ResourceType string
	ResourceID   string
	Changes      map[string]interface{}
}

// Auditor records administrative mutations. Record never blocks the caller
// and never reports failure.
type Auditor interface {
	Record(ctx context.Context, entry AuditEntry)
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, AuditEntry) {}

type AuditService struct {
	DB  *gorm.DB
	Log *logger.Logger

	wg sync.WaitGroup
}

func NewAuditService(db *gorm.DB, log *logger.Logger) *AuditService {
	if log == nil {
		log = logger.Nop()
	}
	return &AuditService{DB: db, Log: log}
}

func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		row := models.AuditLog{
			ActorID:      entry.Actor.UserID,
			Action:       entry.Action,
			ResourceType: entry.ResourceType,
			ResourceID:   entry.ResourceID,
		}
		if len(entry.Changes) > 0 {
			if b, err := json.Marshal(entry.Changes); err == nil {
				row.Changes = datatypes.JSON(b)
			}
		}
		if err := s.DB.WithContext(writeCtx).Create(&row).Error; err != nil {
			s.Log.Warn("audit write failed", "action", entry.Action, "resource_id", entry.ResourceID, "error", err)
		}
	}()
}

// Wait blocks until pending writes finish. Used on shutdown.
func (s *AuditService) Wait() {
	s.wg.Wait()
}
