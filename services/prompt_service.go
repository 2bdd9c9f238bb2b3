package services

import (
	"context"
	"strings"

	"github.com/drakejin/cday2025-minigame-sub000/apperr"
	"github.com/drakejin/cday2025-minigame-sub000/models"
)

type PromptService struct {
	Deps
	Standings StandingsInvalidator
}

func NewPromptService(d Deps, standings StandingsInvalidator) *PromptService {
	if standings == nil {
		standings = nopInvalidator{}
	}
	return &PromptService{Deps: d.withDefaults(), Standings: standings}
}

// History lists a character's submissions, newest round first. Deleted rows
// are only returned to admins that ask for them.
func (s *PromptService) History(ctx context.Context, actor models.Actor, characterID string, includeDeleted bool) ([]models.PromptHistory, error) {
	db := s.DB.WithContext(ctx)
	if _, err := loadOwnedCharacter(db, actor, characterID); err != nil {
		return nil, err
	}
	q := db.Where("character_id = ?", characterID)
	if !includeDeleted || !actor.IsAdmin() {
		q = q.Where("deleted_at IS NULL")
	}
	var rows []models.PromptHistory
	if err := q.Order("round_number DESC").Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, apperr.Database(err)
	}
	return rows, nil
}

// SoftDelete hides a submission. The character may then submit again in that round
// if it is still active. Plan tiers already written stay as they are.
func (s *PromptService) SoftDelete(ctx context.Context, actor models.Actor, promptID, reason string) (*models.PromptHistory, error) {
	if !actor.IsAdmin() {
		return nil, apperr.New(apperr.CodeForbidden, "only admins can delete prompts")
	}
	now := nowFrom(s.Clock)
	by := actor.UserID
	reason = strings.TrimSpace(reason)

	db := s.DB.WithContext(ctx)
	res := db.Model(&models.PromptHistory{}).
		Where("id = ? AND deleted_at IS NULL", promptID).
		Updates(map[string]interface{}{
			"is_deleted":    true,
			"deleted_by":    by,
			"deleted_at":    now,
			"delete_reason": reason,
		})
	if res.Error != nil {
		return nil, apperr.Database(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.New(apperr.CodePromptNotFound, "prompt %s not found", promptID)
	}

	var row models.PromptHistory
	if err := db.Where("id = ?", promptID).First(&row).Error; err != nil {
		return nil, apperr.Database(err)
	}
	s.Log.Info("prompt deleted", "prompt_id", promptID, "character_id", row.CharacterID, "actor", by)
	s.Audit.Record(ctx, AuditEntry{
		Actor: actor, Action: ActionPromptDelete, ResourceType: "prompt_history", ResourceID: promptID,
		Changes: map[string]interface{}{"reason": reason, "round_number": row.RoundNumber},
	})
	return &row, nil
}
