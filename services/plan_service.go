package services

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/drakejin/cday2025-minigame-sub000/apperr"
	"github.com/drakejin/cday2025-minigame-sub000/models"
)

// PlanService stores growth plans and invalidates the results a plan change
// makes stale. Invalidation walks the tier chain 1 -> 2 -> 3: editing tier k
// stales every result of a trial at level k or above.
type PlanService struct {
	Deps
	Scoring   *ScoringService
	Standings StandingsInvalidator
}

func NewPlanService(d Deps, scoring *ScoringService, standings StandingsInvalidator) *PlanService {
	if standings == nil {
		standings = nopInvalidator{}
	}
	return &PlanService{Deps: d.withDefaults(), Scoring: scoring, Standings: standings}
}

// PlanInput carries the tiers to overwrite. Nil tiers keep their stored value.
type PlanInput struct {
	Lv1 *models.PlanTier
	Lv2 *models.PlanTier
	Lv3 *models.PlanTier
}

func (in PlanInput) apply(p *models.CharacterPlan) {
	if in.Lv1 != nil {
		p.Lv1 = *in.Lv1
	}
	if in.Lv2 != nil {
		p.Lv2 = *in.Lv2
	}
	if in.Lv3 != nil {
		p.Lv3 = *in.Lv3
	}
}

// PlanChange reports what an upsert did.
type PlanChange struct {
	Plan         models.CharacterPlan `json:"plan"`
	ChangedLevel int                  `json:"changed_level"`
	Invalidated  int64                `json:"invalidated"`
}

func (s *PlanService) Get(ctx context.Context, actor models.Actor, characterID string) (*models.CharacterPlan, error) {
	db := s.DB.WithContext(ctx)
	if _, err := loadOwnedCharacter(db, actor, characterID); err != nil {
		return nil, err
	}
	var plans []models.CharacterPlan
	if err := db.Where("character_id = ?", characterID).Limit(1).Find(&plans).Error; err != nil {
		return nil, apperr.Database(err)
	}
	if len(plans) == 0 {
		return &models.CharacterPlan{CharacterID: characterID}, nil
	}
	return &plans[0], nil
}

// Upsert validates and saves the plan, then marks the affected results stale,
// all in one transaction. Scores are recomputed after the commit.
func (s *PlanService) Upsert(ctx context.Context, actor models.Actor, characterID string, in PlanInput) (change *PlanChange, err error) {
	ctx, span := startSpan(ctx, "PlanService.Upsert", actorAttr(actor), attribute.String("character.id", characterID))
	defer func() { endSpan(span, err) }()

	if _, err := loadOwnedCharacter(s.DB.WithContext(ctx), actor, characterID); err != nil {
		return nil, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		change, txErr = s.upsertTx(tx, characterID, func(p *models.CharacterPlan) error {
			in.apply(p)
			return nil
		})
		return txErr
	})
	if err != nil {
		return nil, err
	}

	if change.ChangedLevel > 0 {
		s.afterChange(ctx, characterID, change)
		if actor.IsAdmin() {
			s.Audit.Record(ctx, AuditEntry{
				Actor: actor, Action: ActionPlanUpsert, ResourceType: "character_plan", ResourceID: characterID,
				Changes: map[string]interface{}{"changed_level": change.ChangedLevel, "invalidated": change.Invalidated},
			})
		}
	}
	return change, nil
}

// afterChange rescoring is best effort; the periodic sweep picks up anything left stale.
func (s *PlanService) afterChange(ctx context.Context, characterID string, change *PlanChange) {
	s.Log.Debug("plan changed", "character_id", characterID,
		"changed_level", change.ChangedLevel, "invalidated", change.Invalidated)
	if s.Scoring != nil {
		if _, err := s.Scoring.EvaluateCharacter(ctx, characterID); err != nil {
			s.Log.Warn("rescoring after plan change failed", "character_id", characterID, "error", err)
		}
	}
	s.Standings.Invalidate(ctx)
}

// upsertTx locks the plan row (creating it on first use), applies mutate,
// validates the result and marks stale every result of a trial at or above
// the lowest changed level. A validation failure writes nothing.
func (s *PlanService) upsertTx(tx *gorm.DB, characterID string, mutate func(*models.CharacterPlan) error) (*PlanChange, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.CharacterPlan{CharacterID: characterID}).Error; err != nil {
		return nil, apperr.Database(err)
	}
	var current models.CharacterPlan
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("character_id = ?", characterID).
		First(&current).Error; err != nil {
		return nil, apperr.Database(err)
	}

	next := current
	if err := mutate(&next); err != nil {
		return nil, err
	}
	if err := ValidatePlan(&next); err != nil {
		return nil, err
	}

	level := LowestChangedLevel(&current, &next)
	if level == 0 {
		return &PlanChange{Plan: current}, nil
	}
	next.Revision = current.Revision + 1
	if err := tx.Save(&next).Error; err != nil {
		return nil, apperr.Database(err)
	}

	res := tx.Model(&models.TrialResult{}).
		Where("character_id = ?", characterID).
		Where("trial_id IN (SELECT id FROM trials WHERE level >= ?)", level).
		Update("needs_revalidation", true)
	if res.Error != nil {
		return nil, apperr.Database(res.Error)
	}
	return &PlanChange{Plan: next, ChangedLevel: level, Invalidated: res.RowsAffected}, nil
}
