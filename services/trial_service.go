package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/drakejin/cday2025-minigame-sub000/apperr"
	"github.com/drakejin/cday2025-minigame-sub000/models"
)

type TrialService struct {
	Deps
	Rounds    *RoundService
	Standings StandingsInvalidator
}

func NewTrialService(d Deps, rounds *RoundService, standings StandingsInvalidator) *TrialService {
	if standings == nil {
		standings = nopInvalidator{}
	}
	return &TrialService{Deps: d.withDefaults(), Rounds: rounds, Standings: standings}
}

type TrialInput struct {
	TrialNo int
	Level   int
	Weight  *int
}

// CreateOrUpdateTrial upserts the trial keyed by (round, trial_no). Changing
// the level or weight of a trial marks its existing results stale.
func (s *TrialService) CreateOrUpdateTrial(ctx context.Context, actor models.Actor, roundID string, in TrialInput) (trial *models.Trial, err error) {
	ctx, span := startSpan(ctx, "TrialService.CreateOrUpdateTrial", actorAttr(actor),
		attribute.String("round.id", roundID), attribute.Int("trial.no", in.TrialNo))
	defer func() { endSpan(span, err) }()

	if in.TrialNo < 1 || in.TrialNo > models.MaxTrialNo {
		return nil, apperr.New(apperr.CodeInvalidArgument, "trial_no must be between 1 and %d", models.MaxTrialNo)
	}
	if in.Level < 1 || in.Level > models.MaxLevel {
		return nil, apperr.New(apperr.CodeInvalidArgument, "level must be between 1 and %d", models.MaxLevel)
	}
	weight := models.DefaultWeight(in.Level)
	if in.Weight != nil {
		if !models.ValidWeight(*in.Weight) {
			return nil, apperr.New(apperr.CodeInvalidArgument, "weight_multiplier must be between 1 and %d", models.MaxWeight)
		}
		weight = *in.Weight
	}

	var saved models.Trial
	var invalidated int64
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var round models.Round
		if err := loadRound(tx, roundID, &round); err != nil {
			return err
		}
		if round.Status.Terminal() {
			return apperr.New(apperr.CodeInvalidTransition, "round %d is %s; its trials are frozen", round.RoundNumber, round.Status)
		}

		var existing []models.Trial
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("round_id = ? AND trial_no = ?", roundID, in.TrialNo).
			Limit(1).
			Find(&existing).Error; err != nil {
			return apperr.Database(err)
		}

		if len(existing) == 0 {
			saved = models.Trial{
				RoundID:          roundID,
				TrialNo:          in.TrialNo,
				Level:            in.Level,
				WeightMultiplier: weight,
				Status:           round.Status,
			}
			if err := tx.Create(&saved).Error; err != nil {
				return apperr.Database(err)
			}
			saved.MaxPoints = models.PointsPerTier * weight
			return nil
		}

		saved = existing[0]
		if saved.Level == in.Level && saved.WeightMultiplier == weight {
			return nil
		}
		if err := tx.Model(&models.Trial{}).Where("id = ?", saved.ID).Updates(map[string]interface{}{
			"level":             in.Level,
			"weight_multiplier": weight,
		}).Error; err != nil {
			return apperr.Database(err)
		}
		res := tx.Model(&models.TrialResult{}).
			Where("trial_id = ?", saved.ID).
			Update("needs_revalidation", true)
		if res.Error != nil {
			return apperr.Database(res.Error)
		}
		invalidated = res.RowsAffected
		saved.Level = in.Level
		saved.WeightMultiplier = weight
		saved.MaxPoints = models.PointsPerTier * weight
		return nil
	})
	if err != nil {
		return nil, err
	}

	if invalidated > 0 {
		s.Standings.Invalidate(ctx)
		s.Notify.Publish(Event{Type: EventLeaderboardChanged, RoundID: roundID})
	}
	s.Log.Info("trial saved", "trial_id", saved.ID, "round_id", roundID, "trial_no", saved.TrialNo,
		"level", saved.Level, "weight", saved.WeightMultiplier, "invalidated", invalidated)
	s.Audit.Record(ctx, AuditEntry{
		Actor: actor, Action: ActionTrialUpsert, ResourceType: "trial", ResourceID: saved.ID,
		Changes: map[string]interface{}{"trial_no": saved.TrialNo, "level": saved.Level, "weight_multiplier": saved.WeightMultiplier},
	})
	s.Notify.Publish(Event{Type: EventTrialChanged, RoundID: roundID})
	return &saved, nil
}

// DeleteTrial removes a trial that no result references yet.
func (s *TrialService) DeleteTrial(ctx context.Context, actor models.Actor, trialID string) (err error) {
	ctx, span := startSpan(ctx, "TrialService.DeleteTrial", actorAttr(actor), attribute.String("trial.id", trialID))
	defer func() { endSpan(span, err) }()

	var roundID string
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var trial models.Trial
		if err := tx.Where("id = ?", trialID).First(&trial).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.CodeTrialNotFound, "trial %s not found", trialID)
			}
			return apperr.Database(err)
		}
		roundID = trial.RoundID

		res := tx.Where("id = ?", trialID).
			Where("NOT EXISTS (SELECT 1 FROM trial_results tr WHERE tr.trial_id = trials.id)").
			Delete(&models.Trial{})
		if res.Error != nil {
			return apperr.Database(res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.CodeTrialHasResults, "trial %d of round %s already has results", trial.TrialNo, trial.RoundID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Log.Info("trial deleted", "trial_id", trialID, "actor", actor.UserID)
	s.Audit.Record(ctx, AuditEntry{Actor: actor, Action: ActionTrialDelete, ResourceType: "trial", ResourceID: trialID})
	s.Notify.Publish(Event{Type: EventTrialChanged, RoundID: roundID})
	return nil
}

func (s *TrialService) ListForRound(ctx context.Context, roundID string) ([]models.Trial, error) {
	db := s.DB.WithContext(ctx)
	var round models.Round
	if err := loadRound(db, roundID, &round); err != nil {
		return nil, err
	}
	var trials []models.Trial
	if err := db.Where("round_id = ?", roundID).Order("trial_no ASC").Find(&trials).Error; err != nil {
		return nil, apperr.Database(err)
	}
	return trials, nil
}

// ActiveTrial resolves the trial the current round plays.
func (s *TrialService) ActiveTrial(ctx context.Context) (*models.Trial, error) {
	round, err := s.Rounds.CurrentRound(ctx)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, apperr.New(apperr.CodeRoundNotActive, "no round is currently active")
	}
	trial, err := s.trialForRound(ctx, round)
	if err != nil {
		return nil, err
	}
	if trial == nil {
		return nil, apperr.New(apperr.CodeTrialNotFound, "round %d has no trial %d configured", round.RoundNumber, round.TrialNo)
	}
	return trial, nil
}

// trialForRound returns nil when the round's configured trial does not exist.
func (s *TrialService) trialForRound(ctx context.Context, round *models.Round) (*models.Trial, error) {
	var trials []models.Trial
	if err := s.DB.WithContext(ctx).
		Where("round_id = ? AND trial_no = ?", round.ID, round.TrialNo).
		Limit(1).
		Find(&trials).Error; err != nil {
		return nil, apperr.Database(err)
	}
	if len(trials) == 0 {
		return nil, nil
	}
	return &trials[0], nil
}
