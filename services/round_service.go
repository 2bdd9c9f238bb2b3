package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/drakejin/cday2025-minigame-sub000/apperr"
	"github.com/drakejin/cday2025-minigame-sub000/database"
	"github.com/drakejin/cday2025-minigame-sub000/models"
)

// RoundService owns the round state machine. Every transition is a conditional
// update keyed on the expected prior status; nothing is cached in memory.
type RoundService struct {
	Deps
	Scoring     *ScoringService
	Leaderboard *LeaderboardService
}

func NewRoundService(d Deps, scoring *ScoringService, leaderboard *LeaderboardService) *RoundService {
	return &RoundService{Deps: d.withDefaults(), Scoring: scoring, Leaderboard: leaderboard}
}

type CreateRoundInput struct {
	StartTime time.Time
	EndTime   time.Time
	Notes     string
	TrialNo   *int
}

func (s *RoundService) Create(ctx context.Context, actor models.Actor, in CreateRoundInput) (round *models.Round, err error) {
	ctx, span := startSpan(ctx, "RoundService.Create", actorAttr(actor))
	defer func() { endSpan(span, err) }()

	start, end := normalizeTime(in.StartTime), normalizeTime(in.EndTime)
	if !start.Before(end) {
		return nil, apperr.New(apperr.CodeInvalidTimeRange, "start_time must be before end_time")
	}
	if in.TrialNo != nil && (*in.TrialNo < 1 || *in.TrialNo > models.MaxTrialNo) {
		return nil, apperr.New(apperr.CodeInvalidArgument, "trial_no must be between 1 and %d", models.MaxTrialNo)
	}

	var created models.Round
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxNumber int
		if err := tx.Model(&models.Round{}).Select("COALESCE(MAX(round_number), 0)").Scan(&maxNumber).Error; err != nil {
			return apperr.Database(err)
		}
		created = models.Round{
			RoundNumber: maxNumber + 1,
			StartTime:   start,
			EndTime:     end,
			Status:      models.RoundScheduled,
			Notes:       in.Notes,
		}
		created.TrialNo = models.DefaultTrialNo(created.RoundNumber)
		if in.TrialNo != nil {
			created.TrialNo = *in.TrialNo
		}
		if err := tx.Create(&created).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return apperr.New(apperr.CodeInvalidTransition, "round %d was created concurrently, retry", created.RoundNumber)
			}
			return apperr.Database(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("round created", "round_id", created.ID, "round_number", created.RoundNumber, "actor", actor.UserID)
	s.Audit.Record(ctx, AuditEntry{
		Actor: actor, Action: ActionRoundCreate, ResourceType: "round", ResourceID: created.ID,
		Changes: map[string]interface{}{"round_number": created.RoundNumber, "start_time": start, "end_time": end, "trial_no": created.TrialNo},
	})
	s.Notify.Publish(Event{Type: EventRoundCreated, RoundID: created.ID, RoundNumber: created.RoundNumber})
	return &created, nil
}

// Start activates a scheduled round. It only succeeds when the database holds
// no other active round; the partial unique index backs that up under races.
func (s *RoundService) Start(ctx context.Context, actor models.Actor, roundID string) (round *models.Round, err error) {
	ctx, span := startSpan(ctx, "RoundService.Start", actorAttr(actor), attribute.String("round.id", roundID))
	defer func() { endSpan(span, err) }()

	var started models.Round
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Round{}).
			Where("id = ? AND status IN ?", roundID, models.SourcesOf(models.RoundActive)).
			Where("NOT EXISTS (SELECT 1 FROM rounds other WHERE other.status = ?)", models.RoundActive).
			Updates(map[string]interface{}{
				"status":     models.RoundActive,
				"started_by": actor.UserID,
			})
		if res.Error != nil {
			if database.IsUniqueViolation(res.Error) {
				return apperr.New(apperr.CodeRoundAlreadyActive, "another round is already active")
			}
			return apperr.Database(res.Error)
		}
		if res.RowsAffected == 0 {
			return s.explainFailedStart(tx, roundID)
		}
		if err := tx.Model(&models.Trial{}).
			Where("round_id = ? AND status = ?", roundID, models.RoundScheduled).
			Update("status", models.RoundActive).Error; err != nil {
			return apperr.Database(err)
		}
		return loadRound(tx, roundID, &started)
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("round started", "round_id", started.ID, "round_number", started.RoundNumber, "actor", actor.UserID)
	s.Audit.Record(ctx, AuditEntry{Actor: actor, Action: ActionRoundStart, ResourceType: "round", ResourceID: started.ID})
	s.Notify.Publish(Event{Type: EventRoundStarted, RoundID: started.ID, RoundNumber: started.RoundNumber})
	return &started, nil
}

func (s *RoundService) explainFailedStart(tx *gorm.DB, roundID string) error {
	var current models.Round
	if err := loadRound(tx, roundID, &current); err != nil {
		return err
	}
	if models.CanTransition(current.Status, models.RoundActive) {
		return apperr.New(apperr.CodeRoundAlreadyActive, "another round is already active")
	}
	return apperr.New(apperr.CodeInvalidTransition, "round %d cannot start from status %s", current.RoundNumber, current.Status)
}

// End completes the active round, settles stale results and freezes the
// leaderboard snapshot in the same transaction.
func (s *RoundService) End(ctx context.Context, actor models.Actor, roundID string) (round *models.Round, err error) {
	ctx, span := startSpan(ctx, "RoundService.End", actorAttr(actor), attribute.String("round.id", roundID))
	defer func() { endSpan(span, err) }()

	now := nowFrom(s.Clock)
	var ended models.Round
	var snapshot []models.LeaderboardSnapshot
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Round{}).
			Where("id = ? AND status IN ?", roundID, models.SourcesOf(models.RoundCompleted)).
			Updates(map[string]interface{}{
				"status":          models.RoundCompleted,
				"actual_end_time": now,
				"ended_by":        actor.UserID,
			})
		if res.Error != nil {
			return apperr.Database(res.Error)
		}
		if res.RowsAffected == 0 {
			return s.explainFailedTransition(tx, roundID, models.RoundCompleted)
		}
		if err := tx.Model(&models.Trial{}).
			Where("round_id = ? AND status IN ?", roundID, []models.RoundStatus{models.RoundScheduled, models.RoundActive}).
			Update("status", models.RoundCompleted).Error; err != nil {
			return apperr.Database(err)
		}
		if err := loadRound(tx, roundID, &ended); err != nil {
			return err
		}

		if s.Scoring != nil {
			if _, err := s.Scoring.sweepTx(tx); err != nil {
				return err
			}
		}
		if s.Leaderboard != nil {
			rows, err := s.Leaderboard.Freeze(tx, &ended)
			if err != nil {
				return err
			}
			snapshot = rows
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("round ended", "round_id", ended.ID, "round_number", ended.RoundNumber,
		"actor", actor.UserID, "snapshot_rows", len(snapshot))
	if s.Leaderboard != nil {
		s.Leaderboard.AfterFreeze(ctx, &ended, snapshot)
	}
	s.Audit.Record(ctx, AuditEntry{
		Actor: actor, Action: ActionRoundEnd, ResourceType: "round", ResourceID: ended.ID,
		Changes: map[string]interface{}{"actual_end_time": now, "snapshot_rows": len(snapshot)},
	})
	s.Notify.Publish(Event{Type: EventRoundEnded, RoundID: ended.ID, RoundNumber: ended.RoundNumber})
	s.Notify.Publish(Event{Type: EventLeaderboardChanged, RoundID: ended.ID, RoundNumber: ended.RoundNumber})
	return &ended, nil
}

// Extend moves the end of a scheduled or active round.
func (s *RoundService) Extend(ctx context.Context, actor models.Actor, roundID string, newEnd time.Time) (round *models.Round, err error) {
	ctx, span := startSpan(ctx, "RoundService.Extend", actorAttr(actor), attribute.String("round.id", roundID))
	defer func() { endSpan(span, err) }()

	newEnd = normalizeTime(newEnd)
	var extended models.Round
	var previousEnd time.Time
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Round
		if err := loadRound(tx, roundID, &current); err != nil {
			return err
		}
		if current.Status.Terminal() {
			return apperr.New(apperr.CodeInvalidTransition, "round %d is %s and cannot be extended", current.RoundNumber, current.Status)
		}
		if !newEnd.After(current.StartTime) {
			return apperr.New(apperr.CodeInvalidTimeRange, "end_time must be after start_time")
		}
		previousEnd = current.EndTime

		res := tx.Model(&models.Round{}).
			Where("id = ? AND status = ?", roundID, current.Status).
			Update("end_time", newEnd)
		if res.Error != nil {
			return apperr.Database(res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.CodeInvalidTransition, "round %d changed status concurrently", current.RoundNumber)
		}
		return loadRound(tx, roundID, &extended)
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("round extended", "round_id", extended.ID, "end_time", newEnd, "actor", actor.UserID)
	s.Audit.Record(ctx, AuditEntry{
		Actor: actor, Action: ActionRoundExtend, ResourceType: "round", ResourceID: extended.ID,
		Changes: map[string]interface{}{"end_time": map[string]time.Time{"from": previousEnd, "to": newEnd}},
	})
	s.Notify.Publish(Event{Type: EventRoundExtended, RoundID: extended.ID, RoundNumber: extended.RoundNumber})
	return &extended, nil
}

// Cancel terminates a scheduled or active round without a snapshot.
func (s *RoundService) Cancel(ctx context.Context, actor models.Actor, roundID, reason string) (round *models.Round, err error) {
	ctx, span := startSpan(ctx, "RoundService.Cancel", actorAttr(actor), attribute.String("round.id", roundID))
	defer func() { endSpan(span, err) }()

	now := nowFrom(s.Clock)
	var cancelled models.Round
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Round{}).
			Where("id = ? AND status IN ?", roundID, models.SourcesOf(models.RoundCancelled)).
			Updates(map[string]interface{}{
				"status":          models.RoundCancelled,
				"cancel_reason":   reason,
				"actual_end_time": now,
				"ended_by":        actor.UserID,
			})
		if res.Error != nil {
			return apperr.Database(res.Error)
		}
		if res.RowsAffected == 0 {
			return s.explainFailedTransition(tx, roundID, models.RoundCancelled)
		}
		if err := tx.Model(&models.Trial{}).
			Where("round_id = ?", roundID).
			Update("status", models.RoundCancelled).Error; err != nil {
			return apperr.Database(err)
		}
		return loadRound(tx, roundID, &cancelled)
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("round cancelled", "round_id", cancelled.ID, "reason", reason, "actor", actor.UserID)
	if s.Leaderboard != nil {
		s.Leaderboard.Invalidate(ctx)
	}
	s.Audit.Record(ctx, AuditEntry{
		Actor: actor, Action: ActionRoundCancel, ResourceType: "round", ResourceID: cancelled.ID,
		Changes: map[string]interface{}{"reason": reason},
	})
	s.Notify.Publish(Event{Type: EventRoundCancelled, RoundID: cancelled.ID, RoundNumber: cancelled.RoundNumber})
	s.Notify.Publish(Event{Type: EventLeaderboardChanged, RoundID: cancelled.ID, RoundNumber: cancelled.RoundNumber})
	return &cancelled, nil
}

func (s *RoundService) explainFailedTransition(tx *gorm.DB, roundID string, to models.RoundStatus) error {
	var current models.Round
	if err := loadRound(tx, roundID, &current); err != nil {
		return err
	}
	return apperr.New(apperr.CodeInvalidTransition, "round %d cannot move from %s to %s", current.RoundNumber, current.Status, to)
}

// CurrentRound returns the active round whose window contains now, or nil.
func (s *RoundService) CurrentRound(ctx context.Context) (*models.Round, error) {
	var rounds []models.Round
	if err := s.DB.WithContext(ctx).
		Where("status = ?", models.RoundActive).
		Order("start_time ASC").
		Find(&rounds).Error; err != nil {
		return nil, apperr.Database(err)
	}
	now := nowFrom(s.Clock)
	for i := range rounds {
		if rounds[i].Contains(now) {
			return &rounds[i], nil
		}
	}
	return nil, nil
}

// NextRound returns the soonest round that has not reached its start time.
func (s *RoundService) NextRound(ctx context.Context) (*models.Round, error) {
	var rounds []models.Round
	if err := s.DB.WithContext(ctx).
		Where("status IN ?", []models.RoundStatus{models.RoundScheduled, models.RoundActive}).
		Order("start_time ASC").
		Find(&rounds).Error; err != nil {
		return nil, apperr.Database(err)
	}
	now := nowFrom(s.Clock)
	for i := range rounds {
		if rounds[i].StartTime.After(now) {
			return &rounds[i], nil
		}
	}
	return nil, nil
}

// LatestCompleted returns the completed round with the highest number, or nil.
func (s *RoundService) LatestCompleted(ctx context.Context) (*models.Round, error) {
	return latestCompletedRound(s.DB.WithContext(ctx))
}

func latestCompletedRound(db *gorm.DB) (*models.Round, error) {
	var rounds []models.Round
	if err := db.Where("status = ?", models.RoundCompleted).
		Order("round_number DESC").
		Limit(1).
		Find(&rounds).Error; err != nil {
		return nil, apperr.Database(err)
	}
	if len(rounds) == 0 {
		return nil, nil
	}
	return &rounds[0], nil
}

func (s *RoundService) Get(ctx context.Context, roundID string) (*models.Round, error) {
	var r models.Round
	if err := loadRound(s.DB.WithContext(ctx), roundID, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RoundService) List(ctx context.Context, limit, offset int) ([]models.Round, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var rounds []models.Round
	if err := s.DB.WithContext(ctx).
		Order("round_number DESC").
		Limit(limit).
		Offset(offset).
		Find(&rounds).Error; err != nil {
		return nil, apperr.Database(err)
	}
	return rounds, nil
}

// Overdue lists active rounds whose end time has passed without an admin ending them.
func (s *RoundService) Overdue(ctx context.Context) ([]models.Round, error) {
	var rounds []models.Round
	if err := s.DB.WithContext(ctx).Where("status = ?", models.RoundActive).Find(&rounds).Error; err != nil {
		return nil, apperr.Database(err)
	}
	now := nowFrom(s.Clock)
	overdue := rounds[:0]
	for _, r := range rounds {
		if !now.Before(r.EndTime) {
			overdue = append(overdue, r)
		}
	}
	return overdue, nil
}

func loadRound(db *gorm.DB, roundID string, out *models.Round) error {
	if err := db.Where("id = ?", roundID).First(out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.New(apperr.CodeRoundNotFound, "round %s not found", roundID)
		}
		return apperr.Database(err)
	}
	return nil
}
