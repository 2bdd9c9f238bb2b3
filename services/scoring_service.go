package services

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/drakejin/cday2025-minigame-sub000/apperr"
	"github.com/drakejin/cday2025-minigame-sub000/models"
)

// ScoringService persists Evaluate results and keeps stale rows moving back to fresh.
type ScoringService struct {
	Deps
	Concurrency int
	Standings   StandingsInvalidator
}

func NewScoringService(d Deps, concurrency int, standings StandingsInvalidator) *ScoringService {
	if concurrency < 1 {
		concurrency = 1
	}
	if standings == nil {
		standings = nopInvalidator{}
	}
	return &ScoringService{Deps: d.withDefaults(), Concurrency: concurrency, Standings: standings}
}

// SweepReport summarises one pass over stale and missing results.
type SweepReport struct {
	Stale      int `json:"stale"`
	Recomputed int `json:"recomputed"`
	Filled     int `json:"filled"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Recompute evaluates one (trial, character) pair and upserts its result.
func (s *ScoringService) Recompute(ctx context.Context, trialID, characterID string) (result *models.TrialResult, err error) {
	ctx, span := startSpan(ctx, "ScoringService.Recompute",
		attribute.String("trial.id", trialID), attribute.String("character.id", characterID))
	defer func() { endSpan(span, err) }()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.recomputeTx(tx, trialID, characterID)
		return txErr
	})
	return result, err
}

// recomputeTx holds a share lock on the plan so a concurrent plan edit cannot
// slip between reading the plan and clearing the stale flag.
func (s *ScoringService) recomputeTx(tx *gorm.DB, trialID, characterID string) (*models.TrialResult, error) {
	var plan models.CharacterPlan
	if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
		Where("character_id = ?", characterID).
		First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.CodeLevelStatsNotSet, "character %s has no plan", characterID)
		}
		return nil, apperr.Database(err)
	}

	var trial models.Trial
	if err := tx.Where("id = ?", trialID).First(&trial).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.CodeTrialNotFound, "trial %s not found", trialID)
		}
		return nil, apperr.Database(err)
	}

	stats, err := ResolveStats(&plan, trial.Level)
	if err != nil {
		return nil, err
	}
	b := Evaluate(trial, stats)

	row := models.TrialResult{
		TrialID:           trial.ID,
		CharacterID:       characterID,
		ScoreStrength:     b.ScoreStrength,
		ScoreDexterity:    b.ScoreDexterity,
		ScoreConstitution: b.ScoreConstitution,
		ScoreIntelligence: b.ScoreIntelligence,
		TotalScore:        b.TotalScore,
		WeightedTotal:     b.WeightedTotal,
		NeedsRevalidation: false,
		PlanRevision:      plan.Revision,
		EvaluatedAt:       nowFrom(s.Clock),
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "trial_id"}, {Name: "character_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"score_strength", "score_dexterity", "score_constitution", "score_intelligence",
			"total_score", "weighted_total", "needs_revalidation", "plan_revision", "evaluated_at", "updated_at",
		}),
	}).Create(&row).Error; err != nil {
		return nil, apperr.Database(err)
	}

	// the generated id is discarded when the insert turned into an update
	var stored models.TrialResult
	if err := tx.Where("trial_id = ? AND character_id = ?", trial.ID, characterID).First(&stored).Error; err != nil {
		return nil, apperr.Database(err)
	}
	return &stored, nil
}

// scorableTrialStatuses are the trial states whose round has started. Trials
// of scheduled rounds stay unscored until their round starts.
var scorableTrialStatuses = []models.RoundStatus{models.RoundActive, models.RoundCompleted}

// EvaluateCharacter scores every started trial the character's plan covers that
// has no fresh result yet.
func (s *ScoringService) EvaluateCharacter(ctx context.Context, characterID string) (results []models.TrialResult, err error) {
	ctx, span := startSpan(ctx, "ScoringService.EvaluateCharacter", attribute.String("character.id", characterID))
	defer func() { endSpan(span, err) }()

	var plans []models.CharacterPlan
	if err := s.DB.WithContext(ctx).Where("character_id = ?", characterID).Limit(1).Find(&plans).Error; err != nil {
		return nil, apperr.Database(err)
	}
	if len(plans) == 0 {
		return nil, nil
	}
	highest := plans[0].HighestSetLevel()
	if highest == 0 {
		return nil, nil
	}

	var trials []models.Trial
	if err := s.DB.WithContext(ctx).
		Where("status IN ? AND level <= ?", scorableTrialStatuses, highest).
		Where("NOT EXISTS (SELECT 1 FROM trial_results tr WHERE tr.trial_id = trials.id AND tr.character_id = ? AND tr.needs_revalidation = ?)", characterID, false).
		Order("level ASC").
		Find(&trials).Error; err != nil {
		return nil, apperr.Database(err)
	}

	for _, t := range trials {
		r, err := s.Recompute(ctx, t.ID, characterID)
		if err != nil {
			if apperr.Is(err, apperr.CodeLevelStatsNotSet) {
				continue
			}
			return results, err
		}
		results = append(results, *r)
	}
	if len(results) > 0 {
		s.Standings.Invalidate(ctx)
	}
	return results, nil
}

// SweepStale recomputes every stale result, then fills in results missing for
// started trials the owner's plan covers. Pairs are independent, so they run
// concurrently up to Concurrency at a time. Unresolvable rows stay stale.
func (s *ScoringService) SweepStale(ctx context.Context) (report SweepReport, err error) {
	ctx, span := startSpan(ctx, "ScoringService.SweepStale")
	defer func() { endSpan(span, err) }()

	var stale []resultKey
	if err := s.DB.WithContext(ctx).Model(&models.TrialResult{}).
		Select("trial_id, character_id").
		Where("needs_revalidation = ?", true).
		Scan(&stale).Error; err != nil {
		return report, apperr.Database(err)
	}
	report.Stale = len(stale)

	missing, err := s.missingResults(s.DB.WithContext(ctx))
	if err != nil {
		return report, err
	}
	if len(stale) == 0 && len(missing) == 0 {
		return report, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Concurrency)
	run := func(key resultKey, done *int) {
		g.Go(func() error {
			_, rerr := s.Recompute(gctx, key.TrialID, key.CharacterID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case rerr == nil:
				*done++
			case apperr.Is(rerr, apperr.CodeLevelStatsNotSet):
				report.Skipped++
			default:
				report.Failed++
				s.Log.Warn("result recompute failed",
					"trial_id", key.TrialID, "character_id", key.CharacterID, "error", rerr)
			}
			return nil
		})
	}
	for _, key := range stale {
		run(key, &report.Recomputed)
	}
	for _, key := range missing {
		run(key, &report.Filled)
	}
	_ = g.Wait()

	if report.Recomputed+report.Filled > 0 {
		s.Standings.Invalidate(ctx)
	}
	s.Log.Debug("stale sweep finished", "stale", report.Stale, "recomputed", report.Recomputed,
		"filled", report.Filled, "skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

type resultKey struct {
	TrialID     string
	CharacterID string
}

// missingResults lists (trial, character) pairs of started trials whose tier is
// set in the character's plan but that have no result row at all.
func (s *ScoringService) missingResults(db *gorm.DB) ([]resultKey, error) {
	var keys []resultKey
	if err := db.Raw(`SELECT t.id AS trial_id, cp.character_id AS character_id
		FROM character_plans cp
		JOIN trials t ON t.status IN ?
		WHERE ((t.level = 1 AND cp.lv1_str <> 0)
			OR (t.level = 2 AND cp.lv2_str <> 0)
			OR (t.level = 3 AND cp.lv3_str <> 0))
		AND NOT EXISTS (SELECT 1 FROM trial_results tr WHERE tr.trial_id = t.id AND tr.character_id = cp.character_id)
		ORDER BY t.level ASC`, scorableTrialStatuses).
		Scan(&keys).Error; err != nil {
		return nil, apperr.Database(err)
	}
	return keys, nil
}

// sweepTx recomputes stale rows inside an existing transaction, one by one.
func (s *ScoringService) sweepTx(tx *gorm.DB) (int, error) {
	var stale []models.TrialResult
	if err := tx.Where("needs_revalidation = ?", true).Find(&stale).Error; err != nil {
		return 0, apperr.Database(err)
	}
	n := 0
	for _, row := range stale {
		if _, err := s.recomputeTx(tx, row.TrialID, row.CharacterID); err != nil {
			if apperr.Is(err, apperr.CodeLevelStatsNotSet) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

// Revalidate is the admin-triggered sweep. It behaves like the scheduled one and is audited.
func (s *ScoringService) Revalidate(ctx context.Context, actor models.Actor) (SweepReport, error) {
	report, err := s.SweepStale(ctx)
	if err != nil {
		return report, err
	}
	s.Audit.Record(ctx, AuditEntry{
		Actor: actor, Action: ActionScoresRecheck, ResourceType: "trial_result",
		Changes: map[string]interface{}{
			"stale": report.Stale, "recomputed": report.Recomputed, "filled": report.Filled, "skipped": report.Skipped, "failed": report.Failed,
		},
	})
	return report, nil
}
