package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/drakejin/cday2025-minigame-sub000/apperr"
	"github.com/drakejin/cday2025-minigame-sub000/database"
	"github.com/drakejin/cday2025-minigame-sub000/models"
)

const (
	MinPromptRunes = 1
	MaxPromptRunes = 30
)

// TrialAllocation is the growth data a submission carries for the round's level.
// Level 1 needs the full stat vector; levels 2 and 3 pick two stats to raise by one.
type TrialAllocation struct {
	Stats *models.StatVector `json:"stats,omitempty"`
	Bonus []string           `json:"bonus,omitempty"`
	Skill string             `json:"skill"`
}

type SubmitInput struct {
	CharacterID string
	Prompt      string
	Allocation  TrialAllocation
}

type SubmissionResult struct {
	History models.PromptHistory `json:"history"`
	Plan    models.CharacterPlan `json:"plan"`
	Round   models.Round         `json:"round"`
	Trial   *models.Trial        `json:"trial,omitempty"`
	Results []models.TrialResult `json:"results"`
}

type SubmissionService struct {
	Deps
	Rounds    *RoundService
	Trials    *TrialService
	Plans     *PlanService
	Scoring   *ScoringService
	Standings StandingsInvalidator
}

func NewSubmissionService(d Deps, rounds *RoundService, trials *TrialService, plans *PlanService, scoring *ScoringService, standings StandingsInvalidator) *SubmissionService {
	if standings == nil {
		standings = nopInvalidator{}
	}
	return &SubmissionService{Deps: d.withDefaults(), Rounds: rounds, Trials: trials, Plans: plans, Scoring: scoring, Standings: standings}
}

// NormalizePrompt trims and NFC-composes a prompt so length is counted in user-visible characters.
func NormalizePrompt(prompt string) string {
	return norm.NFC.String(strings.TrimSpace(prompt))
}

// Submit accepts one prompt per character per round. Preconditions are checked
// in a fixed order so callers always see the first failing rule.
func (s *SubmissionService) Submit(ctx context.Context, actor models.Actor, in SubmitInput) (result *SubmissionResult, err error) {
	ctx, span := startSpan(ctx, "SubmissionService.Submit", actorAttr(actor), attribute.String("character.id", in.CharacterID))
	defer func() { endSpan(span, err) }()

	db := s.DB.WithContext(ctx)

	character, err := loadOwnedCharacter(db, actor, in.CharacterID)
	if err != nil {
		return nil, err
	}
	if !character.IsActive {
		return nil, apperr.New(apperr.CodeCharacterInactive, "character %s is not active", character.ID)
	}

	round, err := s.Rounds.CurrentRound(ctx)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, apperr.New(apperr.CodeRoundNotActive, "no round is currently accepting submissions")
	}

	var submitted int64
	if err := db.Model(&models.PromptHistory{}).
		Where("character_id = ? AND round_number = ? AND deleted_at IS NULL", character.ID, round.RoundNumber).
		Count(&submitted).Error; err != nil {
		return nil, apperr.Database(err)
	}
	if submitted > 0 {
		return nil, apperr.New(apperr.CodeAlreadySubmitted, "character already submitted in round %d", round.RoundNumber)
	}

	prompt := NormalizePrompt(in.Prompt)
	if n := utf8.RuneCountInString(prompt); n < MinPromptRunes || n > MaxPromptRunes {
		return nil, apperr.New(apperr.CodeInvalidPromptLength, "prompt must be %d to %d characters, got %d", MinPromptRunes, MaxPromptRunes, n)
	}

	trial, err := s.Trials.trialForRound(ctx, round)
	if err != nil {
		return nil, err
	}
	level := round.TrialNo
	if trial != nil {
		level = trial.Level
	}

	// dry run against the stored plan so every rule fails before any write
	stored, err := s.Plans.Get(ctx, actor, character.ID)
	if err != nil {
		return nil, err
	}
	candidate := *stored
	gains, err := applyAllocation(&candidate, level, in.Allocation)
	if err != nil {
		return nil, err
	}
	if err := ValidatePlan(&candidate); err != nil {
		return nil, err
	}

	var history models.PromptHistory
	var change *PlanChange
	err = db.Transaction(func(tx *gorm.DB) error {
		var stillActive int64
		if err := tx.Model(&models.Round{}).
			Where("id = ? AND status = ?", round.ID, models.RoundActive).
			Count(&stillActive).Error; err != nil {
			return apperr.Database(err)
		}
		if stillActive == 0 {
			return apperr.New(apperr.CodeRoundNotActive, "round %d ended before the submission was stored", round.RoundNumber)
		}

		history = models.PromptHistory{
			CharacterID: character.ID,
			RoundID:     round.ID,
			RoundNumber: round.RoundNumber,
			Level:       level,
			Prompt:      prompt,
			GainStr:     gains.Str,
			GainDex:     gains.Dex,
			GainCon:     gains.Con,
			GainInt:     gains.Int,
		}
		if err := tx.Create(&history).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return apperr.New(apperr.CodeAlreadySubmitted, "character already submitted in round %d", round.RoundNumber)
			}
			return apperr.Database(err)
		}

		var lockedGains models.StatVector
		var txErr error
		change, txErr = s.Plans.upsertTx(tx, character.ID, func(p *models.CharacterPlan) error {
			var err error
			lockedGains, err = applyAllocation(p, level, in.Allocation)
			return err
		})
		if txErr != nil {
			return txErr
		}
		if lockedGains != gains {
			history.GainStr, history.GainDex, history.GainCon, history.GainInt = lockedGains.Str, lockedGains.Dex, lockedGains.Con, lockedGains.Int
			if err := tx.Model(&history).Updates(map[string]interface{}{
				"gain_str": lockedGains.Str, "gain_dex": lockedGains.Dex, "gain_con": lockedGains.Con, "gain_int": lockedGains.Int,
			}).Error; err != nil {
				return apperr.Database(err)
			}
		}

		if err := tx.Model(&models.Character{}).
			Where("id = ?", character.ID).
			Update("current_prompt", prompt).Error; err != nil {
			return apperr.Database(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result = &SubmissionResult{History: history, Plan: change.Plan, Round: *round, Trial: trial}
	if s.Scoring != nil {
		results, err := s.Scoring.EvaluateCharacter(ctx, character.ID)
		if err != nil {
			s.Log.Warn("scoring after submission failed", "character_id", character.ID, "error", err)
		}
		result.Results = results
	}
	s.Standings.Invalidate(ctx)
	s.Notify.Publish(Event{Type: EventLeaderboardChanged, RoundID: round.ID, RoundNumber: round.RoundNumber})
	s.Log.Info("prompt submitted", "character_id", character.ID, "round_number", round.RoundNumber, "level", level)
	return result, nil
}

// applyAllocation writes the tier for level into p and returns the per-stat gains.
func applyAllocation(p *models.CharacterPlan, level int, alloc TrialAllocation) (models.StatVector, error) {
	tier := p.Tier(level)
	if alloc.Skill != "" {
		tier.Skill = strings.TrimSpace(alloc.Skill)
	}

	if level == 1 {
		if alloc.Stats == nil {
			return models.StatVector{}, apperr.New(apperr.CodeTrialDataMissing, "level 1 submissions need a stat vector")
		}
		if !alloc.Stats.Complete() {
			return models.StatVector{}, apperr.New(apperr.CodeLevelStatsNotSet, "all four level 1 stats must be set")
		}
		tier.StatVector = *alloc.Stats
		p.SetTier(1, tier)
		return *alloc.Stats, nil
	}

	if len(alloc.Bonus) < 2 {
		return models.StatVector{}, apperr.New(apperr.CodeTrialDataMissing, "level %d submissions need two bonus stats", level)
	}
	prev := p.Tier(level - 1).StatVector
	if !prev.Complete() {
		return models.StatVector{}, apperr.New(apperr.CodeLevelStatsNotSet, "level %d stats must be set before level %d", level-1, level)
	}
	picks := make([]string, len(alloc.Bonus))
	for i, stat := range alloc.Bonus {
		picks[i] = strings.ToLower(strings.TrimSpace(stat))
	}
	if len(picks) != 2 || picks[0] == picks[1] {
		return models.StatVector{}, apperr.New(apperr.CodeInvalidAllocationDelta, "pick exactly two different stats to raise")
	}
	next := prev
	for _, stat := range picks {
		var err error
		if next, err = next.Bump(stat); err != nil {
			return models.StatVector{}, apperr.Wrap(apperr.CodeInvalidAllocationDelta, err, "invalid bonus stat")
		}
	}
	tier.StatVector = next
	p.SetTier(level, tier)
	return next.Sub(prev), nil
}
