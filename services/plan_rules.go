package services

import (
	"sort"
	"unicode/utf8"

	"github.com/drakejin/cday2025-minigame-sub000/apperr"
	"github.com/drakejin/cday2025-minigame-sub000/models"
)

// ValidatePlan checks every set tier of p up to the highest set tier.
// Range and skill errors are reported before allocation errors.
func ValidatePlan(p *models.CharacterPlan) error {
	highest := p.HighestSetLevel()
	for lvl := 1; lvl <= highest; lvl++ {
		tier := p.Tier(lvl)
		if !tier.IsSet() {
			return apperr.New(apperr.CodeInvalidAllocationDelta, "level %d must be set before level %d", lvl, highest)
		}
		for i, v := range tier.Values() {
			if v < models.MinStatValue || v > models.MaxStatValue {
				return apperr.New(apperr.CodeInvalidStatRange, "level %d %s must be between %d and %d, got %d",
					lvl, models.StatNames[i], models.MinStatValue, models.MaxStatValue, v)
			}
		}
		if utf8.RuneCountInString(tier.Skill) > models.MaxSkillRunes {
			return apperr.New(apperr.CodeInvalidSkill, "level %d skill exceeds %d characters", lvl, models.MaxSkillRunes)
		}
	}
	if highest == 0 {
		return nil
	}

	if !isBasePermutation(p.Lv1.StatVector) {
		return apperr.New(apperr.CodeInvalidAllocationDelta, "level 1 stats must be a permutation of %v", models.BaseAllocation)
	}
	for lvl := 2; lvl <= highest; lvl++ {
		delta := p.Tier(lvl).StatVector.Sub(p.Tier(lvl - 1).StatVector)
		if !isGrowthDelta(delta) {
			return apperr.New(apperr.CodeInvalidAllocationDelta,
				"level %d must raise exactly two different stats of level %d by one", lvl, lvl-1)
		}
	}
	return nil
}

func isBasePermutation(v models.StatVector) bool {
	got := v.Values()
	want := models.BaseAllocation
	sort.Ints(got[:])
	sort.Ints(want[:])
	return got == want
}

// isGrowthDelta accepts exactly two +1 and two 0 components.
func isGrowthDelta(d models.StatVector) bool {
	ones, zeros := 0, 0
	for _, v := range d.Values() {
		switch v {
		case 1:
			ones++
		case 0:
			zeros++
		default:
			return false
		}
	}
	return ones == 2 && zeros == 2
}

// LowestChangedLevel returns the first level whose tier differs, or 0 when nothing changed.
func LowestChangedLevel(before, after *models.CharacterPlan) int {
	for lvl := 1; lvl <= models.MaxLevel; lvl++ {
		if before.Tier(lvl) != after.Tier(lvl) {
			return lvl
		}
	}
	return 0
}

// ResolveStats sums the level 1 base and every bonus delta up to level.
func ResolveStats(p *models.CharacterPlan, level int) (models.StatVector, error) {
	if level < 1 || level > models.MaxLevel {
		return models.StatVector{}, apperr.New(apperr.CodeInvalidArgument, "level %d out of range", level)
	}
	if !p.Lv1.Complete() {
		return models.StatVector{}, apperr.New(apperr.CodeLevelStatsNotSet, "level 1 stats are not set")
	}
	resolved := p.Lv1.StatVector
	for lvl := 2; lvl <= level; lvl++ {
		tier := p.Tier(lvl)
		if !tier.Complete() {
			return models.StatVector{}, apperr.New(apperr.CodeLevelStatsNotSet, "level %d stats are not set", lvl)
		}
		resolved = resolved.Add(tier.StatVector.Sub(p.Tier(lvl - 1).StatVector))
	}
	return resolved, nil
}
