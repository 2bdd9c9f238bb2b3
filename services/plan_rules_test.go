package services

import (
	"testing"

	"github.com/drakejin/cday2025-minigame-sub000/apperr"
	"github.com/drakejin/cday2025-minigame-sub000/models"
	"github.com/drakejin/cday2025-minigame-sub000/testutil"
)

func tier(v models.StatVector) models.PlanTier { return models.PlanTier{StatVector: v, Skill: "skill"} }

func TestValidatePlan(t *testing.T) {
	cases := []struct {
		name string
		plan models.CharacterPlan
		want apperr.Code
	}{
		{"empty plan", models.CharacterPlan{}, ""},
		{"lv1 only", models.CharacterPlan{Lv1: tier(testutil.Lv1)}, ""},
		{"lv1 permuted", models.CharacterPlan{Lv1: tier(models.StatVector{Str: 10, Dex: 12, Con: 14, Int: 15})}, ""},
		{"full chain", models.CharacterPlan{Lv1: tier(testutil.Lv1), Lv2: tier(testutil.Lv2), Lv3: tier(testutil.Lv3)}, ""},
		{"lv1 not base multiset", models.CharacterPlan{Lv1: tier(models.StatVector{Str: 15, Dex: 15, Con: 12, Int: 10})}, apperr.CodeInvalidAllocationDelta},
		{"stat above range", models.CharacterPlan{Lv1: tier(models.StatVector{Str: 21, Dex: 14, Con: 12, Int: 10})}, apperr.CodeInvalidStatRange},
		{"negative stat", models.CharacterPlan{Lv1: tier(models.StatVector{Str: -1, Dex: 14, Con: 12, Int: 10})}, apperr.CodeInvalidStatRange},
		{"skill too long", models.CharacterPlan{Lv1: models.PlanTier{StatVector: testutil.Lv1, Skill: string(make([]rune, 51))}}, apperr.CodeInvalidSkill},
		{"lv2 raises one stat by two", models.CharacterPlan{Lv1: tier(testutil.Lv1), Lv2: tier(models.StatVector{Str: 17, Dex: 14, Con: 12, Int: 10})}, apperr.CodeInvalidAllocationDelta},
		{"lv2 raises three stats", models.CharacterPlan{Lv1: tier(testutil.Lv1), Lv2: tier(models.StatVector{Str: 16, Dex: 15, Con: 13, Int: 10})}, apperr.CodeInvalidAllocationDelta},
		{"lv2 unchanged", models.CharacterPlan{Lv1: tier(testutil.Lv1), Lv2: tier(testutil.Lv1)}, apperr.CodeInvalidAllocationDelta},
		{"lv3 without lv2", models.CharacterPlan{Lv1: tier(testutil.Lv1), Lv3: tier(testutil.Lv3)}, apperr.CodeInvalidAllocationDelta},
		{"range reported before delta", models.CharacterPlan{Lv1: tier(testutil.Lv1), Lv2: tier(models.StatVector{Str: 25, Dex: 14, Con: 12, Int: 10})}, apperr.CodeInvalidStatRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePlan(&tc.plan)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("expected valid plan, got %v", err)
				}
				return
			}
			if got := apperr.CodeOf(err); got != tc.want {
				t.Fatalf("code = %s, want %s (err=%v)", got, tc.want, err)
			}
		})
	}
}

func TestLowestChangedLevel(t *testing.T) {
	base := models.CharacterPlan{Lv1: tier(testutil.Lv1), Lv2: tier(testutil.Lv2), Lv3: tier(testutil.Lv3)}

	same := base
	if got := LowestChangedLevel(&base, &same); got != 0 {
		t.Fatalf("unchanged plan: got %d", got)
	}

	lv2 := base
	lv2.Lv2 = tier(models.StatVector{Str: 15, Dex: 14, Con: 13, Int: 11})
	lv2.Lv3 = tier(models.StatVector{Str: 16, Dex: 15, Con: 13, Int: 11})
	if got := LowestChangedLevel(&base, &lv2); got != 2 {
		t.Fatalf("lv2 change: got %d", got)
	}

	skill := base
	skill.Lv3.Skill = "new skill"
	if got := LowestChangedLevel(&base, &skill); got != 3 {
		t.Fatalf("skill change: got %d", got)
	}
}

func TestResolveStats(t *testing.T) {
	p := models.CharacterPlan{Lv1: tier(testutil.Lv1), Lv2: tier(testutil.Lv2), Lv3: tier(testutil.Lv3)}
	for level, want := range map[int]models.StatVector{1: testutil.Lv1, 2: testutil.Lv2, 3: testutil.Lv3} {
		got, err := ResolveStats(&p, level)
		if err != nil {
			t.Fatalf("level %d: %v", level, err)
		}
		if got != want {
			t.Fatalf("level %d: got %+v want %+v", level, got, want)
		}
	}

	partial := models.CharacterPlan{Lv1: tier(testutil.Lv1)}
	if _, err := ResolveStats(&partial, 2); !apperr.Is(err, apperr.CodeLevelStatsNotSet) {
		t.Fatalf("expected LevelStatsNotSet, got %v", err)
	}
	if _, err := ResolveStats(&models.CharacterPlan{}, 1); !apperr.Is(err, apperr.CodeLevelStatsNotSet) {
		t.Fatalf("expected LevelStatsNotSet for empty plan, got %v", err)
	}
}
