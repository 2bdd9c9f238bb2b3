package services

import "github.com/drakejin/cday2025-minigame-sub000/models"

// ScoreBreakdown is the outcome of evaluating one character in one trial.
type ScoreBreakdown struct {
	ScoreStrength     int `json:"score_strength"`
	ScoreDexterity    int `json:"score_dexterity"`
	ScoreConstitution int `json:"score_constitution"`
	ScoreIntelligence int `json:"score_intelligence"`
	TotalScore        int `json:"total_score"`
	WeightedTotal     int `json:"weighted_total"`
}

// Evaluate scores resolved stats against a trial. It is pure: the same
// trial weight and stats always give the same breakdown.
func Evaluate(trial models.Trial, stats models.StatVector) ScoreBreakdown {
	b := ScoreBreakdown{
		ScoreStrength:     stats.Str,
		ScoreDexterity:    stats.Dex,
		ScoreConstitution: stats.Con,
		ScoreIntelligence: stats.Int,
	}
	b.TotalScore = b.ScoreStrength + b.ScoreDexterity + b.ScoreConstitution + b.ScoreIntelligence
	b.WeightedTotal = b.TotalScore * trial.WeightMultiplier
	return b
}
