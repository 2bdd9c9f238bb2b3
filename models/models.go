package models

// All lists every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&Round{},
		&Trial{},
		&Player{},
		&Character{},
		&CharacterPlan{},
		&TrialResult{},
		&PromptHistory{},
		&LeaderboardSnapshot{},
		&AuditLog{},
	}
}
