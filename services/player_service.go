package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/drakejin/cday2025-minigame-sub000/apperr"
	"github.com/drakejin/cday2025-minigame-sub000/models"
)

type PlayerService struct {
	Deps
	Standings StandingsInvalidator
}

func NewPlayerService(d Deps, standings StandingsInvalidator) *PlayerService {
	if standings == nil {
		standings = nopInvalidator{}
	}
	return &PlayerService{Deps: d.withDefaults(), Standings: standings}
}

// PlayerSummary is the admin search view of a player.
type PlayerSummary struct {
	ID             string `json:"id"`
	ExternalUserID string `json:"external_user_id"`
	Username       string `json:"username"`
	IsBanned       bool   `json:"is_banned"`
}

// Search matches players by username, case-insensitively.
func (s *PlayerService) Search(ctx context.Context, query string, limit int) ([]PlayerSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	db := s.DB.WithContext(ctx).Model(&models.Player{}).Order("username ASC").Limit(limit)
	if q := strings.ToLower(strings.TrimSpace(query)); q != "" {
		db = db.Where("LOWER(username) LIKE ? OR external_user_id = ?", "%"+q+"%", q)
	}

	var players []models.Player
	if err := db.Find(&players).Error; err != nil {
		return nil, apperr.Database(err)
	}
	res := make([]PlayerSummary, len(players))
	for i, p := range players {
		res[i] = PlayerSummary{ID: p.ID, ExternalUserID: p.ExternalUserID, Username: p.Username, IsBanned: p.IsBanned}
	}
	return res, nil
}

// ensurePlayer returns the player row for userID, creating a bare one if the
// profile sync has not delivered it yet.
func (s *PlayerService) ensurePlayer(tx *gorm.DB, userID string) (*models.Player, error) {
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}},
		DoNothing: true,
	}).Create(&models.Player{ExternalUserID: userID}).Error; err != nil {
		return nil, apperr.Database(err)
	}
	var p models.Player
	if err := tx.Where("external_user_id = ?", userID).First(&p).Error; err != nil {
		return nil, apperr.Database(err)
	}
	return &p, nil
}

// Ban marks the player banned and retires their characters, which makes any
// further submission fail with CharacterInactive.
func (s *PlayerService) Ban(ctx context.Context, actor models.Actor, userID, reason string) (*models.Player, error) {
	now := nowFrom(s.Clock)
	var player models.Player
	var retired int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Player{}).
			Where("external_user_id = ?", userID).
			Updates(map[string]interface{}{"is_banned": true, "banned_at": now, "ban_reason": reason})
		if res.Error != nil {
			return apperr.Database(res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.CodePlayerNotFound, "player %s not found", userID)
		}
		chars := tx.Model(&models.Character{}).
			Where("user_id = ? AND is_active = ?", userID, true).
			Update("is_active", false)
		if chars.Error != nil {
			return apperr.Database(chars.Error)
		}
		retired = chars.RowsAffected
		return tx.Where("external_user_id = ?", userID).First(&player).Error
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, apperr.Database(err)
	}

	s.Log.Info("player banned", "user_id", userID, "retired_characters", retired, "actor", actor.UserID)
	s.Standings.Invalidate(ctx)
	s.Audit.Record(ctx, AuditEntry{
		Actor: actor, Action: ActionPlayerBan, ResourceType: "player", ResourceID: userID,
		Changes: map[string]interface{}{"reason": reason, "retired_characters": retired},
	})
	s.Notify.Publish(Event{Type: EventLeaderboardChanged})
	return &player, nil
}

// Unban lifts the ban. Retired characters stay inactive; the player creates a new one.
func (s *PlayerService) Unban(ctx context.Context, actor models.Actor, userID string) (*models.Player, error) {
	res := s.DB.WithContext(ctx).Model(&models.Player{}).
		Where("external_user_id = ? AND is_banned = ?", userID, true).
		Updates(map[string]interface{}{"is_banned": false, "banned_at": nil, "ban_reason": ""})
	if res.Error != nil {
		return nil, apperr.Database(res.Error)
	}
	var player models.Player
	if err := s.DB.WithContext(ctx).Where("external_user_id = ?", userID).First(&player).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.CodePlayerNotFound, "player %s not found", userID)
		}
		return nil, apperr.Database(err)
	}
	if res.RowsAffected > 0 {
		s.Audit.Record(ctx, AuditEntry{Actor: actor, Action: ActionPlayerUnban, ResourceType: "player", ResourceID: userID})
	}
	return &player, nil
}
