package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/drakejin/cday2025-minigame-sub000/apperr"
	"github.com/drakejin/cday2025-minigame-sub000/models"
)

const MaxCharacterNameRunes = 30

type CharacterService struct {
	Deps
	Players   *PlayerService
	Standings StandingsInvalidator
}

func NewCharacterService(d Deps, players *PlayerService, standings StandingsInvalidator) *CharacterService {
	if standings == nil {
		standings = nopInvalidator{}
	}
	return &CharacterService{Deps: d.withDefaults(), Players: players, Standings: standings}
}

// Create makes a new active character for the caller and retires their previous ones.
func (s *CharacterService) Create(ctx context.Context, actor models.Actor, name string) (*models.Character, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < 1 || n > MaxCharacterNameRunes {
		return nil, apperr.New(apperr.CodeInvalidArgument, "name must be 1 to %d characters", MaxCharacterNameRunes)
	}

	var created models.Character
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		player, err := s.Players.ensurePlayer(tx, actor.UserID)
		if err != nil {
			return err
		}
		if player.IsBanned {
			return apperr.New(apperr.CodeForbidden, "banned players cannot create characters")
		}
		if err := tx.Model(&models.Character{}).
			Where("user_id = ? AND is_active = ?", actor.UserID, true).
			Update("is_active", false).Error; err != nil {
			return apperr.Database(err)
		}
		created = models.Character{UserID: actor.UserID, Name: name, IsActive: true}
		if err := tx.Create(&created).Error; err != nil {
			return apperr.Database(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("character created", "character_id", created.ID, "user_id", actor.UserID)
	s.Standings.Invalidate(ctx)
	return &created, nil
}

// Get returns a character visible to actor: their own, or any for admins.
func (s *CharacterService) Get(ctx context.Context, actor models.Actor, characterID string) (*models.Character, error) {
	return loadOwnedCharacter(s.DB.WithContext(ctx), actor, characterID)
}

// GetActive returns the caller's active character.
func (s *CharacterService) GetActive(ctx context.Context, userID string) (*models.Character, error) {
	var characters []models.Character
	if err := s.DB.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at DESC").
		Limit(1).
		Find(&characters).Error; err != nil {
		return nil, apperr.Database(err)
	}
	if len(characters) == 0 {
		return nil, apperr.New(apperr.CodeCharacterNotFound, "no active character")
	}
	return &characters[0], nil
}

// loadOwnedCharacter hides other players' characters behind CharacterNotFound.
func loadOwnedCharacter(db *gorm.DB, actor models.Actor, characterID string) (*models.Character, error) {
	var c models.Character
	if err := db.Where("id = ?", characterID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.CodeCharacterNotFound, "character %s not found", characterID)
		}
		return nil, apperr.Database(err)
	}
	if !actor.IsAdmin() && c.UserID != actor.UserID {
		return nil, apperr.New(apperr.CodeCharacterNotFound, "character %s not found", characterID)
	}
	return &c, nil
}
