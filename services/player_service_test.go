package services

import (
	"context"
	"testing"

	"github.com/drakejin/cday2025-minigame-sub000/apperr"
	"github.com/drakejin/cday2025-minigame-sub000/models"
)

func TestBanRetiresCharacters(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.activeRound(t, 1, 1)
	c := e.character(t, "u1", "A")

	banned, err := e.players.Ban(ctx, admin, "u1", "spam")
	if err != nil {
		t.Fatalf("ban: %v", err)
	}
	if !banned.IsBanned || banned.BanReason != "spam" || banned.BannedAt == nil {
		t.Fatalf("unexpected player %+v", banned)
	}

	_, err = e.submissions.Submit(ctx, player("u1"), SubmitInput{CharacterID: c.ID, Prompt: "hi", Allocation: lv1Alloc()})
	if !apperr.Is(err, apperr.CodeCharacterInactive) {
		t.Fatalf("expected CharacterInactive after ban, got %v", err)
	}

	page, err := e.leaderboard.Rank(ctx, 10, 0)
	if err != nil || page.Total != 0 {
		t.Fatalf("banned player's character still ranked: %+v %v", page, err)
	}

	if _, err := e.players.Ban(ctx, admin, "ghost", ""); !apperr.Is(err, apperr.CodePlayerNotFound) {
		t.Fatalf("expected PlayerNotFound, got %v", err)
	}
}

func TestUnbanKeepsCharactersRetired(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c := e.character(t, "u1", "A")

	if _, err := e.players.Ban(ctx, admin, "u1", "spam"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	p, err := e.players.Unban(ctx, admin, "u1")
	if err != nil {
		t.Fatalf("unban: %v", err)
	}
	if p.IsBanned || p.BannedAt != nil {
		t.Fatalf("ban not lifted: %+v", p)
	}

	var stored models.Character
	e.db.First(&stored, "id = ?", c.ID)
	if stored.IsActive {
		t.Fatalf("unban should not reactivate characters")
	}
	if _, err := e.characters.Create(ctx, player("u1"), "B"); err != nil {
		t.Fatalf("create after unban: %v", err)
	}
	if _, err := e.players.Unban(ctx, admin, "ghost"); !apperr.Is(err, apperr.CodePlayerNotFound) {
		t.Fatalf("expected PlayerNotFound, got %v", err)
	}
}

func TestSearchPlayers(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.character(t, "u1", "A")
	e.character(t, "u2", "B")

	all, err := e.players.Search(ctx, "", 0)
	if err != nil || len(all) != 2 {
		t.Fatalf("search all: %+v %v", all, err)
	}
	one, err := e.players.Search(ctx, "U2-NA", 10)
	if err != nil || len(one) != 1 || one[0].ExternalUserID != "u2" {
		t.Fatalf("search by name: %+v %v", one, err)
	}
	byID, err := e.players.Search(ctx, "u1", 10)
	if err != nil || len(byID) != 1 {
		t.Fatalf("search by id: %+v %v", byID, err)
	}
}
