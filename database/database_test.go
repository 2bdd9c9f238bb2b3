package database

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/drakejin/cday2025-minigame-sub000/models"
)

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open("sqlite", ":memory:", gormLogger.Silent)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func TestSingleActiveRoundIndex(t *testing.T) {
	db := openMemory(t)
	now := time.Now().UTC()

	first := models.Round{RoundNumber: 1, TrialNo: 1, StartTime: now, EndTime: now.Add(time.Hour), Status: models.RoundActive}
	if err := db.Create(&first).Error; err != nil {
		t.Fatalf("Create first: %v", err)
	}
	second := models.Round{RoundNumber: 2, TrialNo: 2, StartTime: now, EndTime: now.Add(time.Hour), Status: models.RoundActive}
	err := db.Create(&second).Error
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}

	// other statuses are unconstrained
	for i := 3; i < 5; i++ {
		r := models.Round{RoundNumber: i, TrialNo: 3, StartTime: now, EndTime: now.Add(time.Hour), Status: models.RoundCompleted}
		if err := db.Create(&r).Error; err != nil {
			t.Fatalf("Create completed %d: %v", i, err)
		}
	}
}

func TestLivePromptIndexIgnoresDeletedRows(t *testing.T) {
	db := openMemory(t)
	deletedAt := time.Now().UTC()

	old := models.PromptHistory{CharacterID: "c1", RoundID: "r1", RoundNumber: 1, Level: 1, Prompt: "a", IsDeleted: true, DeletedAt: &deletedAt}
	if err := db.Create(&old).Error; err != nil {
		t.Fatalf("Create deleted: %v", err)
	}
	live := models.PromptHistory{CharacterID: "c1", RoundID: "r1", RoundNumber: 1, Level: 1, Prompt: "b"}
	if err := db.Create(&live).Error; err != nil {
		t.Fatalf("Create live: %v", err)
	}
	dup := models.PromptHistory{CharacterID: "c1", RoundID: "r1", RoundNumber: 1, Level: 1, Prompt: "c"}
	if err := db.Create(&dup).Error; !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{gorm.ErrDuplicatedKey, true},
		{fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), true},
		{errors.New(`ERROR: duplicate key value violates unique constraint "x" (SQLSTATE 23505)`), true},
		{errors.New("UNIQUE constraint failed: rounds.status"), true},
		{errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		if got := IsUniqueViolation(tc.err); got != tc.want {
			t.Fatalf("IsUniqueViolation(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
