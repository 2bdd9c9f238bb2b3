package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/drakejin/cday2025-minigame-sub000/database"
	"github.com/drakejin/cday2025-minigame-sub000/logger"
)

// Epoch is the fixed instant fake clocks start at.
var Epoch = time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB returns a private, migrated in-memory database for one test.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := database.Open("sqlite", ":memory:", gormLogger.Silent)
	if err != nil {
		tb.Fatalf("open test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		tb.Fatalf("migrate test db: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func Clock(tb testing.TB) *clockwork.FakeClock {
	tb.Helper()
	return clockwork.NewFakeClockAt(Epoch)
}
