package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	gormLogger "gorm.io/gorm/logger"

	"github.com/drakejin/cday2025-minigame-sub000/cache"
	"github.com/drakejin/cday2025-minigame-sub000/config"
	"github.com/drakejin/cday2025-minigame-sub000/database"
	"github.com/drakejin/cday2025-minigame-sub000/handlers"
	"github.com/drakejin/cday2025-minigame-sub000/logger"
	"github.com/drakejin/cday2025-minigame-sub000/middleware"
	"github.com/drakejin/cday2025-minigame-sub000/services"
	"github.com/drakejin/cday2025-minigame-sub000/telemetry"
	"github.com/drakejin/cday2025-minigame-sub000/utils"
	"github.com/drakejin/cday2025-minigame-sub000/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, "cday2025-minigame")
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	}

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL, gormLogger.Warn)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("failed to migrate database", "error", err)
	}

	var standingsCache services.StandingsCache
	healthExtras := map[string]handlers.Pinger{}
	redisCache, err := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.LeaderboardCacheTTL, log)
	if err != nil {
		log.Warn("leaderboard cache unavailable, computing standings from the database", "error", err)
	} else if redisCache != nil {
		standingsCache = redisCache
		healthExtras["redis"] = redisCache
		defer redisCache.Close()
	}

	var archive services.SnapshotArchiver
	if cfg.ArchiveEnabled() {
		r2, err := utils.NewR2Archive(ctx, utils.R2Options{
			AccountID:       cfg.CloudflareAccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessKeySecret,
			Bucket:          cfg.R2BucketName,
			CDNBaseURL:      cfg.CDNBaseURL,
			EventName:       cfg.EventName,
		})
		if err != nil {
			log.Warn("leaderboard archive disabled", "error", err)
		} else {
			archive = r2
		}
	}

	clock := clockwork.NewRealClock()
	hub := services.NewEventHub(log, clock)
	audit := services.NewAuditService(db, log)
	deps := services.Deps{DB: db, Log: log, Clock: clock, Audit: audit, Notify: hub}

	leaderboard := services.NewLeaderboardService(deps, standingsCache, archive)
	scoring := services.NewScoringService(deps, cfg.StaleSweepConcurrency, leaderboard)
	rounds := services.NewRoundService(deps, scoring, leaderboard)
	trials := services.NewTrialService(deps, rounds, leaderboard)
	players := services.NewPlayerService(deps, leaderboard)
	characters := services.NewCharacterService(deps, players, leaderboard)
	plans := services.NewPlanService(deps, scoring, leaderboard)
	submissions := services.NewSubmissionService(deps, rounds, trials, plans, scoring, leaderboard)
	prompts := services.NewPromptService(deps, leaderboard)

	scheduler, err := services.NewScheduler(clock, log, scoring, rounds)
	if err != nil {
		log.Fatal("failed to create scheduler", "error", err)
	}
	if err := scheduler.Start(ctx, cfg.StaleSweepInterval); err != nil {
		log.Fatal("failed to start scheduler", "error", err)
	}

	if cfg.ProfileSyncURL != "" {
		workers.NewProfileSyncWorker(db, log, cfg.ProfileSyncURL, cfg.ProfileSyncPath,
			cfg.ServiceToken, cfg.ProfileSyncInterval, leaderboard).Start(ctx)
	} else {
		log.Warn("PROFILE_SYNC_URL not set, player names come only from character creation")
	}

	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE streams stay open
	})

	handlers.SetupHealthRoutes(app, db, healthExtras)

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles, Cache-Control",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// 🔐❗ GLOBAL: only gateway requests past this point
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, log))

	handlers.Setup(app, &handlers.Services{
		Rounds:      rounds,
		Trials:      trials,
		Characters:  characters,
		Plans:       plans,
		Submissions: submissions,
		Prompts:     prompts,
		Players:     players,
		Scoring:     scoring,
		Leaderboard: leaderboard,
		Events:      hub,
	}, log)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("server error", "error", err)
		}
	}()
	log.Info("server running", "port", cfg.Port, "driver", cfg.DatabaseDriver,
		"cache", standingsCache != nil, "archive", archive != nil)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn("server shutdown", "error", err)
	}
	if err := scheduler.Shutdown(); err != nil {
		log.Warn("scheduler shutdown", "error", err)
	}
	audit.Wait()
	if shutdownTracing != nil {
		_ = shutdownTracing(shutdownCtx)
	}
}
