package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/drakejin/cday2025-minigame-sub000/logger"
	"github.com/drakejin/cday2025-minigame-sub000/middleware"
	"github.com/drakejin/cday2025-minigame-sub000/services"
)

// Services is everything the HTTP layer calls into.
type Services struct {
	Rounds      *services.RoundService
	Trials      *services.TrialService
	Characters  *services.CharacterService
	Plans       *services.PlanService
	Submissions *services.SubmissionService
	Prompts     *services.PromptService
	Players     *services.PlayerService
	Scoring     *services.ScoringService
	Leaderboard *services.LeaderboardService
	Events      *services.EventHub
}

// Setup registers every route. Gateway auth is applied by the caller.
func Setup(app *fiber.App, svc *Services, log *logger.Logger) {
	if log != nil {
		errorLog = log
	}
	app.Use(middleware.UserContextMiddleware(log))

	// 🔓 Public reads, no user context needed
	SetupRoundRoutes(app, svc.Rounds, svc.Trials)
	SetupLeaderboardRoutes(app, svc.Leaderboard)
	SetupEventRoutes(app, svc.Events)

	// 🔐 Player routes
	player := app.Group("/", middleware.RequireUser())
	SetupCharacterRoutes(player, svc.Characters, svc.Plans, svc.Prompts)
	SetupSubmissionRoutes(player, svc.Submissions, svc.Characters)

	// 🔐 Admin routes
	admin := app.Group("/admin", middleware.RequireAdmin())
	SetupAdminRoutes(admin, svc)
}
