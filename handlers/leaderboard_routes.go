package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/drakejin/cday2025-minigame-sub000/services"
)

func SetupLeaderboardRoutes(app fiber.Router, leaderboard *services.LeaderboardService) {
	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		page, err := leaderboard.Rank(c.UserContext(), c.QueryInt("limit", 0), c.QueryInt("offset", 0))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(page)
	})
}
