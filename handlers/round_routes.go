package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/drakejin/cday2025-minigame-sub000/services"
)

func SetupRoundRoutes(app fiber.Router, rounds *services.RoundService, trials *services.TrialService) {
	app.Get("/rounds", func(c *fiber.Ctx) error {
		list, err := rounds.List(c.UserContext(), c.QueryInt("limit", 0), c.QueryInt("offset", 0))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(list)
	})

	app.Get("/rounds/current", func(c *fiber.Ctx) error {
		round, err := rounds.CurrentRound(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"round": round})
	})

	app.Get("/rounds/next", func(c *fiber.Ctx) error {
		round, err := rounds.NextRound(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"round": round})
	})

	app.Get("/rounds/:id", func(c *fiber.Ctx) error {
		round, err := rounds.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(round)
	})

	app.Get("/rounds/:id/trials", func(c *fiber.Ctx) error {
		list, err := trials.ListForRound(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(list)
	})

	app.Get("/trials/active", func(c *fiber.Ctx) error {
		trial, err := trials.ActiveTrial(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(trial)
	})
}
