package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/drakejin/cday2025-minigame-sub000/middleware"
	"github.com/drakejin/cday2025-minigame-sub000/models"
	"github.com/drakejin/cday2025-minigame-sub000/services"
)

type createCharacterRequest struct {
	Name string `json:"name" validate:"required"`
}

type planRequest struct {
	Lv1 *models.PlanTier `json:"lv1"`
	Lv2 *models.PlanTier `json:"lv2"`
	Lv3 *models.PlanTier `json:"lv3"`
}

func SetupCharacterRoutes(r fiber.Router, characters *services.CharacterService, plans *services.PlanService, prompts *services.PromptService) {
	r.Post("/characters", func(c *fiber.Ctx) error {
		var req createCharacterRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		character, err := characters.Create(c.UserContext(), middleware.ActorFrom(c), req.Name)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(character)
	})

	r.Get("/characters/me", func(c *fiber.Ctx) error {
		character, err := characters.GetActive(c.UserContext(), middleware.ActorFrom(c).UserID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(character)
	})

	r.Get("/characters/:id", func(c *fiber.Ctx) error {
		character, err := characters.Get(c.UserContext(), middleware.ActorFrom(c), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(character)
	})

	r.Get("/characters/:id/plan", func(c *fiber.Ctx) error {
		plan, err := plans.Get(c.UserContext(), middleware.ActorFrom(c), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(plan)
	})

	r.Put("/characters/:id/plan", func(c *fiber.Ctx) error {
		var req planRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		change, err := plans.Upsert(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), services.PlanInput{
			Lv1: req.Lv1, Lv2: req.Lv2, Lv3: req.Lv3,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(change)
	})

	r.Get("/characters/:id/prompts", func(c *fiber.Ctx) error {
		history, err := prompts.History(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), c.QueryBool("include_deleted", false))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(history)
	})
}
