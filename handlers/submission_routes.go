package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/drakejin/cday2025-minigame-sub000/middleware"
	"github.com/drakejin/cday2025-minigame-sub000/services"
)

// submitRequest leaves the prompt unvalidated so length errors keep their own code.
type submitRequest struct {
	CharacterID string                   `json:"character_id"`
	Prompt      string                   `json:"prompt"`
	Allocation  services.TrialAllocation `json:"allocation"`
}

func SetupSubmissionRoutes(r fiber.Router, submissions *services.SubmissionService, characters *services.CharacterService) {
	r.Post("/prompts", func(c *fiber.Ctx) error {
		var req submitRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		actor := middleware.ActorFrom(c)

		// default to the caller's active character
		if req.CharacterID == "" {
			character, err := characters.GetActive(c.UserContext(), actor.UserID)
			if err != nil {
				return respondError(c, err)
			}
			req.CharacterID = character.ID
		}

		result, err := submissions.Submit(c.UserContext(), actor, services.SubmitInput{
			CharacterID: req.CharacterID,
			Prompt:      req.Prompt,
			Allocation:  req.Allocation,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(result)
	})
}
