package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/drakejin/cday2025-minigame-sub000/apperr"
	"github.com/drakejin/cday2025-minigame-sub000/middleware"
	"github.com/drakejin/cday2025-minigame-sub000/services"
)

type createRoundRequest struct {
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`
	Notes     string    `json:"notes" validate:"max=1000"`
	TrialNo   *int      `json:"trial_no" validate:"omitempty,min=1,max=3"`
}

type extendRoundRequest struct {
	EndTime time.Time `json:"end_time" validate:"required"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type trialRequest struct {
	Level            int  `json:"level" validate:"required,min=1,max=3"`
	WeightMultiplier *int `json:"weight_multiplier" validate:"omitempty,min=1,max=4"`
}

func SetupAdminRoutes(admin fiber.Router, svc *Services) {
	admin.Post("/rounds", func(c *fiber.Ctx) error {
		var req createRoundRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		round, err := svc.Rounds.Create(c.UserContext(), middleware.ActorFrom(c), services.CreateRoundInput{
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Notes:     req.Notes,
			TrialNo:   req.TrialNo,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(round)
	})

	admin.Post("/rounds/:id/start", func(c *fiber.Ctx) error {
		round, err := svc.Rounds.Start(c.UserContext(), middleware.ActorFrom(c), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(round)
	})

	admin.Post("/rounds/:id/end", func(c *fiber.Ctx) error {
		round, err := svc.Rounds.End(c.UserContext(), middleware.ActorFrom(c), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(round)
	})

	admin.Post("/rounds/:id/extend", func(c *fiber.Ctx) error {
		var req extendRoundRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		round, err := svc.Rounds.Extend(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), req.EndTime)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(round)
	})

	admin.Post("/rounds/:id/cancel", func(c *fiber.Ctx) error {
		var req reasonRequest
		if err := bindOptional(c, &req); err != nil {
			return respondError(c, err)
		}
		round, err := svc.Rounds.Cancel(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), req.Reason)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(round)
	})

	admin.Put("/rounds/:id/trials/:trial_no", func(c *fiber.Ctx) error {
		trialNo, err := c.ParamsInt("trial_no")
		if err != nil {
			return respondError(c, apperr.New(apperr.CodeInvalidArgument, "trial_no must be a number"))
		}
		var req trialRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		trial, err := svc.Trials.CreateOrUpdateTrial(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), services.TrialInput{
			TrialNo: trialNo,
			Level:   req.Level,
			Weight:  req.WeightMultiplier,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(trial)
	})

	admin.Delete("/trials/:id", func(c *fiber.Ctx) error {
		if err := svc.Trials.DeleteTrial(c.UserContext(), middleware.ActorFrom(c), c.Params("id")); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	admin.Post("/scores/revalidate", func(c *fiber.Ctx) error {
		report, err := svc.Scoring.Revalidate(c.UserContext(), middleware.ActorFrom(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(report)
	})

	admin.Delete("/prompts/:id", func(c *fiber.Ctx) error {
		var req reasonRequest
		if err := bindOptional(c, &req); err != nil {
			return respondError(c, err)
		}
		row, err := svc.Prompts.SoftDelete(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), req.Reason)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(row)
	})

	admin.Get("/players", func(c *fiber.Ctx) error {
		players, err := svc.Players.Search(c.UserContext(), c.Query("q"), c.QueryInt("limit", 0))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(players)
	})

	admin.Post("/players/:user_id/ban", func(c *fiber.Ctx) error {
		var req reasonRequest
		if err := bindOptional(c, &req); err != nil {
			return respondError(c, err)
		}
		player, err := svc.Players.Ban(c.UserContext(), middleware.ActorFrom(c), c.Params("user_id"), req.Reason)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(player)
	})

	admin.Post("/players/:user_id/unban", func(c *fiber.Ctx) error {
		player, err := svc.Players.Unban(c.UserContext(), middleware.ActorFrom(c), c.Params("user_id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(player)
	})
}

// bindOptional is bind for endpoints whose body may be omitted.
func bindOptional(c *fiber.Ctx, dst interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return bind(c, dst)
}
