package handler

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"imagegen/internal/http/middleware"
	"imagegen/internal/service"
)

type generateRequest struct {
	Prompt string `json:"prompt"`
}

// generationFailure is the error envelope plus the state of the failed run.
type generationFailure struct {
	errorPayload
	Generation *service.GenerationResult `json:"generation"`
}

// Generate runs one prompt through the whole pipeline and returns the result with its transitions.
//
// @Summary Generate an image
// @Tags generations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body generateRequest true "prompt"
// @Success 200 {object} service.GenerationResult
// @Failure 400 {object} errorPayload
// @Failure 401 {object} errorPayload
// @Failure 502 {object} generationFailure
// @Failure 504 {object} generationFailure
// @Router /generations [post]
func Generate(svc service.GenerationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req generateRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		rid := requestIDFromCtx(c)
		observe := func(sc service.StateChange) {
			slog.DebugContext(c.UserContext(), "generation state",
				slog.String("request_id", rid),
				slog.String("state", string(sc.State)),
			)
		}

		res, err := svc.Generate(c.UserContext(), middleware.IdentityFrom(c), req.Prompt, observe)
		if err != nil {
			status, body := serviceError(c, err)
			if res == nil {
				return c.Status(status).JSON(body)
			}
			return c.Status(status).JSON(generationFailure{errorPayload: body, Generation: res})
		}
		return c.JSON(res)
	}
}
