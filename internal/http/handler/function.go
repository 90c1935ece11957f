package handler

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"imagegen/internal/apperr"
	"imagegen/internal/http/middleware"
	"imagegen/internal/service"
)

// The secure-image-uploader function keeps the flat {"error": "..."} body its browser callers read.

type secureCopyRequest struct {
	ImageURL string `json:"imageUrl"`
}

type secureCopyResponse struct {
	Path        string `json:"path"`
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

type functionError struct {
	Error string `json:"error"`
}

// functionUnauthorized is the deny handler for the function route.
func functionUnauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(functionError{Error: "Unauthorized"})
}

// SecureImageUploader copies a public image into the caller's private folder.
//
// @Summary Secure copy of a generated image
// @Tags functions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body secureCopyRequest true "source image"
// @Success 200 {object} secureCopyResponse
// @Failure 400 {object} functionError
// @Failure 401 {object} functionError
// @Router /functions/secure-image-uploader [post]
func SecureImageUploader(svc service.SecureCopyService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req secureCopyRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(functionError{Error: "Invalid JSON body"})
		}
		if strings.TrimSpace(req.ImageURL) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(functionError{Error: "Missing imageUrl in request body"})
		}

		stored, err := svc.Copy(c.UserContext(), middleware.IdentityFrom(c), req.ImageURL)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindAuth {
				return functionUnauthorized(c)
			}
			return c.Status(fiber.StatusBadRequest).JSON(functionError{Error: err.Error()})
		}

		return c.JSON(secureCopyResponse{
			Path:        stored.Path,
			Success:     true,
			Message:     "Image uploaded successfully",
			Timestamp:   stored.CreatedAt.Format(time.RFC3339),
			Size:        stored.Size,
			ContentType: stored.ContentType,
		})
	}
}
