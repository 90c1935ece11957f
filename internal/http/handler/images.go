package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"imagegen/internal/http/middleware"
	"imagegen/internal/service"
)

// ListImages returns the caller's history, newest first, with limit & offset.
//
// @Summary List generated images
// @Tags images
// @Produce json
// @Security BearerAuth
// @Param limit query int false "page size" default(10)
// @Param offset query int false "offset" default(0)
// @Success 200 {object} service.HistoryListResult
// @Router /images [get]
func ListImages(svc service.HistoryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.List(c.UserContext(), middleware.IdentityFrom(c), limit, offset)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// GetImage returns one history item with a fresh signed URL.
//
// @Summary Get a generated image
// @Tags images
// @Produce json
// @Security BearerAuth
// @Param id path string true "image id"
// @Success 200 {object} service.HistoryItem
// @Failure 404 {object} errorPayload
// @Router /images/{id} [get]
func GetImage(svc service.HistoryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		item, err := svc.Get(c.UserContext(), middleware.IdentityFrom(c), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(item)
	}
}

// DeleteImage removes the stored object and its history row.
//
// @Summary Delete a generated image
// @Tags images
// @Security BearerAuth
// @Param id path string true "image id"
// @Success 204
// @Failure 404 {object} errorPayload
// @Router /images/{id} [delete]
func DeleteImage(svc service.HistoryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.Delete(c.UserContext(), middleware.IdentityFrom(c), id); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
