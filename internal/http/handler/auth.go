package handler

import (
	"github.com/gofiber/fiber/v2"

	"imagegen/internal/auth"
	"imagegen/internal/http/middleware"
)

type updateProfileRequest struct {
	Name string `json:"name"`
}

// SignUp registers an account and returns a session.
//
// @Summary Sign up
// @Tags auth
// @Accept json
// @Produce json
// @Param body body auth.SignUpInput true "account"
// @Success 201 {object} auth.Session
// @Failure 400 {object} errorPayload
// @Router /auth/signup [post]
func SignUp(accounts auth.Accounts) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in auth.SignUpInput
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		sess, err := accounts.SignUp(c.UserContext(), in)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(sess)
	}
}

// SignIn exchanges credentials for a session.
//
// @Summary Sign in
// @Tags auth
// @Accept json
// @Produce json
// @Param body body auth.SignInInput true "credentials"
// @Success 200 {object} auth.Session
// @Failure 401 {object} errorPayload
// @Router /auth/signin [post]
func SignIn(accounts auth.Accounts) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in auth.SignInInput
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		sess, err := accounts.SignIn(c.UserContext(), in)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(sess)
	}
}

// GetProfile returns the caller's profile.
func GetProfile(accounts auth.Accounts) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := accounts.Profile(c.UserContext(), middleware.IdentityFrom(c))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(u)
	}
}

// UpdateProfile changes the caller's display name.
func UpdateProfile(accounts auth.Accounts) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req updateProfileRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		u, err := accounts.UpdateName(c.UserContext(), middleware.IdentityFrom(c), req.Name)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(u)
	}
}
