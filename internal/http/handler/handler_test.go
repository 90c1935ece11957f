package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"imagegen/internal/apperr"
	"imagegen/internal/auth"
	authMocks "imagegen/internal/auth/mocks"
	"imagegen/internal/http/middleware"
	"imagegen/internal/model"
	"imagegen/internal/service"
	serviceMocks "imagegen/internal/service/mocks"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var alice = model.Identity{UserID: "u1", Email: "alice@example.com", Token: "good"}

// withIdentity stands in for middleware.RequireAuth in handler-level tests.
func withIdentity(id model.Identity) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(middleware.IdentityLocalKey, id)
		return c.Next()
	}
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.ErrEmptyPrompt, http.StatusBadRequest},
		{apperr.ErrGenerationInFlight, http.StatusBadRequest},
		{apperr.ErrInvalidCredentials, http.StatusUnauthorized},
		{apperr.ErrNotFound, http.StatusNotFound},
		{apperr.ErrTimeout, http.StatusGatewayTimeout},
		{apperr.ErrMalformedResponse, http.StatusBadGateway},
		{apperr.ErrUploadFailed, http.StatusBadGateway},
		{apperr.ErrPersistence, http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(apperr.KindOf(fmt.Errorf("wrapped: %w", tt.err))))
		})
	}
}

func TestSecureImageUploader(t *testing.T) {
	mockSvc := new(serviceMocks.MockSecureCopyService)
	app := fiber.New()
	app.Post("/fn", withIdentity(alice), SecureImageUploader(mockSvc))

	t.Run("success", func(t *testing.T) {
		created := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
		mockSvc.On("Copy", mock.Anything, alice, "https://ext/img.png").Return(&model.StoredImage{
			Path: "u1/abcd.png", Size: 10240, ContentType: "image/png", CreatedAt: created,
		}, nil).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/fn", `{"imageUrl":"https://ext/img.png"}`))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body secureCopyResponse
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, secureCopyResponse{
			Path:        "u1/abcd.png",
			Success:     true,
			Message:     "Image uploaded successfully",
			Timestamp:   "2026-04-01T09:30:00Z",
			Size:        10240,
			ContentType: "image/png",
		}, body)
		mockSvc.AssertExpectations(t)
	})

	t.Run("missing imageUrl", func(t *testing.T) {
		resp, _ := app.Test(jsonRequest(http.MethodPost, "/fn", `{}`))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		raw, _ := io.ReadAll(resp.Body)
		assert.JSONEq(t, `{"error":"Missing imageUrl in request body"}`, string(raw))
	})

	t.Run("invalid json", func(t *testing.T) {
		resp, _ := app.Test(jsonRequest(http.MethodPost, "/fn", `{"imageUrl":`))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("fetch failure is a 400 with message", func(t *testing.T) {
		mockSvc.On("Copy", mock.Anything, alice, "https://ext/gone.png").
			Return(nil, fmt.Errorf("%w: status 404", apperr.ErrSourceFetchFailed)).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/fn", `{"imageUrl":"https://ext/gone.png"}`))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body functionError
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "failed to fetch image from source: status 404", body.Error)
		mockSvc.AssertExpectations(t)
	})
}

func TestGenerate(t *testing.T) {
	mockSvc := new(serviceMocks.MockGenerationService)
	app := fiber.New()
	app.Use(middleware.RequestID())
	app.Post("/generations", withIdentity(alice), Generate(mockSvc))

	t.Run("success", func(t *testing.T) {
		res := &service.GenerationResult{
			Prompt:       "a red cube",
			Path:         "u1/abcd.png",
			SignedURL:    "https://store/u1/abcd.png?sig=x",
			HistorySaved: true,
			State:        service.StateDone,
			Transitions: []service.StateChange{
				{State: service.StateGenerating}, {State: service.StateSecuring},
				{State: service.StateSigning}, {State: service.StateRecording}, {State: service.StateDone},
			},
		}
		mockSvc.On("Generate", mock.Anything, alice, "a red cube", mock.Anything).Return(res, nil).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/generations", `{"prompt":"a red cube"}`))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body service.GenerationResult
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, service.StateDone, body.State)
		assert.Len(t, body.Transitions, 5)
		assert.Equal(t, "u1/abcd.png", body.Path)
		mockSvc.AssertExpectations(t)
	})

	t.Run("empty prompt", func(t *testing.T) {
		mockSvc.On("Generate", mock.Anything, alice, "  ", mock.Anything).Return(nil, apperr.ErrEmptyPrompt).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/generations", `{"prompt":"  "}`))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "EMPTY_PROMPT", body.Error.Code)
		assert.Equal(t, "please enter a prompt to generate an image", body.Error.Message)
		assert.NotEmpty(t, body.RequestID)
	})

	t.Run("webhook timeout carries the failed run", func(t *testing.T) {
		res := &service.GenerationResult{
			Prompt: "slow",
			State:  service.StateFailed,
			Transitions: []service.StateChange{
				{State: service.StateGenerating}, {State: service.StateWaitingForWebhook},
				{State: service.StateFailed, Err: "timeout"},
			},
		}
		mockSvc.On("Generate", mock.Anything, alice, "slow", mock.Anything).
			Return(res, fmt.Errorf("%w: context deadline exceeded", apperr.ErrTimeout)).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/generations", `{"prompt":"slow"}`))
		assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)

		var body struct {
			Error      errorEnvelope            `json:"error"`
			Generation service.GenerationResult `json:"generation"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "TIMEOUT", body.Error.Code)
		assert.NotContains(t, body.Error.Message, "deadline")
		assert.Equal(t, service.StateFailed, body.Generation.State)
		assert.Len(t, body.Generation.Transitions, 3)
	})

	t.Run("in flight", func(t *testing.T) {
		mockSvc.On("Generate", mock.Anything, alice, "again", mock.Anything).Return(nil, apperr.ErrGenerationInFlight).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/generations", `{"prompt":"again"}`))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unclassified error hides details", func(t *testing.T) {
		mockSvc.On("Generate", mock.Anything, alice, "boom", mock.Anything).Return(nil, errors.New("pq: secret detail")).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/generations", `{"prompt":"boom"}`))
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
		assert.Equal(t, "internal server error", body.Error.Message)
	})
}

func TestListImages(t *testing.T) {
	mockSvc := new(serviceMocks.MockHistoryService)
	app := fiber.New()
	app.Get("/images", withIdentity(alice), ListImages(mockSvc))

	t.Run("success", func(t *testing.T) {
		expectedRes := &service.HistoryListResult{
			Items: []service.HistoryItem{{
				GeneratedImage: model.GeneratedImage{ID: uuid.New().String(), Prompt: "a red cube", ImagePath: "u1/a.png"},
				SignedURL:      "https://store/u1/a.png?sig=x",
			}},
			Total: 1,
		}
		mockSvc.On("List", mock.Anything, alice, 10, 0).Return(expectedRes, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/images?limit=10&offset=0", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result service.HistoryListResult
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Len(t, result.Items, 1)
		assert.Equal(t, 1, result.Total)
		assert.Equal(t, "https://store/u1/a.png?sig=x", result.Items[0].SignedURL)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/images?limit=abc", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "INVALID_LIMIT", body.Error.Code)
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, alice, 10, 0).Return(nil, errors.New("service error")).Once()

		req := httptest.NewRequest(http.MethodGet, "/images", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestGetImage(t *testing.T) {
	mockSvc := new(serviceMocks.MockHistoryService)
	app := fiber.New()
	app.Get("/images/:id", withIdentity(alice), GetImage(mockSvc))

	t.Run("success", func(t *testing.T) {
		id := uuid.New().String()
		item := &service.HistoryItem{GeneratedImage: model.GeneratedImage{ID: id, ImagePath: "u1/a.png"}}
		mockSvc.On("Get", mock.Anything, alice, id).Return(item, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/images/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result service.HistoryItem
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, id, result.ID)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Get", mock.Anything, alice, id).Return(nil, apperr.ErrNotFound).Once()

		req := httptest.NewRequest(http.MethodGet, "/images/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "NOT_FOUND", res.Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/images/invalid-uuid", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "INVALID_ID", res.Error.Code)
	})
}

func TestDeleteImage(t *testing.T) {
	mockSvc := new(serviceMocks.MockHistoryService)
	app := fiber.New()
	app.Delete("/images/:id", withIdentity(alice), DeleteImage(mockSvc))

	t.Run("success", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Delete", mock.Anything, alice, id).Return(nil).Once()

		req := httptest.NewRequest(http.MethodDelete, "/images/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Delete", mock.Anything, alice, id).Return(apperr.ErrNotFound).Once()

		req := httptest.NewRequest(http.MethodDelete, "/images/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("storage error", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("Delete", mock.Anything, alice, id).Return(errors.New("delete storage: s3 down")).Once()

		req := httptest.NewRequest(http.MethodDelete, "/images/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestAuthHandlers(t *testing.T) {
	mockAccounts := new(authMocks.MockAccounts)
	app := fiber.New()
	app.Post("/auth/signup", SignUp(mockAccounts))
	app.Post("/auth/signin", SignIn(mockAccounts))
	app.Get("/auth/profile", withIdentity(alice), GetProfile(mockAccounts))
	app.Patch("/auth/profile", withIdentity(alice), UpdateProfile(mockAccounts))

	t.Run("signup created", func(t *testing.T) {
		in := auth.SignUpInput{Email: "alice@example.com", Password: "secret1", ConfirmPassword: "secret1", Name: "Alice"}
		mockAccounts.On("SignUp", mock.Anything, in).
			Return(&auth.Session{Token: "tok", TokenType: "Bearer", User: &model.User{ID: "u1"}}, nil).Once()

		body := `{"email":"alice@example.com","password":"secret1","confirm_password":"secret1","name":"Alice"}`
		resp, _ := app.Test(jsonRequest(http.MethodPost, "/auth/signup", body))
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var sess auth.Session
		json.NewDecoder(resp.Body).Decode(&sess)
		assert.Equal(t, "tok", sess.Token)
	})

	t.Run("signup validation", func(t *testing.T) {
		mockAccounts.On("SignUp", mock.Anything, mock.Anything).Return(nil, apperr.ErrPasswordMismatch).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/auth/signup", `{"email":"a@b.co"}`))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "PASSWORD_MISMATCH", res.Error.Code)
	})

	t.Run("signin bad credentials", func(t *testing.T) {
		mockAccounts.On("SignIn", mock.Anything, auth.SignInInput{Email: "a@b.co", Password: "x"}).
			Return(nil, apperr.ErrInvalidCredentials).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/auth/signin", `{"email":"a@b.co","password":"x"}`))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("profile", func(t *testing.T) {
		mockAccounts.On("Profile", mock.Anything, alice).Return(&model.User{ID: "u1", Name: "Alice"}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/auth/profile", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var u model.User
		json.NewDecoder(resp.Body).Decode(&u)
		assert.Equal(t, "Alice", u.Name)
	})

	t.Run("update name too short", func(t *testing.T) {
		mockAccounts.On("UpdateName", mock.Anything, alice, "A").Return(nil, apperr.ErrNameTooShort).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPatch, "/auth/profile", `{"name":"A"}`))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	mockAccounts.AssertExpectations(t)
}

func TestRouting(t *testing.T) {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(),
	})

	authn := new(authMocks.MockAuthenticator)
	authn.On("Authenticate", mock.Anything, "good").Return(alice, nil)
	authn.On("Authenticate", mock.Anything, mock.Anything).Return(model.Identity{}, apperr.ErrUnauthorized)

	copier := new(serviceMocks.MockSecureCopyService)
	history := new(serviceMocks.MockHistoryService)

	// Register all routes
	RegisterRoutes(app, Deps{
		Gatherer:        prometheus.NewRegistry(),
		Authenticator:   authn,
		Accounts:        new(authMocks.MockAccounts),
		SecureCopy:      copier,
		Generations:     new(serviceMocks.MockGenerationService),
		History:         history,
		CORSAllowOrigin: "*",
	})

	t.Run("not found route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/non-existent", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "NOT_FOUND", res.Error.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		// Health endpoint only allows GET
		req := httptest.NewRequest(http.MethodPost, "/health", nil)
		resp, _ := app.Test(req)

		// Fiber returns 405 by default if route exists but method doesn't match
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "METHOD_NOT_ALLOWED", res.Error.Code)
	})

	t.Run("function preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/functions/secure-image-uploader", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("function rejects missing token regardless of body", func(t *testing.T) {
		for _, body := range []string{`{"imageUrl":"https://ext/img.png"}`, `{}`, `garbage`} {
			resp, _ := app.Test(jsonRequest(http.MethodPost, "/functions/secure-image-uploader", body))

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
			raw, _ := io.ReadAll(resp.Body)
			assert.JSONEq(t, `{"error":"Unauthorized"}`, string(raw))
		}
		copier.AssertNotCalled(t, "Copy", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("function rejects invalid token", func(t *testing.T) {
		req := jsonRequest(http.MethodPost, "/functions/secure-image-uploader", `{"imageUrl":"https://ext/img.png"}`)
		req.Header.Set("Authorization", "Bearer forged")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("function with token", func(t *testing.T) {
		copier.On("Copy", mock.Anything, alice, "https://ext/img.png").
			Return(&model.StoredImage{Path: "u1/abcd.png", Size: 3, ContentType: "image/png"}, nil).Once()

		req := jsonRequest(http.MethodPost, "/functions/secure-image-uploader", `{"imageUrl":"https://ext/img.png"}`)
		req.Header.Set("Authorization", "Bearer good")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		copier.AssertExpectations(t)
	})

	t.Run("api routes use the envelope for 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/images", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "UNAUTHORIZED", res.Error.Code)
		history.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("metrics endpoint", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestErrorHandler_ServiceError(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Get("/x", func(c *fiber.Ctx) error {
		return fmt.Errorf("%w: upstream said 500", apperr.ErrUnreachable)
	})

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var res errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, "UNREACHABLE", res.Error.Code)
	assert.Equal(t, "webhook unreachable", res.Error.Message)
}
