package handler

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"imagegen/internal/auth"
	"imagegen/internal/http/middleware"
	"imagegen/internal/service"
)

// Deps are the collaborators the HTTP layer is wired with.
type Deps struct {
	DB              *sql.DB
	Gatherer        prometheus.Gatherer
	Authenticator   auth.Authenticator
	Accounts        auth.Accounts
	SecureCopy      service.SecureCopyService
	Generations     service.GenerationService
	History         service.HistoryService
	CORSAllowOrigin string
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Handlers stay thin; business rules live in the services.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/health", HealthCheck(d.DB))
	app.Get("/healthz", LivenessProbe())

	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	authed := middleware.RequireAuth(d.Authenticator, unauthorized)

	a := app.Group("/auth")
	a.Post("/signup", SignUp(d.Accounts))
	a.Post("/signin", SignIn(d.Accounts))
	a.Get("/profile", authed, GetProfile(d.Accounts))
	a.Patch("/profile", authed, UpdateProfile(d.Accounts))

	// CORS runs before auth so preflight is answered without a token.
	fn := app.Group("/functions", middleware.CORS(d.CORSAllowOrigin))
	fn.Post("/secure-image-uploader",
		middleware.RequireAuth(d.Authenticator, functionUnauthorized),
		SecureImageUploader(d.SecureCopy),
	)

	app.Post("/generations", authed, Generate(d.Generations))

	img := app.Group("/images", authed)
	img.Get("/", ListImages(d.History))
	img.Get("/:id", GetImage(d.History))
	img.Delete("/:id", DeleteImage(d.History))
}
