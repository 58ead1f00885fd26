package bootstrap

import (
	"context"
	"strings"
	"time"

	"inbox_server/adapter/in/http"
	"inbox_server/config"
	"inbox_server/infra/middleware"
	"inbox_server/pkg/metrics"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

const (
	apiRateLimit  = 120
	apiRateWindow = time.Minute
	apiBodyLimit  = 1 << 20
)

// NewAPI builds the fiber app on top of shared dependencies.
func NewAPI(deps *Dependencies) *fiber.App {
	cfg := deps.Config

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		StrictRouting:         false,
		CaseSensitive:         false,

		// go-json for encode and decode
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:    4 * 1024 * 1024,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())
	app.Use(cors.New(corsConfig(cfg)))

	health := map[string]http.PingFunc{
		"postgres": deps.DB.PingContext,
		"redis":    nil,
	}
	if deps.Redis != nil {
		health["redis"] = func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }
	}
	http.NewHealthHandler(health).Register(app)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	// Pub/Sub must always get 200, so the webhook sits before rate limits and auth.
	http.NewWebhookHandler(deps.PushService).Register(app)

	limiter := middleware.NewRateLimiter(apiRateLimit, apiRateWindow)

	http.NewOAuthHandler(deps.ConnectService, cfg.FrontendURL).Register(app.Group("/auth", limiter.Handler()))

	api := app.Group("/api/v1",
		limiter.Handler(),
		middleware.MaxBodySize(apiBodyLimit),
		middleware.SessionAuth(deps.Sessions),
	)
	http.NewEmailHandler(
		deps.SyncCoordinator,
		deps.Categorizer,
		deps.CategoryService,
		deps.AccountService,
		http.EmailHandlerConfig{
			ManualSyncMax:    cfg.ManualSyncMax,
			ManualCategorize: cfg.ManualCategorize,
		},
	).Register(api)
	http.NewCategoryHandler(deps.CategoryService).Register(api)
	http.NewNotificationHandler(deps.WatchService).Register(api)
	http.NewAccountHandler(deps.AccountService).Register(api)

	return app
}

func corsConfig(cfg *config.Config) cors.Config {
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	return cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}
}
