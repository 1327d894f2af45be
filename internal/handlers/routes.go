package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/middleware"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/security"
)

// Deps are the collaborators of the HTTP adapter.
type Deps struct {
	Analyzer   Analyzer
	Policies   PolicyAdmin
	Alerts     AlertTriage
	Audit      AuditReader
	Reports    Reporter
	DB         Pinger
	Gatherer   prometheus.Gatherer // nil disables /metrics
	Logger     *security.Logger
	Config     *security.SecurityConfig
	AdminToken string // empty disables the admin guard
}

// NewApp builds the fiber application with every route and middleware.
// The returned stop function releases the rate limiter.
func NewApp(d Deps) (app *fiber.App, stop func()) {
	app = fiber.New(fiber.Config{
		AppName:               "athier",
		DisableStartupMessage: true,
		BodyLimit:             d.Config.MaxTextSize * 2,
		ErrorHandler:          ErrorHandler(d.Logger),
	})

	sm := middleware.NewSecurityMiddleware(d.Logger, d.Config)
	analyzeLimiter := security.NewPerMinuteLimiter(d.Config.RateLimitAnalyze)

	app.Use(recover.New())
	app.Use(sm.RequestLogger())
	app.Use(sm.SecureHeaders())
	app.Use(middleware.Identify())

	app.Get("/healthz", Healthz(d.DB, 2*time.Second))
	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")

	analyze := NewAnalyzeHandler(d.Analyzer, d.Logger)
	api.Post("/analyze", sm.RateLimit(analyzeLimiter, "analyze"), analyze.Analyze)

	guard := middleware.AdminToken(d.AdminToken)

	policies := NewPolicyHandler(d.Policies, d.Config, d.Logger)
	pg := api.Group("/policies", guard)
	pg.Post("/", policies.Create)
	pg.Get("/", policies.List)
	pg.Get("/deleted", policies.ListDeleted)
	pg.Get("/:id", policies.Get)
	pg.Put("/:id", policies.Update)
	pg.Delete("/:id", policies.Delete)
	pg.Post("/:id/restore", policies.Restore)

	alerts := NewAlertHandler(d.Alerts, d.Config, d.Logger)
	ag := api.Group("/alerts", guard)
	ag.Get("/", alerts.List)
	ag.Get("/stats/summary", alerts.Summary)
	ag.Get("/:id", alerts.Get)
	ag.Put("/:id/status", alerts.UpdateStatus)

	audit := NewAuditHandler(d.Audit, d.Config, d.Logger)
	api.Get("/audit", guard, audit.Recent)

	reports := NewReportHandler(d.Reports, d.Logger)
	rg := api.Group("/reports", guard)
	rg.Get("/summary", reports.Summary)
	rg.Get("/logs", audit.Recent)

	return app, analyzeLimiter.Stop
}
