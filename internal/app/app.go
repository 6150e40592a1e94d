package app

import (
	"time"

	"civicfund-backend/internal/audit"
	"civicfund-backend/internal/auth"
	"civicfund-backend/internal/billing"
	"civicfund-backend/internal/config"
	"civicfund-backend/internal/constants"
	"civicfund-backend/internal/database"
	"civicfund-backend/internal/donations"
	"civicfund-backend/internal/health"
	"civicfund-backend/internal/middleware"
	"civicfund-backend/internal/projects"
	"civicfund-backend/internal/votes"
	"civicfund-backend/internal/wallet"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// CreateApp builds the Fiber app with all global middleware and route
// registration. The returned DB and Redis handles let the entrypoint run
// startup pings and let tests reach the stores directly.
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	// CORS (before session)
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))

	// Stripe webhook — mounted early, before session and any body parsing,
	// so the handler sees the raw payload for signature verification.
	// Dependencies are filled in after the stores are initialized below.
	stripeWebhook := &billing.WebhookHandler{WebhookSecret: cfg.StripeWebhookSecret}
	app.Post("/api/v1/stripe/webhook", func(c *fiber.Ctx) error {
		return stripeWebhook.HandleWebhook(c)
	})

	// Session (Redis); the client also backs the health marker.
	sessionCfg := middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	}
	sessionHandler, rdb, err := middleware.Session(sessionCfg)
	if err != nil {
		return nil, nil, nil, err
	}
	app.Use(sessionHandler)

	// Health request marker (after session)
	app.Use(middleware.HealthMarker(rdb))

	// Response formatter, tracing, route logger
	app.Use(middleware.ResponseFormatter())
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	// --- Routes (no auth) ---
	healthHandlers := &health.Handlers{
		Rdb:            rdb,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	if db != nil {
		healthHandlers.DB = &gormPinger{db: db}
	}
	app.Get("/", healthHandlers.Root)
	app.Get("/reset", healthHandlers.Reset)
	app.Get("/health/json", healthHandlers.JSON)
	app.Get("/health/errors", healthHandlers.Errors)

	// Auth: login/me/logout (db may be nil when DATABASE_URL is unset, e.g.
	// in handler tests; Login then reports 500)
	var userFinder auth.UserFinder
	if db != nil {
		userFinder = &auth.GormUserFinder{DB: db}
	}
	authHandlers := &auth.Handlers{
		UserFinder: userFinder,
		Rdb:        rdb,
		Config:     sessionCfg,
	}
	authGroup := app.Group("/api/v1/auth")
	authGroup.Post("/login", authHandlers.Login)
	authGroup.Get("/me", authHandlers.Me)
	authGroup.Delete("/logout", authHandlers.Logout)

	// --- Protected modules (auth required) ---
	if db != nil && rdb != nil {
		auditRecorder := &audit.Recorder{DB: db}
		donationService := &donations.Service{DB: db}
		walletService := &wallet.Service{
			DB:               db,
			Donations:        donationService,
			Charger:          &wallet.RealStripeCharger{SecretKey: cfg.StripeSecretKey},
			RefillFloorCents: cfg.WalletRefillFloorCents,
			ChargeTimeout:    time.Duration(cfg.WalletChargeTimeoutSeconds) * time.Second,
		}
		projectService := &projects.Service{DB: db, Audit: auditRecorder}
		voteService := &votes.Service{DB: db}
		reconciler := &billing.Reconciler{DB: db, Fetcher: billing.RealSubscriptionFetcher{}}

		// Fill the webhook handler registered before the session middleware.
		stripeWebhook.DB = db
		stripeWebhook.Reconciler = reconciler
		stripeWebhook.Wallet = walletService
		stripeWebhook.Donations = donationService

		// Projects module
		projectHandlers := &projects.Handlers{Service: projectService}
		projectGroup := app.Group("/api/v1/projects", middleware.RequireAuth())
		projectGroup.Post("/create-project", middleware.AuthorizePermission(constants.SubmitProject), projectHandlers.CreateProject)
		projectGroup.Get("/get-project/:project_id", projectHandlers.GetProject)
		projectGroup.Get("/get-all-projects", projectHandlers.GetAllProjects)
		projectGroup.Post("/transition", middleware.AuthorizePermission(constants.TransitionProject), projectHandlers.Transition)

		// Votes module
		voteHandlers := &votes.Handlers{Service: voteService}
		voteGroup := app.Group("/api/v1/votes", middleware.RequireAuth())
		voteGroup.Post("/cast-vote", middleware.AuthorizePermission(constants.CastVote), voteHandlers.CastVote)

		// Wallet module
		walletHandlers := &wallet.Handlers{
			Service:       walletService,
			IntentCreator: &wallet.RealTopUpIntentCreator{SecretKey: cfg.StripeSecretKey},
		}
		walletGroup := app.Group("/api/v1/wallet", middleware.RequireAuth())
		walletGroup.Get("/balance", walletHandlers.GetBalance)
		walletGroup.Get("/transactions", walletHandlers.GetTransactions)
		walletGroup.Post("/debit", walletHandlers.Debit)
		walletGroup.Post("/topup-intent", walletHandlers.TopUpIntent)
		walletGroup.Put("/auto-refill", walletHandlers.UpdateAutoRefill)

		// Donations module
		donationHandlers := &donations.Handlers{
			Service:       donationService,
			StripeCreator: &donations.RealStripeIntentCreator{SecretKey: cfg.StripeSecretKey},
		}
		donationGroup := app.Group("/api/v1/donations", middleware.RequireAuth())
		donationGroup.Post("/checkout-intent", donationHandlers.CheckoutIntent)
		donationGroup.Get("/get-project-donations/:project_id", donationHandlers.GetProjectDonations)

		// Audit module
		auditHandlers := &audit.Handlers{Recorder: auditRecorder}
		auditGroup := app.Group("/api/v1/audit", middleware.RequireAuth())
		auditGroup.Get("/get-audit-trail", middleware.AuthorizePermission(constants.ViewAuditTrail), auditHandlers.GetAuditTrail)
	}

	return app, db, rdb, nil
}

// gormPinger adapts *gorm.DB to the health DBPinger.
type gormPinger struct {
	db *gorm.DB
}

func (p *gormPinger) Ping() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
