// @title           Legal Advocate Marketplace API
// @version         1.0
// @description     Clients find verified advocates, submit cases and book consultations; advocates approve cases, collect fees and manage documents.
// @contact.name    Aldo Rifki Putra
// @contact.email   aldoetobex@gmail.com
// @BasePath        /api
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Format: Bearer <token>
package main

//go:generate swag init -g cmd/server/main.go -o docs --parseDependency

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	fiberSwagger "github.com/gofiber/swagger"

	_ "github.com/aldoetobex/legal-advocate-backend/docs"
	"github.com/aldoetobex/legal-advocate-backend/internal/advocates"
	"github.com/aldoetobex/legal-advocate-backend/internal/auth"
	"github.com/aldoetobex/legal-advocate-backend/internal/cases"
	"github.com/aldoetobex/legal-advocate-backend/internal/config"
	"github.com/aldoetobex/legal-advocate-backend/internal/consultations"
	"github.com/aldoetobex/legal-advocate-backend/internal/logging"
	"github.com/aldoetobex/legal-advocate-backend/internal/payments"
	"github.com/aldoetobex/legal-advocate-backend/internal/reviews"
	"github.com/aldoetobex/legal-advocate-backend/internal/storage"
	"github.com/aldoetobex/legal-advocate-backend/pkg/database"
	"github.com/aldoetobex/legal-advocate-backend/pkg/models"
)

const bodyLimit = 110 << 20 // ten documents of up to 10MB plus form overhead

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Logging)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	var provider payments.Provider = payments.NewMockProvider()
	if cfg.Payment.Provider == "stripe" {
		provider = payments.NewStripeProvider(cfg.Payment.StripeSecretKey, cfg.Payment.Timeout)
	}

	// Services
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.AdminJWTSecret, cfg.Auth.TokenTTL)
	authSvc := auth.NewService(db, tokens, log)
	if err := authSvc.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		return err
	}
	ledger := payments.NewService(db, provider, log, cfg.FrontendURL, cfg.Payment.Currency)
	reviewSvc := reviews.NewService(db, log)
	advocateSvc := advocates.NewService(db, reviewSvc, log)
	caseSvc := cases.NewService(db, store, log, cfg.Defaults)
	consultSvc := consultations.NewService(db, ledger, log, cfg.Meeting.BaseURL, cfg.Defaults.ConsultationFee)
	ledger.OnCompleted(consultSvc.OnPaymentCompleted)

	app := fiber.New(fiber.Config{
		ErrorHandler: auth.NewErrorHandler(log),
		BodyLimit:    bodyLimit,
	})
	app.Use(recover.New(), requestid.New(), logging.RequestLogger(log))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Dev-Secret",
	}))

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	app.Get("/swagger/*", fiberSwagger.HandlerDefault)
	if local, ok := store.(*storage.Local); ok {
		app.Static(local.Prefix(), local.Root())
	}

	payH := payments.NewHandler(db, ledger, payments.WebhookConfig{
		SigningSecret: cfg.Payment.StripeWebhookKey,
		DevMode:       cfg.IsDev(),
		DevSecret:     cfg.Payment.DevSecret,
	})
	routes(app.Group("/api"), tokens, handlers{
		auth:          auth.NewHandler(authSvc),
		advocates:     advocates.NewHandler(advocateSvc),
		cases:         cases.NewHandler(caseSvc),
		consultations: consultations.NewHandler(consultSvc),
		payments:      payH,
		reviews:       reviews.NewHandler(reviewSvc),
	}, cfg.IsDev() && provider.Name() == "mock")

	errc := make(chan error, 1)
	go func() {
		log.Info("server running", "port", cfg.Port, "payment_provider", provider.Name(), "storage", cfg.Storage.Driver)
		errc <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type handlers struct {
	auth          *auth.Handler
	advocates     *advocates.Handler
	cases         *cases.Handler
	consultations *consultations.Handler
	payments      *payments.Handler
	reviews       *reviews.Handler
}

func routes(api fiber.Router, tokens *auth.Tokens, h handlers, mockPayments bool) {
	authed := auth.RequireAuth(tokens)
	client := auth.RequireRole(models.RoleClient)
	advocate := auth.RequireRole(models.RoleAdvocate)
	parties := auth.RequireRole(models.RoleClient, models.RoleAdvocate)

	// Identity
	api.Post("/clients/register", h.auth.RegisterClient)
	api.Post("/clients/login", h.auth.LoginClient)
	api.Post("/advocates/register", h.auth.RegisterAdvocate)
	api.Post("/advocates/login", h.auth.LoginAdvocate)
	api.Post("/admin/login", h.auth.LoginAdmin)
	api.Get("/me", authed, h.auth.Me)
	api.Put("/me", authed, h.auth.UpdateMe)

	// Discovery
	api.Get("/advocates", h.advocates.List)
	api.Get("/advocates/:id/reviews", h.reviews.ListForAdvocate)
	api.Get("/advocates/:id", h.advocates.Get)

	// Advocate self-service
	api.Put("/advocate/profile/fees", authed, advocate, h.advocates.UpdateFees)
	api.Get("/advocate/payments/pending", authed, advocate, h.payments.ListPending)
	api.Get("/advocate/earnings", authed, advocate, h.payments.Earnings)

	// Admin
	admin := api.Group("/admin", authed, auth.RequireRole(models.RoleAdmin))
	admin.Get("/advocates/pending", h.advocates.ListPending)
	admin.Put("/advocates/:id/verify", h.advocates.Verify)

	// Cases
	api.Post("/cases", authed, client, h.cases.Submit)
	api.Get("/cases/mine", authed, parties, h.cases.ListMine)
	api.Get("/cases/:id", authed, h.cases.Get)
	api.Get("/cases/:id/history", authed, h.cases.History)
	api.Put("/cases/:id/approve", authed, advocate, h.cases.Approve)
	api.Put("/cases/:id/reject", authed, advocate, h.cases.Reject)
	api.Put("/cases/:id/close", authed, advocate, h.cases.Close)

	// Documents
	api.Post("/cases/:id/documents", authed, advocate, h.cases.UploadDocuments)
	api.Get("/cases/:id/documents", authed, h.cases.ListDocuments)
	api.Get("/documents/:docID/url", authed, h.cases.DocumentURL)
	api.Patch("/documents/:docID", authed, advocate, h.cases.RenameDocument)
	api.Delete("/documents/:docID", authed, advocate, h.cases.DeleteDocument)

	// Payments
	api.Post("/cases/:id/payments", authed, advocate, h.payments.CreateForCase)
	api.Get("/cases/:id/payments", authed, parties, h.payments.ListForCase)
	api.Post("/payments/:paymentId/checkout", authed, client, h.payments.CreateCheckout)
	api.Post("/payment/success/:paymentId", authed, client, h.payments.ConfirmSuccess)
	api.Post("/payment/cancel/:paymentId", authed, parties, h.payments.Cancel)
	api.Post("/payments/stripe/webhook", h.payments.StripeWebhook)
	if mockPayments {
		api.Post("/payments/mock/complete", h.payments.MockComplete) // X-Dev-Secret
	}

	// Consultations
	api.Get("/consultations/slots", h.consultations.Slots)
	api.Get("/consultations/booked-slots", h.consultations.BookedSlots)
	api.Get("/consultations/mine", authed, parties, h.consultations.ListMine)
	api.Post("/consultations", authed, client, h.consultations.Request)
	api.Put("/consultations/:id/accept", authed, advocate, h.consultations.Accept)
	api.Put("/consultations/:id/reject", authed, advocate, h.consultations.Reject)
	api.Put("/consultations/:id/schedule", authed, advocate, h.consultations.Schedule)
	api.Post("/consultations/:id/pay", authed, client, h.consultations.InitiatePayment)

	// Reviews
	api.Post("/reviews", authed, client, h.reviews.Submit)
}
