// cmd/server/server.go
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Courtside/internal/api"
	apiavailability "github.com/codr1/Courtside/internal/api/availability"
	"github.com/codr1/Courtside/internal/api/blocks"
	"github.com/codr1/Courtside/internal/api/bookings"
	apipayments "github.com/codr1/Courtside/internal/api/payments"
	apirecurring "github.com/codr1/Courtside/internal/api/recurring"
	"github.com/codr1/Courtside/internal/audit"
	"github.com/codr1/Courtside/internal/availability"
	"github.com/codr1/Courtside/internal/booking"
	"github.com/codr1/Courtside/internal/config"
	appdb "github.com/codr1/Courtside/internal/db"
	"github.com/codr1/Courtside/internal/email"
	"github.com/codr1/Courtside/internal/events"
	"github.com/codr1/Courtside/internal/payments"
	"github.com/codr1/Courtside/internal/ratelimit"
	"github.com/codr1/Courtside/internal/recurring"
	"github.com/codr1/Courtside/internal/scheduler"
)

type app struct {
	server   *http.Server
	database *appdb.DB
	consumer *events.PaymentConsumer
	closers  []io.Closer
}

// Close releases every collaborator in reverse order of creation.
func (a *app) Close() {
	if err := scheduler.Stop(); err != nil && err != scheduler.ErrNotInitialized {
		log.Warn().Err(err).Msg("Failed to stop scheduler")
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close resource")
		}
	}
	a.closers = nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		a.Close()
		return nil, err
	}

	database, err := appdb.NewFromConfig(cfg)
	if err != nil {
		return fail(fmt.Errorf("open database: %w", err))
	}
	a.database = database
	a.closers = append(a.closers, database)

	limiter, err := newLimiter(ctx, cfg, a)
	if err != nil {
		return fail(err)
	}

	deps := booking.Deps{
		Tx:          booking.DBTransactor{DB: database},
		Queries:     database.Queries,
		Limiter:     limiter,
		Audit:       audit.NewRecorder(database.Queries),
		Defaults:    cfg.Booking,
		PhoneRegion: cfg.Booking.DefaultPhoneRegion,
		Events:      events.NopPublisher{},
	}

	if cfg.Payments.Provider == "omise" {
		gw, err := payments.NewOmiseGateway(payments.OmiseConfig{
			PublicKey:  cfg.Payments.PublicKey,
			SecretKey:  cfg.Payments.SecretKey,
			SourceType: cfg.Payments.SourceType,
			ReturnURL:  cfg.Payments.ReturnURL,
		})
		if err != nil {
			return fail(err)
		}
		deps.Payments = gw
		log.Info().Str("provider", cfg.Payments.Provider).Msg("Payment gateway configured")
	}

	if cfg.Email.Enabled {
		ses, err := email.NewSESClient(ctx, cfg.Email.AccessKeyID, cfg.Email.SecretAccessKey, cfg.Email.Region, cfg.Email.Sender)
		if err != nil {
			return fail(fmt.Errorf("create ses client: %w", err))
		}
		deps.Notifier = email.NewNotifier(ses, cfg.Email.Sender)
	}

	if cfg.Events.Enabled {
		pub, err := events.NewRabbitPublisher(cfg.Events.URL, cfg.Events.BookingExchange)
		if err != nil {
			return fail(fmt.Errorf("connect booking publisher: %w", err))
		}
		a.closers = append(a.closers, pub)
		deps.Events = pub
	}

	svc := booking.NewService(deps)

	if cfg.Events.Enabled {
		consumer, err := events.NewPaymentConsumer(cfg.Events.URL, cfg.Events.PaymentExchange, cfg.Events.PaymentQueue, svc, database.Queries)
		if err != nil {
			return fail(fmt.Errorf("connect payment consumer: %w", err))
		}
		a.consumer = consumer
		a.closers = append(a.closers, consumer)
	}

	engine, err := recurring.NewEngine(deps.Tx, database.Queries, deps.Audit, deps.Events, nil)
	if err != nil {
		return fail(err)
	}

	if err := scheduler.Init(); err != nil {
		return fail(fmt.Errorf("init scheduler: %w", err))
	}
	if err := scheduler.RegisterExpiryJobs(svc, cfg.Scheduler.ExpirySweepCron); err != nil {
		return fail(fmt.Errorf("register expiry jobs: %w", err))
	}
	if err := scheduler.Start(); err != nil {
		return fail(err)
	}

	bookings.InitHandlers(svc, cfg.RateLimit.TrustProxyForwards)
	blocks.InitHandlers(svc)
	apipayments.InitHandlers(svc)
	apirecurring.InitHandlers(engine)
	apiavailability.InitHandlers(availability.NewCalculator(database.Queries, nil), nil)

	a.server = newServer(cfg, database)
	return a, nil
}

func newLimiter(ctx context.Context, cfg *config.Config, a *app) (ratelimit.Limiter, error) {
	limits := &ratelimit.Config{Limit: cfg.RateLimit.MaxAttemptsPerMin, Window: time.Minute}
	switch cfg.RateLimit.Backend {
	case "redis":
		client, err := ratelimit.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Using redis rate limiter")
		return ratelimit.NewRedis(client, limits), nil
	default:
		limiter := ratelimit.NewMemory(limits)
		a.closers = append(a.closers, closerFunc(func() error {
			limiter.Close()
			return nil
		}))
		return limiter, nil
	}
}

func newServer(cfg *config.Config, database *appdb.DB) *http.Server {
	router := http.NewServeMux()

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
	)

	registerRoutes(router, database, cfg.Booking)

	return &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, database *appdb.DB, defaults config.BookingConfig) {
	org := func(h http.HandlerFunc) http.Handler {
		return api.ChainMiddleware(h, api.WithIdentity(database.Queries), api.WithOrganization(database.Queries, defaults))
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return api.ChainMiddleware(h, api.WithAdmin, api.WithIdentity(database.Queries), api.WithOrganization(database.Queries, defaults))
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.PingContext(r.Context()); err != nil {
			log.Ctx(r.Context()).Error().Err(err).Msg("Health check failed")
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Availability routes
	mux.Handle("GET /api/v1/orgs/{slug}/availability", org(apiavailability.HandleDay))
	mux.Handle("GET /api/v1/orgs/{slug}/courts/{courtID}/availability", org(apiavailability.HandleCourt))
	mux.Handle("GET /api/v1/orgs/{slug}/bookable-dates", org(apiavailability.HandleBookableDates))

	// Booking routes
	mux.Handle("POST /api/v1/orgs/{slug}/bookings", org(bookings.HandleCreate))
	mux.Handle("POST /api/v1/orgs/{slug}/bookings/consecutive", org(bookings.HandleCreateConsecutive))
	mux.Handle("GET /api/v1/orgs/{slug}/bookings/{id}", org(bookings.HandleGet))
	mux.Handle("POST /api/v1/orgs/{slug}/bookings/{id}/cancel", org(bookings.HandleCancel))
	mux.Handle("POST /api/v1/orgs/{slug}/bookings/{id}/payment/sync", org(bookings.HandleSyncPayment))

	// Admin routes
	mux.Handle("POST /api/v1/orgs/{slug}/admin/bookings/{id}/complete", admin(bookings.HandleComplete))
	mux.Handle("POST /api/v1/orgs/{slug}/admin/bookings/{id}/no-show", admin(bookings.HandleNoShow))
	mux.Handle("POST /api/v1/orgs/{slug}/admin/blocks", admin(blocks.HandleCreate))
	mux.Handle("DELETE /api/v1/orgs/{slug}/admin/blocks/{id}", admin(blocks.HandleDelete))
	mux.Handle("POST /api/v1/orgs/{slug}/admin/recurring", admin(apirecurring.HandleCreate))
	mux.Handle("GET /api/v1/orgs/{slug}/admin/recurring", admin(apirecurring.HandleList))
	mux.Handle("POST /api/v1/orgs/{slug}/admin/recurring/{id}/cancel", admin(apirecurring.HandleCancel))

	// Payment gateway callbacks
	mux.HandleFunc("POST /api/v1/payments/webhook", apipayments.HandleWebhook)
}
