package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"ms-fest/internal/analytics"
	analytics_api "ms-fest/internal/analytics/api"
	"ms-fest/internal/attendance"
	"ms-fest/internal/attendance/attendance_api"
	"ms-fest/internal/auth"
	"ms-fest/internal/config"
	"ms-fest/internal/database"
	"ms-fest/internal/database/migrations"
	"ms-fest/internal/events/event_api"
	events "ms-fest/internal/events/service"
	"ms-fest/internal/logger"
	"ms-fest/internal/notify"
	"ms-fest/internal/organizers/organizer_api"
	organizers "ms-fest/internal/organizers/service"
	"ms-fest/internal/registrations/registration_api"
	registrations "ms-fest/internal/registrations/service"
	"ms-fest/internal/sse"
	qr "ms-fest/internal/tickets/qr_genrator"
	tickets "ms-fest/internal/tickets/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

// requestLogger writes one API log line per request.
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.LogAPI(r.Method, r.URL.Path, strconv.Itoa(status), time.Since(start).String())
		})
	}
}

// migrateOnStart applies pending migrations over its own connection; closing
// the migrator closes the pool it was given.
func migrateOnStart(cfg *config.Config, log *logger.Logger) error {
	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		return err
	}
	runner := migrations.NewRunner(db, migrations.Options{MigrationsDir: cfg.Database.MigrationsDir}, log)
	defer runner.Close()
	return runner.Up()
}

func newVerifier(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) auth.Verifier {
	if cfg.DevMode {
		log.Warn("AUTH", "AUTH_DEV_MODE is on: bearer tokens are NOT verified")
		return auth.NewDevVerifier()
	}
	verifier, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Failed to set up OIDC verifier for %q: %v", cfg.OIDCIssuer, err))
	}
	return verifier
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("[CONFIG] .env file not found, using environment variables")
	}
	cfg := config.Load()

	logger := logger.NewLoggerWithDir(cfg.LogDir)
	defer logger.Close()
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		logger.Warn("CONFIG", err.Error())
	}

	logger.Info("APP", "Starting Fest Service initialization")
	if cfg.Ticket.QRSecret == "" {
		logger.Fatal("CONFIG", "QR_SECRET_KEY not set")
	}

	ctx := context.Background()

	if cfg.Database.AutoMigrate {
		if err := migrateOnStart(cfg, logger); err != nil {
			logger.Fatal("MIGRATE", fmt.Sprintf("Startup migration failed: %v", err))
		}
	}

	bunDB, err := database.Connect(cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	var statsCache attendance.StatsCache = attendance.NoCache{}
	redisClient, err := database.ConnectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Warn("REDIS", fmt.Sprintf("Attendance stats cache disabled: %v", err))
	} else {
		defer redisClient.Close()
		statsCache = attendance.NewRedisStatsCache(redisClient, cfg.Redis.StatsTTL, logger)
	}

	notifier := notify.NewEmitter(bunDB, logger, cfg.Outbox.MaxRetries)
	issuer := tickets.NewIssuer(qr.NewQRGenerator(cfg.Ticket.QRSecret, cfg.Ticket.QRSize), logger)
	stream := sse.NewAttendanceEmitter()

	eventService := events.NewEventService(bunDB, notifier, logger)
	registrationService := registrations.NewRegistrationService(bunDB, issuer, notifier, logger)
	attendanceService := attendance.NewService(bunDB, issuer, statsCache, stream, logger)
	adminService := organizers.NewAdminService(bunDB, logger)
	analyticsService := analytics.NewService(bunDB, logger)
	eventService.Stats = attendanceService
	registrationService.Stats = attendanceService

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	// --- Public Routes ---
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(newVerifier(ctx, cfg.Auth, logger)))
		logger.Info("AUTH", "Token middleware applied to protected API routes")

		event_api.NewHandler(eventService, logger).RegisterRoutes(r)
		logger.Info("ROUTER", "Event routes registered under /api/events")

		registration_api.NewHandler(registrationService, logger).RegisterRoutes(r)
		logger.Info("ROUTER", "Registration routes registered under /api/registrations")

		attendance_api.NewHandler(attendanceService, logger).RegisterRoutes(r)
		logger.Info("ROUTER", "Attendance routes registered under /api/attendance")

		organizer_api.NewHandler(adminService, logger).RegisterRoutes(r)
		logger.Info("ROUTER", "Admin routes registered under /api/admin/organizers")

		analytics_api.NewHandler(analyticsService, logger).RegisterRoutes(r)
		logger.Info("ROUTER", "Analytics routes registered under /api/analytics")
	})

	// WriteTimeout is left unset so attendance streams stay open.
	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("Fest Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "Fest Service shutdown complete")
	}
}
