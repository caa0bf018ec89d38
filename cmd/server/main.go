package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"classpulse/internal/config"
	"classpulse/internal/content"
	"classpulse/internal/credentials"
	"classpulse/internal/database"
	"classpulse/internal/handlers"
	"classpulse/internal/logger"
	"classpulse/internal/realtime"
	"classpulse/internal/repository"
	"classpulse/internal/scheduler"
	"classpulse/internal/security"
	"classpulse/internal/service"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const (
	summaryTimeout   = 30 * time.Second
	reconcileTimeout = 20 * time.Second
	shutdownTimeout  = 15 * time.Second
)

// feed is the change feed the server runs on
type feed interface {
	realtime.Feed
	Close() error
}

func main() {
	// Load configuration
	cfg := config.Load()

	logger.Init(cfg.RollbarToken, cfg.Env, version)
	defer logger.Flush()

	// Initialize database with config (supports sqlite, postgres, mysql)
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	log.Printf("Database connection established (type: %s)", cfg.DatabaseType)

	// Run migrations
	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Migrations completed successfully")

	changes, err := openFeed(cfg, db)
	if err != nil {
		log.Fatalf("Failed to open change feed: %v", err)
	}

	// Initialize repositories
	sessionRepo := repository.NewSessionRepository(db)
	participantRepo := repository.NewParticipantRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	presentationRepo := repository.NewPresentationRepository(db)
	teachingRepo := repository.NewTeachingRepository(db)

	// Initialize services
	tokens := credentials.NewTokenIssuer(cfg.JWTSecret, cfg.TeacherTokenTTL)
	generator := content.NewGenerator(cfg.LLMAPIURL, cfg.LLMAPIKey, cfg.LLMModel)
	if !generator.Enabled() {
		log.Println("Content generation not configured, card variants use templates")
	}

	sessionService := service.NewSessionService(sessionRepo, tokens, changes)
	participantService := service.NewParticipantService(participantRepo, sessionService, changes)
	feedbackService := service.NewFeedbackService(feedbackRepo, sessionService, changes)
	messageService := service.NewMessageService(messageRepo, sessionService, changes)
	presentationService := service.NewPresentationService(presentationRepo, sessionService, db, generator, changes)
	teachingService := service.NewTeachingService(teachingRepo, presentationService, changes)
	reportService := service.NewReportService(sessionService, participantRepo, feedbackRepo, messageRepo, presentationRepo, teachingRepo)

	emailService, err := service.NewEmailService(cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.AppBaseURL, cfg.Env == "development")
	if err != nil {
		log.Printf("Warning: session summaries disabled: %v", err)
	} else {
		sessionService.OnEnded(service.SummaryOnEnd(reportService, emailService, summaryTimeout))
	}

	// Initialize handlers
	limiter := security.NewRateLimiter(cfg.JoinRateLimit, time.Minute)
	defer limiter.Stop()

	h := &handlers.Handlers{
		Middleware:    handlers.NewMiddleware(tokens, limiter),
		Sessions:      handlers.NewSessionHandler(sessionService, participantService, feedbackService, messageService, reportService),
		Presentations: handlers.NewPresentationHandler(presentationService, teachingService),
		Stream:        handlers.NewStreamHandler(changes, db).WithClientTimings(cfg.PollInterval, cfg.ApprovalWait),
	}

	// Setup routes
	mux := http.NewServeMux()
	h.Register(mux)

	// Background reconciliation of half-ended sessions
	jobs := scheduler.New(reconcileTimeout)
	if err := jobs.AddReconcile(cfg.ReconcileSchedule, presentationService); err != nil {
		log.Fatalf("Failed to schedule reconciliation: %v", err)
	}
	jobs.Start()

	// Start server. WriteTimeout stays off the stream route through
	// http.ResponseController in the stream handler.
	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:         addr,
		Handler:      handlers.Logging(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost%s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Closing the feed first ends open streams so Shutdown is not held by them
	if err := changes.Close(); err != nil {
		log.Printf("Error closing change feed: %v", err)
	}
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	}
	jobs.Stop(ctx)

	log.Println("Server stopped")
}

// openFeed shares the feed through Postgres when the store is Postgres and
// falls back to an in-process hub otherwise
func openFeed(cfg *config.Config, db *database.DB) (feed, error) {
	switch strings.ToLower(cfg.DatabaseType) {
	case "postgres", "postgresql":
		f, err := realtime.NewPGFeed(cfg.DatabaseURL, db.DB, realtime.DefaultChannel, realtime.DefaultQueueSize)
		if err != nil {
			return nil, err
		}
		log.Println("Change feed shared through Postgres LISTEN/NOTIFY")
		return f, nil
	default:
		log.Println("Change feed running in-process")
		return realtime.NewHub(realtime.DefaultQueueSize), nil
	}
}
