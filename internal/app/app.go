package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/nuntius-io/nuntius/config"
	"github.com/nuntius-io/nuntius/internal/database"
	"github.com/nuntius-io/nuntius/internal/domain"
	httpHandler "github.com/nuntius-io/nuntius/internal/http"
	"github.com/nuntius-io/nuntius/internal/repository"
	"github.com/nuntius-io/nuntius/internal/service"
	"github.com/nuntius-io/nuntius/internal/service/mailer"
	"github.com/nuntius-io/nuntius/pkg/logger"
	pkgmailer "github.com/nuntius-io/nuntius/pkg/mailer"
)

// App wires configuration, database, repositories, services and HTTP
// handlers together. The api binary runs its HTTP server, the worker binary
// runs its supervisor; both share the same initialization.
type App struct {
	config *config.Config
	logger logger.Logger
	db     *sql.DB

	campaignRepo   domain.CampaignRepository
	sendRecordRepo domain.SendRecordRepository
	subscriberRepo domain.SubscriberRepository
	segmentRepo    domain.SegmentRepository
	eventRepo      domain.WebhookEventRepository

	renderer        *service.Renderer
	campaignService *service.CampaignService
	eventService    *service.EventService

	mux    *http.ServeMux
	server *http.Server
}

// AppOption defines a functional option for configuring the App
type AppOption func(*App)

// WithMockDB configures the app to use an already opened database
func WithMockDB(db *sql.DB) AppOption {
	return func(a *App) {
		a.db = db
	}
}

// WithLogger sets a custom logger
func WithLogger(log logger.Logger) AppOption {
	return func(a *App) {
		a.logger = log
	}
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config, opts ...AppOption) *App {
	a := &App{
		config: cfg,
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.NewLoggerWithLevel(cfg.LogLevel)
	}
	return a
}

// Initialize connects the database, applies the schema and builds the
// repository and service graph.
func (a *App) Initialize() error {
	if err := a.initDB(); err != nil {
		return err
	}
	if err := a.initRepositories(); err != nil {
		return err
	}
	a.initServices()
	a.initHandlers()
	return nil
}

func (a *App) initDB() error {
	if a.db == nil {
		db, err := sql.Open("postgres", a.config.Database.ConnectionString())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			return fmt.Errorf("failed to reach database: %w", err)
		}
		a.db = db
	}
	if err := database.InitializeDatabase(a.db); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return nil
}

func (a *App) initRepositories() error {
	a.campaignRepo = repository.NewCampaignRepository(a.db)
	a.sendRecordRepo = repository.NewSendRecordRepository(a.db)
	a.segmentRepo = repository.NewSegmentRepository(a.db)
	a.eventRepo = repository.NewWebhookEventRepository(a.db)

	subscriberRepo, err := domain.NewSubscriberRepository(a.config.Sending.SubscriberModel, a.db)
	if err != nil {
		return err
	}
	a.subscriberRepo = subscriberRepo
	return nil
}

func (a *App) initServices() {
	a.renderer = service.NewRenderer(a.config.PublicURL)
	a.campaignService = service.NewCampaignService(a.campaignRepo, a.logger)

	reputation := service.NewReputationService(
		a.sendRecordRepo, a.subscriberRepo, a.config.Bounce, a.logger)
	a.eventService = service.NewEventService(
		a.sendRecordRepo, a.eventRepo, reputation,
		a.config.Webhook.MaxEventsPerSecond, a.logger)
}

func (a *App) initHandlers() {
	httpHandler.NewTrackingHandler(a.sendRecordRepo, a.campaignRepo, a.logger).RegisterRoutes(a.mux)
	httpHandler.NewWebhookEventHandler(a.eventService, a.logger).RegisterRoutes(a.mux)
	httpHandler.NewCampaignHandler(a.campaignService, a.logger).RegisterRoutes(a.mux)

	version := a.config.Version
	a.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","version":%q}`, version)
	})
}

// Start runs the HTTP server until it fails or Shutdown is called.
func (a *App) Start() error {
	addr := fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port)
	a.server = &http.Server{
		Addr:              addr,
		Handler:           a.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.logger.WithField("addr", addr).Info("HTTP server listening")

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// NewSupervisor builds the delivery engine on top of the app's graph.
func (a *App) NewSupervisor() *mailer.Supervisor {
	newBackend := func() (pkgmailer.Backend, error) {
		return pkgmailer.NewBackend(a.config.Sending.EmailBackend, &pkgmailer.Config{
			SMTPHost:     a.config.SMTP.Host,
			SMTPPort:     a.config.SMTP.Port,
			SMTPUsername: a.config.SMTP.Username,
			SMTPPassword: a.config.SMTP.Password,
			SMTPUseTLS:   a.config.SMTP.UseTLS,
		})
	}
	return mailer.NewSupervisor(a.config.Sending,
		a.campaignRepo, a.sendRecordRepo, a.subscriberRepo, a.segmentRepo,
		a.renderer, newBackend, a.logger)
}

// Shutdown stops the HTTP server and closes the database.
func (a *App) Shutdown(ctx context.Context) error {
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			return err
		}
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Mux exposes the route table, mainly for tests.
func (a *App) Mux() *http.ServeMux { return a.mux }

// DB exposes the database handle, mainly for tests.
func (a *App) DB() *sql.DB { return a.db }
