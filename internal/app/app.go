package app

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mx-space/newsletter/internal/config"
	"github.com/mx-space/newsletter/internal/database"
	"github.com/mx-space/newsletter/internal/middleware"
	"github.com/mx-space/newsletter/internal/modules/newsletter"
	"github.com/mx-space/newsletter/internal/pkg/flash"
	"github.com/mx-space/newsletter/internal/pkg/i18n"
	"github.com/mx-space/newsletter/internal/pkg/mail"
	pkgredis "github.com/mx-space/newsletter/internal/pkg/redis"
)

// App holds all application dependencies.
type App struct {
	cfg     *config.AppConfig
	router  *gin.Engine
	db      *gorm.DB
	rc      *pkgredis.Client
	logger  *zap.Logger
	handler *newsletter.Handler
	started time.Time
}

// New initializes the application: config → i18n → DB → Redis → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := applyRuntimeSettings(cfg, logger); err != nil {
		return nil, err
	}

	bundle, err := i18n.Load(cfg.Newsletter.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("i18n: %w", err)
	}

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	var (
		rc      *pkgredis.Client
		flashes flash.Store
	)
	if cfg.Redis.Enable {
		rc, err = pkgredis.Connect(cfg.RedisURL)
		if err != nil {
			if cerr := database.Close(db); cerr != nil {
				logger.Warn("database close failed", zap.Error(cerr))
			}
			return nil, fmt.Errorf("redis: %w", err)
		}
		flashes = flash.NewRedisStore(rc, flash.DefaultTTL)
	} else {
		logger.Info("redis disabled, keeping flash messages in memory")
		flashes = flash.NewMemoryStore(flash.DefaultTTL)
	}

	sender := mail.New(mail.BuildMailConfig(cfg.Mail))
	var notifier newsletter.Notifier
	if sender.Enabled() {
		notifier = newsletter.NewMailNotifier(sender, cfg.Mail.Admin, cfg.Mail.AdminName, cfg.Mail.Subject)
	}
	if notifier == nil {
		logger.Warn("unsubscribe notices disabled, set mail.enable and mail.admin to receive them")
	}

	store := newsletter.NewGormStore(db)
	svc := newsletter.NewService(store, notifier, logger.Named("newsletter"))
	handler := newsletter.NewHandler(svc, store, flashes, bundle, cfg.Newsletter, logger.Named("newsletter"))

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger, metricsPath))
	router.Use(cors.New(corsConfig(cfg)))

	app := &App{
		cfg:     cfg,
		router:  router,
		db:      db,
		rc:      rc,
		logger:  logger,
		handler: handler,
		started: time.Now(),
	}
	app.registerRoutes()

	return app, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown releases database and Redis connections.
func (a *App) Shutdown() {
	if a.rc != nil {
		if err := a.rc.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("database close failed", zap.Error(err))
	}
}
