package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/limamedic/clinic/internal/config"
	"github.com/limamedic/clinic/internal/domain/billing"
	"github.com/limamedic/clinic/internal/domain/identity"
	"github.com/limamedic/clinic/internal/domain/portal"
	"github.com/limamedic/clinic/internal/domain/scheduling"
	"github.com/limamedic/clinic/internal/platform/auth"
	"github.com/limamedic/clinic/internal/platform/blobstore"
	"github.com/limamedic/clinic/internal/platform/db"
	"github.com/limamedic/clinic/internal/platform/middleware"
	"github.com/limamedic/clinic/internal/platform/notification"
	"github.com/limamedic/clinic/internal/platform/qrcode"
	"github.com/limamedic/clinic/internal/platform/receipt"
	"github.com/limamedic/clinic/internal/platform/session"
	"github.com/limamedic/clinic/internal/platform/tabular"
	"github.com/limamedic/clinic/internal/platform/websocket"
)

const qrSize = 256

// app holds the wired services behind the HTTP surface.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	backend  *backend
	store    *tabular.Buffered
	sessions session.Store
	hub      *websocket.Hub

	identity   *identity.Service
	scheduling *scheduling.Service
	billing    *billing.Service
	portal     *portal.Service
}

func newIdentityService(store tabular.Store) *identity.Service {
	return identity.NewService(identity.NewUserRepo(store), identity.NewDoctorRepo(store))
}

func newNotifier(cfg *config.Config, logger zerolog.Logger) notification.Notifier {
	var sender notification.EmailSender = notification.NewLogSender(logger)
	if cfg.MailEnabled() {
		sender = notification.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
	}
	return notification.NewMailer(sender, notification.NewTemplates())
}

// newBlobStore keeps generated PDFs and QR images under ASSET_DIR. When the
// directory cannot be created the assets live in memory until restart.
func newBlobStore(cfg *config.Config, logger zerolog.Logger) blobstore.BlobStore {
	if cfg.StoreBackend == config.BackendMemory {
		return blobstore.NewInMemoryBlobStore()
	}
	ds, err := blobstore.NewDiskStore(cfg.AssetDir)
	if err != nil {
		logger.Warn().Err(err).Str("dir", cfg.AssetDir).Msg("asset dir unavailable, keeping receipts in memory")
		return blobstore.NewInMemoryBlobStore()
	}
	return ds
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, b *backend, sessions session.Store) (*app, error) {
	store := tabular.NewBuffered(b.store, cfg.WriteBufferCapacity, logger)
	blobs := newBlobStore(cfg, logger)
	hub := websocket.NewHub(logger)

	identitySvc := newIdentityService(store)
	schedulingSvc := scheduling.NewService(
		scheduling.NewAppointmentRepo(store),
		identitySvc,
		scheduling.Config{
			Brand:                cfg.ClinicBrand,
			SlotMinutes:          cfg.SlotMinutes,
			PreventDoubleBooking: cfg.PreventDoubleBook,
		},
		logger,
		scheduling.WithQRAssets(qrcode.NewPNGEncoder(qrSize), blobs),
		scheduling.WithPublisher(hub),
		scheduling.WithNotifier(newNotifier(cfg, logger), identitySvc),
	)
	if err := schedulingSvc.SeedIDs(ctx); err != nil {
		logger.Warn().Err(err).Msg("appointment ids not seeded from store")
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		backend:    b,
		store:      store,
		sessions:   sessions,
		hub:        hub,
		identity:   identitySvc,
		scheduling: schedulingSvc,
		billing: billing.NewService(schedulingSvc, identitySvc,
			receipt.NewPDFRenderer(cfg.ClinicBrand, cfg.ClinicAddress), blobs, logger),
		portal: portal.NewService(schedulingSvc, identitySvc, logger),
	}, nil
}

// server builds the HTTP server: global middleware, sessions, and every
// domain's routes on the root group.
func (a *app) server() *echo.Echo {
	cfg := a.cfg
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost},
		AllowHeaders:     []string{"Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	// Sessions, then the logged-in user on the request context
	manager := session.NewManager(a.sessions, session.NewCodec(cfg.SessionSecret, cfg.ClinicBrand), cfg.SessionTTL, cfg.IsProduction(), a.logger)
	e.Use(manager.Middleware())
	e.Use(auth.SessionMiddleware())

	// Rate limiting, per user once logged in
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	e.Use(middleware.RateLimit(rateLimitCfg))

	// Health check
	e.GET("/health", db.HealthHandler(db.HealthOptions{
		Backend:   a.backend.name,
		Store:     a.store,
		Pool:      a.backend.pool,
		Pending:   a.store.Pending,
		Listeners: a.hub.ClientCount,
	}))

	root := e.Group("")
	identity.NewHandler(a.identity, a.logger).RegisterRoutes(root, middleware.RateLimit(middleware.LoginRateLimitConfig()))
	scheduling.NewHandler(a.scheduling, a.identity).RegisterRoutes(root)
	billing.NewHandler(a.billing).RegisterRoutes(root)
	portal.NewHandler(a.portal).RegisterRoutes(root)

	// Live appointment feed
	websocket.NewWebSocketHandler(a.hub, a.feedTopics).RegisterRoutes(root, auth.RequireLogin())

	return e
}

// feedTopics decides what a logged-in user may follow on /ws. Receptionists
// see every appointment, doctors their own schedule and patients their own
// bookings.
func (a *app) feedTopics(c echo.Context) []string {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return []string{}
	}
	role, err := identity.ParseRole(p.Role)
	if err != nil {
		return []string{}
	}
	switch role {
	case identity.RoleReceptionist:
		return []string{websocket.TopicAppointments}
	case identity.RoleDoctor:
		doc, err := a.identity.DoctorByUsername(c.Request().Context(), p.Username)
		if err != nil {
			return []string{}
		}
		return []string{websocket.DoctorTopic(strconv.FormatInt(doc.ID, 10))}
	case identity.RolePatient:
		return []string{websocket.PatientTopic(p.Username)}
	default:
		return []string{}
	}
}
