package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"regflow/internal/localization"
	notifhandler "regflow/internal/notification/handler"
	notifmetrics "regflow/internal/notification/metrics"
	notifpublisher "regflow/internal/notification/publisher"
	notifservice "regflow/internal/notification/service"
	notifstore "regflow/internal/notification/store"
	"regflow/internal/platform/config"
	"regflow/internal/platform/httpserver"
	"regflow/internal/platform/jwt"
	"regflow/internal/platform/kafka"
	"regflow/internal/platform/logger"
	"regflow/internal/platform/metrics"
	"regflow/internal/platform/migrations"
	"regflow/internal/platform/postgres"
	"regflow/internal/platform/redis"
	rbaccache "regflow/internal/rbac/cache"
	rbachandler "regflow/internal/rbac/handler"
	rbacmetrics "regflow/internal/rbac/metrics"
	rbacservice "regflow/internal/rbac/service"
	rbacstore "regflow/internal/rbac/store"
	reghandler "regflow/internal/registration/handler"
	regmetrics "regflow/internal/registration/metrics"
	regservice "regflow/internal/registration/service"
	regstore "regflow/internal/registration/store"
	"regflow/pkg/platform/audit"
	auditpublisher "regflow/pkg/platform/audit/publisher"
	auditmemory "regflow/pkg/platform/audit/store/memory"
	auditpostgres "regflow/pkg/platform/audit/store/postgres"
	"regflow/pkg/platform/httputil"
	"regflow/pkg/platform/middleware/auth"
	langmw "regflow/pkg/platform/middleware/language"
	"regflow/pkg/platform/middleware/metadata"
	"regflow/pkg/platform/middleware/requesttime"
)

const auditBufferSize = 1024

// main wires every dependency once and runs the HTTP server until SIGINT or
// SIGTERM. Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("regflow stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("regflow stopped")
}

type stores struct {
	rbac          rbacservice.Store
	registrations regservice.Store
	notifications notifservice.Store
	audit         audit.Store
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (*stores, *sql.DB, error) {
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if db == nil {
		log.WarnContext(ctx, "DATABASE_URL not set; using in-memory stores")
		return &stores{
			rbac:          rbacstore.NewInMemory(),
			registrations: regstore.NewInMemory(),
			notifications: notifstore.NewInMemory(),
			audit:         auditmemory.NewInMemoryStore(),
		}, nil, nil
	}
	if err := migrations.Up(db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return &stores{
		rbac:          rbacstore.NewPostgres(db),
		registrations: regstore.NewPostgres(db),
		notifications: notifstore.NewPostgres(db),
		audit:         auditpostgres.New(db),
	}, db, nil
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	st, db, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	fallback, err := language.Parse(cfg.DefaultLanguage)
	if err != nil {
		return fmt.Errorf("parse DEFAULT_LANGUAGE: %w", err)
	}
	catalog, err := localization.New(fallback)
	if err != nil {
		return err
	}

	auditor := auditpublisher.NewPublisher(st.audit,
		auditpublisher.WithAsyncBuffer(auditBufferSize),
		auditpublisher.WithLogger(log),
		auditpublisher.WithLostEvents(auditpublisher.NewLostEventsCounter(prometheus.DefaultRegisterer)),
	)
	defer auditor.Close()

	rbacOpts := []rbacservice.Option{
		rbacservice.WithLogger(log),
		rbacservice.WithMetrics(rbacmetrics.New()),
		rbacservice.WithAuditEmitter(auditor),
		rbacservice.WithTracer(otel.Tracer("regflow/rbac")),
	}
	redisClient, err := redis.Open(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		rbacOpts = append(rbacOpts, rbacservice.WithCache(rbaccache.NewRedisDecisionCache(redisClient.Client, cfg.AuthzCacheTTL)))
	}
	perms := rbacservice.NewPermissionService(st.rbac, rbacOpts...)
	access := rbacservice.NewAccessService(st.rbac, rbacOpts...)
	if err := perms.EnsureCatalog(ctx); err != nil {
		return fmt.Errorf("seed permission catalog: %w", err)
	}

	notifMetrics := notifmetrics.New()
	publisher, closePublisher, err := notificationPublisher(ctx, cfg, log, notifMetrics)
	if err != nil {
		return err
	}
	defer closePublisher()
	notifications := notifservice.New(st.notifications, publisher, catalog,
		notifservice.WithLogger(log),
		notifservice.WithMetrics(notifMetrics),
		notifservice.WithLanguage(fallback),
	)

	regOpts := []regservice.Option{
		regservice.WithLogger(log),
		regservice.WithMetrics(regmetrics.New()),
		regservice.WithAuditEmitter(auditor),
		regservice.WithNotifier(notifications),
		regservice.WithTracer(otel.Tracer("regflow/registration")),
	}
	registrations := regservice.NewRegistrationService(st.registrations, regOpts...)
	wf := regservice.NewWorkflowService(st.registrations, perms, regOpts...)

	tokens := jwt.NewService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer)
	rbacHTTP := rbachandler.New(perms, access, tokens, cfg.Auth.TokenTTL, log,
		rbachandler.WithAuditReader(st.audit),
		rbachandler.WithAuditEmitter(auditor),
		rbachandler.WithLocalizer(catalog),
	)
	regHTTP := reghandler.New(registrations, wf, access, log,
		reghandler.WithAuditEmitter(auditor),
		reghandler.WithLocalizer(catalog),
	)
	notifHTTP := notifhandler.New(notifications, log, catalog)

	httpMetrics := metrics.New()
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(chimw.Recoverer)
	r.Use(requesttime.Middleware(nil))
	r.Use(langmw.Middleware(localization.Supported))
	r.Use(httpMetrics.Middleware)

	r.Get("/healthz", health(db, redisClient))
	r.Handle("/metrics", metrics.Handler())
	rbacHTTP.RegisterPublic(r)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens, log))
		rbacHTTP.Register(r)
		regHTTP.Register(r)
		notifHTTP.Register(r)
	})

	srv := httpserver.New(cfg.Server, r)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	return g.Wait()
}

// notificationPublisher returns the Kafka publisher when brokers are
// configured and the log publisher otherwise.
func notificationPublisher(ctx context.Context, cfg config.Config, log *slog.Logger, m *notifmetrics.Metrics) (notifservice.Publisher, func(), error) {
	client, err := kafka.NewClient(cfg.Kafka)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.WarnContext(ctx, "KAFKA_BROKERS not set; notifications are logged only")
		return notifpublisher.NewLog(log), func() {}, nil
	}
	if err := kafka.EnsureTopics(ctx, client, log, cfg.Kafka.NotificationTopic); err != nil {
		client.Close()
		return nil, nil, err
	}
	return notifpublisher.NewKafka(client, cfg.Kafka.NotificationTopic,
		notifpublisher.WithLogger(log),
		notifpublisher.WithMetrics(m),
	), client.Close, nil
}

func health(db *sql.DB, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				status["status"], status["database"], code = "degraded", "unavailable", http.StatusServiceUnavailable
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				status["status"], status["redis"], code = "degraded", "unavailable", http.StatusServiceUnavailable
			}
		}
		httputil.WriteJSON(w, code, status)
	}
}
