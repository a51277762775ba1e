package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/sentra-io/sentra-backend/internal/api"
	"github.com/sentra-io/sentra-backend/internal/audit"
	"github.com/sentra-io/sentra-backend/internal/authz"
	"github.com/sentra-io/sentra-backend/internal/config"
	"github.com/sentra-io/sentra-backend/internal/database"
	"github.com/sentra-io/sentra-backend/internal/keyauth"
	"github.com/sentra-io/sentra-backend/internal/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	db, err := database.Connect(cfg.DSN())
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	log.Println("Connected to the database")

	// Roles are loaded once; refreshing them is a restart.
	var roles []authz.Role
	if cfg.RolesFile != "" {
		roles, err = authz.LoadRoles(cfg.RolesFile)
		if err != nil {
			log.Fatalf("FATAL: %v", err)
		}
		log.Printf("Loaded %d roles from %s", len(roles), cfg.RolesFile)
	}
	evaluator := authz.NewEvaluator(roles)

	master := []byte(cfg.AuthSecret)
	keys := keyauth.NewPostgresKeyStore(db)
	authn := keyauth.NewAuthenticator(keys, master)

	var counters ratelimit.CounterStore
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		counters = ratelimit.NewRedisStore(rc)
		log.Println("Rate limiting via Redis at", cfg.RedisAddr)
	} else {
		counters = ratelimit.NewMemoryStore()
	}
	limiter := ratelimit.NewLimiter(counters, cfg.RateLimitWindow, cfg.RateLimitDefault, cfg.RateLimitRoutes, cfg.PlanMultipliers)

	sink, err := buildSink(cfg, db)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	recorder := audit.NewRecorder(sink, cfg.AuditQueueSize)
	sanitizer := audit.NewSanitizer(cfg.AuditRedact, cfg.AuditMaxDepth, cfg.AuditMaxBody)
	retention, err := audit.StartRetention(sink, cfg.AuditRetentionDays, cfg.AuditCleanupCron)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	server := api.NewServer(api.Deps{
		Config:    cfg,
		Auth:      authn,
		Evaluator: evaluator,
		Limiter:   limiter,
		Recorder:  recorder,
		Sink:      sink,
		Sanitizer: sanitizer,
		Keys:      keys,
		Cases:     database.NewPostgresCaseRepo(db),
		Master:    master,
	})

	var tracing []gin.HandlerFunc
	if shutdown, ok := api.SetupTracing(cfg); ok {
		defer shutdown(context.Background())
		tracing = append(tracing, otelgin.Middleware("sentra-backend"))
	}
	router := api.BuildRouter(server, db, tracing...)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		log.Println("Starting sentra backend server on :" + cfg.Port + "...")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: %v", err)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	log.Println("signal received, shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	retention.Stop()
	if err := recorder.Close(ctx); err != nil {
		log.Printf("audit recorder drain: %v", err)
	}
}

func buildSink(cfg *config.Config, db *sqlx.DB) (audit.Sink, error) {
	switch strings.ToLower(cfg.AuditSink) {
	case "postgres":
		return audit.NewPostgresSink(db), nil
	case "file":
		return audit.NewFileSink(cfg.AuditFile, cfg.AuditRetentionDays), nil
	case "nats":
		url := cfg.NATSURL
		if url == "" {
			url = nats.DefaultURL
		}
		return audit.NewNATSSink(url, cfg.AuditSubject)
	default:
		return audit.NewMemorySink(), nil
	}
}
