package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arklim/tollgate/internal/cache"
	"github.com/arklim/tollgate/internal/core/port"
	"github.com/arklim/tollgate/internal/infra/config"
	"github.com/arklim/tollgate/internal/infra/database"
	"github.com/arklim/tollgate/internal/infra/idp"
	kafkainfra "github.com/arklim/tollgate/internal/infra/kafka"
	"github.com/arklim/tollgate/internal/infra/logger"
	redisinfra "github.com/arklim/tollgate/internal/infra/redis"
	"github.com/arklim/tollgate/internal/infra/security"
	"github.com/arklim/tollgate/internal/infra/telemetry"
	postgresrepo "github.com/arklim/tollgate/internal/repository/postgres"
	redisrepo "github.com/arklim/tollgate/internal/repository/redis"
	"github.com/arklim/tollgate/internal/transport/http/middleware"
	"github.com/arklim/tollgate/internal/transport/http/routes"
	"github.com/arklim/tollgate/internal/usecase"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
	audit  port.AuditPublisher
	tracer *telemetry.TracerProvider
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tracer, err := telemetry.NewTracerProvider(ctx, telemetry.TracingConfig{
		Enabled:      cfg.Telemetry.TracingEnabled,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Environment:  cfg.App.Env,
		SampleRatio:  cfg.Telemetry.SamplingRate,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	if err := postgresrepo.InitSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	jwtManager, err := security.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTL)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init jwt manager: %w", err)
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)
	sessionStore := redisrepo.NewSessionStore(redisClient.Client(), "sess")

	var auditPublisher port.AuditPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			auditPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			auditPublisher = kafkainfra.NewAuditPublisher(producer, log)
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		auditPublisher = kafkainfra.NewStubPublisher(log)
	}

	var provider port.IdentityProvider
	if cfg.Provider.BaseURL != "" {
		provider = idp.NewClient(cfg.Provider, log)
	} else {
		log.Info("identity provider not configured, sessions expire terminally")
		provider = rejectingProvider{}
	}

	sessionService := usecase.NewSessionService(
		sessionStore,
		provider,
		cfg.Session.Duration,
		cfg.Session.StoreTTL,
		log,
	).WithMetrics(metrics)

	identityService := usecase.NewIdentityService(repos.Identities, repos.Ledger, sessionService, jwtManager, log)

	debitController := usecase.NewDebitController(repos.Ledger, log).
		WithRetryPolicy(cfg.Engine.DebitMaxAttempts, cfg.Engine.DebitBaseDelay).
		WithMetrics(metrics)

	dispatcher := usecase.NewDispatcher(
		repos.Ledger,
		debitController,
		repos.Idempotency,
		cache.NewLRU(cfg.Engine.CacheCapacity),
		auditPublisher,
		log,
	).WithMetrics(metrics)

	if err := registerBuiltinOperations(dispatcher); err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("register operations: %w", err)
	}

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitStore(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: "tollgate:rate-limit",
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		JWTManager:  jwtManager,
		HTTPMetrics: httpMetrics,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Identities: identityService,
			Sessions:   sessionService,
			Dispatcher: dispatcher,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
		audit:  auditPublisher,
		tracer: tracer,
	}, nil
}

// rejectingProvider stands in when no upstream provider is configured: every
// refresh attempt is rejected, so expired sessions are terminal.
type rejectingProvider struct{}

func (rejectingProvider) RefreshSession(context.Context, string) (port.ProviderTokens, error) {
	return port.ProviderTokens{}, port.ErrRefreshRejected
}

// registerBuiltinOperations wires the stock operations. Deployments extend
// the registry before starting the server.
func registerBuiltinOperations(d *usecase.Dispatcher) error {
	ops := []usecase.Operation{
		{
			Name: "echo",
			Cost: 1,
			Run: func(_ context.Context, _ *usecase.Executor, input json.RawMessage) (json.RawMessage, error) {
				if len(input) == 0 {
					return json.RawMessage(`null`), nil
				}
				return input, nil
			},
		},
		{
			Name: "digest",
			Cost: 2,
			Run: func(_ context.Context, _ *usecase.Executor, input json.RawMessage) (json.RawMessage, error) {
				payload, err := json.Marshal(map[string]string{"digest": security.Digest(input)})
				if err != nil {
					return nil, fmt.Errorf("marshal digest: %w", err)
				}
				return payload, nil
			},
		},
	}

	for _, op := range ops {
		if err := d.RegisterOperation(op); err != nil {
			return err
		}
	}
	return nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.audit != nil {
			if err := a.audit.Close(); err != nil {
				a.logger.Warn("close audit publisher", zap.Error(err))
			}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("shutdown tracer", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting gateway API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
