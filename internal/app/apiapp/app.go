package apiapp

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zerebubuth/maproulette2/internal/config"
	"github.com/zerebubuth/maproulette2/internal/jobs/cleanup"
	pgrepo "github.com/zerebubuth/maproulette2/internal/repo/postgres"
	redrepo "github.com/zerebubuth/maproulette2/internal/repo/redis"
	authsvc "github.com/zerebubuth/maproulette2/internal/services/auth"
	ratesvc "github.com/zerebubuth/maproulette2/internal/services/rate"
	reviewsvc "github.com/zerebubuth/maproulette2/internal/services/review"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	cleanupJob *cleanup.Job
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, errors.New("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	reviewRepo := pgrepo.NewReviewRepo(pool)
	userRepo := pgrepo.NewUserRepo(pool)
	taskCacheRepo := redrepo.NewTaskCacheRepo(redisClient, cfg.Review.CacheTTL)
	taskLockRepo := redrepo.NewTaskLockRepo(redisClient)
	notificationRepo := redrepo.NewNotificationRepo(redisClient)

	jwtManager := authsvc.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTAccessTTL)

	claimLimiter := ratesvc.NewLimiter(redrepo.NewRateRepo(redisClient), cfg.Review.ClaimRatePerMinute)

	reviewService := reviewsvc.NewService(reviewRepo, userRepo, log)
	reviewService.AttachCache(taskCacheRepo)
	reviewService.AttachLocker(taskLockRepo)
	reviewService.AttachNotifier(notificationRepo)
	reviewService.AttachLimiter(claimLimiter)

	cleanupJob := cleanup.NewStaleClaimJob(reviewRepo, cfg.Review.ClaimTTL, log)

	RegisterRoutes(r, Dependencies{
		ReviewService: reviewService,
		JWTManager:    jwtManager,
		Logger:        log,
		Config:        cfg,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		cleanupJob: cleanupJob,
		httpRouter: r,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	if a.postgres != nil {
		go a.cleanupJob.Start(ctx, a.cfg.Review.CleanupInterval)
	}

	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
