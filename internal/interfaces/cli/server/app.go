package server

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/orris-inc/cellcore/internal/application/auth"
	"github.com/orris-inc/cellcore/internal/application/controller"
	"github.com/orris-inc/cellcore/internal/application/identity"
	"github.com/orris-inc/cellcore/internal/application/registration"
	"github.com/orris-inc/cellcore/internal/application/registry"
	"github.com/orris-inc/cellcore/internal/application/routing"
	"github.com/orris-inc/cellcore/internal/application/smsqueue"
	"github.com/orris-inc/cellcore/internal/domain/shared"
	"github.com/orris-inc/cellcore/internal/domain/shared/events"
	jwtauth "github.com/orris-inc/cellcore/internal/infrastructure/auth"
	"github.com/orris-inc/cellcore/internal/infrastructure/cache"
	"github.com/orris-inc/cellcore/internal/infrastructure/config"
	"github.com/orris-inc/cellcore/internal/infrastructure/database"
	"github.com/orris-inc/cellcore/internal/infrastructure/gateway"
	"github.com/orris-inc/cellcore/internal/infrastructure/pubsub"
	"github.com/orris-inc/cellcore/internal/infrastructure/repository"
	"github.com/orris-inc/cellcore/internal/infrastructure/scheduler"
	httpRouter "github.com/orris-inc/cellcore/internal/interfaces/http"
	"github.com/orris-inc/cellcore/internal/interfaces/http/handlers"
	"github.com/orris-inc/cellcore/internal/interfaces/http/middleware"
	"github.com/orris-inc/cellcore/internal/shared/alarm"
	"github.com/orris-inc/cellcore/internal/shared/logger"
)

const (
	eventBufferSize = 256
	shutdownTimeout = 30 * time.Second
)

// app owns every long-lived component of a running server.
type app struct {
	cfg       *config.Config
	redis     *redis.Client
	bus       *events.InMemoryEventDispatcher
	scheduler *scheduler.SchedulerManager
	bridge    *pubsub.RedisEventBridge
	server    *http.Server
	logger    logger.Interface
}

func newApp(ctx context.Context, cfg *config.Config, source controller.ConfigSource, log logger.Interface) (*app, error) {
	a := &app{cfg: cfg, logger: log}

	if cfg.Persistence.Driver == "redis" || cfg.Bridge.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	sections, err := a.openSections()
	if err != nil {
		a.close()
		return nil, err
	}

	alarms := alarm.NewBoard(log.Named("alarm"))
	gw := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.Timeout, alarms, log.Named("gateway"))

	store := registry.NewStore(sections, alarms, log.Named("registry"))
	allocator := identity.NewAllocator(store, sections, alarms, log.Named("identity"))
	engine := auth.NewEngine(store, gw, log.Named("auth"), auth.WithVectorTimeout(cfg.Gateway.Timeout))
	router := routing.NewResolver(store, routing.Settings{}, log.Named("routing"))
	queue := smsqueue.NewQueue(store, router, gw, smsqueue.Settings{}, log.Named("smsqueue"))
	candidates := routing.NewCandidateGenerator(rand.Uint64(), rand.Uint64())
	resolver := registration.NewResolver(store, engine, allocator, candidates, queue, registration.Settings{}, log.Named("registration"))

	ctrl := controller.New(controller.Components{
		Store:        store,
		Allocator:    allocator,
		Auth:         engine,
		Registration: resolver,
		Routing:      router,
		Queue:        queue,
	}, source, alarms, log.Named("controller"))
	if err := ctrl.Start(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to start controller: %w", err)
	}

	a.bus = events.NewInMemoryEventDispatcher(eventBufferSize, log.Named("bus"))
	if err := ctrl.Subscribe(a.bus); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to subscribe controller: %w", err)
	}

	a.scheduler, err = scheduler.NewSchedulerManager(log.Named("scheduler"))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err := a.scheduler.RegisterTickJob(cfg.Queue.TickInterval, a.bus); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to register tick job: %w", err)
	}
	ctrl.Ticker = a.scheduler

	if cfg.Bridge.Enabled {
		a.bridge = pubsub.NewRedisEventBridge(a.redis, a.bus, controller.DecodeEvent,
			cfg.Bridge.RequestChannel, cfg.Bridge.ReplyChannel, log.Named("bridge"))
	}

	var jwtService *jwtauth.JWTService
	if cfg.Admin.JWTSecret != "" {
		jwtService = jwtauth.NewJWTService(cfg.Admin.JWTSecret)
	} else {
		log.Warnw("admin secret not set, admin surface is unauthenticated")
	}

	admin := handlers.NewAdminHandler(store, queue, alarms, a.bus, controller.DecodeEvent, log.Named("admin"))
	httpRoutes := httpRouter.NewRouter(
		admin,
		middleware.NewAuthMiddleware(jwtService, log),
		middleware.NewRateLimiter(a.redis, cfg.Persistence.KeyPrefix, cfg.Admin.EventLimit, cfg.Admin.EventWindow),
		cfg.Admin.AllowedOrigins,
		log.Named("http"),
	)
	httpRoutes.SetupRoutes()

	a.server = &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      httpRoutes.GetEngine(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

// openSections picks the persistence backend for registrations and the
// identity counter.
func (a *app) openSections() (shared.SectionStore, error) {
	switch a.cfg.Persistence.Driver {
	case "redis":
		return cache.NewRedisSectionStore(a.redis, a.cfg.Persistence.KeyPrefix), nil
	case "sqlite", "mysql":
		dbCfg := a.cfg.Database
		dbCfg.Driver = a.cfg.Persistence.Driver
		if err := database.Init(&dbCfg); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		repo := repository.NewSectionStoreRepository(database.Get(), a.logger.Named("repository"))
		if err := repo.Migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate section store: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported persistence driver %q", a.cfg.Persistence.Driver)
	}
}

// run serves until ctx is cancelled or a component fails.
func (a *app) run(ctx context.Context) error {
	if err := a.bus.Start(); err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}
	a.scheduler.Start()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Infow("http server starting", "address", a.server.Addr, "mode", a.cfg.Server.Mode)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Infow("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	if a.bridge != nil {
		g.Go(func() error {
			a.logger.Infow("event bridge starting",
				"request_channel", a.cfg.Bridge.RequestChannel,
				"instance_id", a.bridge.InstanceID())
			if err := a.bridge.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

// close releases everything newApp acquired. Safe on a partial app.
func (a *app) close() {
	if a.scheduler != nil {
		if err := a.scheduler.Stop(); err != nil {
			a.logger.Errorw("failed to stop scheduler", "error", err)
		}
	}
	if a.bus != nil {
		if err := a.bus.Stop(); err != nil && !errors.Is(err, events.ErrNotRunning) {
			a.logger.Errorw("failed to stop event bus", "error", err)
		}
	}
	if err := database.Close(); err != nil {
		a.logger.Errorw("failed to close database", "error", err)
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Errorw("failed to close redis", "error", err)
		}
	}
}
