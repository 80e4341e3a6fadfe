package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"

	"github.com/pickuphub/pickup-backend/external/notify"
	"github.com/pickuphub/pickup-backend/external/rolehub"
	"github.com/pickuphub/pickup-backend/internal/config"
	"github.com/pickuphub/pickup-backend/internal/domain/community"
	"github.com/pickuphub/pickup-backend/internal/domain/pickup"
	"github.com/pickuphub/pickup-backend/internal/domain/player"
	"github.com/pickuphub/pickup-backend/internal/infrastructure/repository/cached"
	"github.com/pickuphub/pickup-backend/internal/infrastructure/repository/memory"
	"github.com/pickuphub/pickup-backend/internal/infrastructure/repository/postgres"
	"github.com/pickuphub/pickup-backend/internal/interfaces/httpapi"
	"github.com/pickuphub/pickup-backend/internal/platform/cache"
	"github.com/pickuphub/pickup-backend/internal/platform/logging"
	"github.com/pickuphub/pickup-backend/internal/platform/resilience"
	"github.com/pickuphub/pickup-backend/internal/usecase"
)

// App bundles the built server with the resources that need closing on
// shutdown.
type App struct {
	Server   *http.Server
	db       *sqlx.DB
	notifier *notify.Publisher
	logger   *logging.Logger
}

func Build(cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}

	if cfg.HTTPAddr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	var (
		db            *sqlx.DB
		pickupRepo    pickup.Repository
		playerStore   player.Store
		communityRepo community.Repository
	)
	if strings.TrimSpace(cfg.DBURL) != "" {
		dsn := NormalizeDBURL(cfg.DBURL, cfg.DBDisablePreparedBinary)
		conn, err := otelsqlx.Open("postgres", dsn,
			otelsql.WithDBSystem("postgresql"),
			otelsql.WithDBName(dbNameFromURL(cfg.DBURL)),
			otelsql.WithQueryFormatter(formatDBQueryForTrace),
		)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db = conn
		pickupRepo = postgres.NewPickupRepository(db)
		playerStore = postgres.NewPlayerRepository(db)
		communityRepo = postgres.NewCommunityRepository(db)
		logger.Info("using postgres repositories", "db", dbNameFromURL(cfg.DBURL))
	} else {
		pickupRepo = memory.NewPickupRepository(memory.SeedConfigs())
		playerStore = memory.NewPlayerRepository()
		communityRepo = memory.NewCommunityRepository(memory.SeedCommunities())
		logger.Info("using in-memory repositories with seed data")
	}

	if cfg.CacheEnabled {
		communityRepo = cached.NewCommunityRepository(communityRepo, cache.NewStore(cfg.CacheTTL))
	}

	var notifier usecase.Notifier = usecase.NopNotifier{}
	var publisher *notify.Publisher
	if cfg.NotifyEnabled {
		built, err := notify.NewPublisher(notify.PublisherConfig{
			WebhookURL: cfg.NotifyWebhookURL,
			Token:      cfg.NotifyToken,
			Timeout:    cfg.NotifyTimeout,
			Workers:    cfg.NotifyWorkers,
			Logger:     logger,
			CircuitBreaker: resilience.CircuitBreakerConfig{
				Enabled:          cfg.NotifyCircuitEnabled,
				FailureThreshold: cfg.NotifyCircuitFailureCount,
				OpenTimeout:      cfg.NotifyCircuitOpenTimeout,
				HalfOpenMaxReq:   cfg.NotifyCircuitHalfOpenMaxReq,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("build notify publisher: %w", err)
		}
		publisher = built
		notifier = built
	}

	roles := rolehub.NewClient(rolehub.ClientConfig{
		BaseURL: cfg.RoleHubBaseURL,
		Token:   cfg.RoleHubToken,
		Timeout: cfg.RoleHubTimeout,
		Logger:  logger,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.RoleHubCircuitEnabled,
			FailureThreshold: cfg.RoleHubCircuitFailureCount,
			OpenTimeout:      cfg.RoleHubCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.RoleHubCircuitHalfOpenMaxReq,
		},
	})

	stageSvc := usecase.NewStageService(pickupRepo, playerStore, notifier, logger)
	queueSvc := usecase.NewQueueService(pickupRepo, playerStore, communityRepo, roles, stageSvc, notifier, logger)
	outcomeSvc := usecase.NewOutcomeService(pickupRepo, playerStore, communityRepo, stageSvc, notifier, logger)
	subSvc := usecase.NewSubService(pickupRepo, playerStore, communityRepo, roles, notifier, logger)
	statusSvc := usecase.NewStatusService(pickupRepo, communityRepo, logger)
	guardSvc := usecase.NewGuardService(usecase.GuardLimits{
		FloodDelay:       cfg.FloodDelay,
		FloodMaxCommands: cfg.FloodMaxCommands,
		FloodTimeout:     cfg.FloodTimeout,
	}, logger)

	handler := httpapi.NewHandler(queueSvc, stageSvc, outcomeSvc, subSvc, statusSvc, guardSvc, cfg.StatusCooldown, logger)
	router := httpapi.NewRouter(handler, guardSvc, logger, cfg.CORSAllowedOrigins)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &App{
		Server:   server,
		db:       db,
		notifier: publisher,
		logger:   logger,
	}, nil
}

// Shutdown stops the HTTP server and releases held resources.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Server.Shutdown(ctx)

	if a.notifier != nil {
		a.notifier.Close()
	}
	if a.db != nil {
		if closeErr := a.db.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}

	return err
}

// PingDB verifies database connectivity at startup. A no-op in memory mode.
func (a *App) PingDB(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return a.db.PingContext(ctx)
}
