package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Staxx7/quickscope-sub003/internal/adapter/billing"
	cacheadapter "github.com/Staxx7/quickscope-sub003/internal/adapter/cache"
	"github.com/Staxx7/quickscope-sub003/internal/adapter/llm"
	"github.com/Staxx7/quickscope-sub003/internal/adapter/qbo"
	"github.com/Staxx7/quickscope-sub003/internal/bootstrap"
	"github.com/Staxx7/quickscope-sub003/internal/config"
	httptransport "github.com/Staxx7/quickscope-sub003/internal/http"
	"github.com/Staxx7/quickscope-sub003/internal/http/handler"
	apimiddleware "github.com/Staxx7/quickscope-sub003/internal/middleware"
	"github.com/Staxx7/quickscope-sub003/internal/repository"
	"github.com/Staxx7/quickscope-sub003/internal/server"
	"github.com/Staxx7/quickscope-sub003/internal/service"
	"github.com/Staxx7/quickscope-sub003/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newTokenRepository,
			newProspectRepository,
			newSnapshotRepository,
			newTranscriptRepository,
			newAnalysisRepository,
			newReportRepository,
			newDisconnector,
			newRedisClient,
			newConnectStateStore,
			newProviderClient,
			newAnalyzer,
			newCheckoutClient,
			newRateLimiter,
			service.NewWorkflowService,
			service.NewConnectionService,
			service.NewSyncService,
			service.NewProspectService,
			handler.NewConnectionHandler,
			handler.NewProspectHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureSchema, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newTokenRepository(pool *pgxpool.Pool) repository.TokenRepository {
	return repository.NewPostgresTokenRepo(pool)
}

func newProspectRepository(pool *pgxpool.Pool) repository.ProspectRepository {
	return repository.NewPostgresProspectRepo(pool)
}

func newSnapshotRepository(pool *pgxpool.Pool) repository.SnapshotRepository {
	return repository.NewPostgresSnapshotRepo(pool)
}

func newTranscriptRepository(pool *pgxpool.Pool) repository.TranscriptRepository {
	return repository.NewPostgresTranscriptRepo(pool)
}

func newAnalysisRepository(pool *pgxpool.Pool) repository.AnalysisRepository {
	return repository.NewPostgresAnalysisRepo(pool)
}

func newReportRepository(pool *pgxpool.Pool) repository.ReportRepository {
	return repository.NewPostgresReportRepo(pool)
}

func newDisconnector(pool *pgxpool.Pool) repository.Disconnector {
	return repository.NewPostgresDisconnector(pool)
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newConnectStateStore(client redis.UniversalClient) repository.ConnectStateStore {
	return cacheadapter.NewRedisStateStore(client)
}

func newProviderClient(cfg config.Config) qbo.ProviderClient {
	return qbo.NewHTTPProviderClient(cfg, nil)
}

func newAnalyzer(cfg config.Config) llm.Analyzer {
	return llm.NewHTTPAnalyzer(cfg, nil)
}

func newCheckoutClient(cfg config.Config) billing.CheckoutClient {
	return billing.NewHTTPCheckoutClient(cfg, nil)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
