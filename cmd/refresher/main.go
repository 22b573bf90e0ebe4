// refresher 是供 cron 调度的单次刷新作业：对全部组合重建估值快照
// 并写入两级缓存，持久层写入失败通过退出码上报以便调度重试。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mddomain "github.com/wyfcoding/portfoliopulse/internal/marketdata/domain"
	"github.com/wyfcoding/portfoliopulse/internal/marketdata/fetcher"
	"github.com/wyfcoding/portfoliopulse/internal/marketdata/infrastructure/provider/finnhub"
	"github.com/wyfcoding/portfoliopulse/internal/marketdata/infrastructure/provider/yahoo"
	"github.com/wyfcoding/portfoliopulse/internal/portfolio/application"
	"github.com/wyfcoding/portfoliopulse/internal/portfolio/infrastructure/persistence"
	"github.com/wyfcoding/portfoliopulse/internal/portfolio/infrastructure/persistence/mysql"
	persistence_redis "github.com/wyfcoding/portfoliopulse/internal/portfolio/infrastructure/persistence/redis"
	"github.com/wyfcoding/portfoliopulse/pkg/cache"
	"github.com/wyfcoding/portfoliopulse/pkg/config"
	"github.com/wyfcoding/portfoliopulse/pkg/db"
	"github.com/wyfcoding/portfoliopulse/pkg/logger"
)

var configPath = flag.String("config", "configs/portfolio/config.toml", "config file path")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		logger.Fatal(ctx, "数据库连接失败", "error", err)
	}
	defer database.Close()

	redisCache, err := cache.New(cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ConnTimeout:  cfg.Redis.ConnTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		logger.Fatal(ctx, "Redis 连接失败", "error", err)
	}
	defer redisCache.Close()

	var providers []mddomain.QuoteProvider
	if cfg.Providers.Finnhub.Enabled {
		providers = append(providers, finnhub.New(finnhub.Config{
			BaseURL: cfg.Providers.Finnhub.BaseURL,
			APIKey:  cfg.Providers.Finnhub.APIKey,
			Timeout: time.Duration(cfg.Providers.Finnhub.Timeout) * time.Second,
		}))
	}
	if cfg.Providers.Yahoo.Enabled {
		providers = append(providers, yahoo.New(yahoo.Config{
			BaseURL: cfg.Providers.Yahoo.BaseURL,
			Timeout: time.Duration(cfg.Providers.Yahoo.Timeout) * time.Second,
		}))
	}
	quoteFetcher := fetcher.New(providers, fetcher.RetryPolicy{
		MaxAttempts:    cfg.Market.RetryMaxAttempts,
		InitialBackoff: cfg.Market.InitialBackoff(),
	}, cfg.Market.BatchConcurrency)

	durableRepo := mysql.NewSnapshotRepository(database.DB)
	portfolioRepo := mysql.NewPortfolioRepository(database.DB)
	fastRepo := persistence_redis.NewSnapshotRepository(redisCache)
	snapshotCache := persistence.NewTieredSnapshotCache(fastRepo, durableRepo, nil)

	snapshotSvc := application.NewSnapshotService(
		portfolioRepo, snapshotCache, fastRepo, quoteFetcher,
		cfg.Market.BenchmarkSymbol,
		application.WithRefreshLocker(redisCache, time.Duration(cfg.Refresh.LockTTL)*time.Second),
	)

	started := time.Now()
	if err := snapshotSvc.RefreshAll(ctx); err != nil {
		logger.Error(ctx, "刷新作业失败", "error", err, "duration", time.Since(started).String())
		os.Exit(1)
	}
	logger.Info(ctx, "刷新作业完成", "duration", time.Since(started).String())
}
