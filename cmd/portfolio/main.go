package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	mddomain "github.com/wyfcoding/portfoliopulse/internal/marketdata/domain"
	"github.com/wyfcoding/portfoliopulse/internal/marketdata/fetcher"
	"github.com/wyfcoding/portfoliopulse/internal/marketdata/infrastructure/provider/finnhub"
	"github.com/wyfcoding/portfoliopulse/internal/marketdata/infrastructure/provider/yahoo"
	"github.com/wyfcoding/portfoliopulse/internal/portfolio/application"
	"github.com/wyfcoding/portfoliopulse/internal/portfolio/domain"
	"github.com/wyfcoding/portfoliopulse/internal/portfolio/infrastructure/persistence"
	"github.com/wyfcoding/portfoliopulse/internal/portfolio/infrastructure/persistence/mysql"
	persistence_redis "github.com/wyfcoding/portfoliopulse/internal/portfolio/infrastructure/persistence/redis"
	"github.com/wyfcoding/portfoliopulse/internal/portfolio/interfaces/consumer"
	httpserver "github.com/wyfcoding/portfoliopulse/internal/portfolio/interfaces/http"
	"github.com/wyfcoding/portfoliopulse/pkg/cache"
	"github.com/wyfcoding/portfoliopulse/pkg/config"
	"github.com/wyfcoding/portfoliopulse/pkg/db"
	"github.com/wyfcoding/portfoliopulse/pkg/logger"
	"github.com/wyfcoding/portfoliopulse/pkg/metrics"
	"github.com/wyfcoding/portfoliopulse/pkg/middleware"
	"github.com/wyfcoding/portfoliopulse/pkg/mq"
	"github.com/wyfcoding/portfoliopulse/pkg/ratelimit"
	"golang.org/x/sync/errgroup"
)

var configPath = flag.String("config", "configs/portfolio/config.toml", "config file path")

func main() {
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Logger
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

	ctx := context.Background()

	// 3. Metrics
	metricsImpl := metrics.New(cfg.ServiceName)
	if err := metricsImpl.Register(); err != nil {
		logger.Fatal(ctx, "指标注册失败", "error", err)
	}
	if cfg.Metrics.Enabled {
		go metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	// 4. Database
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

	if cfg.Environment == "dev" {
		if err := database.AutoMigrate(&domain.Portfolio{}, &domain.Holding{}, &mysql.SnapshotModel{}); err != nil {
			logger.Error(ctx, "数据库迁移失败", "error", err)
		}
	}

	// 5. Redis
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

	// 6. Providers & Fetcher
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
	}, cfg.Market.BatchConcurrency, fetcher.WithMetrics(metricsImpl))

	// 7. Repositories & Services
	durableRepo := mysql.NewSnapshotRepository(database.DB)
	portfolioRepo := mysql.NewPortfolioRepository(database.DB)
	fastRepo := persistence_redis.NewSnapshotRepository(redisCache)
	snapshotCache := persistence.NewTieredSnapshotCache(fastRepo, durableRepo, metricsImpl)

	snapshotSvc := application.NewSnapshotService(
		portfolioRepo, snapshotCache, fastRepo, quoteFetcher,
		cfg.Market.BenchmarkSymbol,
		application.WithServiceMetrics(metricsImpl),
		application.WithRefreshLocker(redisCache, time.Duration(cfg.Refresh.LockTTL)*time.Second),
	)
	querySvc := application.NewSnapshotQueryService(snapshotCache, cfg.Market.StalenessThreshold())

	// 8. Kafka
	var producer *mq.KafkaProducer
	var refreshConsumer *consumer.RefreshConsumer
	if cfg.Kafka.Enabled {
		kafkaCfg := mq.KafkaConfig{
			Brokers:        cfg.Kafka.Brokers,
			GroupID:        cfg.Kafka.GroupID,
			SessionTimeout: cfg.Kafka.SessionTimeout,
			MaxRetries:     cfg.Kafka.MaxRetries,
			RetryBackoff:   cfg.Kafka.RetryBackoff,
		}
		producer, err = mq.NewProducer(kafkaCfg)
		if err != nil {
			logger.Fatal(ctx, "Kafka 生产者创建失败", "error", err)
		}
		defer producer.Close()

		kafkaConsumer, err := mq.NewConsumer(kafkaCfg, cfg.Refresh.Topic)
		if err != nil {
			logger.Fatal(ctx, "Kafka 消费者创建失败", "error", err)
		}
		defer kafkaConsumer.Close()
		refreshConsumer = consumer.NewRefreshConsumer(kafkaConsumer, snapshotSvc)
	}

	// 9. HTTP
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(middleware.GinRecoveryMiddleware(), middleware.GinLoggingMiddleware())
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewRedisRateLimiter(redisCache.GetClient())
		r.Use(middleware.RateLimitMiddleware(limiter, cfg.RateLimit))
	}

	handler := httpserver.NewHandler(querySvc, snapshotSvc, quoteFetcher, producer, cfg.Refresh.Topic)
	handler.RegisterRoutes(r)

	// 10. Start
	rootCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(rootCtx)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	g.Go(func() error {
		logger.Info(gctx, "HTTP 服务启动", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if refreshConsumer != nil {
		g.Go(func() error {
			return refreshConsumer.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "收到退出信号，开始关闭")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(ctx, "服务退出异常", "error", err)
		os.Exit(1)
	}
}
