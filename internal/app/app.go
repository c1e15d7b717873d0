// Package app 提供 eidos-ads 服务的应用生命周期管理
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/eidos-exchange/eidos-ads/internal/blockchain"
	"github.com/eidos-exchange/eidos-ads/internal/config"
	"github.com/eidos-exchange/eidos-ads/internal/kafka"
	"github.com/eidos-exchange/eidos-ads/internal/repository"
	"github.com/eidos-exchange/eidos-ads/internal/service"
	"github.com/eidos-exchange/eidos-ads/internal/verifier"
	"github.com/eidos-exchange/eidos-ads/pkg/lock"
	"github.com/eidos-exchange/eidos-ads/pkg/logger"
)

// App 应用
type App struct {
	cfg *config.Config

	// 基础设施
	db    *gorm.DB
	redis *redis.Client

	// 区块链
	chainRegistry *blockchain.Registry

	// 仓储
	campaignRepo repository.CampaignRepository
	adRepo       repository.AdRepository
	eventRepo    repository.EventRepository
	devRepo      repository.DeveloperRepository

	// 服务
	searchSvc         *service.SearchService
	settlementSvc     *service.SettlementService
	developerSvc      *service.DeveloperService
	reconciliationSvc *service.ReconciliationService

	// Kafka
	kafkaProducer *kafka.Producer

	// 指标端点
	metricsServer *http.Server

	stopCh chan struct{}
}

// NewApp 创建应用
func NewApp(cfg *config.Config) (*App, error) {
	app := &App{
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}

	if err := app.initInfrastructure(); err != nil {
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}

	app.initRepositories()

	if err := app.initKafka(); err != nil {
		return nil, fmt.Errorf("failed to init kafka: %w", err)
	}

	app.initServices()

	return app, nil
}

// initInfrastructure 初始化基础设施
func (a *App) initInfrastructure() error {
	// PostgreSQL
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		a.cfg.Postgres.Host,
		a.cfg.Postgres.Port,
		a.cfg.Postgres.User,
		a.cfg.Postgres.Password,
		a.cfg.Postgres.Database,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(a.cfg.Postgres.MaxConnections)
	sqlDB.SetMaxIdleConns(a.cfg.Postgres.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(a.cfg.Postgres.ConnMaxLifetime) * time.Second)

	a.db = db
	logger.Info("database connected", zap.String("host", a.cfg.Postgres.Host))

	// 自动迁移
	if err := AutoMigrate(a.db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logger.Info("database migrated")

	// Redis
	redisAddr := "localhost:6379"
	if len(a.cfg.Redis.Addresses) > 0 {
		redisAddr = a.cfg.Redis.Addresses[0]
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		PoolSize: a.cfg.Redis.PoolSize,
	})

	if err := a.redis.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	logger.Info("redis connected", zap.String("addr", redisAddr))

	// 区块链客户端注册表 (按需拨号)
	a.chainRegistry = blockchain.NewRegistry(a.cfg.Chains.RPCURLs)

	return nil
}

// initRepositories 初始化仓储
func (a *App) initRepositories() {
	a.campaignRepo = repository.NewCampaignRepository(a.db)
	a.adRepo = repository.NewAdRepository(a.db)
	a.eventRepo = repository.NewEventRepository(a.db)
	a.devRepo = repository.NewDeveloperRepository(a.db)

	logger.Info("repositories initialized")
}

// initKafka 初始化 Kafka (未配置 broker 时跳过)
func (a *App) initKafka() error {
	if len(a.cfg.Kafka.Brokers) == 0 {
		logger.Info("kafka disabled, settlement notifications off")
		return nil
	}

	producer, err := kafka.NewProducer(a.cfg.Kafka.Brokers, a.cfg.Kafka.ClientID)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}
	a.kafkaProducer = producer

	logger.Info("kafka initialized", zap.Strings("brokers", a.cfg.Kafka.Brokers))
	return nil
}

// initServices 初始化服务
func (a *App) initServices() {
	eventVerifier := verifier.New(a.chainRegistry, verifier.Config{
		Timeout:     time.Duration(a.cfg.Settlement.VerifyTimeout) * time.Second,
		MaxBlockAge: uint64(a.cfg.Settlement.MaxBlockAge),
	})

	// SettlementNotifier 接口值不能直接塞 nil 指针
	var notifier service.SettlementNotifier
	if a.kafkaProducer != nil {
		notifier = a.kafkaProducer
	}

	txRunner := repository.NewRepository(a.db)

	a.settlementSvc = service.NewSettlementService(
		a.eventRepo,
		a.campaignRepo,
		a.adRepo,
		a.devRepo,
		txRunner,
		eventVerifier,
		notifier,
		&service.SettlementServiceConfig{
			DeveloperSharePercent: a.cfg.Settlement.DeveloperSharePercent,
			ImpressionDedup:       time.Duration(a.cfg.Settlement.ImpressionDedupWindow) * time.Second,
			ClickDedup:            time.Duration(a.cfg.Settlement.ClickDedupWindow) * time.Second,
			ConversionDedup:       time.Duration(a.cfg.Settlement.ConversionDedupWindow) * time.Second,
			SwapperDedup:          time.Duration(a.cfg.Settlement.SwapperDedupWindow) * time.Hour,
		},
	)

	a.searchSvc = service.NewSearchService(a.adRepo, a.devRepo, &service.SearchServiceConfig{
		MaxResults: a.cfg.Settlement.MaxSearchResults,
	})

	a.developerSvc = service.NewDeveloperService(a.devRepo)

	locker := lock.NewRedisLocker(a.redis, a.cfg.Service.Name,
		time.Duration(a.cfg.Worker.LockTTL)*time.Second)

	a.reconciliationSvc = service.NewReconciliationService(
		a.eventRepo,
		a.campaignRepo,
		a.devRepo,
		a.settlementSvc,
		eventVerifier,
		locker,
		&service.ReconciliationConfig{
			Interval:  time.Duration(a.cfg.Worker.Interval) * time.Second,
			BatchSize: a.cfg.Worker.BatchSize,
		},
	)

	logger.Info("services initialized")
}

// SearchService 返回检索服务
func (a *App) SearchService() *service.SearchService { return a.searchSvc }

// SettlementService 返回结算服务
func (a *App) SettlementService() *service.SettlementService { return a.settlementSvc }

// DeveloperService 返回开发者服务
func (a *App) DeveloperService() *service.DeveloperService { return a.developerSvc }

// Run 运行应用
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动对账任务
	a.reconciliationSvc.Start(ctx)

	// 指标端点
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	a.metricsServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Service.MetricsPort),
		Handler: mux,
	}
	go func() {
		logger.Info("metrics server listening", zap.Int("port", a.cfg.Service.MetricsPort))
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	// 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case <-a.stopCh:
		logger.Info("shutdown requested")
	}

	return a.shutdown()
}

// Stop 请求停机
func (a *App) Stop() {
	close(a.stopCh)
}

// shutdown 关闭应用
func (a *App) shutdown() error {
	logger.Info("shutting down...")

	if a.reconciliationSvc != nil {
		a.reconciliationSvc.Stop()
	}

	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	if a.kafkaProducer != nil {
		if err := a.kafkaProducer.Close(); err != nil {
			logger.Error("kafka producer close error", zap.Error(err))
		}
	}

	if a.chainRegistry != nil {
		a.chainRegistry.Close()
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Error("redis close error", zap.Error(err))
		}
	}

	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			sqlDB.Close()
		}
	}

	logger.Info("shutdown complete")
	return nil
}
