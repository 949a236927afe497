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

	"goldledger/internal/config"
	"goldledger/internal/handler"
	"goldledger/internal/infrastructure/cache"
	"goldledger/internal/infrastructure/database"
	"goldledger/internal/infrastructure/lock"
	"goldledger/internal/infrastructure/logging"
	"goldledger/internal/infrastructure/mq"
	"goldledger/internal/job"
	"goldledger/internal/ledger"
	"goldledger/internal/oracle"
	"goldledger/internal/repository"
	"goldledger/internal/service"
	"goldledger/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	params, err := cfg.Ledger.Parse()
	if err != nil {
		logger.Fatal("账本配置错误", zap.Error(err))
	}

	// 初始化 ID 生成器，多实例部署时每个实例配置不同的 worker_id
	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		logger.Fatal("ID 生成器初始化失败", zap.Error(err))
	}

	// 存储：未配置 MySQL 时使用内存存储，仅用于本地调试
	var (
		store  repository.Store
		outbox repository.OutboxStore
	)
	if cfg.MySQL.Host != "" {
		db, err := database.NewMySQL(&cfg.MySQL)
		if err != nil {
			logger.Fatal("MySQL 初始化失败", zap.Error(err))
		}
		gormStore := repository.NewGormStore(db)
		store, outbox = gormStore, gormStore.Outbox()
		logger.Info("MySQL 连接成功")
	} else {
		memStore := repository.NewMemoryStore()
		store, outbox = memStore, memStore
		logger.Warn("未配置 MySQL，使用内存存储")
	}

	// Redis：分布式锁或 Redis 金价源需要
	var redisClient *redis.Client
	if cfg.Ledger.LockBackend == "redis" || cfg.Oracle.Mode == "redis" {
		redisClient, err = cache.NewRedis(&cfg.Redis)
		if err != nil {
			logger.Fatal("Redis 初始化失败", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("Redis 连接成功")
	}

	var locker ledger.Locker
	if cfg.Ledger.LockBackend == "redis" {
		ttl := time.Duration(cfg.Ledger.LockTTLSeconds) * time.Second
		locker = lock.NewRedisLocker(redisClient, ttl, logger)
	} else {
		locker = ledger.NewKeyedMutex()
	}

	priceOracle, err := oracle.FromConfig(cfg.Oracle, redisClient)
	if err != nil {
		logger.Fatal("金价源初始化失败", zap.Error(err))
	}
	logger.Info("金价源就绪", zap.String("oracle", oracle.Describe(priceOracle)))

	engine := ledger.NewEngine(store, locker,
		ledger.WithLogger(logger),
		ledger.WithInitialCash(params.InitialCashBalance),
		ledger.WithEventTopic(cfg.Kafka.Topic.LedgerEvent),
	)

	loans := service.NewLoanService(engine, store, params, logger)
	svc := handler.Services{
		Accounts:    service.NewAccountService(engine, store),
		Trades:      service.NewTradeService(engine, priceOracle, logger),
		Staking:     service.NewStakingService(engine),
		Loans:       loans,
		Redemptions: service.NewRedemptionService(engine, store, params.MinimumRedemption, logger),
		Oracle:      priceOracle,
	}

	// 事件投递：未配置 Kafka 时只写日志
	var publisher mq.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewKafkaProducer(&cfg.Kafka)
		if err != nil {
			logger.Fatal("Kafka 初始化失败", zap.Error(err))
		}
		publisher = mq.NewKafkaPublisher(producer, logger)
		logger.Info("Kafka 生产者初始化成功", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		publisher = mq.NewLogPublisher(logger)
	}
	defer publisher.Close()

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	outboxSender := job.NewOutboxSender(outbox, publisher, cfg.Kafka.MaxRetryCount, logger)
	go outboxSender.Start(ctx)

	interval := time.Duration(cfg.Ledger.LoanMonitorIntervalSeconds) * time.Second
	loanMonitor := job.NewLoanMonitor(store, loans, priceOracle, interval, logger)
	go loanMonitor.Start(ctx)

	// 设置路由
	router := handler.SetupRouter(svc, logger)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// 在 goroutine 中启动服务器
	go func() {
		logger.Info("服务启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务启动失败", zap.Error(err))
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务关闭异常", zap.Error(err))
	}

	logger.Info("服务已关闭")
}
