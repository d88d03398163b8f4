// Package main 是服务端的入口点
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"dealer-support-server/internal/cache"
	"dealer-support-server/internal/config"
	"dealer-support-server/internal/events"
	"dealer-support-server/internal/handler"
	"dealer-support-server/internal/limiter"
	"dealer-support-server/internal/middleware"
	"dealer-support-server/internal/model"
	"dealer-support-server/internal/repository"
	"dealer-support-server/internal/service"
	"dealer-support-server/internal/sweeper"
	"dealer-support-server/internal/websocket"
	"dealer-support-server/pkg/jwt"
	"dealer-support-server/pkg/logger"
)

func main() {
	// .env 只在本地开发使用，不存在时忽略
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Production: cfg.Server.Mode == "release",
	})
	defer log.Sync()

	// 初始化数据库
	db, err := initDatabase(cfg, log)
	if err != nil {
		log.Fatal("failed to init database", zap.Error(err))
	}

	// 自动迁移数据库表
	if err := autoMigrate(db, log); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	// 初始化 Redis
	redisCache, err := cache.NewRedisCache(cfg)
	if err != nil {
		log.Fatal("failed to init redis", zap.Error(err))
	}

	// 初始化 JWT 服务
	jwtService := jwt.NewJWTService(
		cfg.JWT.Secret,
		cfg.JWT.AccessExpire,
		cfg.JWT.RefreshExpire,
	)

	// 会话事件：Redis 频道推送给各实例的 WebSocket，Kafka 可选用于审计
	publishers := events.Multi{redisCache}
	var kafka *events.KafkaPublisher
	if cfg.Kafka.Enabled {
		kafka, err = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Warn("kafka unavailable, audit stream disabled", zap.Error(err))
		} else {
			publishers = append(publishers, kafka)
		}
	}

	// 初始化 Repository 层
	sessionRepo := repository.NewSessionRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	operatorRepo := repository.NewOperatorRepository(db)

	// 初始化 Service 层
	chatService := service.NewChatService(sessionRepo, messageRepo, publishers, service.ChatOptions{
		InactivityThreshold: cfg.Support.InactivityThreshold,
		EscalationThreshold: cfg.Support.EscalationThreshold,
	}, log)
	authService := service.NewAuthService(operatorRepo, redisCache, jwtService)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Admin.Password != "" {
		if err := authService.EnsureOperator(ctx, cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.DisplayName, model.OperatorRoleSupervisor); err != nil {
			log.Fatal("failed to create admin operator", zap.Error(err))
		}
	}

	// 初始化 WebSocket Hub
	wsHub := websocket.NewHub(chatService, redisCache, log)
	go wsHub.Run(ctx)

	sub := redisCache.SubscribeSessionEvents(ctx)
	go wsHub.Consume(ctx, sub.Channel())

	// 超时提醒
	sweep := sweeper.New(sessionRepo, operatorRepo, redisCache, buildNotifier(cfg, log), sweeper.Options{
		SLA: cfg.Support.PendingSLA,
	}, log)
	if err := sweep.Start(cfg.Support.SweepCron); err != nil {
		log.Fatal("failed to start sweeper", zap.Error(err))
	}

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建 Gin 引擎
	router := gin.New()

	// 全局中间件
	router.Use(middleware.RecoveryMiddleware(log)) // 恢复 panic
	router.Use(middleware.LoggerMiddleware(log))   // 请求日志
	router.Use(middleware.CORSMiddleware(middleware.NewCORSConfig(cfg.Server.CORS)))

	opts := handler.RouteOptions{
		JWT:       jwtService,
		Blacklist: redisCache,
		Log:       log,
		Auth:      handler.NewAuthHandler(authService),
		Chat:      handler.NewChatHandler(chatService),
		Operator:  handler.NewOperatorHandler(chatService, redisCache),
	}
	if cfg.RateLimit.Enabled {
		// Redis 出错时退回进程内计数
		opts.Limiter = &limiter.Fallback{
			Primary:   limiter.NewManager(redisCache.Client(), &limiter.FixedWindowStrategy{}),
			Secondary: limiter.NewMemoryLimiter(),
		}
		opts.RateLimit = int(cfg.RateLimit.Limit)
		opts.RateWindow = cfg.RateLimit.Window
	}

	// 注册路由
	handler.RegisterRoutes(router, opts)
	websocket.NewHandler(wsHub, jwtService, redisCache, cfg.Server.CORS).RegisterRoutes(router)

	// 创建 HTTP 服务器
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Info("server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// 创建关闭上下文，设置超时
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// 关闭 HTTP 服务器
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	sweep.Stop()
	cancel()

	if err := sub.Close(); err != nil {
		log.Warn("failed to close subscription", zap.Error(err))
	}
	if kafka != nil {
		if err := kafka.Close(); err != nil {
			log.Warn("failed to close kafka producer", zap.Error(err))
		}
	}

	// 关闭 Redis 连接
	if err := redisCache.Close(); err != nil {
		log.Warn("failed to close redis", zap.Error(err))
	}

	log.Info("server exited")
}

// initDatabase 初始化数据库连接
// 根据 database.driver 选择 MySQL、PostgreSQL 或 SQLite
func initDatabase(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "mysql", "":
		dialector = mysql.Open(cfg.Database.MySQL.DSN())
	case "postgres":
		dialector = postgres.Open(cfg.Database.Postgres.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.Database.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	// 配置 GORM logger
	gormLogger := gormlogger.Default.LogMode(gormlogger.Info)
	if cfg.Server.Mode == "release" {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Warn)
	}

	// 连接数据库
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 连接池只对 MySQL 生效
	if cfg.Database.Driver == "mysql" || cfg.Database.Driver == "" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxIdleConns(cfg.Database.MySQL.MaxIdleConns)
		sqlDB.SetMaxOpenConns(cfg.Database.MySQL.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.MySQL.MaxLifetime) * time.Second)
	}

	log.Info("database connected", zap.String("driver", cfg.Database.Driver))
	return db, nil
}

// autoMigrate 自动迁移数据库表
func autoMigrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("running database migrations...")

	if err := db.AutoMigrate(
		&model.Session{},
		&model.Message{},
		&model.Operator{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	log.Info("database migrations completed")
	return nil
}

// buildNotifier 根据配置组合提醒渠道
func buildNotifier(cfg *config.Config, log *zap.Logger) sweeper.Notifier {
	var notifiers sweeper.MultiNotifier
	if cfg.Slack.BotToken != "" && cfg.Slack.ChannelID != "" {
		notifiers = append(notifiers, sweeper.NewSlackNotifier(cfg.Slack.BotToken, cfg.Slack.ChannelID))
	}
	if cfg.Discord.BotToken != "" && cfg.Discord.ChannelID != "" {
		n, err := sweeper.NewDiscordNotifier(cfg.Discord.BotToken, cfg.Discord.ChannelID)
		if err != nil {
			log.Warn("discord notifier disabled", zap.Error(err))
		} else {
			notifiers = append(notifiers, n)
		}
	}
	if len(notifiers) == 0 {
		return sweeper.NewLogNotifier(log)
	}
	return notifiers
}
