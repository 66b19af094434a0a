package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/siscanu/leads-agent/internal/audit"
	"github.com/siscanu/leads-agent/internal/auth"
	jwtpkg "github.com/siscanu/leads-agent/internal/auth/jwt"
	"github.com/siscanu/leads-agent/internal/config"
	"github.com/siscanu/leads-agent/internal/health"
	"github.com/siscanu/leads-agent/internal/llm"
	"github.com/siscanu/leads-agent/internal/logger"
	"github.com/siscanu/leads-agent/internal/mail"
	"github.com/siscanu/leads-agent/internal/monitoring"
	"github.com/siscanu/leads-agent/internal/notify"
	"github.com/siscanu/leads-agent/internal/pipeline"
	"github.com/siscanu/leads-agent/internal/state"
	httptransport "github.com/siscanu/leads-agent/internal/transport/http"
	"github.com/siscanu/leads-agent/internal/websocket"
)

// main 启动邮件自动回复服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting leads agent",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化已处理状态存储
	var store state.Store
	switch cfg.State.Backend {
	case "redis":
		redisStore, err := state.NewRedisStore(cfg.Redis, log)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize redis state store: %v", err))
		}
		defer redisStore.Close()
		store = redisStore
		log.Info("using redis state store", zap.String("address", cfg.Redis.Address))
	default:
		fileStore, err := state.NewFileStore(cfg.State.Dir, log)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize file state store: %v", err))
		}
		store = fileStore
		log.Info("using file state store", zap.String("dir", cfg.State.Dir))
	}

	// 初始化监控系统
	metrics := monitoring.NewMetrics()

	// 初始化健康检查
	providerHost := fmt.Sprintf("mail.%s", cfg.Zoho.Domain)
	healthChecker := health.NewHealthChecker(store, providerHost, log)

	// 初始化邮件服务商客户端
	tokenURL := fmt.Sprintf("https://accounts.%s/oauth/v2/token", cfg.Zoho.Domain)
	tokens := mail.NewRefreshTokenSource(tokenURL, cfg.Zoho.ClientID, cfg.Zoho.ClientSecret, cfg.Zoho.RefreshToken, nil)
	mailClient := mail.NewClient(cfg.Zoho, tokens, log)

	// 初始化语言模型客户端
	llmClient := llm.NewClient(cfg.LLM, log)

	// 初始化审计存储（可选）
	var auditStore *audit.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		auditStore, err = audit.NewStore(cfg.Database)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize audit store: %v", err))
		}
		defer auditStore.Close()
		log.Info("audit store initialized", zap.String("type", cfg.Database.Type))
	} else {
		log.Info("audit store disabled")
	}

	// 初始化通知器
	notifier := notify.NewTelegram(cfg.Telegram, log)
	if notifier.Enabled() {
		log.Info("telegram notifications enabled")
	}

	// 创建 WebSocket Hub
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, log)

	// 组装流水线处理器
	processor := pipeline.NewProcessor(
		mailClient,
		llmClient,
		llmClient,
		store,
		wsHub,
		metrics,
		cfg.Company,
		cfg.Pipeline,
		log,
	)

	// 初始化认证
	jwtManager := jwtpkg.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authService := auth.NewService(cfg.Admin, jwtManager)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:        cfg,
		Processor:     processor,
		AuthService:   authService,
		JWTManager:    jwtManager,
		Store:         store,
		AuditStore:    auditStore,
		Notifier:      notifier,
		WebSocketHub:  wsHub,
		HealthChecker: healthChecker,
		Metrics:       metrics,
		Logger:        log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // 同步触发的批处理可能较慢
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 定时轮询 goroutine（可选）
	if cfg.Pipeline.Schedule > 0 {
		group.Go(func() error {
			ticker := time.NewTicker(cfg.Pipeline.Schedule)
			defer ticker.Stop()

			log.Info("starting scheduled pipeline runs", zap.Duration("interval", cfg.Pipeline.Schedule))

			for {
				select {
				case <-groupCtx.Done():
					log.Info("scheduled runs stopped")
					return nil
				case <-ticker.C:
					runCtx, cancel := context.WithTimeout(groupCtx, 10*time.Minute)
					report, err := processor.Process(runCtx, cfg.Pipeline.FetchLimit, pipeline.TriggerSchedule, true)
					if err != nil {
						log.Error("scheduled pipeline run failed", zap.Error(err))
					} else {
						if auditStore != nil {
							if err := auditStore.RecordRun(runCtx, report); err != nil {
								log.Error("failed to record scheduled run", zap.Error(err))
							}
						}
						notifier.NotifyRun(runCtx, report)
					}
					cancel()
				}
			}
		})
	}

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		log.Info("server stopped")
		return nil
	})

	// 等待所有 goroutine 完成
	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
