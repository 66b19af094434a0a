package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/siscanu/leads-agent/internal/audit"
	"github.com/siscanu/leads-agent/internal/auth"
	jwtpkg "github.com/siscanu/leads-agent/internal/auth/jwt"
	"github.com/siscanu/leads-agent/internal/config"
	"github.com/siscanu/leads-agent/internal/health"
	"github.com/siscanu/leads-agent/internal/middleware"
	"github.com/siscanu/leads-agent/internal/monitoring"
	"github.com/siscanu/leads-agent/internal/state"
	"github.com/siscanu/leads-agent/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config        *config.Config
	Processor     Runner
	AuthService   *auth.Service
	JWTManager    *jwtpkg.Manager
	Store         state.Store
	AuditStore    *audit.Store // 可为 nil
	Notifier      Notifier     // 可为 nil
	WebSocketHub  *websocket.Hub
	HealthChecker *health.HealthChecker
	Metrics       *monitoring.Metrics
	Logger        *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	monitor := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)

	// 使用自定义中间件替代默认中间件
	router.Use(monitor.PanicRecovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(monitor.HTTPMetrics())

	// 请求体大小限制 1MB，本服务没有大请求
	router.Use(middleware.RequestSizeLimit(1 << 20))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 创建处理器
	handler := &Handler{
		processor: deps.Processor,
		audit:     deps.AuditStore,
		store:     deps.Store,
		notifier:  deps.Notifier,
		pipeCfg:   deps.Config.Pipeline,
		log:       deps.Logger,
	}
	authHandler := NewAuthHandler(deps.AuthService)

	// 创建中间件
	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, deps.Logger)

	// 健康检查与指标
	router.GET("/health/live", gin.WrapF(deps.HealthChecker.LiveEndpoint()))
	router.GET("/health/ready", gin.WrapF(deps.HealthChecker.ReadyEndpoint()))
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))

	// 邮件服务商 Webhook
	router.POST("/webhooks/zoho-mail", handler.handleWebhook)

	// WebSocket 事件推送
	if deps.WebSocketHub != nil {
		router.GET("/ws", deps.WebSocketHub.HandleConnection)
	}

	// 认证接口
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", authHandler.login)
			authGroup.POST("/refresh", authHandler.refresh)
		}

		// 管理接口（JWT 认证）
		protected := v1.Group("")
		protected.Use(jwtAuth.RequireAuth())
		{
			protected.POST("/pipeline/process", handler.handleProcess)
			protected.GET("/pipeline/runs", handler.handleListRuns)
			protected.GET("/state/stats", handler.handleStateStats)
		}
	}

	return router
}
