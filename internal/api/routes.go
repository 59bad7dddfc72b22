package api

import (
	"net/http"

	"edge-backend/internal/api/handlers"
	"edge-backend/internal/api/middleware"
	"edge-backend/internal/service"

	"github.com/gin-gonic/gin"
)

// Deps 路由依赖: 服务实例在main中构建 (与节点核心共享)
type Deps struct {
	UserService      *service.UserService
	AlarmService     *service.AlarmService
	TelemetryService *service.TelemetryService
	DecisionService  *service.DecisionService
	ConsensusWS      http.HandlerFunc // 共识WebSocket入口
}

// SetupRoutes 设置所有路由
func SetupRoutes(router *gin.Engine, deps Deps) {
	monitorService := service.NewMonitorService()

	// 初始化处理器
	authHandler := handlers.NewAuthHandler(deps.UserService)
	alarmHandler := handlers.NewAlarmHandler(deps.AlarmService)
	telemetryHandler := handlers.NewTelemetryHandler(deps.TelemetryService)
	nodeHandler := handlers.NewNodeHandler(monitorService, deps.DecisionService)
	userHandler := handlers.NewUserHandler(deps.UserService)
	healthHandler := handlers.NewHealthHandler()

	router.Use(middleware.LoggingMiddleware())

	// 公开路由组
	public := router.Group("/api/v1")
	{
		// 健康检查路由
		public.GET("/health", healthHandler.CheckHealth)

		// 认证相关路由（登录和刷新令牌无需认证）
		auth := public.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
		}

		// 共识节点间通信入口 (对端节点连接, 不走用户认证)
		if deps.ConsensusWS != nil {
			public.GET("/consensus/ws", gin.WrapF(deps.ConsensusWS))
		}
	}

	// 需要认证的路由组
	protected := router.Group("/api/v1")
	protected.Use(middleware.AuthMiddleware())
	{
		// 认证相关路由
		auth := protected.Group("/auth")
		{
			auth.GET("/me", authHandler.GetCurrentUser)
		}

		// 节点核心路由
		node := protected.Group("/node")
		{
			node.GET("/status", nodeHandler.GetStatus)
			node.POST("/tasks", nodeHandler.SubmitTask)
			node.GET("/tasks/:id", nodeHandler.GetTask)
			node.GET("/metrics", nodeHandler.GetMetrics)
			node.GET("/decisions", nodeHandler.GetDecisions)
			node.GET("/decisions/stats", nodeHandler.GetDecisionStats)
		}

		// 遥测事件路由
		telemetry := protected.Group("/telemetry")
		{
			telemetry.GET("/events", telemetryHandler.GetEvents)
			telemetry.GET("/recent", telemetryHandler.GetRecentEvents)
		}

		// 管理员专用路由
		admin := protected.Group("/admin")
		admin.Use(middleware.AdminMiddleware())
		{
			admin.POST("/users", userHandler.CreateUser)
		}

		// 告警管理路由
		alarms := protected.Group("/alarms")
		{
			alarms.GET("", alarmHandler.GetAlarms)
			alarms.GET("/stats", alarmHandler.GetAlarmStats)
			alarms.GET("/recent", alarmHandler.GetRecentAlarms)
			alarms.GET("/active", alarmHandler.GetActiveAlarms)
			alarms.GET("/:id", alarmHandler.GetAlarm)
			alarms.POST("/:id/resolve", alarmHandler.ResolveAlarm)
		}
	}
}
