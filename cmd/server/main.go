package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"edge-backend/internal/api"
	"edge-backend/internal/config"
	"edge-backend/internal/core"
	"edge-backend/internal/core/anomaly"
	"edge-backend/internal/core/consensus"
	"edge-backend/internal/core/constraint"
	"edge-backend/internal/core/define"
	"edge-backend/internal/core/history"
	"edge-backend/internal/core/scheduler"
	"edge-backend/internal/repository"
	"edge-backend/internal/service"
	"edge-backend/pkg/database"
	"edge-backend/pkg/utils"
)

func main() {
	// 加载配置文件
	cfg := config.InitConfig()

	// 初始化 JWT 密钥
	utils.InitJWTSecret(cfg.JWT.Secret)

	// 初始化数据库连接
	database.InitDB(cfg.Database.Path)
	db := database.GetDB()

	// 初始化仓储层
	userRepo := repository.NewUserRepository(db)
	alarmRepo := repository.NewAlarmRepository(db)
	telemetryRepo := repository.NewTelemetryRepository(db)
	decisionRepo := repository.NewDecisionRepository(db)

	// 初始化服务层
	userService := service.NewUserService(userRepo)
	alarmService := service.NewAlarmService(alarmRepo)
	telemetryService := service.NewTelemetryService(cfg.Node.ID, telemetryRepo)
	decisionService := service.NewDecisionService(decisionRepo)

	// 资源约束监控器
	monitor := constraint.NewMonitor(constraint.Options{
		SampleTimeout:    parseDuration(cfg.Monitor.SampleTimeout, constraint.DefaultOptions.SampleTimeout),
		DegradedAfter:    cfg.Monitor.DegradedAfter,
		LinkCapacityMbps: cfg.Monitor.LinkCapacityMbps,
	}, &constraint.StaticEnergyProbe{Level: cfg.Monitor.EnergyLevelPct},
		&constraint.StaticLatencyProbe{Ms: cfg.Monitor.LatencyMs})

	// 任务调度器
	sched := scheduler.NewScheduler(scheduler.Thresholds{
		EnergyThresholdPct: cfg.Scheduler.EnergyThresholdPct,
		LatencyThresholdMs: cfg.Scheduler.LatencyThresholdMs,
		BandwidthFloorMbps: cfg.Scheduler.BandwidthFloorMbps,
		RetentionWindow:    parseDuration(cfg.Scheduler.RetentionWindow, scheduler.DefaultThresholds.RetentionWindow),
		QueueCapacity:      cfg.Scheduler.QueueCapacity,
	}, decisionService)

	// 异常与传输引擎
	store := history.NewStore(cfg.Anomaly.PriorMean, cfg.Anomaly.PriorStdDev)
	scorer := anomaly.NewDensityScorer(0, 0)
	batch := anomaly.NewBatchBuffer(
		cfg.Anomaly.BatchCapacity,
		parseDuration(cfg.Anomaly.BatchInterval, 30*time.Second),
		func(verdicts []define.AnomalyVerdict) {
			_ = telemetryService.PublishBatch(verdicts)
		},
	)
	anomalyEngine := anomaly.NewEngine(store, scorer, anomaly.Thresholds{
		HighZScore:     cfg.Anomaly.HighZScore,
		HighComposite:  cfg.Anomaly.HighComposite,
		NormalZScore:   cfg.Anomaly.NormalZScore,
		NormalComposit: cfg.Anomaly.NormalComposit,
		DeferZScore:    cfg.Anomaly.DeferZScore,
		TierMargin:     cfg.Anomaly.TierMargin,
	}, cfg.Anomaly.Tiers, batch)

	// 共识引擎 (WebSocket传输, 对端集合静态配置)
	wsNet := consensus.NewWSNetwork(cfg.Node.ID, cfg.PeerAddrs())
	consensusEngine := consensus.NewEngine(cfg.Node.ID, cfg.PeerIDs(), wsNet,
		consensus.AgreedActionFunc(func(action string) error {
			return core.GetNodeInstance().ApplyAgreedAction(action)
		}), consensus.Options{
			RoundTimeout:   parseDuration(cfg.Consensus.RoundTimeout, consensus.DefaultOptions.RoundTimeout),
			MaxProposalAge: parseDuration(cfg.Consensus.MaxProposalAge, consensus.DefaultOptions.MaxProposalAge),
		})

	// 节点核心
	alarmMonitor := core.NewAlarmMonitor(alarmService)
	node := core.InitNode(core.Options{
		NodeID:        cfg.Node.ID,
		LocationID:    cfg.Node.LocationID,
		CycleInterval: parseDuration(cfg.Node.CycleInterval, time.Second),
		TaskTimeout:   parseDuration(cfg.Node.TaskTimeout, 10*time.Second),
	}, monitor, sched, anomalyEngine, consensusEngine, telemetryService, alarmMonitor)
	node.Start()

	// 设置Gin模式
	gin.SetMode(gin.ReleaseMode)

	// 创建Gin路由器
	router := gin.Default()

	// 设置路由
	api.SetupRoutes(router, api.Deps{
		UserService:      userService,
		AlarmService:     alarmService,
		TelemetryService: telemetryService,
		DecisionService:  decisionService,
		ConsensusWS:      wsNet.Handler(),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("启动服务器，监听端口 :%s\n", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("无法启动服务器: %s\n", err)
		}
	}()

	// 优雅关停: 先停周期循环与共识, 再关HTTP
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("收到退出信号, 开始关停")

	node.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("HTTP服务关停失败: %v", err)
	}
	log.Println("节点已退出")
}

// parseDuration 解析配置中的时长字符串, 解析失败时使用默认值
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("无效的时长配置 %q, 使用默认值 %v", s, def)
		return def
	}
	return d
}
