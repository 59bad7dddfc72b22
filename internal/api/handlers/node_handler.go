package handlers

import (
	"strconv"
	"strings"
	"time"

	"edge-backend/internal/core"
	"edge-backend/internal/core/define"
	"edge-backend/internal/service"
	"edge-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// SubmitTaskRequest 任务提交请求
type SubmitTaskRequest struct {
	Name            string   `json:"name" binding:"required"`
	Priority        string   `json:"priority" binding:"required"` // LOW/MEDIUM/HIGH/CRITICAL
	RequiresNetwork bool     `json:"requires_network"`
	LocationID      string   `json:"location_id"`
	ScalarValue     *float64 `json:"scalar_value,omitempty"` // 已有观测值时直接提交
	Baseline        float64  `json:"baseline,omitempty"`     // 模拟检测的基准值
}

type NodeHandler struct {
	monitorService  *service.MonitorService
	decisionService *service.DecisionService
}

func NewNodeHandler(monitorService *service.MonitorService, decisionService *service.DecisionService) *NodeHandler {
	return &NodeHandler{
		monitorService:  monitorService,
		decisionService: decisionService,
	}
}

// GetStatus godoc
// @Summary 获取节点状态
// @Description 获取节点核心的运行状态（资源快照、任务统计、队列深度、共识阶段）
// @Tags 节点管理
// @Accept json
// @Produce json
// @Success 200 {object} utils.Response
// @Router /node/status [get]
func (h *NodeHandler) GetStatus(c *gin.Context) {
	node := core.GetNodeInstance()
	if node == nil {
		utils.Error(c, utils.ERROR, "节点核心未初始化")
		return
	}
	utils.Success(c, node.GetNodeInfo())
}

// SubmitTask godoc
// @Summary 提交任务
// @Description 提交一个分析任务, 下一个调度周期按当前资源约束评估
// @Tags 节点管理
// @Accept json
// @Produce json
// @Param request body SubmitTaskRequest true "任务信息"
// @Success 200 {object} utils.Response
// @Failure 400 {object} utils.Response
// @Router /node/tasks [post]
func (h *NodeHandler) SubmitTask(c *gin.Context) {
	var req SubmitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, utils.VALIDATION_ERROR, err.Error())
		return
	}

	priority, ok := parsePriority(req.Priority)
	if !ok {
		utils.Error(c, utils.VALIDATION_ERROR, "无效的优先级: "+req.Priority)
		return
	}

	node := core.GetNodeInstance()
	if node == nil {
		utils.Error(c, utils.ERROR, "节点核心未初始化")
		return
	}

	var payload define.Runner
	if req.ScalarValue != nil {
		// 外部已完成检测, 只走调度与异常判定
		payload = &core.ObservationTask{
			Observation: define.Observation{
				LocationID:  req.LocationID,
				ScalarValue: *req.ScalarValue,
				Timestamp:   time.Now(),
			},
		}
	} else {
		baseline := req.Baseline
		if baseline <= 0 {
			baseline = 25.0
		}
		payload = &core.AnalysisTask{
			LocationID: req.LocationID,
			Detect:     core.SimulatedDetect(req.LocationID, baseline),
		}
	}

	task, err := node.SubmitTask(req.Name, priority, req.RequiresNetwork, payload)
	if err != nil {
		utils.Error(c, utils.ERROR, err.Error())
		return
	}

	utils.SuccessWithMessage(c, task, "任务已提交, 等待调度")
}

// GetTask godoc
// @Summary 获取任务详情
// @Description 根据任务ID查询任务状态
// @Tags 节点管理
// @Accept json
// @Produce json
// @Param id path string true "任务ID"
// @Success 200 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /node/tasks/{id} [get]
func (h *NodeHandler) GetTask(c *gin.Context) {
	node := core.GetNodeInstance()
	if node == nil {
		utils.Error(c, utils.ERROR, "节点核心未初始化")
		return
	}

	task, ok := node.GetTask(c.Param("id"))
	if !ok {
		utils.Error(c, utils.NOT_FOUND, "任务不存在")
		return
	}
	utils.Success(c, task)
}

// GetMetrics godoc
// @Summary 获取系统指标
// @Description 获取节点的CPU、内存、网络与Goroutine指标
// @Tags 节点管理
// @Accept json
// @Produce json
// @Success 200 {object} utils.Response{data=models.SystemMetrics}
// @Router /node/metrics [get]
func (h *NodeHandler) GetMetrics(c *gin.Context) {
	metrics, err := h.monitorService.GetSystemMetrics()
	if err != nil {
		utils.Error(c, utils.ERROR, "获取系统指标失败")
		return
	}
	utils.Success(c, metrics)
}

// GetDecisions godoc
// @Summary 获取调度决策记录
// @Description 分页获取调度决策留痕（支持按决策类型筛选）
// @Tags 节点管理
// @Accept json
// @Produce json
// @Param current query int false "当前页" default(1)
// @Param size query int false "每页大小" default(10)
// @Param decision query string false "决策类型(EXECUTE_NORMAL/EXECUTE_REDUCED/DEFER_ENERGY/DEFER_NETWORK/DROP)"
// @Success 200 {object} utils.Response{data=utils.PageResult}
// @Router /node/decisions [get]
func (h *NodeHandler) GetDecisions(c *gin.Context) {
	current, _ := strconv.Atoi(c.DefaultQuery("current", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	decision := c.Query("decision")

	records, total, err := h.decisionService.ListDecisions(current, size, decision)
	if err != nil {
		utils.Error(c, utils.ERROR, "获取调度决策失败")
		return
	}

	utils.SuccessWithPage(c, records, current, size, total)
}

// GetDecisionStats godoc
// @Summary 获取调度决策统计
// @Description 按决策类型统计调度决策数量
// @Tags 节点管理
// @Accept json
// @Produce json
// @Success 200 {object} utils.Response
// @Router /node/decisions/stats [get]
func (h *NodeHandler) GetDecisionStats(c *gin.Context) {
	stats, err := h.decisionService.GetDecisionStats()
	if err != nil {
		utils.Error(c, utils.ERROR, "获取调度决策统计失败")
		return
	}
	utils.Success(c, stats)
}

// parsePriority 解析优先级名称
func parsePriority(s string) (define.PriorityClass, bool) {
	switch strings.ToUpper(s) {
	case "LOW":
		return define.PriorityLow, true
	case "MEDIUM":
		return define.PriorityMedium, true
	case "HIGH":
		return define.PriorityHigh, true
	case "CRITICAL":
		return define.PriorityCritical, true
	default:
		return 0, false
	}
}
