package handlers

import (
	"strconv"

	"edge-backend/internal/service"
	"edge-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

type AlarmHandler struct {
	alarmService *service.AlarmService
}

func NewAlarmHandler(alarmService *service.AlarmService) *AlarmHandler {
	return &AlarmHandler{
		alarmService: alarmService,
	}
}

// GetAlarms godoc
// @Summary 获取告警列表
// @Description 获取节点告警列表（支持分页、状态与事件类型筛选）
// @Tags 告警管理
// @Accept json
// @Produce json
// @Param current query int false "当前页" default(1)
// @Param size query int false "每页大小" default(10)
// @Param status query string false "告警状态(pending/resolved)"
// @Param event_type query string false "事件类型(energy/network/performance/consensus/system)"
// @Success 200 {object} utils.Response{data=utils.PageResult}
// @Router /alarms [get]
func (h *AlarmHandler) GetAlarms(c *gin.Context) {
	current, _ := strconv.Atoi(c.DefaultQuery("current", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	status := c.Query("status")
	eventType := c.Query("event_type")

	alarms, total, err := h.alarmService.GetAlarmList(current, size, status, eventType)
	if err != nil {
		utils.Error(c, utils.ERROR, "获取告警列表失败")
		return
	}

	utils.SuccessWithPage(c, alarms, current, size, total)
}

// GetAlarm godoc
// @Summary 获取告警详情
// @Description 根据ID获取单个告警的详细信息
// @Tags 告警管理
// @Accept json
// @Produce json
// @Param id path int true "告警ID"
// @Success 200 {object} utils.Response{data=models.Alarm}
// @Failure 404 {object} utils.Response
// @Router /alarms/{id} [get]
func (h *AlarmHandler) GetAlarm(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		utils.Error(c, utils.VALIDATION_ERROR, "无效的告警ID")
		return
	}

	alarm, err := h.alarmService.GetAlarm(uint(id))
	if err != nil {
		utils.Error(c, utils.NOT_FOUND, "告警不存在")
		return
	}

	utils.Success(c, alarm)
}

// ResolveAlarm godoc
// @Summary 解决告警
// @Description 将告警标记为已解决状态
// @Tags 告警管理
// @Accept json
// @Produce json
// @Param id path int true "告警ID"
// @Success 200 {object} utils.Response
// @Failure 400 {object} utils.Response
// @Router /alarms/{id}/resolve [post]
func (h *AlarmHandler) ResolveAlarm(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		utils.Error(c, utils.VALIDATION_ERROR, "无效的告警ID")
		return
	}

	if err := h.alarmService.ResolveAlarm(uint(id)); err != nil {
		utils.Error(c, utils.ERROR, err.Error())
		return
	}

	utils.SuccessWithMessage(c, nil, "告警已解决")
}

// GetRecentAlarms godoc
// @Summary 获取最近告警
// @Description 获取最近产生的告警（按时间倒序）
// @Tags 告警管理
// @Accept json
// @Produce json
// @Param limit query int false "数量上限" default(10)
// @Success 200 {object} utils.Response
// @Router /alarms/recent [get]
func (h *AlarmHandler) GetRecentAlarms(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	alarms, err := h.alarmService.GetRecentAlarms(limit)
	if err != nil {
		utils.Error(c, utils.ERROR, "获取最近告警失败")
		return
	}

	utils.Success(c, alarms)
}

// GetActiveAlarms godoc
// @Summary 获取活跃告警
// @Description 获取所有未解决的告警
// @Tags 告警管理
// @Accept json
// @Produce json
// @Success 200 {object} utils.Response
// @Router /alarms/active [get]
func (h *AlarmHandler) GetActiveAlarms(c *gin.Context) {
	alarms, err := h.alarmService.GetActiveAlarms()
	if err != nil {
		utils.Error(c, utils.ERROR, "获取活跃告警失败")
		return
	}

	utils.Success(c, alarms)
}

// GetAlarmStats godoc
// @Summary 获取告警统计
// @Description 获取告警的统计信息（总数、活跃数、已解决数）
// @Tags 告警管理
// @Accept json
// @Produce json
// @Success 200 {object} utils.Response{data=service.AlarmStats}
// @Router /alarms/stats [get]
func (h *AlarmHandler) GetAlarmStats(c *gin.Context) {
	stats, err := h.alarmService.GetAlarmStats()
	if err != nil {
		utils.Error(c, utils.ERROR, "获取告警统计失败")
		return
	}

	utils.Success(c, stats)
}
