package handlers

import (
	"strconv"

	"edge-backend/internal/service"
	"edge-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

type TelemetryHandler struct {
	telemetryService *service.TelemetryService
}

func NewTelemetryHandler(telemetryService *service.TelemetryService) *TelemetryHandler {
	return &TelemetryHandler{
		telemetryService: telemetryService,
	}
}

// GetEvents godoc
// @Summary 获取遥测事件列表
// @Description 分页获取已上送的遥测事件（支持按位置筛选）
// @Tags 遥测管理
// @Accept json
// @Produce json
// @Param current query int false "当前页" default(1)
// @Param size query int false "每页大小" default(10)
// @Param location_id query string false "位置ID"
// @Success 200 {object} utils.Response{data=utils.PageResult}
// @Router /telemetry/events [get]
func (h *TelemetryHandler) GetEvents(c *gin.Context) {
	current, _ := strconv.Atoi(c.DefaultQuery("current", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	locationID := c.Query("location_id")

	events, total, err := h.telemetryService.ListEvents(current, size, locationID)
	if err != nil {
		utils.Error(c, utils.ERROR, "获取遥测事件失败")
		return
	}

	utils.SuccessWithPage(c, events, current, size, total)
}

// GetRecentEvents godoc
// @Summary 获取最近遥测事件
// @Description 获取最近上送的遥测事件（按时间倒序）
// @Tags 遥测管理
// @Accept json
// @Produce json
// @Param limit query int false "数量上限" default(20)
// @Success 200 {object} utils.Response
// @Router /telemetry/recent [get]
func (h *TelemetryHandler) GetRecentEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	events, err := h.telemetryService.GetRecentEvents(limit)
	if err != nil {
		utils.Error(c, utils.ERROR, "获取最近遥测事件失败")
		return
	}

	utils.Success(c, events)
}
