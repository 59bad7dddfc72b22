package service

import (
	"errors"
	"time"

	"edge-backend/internal/models"
	"edge-backend/internal/repository"
)

type AlarmService struct {
	alarmRepo *repository.AlarmRepository
}

// AlarmStats 告警统计数据
type AlarmStats struct {
	TotalCount    int64 `json:"total_count"`    // 告警总数
	ActiveCount   int64 `json:"active_count"`   // 活跃告警数
	ResolvedCount int64 `json:"resolved_count"` // 已解决告警数
}

func NewAlarmService(alarmRepo *repository.AlarmRepository) *AlarmService {
	return &AlarmService{
		alarmRepo: alarmRepo,
	}
}

// CreateAlarm 创建新告警
func (s *AlarmService) CreateAlarm(alarm *models.Alarm) error {
	// 设置默认状态为活跃
	if alarm.Status == "" {
		alarm.Status = models.AlarmStatusActive
	}

	// 验证事件类型
	if !s.isValidEventType(alarm.EventType) {
		return errors.New("无效的事件类型")
	}

	// 验证状态
	if !s.isValidStatus(alarm.Status) {
		return errors.New("无效的告警状态")
	}

	return s.alarmRepo.Create(alarm)
}

// GetAlarm 获取告警详情
func (s *AlarmService) GetAlarm(id uint) (*models.Alarm, error) {
	return s.alarmRepo.GetByID(id)
}

// GetAlarmList 获取告警列表, 支持按状态与事件类型过滤
func (s *AlarmService) GetAlarmList(page, size int, status, eventType string) ([]models.Alarm, int64, error) {
	filters := make(map[string]interface{})
	if status != "" {
		filters["status"] = status
	}
	if eventType != "" {
		filters["event_type"] = eventType
	}
	return s.alarmRepo.List(page, size, filters)
}

// ResolveAlarm 解决告警
func (s *AlarmService) ResolveAlarm(id uint) error {
	alarm, err := s.alarmRepo.GetByID(id)
	if err != nil {
		return errors.New("告警不存在")
	}

	if alarm.Status == models.AlarmStatusResolved {
		return errors.New("告警已经被解决")
	}

	alarm.Status = models.AlarmStatusResolved
	now := time.Now()
	alarm.ResolvedAt = &now
	alarm.UpdatedAt = now

	return s.alarmRepo.Update(alarm)
}

// GetActiveAlarms 获取所有活跃告警
func (s *AlarmService) GetActiveAlarms() ([]models.Alarm, error) {
	return s.alarmRepo.GetActiveAlarms()
}

// GetRecentAlarms 获取最近的告警
func (s *AlarmService) GetRecentAlarms(limit int) ([]models.Alarm, error) {
	if limit <= 0 {
		limit = 10 // 默认返回10条
	}
	return s.alarmRepo.GetRecentAlarms(limit)
}

// GetAlarmStats 获取告警统计信息
func (s *AlarmService) GetAlarmStats() (*AlarmStats, error) {
	stats := &AlarmStats{}

	var err error
	stats.TotalCount, err = s.alarmRepo.Count(nil)
	if err != nil {
		return nil, err
	}

	stats.ActiveCount, err = s.alarmRepo.Count(map[string]interface{}{
		"status": models.AlarmStatusActive,
	})
	if err != nil {
		return nil, err
	}

	stats.ResolvedCount, err = s.alarmRepo.Count(map[string]interface{}{
		"status": models.AlarmStatusResolved,
	})
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// isValidEventType 验证事件类型是否有效
func (s *AlarmService) isValidEventType(eventType models.AlarmEvent) bool {
	switch eventType {
	case models.AlarmEventEnergy, models.AlarmEventNetwork,
		models.AlarmEventPerformance, models.AlarmEventConsensus, models.AlarmEventSystem:
		return true
	default:
		return false
	}
}

// isValidStatus 验证告警状态是否有效
func (s *AlarmService) isValidStatus(status models.AlarmStatus) bool {
	switch status {
	case models.AlarmStatusActive, models.AlarmStatusResolved:
		return true
	default:
		return false
	}
}
