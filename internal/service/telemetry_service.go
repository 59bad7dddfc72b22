package service

import (
	"fmt"
	"log"

	"edge-backend/internal/core/define"
	"edge-backend/internal/models"
	"edge-backend/internal/repository"

	"github.com/google/uuid"
)

// TelemetryService 遥测上行通道: 把通过异常判定的观测发布到上游主题并落库留痕。
// 发布语义为至多一次, 发送失败只记录日志, 不做重试。
type TelemetryService struct {
	nodeID        string
	telemetryRepo *repository.TelemetryRepository
}

func NewTelemetryService(nodeID string, telemetryRepo *repository.TelemetryRepository) *TelemetryService {
	return &TelemetryService{
		nodeID:        nodeID,
		telemetryRepo: telemetryRepo,
	}
}

// Topic 返回本节点的遥测主题
func (s *TelemetryService) Topic() string {
	return fmt.Sprintf("edge/%s/telemetry", s.nodeID)
}

// PublishImmediate 立即上送单条观测 (TRANSMIT判定)
func (s *TelemetryService) PublishImmediate(verdict *define.AnomalyVerdict) error {
	event := s.buildEvent(verdict, false)
	log.Printf("[Telemetry] 上送事件: topic=%s location=%s priority=%s value=%.2f",
		event.Topic, event.LocationID, event.Priority, event.ScalarValue)
	return s.telemetryRepo.Create(event)
}

// PublishBatch 批量上送延迟观测 (DEFER判定的批次冲刷)
func (s *TelemetryService) PublishBatch(verdicts []define.AnomalyVerdict) error {
	if len(verdicts) == 0 {
		return nil
	}
	log.Printf("[Telemetry] 批量上送: topic=%s count=%d", s.Topic(), len(verdicts))
	for i := range verdicts {
		event := s.buildEvent(&verdicts[i], true)
		if err := s.telemetryRepo.Create(event); err != nil {
			// 至多一次语义: 失败不重试, 仅记录
			log.Printf("[Telemetry] 事件落库失败: %v", err)
		}
	}
	return nil
}

// ListEvents 分页查询遥测事件
func (s *TelemetryService) ListEvents(current, size int, locationID string) ([]models.TelemetryEvent, int64, error) {
	return s.telemetryRepo.List(current, size, locationID)
}

// GetRecentEvents 查询最近的遥测事件
func (s *TelemetryService) GetRecentEvents(limit int) ([]models.TelemetryEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.telemetryRepo.GetRecent(limit)
}

func (s *TelemetryService) buildEvent(verdict *define.AnomalyVerdict, batched bool) *models.TelemetryEvent {
	event := &models.TelemetryEvent{
		EventID:     uuid.NewString(),
		Topic:       s.Topic(),
		LocationID:  verdict.LocationID,
		ScalarValue: verdict.ScalarValue,
		ObservedAt:  verdict.Timestamp,
		Priority:    verdict.Priority.String(),
		Batched:     batched,
	}
	if verdict.Tier != nil {
		event.Tier = verdict.Tier.Name
	}
	return event
}
