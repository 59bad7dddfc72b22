package service

import (
	"log"

	"edge-backend/internal/core/define"
	"edge-backend/internal/models"
	"edge-backend/internal/repository"
)

// DecisionService 调度决策留痕服务, 供调度器在每次裁决后回调
type DecisionService struct {
	decisionRepo *repository.DecisionRepository
}

func NewDecisionService(decisionRepo *repository.DecisionRepository) *DecisionService {
	return &DecisionService{decisionRepo: decisionRepo}
}

// Record 持久化一条调度决策
func (s *DecisionService) Record(rec define.DecisionRecord) {
	record := &models.SchedulerDecision{
		TaskID:        rec.TaskID,
		TaskName:      rec.TaskName,
		Priority:      rec.Priority,
		Decision:      rec.Decision,
		Reason:        rec.Reason,
		EnergyPct:     rec.EnergyPct,
		LatencyMs:     rec.LatencyMs,
		BandwidthMbps: rec.BandwidthMbps,
	}
	if err := s.decisionRepo.Create(record); err != nil {
		log.Printf("[Decision] 决策落库失败: %v", err)
	}
}

// ListDecisions 分页查询调度决策
func (s *DecisionService) ListDecisions(current, size int, decision string) ([]models.SchedulerDecision, int64, error) {
	return s.decisionRepo.List(current, size, decision)
}

// GetDecisionStats 统计各决策类型数量
func (s *DecisionService) GetDecisionStats() (map[string]int64, error) {
	stats := make(map[string]int64)
	for _, d := range []define.Decision{
		define.DecisionExecuteNormal,
		define.DecisionExecuteReduced,
		define.DecisionDeferEnergy,
		define.DecisionDeferNetwork,
		define.DecisionDrop,
	} {
		count, err := s.decisionRepo.CountByDecision(d.String())
		if err != nil {
			return nil, err
		}
		stats[d.String()] = count
	}
	return stats, nil
}
