package repository

import (
	"edge-backend/internal/models"

	"gorm.io/gorm"
)

type DecisionRepository struct {
	db *gorm.DB
}

func NewDecisionRepository(db *gorm.DB) *DecisionRepository {
	return &DecisionRepository{db: db}
}

// Create 记录调度决策
func (r *DecisionRepository) Create(decision *models.SchedulerDecision) error {
	return r.db.Create(decision).Error
}

// List 分页获取调度决策记录, 支持按决策类型过滤
func (r *DecisionRepository) List(current, size int, decision string) ([]models.SchedulerDecision, int64, error) {
	var records []models.SchedulerDecision
	var total int64

	query := r.db.Model(&models.SchedulerDecision{})
	if decision != "" {
		query = query.Where("decision = ?", decision)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (current - 1) * size
	err := query.Order("created_at DESC").Offset(offset).Limit(size).Find(&records).Error
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// CountByDecision 按决策类型统计
func (r *DecisionRepository) CountByDecision(decision string) (int64, error) {
	var count int64
	err := r.db.Model(&models.SchedulerDecision{}).Where("decision = ?", decision).Count(&count).Error
	return count, err
}
