package repository

import (
	"edge-backend/internal/models"

	"gorm.io/gorm"
)

type TelemetryRepository struct {
	db *gorm.DB
}

func NewTelemetryRepository(db *gorm.DB) *TelemetryRepository {
	return &TelemetryRepository{db: db}
}

// Create 记录遥测事件
func (r *TelemetryRepository) Create(event *models.TelemetryEvent) error {
	return r.db.Create(event).Error
}

// List 分页获取遥测事件, 支持按位置过滤
func (r *TelemetryRepository) List(current, size int, locationID string) ([]models.TelemetryEvent, int64, error) {
	var events []models.TelemetryEvent
	var total int64

	query := r.db.Model(&models.TelemetryEvent{})
	if locationID != "" {
		query = query.Where("location_id = ?", locationID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (current - 1) * size
	err := query.Order("created_at DESC").Offset(offset).Limit(size).Find(&events).Error
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

// GetRecent 获取最近的遥测事件
func (r *TelemetryRepository) GetRecent(limit int) ([]models.TelemetryEvent, error) {
	var events []models.TelemetryEvent
	err := r.db.Order("created_at DESC").Limit(limit).Find(&events).Error
	return events, err
}

// CountByPriority 按传输优先级统计事件数
func (r *TelemetryRepository) CountByPriority(priority string) (int64, error) {
	var count int64
	err := r.db.Model(&models.TelemetryEvent{}).Where("priority = ?", priority).Count(&count).Error
	return count, err
}
