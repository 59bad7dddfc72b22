package models

import (
	"time"
)

// AlarmStatus 告警状态枚举
type AlarmStatus string

const (
	AlarmStatusActive   AlarmStatus = "pending"  // 活跃状态
	AlarmStatusResolved AlarmStatus = "resolved" // 已解决
)

// AlarmEvent 事件类型枚举
type AlarmEvent string

const (
	AlarmEventEnergy      AlarmEvent = "energy"      // 能量事件 (电量不足/耗电异常)
	AlarmEventNetwork     AlarmEvent = "network"     // 网络事件 (时延/带宽劣化)
	AlarmEventPerformance AlarmEvent = "performance" // 性能事件 (队列积压/负载过高)
	AlarmEventConsensus   AlarmEvent = "consensus"   // 共识事件 (轮次失败/对端异常)
	AlarmEventSystem      AlarmEvent = "system"      // 系统事件
)

// Alarm 告警数据模型
type Alarm struct {
	ID          uint        `json:"id" gorm:"primaryKey;autoIncrement" example:"1"`
	Name        string      `json:"name" gorm:"not null;size:255" validate:"required,min=1,max=255" example:"节点电量不足"`
	EventType   AlarmEvent  `json:"event_type" gorm:"not null;size:50" validate:"required" example:"energy"`
	Status      AlarmStatus `json:"status" gorm:"not null;size:20;default:'pending'" validate:"required" example:"pending"`
	Description string      `json:"description" gorm:"type:text" validate:"max=1000" example:"节点电量 15.0% 低于阈值 20.0%, 非关键任务已延迟执行"`
	CreatedAt   time.Time   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time   `json:"updated_at" gorm:"autoUpdateTime"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty"`
}
