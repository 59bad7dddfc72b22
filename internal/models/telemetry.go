package models

import "time"

// TelemetryEvent 上行遥测事件: TRANSMIT判定的观测在交给上游传输
// 协作方之前先落库 (投递语义为至多一次, 本地记录用于追溯)
type TelemetryEvent struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	EventID     string    `json:"event_id" gorm:"size:64;uniqueIndex"` // 事件唯一ID
	Topic       string    `json:"topic" gorm:"size:128"`               // 按节点ID划分的发布主题
	LocationID  string    `json:"location_id" gorm:"size:64;index"`
	ScalarValue float64   `json:"scalar_value"`
	ObservedAt  time.Time `json:"observed_at"`
	Tier        string    `json:"tier" gorm:"size:32"`     // 选定的流传输档位
	Priority    string    `json:"priority" gorm:"size:16"` // NORMAL / HIGH
	Batched     bool      `json:"batched"`                 // 是否来自DEFER批量刷出
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}
