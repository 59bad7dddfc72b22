package models

import "time"

// SchedulerDecision 调度决策记录: 每次Admit的结构化留痕,
// 是调度器除触发任务执行外唯一的外部可见副作用
type SchedulerDecision struct {
	ID            uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	TaskID        string    `json:"task_id" gorm:"size:64;index"`
	TaskName      string    `json:"task_name" gorm:"size:128"`
	Priority      string    `json:"priority" gorm:"size:16"`
	Decision      string    `json:"decision" gorm:"size:32;index"`
	Reason        string    `json:"reason" gorm:"size:255"`
	EnergyPct     float64   `json:"energy_pct"`
	LatencyMs     float64   `json:"latency_ms"`
	BandwidthMbps float64   `json:"bandwidth_mbps"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}
