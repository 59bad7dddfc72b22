package define

import "time"

// ConstraintSnapshot 资源约束快照: 每个调度周期生成一次, 生成后不可变,
// 下一周期用新快照整体替换
type ConstraintSnapshot struct {
	EnergyLevelPct       float64   `json:"energy_level_pct"`       // 电量百分比 (0-100)
	CPULoadPct           float64   `json:"cpu_load_pct"`           // CPU负载百分比 (0-100)
	MemoryLoadPct        float64   `json:"memory_load_pct"`        // 内存负载百分比 (0-100)
	NetworkLatencyMs     float64   `json:"network_latency_ms"`     // 网络时延 (毫秒)
	NetworkBandwidthMbps float64   `json:"network_bandwidth_mbps"` // 可用带宽 (Mbps)
	Timestamp            time.Time `json:"timestamp"`              // 采样时间

	// Stale 表示本次采样失败, 返回的是上一次的快照
	Stale bool `json:"stale"`
	// Degraded 表示采样持续失败, 调度器必须按最坏情况处理 (fail-safe)
	Degraded bool `json:"degraded"`
}
