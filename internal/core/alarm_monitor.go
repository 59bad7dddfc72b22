package core

import (
	"fmt"
	"log"
	"sync"
	"time"

	"edge-backend/internal/core/consensus"
	"edge-backend/internal/core/define"
	"edge-backend/internal/models"
	"edge-backend/internal/service"
)

// AlarmThresholds 告警阈值配置
type AlarmThresholds struct {
	// 电量告警下限 (百分比)
	MinEnergyPct float64
	// 电量消耗速率上限 (%/分钟)
	MaxDrainPctPerMin float64
	// 网络时延上限 (毫秒)
	MaxLatencyMs float64
	// 带宽下限 (Mbps)
	MinBandwidthMbps float64
	// 延迟队列积压上限 (条)
	MaxQueueBacklog int
	// 连续共识失败次数上限
	MaxConsensusFailures int
}

// DefaultAlarmThresholds 默认告警阈值
var DefaultAlarmThresholds = AlarmThresholds{
	MinEnergyPct:         15.0,
	MaxDrainPctPerMin:    2.0,
	MaxLatencyMs:         500.0,
	MinBandwidthMbps:     1.0,
	MaxQueueBacklog:      64,
	MaxConsensusFailures: 3,
}

// AlarmMonitor 告警监控器: 周期循环每轮结束时调用各项检查
type AlarmMonitor struct {
	alarmService *service.AlarmService
	thresholds   AlarmThresholds
	mutex        sync.RWMutex

	// 告警去重: 相同类型的告警在一定时间内只产生一次
	lastAlarmTime map[string]time.Time
	cooldown      time.Duration

	// 连续共识失败计数
	consensusFailures int
}

// NewAlarmMonitor 创建告警监控器
func NewAlarmMonitor(alarmService *service.AlarmService) *AlarmMonitor {
	return &AlarmMonitor{
		alarmService:  alarmService,
		thresholds:    DefaultAlarmThresholds,
		lastAlarmTime: make(map[string]time.Time),
		cooldown:      5 * time.Minute, // 同类型告警5分钟内只触发一次
	}
}

// SetThresholds 设置自定义阈值
func (m *AlarmMonitor) SetThresholds(thresholds AlarmThresholds) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.thresholds = thresholds
}

// CheckConstraints 检查资源快照并产生告警
func (m *AlarmMonitor) CheckConstraints(snap define.ConstraintSnapshot, drainPctPerMin float64) {
	m.mutex.RLock()
	thresholds := m.thresholds
	m.mutex.RUnlock()

	// 1. 约束监控降级
	if snap.Degraded {
		m.createAlarm(
			"system_degraded",
			"资源监控降级",
			models.AlarmEventSystem,
			"资源采样持续失败, 调度已按最坏情况运行",
		)
		return // 降级时快照数值不可信, 跳过数值检查
	}

	// 2. 电量不足
	if snap.EnergyLevelPct < thresholds.MinEnergyPct {
		m.createAlarm(
			"energy_low",
			"节点电量不足",
			models.AlarmEventEnergy,
			fmt.Sprintf("节点电量 %.1f%% 低于阈值 %.1f%%, 非关键任务已延迟执行",
				snap.EnergyLevelPct, thresholds.MinEnergyPct),
		)
	}

	// 3. 耗电异常
	if drainPctPerMin > thresholds.MaxDrainPctPerMin {
		m.createAlarm(
			"energy_drain",
			"耗电速率异常",
			models.AlarmEventEnergy,
			fmt.Sprintf("电量消耗速率 %.2f%%/分钟超过阈值 %.2f%%/分钟",
				drainPctPerMin, thresholds.MaxDrainPctPerMin),
		)
	}

	// 4. 网络时延劣化
	if snap.NetworkLatencyMs > thresholds.MaxLatencyMs {
		m.createAlarm(
			"network_latency",
			"网络时延过高",
			models.AlarmEventNetwork,
			fmt.Sprintf("上行时延 %.0fms 超过阈值 %.0fms, 网络类任务已延迟执行",
				snap.NetworkLatencyMs, thresholds.MaxLatencyMs),
		)
	}

	// 5. 带宽劣化
	if snap.NetworkBandwidthMbps < thresholds.MinBandwidthMbps {
		m.createAlarm(
			"network_bandwidth",
			"可用带宽不足",
			models.AlarmEventNetwork,
			fmt.Sprintf("可用带宽 %.2fMbps 低于阈值 %.2fMbps",
				snap.NetworkBandwidthMbps, thresholds.MinBandwidthMbps),
		)
	}
}

// CheckQueues 检查延迟队列积压
func (m *AlarmMonitor) CheckQueues(energyDepth, networkDepth int) {
	m.mutex.RLock()
	limit := m.thresholds.MaxQueueBacklog
	m.mutex.RUnlock()

	if energyDepth+networkDepth > limit {
		m.createAlarm(
			"performance_backlog",
			"延迟队列积压严重",
			models.AlarmEventPerformance,
			fmt.Sprintf("延迟任务积压 %d 条 (能量队列%d, 网络队列%d) 超过阈值 %d",
				energyDepth+networkDepth, energyDepth, networkDepth, limit),
		)
	}
}

// CheckConsensusResult 跟踪共识轮次结果, 连续失败时告警
func (m *AlarmMonitor) CheckConsensusResult(result consensus.RoundResult) {
	m.mutex.Lock()
	if result.Outcome == consensus.OutcomeAgreed {
		m.consensusFailures = 0
		m.mutex.Unlock()
		return
	}
	m.consensusFailures++
	failures := m.consensusFailures
	limit := m.thresholds.MaxConsensusFailures
	m.mutex.Unlock()

	if failures >= limit {
		m.createAlarm(
			"consensus_failures",
			"共识轮次连续失败",
			models.AlarmEventConsensus,
			fmt.Sprintf("连续 %d 轮共识失败 (最近原因: %s), 对端节点可能不可达",
				failures, result.Reason),
		)
	}
}

// createAlarm 创建告警（带去重）
func (m *AlarmMonitor) createAlarm(alarmKey, name string, eventType models.AlarmEvent, description string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	// 检查冷却时间
	if lastTime, exists := m.lastAlarmTime[alarmKey]; exists {
		if time.Since(lastTime) < m.cooldown {
			return
		}
	}

	alarm := &models.Alarm{
		Name:        name,
		EventType:   eventType,
		Status:      models.AlarmStatusActive,
		Description: description,
	}

	if err := m.alarmService.CreateAlarm(alarm); err != nil {
		log.Printf("[AlarmMonitor] 创建告警失败: %v", err)
		return
	}

	m.lastAlarmTime[alarmKey] = time.Now()
	log.Printf("[AlarmMonitor] 告警已创建: %s - %s", name, description)
}

// CleanupOldAlarms 清理旧的告警时间记录（定期清理，避免内存泄漏）
func (m *AlarmMonitor) CleanupOldAlarms() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now()
	for key, lastTime := range m.lastAlarmTime {
		if now.Sub(lastTime) > m.cooldown*2 {
			delete(m.lastAlarmTime, key)
		}
	}
}
