package constraint

import (
	"fmt"
	"log"
	"sync"
	"time"

	"edge-backend/internal/core/define"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
)

// EnergyProbe 电量探测接口 (硬件相关, 可替换)
type EnergyProbe interface {
	EnergyLevelPct() (float64, error)
}

// LatencyProbe 网络时延探测接口 (例如对上游网关的有界探测)
type LatencyProbe interface {
	LatencyMs() (float64, error)
}

// StaticEnergyProbe 固定电量探测 (测试和市电供电节点使用)
type StaticEnergyProbe struct {
	Level float64
}

func (p *StaticEnergyProbe) EnergyLevelPct() (float64, error) {
	return p.Level, nil
}

// StaticLatencyProbe 固定时延探测
type StaticLatencyProbe struct {
	Ms float64
}

func (p *StaticLatencyProbe) LatencyMs() (float64, error) {
	return p.Ms, nil
}

// Options 监控器配置
type Options struct {
	SampleTimeout    time.Duration // 单次采样的最长等待时间
	DegradedAfter    int           // 连续失败多少次后进入DEGRADED
	LinkCapacityMbps float64       // 上行链路标称容量 (Mbps)
	DrainEMAAlpha    float64       // 电量消耗速率的EMA平滑系数
}

// DefaultOptions 默认监控器配置
var DefaultOptions = Options{
	SampleTimeout:    100 * time.Millisecond,
	DegradedAfter:    5,
	LinkCapacityMbps: 50.0,
	DrainEMAAlpha:    0.2,
}

// Monitor 资源约束监控器: 每个周期被调度循环调用一次 Sample()。
// 采样失败时回退到上一次的快照 (带Stale标记), 持续失败进入DEGRADED,
// 由调度器按最坏情况处理。
type Monitor struct {
	opts    Options
	energy  EnergyProbe
	latency LatencyProbe

	mutex        sync.Mutex
	last         *define.ConstraintSnapshot
	failCount    int
	drainPerMin  float64 // 电量消耗速率EMA (%/分钟), 正值为放电
	lastEnergy   float64
	lastEnergyAt time.Time

	// 带宽估算: 上一次net.IOCounters读数
	lastNetBytes uint64
	lastNetAt    time.Time
}

// NewMonitor 创建资源约束监控器
func NewMonitor(opts Options, energy EnergyProbe, latency LatencyProbe) *Monitor {
	if opts.SampleTimeout <= 0 {
		opts.SampleTimeout = DefaultOptions.SampleTimeout
	}
	if opts.DegradedAfter <= 0 {
		opts.DegradedAfter = DefaultOptions.DegradedAfter
	}
	if opts.LinkCapacityMbps <= 0 {
		opts.LinkCapacityMbps = DefaultOptions.LinkCapacityMbps
	}
	if opts.DrainEMAAlpha <= 0 || opts.DrainEMAAlpha > 1 {
		opts.DrainEMAAlpha = DefaultOptions.DrainEMAAlpha
	}
	return &Monitor{
		opts:    opts,
		energy:  energy,
		latency: latency,
	}
}

// Sample 采集一次资源快照。阻塞时间不超过 SampleTimeout。
func (m *Monitor) Sample() define.ConstraintSnapshot {
	type result struct {
		snap define.ConstraintSnapshot
		err  error
	}

	ch := make(chan result, 1)
	go func() {
		snap, err := m.collect()
		ch <- result{snap: snap, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return m.fallback(r.err)
		}
		m.mutex.Lock()
		m.failCount = 0
		m.last = &r.snap
		m.mutex.Unlock()
		return r.snap
	case <-time.After(m.opts.SampleTimeout):
		return m.fallback(fmt.Errorf("采样超时 (>%v)", m.opts.SampleTimeout))
	}
}

// DrainRatePctPerMin 电量消耗速率 (%/分钟, EMA平滑后)
func (m *Monitor) DrainRatePctPerMin() float64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.drainPerMin
}

// fallback 采样失败时回退到上一次快照
func (m *Monitor) fallback(err error) define.ConstraintSnapshot {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.failCount++
	degraded := m.failCount >= m.opts.DegradedAfter
	log.Printf("[ConstraintMonitor] 采样失败 (连续%d次): %v", m.failCount, err)

	if m.last == nil {
		// 没有任何历史快照, 返回最坏情况
		return define.ConstraintSnapshot{
			Timestamp: time.Now(),
			Stale:     true,
			Degraded:  true,
		}
	}

	snap := *m.last
	snap.Timestamp = time.Now()
	snap.Stale = true
	snap.Degraded = degraded
	return snap
}

// collect 执行实际的采样调用
func (m *Monitor) collect() (define.ConstraintSnapshot, error) {
	snap := define.ConstraintSnapshot{Timestamp: time.Now()}

	// 电量
	level, err := m.energy.EnergyLevelPct()
	if err != nil {
		return snap, fmt.Errorf("电量探测失败: %w", err)
	}
	snap.EnergyLevelPct = level
	m.updateDrainTrend(level)

	// CPU使用率 (非阻塞, 基于上次调用以来的增量)
	cpuPercent, err := cpu.Percent(0, false)
	if err == nil && len(cpuPercent) > 0 {
		snap.CPULoadPct = cpuPercent[0]
	}

	// 内存
	memInfo, err := mem.VirtualMemory()
	if err == nil {
		snap.MemoryLoadPct = memInfo.UsedPercent
	}

	// 网络时延
	ms, err := m.latency.LatencyMs()
	if err != nil {
		return snap, fmt.Errorf("时延探测失败: %w", err)
	}
	snap.NetworkLatencyMs = ms

	// 可用带宽 = 链路容量 - 当前吞吐 (由IOCounters增量估算)
	snap.NetworkBandwidthMbps = m.estimateBandwidth()

	return snap, nil
}

// updateDrainTrend 更新电量消耗速率的EMA
func (m *Monitor) updateDrainTrend(level float64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now()
	if !m.lastEnergyAt.IsZero() {
		minutes := now.Sub(m.lastEnergyAt).Minutes()
		if minutes > 0 {
			rate := (m.lastEnergy - level) / minutes
			alpha := m.opts.DrainEMAAlpha
			m.drainPerMin = alpha*rate + (1-alpha)*m.drainPerMin
		}
	}
	m.lastEnergy = level
	m.lastEnergyAt = now
}

// estimateBandwidth 估算可用带宽 (Mbps)
func (m *Monitor) estimateBandwidth() float64 {
	counters, err := psnet.IOCounters(false)
	if err != nil || len(counters) == 0 {
		// 估算失败时保守返回链路容量的一半
		return m.opts.LinkCapacityMbps / 2
	}

	total := counters[0].BytesSent + counters[0].BytesRecv
	now := time.Now()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	defer func() {
		m.lastNetBytes = total
		m.lastNetAt = now
	}()

	if m.lastNetAt.IsZero() || total < m.lastNetBytes {
		return m.opts.LinkCapacityMbps
	}

	seconds := now.Sub(m.lastNetAt).Seconds()
	if seconds <= 0 {
		return m.opts.LinkCapacityMbps
	}

	usedMbps := float64(total-m.lastNetBytes) * 8 / 1e6 / seconds
	avail := m.opts.LinkCapacityMbps - usedMbps
	if avail < 0 {
		avail = 0
	}
	return avail
}
