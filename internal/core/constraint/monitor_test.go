package constraint

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyEnergyProbe 可控的电量探测: 支持注入错误和调整读数
type flakyEnergyProbe struct {
	mutex sync.Mutex
	level float64
	err   error
}

func (p *flakyEnergyProbe) set(level float64, err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.level = level
	p.err = err
}

func (p *flakyEnergyProbe) EnergyLevelPct() (float64, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.level, p.err
}

// slowLatencyProbe 阻塞超过采样时限的时延探测
type slowLatencyProbe struct {
	delay time.Duration
}

func (p *slowLatencyProbe) LatencyMs() (float64, error) {
	time.Sleep(p.delay)
	return 40, nil
}

// 正常采样: 快照带探测值且不带降级标记
func TestSampleHealthy(t *testing.T) {
	m := NewMonitor(DefaultOptions,
		&StaticEnergyProbe{Level: 80}, &StaticLatencyProbe{Ms: 40})

	snap := m.Sample()

	assert.Equal(t, 80.0, snap.EnergyLevelPct)
	assert.Equal(t, 40.0, snap.NetworkLatencyMs)
	assert.False(t, snap.Stale)
	assert.False(t, snap.Degraded)
	assert.False(t, snap.Timestamp.IsZero())
}

// 无历史快照时采样失败直接按最坏情况返回
func TestFirstSampleFailureWorstCase(t *testing.T) {
	probe := &flakyEnergyProbe{}
	probe.set(0, errors.New("硬件不可达"))
	m := NewMonitor(DefaultOptions, probe, &StaticLatencyProbe{Ms: 40})

	snap := m.Sample()

	assert.True(t, snap.Stale)
	assert.True(t, snap.Degraded)
}

// 采样失败回退到上一次快照, 连续失败达到阈值后进入DEGRADED
func TestFallbackThenDegraded(t *testing.T) {
	probe := &flakyEnergyProbe{}
	probe.set(75, nil)
	opts := DefaultOptions
	opts.DegradedAfter = 3
	m := NewMonitor(opts, probe, &StaticLatencyProbe{Ms: 40})

	healthy := m.Sample()
	require.False(t, healthy.Stale)

	probe.set(0, errors.New("硬件不可达"))

	first := m.Sample()
	assert.True(t, first.Stale)
	assert.False(t, first.Degraded)
	assert.Equal(t, 75.0, first.EnergyLevelPct) // 沿用上一次读数

	second := m.Sample()
	assert.False(t, second.Degraded)

	third := m.Sample()
	assert.True(t, third.Degraded)

	// 探测恢复后降级解除
	probe.set(70, nil)
	recovered := m.Sample()
	assert.False(t, recovered.Stale)
	assert.False(t, recovered.Degraded)
	assert.Equal(t, 70.0, recovered.EnergyLevelPct)
}

// 采样阻塞不超过配置的时限
func TestSampleTimeoutBounded(t *testing.T) {
	opts := DefaultOptions
	opts.SampleTimeout = 20 * time.Millisecond
	m := NewMonitor(opts, &StaticEnergyProbe{Level: 80},
		&slowLatencyProbe{delay: 500 * time.Millisecond})

	start := time.Now()
	snap := m.Sample()
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 200*time.Millisecond)
	assert.True(t, snap.Stale)
}

// 电量下降时消耗速率为正
func TestDrainRateTracksDischarge(t *testing.T) {
	probe := &flakyEnergyProbe{}
	probe.set(100, nil)
	m := NewMonitor(DefaultOptions, probe, &StaticLatencyProbe{Ms: 40})

	m.Sample()
	time.Sleep(5 * time.Millisecond)
	probe.set(90, nil)
	m.Sample()

	assert.Greater(t, m.DrainRatePctPerMin(), 0.0)
}
