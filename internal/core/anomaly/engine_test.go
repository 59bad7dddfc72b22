package anomaly

import (
	"math"
	"sync"
	"testing"
	"time"

	"edge-backend/internal/core/define"
	"edge-backend/internal/core/history"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedScorer 返回固定学习分数, 隔离统计分支
type fixedScorer struct {
	value float64
}

func (s *fixedScorer) Score(obs define.Observation) float64 { return s.value }

var testTime = time.Date(2026, 8, 24, 8, 0, 0, 0, time.UTC)

// newTestEngine 构造带已知桶统计的引擎: loc-1 均值20, 标准差5
func newTestEngine(learned float64, batch *BatchBuffer) *Engine {
	store := history.NewStore(25.0, 25.0)
	store.Seed("loc-1", history.SlotOf(testTime), 20.0, 5.0, 100)
	return NewEngine(store, &fixedScorer{value: learned}, DefaultThresholds, DefaultTiers, batch)
}

func obsWithValue(v float64) define.Observation {
	return define.Observation{LocationID: "loc-1", ScalarValue: v, Timestamp: testTime}
}

func goodSnapshot() define.ConstraintSnapshot {
	return define.ConstraintSnapshot{NetworkBandwidthMbps: 50, Timestamp: testTime}
}

// z恰好到达高阈值时立即传输且为高优先级
func TestHighZScoreTransmitsHigh(t *testing.T) {
	e := newTestEngine(0, nil)

	// 35 = 均值20 + 3×标准差5, z = 3.0
	verdict := e.Evaluate(obsWithValue(35), goodSnapshot())

	assert.Equal(t, define.VerdictTransmit, verdict.Decision)
	assert.Equal(t, define.SendHigh, verdict.Priority)
	assert.InDelta(t, 3.0, verdict.StatisticalScore, 1e-9)
	require.NotNil(t, verdict.Tier)
}

// 中等z分数以普通优先级传输
func TestModerateZScoreTransmitsNormal(t *testing.T) {
	e := newTestEngine(0, nil)

	// z = |31-20|/5 = 2.2
	verdict := e.Evaluate(obsWithValue(31), goodSnapshot())

	assert.Equal(t, define.VerdictTransmit, verdict.Decision)
	assert.Equal(t, define.SendNormal, verdict.Priority)
}

// 轻度异常进入批量缓冲而不是立即传输
func TestMildZScoreDefers(t *testing.T) {
	batch := NewBatchBuffer(8, time.Hour, nil)
	e := newTestEngine(0, batch)

	// z = |28-20|/5 = 1.6
	verdict := e.Evaluate(obsWithValue(28), goodSnapshot())

	assert.Equal(t, define.VerdictDefer, verdict.Decision)
	assert.Equal(t, define.SendNone, verdict.Priority)
	assert.Nil(t, verdict.Tier)
	assert.Equal(t, 1, batch.Len())
}

// 正常观测丢弃, 无任何传输副作用
func TestQuietObservationDiscarded(t *testing.T) {
	batch := NewBatchBuffer(8, time.Hour, nil)
	e := newTestEngine(0, batch)

	// z = |21-20|/5 = 0.2
	verdict := e.Evaluate(obsWithValue(21), goodSnapshot())

	assert.Equal(t, define.VerdictDiscard, verdict.Decision)
	assert.Nil(t, verdict.Tier)
	assert.Equal(t, 0, batch.Len())
}

// 零方差桶由epsilon下限兜底: 不产生NaN/Inf, 任何偏离都极显著
func TestZeroVarianceBucket(t *testing.T) {
	store := history.NewStore(0, 1)
	store.Seed("loc-1", history.SlotOf(testTime), 40.0, 0.0, 10)
	e := NewEngine(store, &fixedScorer{}, DefaultThresholds, DefaultTiers, nil)

	same := e.Evaluate(obsWithValue(40), goodSnapshot())
	assert.False(t, math.IsNaN(same.StatisticalScore))
	assert.Equal(t, define.VerdictDiscard, same.Decision)

	off := e.Evaluate(obsWithValue(41), goodSnapshot())
	assert.False(t, math.IsNaN(off.StatisticalScore))
	assert.False(t, math.IsInf(off.StatisticalScore, 1))
	assert.Equal(t, define.VerdictTransmit, off.Decision)
	assert.Equal(t, define.SendHigh, off.Priority)
}

// 高学习分数单独也能触发传输 (综合显著度分支)
func TestHighLearnedScoreTransmits(t *testing.T) {
	e := newTestEngine(0.99, nil)

	// z = 0.2, 但 composite = (0.05+0.99)/2 = 0.52 超过普通阈值
	verdict := e.Evaluate(obsWithValue(21), goodSnapshot())
	assert.Equal(t, define.VerdictTransmit, verdict.Decision)
	assert.Equal(t, define.SendNormal, verdict.Priority)
}

// 相同桶状态下评分是确定性的
func TestScoreDeterministic(t *testing.T) {
	e := newTestEngine(0.3, nil)
	obs := obsWithValue(33)

	z1, l1 := e.Score(obs)
	z2, l2 := e.Score(obs)
	z3, l3 := e.Score(obs)

	assert.Equal(t, z1, z2)
	assert.Equal(t, z2, z3)
	assert.Equal(t, l1, l2)
	assert.Equal(t, l2, l3)
}

// 桶更新不受判定结果影响: DISCARD的观测也计入统计
func TestBucketUpdatedRegardlessOfVerdict(t *testing.T) {
	store := history.NewStore(25.0, 25.0)
	store.Seed("loc-1", history.SlotOf(testTime), 20.0, 5.0, 100)
	e := NewEngine(store, &fixedScorer{}, DefaultThresholds, DefaultTiers, nil)

	verdict := e.Evaluate(obsWithValue(21), goodSnapshot())
	require.Equal(t, define.VerdictDiscard, verdict.Decision)

	bucket, found := store.Lookup("loc-1", testTime)
	require.True(t, found)
	assert.EqualValues(t, 101, bucket.SampleCount)
}

// 档位选择: 带宽充足时选最高档, 不足时逐级降档, 全不满足退回最低档
func TestSelectTier(t *testing.T) {
	e := newTestEngine(0, nil)

	cases := []struct {
		bandwidth float64
		want      string
	}{
		{50, "1080p"}, // 8×1.25=10 <= 50
		{6, "720p"},   // 10 > 6, 4×1.25=5 <= 6
		{2, "480p"},   // 1.5×1.25=1.875 <= 2
		{0.3, "240p"}, // 全不满足, 退回最低档
	}
	for _, c := range cases {
		tier := e.SelectTier(define.ConstraintSnapshot{NetworkBandwidthMbps: c.bandwidth})
		assert.Equal(t, c.want, tier.Name, "带宽 %.1f Mbps", c.bandwidth)
	}
}

// DEGRADED快照的带宽读数不可信: 忽略读数直接取最低档
func TestSelectTierDegradedWorstCase(t *testing.T) {
	e := newTestEngine(0, nil)

	tier := e.SelectTier(define.ConstraintSnapshot{Degraded: true, NetworkBandwidthMbps: 50})
	assert.Equal(t, "240p", tier.Name)
}

// 批量缓冲: 缓冲满时整批刷出
func TestBatchFlushOnFull(t *testing.T) {
	var mutex sync.Mutex
	var flushed []define.AnomalyVerdict
	batch := NewBatchBuffer(3, time.Hour, func(vs []define.AnomalyVerdict) {
		mutex.Lock()
		defer mutex.Unlock()
		flushed = append(flushed, vs...)
	})

	for i := 0; i < 3; i++ {
		batch.Add(define.AnomalyVerdict{LocationID: "loc-1", ScalarValue: float64(i)})
	}

	mutex.Lock()
	defer mutex.Unlock()
	assert.Len(t, flushed, 3)
	assert.Equal(t, 0, batch.Len())
}

// 批量缓冲: 周期到达时刷出未满的批次
func TestBatchFlushOnInterval(t *testing.T) {
	var mutex sync.Mutex
	var flushed []define.AnomalyVerdict
	batch := NewBatchBuffer(32, 10*time.Millisecond, func(vs []define.AnomalyVerdict) {
		mutex.Lock()
		defer mutex.Unlock()
		flushed = append(flushed, vs...)
	})

	batch.Add(define.AnomalyVerdict{LocationID: "loc-1"})
	time.Sleep(20 * time.Millisecond)
	batch.Tick()

	mutex.Lock()
	defer mutex.Unlock()
	assert.Len(t, flushed, 1)
}
