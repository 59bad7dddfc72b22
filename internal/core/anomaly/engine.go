package anomaly

import (
	"log"
	"math"

	"edge-backend/internal/core/define"
	"edge-backend/internal/core/history"
)

// epsilon 标准差下限, 防止零方差桶除零
const epsilon = 1e-6

// Thresholds 异常判定阈值 (来源系统的默认值, 应通过配置调整)
type Thresholds struct {
	HighZScore     float64 // z分数高阈值, 达到即 TRANSMIT/HIGH
	HighComposite  float64 // 综合显著度高阈值
	NormalZScore   float64 // z分数普通阈值, 达到即 TRANSMIT/NORMAL
	NormalComposit float64 // 综合显著度普通阈值
	DeferZScore    float64 // z分数延迟阈值, 达到即 DEFER
	TierMargin     float64 // 档位选择的带宽余量系数
}

// DefaultThresholds 默认异常判定阈值
var DefaultThresholds = Thresholds{
	HighZScore:     3.0,
	HighComposite:  0.8,
	NormalZScore:   2.0,
	NormalComposit: 0.5,
	DeferZScore:    1.5,
	TierMargin:     1.25,
}

// DefaultTiers 默认流传输档位表 (码率降序)
var DefaultTiers = []define.StreamTier{
	{Name: "1080p", BitrateMbps: 8.0, Width: 1920, Height: 1080},
	{Name: "720p", BitrateMbps: 4.0, Width: 1280, Height: 720},
	{Name: "480p", BitrateMbps: 1.5, Width: 854, Height: 480},
	{Name: "240p", BitrateMbps: 0.5, Width: 426, Height: 240},
}

// Engine 异常与传输引擎: 对新观测计算统计分数和学习分数,
// 结合当前约束给出 {DISCARD, DEFER, TRANSMIT} 判定和流传输档位。
type Engine struct {
	history    *history.Store
	scorer     Scorer
	thresholds Thresholds
	tiers      []define.StreamTier
	batch      *BatchBuffer
}

// NewEngine 创建异常与传输引擎
func NewEngine(store *history.Store, scorer Scorer, thresholds Thresholds, tiers []define.StreamTier, batch *BatchBuffer) *Engine {
	if thresholds.HighZScore <= 0 {
		thresholds = DefaultThresholds
	}
	if thresholds.TierMargin < 1 {
		thresholds.TierMargin = DefaultThresholds.TierMargin
	}
	if len(tiers) == 0 {
		tiers = DefaultTiers
	}
	return &Engine{
		history:    store,
		scorer:     scorer,
		thresholds: thresholds,
		tiers:      tiers,
		batch:      batch,
	}
}

// Score 只计算分数, 不修改任何状态。给定相同桶和相同观测,
// 结果是确定性的。
func (e *Engine) Score(obs define.Observation) (statistical, learned float64) {
	bucket, _ := e.history.Lookup(obs.LocationID, obs.Timestamp)
	statistical = math.Abs(obs.ScalarValue-bucket.Mean) / math.Max(bucket.StdDev, epsilon)
	learned = e.scorer.Score(obs)
	return statistical, learned
}

// Evaluate 评估观测值并给出判定。桶的更新不受判定结果影响:
// 桶反映真实观测, 而非被传输的观测。
func (e *Engine) Evaluate(obs define.Observation, snap define.ConstraintSnapshot) define.AnomalyVerdict {
	statistical, learned := e.Score(obs)

	// 综合显著度: z分数归一化后与学习分数等权合成
	zNorm := math.Min(statistical/4.0, 1.0)
	composite := (zNorm + learned) / 2.0

	verdict := define.AnomalyVerdict{
		LocationID:       obs.LocationID,
		ScalarValue:      obs.ScalarValue,
		Timestamp:        obs.Timestamp,
		StatisticalScore: statistical,
		LearnedScore:     learned,
	}

	switch {
	case statistical >= e.thresholds.HighZScore || composite > e.thresholds.HighComposite:
		verdict.Decision = define.VerdictTransmit
		verdict.Priority = define.SendHigh
	case statistical >= e.thresholds.NormalZScore || composite > e.thresholds.NormalComposit:
		verdict.Decision = define.VerdictTransmit
		verdict.Priority = define.SendNormal
	case statistical >= e.thresholds.DeferZScore:
		verdict.Decision = define.VerdictDefer
	default:
		verdict.Decision = define.VerdictDiscard
	}

	// 桶与评分窗口无条件更新
	e.history.Update(obs.LocationID, obs.Timestamp, obs.ScalarValue)
	if observer, ok := e.scorer.(*DensityScorer); ok {
		observer.Observe(obs)
	}

	if verdict.Decision == define.VerdictTransmit {
		tier := e.SelectTier(snap)
		verdict.Tier = &tier
	}

	if verdict.Decision == define.VerdictDefer && e.batch != nil {
		e.batch.Add(verdict)
	}

	log.Printf("[Anomaly] 位置%s 值%.2f z=%.2f learned=%.2f composite=%.2f 判定=%s%s",
		obs.LocationID, obs.ScalarValue, statistical, learned, composite,
		verdict.Decision, prioritySuffix(verdict.Priority))

	return verdict
}

// SelectTier 按当前带宽选择可持续的最高档位 (带余量)。
// 没有档位满足时退回最低档位: 关键告警必须可投递, 宁可降质也不丢弃。
// 快照DEGRADED时带宽读数不可信, 按最坏情况直接取最低档。
func (e *Engine) SelectTier(snap define.ConstraintSnapshot) define.StreamTier {
	if snap.Degraded {
		return e.tiers[len(e.tiers)-1]
	}
	for _, tier := range e.tiers {
		if tier.BitrateMbps*e.thresholds.TierMargin <= snap.NetworkBandwidthMbps {
			return tier
		}
	}
	return e.tiers[len(e.tiers)-1]
}

// TickBatch 周期检查批量缓冲
func (e *Engine) TickBatch() {
	if e.batch != nil {
		e.batch.Tick()
	}
}

func prioritySuffix(p define.SendPriority) string {
	if p == define.SendNone {
		return ""
	}
	return "/" + p.String()
}
