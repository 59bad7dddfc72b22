package anomaly

import (
	"math"
	"sync"

	"edge-backend/internal/core/define"
)

// Scorer 学习型异常评分接口: 任何满足 score -> [0,1] 契约的离群点
// 模型都可以替换默认实现 (策略模式)
type Scorer interface {
	Score(obs define.Observation) float64
}

// DensityScorer 基于滑动窗口的密度估计评分器 (默认实现)。
// 对每个位置维护最近N个观测值, 评分为值域邻域内样本占比的补值:
// 邻居越少, 观测越离群, 分数越高。
type DensityScorer struct {
	mutex      sync.Mutex
	windowSize int
	tolerance  float64 // 邻域半径 (相对于窗口值域的比例)
	windows    map[string][]float64
}

// NewDensityScorer 创建密度评分器
func NewDensityScorer(windowSize int, tolerance float64) *DensityScorer {
	if windowSize <= 0 {
		windowSize = 256
	}
	if tolerance <= 0 || tolerance >= 1 {
		tolerance = 0.1
	}
	return &DensityScorer{
		windowSize: windowSize,
		tolerance:  tolerance,
		windows:    make(map[string][]float64),
	}
}

// Score 计算观测值的离群分数 [0,1]。给定相同窗口状态和相同输入,
// 结果是确定性的。
func (d *DensityScorer) Score(obs define.Observation) float64 {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	window := d.windows[obs.LocationID]
	if len(window) < 8 {
		// 样本不足, 低置信度返回中性分数
		return 0.5
	}

	lo, hi := window[0], window[0]
	for _, v := range window {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	if span <= 0 {
		// 窗口内全部为常量: 相等则不离群, 否则完全离群
		if obs.ScalarValue == lo {
			return 0
		}
		return 1
	}

	radius := span * d.tolerance
	neighbors := 0
	for _, v := range window {
		if math.Abs(v-obs.ScalarValue) <= radius {
			neighbors++
		}
	}
	return 1 - float64(neighbors)/float64(len(window))
}

// Observe 将观测值纳入窗口 (评分之后由引擎调用, 与桶更新同步)
func (d *DensityScorer) Observe(obs define.Observation) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	window := append(d.windows[obs.LocationID], obs.ScalarValue)
	if len(window) > d.windowSize {
		window = window[len(window)-d.windowSize:]
	}
	d.windows[obs.LocationID] = window
}
