package core

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"edge-backend/internal/core/define"
)

// DetectFunc 检测协作方: 对一段视频流执行分析并返回观测值。
// 降级模式下协作方应选择最省电的分析路径 (降帧率/降分辨率)。
type DetectFunc func(ctx context.Context, mode define.ExecMode) (*define.Observation, error)

// AnalysisTask 视频分析任务载荷: 把检测协作方包装成可调度的任务
type AnalysisTask struct {
	LocationID string
	Detect     DetectFunc
}

func (t *AnalysisTask) Run(ctx context.Context, mode define.ExecMode) (*define.Observation, error) {
	if t.Detect == nil {
		return nil, errors.New("检测协作方未设置")
	}
	return t.Detect(ctx, mode)
}

func (t *AnalysisTask) Kind() string {
	return "analysis"
}

// ObservationTask 直接携带观测值的任务载荷, 用于外部已经完成检测、
// 只需要走调度与异常判定流程的场景 (例如API上报)
type ObservationTask struct {
	Observation define.Observation
}

func (t *ObservationTask) Run(ctx context.Context, mode define.ExecMode) (*define.Observation, error) {
	obs := t.Observation
	if obs.Timestamp.IsZero() {
		obs.Timestamp = time.Now()
	}
	return &obs, nil
}

func (t *ObservationTask) Kind() string {
	return "observation"
}

// MaintenanceTask 维护类任务载荷 (模型同步/日志上传等), 无观测产出
type MaintenanceTask struct {
	Name string
	Do   func(ctx context.Context) error
}

func (t *MaintenanceTask) Run(ctx context.Context, mode define.ExecMode) (*define.Observation, error) {
	if t.Do == nil {
		return nil, nil
	}
	return nil, t.Do(ctx)
}

func (t *MaintenanceTask) Kind() string {
	return "maintenance"
}

// SimulatedDetect 模拟检测协作方: 围绕基准值波动的拥堵计数,
// 用于没有接入真实检测模型的部署和演示环境
func SimulatedDetect(locationID string, baseline float64) DetectFunc {
	return func(ctx context.Context, mode define.ExecMode) (*define.Observation, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// 降级模式下观测粒度更粗
		noise := rand.NormFloat64() * baseline * 0.2
		if mode == define.ExecReduced {
			noise = math.Round(noise)
		}

		return &define.Observation{
			LocationID:  locationID,
			ScalarValue: math.Max(0, baseline+noise),
			Timestamp:   time.Now(),
		}, nil
	}
}
