package core

import (
	"context"
	"testing"

	"edge-backend/internal/core/define"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ObservationTask 原样返回观测并补齐缺失的时间戳
func TestObservationTaskFillsTimestamp(t *testing.T) {
	task := &ObservationTask{
		Observation: define.Observation{LocationID: "loc-1", ScalarValue: 42},
	}

	obs, err := task.Run(context.Background(), define.ExecNormal)
	require.NoError(t, err)
	assert.Equal(t, "loc-1", obs.LocationID)
	assert.Equal(t, 42.0, obs.ScalarValue)
	assert.False(t, obs.Timestamp.IsZero())
}

// 模拟检测: 观测值非负且带位置信息
func TestSimulatedDetect(t *testing.T) {
	detect := SimulatedDetect("loc-7", 25.0)

	for i := 0; i < 50; i++ {
		obs, err := detect(context.Background(), define.ExecReduced)
		require.NoError(t, err)
		assert.Equal(t, "loc-7", obs.LocationID)
		assert.GreaterOrEqual(t, obs.ScalarValue, 0.0)
	}
}

// 已取消的上下文立即中止检测
func TestSimulatedDetectHonorsContext(t *testing.T) {
	detect := SimulatedDetect("loc-7", 25.0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := detect(ctx, define.ExecNormal)
	assert.ErrorIs(t, err, context.Canceled)
}

// 未配置检测协作方的分析任务返回错误而不是崩溃
func TestAnalysisTaskWithoutDetector(t *testing.T) {
	task := &AnalysisTask{LocationID: "loc-1"}
	_, err := task.Run(context.Background(), define.ExecNormal)
	assert.Error(t, err)
}
