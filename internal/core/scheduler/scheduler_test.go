package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"edge-backend/internal/core/define"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopRunner 测试用空载荷
type noopRunner struct{}

func (r *noopRunner) Run(ctx context.Context, mode define.ExecMode) (*define.Observation, error) {
	return nil, nil
}

func (r *noopRunner) Kind() string { return "noop" }

// captureRecorder 收集决策记录
type captureRecorder struct {
	mutex   sync.Mutex
	records []define.DecisionRecord
}

func (r *captureRecorder) Record(rec define.DecisionRecord) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.records = append(r.records, rec)
}

func (r *captureRecorder) decisions() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	out := make([]string, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Decision)
	}
	return out
}

func okSnapshot() define.ConstraintSnapshot {
	return define.ConstraintSnapshot{
		EnergyLevelPct:       80,
		NetworkLatencyMs:     50,
		NetworkBandwidthMbps: 20,
		Timestamp:            time.Now(),
	}
}

func lowEnergySnapshot() define.ConstraintSnapshot {
	snap := okSnapshot()
	snap.EnergyLevelPct = 10
	return snap
}

func badNetworkSnapshot() define.ConstraintSnapshot {
	snap := okSnapshot()
	snap.NetworkLatencyMs = 800
	return snap
}

func newTask(priority define.PriorityClass, requiresNetwork bool) *define.Task {
	return define.NewTask("测试任务", priority, requiresNetwork, &noopRunner{})
}

// 约束满足时任务直接放行
func TestAdmitNormalWhenConstraintsOK(t *testing.T) {
	s := NewScheduler(DefaultThresholds, nil)
	s.BeginCycle()

	task := newTask(define.PriorityMedium, true)
	decision := s.Admit(task, okSnapshot())

	assert.Equal(t, define.DecisionExecuteNormal, decision)
	assert.Equal(t, define.TaskExecuted, task.Status)
}

// 能量不足时CRITICAL任务降级执行而不是延迟
func TestCriticalReducedUnderEnergyPressure(t *testing.T) {
	rec := &captureRecorder{}
	s := NewScheduler(DefaultThresholds, rec)
	s.BeginCycle()

	task := newTask(define.PriorityCritical, false)
	decision := s.Admit(task, lowEnergySnapshot())

	assert.Equal(t, define.DecisionExecuteReduced, decision)
	assert.Equal(t, define.TaskExecuted, task.Status)
	assert.Contains(t, rec.decisions(), "EXECUTE_REDUCED")
}

// 每周期只有一个CRITICAL降级名额, 超出的排队等待
func TestSingleCriticalReductionPerCycle(t *testing.T) {
	s := NewScheduler(DefaultThresholds, nil)
	s.BeginCycle()

	first := newTask(define.PriorityCritical, false)
	second := newTask(define.PriorityCritical, false)

	assert.Equal(t, define.DecisionExecuteReduced, s.Admit(first, lowEnergySnapshot()))
	assert.Equal(t, define.DecisionDeferEnergy, s.Admit(second, lowEnergySnapshot()))
	assert.Equal(t, 1, s.EnergyQueueCount(second.ID))

	// 下一周期名额恢复, 能量仍不足时轮到排队的CRITICAL
	s.BeginCycle()
	admitted := s.DrainDeferred(lowEnergySnapshot())
	require.Len(t, admitted, 1)
	assert.Equal(t, second.ID, admitted[0].Task.ID)
	assert.Equal(t, define.ExecReduced, admitted[0].Mode)
	assert.Equal(t, 0, s.EnergyQueueCount(second.ID))

	// 名额已被排队的CRITICAL认领, 新到的CRITICAL继续排队
	third := newTask(define.PriorityCritical, false)
	assert.Equal(t, define.DecisionDeferEnergy, s.Admit(third, lowEnergySnapshot()))
}

// 能量持续不足时排队的CRITICAL逐周期消耗降级名额, 不会滞留到超期丢弃
func TestQueuedCriticalDrainsUnderSustainedLowEnergy(t *testing.T) {
	s := NewScheduler(DefaultThresholds, nil)
	s.BeginCycle()

	first := newTask(define.PriorityCritical, false)
	queued := []*define.Task{
		newTask(define.PriorityCritical, false),
		newTask(define.PriorityCritical, false),
	}

	require.Equal(t, define.DecisionExecuteReduced, s.Admit(first, lowEnergySnapshot()))
	for _, task := range queued {
		require.Equal(t, define.DecisionDeferEnergy, s.Admit(task, lowEnergySnapshot()))
	}

	// 两个后续周期能量都不恢复: 每周期恰好放行一个排队的CRITICAL (FIFO)
	for _, want := range queued {
		s.BeginCycle()
		admitted := s.DrainDeferred(lowEnergySnapshot())
		require.Len(t, admitted, 1)
		assert.Equal(t, want.ID, admitted[0].Task.ID)
		assert.Equal(t, define.ExecReduced, admitted[0].Mode)
	}

	energyDepth, _ := s.QueueDepths()
	assert.Equal(t, 0, energyDepth)
}

// 能量不足的周期只重评CRITICAL条目, 其余延迟任务原地等待
func TestDrainSkipsNonCriticalWhileEnergyLow(t *testing.T) {
	s := NewScheduler(DefaultThresholds, nil)
	s.BeginCycle()

	high := newTask(define.PriorityHigh, false)
	critical := newTask(define.PriorityCritical, false)

	s.Admit(newTask(define.PriorityCritical, false), lowEnergySnapshot()) // 占用本周期名额
	s.Admit(high, lowEnergySnapshot())
	s.Admit(critical, lowEnergySnapshot())

	s.BeginCycle()
	admitted := s.DrainDeferred(lowEnergySnapshot())

	require.Len(t, admitted, 1)
	assert.Equal(t, critical.ID, admitted[0].Task.ID)
	assert.Equal(t, 1, s.EnergyQueueCount(high.ID))
	assert.Equal(t, define.TaskDeferred, high.Status)
}

// 能量不足时非CRITICAL任务进入能量延迟队列
func TestNonCriticalDeferredOnLowEnergy(t *testing.T) {
	s := NewScheduler(DefaultThresholds, nil)
	s.BeginCycle()

	task := newTask(define.PriorityHigh, false)
	decision := s.Admit(task, lowEnergySnapshot())

	assert.Equal(t, define.DecisionDeferEnergy, decision)
	assert.Equal(t, define.TaskDeferred, task.Status)
	assert.Equal(t, 1, s.EnergyQueueCount(task.ID))
}

// 网络约束只影响声明依赖网络的任务
func TestNetworkConstraintOnlyAffectsNetworkTasks(t *testing.T) {
	s := NewScheduler(DefaultThresholds, nil)
	s.BeginCycle()

	local := newTask(define.PriorityMedium, false)
	remote := newTask(define.PriorityMedium, true)

	assert.Equal(t, define.DecisionExecuteNormal, s.Admit(local, badNetworkSnapshot()))
	assert.Equal(t, define.DecisionDeferNetwork, s.Admit(remote, badNetworkSnapshot()))
	assert.Equal(t, 1, s.NetworkQueueCount(remote.ID))
}

// DEGRADED快照按最坏情况处理: 所有约束视为违反
func TestDegradedSnapshotWorstCase(t *testing.T) {
	s := NewScheduler(DefaultThresholds, nil)
	s.BeginCycle()

	snap := define.ConstraintSnapshot{Degraded: true, Timestamp: time.Now()}

	normal := newTask(define.PriorityMedium, false)
	critical := newTask(define.PriorityCritical, false)

	assert.Equal(t, define.DecisionDeferEnergy, s.Admit(normal, snap))
	assert.Equal(t, define.DecisionExecuteReduced, s.Admit(critical, snap))
}

// 约束恢复后按优先级从高到低、同优先级FIFO重评延迟任务
func TestDrainOrderPriorityThenFIFO(t *testing.T) {
	s := NewScheduler(DefaultThresholds, nil)
	s.BeginCycle()

	lowA := newTask(define.PriorityLow, false)
	lowB := newTask(define.PriorityLow, false)
	high := newTask(define.PriorityHigh, false)

	// 入队顺序: lowA, lowB, high
	s.Admit(lowA, lowEnergySnapshot())
	s.Admit(lowB, lowEnergySnapshot())
	s.Admit(high, lowEnergySnapshot())

	s.BeginCycle()
	admitted := s.DrainDeferred(okSnapshot())
	require.Len(t, admitted, 3)

	// 高优先级先出, 同优先级保持提交顺序
	assert.Equal(t, high.ID, admitted[0].Task.ID)
	assert.Equal(t, lowA.ID, admitted[1].Task.ID)
	assert.Equal(t, lowB.ID, admitted[2].Task.ID)
}

// 重评时约束仍不满足的任务再次入队而不是丢失
func TestDrainRequeuesWhenStillViolated(t *testing.T) {
	s := NewScheduler(DefaultThresholds, nil)
	s.BeginCycle()

	task := newTask(define.PriorityMedium, true)
	s.Admit(task, lowEnergySnapshot())
	assert.Equal(t, 1, s.EnergyQueueCount(task.ID))

	// 能量恢复但网络仍差: 任务从能量队列转入网络队列
	s.BeginCycle()
	admitted := s.DrainDeferred(badNetworkSnapshot())
	assert.Empty(t, admitted)
	assert.Equal(t, 0, s.EnergyQueueCount(task.ID))
	assert.Equal(t, 1, s.NetworkQueueCount(task.ID))
}

// 超出保留窗口的延迟任务转为DROP并留痕
func TestRetentionWindowExpiry(t *testing.T) {
	rec := &captureRecorder{}
	thresholds := DefaultThresholds
	thresholds.RetentionWindow = 10 * time.Millisecond
	s := NewScheduler(thresholds, rec)
	s.BeginCycle()

	task := newTask(define.PriorityMedium, false)
	s.Admit(task, lowEnergySnapshot())

	time.Sleep(20 * time.Millisecond)
	s.BeginCycle()

	assert.Equal(t, define.TaskDropped, task.Status)
	assert.Equal(t, 0, s.EnergyQueueCount(task.ID))
	assert.Contains(t, rec.decisions(), "DROP")
}

// 延迟队列溢出时淘汰最低优先级中最旧的任务
func TestQueueOverflowEvictsOldestLowestPriority(t *testing.T) {
	rec := &captureRecorder{}
	thresholds := DefaultThresholds
	thresholds.QueueCapacity = 2
	s := NewScheduler(thresholds, rec)
	s.BeginCycle()

	oldest := newTask(define.PriorityLow, false)
	second := newTask(define.PriorityHigh, false)
	third := newTask(define.PriorityHigh, false)

	s.Admit(oldest, lowEnergySnapshot())
	s.Admit(second, lowEnergySnapshot())
	s.Admit(third, lowEnergySnapshot())

	assert.Equal(t, define.TaskDropped, oldest.Status)
	assert.Equal(t, 0, s.EnergyQueueCount(oldest.ID))
	assert.Equal(t, 1, s.EnergyQueueCount(second.ID))
	assert.Equal(t, 1, s.EnergyQueueCount(third.ID))
	assert.Contains(t, rec.decisions(), "DROP")
}

// 终态任务的非法状态转换被记录但不破坏调度决策, 任务状态保持不变
func TestAdmitTerminalTaskKeepsState(t *testing.T) {
	s := NewScheduler(DefaultThresholds, nil)
	s.BeginCycle()

	task := newTask(define.PriorityMedium, false)
	require.NoError(t, task.StateMachine().ToDropped())

	decision := s.Admit(task, okSnapshot())

	assert.Equal(t, define.DecisionExecuteNormal, decision)
	assert.Equal(t, define.TaskDropped, task.Status)
}

// 每次决策都产生结构化记录
func TestEveryDecisionRecorded(t *testing.T) {
	rec := &captureRecorder{}
	s := NewScheduler(DefaultThresholds, rec)
	s.BeginCycle()

	s.Admit(newTask(define.PriorityMedium, false), okSnapshot())
	s.Admit(newTask(define.PriorityMedium, false), lowEnergySnapshot())
	s.Admit(newTask(define.PriorityCritical, false), lowEnergySnapshot())

	decisions := rec.decisions()
	require.Len(t, decisions, 3)
	assert.Equal(t, []string{"EXECUTE_NORMAL", "DEFER_ENERGY", "EXECUTE_REDUCED"}, decisions)
}
