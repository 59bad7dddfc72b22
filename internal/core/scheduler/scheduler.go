package scheduler

import (
	"log"
	"sync"
	"time"

	"edge-backend/internal/core/define"
)

// Thresholds 调度阈值配置
type Thresholds struct {
	// 能量下限 (百分比), 低于该值非CRITICAL任务延迟执行
	EnergyThresholdPct float64
	// 时延上限 (毫秒), 超过该值网络类任务延迟执行
	LatencyThresholdMs float64
	// 带宽下限 (Mbps), 低于该值网络类任务延迟执行
	BandwidthFloorMbps float64
	// 延迟任务保留窗口, 超期转为DROP
	RetentionWindow time.Duration
	// 每条延迟队列的容量
	QueueCapacity int
}

// DefaultThresholds 默认调度阈值
var DefaultThresholds = Thresholds{
	EnergyThresholdPct: 20.0,
	LatencyThresholdMs: 300.0,
	BandwidthFloorMbps: 2.0,
	RetentionWindow:    10 * time.Minute,
	QueueCapacity:      128,
}

// Recorder 决策记录接收方 (持久化由服务层完成)
type Recorder interface {
	Record(rec define.DecisionRecord)
}

// Admitted 被放行执行的任务及其执行模式
type Admitted struct {
	Task *define.Task
	Mode define.ExecMode
}

// Scheduler 约束感知任务调度器。
// 状态仅由周期循环这一个goroutine推进 (单写者), 内部锁只保护
// 状态接口的并发读取。
type Scheduler struct {
	thresholds Thresholds
	recorder   Recorder

	energyQueue  *deferredQueue
	networkQueue *deferredQueue

	mutex sync.Mutex
	// 每周期最多放行一个降级模式的CRITICAL任务, 约束功耗,
	// 超出的CRITICAL任务排队等待下一周期
	criticalUsed bool
}

// NewScheduler 创建任务调度器
func NewScheduler(thresholds Thresholds, recorder Recorder) *Scheduler {
	if thresholds.EnergyThresholdPct <= 0 {
		thresholds.EnergyThresholdPct = DefaultThresholds.EnergyThresholdPct
	}
	if thresholds.LatencyThresholdMs <= 0 {
		thresholds.LatencyThresholdMs = DefaultThresholds.LatencyThresholdMs
	}
	if thresholds.BandwidthFloorMbps <= 0 {
		thresholds.BandwidthFloorMbps = DefaultThresholds.BandwidthFloorMbps
	}
	if thresholds.RetentionWindow <= 0 {
		thresholds.RetentionWindow = DefaultThresholds.RetentionWindow
	}
	if thresholds.QueueCapacity <= 0 {
		thresholds.QueueCapacity = DefaultThresholds.QueueCapacity
	}
	return &Scheduler{
		thresholds:   thresholds,
		recorder:     recorder,
		energyQueue:  newDeferredQueue(DeferEnergy, thresholds.QueueCapacity),
		networkQueue: newDeferredQueue(DeferNetwork, thresholds.QueueCapacity),
	}
}

// BeginCycle 周期开始时由调度循环调用, 重置本周期的CRITICAL降级名额
// 并处理保留窗口超期的延迟任务。
func (s *Scheduler) BeginCycle() {
	s.mutex.Lock()
	s.criticalUsed = false
	s.mutex.Unlock()

	s.expireDeferred(s.energyQueue)
	s.expireDeferred(s.networkQueue)
}

// Admit 评估单个任务, 固定顺序: 能量 -> 网络 -> 放行。
// CRITICAL优先级可以突破资源拒绝 (降级执行), 但从不突破硬性安全下限
// (每周期一个降级名额)。
func (s *Scheduler) Admit(task *define.Task, snap define.ConstraintSnapshot) define.Decision {
	// DEGRADED: 约束未知时按最坏情况处理 (所有阈值都视为违反)
	energyViolated := snap.Degraded || snap.EnergyLevelPct < s.thresholds.EnergyThresholdPct
	networkViolated := snap.Degraded ||
		snap.NetworkLatencyMs > s.thresholds.LatencyThresholdMs ||
		snap.NetworkBandwidthMbps < s.thresholds.BandwidthFloorMbps

	// 1. 能量约束
	if energyViolated {
		if task.PriorityClass == define.PriorityCritical {
			s.mutex.Lock()
			available := !s.criticalUsed
			if available {
				s.criticalUsed = true
			}
			s.mutex.Unlock()

			if available {
				s.transition(task, task.StateMachine().ToExecuted())
				s.record(task, define.DecisionExecuteReduced, "能量不足, CRITICAL降级执行", snap)
				return define.DecisionExecuteReduced
			}
			// 本周期降级名额已用完, 排队等待下一周期
			s.enqueue(s.energyQueue, task)
			s.record(task, define.DecisionDeferEnergy, "能量不足, CRITICAL降级名额已用完", snap)
			return define.DecisionDeferEnergy
		}

		s.enqueue(s.energyQueue, task)
		s.record(task, define.DecisionDeferEnergy, "能量不足", snap)
		return define.DecisionDeferEnergy
	}

	// 2. 网络约束
	if task.RequiresNetwork && networkViolated {
		s.enqueue(s.networkQueue, task)
		s.record(task, define.DecisionDeferNetwork, "网络条件不满足", snap)
		return define.DecisionDeferNetwork
	}

	// 3. 放行
	s.transition(task, task.StateMachine().ToExecuted())
	s.record(task, define.DecisionExecuteNormal, "约束满足", snap)
	return define.DecisionExecuteNormal
}

// DrainDeferred 在触发条件解除的周期取出延迟任务并按当前快照重新评估。
// 同优先级内FIFO, 高优先级先处理; 任务可能再次被延迟。
// 能量约束未解除时CRITICAL条目仍会被取出重评 (每周期一个降级名额)。
// 返回本次被放行的任务。
func (s *Scheduler) DrainDeferred(snap define.ConstraintSnapshot) []Admitted {
	admitted := make([]Admitted, 0)

	energyOK := !snap.Degraded && snap.EnergyLevelPct >= s.thresholds.EnergyThresholdPct
	networkOK := !snap.Degraded &&
		snap.NetworkLatencyMs <= s.thresholds.LatencyThresholdMs &&
		snap.NetworkBandwidthMbps >= s.thresholds.BandwidthFloorMbps

	if energyOK {
		admitted = append(admitted, s.reAdmit(s.energyQueue.drainCandidates(), snap)...)
	} else {
		// 能量仍不足: 排队的CRITICAL任务仍要取出重新评估,
		// 以便认领本周期新的降级名额; 其余任务继续等待
		admitted = append(admitted,
			s.reAdmit(s.energyQueue.drainClass(define.PriorityCritical), snap)...)
	}
	if networkOK {
		admitted = append(admitted, s.reAdmit(s.networkQueue.drainCandidates(), snap)...)
	}
	return admitted
}

// reAdmit 按当前快照重新评估一组延迟条目
func (s *Scheduler) reAdmit(entries []*deferredEntry, snap define.ConstraintSnapshot) []Admitted {
	admitted := make([]Admitted, 0)
	for _, entry := range entries {
		decision := s.Admit(entry.task, snap)
		switch decision {
		case define.DecisionExecuteNormal:
			admitted = append(admitted, Admitted{Task: entry.task, Mode: define.ExecNormal})
		case define.DecisionExecuteReduced:
			admitted = append(admitted, Admitted{Task: entry.task, Mode: define.ExecReduced})
		}
		// DEFER_*: Admit已重新入队
	}
	return admitted
}

// transition 状态机转换失败说明调度逻辑破坏了任务生命周期不变式,
// 必须显式暴露而不是静默吞掉
func (s *Scheduler) transition(task *define.Task, err error) {
	if err != nil {
		log.Printf("[Scheduler] 任务 %s 状态转换失败: %v (当前状态%s)",
			task.ID, err, task.StateMachine().GetStatusName())
	}
}

// enqueue 任务进入延迟队列, 处理溢出淘汰
func (s *Scheduler) enqueue(q *deferredQueue, task *define.Task) {
	s.transition(task, task.StateMachine().ToDeferred())
	if evicted := q.push(task); evicted != nil {
		s.transition(evicted, evicted.StateMachine().ToDropped())
		log.Printf("[Scheduler] 延迟队列(%s)溢出, 淘汰任务 %s (%s, 优先级%s)",
			q.reason, evicted.ID, evicted.Name, evicted.PriorityClass)
		s.record(evicted, define.DecisionDrop, "延迟队列溢出", define.ConstraintSnapshot{})
	}
}

// expireDeferred 处理超出保留窗口的延迟任务: 转为DROP并上报
func (s *Scheduler) expireDeferred(q *deferredQueue) {
	for _, entry := range q.expire(s.thresholds.RetentionWindow) {
		s.transition(entry.task, entry.task.StateMachine().ToDropped())
		log.Printf("[Scheduler] 任务 %s 超出保留窗口 (%v), 已丢弃",
			entry.task.ID, s.thresholds.RetentionWindow)
		s.record(entry.task, define.DecisionDrop, "超出保留窗口", define.ConstraintSnapshot{})
	}
}

// record 输出结构化决策记录
func (s *Scheduler) record(task *define.Task, decision define.Decision, reason string, snap define.ConstraintSnapshot) {
	rec := define.DecisionRecord{
		TaskID:        task.ID,
		TaskName:      task.Name,
		Priority:      task.PriorityClass.String(),
		Decision:      decision.String(),
		Reason:        reason,
		EnergyPct:     snap.EnergyLevelPct,
		LatencyMs:     snap.NetworkLatencyMs,
		BandwidthMbps: snap.NetworkBandwidthMbps,
		CreatedAt:     time.Now(),
	}
	log.Printf("[Scheduler] 任务 %s 决策=%s 原因=%s (电量%.1f%%, 时延%.0fms, 带宽%.1fMbps)",
		task.ID, rec.Decision, reason, snap.EnergyLevelPct, snap.NetworkLatencyMs, snap.NetworkBandwidthMbps)
	if s.recorder != nil {
		s.recorder.Record(rec)
	}
}

// QueueDepths 当前延迟队列深度 (能量队列, 网络队列)
func (s *Scheduler) QueueDepths() (int, int) {
	return s.energyQueue.len(), s.networkQueue.len()
}

// EnergyQueueCount 任务在能量延迟队列中出现的次数 (测试用)
func (s *Scheduler) EnergyQueueCount(taskID string) int {
	return s.energyQueue.contains(taskID)
}

// NetworkQueueCount 任务在网络延迟队列中出现的次数 (测试用)
func (s *Scheduler) NetworkQueueCount(taskID string) int {
	return s.networkQueue.contains(taskID)
}
