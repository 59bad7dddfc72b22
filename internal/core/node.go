package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"edge-backend/internal/core/anomaly"
	"edge-backend/internal/core/consensus"
	"edge-backend/internal/core/constraint"
	"edge-backend/internal/core/define"
	"edge-backend/internal/core/scheduler"
	"edge-backend/internal/service"
)

// Options 节点核心配置
type Options struct {
	NodeID        string
	LocationID    string
	CycleInterval time.Duration // 调度周期
	TaskTimeout   time.Duration // 单个任务的执行时限
}

// Node 节点智能核心: 把约束监控、任务调度、异常判定和共识引擎
// 串成一条周期循环。循环是核心状态的唯一写者, 对外接口只读。
type Node struct {
	opts Options

	monitor      *constraint.Monitor
	scheduler    *scheduler.Scheduler
	anomaly      *anomaly.Engine
	consensus    *consensus.Engine
	telemetry    *service.TelemetryService
	alarmMonitor *AlarmMonitor

	Tasks   map[string]*define.Task // 任务ID -> 任务 (状态查询用)
	pending []*define.Task          // 待调度任务

	lastSnapshot     define.ConstraintSnapshot
	lastAgreedAction string
	cycleCount       uint64

	IsRunning bool
	StopChan  chan bool
	mutex     sync.RWMutex
}

var (
	node *Node
	once sync.Once
)

// InitNode 初始化节点核心 (进程内单例)
func InitNode(opts Options, monitor *constraint.Monitor, sched *scheduler.Scheduler,
	anomalyEngine *anomaly.Engine, consensusEngine *consensus.Engine,
	telemetry *service.TelemetryService, alarmMonitor *AlarmMonitor) *Node {
	once.Do(func() {
		if opts.CycleInterval <= 0 {
			opts.CycleInterval = time.Second
		}
		if opts.TaskTimeout <= 0 {
			opts.TaskTimeout = 10 * time.Second
		}
		node = &Node{
			opts:         opts,
			monitor:      monitor,
			scheduler:    sched,
			anomaly:      anomalyEngine,
			consensus:    consensusEngine,
			telemetry:    telemetry,
			alarmMonitor: alarmMonitor,
			Tasks:        make(map[string]*define.Task),
			StopChan:     make(chan bool, 1),
		}
	})
	return node
}

// GetNodeInstance 获取节点核心单例 (必须先InitNode)
func GetNodeInstance() *Node {
	return node
}

// Start 启动周期循环和共识引擎
func (n *Node) Start() {
	n.mutex.Lock()
	if n.IsRunning {
		n.mutex.Unlock()
		return
	}
	n.IsRunning = true
	n.mutex.Unlock()

	if n.consensus != nil {
		n.consensus.Start()
	}
	go n.runCycleLoop()
	log.Printf("[Node] 节点 %s 启动, 调度周期 %v", n.opts.NodeID, n.opts.CycleInterval)
}

// Stop 停止周期循环, 进行中的共识轮次转为失败
func (n *Node) Stop() {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if !n.IsRunning {
		return
	}
	select {
	case n.StopChan <- true:
	default:
	}
	if n.consensus != nil {
		n.consensus.Stop()
	}
}

// SubmitTask 提交任务, 下一个调度周期评估
func (n *Node) SubmitTask(name string, priority define.PriorityClass, requiresNetwork bool, payload define.Runner) (*define.Task, error) {
	if payload == nil {
		return nil, errors.New("任务载荷不能为空")
	}

	task := define.NewTask(name, priority, requiresNetwork, payload)

	n.mutex.Lock()
	defer n.mutex.Unlock()
	if !n.IsRunning {
		return nil, errors.New("节点核心未运行")
	}
	n.Tasks[task.ID] = task
	n.pending = append(n.pending, task)
	return task, nil
}

// GetTask 查询单个任务
func (n *Node) GetTask(id string) (*define.Task, bool) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	task, ok := n.Tasks[id]
	return task, ok
}

// LastSnapshot 最近一次资源快照
func (n *Node) LastSnapshot() define.ConstraintSnapshot {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.lastSnapshot
}

// runCycleLoop 周期循环: 核心状态的唯一写者
func (n *Node) runCycleLoop() {
	ticker := time.NewTicker(n.opts.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.StopChan:
			n.mutex.Lock()
			n.IsRunning = false
			n.mutex.Unlock()
			log.Printf("[Node] 节点 %s 周期循环已停止", n.opts.NodeID)
			return
		case <-ticker.C:
			n.executeOneCycle()
		}
	}
}

// executeOneCycle 执行一个调度周期:
// 采样 -> 重评延迟任务 -> 评估新任务 -> 执行放行任务 -> 批量缓冲 -> 共识结果 -> 告警
func (n *Node) executeOneCycle() {
	n.scheduler.BeginCycle()
	snap := n.monitor.Sample()

	n.mutex.Lock()
	n.cycleCount++
	n.lastSnapshot = snap
	pending := n.pending
	n.pending = nil
	cycle := n.cycleCount
	n.mutex.Unlock()

	// 约束解除时优先重评延迟任务 (同优先级FIFO)
	admitted := n.scheduler.DrainDeferred(snap)

	for _, task := range pending {
		switch n.scheduler.Admit(task, snap) {
		case define.DecisionExecuteNormal:
			admitted = append(admitted, scheduler.Admitted{Task: task, Mode: define.ExecNormal})
		case define.DecisionExecuteReduced:
			admitted = append(admitted, scheduler.Admitted{Task: task, Mode: define.ExecReduced})
		}
	}

	for _, a := range admitted {
		n.executeTask(a, snap)
	}

	n.anomaly.TickBatch()
	n.pollConsensusResults()

	n.alarmMonitor.CheckConstraints(snap, n.monitor.DrainRatePctPerMin())
	energyDepth, networkDepth := n.scheduler.QueueDepths()
	n.alarmMonitor.CheckQueues(energyDepth, networkDepth)
	if cycle%600 == 0 {
		n.alarmMonitor.CleanupOldAlarms()
	}
}

// executeTask 执行单个放行任务, 产出观测则交给异常引擎
func (n *Node) executeTask(a scheduler.Admitted, snap define.ConstraintSnapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), n.opts.TaskTimeout)
	defer cancel()

	obs, err := a.Task.Payload.Run(ctx, a.Mode)
	if err != nil {
		log.Printf("[Node] 任务 %s (%s) 执行失败: %v", a.Task.ID, a.Task.Payload.Kind(), err)
		return
	}
	if obs == nil {
		return
	}

	verdict := n.anomaly.Evaluate(*obs, snap)
	n.handleVerdict(verdict)
}

// handleVerdict 处理传输判定: TRANSMIT上送, HIGH优先级触发共识
func (n *Node) handleVerdict(verdict define.AnomalyVerdict) {
	if verdict.Decision != define.VerdictTransmit {
		return // DEFER已进入批量缓冲, DISCARD无副作用
	}

	if err := n.telemetry.PublishImmediate(&verdict); err != nil {
		log.Printf("[Node] 遥测上送失败: %v", err)
	}

	if verdict.Priority != define.SendHigh || n.consensus == nil {
		return
	}

	action := fmt.Sprintf("escalate:%s", verdict.LocationID)
	justification := fmt.Sprintf("位置%s 观测值%.2f z=%.2f learned=%.2f",
		verdict.LocationID, verdict.ScalarValue, verdict.StatisticalScore, verdict.LearnedScore)

	if _, err := n.consensus.Propose(action, justification); err != nil {
		if errors.Is(err, consensus.ErrRoundActive) {
			// 同一时刻至多一个活跃轮次, 不排队
			log.Printf("[Node] 已有进行中的共识轮次, 跳过提案 (%s)", action)
			return
		}
		log.Printf("[Node] 发起共识提案失败: %v", err)
	}
}

// pollConsensusResults 非阻塞轮询共识轮次结果
func (n *Node) pollConsensusResults() {
	if n.consensus == nil {
		return
	}
	for {
		select {
		case result := <-n.consensus.Results():
			n.alarmMonitor.CheckConsensusResult(result)
		default:
			return
		}
	}
}

// ApplyAgreedAction 共识达成一致后的本地执行 (每个AGREED轮次恰好一次)
func (n *Node) ApplyAgreedAction(action string) error {
	n.mutex.Lock()
	n.lastAgreedAction = action
	n.mutex.Unlock()

	log.Printf("[Node] 执行共识动作: %s", action)
	return nil
}

// GetNodeInfo 节点状态汇总 (状态接口用)
func (n *Node) GetNodeInfo() map[string]interface{} {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	executed, deferred, dropped := 0, 0, 0
	for _, task := range n.Tasks {
		switch task.Status {
		case define.TaskExecuted:
			executed++
		case define.TaskDeferred:
			deferred++
		case define.TaskDropped:
			dropped++
		}
	}
	energyDepth, networkDepth := n.scheduler.QueueDepths()

	info := map[string]interface{}{
		"node_id":            n.opts.NodeID,
		"location_id":        n.opts.LocationID,
		"is_running":         n.IsRunning,
		"cycle":              n.cycleCount,
		"snapshot":           n.lastSnapshot,
		"drain_pct_per_min":  n.monitor.DrainRatePctPerMin(),
		"task_count":         len(n.Tasks),
		"pending_tasks":      len(n.pending),
		"executed_tasks":     executed,
		"deferred_tasks":     deferred,
		"dropped_tasks":      dropped,
		"energy_queue":       energyDepth,
		"network_queue":      networkDepth,
		"last_agreed_action": n.lastAgreedAction,
	}
	if n.consensus != nil {
		info["consensus"] = n.consensus.GetStatus()
	}
	return info
}
