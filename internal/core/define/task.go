package define

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// PriorityClass 任务优先级等级
type PriorityClass int

const (
	PriorityLow      PriorityClass = iota // 低优先级
	PriorityMedium                        // 中优先级
	PriorityHigh                          // 高优先级
	PriorityCritical                      // 关键优先级 (可突破资源限制, 降级执行)
)

// String 优先级的可读名称
func (p PriorityClass) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Decision 调度决策
type Decision int

const (
	DecisionExecuteNormal  Decision = iota // 正常执行
	DecisionExecuteReduced                 // 降级执行 (最省电的分析模式)
	DecisionDeferEnergy                    // 因能量不足延迟
	DecisionDeferNetwork                   // 因网络条件延迟
	DecisionDrop                           // 丢弃
)

// String 决策的可读名称
func (d Decision) String() string {
	switch d {
	case DecisionExecuteNormal:
		return "EXECUTE_NORMAL"
	case DecisionExecuteReduced:
		return "EXECUTE_REDUCED"
	case DecisionDeferEnergy:
		return "DEFER_ENERGY"
	case DecisionDeferNetwork:
		return "DEFER_NETWORK"
	case DecisionDrop:
		return "DROP"
	default:
		return "UNKNOWN"
	}
}

// ExecMode 执行模式
type ExecMode int

const (
	ExecNormal  ExecMode = iota // 正常模式
	ExecReduced                 // 降级模式 (最低能耗)
)

// Runner 任务载荷接口: 调度器只依赖该接口, 不关心具体任务种类
type Runner interface {
	// Run 执行任务, 返回可选的观测结果 (非分析类任务返回 nil)
	Run(ctx context.Context, mode ExecMode) (*Observation, error)
	// Kind 任务种类标识
	Kind() string
}

// Task 调度任务
type Task struct {
	ID              string        `json:"id"`
	Name            string        `json:"name,omitempty"`
	PriorityClass   PriorityClass `json:"priority_class"`
	RequiresNetwork bool          `json:"requires_network"`
	Payload         Runner        `json:"-"`
	EnqueuedAt      time.Time     `json:"enqueued_at"`

	// 状态
	Status TaskStatus `json:"status"`

	// 时间戳
	DecidedAt  time.Time `json:"decided_at,omitempty"`  // 最近一次调度决策时间
	FinishedAt time.Time `json:"finished_at,omitempty"` // 进入终态时间
}

// NewTask 创建新任务
func NewTask(name string, priority PriorityClass, requiresNetwork bool, payload Runner) *Task {
	return &Task{
		ID:              GenerateTaskID(),
		Name:            name,
		PriorityClass:   priority,
		RequiresNetwork: requiresNetwork,
		Payload:         payload,
		EnqueuedAt:      time.Now(),
		Status:          TaskPending,
	}
}

// StateMachine 获取任务的状态机
func (t *Task) StateMachine() *TaskStateMachine {
	return NewTaskStateMachine(t)
}

// GenerateTaskID 生成任务ID
func GenerateTaskID() string {
	return fmt.Sprintf("task_%d_%d", time.Now().UnixNano(), rand.Int63())
}
