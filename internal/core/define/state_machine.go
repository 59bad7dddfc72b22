package define

import (
	"fmt"
	"time"
)

// TaskStatus 任务状态
type TaskStatus int

const (
	TaskPending  TaskStatus = iota // 等待调度
	TaskDeferred                   // 已延迟, 在延迟队列中等待条件恢复
	TaskExecuted                   // 已执行 (终态)
	TaskDropped                    // 已丢弃 (终态)
)

// TaskStateMachine 任务状态机: Executed 和 Dropped 为终态, 不允许再转出
type TaskStateMachine struct {
	task *Task
}

// NewTaskStateMachine 创建任务状态机
func NewTaskStateMachine(task *Task) *TaskStateMachine {
	return &TaskStateMachine{task: task}
}

// ToDeferred 转换到Deferred状态 (任务进入延迟队列)
func (sm *TaskStateMachine) ToDeferred() error {
	if sm.task.Status != TaskPending && sm.task.Status != TaskDeferred {
		return fmt.Errorf("invalid state transition: %s -> Deferred", sm.statusName())
	}
	sm.task.Status = TaskDeferred
	sm.task.DecidedAt = time.Now()
	return nil
}

// ToExecuted 转换到Executed状态 (任务被放行执行)
func (sm *TaskStateMachine) ToExecuted() error {
	if sm.task.Status != TaskPending && sm.task.Status != TaskDeferred {
		return fmt.Errorf("invalid state transition: %s -> Executed", sm.statusName())
	}
	sm.task.Status = TaskExecuted
	sm.task.DecidedAt = time.Now()
	sm.task.FinishedAt = time.Now()
	return nil
}

// ToDropped 转换到Dropped状态 (超出保留窗口或队列溢出)
func (sm *TaskStateMachine) ToDropped() error {
	if sm.task.Status == TaskExecuted {
		return fmt.Errorf("cannot drop an executed task")
	}
	sm.task.Status = TaskDropped
	sm.task.FinishedAt = time.Now()
	return nil
}

// IsTerminal 是否已进入终态
func (sm *TaskStateMachine) IsTerminal() bool {
	return sm.task.Status == TaskExecuted || sm.task.Status == TaskDropped
}

// IsPending 是否等待调度
func (sm *TaskStateMachine) IsPending() bool {
	return sm.task.Status == TaskPending
}

// IsDeferred 是否处于延迟状态
func (sm *TaskStateMachine) IsDeferred() bool {
	return sm.task.Status == TaskDeferred
}

// statusName 获取当前状态名称 (用于错误消息)
func (sm *TaskStateMachine) statusName() string {
	switch sm.task.Status {
	case TaskPending:
		return "Pending"
	case TaskDeferred:
		return "Deferred"
	case TaskExecuted:
		return "Executed"
	case TaskDropped:
		return "Dropped"
	default:
		return "Unknown"
	}
}

// GetStatusName 获取当前状态的可读名称
func (sm *TaskStateMachine) GetStatusName() string {
	return sm.statusName()
}
