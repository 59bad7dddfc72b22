package define

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type noopRunner struct{}

func (r *noopRunner) Run(ctx context.Context, mode ExecMode) (*Observation, error) { return nil, nil }
func (r *noopRunner) Kind() string                                                { return "noop" }

// 合法转换: Pending -> Deferred -> Executed
func TestDeferredThenExecuted(t *testing.T) {
	task := NewTask("t", PriorityMedium, false, &noopRunner{})
	sm := task.StateMachine()

	assert.True(t, sm.IsPending())
	assert.NoError(t, sm.ToDeferred())
	assert.True(t, sm.IsDeferred())
	// 延迟任务可以再次被延迟 (重评后仍不满足)
	assert.NoError(t, sm.ToDeferred())
	assert.NoError(t, sm.ToExecuted())
	assert.True(t, sm.IsTerminal())
	assert.False(t, task.FinishedAt.IsZero())
}

// Executed 和 Dropped 是终态, 不允许转出
func TestTerminalStatesAreFinal(t *testing.T) {
	executed := NewTask("t", PriorityMedium, false, &noopRunner{})
	sm := executed.StateMachine()
	assert.NoError(t, sm.ToExecuted())
	assert.Error(t, sm.ToDeferred())
	assert.Error(t, sm.ToDropped())
	assert.Error(t, sm.ToExecuted())

	dropped := NewTask("t", PriorityMedium, false, &noopRunner{})
	sm = dropped.StateMachine()
	assert.NoError(t, sm.ToDropped())
	assert.Error(t, sm.ToDeferred())
	assert.Error(t, sm.ToExecuted())
}

// 延迟中的任务超期可以直接丢弃
func TestDeferredCanBeDropped(t *testing.T) {
	task := NewTask("t", PriorityLow, false, &noopRunner{})
	sm := task.StateMachine()

	assert.NoError(t, sm.ToDeferred())
	assert.NoError(t, sm.ToDropped())
	assert.Equal(t, TaskDropped, task.Status)
}
