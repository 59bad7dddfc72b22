package scheduler

import (
	"sync"
	"time"

	"edge-backend/internal/core/define"
)

// DeferReason 延迟原因
type DeferReason string

const (
	DeferEnergy  DeferReason = "energy"  // 能量不足
	DeferNetwork DeferReason = "network" // 网络条件不满足
)

// deferredEntry 延迟队列中的条目
type deferredEntry struct {
	task       *define.Task
	deferredAt time.Time
}

// deferredQueue 有界延迟队列: 每个优先级一条FIFO队列。
// 溢出时淘汰该优先级最旧的条目 (上报, 不静默丢弃)。
type deferredQueue struct {
	reason   DeferReason
	capacity int

	mutex  sync.Mutex
	queues map[define.PriorityClass][]*deferredEntry
	size   int
}

func newDeferredQueue(reason DeferReason, capacity int) *deferredQueue {
	if capacity <= 0 {
		capacity = 64
	}
	return &deferredQueue{
		reason:   reason,
		capacity: capacity,
		queues:   make(map[define.PriorityClass][]*deferredEntry),
	}
}

// push 入队。队列满时返回被淘汰的最旧条目 (从最低优先级开始找)。
func (q *deferredQueue) push(task *define.Task) *define.Task {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	var evicted *define.Task
	if q.size >= q.capacity {
		evicted = q.evictOldestLocked()
	}

	q.queues[task.PriorityClass] = append(q.queues[task.PriorityClass], &deferredEntry{
		task:       task,
		deferredAt: time.Now(),
	})
	q.size++
	return evicted
}

// evictOldestLocked 淘汰最低优先级队列中最旧的条目
func (q *deferredQueue) evictOldestLocked() *define.Task {
	for _, class := range []define.PriorityClass{
		define.PriorityLow, define.PriorityMedium, define.PriorityHigh, define.PriorityCritical,
	} {
		if len(q.queues[class]) > 0 {
			entry := q.queues[class][0]
			q.queues[class] = q.queues[class][1:]
			q.size--
			return entry.task
		}
	}
	return nil
}

// drainCandidates 按优先级从高到低、同优先级FIFO的顺序取出全部条目。
// 调用方负责对每个条目按当前快照重新评估 (可能再次入队)。
func (q *deferredQueue) drainCandidates() []*deferredEntry {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	out := make([]*deferredEntry, 0, q.size)
	for _, class := range []define.PriorityClass{
		define.PriorityCritical, define.PriorityHigh, define.PriorityMedium, define.PriorityLow,
	} {
		out = append(out, q.queues[class]...)
		q.queues[class] = nil
	}
	q.size = 0
	return out
}

// drainClass 取出指定优先级的全部条目 (FIFO)
func (q *deferredQueue) drainClass(class define.PriorityClass) []*deferredEntry {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	out := q.queues[class]
	q.queues[class] = nil
	q.size -= len(out)
	return out
}

// expire 取出超出保留窗口的条目
func (q *deferredQueue) expire(retention time.Duration) []*deferredEntry {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	cutoff := time.Now().Add(-retention)
	expired := make([]*deferredEntry, 0)
	for class, entries := range q.queues {
		kept := entries[:0]
		for _, e := range entries {
			if e.deferredAt.Before(cutoff) {
				expired = append(expired, e)
				q.size--
			} else {
				kept = append(kept, e)
			}
		}
		q.queues[class] = kept
	}
	return expired
}

// len 当前队列长度
func (q *deferredQueue) len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.size
}

// contains 任务是否在队列中 (测试用)
func (q *deferredQueue) contains(taskID string) int {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	count := 0
	for _, entries := range q.queues {
		for _, e := range entries {
			if e.task.ID == taskID {
				count++
			}
		}
	}
	return count
}
