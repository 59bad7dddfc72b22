package anomaly

import (
	"log"
	"sync"
	"time"

	"edge-backend/internal/core/define"
)

// FlushFunc 批量刷出回调
type FlushFunc func(verdicts []define.AnomalyVerdict)

// BatchBuffer DEFER判定的有界批量缓冲: 缓冲满或周期到达 (先到者为准)
// 时整批刷出。溢出时丢弃最旧的DEFER条目 (从不丢弃TRANSMIT条目,
// TRANSMIT根本不进入该缓冲)。
type BatchBuffer struct {
	mutex    sync.Mutex
	capacity int
	interval time.Duration
	items    []define.AnomalyVerdict
	flush    FlushFunc
	lastTick time.Time
}

// NewBatchBuffer 创建批量缓冲
func NewBatchBuffer(capacity int, interval time.Duration, flush FlushFunc) *BatchBuffer {
	if capacity <= 0 {
		capacity = 32
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &BatchBuffer{
		capacity: capacity,
		interval: interval,
		items:    make([]define.AnomalyVerdict, 0, capacity),
		flush:    flush,
		lastTick: time.Now(),
	}
}

// Add 追加一个DEFER判定。缓冲满时先丢弃最旧条目 (记录日志) 再追加,
// 随后整批刷出。
func (b *BatchBuffer) Add(v define.AnomalyVerdict) {
	b.mutex.Lock()

	if len(b.items) >= b.capacity {
		dropped := b.items[0]
		b.items = b.items[1:]
		log.Printf("[BatchBuffer] 缓冲溢出, 丢弃最旧DEFER条目 (位置%s, 值%.2f, 时间%s)",
			dropped.LocationID, dropped.ScalarValue, dropped.Timestamp.Format(time.RFC3339))
	}
	b.items = append(b.items, v)

	full := len(b.items) >= b.capacity
	b.mutex.Unlock()

	if full {
		b.Flush()
	}
}

// Tick 周期检查: 到达刷出间隔时刷出
func (b *BatchBuffer) Tick() {
	b.mutex.Lock()
	due := time.Since(b.lastTick) >= b.interval
	b.mutex.Unlock()

	if due {
		b.Flush()
	}
}

// Flush 刷出当前全部条目
func (b *BatchBuffer) Flush() {
	b.mutex.Lock()
	items := b.items
	b.items = make([]define.AnomalyVerdict, 0, b.capacity)
	b.lastTick = time.Now()
	b.mutex.Unlock()

	if len(items) == 0 || b.flush == nil {
		return
	}
	b.flush(items)
}

// Len 当前缓冲长度
func (b *BatchBuffer) Len() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.items)
}
