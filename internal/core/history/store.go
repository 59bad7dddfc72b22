package history

import (
	"math"
	"sync"
	"time"
)

// SlotsPerWeek 每个位置的时间桶数量: 一周按15分钟切分
const SlotsPerWeek = 7 * 24 * 4 // 672

// Bucket 历史统计桶: 按 (位置, 周内15分钟槽位) 维护流式均值/方差
type Bucket struct {
	LocationID  string  `json:"location_id"`
	Slot        int     `json:"slot"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	SampleCount int64   `json:"sample_count"`

	m2 float64 // Welford算法的二阶矩累积量
}

// Store 历史模式存储: 写入由异常引擎独占, 读取为主。
// 每个位置最多 SlotsPerWeek 个桶, 总量有界。
type Store struct {
	mutex   sync.RWMutex
	buckets map[string]map[int]*Bucket // locationID -> slot -> bucket

	// 桶缺失时合成的低置信度先验 (宽方差)
	priorMean   float64
	priorStdDev float64
}

// NewStore 创建历史模式存储
func NewStore(priorMean, priorStdDev float64) *Store {
	if priorStdDev <= 0 {
		priorStdDev = 25.0
	}
	return &Store{
		buckets:     make(map[string]map[int]*Bucket),
		priorMean:   priorMean,
		priorStdDev: priorStdDev,
	}
}

// SlotOf 计算时间戳所属的周内15分钟槽位 (0..671)
func SlotOf(t time.Time) int {
	weekday := int(t.Weekday())
	return weekday*24*4 + t.Hour()*4 + t.Minute()/15
}

// Lookup 查询桶的副本。桶不存在时返回低置信度先验桶 (found=false),
// 而不是失败。
func (s *Store) Lookup(locationID string, t time.Time) (Bucket, bool) {
	slot := SlotOf(t)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if slots, ok := s.buckets[locationID]; ok {
		if b, ok := slots[slot]; ok {
			return *b, true
		}
	}

	return Bucket{
		LocationID:  locationID,
		Slot:        slot,
		Mean:        s.priorMean,
		StdDev:      s.priorStdDev,
		SampleCount: 0,
	}, false
}

// Update 以流式方式更新桶的均值/方差 (Welford算法)。
// 不管传输判定结果如何都会被调用: 桶反映真实观测, 而非被传输的观测。
func (s *Store) Update(locationID string, t time.Time, value float64) {
	slot := SlotOf(t)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	slots, ok := s.buckets[locationID]
	if !ok {
		slots = make(map[int]*Bucket, 8)
		s.buckets[locationID] = slots
	}

	b, ok := slots[slot]
	if !ok {
		b = &Bucket{LocationID: locationID, Slot: slot}
		slots[slot] = b
	}

	b.SampleCount++
	delta := value - b.Mean
	b.Mean += delta / float64(b.SampleCount)
	b.m2 += delta * (value - b.Mean)

	if b.SampleCount > 1 {
		b.StdDev = math.Sqrt(b.m2 / float64(b.SampleCount-1))
	} else {
		b.StdDev = 0
	}
}

// Seed 直接写入一个桶的统计量 (用于从持久化状态恢复和测试)
func (s *Store) Seed(locationID string, slot int, mean, stdDev float64, count int64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	slots, ok := s.buckets[locationID]
	if !ok {
		slots = make(map[int]*Bucket, 8)
		s.buckets[locationID] = slots
	}
	slots[slot] = &Bucket{
		LocationID:  locationID,
		Slot:        slot,
		Mean:        mean,
		StdDev:      stdDev,
		SampleCount: count,
		m2:          stdDev * stdDev * float64(maxInt64(count-1, 0)),
	}
}

// BucketCount 当前桶总数 (用于状态接口)
func (s *Store) BucketCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	count := 0
	for _, slots := range s.buckets {
		count += len(slots)
	}
	return count
}

// Locations 已有统计的位置列表
func (s *Store) Locations() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	locations := make([]string, 0, len(s.buckets))
	for loc := range s.buckets {
		locations = append(locations, loc)
	}
	return locations
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
