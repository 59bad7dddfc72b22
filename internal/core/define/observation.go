package define

import "time"

// Observation 检测协作方产出的观测值 (例如某路口的拥堵计数)。
// 被异常引擎消费一次后即丢弃, 只保留判定结果和最小元数据。
type Observation struct {
	LocationID        string             `json:"location_id"`
	ScalarValue       float64            `json:"scalar_value"`
	Timestamp         time.Time          `json:"timestamp"`
	SecondaryFeatures map[string]float64 `json:"secondary_features,omitempty"`
}

// VerdictDecision 传输判定
type VerdictDecision int

const (
	VerdictDiscard  VerdictDecision = iota // 丢弃
	VerdictDefer                           // 延迟 (进入批量缓冲)
	VerdictTransmit                        // 立即传输
)

// String 判定的可读名称
func (d VerdictDecision) String() string {
	switch d {
	case VerdictDiscard:
		return "DISCARD"
	case VerdictDefer:
		return "DEFER"
	case VerdictTransmit:
		return "TRANSMIT"
	default:
		return "UNKNOWN"
	}
}

// SendPriority 传输优先级
type SendPriority int

const (
	SendNone   SendPriority = iota // 无 (非传输判定)
	SendNormal                     // 普通
	SendHigh                       // 高 (关键告警, 可触发共识)
)

// String 传输优先级的可读名称
func (p SendPriority) String() string {
	switch p {
	case SendNormal:
		return "NORMAL"
	case SendHigh:
		return "HIGH"
	default:
		return ""
	}
}

// StreamTier 流传输质量档位 (码率, 分辨率)
type StreamTier struct {
	Name        string  `json:"name" yaml:"name"`
	BitrateMbps float64 `json:"bitrate_mbps" yaml:"bitrate_mbps"`
	Width       int     `json:"width" yaml:"width"`
	Height      int     `json:"height" yaml:"height"`
}

// AnomalyVerdict 异常判定结果: 计算完成后不可变
type AnomalyVerdict struct {
	LocationID       string          `json:"location_id"`
	ScalarValue      float64         `json:"scalar_value"`
	Timestamp        time.Time       `json:"timestamp"`
	StatisticalScore float64         `json:"statistical_score"` // z分数
	LearnedScore     float64         `json:"learned_score"`     // 学习型评分 [0,1]
	Decision         VerdictDecision `json:"decision"`
	Priority         SendPriority    `json:"priority"`
	Tier             *StreamTier     `json:"tier,omitempty"` // TRANSMIT时选定的档位
}

// DecisionRecord 调度决策的结构化记录 (可观测性的唯一外部副作用)
type DecisionRecord struct {
	TaskID        string    `json:"task_id"`
	TaskName      string    `json:"task_name"`
	Priority      string    `json:"priority"`
	Decision      string    `json:"decision"`
	Reason        string    `json:"reason"`
	EnergyPct     float64   `json:"energy_pct"`
	LatencyMs     float64   `json:"latency_ms"`
	BandwidthMbps float64   `json:"bandwidth_mbps"`
	CreatedAt     time.Time `json:"created_at"`
}
