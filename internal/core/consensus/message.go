package consensus

import "time"

// MsgType 共识消息类型
type MsgType int

const (
	MsgPrePrepare MsgType = iota // 提案广播
	MsgPrepare                   // PREPARE投票
	MsgCommit                    // COMMIT投票
)

// Label 消息类型的可读名称
func (t MsgType) Label() string {
	switch t {
	case MsgPrePrepare:
		return "PRE_PREPARE"
	case MsgPrepare:
		return "PREPARE"
	case MsgCommit:
		return "COMMIT"
	default:
		return "UNKNOWN"
	}
}

// Phase 共识轮次阶段
type Phase int

const (
	PhaseIdle       Phase = iota // 空闲
	PhasePrePrepare              // 提案已广播
	PhasePrepare                 // 收集PREPARE票
	PhaseCommit                  // 收集COMMIT票
	PhaseAgreed                  // 达成一致 (终态)
	PhaseFailed                  // 失败 (终态)
)

// String 阶段的可读名称
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhasePrePrepare:
		return "PRE_PREPARE"
	case PhasePrepare:
		return "PREPARE"
	case PhaseCommit:
		return "COMMIT"
	case PhaseAgreed:
		return "AGREED"
	case PhaseFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Proposal 共识提案: 每轮由触发共识的节点唯一创建,
// 只存活于轮次内存状态中, 轮次结束即销毁
type Proposal struct {
	ID            string    `json:"id"`
	ProposerID    string    `json:"proposer_id"`
	Action        string    `json:"action"`
	Justification string    `json:"justification"`
	CreatedAt     time.Time `json:"created_at"`
}

// Message 节点间共识消息 (PrePrepare携带提案, Prepare/Commit携带投票)
type Message struct {
	Type       MsgType   `json:"type"`
	From       string    `json:"from"`
	ProposalID string    `json:"proposal_id"`
	Proposal   *Proposal `json:"proposal,omitempty"`
	Agree      bool      `json:"agree"`
	Timestamp  time.Time `json:"timestamp"`
}

// RoundOutcome 轮次终态
type RoundOutcome string

const (
	OutcomeAgreed RoundOutcome = "AGREED"
	OutcomeFailed RoundOutcome = "FAILED"
)

// RoundResult 轮次结果: 共识失败是正常的预期结果, 带原因返回给调用方,
// 由调用方决定是否重试
type RoundResult struct {
	ProposalID string        `json:"proposal_id"`
	Action     string        `json:"action"`
	Outcome    RoundOutcome  `json:"outcome"`
	Reason     string        `json:"reason,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
}
