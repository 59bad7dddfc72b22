package consensus

import "time"

// round 单轮共识的内存状态: 整个系统核心中唯一的可变聚合,
// 由引擎的运行goroutine独占推进, 到达终态后整体销毁。
type round struct {
	proposal  Proposal
	phase     Phase
	peerSet   []string
	quorum    int
	startedAt time.Time

	// 每个投票者每个阶段只有第一票有效 (防止单个不诚实节点
	// 通过反复改票伪造法定票数)
	prepareVotes map[string]bool
	commitVotes  map[string]bool

	proposer bool
	applied  bool
	resultCh chan RoundResult // 提案方等待结果的通道 (参与方为nil)
}

func newRound(proposal Proposal, peerSet []string, quorum int, proposer bool, resultCh chan RoundResult) *round {
	return &round{
		proposal:     proposal,
		phase:        PhasePrePrepare,
		peerSet:      peerSet,
		quorum:       quorum,
		startedAt:    time.Now(),
		prepareVotes: make(map[string]bool),
		commitVotes:  make(map[string]bool),
		proposer:     proposer,
		resultCh:     resultCh,
	}
}

// addVote 记录一票。同一投票者同一阶段的重复投票被忽略
// (第一票有效), 返回是否实际记录。
func (r *round) addVote(phase MsgType, voter string, agree bool) bool {
	var votes map[string]bool
	switch phase {
	case MsgPrepare:
		votes = r.prepareVotes
	case MsgCommit:
		votes = r.commitVotes
	default:
		return false
	}

	if _, exists := votes[voter]; exists {
		return false
	}
	votes[voter] = agree
	return true
}

// agreeCount 统计某阶段的同意票数
func (r *round) agreeCount(phase MsgType) int {
	var votes map[string]bool
	switch phase {
	case MsgPrepare:
		votes = r.prepareVotes
	case MsgCommit:
		votes = r.commitVotes
	default:
		return 0
	}

	count := 0
	for _, agree := range votes {
		if agree {
			count++
		}
	}
	return count
}

// inPeerSet 投票者是否属于已知节点集合
func (r *round) inPeerSet(id string) bool {
	for _, peer := range r.peerSet {
		if peer == id {
			return true
		}
	}
	return false
}
