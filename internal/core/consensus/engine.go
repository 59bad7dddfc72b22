package consensus

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRoundActive 已有进行中的轮次时拒绝新提案 (不排队, 避免提案放大)
var ErrRoundActive = errors.New("已有进行中的共识轮次")

// Applier 达成一致后的外部执行协作方
type Applier interface {
	// ApplyAgreedAction 每个AGREED轮次恰好被调用一次
	ApplyAgreedAction(action string) error
}

// AgreedActionFunc 把函数适配成执行协作方
type AgreedActionFunc func(action string) error

func (f AgreedActionFunc) ApplyAgreedAction(action string) error {
	return f(action)
}

// Options 共识引擎配置
type Options struct {
	RoundTimeout   time.Duration // 单轮超时
	MaxProposalAge time.Duration // 提案时间戳的最大可接受偏差
}

// DefaultOptions 默认共识引擎配置
var DefaultOptions = Options{
	RoundTimeout:   3 * time.Second,
	MaxProposalAge: 30 * time.Second,
}

// Status 引擎状态快照 (供状态接口读取)
type Status struct {
	NodeID       string `json:"node_id"`
	Phase        string `json:"phase"`
	ProposalID   string `json:"proposal_id,omitempty"`
	PrepareVotes int    `json:"prepare_votes"`
	CommitVotes  int    `json:"commit_votes"`
	PeerCount    int    `json:"peer_count"`
	Quorum       int    `json:"quorum"`
}

// proposeReq 提案请求 (由Propose发往运行goroutine)
type proposeReq struct {
	action        string
	justification string
	resultCh      chan RoundResult
	errCh         chan error
}

// Engine 拜占庭容错共识引擎。
//
// 轮次状态机: IDLE -> PRE_PREPARE -> PREPARE -> COMMIT -> {AGREED|FAILED} -> IDLE。
// 容忍 f = floor((n-1)/3) 个同时故障/无响应/恶意的节点; 法定票数 2f+1
// 保证任意两个法定集合至少交于一个诚实节点, 因此两轮无法对冲突提案
// 同时达成AGREED。
//
// 轮次状态由运行goroutine独占推进 (单写者), 外部只通过消息通道交互;
// 每个节点同一时刻至多一个活跃轮次。
type Engine struct {
	nodeID  string
	peerSet []string
	f       int
	quorum  int
	opts    Options

	net     Network
	applier Applier

	inbox     chan Message
	proposeCh chan proposeReq
	results   chan RoundResult
	stopCh    chan struct{}
	stopOnce  sync.Once

	// 运行goroutine独占
	round *round
	timer *time.Timer

	statusMu sync.RWMutex
	status   Status
}

// NewEngine 创建共识引擎。peerSet为部署时静态配置的完整节点集合 (含本节点)。
func NewEngine(nodeID string, peerSet []string, net Network, applier Applier, opts Options) *Engine {
	if opts.RoundTimeout <= 0 {
		opts.RoundTimeout = DefaultOptions.RoundTimeout
	}
	if opts.MaxProposalAge <= 0 {
		opts.MaxProposalAge = DefaultOptions.MaxProposalAge
	}

	n := len(peerSet)
	f := (n - 1) / 3
	quorum := 2*f + 1
	// 法定票数计算是安全性的根基, 违反即为程序错误, 必须立即失败
	if n < 1 || quorum < 1 || quorum > n {
		panic(fmt.Sprintf("共识法定票数不变量被破坏: n=%d f=%d quorum=%d", n, f, quorum))
	}

	e := &Engine{
		nodeID:    nodeID,
		peerSet:   append([]string(nil), peerSet...),
		f:         f,
		quorum:    quorum,
		opts:      opts,
		net:       net,
		applier:   applier,
		inbox:     make(chan Message, 64),
		proposeCh: make(chan proposeReq),
		results:   make(chan RoundResult, 16),
		stopCh:    make(chan struct{}),
	}
	e.status = Status{NodeID: nodeID, Phase: PhaseIdle.String(), PeerCount: n, Quorum: quorum}
	net.Register(nodeID, e.inbox)
	return e
}

// Start 启动运行goroutine
func (e *Engine) Start() {
	go e.run()
}

// Stop 关闭引擎。进行中的轮次转为FAILED (而不是静默丢弃),
// 避免对端一直等到超时。
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
}

// Quorum 法定票数 (2f+1)
func (e *Engine) Quorum() int {
	return e.quorum
}

// Results 轮次结果通道 (周期循环非阻塞轮询)
func (e *Engine) Results() <-chan RoundResult {
	return e.results
}

// GetStatus 引擎状态快照
func (e *Engine) GetStatus() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

// Propose 发起一轮共识 (仅在IDLE时可用)。已有活跃轮次时立即返回
// ErrRoundActive, 不排队。结果通过返回的通道送达。
func (e *Engine) Propose(action, justification string) (<-chan RoundResult, error) {
	req := proposeReq{
		action:        action,
		justification: justification,
		resultCh:      make(chan RoundResult, 1),
		errCh:         make(chan error, 1),
	}

	select {
	case e.proposeCh <- req:
	case <-e.stopCh:
		return nil, errors.New("共识引擎已关闭")
	}

	if err := <-req.errCh; err != nil {
		return nil, err
	}
	return req.resultCh, nil
}

// run 运行循环: 引擎状态的唯一写者
func (e *Engine) run() {
	for {
		var timeoutC <-chan time.Time
		if e.timer != nil {
			timeoutC = e.timer.C
		}

		select {
		case msg := <-e.inbox:
			e.handleMessage(msg)
		case req := <-e.proposeCh:
			e.handlePropose(req)
		case <-timeoutC:
			e.handleTimeout()
		case <-e.stopCh:
			if e.round != nil {
				e.finishRound(OutcomeFailed, "节点关闭, 轮次中止")
			}
			e.net.Stop()
			return
		}
	}
}

// handlePropose 处理本地提案请求
func (e *Engine) handlePropose(req proposeReq) {
	if e.round != nil {
		req.errCh <- ErrRoundActive
		return
	}

	proposal := Proposal{
		ID:            uuid.NewString(),
		ProposerID:    e.nodeID,
		Action:        req.action,
		Justification: req.justification,
		CreatedAt:     time.Now(),
	}

	e.round = newRound(proposal, e.peerSet, e.quorum, true, req.resultCh)
	req.errCh <- nil

	log.Printf("[Consensus] 发起提案 %s: action=%s", proposal.ID, proposal.Action)
	e.net.Broadcast(e.nodeID, Message{
		Type:       MsgPrePrepare,
		From:       e.nodeID,
		ProposalID: proposal.ID,
		Proposal:   &proposal,
		Timestamp:  time.Now(),
	})

	// 提案方自身的PREPARE票 (计入法定票数) 并广播
	e.round.phase = PhasePrepare
	e.castVote(MsgPrepare, true)
	e.resetTimer()
	e.publishStatus()
}

// handleMessage 处理对端消息
func (e *Engine) handleMessage(msg Message) {
	switch msg.Type {
	case MsgPrePrepare:
		e.handlePrePrepare(msg)
	case MsgPrepare:
		e.handleVote(msg)
	case MsgCommit:
		e.handleVote(msg)
	}
}

// handlePrePrepare 作为非提案方收到提案: 校验通过则广播PREPARE同意票;
// 非法提案静默忽略 (视为隐式反对, 仅记录日志)
func (e *Engine) handlePrePrepare(msg Message) {
	if msg.Proposal == nil {
		log.Printf("[Consensus] 忽略空提案 (来自%s)", msg.From)
		return
	}
	proposal := *msg.Proposal

	if e.round != nil {
		log.Printf("[Consensus] 已有活跃轮次 %s, 忽略提案 %s", e.round.proposal.ID, proposal.ID)
		return
	}
	if err := e.validateProposal(proposal, msg.From); err != nil {
		log.Printf("[Consensus] 提案 %s 校验失败, 隐式反对: %v", proposal.ID, err)
		return
	}

	e.round = newRound(proposal, e.peerSet, e.quorum, false, nil)
	e.round.phase = PhasePrepare
	log.Printf("[Consensus] 接受提案 %s (提案方%s), 广播PREPARE", proposal.ID, proposal.ProposerID)

	e.castVote(MsgPrepare, true)
	e.resetTimer()
	e.publishStatus()
}

// validateProposal 边界校验: 提案方必须属于已知节点集合,
// 时间戳不可过期, 动作必须非空
func (e *Engine) validateProposal(p Proposal, from string) error {
	known := false
	for _, peer := range e.peerSet {
		if peer == p.ProposerID {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("未知提案方 %s", p.ProposerID)
	}
	if from != p.ProposerID {
		return fmt.Errorf("消息来源 %s 与提案方 %s 不一致", from, p.ProposerID)
	}
	if p.Action == "" {
		return errors.New("提案动作为空")
	}
	age := time.Since(p.CreatedAt)
	if age > e.opts.MaxProposalAge || age < -e.opts.MaxProposalAge {
		return fmt.Errorf("提案时间戳过期 (%v)", age)
	}
	return nil
}

// handleVote 处理PREPARE/COMMIT投票
func (e *Engine) handleVote(msg Message) {
	if e.round == nil || msg.ProposalID != e.round.proposal.ID {
		return
	}
	if !e.round.inPeerSet(msg.From) {
		log.Printf("[Consensus] 忽略未知节点 %s 的 %s 票", msg.From, msg.Type.Label())
		return
	}

	if !e.round.addVote(msg.Type, msg.From, msg.Agree) {
		// 同一投票者同一阶段的重复投票: 第一票有效
		log.Printf("[Consensus] 忽略 %s 的重复 %s 票", msg.From, msg.Type.Label())
		return
	}
	e.publishStatus()

	switch msg.Type {
	case MsgPrepare:
		e.checkPrepareQuorum()
	case MsgCommit:
		e.checkCommitQuorum()
	}
}

// checkPrepareQuorum PREPARE同意票达到法定数后广播COMMIT并进入COMMIT阶段
func (e *Engine) checkPrepareQuorum() {
	if e.round == nil || e.round.phase != PhasePrepare {
		return
	}
	if e.round.agreeCount(MsgPrepare) < e.round.quorum {
		return
	}

	log.Printf("[Consensus] 提案 %s PREPARE达到法定票数 (%d/%d), 广播COMMIT",
		e.round.proposal.ID, e.round.agreeCount(MsgPrepare), e.round.quorum)
	e.round.phase = PhaseCommit
	e.castVote(MsgCommit, true)
	e.publishStatus()
	// 本节点的COMMIT票可能正好凑齐法定数
	e.checkCommitQuorum()
}

// checkCommitQuorum COMMIT同意票达到法定数后轮次进入AGREED,
// 达成一致的动作恰好交给执行协作方一次
func (e *Engine) checkCommitQuorum() {
	if e.round == nil || e.round.phase != PhaseCommit {
		return
	}
	if e.round.agreeCount(MsgCommit) < e.round.quorum {
		return
	}

	action := e.round.proposal.Action
	if !e.round.applied {
		e.round.applied = true
		if e.applier != nil {
			if err := e.applier.ApplyAgreedAction(action); err != nil {
				log.Printf("[Consensus] 执行已达成一致的动作失败: %v", err)
			}
		}
	}
	e.finishRound(OutcomeAgreed, "")
}

// handleTimeout 轮次超时: 按所处阶段给出失败原因
func (e *Engine) handleTimeout() {
	if e.round == nil {
		return
	}

	var reason string
	switch e.round.phase {
	case PhaseCommit:
		reason = fmt.Sprintf("COMMIT票数不足 (%d/%d)", e.round.agreeCount(MsgCommit), e.round.quorum)
	default:
		reason = fmt.Sprintf("PREPARE票数不足 (%d/%d)", e.round.agreeCount(MsgPrepare), e.round.quorum)
	}
	e.finishRound(OutcomeFailed, reason)
}

// castVote 记录本节点自己的一票并广播
func (e *Engine) castVote(phase MsgType, agree bool) {
	e.round.addVote(phase, e.nodeID, agree)
	e.net.Broadcast(e.nodeID, Message{
		Type:       phase,
		From:       e.nodeID,
		ProposalID: e.round.proposal.ID,
		Agree:      agree,
		Timestamp:  time.Now(),
	})
}

// finishRound 轮次进入终态: 发布结果并销毁全部轮次状态
func (e *Engine) finishRound(outcome RoundOutcome, reason string) {
	r := e.round
	result := RoundResult{
		ProposalID: r.proposal.ID,
		Action:     r.proposal.Action,
		Outcome:    outcome,
		Reason:     reason,
		Elapsed:    time.Since(r.startedAt),
	}

	if outcome == OutcomeAgreed {
		log.Printf("[Consensus] 提案 %s 达成一致 (耗时%v)", r.proposal.ID, result.Elapsed)
	} else {
		log.Printf("[Consensus] 提案 %s 失败: %s (耗时%v)", r.proposal.ID, reason, result.Elapsed)
	}

	if r.resultCh != nil {
		r.resultCh <- result
	}
	select {
	case e.results <- result:
	default:
		log.Printf("[Consensus] 结果通道已满, 丢弃轮次 %s 的结果通知", r.proposal.ID)
	}

	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.round = nil
	e.publishStatus()
}

// resetTimer 重置轮次超时定时器
func (e *Engine) resetTimer() {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.NewTimer(e.opts.RoundTimeout)
}

// publishStatus 更新状态快照
func (e *Engine) publishStatus() {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()

	if e.round == nil {
		e.status = Status{
			NodeID:    e.nodeID,
			Phase:     PhaseIdle.String(),
			PeerCount: len(e.peerSet),
			Quorum:    e.quorum,
		}
		return
	}
	e.status = Status{
		NodeID:       e.nodeID,
		Phase:        e.round.phase.String(),
		ProposalID:   e.round.proposal.ID,
		PrepareVotes: e.round.agreeCount(MsgPrepare),
		CommitVotes:  e.round.agreeCount(MsgCommit),
		PeerCount:    len(e.peerSet),
		Quorum:       e.quorum,
	}
}
