package consensus

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// applyRecorder 记录已执行的共识动作
type applyRecorder struct {
	mutex   sync.Mutex
	actions []string
}

func (r *applyRecorder) ApplyAgreedAction(action string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.actions = append(r.actions, action)
	return nil
}

func (r *applyRecorder) count() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.actions)
}

// newCluster 构造n个节点的进程内共识集群 (不自动Start)
func newCluster(n int, timeout time.Duration) ([]*Engine, []*applyRecorder, *ChannelNetwork) {
	net := NewChannelNetwork()
	peerSet := make([]string, n)
	for i := range peerSet {
		peerSet[i] = fmt.Sprintf("node-%d", i+1)
	}

	engines := make([]*Engine, n)
	recorders := make([]*applyRecorder, n)
	for i := range engines {
		recorders[i] = &applyRecorder{}
		engines[i] = NewEngine(peerSet[i], peerSet, net, recorders[i],
			Options{RoundTimeout: timeout})
	}
	return engines, recorders, net
}

func stopAll(engines []*Engine) {
	for _, e := range engines {
		e.Stop()
	}
}

// 法定票数 2f+1, f = floor((n-1)/3)
func TestQuorumComputation(t *testing.T) {
	cases := []struct {
		n      int
		quorum int
	}{
		{1, 1},
		{4, 3},
		{7, 5},
		{10, 7},
	}
	for _, c := range cases {
		engines, _, _ := newCluster(c.n, time.Second)
		assert.Equal(t, c.quorum, engines[0].Quorum(), "n=%d", c.n)
	}
}

// 全部节点诚实在线时提案达成一致, 每个节点恰好执行一次动作
func TestAgreementWithAllPeersOnline(t *testing.T) {
	engines, recorders, _ := newCluster(4, 2*time.Second)
	for _, e := range engines {
		e.Start()
	}
	defer stopAll(engines)

	resultCh, err := engines[0].Propose("escalate:loc-1", "z=3.2")
	require.NoError(t, err)

	select {
	case result := <-resultCh:
		assert.Equal(t, OutcomeAgreed, result.Outcome)
		assert.Equal(t, "escalate:loc-1", result.Action)
	case <-time.After(3 * time.Second):
		t.Fatal("等待轮次结果超时")
	}

	// 每个在线节点的执行协作方恰好被调用一次
	require.Eventually(t, func() bool {
		for _, rec := range recorders {
			if rec.count() != 1 {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

// n=4 (f=1) 容忍一个静默节点: 3票仍达到法定数
func TestToleratesOneSilentPeer(t *testing.T) {
	engines, _, _ := newCluster(4, 2*time.Second)
	// node-4 保持静默 (不启动)
	for _, e := range engines[:3] {
		e.Start()
	}
	defer stopAll(engines)

	resultCh, err := engines[0].Propose("escalate:loc-2", "")
	require.NoError(t, err)

	select {
	case result := <-resultCh:
		assert.Equal(t, OutcomeAgreed, result.Outcome)
	case <-time.After(3 * time.Second):
		t.Fatal("等待轮次结果超时")
	}
}

// 票数不足时轮次超时失败, 失败原因说明缺票阶段
func TestRoundFailsWithoutQuorum(t *testing.T) {
	engines, recorders, _ := newCluster(4, 100*time.Millisecond)
	// 只有提案方在线: 1票 < 法定3票
	engines[0].Start()
	defer stopAll(engines)

	resultCh, err := engines[0].Propose("escalate:loc-3", "")
	require.NoError(t, err)

	select {
	case result := <-resultCh:
		assert.Equal(t, OutcomeFailed, result.Outcome)
		assert.Contains(t, result.Reason, "PREPARE")
	case <-time.After(2 * time.Second):
		t.Fatal("等待轮次结果超时")
	}

	// 失败的轮次不执行任何动作
	assert.Equal(t, 0, recorders[0].count())
}

// 已有活跃轮次时新提案被拒绝而不是排队
func TestProposeRejectedWhileRoundActive(t *testing.T) {
	engines, _, _ := newCluster(4, 500*time.Millisecond)
	engines[0].Start()
	defer stopAll(engines)

	_, err := engines[0].Propose("first", "")
	require.NoError(t, err)

	_, err = engines[0].Propose("second", "")
	assert.ErrorIs(t, err, ErrRoundActive)
}

// 状态快照跟随轮次推进
func TestStatusReflectsActiveRound(t *testing.T) {
	engines, _, _ := newCluster(4, time.Second)
	engines[0].Start()
	defer stopAll(engines)

	idle := engines[0].GetStatus()
	assert.Equal(t, "IDLE", idle.Phase)
	assert.Equal(t, 4, idle.PeerCount)
	assert.Equal(t, 3, idle.Quorum)

	_, err := engines[0].Propose("escalate:loc-4", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status := engines[0].GetStatus()
		return status.Phase == "PREPARE" && status.PrepareVotes == 1
	}, time.Second, 5*time.Millisecond)
}

// 同一投票者同一阶段只有第一票有效
func TestDuplicateVoteFirstAuthoritative(t *testing.T) {
	r := newRound(Proposal{ID: "p-1"}, []string{"a", "b", "c", "d"}, 3, true, nil)

	assert.True(t, r.addVote(MsgPrepare, "b", true))
	assert.False(t, r.addVote(MsgPrepare, "b", false)) // 改票被忽略
	assert.Equal(t, 1, r.agreeCount(MsgPrepare))

	// 不同阶段独立计票
	assert.True(t, r.addVote(MsgCommit, "b", true))
	assert.Equal(t, 1, r.agreeCount(MsgCommit))
}

// 提案校验: 未知提案方、来源不一致、空动作、过期时间戳都被拒绝
func TestProposalValidation(t *testing.T) {
	engines, _, _ := newCluster(4, time.Second)
	e := engines[0]

	valid := Proposal{ID: "p", ProposerID: "node-2", Action: "escalate:x", CreatedAt: time.Now()}
	assert.NoError(t, e.validateProposal(valid, "node-2"))

	unknown := valid
	unknown.ProposerID = "node-99"
	assert.Error(t, e.validateProposal(unknown, "node-99"))

	mismatch := valid
	assert.Error(t, e.validateProposal(mismatch, "node-3"))

	empty := valid
	empty.Action = ""
	assert.Error(t, e.validateProposal(empty, "node-2"))

	stale := valid
	stale.CreatedAt = time.Now().Add(-time.Hour)
	assert.Error(t, e.validateProposal(stale, "node-2"))
}

// 引擎关闭时进行中的轮次转为FAILED而不是静默丢弃
func TestStopFailsActiveRound(t *testing.T) {
	engines, _, _ := newCluster(4, 10*time.Second)
	engines[0].Start()

	resultCh, err := engines[0].Propose("abandoned", "")
	require.NoError(t, err)

	engines[0].Stop()

	select {
	case result := <-resultCh:
		assert.Equal(t, OutcomeFailed, result.Outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("等待轮次结果超时")
	}
}
