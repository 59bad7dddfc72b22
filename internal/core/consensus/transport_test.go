package consensus

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// WebSocket传输往返: 广播的消息经对端Handler投递到其收件通道
func TestWSNetworkRoundTrip(t *testing.T) {
	receiver := NewWSNetwork("node-2", nil)
	inbox := make(chan Message, 8)
	receiver.Register("node-2", inbox)

	server := httptest.NewServer(receiver.Handler())
	defer server.Close()

	addr := "ws" + strings.TrimPrefix(server.URL, "http")
	sender := NewWSNetwork("node-1", map[string]string{
		"node-1": "", // 自身不发送
		"node-2": addr,
	})
	defer sender.Stop()

	sender.Broadcast("node-1", Message{
		Type: MsgPrepare, From: "node-1", ProposalID: "p-1", Agree: true, Timestamp: time.Now(),
	})

	select {
	case got := <-inbox:
		assert.Equal(t, MsgPrepare, got.Type)
		assert.Equal(t, "node-1", got.From)
		assert.Equal(t, "p-1", got.ProposalID)
		assert.True(t, got.Agree)
	case <-time.After(2 * time.Second):
		t.Fatal("等待消息超时")
	}
}

// 连接复用: 对同一对端连续广播不重复建连
func TestWSNetworkReusesConnection(t *testing.T) {
	receiver := NewWSNetwork("node-2", nil)
	inbox := make(chan Message, 8)
	receiver.Register("node-2", inbox)

	server := httptest.NewServer(receiver.Handler())
	defer server.Close()

	addr := "ws" + strings.TrimPrefix(server.URL, "http")
	sender := NewWSNetwork("node-1", map[string]string{"node-2": addr})
	defer sender.Stop()

	for i := 0; i < 3; i++ {
		sender.Broadcast("node-1", Message{Type: MsgCommit, From: "node-1", ProposalID: "p-1", Agree: true})
	}

	for i := 0; i < 3; i++ {
		select {
		case <-inbox:
		case <-time.After(2 * time.Second):
			t.Fatalf("第%d条消息未送达", i+1)
		}
	}
}

// 对端不可达时发送在时限内失败, 不会无限阻塞共识循环
func TestWSNetworkSendBounded(t *testing.T) {
	sender := NewWSNetwork("node-1", map[string]string{"node-2": "ws://127.0.0.1:1/ws"})
	defer sender.Stop()

	start := time.Now()
	sender.Broadcast("node-1", Message{Type: MsgCommit, From: "node-1", ProposalID: "p-1"})

	assert.Less(t, time.Since(start), 5*time.Second)
}
