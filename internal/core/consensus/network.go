package consensus

import (
	"log"
	"sync"
)

// Network 节点间共识消息通道的抽象: 进程内通道实现用于测试与单机仿真,
// WebSocket实现用于跨节点部署
type Network interface {
	// Register 注册节点的收件通道
	Register(id string, inbox chan<- Message)
	// Broadcast 将消息发给除发送方外的所有已注册节点
	Broadcast(from string, msg Message)
	// Stop 关闭网络
	Stop()
}

// ChannelNetwork 进程内通道网络: 直接向各节点的收件通道投递。
// 投递是尽力而为的 (收件通道已满则丢弃并记录), 模拟不可靠信道。
type ChannelNetwork struct {
	mutex   sync.RWMutex
	inboxes map[string]chan<- Message
	stopped bool
}

// NewChannelNetwork 创建进程内通道网络
func NewChannelNetwork() *ChannelNetwork {
	return &ChannelNetwork{
		inboxes: make(map[string]chan<- Message),
	}
}

// Register 注册节点的收件通道
func (n *ChannelNetwork) Register(id string, inbox chan<- Message) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.inboxes[id] = inbox
}

// Unregister 注销节点 (模拟节点失联)
func (n *ChannelNetwork) Unregister(id string) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	delete(n.inboxes, id)
}

// Broadcast 将消息发给除发送方外的所有已注册节点
func (n *ChannelNetwork) Broadcast(from string, msg Message) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	if n.stopped {
		return
	}

	for id, inbox := range n.inboxes {
		if id == from {
			continue
		}
		select {
		case inbox <- msg:
		default:
			log.Printf("[ChannelNetwork] 节点 %s 收件通道已满, 丢弃 %s 消息", id, msg.Type.Label())
		}
	}
}

// Stop 关闭网络
func (n *ChannelNetwork) Stop() {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.stopped = true
}
