package consensus

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// writeTimeout 单次发送的写超时: 对端接受连接但停止读取时,
// 发送在时限内失败而不是永久阻塞共识循环
const writeTimeout = 2 * time.Second

// WSNetwork 基于WebSocket的节点间共识传输。
// 对端集合是部署时静态配置的 (无动态成员), 连接按需建立,
// 发送失败只记录日志: 投递语义为至多一次, 可靠性由共识轮次的
// 超时与重试承担。
type WSNetwork struct {
	nodeID    string
	peerAddrs map[string]string // peerID -> ws地址 (例如 ws://10.0.0.2:8080/api/v1/consensus/ws)

	mutex sync.Mutex
	conns map[string]*websocket.Conn
	inbox chan<- Message
	done  chan struct{}
}

// NewWSNetwork 创建WebSocket共识传输
func NewWSNetwork(nodeID string, peerAddrs map[string]string) *WSNetwork {
	return &WSNetwork{
		nodeID:    nodeID,
		peerAddrs: peerAddrs,
		conns:     make(map[string]*websocket.Conn),
		done:      make(chan struct{}),
	}
}

// Register 注册本地节点的收件通道 (只接受本节点)
func (n *WSNetwork) Register(id string, inbox chan<- Message) {
	if id != n.nodeID {
		return
	}
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.inbox = inbox
}

// Handler 返回供对端连接的HTTP处理函数: 升级为WebSocket后持续读取
// 共识消息并投递到本地收件通道
func (n *WSNetwork) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[WSNetwork] websocket升级失败: %v", err)
			return
		}
		defer conn.Close()

		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("[WSNetwork] websocket读取失败: %v", err)
				}
				return
			}
			n.deliver(msg)
		}
	}
}

// deliver 投递到本地收件通道 (通道满则丢弃)
func (n *WSNetwork) deliver(msg Message) {
	n.mutex.Lock()
	inbox := n.inbox
	n.mutex.Unlock()

	if inbox == nil {
		return
	}
	select {
	case inbox <- msg:
	case <-time.After(100 * time.Millisecond):
		log.Printf("[WSNetwork] 收件通道阻塞, 丢弃 %s 消息 (来自%s)", msg.Type.Label(), msg.From)
	}
}

// Broadcast 向所有对端发送消息。连接失败或写入失败的对端被跳过并记录。
func (n *WSNetwork) Broadcast(from string, msg Message) {
	for peerID, addr := range n.peerAddrs {
		if peerID == n.nodeID {
			continue
		}
		if err := n.send(peerID, addr, msg); err != nil {
			log.Printf("[WSNetwork] 向对端 %s 发送 %s 失败: %v", peerID, msg.Type.Label(), err)
		}
	}
}

// send 向单个对端发送, 连接按需建立, 失败后重连一次
func (n *WSNetwork) send(peerID, addr string, msg Message) error {
	conn, err := n.peerConn(peerID, addr)
	if err != nil {
		return err
	}

	if err := n.write(conn, msg); err != nil {
		// 旧连接可能已失效, 重连一次
		n.dropConn(peerID, conn)

		conn, err = n.peerConn(peerID, addr)
		if err != nil {
			return err
		}
		if err := n.write(conn, msg); err != nil {
			n.dropConn(peerID, conn)
			return err
		}
	}
	return nil
}

// peerConn 获取对端连接, 缺失时在锁外建连 (慢握手不阻塞其他对端)
func (n *WSNetwork) peerConn(peerID, addr string) (*websocket.Conn, error) {
	n.mutex.Lock()
	if conn, ok := n.conns[peerID]; ok {
		n.mutex.Unlock()
		return conn, nil
	}
	n.mutex.Unlock()

	conn, err := n.dial(addr)
	if err != nil {
		return nil, err
	}

	n.mutex.Lock()
	defer n.mutex.Unlock()
	if existing, ok := n.conns[peerID]; ok {
		conn.Close()
		return existing, nil
	}
	n.conns[peerID] = conn
	return conn, nil
}

// write 带写超时的发送
func (n *WSNetwork) write(conn *websocket.Conn, msg Message) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

// dropConn 关闭并移除已失效的连接 (仅当映射中仍是同一条连接)
func (n *WSNetwork) dropConn(peerID string, conn *websocket.Conn) {
	conn.Close()
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if n.conns[peerID] == conn {
		delete(n.conns, peerID)
	}
}

func (n *WSNetwork) dial(addr string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(addr, nil)
	return conn, err
}

// Stop 关闭全部对端连接
func (n *WSNetwork) Stop() {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	select {
	case <-n.done:
		return
	default:
		close(n.done)
	}
	for id, conn := range n.conns {
		conn.Close()
		delete(n.conns, id)
	}
}
