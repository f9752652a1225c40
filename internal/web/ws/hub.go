// Package ws 实时画面与心跳的 websocket 通道
package ws

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ixugo/goddd/pkg/conc"
)

const (
	EventRequestFrame = "request_frame"
	EventVideoFrame   = "video_frame"
	EventHeartbeat    = "heartbeat"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 8
)

// 与 python datetime.isoformat 一致
const timestampLayout = "2006-01-02T15:04:05.000000"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 256 * 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// Message 客户端与服务端共用的消息格式
type Message struct {
	Event     string `json:"event"`
	Data      string `json:"data,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// FrameSource 返回最新帧的 JPEG
type FrameSource interface {
	Snapshot() ([]byte, bool, error)
}

// client gorilla 的连接只允许一个并发写者，所有写入都经 send 交给 writePump
type client struct {
	conn   *websocket.Conn
	remote string
	send   chan []byte
}

// enqueue 不阻塞，缓冲已满说明客户端过慢，丢弃本条消息
func (c *client) enqueue(b []byte) bool {
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// writePump 顺序写出消息并定时 ping，写失败时关闭连接让 readPump 退出
func (c *client) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.conn.Close()
	for {
		var (
			messageType = websocket.TextMessage
			data        []byte
		)
		select {
		case <-done:
			return
		case data = <-c.send:
		case <-ticker.C:
			messageType = websocket.PingMessage
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(messageType, data); err != nil {
			slog.Debug("websocket write", "remote", c.remote, "err", err)
			return
		}
	}
}

// Hub 管理所有连接
type Hub struct {
	frames    FrameSource
	heartbeat time.Duration
	present   func() bool
	clients   conc.Map[*client, struct{}]
}

// NewHub present 为 false 时不发送心跳
func NewHub(frames FrameSource, heartbeat time.Duration, present func() bool) *Hub {
	if heartbeat <= 0 {
		heartbeat = 100 * time.Millisecond
	}
	return &Hub{frames: frames, heartbeat: heartbeat, present: present}
}

// Run 定时广播心跳，阻塞直到 ctx 结束
func (h *Hub) Run(ctx context.Context) {
	conc.Timer(ctx, h.heartbeat, h.heartbeat, func() {
		if h.present != nil && !h.present() {
			return
		}
		b, _ := json.Marshal(Message{Event: EventHeartbeat, Timestamp: time.Now().Format(timestampLayout)})
		h.broadcast(b)
	})
}

// broadcast 只入队，慢客户端不影响其他连接
func (h *Hub) broadcast(b []byte) {
	h.clients.Range(func(c *client, _ struct{}) bool {
		if !c.enqueue(b) {
			slog.Debug("websocket client too slow, message dropped", "remote", c.remote)
		}
		return true
	})
}

// Count 当前连接数
func (h *Hub) Count() int {
	var n int
	h.clients.Range(func(*client, struct{}) bool {
		n++
		return true
	})
	return n
}

// ServeHTTP 升级连接并阻塞读取，直到客户端断开
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "websocket upgrade", "err", err)
		return
	}
	c := client{conn: conn, remote: r.RemoteAddr, send: make(chan []byte, sendBuffer)}
	done := make(chan struct{})
	go c.writePump(done)
	h.clients.Store(&c, struct{}{})
	slog.InfoContext(r.Context(), "websocket client connected", "remote", r.RemoteAddr, "clients", h.Count())

	h.readPump(&c)

	h.clients.Delete(&c)
	close(done)
	_ = conn.Close()
	slog.InfoContext(r.Context(), "websocket client disconnected", "remote", r.RemoteAddr, "clients", h.Count())
}

func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, b, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read", "err", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg Message
		if err := json.Unmarshal(b, &msg); err != nil {
			slog.Debug("websocket invalid message", "err", err)
			continue
		}
		if msg.Event != EventRequestFrame {
			continue
		}
		h.replyFrame(c)
	}
}

// replyFrame 没有帧时不回复
func (h *Hub) replyFrame(c *client) {
	data, ok, err := h.frames.Snapshot()
	if err != nil {
		slog.Warn("websocket snapshot", "err", err)
		return
	}
	if !ok {
		return
	}
	b, err := json.Marshal(Message{Event: EventVideoFrame, Data: hex.EncodeToString(data)})
	if err != nil {
		return
	}
	if !c.enqueue(b) {
		slog.Debug("websocket client too slow, frame dropped", "remote", c.remote)
	}
}
