package hub

import (
	"Mosaic/internal/api/dto"
	log "log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client 封装一条 Websocket 连接
// 同一用户可以有多条连接（多标签页、多设备），每条连接持有独立的 HandleID
type Client struct {
	HandleID string
	UserID   uint64

	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu     sync.RWMutex
	joined map[string]struct{}

	closeOnce sync.Once
}

func NewClient(userID uint64, conn *websocket.Conn, sendBufferSize int) *Client {
	c := &Client{
		HandleID: uuid.NewString(),
		UserID:   userID,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		joined:   make(map[string]struct{}),
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	return c
}

// Send 序列化事件并入队，缓冲写满说明消费端已经跟不上，直接断开
func (c *Client) Send(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error("marshal ws event failed", "err", err)
		return
	}
	c.SendRaw(payload)
}

// SendRaw 入队已经序列化好的载荷，总线转发 Redis 消息时走这里避免二次编解码
func (c *Client) SendRaw(payload []byte) {
	select {
	case c.send <- payload:
	case <-c.done:
	default:
		log.Warn("ws send buffer full, dropping client", "user_id", c.UserID, "handle_id", c.HandleID)
		c.Close()
	}
}

// ReadFrame 阻塞读取一个上行帧，连接关闭或格式非法时返回错误
func (c *Client) ReadFrame() (*dto.ClientFrame, error) {
	var frame dto.ClientFrame
	if err := c.conn.ReadJSON(&frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

// WritePump 单写者循环，所有下行帧都经过 send 通道串行写出
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close 幂等关闭，读写循环都会随之退出
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *Client) markJoined(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined[conversationID] = struct{}{}
}

func (c *Client) markLeft(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.joined, conversationID)
}

// IsJoined 当前连接是否订阅了该会话频道
func (c *Client) IsJoined(conversationID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.joined[conversationID]
	return ok
}

func (c *Client) joinedConversations() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.joined))
	for id := range c.joined {
		ids = append(ids, id)
	}
	return ids
}
