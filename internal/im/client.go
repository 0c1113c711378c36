package im

import (
	"Aorko/internal/api/dto"
	"Aorko/internal/pkg/logger"
	"context"
	log "log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client 单个用户连接
// send 队列写满视为慢消费端，直接断开，防止单连接拖垮全局推送
type Client struct {
	UserID uint64

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uint64, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Client{
		UserID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// Serve 阻塞运行直到连接结束，调用方负责在返回后关闭底层连接
func (c *Client) Serve(ctx context.Context, maxMessageBytes int64) {
	c.hub.Register(ctx, c)
	defer c.hub.Unregister(ctx, c)

	go c.writePump()
	c.readPump(maxMessageBytes)
}

// Send 序列化并投递下行事件，返回是否接收成功
func (c *Client) Send(env *dto.Envelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error("下行消息序列化失败", "event", env.Event, "err", err)
		return false
	}
	return c.sendRaw(data)
}

func (c *Client) sendRaw(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		// 队列已满，断开慢客户端
		log.Warn("发送队列已满，断开连接", "userID", c.UserID)
		c.closeSend()
		return false
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) readPump(maxMessageBytes int64) {
	c.conn.SetReadLimit(maxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("WS 连接异常关闭", "userID", c.UserID, "err", err)
			}
			return
		}

		var env dto.Envelope
		if err = json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			c.Send(dto.NewEnvelope(dto.EventMessageError, &dto.MessageErrorData{
				Kind:    "VALIDATION",
				Message: "无法解析的消息",
			}))
			continue
		}

		// 每个上行事件独立 trace
		ctx := context.WithValue(context.Background(), logger.TraceIDKey, uuid.NewString()) //nolint:staticcheck
		c.hub.handler.HandleEvent(ctx, c, &env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.closeSend()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeSend()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = c.conn.Close()
			return
		}
	}
}
