package im

import (
	"Aorko/internal/api/dto"
	"context"
	log "log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
)

const shardCount = 32

// StatusStore 在线状态的持久化出口
// 注册/注销时同步落库，确保崩溃后查询侧不残留在线标记
type StatusStore interface {
	SetOnline(ctx context.Context, userID uint64) error
	SetOffline(ctx context.Context, userID uint64, lastSeen time.Time) error
}

// Handler 上行事件分发出口，由业务层实现
type Handler interface {
	HandleEvent(ctx context.Context, client *Client, env *dto.Envelope)
}

type shard struct {
	mu      sync.RWMutex
	clients map[uint64]*Client

	// life 串行化本分片的上线/下线全过程：表变更、状态落库、广播必须作为一个整体生效，
	// 否则断线与重连交错时，落库的终态可能是 offline 而连接表里还挂着活连接
	life sync.Mutex
}

// Hub 在线连接注册表，按 userID 分片降低锁竞争
// 同一用户同时只保留一条连接，后注册者顶掉先注册者
type Hub struct {
	shards  [shardCount]*shard
	status  StatusStore
	handler Handler
	now     func() time.Time
}

func NewHub(status StatusStore) *Hub {
	h := &Hub{
		status: status,
		now:    time.Now,
	}
	for i := range h.shards {
		h.shards[i] = &shard{clients: make(map[uint64]*Client)}
	}
	return h
}

// SetHandler 注入上行事件处理器，必须在接入第一条连接前完成
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

func (h *Hub) shardFor(userID uint64) *shard {
	return h.shards[userID%shardCount]
}

// Register 登记连接。已有旧连接时先顶掉旧的，再写在线状态并广播
func (h *Hub) Register(ctx context.Context, client *Client) {
	sh := h.shardFor(client.UserID)
	sh.life.Lock()
	defer sh.life.Unlock()

	sh.mu.Lock()
	old := sh.clients[client.UserID]
	sh.clients[client.UserID] = client
	sh.mu.Unlock()

	if old != nil {
		old.closeSend()
	}

	if err := h.status.SetOnline(ctx, client.UserID); err != nil {
		log.Error("写入在线状态失败", "userID", client.UserID, "err", err)
	}

	h.BroadcastAll(dto.NewEnvelope(dto.EventUserStatus, &dto.UserStatusData{
		UserID: client.UserID,
		Status: "online",
	}))
	log.Info("用户连接已登记", "userID", client.UserID)
}

// Unregister 注销连接。仅当登记的还是本连接时生效，被顶掉的旧连接不得误伤新连接
func (h *Hub) Unregister(ctx context.Context, client *Client) {
	sh := h.shardFor(client.UserID)
	sh.life.Lock()
	defer sh.life.Unlock()

	sh.mu.Lock()
	current, ok := sh.clients[client.UserID]
	if !ok || current != client {
		sh.mu.Unlock()
		return
	}
	delete(sh.clients, client.UserID)
	sh.mu.Unlock()

	client.closeSend()

	lastSeen := h.now()
	if err := h.status.SetOffline(ctx, client.UserID, lastSeen); err != nil {
		log.Error("写入离线状态失败", "userID", client.UserID, "err", err)
	}

	h.BroadcastAll(dto.NewEnvelope(dto.EventUserStatus, &dto.UserStatusData{
		UserID:     client.UserID,
		Status:     "offline",
		LastSeenAt: &lastSeen,
	}))
	log.Info("用户连接已注销", "userID", client.UserID)
}

// Lookup 查找用户的在线连接，不在线返回 nil
func (h *Hub) Lookup(userID uint64) *Client {
	sh := h.shardFor(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.clients[userID]
}

// PushToUser 推送给指定用户，返回是否在线送达
func (h *Hub) PushToUser(userID uint64, env *dto.Envelope) bool {
	client := h.Lookup(userID)
	if client == nil {
		return false
	}
	return client.Send(env)
}

// BroadcastAll 向所有在线连接广播，分片并行
func (h *Hub) BroadcastAll(env *dto.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error("广播消息序列化失败", "event", env.Event, "err", err)
		return
	}

	var g errgroup.Group
	for _, sh := range h.shards {
		sh := sh
		g.Go(func() error {
			sh.mu.RLock()
			targets := make([]*Client, 0, len(sh.clients))
			for _, c := range sh.clients {
				targets = append(targets, c)
			}
			sh.mu.RUnlock()

			for _, c := range targets {
				c.sendRaw(data)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// OnlineCount 当前在线连接数
func (h *Hub) OnlineCount() int {
	total := 0
	for _, sh := range h.shards {
		sh.mu.RLock()
		total += len(sh.clients)
		sh.mu.RUnlock()
	}
	return total
}
