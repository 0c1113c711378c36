package im

import (
	"Aorko/internal/api/dto"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatusStore struct {
	mu       sync.Mutex
	online   []uint64
	offline  []uint64
	writes   []string
	lastSeen map[uint64]time.Time

	// offlineEntered/offlineGate 非空时，SetOffline 进入后先通知再阻塞等放行
	offlineEntered chan struct{}
	offlineGate    chan struct{}
}

func newFakeStatusStore() *fakeStatusStore {
	return &fakeStatusStore{lastSeen: make(map[uint64]time.Time)}
}

func (s *fakeStatusStore) SetOnline(_ context.Context, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = append(s.online, userID)
	s.writes = append(s.writes, "online")
	return nil
}

func (s *fakeStatusStore) SetOffline(_ context.Context, userID uint64, lastSeen time.Time) error {
	if s.offlineEntered != nil {
		s.offlineEntered <- struct{}{}
	}
	if s.offlineGate != nil {
		<-s.offlineGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = append(s.offline, userID)
	s.writes = append(s.writes, "offline")
	s.lastSeen[userID] = lastSeen
	return nil
}

func (s *fakeStatusStore) writeSeq() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

func (s *fakeStatusStore) offlineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.offline)
}

// drain 读空客户端发送队列并返回解析后的事件名
func drain(t *testing.T, c *Client) []string {
	t.Helper()
	var events []string
	for {
		select {
		case data := <-c.send:
			var env dto.Envelope
			require.NoError(t, json.Unmarshal(data, &env))
			events = append(events, env.Event)
		default:
			return events
		}
	}
}

func TestHubRegisterAndLookup(t *testing.T) {
	store := newFakeStatusStore()
	hub := NewHub(store)
	ctx := context.Background()

	c1 := NewClient(hub, nil, 1, 8)
	hub.Register(ctx, c1)

	assert.Same(t, c1, hub.Lookup(1))
	assert.Nil(t, hub.Lookup(2))
	assert.Equal(t, 1, hub.OnlineCount())
	assert.Equal(t, []uint64{1}, store.online)

	// 上线事件广播给了自己
	events := drain(t, c1)
	assert.Contains(t, events, dto.EventUserStatus)
}

func TestHubRegisterReplacesExistingConnection(t *testing.T) {
	store := newFakeStatusStore()
	hub := NewHub(store)
	ctx := context.Background()

	old := NewClient(hub, nil, 7, 8)
	hub.Register(ctx, old)

	replacement := NewClient(hub, nil, 7, 8)
	hub.Register(ctx, replacement)

	assert.Same(t, replacement, hub.Lookup(7))
	assert.Equal(t, 1, hub.OnlineCount())

	// 被顶掉的旧连接不再可写
	assert.False(t, old.Send(dto.NewEnvelope(dto.EventUserStatus, nil)))
	assert.True(t, replacement.Send(dto.NewEnvelope(dto.EventUserStatus, nil)))
}

func TestHubUnregister(t *testing.T) {
	store := newFakeStatusStore()
	hub := NewHub(store)
	hub.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	c := NewClient(hub, nil, 3, 8)
	hub.Register(ctx, c)
	hub.Unregister(ctx, c)

	assert.Nil(t, hub.Lookup(3))
	assert.Equal(t, 0, hub.OnlineCount())
	assert.Equal(t, []uint64{3}, store.offline)
	assert.Equal(t, hub.now(), store.lastSeen[3])
}

func TestHubUnregisterStaleConnectionIsNoop(t *testing.T) {
	store := newFakeStatusStore()
	hub := NewHub(store)
	ctx := context.Background()

	old := NewClient(hub, nil, 5, 8)
	hub.Register(ctx, old)
	replacement := NewClient(hub, nil, 5, 8)
	hub.Register(ctx, replacement)

	// 旧连接收尾时不能误伤新连接
	hub.Unregister(ctx, old)

	assert.Same(t, replacement, hub.Lookup(5))
	assert.Equal(t, 0, store.offlineCount())
}

func TestHubPushToUser(t *testing.T) {
	hub := NewHub(newFakeStatusStore())
	ctx := context.Background()

	c := NewClient(hub, nil, 9, 8)
	hub.Register(ctx, c)
	drain(t, c)

	delivered := hub.PushToUser(9, dto.NewEnvelope(dto.EventMessageReceived, nil))
	assert.True(t, delivered)
	assert.Equal(t, []string{dto.EventMessageReceived}, drain(t, c))

	assert.False(t, hub.PushToUser(404, dto.NewEnvelope(dto.EventMessageReceived, nil)))
}

func TestHubBroadcastAll(t *testing.T) {
	hub := NewHub(newFakeStatusStore())
	ctx := context.Background()

	clients := make([]*Client, 0, 5)
	for i := uint64(1); i <= 5; i++ {
		c := NewClient(hub, nil, i, 16)
		hub.Register(ctx, c)
		clients = append(clients, c)
	}
	for _, c := range clients {
		drain(t, c)
	}

	hub.BroadcastAll(dto.NewEnvelope(dto.EventUserTyping, &dto.TypingNotifyData{SenderID: 1}))

	for _, c := range clients {
		assert.Equal(t, []string{dto.EventUserTyping}, drain(t, c))
	}
}

func TestHubLifecycleWritesAreSerialized(t *testing.T) {
	store := newFakeStatusStore()
	store.offlineEntered = make(chan struct{}, 1)
	store.offlineGate = make(chan struct{})
	hub := NewHub(store)
	ctx := context.Background()

	c1 := NewClient(hub, nil, 42, 8)
	hub.Register(ctx, c1)

	// 断线落库途中卡住，重连必须排队等它完成
	unregDone := make(chan struct{})
	go func() {
		hub.Unregister(ctx, c1)
		close(unregDone)
	}()
	<-store.offlineEntered

	c2 := NewClient(hub, nil, 42, 8)
	regDone := make(chan struct{})
	go func() {
		hub.Register(ctx, c2)
		close(regDone)
	}()

	select {
	case <-regDone:
		t.Fatal("重连没有等待下线流程完成")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.offlineGate)
	<-unregDone
	<-regDone

	// 落库终态必须是 online，且连接表里挂着新连接
	assert.Equal(t, []string{"online", "offline", "online"}, store.writeSeq())
	assert.Same(t, c2, hub.Lookup(42))
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := NewHub(newFakeStatusStore())
	ctx := context.Background()

	c := NewClient(hub, nil, 2, 1)
	hub.Register(ctx, c)
	drain(t, c)

	// 塞满队列后的下一次投递应当失败并关闭连接
	assert.True(t, c.Send(dto.NewEnvelope(dto.EventMessageReceived, nil)))
	assert.False(t, c.Send(dto.NewEnvelope(dto.EventMessageReceived, nil)))
	assert.False(t, c.Send(dto.NewEnvelope(dto.EventMessageReceived, nil)))
}
