package kafka

import (
	"Aorko/internal/model"
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserMirror struct {
	upserts []*model.User
	deletes []uint64
}

func (s *fakeUserMirror) GetUserById(_ context.Context, _ uint64) (*model.User, error) {
	return nil, nil
}

func (s *fakeUserMirror) GetUserByIds(_ context.Context, _ []uint64) ([]*model.User, error) {
	return nil, nil
}

func (s *fakeUserMirror) UpdateStatus(_ context.Context, _ uint64, _ string, _ *time.Time) error {
	return nil
}

func (s *fakeUserMirror) UpsertUser(_ context.Context, user *model.User) error {
	s.upserts = append(s.upserts, user)
	return nil
}

func (s *fakeUserMirror) DeleteUser(_ context.Context, id uint64) error {
	s.deletes = append(s.deletes, id)
	return nil
}

func TestUserSyncUpsert(t *testing.T) {
	mirror := &fakeUserMirror{}
	handler := NewUserSyncHandler(mirror)

	msg := &sarama.ConsumerMessage{Value: []byte(`{
		"table": "users",
		"type": "INSERT",
		"data": [{"id": "7", "username": "alice", "nickname": "小艾", "avatar_url": "https://a.png", "is_delete": "0"}]
	}`)}

	require.NoError(t, handler.logic(context.Background(), msg))
	require.Len(t, mirror.upserts, 1)
	u := mirror.upserts[0]
	assert.Equal(t, uint64(7), u.ID)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "小艾", u.Nickname)
	assert.Equal(t, "https://a.png", u.AvatarURL)
	assert.Empty(t, mirror.deletes)
}

func TestUserSyncDelete(t *testing.T) {
	mirror := &fakeUserMirror{}
	handler := NewUserSyncHandler(mirror)

	// 物理删除和逻辑删除都要摘掉镜像
	hard := &sarama.ConsumerMessage{Value: []byte(`{
		"table": "users",
		"type": "DELETE",
		"data": [{"id": "7"}]
	}`)}
	soft := &sarama.ConsumerMessage{Value: []byte(`{
		"table": "users",
		"type": "UPDATE",
		"data": [{"id": "8", "username": "bob", "is_delete": "1"}]
	}`)}

	require.NoError(t, handler.logic(context.Background(), hard))
	require.NoError(t, handler.logic(context.Background(), soft))

	assert.Equal(t, []uint64{7, 8}, mirror.deletes)
	assert.Empty(t, mirror.upserts)
}

func TestUserSyncSkipsRowsWithoutID(t *testing.T) {
	mirror := &fakeUserMirror{}
	handler := NewUserSyncHandler(mirror)

	msg := &sarama.ConsumerMessage{Value: []byte(`{
		"table": "users",
		"type": "INSERT",
		"data": [{"username": "ghost"}, {"id": "9", "username": "carol"}]
	}`)}

	require.NoError(t, handler.logic(context.Background(), msg))
	require.Len(t, mirror.upserts, 1)
	assert.Equal(t, uint64(9), mirror.upserts[0].ID)
}
