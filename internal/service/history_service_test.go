package service

import (
	"Aorko/internal/api/dto"
	"Aorko/internal/pkg/es"
	"Aorko/internal/pkg/mongo"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeArchiveRepo struct {
	page     *mongo.ArchivePage
	lastPage int64
	batches  [][]*mongo.ArchivedMessage
}

func (s *fakeArchiveRepo) ArchiveBatch(_ context.Context, archived []*mongo.ArchivedMessage) error {
	s.batches = append(s.batches, archived)
	return nil
}

func (s *fakeArchiveRepo) GetPage(_ context.Context, _ primitive.ObjectID, page, _ int64, _ mongo.MessageFilter) (*mongo.ArchivePage, error) {
	s.lastPage = page
	if s.page != nil {
		return s.page, nil
	}
	return &mongo.ArchivePage{}, nil
}

type fakeSearchRepo struct {
	docs     []*es.ArchivedMessageES
	total    int64
	lastText string
	lastFrom int
	indexed  [][]*es.ArchivedMessageES
}

func (s *fakeSearchRepo) IndexBatch(_ context.Context, docs []*es.ArchivedMessageES) error {
	s.indexed = append(s.indexed, docs)
	return nil
}

func (s *fakeSearchRepo) Search(_ context.Context, _, text, _ string, _, _ *time.Time, from, _ int) ([]*es.ArchivedMessageES, int64, error) {
	s.lastText = text
	s.lastFrom = from
	return s.docs, s.total, nil
}

func (s *fakeSearchRepo) DeleteExpired(_ context.Context, _ time.Time) error {
	return nil
}

// seedConversation 造一个 1 和 2 的会话并登记进双方收件箱
func seedConversation(convRepo *fakeConvRepo) *mongo.Conversation {
	conv := &mongo.Conversation{
		ID:           primitive.NewObjectID(),
		PeerKey:      mongo.PeerKey(1, 2),
		Participants: []uint64{1, 2},
		UpdatedAt:    time.Now(),
	}
	convRepo.convByID[conv.ID] = conv
	for _, uid := range conv.Participants {
		inbox := convRepo.inboxes[uid]
		if inbox == nil {
			inbox = &mongo.Inbox{UserID: uid}
			convRepo.inboxes[uid] = inbox
		}
		inbox.ConversationIDs = append(inbox.ConversationIDs, conv.ID)
	}
	return conv
}

func newTestHistoryService(convRepo *fakeConvRepo, msgRepo *fakeMessageRepo, archiveRepo *fakeArchiveRepo, searchRepo *fakeSearchRepo, userRepo *fakeUserRepo) HistoryService {
	return NewHistoryService(convRepo, msgRepo, archiveRepo, searchRepo, userRepo)
}

func TestGetMessagesAuthorization(t *testing.T) {
	convRepo := newFakeConvRepo()
	conv := seedConversation(convRepo)
	svc := newTestHistoryService(convRepo, newFakeMessageRepo(), &fakeArchiveRepo{}, &fakeSearchRepo{}, newFakeUserRepo(1, 2))
	ctx := context.Background()

	// 非法会话 ID
	_, err := svc.GetMessages(ctx, 1, &dto.GetMessagesReq{ConversationID: "nope"})
	assert.ErrorIs(t, err, ErrParamInvalid)

	// 会话不存在
	_, err = svc.GetMessages(ctx, 1, &dto.GetMessagesReq{ConversationID: primitive.NewObjectID().Hex()})
	assert.ErrorIs(t, err, ErrConversationNotFound)

	// 非会话成员
	_, err = svc.GetMessages(ctx, 99, &dto.GetMessagesReq{ConversationID: conv.ID.Hex()})
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestGetMessagesPagination(t *testing.T) {
	convRepo := newFakeConvRepo()
	conv := seedConversation(convRepo)
	msgRepo := newFakeMessageRepo()
	msgRepo.page = &mongo.MessagePage{
		Messages: []*mongo.Message{{
			ID:             primitive.NewObjectID(),
			ConversationID: conv.ID,
			SenderID:       1,
			ReceiverID:     2,
			MessageContent: mongo.MessageContent{Type: "text", Content: "hi"},
			MessageStatus:  mongo.StatusRead,
		}},
		Total:   41,
		HasNext: true,
	}
	svc := newTestHistoryService(convRepo, msgRepo, &fakeArchiveRepo{}, &fakeSearchRepo{}, newFakeUserRepo(1, 2))

	after := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	resp, err := svc.GetMessages(context.Background(), 1, &dto.GetMessagesReq{
		ConversationID: conv.ID.Hex(),
		Page:           2,
		Limit:          20,
		Filters: &dto.MessageFilters{
			ContentType: "text",
			DateRange:   &dto.DateRange{After: &after},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), msgRepo.lastPage)
	assert.Equal(t, int64(20), msgRepo.lastLimit)
	assert.Equal(t, "text", msgRepo.lastFilt.ContentType)
	require.NotNil(t, msgRepo.lastFilt.After)
	assert.Equal(t, after, *msgRepo.lastFilt.After)

	assert.Equal(t, int64(41), resp.Total)
	assert.True(t, resp.HasNext)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "hi", resp.Messages[0].MessageContent.Content)
}

func TestGetMessagesNormalizesPageBounds(t *testing.T) {
	convRepo := newFakeConvRepo()
	conv := seedConversation(convRepo)
	msgRepo := newFakeMessageRepo()
	svc := newTestHistoryService(convRepo, msgRepo, &fakeArchiveRepo{}, &fakeSearchRepo{}, newFakeUserRepo(1, 2))

	// 越界分页参数回落到默认值
	resp, err := svc.GetMessages(context.Background(), 1, &dto.GetMessagesReq{
		ConversationID: conv.ID.Hex(),
		Page:           0,
		Limit:          500,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(defaultPage), resp.Page)
	assert.Equal(t, int64(defaultLimit), resp.Limit)
	assert.Equal(t, int64(defaultLimit), msgRepo.lastLimit)
}

func TestGetArchivedMessagesStorePath(t *testing.T) {
	convRepo := newFakeConvRepo()
	conv := seedConversation(convRepo)
	archiveRepo := &fakeArchiveRepo{page: &mongo.ArchivePage{
		Messages: []*mongo.ArchivedMessage{{
			OriginalMessageID: primitive.NewObjectID(),
			ConversationID:    conv.ID,
			SenderID:          2,
			ReceiverID:        1,
			MessageContent:    mongo.MessageContent{Type: "file", Content: "https://files.example.com/a.pdf"},
			Metadata:          &mongo.Metadata{Filename: "a.pdf", SizeBytes: 2048, Format: "application/pdf"},
			MessageStatus:     mongo.StatusRead,
		}},
		Total: 1,
	}}
	searchRepo := &fakeSearchRepo{}
	svc := newTestHistoryService(convRepo, newFakeMessageRepo(), archiveRepo, searchRepo, newFakeUserRepo(1, 2))

	resp, err := svc.GetArchivedMessages(context.Background(), 1, &dto.GetArchivedMessagesReq{
		ConversationID: conv.ID.Hex(),
	})
	require.NoError(t, err)

	// search 为空不应触碰检索集群
	assert.Empty(t, searchRepo.lastText)
	require.Len(t, resp.Messages, 1)
	// 对外暴露原始消息 ID
	assert.Equal(t, archiveRepo.page.Messages[0].OriginalMessageID.Hex(), resp.Messages[0].ID)
	require.NotNil(t, resp.Messages[0].Metadata)
	assert.Equal(t, "a.pdf", resp.Messages[0].Metadata.Filename)
}

func TestGetArchivedMessagesSearchPath(t *testing.T) {
	convRepo := newFakeConvRepo()
	conv := seedConversation(convRepo)
	searchRepo := &fakeSearchRepo{
		docs: []*es.ArchivedMessageES{{
			OriginalMessageID: primitive.NewObjectID().Hex(),
			ConversationID:    conv.ID.Hex(),
			SenderID:          1,
			ReceiverID:        2,
			ContentType:       "text",
			Content:           "年度报告",
			MessageStatus:     mongo.StatusRead,
		}},
		total: 57,
	}
	svc := newTestHistoryService(convRepo, newFakeMessageRepo(), &fakeArchiveRepo{}, searchRepo, newFakeUserRepo(1, 2))

	resp, err := svc.GetArchivedMessages(context.Background(), 1, &dto.GetArchivedMessagesReq{
		ConversationID: conv.ID.Hex(),
		Page:           3,
		Limit:          10,
		Search:         "报告",
	})
	require.NoError(t, err)

	assert.Equal(t, "报告", searchRepo.lastText)
	assert.Equal(t, 20, searchRepo.lastFrom)
	assert.Equal(t, int64(57), resp.Total)
	assert.True(t, resp.HasNext)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "年度报告", resp.Messages[0].MessageContent.Content)
}

func TestGetConversationList(t *testing.T) {
	convRepo := newFakeConvRepo()
	msgRepo := newFakeMessageRepo()
	userRepo := newFakeUserRepo(1, 2, 3)
	userRepo.users[2].Nickname = "小王"

	older := seedConversation(convRepo) // 1 <-> 2
	older.UpdatedAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	lastMsg := &mongo.Message{
		ID:             primitive.NewObjectID(),
		SenderID:       3,
		ReceiverID:     1,
		MessageContent: mongo.MessageContent{Type: "text", Content: "最近的"},
		MessageStatus:  mongo.StatusDelivered,
	}
	msgRepo.messages[lastMsg.ID] = lastMsg

	newer := &mongo.Conversation{
		ID:            primitive.NewObjectID(),
		PeerKey:       mongo.PeerKey(1, 3),
		Participants:  []uint64{1, 3},
		MessageCount:  5,
		LastMessageID: lastMsg.ID,
		UpdatedAt:     time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	convRepo.convByID[newer.ID] = newer
	convRepo.inboxes[1].ConversationIDs = append(convRepo.inboxes[1].ConversationIDs, newer.ID)

	svc := newTestHistoryService(convRepo, msgRepo, &fakeArchiveRepo{}, &fakeSearchRepo{}, userRepo)

	list, err := svc.GetConversationList(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 2)

	// 按最近活跃排序
	assert.Equal(t, newer.ID.Hex(), list[0].ID)
	assert.Equal(t, uint64(3), list[0].PeerID)
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, "最近的", list[0].LastMessage.MessageContent.Content)

	assert.Equal(t, older.ID.Hex(), list[1].ID)
	assert.Equal(t, uint64(2), list[1].PeerID)
	require.NotNil(t, list[1].Peer)
	assert.Equal(t, "小王", list[1].Peer.Nickname)
	assert.Nil(t, list[1].LastMessage)
}

func TestGetConversationListEmptyInbox(t *testing.T) {
	svc := newTestHistoryService(newFakeConvRepo(), newFakeMessageRepo(), &fakeArchiveRepo{}, &fakeSearchRepo{}, newFakeUserRepo(1))

	list, err := svc.GetConversationList(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, list)
}
