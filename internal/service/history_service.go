package service

import (
	"Aorko/internal/api/dto"
	"Aorko/internal/model"
	"Aorko/internal/pkg/es"
	"Aorko/internal/pkg/mongo"
	"Aorko/internal/repository"
	"context"
	log "log/slog"
	"sort"
	"time"

	"github.com/jinzhu/copier"
)

const (
	defaultPage  = 1
	defaultLimit = 20
)

// HistoryService 历史与归档查询
type HistoryService interface {
	GetMessages(ctx context.Context, userID uint64, req *dto.GetMessagesReq) (*dto.MessagePageResp, error)
	// GetArchivedMessages 查询归档。search 非空走全文检索，否则走主存储分页
	GetArchivedMessages(ctx context.Context, userID uint64, req *dto.GetArchivedMessagesReq) (*dto.MessagePageResp, error)
	GetConversationList(ctx context.Context, userID uint64) ([]*dto.ConversationDTO, error)
}

type historyServiceImpl struct {
	convRepo    mongo.ConversationRepo
	messageRepo mongo.MessageRepo
	archiveRepo mongo.ArchiveRepo
	searchRepo  es.ArchiveSearchRepo
	userRepo    repository.UserRepo
}

func NewHistoryService(
	convRepo mongo.ConversationRepo,
	messageRepo mongo.MessageRepo,
	archiveRepo mongo.ArchiveRepo,
	searchRepo es.ArchiveSearchRepo,
	userRepo repository.UserRepo,
) HistoryService {
	return &historyServiceImpl{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		archiveRepo: archiveRepo,
		searchRepo:  searchRepo,
		userRepo:    userRepo,
	}
}

func (s *historyServiceImpl) GetMessages(ctx context.Context, userID uint64, req *dto.GetMessagesReq) (*dto.MessagePageResp, error) {
	convID, err := s.authorize(ctx, userID, req.ConversationID)
	if err != nil {
		return nil, err
	}

	page, limit := normalizePage(req.Page, req.Limit)
	result, err := s.messageRepo.GetPage(ctx, convID, page, limit, toRepoFilter(req.Filters))
	if err != nil {
		log.Error("查询历史消息失败", "conversationID", req.ConversationID, "err", err)
		return nil, ErrStoreUnavailable
	}

	messages := make([]*dto.MessageDTO, 0, len(result.Messages))
	for _, m := range result.Messages {
		messages = append(messages, toMessageDTO(m))
	}
	return &dto.MessagePageResp{
		Messages: messages,
		Total:    result.Total,
		Page:     page,
		Limit:    limit,
		HasNext:  result.HasNext,
	}, nil
}

func (s *historyServiceImpl) GetArchivedMessages(ctx context.Context, userID uint64, req *dto.GetArchivedMessagesReq) (*dto.MessagePageResp, error) {
	convID, err := s.authorize(ctx, userID, req.ConversationID)
	if err != nil {
		return nil, err
	}

	page, limit := normalizePage(req.Page, req.Limit)

	if req.Search != "" {
		return s.searchArchive(ctx, req, page, limit)
	}

	result, err := s.archiveRepo.GetPage(ctx, convID, page, limit, toRepoFilter(req.Filters))
	if err != nil {
		log.Error("查询归档消息失败", "conversationID", req.ConversationID, "err", err)
		return nil, ErrStoreUnavailable
	}

	messages := make([]*dto.MessageDTO, 0, len(result.Messages))
	for _, m := range result.Messages {
		messages = append(messages, toArchivedDTO(m))
	}
	return &dto.MessagePageResp{
		Messages: messages,
		Total:    result.Total,
		Page:     page,
		Limit:    limit,
		HasNext:  result.HasNext,
	}, nil
}

// searchArchive 全文检索路径，命中文档直接映射为消息明细
func (s *historyServiceImpl) searchArchive(ctx context.Context, req *dto.GetArchivedMessagesReq, page, limit int64) (*dto.MessagePageResp, error) {
	var contentType string
	var after, before *time.Time
	if req.Filters != nil {
		contentType = req.Filters.ContentType
		if req.Filters.DateRange != nil {
			after, before = req.Filters.DateRange.After, req.Filters.DateRange.Before
		}
	}

	docs, total, err := s.searchRepo.Search(ctx, req.ConversationID, req.Search,
		contentType, after, before, int((page-1)*limit), int(limit))
	if err != nil {
		log.Error("归档检索失败", "conversationID", req.ConversationID, "err", err)
		return nil, ErrStoreUnavailable
	}

	messages := make([]*dto.MessageDTO, 0, len(docs))
	for _, d := range docs {
		messages = append(messages, &dto.MessageDTO{
			ID:             d.OriginalMessageID,
			ConversationID: d.ConversationID,
			SenderID:       d.SenderID,
			ReceiverID:     d.ReceiverID,
			MessageContent: dto.MessageContentDTO{Type: d.ContentType, Content: d.Content},
			MessageStatus:  d.MessageStatus,
			Timestamp:      d.Timestamp,
		})
	}
	return &dto.MessagePageResp{
		Messages: messages,
		Total:    total,
		Page:     page,
		Limit:    limit,
		HasNext:  page*limit < total,
	}, nil
}

// GetConversationList 基于收件箱拉取会话列表，按最近活跃排序
func (s *historyServiceImpl) GetConversationList(ctx context.Context, userID uint64) ([]*dto.ConversationDTO, error) {
	inbox, err := s.convRepo.GetInbox(ctx, userID)
	if err != nil {
		log.Error("查询收件箱失败", "userID", userID, "err", err)
		return nil, ErrStoreUnavailable
	}
	if inbox == nil || len(inbox.ConversationIDs) == 0 {
		return []*dto.ConversationDTO{}, nil
	}

	convs, err := s.convRepo.GetConversationsByIDs(ctx, inbox.ConversationIDs)
	if err != nil {
		log.Error("查询会话失败", "userID", userID, "err", err)
		return nil, ErrStoreUnavailable
	}

	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})

	// 批量取对手方资料与末条消息
	peerIDs := make([]uint64, 0, len(convs))
	lastMsgIDs := make([]mongo.ObjectID, 0, len(convs))
	for _, c := range convs {
		peerIDs = append(peerIDs, c.Peer(userID))
		if !c.LastMessageID.IsZero() {
			lastMsgIDs = append(lastMsgIDs, c.LastMessageID)
		}
	}

	peers := make(map[uint64]*dto.UserDTO)
	users, err := s.userRepo.GetUserByIds(ctx, peerIDs)
	if err != nil {
		log.Warn("批量查询用户失败", "err", err)
	} else {
		for _, u := range users {
			peers[u.ID] = toUserDTO(u)
		}
	}

	lastMsgs := make(map[string]*dto.MessageDTO)
	msgs, err := s.messageRepo.GetByIDs(ctx, lastMsgIDs)
	if err != nil {
		log.Warn("批量查询末条消息失败", "err", err)
	} else {
		for _, m := range msgs {
			lastMsgs[m.ID.Hex()] = toMessageDTO(m)
		}
	}

	res := make([]*dto.ConversationDTO, 0, len(convs))
	for _, c := range convs {
		peerID := c.Peer(userID)
		res = append(res, &dto.ConversationDTO{
			ID:           c.ID.Hex(),
			PeerID:       peerID,
			Peer:         peers[peerID],
			MessageCount: c.MessageCount,
			LastMessage:  lastMsgs[c.LastMessageID.Hex()],
			UpdatedAt:    c.UpdatedAt,
		})
	}
	return res, nil
}

// authorize 解析会话 ID 并校验成员资格
func (s *historyServiceImpl) authorize(ctx context.Context, userID uint64, conversationID string) (mongo.ObjectID, error) {
	convID, err := mongo.ParseObjectID(conversationID)
	if err != nil {
		return convID, ErrParamInvalid
	}

	conv, err := s.convRepo.GetConversation(ctx, convID)
	if err != nil {
		log.Error("查询会话失败", "conversationID", conversationID, "err", err)
		return convID, ErrStoreUnavailable
	}
	if conv == nil {
		return convID, ErrConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		return convID, ErrNotParticipant
	}
	return convID, nil
}

func normalizePage(page, limit int64) (int64, int64) {
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 || limit > 100 {
		limit = defaultLimit
	}
	return page, limit
}

func toRepoFilter(f *dto.MessageFilters) mongo.MessageFilter {
	if f == nil {
		return mongo.MessageFilter{}
	}
	filter := mongo.MessageFilter{ContentType: f.ContentType}
	if f.DateRange != nil {
		filter.After = f.DateRange.After
		filter.Before = f.DateRange.Before
	}
	return filter
}

func toArchivedDTO(m *mongo.ArchivedMessage) *dto.MessageDTO {
	res := &dto.MessageDTO{
		ID:             m.OriginalMessageID.Hex(),
		ConversationID: m.ConversationID.Hex(),
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		MessageContent: dto.MessageContentDTO{
			Type:    m.MessageContent.Type,
			Content: m.MessageContent.Content,
		},
		MessageStatus: m.MessageStatus,
		Timestamp:     m.Timestamp,
	}
	if m.Metadata != nil {
		res.Metadata = &dto.MetadataDTO{
			Filename:  m.Metadata.Filename,
			SizeBytes: m.Metadata.SizeBytes,
			Format:    m.Metadata.Format,
		}
	}
	return res
}

func toUserDTO(u *model.User) *dto.UserDTO {
	res := &dto.UserDTO{}
	if err := copier.Copy(res, u); err != nil {
		log.Warn("用户资料映射失败", "userID", u.ID, "err", err)
	}
	return res
}
