package service

import (
	"Aorko/internal/api/dto"
	"Aorko/internal/im"
	"Aorko/internal/pkg/consts"
	"Aorko/internal/pkg/minio"
	"Aorko/internal/pkg/mongo"
	"Aorko/internal/repository"
	"context"
	"encoding/base64"
	"errors"
	log "log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Pusher 下行推送出口，由连接注册表实现
type Pusher interface {
	PushToUser(userID uint64, env *dto.Envelope) bool
	BroadcastAll(env *dto.Envelope)
}

// ObjectStorage 附件存储出口
type ObjectStorage interface {
	UploadLocal(ctx context.Context, objectName, filePath, contentType string) (string, error)
	PublicURL(objectName string) string
	Delete(ctx context.Context, objectName string) error
}

// minioStorage 默认对象存储实现
type minioStorage struct{}

func NewMinioStorage() ObjectStorage { return &minioStorage{} }

func (minioStorage) UploadLocal(ctx context.Context, objectName, filePath, contentType string) (string, error) {
	return minio.UploadLocalFile(ctx, objectName, filePath, contentType)
}
func (minioStorage) PublicURL(objectName string) string { return minio.GetPublicURL(objectName) }
func (minioStorage) Delete(ctx context.Context, objectName string) error {
	return minio.DeleteFile(ctx, objectName)
}

// IMService 即时通讯核心：消息落库、在线投递、状态推进与轻量转发
type IMService interface {
	im.Handler

	SendText(ctx context.Context, senderID uint64, req *dto.SendMessageData) (*dto.MessageDTO, error)
	// SendLocalFile 上传本地临时文件并作为消息发出，无论成败都清理临时文件
	SendLocalFile(ctx context.Context, senderID, receiverID uint64, filename, mimeType, localPath string, size int64) (*dto.MessageDTO, error)
	UpdateStatus(ctx context.Context, userID uint64, req *dto.MessageStatusData) (*dto.StatusUpdateData, error)
	RelayTyping(ctx context.Context, senderID uint64, req *dto.TypingData)
	RelayUploadProgress(ctx context.Context, senderID uint64, req *dto.FileProgressData)
}

type imServiceImpl struct {
	convRepo     mongo.ConversationRepo
	messageRepo  mongo.MessageRepo
	userRepo     repository.UserRepo
	pusher       Pusher
	storage      ObjectStorage
	maxFileBytes int64
}

func NewIMService(
	convRepo mongo.ConversationRepo,
	messageRepo mongo.MessageRepo,
	userRepo repository.UserRepo,
	pusher Pusher,
	storage ObjectStorage,
	maxFileBytes int64,
) IMService {
	return &imServiceImpl{
		convRepo:     convRepo,
		messageRepo:  messageRepo,
		userRepo:     userRepo,
		pusher:       pusher,
		storage:      storage,
		maxFileBytes: maxFileBytes,
	}
}

// SendText 发送文本类消息：先落库，后投递
func (s *imServiceImpl) SendText(ctx context.Context, senderID uint64, req *dto.SendMessageData) (*dto.MessageDTO, error) {
	if !mongo.ValidContentType(req.MessageContent.Type) || req.MessageContent.Content == "" {
		return nil, ErrParamInvalid
	}
	if err := s.checkReceiver(ctx, senderID, req.ReceiverID); err != nil {
		return nil, err
	}

	msg := &mongo.Message{
		SenderID:   senderID,
		ReceiverID: req.ReceiverID,
		MessageContent: mongo.MessageContent{
			Type:    req.MessageContent.Type,
			Content: req.MessageContent.Content,
		},
		MessageStatus: mongo.StatusSent,
		Timestamp:     time.Now(),
	}

	return s.persistAndDeliver(ctx, msg)
}

func (s *imServiceImpl) SendLocalFile(ctx context.Context, senderID, receiverID uint64, filename, mimeType, localPath string, size int64) (*dto.MessageDTO, error) {
	// 上传成败与否，本地临时文件都要清掉
	defer func() {
		if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
			log.Warn("清理临时文件失败", "path", localPath, "err", err)
		}
	}()

	msgType, ok := classifyMime(mimeType)
	if !ok {
		return nil, ErrFileNotSupported
	}
	if size <= 0 || size > s.maxFileBytes {
		return nil, ErrFileTooLarge
	}
	if err := s.checkReceiver(ctx, senderID, receiverID); err != nil {
		return nil, err
	}

	objectName := uuid.NewString() + filepath.Ext(filename)
	storageID, err := s.storage.UploadLocal(ctx, objectName, localPath, mimeType)
	if err != nil {
		log.Error("附件上传失败", "filename", filename, "err", err)
		return nil, ErrStoreUnavailable
	}

	msg := &mongo.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		MessageContent: mongo.MessageContent{
			Type:    msgType,
			Content: s.storage.PublicURL(storageID),
		},
		Metadata: &mongo.Metadata{
			Filename:  filename,
			SizeBytes: size,
			Format:    mimeType,
			StorageID: storageID,
		},
		MessageStatus: mongo.StatusSent,
		Timestamp:     time.Now(),
	}

	res, err := s.persistAndDeliver(ctx, msg)
	if err != nil {
		// 落库失败时回收已上传对象，避免悬挂附件
		if delErr := s.storage.Delete(ctx, storageID); delErr != nil {
			log.Warn("回收附件失败", "storageID", storageID, "err", delErr)
		}
		return nil, err
	}
	return res, nil
}

// persistAndDeliver 消息主路径：事务落库，再尝试在线投递并推进 delivered
func (s *imServiceImpl) persistAndDeliver(ctx context.Context, msg *mongo.Message) (*dto.MessageDTO, error) {
	if _, err := s.convRepo.SaveWithMessage(ctx, msg.SenderID, msg.ReceiverID, msg); err != nil {
		log.Error("消息落库失败", "senderID", msg.SenderID, "err", err)
		return nil, ErrStoreUnavailable
	}

	delivered := s.pusher.PushToUser(msg.ReceiverID, dto.NewEnvelope(dto.EventMessageReceived, toMessageDTO(msg)))
	if delivered {
		updated, err := s.messageRepo.UpdateStatus(ctx, msg.ID, mongo.StatusDelivered)
		if err != nil {
			// 已经送达客户端，状态推进失败只记日志，等对端回执补偿
			log.Error("推进 delivered 状态失败", "messageID", msg.ID.Hex(), "err", err)
		} else {
			msg.MessageStatus = updated.MessageStatus
			s.pusher.PushToUser(msg.SenderID, dto.NewEnvelope(dto.EventMessageStatusUpdate, &dto.StatusUpdateData{
				MessageID: msg.ID.Hex(),
				Status:    updated.MessageStatus,
			}))
		}
	}

	return toMessageDTO(msg), nil
}

// UpdateStatus 接收方推进消息状态，成功后回执给发送方
func (s *imServiceImpl) UpdateStatus(ctx context.Context, userID uint64, req *dto.MessageStatusData) (*dto.StatusUpdateData, error) {
	if !mongo.ValidStatus(req.Status) {
		return nil, ErrParamInvalid
	}
	msgID, err := mongo.ParseObjectID(req.MessageID)
	if err != nil {
		return nil, ErrParamInvalid
	}

	msg, err := s.messageRepo.GetMessage(ctx, msgID)
	if err != nil {
		return nil, ErrStoreUnavailable
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	// 只有接收方能推进状态
	if msg.ReceiverID != userID {
		return nil, ErrNotParticipant
	}

	updated, err := s.messageRepo.UpdateStatus(ctx, msgID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrMessageNotFound):
			return nil, ErrMessageNotFound
		case errors.Is(err, mongo.ErrStatusConflict):
			return nil, ErrStatusConflict
		default:
			return nil, ErrStoreUnavailable
		}
	}

	data := &dto.StatusUpdateData{MessageID: req.MessageID, Status: updated.MessageStatus}
	s.pusher.PushToUser(msg.SenderID, dto.NewEnvelope(dto.EventMessageStatusUpdate, data))
	return data, nil
}

// RelayTyping 输入状态只做在线转发，不落库
func (s *imServiceImpl) RelayTyping(ctx context.Context, senderID uint64, req *dto.TypingData) {
	s.pusher.PushToUser(req.ReceiverID, dto.NewEnvelope(dto.EventUserTyping, &dto.TypingNotifyData{
		SenderID: senderID,
		IsTyping: req.IsTyping,
	}))
}

// RelayUploadProgress 上传进度只做在线转发，不落库
func (s *imServiceImpl) RelayUploadProgress(ctx context.Context, senderID uint64, req *dto.FileProgressData) {
	s.pusher.PushToUser(req.ReceiverID, dto.NewEnvelope(dto.EventFileProgress, &dto.FileProgressData{
		SenderID:  senderID,
		MessageID: req.MessageID,
		Filename:  req.Filename,
		Progress:  req.Progress,
	}))
}

// HandleEvent WS 上行事件分发入口
func (s *imServiceImpl) HandleEvent(ctx context.Context, client *im.Client, env *dto.Envelope) {
	switch env.Event {
	case dto.EventSendMessage:
		var req dto.SendMessageData
		if err := json.Unmarshal(env.Data, &req); err != nil || req.ReceiverID == 0 {
			s.sendError(client, ErrParamInvalid)
			return
		}
		msgDTO, err := s.SendText(ctx, client.UserID, &req)
		if err != nil {
			s.sendError(client, err)
			return
		}
		client.Send(dto.NewEnvelope(dto.EventMessageSent, msgDTO))

	case dto.EventSendFile:
		var req dto.SendFileData
		if err := json.Unmarshal(env.Data, &req); err != nil || req.ReceiverID == 0 || req.Filename == "" {
			s.sendError(client, ErrParamInvalid)
			return
		}
		msgDTO, err := s.receiveInlineFile(ctx, client.UserID, &req)
		if err != nil {
			s.sendError(client, err)
			return
		}
		client.Send(dto.NewEnvelope(dto.EventMessageSent, msgDTO))

	case dto.EventMessageStatus:
		var req dto.MessageStatusData
		if err := json.Unmarshal(env.Data, &req); err != nil || req.MessageID == "" {
			s.sendError(client, ErrParamInvalid)
			return
		}
		if _, err := s.UpdateStatus(ctx, client.UserID, &req); err != nil {
			s.sendError(client, err)
		}

	case dto.EventTyping:
		var req dto.TypingData
		if err := json.Unmarshal(env.Data, &req); err != nil || req.ReceiverID == 0 {
			return
		}
		s.RelayTyping(ctx, client.UserID, &req)

	case dto.EventFileUploadProgress:
		var req dto.FileProgressData
		if err := json.Unmarshal(env.Data, &req); err != nil || req.ReceiverID == 0 || req.MessageID == "" {
			return
		}
		s.RelayUploadProgress(ctx, client.UserID, &req)

	default:
		s.sendError(client, ErrParamInvalid)
	}
}

// receiveInlineFile 解码 base64 附件，落成临时文件后走统一上传路径
func (s *imServiceImpl) receiveInlineFile(ctx context.Context, senderID uint64, req *dto.SendFileData) (*dto.MessageDTO, error) {
	raw, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return nil, ErrParamInvalid
	}
	if int64(len(raw)) > s.maxFileBytes {
		return nil, ErrFileTooLarge
	}

	tmp, err := os.CreateTemp("", "aorko-upload-*")
	if err != nil {
		return nil, UnExpectedError
	}
	if _, err = tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, UnExpectedError
	}
	_ = tmp.Close()

	return s.SendLocalFile(ctx, senderID, req.ReceiverID, req.Filename, req.MimeType, tmp.Name(), int64(len(raw)))
}

func (s *imServiceImpl) sendError(client *im.Client, err error) {
	client.Send(dto.NewEnvelope(dto.EventMessageError, &dto.MessageErrorData{
		Kind:    Kind(err),
		Message: err.Error(),
	}))
}

// checkReceiver 校验接收方存在且不是自己
func (s *imServiceImpl) checkReceiver(ctx context.Context, senderID, receiverID uint64) error {
	if receiverID == 0 || receiverID == senderID {
		return ErrReceiverInvalid
	}
	receiver, err := s.userRepo.GetUserById(ctx, receiverID)
	if err != nil {
		log.Error("查询接收方失败", "receiverID", receiverID, "err", err)
		return ErrStoreUnavailable
	}
	if receiver == nil {
		return ErrReceiverInvalid
	}
	return nil
}

// classifyMime 按允许名单归类消息类型
func classifyMime(mimeType string) (string, bool) {
	for _, m := range consts.AllowedImageMimeTypes {
		if m == mimeType {
			return consts.MessageTypeImage, true
		}
	}
	for _, m := range consts.AllowedFileMimeTypes {
		if m == mimeType {
			return consts.MessageTypeFile, true
		}
	}
	return "", false
}

func toMessageDTO(m *mongo.Message) *dto.MessageDTO {
	res := &dto.MessageDTO{
		ID:             m.ID.Hex(),
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
