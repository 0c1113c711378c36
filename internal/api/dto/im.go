package dto

import (
	"time"

	"github.com/goccy/go-json"
)

// WS 事件名，双端约定，禁止改名
const (
	// 上行
	EventSendMessage        = "sendMessage"
	EventSendFile           = "sendFile"
	EventMessageStatus      = "messageStatus"
	EventTyping             = "typing"
	EventFileUploadProgress = "fileUploadProgress"

	// 下行
	EventMessageSent         = "messageSent"
	EventMessageReceived     = "messageReceived"
	EventMessageError        = "messageError"
	EventMessageStatusUpdate = "messageStatusUpdate"
	EventUserStatus          = "userStatus"
	EventUserTyping          = "userTyping"
	EventFileProgress        = "fileProgress"
)

// Envelope WS 消息信封，data 延迟到事件分发后再解
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope 组装下行信封，data 序列化失败时退化为空载荷
func NewEnvelope(event string, data interface{}) *Envelope {
	raw, err := json.Marshal(data)
	if err != nil {
		return &Envelope{Event: event}
	}
	return &Envelope{Event: event, Data: raw}
}

// MessageContentDTO 消息正文
type MessageContentDTO struct {
	Type    string `json:"type" binding:"required,oneof=text image file"`
	Content string `json:"content" binding:"required"`
}

// SendMessageData sendMessage 上行载荷
type SendMessageData struct {
	ReceiverID     uint64            `json:"receiverId" binding:"required"`
	MessageContent MessageContentDTO `json:"messageContent" binding:"required"`
}

// SendFileData sendFile 上行载荷，文件内容走 base64 内联
type SendFileData struct {
	ReceiverID uint64 `json:"receiverId" binding:"required"`
	Filename   string `json:"filename" binding:"required"`
	MimeType   string `json:"mimeType" binding:"required"`
	Data       string `json:"data" binding:"required"`
}

// MessageStatusData messageStatus 上行载荷
type MessageStatusData struct {
	MessageID string `json:"messageId" binding:"required"`
	Status    string `json:"status" binding:"required,oneof=sent delivered read"`
}

// TypingData typing 上行载荷
type TypingData struct {
	ReceiverID uint64 `json:"receiverId" binding:"required"`
	IsTyping   bool   `json:"isTyping"`
}

// FileProgressData fileUploadProgress 上行 / fileProgress 下行载荷
// 以在途消息 ID 为键，接收端靠它把进度对齐到具体那条消息
type FileProgressData struct {
	ReceiverID uint64 `json:"receiverId" binding:"required"`
	SenderID   uint64 `json:"senderId,omitempty"`
	MessageID  string `json:"messageId" binding:"required"`
	Filename   string `json:"filename"`
	Progress   int    `json:"progress" binding:"min=0,max=100"`
}

// MetadataDTO 非文本消息的附加信息
type MetadataDTO struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"sizeBytes"`
	Format    string `json:"format"`
}

// MessageDTO 消息明细，messageSent / messageReceived 下行与历史查询共用
type MessageDTO struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversationId"`
	SenderID       uint64            `json:"senderId"`
	ReceiverID     uint64            `json:"receiverId"`
	MessageContent MessageContentDTO `json:"messageContent"`
	Metadata       *MetadataDTO      `json:"metadata,omitempty"`
	MessageStatus  string            `json:"messageStatus"`
	Timestamp      time.Time         `json:"timestamp"`
}

// MessageErrorData messageError 下行载荷
type MessageErrorData struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// StatusUpdateData messageStatusUpdate 下行载荷
type StatusUpdateData struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// UserStatusData userStatus 下行载荷
type UserStatusData struct {
	UserID     uint64     `json:"userId"`
	Status     string     `json:"status"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
}

// TypingNotifyData userTyping 下行载荷
type TypingNotifyData struct {
	SenderID uint64 `json:"senderId"`
	IsTyping bool   `json:"isTyping"`
}
