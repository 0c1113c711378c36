package mongo

import (
	"Aorko/internal/pkg/consts"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	CollConversation = "conversations"
	CollMessage      = "messages"
	CollInbox        = "inboxes"
	CollArchive      = "archived_messages"
)

// 消息状态，只允许单向推进
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

var statusOrder = map[string]int{
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// ValidStatus 检查状态枚举合法性
func ValidStatus(status string) bool {
	_, ok := statusOrder[status]
	return ok
}

// CanAdvance 状态机约束：sent → delivered → read，允许跳过中间态，禁止回退与原地更新
func CanAdvance(from, to string) bool {
	fo, ok1 := statusOrder[from]
	no, ok2 := statusOrder[to]
	return ok1 && ok2 && no > fo
}

// ObjectID 对上层暴露的文档 ID 类型
type ObjectID = primitive.ObjectID

// ParseObjectID 解析十六进制消息/会话 ID
func ParseObjectID(s string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(s)
}

// ValidContentType 检查消息内容类型枚举合法性
func ValidContentType(t string) bool {
	switch t {
	case consts.MessageTypeText, consts.MessageTypeImage, consts.MessageTypeFile:
		return true
	}
	return false
}

// MessageContent 消息正文：文本内容或媒体 URL
type MessageContent struct {
	Type    string `bson:"type" json:"type"` // text / image / file
	Content string `bson:"content" json:"content"`
}

// Metadata 非文本消息的附加信息
type Metadata struct {
	Filename  string `bson:"filename" json:"filename"`
	SizeBytes int64  `bson:"size_bytes" json:"sizeBytes"`
	Format    string `bson:"format" json:"format"`
	StorageID string `bson:"storage_id" json:"storageId"` // 对象存储的 objectKey
}

// Message 活跃表消息明细
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ConversationID primitive.ObjectID `bson:"conversation_id" json:"conversationId"`
	SenderID       uint64             `bson:"sender_id" json:"senderId"`
	ReceiverID     uint64             `bson:"receiver_id" json:"receiverId"`
	MessageContent MessageContent     `bson:"message_content" json:"messageContent"`
	Metadata       *Metadata          `bson:"metadata,omitempty" json:"metadata,omitempty"`
	MessageStatus  string             `bson:"message_status" json:"messageStatus"`
	Timestamp      time.Time          `bson:"timestamp" json:"timestamp"` // 创建时间，不可变
}

// ArchivedMessage 归档表行，结构上等价于 Message 并保留原始消息 ID
// archived_at 上挂 TTL 索引，到期由 MongoDB 自行硬删除
type ArchivedMessage struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OriginalMessageID primitive.ObjectID `bson:"original_message_id" json:"originalMessageId"`
	ConversationID    primitive.ObjectID `bson:"conversation_id" json:"conversationId"`
	SenderID          uint64             `bson:"sender_id" json:"senderId"`
	ReceiverID        uint64             `bson:"receiver_id" json:"receiverId"`
	MessageContent    MessageContent     `bson:"message_content" json:"messageContent"`
	Metadata          *Metadata          `bson:"metadata,omitempty" json:"metadata,omitempty"`
	MessageStatus     string             `bson:"message_status" json:"messageStatus"`
	Timestamp         time.Time          `bson:"timestamp" json:"timestamp"`
	ArchivedAt        time.Time          `bson:"archived_at" json:"archivedAt"`
}

// ToArchived 由活跃行构造归档行
func (m *Message) ToArchived(archivedAt time.Time) *ArchivedMessage {
	return &ArchivedMessage{
		OriginalMessageID: m.ID,
		ConversationID:    m.ConversationID,
		SenderID:          m.SenderID,
		ReceiverID:        m.ReceiverID,
		MessageContent:    m.MessageContent,
		Metadata:          m.Metadata,
		MessageStatus:     m.MessageStatus,
		Timestamp:         m.Timestamp,
		ArchivedAt:        archivedAt,
	}
}
