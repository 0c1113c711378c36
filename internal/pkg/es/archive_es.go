package es

import "time"

// ArchivedMessageES 归档消息的检索文档
// 文档 ID 取归档行的 original_message_id，重复写入自然幂等
type ArchivedMessageES struct {
	OriginalMessageID string    `json:"original_message_id"`
	ConversationID    string    `json:"conversation_id"`
	SenderID          uint64    `json:"sender_id"`
	ReceiverID        uint64    `json:"receiver_id"`
	ContentType       string    `json:"content_type"`
	Content           string    `json:"content"`
	Filename          string    `json:"filename,omitempty"`
	MessageStatus     string    `json:"message_status"`
	Timestamp         time.Time `json:"timestamp"`
	ArchivedAt        time.Time `json:"archived_at"`
}
