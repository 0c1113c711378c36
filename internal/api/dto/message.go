package dto

import "time"

// DateRange 时间过滤，两端均可省略
type DateRange struct {
	After  *time.Time `json:"after"`
	Before *time.Time `json:"before"`
}

// MessageFilters 历史查询过滤条件
type MessageFilters struct {
	ContentType string     `json:"contentType" binding:"omitempty,oneof=text image file"`
	DateRange   *DateRange `json:"dateRange"`
}

// GetMessagesReq 活跃消息分页查询请求
type GetMessagesReq struct {
	ConversationID string          `json:"conversationId" binding:"required"`
	Page           int64           `json:"page" binding:"omitempty,min=1"`
	Limit          int64           `json:"limit" binding:"omitempty,min=1,max=100"`
	Filters        *MessageFilters `json:"filters"`
}

// GetArchivedMessagesReq 归档消息查询请求，search 非空时走全文检索
type GetArchivedMessagesReq struct {
	ConversationID string          `json:"conversationId" binding:"required"`
	Page           int64           `json:"page" binding:"omitempty,min=1"`
	Limit          int64           `json:"limit" binding:"omitempty,min=1,max=100"`
	Search         string          `json:"search"`
	Filters        *MessageFilters `json:"filters"`
}

// MessagePageResp 分页查询响应
type MessagePageResp struct {
	Messages []*MessageDTO `json:"messages"`
	Total    int64         `json:"total"`
	Page     int64         `json:"page"`
	Limit    int64         `json:"limit"`
	HasNext  bool          `json:"hasNext"`
}

// ConversationDTO 会话列表项
type ConversationDTO struct {
	ID           string      `json:"id"`
	PeerID       uint64      `json:"peerId"`
	Peer         *UserDTO    `json:"peer,omitempty"`
	MessageCount uint64      `json:"messageCount"`
	LastMessage  *MessageDTO `json:"lastMessage,omitempty"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// FileUploadResp HTTP 文件上传响应
type FileUploadResp struct {
	Message *MessageDTO `json:"message"`
	URL     string      `json:"url"`
}
