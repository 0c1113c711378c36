package dto

import "time"

// UserDTO 用户公开信息
type UserDTO struct {
	ID         uint64     `json:"id"`
	Username   string     `json:"username"`
	Nickname   string     `json:"nickname"`
	AvatarURL  string     `json:"avatarUrl"`
	Status     string     `json:"status"` // online / offline
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
}
