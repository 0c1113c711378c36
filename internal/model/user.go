package model

import (
	"time"
)

// User 身份服务同步过来的用户镜像
// 本服务只读取公开资料字段，在线状态与最后在线时间由 Presence 路径更新
type User struct {
	ID         uint64     `gorm:"primaryKey"`
	Username   string     `gorm:"type:varchar(50);uniqueIndex:idx_username"`
	Nickname   string     `gorm:"type:varchar(50)"`
	AvatarURL  string     `gorm:"type:varchar(255)"`
	Status     string     `gorm:"type:varchar(10);default:'offline'"` // online / offline
	LastSeenAt *time.Time `gorm:"index"`
	IsDelete   bool       `gorm:"type:tinyint(1);default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (User) TableName() string {
	return "users"
}
