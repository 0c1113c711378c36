package mongo

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation 两方会话
// participants 创建后不可变；message_count 只增不减，归档也不回落
type Conversation struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	PeerKey       string               `bson:"peer_key" json:"peerKey"` // minUID_maxUID，保证一对用户唯一
	Participants  []uint64             `bson:"participants" json:"participants"`
	MessageCount  uint64               `bson:"message_count" json:"messageCount"`
	LastMessageID primitive.ObjectID   `bson:"last_message_id,omitempty" json:"lastMessageId"`
	MessageIDs    []primitive.ObjectID `bson:"message_ids" json:"messageIds"` // 仅活跃表消息
	CreatedAt     time.Time            `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time            `bson:"updated_at" json:"updatedAt"`
}

// Peer 返回会话中相对 userID 的另一方
func (c *Conversation) Peer(userID uint64) uint64 {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return 0
}

// HasParticipant 判断用户是否为会话成员
func (c *Conversation) HasParticipant(userID uint64) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// PeerKey 生成会话唯一标识，参与者顺序无关
func PeerKey(userA, userB uint64) string {
	if userA < userB {
		return fmt.Sprintf("%d_%d", userA, userB)
	}
	return fmt.Sprintf("%d_%d", userB, userA)
}

// Inbox 用户收件箱：会话成员关系索引，避免全表扫描
type Inbox struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	UserID          uint64               `bson:"user_id" json:"userId"`
	ConversationIDs []primitive.ObjectID `bson:"conversation_ids" json:"conversationIds"`
	UpdatedAt       time.Time            `bson:"updated_at" json:"updatedAt"`
}
