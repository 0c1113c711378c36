package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ConversationRepo interface {
	// SaveWithMessage 在一个事务内完成：定位/创建会话、写入消息、
	// 维护会话计数与指针、双方收件箱 upsert。任一步失败整体回滚。
	SaveWithMessage(ctx context.Context, senderID, receiverID uint64, msg *Message) (*Conversation, error)
	GetConversation(ctx context.Context, convID primitive.ObjectID) (*Conversation, error)
	GetConversationsByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*Conversation, error)
	GetInbox(ctx context.Context, userID uint64) (*Inbox, error)
}

type conversationRepoImpl struct {
	db *mongo.Database
}

func NewConversationRepo(db *mongo.Database) ConversationRepo {
	return &conversationRepoImpl{db: db}
}

func (s *conversationRepoImpl) SaveWithMessage(ctx context.Context, senderID, receiverID uint64, msg *Message) (*Conversation, error) {
	session, err := s.db.Client().StartSession()
	if err != nil {
		return nil, errors.Wrap(err, "start session")
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		conv, err := s.getOrCreate(sc, senderID, receiverID)
		if err != nil {
			return nil, err
		}

		msg.ID = primitive.NewObjectID()
		msg.ConversationID = conv.ID
		if _, err = s.db.Collection(CollMessage).InsertOne(sc, msg); err != nil {
			return nil, errors.Wrap(err, "insert message")
		}

		now := time.Now()
		update := bson.M{
			"$inc": bson.M{"message_count": 1},
			"$push": bson.M{"message_ids": msg.ID},
			"$set": bson.M{
				"last_message_id": msg.ID,
				"updated_at":      now,
			},
		}
		if _, err = s.db.Collection(CollConversation).UpdateByID(sc, conv.ID, update); err != nil {
			return nil, errors.Wrap(err, "update conversation")
		}
		conv.MessageCount++
		conv.LastMessageID = msg.ID
		conv.UpdatedAt = now

		for _, uid := range []uint64{senderID, receiverID} {
			if err = s.ensureInboxEntry(sc, uid, conv.ID); err != nil {
				return nil, err
			}
		}

		return conv, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Conversation), nil
}

// getOrCreate 按 PeerKey 查找会话，缺失则在当前事务内创建
// participants 保留调用方给出的顺序，查找本身与顺序无关
func (s *conversationRepoImpl) getOrCreate(sc mongo.SessionContext, senderID, receiverID uint64) (*Conversation, error) {
	peerKey := PeerKey(senderID, receiverID)

	var conv Conversation
	err := s.db.Collection(CollConversation).
		FindOne(sc, bson.M{"peer_key": peerKey}).
		Decode(&conv)
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrap(err, "find conversation")
	}

	now := time.Now()
	conv = Conversation{
		ID:           primitive.NewObjectID(),
		PeerKey:      peerKey,
		Participants: []uint64{senderID, receiverID},
		MessageCount: 0,
		MessageIDs:   []primitive.ObjectID{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err = s.db.Collection(CollConversation).InsertOne(sc, &conv); err != nil {
		return nil, errors.Wrap(err, "create conversation")
	}
	return &conv, nil
}

func (s *conversationRepoImpl) GetConversation(ctx context.Context, convID primitive.ObjectID) (*Conversation, error) {
	var conv Conversation
	err := s.db.Collection(CollConversation).
		FindOne(ctx, bson.M{"_id": convID}).
		Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

func (s *conversationRepoImpl) GetConversationsByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*Conversation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := s.db.Collection(CollConversation).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var convs []*Conversation
	if err = cursor.All(ctx, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

func (s *conversationRepoImpl) GetInbox(ctx context.Context, userID uint64) (*Inbox, error) {
	var inbox Inbox
	err := s.db.Collection(CollInbox).
		FindOne(ctx, bson.M{"user_id": userID}).
		Decode(&inbox)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &inbox, nil
}

// ensureInboxEntry 幂等 upsert：$addToSet 保证重复写入不膨胀
func (s *conversationRepoImpl) ensureInboxEntry(ctx context.Context, userID uint64, convID primitive.ObjectID) error {
	_, err := s.db.Collection(CollInbox).UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$addToSet": bson.M{"conversation_ids": convID},
			"$set":      bson.M{"updated_at": time.Now()},
		},
		options.Update().SetUpsert(true),
	)
	return errors.Wrap(err, "upsert inbox")
}
