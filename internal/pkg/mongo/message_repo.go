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

// 存储层哨兵错误，供上层区分"不存在"与"非法状态推进"
var (
	ErrMessageNotFound = errors.New("message not found")
	ErrStatusConflict  = errors.New("message status cannot move backward")
)

// MessageFilter 历史查询的可选过滤条件，零值表示不过滤
type MessageFilter struct {
	ContentType string
	After       *time.Time
	Before      *time.Time
}

// MessagePage 一页查询结果
type MessagePage struct {
	Messages []*Message
	Total    int64
	HasNext  bool
}

type MessageRepo interface {
	GetMessage(ctx context.Context, msgID primitive.ObjectID) (*Message, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*Message, error)
	// GetPage 按时间倒序分页，page 从 1 开始
	GetPage(ctx context.Context, convID primitive.ObjectID, page, limit int64, filter MessageFilter) (*MessagePage, error)
	// UpdateStatus 单向推进消息状态，回退或原地更新返回 ErrStatusConflict
	UpdateStatus(ctx context.Context, msgID primitive.ObjectID, status string) (*Message, error)
	// FindOlderThan 取 timestamp 早于 cutoff 的消息，按时间升序，最多 limit 条
	FindOlderThan(ctx context.Context, cutoff time.Time, limit int64) ([]*Message, error)
}

type messageRepoImpl struct {
	db *mongo.Database
}

func NewMessageRepo(db *mongo.Database) MessageRepo {
	return &messageRepoImpl{db: db}
}

func (s *messageRepoImpl) GetMessage(ctx context.Context, msgID primitive.ObjectID) (*Message, error) {
	var msg Message
	err := s.db.Collection(CollMessage).
		FindOne(ctx, bson.M{"_id": msgID}).
		Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

func (s *messageRepoImpl) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := s.db.Collection(CollMessage).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var msgs []*Message
	if err = cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *messageRepoImpl) GetPage(ctx context.Context, convID primitive.ObjectID, page, limit int64, filter MessageFilter) (*MessagePage, error) {
	query := bson.M{"conversation_id": convID}
	if filter.ContentType != "" {
		query["message_content.type"] = filter.ContentType
	}
	if tsRange := timeRange(filter.After, filter.Before); tsRange != nil {
		query["timestamp"] = tsRange
	}

	col := s.db.Collection(CollMessage)
	total, err := col.CountDocuments(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "count messages")
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)
	cursor, err := col.Find(ctx, query, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find messages")
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	msgs := make([]*Message, 0, limit)
	if err = cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}

	return &MessagePage{
		Messages: msgs,
		Total:    total,
		HasNext:  page*limit < total,
	}, nil
}

func (s *messageRepoImpl) UpdateStatus(ctx context.Context, msgID primitive.ObjectID, status string) (*Message, error) {
	// 过滤条件限定当前状态允许推进到目标值，推进与并发判重一次完成
	eligible := make([]string, 0, 2)
	for st := range statusOrder {
		if CanAdvance(st, status) {
			eligible = append(eligible, st)
		}
	}

	var msg Message
	err := s.db.Collection(CollMessage).FindOneAndUpdate(ctx,
		bson.M{"_id": msgID, "message_status": bson.M{"$in": eligible}},
		bson.M{"$set": bson.M{"message_status": status}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&msg)
	if err == nil {
		return &msg, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrap(err, "update message status")
	}

	// 没有命中：区分消息不存在与状态冲突
	exists, err := s.db.Collection(CollMessage).CountDocuments(ctx, bson.M{"_id": msgID})
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrMessageNotFound
	}
	return nil, ErrStatusConflict
}

func (s *messageRepoImpl) FindOlderThan(ctx context.Context, cutoff time.Time, limit int64) ([]*Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}}).
		SetLimit(limit)
	cursor, err := s.db.Collection(CollMessage).Find(ctx,
		bson.M{"timestamp": bson.M{"$lt": cutoff}}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find messages older than cutoff")
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var msgs []*Message
	if err = cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func timeRange(after, before *time.Time) bson.M {
	if after == nil && before == nil {
		return nil
	}
	r := bson.M{}
	if after != nil {
		r["$gte"] = *after
	}
	if before != nil {
		r["$lte"] = *before
	}
	return r
}
