package mongo

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ArchivePage 归档查询一页结果
type ArchivePage struct {
	Messages []*ArchivedMessage
	Total    int64
	HasNext  bool
}

type ArchiveRepo interface {
	// ArchiveBatch 在一个事务内把一批活跃消息搬入归档表：
	// 写归档行、删活跃行、从各会话 message_ids 摘除。message_count 不回落。
	ArchiveBatch(ctx context.Context, archived []*ArchivedMessage) error
	GetPage(ctx context.Context, convID primitive.ObjectID, page, limit int64, filter MessageFilter) (*ArchivePage, error)
}

type archiveRepoImpl struct {
	db *mongo.Database
}

func NewArchiveRepo(db *mongo.Database) ArchiveRepo {
	return &archiveRepoImpl{db: db}
}

func (s *archiveRepoImpl) ArchiveBatch(ctx context.Context, archived []*ArchivedMessage) error {
	if len(archived) == 0 {
		return nil
	}

	session, err := s.db.Client().StartSession()
	if err != nil {
		return errors.Wrap(err, "start session")
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		docs := make([]interface{}, 0, len(archived))
		originalIDs := make([]primitive.ObjectID, 0, len(archived))
		byConversation := make(map[primitive.ObjectID][]primitive.ObjectID)
		for _, a := range archived {
			docs = append(docs, a)
			originalIDs = append(originalIDs, a.OriginalMessageID)
			byConversation[a.ConversationID] = append(byConversation[a.ConversationID], a.OriginalMessageID)
		}

		if _, err := s.db.Collection(CollArchive).InsertMany(sc, docs); err != nil {
			return nil, errors.Wrap(err, "insert archived messages")
		}

		if _, err := s.db.Collection(CollMessage).DeleteMany(sc,
			bson.M{"_id": bson.M{"$in": originalIDs}}); err != nil {
			return nil, errors.Wrap(err, "delete live messages")
		}

		for convID, msgIDs := range byConversation {
			if _, err := s.db.Collection(CollConversation).UpdateByID(sc, convID,
				bson.M{"$pull": bson.M{"message_ids": bson.M{"$in": msgIDs}}}); err != nil {
				return nil, errors.Wrap(err, "prune conversation message ids")
			}
		}

		return nil, nil
	})
	return err
}

func (s *archiveRepoImpl) GetPage(ctx context.Context, convID primitive.ObjectID, page, limit int64, filter MessageFilter) (*ArchivePage, error) {
	query := bson.M{"conversation_id": convID}
	if filter.ContentType != "" {
		query["message_content.type"] = filter.ContentType
	}
	if tsRange := timeRange(filter.After, filter.Before); tsRange != nil {
		query["timestamp"] = tsRange
	}

	col := s.db.Collection(CollArchive)
	total, err := col.CountDocuments(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "count archived messages")
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)
	cursor, err := col.Find(ctx, query, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find archived messages")
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	msgs := make([]*ArchivedMessage, 0, limit)
	if err = cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}

	return &ArchivePage{
		Messages: msgs,
		Total:    total,
		HasNext:  page*limit < total,
	}, nil
}
