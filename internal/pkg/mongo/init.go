package mongo

import (
	"Aorko/internal/api/config"
	"Aorko/internal/pkg/logger"
	"context"
	log "log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// InitMongo 建立连接并返回 Database 引用，同时初始化索引
func InitMongo(cfg config.MongoConfig, archiveExpire time.Duration) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 建立连接
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URL).
		SetMonitor(logger.NewMongoMonitor()),
	)
	if err != nil {
		return nil, err
	}

	// 检查连通性
	if err = client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	db := client.Database(cfg.Database)

	if err = ensureIndexes(ctx, db, archiveExpire); err != nil {
		return nil, err
	}

	log.Info("MongoDB initialized successfully", "db", cfg.Database)
	return db, nil
}

// ensureIndexes 建立唯一索引与归档 TTL
// 归档行的硬删除完全交给存储层过期机制，归档任务不参与
func ensureIndexes(ctx context.Context, db *mongo.Database, archiveExpire time.Duration) error {
	convIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "peer_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := db.Collection(CollConversation).Indexes().CreateMany(ctx, convIndexes); err != nil {
		return err
	}

	msgIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
	}
	if _, err := db.Collection(CollMessage).Indexes().CreateMany(ctx, msgIndexes); err != nil {
		return err
	}

	inboxIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := db.Collection(CollInbox).Indexes().CreateMany(ctx, inboxIndexes); err != nil {
		return err
	}

	archiveIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "original_message_id", Value: 1}}},
		{
			Keys:    bson.D{{Key: "archived_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(archiveExpire.Seconds())),
		},
	}
	if _, err := db.Collection(CollArchive).Indexes().CreateMany(ctx, archiveIndexes); err != nil {
		return err
	}

	return nil
}
