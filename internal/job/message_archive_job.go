package job

import (
	"Aorko/internal/api/config"
	"Aorko/internal/pkg/consts"
	"Aorko/internal/pkg/es"
	"Aorko/internal/pkg/logger"
	"Aorko/internal/pkg/mongo"
	"Aorko/internal/pkg/redis"
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"
)

const lockTTL = 10 * time.Minute

// MessageArchiveJob 把超过保留期的活跃消息搬入归档
// 单次运行只处理一个批次，积压靠后续轮次消化；失败整批回滚，下轮重试
type MessageArchiveJob struct {
	messageRepo mongo.MessageRepo
	archiveRepo mongo.ArchiveRepo
	searchRepo  es.ArchiveSearchRepo

	retention time.Duration
	expire    time.Duration
	batchSize int64

	now     func() time.Time
	tryLock func(ctx context.Context, value string) (bool, error)
	unlock  func(ctx context.Context, value string)
}

func NewMessageArchiveJob(
	messageRepo mongo.MessageRepo,
	archiveRepo mongo.ArchiveRepo,
	searchRepo es.ArchiveSearchRepo,
	cfg *config.Config,
) *MessageArchiveJob {
	return &MessageArchiveJob{
		messageRepo: messageRepo,
		archiveRepo: archiveRepo,
		searchRepo:  searchRepo,
		retention:   cfg.ArchiveRetention(),
		expire:      cfg.ArchiveExpire(),
		batchSize:   int64(cfg.Archive.BatchSize),
		now:         time.Now,
		tryLock: func(ctx context.Context, value string) (bool, error) {
			return redis.TryLock(ctx, consts.ArchiveJobLock, value, lockTTL, 1)
		},
		unlock: func(ctx context.Context, value string) {
			redis.UnLock(ctx, consts.ArchiveJobLock, value)
		},
	}
}

func (s *MessageArchiveJob) Run() {
	traceID := "job-archive-" + uuid.NewString()
	ctx := context.WithValue(context.Background(), logger.TraceIDKey, traceID)

	// 多实例部署时靠分布式锁保证同一时刻只有一个在归档
	locked, err := s.tryLock(ctx, traceID)
	if err != nil {
		log.ErrorContext(ctx, "归档任务抢锁失败", "err", err)
		return
	}
	if !locked {
		log.InfoContext(ctx, "归档任务已在其他实例运行，跳过")
		return
	}
	defer s.unlock(ctx, traceID)

	now := s.now()
	cutoff := now.Add(-s.retention)

	msgs, err := s.messageRepo.FindOlderThan(ctx, cutoff, s.batchSize)
	if err != nil {
		log.ErrorContext(ctx, "扫描待归档消息失败", "err", err)
		return
	}
	if len(msgs) == 0 {
		log.InfoContext(ctx, "没有待归档消息", "cutoff", cutoff)
		return
	}

	archived := make([]*mongo.ArchivedMessage, 0, len(msgs))
	for _, m := range msgs {
		archived = append(archived, m.ToArchived(now))
	}

	if err = s.archiveRepo.ArchiveBatch(ctx, archived); err != nil {
		log.ErrorContext(ctx, "归档批次写入失败", "count", len(archived), "err", err)
		return
	}
	log.InfoContext(ctx, "归档批次完成", "count", len(archived), "cutoff", cutoff)

	// 检索索引尽力而为，失败不影响主存储归档结果
	docs := make([]*es.ArchivedMessageES, 0, len(archived))
	for _, a := range archived {
		docs = append(docs, toSearchDoc(a))
	}
	if err = s.searchRepo.IndexBatch(ctx, docs); err != nil {
		log.ErrorContext(ctx, "归档索引写入失败", "err", err)
	}

	// 主存储靠 TTL 过期，索引侧同步清一遍，防止漂移
	if err = s.searchRepo.DeleteExpired(ctx, now.Add(-s.expire)); err != nil {
		log.ErrorContext(ctx, "清理过期归档索引失败", "err", err)
	}
}

func toSearchDoc(a *mongo.ArchivedMessage) *es.ArchivedMessageES {
	doc := &es.ArchivedMessageES{
		OriginalMessageID: a.OriginalMessageID.Hex(),
		ConversationID:    a.ConversationID.Hex(),
		SenderID:          a.SenderID,
		ReceiverID:        a.ReceiverID,
		ContentType:       a.MessageContent.Type,
		Content:           a.MessageContent.Content,
		MessageStatus:     a.MessageStatus,
		Timestamp:         a.Timestamp,
		ArchivedAt:        a.ArchivedAt,
	}
	if a.Metadata != nil {
		doc.Filename = a.Metadata.Filename
	}
	return doc
}
