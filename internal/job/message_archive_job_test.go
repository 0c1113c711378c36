package job

import (
	"Aorko/internal/pkg/es"
	"Aorko/internal/pkg/mongo"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeMessageScanner struct {
	messages   []*mongo.Message
	scanErr    error
	lastCutoff time.Time
	lastLimit  int64
	scanned    bool
}

func (s *fakeMessageScanner) GetMessage(_ context.Context, _ primitive.ObjectID) (*mongo.Message, error) {
	return nil, nil
}

func (s *fakeMessageScanner) GetByIDs(_ context.Context, _ []primitive.ObjectID) ([]*mongo.Message, error) {
	return nil, nil
}

func (s *fakeMessageScanner) GetPage(_ context.Context, _ primitive.ObjectID, _, _ int64, _ mongo.MessageFilter) (*mongo.MessagePage, error) {
	return &mongo.MessagePage{}, nil
}

func (s *fakeMessageScanner) UpdateStatus(_ context.Context, _ primitive.ObjectID, _ string) (*mongo.Message, error) {
	return nil, nil
}

func (s *fakeMessageScanner) FindOlderThan(_ context.Context, cutoff time.Time, limit int64) ([]*mongo.Message, error) {
	s.scanned = true
	s.lastCutoff = cutoff
	s.lastLimit = limit
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	return s.messages, nil
}

type fakeArchiveSink struct {
	batches  [][]*mongo.ArchivedMessage
	batchErr error
}

func (s *fakeArchiveSink) ArchiveBatch(_ context.Context, archived []*mongo.ArchivedMessage) error {
	if s.batchErr != nil {
		return s.batchErr
	}
	s.batches = append(s.batches, archived)
	return nil
}

func (s *fakeArchiveSink) GetPage(_ context.Context, _ primitive.ObjectID, _, _ int64, _ mongo.MessageFilter) (*mongo.ArchivePage, error) {
	return &mongo.ArchivePage{}, nil
}

type fakeSearchSink struct {
	indexed     [][]*es.ArchivedMessageES
	indexErr    error
	prunedAt    []time.Time
	pruneCalled bool
}

func (s *fakeSearchSink) IndexBatch(_ context.Context, docs []*es.ArchivedMessageES) error {
	if s.indexErr != nil {
		return s.indexErr
	}
	s.indexed = append(s.indexed, docs)
	return nil
}

func (s *fakeSearchSink) Search(_ context.Context, _, _, _ string, _, _ *time.Time, _, _ int) ([]*es.ArchivedMessageES, int64, error) {
	return nil, 0, nil
}

func (s *fakeSearchSink) DeleteExpired(_ context.Context, before time.Time) error {
	s.pruneCalled = true
	s.prunedAt = append(s.prunedAt, before)
	return nil
}

var (
	testNow       = time.Date(2025, 7, 15, 3, 0, 0, 0, time.UTC)
	testRetention = 30 * 24 * time.Hour
	testExpire    = 180 * 24 * time.Hour
)

func newTestJob(scanner *fakeMessageScanner, sink *fakeArchiveSink, search *fakeSearchSink, locked bool) *MessageArchiveJob {
	return &MessageArchiveJob{
		messageRepo: scanner,
		archiveRepo: sink,
		searchRepo:  search,
		retention:   testRetention,
		expire:      testExpire,
		batchSize:   1000,
		now:         func() time.Time { return testNow },
		tryLock:     func(_ context.Context, _ string) (bool, error) { return locked, nil },
		unlock:      func(_ context.Context, _ string) {},
	}
}

func oldMessage(age time.Duration) *mongo.Message {
	return &mongo.Message{
		ID:             primitive.NewObjectID(),
		ConversationID: primitive.NewObjectID(),
		SenderID:       1,
		ReceiverID:     2,
		MessageContent: mongo.MessageContent{Type: "text", Content: "旧消息"},
		MessageStatus:  mongo.StatusRead,
		Timestamp:      testNow.Add(-age),
	}
}

func TestArchiveJobRun(t *testing.T) {
	scanner := &fakeMessageScanner{messages: []*mongo.Message{
		oldMessage(40 * 24 * time.Hour),
		oldMessage(35 * 24 * time.Hour),
	}}
	sink := &fakeArchiveSink{}
	search := &fakeSearchSink{}

	newTestJob(scanner, sink, search, true).Run()

	// 截止点 = 当前时间 - 保留期
	assert.Equal(t, testNow.Add(-testRetention), scanner.lastCutoff)
	assert.Equal(t, int64(1000), scanner.lastLimit)

	require.Len(t, sink.batches, 1)
	require.Len(t, sink.batches[0], 2)
	for i, a := range sink.batches[0] {
		assert.Equal(t, scanner.messages[i].ID, a.OriginalMessageID)
		assert.Equal(t, testNow, a.ArchivedAt)
	}

	// 检索索引同步写入，文档 ID 对齐原消息
	require.Len(t, search.indexed, 1)
	require.Len(t, search.indexed[0], 2)
	assert.Equal(t, scanner.messages[0].ID.Hex(), search.indexed[0][0].OriginalMessageID)
	assert.Equal(t, "text", search.indexed[0][0].ContentType)

	// 索引侧同步清理过期文档
	require.Len(t, search.prunedAt, 1)
	assert.Equal(t, testNow.Add(-testExpire), search.prunedAt[0])
}

func TestArchiveJobSkipsWhenLockHeld(t *testing.T) {
	scanner := &fakeMessageScanner{messages: []*mongo.Message{oldMessage(40 * 24 * time.Hour)}}
	sink := &fakeArchiveSink{}

	newTestJob(scanner, sink, &fakeSearchSink{}, false).Run()

	// 没抢到锁就什么都不做
	assert.False(t, scanner.scanned)
	assert.Empty(t, sink.batches)
}

func TestArchiveJobLockError(t *testing.T) {
	scanner := &fakeMessageScanner{}
	j := newTestJob(scanner, &fakeArchiveSink{}, &fakeSearchSink{}, false)
	j.tryLock = func(_ context.Context, _ string) (bool, error) {
		return false, errors.New("redis down")
	}

	j.Run()
	assert.False(t, scanner.scanned)
}

func TestArchiveJobEmptyBatch(t *testing.T) {
	scanner := &fakeMessageScanner{}
	sink := &fakeArchiveSink{}
	search := &fakeSearchSink{}

	newTestJob(scanner, sink, search, true).Run()

	assert.True(t, scanner.scanned)
	assert.Empty(t, sink.batches)
	assert.Empty(t, search.indexed)
	assert.False(t, search.pruneCalled)
}

func TestArchiveJobScanFailure(t *testing.T) {
	scanner := &fakeMessageScanner{scanErr: errors.New("mongo down")}
	sink := &fakeArchiveSink{}

	newTestJob(scanner, sink, &fakeSearchSink{}, true).Run()
	assert.Empty(t, sink.batches)
}

func TestArchiveJobBatchFailureSkipsIndexing(t *testing.T) {
	scanner := &fakeMessageScanner{messages: []*mongo.Message{oldMessage(40 * 24 * time.Hour)}}
	sink := &fakeArchiveSink{batchErr: errors.New("tx aborted")}
	search := &fakeSearchSink{}

	newTestJob(scanner, sink, search, true).Run()

	// 主存储归档失败时不得污染检索索引
	assert.Empty(t, search.indexed)
	assert.False(t, search.pruneCalled)
}

func TestArchiveJobToleratesIndexFailure(t *testing.T) {
	scanner := &fakeMessageScanner{messages: []*mongo.Message{oldMessage(40 * 24 * time.Hour)}}
	sink := &fakeArchiveSink{}
	search := &fakeSearchSink{indexErr: errors.New("es down")}

	newTestJob(scanner, sink, search, true).Run()

	// 索引写入失败不回滚主存储归档
	require.Len(t, sink.batches, 1)
	assert.True(t, search.pruneCalled)
}
