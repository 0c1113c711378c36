package es

import (
	"Aorko/internal/pkg/util"
	"context"
	"errors"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/conflicts"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/sortorder"
	"github.com/goccy/go-json"
)

type ArchiveSearchRepo interface {
	// IndexBatch 批量写入归档文档，按 original_message_id 覆盖写，幂等
	IndexBatch(ctx context.Context, docs []*ArchivedMessageES) error
	// Search 在指定会话的归档内做全文检索，text 为空退化为过滤查询
	Search(ctx context.Context, conversationID, text string, contentType string, after, before *time.Time, from, size int) ([]*ArchivedMessageES, int64, error)
	// DeleteExpired 清除 archived_at 早于 before 的文档，与主存储的过期保持一致
	DeleteExpired(ctx context.Context, before time.Time) error
}

type ArchiveSearchRepoImpl struct {
	client *elasticsearch.TypedClient
}

func NewArchiveSearchRepo(client *elasticsearch.TypedClient) ArchiveSearchRepo {
	return &ArchiveSearchRepoImpl{client: client}
}

func (s *ArchiveSearchRepoImpl) IndexBatch(ctx context.Context, docs []*ArchivedMessageES) error {
	for _, doc := range docs {
		_, err := s.client.Index(ArchiveIndex).
			Id(doc.OriginalMessageID).
			Document(doc).
			Do(ctx)
		if err != nil {
			var e *types.ElasticsearchError
			if errors.As(err, &e) && e.Status == ConflictCode {
				continue
			}
			return err
		}
	}
	return nil
}

func (s *ArchiveSearchRepoImpl) Search(ctx context.Context, conversationID, text string, contentType string, after, before *time.Time, from, size int) ([]*ArchivedMessageES, int64, error) {
	filters := []types.Query{
		{Term: map[string]types.TermQuery{"conversation_id": {Value: conversationID}}},
	}
	if contentType != "" {
		filters = append(filters, types.Query{
			Term: map[string]types.TermQuery{"content_type": {Value: contentType}},
		})
	}
	if after != nil || before != nil {
		rangeQuery := types.DateRangeQuery{}
		if after != nil {
			rangeQuery.Gte = util.PtrStr(after.Format(time.RFC3339))
		}
		if before != nil {
			rangeQuery.Lte = util.PtrStr(before.Format(time.RFC3339))
		}
		filters = append(filters, types.Query{
			Range: map[string]types.RangeQuery{"timestamp": rangeQuery},
		})
	}

	boolQuery := &types.BoolQuery{Filter: filters}
	if text != "" {
		boolQuery.Must = []types.Query{
			{
				Match: map[string]types.MatchQuery{
					"content": {Query: text, Fuzziness: "AUTO"},
				},
			},
		}
	}

	resp, err := s.client.Search().
		Index(ArchiveIndex).
		Query(&types.Query{Bool: boolQuery}).
		Sort(types.SortOptions{SortOptions: map[string]types.FieldSort{
			"timestamp": {Order: &sortorder.Desc},
		}}).
		From(from).
		Size(size).
		Do(ctx)
	if err != nil {
		return nil, 0, err
	}

	results := make([]*ArchivedMessageES, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		if hit.Source_ == nil {
			continue
		}
		var doc ArchivedMessageES
		if err = json.Unmarshal(hit.Source_, &doc); err != nil {
			continue
		}
		results = append(results, &doc)
	}

	var total int64
	if resp.Hits.Total != nil {
		total = resp.Hits.Total.Value
	}
	return results, total, nil
}

func (s *ArchiveSearchRepoImpl) DeleteExpired(ctx context.Context, before time.Time) error {
	_, err := s.client.DeleteByQuery(ArchiveIndex).
		Query(&types.Query{
			Range: map[string]types.RangeQuery{
				"archived_at": types.DateRangeQuery{
					Lt: util.PtrStr(before.Format(time.RFC3339)),
				},
			},
		}).
		Conflicts(conflicts.Proceed).
		Do(ctx)
	return err
}
