// Package searchindex maintains the denormalized lead projection in
// RediSearch. The relational store is the sole source of truth; the index
// is a disposable mirror, rebuildable at any time via Reindex.
package searchindex

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"crm_backend/internal/leads/repository"
	"crm_backend/platform/apperr"
	"crm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// Source supplies index-ready lead rows. Satisfied by
// *repository.Repository.
type Source interface {
	GetForIndexing(ctx context.Context, id uuid.UUID) (repository.IndexableLead, error)
	ListForIndexing(ctx context.Context, afterID uuid.UUID, limit int) ([]repository.IndexableLead, error)
}

// Result is one page of search hits: lead ids in final ranking order plus
// the total match count.
type Result struct {
	IDs   []uuid.UUID
	Total int
}

type Mirror struct {
	rdb       redis.UniversalClient
	source    Source
	logger    *logger.Logger
	indexName string
	batchSize int
	now       func() time.Time
}

func New(rdb redis.UniversalClient, source Source, log *logger.Logger, indexName string, batchSize int) *Mirror {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Mirror{
		rdb:       rdb,
		source:    source,
		logger:    log,
		indexName: indexName,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// EnsureIndex creates the index if it does not exist yet.
func (m *Mirror) EnsureIndex(ctx context.Context) error {
	if _, err := m.rdb.FTInfo(ctx, m.indexName).Result(); err == nil {
		return nil
	} else if !isUnknownIndex(err) {
		return err
	}
	return m.createIndex(ctx)
}

func (m *Mirror) createIndex(ctx context.Context) error {
	options := &redis.FTCreateOptions{
		OnHash: true,
		Prefix: []interface{}{docKeyPrefix},
	}
	schema := []*redis.FieldSchema{
		{FieldName: "name", FieldType: redis.SearchFieldTypeText, Weight: 5},
		{FieldName: "email", FieldType: redis.SearchFieldTypeText, Weight: 3},
		{FieldName: "phone", FieldType: redis.SearchFieldTypeText},
		{FieldName: "company", FieldType: redis.SearchFieldTypeText, Weight: 2},
		{FieldName: "occupation", FieldType: redis.SearchFieldTypeText},
		{FieldName: "city", FieldType: redis.SearchFieldTypeText},
		{FieldName: "source", FieldType: redis.SearchFieldTypeText},
		{FieldName: "service", FieldType: redis.SearchFieldTypeText},
		{FieldName: "status", FieldType: redis.SearchFieldTypeTag},
		{FieldName: "priority", FieldType: redis.SearchFieldTypeTag},
		{FieldName: "inquiry_type", FieldType: redis.SearchFieldTypeTag},
		{FieldName: "assigned_to", FieldType: redis.SearchFieldTypeTag},
		{FieldName: "assignee_name", FieldType: redis.SearchFieldTypeText},
		{FieldName: "assignee_email", FieldType: redis.SearchFieldTypeText},
		{FieldName: "tags", FieldType: redis.SearchFieldTypeTag, Separator: ","},
		{FieldName: "lead_score", FieldType: redis.SearchFieldTypeNumeric, Sortable: true},
		{FieldName: "budget", FieldType: redis.SearchFieldTypeNumeric},
		{FieldName: "hot", FieldType: redis.SearchFieldTypeNumeric},
		{FieldName: "overdue", FieldType: redis.SearchFieldTypeNumeric},
		{FieldName: "days_in_status", FieldType: redis.SearchFieldTypeNumeric},
		{FieldName: "created_at", FieldType: redis.SearchFieldTypeNumeric, Sortable: true},
	}
	return m.rdb.FTCreate(ctx, m.indexName, options, schema...).Err()
}

func isUnknownIndex(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unknown index")
}

// IndexLead writes or refreshes one lead's document. Leads that lost
// index eligibility (soft-deleted, spam) are removed instead.
func (m *Mirror) IndexLead(ctx context.Context, item repository.IndexableLead) error {
	if !item.Lead.IndexEligible() {
		return m.RemoveLead(ctx, item.Lead.ID)
	}
	return m.rdb.HSet(ctx, docKey(item.Lead.ID), docFields(item, m.now())).Err()
}

// RemoveLead drops a lead's document. Removing an absent document is not
// an error.
func (m *Mirror) RemoveLead(ctx context.Context, id uuid.UUID) error {
	return m.rdb.Del(ctx, docKey(id)).Err()
}

// SyncLead reconciles one lead against the store: reads the current row
// and indexes or removes it accordingly.
func (m *Mirror) SyncLead(ctx context.Context, id uuid.UUID) error {
	item, err := m.source.GetForIndexing(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return m.RemoveLead(ctx, id)
	}
	if err != nil {
		return err
	}
	return m.IndexLead(ctx, item)
}

// Search runs a free-text query with attribute filters. An unreachable
// index is reported as an unavailability failure; the caller must never
// silently fall back to the relational path, because relevance ranking
// cannot be reproduced there.
func (m *Mirror) Search(ctx context.Context, q Query) (Result, error) {
	options := &redis.FTSearchOptions{
		WithScores:  true,
		LimitOffset: q.Offset,
		Limit:       q.Limit,
		Return: []redis.FTSearchReturn{
			{FieldName: "lead_score"},
			{FieldName: "hot"},
		},
	}

	raw, err := m.rdb.FTSearchWithArgs(ctx, m.indexName, buildQueryString(q), options).Result()
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindUnavailable, "search index unavailable", err)
	}

	docs := make([]rankedDoc, 0, len(raw.Docs))
	for _, doc := range raw.Docs {
		id, err := uuid.Parse(strings.TrimPrefix(doc.ID, docKeyPrefix))
		if err != nil {
			m.logger.ReactorSkip("searchindex", doc.ID, err)
			continue
		}
		ranked := rankedDoc{ID: id}
		if doc.Score != nil {
			ranked.Relevance = *doc.Score
		}
		if v, err := strconv.Atoi(doc.Fields["lead_score"]); err == nil {
			ranked.LeadScore = v
		}
		ranked.Hot = doc.Fields["hot"] == "1"
		docs = append(docs, ranked)
	}
	orderDocs(docs)

	ids := make([]uuid.UUID, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	return Result{IDs: ids, Total: int(raw.Total)}, nil
}

// Reindex rebuilds the mirror from scratch: drop every document, recreate
// the index, then re-add all eligible leads in batches. The operation is
// idempotent and safe to retry; it is the recovery path after mirror
// drift. Returns the number of leads indexed.
func (m *Mirror) Reindex(ctx context.Context) (int, error) {
	err := m.rdb.FTDropIndexWithArgs(ctx, m.indexName, &redis.FTDropIndexOptions{DeleteDocs: true}).Err()
	if err != nil && !isUnknownIndex(err) {
		return 0, err
	}
	if err := m.createIndex(ctx); err != nil {
		return 0, err
	}

	total := 0
	afterID := uuid.Nil
	for {
		batch, err := m.source.ListForIndexing(ctx, afterID, m.batchSize)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}
		afterID = batch[len(batch)-1].Lead.ID

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(8)
		for _, item := range batch {
			if !item.Lead.IndexEligible() {
				continue
			}
			group.Go(func() error {
				return m.rdb.HSet(groupCtx, docKey(item.Lead.ID), docFields(item, m.now())).Err()
			})
			total++
		}
		if err := group.Wait(); err != nil {
			return total, err
		}
	}
}
