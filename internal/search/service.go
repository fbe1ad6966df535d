package search

import (
	"context"
	"errors"
	"log"
)

// Backend is a searchable index that can also be written to.
type Backend interface {
	Searcher
	Indexer
}

// RecordLoader reads every indexable task from the primary store.
type RecordLoader interface {
	LoadTaskRecords(ctx context.Context) ([]TaskRecord, error)
}

// ErrIndexUnavailable is returned by Reindex when no healthy index exists.
var ErrIndexUnavailable = errors.New("search index unavailable")

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	index    Backend
	fallback Searcher
	loader   RecordLoader
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	s := &Service{}
	if meili != nil {
		s.index = meili
	}
	if pgfts != nil {
		s.fallback = pgfts
		s.loader = pgfts
	}
	return s
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// Search tries the index if healthy, otherwise falls back to PG FTS. Errors
// are logged and produce an empty response.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.indexReady() {
		results, total, err := s.index.Search(ctx, q)
		if err == nil {
			return Response{Results: restrict(nonNil(results), q), Total: total, Query: q.Text, Backend: "meilisearch"}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Backend: "postgres"}
	}
	return Response{Results: restrict(nonNil(results), q), Total: total, Query: q.Text, Backend: "postgres"}
}

// IndexTask indexes a task (fire-and-forget).
func (s *Service) IndexTask(record TaskRecord) {
	if !s.indexReady() {
		return
	}
	go func() {
		if err := s.index.IndexTasks([]TaskRecord{record}); err != nil {
			log.Printf("search: index task %s: %v", record.ID, err)
		}
	}()
}

// Reindex reads every task from Postgres and pushes it to the index
// synchronously, returning the number of records sent.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	if !s.indexReady() || s.loader == nil {
		return 0, ErrIndexUnavailable
	}
	records, err := s.loader.LoadTaskRecords(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.index.IndexTasks(records); err != nil {
		return 0, err
	}
	return len(records), nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

// restrict drops hits a restricted viewer is not assigned to, in case an
// index was queried without the assignee filter.
func restrict(results []Result, q Query) []Result {
	if !q.Restricted {
		return results
	}
	filtered := make([]Result, 0, len(results))
	for _, result := range results {
		for _, id := range result.AssignedTo {
			if id == q.ViewerID {
				filtered = append(filtered, result)
				break
			}
		}
	}
	return filtered
}
