package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/textrun/internal/export"
	"github.com/timmy/textrun/internal/logger"
	"github.com/timmy/textrun/internal/prompts"
	"github.com/timmy/textrun/internal/repository"
	"github.com/timmy/textrun/internal/runid"
)

// ErrIndexDisabled is returned when search or indexing is requested without a vector index.
var ErrIndexDisabled = errors.New("run index is not configured")

// RunIndex is the vector store behind run search.
type RunIndex interface {
	UpsertBatch(ctx context.Context, batch []repository.RunPoint) error
	Search(ctx context.Context, vector []float32, topK int, sourceID string, scoreThreshold float32) ([]repository.SearchResult, error)
	DeleteBySource(ctx context.Context, sourceID string) error
}

// IndexConfig holds configuration for the index service
type IndexConfig struct {
	BatchSize      int
	ScoreThreshold float32
}

// IndexService embeds the exported runs of a job and serves semantic search over them.
type IndexService struct {
	store          *repository.JobStore
	index          RunIndex
	embedding      EmbeddingProvider
	batchSize      int
	scoreThreshold float32
}

// NewIndexService creates a new index service
func NewIndexService(store *repository.JobStore, index RunIndex, embedding EmbeddingProvider, cfg *IndexConfig) *IndexService {
	s := &IndexService{
		store:     store,
		index:     index,
		embedding: embedding,
		batchSize: 32,
	}
	if cfg != nil {
		if cfg.BatchSize > 0 {
			s.batchSize = cfg.BatchSize
		}
		s.scoreThreshold = cfg.ScoreThreshold
	}
	return s
}

// Enabled reports whether both the vector store and the embedding provider are available.
func (s *IndexService) Enabled() bool {
	return s != nil && s.index != nil && s.embedding != nil
}

// IndexStats summarises one IndexRuns call.
type IndexStats struct {
	SourceID string `json:"source_id"`
	Indexed  int    `json:"indexed"`
	Model    string `json:"model"`
}

// IndexRuns replaces the indexed runs of a source with its current export view:
// deleted runs are left out and edited text is embedded instead of the detected text.
func (s *IndexService) IndexRuns(ctx context.Context, sourceID string) (*IndexStats, error) {
	if !s.Enabled() {
		return nil, ErrIndexDisabled
	}
	ctx = logger.SetSourceID(ctx, sourceID)
	startTime := time.Now()

	job, runs, err := s.store.GetJob(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	records := export.Build(runs, export.Options{Episode: job.Episode})

	if err := s.index.DeleteBySource(ctx, sourceID); err != nil {
		return nil, fmt.Errorf("clear index for %s: %w", sourceID, err)
	}

	for start := 0; start < len(records); start += s.batchSize {
		end := start + s.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		texts := make([]string, len(batch))
		for i, rec := range batch {
			texts[i] = prompts.RunEmbeddingPrefix + rec.Text
		}
		vectors, err := s.embedding.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed runs %d-%d: %w", start, end, err)
		}

		points := make([]repository.RunPoint, len(batch))
		for i, rec := range batch {
			points[i] = repository.RunPoint{
				PointID: runid.PointID(rec.ID),
				Vector:  vectors[i],
				Payload: &repository.RunPayload{
					RunID:      rec.ID,
					SourceID:   sourceID,
					FrameLabel: rec.StartFrameLabel(),
					FrameIndex: rec.StartFrame,
					Text:       rec.Text,
					Timestamp:  rec.StartSeconds,
					Episode:    rec.Episode,
				},
			}
		}
		if err := s.index.UpsertBatch(ctx, points); err != nil {
			return nil, fmt.Errorf("upsert runs %d-%d: %w", start, end, err)
		}
	}

	logger.With(logger.Fields{
		logger.FieldCount: len(records),
	}).Since(startTime).Info(ctx, "Indexed runs for %s", sourceID)

	return &IndexStats{SourceID: sourceID, Indexed: len(records), Model: s.embedding.GetModel()}, nil
}

// SearchRequest is a semantic search over indexed run text.
type SearchRequest struct {
	Query    string `json:"query" form:"q"`
	SourceID string `json:"source_id,omitempty" form:"source_id"`
	TopK     int    `json:"top_k,omitempty" form:"top_k"`
}

// SearchHit is one matching run.
type SearchHit struct {
	RunID      string  `json:"run_id"`
	SourceID   string  `json:"source_id"`
	FrameLabel string  `json:"frame_label"`
	FrameIndex int64   `json:"frame_index"`
	Text       string  `json:"text"`
	Timestamp  float64 `json:"timestamp"`
	Timecode   string  `json:"timecode"`
	Episode    int     `json:"episode"`
	Score      float32 `json:"score"`
}

// SearchResponse holds the hits for one query.
type SearchResponse struct {
	Query   string      `json:"query"`
	Results []SearchHit `json:"results"`
	Total   int         `json:"total"`
}

// Search embeds the query and returns the closest runs.
func (s *IndexService) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	if !s.Enabled() {
		return nil, ErrIndexDisabled
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 20
	}
	if topK > 100 {
		topK = 100
	}

	ctx = logger.SetSearchID(ctx, uuid.New().String())
	startTime := time.Now()

	vector, err := s.embedding.EmbedQuery(ctx, prompts.QueryEmbeddingPrefix+query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := s.index.Search(ctx, vector, topK, req.SourceID, s.scoreThreshold)
	if err != nil {
		return nil, fmt.Errorf("search runs: %w", err)
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		if r.Payload == nil {
			continue
		}
		hits = append(hits, SearchHit{
			RunID:      r.Payload.RunID,
			SourceID:   r.Payload.SourceID,
			FrameLabel: r.Payload.FrameLabel,
			FrameIndex: r.Payload.FrameIndex,
			Text:       r.Payload.Text,
			Timestamp:  r.Payload.Timestamp,
			Timecode:   export.FormatTimecode(r.Payload.Timestamp),
			Episode:    r.Payload.Episode,
			Score:      r.Score,
		})
	}

	logger.With(logger.Fields{
		logger.FieldCount: len(hits),
	}).Since(startTime).Info(ctx, "Run search completed: query=%q", query)

	return &SearchResponse{Query: query, Results: hits, Total: len(hits)}, nil
}
