package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/timmy/textrun/internal/logger"
	"github.com/timmy/textrun/internal/storage"
)

// Publisher uploads rendered export files to object storage.
type Publisher struct {
	store  storage.ObjectStorage
	prefix string
}

// Published describes an uploaded export file.
type Published struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Size int    `json:"size"`
	Rows int    `json:"rows"`
}

// NewPublisher creates a publisher writing under prefix.
func NewPublisher(store storage.ObjectStorage, prefix string) *Publisher {
	if prefix == "" {
		prefix = "exports"
	}
	return &Publisher{store: store, prefix: prefix}
}

// ObjectKey returns the storage key for a source's export in the given format.
func (p *Publisher) ObjectKey(sourceID, format string) string {
	return path.Join(p.prefix, sourceID, "runs."+format)
}

// PublishCSV renders records as CSV and uploads them, replacing the previous export.
func (p *Publisher) PublishCSV(ctx context.Context, sourceID string, records []Record) (*Published, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, records); err != nil {
		return nil, err
	}
	return p.upload(ctx, sourceID, "csv", "text/csv; charset=utf-8", buf.Bytes(), len(records))
}

// PublishSRT renders records as SubRip and uploads them.
func (p *Publisher) PublishSRT(ctx context.Context, sourceID string, records []Record) (*Published, error) {
	var buf bytes.Buffer
	if err := WriteSRT(&buf, records); err != nil {
		return nil, err
	}
	return p.upload(ctx, sourceID, "srt", "application/x-subrip; charset=utf-8", buf.Bytes(), len(records))
}

func (p *Publisher) upload(ctx context.Context, sourceID, format, contentType string, data []byte, rows int) (*Published, error) {
	key := p.ObjectKey(sourceID, format)
	start := time.Now()
	if err := p.store.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return nil, fmt.Errorf("publish %s export for %s: %w", format, sourceID, err)
	}

	logger.With(logger.Fields{
		logger.FieldSourceID:   sourceID,
		logger.FieldSize:       len(data),
		logger.FieldCount:      rows,
	}).Since(start).Info(ctx, "Export published: %s", key)

	return &Published{Key: key, URL: p.store.GetURL(key), Size: len(data), Rows: rows}, nil
}
