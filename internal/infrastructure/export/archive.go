package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	appledger "github.com/labelops/backend/internal/application/ledger"
)

// ArchiveStore is the object storage the workbooks are written to
type ArchiveStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	DownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error)
}

// RunQueries is the read side needed to build a movement workbook
type RunQueries interface {
	RunLedger(ctx context.Context, id uuid.UUID) (*appledger.RunLedgerResponse, error)
}

// ArchivedWorkbook describes a stored workbook
type ArchivedWorkbook struct {
	Key       string    `json:"key"`
	Size      int       `json:"size"`
	URL       string    `json:"url,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// ArchiveKey is the object key of a run's workbook for the given day
func ArchiveKey(day time.Time, runID uuid.UUID) string {
	return path.Join(day.UTC().Format("2006-01-02"), fmt.Sprintf("production-run-%s-movements.xlsx", runID))
}

// Archiver snapshots production run ledgers into an ArchiveStore
type Archiver struct {
	queries RunQueries
	store   ArchiveStore
}

// NewArchiver creates a new Archiver
func NewArchiver(queries RunQueries, store ArchiveStore) *Archiver {
	return &Archiver{queries: queries, store: store}
}

// Build loads a run's ledger and renders it
func (a *Archiver) Build(ctx context.Context, runID uuid.UUID) ([]byte, error) {
	l, err := a.queries.RunLedger(ctx, runID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	wb := NewMovementWorkbook(l)
	if _, err := wb.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Archive writes the run's workbook under ArchiveKey(day, runID), replacing
// an earlier snapshot of the same day
func (a *Archiver) Archive(ctx context.Context, runID uuid.UUID, day time.Time) (*ArchivedWorkbook, error) {
	data, err := a.Build(ctx, runID)
	if err != nil {
		return nil, err
	}
	key := ArchiveKey(day, runID)
	if err := a.store.Put(ctx, key, data, ContentTypeXLSX); err != nil {
		return nil, fmt.Errorf("store workbook %s: %w", key, err)
	}
	return &ArchivedWorkbook{Key: key, Size: len(data)}, nil
}

// Publish archives the workbook and returns a time-limited download link for it
func (a *Archiver) Publish(ctx context.Context, runID uuid.UUID, day time.Time, expiresIn time.Duration) (*ArchivedWorkbook, error) {
	archived, err := a.Archive(ctx, runID, day)
	if err != nil {
		return nil, err
	}
	archived.URL, archived.ExpiresAt, err = a.store.DownloadURL(ctx, archived.Key, expiresIn)
	if err != nil {
		return nil, fmt.Errorf("sign download url: %w", err)
	}
	return archived, nil
}
