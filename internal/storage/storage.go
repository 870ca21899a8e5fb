// Package storage defines the receipt persistence contract consumed by
// the ingestion pipeline and the insight aggregator.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/finbase/receipt-insights/internal/receipt"
)

// ErrTimeout is returned when the caller-supplied deadline expired during
// a storage operation. The pipeline stays at its last successful state and
// the same fingerprint can be retried.
var ErrTimeout = errors.New("storage operation timed out")

// ErrNotFound is returned when a receipt lookup matches nothing.
var ErrNotFound = errors.New("receipt not found")

// InsertOutcome is the result of an insert-if-absent attempt.
type InsertOutcome string

const (
	// Inserted means the receipt was stored under its fingerprint.
	Inserted InsertOutcome = "inserted"
	// Duplicate means a receipt with the same fingerprint already exists.
	// This is a defined outcome, not an error.
	Duplicate InsertOutcome = "duplicate"
)

// ReceiptStore persists assembled receipts. Implementations must provide
// insert-if-absent semantics on the fingerprint so that two concurrent
// ingestions of the same receipt cannot both reach Stored.
type ReceiptStore interface {
	// InsertIfAbsent stores the receipt keyed by its fingerprint, or
	// reports Duplicate when that fingerprint is already present.
	InsertIfAbsent(ctx context.Context, r *receipt.Receipt) (InsertOutcome, error)

	// QueryWindow returns receipts whose date falls in [start, end).
	QueryWindow(ctx context.Context, start, end time.Time) ([]receipt.Receipt, error)

	// List returns all stored receipts. Aggregation is a read-only scan
	// and need not observe a consistent snapshot mid-ingestion.
	List(ctx context.Context) ([]receipt.Receipt, error)

	// UpdateStatus updates a receipt's review status, the only mutation
	// permitted after assembly.
	UpdateStatus(ctx context.Context, receiptID string, status receipt.ReviewStatus) error

	// Close releases the store's resources.
	Close() error
}

// WithTimeout wraps a store so every operation carries a deadline. A
// deadline expiry surfaces as ErrTimeout through the wrapped store's
// context checks.
func WithTimeout(s ReceiptStore, d time.Duration) ReceiptStore {
	if d <= 0 {
		return s
	}
	return &timeoutStore{inner: s, timeout: d}
}

type timeoutStore struct {
	inner   ReceiptStore
	timeout time.Duration
}

func (t *timeoutStore) InsertIfAbsent(ctx context.Context, r *receipt.Receipt) (InsertOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.InsertIfAbsent(ctx, r)
}

func (t *timeoutStore) QueryWindow(ctx context.Context, start, end time.Time) ([]receipt.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.QueryWindow(ctx, start, end)
}

func (t *timeoutStore) List(ctx context.Context) ([]receipt.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.List(ctx)
}

func (t *timeoutStore) UpdateStatus(ctx context.Context, receiptID string, status receipt.ReviewStatus) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.UpdateStatus(ctx, receiptID, status)
}

func (t *timeoutStore) Close() error { return t.inner.Close() }
