// Package inmemory provides a mutex-guarded in-memory receipt store.
// It is suitable for single-instance deployments and testing; data is
// lost on restart.
package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/finbase/receipt-insights/internal/receipt"
	"github.com/finbase/receipt-insights/internal/storage"
)

// Store keeps receipts in memory keyed by fingerprint. Safe for
// concurrent use.
type Store struct {
	mu            sync.RWMutex
	byFingerprint map[string]*receipt.Receipt
	byID          map[string]*receipt.Receipt
}

// NewStore creates an empty in-memory receipt store.
func NewStore() *Store {
	return &Store{
		byFingerprint: make(map[string]*receipt.Receipt),
		byID:          make(map[string]*receipt.Receipt),
	}
}

// InsertIfAbsent implements storage.ReceiptStore. The check and the
// insert happen under one lock, giving atomic insert-if-absent semantics.
func (s *Store) InsertIfAbsent(ctx context.Context, r *receipt.Receipt) (storage.InsertOutcome, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("insert receipt: %w", err)
	}
	if r.Fingerprint == "" {
		return "", fmt.Errorf("insert receipt: fingerprint is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byFingerprint[r.Fingerprint]; exists {
		return storage.Duplicate, nil
	}

	cp := *r
	s.byFingerprint[r.Fingerprint] = &cp
	s.byID[r.ID] = &cp
	return storage.Inserted, nil
}

// QueryWindow implements storage.ReceiptStore.
func (s *Store) QueryWindow(ctx context.Context, start, end time.Time) ([]receipt.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []receipt.Receipt
	for _, r := range s.byFingerprint {
		if !r.Date.Before(start) && r.Date.Before(end) {
			out = append(out, *r)
		}
	}
	return out, nil
}

// List implements storage.ReceiptStore.
func (s *Store) List(ctx context.Context) ([]receipt.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]receipt.Receipt, 0, len(s.byFingerprint))
	for _, r := range s.byFingerprint {
		out = append(out, *r)
	}
	return out, nil
}

// UpdateStatus implements storage.ReceiptStore.
func (s *Store) UpdateStatus(ctx context.Context, receiptID string, status receipt.ReviewStatus) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("update receipt status: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[receiptID]
	if !ok {
		return fmt.Errorf("update receipt status %s: %w", receiptID, storage.ErrNotFound)
	}
	r.Status = status
	return nil
}

// Close implements storage.ReceiptStore.
func (s *Store) Close() error { return nil }

var _ storage.ReceiptStore = (*Store)(nil)
