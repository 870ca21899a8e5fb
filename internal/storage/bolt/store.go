// Package bolt provides a bbolt-backed persistent receipt store for
// single-node deployments.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/finbase/receipt-insights/internal/receipt"
	"github.com/finbase/receipt-insights/internal/storage"
)

var (
	receiptsBucket = []byte("receipts")     // fingerprint -> receipt JSON
	idIndexBucket  = []byte("receipts_ids") // receipt id -> fingerprint
)

// Store persists receipts in a bbolt database. bbolt serializes update
// transactions, which gives InsertIfAbsent its atomicity.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database at path and ensures the buckets
// exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open receipt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(receiptsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(idIndexBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create receipt buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// InsertIfAbsent implements storage.ReceiptStore.
func (s *Store) InsertIfAbsent(ctx context.Context, r *receipt.Receipt) (storage.InsertOutcome, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("insert receipt: %w", err)
	}
	if r.Fingerprint == "" {
		return "", fmt.Errorf("insert receipt: fingerprint is required")
	}

	outcome := storage.Inserted
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(receiptsBucket)
		if b.Get([]byte(r.Fingerprint)) != nil {
			outcome = storage.Duplicate
			return nil
		}

		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal receipt: %w", err)
		}
		if err := b.Put([]byte(r.Fingerprint), data); err != nil {
			return err
		}
		return tx.Bucket(idIndexBucket).Put([]byte(r.ID), []byte(r.Fingerprint))
	})
	if err != nil {
		return "", fmt.Errorf("insert receipt %s: %w", r.Fingerprint, err)
	}
	return outcome, nil
}

// QueryWindow implements storage.ReceiptStore.
func (s *Store) QueryWindow(ctx context.Context, start, end time.Time) ([]receipt.Receipt, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var out []receipt.Receipt
	for _, r := range all {
		if !r.Date.Before(start) && r.Date.Before(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

// List implements storage.ReceiptStore.
func (s *Store) List(ctx context.Context) ([]receipt.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}

	var out []receipt.Receipt
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(receiptsBucket).ForEach(func(_, v []byte) error {
			var r receipt.Receipt
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshal receipt: %w", err)
			}
			out = append(out, r)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	return out, nil
}

// UpdateStatus implements storage.ReceiptStore.
func (s *Store) UpdateStatus(ctx context.Context, receiptID string, status receipt.ReviewStatus) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("update receipt status: %w", err)
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		fp := tx.Bucket(idIndexBucket).Get([]byte(receiptID))
		if fp == nil {
			return storage.ErrNotFound
		}

		b := tx.Bucket(receiptsBucket)
		data := b.Get(fp)
		if data == nil {
			return storage.ErrNotFound
		}

		var r receipt.Receipt
		if err := json.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("unmarshal receipt: %w", err)
		}
		r.Status = status

		updated, err := json.Marshal(&r)
		if err != nil {
			return fmt.Errorf("marshal receipt: %w", err)
		}
		return b.Put(fp, updated)
	})
	if err != nil {
		return fmt.Errorf("update receipt status %s: %w", receiptID, err)
	}
	return nil
}

// Close implements storage.ReceiptStore.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ storage.ReceiptStore = (*Store)(nil)
