// Package bigquery provides a BigQuery-backed receipt store for
// warehouse deployments where insights are also queried with SQL.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/finbase/receipt-insights/internal/receipt"
	"github.com/finbase/receipt-insights/internal/storage"
)

const (
	receiptsTable = "receipts"
	dateFormat    = "2006-01-02"
)

// ReceiptRow is the BigQuery schema for one stored receipt. Line items
// travel as a JSON payload; amounts are stored as FLOAT64 and converted
// back to decimals at the domain boundary.
type ReceiptRow struct {
	ReceiptID   string             `bigquery:"receipt_id"`
	Merchant    string             `bigquery:"merchant"`
	Date        civil.Date         `bigquery:"receipt_date"`
	Subtotal    float64            `bigquery:"subtotal"`
	Tax         float64            `bigquery:"tax"`
	Total       float64            `bigquery:"total"`
	Currency    string             `bigquery:"currency"`
	SourceRef   string             `bigquery:"source_ref"`
	Fingerprint string             `bigquery:"fingerprint"`
	Status      string             `bigquery:"status"`
	ItemsJSON   string             `bigquery:"items_json"`
	IssuesJSON  bigquery.NullJSON  `bigquery:"issues"`
	CreatedTS   time.Time          `bigquery:"created_ts"`
}

// Store implements storage.ReceiptStore on a BigQuery dataset.
//
// BigQuery offers no atomic insert-if-absent primitive, so the duplicate
// check and the insert are serialized behind a process-local mutex. This
// matches the single-writer deployment model: one ingestion service owns
// the dataset.
type Store struct {
	client  *bigquery.Client
	project string
	dataset string

	insertMu sync.Mutex
}

// NewStore creates a store with its own BigQuery client.
func NewStore(ctx context.Context, project, dataset string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating client: %w", err)
	}
	return &Store{client: client, project: project, dataset: dataset}, nil
}

// InsertIfAbsent implements storage.ReceiptStore.
func (s *Store) InsertIfAbsent(ctx context.Context, r *receipt.Receipt) (storage.InsertOutcome, error) {
	if r.Fingerprint == "" {
		return "", fmt.Errorf("InsertIfAbsent: fingerprint is required")
	}

	s.insertMu.Lock()
	defer s.insertMu.Unlock()

	existing, err := s.findByFingerprint(ctx, r.Fingerprint)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return storage.Duplicate, nil
	}

	row, err := toRow(r)
	if err != nil {
		return "", fmt.Errorf("InsertIfAbsent: %w", err)
	}

	inserter := s.client.DatasetInProject(s.project, s.dataset).Table(receiptsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return "", wrapTimeout("InsertIfAbsent: inserting row", err)
	}
	return storage.Inserted, nil
}

// findByFingerprint returns nil when no receipt carries the fingerprint.
func (s *Store) findByFingerprint(ctx context.Context, fingerprint string) (*ReceiptRow, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT receipt_id, merchant, receipt_date, subtotal, tax, total,
		       currency, source_ref, fingerprint, status, items_json, issues, created_ts
		FROM `+"`%s.%s.%s`"+`
		WHERE fingerprint = @fingerprint
		LIMIT 1
	`, s.project, s.dataset, receiptsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "fingerprint", Value: fingerprint},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, wrapTimeout("findByFingerprint: reading query", err)
	}

	var row ReceiptRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("findByFingerprint: reading row: %w", err)
	}
	return &row, nil
}

// QueryWindow implements storage.ReceiptStore.
func (s *Store) QueryWindow(ctx context.Context, start, end time.Time) ([]receipt.Receipt, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT receipt_id, merchant, receipt_date, subtotal, tax, total,
		       currency, source_ref, fingerprint, status, items_json, issues, created_ts
		FROM `+"`%s.%s.%s`"+`
		WHERE receipt_date >= @start_date AND receipt_date < @end_date
		ORDER BY receipt_date, created_ts
	`, s.project, s.dataset, receiptsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: start.Format(dateFormat)},
		{Name: "end_date", Value: end.Format(dateFormat)},
	}

	return s.readReceipts(ctx, q)
}

// List implements storage.ReceiptStore.
func (s *Store) List(ctx context.Context) ([]receipt.Receipt, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT receipt_id, merchant, receipt_date, subtotal, tax, total,
		       currency, source_ref, fingerprint, status, items_json, issues, created_ts
		FROM `+"`%s.%s.%s`"+`
		ORDER BY receipt_date, created_ts
	`, s.project, s.dataset, receiptsTable))

	return s.readReceipts(ctx, q)
}

func (s *Store) readReceipts(ctx context.Context, q *bigquery.Query) ([]receipt.Receipt, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, wrapTimeout("readReceipts: reading query", err)
	}

	var out []receipt.Receipt
	for {
		var row ReceiptRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("readReceipts: iterating: %w", err)
		}

		r, err := fromRow(&row)
		if err != nil {
			return nil, fmt.Errorf("readReceipts: %w", err)
		}
		out = append(out, *r)
	}
	return out, nil
}

// UpdateStatus implements storage.ReceiptStore.
func (s *Store) UpdateStatus(ctx context.Context, receiptID string, status receipt.ReviewStatus) error {
	q := s.client.Query(fmt.Sprintf(`
		UPDATE `+"`%s.%s.%s`"+`
		SET status = @status
		WHERE receipt_id = @receipt_id
	`, s.project, s.dataset, receiptsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(status)},
		{Name: "receipt_id", Value: receiptID},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return wrapTimeout("UpdateStatus: running update", err)
	}
	st, err := job.Wait(ctx)
	if err != nil {
		return wrapTimeout("UpdateStatus: waiting for job", err)
	}
	if err := st.Err(); err != nil {
		return fmt.Errorf("UpdateStatus: job error: %w", err)
	}
	return nil
}

// Close implements storage.ReceiptStore.
func (s *Store) Close() error {
	return s.client.Close()
}

func wrapTimeout(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, storage.ErrTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ storage.ReceiptStore = (*Store)(nil)
