package bigquery

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/finbase/receipt-insights/internal/receipt"
)

// toRow maps a domain receipt onto the warehouse schema.
func toRow(r *receipt.Receipt) (*ReceiptRow, error) {
	items, err := json.Marshal(r.Items)
	if err != nil {
		return nil, fmt.Errorf("marshal items: %w", err)
	}

	row := &ReceiptRow{
		ReceiptID:   r.ID,
		Merchant:    r.Merchant,
		Date:        civil.DateOf(r.Date),
		Subtotal:    toFloat(r.Subtotal),
		Tax:         toFloat(r.Tax),
		Total:       toFloat(r.Total),
		Currency:    r.Currency,
		SourceRef:   r.SourceRef,
		Fingerprint: r.Fingerprint,
		Status:      string(r.Status),
		ItemsJSON:   string(items),
		CreatedTS:   time.Now().UTC(),
	}

	if len(r.Issues) > 0 {
		issues, err := json.Marshal(r.Issues)
		if err != nil {
			return nil, fmt.Errorf("marshal issues: %w", err)
		}
		row.IssuesJSON = bigquery.NullJSON{JSONVal: string(issues), Valid: true}
	}
	return row, nil
}

// fromRow maps a warehouse row back into the domain type. Float amounts
// are re-quantized to two decimal places.
func fromRow(row *ReceiptRow) (*receipt.Receipt, error) {
	var items []receipt.LineItem
	if row.ItemsJSON != "" {
		if err := json.Unmarshal([]byte(row.ItemsJSON), &items); err != nil {
			return nil, fmt.Errorf("unmarshal items for %s: %w", row.ReceiptID, err)
		}
	}

	var issues []receipt.Issue
	if row.IssuesJSON.Valid && row.IssuesJSON.JSONVal != "" {
		if err := json.Unmarshal([]byte(row.IssuesJSON.JSONVal), &issues); err != nil {
			return nil, fmt.Errorf("unmarshal issues for %s: %w", row.ReceiptID, err)
		}
	}

	return &receipt.Receipt{
		ID:          row.ReceiptID,
		Merchant:    row.Merchant,
		Date:        row.Date.In(time.UTC),
		Items:       items,
		Subtotal:    fromFloat(row.Subtotal),
		Tax:         fromFloat(row.Tax),
		Total:       fromFloat(row.Total),
		Currency:    row.Currency,
		SourceRef:   row.SourceRef,
		Fingerprint: row.Fingerprint,
		Status:      receipt.ReviewStatus(row.Status),
		Issues:      issues,
	}, nil
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func fromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}
