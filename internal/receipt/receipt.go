// Package receipt defines the validated receipt record and the assembler
// that builds one from parsed line-item candidates.
package receipt

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReviewStatus is the soft-validation state of an assembled receipt.
type ReviewStatus string

const (
	// StatusOK means every invariant held within tolerance.
	StatusOK ReviewStatus = "ok"
	// StatusNeedsReview means the receipt was assembled but carries
	// issues for manual review. It is stored, never rejected.
	StatusNeedsReview ReviewStatus = "needs_review"
)

// IssueCode identifies a class of review issue.
type IssueCode string

const (
	IssueParseAmbiguous   IssueCode = "parse_ambiguous"
	IssueItemUnreconciled IssueCode = "item_unreconciled"
	IssueTotalMismatch    IssueCode = "total_mismatch"
	IssueMissingField     IssueCode = "missing_required_field"
)

// Issue is non-fatal review metadata attached during assembly.
type Issue struct {
	Code IssueCode `json:"code"`
	// Item is the index of the offending line item, or -1 for
	// receipt-level issues.
	Item   int    `json:"item"`
	Detail string `json:"detail"`
}

// LineItem is one purchased item or service within a receipt.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`

	// Category is a weak reference to a classification label; empty means
	// unclassified.
	Category string `json:"category,omitempty"`

	// Unreconciled marks items whose unit_price*quantity deviates from
	// line_total beyond tolerance.
	Unreconciled bool `json:"unreconciled,omitempty"`
}

// Receipt is the validated structured record of a single purchase
// transaction. Receipts are immutable after assembly except for review
// status updates.
type Receipt struct {
	ID       string    `json:"id"`
	Merchant string    `json:"merchant"`
	Date     time.Time `json:"date"`

	Items []LineItem `json:"items"`

	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`

	// SourceRef points at the originating upload (local path or GCS URI).
	SourceRef string `json:"source_ref,omitempty"`

	// Fingerprint is the deterministic content hash used for duplicate
	// detection.
	Fingerprint string `json:"fingerprint"`

	Status ReviewStatus `json:"status"`
	Issues []Issue      `json:"issues,omitempty"`
}

// Category is a classification label owned by a classification policy.
type Category struct {
	Name string `json:"name"`
}
