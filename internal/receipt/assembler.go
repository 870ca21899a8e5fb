package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finbase/receipt-insights/internal/lineitem"
)

// ErrMissingRequiredField is returned when both merchant name and
// transaction date are absent. A receipt without any identity cannot be
// stored.
var ErrMissingRequiredField = errors.New("receipt has neither merchant nor date")

// minTolerance is the floor of the rounding tolerance.
var minTolerance = decimal.NewFromFloat(0.01)

// tolerancePct is the relative component of the tolerance, 0.5% of the
// amount being checked.
var tolerancePct = decimal.NewFromFloat(0.005)

// Tolerance returns the rounding tolerance for an amount:
// max(0.01, 0.5% of the amount).
func Tolerance(amount decimal.Decimal) decimal.Decimal {
	rel := amount.Abs().Mul(tolerancePct)
	if rel.LessThan(minTolerance) {
		return minTolerance
	}
	return rel
}

// Assembler combines a parsed header with line-item candidates into a
// validated Receipt. The zero value is ready to use.
type Assembler struct{}

// Assemble validates the subtotal/tax/total invariant and attaches a
// deterministic content fingerprint. Invariant failures downgrade the
// receipt to StatusNeedsReview rather than rejecting it; the only hard
// failure is ErrMissingRequiredField.
func (Assembler) Assemble(hdr lineitem.Header, cands []lineitem.Candidate) (*Receipt, error) {
	merchant := strings.TrimSpace(hdr.Merchant)
	if merchant == "" && !hdr.HasDate {
		return nil, ErrMissingRequiredField
	}

	r := &Receipt{
		ID:       uuid.NewString(),
		Merchant: merchant,
		Date:     hdr.Date,
		Currency: hdr.Currency,
		Tax:      hdr.Tax,
		Status:   StatusOK,
	}

	itemSum := decimal.Zero
	for i, c := range cands {
		item := LineItem{
			Description: c.Description,
			Quantity:    c.Quantity,
			UnitPrice:   c.UnitPrice,
			LineTotal:   c.LineTotal,
		}

		if c.Ambiguous {
			r.Issues = append(r.Issues, Issue{
				Code:   IssueParseAmbiguous,
				Item:   i,
				Detail: c.Reason,
			})
		}

		expected := item.UnitPrice.Mul(item.Quantity)
		if expected.Sub(item.LineTotal).Abs().GreaterThan(Tolerance(item.LineTotal)) {
			item.Unreconciled = true
			r.Issues = append(r.Issues, Issue{
				Code: IssueItemUnreconciled,
				Item: i,
				Detail: fmt.Sprintf("unit price %s x quantity %s = %s, line total is %s",
					item.UnitPrice, item.Quantity, expected, item.LineTotal),
			})
		}

		itemSum = itemSum.Add(item.LineTotal)
		r.Items = append(r.Items, item)
	}

	if hdr.HasSubtotal {
		r.Subtotal = hdr.Subtotal
	} else {
		r.Subtotal = itemSum
	}

	if hdr.HasTotal {
		r.Total = hdr.Total
	} else {
		r.Total = r.Subtotal.Add(r.Tax)
	}

	// sum(line_totals) + tax must equal total within tolerance.
	expected := itemSum.Add(r.Tax)
	if diff := expected.Sub(r.Total).Abs(); diff.GreaterThan(Tolerance(r.Total)) {
		detail := fmt.Sprintf("line totals %s + tax %s = %s, receipt total is %s (off by %s)",
			itemSum, r.Tax, expected, r.Total, diff)
		if unrec := unreconciledIndexes(r.Items); len(unrec) > 0 {
			detail += fmt.Sprintf("; unreconciled items: %v", unrec)
		}
		r.Issues = append(r.Issues, Issue{Code: IssueTotalMismatch, Item: -1, Detail: detail})
	}

	if len(r.Issues) > 0 {
		r.Status = StatusNeedsReview
	}

	r.Fingerprint = Fingerprint(r.Merchant, r.Date, r.Total)
	return r, nil
}

func unreconciledIndexes(items []LineItem) []int {
	var idx []int
	for i, it := range items {
		if it.Unreconciled {
			idx = append(idx, i)
		}
	}
	return idx
}

// Fingerprint computes the deterministic content hash used for duplicate
// detection: sha256 over normalized merchant, date and total.
func Fingerprint(merchant string, date time.Time, total decimal.Decimal) string {
	normalized := strings.ToUpper(strings.Join(strings.Fields(merchant), " "))
	payload := normalized + "|" + date.Format("2006-01-02") + "|" + total.StringFixed(2)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
