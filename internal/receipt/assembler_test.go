package receipt

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finbase/receipt-insights/internal/lineitem"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTolerance(t *testing.T) {
	tests := []struct {
		amount string
		want   string
	}{
		{"0.50", "0.01"},
		{"2.00", "0.01"},
		{"-2.00", "0.01"},
		{"10.00", "0.05"},
		{"100.00", "0.50"},
	}

	for _, tt := range tests {
		got := Tolerance(dec(tt.amount))
		if !got.Equal(dec(tt.want)) {
			t.Errorf("Tolerance(%s) = %s, want %s", tt.amount, got, tt.want)
		}
	}
}

func TestAssemble_CleanReceipt(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	hdr := lineitem.Header{
		Merchant: "Cafe A",
		Date:     day, HasDate: true,
		Tax: dec("0.30"), HasTax: true,
		Total: dec("3.80"), HasTotal: true,
		Currency: "USD",
	}
	cands := []lineitem.Candidate{
		{Description: "COFFEE", Quantity: dec("1"), UnitPrice: dec("3.50"), LineTotal: dec("3.50"), HasTotal: true},
	}

	r, err := Assembler{}.Assemble(hdr, cands)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if r.Status != StatusOK {
		t.Errorf("Status = %v, want StatusOK (issues: %+v)", r.Status, r.Issues)
	}
	if len(r.Issues) != 0 {
		t.Errorf("Issues = %+v, want none", r.Issues)
	}
	if !r.Total.Equal(dec("3.80")) {
		t.Errorf("Total = %s, want 3.80", r.Total)
	}
	if !r.Subtotal.Equal(dec("3.50")) {
		t.Errorf("Subtotal defaulted to %s, want item sum 3.50", r.Subtotal)
	}
	if r.ID == "" || r.Fingerprint == "" {
		t.Error("ID and Fingerprint must be set")
	}
}

func TestAssemble_TotalMismatchNeedsReview(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	hdr := lineitem.Header{
		Merchant: "Cafe A",
		Date:     day, HasDate: true,
		Tax: dec("0.30"), HasTax: true,
		Total: dec("5.00"), HasTotal: true,
	}
	cands := []lineitem.Candidate{
		{Description: "COFFEE", Quantity: dec("1"), UnitPrice: dec("3.50"), LineTotal: dec("3.50"), HasTotal: true},
	}

	r, err := Assembler{}.Assemble(hdr, cands)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if r.Status != StatusNeedsReview {
		t.Fatalf("Status = %v, want StatusNeedsReview", r.Status)
	}
	if len(r.Issues) != 1 || r.Issues[0].Code != IssueTotalMismatch {
		t.Fatalf("Issues = %+v, want one IssueTotalMismatch", r.Issues)
	}
	if r.Issues[0].Item != -1 {
		t.Errorf("mismatch issue Item = %d, want -1 (receipt level)", r.Issues[0].Item)
	}
	// 3.50 + 0.30 = 3.80 vs claimed 5.00: off by 1.20.
	if want := "1.2"; !strings.Contains(r.Issues[0].Detail, want) {
		t.Errorf("Detail = %q, want discrepancy %s reported", r.Issues[0].Detail, want)
	}
	if !r.Total.Equal(dec("5.00")) {
		t.Errorf("Total = %s, claimed total must be preserved", r.Total)
	}
}

func TestAssemble_UnreconciledItem(t *testing.T) {
	hdr := lineitem.Header{Merchant: "Shop", Total: dec("10.00"), HasTotal: true}
	cands := []lineitem.Candidate{
		{Description: "WIDGET", Quantity: dec("2"), UnitPrice: dec("3.00"), LineTotal: dec("10.00"), HasTotal: true},
	}

	r, err := Assembler{}.Assemble(hdr, cands)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if !r.Items[0].Unreconciled {
		t.Error("item with qty*unit != total must be marked unreconciled")
	}

	var found bool
	for _, iss := range r.Issues {
		if iss.Code == IssueItemUnreconciled && iss.Item == 0 {
			found = true
		}
	}
	if !found {
		t.Errorf("Issues = %+v, want IssueItemUnreconciled for item 0", r.Issues)
	}
	if r.Status != StatusNeedsReview {
		t.Errorf("Status = %v, want StatusNeedsReview", r.Status)
	}
}

func TestAssemble_AmbiguousCandidateCarriesIssue(t *testing.T) {
	hdr := lineitem.Header{Merchant: "Shop"}
	cands := []lineitem.Candidate{
		{
			Description: "BEANS",
			Quantity:    dec("1"), UnitPrice: dec("5.00"), LineTotal: dec("5.00"),
			HasTotal: true, Ambiguous: true, Reason: "multiple amounts without a quantity marker",
		},
	}

	r, err := Assembler{}.Assemble(hdr, cands)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if r.Status != StatusNeedsReview {
		t.Errorf("Status = %v, want StatusNeedsReview", r.Status)
	}
	if len(r.Issues) == 0 || r.Issues[0].Code != IssueParseAmbiguous || r.Issues[0].Item != 0 {
		t.Errorf("Issues = %+v, want IssueParseAmbiguous for item 0", r.Issues)
	}
}

func TestAssemble_MissingIdentityRejected(t *testing.T) {
	_, err := Assembler{}.Assemble(lineitem.Header{}, nil)
	if !errors.Is(err, ErrMissingRequiredField) {
		t.Errorf("error = %v, want ErrMissingRequiredField", err)
	}

	// Merchant alone is enough identity.
	if _, err := (Assembler{}).Assemble(lineitem.Header{Merchant: "Shop"}, nil); err != nil {
		t.Errorf("merchant-only header rejected: %v", err)
	}

	// A date alone is enough identity.
	hdr := lineitem.Header{Date: time.Now(), HasDate: true}
	if _, err := (Assembler{}).Assemble(hdr, nil); err != nil {
		t.Errorf("date-only header rejected: %v", err)
	}
}

func TestAssemble_TotalDefaultsToSubtotalPlusTax(t *testing.T) {
	hdr := lineitem.Header{Merchant: "Shop", Tax: dec("0.50"), HasTax: true}
	cands := []lineitem.Candidate{
		{Description: "A", Quantity: dec("1"), UnitPrice: dec("2.00"), LineTotal: dec("2.00"), HasTotal: true},
		{Description: "B", Quantity: dec("1"), UnitPrice: dec("3.00"), LineTotal: dec("3.00"), HasTotal: true},
	}

	r, err := Assembler{}.Assemble(hdr, cands)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if !r.Subtotal.Equal(dec("5.00")) {
		t.Errorf("Subtotal = %s, want 5.00", r.Subtotal)
	}
	if !r.Total.Equal(dec("5.50")) {
		t.Errorf("Total = %s, want 5.50", r.Total)
	}
	if r.Status != StatusOK {
		t.Errorf("Status = %v, want StatusOK (issues: %+v)", r.Status, r.Issues)
	}
}

func TestFingerprint(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	a := Fingerprint("Cafe A", day, dec("3.80"))
	b := Fingerprint("  cafe   a ", day, dec("3.8"))
	if a != b {
		t.Error("fingerprint must be stable under case and whitespace variation")
	}

	c := Fingerprint("Cafe A", day, dec("3.81"))
	if a == c {
		t.Error("different totals must yield different fingerprints")
	}

	d := Fingerprint("Cafe A", day.AddDate(0, 0, 1), dec("3.80"))
	if a == d {
		t.Error("different dates must yield different fingerprints")
	}
}
