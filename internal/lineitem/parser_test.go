package lineitem

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finbase/receipt-insights/internal/token"
)

func word(x, y float64, text string) token.Normalized {
	return token.Normalized{Text: text, Kind: token.KindWord, Box: token.Box{X: x, Y: y}}
}

func amount(x, y float64, text, value string) token.Normalized {
	return token.Normalized{
		Text:   text,
		Kind:   token.KindCurrency,
		Amount: decimal.RequireFromString(value),
		Box:    token.Box{X: x, Y: y},
	}
}

func number(x, y float64, text string) token.Normalized {
	return token.Normalized{Text: text, Kind: token.KindUnknown, Box: token.Box{X: x, Y: y}}
}

func date(x, y float64, text string, d time.Time) token.Normalized {
	return token.Normalized{Text: text, Kind: token.KindDate, Date: d, Box: token.Box{X: x, Y: y}}
}

func TestTagRoles(t *testing.T) {
	tests := []struct {
		name string
		row  []token.Normalized
		want []Role
	}{
		{
			name: "single amount",
			row: []token.Normalized{
				word(0, 0, "COFFEE"), amount(50, 0, "$3.50", "3.50"),
			},
			want: []Role{RoleDescription, RoleLineTotal},
		},
		{
			name: "quantity marker with unit price",
			row: []token.Normalized{
				word(0, 0, "MUFFIN"), number(20, 0, "2"), word(25, 0, "x"),
				amount(40, 0, "1.20", "1.20"), amount(60, 0, "2.40", "2.40"),
			},
			want: []Role{RoleDescription, RoleQuantity, RoleUnknown, RoleUnitPrice, RoleLineTotal},
		},
		{
			name: "two amounts without a marker",
			row: []token.Normalized{
				word(0, 0, "BEANS"), amount(40, 0, "5.00", "5.00"), amount(60, 0, "5.00", "5.00"),
			},
			want: []Role{RoleDescription, RoleUnknown, RoleLineTotal},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tagRoles(tt.row)
			if len(got) != len(tt.want) {
				t.Fatalf("len(roles) = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("roles[%d] (%q) = %v, want %v", i, tt.row[i].Text, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParser_FullReceipt(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	toks := []token.Normalized{
		word(0, 0, "CAFE"), word(30, 0, "A"),
		date(0, 10, "15/03/2024", day),
		word(0, 20, "COFFEE"), amount(50, 20, "$3.50", "3.50"),
		word(0, 30, "MUFFIN"), number(20, 30, "2"), word(25, 30, "x"),
		amount(40, 30, "1.20", "1.20"), amount(60, 30, "2.40", "2.40"),
		word(0, 40, "BEANS"), amount(40, 40, "5.00", "5.00"), amount(60, 40, "5.00", "5.00"),
		word(0, 50, "ORGANIC"),
		word(0, 60, "SUBTOTAL"), amount(50, 60, "10.90", "10.90"),
		word(0, 70, "TAX"), amount(50, 70, "1.00", "1.00"),
		word(0, 80, "TOTAL"), amount(50, 80, "11.90", "11.90"),
		word(0, 90, "CASH"), amount(50, 90, "20.00", "20.00"),
		word(0, 100, "THANK"), word(30, 100, "YOU"),
	}

	parsed := NewParser().Parse(toks)
	hdr := parsed.Header

	if hdr.Merchant != "CAFE A" {
		t.Errorf("Merchant = %q, want %q", hdr.Merchant, "CAFE A")
	}
	if !hdr.HasDate || !hdr.Date.Equal(day) {
		t.Errorf("Date = %v (has=%v), want %v", hdr.Date, hdr.HasDate, day)
	}
	if hdr.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", hdr.Currency)
	}
	if !hdr.HasSubtotal || !hdr.Subtotal.Equal(decimal.RequireFromString("10.90")) {
		t.Errorf("Subtotal = %s (has=%v), want 10.90", hdr.Subtotal, hdr.HasSubtotal)
	}
	if !hdr.HasTax || !hdr.Tax.Equal(decimal.RequireFromString("1.00")) {
		t.Errorf("Tax = %s (has=%v), want 1.00", hdr.Tax, hdr.HasTax)
	}
	if !hdr.HasTotal || !hdr.Total.Equal(decimal.RequireFromString("11.90")) {
		t.Errorf("Total = %s (has=%v), want 11.90", hdr.Total, hdr.HasTotal)
	}

	if len(parsed.Items) != 3 {
		t.Fatalf("len(Items) = %d, want 3 (tender row excluded)", len(parsed.Items))
	}

	coffee := parsed.Items[0]
	if coffee.Description != "COFFEE" || !coffee.Quantity.Equal(decimal.NewFromInt(1)) ||
		!coffee.LineTotal.Equal(decimal.RequireFromString("3.50")) {
		t.Errorf("coffee = %+v, want qty 1 total 3.50", coffee)
	}
	if coffee.Ambiguous {
		t.Errorf("coffee flagged ambiguous: %q", coffee.Reason)
	}

	muffin := parsed.Items[1]
	if muffin.Description != "MUFFIN" {
		t.Errorf("muffin description = %q", muffin.Description)
	}
	if !muffin.Quantity.Equal(decimal.NewFromInt(2)) ||
		!muffin.UnitPrice.Equal(decimal.RequireFromString("1.20")) ||
		!muffin.LineTotal.Equal(decimal.RequireFromString("2.40")) {
		t.Errorf("muffin = qty %s unit %s total %s, want 2 x 1.20 = 2.40",
			muffin.Quantity, muffin.UnitPrice, muffin.LineTotal)
	}

	beans := parsed.Items[2]
	if beans.Description != "BEANS ORGANIC" {
		t.Errorf("continuation not applied: description = %q", beans.Description)
	}
	if !beans.Ambiguous {
		t.Error("two amounts without a quantity marker should be flagged ambiguous")
	}
	if !beans.Quantity.Equal(decimal.NewFromInt(1)) || !beans.LineTotal.Equal(decimal.RequireFromString("5.00")) {
		t.Errorf("ambiguous row = qty %s total %s, want qty 1 total 5.00 (right-most amount)",
			beans.Quantity, beans.LineTotal)
	}
}

func TestParser_BareQuantityDividesUnitPrice(t *testing.T) {
	toks := []token.Normalized{
		word(0, 0, "WATER"), number(20, 0, "3"), amount(50, 0, "6.00", "6.00"),
	}

	parsed := NewParser().Parse(toks)
	if len(parsed.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(parsed.Items))
	}

	item := parsed.Items[0]
	if !item.Quantity.Equal(decimal.NewFromInt(3)) {
		t.Errorf("Quantity = %s, want 3", item.Quantity)
	}
	if !item.UnitPrice.Equal(decimal.RequireFromString("2.00")) {
		t.Errorf("UnitPrice = %s, want 2.00", item.UnitPrice)
	}
	if !item.LineTotal.Equal(decimal.RequireFromString("6.00")) {
		t.Errorf("LineTotal = %s, want 6.00", item.LineTotal)
	}
}

func TestParser_RowGroupingByProximity(t *testing.T) {
	// Tokens arrive unordered; the second token sits 4 units below the
	// first, inside the default tolerance, so they share a row.
	toks := []token.Normalized{
		amount(50, 24, "2.00", "2.00"),
		word(0, 20, "TEA"),
		word(0, 40, "SCONE"), amount(50, 40, "1.50", "1.50"),
	}

	parsed := NewParser().Parse(toks)
	if len(parsed.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(parsed.Items))
	}
	if parsed.Items[0].Description != "TEA" || !parsed.Items[0].LineTotal.Equal(decimal.RequireFromString("2.00")) {
		t.Errorf("row grouping failed: %+v", parsed.Items[0])
	}
}

func TestParser_SubtotalMatchedBeforeTotal(t *testing.T) {
	toks := []token.Normalized{
		word(0, 0, "SUB"), word(20, 0, "TOTAL"), amount(50, 0, "9.00", "9.00"),
		word(0, 10, "TOTAL"), amount(50, 10, "9.90", "9.90"),
	}

	parsed := NewParser().Parse(toks)
	hdr := parsed.Header

	if !hdr.HasSubtotal || !hdr.Subtotal.Equal(decimal.RequireFromString("9.00")) {
		t.Errorf("Subtotal = %s (has=%v), want 9.00", hdr.Subtotal, hdr.HasSubtotal)
	}
	if !hdr.HasTotal || !hdr.Total.Equal(decimal.RequireFromString("9.90")) {
		t.Errorf("Total = %s (has=%v), want 9.90", hdr.Total, hdr.HasTotal)
	}
	if len(parsed.Items) != 0 {
		t.Errorf("header rows leaked into items: %+v", parsed.Items)
	}
}

func TestParser_IsPure(t *testing.T) {
	toks := []token.Normalized{
		word(0, 0, "SHOP"),
		word(0, 10, "ITEM"), amount(50, 10, "1.00", "1.00"),
	}

	a := NewParser().Parse(toks)
	b := NewParser().Parse(toks)

	if a.Header.Merchant != b.Header.Merchant || len(a.Items) != len(b.Items) {
		t.Errorf("repeated parses differ: %+v vs %+v", a, b)
	}
}
