// Package lineitem groups normalized receipt tokens into candidate line
// items using positional and pattern heuristics.
package lineitem

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role tags the function a token plays within an item row. Roles are
// resolved by an explicit ordered rule set, never by implicit coercion.
type Role string

const (
	RoleDescription Role = "description"
	RoleQuantity    Role = "quantity"
	RoleUnitPrice   Role = "unit_price"
	RoleLineTotal   Role = "line_total"
	RoleUnknown     Role = "unknown"
)

// Candidate is one parsed line-item candidate. Ambiguous candidates are
// surfaced for manual review downstream; ambiguity never aborts parsing.
type Candidate struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal

	// HasTotal is false for rows that carried no parsable total and were
	// merged into a neighbour by the continuation heuristic.
	HasTotal bool

	// Ambiguous marks candidates where the role heuristics disagreed.
	Ambiguous bool
	Reason    string
}

// Header carries the top-of-receipt fields parsed alongside the items.
type Header struct {
	Merchant string
	Date     time.Time
	HasDate  bool

	Subtotal    decimal.Decimal
	HasSubtotal bool
	Tax         decimal.Decimal
	HasTax      bool
	Total       decimal.Decimal
	HasTotal    bool

	Currency string
}

// Parsed is the full output of one parsing pass.
type Parsed struct {
	Header Header
	Items  []Candidate
}
