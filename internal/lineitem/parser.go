package lineitem

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finbase/receipt-insights/internal/token"
)

// DefaultLineTolerance is the vertical distance, in extraction coordinate
// units, within which tokens are considered to sit on the same row.
const DefaultLineTolerance = 6.0

var (
	subtotalPattern = regexp.MustCompile(`(?i)^SUB\s*[- ]?TOTAL$`)
	taxPattern      = regexp.MustCompile(`(?i)^(TAX|VAT|GST|SALES\s*TAX)$`)
	totalPattern    = regexp.MustCompile(`(?i)^(TOTAL|GRAND\s*TOTAL|BALANCE\s*DUE|AMOUNT\s*DUE)$`)

	// Rows that are receipt noise rather than purchased items.
	excludePattern = regexp.MustCompile(`(?i)^(CHANGE|CASH|CREDIT|DEBIT|CARD|VISA|MASTERCARD|AMEX|TEND(ER)?(ED)?|THANK(S| YOU)?|CASHIER|REG(ISTER)?|STORE|TEL|PHONE|RECEIPT|APPROVED|AUTH|MEMBER|LOYALTY|POINTS|REWARDS?|SAVINGS|REFUND|VOID)$`)

	quantityMarkerPattern = regexp.MustCompile(`^[xX@]$`)
)

// Parser groups normalized tokens into rows and assigns item roles.
// The zero value is not ready for use; construct with NewParser.
type Parser struct {
	// LineTolerance is the vertical proximity within which tokens belong
	// to one row.
	LineTolerance float64
}

// NewParser returns a parser with the default line-height tolerance.
func NewParser() *Parser {
	return &Parser{LineTolerance: DefaultLineTolerance}
}

// Parse groups tokens into rows, extracts header fields, and produces
// line-item candidates. It is a pure function of its input: re-running it
// over the same normalized sequence yields the same result.
func (p *Parser) Parse(toks []token.Normalized) *Parsed {
	rows := p.groupRows(toks)

	parsed := &Parsed{}
	itemsStarted := false

	for _, row := range rows {
		if hdrField, ok := matchHeaderAmount(row); ok {
			applyHeaderAmount(&parsed.Header, hdrField, row)
			continue
		}

		if d, ok := rowDate(row); ok && !parsed.Header.HasDate {
			parsed.Header.Date = d
			parsed.Header.HasDate = true
			continue
		}

		if isExcluded(row) {
			continue
		}

		if parsed.Header.Currency == "" {
			if cur := detectCurrency(row); cur != "" {
				parsed.Header.Currency = cur
			}
		}

		if !rowHasCurrency(row) {
			desc := rowWords(row)
			if desc == "" {
				continue
			}
			switch {
			case !itemsStarted && parsed.Header.Merchant == "":
				// Left-most word run before any priced row names the merchant.
				parsed.Header.Merchant = desc
			case itemsStarted && len(parsed.Items) > 0:
				// Continuation heuristic: an unpriced row extends the
				// previous candidate's description.
				last := &parsed.Items[len(parsed.Items)-1]
				last.Description = strings.TrimSpace(last.Description + " " + desc)
			}
			continue
		}

		cand := assignRoles(row)
		parsed.Items = append(parsed.Items, cand)
		itemsStarted = true
	}

	return parsed
}

// groupRows buckets tokens by vertical proximity, then orders each row
// left to right.
func (p *Parser) groupRows(toks []token.Normalized) [][]token.Normalized {
	sorted := make([]token.Normalized, len(toks))
	copy(sorted, toks)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Box.Y != sorted[j].Box.Y {
			return sorted[i].Box.Y < sorted[j].Box.Y
		}
		return sorted[i].Box.X < sorted[j].Box.X
	})

	var rows [][]token.Normalized
	var anchorY float64

	for _, t := range sorted {
		if len(rows) == 0 || t.Box.Y-anchorY > p.LineTolerance {
			rows = append(rows, []token.Normalized{t})
			anchorY = t.Box.Y
			continue
		}
		rows[len(rows)-1] = append(rows[len(rows)-1], t)
	}

	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool { return row[i].Box.X < row[j].Box.X })
	}
	return rows
}

type headerField int

const (
	headerSubtotal headerField = iota
	headerTax
	headerTotal
)

// matchHeaderAmount reports whether the row is a subtotal/tax/total line
// carrying an amount. Subtotal is checked before total because the word
// contains it.
func matchHeaderAmount(row []token.Normalized) (headerField, bool) {
	if !rowHasCurrency(row) {
		return 0, false
	}
	label := rowWords(row)
	if label == "" {
		return 0, false
	}
	switch {
	case subtotalPattern.MatchString(label):
		return headerSubtotal, true
	case taxPattern.MatchString(label):
		return headerTax, true
	case totalPattern.MatchString(label):
		return headerTotal, true
	}
	return 0, false
}

func applyHeaderAmount(h *Header, f headerField, row []token.Normalized) {
	amt, ok := rightmostAmount(row)
	if !ok {
		return
	}
	switch f {
	case headerSubtotal:
		h.Subtotal = amt
		h.HasSubtotal = true
	case headerTax:
		h.Tax = amt
		h.HasTax = true
	case headerTotal:
		h.Total = amt
		h.HasTotal = true
	}
}

// tagRoles applies the ordered rule set to one priced row, producing one
// Role per token: the right-most currency token is the line total, the
// currency token to its left is the unit price when a quantity is
// present, a small integer (bare or adjacent to an x/@ marker) is the
// quantity, and word tokens left of the first amount are the description.
func tagRoles(row []token.Normalized) []Role {
	roles := make([]Role, len(row))
	for i := range roles {
		roles[i] = RoleUnknown
	}

	var currencyIdx []int
	for i, t := range row {
		if t.Kind == token.KindCurrency {
			currencyIdx = append(currencyIdx, i)
		}
	}
	roles[currencyIdx[len(currencyIdx)-1]] = RoleLineTotal

	firstAmountX := row[currencyIdx[0]].Box.X
	if qi, ok := quantityIndex(row, firstAmountX); ok {
		roles[qi] = RoleQuantity
		if len(currencyIdx) > 1 {
			roles[currencyIdx[len(currencyIdx)-2]] = RoleUnitPrice
		}
	}

	for i, t := range row {
		if roles[i] != RoleUnknown {
			continue
		}
		if t.Kind == token.KindWord && t.Box.X < firstAmountX && !quantityMarkerPattern.MatchString(t.Text) {
			roles[i] = RoleDescription
		}
	}
	return roles
}

// assignRoles tags the row and builds the candidate from the tags.
func assignRoles(row []token.Normalized) Candidate {
	roles := tagRoles(row)

	cand := Candidate{
		Quantity: decimal.NewFromInt(1),
		HasTotal: true,
	}

	var (
		words         []string
		qty           decimal.Decimal
		hasQty        bool
		hasUnit       bool
		currencyCount int
	)
	for i, t := range row {
		if t.Kind == token.KindCurrency {
			currencyCount++
		}
		switch roles[i] {
		case RoleDescription:
			words = append(words, t.Text)
		case RoleQuantity:
			if n, err := strconv.Atoi(t.Text); err == nil {
				qty = decimal.NewFromInt(int64(n))
				hasQty = true
			}
		case RoleUnitPrice:
			cand.UnitPrice = t.Amount
			hasUnit = true
		case RoleLineTotal:
			cand.LineTotal = t.Amount
		}
	}
	cand.Description = cleanDescription(strings.Join(words, " "))

	switch {
	case hasUnit:
		cand.Quantity = qty
	case hasQty && !qty.IsZero():
		cand.Quantity = qty
		cand.UnitPrice = cand.LineTotal.DivRound(qty, 4)
	default:
		cand.UnitPrice = cand.LineTotal
		if currencyCount > 1 {
			// Two amounts and no quantity marker: heuristics disagree.
			// Quantity defaults to 1, the right-most amount stands as the
			// line total, and the candidate is flagged for review.
			cand.Ambiguous = true
			cand.Reason = "multiple amounts without a quantity marker"
		}
	}

	return cand
}

// quantityIndex finds an integer quantity left of the amounts, either a
// bare small integer or one adjacent to an x/@ marker.
func quantityIndex(row []token.Normalized, beforeX float64) (int, bool) {
	for i, t := range row {
		if t.Box.X >= beforeX && !adjacentToMarker(row, i) {
			continue
		}
		if t.Kind != token.KindUnknown && t.Kind != token.KindWord {
			continue
		}
		n, err := strconv.Atoi(t.Text)
		if err != nil || n <= 0 || n > 999 {
			continue
		}
		return i, true
	}
	return -1, false
}

func adjacentToMarker(row []token.Normalized, i int) bool {
	if i > 0 && quantityMarkerPattern.MatchString(row[i-1].Text) {
		return true
	}
	if i+1 < len(row) && quantityMarkerPattern.MatchString(row[i+1].Text) {
		return true
	}
	return false
}

func rowHasCurrency(row []token.Normalized) bool {
	for _, t := range row {
		if t.Kind == token.KindCurrency {
			return true
		}
	}
	return false
}

func rightmostAmount(row []token.Normalized) (decimal.Decimal, bool) {
	for i := len(row) - 1; i >= 0; i-- {
		if row[i].Kind == token.KindCurrency {
			return row[i].Amount, true
		}
	}
	return decimal.Zero, false
}

func rowDate(row []token.Normalized) (t time.Time, ok bool) {
	for _, tok := range row {
		if tok.Kind == token.KindDate {
			return tok.Date, true
		}
	}
	return time.Time{}, false
}

func rowWords(row []token.Normalized) string {
	var words []string
	for _, t := range row {
		if t.Kind == token.KindWord {
			words = append(words, t.Text)
		}
	}
	return strings.TrimSpace(strings.Join(words, " "))
}

func isExcluded(row []token.Normalized) bool {
	label := rowWords(row)
	if label == "" {
		return false
	}
	for _, w := range strings.Fields(label) {
		if excludePattern.MatchString(w) {
			return true
		}
	}
	return false
}

func detectCurrency(row []token.Normalized) string {
	for _, t := range row {
		if t.Kind != token.KindCurrency {
			continue
		}
		switch {
		case strings.ContainsRune(t.Text, '£'):
			return "GBP"
		case strings.ContainsRune(t.Text, '€'):
			return "EUR"
		case strings.ContainsRune(t.Text, '$'):
			return "USD"
		}
	}
	return ""
}

func cleanDescription(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".,;:-_*#")
	return strings.TrimSpace(s)
}
