package token

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrEmptyExtraction is returned when the extraction collaborator yielded
// zero tokens for a document. It is propagated to the caller, not retried
// here.
var ErrEmptyExtraction = errors.New("extraction produced no tokens")

var (
	// Amounts like "$1,234.56", "£3.50", "3.50F" (trailing tax flag),
	// "-12.00", "(12.00)" for negatives.
	amountPattern = regexp.MustCompile(`^\(?-?[$£€]?\s?-?(\d{1,3}(?:,\d{3})*|\d+)\.(\d{2})\)?[FNT]?$`)

	// OCR artifacts that carry no meaning once tokens are positioned.
	artifactReplacer = strings.NewReplacer("|", "", "\\", "", " ", " ")
)

// dateLayouts are tried in order; the first successful parse wins.
// Day-first layouts come before month-first because receipts in the
// supported markets are predominantly day-first.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"02/01/06",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// Normalize cleans an ordered sequence of raw tokens and tags each with a
// detected kind. It is a pure transform: the input is never mutated and
// repeated calls yield identical output.
func Normalize(toks []RawToken) ([]Normalized, error) {
	if len(toks) == 0 {
		return nil, ErrEmptyExtraction
	}

	out := make([]Normalized, 0, len(toks))
	for _, rt := range toks {
		text := cleanText(rt.Text)
		if text == "" {
			continue
		}

		n := Normalized{
			Text:       text,
			Kind:       KindUnknown,
			Box:        rt.Box,
			Confidence: rt.Confidence,
		}

		if amt, ok := parseAmount(text); ok {
			n.Kind = KindCurrency
			n.Amount = amt
		} else if d, ok := parseDate(text); ok {
			n.Kind = KindDate
			n.Date = d
		} else if isWord(text) {
			n.Kind = KindWord
		}

		out = append(out, n)
	}

	if len(out) == 0 {
		return nil, ErrEmptyExtraction
	}
	return out, nil
}

func cleanText(s string) string {
	s = artifactReplacer.Replace(s)
	return strings.TrimSpace(s)
}

// parseAmount parses a currency-looking token into a decimal amount.
// Parenthesized amounts are treated as negative, per common receipt
// conventions for refunds.
func parseAmount(s string) (decimal.Decimal, bool) {
	if !amountPattern.MatchString(s) {
		return decimal.Zero, false
	}

	neg := strings.HasPrefix(s, "(") && strings.HasSuffix(strings.TrimRight(s, "FNT"), ")")

	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '$', '£', '€', ',', '(', ')', ' ', 'F', 'N', 'T':
			return -1
		}
		return r
	}, s)

	amt, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	if neg {
		amt = amt.Neg()
	}
	return amt, true
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// isWord reports whether the token contains at least one letter. Pure
// punctuation or digit runs (store numbers, barcodes) stay KindUnknown.
func isWord(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}
