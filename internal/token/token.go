package token

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a normalized token.
type Kind string

const (
	KindCurrency Kind = "currency"
	KindDate     Kind = "date"
	KindWord     Kind = "word"
	KindUnknown  Kind = "unknown"
)

// Box is the bounding position of a token on the source document,
// in the coordinate space of the extraction collaborator.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// RawToken is one positioned text fragment produced by the external
// extraction collaborator. RawTokens are immutable; they are consumed
// during normalization and discarded after line-item parsing.
type RawToken struct {
	Text       string  `json:"text"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
}

// Normalized is a cleaned token with a detected kind. Amount is valid
// only when Kind is KindCurrency; Date only when Kind is KindDate.
type Normalized struct {
	Text       string
	Kind       Kind
	Amount     decimal.Decimal
	Date       time.Time
	Box        Box
	Confidence float64
}
