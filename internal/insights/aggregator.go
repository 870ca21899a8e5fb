// Package insights computes time-windowed spending summaries over stored
// receipts. Reports are derived on demand; the receipt set remains the
// source of truth.
package insights

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finbase/receipt-insights/internal/classify"
	"github.com/finbase/receipt-insights/internal/receipt"
)

// UncategorizedLabel buckets items no classification policy claimed.
const UncategorizedLabel = "uncategorized"

// DefaultTrailingN is how many prior same-merchant receipts feed the
// anomaly baseline.
const DefaultTrailingN = 20

// anomalySigma is the number of standard deviations above the mean at
// which a receipt total is flagged.
const anomalySigma = 3.0

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Anomaly flags a receipt whose total exceeds mean + 3*stddev of the
// trailing same-merchant baseline.
type Anomaly struct {
	ReceiptID string          `json:"receipt_id"`
	Merchant  string          `json:"merchant"`
	Total     decimal.Decimal `json:"total"`
	Mean      float64         `json:"mean"`
	StdDev    float64         `json:"std_dev"`
	Priors    int             `json:"priors"`
}

// Report is a derived aggregate of spending over a window. It is
// recomputed on every request and never cached as source of truth.
type Report struct {
	Window       Window                     `json:"window"`
	TotalSpend   decimal.Decimal            `json:"total_spend"`
	ByCategory   map[string]decimal.Decimal `json:"by_category"`
	ReceiptCount int                        `json:"receipt_count"`
	Anomalies    []Anomaly                  `json:"anomalies,omitempty"`
	GeneratedAt  time.Time                  `json:"generated_at"`
}

// Aggregator computes insight reports. It holds no mutable state between
// calls; every report is a pure function of its inputs.
type Aggregator struct {
	// Classifier is the injected classification policy. Nil means items
	// keep whatever category label they already carry.
	Classifier classify.Classifier

	// TrailingN bounds the anomaly baseline to the most recent N prior
	// same-merchant receipts.
	TrailingN int
}

// NewAggregator returns an aggregator using the given policy and the
// default trailing window.
func NewAggregator(c classify.Classifier) *Aggregator {
	return &Aggregator{Classifier: c, TrailingN: DefaultTrailingN}
}

// Aggregate produces a fresh report over the receipts whose date falls
// in-window. merchantFilter, when non-empty, restricts the report to one
// merchant (case-insensitive). The full input set still feeds the anomaly
// baseline so that history outside the window counts as priors.
func (a *Aggregator) Aggregate(rcpts []receipt.Receipt, w Window, merchantFilter string) *Report {
	report := &Report{
		Window:      w,
		TotalSpend:  decimal.Zero,
		ByCategory:  make(map[string]decimal.Decimal),
		GeneratedAt: time.Now().UTC(),
	}

	filter := strings.ToUpper(strings.TrimSpace(merchantFilter))

	for _, r := range rcpts {
		if !w.Contains(r.Date) {
			continue
		}
		if filter != "" && strings.ToUpper(r.Merchant) != filter {
			continue
		}

		report.ReceiptCount++
		report.TotalSpend = report.TotalSpend.Add(r.Total)

		for _, item := range r.Items {
			cat := a.categoryFor(item)
			report.ByCategory[cat] = report.ByCategory[cat].Add(item.LineTotal)
		}

		if anom, ok := a.detectAnomaly(rcpts, r); ok {
			report.Anomalies = append(report.Anomalies, anom)
		}
	}

	return report
}

func (a *Aggregator) categoryFor(item receipt.LineItem) string {
	if a.Classifier != nil {
		if c := a.Classifier.Classify(item); c != nil {
			return c.Name
		}
	}
	if item.Category != "" {
		return item.Category
	}
	return UncategorizedLabel
}

// detectAnomaly compares a receipt's total against the trailing N prior
// receipts for the same merchant. Fewer than 2 priors means no baseline:
// detection is skipped, which is an absence of flag, not a failure.
func (a *Aggregator) detectAnomaly(all []receipt.Receipt, r receipt.Receipt) (Anomaly, bool) {
	merchant := strings.ToUpper(r.Merchant)

	var priors []receipt.Receipt
	for _, p := range all {
		if p.ID != r.ID && strings.ToUpper(p.Merchant) == merchant && p.Date.Before(r.Date) {
			priors = append(priors, p)
		}
	}
	if len(priors) < 2 {
		return Anomaly{}, false
	}

	sort.Slice(priors, func(i, j int) bool { return priors[i].Date.After(priors[j].Date) })
	n := a.TrailingN
	if n <= 0 {
		n = DefaultTrailingN
	}
	if len(priors) > n {
		priors = priors[:n]
	}

	mean, stddev := meanStdDev(priors)
	total, _ := r.Total.Float64()
	if total <= mean+anomalySigma*stddev {
		return Anomaly{}, false
	}

	return Anomaly{
		ReceiptID: r.ID,
		Merchant:  r.Merchant,
		Total:     r.Total,
		Mean:      mean,
		StdDev:    stddev,
		Priors:    len(priors),
	}, true
}

// meanStdDev returns the mean and sample standard deviation of the
// receipts' totals. len(rcpts) >= 2 is guaranteed by the caller.
func meanStdDev(rcpts []receipt.Receipt) (float64, float64) {
	var sum float64
	for _, r := range rcpts {
		f, _ := r.Total.Float64()
		sum += f
	}
	mean := sum / float64(len(rcpts))

	var sq float64
	for _, r := range rcpts {
		f, _ := r.Total.Float64()
		sq += (f - mean) * (f - mean)
	}
	stddev := math.Sqrt(sq / float64(len(rcpts)-1))
	return mean, stddev
}
