// Package pipeline orchestrates receipt ingestion: extraction,
// normalization, line-item parsing, assembly and storage, with one
// terminal outcome per submitted document.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/finbase/receipt-insights/internal/extraction"
	"github.com/finbase/receipt-insights/internal/insights"
	"github.com/finbase/receipt-insights/internal/lineitem"
	"github.com/finbase/receipt-insights/internal/receipt"
	"github.com/finbase/receipt-insights/internal/storage"
)

// Status is a terminal ingestion outcome. Every document ends in exactly
// one of these; nothing is silently dropped.
type Status string

const (
	// StatusStored means the receipt passed every invariant cleanly.
	StatusStored Status = "stored"
	// StatusNeedsReview means the receipt was stored with review issues.
	StatusNeedsReview Status = "needs_review"
	// StatusRejected means the receipt had no identity (no merchant and
	// no date) and cannot be stored. Terminal, no retry.
	StatusRejected Status = "rejected"
	// StatusDuplicate means an identical fingerprint was already stored.
	StatusDuplicate Status = "duplicate"
)

// Stage is a non-terminal position in the per-receipt state machine:
// Received -> Normalized -> Parsed -> Assembled -> terminal.
type Stage string

const (
	StageReceived   Stage = "received"
	StageNormalized Stage = "normalized"
	StageParsed     Stage = "parsed"
	StageAssembled  Stage = "assembled"
)

// Result reports the terminal outcome of one ingestion to the caller.
// ReceiptID is empty on a Duplicate outcome: the stored record keeps its
// original ID and the fingerprint identifies it.
type Result struct {
	Status      Status          `json:"status"`
	ReceiptID   string          `json:"receipt_id,omitempty"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	Issues      []receipt.Issue `json:"issues,omitempty"`

	// LastStage is the last successfully completed stage. On a
	// recoverable error (extraction or storage timeout) it tells the
	// caller where the pipeline stopped; each transition except Rejected
	// is independently retryable.
	LastStage Stage `json:"last_stage"`
}

// Pipeline wires the four processing stages to the external
// collaborators. Ingestions of independent receipts may run concurrently;
// the only shared state is the store's fingerprint index and the
// classification policy, both owned by their packages.
type Pipeline struct {
	extractor  extraction.Extractor
	parser     *lineitem.Parser
	assembler  receipt.Assembler
	store      storage.ReceiptStore
	aggregator *insights.Aggregator
	log        zerolog.Logger
}

// New builds a pipeline. aggregator may share the store's receipts with
// concurrent ingestions; eventual consistency is acceptable for reports.
func New(ex extraction.Extractor, store storage.ReceiptStore, agg *insights.Aggregator, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		extractor:  ex,
		parser:     lineitem.NewParser(),
		store:      store,
		aggregator: agg,
		log:        log,
	}
}

// Ingest runs one document through the state machine and returns its
// terminal outcome. A nil error with a Result means the document reached
// a terminal state (including Rejected and Duplicate). A non-nil error is
// recoverable: the Result's LastStage tells the caller where to resume,
// and re-submitting the same document is safe because the fingerprint
// dedupe makes storage idempotent.
func (p *Pipeline) Ingest(ctx context.Context, doc extraction.Document) (*Result, error) {
	st := &State{Doc: doc, Stage: StageReceived}
	res := &Result{LastStage: st.Stage}

	steps := []Step{
		&ExtractStep{Extractor: p.extractor},
		&NormalizeStep{},
		&ParseStep{Parser: p.parser},
		&AssembleStep{Assembler: p.assembler},
		&StoreStep{Store: p.store},
	}

	for _, step := range steps {
		if err := step.Execute(ctx, st); err != nil {
			return p.finishError(res, st, step, err)
		}
		res.LastStage = st.Stage
	}

	res.Fingerprint = st.Receipt.Fingerprint
	res.Issues = st.Receipt.Issues

	switch {
	case st.Outcome == storage.Duplicate:
		// The freshly assembled receipt was never persisted; the stored
		// record keeps its original ID, so the duplicate is identified by
		// fingerprint alone.
		res.Status = StatusDuplicate
	case st.Receipt.Status == receipt.StatusNeedsReview:
		res.ReceiptID = st.Receipt.ID
		res.Status = StatusNeedsReview
	default:
		res.ReceiptID = st.Receipt.ID
		res.Status = StatusStored
	}

	p.log.Info().
		Str("receipt_id", res.ReceiptID).
		Str("fingerprint", res.Fingerprint).
		Str("status", string(res.Status)).
		Int("issues", len(res.Issues)).
		Msg("Ingestion finished")

	return res, nil
}

// finishError maps a step failure onto the error taxonomy: a missing
// identity is the Rejected terminal state; everything else is surfaced as
// a recoverable error with the last successful stage preserved.
func (p *Pipeline) finishError(res *Result, st *State, step Step, err error) (*Result, error) {
	if errors.Is(err, receipt.ErrMissingRequiredField) {
		res.Status = StatusRejected
		res.Issues = append(res.Issues, receipt.Issue{
			Code:   receipt.IssueMissingField,
			Item:   -1,
			Detail: err.Error(),
		})
		p.log.Warn().
			Str("source_ref", st.Doc.SourceRef).
			Err(err).
			Msg("Receipt rejected")
		return res, nil
	}

	p.log.Error().
		Str("source_ref", st.Doc.SourceRef).
		Str("step", step.Name()).
		Str("last_stage", string(res.LastStage)).
		Err(err).
		Msg("Pipeline step failed")

	return res, fmt.Errorf("pipeline step %s: %w", step.Name(), err)
}

// Insights recomputes a spending report over the stored receipts. The
// full receipt history feeds the anomaly baseline; only in-window
// receipts contribute to totals.
func (p *Pipeline) Insights(ctx context.Context, w insights.Window, merchantFilter string) (*insights.Report, error) {
	rcpts, err := p.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("insights: %w", err)
	}
	return p.aggregator.Aggregate(rcpts, w, merchantFilter), nil
}
