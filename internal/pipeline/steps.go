package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/finbase/receipt-insights/internal/extraction"
	"github.com/finbase/receipt-insights/internal/lineitem"
	"github.com/finbase/receipt-insights/internal/receipt"
	"github.com/finbase/receipt-insights/internal/storage"
	"github.com/finbase/receipt-insights/internal/token"
)

// Step is a single transition in the ingestion state machine.
type Step interface {
	Name() string
	Execute(ctx context.Context, st *State) error
}

// State is the shared state threaded through the steps of one ingestion.
// RawTokens are discarded once line-item parsing has consumed them.
type State struct {
	Doc extraction.Document

	RawTokens  []token.RawToken
	Normalized []token.Normalized
	Parsed     *lineitem.Parsed
	Receipt    *receipt.Receipt

	Stage   Stage
	Outcome storage.InsertOutcome
}

// ExtractStep calls the extraction collaborator. Bounded by the caller's
// context; a deadline expiry surfaces as extraction.ErrTimeout.
type ExtractStep struct {
	Extractor extraction.Extractor
}

func (s *ExtractStep) Name() string { return "extract" }

func (s *ExtractStep) Execute(ctx context.Context, st *State) error {
	toks, err := s.Extractor.Extract(ctx, st.Doc)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", extraction.ErrTimeout, err)
		}
		return err
	}
	st.RawTokens = toks
	return nil
}

// NormalizeStep cleans and tags the raw tokens: Received -> Normalized.
type NormalizeStep struct{}

func (s *NormalizeStep) Name() string { return "normalize" }

func (s *NormalizeStep) Execute(ctx context.Context, st *State) error {
	normalized, err := token.Normalize(st.RawTokens)
	if err != nil {
		return err
	}
	st.Normalized = normalized
	st.RawTokens = nil
	st.Stage = StageNormalized
	return nil
}

// ParseStep groups tokens into line-item candidates: Normalized ->
// Parsed. Ambiguity never fails this step; it travels on the candidates.
type ParseStep struct {
	Parser *lineitem.Parser
}

func (s *ParseStep) Name() string { return "parse" }

func (s *ParseStep) Execute(ctx context.Context, st *State) error {
	st.Parsed = s.Parser.Parse(st.Normalized)
	st.Stage = StageParsed
	return nil
}

// AssembleStep validates and fingerprints the receipt: Parsed ->
// Assembled. The only hard failure is a receipt without any identity.
type AssembleStep struct {
	Assembler receipt.Assembler
}

func (s *AssembleStep) Name() string { return "assemble" }

func (s *AssembleStep) Execute(ctx context.Context, st *State) error {
	r, err := s.Assembler.Assemble(st.Parsed.Header, st.Parsed.Items)
	if err != nil {
		return err
	}
	r.SourceRef = st.Doc.SourceRef
	st.Receipt = r
	st.Stage = StageAssembled
	return nil
}

// StoreStep persists the receipt behind the insert-if-absent contract.
// A fingerprint match short-circuits to the Duplicate terminal state.
type StoreStep struct {
	Store storage.ReceiptStore
}

func (s *StoreStep) Name() string { return "store" }

func (s *StoreStep) Execute(ctx context.Context, st *State) error {
	outcome, err := s.Store.InsertIfAbsent(ctx, st.Receipt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", storage.ErrTimeout, err)
		}
		return err
	}
	st.Outcome = outcome
	return nil
}
