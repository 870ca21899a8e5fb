package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/finbase/receipt-insights/internal/token"
)

// DefaultModelName is the Gemini model used for token extraction.
const DefaultModelName = "gemini-2.5-flash"

// GeminiExtractor extracts positioned tokens from receipt images and PDFs
// using Gemini vision.
type GeminiExtractor struct {
	model string
}

// NewGeminiExtractor returns an extractor using the given model, or the
// default when model is empty.
func NewGeminiExtractor(model string) *GeminiExtractor {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiExtractor{model: model}
}

const extractPrompt = "You are an OCR token extractor for retail receipts.\n\n" +
	"Task:\n" +
	"- Extract EVERY visible text token from the attached receipt.\n" +
	"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
	"- Output a JSON array of objects.\n\n" +
	"Each object must have these fields:\n" +
	"- \"text\": string, the token exactly as printed\n" +
	"- \"x\": number, left edge of the token's bounding box\n" +
	"- \"y\": number, top edge of the token's bounding box\n" +
	"- \"w\": number, bounding box width\n" +
	"- \"h\": number, bounding box height\n" +
	"- \"confidence\": number between 0 and 1\n\n" +
	"Rules:\n" +
	"- Keep tokens in reading order, top to bottom then left to right.\n" +
	"- Do NOT merge separate tokens; prices and descriptions stay separate.\n" +
	"- Return ONLY valid raw JSON.\n" +
	"- Do NOT wrap the response in code fences.\n" +
	"- Output must begin with \"[\" and end with \"]\".\n"

type rawTokenJSON struct {
	Text       string  `json:"text"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	Confidence float64 `json:"confidence"`
}

// Extract implements Extractor. The call is bounded by the caller's
// context; a deadline expiry surfaces as ErrTimeout.
func (e *GeminiExtractor) Extract(ctx context.Context, doc Document) ([]token.RawToken, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create genai client: %v", ErrFailed, err)
	}

	mime := doc.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: extractPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mime,
						Data:     doc.Data,
					},
				},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, e.model, contents, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: generate content: %v", ErrFailed, err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("%w: empty response from model", ErrFailed)
	}

	clean := cleanModelJSON(rawText)

	var parsed []rawTokenJSON
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return nil, fmt.Errorf("%w: unmarshal JSON: %v", ErrFailed, err)
	}

	toks := make([]token.RawToken, 0, len(parsed))
	for _, t := range parsed {
		toks = append(toks, token.RawToken{
			Text:       t.Text,
			Box:        token.Box{X: t.X, Y: t.Y, W: t.W, H: t.H},
			Confidence: t.Confidence,
		})
	}
	return toks, nil
}

// cleanModelJSON strips Markdown fences and surrounding junk when the
// model ignores the raw-JSON instruction.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}

var _ Extractor = (*GeminiExtractor)(nil)
