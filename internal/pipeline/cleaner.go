package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/scandoc/scandoc/internal/model"
)

const cleanerInstructions = `You are an expert text corrector specialized in cleaning OCR-parsed documents.
Your task is to correct inaccuracies, misread characters, and structural errors in raw OCR text.

Guidelines:
- Detect the main language (e.g., German, English, or another) and use it consistently.
- Correct typical OCR mistakes:
- Replace misread numbers or letters (e.g., "1,6N" vs "16N", "O" vs "0").
- Fix broken mathematical notation (e.g., "10°" -> "10^", "x , 2" -> "x^2").
- Normalize spacing and punctuation.
- If a word, number, or symbol cannot be confidently inferred, keep it but mark it as [UNCLEAR: ...].
- Do not translate the content into another language unless the OCR clearly switched incorrectly mid-text.
- Preserve the logical meaning of the original text as much as possible.
- Output only the corrected plain text. Do not add LaTeX, formatting, or explanations.
- Ensure the final text is coherent and readable.
- Structure the text into paragraphs where appropriate.`

// Cleaner turns noisy OCR output into readable prose.
type Cleaner struct {
	llm Completer
	log *slog.Logger
}

func NewCleaner(c Completer, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{llm: c, log: logger}
}

// Clean corrects OCR noise in raw text. A context summary and user remarks,
// when present, are appended to the prompt to aid domain-specific
// corrections. Normalization failure never discards source content: the
// fallback is the original text, reported as such in the result status.
func (c *Cleaner) Clean(ctx context.Context, raw, contextSummary, remarks string) model.CleanResult {
	if strings.TrimSpace(raw) == "" {
		return model.CleanResult{Status: model.CleanEmptyInput}
	}

	var sb strings.Builder
	sb.WriteString("Please clean up the text " + raw + ". Do not add content by yourself. ")
	sb.WriteString("Do not give any explanations. Just return the cleaned text.")
	if strings.TrimSpace(contextSummary) != "" {
		sb.WriteString("\n\nContext analysis: " + contextSummary)
	}
	if strings.TrimSpace(remarks) != "" {
		sb.WriteString("\nUser remarks: " + strings.TrimSpace(remarks))
	}
	if strings.TrimSpace(contextSummary) != "" || strings.TrimSpace(remarks) != "" {
		sb.WriteString("\n\nUse this context to make more accurate corrections, especially for technical terms, mathematical notation, and subject-specific vocabulary.")
	}

	result := c.llm.Complete(ctx, sb.String(), cleanerInstructions, nil)
	if failed(result) {
		c.log.Warn("text cleaning failed, falling back to original", "input_len", len(raw))
		return model.CleanResult{Text: raw, Status: model.CleanFellBack}
	}

	cleaned := strings.TrimSpace(result)
	c.log.Info("text cleaning complete", "input_len", len(raw), "output_len", len(cleaned))
	return model.CleanResult{Text: cleaned, Status: model.CleanOK}
}
