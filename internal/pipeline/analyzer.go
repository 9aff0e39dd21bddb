package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// defaultContextSummary is returned whenever context analysis fails.
const defaultContextSummary = "General academic document with mathematical content."

const analyzerInstructions = `You are an expert document analyzer. Your task is to quickly understand the context and type of academic documents.

Guidelines:
- Identify the subject area and document type
- Note key mathematical or scientific concepts
- Recognize structural patterns (homework problems, lecture notes, etc.)
- Assess the academic level and complexity
- Be concise but informative
- Focus on information that will improve OCR correction and LaTeX formatting`

// Analyzer classifies a source document so later stages can bias their
// prompts toward its subject and structure.
type Analyzer struct {
	llm Completer
	log *slog.Logger
}

func NewAnalyzer(c Completer, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{llm: c, log: logger}
}

// Analyze produces a short context summary of the source text. The prompt
// carries a unique per-call token so identical inputs are never served a
// byte-identical cached upstream response. Failure yields the generic
// default summary, never an error.
func (a *Analyzer) Analyze(ctx context.Context, text string) string {
	cacheBuster := uuid.NewString()[:8]

	var sb strings.Builder
	sb.WriteString("[Request ID: " + cacheBuster + "] ")
	sb.WriteString("Analyze the following OCR text and provide context understanding:\n\n")
	sb.WriteString("Text to analyze:\n" + text + "\n\n")
	sb.WriteString("Please provide a brief analysis covering:\n")
	sb.WriteString("1. Document type (homework, exam, notes, research, etc.)\n")
	sb.WriteString("2. Subject area (math, physics, chemistry, literature, etc.)\n")
	sb.WriteString("3. Key topics or concepts mentioned\n")
	sb.WriteString("4. Mathematical content type (equations, calculations, proofs, etc.)\n")
	sb.WriteString("5. Language and academic level\n")
	sb.WriteString("6. Structural elements (titles, sections, exercises, etc.)\n\n")
	sb.WriteString("Provide a concise analysis in 2-3 sentences that will help improve text cleaning and LaTeX formatting.")

	result := a.llm.Complete(ctx, sb.String(), analyzerInstructions, nil)
	if failed(result) {
		a.log.Warn("context analysis failed, using default summary")
		return defaultContextSummary
	}
	return strings.TrimSpace(result)
}
