package pipeline

import (
	"context"
	"log/slog"
	"strings"
)

const (
	// titleSampleLen bounds how much document text goes into the prompt.
	titleSampleLen = 2000
	// titleMaxLen caps the returned title length.
	titleMaxLen = 100

	// titleDefaultEmpty is returned for empty input without an LLM call.
	titleDefaultEmpty = "Untitled Document"
	// titleDefaultFailed is returned when the completion fails or is empty.
	titleDefaultFailed = "Document Analysis"
)

const titleInstructions = `You are an expert at creating document titles. Generate concise, professional titles that accurately reflect document content.

Guidelines:
- Maximum 8 words
- Clear and descriptive
- Professional tone
- Captures main topic/subject
- Uses appropriate language (match document language)
- No unnecessary words or filler
- Suitable for academic/business contexts
- Output only the title, nothing else`

// TitleRecommender derives a concise title from document text.
type TitleRecommender struct {
	llm Completer
	log *slog.Logger
}

func NewTitleRecommender(c Completer, logger *slog.Logger) *TitleRecommender {
	if logger == nil {
		logger = slog.Default()
	}
	return &TitleRecommender{llm: c, log: logger}
}

// Recommend suggests a title for the given text. Empty input short-circuits
// to a placeholder without calling the completion service.
func (t *TitleRecommender) Recommend(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return titleDefaultEmpty
	}

	sample := text
	if len(sample) > titleSampleLen {
		sample = sample[:titleSampleLen]
	}

	var sb strings.Builder
	sb.WriteString("Based on the following document content, suggest a concise and descriptive title (maximum 8 words).\n\n")
	sb.WriteString("Document content:\n" + sample + "\n\n")
	sb.WriteString("Please provide a title that:\n")
	sb.WriteString("- Captures the main topic or subject\n")
	sb.WriteString("- Is concise and professional\n")
	sb.WriteString("- Uses the same language as the document content\n\n")
	sb.WriteString("Respond with only the title, no explanations or additional text.")

	result := t.llm.Complete(ctx, sb.String(), titleInstructions, nil)
	if failed(result) {
		t.log.Warn("title recommendation failed, using default")
		return titleDefaultFailed
	}

	title := stripQuotes(strings.TrimSpace(result))
	if len(title) > titleMaxLen {
		title = strings.TrimSpace(title[:titleMaxLen])
	}
	return title
}

// stripQuotes removes one layer of surrounding single or double quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
