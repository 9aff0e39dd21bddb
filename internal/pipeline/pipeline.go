package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/scandoc/scandoc/internal/llm"
	"github.com/scandoc/scandoc/internal/model"
)

// ErrNoText is returned when a request carries nothing to process.
var ErrNoText = errors.New("no text could be extracted")

// Completer is the completion-service boundary every stage talks to.
// An error-tagged or empty result signals failure; no stage ever sees an
// error value from a completion.
type Completer interface {
	Complete(ctx context.Context, prompt, system string, info llm.Info) string
}

// failed reports whether a completion result counts as a failure: empty
// output and the error-tagged string are treated identically.
func failed(result string) bool {
	return strings.TrimSpace(result) == "" || llm.IsError(result)
}

// Pipeline orchestrates the document reconstruction stages.
type Pipeline struct {
	analyzer  *Analyzer
	cleaner   *Cleaner
	formatter *Formatter
	titles    *TitleRecommender
	llm       Completer
	log       *slog.Logger
}

// New wires the pipeline stages around one shared completion client.
func New(c Completer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		analyzer:  NewAnalyzer(c, logger),
		cleaner:   NewCleaner(c, logger),
		formatter: NewFormatter(c, logger),
		titles:    NewTitleRecommender(c, logger),
		llm:       c,
		log:       logger,
	}
}

// ProcessContextAware runs the full analyze -> clean -> format sequence.
// The context summary produced by the analyzer biases both later stages.
func (p *Pipeline) ProcessContextAware(ctx context.Context, raw string, opts model.ProcessOptions) (*model.ProcessResult, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrNoText
	}

	summary := p.analyzer.Analyze(ctx, raw)
	p.log.Info("context analysis complete", "summary_len", len(summary))

	cleaned := p.cleaner.Clean(ctx, raw, summary, opts.Remarks)
	doc := p.formatter.Format(ctx, cleaned.Text, summary, opts)

	result := &model.ProcessResult{
		ContextSummary: summary,
		Cleaned:        cleaned,
		Document:       doc,
	}
	p.recommendTitleIfMissing(ctx, result, opts)
	return result, nil
}

// ProcessLegacy runs the clean -> format sequence without context analysis.
func (p *Pipeline) ProcessLegacy(ctx context.Context, raw string, opts model.ProcessOptions) (*model.ProcessResult, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrNoText
	}

	cleaned := p.cleaner.Clean(ctx, raw, "", opts.Remarks)
	doc := p.formatter.Format(ctx, cleaned.Text, "", opts)

	result := &model.ProcessResult{
		Cleaned:  cleaned,
		Document: doc,
	}
	p.recommendTitleIfMissing(ctx, result, opts)
	return result, nil
}

// ProcessComplete runs the context-aware sequence plus the best-effort
// structure-enhancement and key-information passes. Neither pass can
// abort the pipeline; on failure each leaves its input untouched.
func (p *Pipeline) ProcessComplete(ctx context.Context, raw string, opts model.ProcessOptions) (*model.ProcessResult, error) {
	result, err := p.ProcessContextAware(ctx, raw, opts)
	if err != nil {
		return nil, err
	}

	result.EnhancedText = p.enhanceStructure(ctx, result.Cleaned.Text, opts.Title, opts.Category)
	result.KeyInformation = p.extractKeyInformation(ctx, result.EnhancedText)
	return result, nil
}

// recommendTitleIfMissing fills RecommendedTitle from the cleaned text,
// which carries a better signal than the raw OCR output.
func (p *Pipeline) recommendTitleIfMissing(ctx context.Context, result *model.ProcessResult, opts model.ProcessOptions) {
	if strings.TrimSpace(opts.Title) != "" {
		return
	}
	result.RecommendedTitle = p.titles.Recommend(ctx, result.Cleaned.Text)
}

const structureInstructions = `You are a document structure expert. Your task is to improve the organization and readability of text while preserving all original content.

Guidelines:
- Add clear headings and subheadings where appropriate
- Organize content into logical sections
- Improve paragraph breaks and flow
- Maintain all original information
- Use consistent formatting throughout
- Do not add new content, only reorganize existing content
- Output clean, well-structured text without LaTeX formatting`

func (p *Pipeline) enhanceStructure(ctx context.Context, text, title, category string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	var sb strings.Builder
	sb.WriteString("Please enhance the structure and organization of the following document text.\n\n")
	if title != "" {
		sb.WriteString("Document title: " + title + "\n")
	}
	if category != "" {
		sb.WriteString("Document category: " + category + "\n")
	}
	sb.WriteString("\nText to enhance:\n" + text)

	result := p.llm.Complete(ctx, sb.String(), structureInstructions, nil)
	if failed(result) {
		p.log.Warn("structure enhancement failed, keeping input")
		return text
	}
	return strings.TrimSpace(result)
}

const keyInfoInstructions = `You are a document analysis expert. Extract key information from documents and provide structured summaries.

Guidelines:
- Identify the main topic and subject matter
- Extract key concepts, terms, and facts
- Determine document type and purpose
- Provide a concise but informative summary
- List important dates, numbers, or references
- Be factual and objective
- Output in a clear, structured format`

func (p *Pipeline) extractKeyInformation(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	prompt := "Analyze the following document text and extract key information.\n\n" +
		"Text to analyze:\n" + text + "\n\n" +
		"Please provide: main topic, key concepts, document type, language, " +
		"important dates or numbers, and a 2-3 sentence summary."

	result := p.llm.Complete(ctx, prompt, keyInfoInstructions, nil)
	if failed(result) {
		p.log.Warn("key information extraction failed")
		return ""
	}
	return strings.TrimSpace(result)
}
