package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/scandoc/scandoc/internal/model"
)

// latexPreamble is the fixed preamble of every fallback document.
const latexPreamble = `\documentclass{article}
\usepackage[utf8]{inputenc}
\usepackage{amsmath,amssymb}
\usepackage{csquotes}
\usepackage{hyperref}
\usepackage{graphicx}
\usepackage{geometry}
\usepackage{fancyhdr}
\usepackage{titlesec}

\geometry{margin=1in}
\pagestyle{fancy}
\fancyhf{}
\rhead{\thepage}

\titleformat{\section}
  {\Large\bfseries}{\thesection}{1em}{}
\titleformat{\subsection}
  {\large\bfseries}{\thesubsection}{1em}{}

\allowdisplaybreaks`

const formatterInstructions = `You are an expert LaTeX formatter.
Your job is to transform messy OCR-parsed text into a clean, compilable LaTeX document.

Rules:
- Always output a complete LaTeX file with preamble, \begin{document}, and \end{document}.
- If the first line looks like a title, use \title{} and \maketitle.
- Headings/subheadings -> \section{} / \subsection{}.
- Lists:
- Lines starting with "-" or a bullet -> itemize.
- Numbered lines (1., 2., a)) -> enumerate.
- Mathematical expressions (e.g., x^2, a/b, sums, integrals, <=, >=) -> convert into LaTeX math mode ($...$ or \[...\]).
- Escape LaTeX special characters (% & _ # $ { }).
- If text is unreadable or uncertain, wrap it in \texttt{[UNCLEAR: ...]}.
- Preserve paragraph breaks.
- Do not explain. Output only the LaTeX code.
- Ensure the final output compiles without errors.`

// formatRules is the fixed rule set shared by both prompt modes.
const formatRules = `Specific formatting rules:
- Use this preamble exactly:

\documentclass{article}
\usepackage[utf8]{inputenc}
\usepackage{amsmath,amssymb}
\usepackage{csquotes}
\usepackage{hyperref}
\usepackage{graphicx}
\usepackage{geometry}

- Insert \title{}, \author{} (if available), and \date{} if the OCR text contains them. Always add \maketitle after \begin{document}.
- Convert headings into \section{} and \subsection{}.
- Place each exercise or problem statement into its own subsection if possible.
- Format math cleanly using \[ ... \] for displayed equations and $...$ for inline math.
- Always use proper decimal notation: 1,234.56 (dot for decimals, comma for thousands).
- If the OCR produced strange fragments or broken characters, replace them with \texttt{[UNCLEAR: ...]} inside the text, not inside math mode.
- Escape LaTeX special characters (% & _ # $ { }).
- Ensure equations are readable and consistent (e.g., \frac for fractions, \cdot for multiplication).
- Only return the LaTeX code, no explanations.`

// Formatter converts normalized text into a complete LaTeX document,
// falling back to a deterministic synthetic document when the completion
// service fails or returns structurally invalid output.
type Formatter struct {
	llm Completer
	log *slog.Logger
}

func NewFormatter(c Completer, logger *slog.Logger) *Formatter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Formatter{llm: c, log: logger}
}

// Format generates a LaTeX document from normalized text. A non-empty
// context summary selects the context-aware prompt; otherwise the legacy
// prompt is used. Both modes share post-processing, validation and
// fallback behavior, so the result always contains the three required
// structural markers.
func (f *Formatter) Format(ctx context.Context, text, contextSummary string, opts model.ProcessOptions) model.FormatResult {
	if strings.TrimSpace(text) == "" {
		return model.FormatResult{
			Document: emptyDocument(opts.Title),
			Status:   model.FormatEmptyInput,
		}
	}

	prompt := buildFormatPrompt(text, contextSummary, opts.Remarks)
	result := f.llm.Complete(ctx, prompt, formatterInstructions, nil)
	if failed(result) {
		f.log.Warn("latex generation failed, building fallback document")
		return model.FormatResult{
			Document: fallbackDocument(text, opts.Title, opts.Category),
			Status:   model.FormatFallback,
		}
	}

	doc := postProcess(result)
	if !ValidateStructure(doc) {
		f.log.Warn("generated latex failed structural validation, building fallback document")
		return model.FormatResult{
			Document: fallbackDocument(text, opts.Title, opts.Category),
			Status:   model.FormatFallback,
		}
	}

	return model.FormatResult{Document: doc, Status: model.FormatGenerated}
}

func buildFormatPrompt(text, contextSummary, remarks string) string {
	var sb strings.Builder
	if contextSummary != "" {
		sb.WriteString("[Request ID: " + uuid.NewString()[:8] + "] ")
	}
	sb.WriteString("Please convert the OCR text into a clean, compilable LaTeX document.\n\n")
	sb.WriteString(formatRules)
	if contextSummary != "" {
		sb.WriteString("\n\nContext Analysis: " + contextSummary)
		sb.WriteString("\n\nUse this context to make better formatting decisions and ensure mathematical notation is appropriate for the subject area.")
	}
	if strings.TrimSpace(remarks) != "" {
		sb.WriteString("\n\nUser remarks: " + strings.TrimSpace(remarks))
	}
	sb.WriteString("\n\nOCR Text:\n")
	sb.WriteString(text)
	return sb.String()
}

// postProcess cleans a raw completion into a candidate document: markdown
// fences stripped, whitespace trimmed, undecodable bytes dropped, and the
// first and last lines removed when more than two remain (the model tends
// to echo a wrapper line on each end).
func postProcess(content string) string {
	content = strings.ReplaceAll(content, "```latex", "")
	content = strings.ReplaceAll(content, "```", "")
	content = strings.TrimSpace(content)
	content = strings.ToValidUTF8(content, "")
	return trimWrapperLines(content)
}

func trimWrapperLines(content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) <= 2 {
		return content
	}
	return strings.Join(lines[1:len(lines)-1], "\n")
}

// ValidateStructure reports whether a document carries the three markers
// required for compilation.
func ValidateStructure(doc string) bool {
	return strings.Contains(doc, `\documentclass`) &&
		strings.Contains(doc, `\begin{document}`) &&
		strings.Contains(doc, `\end{document}`)
}

// fallbackDocument builds a deterministic document from the text alone.
// It makes no external calls and always validates.
func fallbackDocument(text, title, category string) string {
	var sb strings.Builder
	sb.WriteString(latexPreamble)
	sb.WriteString("\n\n\\begin{document}\n\n")
	if title != "" {
		sb.WriteString("\\title{" + EscapeLaTeX(title) + "}\n")
		sb.WriteString("\\author{scandoc}\n")
		sb.WriteString("\\date{\\today}\n")
		sb.WriteString("\\maketitle\n\n")
	}
	if category != "" {
		sb.WriteString("\\section*{Category: " + EscapeLaTeX(category) + "}\n\n")
	}
	sb.WriteString(EscapeLaTeX(text))
	sb.WriteString("\n\n\\end{document}")
	return sb.String()
}

// emptyDocument is the minimal valid document emitted for empty input.
func emptyDocument(title string) string {
	var sb strings.Builder
	sb.WriteString(latexPreamble)
	sb.WriteString("\n\n\\begin{document}\n\n")
	if title != "" {
		sb.WriteString("\\title{" + EscapeLaTeX(title) + "}\n")
		sb.WriteString("\\author{scandoc}\n")
		sb.WriteString("\\date{\\today}\n")
		sb.WriteString("\\maketitle\n\n")
	}
	sb.WriteString("\\section{Empty Document}\n\n")
	sb.WriteString("No content was provided for processing.\n\n")
	sb.WriteString("\\end{document}")
	return sb.String()
}
