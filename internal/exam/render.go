package exam

import (
	"strconv"
	"strings"

	"github.com/scandoc/scandoc/internal/model"
	"github.com/scandoc/scandoc/internal/pipeline"
)

// examPreamble is the fixed preamble of every rendered exam. The badge
// command colors a difficulty label: green for easy, yellow for medium,
// red for hard.
const examPreamble = `\documentclass{article}
\usepackage[utf8]{inputenc}
\usepackage{amsmath,amssymb}
\usepackage{geometry}
\usepackage{enumitem}
\usepackage{xcolor}
\usepackage[most]{tcolorbox}

\geometry{margin=1in}

\definecolor{easybg}{HTML}{DFF0D8}
\definecolor{mediumbg}{HTML}{FCF8E3}
\definecolor{hardbg}{HTML}{F2DEDE}

\newcommand{\badge}[2]{\begin{tcolorbox}[colback=#1,boxrule=0pt,arc=2pt,left=4pt,right=4pt,top=2pt,bottom=2pt,width=auto,nobeforeafter]\small\textbf{#2}\end{tcolorbox}}`

// Render lays out a question batch as a complete LaTeX document. The
// output is a pure function of its inputs: no completion calls, stable
// ordering, and it always passes structural validation.
func Render(questions []model.Question, title, author string) string {
	var sb strings.Builder
	writeHeader(&sb, title, author)

	for i, q := range questions {
		sb.WriteString("\\section*{Question " + strconv.Itoa(i+1) + "}\n\n")
		if q.TaskType != "" {
			sb.WriteString("\\textit{" + pipeline.EscapeLaTeX(string(q.TaskType)) + "}\\quad\n")
		}
		sb.WriteString(badgeFor(q.Difficulty) + "\n\n")
		sb.WriteString(pipeline.EscapeLaTeX(q.Text) + "\n\n")

		switch q.Kind {
		case model.KindFreeText:
			sb.WriteString("\\vspace{0.5em}\n")
			sb.WriteString("\\noindent\\rule{\\textwidth}{0.4pt}\n\n")
			sb.WriteString("\\noindent\\rule{\\textwidth}{0.4pt}\n\n")
		default:
			sb.WriteString("\\begin{enumerate}[label=\\Alph*.]\n")
			for _, choice := range q.Choices {
				sb.WriteString("\\item " + pipeline.EscapeLaTeX(choice) + "\n")
			}
			sb.WriteString("\\end{enumerate}\n\n")
		}

		if q.Answer != "" {
			sb.WriteString("\\textbf{Answer:} " + pipeline.EscapeLaTeX(q.Answer) + "\n\n")
		}
	}

	sb.WriteString("\\end{document}")
	return sb.String()
}

// RenderRaw builds a document around an unparseable generation result so
// the user still gets the model output back instead of nothing.
func RenderRaw(raw, title, author string) string {
	var sb strings.Builder
	writeHeader(&sb, title, author)
	sb.WriteString("% Error: the generated exam could not be parsed as structured questions.\n")
	sb.WriteString("% The raw model output follows.\n\n")
	sb.WriteString(pipeline.EscapeLaTeX(raw))
	sb.WriteString("\n\n\\end{document}")
	return sb.String()
}

func writeHeader(sb *strings.Builder, title, author string) {
	if title == "" {
		title = "Exam"
	}
	sb.WriteString(examPreamble)
	sb.WriteString("\n\n\\title{" + pipeline.EscapeLaTeX(title) + "}\n")
	if author != "" {
		sb.WriteString("\\author{" + pipeline.EscapeLaTeX(author) + "}\n")
	}
	sb.WriteString("\\date{\\today}\n\n")
	sb.WriteString("\\begin{document}\n\\maketitle\n\n")
}

func badgeFor(difficulty int) string {
	switch model.DifficultyBadge(difficulty) {
	case "Easy":
		return `\badge{easybg}{Easy}`
	case "Hard":
		return `\badge{hardbg}{Hard}`
	default:
		return `\badge{mediumbg}{Medium}`
	}
}
