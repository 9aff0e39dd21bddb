// Package exam synthesizes practice exams from reconstructed documents:
// question generation through the completion service, deterministic LaTeX
// rendering, and answer evaluation against a fixed rubric.
package exam

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/scandoc/scandoc/internal/llm"
	"github.com/scandoc/scandoc/internal/model"
	"github.com/scandoc/scandoc/internal/pipeline"
)

const generatorInstructions = `You are an expert exam creator. Generate high-quality exam questions from source material.

Guidelines:
- Questions must be answerable from the source material (or general knowledge when no material is given)
- Distribute difficulty and task types exactly as requested
- Multiple choice questions need exactly 4 plausible choices
- Free text questions need a model answer
- If source material is unclear, mark uncertain references as [UNCLEAR]
- Output ONLY a JSON array, no explanations, no markdown fences`

// questionSchema documents the contract each generated question must follow.
// It is embedded verbatim in the generation prompt.
const questionSchema = `[
  {
    "question": "the question text",
    "type": "multiple_choice" | "single_choice" | "free_text",
    "choices": ["A", "B", "C", "D"],
    "answer": "the correct answer",
    "difficulty": 1-5,
    "task_type": "memory" | "interpretation" | "transfer"
  }
]`

// Generator creates exam question batches through the completion service.
type Generator struct {
	llm pipeline.Completer
	log *slog.Logger
}

func NewGenerator(c pipeline.Completer, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{llm: c, log: logger}
}

// Reconcile converts percentage weights into absolute question counts that
// sum exactly to total. Each category gets the floor of its share; the
// rounding remainder goes to the category with the largest weight, ties
// broken by key order so the result is deterministic.
func Reconcile(total int, percents map[string]int) map[string]int {
	counts := make(map[string]int, len(percents))
	if total <= 0 || len(percents) == 0 {
		return counts
	}

	weightSum := 0
	for _, p := range percents {
		weightSum += p
	}
	if weightSum <= 0 {
		return counts
	}

	assigned := 0
	for key, p := range percents {
		n := total * p / weightSum
		counts[key] = n
		assigned += n
	}

	if rem := total - assigned; rem > 0 {
		keys := make([]string, 0, len(percents))
		for key := range percents {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		largest := keys[0]
		for _, key := range keys[1:] {
			if percents[key] > percents[largest] {
				largest = key
			}
		}
		counts[largest] += rem
	}
	return counts
}

// Generate produces a question batch for the given request. The raw
// completion text is returned alongside the parsed questions so callers
// can still render a document when parsing fails.
func (g *Generator) Generate(ctx context.Context, req model.ExamRequest) ([]model.Question, string, error) {
	prompt := buildGeneratePrompt(req)

	raw := g.llm.Complete(ctx, prompt, generatorInstructions, nil)
	if strings.TrimSpace(raw) == "" || llm.IsError(raw) {
		return nil, raw, fmt.Errorf("exam generation failed: %s", raw)
	}

	var questions []model.Question
	payload := extractJSONArray(raw)
	if err := json.Unmarshal([]byte(payload), &questions); err != nil {
		return nil, raw, fmt.Errorf("parse exam response: %w", err)
	}
	if len(questions) == 0 {
		return nil, raw, fmt.Errorf("exam response contained no questions")
	}

	g.log.Info("exam batch generated", "questions", len(questions), "requested", req.TotalQuestions)
	return questions, raw, nil
}

func buildGeneratePrompt(req model.ExamRequest) string {
	var sb strings.Builder
	sb.WriteString("Generate " + strconv.Itoa(req.TotalQuestions) + " exam questions")
	if len(req.Topics) > 0 {
		sb.WriteString(" about the following topics: " + strings.Join(req.Topics, ", "))
	}
	sb.WriteString(".\n\n")

	if strings.TrimSpace(req.SourceText) != "" {
		sb.WriteString("Source material:\n" + req.SourceText + "\n\n")
	} else {
		sb.WriteString("No source material is provided; use general knowledge of the topics.\n\n")
	}

	writeDistribution(&sb, "Difficulty distribution (difficulty level -> number of questions):",
		Reconcile(req.TotalQuestions, req.DifficultyDistribution))
	writeDistribution(&sb, "Task type distribution (task type -> number of questions):",
		Reconcile(req.TotalQuestions, req.TaskDistribution))

	sb.WriteString("Each question must be a JSON object following this schema exactly:\n")
	sb.WriteString(questionSchema)
	sb.WriteString("\n\nReturn only the JSON array.")
	return sb.String()
}

func writeDistribution(sb *strings.Builder, heading string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	sb.WriteString(heading + "\n")
	for _, key := range keys {
		sb.WriteString("- " + key + ": " + strconv.Itoa(counts[key]) + "\n")
	}
	sb.WriteString("\n")
}

// extractJSONArray strips markdown fences and isolates the outermost JSON
// array so chatty completions still parse.
func extractJSONArray(raw string) string {
	s := strings.ReplaceAll(raw, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

const evaluatorInstructions = `You are an exam evaluator. Grade student answers fairly and consistently.

Scoring anchors:
- correct: the answer is right (1.0 points)
- partially correct: the answer shows understanding but is incomplete or imprecise (0.5 points)
- incorrect: the answer is wrong or missing (0.0 points)

For open-ended questions also judge the reasoning quality, not just the conclusion.

Respond with a JSON object of this exact shape:
{"verdict": "correct" | "partially correct" | "incorrect", "score": 1.0 | 0.5 | 0.0, "feedback": "one or two sentences"}`

// Evaluate grades a student answer against a question. The completion is
// returned as-is; callers decide whether to parse or relay it verbatim.
func (g *Generator) Evaluate(ctx context.Context, question model.Question, answer string) string {
	var sb strings.Builder
	sb.WriteString("QUESTION: " + question.Text + "\n")
	if len(question.Choices) > 0 {
		sb.WriteString("CHOICES: " + strings.Join(question.Choices, "; ") + "\n")
	}
	sb.WriteString("EXPECTED ANSWER: " + question.Answer + "\n")
	sb.WriteString("STUDENT ANSWER: " + answer + "\n")
	return g.llm.Complete(ctx, sb.String(), evaluatorInstructions, nil)
}
