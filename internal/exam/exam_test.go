package exam

import (
	"context"
	"strings"
	"testing"

	"github.com/scandoc/scandoc/internal/llm"
	"github.com/scandoc/scandoc/internal/model"
	"github.com/scandoc/scandoc/internal/pipeline"
)

type scriptedCompleter struct {
	response string
	prompts  []string
}

func (m *scriptedCompleter) Complete(_ context.Context, prompt, _ string, _ llm.Info) string {
	m.prompts = append(m.prompts, prompt)
	return m.response
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		percents map[string]int
		want     map[string]int
	}{
		{
			name:     "even split",
			total:    10,
			percents: map[string]int{"easy": 50, "hard": 50},
			want:     map[string]int{"easy": 5, "hard": 5},
		},
		{
			name:     "exact percentage split",
			total:    10,
			percents: map[string]int{"easy": 70, "medium": 20, "hard": 10},
			want:     map[string]int{"easy": 7, "medium": 2, "hard": 1},
		},
		{
			name:     "remainder goes to largest",
			total:    10,
			percents: map[string]int{"memory": 34, "interpretation": 33, "transfer": 33},
			want:     map[string]int{"memory": 4, "interpretation": 3, "transfer": 3},
		},
		{
			name:     "equal weights break ties by key order",
			total:    10,
			percents: map[string]int{"a": 33, "b": 33, "c": 33},
			want:     map[string]int{"a": 4, "b": 3, "c": 3},
		},
		{
			name:     "weights not summing to 100 are normalized",
			total:    6,
			percents: map[string]int{"x": 1, "y": 2},
			want:     map[string]int{"x": 2, "y": 4},
		},
		{
			name:     "zero total",
			total:    0,
			percents: map[string]int{"x": 100},
			want:     map[string]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.total, tt.percents)
			if len(got) != len(tt.want) {
				t.Fatalf("Reconcile() = %v, want %v", got, tt.want)
			}
			sum := 0
			for key, n := range tt.want {
				if got[key] != n {
					t.Errorf("Reconcile()[%q] = %d, want %d", key, got[key], n)
				}
				sum += got[key]
			}
			if tt.total > 0 && sum != tt.total {
				t.Errorf("counts sum to %d, want %d", sum, tt.total)
			}
		})
	}
}

func TestReconcileIsDeterministic(t *testing.T) {
	percents := map[string]int{"a": 25, "b": 25, "c": 25, "d": 25}
	first := Reconcile(7, percents)
	for i := 0; i < 20; i++ {
		got := Reconcile(7, percents)
		for key := range first {
			if got[key] != first[key] {
				t.Fatalf("run %d differs: %v vs %v", i, got, first)
			}
		}
	}
}

const questionBatch = `[
  {"question": "What is F = ma?", "type": "free_text", "answer": "Newton's second law", "difficulty": 5, "task_type": "interpretation"},
  {"question": "Unit of force?", "type": "single_choice", "choices": ["Newton", "Joule", "Watt", "Pascal"], "answer": "Newton", "difficulty": 1, "task_type": "memory"}
]`

func TestGenerate(t *testing.T) {
	mock := &scriptedCompleter{response: "```json\n" + questionBatch + "\n```"}
	g := NewGenerator(mock, nil)

	questions, raw, err := g.Generate(context.Background(), model.ExamRequest{
		SourceText:             "physics notes",
		Topics:                 []string{"mechanics"},
		TotalQuestions:         2,
		DifficultyDistribution: map[string]int{"1": 50, "5": 50},
		TaskDistribution:       map[string]int{"memory": 50, "interpretation": 50},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if raw == "" {
		t.Error("raw completion should be returned")
	}
	if len(questions) != 2 {
		t.Fatalf("got %d questions, want 2", len(questions))
	}
	if questions[0].Kind != model.KindFreeText {
		t.Errorf("kind = %q", questions[0].Kind)
	}
	if questions[1].Choices[0] != "Newton" {
		t.Errorf("choices = %v", questions[1].Choices)
	}

	prompt := mock.prompts[0]
	if !strings.Contains(prompt, "physics notes") {
		t.Error("prompt should carry the source material")
	}
	if !strings.Contains(prompt, "mechanics") {
		t.Error("prompt should carry the topics")
	}
	if !strings.Contains(prompt, `"task_type"`) {
		t.Error("prompt should embed the question schema")
	}
}

func TestGenerateWithoutSourceUsesGeneralKnowledge(t *testing.T) {
	mock := &scriptedCompleter{response: questionBatch}
	g := NewGenerator(mock, nil)

	if _, _, err := g.Generate(context.Background(), model.ExamRequest{
		Topics:         []string{"algebra"},
		TotalQuestions: 2,
	}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(mock.prompts[0], "general knowledge") {
		t.Error("prompt should fall back to general knowledge mode")
	}
}

func TestGenerateFailures(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"error-tagged completion", "[error] backend down"},
		{"empty completion", ""},
		{"unparseable output", "Sure! Here are some questions for you."},
		{"empty array", "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(&scriptedCompleter{response: tt.response}, nil)
			questions, raw, err := g.Generate(context.Background(), model.ExamRequest{TotalQuestions: 2})
			if err == nil {
				t.Fatal("expected error")
			}
			if questions != nil {
				t.Errorf("questions = %v, want nil", questions)
			}
			if raw != tt.response {
				t.Errorf("raw = %q, want the completion text", raw)
			}
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain array", `[1,2]`, `[1,2]`},
		{"fenced array", "```json\n[1,2]\n```", `[1,2]`},
		{"chatty prefix", "Here you go: [1,2] enjoy", `[1,2]`},
		{"no array", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSONArray(tt.input); got != tt.want {
				t.Errorf("extractJSONArray(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRender(t *testing.T) {
	questions := []model.Question{
		{
			Text:       "Unit of force?",
			Kind:       model.KindSingleChoice,
			Choices:    []string{"Newton", "Joule", "Watt", "Pascal"},
			Answer:     "Newton",
			Difficulty: 1,
			TaskType:   model.TaskMemory,
		},
		{
			Text:       "Derive the equation of motion for 50% efficiency.",
			Kind:       model.KindFreeText,
			Answer:     "See derivation",
			Difficulty: 5,
			TaskType:   model.TaskTransfer,
		},
	}

	doc := Render(questions, "Mechanics Exam", "scandoc")

	if !pipeline.ValidateStructure(doc) {
		t.Fatal("rendered exam must validate")
	}
	for _, want := range []string{
		`\title{Mechanics Exam}`,
		`\author{scandoc}`,
		`\section*{Question 1}`,
		`\section*{Question 2}`,
		`\badge{easybg}{Easy}`,
		`\badge{hardbg}{Hard}`,
		`\begin{enumerate}[label=\Alph*.]`,
		`\item Newton`,
		`\noindent\rule{\textwidth}{0.4pt}`,
		`\textbf{Answer:} Newton`,
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("rendered exam missing %q", want)
		}
	}
	// Special characters in question text are escaped for compilation.
	if !strings.Contains(doc, `50\% efficiency`) {
		t.Error("question text should be escaped")
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	questions := []model.Question{{Text: "Q", Kind: model.KindFreeText, Difficulty: 3}}
	if Render(questions, "T", "A") != Render(questions, "T", "A") {
		t.Error("rendering the same batch twice must yield identical output")
	}
}

func TestRenderRaw(t *testing.T) {
	doc := RenderRaw("unparseable model output", "Broken Exam", "")
	if !pipeline.ValidateStructure(doc) {
		t.Fatal("raw render must still validate")
	}
	if !strings.Contains(doc, "% Error:") {
		t.Error("raw render should carry the error comment")
	}
	if !strings.Contains(doc, "unparseable model output") {
		t.Error("raw render should carry the model output")
	}
}

func TestEvaluatePassesThroughCompletion(t *testing.T) {
	mock := &scriptedCompleter{response: `{"verdict": "correct", "score": 1.0, "feedback": "Right."}`}
	g := NewGenerator(mock, nil)

	got := g.Evaluate(context.Background(), model.Question{
		Text:    "Unit of force?",
		Choices: []string{"Newton", "Joule"},
		Answer:  "Newton",
	}, "Newton")

	if got != mock.response {
		t.Errorf("Evaluate() = %q, want verbatim completion", got)
	}
	prompt := mock.prompts[0]
	for _, want := range []string{"QUESTION:", "EXPECTED ANSWER: Newton", "STUDENT ANSWER: Newton", "CHOICES:"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
