package model

import "time"

// QuestionKind represents the answer format of an exam question.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindSingleChoice   QuestionKind = "single_choice"
	KindFreeText       QuestionKind = "free_text"
)

// TaskType classifies the cognitive demand of an exam question.
type TaskType string

const (
	TaskMemory         TaskType = "memory"
	TaskInterpretation TaskType = "interpretation"
	TaskTransfer       TaskType = "transfer"
)

// Question is one generated exam item.
type Question struct {
	Text       string       `json:"question"`
	Kind       QuestionKind `json:"type"`
	Choices    []string     `json:"choices,omitempty"`
	Answer     string       `json:"answer"`
	Difficulty int          `json:"difficulty"`
	TaskType   TaskType     `json:"task_type"`
}

// ExamRequest holds the parameters for one exam generation request.
// Both distributions are percentage maps that must sum to 100.
type ExamRequest struct {
	SourceText             string         `json:"source_text,omitempty"`
	Topics                 []string       `json:"topics,omitempty"`
	TotalQuestions         int            `json:"total_questions"`
	DifficultyDistribution map[string]int `json:"difficulty_distribution"`
	TaskDistribution       map[string]int `json:"task_distribution"`
	Title                  string         `json:"title,omitempty"`
	Author                 string         `json:"author,omitempty"`
}

// CleanStatus reports how the text normalization stage concluded.
type CleanStatus string

const (
	// CleanOK means the completion service returned usable corrected text.
	CleanOK CleanStatus = "cleaned"
	// CleanFellBack means the stage returned the original text unchanged
	// because the completion was empty or failed.
	CleanFellBack CleanStatus = "fell_back_to_original"
	// CleanEmptyInput means there was nothing to clean.
	CleanEmptyInput CleanStatus = "empty_input"
)

// CleanResult is the outcome of the text normalization stage.
type CleanResult struct {
	Text   string
	Status CleanStatus
}

// FormatStatus reports how the LaTeX generation stage concluded.
type FormatStatus string

const (
	// FormatGenerated means the completion service produced a structurally
	// valid document.
	FormatGenerated FormatStatus = "generated"
	// FormatFallback means the deterministic fallback document was
	// substituted after a failed or invalid completion.
	FormatFallback FormatStatus = "fallback"
	// FormatEmptyInput means the minimal empty document was emitted.
	FormatEmptyInput FormatStatus = "empty_input"
)

// FormatResult is the outcome of the LaTeX generation stage.
type FormatResult struct {
	Document string
	Status   FormatStatus
}

// ProcessOptions carries the optional per-request inputs of the document
// pipeline. All fields pass through into prompts unmodified.
type ProcessOptions struct {
	Title    string
	Category string
	Remarks  string
}

// ProcessResult is the assembled output of one document pipeline run.
type ProcessResult struct {
	ContextSummary   string
	Cleaned          CleanResult
	Document         FormatResult
	RecommendedTitle string
	EnhancedText     string
	KeyInformation   string
}

// DocumentRecord is a stored, processed document.
type DocumentRecord struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Category       string    `json:"category"`
	Status         string    `json:"status"`
	ContextSummary string    `json:"context_summary"`
	CleanedText    string    `json:"cleaned_text"`
	LaTeX          string    `json:"latex"`
	Filename       string    `json:"filename"`
	CreatedAt      time.Time `json:"created_at"`
}

// ExamRecord is a stored, generated exam.
type ExamRecord struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Author         string    `json:"author"`
	TotalQuestions int       `json:"total_questions"`
	QuestionsJSON  string    `json:"questions_json"`
	LaTeX          string    `json:"latex"`
	CreatedAt      time.Time `json:"created_at"`
}

// DifficultyBadge maps a 1..5 difficulty level to its display badge.
func DifficultyBadge(level int) string {
	switch {
	case level == 1 || level == 2:
		return "Easy"
	case level == 3 || level == 4:
		return "Medium"
	case level == 5:
		return "Hard"
	}
	return ""
}
