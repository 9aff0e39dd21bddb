package store

import (
	"errors"
	"testing"
	"time"

	"github.com/scandoc/scandoc/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestDocument(t *testing.T, s *Store, title, filename string) string {
	t.Helper()
	id, err := s.InsertDocument(model.DocumentRecord{
		Title:          title,
		Category:       "Physics",
		Status:         "generated",
		ContextSummary: "summary for " + title,
		CleanedText:    "text for " + title,
		LaTeX:          `\documentclass{article}`,
		Filename:       filename,
	})
	if err != nil {
		t.Fatalf("insertTestDocument: %v", err)
	}
	return id
}

func TestDocumentCRUD(t *testing.T) {
	s := newTestStore(t)

	// Empty DB should return zero count and empty list.
	count, err := s.DocumentCount()
	if err != nil {
		t.Fatalf("DocumentCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 documents, got %d", count)
	}

	list, err := s.ListDocuments()
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}

	// Insert and retrieve.
	id := insertTestDocument(t, s, "Mechanics Notes", "mechanics.tex")
	if id == "" {
		t.Fatal("expected an assigned ID")
	}

	d, err := s.GetDocument(id)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if d.Title != "Mechanics Notes" {
		t.Errorf("title = %q", d.Title)
	}
	if d.CreatedAt.IsZero() {
		t.Error("created_at should be filled in")
	}

	byName, err := s.GetDocumentByFilename("mechanics.tex")
	if err != nil {
		t.Fatalf("GetDocumentByFilename: %v", err)
	}
	if byName.ID != id {
		t.Errorf("filename lookup returned %q, want %q", byName.ID, id)
	}

	// Delete.
	if err := s.DeleteDocument(id); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if _, err := s.GetDocument(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteDocument(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete err = %v, want ErrNotFound", err)
	}
}

func TestListDocumentsOrder(t *testing.T) {
	s := newTestStore(t)

	// Explicit timestamps so ordering does not depend on clock resolution.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, title := range []string{"first", "second", "third"} {
		if _, err := s.InsertDocument(model.DocumentRecord{
			Title:     title,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("InsertDocument: %v", err)
		}
	}

	list, err := s.ListDocuments()
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d documents", len(list))
	}
	if list[0].Title != "third" || list[2].Title != "first" {
		t.Errorf("documents not newest-first: %q, %q, %q", list[0].Title, list[1].Title, list[2].Title)
	}
}

func TestExamCRUD(t *testing.T) {
	s := newTestStore(t)

	id, err := s.InsertExam(model.ExamRecord{
		Title:          "Mechanics Exam",
		Author:         "scandoc",
		TotalQuestions: 5,
		QuestionsJSON:  `[{"question":"Q1"}]`,
		LaTeX:          `\documentclass{article}`,
	})
	if err != nil {
		t.Fatalf("InsertExam: %v", err)
	}

	e, err := s.GetExam(id)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if e.TotalQuestions != 5 {
		t.Errorf("total_questions = %d", e.TotalQuestions)
	}
	if e.Author != "scandoc" {
		t.Errorf("author = %q", e.Author)
	}

	if _, err := s.GetExam("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	exams, err := s.ListExams()
	if err != nil {
		t.Fatalf("ListExams: %v", err)
	}
	if len(exams) != 1 {
		t.Errorf("got %d exams", len(exams))
	}
}
