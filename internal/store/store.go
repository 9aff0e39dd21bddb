// Package store persists processed documents and generated exams in
// SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scandoc/scandoc/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		context_summary TEXT NOT NULL DEFAULT '',
		cleaned_text TEXT NOT NULL DEFAULT '',
		latex TEXT NOT NULL DEFAULT '',
		filename TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exams (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		total_questions INTEGER NOT NULL DEFAULT 0,
		questions_json TEXT NOT NULL DEFAULT '',
		latex TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at);
	CREATE INDEX IF NOT EXISTS idx_documents_filename ON documents(filename);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertDocument stores a processed document. A missing ID or timestamp
// is filled in; the assigned ID is returned.
func (s *Store) InsertDocument(d model.DocumentRecord) (string, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO documents (id, title, category, status, context_summary, cleaned_text, latex, filename, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.Category, d.Status, d.ContextSummary, d.CleanedText, d.LaTeX, d.Filename, d.CreatedAt,
	)
	if err != nil {
		return "", err
	}
	return d.ID, nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(id string) (*model.DocumentRecord, error) {
	var d model.DocumentRecord
	err := s.db.QueryRow(
		`SELECT id, title, category, status, context_summary, cleaned_text, latex, filename, created_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Title, &d.Category, &d.Status, &d.ContextSummary, &d.CleanedText, &d.LaTeX, &d.Filename, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDocumentByFilename retrieves a document by its output filename.
func (s *Store) GetDocumentByFilename(filename string) (*model.DocumentRecord, error) {
	var d model.DocumentRecord
	err := s.db.QueryRow(
		`SELECT id, title, category, status, context_summary, cleaned_text, latex, filename, created_at
		 FROM documents WHERE filename = ?`, filename,
	).Scan(&d.ID, &d.Title, &d.Category, &d.Status, &d.ContextSummary, &d.CleanedText, &d.LaTeX, &d.Filename, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDocuments returns all documents, newest first.
func (s *Store) ListDocuments() ([]model.DocumentRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, title, category, status, context_summary, cleaned_text, latex, filename, created_at
		 FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []model.DocumentRecord
	for rows.Next() {
		var d model.DocumentRecord
		if err := rows.Scan(&d.ID, &d.Title, &d.Category, &d.Status, &d.ContextSummary, &d.CleanedText, &d.LaTeX, &d.Filename, &d.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document by ID.
func (s *Store) DeleteDocument(id string) error {
	res, err := s.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DocumentCount returns the number of stored documents.
func (s *Store) DocumentCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// InsertExam stores a generated exam and returns the assigned ID.
func (s *Store) InsertExam(e model.ExamRecord) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO exams (id, title, author, total_questions, questions_json, latex, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Author, e.TotalQuestions, e.QuestionsJSON, e.LaTeX, e.CreatedAt,
	)
	if err != nil {
		return "", err
	}
	return e.ID, nil
}

// GetExam retrieves an exam by ID.
func (s *Store) GetExam(id string) (*model.ExamRecord, error) {
	var e model.ExamRecord
	err := s.db.QueryRow(
		`SELECT id, title, author, total_questions, questions_json, latex, created_at
		 FROM exams WHERE id = ?`, id,
	).Scan(&e.ID, &e.Title, &e.Author, &e.TotalQuestions, &e.QuestionsJSON, &e.LaTeX, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListExams returns all exams, newest first.
func (s *Store) ListExams() ([]model.ExamRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, title, author, total_questions, questions_json, latex, created_at
		 FROM exams ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.ExamRecord
	for rows.Next() {
		var e model.ExamRecord
		if err := rows.Scan(&e.ID, &e.Title, &e.Author, &e.TotalQuestions, &e.QuestionsJSON, &e.LaTeX, &e.CreatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}
