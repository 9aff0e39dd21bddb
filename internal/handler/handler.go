// Package handler exposes the document pipeline and exam generator over
// HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/scandoc/scandoc/internal/exam"
	"github.com/scandoc/scandoc/internal/latex"
	"github.com/scandoc/scandoc/internal/llm"
	"github.com/scandoc/scandoc/internal/model"
	"github.com/scandoc/scandoc/internal/ocr"
	"github.com/scandoc/scandoc/internal/pipeline"
	"github.com/scandoc/scandoc/internal/store"
)

// maxUploadBytes bounds the multipart body of a scan request.
const maxUploadBytes = 32 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	pipeline  *pipeline.Pipeline
	generator *exam.Generator
	ocr       *ocr.Client
	compiler  *latex.Compiler
	llm       pipeline.Completer
	outputDir string
	log       *slog.Logger
}

// New creates a new Handler. The output directory is created if missing.
func New(s *store.Store, p *pipeline.Pipeline, g *exam.Generator, o *ocr.Client, c *latex.Compiler, completer pipeline.Completer, outputDir string, logger *slog.Logger) (*Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Handler{
		store:     s,
		pipeline:  p,
		generator: g,
		ocr:       o,
		compiler:  c,
		llm:       completer,
		outputDir: outputDir,
		log:       logger,
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Post("/scan/process", h.handleScanProcess)
	r.Get("/documents", h.handleListDocuments)
	r.Get("/download/{filename}", h.handleDownload)
	r.Delete("/documents/{filename}", h.handleDeleteDocument)
	r.Post("/exam/generate", h.handleExamGenerate)
	r.Post("/exam/pdf", h.handleExamPDF)
	r.Post("/exam/evaluate", h.handleExamEvaluate)
	r.Post("/llm/call", h.handleLLMCall)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"pdflatex_present": h.compiler.Available(),
	})
}

// ProcessingResponse is the JSON body returned by /scan/process.
type ProcessingResponse struct {
	ID               string `json:"id"`
	Filename         string `json:"filename"`
	DownloadURL      string `json:"download_url"`
	Status           string `json:"status"`
	CleanStatus      string `json:"clean_status"`
	CleanedText      string `json:"cleaned_text"`
	ContextSummary   string `json:"context_summary,omitempty"`
	RecommendedTitle string `json:"recommended_title,omitempty"`
	KeyInformation   string `json:"key_information,omitempty"`
	LaTeX            string `json:"latex"`
}

func (h *Handler) handleScanProcess(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	images, err := readImages(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(images) == 0 {
		writeError(w, http.StatusBadRequest, "no images uploaded")
		return
	}

	opts := model.ProcessOptions{
		Title:    r.FormValue("title"),
		Category: r.FormValue("category"),
		Remarks:  r.FormValue("remarks"),
	}
	mode := r.FormValue("mode")

	results := h.ocr.ExtractAll(r.Context(), images)
	combined := ocr.Combine(results)
	if strings.TrimSpace(combined) == "" {
		writeError(w, http.StatusUnprocessableEntity, "no text could be extracted from the uploaded images")
		return
	}

	var result *model.ProcessResult
	switch mode {
	case "legacy":
		result, err = h.pipeline.ProcessLegacy(r.Context(), combined, opts)
	case "complete":
		result, err = h.pipeline.ProcessComplete(r.Context(), combined, opts)
	default:
		result, err = h.pipeline.ProcessContextAware(r.Context(), combined, opts)
	}
	if errors.Is(err, pipeline.ErrNoText) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	title := opts.Title
	if title == "" {
		title = result.RecommendedTitle
	}
	filename := outputFilename(title)
	if err := os.WriteFile(filepath.Join(h.outputDir, filename), []byte(result.Document.Document), 0o644); err != nil {
		writeError(w, http.StatusInternalServerError, "write output: "+err.Error())
		return
	}

	id, err := h.store.InsertDocument(model.DocumentRecord{
		Title:          title,
		Category:       opts.Category,
		Status:         string(result.Document.Status),
		ContextSummary: result.ContextSummary,
		CleanedText:    result.Cleaned.Text,
		LaTeX:          result.Document.Document,
		Filename:       filename,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store document: "+err.Error())
		return
	}

	h.log.Info("document processed", "id", id, "filename", filename, "mode", mode, "images", len(images))
	writeJSON(w, http.StatusOK, ProcessingResponse{
		ID:               id,
		Filename:         filename,
		DownloadURL:      "/download/" + filename,
		Status:           string(result.Document.Status),
		CleanStatus:      string(result.Cleaned.Status),
		CleanedText:      result.Cleaned.Text,
		ContextSummary:   result.ContextSummary,
		RecommendedTitle: result.RecommendedTitle,
		KeyInformation:   result.KeyInformation,
		LaTeX:            result.Document.Document,
	})
}

func readImages(r *http.Request) ([]ocr.Image, error) {
	var images []ocr.Image
	for _, header := range r.MultipartForm.File["images"] {
		f, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %q: %w", header.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %q: %w", header.Filename, err)
		}
		images = append(images, ocr.Image{Name: header.Filename, Data: data})
	}
	return images, nil
}

// outputFilename derives a safe .tex filename from a document title.
func outputFilename(title string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ', r == '-', r == '_':
			return '-'
		}
		return -1
	}, title)
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "document"
	}
	if len(slug) > 40 {
		slug = slug[:40]
	}
	return slug + "-" + uuid.NewString()[:8] + ".tex"
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.ListDocuments()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []model.DocumentRecord{}
	}
	writeJSON(w, http.StatusOK, docs)
}

// safeFilename rejects names that could escape the output directory.
func safeFilename(name string) bool {
	return name != "" &&
		!strings.Contains(name, "/") &&
		!strings.Contains(name, "\\") &&
		!strings.Contains(name, "..") &&
		filepath.Base(name) == name
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if !safeFilename(filename) {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	path := filepath.Join(h.outputDir, filename)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	w.Header().Set("Content-Type", "application/x-tex")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	http.ServeFile(w, r, path)
}

func (h *Handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if !safeFilename(filename) {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	doc, err := h.store.GetDocumentByFilename(filename)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.store.DeleteDocument(doc.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Best effort; the record is already gone.
	if err := os.Remove(filepath.Join(h.outputDir, filename)); err != nil && !os.IsNotExist(err) {
		h.log.Warn("remove output file", "filename", filename, "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExamResponse is the JSON body returned by /exam/generate.
type ExamResponse struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Questions []model.Question `json:"questions,omitempty"`
	LaTeX     string           `json:"latex"`
	Parsed    bool             `json:"parsed"`
}

func (h *Handler) handleExamGenerate(w http.ResponseWriter, r *http.Request) {
	var req model.ExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.TotalQuestions <= 0 {
		writeError(w, http.StatusBadRequest, "total_questions must be positive")
		return
	}

	questions, raw, err := h.generator.Generate(r.Context(), req)

	var doc string
	parsed := err == nil
	if parsed {
		doc = exam.Render(questions, req.Title, req.Author)
	} else {
		if strings.TrimSpace(raw) == "" || llm.IsError(raw) {
			writeError(w, http.StatusBadGateway, "exam generation failed")
			return
		}
		h.log.Warn("exam response not parseable, rendering raw output", "err", err)
		doc = exam.RenderRaw(raw, req.Title, req.Author)
	}

	questionsJSON, _ := json.Marshal(questions)
	id, err := h.store.InsertExam(model.ExamRecord{
		Title:          req.Title,
		Author:         req.Author,
		TotalQuestions: req.TotalQuestions,
		QuestionsJSON:  string(questionsJSON),
		LaTeX:          doc,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store exam: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ExamResponse{
		ID:        id,
		Title:     req.Title,
		Questions: questions,
		LaTeX:     doc,
		Parsed:    parsed,
	})
}

func (h *Handler) handleExamPDF(w http.ResponseWriter, r *http.Request) {
	if !h.compiler.Available() {
		writeError(w, http.StatusServiceUnavailable, "pdflatex is not installed")
		return
	}

	var req struct {
		ExamID string `json:"exam_id"`
		LaTeX  string `json:"latex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	source := req.LaTeX
	if source == "" && req.ExamID != "" {
		record, err := h.store.GetExam(req.ExamID)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "exam not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		source = record.LaTeX
	}
	if strings.TrimSpace(source) == "" {
		writeError(w, http.StatusBadRequest, "exam_id or latex is required")
		return
	}

	pdf, err := h.compiler.Compile(r.Context(), source)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "compile: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="exam.pdf"`)
	w.Write(pdf)
}

func (h *Handler) handleExamEvaluate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question model.Question `json:"question"`
		Answer   string         `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Question.Text) == "" {
		writeError(w, http.StatusBadRequest, "question text is required")
		return
	}

	result := h.generator.Evaluate(r.Context(), req.Question, req.Answer)
	if llm.IsError(result) {
		writeError(w, http.StatusBadGateway, "evaluation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"evaluation": result})
}

func (h *Handler) handleLLMCall(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
		System string `json:"system"`
		Info   string `json:"info"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	var info llm.Info
	if req.Info != "" {
		info = llm.RawInfo(req.Info)
	}

	result := h.llm.Complete(r.Context(), req.Prompt, req.System, info)
	if llm.IsError(result) {
		writeJSON(w, http.StatusOK, map[string]string{"response": "", "error": strings.TrimSpace(strings.TrimPrefix(result, llm.ErrorPrefix))})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": result})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
