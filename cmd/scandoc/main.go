package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scandoc/scandoc/internal/exam"
	"github.com/scandoc/scandoc/internal/handler"
	"github.com/scandoc/scandoc/internal/latex"
	"github.com/scandoc/scandoc/internal/llm"
	"github.com/scandoc/scandoc/internal/model"
	"github.com/scandoc/scandoc/internal/ocr"
	"github.com/scandoc/scandoc/internal/pipeline"
	"github.com/scandoc/scandoc/internal/store"
)

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "scandoc",
		Short: "Reconstruct scanned documents into LaTeX using OCR and LLMs",
	}

	serve := serveCmd()
	root.AddCommand(serve, processCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `scandoc --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP document server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "scandoc.db", "SQLite database path")
	f.StringP("output-dir", "o", "output", "Directory for generated .tex files")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("ocr-url", "https://api.ocr.space/parse/image", "OCR API endpoint")
	f.String("ocr-key", "", "OCR API key (or set SCANDOC_OCR_KEY)")
	f.Int("retries", 3, "Completion retry attempts")
	f.Duration("connect-timeout", 5*time.Second, "LLM connect timeout")
	f.Duration("read-timeout", 60*time.Second, "LLM response timeout")
	f.Duration("ocr-timeout", 90*time.Second, "OCR request timeout")
	f.Duration("compile-timeout", 60*time.Second, "pdflatex run timeout")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process [images...]",
		Short: "Process scanned images into a .tex file without the server",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runProcess,
	}
	f := cmd.Flags()
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.StringP("title", "t", "", "Document title")
	f.String("category", "", "Document category")
	f.String("remarks", "", "Hints passed to the correction prompts")
	f.String("mode", "context", "Pipeline mode (context, legacy, complete)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("ocr-url", "https://api.ocr.space/parse/image", "OCR API endpoint")
	f.String("ocr-key", "", "OCR API key (or set SCANDOC_OCR_KEY)")
	f.Int("retries", 3, "Completion retry attempts")
	f.Duration("connect-timeout", 5*time.Second, "LLM connect timeout")
	f.Duration("read-timeout", 60*time.Second, "LLM response timeout")
	f.Duration("ocr-timeout", 90*time.Second, "OCR request timeout")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("SCANDOC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("scandoc")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/scandoc")
	v.AddConfigPath("/etc/scandoc")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func newLLMClient(v *viper.Viper) *llm.Client {
	return llm.New(llm.Config{
		BaseURL:        v.GetString("llm-url"),
		APIKey:         v.GetString("llm-key"),
		Model:          v.GetString("llm-model"),
		Retries:        v.GetInt("retries"),
		ConnectTimeout: v.GetDuration("connect-timeout"),
		ReadTimeout:    v.GetDuration("read-timeout"),
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	llmClient := newLLMClient(v)
	ocrClient := ocr.New(v.GetString("ocr-url"), v.GetString("ocr-key"), v.GetDuration("ocr-timeout"), nil)
	compiler := latex.New(v.GetDuration("compile-timeout"), nil)

	h, err := handler.New(db,
		pipeline.New(llmClient, nil),
		exam.NewGenerator(llmClient, nil),
		ocrClient,
		compiler,
		llmClient,
		v.GetString("output-dir"), nil)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"ocr_url", v.GetString("ocr-url"),
		"output_dir", v.GetString("output-dir"),
		"pdflatex", compiler.Available(),
	)
	return http.ListenAndServe(addr, r)
}

func runProcess(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	images := make([]ocr.Image, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		images = append(images, ocr.Image{Name: filepath.Base(path), Data: data})
	}

	ocrClient := ocr.New(v.GetString("ocr-url"), v.GetString("ocr-key"), v.GetDuration("ocr-timeout"), nil)
	combined := ocr.Combine(ocrClient.ExtractAll(ctx, images))
	if strings.TrimSpace(combined) == "" {
		return fmt.Errorf("no text could be extracted from %d image(s)", len(images))
	}

	p := pipeline.New(newLLMClient(v), nil)
	opts := model.ProcessOptions{
		Title:    v.GetString("title"),
		Category: v.GetString("category"),
		Remarks:  v.GetString("remarks"),
	}

	var result *model.ProcessResult
	var err error
	switch v.GetString("mode") {
	case "legacy":
		result, err = p.ProcessLegacy(ctx, combined, opts)
	case "complete":
		result, err = p.ProcessComplete(ctx, combined, opts)
	default:
		result, err = p.ProcessContextAware(ctx, combined, opts)
	}
	if err != nil {
		return err
	}

	slog.Info("document processed",
		"clean_status", result.Cleaned.Status,
		"format_status", result.Document.Status,
		"recommended_title", result.RecommendedTitle,
	)

	outPath := v.GetString("output")
	if outPath == "" || outPath == "-" {
		fmt.Println(result.Document.Document)
		return nil
	}
	if err := os.WriteFile(outPath, []byte(result.Document.Document), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
