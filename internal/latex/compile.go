// Package latex shells out to pdflatex to turn generated documents into
// PDFs. Compilation happens in a disposable temp directory so auxiliary
// files never touch the output tree.
package latex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

var (
	// ErrCompilerNotFound means pdflatex is not installed on this host.
	ErrCompilerNotFound = errors.New("pdflatex not found in PATH")
	// ErrNoArtifact means pdflatex ran but produced no PDF file.
	ErrNoArtifact = errors.New("compilation produced no PDF")
)

const defaultTimeout = 60 * time.Second

// Compiler runs pdflatex with a per-run timeout.
type Compiler struct {
	timeout time.Duration
	log     *slog.Logger
}

func New(timeout time.Duration, logger *slog.Logger) *Compiler {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{timeout: timeout, log: logger}
}

// Available reports whether pdflatex can be found on this host.
func (c *Compiler) Available() bool {
	_, err := exec.LookPath("pdflatex")
	return err == nil
}

// Compile turns LaTeX source into PDF bytes. The source is compiled twice
// so cross-references and the table of contents resolve. The work
// directory is removed afterwards regardless of outcome.
func (c *Compiler) Compile(ctx context.Context, source string) ([]byte, error) {
	if _, err := exec.LookPath("pdflatex"); err != nil {
		return nil, ErrCompilerNotFound
	}

	dir, err := os.MkdirTemp("", "scandoc-latex-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	texPath := filepath.Join(dir, "document.tex")
	if err := os.WriteFile(texPath, []byte(source), 0o644); err != nil {
		return nil, fmt.Errorf("write source: %w", err)
	}

	for pass := 1; pass <= 2; pass++ {
		if err := c.run(ctx, dir, texPath, pass); err != nil {
			return nil, err
		}
	}

	pdf, err := os.ReadFile(filepath.Join(dir, "document.pdf"))
	if err != nil {
		return nil, ErrNoArtifact
	}
	c.log.Info("compilation complete", "pdf_bytes", len(pdf))
	return pdf, nil
}

func (c *Compiler) run(ctx context.Context, dir, texPath string, pass int) error {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "pdflatex",
		"-interaction=nonstopmode",
		"-output-directory", dir,
		texPath)
	cmd.Dir = dir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		// nonstopmode exits nonzero on recoverable errors but may still
		// emit a usable PDF; only a missing artifact is fatal.
		c.log.Warn("pdflatex reported errors", "pass", pass, "err", err)
		if _, statErr := os.Stat(filepath.Join(dir, "document.pdf")); statErr != nil {
			return fmt.Errorf("pdflatex pass %d: %w\n%s", pass, err, tail(output.String(), 2000))
		}
	}
	return nil
}

// tail returns the last n bytes of s, where compile errors surface.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
