package latex

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"
)

func TestCompileWithoutCompiler(t *testing.T) {
	if _, err := exec.LookPath("pdflatex"); err == nil {
		t.Skip("pdflatex is installed")
	}

	c := New(time.Second, nil)
	if c.Available() {
		t.Error("Available() = true without pdflatex")
	}
	if _, err := c.Compile(context.Background(), `\documentclass{article}`); !errors.Is(err, ErrCompilerNotFound) {
		t.Errorf("err = %v, want ErrCompilerNotFound", err)
	}
}

func TestTail(t *testing.T) {
	if got := tail("abcdef", 3); got != "def" {
		t.Errorf("tail() = %q", got)
	}
	if got := tail("ab", 3); got != "ab" {
		t.Errorf("tail() = %q", got)
	}
}
