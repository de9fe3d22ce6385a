package tui

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestNewRenderer(t *testing.T) {
	render, err := NewRenderer(0)
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}
	out, err := render("# The Vault\n\nGold **everywhere**.")
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(out, "Vault") || !strings.Contains(out, "everywhere") {
		t.Errorf("rendered output lost content: %q", out)
	}
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Errorf("expected no escape codes for a plain writer, got %q", out)
	}
	if !strings.Contains(out, `|_|  \__,_|_.__/|_|\___|`) {
		t.Errorf("banner missing its last line: %q", out)
	}
}

func TestWidthFallback(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	if IsInteractive(w) {
		t.Error("a pipe is not a terminal")
	}
	if got := Width(w); got != DefaultWidth {
		t.Errorf("expected width %d, got %d", DefaultWidth, got)
	}
}
