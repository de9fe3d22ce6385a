package fable

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/aretw0/fable/pkg/domain"
)

// Runner plays an engine over line-oriented IO.
// This allows for easy testing and integration with different frontends (CLI, TUI, etc).
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	Headless bool
	Renderer ContentRenderer

	// MaxInputSize bounds one input line. Zero means DefaultMaxInputSize.
	MaxInputSize int
}

// ContentRenderer transforms node text before it is printed.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// NewRunner creates a Runner. Input and Output must be set before Run.
func NewRunner() *Runner {
	return &Runner{}
}

// Run loops render, read, choose until the story ends, the input is
// exhausted, or the reader quits.
//
// Besides a choice number the reader may type "undo", "redo", "flags" or
// "quit". Locked choices are listed with the reason they are locked.
func (r *Runner) Run(ctx context.Context, engine *Engine) error {
	if r.Input == nil {
		return fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	lines := bufio.NewReader(r.Input)
	w := r.Output

	if !r.Headless {
		fmt.Fprintln(w, "--- Fable ---")
	}

	lastRendered := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		node, err := engine.CurrentNode()
		if err != nil {
			return fmt.Errorf("render error: %w", err)
		}
		if node.ID != lastRendered {
			fmt.Fprintln(w, strings.TrimSpace(r.render(node.Text)))
			lastRendered = node.ID
		}

		options := engine.Options(ctx)
		if engine.IsTerminal(ctx) {
			fmt.Fprintln(w, "The End.")
			return nil
		}
		printOptions(w, options)

		if !r.Headless {
			fmt.Fprint(w, "> ")
		}
		text, err := lines.ReadString('\n')
		if err != nil && strings.TrimSpace(text) == "" {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}
		input, err := SanitizeInput(strings.TrimSpace(text), r.MaxInputSize)
		if err != nil {
			fmt.Fprintf(w, "Input rejected: %v\n", err)
			continue
		}

		switch input {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return nil
		case "undo":
			if res := engine.Undo(ctx); !res.Success {
				fmt.Fprintf(w, "Cannot undo: %s\n", res.Error)
			}
			lastRendered = ""
			continue
		case "redo":
			if res := engine.Redo(ctx); !res.Success {
				fmt.Fprintf(w, "Cannot redo: %s\n", res.Error)
			}
			lastRendered = ""
			continue
		case "flags":
			flags := engine.Flags()
			for _, k := range slices.Sorted(maps.Keys(flags)) {
				fmt.Fprintf(w, "  %s = %v\n", k, flags[k])
			}
			continue
		}

		n, convErr := strconv.Atoi(input)
		if convErr != nil {
			fmt.Fprintf(w, "Unknown command %q\n", input)
			continue
		}
		if _, err := engine.MakeChoice(ctx, n-1); err != nil {
			var verr *domain.ChoiceValidationError
			var nerr *domain.NavigationError
			switch {
			case errors.As(err, &verr):
				fmt.Fprintf(w, "You can't do that: %s\n", verr.Reason)
			case errors.As(err, &nerr) && nerr.Available > 0:
				fmt.Fprintf(w, "Pick a number between 1 and %d\n", nerr.Available)
			default:
				return fmt.Errorf("navigation error: %w", err)
			}
		}
	}
}

func (r *Runner) render(text string) string {
	if r.Renderer == nil {
		return text
	}
	out, err := r.Renderer(text)
	if err != nil {
		return text
	}
	return out
}

func printOptions(w io.Writer, options []domain.ChoiceView) {
	for _, opt := range options {
		if opt.Available {
			fmt.Fprintf(w, "  %d. %s\n", opt.Index+1, opt.Choice.Text)
			continue
		}
		fmt.Fprintf(w, "  %d. %s (locked: %s)\n", opt.Index+1, opt.Choice.Text, opt.Reason)
	}
}
