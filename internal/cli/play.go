package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/fable"
	"github.com/aretw0/fable/internal/presentation/tui"
)

// DefaultSessionID names the session used when play is given none.
const DefaultSessionID = "default"

// PlayOptions controls an interactive play session.
type PlayOptions struct {
	SessionID string
	// Fresh discards any saved progress before starting.
	Fresh    bool
	Headless bool
	// Width enables markdown rendering at that column width. Zero prints
	// node text as is.
	Width  int
	Input  io.Reader
	Output io.Writer
}

// Play runs the reader loop for one session and saves progress when the
// loop ends, including when ctx is cancelled.
func Play(ctx context.Context, app *App, opts PlayOptions) error {
	if opts.SessionID == "" {
		opts.SessionID = DefaultSessionID
	}
	saveCtx := context.WithoutCancel(ctx)

	if opts.Fresh {
		if err := app.Sessions.Delete(saveCtx, opts.SessionID); err != nil {
			return fmt.Errorf("reset session: %w", err)
		}
	}
	if _, err := app.Sessions.LoadOrStart(saveCtx, opts.SessionID); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	runner := &fable.Runner{
		Input:    opts.Input,
		Output:   opts.Output,
		Headless: opts.Headless,
	}
	if opts.Width > 0 && !opts.Headless {
		render, err := tui.NewRenderer(opts.Width)
		if err != nil {
			app.Logger.Warn("markdown rendering disabled", "err", err)
		} else {
			runner.Renderer = render
		}
	}

	err := app.Sessions.Update(saveCtx, opts.SessionID, func(_ context.Context, eng *fable.Engine) error {
		return runner.Run(ctx, eng)
	})
	if errors.Is(err, context.Canceled) {
		app.Logger.Info("session interrupted, progress saved", "session_id", opts.SessionID)
		return nil
	}
	return err
}
