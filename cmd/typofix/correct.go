package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/typofix/internal/app"
	"github.com/MrWong99/typofix/internal/backend"
	"github.com/MrWong99/typofix/internal/config"
	"github.com/MrWong99/typofix/internal/validate"
	"github.com/MrWong99/typofix/pkg/types"
)

// loader is implemented by backends that load a model before serving.
type loader interface {
	Start(ctx context.Context)
	WaitReady(ctx context.Context) error
}

func newCorrectCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "correct [text...]",
		Short: "Correct text with the configured backend and print the verdict",
		Long: `correct sends text (the arguments, or standard input when there are none)
through the configured correction backend and the safety validator, without
touching any application. Use it to try a backend or a model.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = strings.TrimRight(string(data), "\n")
			}
			b, err := app.NewRegistry().CreateBackend(cfg)
			if err != nil {
				return err
			}
			return correct(cmd.Context(), cfg, b, text, cmd.OutOrStdout())
		},
	}
}

// correct runs text through b and the validator and prints the result.
func correct(ctx context.Context, cfg *config.Config, b backend.Backend, text string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deadline := cfg.Correction.CorrectionDeadline()
	if l, ok := b.(loader); ok {
		lctx, cancel := context.WithTimeout(ctx, cfg.Correction.LoadingDeadline())
		defer cancel()
		l.Start(lctx)
		if err := l.WaitReady(lctx); err != nil {
			return err
		}
	}
	if b.Status() == backend.StatusLoading {
		deadline = cfg.Correction.LoadingDeadline()
	}

	start := time.Now()
	res, err := backend.Call(ctx, b, types.CorrectionRequest{
		Text:     text,
		Deadline: start.Add(deadline),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", b.ID(), err)
	}
	verdict := validate.Check(text, res.CorrectedText, cfg.Correction.MaxLengthRatio)

	fmt.Fprintf(out, "backend:   %s (%s)\n", b.ID(), time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(out, "original:  %s\n", text)
	fmt.Fprintf(out, "corrected: %s\n", res.CorrectedText)
	fmt.Fprintf(out, "verdict:   %s\n", verdict)
	return verdict.Err()
}
