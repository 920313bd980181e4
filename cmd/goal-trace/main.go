package main

// goal-trace opens a .lean file, waits for the server to elaborate it and
// prints the goal state at the end of every non-blank line. For debugging.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/bollu/elide-sub000/internal/config"
	"github.com/bollu/elide-sub000/internal/session"
	"github.com/bollu/elide-sub000/internal/text"
)

type traceOptions struct {
	elaborate time.Duration // wait for file progress to finish
	request   time.Duration // wait per goal request
	interval  time.Duration
}

func main() {
	var (
		configPath string
		logLevel   string
		opts       traceOptions
	)

	rootCmd := &cobra.Command{
		Use:          "goal-trace <file.lean>",
		Short:        "Print the Lean goal state after every line of a file",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			log, err := cfg.Logger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			opts.interval = cfg.Editor.TickInterval.Duration

			s, err := session.Launch(args[0], cfg, log)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, s.Close()) }()
			log.Debug("tracing", zap.String("path", s.Path()))
			return trace(cmd.Context(), s, cmd.OutOrStdout(), opts)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a TOML config file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.Flags().DurationVar(&opts.elaborate, "timeout", 5*time.Minute, "how long to wait for elaboration")
	rootCmd.Flags().DurationVar(&opts.request, "request-timeout", 30*time.Second, "how long to wait for each goal")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func trace(ctx context.Context, s *session.Session, w io.Writer, opts traceOptions) error {
	if opts.interval <= 0 {
		opts.interval = config.Default().Editor.TickInterval.Duration
	}

	wctx, cancel := context.WithTimeout(ctx, opts.elaborate)
	_, err := session.Await(wctx, s, opts.interval, func() (struct{}, bool) {
		return struct{}{}, s.Elaborated()
	})
	cancel()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		fmt.Fprintf(w, "warning: elaboration unfinished (%s); goals may be incomplete\n\n", session.FormatProgress(s))
	case err != nil:
		return err
	}

	step := 0
	for row, line := range s.Rows() {
		if strings.TrimSpace(line) == "" {
			continue
		}
		step++
		s.SetCursor(text.Cursor{Row: row, Col: utf8.RuneCountInString(line)})
		id, err := s.RequestGoal()
		if err != nil {
			return fmt.Errorf("line %d: %w", row+1, err)
		}
		rctx, cancel := context.WithTimeout(ctx, opts.request)
		err = s.AwaitReplies(rctx, opts.interval, id)
		cancel()
		if err != nil {
			return fmt.Errorf("line %d: %w", row+1, err)
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "=== Line %d ===\n> %s\n\n", row+1, strings.TrimSpace(line))
		session.WriteGoals(&sb, s.Goal())
		sb.WriteString("\n")
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}

	var sb strings.Builder
	session.FormatDiagnostics(&sb, s.Diagnostics())
	fmt.Fprintf(&sb, "--- Done: %d lines ---\n", step)
	_, err = io.WriteString(w, sb.String())
	return err
}
