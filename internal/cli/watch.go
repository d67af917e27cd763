package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/restq/internal/config"
	"github.com/roach88/restq/internal/events"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Count int // stop after this many events; 0 watches until interrupted

	// Subscriber overrides the NATS subscriber (for testing).
	// If nil, one is connected to the configured NATS URL.
	Subscriber events.Subscriber
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return newWatchCommand(&WatchOptions{RootOptions: rootOpts})
}

func newWatchCommand(opts *WatchOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [model]",
		Short: "Print service events as they are published",
		Long: `Subscribe to the configured NATS server and print every service event,
or only those of [model].

Example:
  restq watch todo --format json
  RESTQ_NATS_URL=nats://localhost:4222 restq watch`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			model := ""
			if len(args) == 1 {
				model = args[0]
			}
			return runWatch(opts, model, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Count, "count", "n", 0, "exit after n events")

	return cmd
}

// watchSubject returns the subject matching every event of model, or of
// all models when model is empty.
func watchSubject(prefix, model string) string {
	if prefix == "" {
		prefix = events.DefaultPrefix
	}
	if model == "" {
		return prefix + ".>"
	}
	return prefix + "." + model + ".>"
}

func runWatch(opts *WatchOptions, model string, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, ErrCodeConfig, err)
	}

	sub := opts.Subscriber
	if sub == nil {
		if cfg.NATS.URL == "" {
			return NewExitError(ExitCommandError, fmt.Sprintf("no NATS URL configured (set nats.url or %s)", config.EnvNATSURL))
		}
		nsub, err := events.NewNATSSubscriber(cfg.NATS.URL)
		if err != nil {
			return WrapExitError(ExitCommandError, "connect NATS", err)
		}
		sub = nsub
	}
	defer sub.Close()

	subject := watchSubject(cfg.NATS.Prefix, model)
	ch, unsubscribe, err := sub.Subscribe(subject)
	if err != nil {
		return WrapExitError(ExitCommandError, "subscribe", err)
	}
	defer unsubscribe()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("watching events", "subject", subject)
	if opts.Format != "json" {
		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s. Press Ctrl-C to stop.\n", subject)
	}

	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			if err := printEvent(cmd, opts.Format, payload); err != nil {
				slog.Warn("skipping malformed event", "error", err)
				continue
			}
			seen++
			if opts.Count > 0 && seen >= opts.Count {
				return nil
			}
		}
	}
}

// printEvent writes one event: the raw envelope as a JSON line, or a
// "model.event id data" line of text.
func printEvent(cmd *cobra.Command, format string, payload []byte) error {
	var ev events.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if format == "json" {
		_, err := fmt.Fprintln(w, string(payload))
		return err
	}
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s.%s %s %s\n", ev.Model, ev.Name, ev.ID, data)
	return err
}
