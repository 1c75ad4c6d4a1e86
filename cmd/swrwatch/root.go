package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/swrcache/internal/watch"
	zlog "github.com/unkn0wn-root/swrcache/log/zerolog"
)

type rootOpts struct {
	config   string
	logLevel string
	once     bool
	timeout  time.Duration
}

// NewRootCmd builds the swrwatch command.
func NewRootCmd(ver string) *cobra.Command {
	o := &rootOpts{}
	cmd := &cobra.Command{
		Use:     "swrwatch",
		Short:   "Watch JSON endpoints through a stale-while-revalidate cache",
		Version: ver,
		Example: `  swrwatch --config watch.yaml
  swrwatch --config watch.yaml --once --log-level debug
  kill -USR1 $(pidof swrwatch)   # focus: revalidate everything
  kill -USR2 $(pidof swrwatch)   # network reconnected
  kill -HUP  $(pidof swrwatch)   # forced refresh`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if o.config == "" {
				return errors.New("--config is required")
			}
			if o.timeout <= 0 {
				return fmt.Errorf("timeout must be > 0, got %s", o.timeout)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.config, "config", "c", "", "path to the watch config (YAML)")
	f.StringVar(&o.logLevel, "log-level", "", "trace|debug|info|warn|error; overrides the config")
	f.BoolVar(&o.once, "once", false, "exit after the first load of every resource")
	f.DurationVar(&o.timeout, "timeout", 30*time.Second, "how long --once waits")
	return cmd
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Str("component", "swrwatch").Logger()
}

func run(ctx context.Context, stdout, stderr io.Writer, o *rootOpts) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := watch.Load(o.config)
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	logger := newLogger(stderr, level)

	r, err := watch.NewRunner(cfg, zlog.Logger{L: logger}, stdout)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Close(cctx); err != nil {
			logger.Warn().Err(err).Msg("close")
		}
	}()
	if err := r.Start(); err != nil {
		return err
	}

	if o.once {
		return waitReady(ctx, r, o.timeout)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	events := make(chan os.Signal, 1)
	notifyEvents(events)
	defer signal.Stop(events)

	for {
		select {
		case <-ctx.Done():
			st := r.Stats()
			logger.Info().
				Uint64("fetches", st.Fetches).
				Uint64("joined", st.Joined).
				Uint64("suppressed", st.Suppressed).
				Uint64("retries", st.Retries).
				Msg("shutting down")
			return nil
		case sig := <-events:
			switch eventFor(sig) {
			case eventFocus:
				logger.Debug().Msg("focus regained")
				r.FocusRegained()
			case eventReconnect:
				logger.Debug().Msg("network reconnected")
				r.NetworkReconnected()
			case eventRefresh:
				go func() {
					if err := r.Refresh(ctx); err != nil {
						logger.Warn().Err(err).Msg("refresh")
					}
				}()
			}
		}
	}
}

func waitReady(ctx context.Context, r *watch.Runner, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()
	for !r.Ready() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("resources not ready after %s", timeout)
		case <-t.C:
		}
	}
	return nil
}

type event uint8

const (
	eventNone event = iota
	eventFocus
	eventReconnect
	eventRefresh
)
