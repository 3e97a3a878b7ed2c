package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/danmuck/callassist/internal/channel"
	"github.com/danmuck/callassist/internal/lifecycle"
	"github.com/danmuck/callassist/internal/projection"
	"github.com/danmuck/callassist/internal/render"
	"github.com/danmuck/callassist/internal/view"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errSessionEnded = errors.New("session view ended")

type watchOptions struct {
	serve      bool
	viewAddr   string
	noAutoEnd  bool
	exportFmt  string
	exportPath string
	lines      int
}

func newWatchCmd(a *app) *cobra.Command {
	var opts watchOptions
	cmd := &cobra.Command{
		Use:   "watch <session-id>",
		Short: "Follow a session live until it completes",
		Long: "watch opens the session's event channel, renders the projected state\n" +
			"on every change, and ends the session once the transcript is final.\n" +
			"With --serve the same state is available over local HTTP.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var format render.Format
			if opts.exportFmt != "" {
				var err error
				if format, err = render.ParseFormat(opts.exportFmt); err != nil {
					return err
				}
			}
			if err := a.load(); err != nil {
				return err
			}
			if opts.viewAddr != "" {
				a.cfg.View.Addr = opts.viewAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, a, args[0], opts, format, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&opts.serve, "serve", false, "serve the session view over local HTTP")
	cmd.Flags().StringVar(&opts.viewAddr, "view-addr", "", "view server listen address (overrides config)")
	cmd.Flags().BoolVar(&opts.noAutoEnd, "no-auto-end", false, "do not end the session when the transcript is final")
	cmd.Flags().StringVar(&opts.exportFmt, "export", "", "export the final state: json, yaml or markdown")
	cmd.Flags().StringVarP(&opts.exportPath, "out", "o", "", "export destination (default: stdout, or a directory)")
	cmd.Flags().IntVar(&opts.lines, "lines", 12, "transcript lines to render (0 for all)")
	return cmd
}

func runWatch(ctx context.Context, a *app, sessionID string, opts watchOptions, format render.Format, out io.Writer) error {
	sess, err := a.cfg.Session()
	if err != nil {
		return err
	}
	client, err := a.apiClient()
	if err != nil {
		return err
	}
	ctrl, err := lifecycle.New(lifecycle.Config{
		SessionID: sessionID,
		API:       client,
		NewChannel: lifecycle.NewChannelFactory(channel.Options{
			SessionID: sessionID,
			Endpoint:  a.cfg.WSURL,
			Session:   sess,
		}),
		DisableAutoEnd: opts.noAutoEnd,
		OnNotify: func(err error) {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("watch.notify")
		},
	})
	if err != nil {
		return err
	}
	defer ctrl.Dispose()

	updates, cancel := ctrl.Store().Subscribe()
	defer cancel()

	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("start session %s: %w", sessionID, err)
	}

	if opts.serve {
		srv := view.New(ctrl, view.Config{
			Addr:        a.cfg.View.Addr,
			CorsOrigins: a.cfg.View.CorsOrigins,
			Token:       a.cfg.View.Token,
		})
		go func() {
			if err := srv.Serve(ctx); err != nil {
				log.Error().Err(err).Str("addr", a.cfg.View.Addr).Msg("view.serve failed")
			}
		}()
	}

	r := render.New(out)
	r.TranscriptLines = opts.lines
	redraw := render.IsTerminal(out)
	draw := func(state projection.SessionState) {
		if redraw {
			fmt.Fprint(out, "\x1b[H\x1b[2J")
		}
		fmt.Fprint(out, r.Session(state))
	}

	state := ctrl.Snapshot()
	draw(state)
	for !state.Status.Terminal() {
		select {
		case <-ctx.Done():
			log.Info().Str("session_id", sessionID).Msg("watch.interrupted")
			return exportState(ctrl, format, opts.exportPath, out)
		case <-updates:
			state = ctrl.Snapshot()
			draw(state)
		}
	}

	if err := exportState(ctrl, format, opts.exportPath, out); err != nil {
		return err
	}
	if state.Status == projection.StatusEnded {
		if err := ctrl.LastError(); err != nil {
			return fmt.Errorf("%w: %w", errSessionEnded, err)
		}
		return errSessionEnded
	}
	if summary, ok := ctrl.Summary(); ok {
		fmt.Fprint(out, r.Summary(summary))
	}
	return nil
}

func exportState(ctrl *lifecycle.Controller, format render.Format, dest string, out io.Writer) error {
	if format == "" {
		return nil
	}
	rep := render.Report{Session: ctrl.Snapshot()}
	if summary, ok := ctrl.Summary(); ok {
		rep.Summary = &summary
	}
	if dest == "" || dest == "-" {
		return render.Export(out, format, rep)
	}
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		dest = filepath.Join(dest, rep.Session.SessionID+"."+format.Extension())
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer f.Close()
	if err := render.Export(f, format, rep); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	log.Info().Str("path", dest).Str("format", string(format)).Msg("watch.exported")
	return nil
}
