package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/callassist/internal/channel"
	"github.com/danmuck/callassist/internal/protocol/event"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	fallbackSegmentDelay = 500 * time.Millisecond
	pollInterval         = 50 * time.Millisecond
)

var (
	errReplaySpeed   = errors.New("replay: --speed must be > 0")
	errReplayTimeout = errors.New("replay: timed out")
)

type replayFile struct {
	Segments []replaySegment `json:"segments"`
}

type replaySegment struct {
	Speaker     string   `json:"speaker"`
	Text        string   `json:"text"`
	TimestampMS *float64 `json:"timestamp_ms"`
	IsFinal     *bool    `json:"is_final"`
}

type replayOptions struct {
	file       string
	speed      float64
	noWait     bool
	noFinal    bool
	ackTimeout time.Duration
	cooldown   time.Duration
}

func newReplayCmd(a *app) *cobra.Command {
	var opts replayOptions
	cmd := &cobra.Command{
		Use:   "replay <session-id>",
		Short: "Send a recorded transcript into a session",
		Long: "replay reads {\"segments\": [{speaker, text, timestamp_ms, is_final}]} and\n" +
			"sends each segment as client.transcript_segment, paced by timestamp_ms,\n" +
			"then sends client.transcript_final and waits for every event to be acked.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.speed <= 0 {
				return errReplaySpeed
			}
			segments, err := readReplayFile(opts.file)
			if err != nil {
				return err
			}
			if err := a.load(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runReplay(ctx, a, args[0], segments, opts)
		},
	}
	cmd.Flags().StringVar(&opts.file, "file", "", "transcript json file")
	cmd.Flags().Float64Var(&opts.speed, "speed", 1.0, "replay speed multiplier")
	cmd.Flags().BoolVar(&opts.noWait, "no-wait", false, "send without pacing")
	cmd.Flags().BoolVar(&opts.noFinal, "no-final", false, "do not send client.transcript_final")
	cmd.Flags().DurationVar(&opts.ackTimeout, "ack-timeout", 30*time.Second, "how long to wait for outstanding acks")
	cmd.Flags().DurationVar(&opts.cooldown, "cooldown", 5*time.Second, "time to keep listening for late server events")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readReplayFile(path string) ([]replaySegment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	var f replayFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("replay: parse %s: %w", path, err)
	}
	return f.Segments, nil
}

// segmentDelays returns the pause before each segment: the gap between
// consecutive timestamp_ms values divided by speed, with a fixed fallback
// when either timestamp is missing.
func segmentDelays(segments []replaySegment, speed float64, noWait bool) []time.Duration {
	out := make([]time.Duration, len(segments))
	if noWait {
		return out
	}
	for i, seg := range segments {
		if seg.TimestampMS == nil {
			out[i] = fallbackSegmentDelay
			continue
		}
		prev := 0.0
		if i > 0 {
			if segments[i-1].TimestampMS == nil {
				out[i] = fallbackSegmentDelay
				continue
			}
			prev = *segments[i-1].TimestampMS
		}
		gap := max(0, *seg.TimestampMS-prev)
		out[i] = time.Duration(gap / speed * float64(time.Millisecond))
	}
	return out
}

func fullTranscript(segments []replaySegment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		parts = append(parts, seg.Text)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func (s replaySegment) payload() map[string]any {
	final := true
	if s.IsFinal != nil {
		final = *s.IsFinal
	}
	return event.SegmentPayload(event.TranscriptSegment{
		Speaker:     s.Speaker,
		Text:        s.Text,
		TimestampMS: s.TimestampMS,
		IsFinal:     final,
	})
}

// replayHandler logs what the server sends back while replaying.
type replayHandler struct {
	logger zerolog.Logger
}

func (h replayHandler) HandleEvent(env event.Envelope) {
	ev := h.logger.Info().Str("type", string(env.Type))
	if env.ServerSeq != nil {
		ev = ev.Int64("server_seq", *env.ServerSeq)
	}
	ev.Msg("replay.received")
}

func (h replayHandler) HandleError(err error) {
	h.logger.Warn().Err(err).Msg("replay.notify")
}

func runReplay(ctx context.Context, a *app, sessionID string, segments []replaySegment, opts replayOptions) error {
	sess, err := a.cfg.Session()
	if err != nil {
		return err
	}
	logger := log.With().Str("component", "replay").Str("session_id", sessionID).Logger()
	ch, err := channel.New(channel.Options{
		SessionID: sessionID,
		Endpoint:  a.cfg.WSURL,
		Session:   sess,
		Handler:   replayHandler{logger: logger},
	})
	if err != nil {
		return err
	}
	defer ch.Disconnect()
	if err := ch.Connect(); err != nil {
		return err
	}

	openWait := sess.DialTimeout + sess.Backoff.MaxDelay
	seqBefore := int64(-1)
	delays := segmentDelays(segments, opts.speed, opts.noWait)
	for i, seg := range segments {
		if err := sleepCtx(ctx, delays[i]); err != nil {
			return err
		}
		if err := waitUntil(ctx, openWait, func() bool { return ch.State() == channel.StateOpen }); err != nil {
			return fmt.Errorf("replay: channel not open before segment %d: %w", i+1, err)
		}
		seqBefore = ch.Stats().ClientSeq
		ch.Send(event.TypeTranscriptSegment, seg.payload())
		logger.Info().Int("segment", i+1).Int("of", len(segments)).Msg("replay.sent")
	}

	if !opts.noFinal {
		if err := waitUntil(ctx, openWait, func() bool { return ch.State() == channel.StateOpen }); err != nil {
			return fmt.Errorf("replay: channel not open before final: %w", err)
		}
		seqBefore = ch.Stats().ClientSeq
		ch.Send(event.TypeClientTranscriptFinal, map[string]any{"text": fullTranscript(segments)})
		logger.Info().Msg("replay.final_sent")
	}

	// Sends are applied by the channel loop; the client sequence moves past
	// seqBefore once the last one has been written or dropped.
	drained := func() bool {
		return seqBefore < 0 || (ch.Stats().ClientSeq > seqBefore && len(ch.Pending()) == 0)
	}
	if err := waitUntil(ctx, opts.ackTimeout, drained); err != nil {
		return fmt.Errorf("replay: %d events unacknowledged: %w", len(ch.Pending()), err)
	}
	logger.Info().Dur("cooldown", opts.cooldown).Msg("replay.acked")
	// Interrupting the cooldown is not a failure.
	_ = sleepCtx(ctx, opts.cooldown)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// waitUntil polls cond until it holds, ctx ends, or timeout elapses.
func waitUntil(ctx context.Context, timeout time.Duration, cond func() bool) error {
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			return errReplayTimeout
		}
		if err := sleepCtx(ctx, pollInterval); err != nil {
			return err
		}
	}
	return nil
}
