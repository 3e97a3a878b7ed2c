// Package lifecycle sequences one session view: fetch the session, open the
// event channel, project admitted events, and end the session once.
package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/danmuck/callassist/internal/api"
	"github.com/danmuck/callassist/internal/channel"
	"github.com/danmuck/callassist/internal/observability"
	"github.com/danmuck/callassist/internal/projection"
	"github.com/danmuck/callassist/internal/protocol/event"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionIDRequired = errors.New("lifecycle: session id required")
	ErrAPIRequired       = errors.New("lifecycle: session api required")
	ErrChannelRequired   = errors.New("lifecycle: channel factory required")
	ErrAlreadyStarted    = errors.New("lifecycle: already started")
	ErrDisposed          = errors.New("lifecycle: controller disposed")
	ErrEndInFlight       = errors.New("lifecycle: end session already in flight")
)

// End-session triggers recorded in metrics.
const (
	TriggerAuto   = "auto"
	TriggerManual = "manual"
)

// SessionAPI is the subset of *api.Client the controller calls.
type SessionAPI interface {
	GetSession(ctx context.Context, sessionID string) (api.Session, error)
	EndSession(ctx context.Context, sessionID string) (api.SessionSummary, error)
}

// Channel is the event channel as driven by the controller.
type Channel interface {
	Connect() error
	Disconnect()
	Stats() channel.Stats
}

// ChannelFactory builds the channel for a session, delivering to handler.
type ChannelFactory func(handler channel.Handler) (Channel, error)

// NewChannelFactory returns a factory over channel.New with opts.
func NewChannelFactory(opts channel.Options) ChannelFactory {
	return func(handler channel.Handler) (Channel, error) {
		opts.Handler = handler
		return channel.New(opts)
	}
}

type Config struct {
	SessionID  string
	API        SessionAPI
	NewChannel ChannelFactory
	// Store defaults to a fresh projection.Store.
	Store *projection.Store
	// DisableAutoEnd stops transcript_final from triggering end-session.
	DisableAutoEnd bool
	// OnNotify receives every channel notification. It is called outside
	// the controller lock and may call Dispose.
	OnNotify func(error)
	Logger   *zerolog.Logger
}

type Controller struct {
	sessionID string
	api       SessionAPI
	factory   ChannelFactory
	store     *projection.Store
	autoEnd   bool
	onNotify  func(error)
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	started     bool
	disposed    bool
	ch          Channel
	session     api.Session
	autoSignal  int64
	endInFlight bool
	summary     *api.SessionSummary
	endErr      error
	lastErr     error
}

func New(cfg Config) (*Controller, error) {
	sessionID := strings.TrimSpace(cfg.SessionID)
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	if cfg.API == nil {
		return nil, ErrAPIRequired
	}
	if cfg.NewChannel == nil {
		return nil, ErrChannelRequired
	}
	store := cfg.Store
	if store == nil {
		store = projection.NewStore()
	}
	base := log.Logger
	if cfg.Logger != nil {
		base = *cfg.Logger
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		sessionID: sessionID,
		api:       cfg.API,
		factory:   cfg.NewChannel,
		store:     store,
		autoEnd:   !cfg.DisableAutoEnd,
		onNotify:  cfg.OnNotify,
		logger:    base.With().Str("component", "lifecycle").Str("session_id", sessionID).Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start resets the store, fetches the session and opens the channel. A
// fetch or channel construction failure ends the view and is returned.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.store.Reset(c.sessionID)
	c.mu.Unlock()

	fetchCtx, cancel := c.callContext(ctx)
	sess, err := c.api.GetSession(fetchCtx, c.sessionID)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	if err != nil {
		c.failLocked(err)
		return err
	}
	c.session = sess
	c.store.Transition(projection.StatusActive)

	ch, err := c.factory(c)
	if err != nil {
		c.failLocked(err)
		return err
	}
	c.ch = ch
	if err := ch.Connect(); err != nil {
		c.failLocked(err)
		return err
	}
	c.logger.Info().Str("status", sess.Status).Msg("lifecycle.start")
	return nil
}

func (c *Controller) failLocked(err error) {
	c.lastErr = err
	c.store.Transition(projection.StatusEnded)
	c.logger.Error().Err(err).Msg("lifecycle.start failed")
}

// HandleEvent projects one admitted event.
func (c *Controller) HandleEvent(env event.Envelope) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	effect := c.store.Apply(env)
	startAuto := false
	if effect.TranscriptFinalized {
		c.autoSignal++
		c.logger.Info().Int64("auto_end_signal", c.autoSignal).Msg("lifecycle.transcript finalized")
		if c.autoEnd && !c.endInFlight {
			c.endInFlight = true
			startAuto = true
		}
	}
	c.mu.Unlock()

	if startAuto {
		go func() {
			_, _ = c.runEnd(context.Background(), TriggerAuto)
		}()
	}
}

// HandleError records a channel notification. Only reconnect exhaustion
// ends the view; other notifications are transient.
func (c *Controller) HandleError(err error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.lastErr = err
	if errors.Is(err, channel.ErrReconnectExhausted) {
		c.store.Transition(projection.StatusEnded)
		c.logger.Error().Err(err).Msg("lifecycle.channel exhausted")
	} else {
		c.logger.Warn().Err(err).Msg("lifecycle.channel notification")
	}
	notify := c.onNotify
	c.mu.Unlock()

	if notify != nil {
		notify(err)
	}
}

// EndSession is the manual end-session trigger. It returns ErrEndInFlight
// while another run is pending. Failures are kept in EndError and may be
// retried.
func (c *Controller) EndSession(ctx context.Context) (api.SessionSummary, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return api.SessionSummary{}, ErrDisposed
	}
	if c.endInFlight {
		c.mu.Unlock()
		return api.SessionSummary{}, ErrEndInFlight
	}
	c.endInFlight = true
	c.mu.Unlock()
	return c.runEnd(ctx, TriggerManual)
}

func (c *Controller) runEnd(ctx context.Context, trigger string) (api.SessionSummary, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	c.logger.Info().Str("trigger", trigger).Msg("lifecycle.end")
	summary, err := c.api.EndSession(callCtx, c.sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.endInFlight = false
	if c.disposed {
		return api.SessionSummary{}, ErrDisposed
	}
	observability.RecordSessionEnd(trigger, err == nil)
	if err != nil {
		c.endErr = err
		c.logger.Warn().Err(err).Str("trigger", trigger).Msg("lifecycle.end failed")
		return api.SessionSummary{}, err
	}
	c.endErr = nil
	c.summary = &summary
	c.store.Transition(projection.StatusCompleted)
	c.logger.Info().Str("trigger", trigger).Str("disposition", summary.Disposition).Msg("lifecycle.end completed")
	return summary, nil
}

// callContext derives a context cancelled by either ctx or Dispose.
func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	return callCtx, func() {
		stop()
		cancel()
	}
}

// Dispose disconnects the channel and cancels in-flight calls. After it
// returns the store is never mutated by this controller again.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	ch := c.ch
	c.mu.Unlock()

	c.cancel()
	if ch != nil {
		ch.Disconnect()
	}
	c.logger.Info().Msg("lifecycle.dispose")
}

func (c *Controller) SessionID() string {
	return c.sessionID
}

func (c *Controller) Store() *projection.Store {
	return c.store
}

func (c *Controller) Snapshot() projection.SessionState {
	return c.store.Snapshot()
}

func (c *Controller) Session() api.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// AutoEndSignal counts projected transcript_final events.
func (c *Controller) AutoEndSignal() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoSignal
}

func (c *Controller) EndInFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endInFlight
}

func (c *Controller) Summary() (api.SessionSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.summary == nil {
		return api.SessionSummary{}, false
	}
	return *c.summary, true
}

// EndError is the last end-session failure, nil after a success.
func (c *Controller) EndError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endErr
}

func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ChannelStats reports false before the channel exists.
func (c *Controller) ChannelStats() (channel.Stats, bool) {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()
	if ch == nil {
		return channel.Stats{}, false
	}
	return ch.Stats(), true
}
