package channel

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/callassist/internal/observability"
	"github.com/danmuck/callassist/internal/protocol/event"
	"github.com/danmuck/callassist/internal/protocol/session"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionIDRequired  = errors.New("channel: session id required")
	ErrEndpointRequired   = errors.New("channel: endpoint required")
	ErrHandlerRequired    = errors.New("channel: handler required")
	ErrClosed             = errors.New("channel: closed")
	ErrTransport          = errors.New("channel: transport error")
	ErrConnectionClosed   = errors.New("channel: connection closed")
	ErrMalformedFrame     = errors.New("channel: failed to parse message")
	ErrReconnectExhausted = errors.New("channel: reconnect attempts exhausted")
)

// Notification kinds recorded for HandleError calls.
const (
	notifyTransport = "transport"
	notifyClosed    = "closed"
	notifyMalformed = "malformed"
	notifyExhausted = "exhausted"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Handler receives admitted events and channel notifications.
type Handler interface {
	HandleEvent(env event.Envelope)
	HandleError(err error)
}

type Options struct {
	SessionID string
	// Endpoint is the API base (ws, wss, http or https). The session path
	// is appended by EndpointURL.
	Endpoint string
	Header   http.Header
	Session  session.Config
	Handler  Handler

	// Optional seams; nil selects the real implementation.
	Dialer    Dialer
	AfterFunc AfterFunc
	Now       func() time.Time
	Rand      *rand.Rand
	Logger    *zerolog.Logger
}

// Stats is a point-in-time view of channel counters.
type Stats struct {
	SessionID        string `json:"session_id" yaml:"session_id"`
	Endpoint         string `json:"endpoint" yaml:"endpoint"`
	State            string `json:"state" yaml:"state"`
	LastServerSeq    int64  `json:"last_server_seq" yaml:"last_server_seq"`
	ClientSeq        int64  `json:"client_seq" yaml:"client_seq"`
	ReconnectAttempt int    `json:"reconnect_attempt" yaml:"reconnect_attempt"`
	Pending          int    `json:"pending" yaml:"pending"`
}

type Channel struct {
	sessionID string
	target    string
	header    http.Header
	cfg       session.Config
	handler   Handler
	dialer    Dialer
	afterFunc AfterFunc
	now       func() time.Time
	rng       *rand.Rand
	logger    zerolog.Logger
	outbox    *session.EventOutbox

	ctx       context.Context
	cancel    context.CancelFunc
	queue     opQueue
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	closed    atomic.Bool

	// Loop-owned.
	conn      Conn
	gen       uint64
	attempt   int
	timer     Timer
	timerSeq  uint64
	filter    session.SequenceFilter
	clientSeq session.ClientSequence

	// Mirrors for Stats and State.
	state         atomic.Int32
	lastServerSeq atomic.Int64
	lastClientSeq atomic.Int64
	attemptView   atomic.Int64
}

func New(opts Options) (*Channel, error) {
	sessionID := strings.TrimSpace(opts.SessionID)
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	if opts.Handler == nil {
		return nil, ErrHandlerRequired
	}
	target, err := EndpointURL(opts.Endpoint, sessionID)
	if err != nil {
		return nil, err
	}
	cfg := opts.Session.WithDefaults()
	if err := cfg.ValidateClientTransport(target); err != nil {
		return nil, err
	}

	c := &Channel{
		sessionID: sessionID,
		target:    target.String(),
		header:    opts.Header,
		cfg:       cfg,
		handler:   opts.Handler,
		dialer:    opts.Dialer,
		afterFunc: opts.AfterFunc,
		now:       opts.Now,
		rng:       opts.Rand,
		outbox:    session.NewEventOutbox(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	c.queue.signal = make(chan struct{}, 1)
	if c.dialer == nil {
		c.dialer, err = NewWebsocketDialer(cfg, target)
		if err != nil {
			return nil, err
		}
	}
	if c.afterFunc == nil {
		c.afterFunc = RealAfterFunc
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	base := log.Logger
	if opts.Logger != nil {
		base = *opts.Logger
	}
	c.logger = base.With().Str("component", "channel").Str("session_id", sessionID).Logger()
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c, nil
}

// Connect begins connecting and returns without waiting for the socket.
// Calling it while connecting or open is a no-op; calling it while a
// reconnect is pending connects immediately.
func (c *Channel) Connect() error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.startOnce.Do(func() { go c.run() })
	if !c.post(c.connect) {
		return ErrClosed
	}
	return nil
}

// Disconnect closes the channel for good. The pending reconnect timer is
// cancelled and the socket closed on the loop; it does not wait for the
// loop to exit, so handlers may call it.
func (c *Channel) Disconnect() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.state.Store(int32(StateClosing))
	c.cancel()
	close(c.stop)
	c.queue.wake()
	// Loop never started: nothing to drain.
	c.startOnce.Do(func() {
		c.state.Store(int32(StateDisconnected))
		close(c.done)
	})
	c.logger.Info().Msg("channel.disconnect")
}

// Send stamps and writes a client event. It is dropped when the socket is
// not open; the client sequence still advances.
func (c *Channel) Send(typ event.Type, payload map[string]any) {
	if c.closed.Load() {
		return
	}
	c.post(func() { c.send(typ, payload) })
}

// Done is closed once the channel is fully shut down.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) State() State {
	return State(c.state.Load())
}

func (c *Channel) SessionID() string {
	return c.sessionID
}

// Pending lists sent client events that have not been acknowledged.
func (c *Channel) Pending() []session.PendingEvent {
	return c.outbox.List()
}

func (c *Channel) Stats() Stats {
	return Stats{
		SessionID:        c.sessionID,
		Endpoint:         c.target,
		State:            c.State().String(),
		LastServerSeq:    c.lastServerSeq.Load(),
		ClientSeq:        c.lastClientSeq.Load(),
		ReconnectAttempt: int(c.attemptView.Load()),
		Pending:          c.outbox.Len(),
	}
}

func (c *Channel) run() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			c.shutdown()
			return
		case <-c.queue.signal:
			for _, op := range c.queue.drain() {
				if c.closed.Load() {
					break
				}
				op()
			}
		}
	}
}

func (c *Channel) post(op func()) bool {
	select {
	case <-c.stop:
		return false
	default:
	}
	c.queue.push(op)
	return true
}

func (c *Channel) setState(s State) {
	if c.closed.Load() {
		return
	}
	c.state.Store(int32(s))
}

func (c *Channel) connect() {
	switch c.State() {
	case StateConnecting, StateOpen:
		return
	}
	c.stopTimer()
	c.open()
}

func (c *Channel) open() {
	c.gen++
	gen := c.gen
	c.setState(StateConnecting)
	c.logger.Debug().Str("target", c.target).Int("attempt", c.attempt).Msg("channel.dial")
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.DialTimeout)
		defer cancel()
		conn, err := c.dialer.DialContext(ctx, c.target, c.header)
		if !c.post(func() { c.onDialed(gen, conn, err) }) && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (c *Channel) onDialed(gen uint64, conn Conn, err error) {
	if gen != c.gen || c.closed.Load() {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		observability.RecordConnect(false)
		c.logger.Warn().Err(err).Int("attempt", c.attempt).Msg("channel.dial failed")
		c.notify(fmt.Errorf("%w: %v", ErrTransport, err), notifyTransport)
		c.notify(ErrConnectionClosed, notifyClosed)
		c.scheduleReconnect()
		return
	}

	observability.RecordConnect(true)
	conn.SetReadLimit(c.cfg.ReadLimit)
	c.conn = conn
	c.attempt = 0
	c.attemptView.Store(0)
	c.setState(StateOpen)
	c.logger.Info().Int64("last_server_seq", c.filter.Last()).Msg("channel.open")
	go c.readLoop(gen, conn)
	c.send(event.TypeResume, event.ResumePayload(c.filter.Last()))
}

func (c *Channel) readLoop(gen uint64, conn Conn) {
	for {
		if c.cfg.DeadAfter > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.cfg.DeadAfter))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.post(func() { c.onConnClosed(gen, conn, err) })
			return
		}
		if !c.post(func() { c.onFrame(gen, data) }) {
			return
		}
	}
}

func (c *Channel) onConnClosed(gen uint64, conn Conn, err error) {
	_ = conn.Close()
	if gen != c.gen || c.closed.Load() {
		return
	}
	c.conn = nil
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Info().Err(err).Msg("channel.closed by peer")
	} else {
		c.logger.Warn().Err(err).Msg("channel.read failed")
		c.notify(fmt.Errorf("%w: %v", ErrTransport, err), notifyTransport)
	}
	c.notify(ErrConnectionClosed, notifyClosed)
	c.scheduleReconnect()
}

func (c *Channel) onFrame(gen uint64, data []byte) {
	if gen != c.gen || c.closed.Load() {
		return
	}
	env, err := event.Parse(data)
	if err != nil {
		observability.RecordFrame(observability.FrameMalformed)
		c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("channel.frame malformed")
		c.notify(fmt.Errorf("%w: %v", ErrMalformedFrame, err), notifyMalformed)
		return
	}
	if !env.Type.Known() {
		observability.RecordFrame(observability.FrameUnknownType)
		c.logger.Debug().Str("type", string(env.Type)).Msg("channel.frame unknown type")
	}
	if env.Type == event.TypePing {
		observability.RecordFrame(observability.FramePing)
		c.send(event.TypePong, map[string]any{})
		return
	}
	// The ack reuses the server_seq of the echoed event, so it is matched
	// before the filter drops it.
	if env.Type == event.TypeAck && c.outbox.Ack(env.EventID) {
		c.logger.Debug().Str("event_id", env.EventID).Msg("channel.ack")
	}
	if env.HasServerSeq() {
		if !c.filter.Admit(*env.ServerSeq) {
			observability.RecordFrame(observability.FrameDuplicate)
			c.logger.Debug().Int64("server_seq", *env.ServerSeq).Str("type", string(env.Type)).Msg("channel.frame duplicate")
			return
		}
		c.lastServerSeq.Store(c.filter.Last())
	}
	observability.RecordFrame(observability.FrameAdmitted)
	c.handler.HandleEvent(env)
}

func (c *Channel) send(typ event.Type, payload map[string]any) {
	seq := c.clientSeq.Next()
	c.lastClientSeq.Store(seq)
	if c.conn == nil || c.State() != StateOpen {
		c.logger.Debug().Str("type", string(typ)).Int64("client_seq", seq).Msg("channel.send dropped")
		return
	}
	env := event.NewClientEvent(c.sessionID, typ, seq, payload, c.now())
	data, err := event.Encode(env)
	if err != nil {
		c.logger.Error().Err(err).Str("type", string(typ)).Msg("channel.send encode failed")
		return
	}
	tracked := typ == event.TypeTranscriptSegment || typ.IsTranscriptFinal()
	if tracked {
		c.outbox.Upsert(session.PendingEvent{
			EventID:   env.EventID,
			Type:      string(typ),
			ClientSeq: seq,
			QueuedAt:  c.now(),
		})
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	if tracked {
		lastErr := ""
		if err != nil {
			lastErr = err.Error()
		}
		c.outbox.MarkAttempt(env.EventID, c.now(), lastErr)
	}
	if err != nil {
		// The reader observes the close and drives the reconnect.
		c.logger.Warn().Err(err).Str("type", string(typ)).Msg("channel.send failed")
		_ = c.conn.Close()
	}
}

func (c *Channel) scheduleReconnect() {
	if c.closed.Load() || c.timer != nil {
		return
	}
	next := c.attempt + 1
	if !c.cfg.Backoff.ShouldRetry(next) {
		c.setState(StateDisconnected)
		c.logger.Error().Int("attempts", c.attempt).Msg("channel.reconnect exhausted")
		c.notify(ErrReconnectExhausted, notifyExhausted)
		return
	}
	delay := session.NextBackoffDelay(c.cfg.Backoff, next, c.rng)
	c.setState(StateReconnecting)
	c.timerSeq++
	seq := c.timerSeq
	c.timer = c.afterFunc(delay, func() {
		c.post(func() { c.onReconnectTimer(seq) })
	})
	observability.RecordReconnectScheduled()
	c.logger.Info().Dur("delay", delay).Int("attempt", next).Msg("channel.reconnect scheduled")
}

func (c *Channel) onReconnectTimer(seq uint64) {
	if seq != c.timerSeq || c.timer == nil || c.closed.Load() {
		return
	}
	c.timer = nil
	c.attempt++
	c.attemptView.Store(int64(c.attempt))
	c.open()
}

func (c *Channel) stopTimer() {
	if c.timer == nil {
		return
	}
	c.timer.Stop()
	c.timer = nil
	c.timerSeq++
}

func (c *Channel) notify(err error, kind string) {
	observability.RecordNotification(kind)
	if c.closed.Load() {
		return
	}
	c.handler.HandleError(err)
}

func (c *Channel) shutdown() {
	c.stopTimer()
	c.gen++
	if c.conn != nil {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
		_ = c.conn.SetWriteDeadline(deadline)
		_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state.Store(int32(StateDisconnected))
}

// opQueue is an unbounded FIFO drained by the loop goroutine. Handlers run
// on the loop and may post, so pushes never block.
type opQueue struct {
	mu     sync.Mutex
	items  []func()
	signal chan struct{}
}

func (q *opQueue) push(op func()) {
	q.mu.Lock()
	q.items = append(q.items, op)
	q.mu.Unlock()
	q.wake()
}

func (q *opQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *opQueue) drain() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
