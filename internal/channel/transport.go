package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danmuck/callassist/internal/protocol/session"
	"github.com/gorilla/websocket"
)

// Conn is the subset of *websocket.Conn the channel uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	Close() error
}

// Dialer opens one physical connection.
type Dialer interface {
	DialContext(ctx context.Context, target string, header http.Header) (Conn, error)
}

// Timer is a pending reconnect timer.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules fn after d; time.AfterFunc satisfies it through
// RealAfterFunc.
type AfterFunc func(d time.Duration, fn func()) Timer

func RealAfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

type websocketDialer struct {
	dialer *websocket.Dialer
}

// NewWebsocketDialer returns a gorilla/websocket backed Dialer configured
// from cfg. endpoint is used to derive the TLS server name.
func NewWebsocketDialer(cfg session.Config, endpoint *url.URL) (Dialer, error) {
	d := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.DialTimeout,
	}
	if endpoint != nil && endpoint.Scheme == "wss" {
		tlsCfg, err := cfg.ClientTLSConfig(endpoint.Hostname())
		if err != nil {
			return nil, err
		}
		d.TLSClientConfig = tlsCfg
	}
	return websocketDialer{dialer: d}, nil
}

func (w websocketDialer) DialContext(ctx context.Context, target string, header http.Header) (Conn, error) {
	conn, resp, err := w.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, err
	}
	return conn, nil
}

// EndpointURL builds {base}/ws/session/{id}. http and https bases are
// mapped to ws and wss.
func EndpointURL(base, sessionID string) (*url.URL, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return nil, ErrEndpointRequired
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("channel: parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/session/" + url.PathEscape(sessionID)
	u.RawPath = ""
	return u, nil
}
