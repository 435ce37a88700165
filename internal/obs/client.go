package obs

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andreykaipov/goobs"
	"github.com/andreykaipov/goobs/api/requests/general"
	"github.com/gorilla/websocket"
)

// Default timings.
const (
	DefaultRetryInterval    = 5 * time.Second
	DefaultRequestTimeout   = 10 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPingInterval     = 2 * time.Second
)

// State is the connection state of the client.
type State int

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DisconnectInfo describes why a session ended or could not start.
// Code is the websocket close code, or 0 when the connection failed without one.
type DisconnectInfo struct {
	Code   int
	Reason string
	Err    error
}

// Logger is the logging surface the client needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// debugWriter routes goobs' printf-style log lines to Logger.Debug.
type debugWriter struct{ logger Logger }

func (w debugWriter) Write(p []byte) (int, error) {
	w.logger.Debug("goobs", "line", strings.TrimSpace(string(p)))
	return len(p), nil
}

// Options configures a Client.
type Options struct {
	URL      string
	Password string

	RetryInterval    time.Duration
	RequestTimeout   time.Duration
	HandshakeTimeout time.Duration

	// PingInterval is how often an idle session is checked with GetVersion.
	PingInterval time.Duration

	Logger Logger
}

// Client keeps an obs-websocket v5 session open and exposes the typed
// requests printcast uses. The wire protocol is handled by goobs; Client
// owns reconnection and the session lifecycle around it.
//
// Thread Safety: all methods are safe for concurrent use. Requests may be
// issued from any goroutine while a session is identified.
type Client struct {
	opts   Options
	logger Logger
	dialer *websocket.Dialer

	mu      sync.Mutex
	session *goobs.Client
	done    chan struct{}
	state   State

	callbackMu   sync.RWMutex
	onConnect    func(ctx context.Context)
	onDisconnect func(DisconnectInfo)

	// wg tracks onConnect goroutines.
	wg sync.WaitGroup
}

// NewClient creates a client. It does not connect until Run is called.
func NewClient(opts Options) *Client {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Client{
		opts:   opts,
		logger: logger,
		dialer: &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
	}
}

// SetOnConnect registers a callback invoked in its own goroutine after each
// successful Identify. Its context ends when that session ends.
func (c *Client) SetOnConnect(fn func(ctx context.Context)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onConnect = fn
}

// SetOnDisconnect registers a callback invoked whenever a session ends or a
// connection attempt fails. It is not called when Run's context is cancelled.
func (c *Client) SetOnDisconnect(fn func(DisconnectInfo)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onDisconnect = fn
}

// Run connects and keeps reconnecting until ctx is cancelled. It returns nil
// on cancellation and ErrAuthFailed when the server rejects the password.
func (c *Client) Run(ctx context.Context) error {
	defer c.wg.Wait()

	host, err := hostFromURL(c.opts.URL)
	if err != nil {
		c.setState(StateFailed)
		return err
	}

	for {
		info := c.runSession(ctx, host)

		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return nil
		}

		if info.Code == CloseAuthenticationFailed {
			c.setState(StateFailed)
			c.notifyDisconnect(info)
			return ErrAuthFailed
		}

		c.setState(StateReconnecting)
		c.notifyDisconnect(info)

		t := time.NewTimer(c.opts.RetryInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			c.setState(StateDisconnected)
			return nil
		case <-t.C:
		}
	}
}

// hostFromURL reduces ws://host:port to the host:port form goobs dials.
func hostFromURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("obs: parsing url %q: %w", raw, err)
	}
	if u.Scheme != "ws" {
		return "", fmt.Errorf("obs: unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("obs: url %q has no host", raw)
	}
	return u.Host, nil
}

// dial connects and identifies. A cancelled ctx abandons the attempt; the
// half-open session is closed once goobs gives up on it.
func (c *Client) dial(ctx context.Context, host string) (*goobs.Client, error) {
	type result struct {
		client *goobs.Client
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		client, err := goobs.New(host,
			goobs.WithPassword(c.opts.Password),
			goobs.WithDialer(c.dialer),
			goobs.WithLogger(log.New(debugWriter{c.logger}, "", 0)),
		)
		ch <- result{client, err}
	}()

	select {
	case r := <-ch:
		return r.client, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.client != nil {
				//nolint:errcheck // Abandoned session
				r.client.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
}

// runSession runs one connection from dial to close.
func (c *Client) runSession(ctx context.Context, host string) DisconnectInfo {
	c.setState(StateConnecting)

	client, err := c.dial(ctx, host)
	if err != nil {
		return disconnectInfo("connect failed", err)
	}

	sessCtx, sessCancel := context.WithCancel(ctx)
	defer sessCancel()

	done := make(chan struct{})
	c.mu.Lock()
	c.session = client
	c.done = done
	c.state = StateConnected
	c.mu.Unlock()

	c.logger.Info("identified with OBS", "url", c.opts.URL)

	c.callbackMu.RLock()
	onConnect := c.onConnect
	c.callbackMu.RUnlock()
	if onConnect != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("panic in OBS connect handler", "panic", r)
				}
			}()
			onConnect(sessCtx)
		}()
	}

	info := c.watch(ctx, client)

	sessCancel()
	c.mu.Lock()
	c.session = nil
	c.done = nil
	c.state = StateDisconnected
	c.mu.Unlock()
	close(done)

	//nolint:errcheck // Session is over either way
	client.Disconnect()
	return info
}

// watch blocks until ctx ends or the session is lost. Loss shows up either as
// goobs closing its event channel or as a failed GetVersion ping.
func (c *Client) watch(ctx context.Context, client *goobs.Client) DisconnectInfo {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	events := client.IncomingEvents
	for {
		select {
		case <-ctx.Done():
			return DisconnectInfo{Reason: "shutdown"}
		case ev, ok := <-events:
			if !ok {
				return DisconnectInfo{Reason: "connection lost"}
			}
			c.logger.Debug("obs event", "type", fmt.Sprintf("%T", ev))
		case <-ticker.C:
			if err := c.ping(ctx, client); err != nil {
				if ctx.Err() != nil {
					return DisconnectInfo{Reason: "shutdown"}
				}
				return disconnectInfo("connection lost", err)
			}
		}
	}
}

func (c *Client) ping(ctx context.Context, client *goobs.Client) error {
	errCh := make(chan error, 1)
	go func() {
		_, err := client.General.GetVersion(&general.GetVersionParams{})
		errCh <- err
	}()

	timer := time.NewTimer(c.opts.RequestTimeout)
	defer timer.Stop()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: GetVersion", ErrTimeout)
	}
}

// request runs fn against the current session, bounded by ctx, RequestTimeout
// and the session's lifetime. goobs failures are translated into this
// package's errors.
func request[T any](ctx context.Context, c *Client, requestType string, fn func(*goobs.Client) (T, error)) (T, error) {
	var zero T

	c.mu.Lock()
	client, done := c.session, c.done
	c.mu.Unlock()
	if client == nil {
		return zero, ErrNotConnected
	}

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(client)
		ch <- result{v, err}
	}()

	timer := time.NewTimer(c.opts.RequestTimeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			return zero, requestError(requestType, r.err)
		}
		return r.v, nil
	case <-done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.C:
		return zero, fmt.Errorf("%w: %s", ErrTimeout, requestType)
	}
}

// call is request for operations without a result.
func (c *Client) call(ctx context.Context, requestType string, fn func(*goobs.Client) error) error {
	_, err := request(ctx, c, requestType, func(g *goobs.Client) (struct{}, error) {
		return struct{}{}, fn(g)
	})
	return err
}

// IsConnected reports whether a session is identified.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) notifyDisconnect(info DisconnectInfo) {
	c.callbackMu.RLock()
	fn := c.onDisconnect
	c.callbackMu.RUnlock()
	if fn != nil {
		fn(info)
	}
}

// HealthCheck reports ErrNotConnected unless a session is identified.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("obs health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}
