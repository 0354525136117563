// Package clearing owns the single persistent socket to the clearing service:
// connect and auth handshake, reconnect with capped backoff, serialized writes,
// and correlation of asynchronous responses to outstanding requests.
package clearing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"clearpay/go-backend/internal/fault"
	"clearpay/go-backend/internal/platform/ratelimiter"
	"clearpay/go-backend/internal/signer"
	"clearpay/go-backend/internal/wire"
)

const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
)

type Config struct {
	Endpoint            string        `yaml:"endpoint"`
	HandshakeTimeout    time.Duration `yaml:"handshakeTimeout"`
	RequestTimeout      time.Duration `yaml:"requestTimeout"`
	ReconnectInterval   time.Duration `yaml:"reconnectInterval"`
	ReconnectBackoffMax time.Duration `yaml:"reconnectBackoffMax"`
	RequestsPerSecond   float64       `yaml:"requestsPerSecond"`
	RequestBurst        int           `yaml:"requestBurst"`
}

func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:    5 * time.Second,
		RequestTimeout:      10 * time.Second,
		ReconnectInterval:   1 * time.Second,
		ReconnectBackoffMax: 30 * time.Second,
		RequestsPerSecond:   20,
		RequestBurst:        40,
	}
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = def.ReconnectInterval
	}
	if cfg.ReconnectBackoffMax < cfg.ReconnectInterval {
		cfg.ReconnectBackoffMax = cfg.ReconnectInterval
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.RequestBurst <= 0 {
		cfg.RequestBurst = def.RequestBurst
	}
	return cfg
}

// Conn is the explicitly owned clearing connection handle. The host
// application constructs one and injects it into the lifecycle manager and
// the payment orchestrator; it is never ambient state.
type Conn struct {
	cfg     Config
	sig     signer.Signer
	log     *slog.Logger
	pending *correlator
	limiter *ratelimiter.MapLimiter

	mu          sync.RWMutex
	ws          *websocket.Conn
	state       string
	closed      bool
	reconnectOn bool

	writeMu sync.Mutex
}

func NewConn(cfg Config, sig signer.Signer, log *slog.Logger) *Conn {
	cfg = normalizeConfig(cfg)
	if log == nil {
		log = slog.Default()
	}
	return &Conn{
		cfg:     cfg,
		sig:     sig,
		log:     log,
		pending: newCorrelator(),
		limiter: ratelimiter.New(cfg.RequestsPerSecond, cfg.RequestBurst, 10*time.Minute),
		state:   StateDisconnected,
	}
}

// Connect dials the endpoint and blocks until the auth handshake with the
// wallet address succeeds. Safe to call again after a drop; a no-op while
// connected.
func (c *Conn) Connect(ctx context.Context) error {
	if c.sig == nil {
		return fault.New(fault.KindPrecondition, "clearing.connect", "signer is required")
	}
	if c.cfg.Endpoint == "" {
		return fault.New(fault.KindPrecondition, "clearing.connect", "endpoint is not configured")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fault.New(fault.KindTransport, "clearing.connect", "connection is closed")
	}
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	if c.state == StateConnecting {
		c.mu.Unlock()
		return fault.New(fault.KindTransport, "clearing.connect", "connect already in progress")
	}
	c.state = StateConnecting
	c.mu.Unlock()

	dialer := &websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, c.cfg.Endpoint, nil)
	if err != nil {
		c.setDisconnected()
		return fault.Wrap(fault.KindTransport, "clearing.connect", err)
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	go c.readPump(ws)

	if err := c.authenticate(ctx); err != nil {
		c.teardown(ws)
		return err
	}

	c.mu.Lock()
	c.state = StateConnected
	c.mu.Unlock()
	c.log.Info("clearing connected", "endpoint", c.cfg.Endpoint, "wallet", c.sig.Address())
	return nil
}

func (c *Conn) authenticate(ctx context.Context) error {
	req, err := wire.EncodeAuthRequest(c.sig.Address(), c.sig.Sign)
	if err != nil {
		return fault.Wrap(fault.KindProtocol, "clearing.auth", err)
	}
	in, err := c.call(ctx, req, c.cfg.HandshakeTimeout)
	if err != nil {
		return fault.Wrap(fault.KindTransport, "clearing.auth", err)
	}
	switch resp := in.(type) {
	case wire.AuthAck:
		return nil
	case wire.ErrorFrame:
		return fault.Newf(fault.KindTransport, "clearing.auth", "handshake rejected: %s", resp.Message)
	default:
		return fault.Newf(fault.KindProtocol, "clearing.auth", "unexpected handshake response %T", in)
	}
}

func (c *Conn) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateConnected
}

func (c *Conn) State() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Close shuts the connection down permanently and voids pending requests.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws := c.ws
	c.ws = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	c.pending.failAll(fault.New(fault.KindTransport, "clearing.close", "connection closed"))
	if ws != nil {
		return ws.Close()
	}
	return nil
}

// Call transmits a signed request and blocks until the correlated response
// arrives, the timeout elapses, or the context is cancelled. A timeout <= 0
// falls back to the configured request timeout.
func (c *Conn) Call(ctx context.Context, req wire.SignedRequest, timeout time.Duration) (wire.Inbound, error) {
	if !c.IsConnected() {
		return nil, fault.New(fault.KindTransport, "clearing.call", "not connected to clearing service")
	}
	return c.call(ctx, req, timeout)
}

func (c *Conn) call(ctx context.Context, req wire.SignedRequest, timeout time.Duration) (wire.Inbound, error) {
	if timeout <= 0 {
		timeout = c.cfg.RequestTimeout
	}
	if err := c.limiter.Wait(ctx, req.Method); err != nil {
		return nil, fault.Wrap(fault.KindTransport, "clearing.call", err)
	}

	ch, err := c.pending.register(req.ID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	if err := c.write(req.Frame); err != nil {
		c.pending.unregister(req.ID)
		observeRequest(req.Method, "write_error", started)
		return nil, fault.Wrap(fault.KindTransport, "clearing.call", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			observeRequest(req.Method, "transport_error", started)
			return nil, res.err
		}
		observeRequest(req.Method, "ok", started)
		return res.in, nil
	case <-timer.C:
		c.pending.unregister(req.ID)
		observeRequest(req.Method, "timeout", started)
		return nil, fault.Newf(fault.KindTimeout, "clearing.call", "no response to %s within %s", req.Method, timeout)
	case <-ctx.Done():
		c.pending.unregister(req.ID)
		observeRequest(req.Method, "cancelled", started)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fault.Wrap(fault.KindTimeout, "clearing.call", ctx.Err())
		}
		return nil, ctx.Err()
	}
}

func (c *Conn) write(frame []byte) error {
	c.mu.RLock()
	ws := c.ws
	c.mu.RUnlock()
	if ws == nil {
		return errors.New("socket is not open")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *Conn) readPump(ws *websocket.Conn) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			c.handleReadFailure(ws, err)
			return
		}
		in, derr := wire.Decode(raw)
		if derr != nil {
			malformedFrames.Inc()
			c.log.Warn("dropping malformed clearing frame", "error", derr)
			continue
		}
		if !c.pending.dispatch(in) {
			unmatchedFrames.Inc()
			c.log.Debug("unmatched clearing frame", "correlation_id", in.CorrelationID())
		}
	}
}

func (c *Conn) handleReadFailure(ws *websocket.Conn, err error) {
	c.mu.Lock()
	if c.ws != ws {
		// A stale pump from a connection already torn down.
		c.mu.Unlock()
		return
	}
	c.ws = nil
	c.state = StateDisconnected
	closed := c.closed
	startReconnect := !closed && !c.reconnectOn
	if startReconnect {
		c.reconnectOn = true
	}
	c.mu.Unlock()

	_ = ws.Close()
	c.pending.failAll(fault.Wrap(fault.KindTransport, "clearing.read", err))
	if closed {
		return
	}
	c.log.Error("clearing connection lost", "error", err)
	if startReconnect {
		go c.reconnectLoop()
	}
}

func (c *Conn) teardown(ws *websocket.Conn) {
	c.mu.Lock()
	if c.ws == ws {
		c.ws = nil
	}
	c.state = StateDisconnected
	c.mu.Unlock()
	_ = ws.Close()
}

func (c *Conn) reconnectLoop() {
	defer func() {
		c.mu.Lock()
		c.reconnectOn = false
		c.mu.Unlock()
	}()

	backoff := c.cfg.ReconnectInterval
	for {
		time.Sleep(backoff)

		c.mu.RLock()
		closed := c.closed
		state := c.state
		c.mu.RUnlock()
		if closed || state == StateConnected {
			return
		}

		reconnectsTotal.Inc()
		err := c.Connect(context.Background())
		if err == nil {
			return
		}
		c.log.Warn("clearing reconnect failed", "error", err, "next_attempt_in", backoff.String())
		backoff *= 2
		if backoff > c.cfg.ReconnectBackoffMax {
			backoff = c.cfg.ReconnectBackoffMax
		}
	}
}

func (c *Conn) setDisconnected() {
	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()
}
