// Package rpc implements the OCPP-J (JSON-RPC-over-WebSocket) peer of
// spec §4.1: CALL/CALLRESULT/CALLERROR framing, message-id correlation,
// and inbound dispatch onto a shared worker pool.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/chargepoint/ocpp16cp/internal/ocpperr"
	"github.com/chargepoint/ocpp16cp/internal/timer"
)

// Subprotocol is the OCPP 1.6 WebSocket subprotocol name.
const Subprotocol = "ocpp1.6"

// Handler answers an inbound CALL. A non-nil *ocpperr.Error is sent back
// as a CALLERROR; any other non-nil error is wrapped as InternalError.
type Handler func(ctx context.Context, payload json.RawMessage) (response any, err error)

// Listener is notified of connection lifecycle events.
type Listener interface {
	Connected()
	Disconnected()
}

type pendingCall struct {
	resultCh chan callResultFrame
	errCh    chan callErrorFrame
}

// Peer is one end of a symmetric OCPP-J connection. The charge point uses
// it as a client (Dial); Accept builds the server end.
type Peer struct {
	log  *logrus.Entry
	pool *timer.Pool

	conn   *websocket.Conn
	connMu sync.Mutex // not taken by any method; conn is only set in NewPeer

	sendMu sync.Mutex // single-producer guarantee on the send path (spec §5)

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	pendingMu sync.Mutex
	pending   map[string]pendingCall

	listener Listener

	closeOnce sync.Once
	closed    chan struct{}
}

// NewPeer wraps an already-established *websocket.Conn.
func NewPeer(conn *websocket.Conn, pool *timer.Pool, log *logrus.Entry) *Peer {
	p := &Peer{
		log:      log,
		pool:     pool,
		conn:     conn,
		handlers: make(map[string]Handler),
		pending:  make(map[string]pendingCall),
		closed:   make(chan struct{}),
	}
	return p
}

// DialOptions configures an outbound connection.
type DialOptions struct {
	ChargePointID string
	User          string
	Password      string
	PingInterval  time.Duration
	TLSConfig     *http.Transport // nil for plain ws://
}

// Dial connects to a central system at url (which must already include the
// charge point id path segment per spec §6) using HTTP Basic credentials
// when User is non-empty, and returns a started Peer.
func Dial(ctx context.Context, url string, opts DialOptions, pool *timer.Pool, log *logrus.Entry) (*Peer, error) {
	dialer := websocket.Dialer{
		Subprotocols:     []string{Subprotocol},
		HandshakeTimeout: 10 * time.Second,
	}
	if opts.TLSConfig != nil {
		dialer.TLSClientConfig = opts.TLSConfig.TLSClientConfig
	}

	header := http.Header{}
	if opts.User != "" {
		req := &http.Request{Header: header}
		req.SetBasicAuth(opts.User, opts.Password)
		header = req.Header
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial: %w", err)
	}

	p := NewPeer(conn, pool, log)
	p.startPing(opts.PingInterval)
	p.Start()
	return p, nil
}

// Authenticator validates the (chargePointId, user, password) triple
// carried by a WebSocket upgrade request, per spec §4.1's server-side
// credential check. It is only used by Accept; Dial is the only role
// the charge point itself plays in production.
type Authenticator func(chargePointID, user, password string) bool

var upgrader = websocket.Upgrader{Subprotocols: []string{Subprotocol}}

// Accept upgrades an inbound HTTP request to a Peer, after checking auth
// against HTTP Basic credentials (if any were sent) and the path's
// trailing chargePointId segment. It writes its own failure response and
// returns a non-nil error if the upgrade or the credential check fails.
// Nothing in this module calls it; the charge point process itself only
// ever calls Dial.
func Accept(w http.ResponseWriter, r *http.Request, chargePointID string, auth Authenticator, pool *timer.Pool, log *logrus.Entry) (*Peer, error) {
	if auth != nil {
		user, password, _ := r.BasicAuth()
		if !auth(chargePointID, user, password) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return nil, fmt.Errorf("rpc: accept: credential check failed for %q", chargePointID)
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("rpc: accept: upgrade: %w", err)
	}

	p := NewPeer(conn, pool, log)
	p.Start()
	return p, nil
}

// RegisterListener sets the connection lifecycle listener.
func (p *Peer) RegisterListener(l Listener) {
	p.listener = l
}

// RegisterHandler binds action to fn. Registering the same action twice
// is a construction-time error (spec §4.6).
func (p *Peer) RegisterHandler(action string, fn Handler) error {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()
	if _, exists := p.handlers[action]; exists {
		return fmt.Errorf("rpc: handler for action %q already registered", action)
	}
	p.handlers[action] = fn
	return nil
}

// Start begins the read pump in its own goroutine.
func (p *Peer) Start() {
	go p.readLoop()
}

func (p *Peer) startPing(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.closed:
				return
			case <-ticker.C:
				p.sendMu.Lock()
				err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				p.sendMu.Unlock()
				if err != nil {
					p.log.WithError(err).Warn("ping failed")
				}
			}
		}
	}()
}

// IsConnected reports whether the underlying transport is still open.
func (p *Peer) IsConnected() bool {
	select {
	case <-p.closed:
		return false
	default:
		return true
	}
}

// Close tears down the transport and fails any outstanding Call.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.conn.Close()
		p.failAllPending(fmt.Errorf("rpc: connection closed"))
		if p.listener != nil {
			p.listener.Disconnected()
		}
	})
	return err
}

func (p *Peer) failAllPending(err error) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	for id, pc := range p.pending {
		delete(p.pending, id)
		close(pc.resultCh)
		close(pc.errCh)
		_ = err
	}
}

// Call sends a CALL for action and blocks until the matching CALLRESULT or
// CALLERROR arrives, ctx is done, or the transport closes. At most one
// outstanding Call per logical caller is the API's assumption (spec
// §4.1); callers needing more must serialize externally (the FIFO does).
func (p *Peer) Call(ctx context.Context, action string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal request: %w", err)
	}

	id := uuid.NewString()
	pc := pendingCall{
		resultCh: make(chan callResultFrame, 1),
		errCh:    make(chan callErrorFrame, 1),
	}

	p.pendingMu.Lock()
	p.pending[id] = pc
	p.pendingMu.Unlock()

	defer func() {
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
	}()

	frame := callFrame{messageId: id, action: action, payload: body}
	if err := p.send(frame); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closed:
		return nil, fmt.Errorf("rpc: connection closed while waiting for %s", action)
	case res, ok := <-pc.resultCh:
		if !ok {
			return nil, fmt.Errorf("rpc: connection closed while waiting for %s", action)
		}
		return res.payload, nil
	case errFrame, ok := <-pc.errCh:
		if !ok {
			return nil, fmt.Errorf("rpc: connection closed while waiting for %s", action)
		}
		return nil, ocpperr.NewWithDetails(errFrame.errorCode, errFrame.description, errFrame.details)
	}
}

func (p *Peer) send(v json.Marshaler) error {
	body, err := v.MarshalJSON()
	if err != nil {
		return fmt.Errorf("rpc: encode frame: %w", err)
	}
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, body)
}

func (p *Peer) readLoop() {
	if p.listener != nil {
		p.listener.Connected()
	}
	defer p.Close()

	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			p.log.WithError(err).Info("rpc: transport closed")
			return
		}
		frame, err := parseFrame(raw)
		if err != nil {
			p.log.WithError(err).Warn("rpc: malformed frame")
			continue
		}
		switch f := frame.(type) {
		case callFrame:
			p.pool.Submit(func() { p.handleInboundCall(f) })
		case callResultFrame:
			p.resolvePending(f.messageId, func(pc pendingCall) { pc.resultCh <- f })
		case callErrorFrame:
			p.resolvePending(f.messageId, func(pc pendingCall) { pc.errCh <- f })
		}
	}
}

func (p *Peer) resolvePending(id string, deliver func(pendingCall)) {
	p.pendingMu.Lock()
	pc, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	p.pendingMu.Unlock()
	if !ok {
		p.log.WithField("messageId", id).Warn("rpc: response for unknown/expired call")
		return
	}
	deliver(pc)
}

func (p *Peer) handleInboundCall(f callFrame) {
	p.handlersMu.RLock()
	h, ok := p.handlers[f.action]
	p.handlersMu.RUnlock()

	if !ok {
		p.sendError(f.messageId, ocpperr.New(ocpperr.NotImplemented, "no handler for "+f.action))
		return
	}

	resp, err := h(context.Background(), f.payload)
	if err != nil {
		if oerr, ok := ocpperr.As(err); ok {
			p.sendError(f.messageId, oerr)
		} else {
			p.sendError(f.messageId, ocpperr.New(ocpperr.InternalError, err.Error()))
		}
		return
	}

	body, err := json.Marshal(resp)
	if err != nil {
		p.sendError(f.messageId, ocpperr.New(ocpperr.InternalError, "failed to encode response"))
		return
	}
	if err := p.send(callResultFrame{messageId: f.messageId, payload: body}); err != nil {
		p.log.WithError(err).Warn("rpc: failed to send CALLRESULT")
	}
}

func (p *Peer) sendError(messageId string, oerr *ocpperr.Error) {
	if err := p.send(callErrorFrame{messageId: messageId, errorCode: oerr.Code, description: oerr.Description, details: oerr.Details}); err != nil {
		p.log.WithError(err).Warn("rpc: failed to send CALLERROR")
	}
}
