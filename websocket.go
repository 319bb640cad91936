package netpute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
)

const (
	// Heartbeat interval
	HeartbeatInterval = 30 * time.Second

	// Reconnect settings
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectAttempts = 10

	writeWait = 10 * time.Second
)

// ErrBridgeNotConnected is returned by requests issued while the relay is down
var ErrBridgeNotConnected = errors.New("wallet bridge not connected")

// BridgeConfig holds configuration for the BridgeProvider
type BridgeConfig struct {
	// Endpoint is the relay URL, e.g. wss://relay.example/wallet
	Endpoint string
	// Session is passed as the session query parameter so the relay can pair
	// this client with a wallet page
	Session              string
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
	Dialer               *websocket.Dialer
	Logger               log.Logger
	OnConnect            func()
	OnDisconnect         func()
	OnError              func(err error)
}

type bridgeRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type bridgeMessage struct {
	ID     *uint64         `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ProviderError  `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// BridgeProvider is a Provider that forwards wallet requests over a
// websocket to a relay holding the real wallet, such as a browser page with
// an injected provider. Replies are matched to requests by id; events pushed
// by the relay are fanned out to subscribers.
type BridgeProvider struct {
	config BridgeConfig
	log    log.Logger

	mu               sync.RWMutex
	conn             *websocket.Conn
	isConnected      bool
	closed           bool
	ctx              context.Context
	cancel           context.CancelFunc
	heartbeatTicker  *time.Ticker
	reconnectAttempt int

	writeMu sync.Mutex
	nextID  atomic.Uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan bridgeMessage

	feed event.Feed
}

// NewBridgeProvider creates a new BridgeProvider
func NewBridgeProvider(config BridgeConfig) *BridgeProvider {
	if config.ReconnectInterval == 0 {
		config.ReconnectInterval = DefaultReconnectInterval
	}
	if config.MaxReconnectAttempts == 0 {
		config.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = HeartbeatInterval
	}
	if config.Dialer == nil {
		config.Dialer = websocket.DefaultDialer
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New("module", "netpute", "component", "bridge")
	}

	return &BridgeProvider{
		config:  config,
		log:     logger,
		pending: make(map[uint64]chan bridgeMessage),
	}
}

// Connect establishes the relay connection. The connection outlives ctx;
// call Close to shut it down.
func (b *BridgeProvider) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isConnected {
		return nil
	}

	u, err := url.Parse(b.config.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to parse bridge endpoint: %w", err)
	}
	if b.config.Session != "" {
		q := u.Query()
		q.Set("session", b.config.Session)
		u.RawQuery = q.Encode()
	}

	conn, _, err := b.config.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to bridge: %w", err)
	}

	b.ctx, b.cancel = context.WithCancel(context.WithoutCancel(ctx))
	b.conn = conn
	b.isConnected = true
	b.closed = false
	b.reconnectAttempt = 0

	b.startHeartbeat(b.ctx, conn)
	go b.readLoop(b.ctx, conn)

	b.log.Info("Bridge connected", "endpoint", b.config.Endpoint)
	if b.config.OnConnect != nil {
		go b.config.OnConnect()
	}
	return nil
}

// Close shuts the connection down and stops reconnecting
func (b *BridgeProvider) Close() error {
	b.mu.Lock()
	b.closed = true
	err := b.disconnect()
	b.mu.Unlock()

	b.failPending(ErrBridgeNotConnected)
	return err
}

// disconnect is the internal disconnect method (must be called with lock held)
func (b *BridgeProvider) disconnect() error {
	if !b.isConnected {
		return nil
	}
	b.isConnected = false

	if b.cancel != nil {
		b.cancel()
	}
	if b.heartbeatTicker != nil {
		b.heartbeatTicker.Stop()
	}

	var err error
	if b.conn != nil {
		err = b.conn.Close()
		b.conn = nil
	}

	if b.config.OnDisconnect != nil {
		go b.config.OnDisconnect()
	}
	return err
}

// IsConnected returns the current connection status
func (b *BridgeProvider) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.isConnected
}

// Subscribe delivers relay-pushed wallet events on ch
func (b *BridgeProvider) Subscribe(ch chan<- ProviderEvent) event.Subscription {
	return b.feed.Subscribe(ch)
}

// Request forwards a JSON-RPC call to the wallet and waits for its reply
func (b *BridgeProvider) Request(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	id := b.nextID.Add(1)
	reply := make(chan bridgeMessage, 1)

	b.pendingMu.Lock()
	b.pending[id] = reply
	b.pendingMu.Unlock()
	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, id)
		b.pendingMu.Unlock()
	}()

	if err := b.sendMessage(bridgeRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return &ProviderError{Code: CodeDisconnected, Message: err.Error()}
	}

	select {
	case msg := <-reply:
		if msg.Error != nil {
			return msg.Error
		}
		if result == nil || len(msg.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(msg.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sendMessage sends a message over the websocket connection
func (b *BridgeProvider) sendMessage(msg interface{}) error {
	b.mu.RLock()
	conn := b.conn
	connected := b.isConnected
	b.mu.RUnlock()

	if !connected || conn == nil {
		return ErrBridgeNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// startHeartbeat pings the relay until ctx is done (must be called with lock held)
func (b *BridgeProvider) startHeartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(b.config.HeartbeatInterval)
	b.heartbeatTicker = ticker

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					b.reportError(fmt.Errorf("heartbeat failed: %w", err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// readLoop continuously reads messages from the websocket
func (b *BridgeProvider) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.reportError(fmt.Errorf("read error: %w", err))
			}
			b.handleDisconnect()
			return
		}

		var msg bridgeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			b.reportError(fmt.Errorf("malformed bridge message: %w", err))
			continue
		}
		b.dispatch(msg)
	}
}

func (b *BridgeProvider) dispatch(msg bridgeMessage) {
	if msg.ID != nil {
		b.pendingMu.Lock()
		reply, ok := b.pending[*msg.ID]
		b.pendingMu.Unlock()
		if ok {
			reply <- msg
		}
		return
	}

	switch msg.Event {
	case ProviderEventAccountsChanged:
		var accounts []common.Address
		if err := json.Unmarshal(msg.Data, &accounts); err != nil {
			b.reportError(fmt.Errorf("malformed accountsChanged: %w", err))
			return
		}
		b.feed.Send(ProviderEvent{Name: msg.Event, Accounts: accounts})
	case ProviderEventChainChanged:
		var chainID string
		if err := json.Unmarshal(msg.Data, &chainID); err != nil {
			b.reportError(fmt.Errorf("malformed chainChanged: %w", err))
			return
		}
		b.feed.Send(ProviderEvent{Name: msg.Event, ChainID: chainID})
	default:
		b.log.Debug("Ignoring bridge message", "event", msg.Event)
	}
}

// failPending resolves every in-flight request with err
func (b *BridgeProvider) failPending(err error) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	for id, reply := range b.pending {
		select {
		case reply <- bridgeMessage{Error: &ProviderError{Code: CodeDisconnected, Message: err.Error()}}:
		default:
		}
		delete(b.pending, id)
	}
}

// handleDisconnect handles disconnection and attempts reconnection
func (b *BridgeProvider) handleDisconnect() {
	b.mu.Lock()
	_ = b.disconnect()
	closed := b.closed
	b.mu.Unlock()

	b.failPending(ErrBridgeNotConnected)
	b.log.Warn("Bridge disconnected", "endpoint", b.config.Endpoint)

	if !closed {
		go b.attemptReconnect()
	}
}

// attemptReconnect attempts to reconnect to the relay
func (b *BridgeProvider) attemptReconnect() {
	for {
		b.mu.Lock()
		if b.closed || b.isConnected {
			b.mu.Unlock()
			return
		}
		if b.reconnectAttempt >= b.config.MaxReconnectAttempts {
			b.mu.Unlock()
			b.reportError(fmt.Errorf("max reconnect attempts (%d) reached", b.config.MaxReconnectAttempts))
			return
		}
		b.reconnectAttempt++
		attempt := b.reconnectAttempt
		b.mu.Unlock()

		time.Sleep(b.config.ReconnectInterval)

		if err := b.Connect(context.Background()); err != nil {
			b.reportError(fmt.Errorf("reconnect attempt %d failed: %w", attempt, err))
			continue
		}
		return
	}
}

func (b *BridgeProvider) reportError(err error) {
	b.log.Warn("Bridge error", "err", err)
	if b.config.OnError != nil {
		b.config.OnError(err)
	}
}
