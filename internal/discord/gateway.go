package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kapu/reel-views-bot/internal/util"
	"go.uber.org/zap"
)

type InteractionCallback func(in *Interaction)

type StateCallback func(state WebSocketState)

// ReadyInfo is what the gateway learns from the READY event.
type ReadyInfo struct {
	SessionID     string
	ApplicationID string
	User          User
	GuildCount    int
}

type ReadyCallback func(info ReadyInfo)

type callbackEntry struct {
	id          int
	interaction InteractionCallback
	state       StateCallback
	ready       ReadyCallback
}

type GatewayConfig struct {
	URL                  string
	Token                string
	Intents              int
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	Activity             string
}

// Gateway keeps one gateway session alive. Interaction callbacks run on their
// own goroutine so a long command never stalls heartbeats.
type Gateway struct {
	cfg GatewayConfig

	connMu  sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	state   WebSocketState
	stateMu sync.RWMutex

	callbacks      []callbackEntry
	nextCallbackID int
	callbacksMu    sync.RWMutex

	reconnectAttempts int
	reconnectMu       sync.Mutex

	seq           atomic.Int64
	heartbeatSent atomic.Int64
	latency       atomic.Int64
	guildCount    atomic.Int32

	logger     *zap.Logger
	stopCh     chan struct{}
	stopOnce   sync.Once
	listenerWg sync.WaitGroup
}

func NewGateway(cfg GatewayConfig, logger *zap.Logger) *Gateway {
	if cfg.Intents == 0 {
		cfg.Intents = DefaultIntents
	}
	g := &Gateway{
		cfg:            cfg,
		state:          WSStateDisconnected,
		logger:         util.OrNop(logger),
		stopCh:         make(chan struct{}),
		nextCallbackID: 1,
	}
	g.seq.Store(-1)
	g.latency.Store(-1)
	return g
}

// Connect dials the gateway, waits for HELLO and sends IDENTIFY. READY arrives
// asynchronously and moves the state to WSStateReady.
func (g *Gateway) Connect(ctx context.Context) error {
	g.stateMu.Lock()
	if g.state == WSStateConnected || g.state == WSStateConnecting || g.state == WSStateReady {
		g.stateMu.Unlock()
		g.logger.Warn("Gateway already connected or connecting")
		return nil
	}
	g.stateMu.Unlock()

	g.setState(WSStateConnecting)

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, g.cfg.URL, nil)
	if err != nil {
		g.logger.Error("Failed to connect gateway", zap.Error(err))
		g.setState(WSStateFailed)
		g.scheduleReconnect(ctx)
		return err
	}

	interval, err := g.awaitHello(conn)
	if err != nil {
		_ = conn.Close()
		g.logger.Error("Gateway handshake failed", zap.Error(err))
		g.setState(WSStateFailed)
		g.scheduleReconnect(ctx)
		return err
	}

	g.connMu.Lock()
	g.conn = conn
	g.connMu.Unlock()

	if err := g.identify(conn); err != nil {
		_ = conn.Close()
		g.setState(WSStateFailed)
		g.scheduleReconnect(ctx)
		return err
	}

	g.setState(WSStateConnected)
	g.logger.Info("Gateway connected",
		zap.String("url", g.cfg.URL),
		zap.Duration("heartbeat_interval", interval),
	)

	done := make(chan struct{})
	g.listenerWg.Add(2)
	go g.listen(ctx, conn, done)
	go g.heartbeat(ctx, conn, interval, done)

	return nil
}

func (g *Gateway) awaitHello(conn *websocket.Conn) (time.Duration, error) {
	_ = conn.SetReadDeadline(time.Now().Add(15 * time.Second))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	var p gatewayPayload
	if err := conn.ReadJSON(&p); err != nil {
		return 0, fmt.Errorf("read hello: %w", err)
	}
	if p.Op != opHello {
		return 0, fmt.Errorf("expected hello, got op %d", p.Op)
	}
	var hello helloData
	if err := json.Unmarshal(p.D, &hello); err != nil {
		return 0, fmt.Errorf("decode hello: %w", err)
	}
	if hello.HeartbeatInterval <= 0 {
		return 0, fmt.Errorf("invalid heartbeat interval %d", hello.HeartbeatInterval)
	}
	return time.Duration(hello.HeartbeatInterval) * time.Millisecond, nil
}

func (g *Gateway) identify(conn *websocket.Conn) error {
	data := identifyData{
		Token:   g.cfg.Token,
		Intents: g.cfg.Intents,
		Properties: identifyProperties{
			OS:      "linux",
			Browser: "reel-views-bot",
			Device:  "reel-views-bot",
		},
	}
	if g.cfg.Activity != "" {
		data.Presence = &presenceUpdate{
			Activities: []presenceActivity{{Name: g.cfg.Activity, Type: 3}},
			Status:     "online",
		}
	}
	return g.write(conn, opIdentify, data)
}

func (g *Gateway) write(conn *websocket.Conn, op int, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(gatewayPayload{Op: op, D: raw})
}

func (g *Gateway) sendHeartbeat(conn *websocket.Conn) error {
	var d any
	if s := g.seq.Load(); s >= 0 {
		d = s
	}
	g.heartbeatSent.Store(time.Now().UnixNano())
	return g.write(conn, opHeartbeat, d)
}

func (g *Gateway) heartbeat(ctx context.Context, conn *websocket.Conn, interval time.Duration, done <-chan struct{}) {
	defer g.listenerWg.Done()

	// first beat is jittered
	wait := time.Duration(rand.Float64() * float64(interval))
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-g.stopCh:
			return
		case <-done:
			return
		case <-timer.C:
			if err := g.sendHeartbeat(conn); err != nil {
				g.logger.Warn("Heartbeat failed", zap.Error(err))
				_ = conn.Close()
				return
			}
			timer.Reset(interval)
		}
	}
}

func (g *Gateway) listen(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer g.listenerWg.Done()
	defer close(done)
	defer g.logger.Info("Gateway listener stopped")

	for {
		var p gatewayPayload
		if err := conn.ReadJSON(&p); err != nil {
			select {
			case <-g.stopCh:
				return
			case <-ctx.Done():
				return
			default:
			}
			g.logger.Error("Gateway read error", zap.Error(err))
			g.setState(WSStateDisconnected)
			g.scheduleReconnect(ctx)
			return
		}
		g.handlePayload(conn, &p)
	}
}

func (g *Gateway) handlePayload(conn *websocket.Conn, p *gatewayPayload) {
	switch p.Op {
	case opDispatch:
		if p.S != nil {
			g.seq.Store(*p.S)
		}
		g.handleDispatch(p.T, p.D)
	case opHeartbeat:
		if err := g.sendHeartbeat(conn); err != nil {
			g.logger.Warn("Requested heartbeat failed", zap.Error(err))
		}
	case opHeartbeatACK:
		if sent := g.heartbeatSent.Load(); sent > 0 {
			g.latency.Store(time.Now().UnixNano() - sent)
		}
	case opReconnect, opInvalidSession:
		g.logger.Warn("Gateway asked for a new session", zap.Int("op", p.Op))
		g.seq.Store(-1)
		_ = conn.Close()
	}
}

func (g *Gateway) handleDispatch(event string, data json.RawMessage) {
	switch event {
	case "READY":
		var r readyData
		if err := json.Unmarshal(data, &r); err != nil {
			g.logger.Error("Failed to parse READY", zap.Error(err))
			return
		}
		g.guildCount.Store(int32(len(r.Guilds)))
		g.reconnectMu.Lock()
		g.reconnectAttempts = 0
		g.reconnectMu.Unlock()

		info := ReadyInfo{
			SessionID:     r.SessionID,
			ApplicationID: r.Application.ID,
			User:          r.User,
			GuildCount:    len(r.Guilds),
		}
		g.logger.Info("Gateway ready",
			zap.String("user", r.User.Username),
			zap.Int("guilds", info.GuildCount),
		)
		g.setState(WSStateReady)
		for _, entry := range g.snapshot() {
			if entry.ready != nil {
				entry.ready(info)
			}
		}

	case "GUILD_DELETE":
		if g.guildCount.Load() > 0 {
			g.guildCount.Add(-1)
		}

	case "INTERACTION_CREATE":
		var in Interaction
		if err := json.Unmarshal(data, &in); err != nil {
			dataStr := string(data)
			if len(dataStr) > 200 {
				dataStr = dataStr[:200]
			}
			g.logger.Error("Failed to parse interaction",
				zap.Error(err),
				zap.String("data", dataStr),
			)
			return
		}
		for _, entry := range g.snapshot() {
			if entry.interaction != nil {
				go entry.interaction(&in)
			}
		}
	}
}

func (g *Gateway) snapshot() []callbackEntry {
	g.callbacksMu.RLock()
	defer g.callbacksMu.RUnlock()
	out := make([]callbackEntry, len(g.callbacks))
	copy(out, g.callbacks)
	return out
}

func (g *Gateway) scheduleReconnect(ctx context.Context) {
	g.reconnectMu.Lock()
	g.reconnectAttempts++
	attempt := g.reconnectAttempts
	g.reconnectMu.Unlock()

	if attempt > g.cfg.MaxReconnectAttempts {
		g.logger.Error("Max reconnect attempts reached",
			zap.Int("attempts", attempt),
		)
		g.setState(WSStateExhausted)
		return
	}

	g.setState(WSStateReconnecting)

	g.logger.Info("Scheduling reconnect",
		zap.Int("attempt", attempt),
		zap.Int("max", g.cfg.MaxReconnectAttempts),
		zap.Duration("delay", g.cfg.ReconnectDelay),
	)

	go func() {
		select {
		case <-time.After(g.cfg.ReconnectDelay):
			if err := g.Connect(ctx); err != nil {
				g.logger.Error("Reconnect failed", zap.Error(err))
			}
		case <-g.stopCh:
		case <-ctx.Done():
		}
	}()
}

func (g *Gateway) register(entry callbackEntry) func() {
	g.callbacksMu.Lock()
	entry.id = g.nextCallbackID
	g.nextCallbackID++
	g.callbacks = append(g.callbacks, entry)
	g.callbacksMu.Unlock()

	return func() {
		g.callbacksMu.Lock()
		defer g.callbacksMu.Unlock()
		for i, e := range g.callbacks {
			if e.id == entry.id {
				g.callbacks = append(g.callbacks[:i], g.callbacks[i+1:]...)
				break
			}
		}
	}
}

func (g *Gateway) OnInteraction(callback InteractionCallback) func() {
	return g.register(callbackEntry{interaction: callback})
}

func (g *Gateway) OnStateChange(callback StateCallback) func() {
	return g.register(callbackEntry{state: callback})
}

func (g *Gateway) OnReady(callback ReadyCallback) func() {
	return g.register(callbackEntry{ready: callback})
}

func (g *Gateway) setState(newState WebSocketState) {
	g.stateMu.Lock()
	oldState := g.state
	g.state = newState
	g.stateMu.Unlock()

	if oldState != newState {
		g.logger.Info("Gateway state changed",
			zap.String("from", oldState.String()),
			zap.String("to", newState.String()),
		)

		for _, entry := range g.snapshot() {
			if entry.state != nil {
				entry.state(newState)
			}
		}
	}
}

func (g *Gateway) GetState() WebSocketState {
	g.stateMu.RLock()
	defer g.stateMu.RUnlock()
	return g.state
}

func (g *Gateway) IsReady() bool {
	return g.GetState() == WSStateReady
}

// Latency is the last heartbeat round trip, or -1 before the first ACK.
func (g *Gateway) Latency() time.Duration {
	return time.Duration(g.latency.Load())
}

func (g *Gateway) GuildCount() int {
	return int(g.guildCount.Load())
}

func (g *Gateway) Disconnect() error {
	g.stopOnce.Do(func() {
		close(g.stopCh)
	})

	g.connMu.Lock()
	conn := g.conn
	g.conn = nil
	g.connMu.Unlock()

	if conn != nil {
		g.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		g.writeMu.Unlock()
		if err := conn.Close(); err != nil {
			g.logger.Error("Failed to close gateway", zap.Error(err))
		}
	}

	g.setState(WSStateDisconnected)
	g.logger.Info("Gateway disconnected")

	done := make(chan struct{})
	go func() {
		g.listenerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.logger.Info("Listener stopped cleanly")
	case <-time.After(5 * time.Second):
		g.logger.Warn("Timeout waiting for listener to stop")
	}

	return nil
}
