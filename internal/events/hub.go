package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"swap-ledger/internal/observability"
)

// WebSocket channels a client can subscribe to.
const (
	ChannelAll         = "ledger"      // every event
	ChannelLeaderboard = "leaderboard" // events that can move a ranking
	ChannelUserPrefix  = "user."       // user.<address>
	ChannelGroupPrefix = "group."      // group.<groupId>
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 90 * time.Second
	wsPingInterval = 30 * time.Second
	wsSendBuffer   = 64
)

type subscribeRequest struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

type envelope struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	TS      int64  `json:"ts"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Hub pushes ledger events to subscribed WebSocket clients.
type Hub struct {
	logger         *slog.Logger
	allowedOrigins map[string]struct{}
	allowAll       bool

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	send chan envelope
	subs *subscriptionSet
}

// NewHub creates a hub. An empty origin list or "*" allows every origin.
func NewHub(logger *slog.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		logger:         logger,
		allowedOrigins: make(map[string]struct{}),
		clients:        make(map[*wsClient]struct{}),
	}
	if len(allowedOrigins) == 0 {
		h.allowAll = true
	}
	for _, o := range allowedOrigins {
		if o == "*" {
			h.allowAll = true
		}
		h.allowedOrigins[o] = struct{}{}
	}
	return h
}

// Publish implements Publisher. Slow clients drop events rather than block.
func (h *Hub) Publish(_ context.Context, events ...Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := time.Now().Unix()
	for _, e := range events {
		channels := channelsFor(e)
		for c := range h.clients {
			for _, ch := range channels {
				if !c.subs.Has(ch) {
					continue
				}
				select {
				case c.send <- envelope{Type: "event", Channel: ch, Data: e, TS: now}:
				default:
					h.logger.Warn("websocket client too slow, dropping event", "channel", ch, "type", e.Type)
				}
			}
		}
	}
	observability.RecordEventPublished("websocket", nil)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func channelsFor(e Event) []string {
	channels := []string{ChannelAll}
	if e.Type != GroupChanged {
		channels = append(channels, ChannelLeaderboard)
	}
	if e.UserAddress != "" {
		channels = append(channels, ChannelUserPrefix+e.UserAddress)
	}
	if e.GroupID != "" {
		channels = append(channels, ChannelGroupPrefix+e.GroupID)
	}
	return channels
}

// ServeHTTP upgrades the connection and streams events for subscribed channels.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := upgrader
	up.CheckOrigin = func(req *http.Request) bool {
		return h.isOriginAllowed(strings.TrimSpace(req.Header.Get("Origin")))
	}

	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	c := &wsClient{send: make(chan envelope, wsSendBuffer), subs: newSubscriptionSet()}
	h.register(c)
	defer h.unregister(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	readErrCh := make(chan error, 1)
	go h.readLoop(ctx, conn, c, readErrCh)

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErrCh:
			if err != nil {
				h.logger.Debug("websocket read loop ended", "err", err)
			}
			return
		case msg := <-c.send:
			if err := writeJSON(conn, msg); err != nil {
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, conn *websocket.Conn, c *wsClient, readErrCh chan<- error) {
	conn.SetReadLimit(64 * 1024)
	if err := conn.SetReadDeadline(time.Now().Add(wsReadTimeout)); err == nil {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		})
	}
	for {
		select {
		case <-ctx.Done():
			readErrCh <- nil
			return
		default:
		}
		var req subscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			readErrCh <- err
			return
		}
		req.Type = strings.ToLower(strings.TrimSpace(req.Type))
		req.Channel = strings.TrimSpace(req.Channel)
		if req.Channel == "" {
			continue
		}
		switch req.Type {
		case "subscribe":
			c.subs.Add(req.Channel)
			c.trySend(envelope{Type: "subscribed", Channel: req.Channel, TS: time.Now().Unix()})
		case "unsubscribe":
			c.subs.Remove(req.Channel)
		default:
			c.trySend(envelope{Type: "error", Channel: req.Channel, Error: "unknown request type", TS: time.Now().Unix()})
		}
	}
}

func (c *wsClient) trySend(msg envelope) {
	select {
	case c.send <- msg:
	default:
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	observability.SetWSClients(n)
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	observability.SetWSClients(n)
}

func (h *Hub) isOriginAllowed(origin string) bool {
	if origin == "" || h.allowAll {
		return true
	}
	_, ok := h.allowedOrigins[origin]
	return ok
}

func writeJSON(conn *websocket.Conn, payload envelope) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

type subscriptionSet struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

func newSubscriptionSet() *subscriptionSet {
	return &subscriptionSet{items: map[string]struct{}{}}
}

func (s *subscriptionSet) Add(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[channel] = struct{}{}
}

func (s *subscriptionSet) Remove(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, channel)
}

func (s *subscriptionSet) Has(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[channel]
	return ok
}
