// Package websocket pushes dashboard snapshots to browser clients. Clients
// subscribe to dataset topics; the hub retains the latest event per topic
// so a new subscriber sees the current view without waiting for a tick.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Event is one message pushed to clients.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	State     string          `json:"state,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound subscription change.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// EventPublisher publishes events to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Conn abstracts a websocket connection for testing.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is a single connection and its topic set.
type Client struct {
	ID     string
	Send   chan []byte
	topics map[string]struct{}
	conn   Conn
}

// NewClient creates a client with a buffered send queue.
func NewClient(conn Conn) *Client {
	return &Client{
		ID:     uuid.NewString(),
		Send:   make(chan []byte, sendBuffer),
		topics: make(map[string]struct{}),
		conn:   conn,
	}
}

// Hub tracks clients, their subscriptions and the retained event of each
// topic.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{} // topic -> subscribers
	all      map[*Client]struct{}
	retained map[string][]byte
	logger   zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:  make(map[string]map[*Client]struct{}),
		all:      make(map[*Client]struct{}),
		retained: make(map[string][]byte),
		logger:   logger.With().Str("component", "websocket").Logger(),
	}
}

// Register adds a client and subscribes it to topics.
func (h *Hub) Register(client *Client, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[client] = struct{}{}
	h.subscribeLocked(client, topics)
	h.logger.Debug().Str("client_id", client.ID).Strs("topics", topics).Msg("client registered")
}

// Unregister removes a client from every topic and closes its send queue.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.all[client]; !ok {
		return
	}
	for topic := range client.topics {
		h.dropLocked(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
	h.logger.Debug().Str("client_id", client.ID).Msg("client unregistered")
}

// Subscribe adds topics to a registered client. Topics it already holds
// are ignored. The retained event of each new topic is queued right away.
func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.all[client]; !ok {
		return
	}
	h.subscribeLocked(client, topics)
}

func (h *Hub) subscribeLocked(client *Client, topics []string) {
	for _, topic := range topics {
		if topic == "" {
			continue
		}
		if _, ok := client.topics[topic]; ok {
			continue
		}
		client.topics[topic] = struct{}{}
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][client] = struct{}{}
		if data, ok := h.retained[topic]; ok {
			h.offer(client, data)
		}
	}
}

// Unsubscribe removes topics from a registered client.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		if _, ok := client.topics[topic]; !ok {
			continue
		}
		delete(client.topics, topic)
		h.dropLocked(topic, client)
	}
}

func (h *Hub) dropLocked(topic string, client *Client) {
	subscribers, ok := h.clients[topic]
	if !ok {
		return
	}
	delete(subscribers, client)
	if len(subscribers) == 0 {
		delete(h.clients, topic)
	}
}

// ProcessMessage applies an inbound subscription change.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	default:
		h.logger.Debug().Str("client_id", client.ID).Str("action", msg.Action).Msg("unknown client action")
	}
}

// offer queues data without blocking; a slow client misses the event and
// catches up on the next one.
func (h *Hub) offer(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		h.logger.Warn().Str("client_id", client.ID).Msg("client queue full, event dropped")
	}
}

// Broadcast retains event for its topic and sends it to the topic's
// subscribers.
func (h *Hub) Broadcast(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retained[event.Topic] = data
	for client := range h.clients[event.Topic] {
		h.offer(client, data)
	}
	return nil
}

// Publish implements EventPublisher.
func (h *Hub) Publish(_ context.Context, event Event) error {
	return h.Broadcast(event)
}

// Retained returns the last event broadcast on topic.
func (h *Hub) Retained(topic string) (Event, bool) {
	h.mu.RLock()
	data, ok := h.retained[topic]
	h.mu.RUnlock()
	if !ok {
		return Event{}, false
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, false
	}
	return ev, true
}

// Subscriptions returns the client's topics in sorted order.
func (h *Hub) Subscriptions(client *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(client.topics))
	for t := range client.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP requests and runs the client pumps.
type Handler struct {
	hub           *Hub
	defaultTopics []string
}

// NewHandler serves hub. Clients that name no topics in the "topics"
// query parameter are subscribed to defaultTopics.
func NewHandler(hub *Hub, defaultTopics ...string) *Handler {
	return &Handler{hub: hub, defaultTopics: defaultTopics}
}

func (wh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wh.HandleConnect)
}

func (wh *Handler) topics(c echo.Context) []string {
	raw := c.QueryParam("topics")
	if raw == "" {
		return wh.defaultTopics
	}
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (wh *Handler) HandleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	client := NewClient(&gorillaConn{ws})
	wh.hub.Register(client, wh.topics(c)...)

	go wh.writePump(client, ws)
	go wh.readPump(client, ws)
	return nil
}

func (wh *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wh.hub.Unregister(client)
		_ = client.conn.Close()
	}()
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		wh.hub.ProcessMessage(client, msg)
	}
}

func (wh *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()
	for {
		select {
		case message, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(gorillawebsocket.CloseMessage, nil)
				return
			}
			if err := client.conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type gorillaConn struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConn) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConn) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConn) Close() error {
	return a.conn.Close()
}
