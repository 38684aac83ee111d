// Package websocket streams collection change snapshots to connected
// clients. It implements a hub-and-spoke pattern where each client
// subscribes to collection keys and receives a full snapshot event after
// every mutation. The hub also satisfies store.ChangeBus, so collections
// in other processes can push and receive changes over the same socket.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

// Event is the wire frame sent to WebSocket clients after a collection
// changes. Snapshot holds the full collection as a JSON array.
type Event struct {
	Type       string          `json:"type"`
	Collection string          `json:"collection"`
	Origin     string          `json:"origin"`
	Timestamp  time.Time       `json:"timestamp"`
	Snapshot   json.RawMessage `json:"snapshot"`
}

// ClientMessage is an inbound frame from a WebSocket client. Action is one
// of "subscribe", "unsubscribe" or "publish"; Change is set for "publish".
type ClientMessage struct {
	Action      string        `json:"action"`
	Collections []string      `json:"collections"`
	Change      *store.Change `json:"change,omitempty"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client represents a single WebSocket connection.
type Client struct {
	ID          string
	Collections []string
	Send        chan []byte
	hub         *Hub
	conn        Conn
}

// Hub is the central connection manager. It tracks WebSocket clients per
// collection key and in-process listeners registered through the
// store.ChangeBus interface. All operations are safe for concurrent use.
type Hub struct {
	logger zerolog.Logger

	mu          sync.RWMutex
	clients     map[string]map[*Client]struct{} // collection -> clients
	all         map[*Client]struct{}
	listenerSeq int
	listeners   map[string]map[int]func(store.Change) // collection -> in-process listeners
}

// NewHub creates a Hub ready to manage clients and listeners.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:    logger,
		clients:   make(map[string]map[*Client]struct{}),
		all:       make(map[*Client]struct{}),
		listeners: make(map[string]map[int]func(store.Change)),
	}
}

// Register adds a client and subscribes it to its initial collections.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, name := range client.Collections {
		if h.clients[name] == nil {
			h.clients[name] = make(map[*Client]struct{})
		}
		h.clients[name][client] = struct{}{}
	}
}

// Unregister removes a client from the hub and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, name := range client.Collections {
		if subscribers, ok := h.clients[name]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, name)
			}
		}
	}
	delete(h.all, client)
	close(client.Send)
}

// AddSubscriptions subscribes an already-registered client to more
// collection keys.
func (h *Hub) AddSubscriptions(client *Client, collections []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, name := range collections {
		if h.clients[name] == nil {
			h.clients[name] = make(map[*Client]struct{})
		}
		h.clients[name][client] = struct{}{}
	}
	client.Collections = append(client.Collections, collections...)
}

// RemoveSubscriptions drops collection keys from a client.
func (h *Hub) RemoveSubscriptions(client *Client, collections []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removeSet := make(map[string]struct{}, len(collections))
	for _, name := range collections {
		removeSet[name] = struct{}{}
		if subscribers, ok := h.clients[name]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, name)
			}
		}
	}

	remaining := make([]string, 0, len(client.Collections))
	for _, name := range client.Collections {
		if _, rm := removeSet[name]; !rm {
			remaining = append(remaining, name)
		}
	}
	client.Collections = remaining
}

// ProcessMessage dispatches an inbound client frame. A "publish" frame
// carries a change from another instance and is fanned out to in-process
// listeners and to every other subscribed client.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.AddSubscriptions(client, msg.Collections)
	case "unsubscribe":
		h.RemoveSubscriptions(client, msg.Collections)
	case "publish":
		if msg.Change == nil || msg.Change.Collection == "" {
			return
		}
		h.fanOut(*msg.Change, client)
	}
}

// Publish implements store.ChangeBus. Local collections publish here after
// each successful mutation; the change reaches WebSocket clients and any
// in-process listeners (which filter their own origin themselves).
func (h *Hub) Publish(change store.Change) {
	h.fanOut(change, nil)
}

// Subscribe implements store.ChangeBus for in-process listeners.
func (h *Hub) Subscribe(collection string, fn func(store.Change)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.listeners[collection] == nil {
		h.listeners[collection] = make(map[int]func(store.Change))
	}
	id := h.listenerSeq
	h.listenerSeq++
	h.listeners[collection][id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.listeners[collection], id)
		if len(h.listeners[collection]) == 0 {
			delete(h.listeners, collection)
		}
	}
}

// fanOut delivers a change to in-process listeners and subscribed clients,
// skipping the client it arrived from.
func (h *Hub) fanOut(change store.Change, from *Client) {
	event := Event{
		Type:       "change",
		Collection: change.Collection,
		Origin:     change.Origin,
		Timestamp:  time.Now(),
		Snapshot:   change.Snapshot,
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("collection", change.Collection).Msg("failed to marshal change event")
		return
	}

	h.mu.RLock()
	fns := make([]func(store.Change), 0, len(h.listeners[change.Collection]))
	for _, fn := range h.listeners[change.Collection] {
		fns = append(fns, fn)
	}
	for client := range h.clients[change.Collection] {
		if client == from {
			continue
		}
		select {
		case client.Send <- data:
		default:
			// Client buffer full; skip to avoid blocking.
		}
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(change)
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// CollectionCount returns the number of clients subscribed to a collection.
func (h *Hub) CollectionCount(collection string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[collection])
}

// ---------------------------------------------------------------------------
// Handler — Echo HTTP handler for WebSocket connections
// ---------------------------------------------------------------------------

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Local single-user deployment; origin is not checked.
	},
}

// Handler handles HTTP-to-WebSocket upgrades and message routing.
type Handler struct {
	hub *Hub
}

// NewHandler creates a handler bound to the given Hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes registers the WebSocket endpoint on the provided Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.HandleConnect)
}

// HandleConnect upgrades an HTTP connection to WebSocket, registers the
// client with the hub, and starts read/write pumps. The optional
// "collections" query parameter seeds the initial subscriptions.
func (h *Handler) HandleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:          uuid.New().String(),
		Collections: c.Request().URL.Query()["collections"],
		Send:        make(chan []byte, 256),
		hub:         h.hub,
		conn:        &gorillaConnAdapter{ws},
	}

	h.hub.Register(client)

	go h.writePump(client, ws)
	go h.readPump(client, ws)

	return nil
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // Ignore malformed frames.
		}

		h.hub.ProcessMessage(client, msg)
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}

// gorillaConnAdapter wraps a gorilla/websocket.Conn to satisfy Conn.
type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}
