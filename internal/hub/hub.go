package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"shuttletrack/internal/domain"
)

// Client is one websocket subscriber. It receives resolutions for the
// routes it subscribed to through its Send buffer.
type Client struct {
	ID     string
	Send   chan []byte
	routes map[string]struct{}
	mu     sync.RWMutex
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:     id,
		Send:   make(chan []byte, bufferSize),
		routes: make(map[string]struct{}),
	}
}

func (c *Client) AddRoutes(routeIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range routeIDs {
		c.routes[id] = struct{}{}
	}
}

func (c *Client) RemoveRoutes(routeIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range routeIDs {
		delete(c.routes, id)
	}
}

func (c *Client) Routes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	routes := make([]string, 0, len(c.routes))
	for id := range c.routes {
		routes = append(routes, id)
	}
	return routes
}

// Hub fans committed resolutions out to clients subscribed by route.
type Hub struct {
	mu           sync.RWMutex
	clients      map[*Client]struct{}
	routeClients map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan domain.Resolution

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:      make(map[*Client]struct{}),
		routeClients: make(map[string]map[*Client]struct{}),
		register:     make(chan *Client, 16),
		unregister:   make(chan *Client, 16),
		broadcast:    make(chan domain.Resolution, 256),
		logger:       logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.ID, "total", total)

		case client := <-h.unregister:
			h.removeClient(client)

		case res := <-h.broadcast:
			h.fanout(res)
		}
	}
}

func (h *Hub) Subscribe(client *Client, routeIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.AddRoutes(routeIDs)

	for _, routeID := range routeIDs {
		if h.routeClients[routeID] == nil {
			h.routeClients[routeID] = make(map[*Client]struct{})
		}
		h.routeClients[routeID][client] = struct{}{}
	}
}

func (h *Hub) Unsubscribe(client *Client, routeIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.RemoveRoutes(routeIDs)

	for _, routeID := range routeIDs {
		if h.routeClients[routeID] != nil {
			delete(h.routeClients[routeID], client)
			if len(h.routeClients[routeID]) == 0 {
				delete(h.routeClients, routeID)
			}
		}
	}
}

// ResolutionCommitted implements the tracker's notifier hook.
func (h *Hub) ResolutionCommitted(res domain.Resolution) {
	if res.Arrival == nil {
		return
	}
	select {
	case h.broadcast <- res:
	default:
		h.logger.Warn("broadcast channel full, dropping resolution", "vehicle", res.Updated.VehicleID)
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ArrivalMessage is the wire form of one committed resolution.
type ArrivalMessage struct {
	Type    string         `json:"type"`
	Payload ArrivalPayload `json:"payload"`
}

type ArrivalPayload struct {
	Arrival  *domain.Arrival        `json:"arrival"`
	Skip     *domain.SkipError      `json:"skipError,omitempty"`
	Progress domain.VehicleProgress `json:"progress"`
}

func (h *Hub) fanout(res domain.Resolution) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.routeClients[res.Arrival.RouteID]
	if !ok || len(clients) == 0 {
		return
	}

	msg := ArrivalMessage{
		Type: "arrival",
		Payload: ArrivalPayload{
			Arrival:  res.Arrival,
			Skip:     res.Skip,
			Progress: res.Updated,
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	for client := range clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Debug("client send buffer full", "client_id", client.ID)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	for _, routeID := range client.Routes() {
		if h.routeClients[routeID] != nil {
			delete(h.routeClients[routeID], client)
			if len(h.routeClients[routeID]) == 0 {
				delete(h.routeClients, routeID)
			}
		}
	}

	delete(h.clients, client)
	close(client.Send)
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", len(h.clients))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]struct{})
	h.routeClients = make(map[string]map[*Client]struct{})
}
