package websocket

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wricardo/cleaning-agent-sim/logging"
	"github.com/wricardo/cleaning-agent-sim/sim/engine"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Queued broadcasts before new ones are dropped
	broadcastBuffer = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is one frame sent to clients watching a run
type Message struct {
	RunID string             `json:"run_id"`
	Event string             `json:"event"`
	Step  *engine.StepRecord `json:"step,omitempty"`
	// Frame is the rendered grid, present when the run captures frames
	Frame []string    `json:"frame,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// Client represents a WebSocket client
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	runID string
}

// Hub maintains the set of active clients and broadcasts messages.
// All client bookkeeping happens on the Run goroutine.
type Hub struct {
	// Registered clients by run ID
	runs map[string]map[*Client]bool

	// Outbound messages for clients
	broadcast chan *Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	done    chan struct{}
	clients atomic.Int64
	dropped atomic.Int64
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		runs:       make(map[string]map[*Client]bool),
		broadcast:  make(chan *Message, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-h.done:
			for _, clients := range h.runs {
				for client := range clients {
					h.unregisterClient(client)
				}
			}
			return
		}
	}
}

// Stop ends the event loop and disconnects every client
func (h *Hub) Stop() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

// ServeWS upgrades the request and subscribes the connection to runID
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, runID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().
			Add(logging.Component("websocket")).
			Add(logging.ErrorField(err)).
			Msg("upgrade failed")
		return
	}

	client := &Client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, 256),
		runID: runID,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// BroadcastStep sends one step, and its frame if captured, to the run's clients
func (h *Hub) BroadcastStep(runID string, rec engine.StepRecord, snap *engine.Snapshot) {
	if h.clients.Load() == 0 {
		return
	}
	message := &Message{
		RunID: runID,
		Event: "step",
		Step:  &rec,
	}
	if snap != nil {
		message.Frame = snap.Render()
	}
	h.enqueue(message)
}

// BroadcastEvent sends a lifecycle event to the run's clients
func (h *Hub) BroadcastEvent(runID string, event string, data interface{}) {
	if h.clients.Load() == 0 {
		return
	}
	h.enqueue(&Message{
		RunID: runID,
		Event: event,
		Data:  data,
	})
}

// enqueue never blocks the simulation; a full queue drops the message
func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.dropped.Add(1)
	}
}

// Dropped reports how many broadcasts were discarded because the queue was full
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// ClientCount returns the number of connected clients across all runs
func (h *Hub) ClientCount() int {
	return int(h.clients.Load())
}

// registerClient adds a client to a run
func (h *Hub) registerClient(client *Client) {
	if h.runs[client.runID] == nil {
		h.runs[client.runID] = make(map[*Client]bool)
	}
	h.runs[client.runID][client] = true
	h.clients.Add(1)

	logging.Debug().
		Add(logging.Component("websocket")).
		Add(logging.RunID(client.runID)).
		Add(logging.Count("clients", len(h.runs[client.runID]))).
		Msg("client registered")
}

// unregisterClient removes a client from a run
func (h *Hub) unregisterClient(client *Client) {
	if clients, ok := h.runs[client.runID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.send)
			h.clients.Add(-1)

			if len(clients) == 0 {
				delete(h.runs, client.runID)
			}

			logging.Debug().
				Add(logging.Component("websocket")).
				Add(logging.RunID(client.runID)).
				Add(logging.Count("clients", len(clients))).
				Msg("client unregistered")
		}
	}
}

// broadcastMessage sends a message to all clients of a run
func (h *Hub) broadcastMessage(message *Message) {
	clients, ok := h.runs[message.RunID]
	if !ok {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		logging.Error().
			Add(logging.Component("websocket")).
			Add(logging.RunID(message.RunID)).
			Add(logging.ErrorField(err)).
			Msg("failed to marshal message")
		return
	}

	for client := range clients {
		select {
		case client.send <- data:
		default:
			// Client's send channel is full, close it
			h.unregisterClient(client)
		}
	}
}

// readPump drains the connection so pongs and closes are observed
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// Clients only watch; inbound messages are ignored
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().
					Add(logging.Component("websocket")).
					Add(logging.RunID(c.runID)).
					Add(logging.ErrorField(err)).
					Msg("connection error")
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One JSON message per frame so clients can decode each read
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
