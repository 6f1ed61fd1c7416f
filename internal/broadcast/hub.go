// Package broadcast pushes drone state deltas to WebSocket subscribers.
package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"droneMissionEngine/internal/geo"
	"droneMissionEngine/internal/metrics"
	"droneMissionEngine/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBuffer = 32
)

// MessageTypeDroneUpdate tags every drone delta.
const MessageTypeDroneUpdate = "DRONE_UPDATE"

// DroneUpdate is the drone state after one simulation tick.
type DroneUpdate struct {
	DroneID   int64              `json:"droneId"`
	Location  geo.Point          `json:"location"`
	Battery   float64            `json:"battery"`
	Status    models.DroneStatus `json:"status"`
	MissionID string             `json:"missionId,omitempty"`
}

// Message is the envelope written to subscribers.
type Message struct {
	Type    string      `json:"type"`
	Payload DroneUpdate `json:"payload"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans drone updates out to connected clients. Run owns the client set;
// a client whose send buffer is full is dropped.
type Hub struct {
	upgrader   websocket.Upgrader
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}

	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// NewHub returns a Hub. Call Run before serving connections.
func NewHub(log logrus.FieldLogger, m *metrics.Metrics) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		log:        log,
		metrics:    m,
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	clients := make(map[*client]struct{})
	defer func() {
		close(h.done)
		for c := range clients {
			close(c.send)
		}
		h.metrics.SetBroadcastClients(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			clients[c] = struct{}{}
			h.metrics.SetBroadcastClients(len(clients))
		case c := <-h.unregister:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.send)
				h.metrics.SetBroadcastClients(len(clients))
			}
		case msg := <-h.broadcast:
			for c := range clients {
				select {
				case c.send <- msg:
				default:
					delete(clients, c)
					close(c.send)
					h.log.Warn("dropping slow websocket client")
				}
			}
			h.metrics.SetBroadcastClients(len(clients))
		}
	}
}

// Broadcast queues u for every client. It never blocks the caller; updates
// are discarded when the hub is saturated or stopped.
func (h *Hub) Broadcast(u DroneUpdate) {
	b, err := json.Marshal(Message{Type: MessageTypeDroneUpdate, Payload: u})
	if err != nil {
		h.log.WithError(err).Error("encode drone update")
		return
	}
	select {
	case h.broadcast <- b:
	case <-h.done:
	default:
		h.log.WithField("drone_id", u.DroneID).Debug("broadcast queue full, update dropped")
	}
}

// ServeWS upgrades the request and subscribes the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards inbound frames and detects closed connections.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
