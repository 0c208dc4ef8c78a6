package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 45 * time.Second
	sendBufferSize = 16
)

// Event es el mensaje que viaja a los clientes de una sala.
type Event struct {
	Event string    `json:"event"`
	Data  any       `json:"data,omitempty"`
	At    time.Time `json:"at"`
}

// Hub mantiene salas con nombre y hace fan-out de eventos.
// Sin garantias de orden ni de entrega: un cliente lento se descarta.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
		rooms: make(map[string]map[*client]struct{}),
	}
}

// Publish envia el evento a todos los clientes de la sala.
func (h *Hub) Publish(room, event string, data any) {
	payload, err := json.Marshal(Event{Event: event, Data: data, At: time.Now().UTC()})
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[room] {
		select {
		case c.send <- payload:
		default:
			h.removeLocked(room, c)
		}
	}
}

// Serve hace upgrade de la conexion y la suscribe a la sala.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, room string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("websocket upgrade failed", zap.Error(err))
		}
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(room, c)
	h.readPump(room, c)
}

// RoomSize devuelve la cantidad de clientes suscritos a la sala.
func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

func (h *Hub) readPump(room string, c *client) {
	defer func() {
		h.mu.Lock()
		h.removeLocked(room, c)
		h.mu.Unlock()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// Los clientes no mandan mensajes; el read loop solo detecta cierres.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(room string, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.mu.Lock()
				h.removeLocked(room, c)
				h.mu.Unlock()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.mu.Lock()
				h.removeLocked(room, c)
				h.mu.Unlock()
				return
			}
		}
	}
}

// removeLocked asume h.mu tomado.
func (h *Hub) removeLocked(room string, c *client) {
	clients, ok := h.rooms[room]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.rooms, room)
	}
	close(c.send)
	_ = c.conn.Close()
}
