package gateway

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"nimmt-lite/apps/server/internal/codec"
	"nimmt-lite/apps/server/internal/room"
)

const (
	readLimit    = 65536
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 256
)

// RoomProvider hands out the room actor for an id.
type RoomProvider interface {
	Room(roomID string) (*room.Room, error)
}

// Connection represents a WebSocket client connection bound to one room.
type Connection struct {
	ID       string
	Conn     *websocket.Conn
	Send     chan []byte
	Gateway  *Gateway
	Room     *room.Room
	LastPing time.Time
}

// Gateway manages WebSocket connections
type Gateway struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	rooms       RoomProvider
	upgrader    websocket.Upgrader
}

// New creates a gateway. An empty allowedOrigins accepts any origin.
func New(allowedOrigins []string) *Gateway {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	g := &Gateway{
		connections: make(map[string]*Connection),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(allowed) == 0 || origin == "" || allowed[origin]
		},
	}
	return g
}

// RegisterRoutes mounts the room socket at /rooms/{roomID}/ws.
func (g *Gateway) RegisterRoutes(r chi.Router, rooms RoomProvider) {
	g.rooms = rooms
	r.Get("/rooms/{roomID}/ws", g.HandleWebSocket)
}

// HandleWebSocket handles WebSocket upgrade and connection
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	rm, err := g.rooms.Room(chi.URLParam(r, "roomID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &Connection{
		ID:       uuid.NewString(),
		Conn:     conn,
		Send:     make(chan []byte, sendBuffer),
		Gateway:  g,
		Room:     rm,
		LastPing: time.Now(),
	}
	g.mu.Lock()
	g.connections[c.ID] = c
	total := len(g.connections)
	g.mu.Unlock()

	log.Info().Str("conn", c.ID).Str("room", rm.ID).Int("total", total).Msg("client connected")

	go c.writePump()
	if err := rm.Connect(c.ID); err != nil {
		log.Warn().Err(err).Str("conn", c.ID).Msg("room rejected connection")
		g.removeConnection(c)
		return
	}
	go c.readPump()
}

func (c *Connection) readPump() {
	defer func() {
		if err := c.Room.Disconnect(c.ID); err != nil && !errors.Is(err, room.ErrRoomClosed) {
			log.Warn().Err(err).Str("conn", c.ID).Msg("room disconnect failed")
		}
		c.Gateway.removeConnection(c)
	}()

	c.Conn.SetReadLimit(readLimit)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		c.LastPing = time.Now()
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("conn", c.ID).Msg("read error")
			}
			return
		}
		if messageType == websocket.TextMessage {
			c.handleMessage(message)
		}
	}
}

func (c *Connection) handleMessage(data []byte) {
	msg, err := codec.DecodeClient(data)
	if err != nil {
		log.Debug().Err(err).Str("conn", c.ID).Msg("malformed message")
		c.Gateway.Send(c.ID, codec.EncodeError(err.Error()))
		return
	}
	// Rejections are reported to the client by the room itself.
	if err := c.Room.Message(c.ID, msg); errors.Is(err, room.ErrRoomClosed) {
		c.Gateway.Send(c.ID, codec.EncodeError(err.Error()))
		c.Conn.Close()
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) removeConnection(c *Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.connections[c.ID]; !ok {
		return
	}
	delete(g.connections, c.ID)
	close(c.Send)
	log.Info().Str("conn", c.ID).Int("total", len(g.connections)).Msg("client disconnected")
}

// Send queues data for one connection. Messages to a slow or gone client
// are dropped.
func (g *Gateway) Send(connID string, data []byte) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c := g.connections[connID]
	if c == nil {
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warn().Str("conn", connID).Msg("send buffer full, dropping message")
	}
}

func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.connections)
}
