// Package tabrelaysrv implements the per-channel WebSocket fan-out and
// HTTP-backed lease store served by cmd/tabrelay, factored out of main so
// platform/wsrelay's tests can stand up a real relay in-process via
// httptest instead of shelling out to a built binary.
//
// Grounded on the teacher's internal/websocket.Hub/Client (register/
// unregister/broadcast channels, one goroutine per Hub, mutex-guarded
// client set), generalized from one global hub to one hub per tab-sync
// channel name.
package tabrelaysrv

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/gwsession/sdk/internal/logger"
	"github.com/gwsession/sdk/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// channelHub fans out every message published on one tab-sync channel to
// every client connected to it, the sender included.
type channelHub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
}

func newChannelHub() *channelHub {
	return &channelHub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

func (h *channelHub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

// Relay owns one channelHub per tab-sync channel name and one in-memory
// lease store per lease key (spec §4.5's master-lease key, generalized
// from a single browser's localStorage to this process's memory).
type Relay struct {
	mu    sync.Mutex
	hubs  map[string]*channelHub
	lease map[string]int64
}

// New constructs an empty Relay.
func New() *Relay {
	return &Relay{hubs: make(map[string]*channelHub), lease: make(map[string]int64)}
}

func (r *Relay) hubFor(channel string) *channelHub {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hubs[channel]
	if !ok {
		h = newChannelHub()
		r.hubs[channel] = h
		go h.run()
	}
	return h
}

func (r *Relay) serveWS(c *gin.Context) {
	channel := c.Param("channel")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Relay().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	hub := r.hubFor(channel)
	cl := &client{conn: conn, send: make(chan []byte, 32)}
	hub.register <- cl

	go func() {
		defer func() {
			hub.unregister <- cl
			conn.Close()
		}()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			hub.broadcast <- msg
		}
	}()

	go func() {
		defer conn.Close()
		for msg := range cl.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()
}

func (r *Relay) getLease(c *gin.Context) {
	key := c.Param("key")
	r.mu.Lock()
	ts, ok := r.lease[key]
	r.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"timestampMs": ts, "ok": ok})
}

func (r *Relay) putLease(c *gin.Context) {
	key := c.Param("key")
	var body struct {
		TimestampMs int64 `json:"timestampMs"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r.mu.Lock()
	r.lease[key] = body.TimestampMs
	r.mu.Unlock()
	c.Status(http.StatusNoContent)
}

func (r *Relay) deleteLease(c *gin.Context) {
	key := c.Param("key")
	r.mu.Lock()
	delete(r.lease, key)
	r.mu.Unlock()
	c.Status(http.StatusNoContent)
}

// Router builds the gin engine exposing this Relay's websocket and lease
// endpoints, used by both cmd/tabrelay (served over a real listener) and
// platform/wsrelay's tests (served over httptest.NewServer).
func (r *Relay) Router() *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(logger.Relay()),
		middleware.Timeout(middleware.DefaultTimeoutConfig()),
	)

	router.GET("/ws/:channel", r.serveWS)
	router.GET("/lease/:key", r.getLease)
	router.PUT("/lease/:key", r.putLease)
	router.DELETE("/lease/:key", r.deleteLease)
	return router
}
