package livefeed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"MotionPull/internal/domain/models"
	domrepo "MotionPull/internal/domain/repository"
	applogger "MotionPull/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

const maxClientMessage = 512

type Config struct {
	Path         string
	WriteTimeout time.Duration
	PingInterval time.Duration
	SendBuffer   int
}

// Hub streams classification records to websocket subscribers. Clients may
// pass ?resource=<id> to receive a single resource only. A client whose
// buffer is full misses the record instead of slowing down ingest.
type Hub struct {
	cfg      Config
	logger   *applogger.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup

	connected prometheus.Gauge
	dropped   prometheus.Counter
}

type client struct {
	conn     *websocket.Conn
	send     chan []byte
	resource string
}

func NewHub(cfg Config, logger *applogger.Logger, reg prometheus.Registerer) *Hub {
	if cfg.Path == "" {
		cfg.Path = "/ws/activity"
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}

	h := &Hub{
		cfg:    cfg,
		logger: logger.With(applogger.String("component", "livefeed")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "motionpull_livefeed_clients",
			Help: "Connected live feed websocket clients",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "motionpull_livefeed_dropped_total",
			Help: "Records not delivered to a slow live feed client",
		}),
	}
	reg.MustRegister(h.connected, h.dropped)
	return h
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET(h.cfg.Path, echo.WrapHandler(h))
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		h.logger.Debug("websocket upgrade failed", applogger.Error(err))
		return
	}

	c := &client{
		conn:     conn,
		send:     make(chan []byte, h.cfg.SendBuffer),
		resource: r.URL.Query().Get("resource"),
	}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.cfg.WriteTimeout))
		_ = conn.Close()
		return
	}

	h.wg.Add(1)
	go h.writeLoop(c)
	h.readLoop(c)
}

// Broadcast implements domrepo.Broadcaster.
func (h *Hub) Broadcast(_ context.Context, r *models.ClassificationRecord) {
	if r == nil {
		return
	}
	b, err := json.Marshal(r)
	if err != nil {
		h.logger.Error("marshal live record", applogger.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.resource != "" && c.resource != r.ResourceID {
			continue
		}
		select {
		case c.send <- b:
		default:
			h.dropped.Inc()
		}
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their writers to finish.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
	h.mu.Unlock()

	h.wg.Wait()
	return nil
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.connected.Inc()
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.connected.Dec()
}

func (h *Hub) readLoop(c *client) {
	defer h.unregister(c)

	pongWait := 2 * h.cfg.PingInterval
	c.conn.SetReadLimit(maxClientMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		// clients only send pongs and close frames
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("live feed client read", applogger.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()
	defer c.conn.Close()

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug("live feed client write", applogger.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ domrepo.Broadcaster = (*Hub)(nil)
