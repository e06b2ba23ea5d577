// Package realtime: live-лента событий заказов для панели администратора
// поверх websocket. Hub получает события из outbox worker и рассылает их
// всем подключённым клиентам.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
	"github.com/vladislavdragonenkov/bulk-oms/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	clientBuffer   = 64
	broadcastQueue = 256
)

// Message: кадр live-ленты.
type Message struct {
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregateId"`
	Data        json.RawMessage `json:"data"`
	Timestamp   time.Time       `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan Message
}

// Hub управляет подключениями и рассылкой.
type Hub struct {
	upgrader   websocket.Upgrader
	logger     *log.Entry
	metrics    *metrics.HTTPMetrics
	clients    map[*client]struct{}
	mu         sync.RWMutex
	broadcast  chan Message
	register   chan *client
	unregister chan *client
	done       chan struct{}
	closeOnce  sync.Once
}

// NewHub создаёт hub. Пустой allowedOrigins разрешает любой Origin
// (локальная разработка); иначе Origin должен совпасть с одним из списка.
func NewHub(allowedOrigins []string, logger *log.Entry, m *metrics.HTTPMetrics) *Hub {
	if logger == nil {
		logger = log.WithField("component", "realtime-hub")
	}

	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			allowed[origin] = struct{}{}
		}
	}

	h := &Hub{
		logger:     logger,
		metrics:    m,
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan Message, broadcastQueue),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
	return h
}

// Run обслуживает регистрацию и рассылку до отмены ctx, затем закрывает все соединения.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.metrics.StreamClientConnected()
			h.logger.WithField("client_count", count).Info("live feed client connected")
		case c := <-h.unregister:
			h.drop(c)
		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*client
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				h.logger.Warn("live feed client is too slow, disconnecting")
				h.drop(c)
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.metrics.StreamClientDisconnected()
		h.logger.WithField("client_count", count).Info("live feed client disconnected")
	}
}

func (h *Hub) shutdown() {
	h.closeOnce.Do(func() {
		close(h.done)
	})

	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		h.metrics.StreamClientDisconnected()
	}
	h.mu.Unlock()
}

// Publish ставит событие outbox в очередь рассылки. Переполненная очередь
// не ошибка: live-лента не гарантирует доставку, Kafka гарантирует.
func (h *Hub) Publish(event domain.OutboxMessage) error {
	msg := Message{
		Type:        event.EventType,
		AggregateID: event.AggregateID,
		Data:        json.RawMessage(event.Payload),
		Timestamp:   time.Now().UTC(),
	}
	if len(msg.Data) == 0 {
		msg.Data = json.RawMessage("null")
	}

	select {
	case <-h.done:
	case h.broadcast <- msg:
	default:
		h.logger.WithField("event_type", event.EventType).Warn("live feed queue is full, dropping event")
	}
	return nil
}

// ClientCount возвращает число подключённых клиентов.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP переводит запрос на websocket и подписывает клиента на ленту.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("failed to upgrade live feed connection")
		return
	}

	c := &client{conn: conn, send: make(chan Message, clientBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump нужен только для ping/pong и обнаружения закрытия: клиент ничего не присылает.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.WithError(err).Warn("live feed read failed")
			}
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
			if err := c.conn.WriteJSON(msg); err != nil {
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

var _ domain.OutboxPublisher = (*Hub)(nil)
