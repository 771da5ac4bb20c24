package stream

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/bulk"
)

// Envelope is the wire frame for every message pushed to a client.
type Envelope struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

const (
	messageTypeProgress  = "job_progress"
	messageTypeConnected = "connected"
)

// subscribeFrame is the only inbound message a client may send: narrowing
// its feed to specific jobs. An empty list means every job.
type subscribeFrame struct {
	JobIDs []string `json:"jobIds"`
}

// client is one connected progress consumer.
type client struct {
	id   string
	conn *websocket.Conn
	send chan Envelope

	mu     sync.Mutex
	jobIDs map[uuid.UUID]struct{}
}

func (c *client) wants(event bulk.ProgressEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.jobIDs) == 0 {
		return true
	}
	_, ok := c.jobIDs[event.JobID]
	return ok
}

func (c *client) subscribe(ids []string) {
	filter := make(map[uuid.UUID]struct{}, len(ids))
	for _, raw := range ids {
		if id, err := uuid.Parse(raw); err == nil {
			filter[id] = struct{}{}
		}
	}
	c.mu.Lock()
	c.jobIDs = filter
	c.mu.Unlock()
}

// Hub pushes live bulk job progress to connected admin consoles. It
// implements the orchestrator's publisher contract: publishing never blocks,
// and a consumer that cannot keep up is dropped rather than stalling a job.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Envelope
	register   chan *client
	unregister chan *client
	stop       chan struct{}
	stopOnce   sync.Once
	count      atomic.Int64

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub creates a hub and starts its dispatch loop.
func NewHub(logger *zap.Logger) *Hub {
	hub := &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Envelope, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		stop:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The admin console is served behind the same gateway.
				return true
			},
		},
		logger: logger,
	}

	go hub.run()

	return hub
}

// PublishProgress forwards one orchestrator event to connected clients.
func (h *Hub) PublishProgress(event bulk.ProgressEvent) {
	envelope := Envelope{Type: messageTypeProgress, Payload: event, At: time.Now()}
	select {
	case h.broadcast <- envelope:
	case <-h.stop:
	default:
		h.logger.Warn("Progress broadcast buffer full, dropping event",
			zap.String("job_id", event.JobID.String()))
	}
}

// HandleProgressSocket handles GET /api/v1/ws/progress. The route must sit
// behind the auth middleware; the hub itself does no authentication.
func (h *Hub) HandleProgressSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade progress socket", zap.Error(err))
		return
	}

	cl := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan Envelope, 256),
	}

	select {
	case h.register <- cl:
	case <-h.stop:
		conn.Close()
		return
	}

	cl.send <- Envelope{
		Type:    messageTypeConnected,
		Payload: gin.H{"connectionId": cl.id},
		At:      time.Now(),
	}

	go h.readPump(cl)
	go h.writePump(cl)
}

func (h *Hub) readPump(cl *client) {
	defer func() {
		select {
		case h.unregister <- cl:
		case <-h.stop:
		}
		cl.conn.Close()
	}()

	cl.conn.SetReadLimit(4096)
	cl.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var frame subscribeFrame
		if err := cl.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("Progress socket closed unexpectedly",
					zap.String("connection_id", cl.id),
					zap.Error(err))
			}
			return
		}
		cl.subscribe(frame.JobIDs)
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case envelope, ok := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteJSON(envelope); err != nil {
				return
			}

		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) run() {
	for {
		select {
		case cl := <-h.register:
			h.clients[cl] = true
			h.count.Store(int64(len(h.clients)))
			h.logger.Debug("Progress client connected", zap.String("connection_id", cl.id))

		case cl := <-h.unregister:
			if _, ok := h.clients[cl]; ok {
				delete(h.clients, cl)
				close(cl.send)
				h.count.Store(int64(len(h.clients)))
				h.logger.Debug("Progress client disconnected", zap.String("connection_id", cl.id))
			}

		case envelope := <-h.broadcast:
			event, isProgress := envelope.Payload.(bulk.ProgressEvent)
			for cl := range h.clients {
				if isProgress && !cl.wants(event) {
					continue
				}
				select {
				case cl.send <- envelope:
				default:
					// Dropping a stuffed client keeps the feed moving for
					// everyone else.
					delete(h.clients, cl)
					close(cl.send)
					h.logger.Warn("Dropped slow progress client", zap.String("connection_id", cl.id))
				}
			}
			h.count.Store(int64(len(h.clients)))

		case <-h.stop:
			for cl := range h.clients {
				delete(h.clients, cl)
				close(cl.send)
				cl.conn.Close()
			}
			h.count.Store(0)
			return
		}
	}
}

// ClientCount reports connected clients. Used by the health endpoint.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Close disconnects every client and stops the dispatch loop.
func (h *Hub) Close() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}
