package ops

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/lsst-dm/imgcrawl/internal/logger"
)

// The ops port is operator-facing only; same-origin requests and
// origin-less clients (curl, wscat) are accepted.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// LogHub streams log entries to connected websocket clients.
type LogHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	logCh   chan logger.Entry
	once    sync.Once
}

func NewLogHub() *LogHub {
	return &LogHub{clients: make(map[*websocket.Conn]bool)}
}

// start begins forwarding log entries; deferred until the first client
// connects so an unused hub costs nothing.
func (h *LogHub) start() {
	h.logCh = logger.Subscribe()
	go func() {
		for entry := range h.logCh {
			h.broadcast(entry)
		}
	}()
}

func (h *LogHub) broadcast(entry logger.Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if err := client.WriteJSON(entry); err != nil {
			logger.Debugf("WebSocket write failed, dropping client: %v", err)
			client.Close()
			delete(h.clients, client)
		}
	}
}

// ClientCount reports connected websocket clients.
func (h *LogHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleConnection upgrades the request and streams log entries until
// the client goes away.
func (h *LogHub) HandleConnection(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}
	h.once.Do(h.start)

	h.mu.Lock()
	h.clients[ws] = true
	logger.Debugf("WebSocket client connected (total: %d)", len(h.clients))
	h.mu.Unlock()

	const (
		pongWait   = 60 * time.Second
		pingPeriod = (pongWait * 9) / 10
	)

	if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Debugf("Failed to set read deadline: %v", err)
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	ticker := time.NewTicker(pingPeriod)
	go func() {
		defer ticker.Stop()
		for range ticker.C {
			h.mu.Lock()
			if _, ok := h.clients[ws]; !ok {
				h.mu.Unlock()
				return
			}
			err := ws.WriteMessage(websocket.PingMessage, nil)
			h.mu.Unlock()
			if err != nil {
				return
			}
		}
	}()

	// Read loop keeps the connection alive and notices the close.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, ws)
	h.mu.Unlock()
	ws.Close()
	logger.Debugf("WebSocket client disconnected")
}
