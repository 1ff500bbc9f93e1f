package ops

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/lsst-dm/imgcrawl/internal/logger"
)

func newWebSocketTestServer(t *testing.T) (*LogHub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	hub := NewLogHub()
	router.GET("/logs/ws", hub.HandleConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return hub, srv
}

func TestLogHub_StreamsLogEntries(t *testing.T) {
	hub, srv := newWebSocketTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/logs/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	// Connection registration races with the first log write.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d, want 1", hub.ClientCount())
	}

	logger.Infof("websocket stream probe %d", 42)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var entry logger.Entry
	for {
		if err := conn.ReadJSON(&entry); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if strings.Contains(entry.Message, "websocket stream probe 42") {
			break
		}
	}
	if entry.Level != logger.Info {
		t.Errorf("Level = %s, want INFO", entry.Level)
	}
}

func TestLogHub_ClientCountDropsOnDisconnect(t *testing.T) {
	hub, srv := newWebSocketTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/logs/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after disconnect, want 0", hub.ClientCount())
	}
}
