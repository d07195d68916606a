package handler

import (
	"fmt"
	"net/http"
	"time"

	"agricam/internal/logger"
	"agricam/internal/service"
	"agricam/internal/service/events"

	"github.com/gorilla/websocket"
)

const (
	viewerWriteTimeout = 5 * time.Second
	viewerReadLimit    = 512
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ViewWebsocketHandler streams capture events to a viewer. The viewer first
// gets the latest persisted capture, typed "latest", so a dashboard opened
// between ticks has something to show; after that it receives one "capture"
// event per tick through the hub. Anything the viewer sends is discarded.
func ViewWebsocketHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		connection.SetReadLimit(viewerReadLimit)

		// Written before Register: once the hub owns the connection it is
		// the only writer.
		sent, err := sendLatestCapture(connection, manager)
		if err != nil {
			logger.Warning("Failed to send latest capture to %s: %v", r.RemoteAddr, err)
		}

		hub := manager.GetWebsocketService()
		hub.Register(connection)
		defer hub.Unregister(connection)

		if sent != "" {
			logger.Info("Viewer connected from %s, latest capture %s", r.RemoteAddr, sent)
		} else {
			logger.Info("Viewer connected from %s, no captures yet", r.RemoteAddr)
		}

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Viewer %s disconnected normally", r.RemoteAddr)
				} else {
					logger.Warning("Viewer %s disconnected: %v", r.RemoteAddr, err)
				}
				return
			}
		}
	}
}

// sendLatestCapture writes the newest image record as a "latest" event and
// returns its image ID, or "" when nothing has been captured.
func sendLatestCapture(connection *websocket.Conn, manager *service.Manager) (string, error) {
	rec, err := manager.GetStore().GetLatestImage()
	if err != nil {
		return "", fmt.Errorf("failed to read latest image: %w", err)
	}
	if rec == nil {
		return "", nil
	}

	connection.SetWriteDeadline(time.Now().Add(viewerWriteTimeout))
	if err := connection.WriteJSON(events.NewLatestEvent(rec)); err != nil {
		return "", fmt.Errorf("failed to write latest event: %w", err)
	}
	return rec.ImageID, nil
}
