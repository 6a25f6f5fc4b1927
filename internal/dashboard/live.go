package dashboard

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	liveInterval = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleLive pushes a stats snapshot to the browser every liveInterval.
func (d *Dashboard) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[dashboard] websocket upgrade failed: %v", err)
		return
	}

	done := make(chan struct{})
	go d.readPump(conn, done)
	d.writePump(conn, done)
}

// readPump only drains control frames; the feed is one-way.
func (d *Dashboard) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[dashboard] live read error: %v", err)
			}
			return
		}
	}
}

func (d *Dashboard) writePump(conn *websocket.Conn, done <-chan struct{}) {
	statsTicker := time.NewTicker(liveInterval)
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		statsTicker.Stop()
		pingTicker.Stop()
		conn.Close()
	}()

	if err := d.sendStats(conn); err != nil {
		return
	}

	for {
		select {
		case <-statsTicker.C:
			if err := d.sendStats(conn); err != nil {
				return
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (d *Dashboard) sendStats(conn *websocket.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(d.GetStats())
}
