package control

import (
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/speakr/speakr/internal/app"
	"github.com/speakr/speakr/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 5 * time.Second,
	CheckOrigin:      localOrigin,
}

// localOrigin accepts clients without an Origin header and pages served
// from the loopback interface
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// eventSession streams status events to one WebSocket client
type eventSession struct {
	conn   *websocket.Conn
	sub    *app.Subscription
	logger zerolog.Logger

	done     chan struct{}
	doneOnce sync.Once
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}

	session := &eventSession{
		conn:   conn,
		sub:    s.hub.Subscribe(),
		logger: s.logger.With().Str("remote", r.RemoteAddr).Logger(),
		done:   make(chan struct{}),
	}
	session.logger.Info().Msg("Status client connected")

	go session.readLoop()
	session.writeLoop()

	session.sub.Close()
	conn.Close()
	session.logger.Info().Msg("Status client disconnected")
}

func (s *eventSession) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

// readLoop discards client messages and notices when the client goes away
func (s *eventSession) readLoop() {
	defer s.finish()

	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}
	}
}

// writeLoop forwards hub events and keeps the connection alive
func (s *eventSession) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return

		case e, ok := <-s.sub.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Dropped by the hub for falling behind
				s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"))
				return
			}
			if err := s.conn.WriteJSON(e); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to write status event")
				observability.RecordError("ws_write", "control")
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
