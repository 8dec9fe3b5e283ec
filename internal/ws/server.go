package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/obiente/warmup/voicecapture/internal/engine"
	"github.com/obiente/warmup/voicecapture/internal/session"
)

const (
	pongWait  = 60 * time.Second
	writeWait = 10 * time.Second
)

// Server exposes the engine's Record action over a websocket. Each
// connection runs at most one recording at a time; the engine rejects
// recordings from other connections while the device is in use.
//
// A client is silent while the speaker talks, so the server pings every
// pingPeriod and the read deadline is extended by each pong.
type Server struct {
	engine   *engine.Engine
	upgrader websocket.Upgrader

	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewServer(e *engine.Engine) *Server {
	return &Server{
		engine:     e,
		pongWait:   pongWait,
		pingPeriod: (pongWait * 9) / 10,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024 * 4,
			WriteBufferSize: 1024 * 16,
		},
	}
}

func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(s.pongWait)); return nil })

	// gorilla connections allow a single concurrent writer
	var writeMu sync.Mutex
	send := func(payload map[string]any) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(payload); err != nil {
			log.Warn().Err(err).Interface("type", payload["type"]).Msg("ws write failed")
		}
	}

	quit := make(chan struct{})
	defer close(quit)
	go s.keepalive(conn, &writeMu, quit)

	var (
		active *session.Session
		done   chan struct{}
	)
	running := func() bool {
		if done == nil {
			return false
		}
		select {
		case <-done:
			return false
		default:
			return true
		}
	}
	stopActive := func() {
		if active == nil {
			return
		}
		active.Abort()
		<-done
		active, done = nil, nil
	}
	defer stopActive()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug().Msg("ws client closed")
				return
			}
			log.Warn().Err(err).Msg("ws read error")
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
		if mt != websocket.TextMessage {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			send(map[string]any{"type": "error", "detail": "invalid json"})
			continue
		}
		switch msg["type"] {
		case "ping":
			send(map[string]any{"type": "pong", "ts": msg["ts"]})
		case "start":
			if running() {
				send(map[string]any{"type": "error", "detail": "recording already in progress"})
				continue
			}
			var sess *session.Session
			sess = s.engine.NewSession(func(u session.Update) {
				send(map[string]any{
					"type":     "segment",
					"session":  sess.ID(),
					"text":     u.Segment,
					"fullText": u.Text,
				})
			})
			active, done = sess, make(chan struct{})
			send(map[string]any{"type": "started", "session": sess.ID()})
			go s.record(sess, done, send)
		case "stop":
			stopActive()
			send(map[string]any{"type": "stopped"})
		default:
			send(map[string]any{"type": "error", "detail": "unknown message type"})
		}
	}
}

func (s *Server) record(sess *session.Session, done chan struct{}, send func(map[string]any)) {
	defer close(done)
	text, err := s.engine.Run(sess)
	switch {
	case err == nil:
		send(map[string]any{"type": "transcript", "session": sess.ID(), "text": text})
	case errors.Is(err, session.ErrAborted):
		send(map[string]any{"type": "aborted", "session": sess.ID()})
	case errors.Is(err, engine.ErrBusy):
		send(map[string]any{"type": "error", "session": sess.ID(), "detail": "recorder busy"})
	default:
		log.Error().Err(err).Str("session", sess.ID()).Msg("recording failed")
		send(map[string]any{"type": "error", "session": sess.ID(), "detail": err.Error()})
	}
}

func (s *Server) keepalive(conn *websocket.Conn, writeMu *sync.Mutex, quit <-chan struct{}) {
	ticker := time.NewTicker(s.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			writeMu.Unlock()
			if err != nil {
				log.Debug().Err(err).Msg("ws ping failed")
				return
			}
		}
	}
}
