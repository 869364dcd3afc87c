package kernel

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/manthysbr/auleagent/internal/core/domain"
	"github.com/manthysbr/auleagent/internal/core/services"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10

	wsTypeReport = "report"
	wsTypeError  = "error"
	wsTypeQueued = "suggestion_queued"
)

type wsMessage struct {
	Topic     string `json:"topic"`
	Type      string `json:"type"`
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

func eventMessage(evt services.Event) wsMessage {
	return wsMessage{Topic: evt.Topic, Type: string(evt.Type), Data: evt.Data, Timestamp: evt.Timestamp}
}

// checkOrigin accepts same-host requests and the configured CORS origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(s.cfg.Server.AllowedOrigins, "*") || slices.Contains(s.cfg.Server.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// handleEventsWS serves the WebSocket shell.
// GET /v1/ws?topic=<run id> follows an existing run (or "trace:<id>").
// GET /v1/ws takes one goal per text message, streams that run's events and
// ends each run with a "report" message. "/suggest <text>" queues guidance.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if topic := r.URL.Query().Get("topic"); topic != "" {
		s.streamTopic(r.Context(), conn, topic)
		return
	}
	s.goalSession(r.Context(), conn)
}

func writeWS(conn *websocket.Conn, msg wsMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(msg)
}

func (s *Server) streamTopic(ctx context.Context, conn *websocket.Conn, topic string) {
	ch, unsub := s.eventBus.Subscribe(topic)
	defer unsub()

	// Reader: handles pongs and notices the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := writeWS(conn, eventMessage(evt)); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) goalSession(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(64 * 1024)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		text := strings.TrimSpace(string(data))
		switch {
		case text == "":
			continue
		case strings.HasPrefix(text, "/suggest "):
			s.agent.Suggest(strings.TrimSpace(strings.TrimPrefix(text, "/suggest ")))
			if err := writeWS(conn, wsMessage{Type: wsTypeQueued, Timestamp: time.Now().UnixMilli()}); err != nil {
				return
			}
			continue
		}
		if err := s.runOverSocket(ctx, conn, text); err != nil {
			return
		}
	}
}

// runOverSocket runs one goal, forwarding its events. Only this goroutine
// writes to conn.
func (s *Server) runOverSocket(ctx context.Context, conn *websocket.Conn, goal string) error {
	id := domain.NewRunID()
	topic := string(id)

	ch, unsub := s.eventBus.Subscribe(topic)
	defer unsub()

	type outcome struct {
		report domain.RunReport
		err    error
	}
	finished := make(chan outcome, 1)
	go func() {
		report, err := s.agent.RunReport(ctx, services.RunRequest{ID: id, Goal: goal})
		finished <- outcome{report, err}
	}()

	for {
		select {
		case evt := <-ch:
			if err := writeWS(conn, eventMessage(evt)); err != nil {
				return err
			}
		case out := <-finished:
			// Events are published before the run returns; flush what is buffered.
			for drained := false; !drained; {
				select {
				case evt := <-ch:
					if err := writeWS(conn, eventMessage(evt)); err != nil {
						return err
					}
				default:
					drained = true
				}
			}
			msg := wsMessage{Topic: topic, Type: wsTypeReport, Data: out.report.Text(), Timestamp: time.Now().UnixMilli()}
			if out.err != nil {
				msg.Type, msg.Data = wsTypeError, out.err.Error()
			}
			return writeWS(conn, msg)
		}
	}
}
