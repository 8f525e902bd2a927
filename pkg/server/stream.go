package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	errs "github.com/matzehuels/forceview/pkg/errors"
	"github.com/matzehuels/forceview/pkg/graph"
	"github.com/matzehuels/forceview/pkg/session"
	"github.com/matzehuels/forceview/pkg/sim"
)

const (
	writeWait     = 5 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = pongWait * 9 / 10
	maxInputBytes = 4096
	closeReason   = "session closed"
)

// Stream message types sent by the server.
const (
	msgLayout = "layout"
	msgFrame  = "frame"
	msgError  = "error"
)

// inputMessage is sent by the client whenever its pointer state changes.
// Fields left out keep their previous values.
type inputMessage struct {
	Pointer *point   `json:"pointer"`
	Grabbed *int     `json:"grabbed"`
	Scale   *float64 `json:"scale"`
}

// layoutMessage is the first message of a stream.
type layoutMessage struct {
	Type   string       `json:"type"`
	Layout graph.Layout `json:"layout"`
}

// frameMessage is pushed after every tick.
type frameMessage struct {
	Type      string         `json:"type"`
	Stats     sim.FrameStats `json:"stats"`
	Positions [][2]float64   `json:"positions"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade", "session", sess.ID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.logger.Debug("stream opened", "session", sess.ID)
	go s.readInputs(ctx, cancel, conn, sess)
	s.pushFrames(ctx, conn, sess)
	s.logger.Debug("stream closed", "session", sess.ID)
}

// readInputs applies client input messages until the connection fails.
func (s *Server) readInputs(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sess *session.Session) {
	defer cancel()
	conn.SetReadLimit(maxInputBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for ctx.Err() == nil {
		var msg inputMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("stream read", "session", sess.ID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		in := sess.Input()
		if msg.Pointer != nil {
			in.Pointer = msg.Pointer.vec()
		}
		if msg.Grabbed != nil {
			in.Grabbed = *msg.Grabbed
		}
		if msg.Scale != nil {
			in.Scale = *msg.Scale
		}
		sess.SetInput(in)
	}
}

// pushFrames advances the session once per tick and sends the positions.
// It is the only writer on conn.
func (s *Server) pushFrames(ctx context.Context, conn *websocket.Conn, sess *session.Session) {
	write := func(v any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(v); err != nil {
			s.logger.Debug("stream write", "session", sess.ID, "error", err)
			return false
		}
		return true
	}

	if !write(layoutMessage{Type: msgLayout, Layout: sess.Layout()}) {
		return
	}

	tick := time.NewTicker(s.Settings().Server.Tick)
	defer tick.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeStream(conn, websocket.CloseNormalClosure, "")
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-tick.C:
			stats, err := sess.Step(ctx)
			if err != nil {
				if errs.Is(err, errs.ErrCodeClosed) {
					s.closeStream(conn, websocket.CloseGoingAway, closeReason)
					return
				}
				if ctx.Err() != nil {
					return
				}
				write(errorMessage{Type: msgError, Error: errs.UserMessage(err)})
				return
			}
			if !write(frameMessage{Type: msgFrame, Stats: stats, Positions: sess.Positions()}) {
				return
			}
		}
	}
}

func (s *Server) closeStream(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
