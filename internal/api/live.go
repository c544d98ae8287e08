package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-progress/internal/session"
)

const (
	liveBuffer       = 32
	liveWriteTimeout = 5 * time.Second
)

// handleLive streams the student's progress events as JSON messages until
// the client goes away.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	student := strings.TrimSpace(r.PathValue("name"))
	if student == "" {
		s.writeFailure(w, r, session.ErrEmptyStudent)
		return
	}

	// Subscribe before the upgrade so nothing recorded after the handshake
	// is missed.
	events, unsubscribe := s.live.Subscribe(student, liveBuffer)
	defer unsubscribe()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "student", student, "error", err)
		return
	}
	defer conn.CloseNow()

	// The feed is one-way; CloseRead handles control frames and cancels ctx
	// when the client closes.
	ctx := conn.CloseRead(r.Context())
	s.logger.Info("live feed opened", "student", student)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("live feed closed", "student", student)
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "feed closed")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.Warn("live feed write failed", "student", student, "error", err)
				}
				return
			}
		}
	}
}
