package stubserver

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dkells/babel-client/internal/protocol"
)

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	room := s.ensureRoom(chi.URLParam(r, "roomID"))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	updates := room.subscribe()
	room.join(user)
	defer func() {
		room.unsubscribe(updates)
		room.leave(user)
	}()

	// Writer goroutine: fan updates out until the subscription is cut.
	writeCtx, writeCancel := context.WithCancel(r.Context())
	defer writeCancel()
	go func() {
		for payload := range updates {
			ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
			err := conn.Write(ctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		}
		// Subscription severed; kick the reader loose as well.
		conn.Close(websocket.StatusGoingAway, "dropped")
	}()

	// Reader loop: decode action envelopes and apply them.
	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}

		action, err := protocol.DecodeAction(data)
		if err != nil {
			s.log.Warn("stub: undecodable action", zap.Error(err))
			continue
		}
		room.record(action)

		switch act := action.(type) {
		case protocol.SendMessage:
			room.addMessages(user, []string{act.Text})
		case protocol.SendMessageBatch:
			room.addMessages(user, act.Texts)
		case protocol.SubmitNotes:
			room.submitNotes(user, act.Notes)
		case protocol.LeaveRoom:
			return
		}
	}
}

// handleSpectate serves the read-only socket: updates flow out, nothing is
// read but close frames.
func (s *Server) handleSpectate(w http.ResponseWriter, r *http.Request) {
	room, ok := s.room(chi.URLParam(r, "roomID"))
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	updates := room.subscribe()
	defer room.unsubscribe(updates)

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case payload, ok := <-updates:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
