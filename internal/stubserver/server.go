// Package stubserver implements just enough of the Babel backend to exercise
// the client for real: login, room admission, the room socket and the notes
// endpoints, with hooks for scripting pushes and inspecting received actions.
// It backs both the e2e tests and cmd/devserver.
package stubserver

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dkells/babel-client/internal/protocol"
	"github.com/dkells/babel-client/pkg/types"
)

type userInfo struct {
	id      types.UserID
	country types.CountryCode
}

type Server struct {
	log *zap.Logger

	mu     sync.Mutex
	tokens map[string]userInfo
	rooms  map[types.RoomID]*stubRoom

	allowed     []string
	banned      map[types.CountryCode][]string
	replacement string
}

// New builds a stub with a fixed word setup. A nil banned map gets a small
// default so censorship and victory are observable out of the box.
func New(log *zap.Logger, banned map[types.CountryCode][]string) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if banned == nil {
		banned = map[types.CountryCode][]string{
			"A": {"sunrise"},
			"B": {"lantern"},
		}
	}
	return &Server{
		log:         log,
		tokens:      make(map[string]userInfo),
		rooms:       make(map[types.RoomID]*stubRoom),
		allowed:     []string{"river", "stone", "cloud", "sunrise", "lantern"},
		banned:      banned,
		replacement: "***",
	}
}

// Routes wires the Babel API surface onto a chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/api/login", s.handleLogin)
	r.Get("/api/info", s.handleInfo)
	r.Get("/api/rooms", s.handleListRooms)
	r.Post("/api/rooms", s.handleCreateRoom)
	r.Route("/api/rooms/{roomID}", func(r chi.Router) {
		r.Get("/connect", s.handleConnect)
		r.Get("/spectate", s.handleSpectate)
		r.Get("/info", s.handleRoomWords)
		r.Post("/submit_notes", s.handleSubmitNotes)
		r.Post("/solve", s.handleSolve)
		r.Post("/solve_with_note", s.handleSolveWithNotes)
	})
	return r
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Country  string `json:"country"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		http.Error(w, "bad login request", http.StatusBadRequest)
		return
	}

	token, err := randomToken()
	if err != nil {
		http.Error(w, "token generation failed", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	s.tokens[token] = userInfo{id: req.Username, country: req.Country}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (s *Server) authenticate(r *http.Request) (userInfo, bool) {
	token := r.Header.Get("X-User-Token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.tokens[token]
	return user, ok
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(r); !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	id, err := randomRoomID()
	if err != nil {
		http.Error(w, "id generation failed", http.StatusInternalServerError)
		return
	}
	s.ensureRoom(id)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(id))
}

func (s *Server) handleListRooms(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	ids := make([]types.RoomID, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ids)
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(types.RoomInfo{
		FilterConfig: types.FilterConfig{
			BannedWords: s.banned,
			Replacement: s.replacement,
		},
	})
}

func (s *Server) handleRoomWords(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.room(chi.URLParam(r, "roomID")); !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(types.RoomWordsInfo{
		AllowedWords: s.allowed,
		BannedWords:  s.banned,
	})
}

func (s *Server) handleSubmitNotes(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	room, ok := s.room(chi.URLParam(r, "roomID"))
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	var req struct {
		Notes map[types.CountryCode][]string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad notes request", http.StatusBadRequest)
		return
	}

	progress := room.submitNotes(user, req.Notes)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(progress)
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(r); !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	room, ok := s.room(chi.URLParam(r, "roomID"))
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	var req struct {
		Answer map[types.CountryCode][]string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad solve request", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"solved": room.solve(req.Answer)})
}

func (s *Server) handleSolveWithNotes(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(r); !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	room, ok := s.room(chi.URLParam(r, "roomID"))
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"solved": room.solveWithNotes()})
}

func (s *Server) room(id types.RoomID) (*stubRoom, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	return room, ok
}

// ensureRoom mirrors the real server: connecting to an unknown room creates it.
func (s *Server) ensureRoom(id types.RoomID) *stubRoom {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[id]; ok {
		return room
	}
	room := newStubRoom(id, s.allowed, s.banned, s.replacement)
	s.rooms[id] = room
	return room
}

// ---- test hooks ----

// PushUpdate delivers a caller-built RoomUpdate to every subscriber of a room.
func (s *Server) PushUpdate(id types.RoomID, update types.RoomUpdate) {
	if room, ok := s.room(id); ok {
		room.push(update)
	}
}

// CloseRoom broadcasts a room_closed update.
func (s *Server) CloseRoom(id types.RoomID) {
	if room, ok := s.room(id); ok {
		room.broadcast(nil, []string{"room closed"}, true)
	}
}

// DropConnections severs every socket on a room without closing it, so
// clients see a transport failure.
func (s *Server) DropConnections(id types.RoomID) {
	if room, ok := s.room(id); ok {
		room.dropSubscribers()
	}
}

// Actions returns the decoded envelopes received on a room's socket so far.
func (s *Server) Actions(id types.RoomID) []protocol.Action {
	room, ok := s.room(id)
	if !ok {
		return nil
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return append([]protocol.Action(nil), room.actions...)
}

func randomToken() (string, error) {
	return randomString("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789", 16)
}

func randomRoomID() (string, error) {
	return randomString("abcdefghijklmnopqrstuvwxyz0123456789", 6)
}

func randomString(charset string, length int) (string, error) {
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		out[i] = charset[n.Int64()]
	}
	return string(out), nil
}
