// Package session owns durable player identity: the display name and token
// that survive restarts, persisted as two string values in a small JSON file
// under the user config dir.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Session is the authenticated identity for one player. PlayerID is derived
// from the display name; the server keys everything by it.
type Session struct {
	PlayerID   string
	PlayerName string
	Token      string
}

// persisted is the on-disk shape. Only the two string values the frontend kept
// in local storage.
type persisted struct {
	PlayerName  string `json:"player_name"`
	PlayerToken string `json:"player_token"`
}

type loginAPI interface {
	Login(ctx context.Context, username, country string) (string, error)
}

type Store struct {
	api  loginAPI
	path string
	log  *zap.Logger

	mu   sync.Mutex
	sess Session
	ok   bool
}

// DefaultPath places the session file under the user config dir. Falls back to
// the working directory when the platform has no config dir.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".babel-session.json"
	}
	return filepath.Join(dir, "babel", "session.json")
}

func NewStore(api loginAPI, path string, log *zap.Logger) *Store {
	if path == "" {
		path = DefaultPath()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{api: api, path: path, log: log}
}

func derivePlayerID(name string) string {
	return strings.TrimSpace(name)
}

// Login authenticates against the server. On success the new identity
// replaces the in-memory session and is written through to disk; on failure
// any prior session is left untouched.
func (s *Store) Login(ctx context.Context, username, country string) (Session, error) {
	token, err := s.api.Login(ctx, username, country)
	if err != nil {
		return Session{}, err
	}
	return s.install(username, token), nil
}

// SetSession is the direct assignment path for externally issued tokens; it
// writes through to disk like a login would.
func (s *Store) SetSession(name, token string) Session {
	return s.install(name, token)
}

func (s *Store) install(name, token string) Session {
	s.mu.Lock()
	s.sess = Session{
		PlayerID:   derivePlayerID(name),
		PlayerName: name,
		Token:      token,
	}
	s.ok = true
	sess := s.sess
	s.mu.Unlock()

	if err := s.save(sess); err != nil {
		s.log.Warn("failed to persist session", zap.Error(err))
	}
	return sess
}

// Current returns the in-memory session, if any.
func (s *Store) Current() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess, s.ok
}

// LoadPersisted restores the session from disk. Absent or malformed storage
// reports false; it never fails.
func (s *Store) LoadPersisted() (Session, bool) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return Session{}, false
	}

	var p persisted
	if err := json.Unmarshal(raw, &p); err != nil || p.PlayerName == "" || p.PlayerToken == "" {
		if err != nil {
			s.log.Warn("ignoring malformed session file", zap.String("path", s.path), zap.Error(err))
		}
		return Session{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = Session{
		PlayerID:   derivePlayerID(p.PlayerName),
		PlayerName: p.PlayerName,
		Token:      p.PlayerToken,
	}
	s.ok = true
	return s.sess, true
}

// Clear drops the in-memory session and removes the persisted file.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.sess = Session{}
	s.ok = false
	s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) save(sess Session) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(persisted{
		PlayerName:  sess.PlayerName,
		PlayerToken: sess.Token,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o600)
}
