// Package api is the HTTP side of the Babel client: login, room admission and
// the game's request/response endpoints. The streaming side lives in
// internal/room; this package only hands it a connect URL.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dkells/babel-client/pkg/types"
)

var ErrAuth = errors.New("login rejected")
var ErrRoomCreation = errors.New("room creation rejected")
var ErrStale = errors.New("response superseded by a newer request")

const userTokenHeader = "X-User-Token"

// DefaultBase matches the frontend's fallback for same-origin deployments.
const DefaultBase = "/api"

type Client struct {
	base *url.URL
	http *http.Client
	log  *zap.Logger

	// Per-operation issue counters so a response that lost the race to a
	// newer call of the same operation can be discarded instead of
	// overwriting fresher state.
	mu     sync.Mutex
	issued map[string]uint64
}

// New resolves the configured base address against origin when it is a
// relative path (the same-origin deployment case). An absolute http(s) base is
// used as-is.
func New(baseURL, origin string, log *zap.Logger) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBase
	}
	if log == nil {
		log = zap.NewNop()
	}

	raw := strings.TrimSuffix(baseURL, "/")
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		if origin == "" {
			return nil, fmt.Errorf("relative base %q requires an origin", baseURL)
		}
		raw = strings.TrimSuffix(origin, "/") + "/" + strings.TrimPrefix(raw, "/")
	}

	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base address %q: %w", baseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", base.Scheme)
	}

	return &Client{
		base:   base,
		http:   &http.Client{Timeout: 15 * time.Second},
		log:    log,
		issued: make(map[string]uint64),
	}, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String()
}

// WebSocketURL derives the room socket address from the base: http maps to ws,
// https to wss, and the room id and token ride on the connect path.
func (c *Client) WebSocketURL(roomID types.RoomID, token string) string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/rooms/" + url.PathEscape(roomID) + "/connect"
	q := url.Values{}
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// SpectateURL is the read-only variant of WebSocketURL; spectator sockets take
// no token.
func (c *Client) SpectateURL(roomID types.RoomID) string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/rooms/" + url.PathEscape(roomID) + "/spectate"
	return u.String()
}

func (c *Client) begin(op string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued[op]++
	return c.issued[op]
}

func (c *Client) superseded(op string, seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return seq < c.issued[op]
}

// Login exchanges a username and country for a session token.
func (c *Client) Login(ctx context.Context, username, country string) (string, error) {
	seq := c.begin("login")

	body, err := json.Marshal(map[string]string{
		"username": username,
		"country":  country,
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.postJSON(ctx, "/login", "", body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if c.superseded("login", seq) {
		c.log.Warn("discarding stale login response", zap.String("username", username))
		return "", ErrStale
	}
	return resp.Token, nil
}

// CreateRoom asks the server for a fresh room and returns its id.
func (c *Client) CreateRoom(ctx context.Context, token string) (types.RoomID, error) {
	seq := c.begin("create_room")

	raw, err := c.post(ctx, "/rooms", token, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRoomCreation, err)
	}
	if c.superseded("create_room", seq) {
		c.log.Warn("discarding stale create_room response")
		return "", ErrStale
	}

	// The server answers with either a bare id or a JSON string.
	id := strings.TrimSpace(string(raw))
	if strings.HasPrefix(id, `"`) {
		var decoded string
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return "", fmt.Errorf("%w: undecodable room id %q", ErrRoomCreation, id)
		}
		id = decoded
	}
	if id == "" {
		return "", fmt.Errorf("%w: empty room id", ErrRoomCreation)
	}
	return id, nil
}

// ListRooms returns the ids of all active rooms.
func (c *Client) ListRooms(ctx context.Context) ([]types.RoomID, error) {
	var rooms []types.RoomID
	if err := c.getJSON(ctx, "/rooms", &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// Info fetches the global filter configuration.
func (c *Client) Info(ctx context.Context) (types.RoomInfo, error) {
	var info types.RoomInfo
	err := c.getJSON(ctx, "/info", &info)
	return info, err
}

// RoomWords fetches the allowed and banned word lists for one room.
func (c *Client) RoomWords(ctx context.Context, roomID types.RoomID) (types.RoomWordsInfo, error) {
	var words types.RoomWordsInfo
	err := c.getJSON(ctx, "/rooms/"+url.PathEscape(roomID)+"/info", &words)
	return words, err
}

// SubmitNotes records a player's banned-word hypotheses over HTTP and returns
// the resulting progress counts.
func (c *Client) SubmitNotes(ctx context.Context, token string, roomID types.RoomID, notes map[types.CountryCode][]string) (types.NotesProgress, error) {
	var progress types.NotesProgress

	body, err := json.Marshal(map[string]any{"notes": notes})
	if err != nil {
		return progress, err
	}
	err = c.postJSON(ctx, "/rooms/"+url.PathEscape(roomID)+"/submit_notes", token, body, &progress)
	return progress, err
}

// Solve checks a complete answer against the room's banned words.
func (c *Client) Solve(ctx context.Context, token string, roomID types.RoomID, answer map[types.CountryCode][]string) (bool, error) {
	body, err := json.Marshal(map[string]any{"answer": answer})
	if err != nil {
		return false, err
	}

	var resp struct {
		Solved bool `json:"solved"`
	}
	if err := c.postJSON(ctx, "/rooms/"+url.PathEscape(roomID)+"/solve", token, body, &resp); err != nil {
		return false, err
	}
	return resp.Solved, nil
}

// SolveWithNotes asks the server to judge the merged notes of every player.
func (c *Client) SolveWithNotes(ctx context.Context, token string, roomID types.RoomID) (bool, error) {
	var resp struct {
		Solved bool `json:"solved"`
	}
	if err := c.postJSON(ctx, "/rooms/"+url.PathEscape(roomID)+"/solve_with_note", token, nil, &resp); err != nil {
		return false, err
	}
	return resp.Solved, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return err
	}
	raw, err := c.do(req)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) postJSON(ctx context.Context, path, token string, body []byte, out any) error {
	raw, err := c.post(ctx, path, token, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) post(ctx context.Context, path, token string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(userTokenHeader, token)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return raw, nil
}
