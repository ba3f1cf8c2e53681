package stubserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkells/babel-client/pkg/types"
)

func login(t *testing.T, srv *httptest.Server, username, country string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "country": country})
	resp, err := http.Post(srv.URL+"/api/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func TestCreateRoomRequiresAuth(t *testing.T) {
	srv := httptest.NewServer(New(nil, nil).Routes())
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/api/rooms", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	token := login(t, srv, "alice", "A")
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/rooms", nil)
	req.Header.Set("X-User-Token", token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	id, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Len(t, string(id), 6)
}

func TestCensorReplacesBannedWords(t *testing.T) {
	room := newStubRoom("r", nil, map[types.CountryCode][]string{"A": {"sunrise"}}, "***")

	content, censored := room.censor("what a Sunrise today")
	require.True(t, censored)
	require.Equal(t, "***", content)

	content, censored = room.censor("plain talk")
	require.False(t, censored)
	require.Equal(t, "plain talk", content)
}

func TestSolveExactMatch(t *testing.T) {
	room := newStubRoom("r", nil, map[types.CountryCode][]string{
		"A": {"sunrise", "harbor"},
		"B": {"lantern"},
	}, "***")

	require.False(t, room.solve(map[types.CountryCode][]string{"A": {"sunrise"}}))
	require.False(t, room.solve(map[types.CountryCode][]string{
		"A": {"sunrise", "harbor"},
		"B": {"wrong"},
	}))
	require.True(t, room.solve(map[types.CountryCode][]string{
		"A": {"Harbor", "sunrise"},
		"B": {"lantern"},
	}))
	require.True(t, room.victory)
}

func TestSolveWithNotesMergesPlayers(t *testing.T) {
	room := newStubRoom("r", nil, map[types.CountryCode][]string{
		"A": {"sunrise"},
		"B": {"lantern"},
	}, "***")

	room.notes["alice"] = map[types.CountryCode][]string{"A": {"sunrise"}}
	require.False(t, room.solveWithNotes())

	room.notes["bob"] = map[types.CountryCode][]string{"B": {"lantern"}}
	require.True(t, room.solveWithNotes())
}
