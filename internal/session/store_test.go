package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLogin struct {
	token string
	err   error
	calls int
}

func (f *fakeLogin) Login(_ context.Context, _, _ string) (string, error) {
	f.calls++
	return f.token, f.err
}

func tempStore(t *testing.T, api loginAPI) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.json")
	return NewStore(api, path, zap.NewNop()), path
}

func TestLogin_PersistsSession(t *testing.T) {
	store, path := tempStore(t, &fakeLogin{token: "T1"})

	sess, err := store.Login(context.Background(), "alice", "A")
	require.NoError(t, err)
	require.Equal(t, "alice", sess.PlayerName)
	require.Equal(t, "alice", sess.PlayerID)
	require.Equal(t, "T1", sess.Token)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"player_name": "alice"`)
	require.Contains(t, string(raw), `"player_token": "T1"`)
}

func TestLogin_FailureLeavesPriorSessionUntouched(t *testing.T) {
	api := &fakeLogin{token: "T1"}
	store, _ := tempStore(t, api)

	_, err := store.Login(context.Background(), "alice", "A")
	require.NoError(t, err)

	api.err = errors.New("server said no")
	_, err = store.Login(context.Background(), "mallory", "B")
	require.Error(t, err)

	sess, ok := store.Current()
	require.True(t, ok)
	require.Equal(t, "alice", sess.PlayerName)
	require.Equal(t, "T1", sess.Token)
}

func TestLoadPersisted_RestoresAcrossStores(t *testing.T) {
	store, path := tempStore(t, &fakeLogin{token: "T1"})
	_, err := store.Login(context.Background(), "alice", "A")
	require.NoError(t, err)

	// A fresh store on the same path is "after reload".
	reloaded := NewStore(&fakeLogin{}, path, zap.NewNop())
	sess, ok := reloaded.LoadPersisted()
	require.True(t, ok)
	require.Equal(t, "alice", sess.PlayerName)
	require.Equal(t, "T1", sess.Token)
}

func TestLoadPersisted_AbsentOrMalformed(t *testing.T) {
	store, path := tempStore(t, &fakeLogin{})

	_, ok := store.LoadPersisted()
	require.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, ok = store.LoadPersisted()
	require.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte(`{"player_name":"","player_token":""}`), 0o600))
	_, ok = store.LoadPersisted()
	require.False(t, ok)
}

func TestSetSession_WritesThrough(t *testing.T) {
	store, path := tempStore(t, &fakeLogin{})

	sess := store.SetSession("bob", "external-token")
	require.Equal(t, "bob", sess.PlayerID)

	reloaded := NewStore(&fakeLogin{}, path, zap.NewNop())
	got, ok := reloaded.LoadPersisted()
	require.True(t, ok)
	require.Equal(t, "external-token", got.Token)
}

func TestClear(t *testing.T) {
	store, path := tempStore(t, &fakeLogin{token: "T1"})
	_, err := store.Login(context.Background(), "alice", "A")
	require.NoError(t, err)

	require.NoError(t, store.Clear())
	_, ok := store.Current()
	require.False(t, ok)
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))

	// Clearing twice is fine.
	require.NoError(t, store.Clear())
}
