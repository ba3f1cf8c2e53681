package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkells/babel-client/pkg/types"
)

func TestEncode_SystemEnvelopeShapes(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		want   string
	}{
		{"send_message", SendMessage{Text: "hello"}, `{"system":{"send_message":"hello"}}`},
		{"send_message_batch", SendMessageBatch{Texts: []string{"a", "b"}}, `{"system":{"send_message_batch":["a","b"]}}`},
		{"leave_room unit variant", LeaveRoom{}, `{"system":"leave_room"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := Encode(tc.action)
			require.NoError(t, err)
			require.JSONEq(t, tc.want, string(raw))
		})
	}
}

func TestEncode_GameEnvelope(t *testing.T) {
	raw, err := Encode(SubmitNotes{Notes: map[types.CountryCode][]string{"A": {"x", "y"}}})
	require.NoError(t, err)
	require.JSONEq(t, `{"game":{"submit_notes":{"A":["x","y"]}}}`, string(raw))
}

func TestActionRoundTrip(t *testing.T) {
	actions := []Action{
		SendMessage{Text: "over the river"},
		SendMessageBatch{Texts: []string{"one", "two", "three"}},
		LeaveRoom{},
		SubmitNotes{Notes: map[types.CountryCode][]string{"A": {"x", "y"}, "B": {"z"}}},
	}

	for _, a := range actions {
		raw, err := Encode(a)
		require.NoError(t, err)
		back, err := DecodeAction(raw)
		require.NoError(t, err)
		require.Equal(t, a, back)
	}
}

func TestDecodeAction_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `not json at all`},
		{"no class", `{}`},
		{"both classes", `{"system":"leave_room","game":{"submit_notes":{}}}`},
		{"unknown system tag", `{"system":{"self_destruct":true}}`},
		{"unknown system unit", `{"system":"warp_drive"}`},
		{"unknown game tag", `{"game":{"cheat":true}}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeAction([]byte(tc.raw))
			require.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestDecodeUpdate(t *testing.T) {
	raw := `{
		"room_state": {
			"room_id": "room1",
			"participants": [{"user_id": "alice", "country": "A", "joined_at": 100}],
			"recent_messages": []
		},
		"new_messages": [{"id": 1, "sender_id": "alice", "content": "***", "was_censored": true}],
		"notifications": [{"message": "alice joined"}],
		"room_closed": false,
		"victory": null
	}`

	update, err := DecodeUpdate([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, "room1", update.RoomState.RoomID)
	require.Len(t, update.NewMessages, 1)
	require.True(t, update.NewMessages[0].WasCensored)
	require.Equal(t, "alice joined", update.Notifications[0].Message)
	require.False(t, update.RoomClosed)
	require.Nil(t, update.Victory)
}

func TestDecodeUpdate_Rejects(t *testing.T) {
	for _, raw := range []string{``, `   `, `"just a string"`, `[1,2,3]`, `{"room_state": 7}`} {
		_, err := DecodeUpdate([]byte(raw))
		require.ErrorIs(t, err, ErrDecode, "payload: %q", raw)
	}
}

func TestDecodeUpdate_Victory(t *testing.T) {
	raw := `{
		"room_state": {"room_id": "r", "participants": [], "recent_messages": []},
		"new_messages": [],
		"notifications": [],
		"room_closed": false,
		"victory": {
			"achieved": true,
			"player_progress": [
				{"user_id": "alice", "country": "A", "discovered_count": 2, "total_required": 2, "completed": true}
			],
			"unlocked_at": 1234
		}
	}`

	update, err := DecodeUpdate([]byte(raw))
	require.NoError(t, err)
	require.NotNil(t, update.Victory)
	require.True(t, update.Victory.Achieved)
	require.NotNil(t, update.Victory.UnlockedAt)
	require.EqualValues(t, 1234, *update.Victory.UnlockedAt)

	// Marshalling back keeps the wire shape stable.
	again, err := json.Marshal(update)
	require.NoError(t, err)
	require.Contains(t, string(again), `"unlocked_at":1234`)
}
