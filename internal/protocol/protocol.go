// Package protocol encodes outbound user actions into the envelope the Babel
// server expects and decodes inbound frames into RoomUpdate values. It is the
// only place wire envelopes are constructed or taken apart.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkells/babel-client/pkg/types"
)

var ErrDecode = errors.New("malformed payload")
var ErrUnknownAction = errors.New("unknown action")

// Action is a user intent headed for the server. System actions cover room
// lifecycle and chat; game actions cover gameplay and are routed to a
// different handler server-side, so every encoded action carries its class.
type Action interface{ isAction() }

type SendMessage struct{ Text string }

type SendMessageBatch struct{ Texts []string }

type LeaveRoom struct{}

type SubmitNotes struct {
	Notes map[types.CountryCode][]string
}

func (SendMessage) isAction()      {}
func (SendMessageBatch) isAction() {}
func (LeaveRoom) isAction()        {}
func (SubmitNotes) isAction()      {}

// envelope is the two-level wrapper: exactly one of the two classes is set.
type envelope struct {
	System json.RawMessage `json:"system,omitempty"`
	Game   json.RawMessage `json:"game,omitempty"`
}

// Encode wraps an action in its class envelope. Inner variants are externally
// tagged the way the server's serde types are: struct variants become a
// single-key object, the unit variant leave_room becomes a bare string.
func Encode(a Action) ([]byte, error) {
	var env envelope
	var inner any

	switch act := a.(type) {
	case SendMessage:
		inner = map[string]string{"send_message": act.Text}
	case SendMessageBatch:
		inner = map[string][]string{"send_message_batch": act.Texts}
	case LeaveRoom:
		inner = "leave_room"
	case SubmitNotes:
		inner = map[string]map[types.CountryCode][]string{"submit_notes": act.Notes}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}

	raw, err := json.Marshal(inner)
	if err != nil {
		return nil, err
	}

	switch a.(type) {
	case SubmitNotes:
		env.Game = raw
	default:
		env.System = raw
	}

	return json.Marshal(env)
}

// DecodeAction parses an outbound-format envelope back into an Action. Used by
// the stub server and round-trip tests; unknown tags are a decode error, not a
// silent skip.
func DecodeAction(data []byte) (Action, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	switch {
	case env.System != nil && env.Game == nil:
		return decodeSystem(env.System)
	case env.Game != nil && env.System == nil:
		return decodeGame(env.Game)
	default:
		return nil, fmt.Errorf("%w: envelope must carry exactly one action class", ErrDecode)
	}
}

func decodeSystem(raw json.RawMessage) (Action, error) {
	// Unit variants arrive as a bare string.
	var unit string
	if err := json.Unmarshal(raw, &unit); err == nil {
		if unit == "leave_room" {
			return LeaveRoom{}, nil
		}
		return nil, fmt.Errorf("%w: system action %q", ErrDecode, unit)
	}

	var variants struct {
		SendMessage      *string   `json:"send_message"`
		SendMessageBatch *[]string `json:"send_message_batch"`
	}
	if err := json.Unmarshal(raw, &variants); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	switch {
	case variants.SendMessage != nil:
		return SendMessage{Text: *variants.SendMessage}, nil
	case variants.SendMessageBatch != nil:
		return SendMessageBatch{Texts: *variants.SendMessageBatch}, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized system action", ErrDecode)
	}
}

func decodeGame(raw json.RawMessage) (Action, error) {
	var variants struct {
		SubmitNotes *map[types.CountryCode][]string `json:"submit_notes"`
	}
	if err := json.Unmarshal(raw, &variants); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if variants.SubmitNotes == nil {
		return nil, fmt.Errorf("%w: unrecognized game action", ErrDecode)
	}
	return SubmitNotes{Notes: *variants.SubmitNotes}, nil
}

// DecodeUpdate parses one inbound frame as a RoomUpdate. Callers treat any
// error as "drop this frame"; a bad frame must never take the connection down.
func DecodeUpdate(data []byte) (types.RoomUpdate, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return types.RoomUpdate{}, fmt.Errorf("%w: update is not a JSON object", ErrDecode)
	}

	var update types.RoomUpdate
	if err := json.Unmarshal(trimmed, &update); err != nil {
		return types.RoomUpdate{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return update, nil
}
