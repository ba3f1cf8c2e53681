package room

import (
	"github.com/dkells/babel-client/pkg/types"
)

// ConnState is the connection lifecycle. Transitions happen only inside the
// client's loop: Idle → Connecting → Connected → {Disconnected, Error}, with
// Disconnected/Error returning to Connecting on retry or Idle on cleanup.
type ConnState string

const (
	StateIdle         ConnState = "idle"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
	StateError        ConnState = "error"
)

// View is a point-in-time copy of everything a consumer may read. Slices are
// copies; mutating them never touches the client's state.
type View struct {
	State                ConnState
	RoomID               types.RoomID
	Room                 *types.RoomState
	History              []types.CensoredMessage
	PendingNotifications int
	Victory              *types.VictoryState
}

// Event is pushed to the events channel on observable edges, so consumers can
// react to transitions rather than polling fields.
type Event interface{ isEvent() }

type StateChanged struct {
	Old ConnState
	New ConnState
}

// MessagesAppended carries only messages newly added to history, after
// duplicate ids from redelivery have been collapsed.
type MessagesAppended struct {
	Messages []types.CensoredMessage
}

type NotificationPosted struct {
	Message string
}

// VictoryAchieved fires once per victory edge: when achieved flips from false
// to true.
type VictoryAchieved struct {
	State types.VictoryState
}

// RoomClosed reports a server-initiated close; no reconnect follows it.
type RoomClosed struct{}

func (StateChanged) isEvent()       {}
func (MessagesAppended) isEvent()   {}
func (NotificationPosted) isEvent() {}
func (VictoryAchieved) isEvent()    {}
func (RoomClosed) isEvent()         {}
