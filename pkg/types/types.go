// Package types holds the wire model shared between the Babel backend and this
// client. Field names and casing mirror the server's JSON exactly; anything the
// server sends that is not represented here is dropped at the decode boundary.
package types

// Aliases for the server's identifier types.
type (
	RoomID      = string
	UserID      = string
	MessageID   = uint64
	CountryCode = string
	Timestamp   = uint64
)

// CountryNames maps the four country codes used by the game to display names.
var CountryNames = map[CountryCode]string{
	"A": "Veridia",
	"B": "Aethelgard",
	"C": "Orynthia",
	"D": "Kaelis",
}

// CountryName returns the display name for a country code, falling back to the
// code itself for anything unknown.
func CountryName(code CountryCode) string {
	if name, ok := CountryNames[code]; ok {
		return name
	}
	return code
}

// CensoredMessage is a chat message as seen by one viewer. Content may have
// been redacted server-side; WasCensored says whether it was. IDs are assigned
// by the server and increase monotonically within a room.
type CensoredMessage struct {
	ID          MessageID `json:"id"`
	SenderID    UserID    `json:"sender_id"`
	Content     string    `json:"content"`
	WasCensored bool      `json:"was_censored"`
	Timestamp   Timestamp `json:"timestamp,omitempty"`
}

type Participant struct {
	UserID   UserID      `json:"user_id"`
	Country  CountryCode `json:"country"`
	JoinedAt Timestamp   `json:"joined_at"`
}

// RoomState is the server-authoritative snapshot of a room: who is in it and
// the bounded window of recent messages. It is always replaced wholesale,
// never merged.
type RoomState struct {
	RoomID         RoomID            `json:"room_id"`
	Participants   []Participant     `json:"participants"`
	RecentMessages []CensoredMessage `json:"recent_messages"`
}

type Notification struct {
	Message string `json:"message"`
}

// PlayerProgress tracks one player's discovery count toward the room's victory
// condition.
type PlayerProgress struct {
	UserID          UserID      `json:"user_id"`
	Country         CountryCode `json:"country"`
	DiscoveredCount int         `json:"discovered_count"`
	TotalRequired   int         `json:"total_required"`
	Completed       bool        `json:"completed"`
}

// VictoryState is computed server-side and replaced wholesale on every update
// that carries it. UnlockedAt is nil until victory is achieved.
type VictoryState struct {
	Achieved       bool             `json:"achieved"`
	PlayerProgress []PlayerProgress `json:"player_progress"`
	UnlockedAt     *Timestamp       `json:"unlocked_at"`
}

// RoomUpdate is the unit of reconciliation pushed over the room socket.
type RoomUpdate struct {
	RoomState     RoomState         `json:"room_state"`
	NewMessages   []CensoredMessage `json:"new_messages"`
	Notifications []Notification    `json:"notifications"`
	RoomClosed    bool              `json:"room_closed"`
	Victory       *VictoryState     `json:"victory,omitempty"`
}

// FilterConfig describes the server's censorship rules: banned words per
// country and the replacement string substituted for them.
type FilterConfig struct {
	BannedWords map[CountryCode][]string `json:"banned_words"`
	Replacement string                   `json:"replacement"`
}

// RoomInfo is the response of GET /api/info.
type RoomInfo struct {
	FilterConfig FilterConfig `json:"filter_config"`
}

// RoomWordsInfo is the response of GET /api/rooms/{id}/info.
type RoomWordsInfo struct {
	AllowedWords []string                 `json:"allowed_words"`
	BannedWords  map[CountryCode][]string `json:"banned_words"`
}

// NotesProgress is the response of POST /api/rooms/{id}/submit_notes.
type NotesProgress struct {
	Success         bool `json:"success"`
	DiscoveredCount int  `json:"discovered_count"`
	TotalRequired   int  `json:"total_required"`
	VictoryAchieved bool `json:"victory_achieved"`
}
