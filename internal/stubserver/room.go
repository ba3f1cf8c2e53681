package stubserver

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/dkells/babel-client/internal/protocol"
	"github.com/dkells/babel-client/pkg/types"
)

const recentWindow = 10

// stubRoom is a deliberately small stand-in for the real room: enough message,
// notes and victory bookkeeping to drive the client end-to-end, plus capture
// hooks for tests.
type stubRoom struct {
	id types.RoomID

	mu           sync.Mutex
	participants map[types.UserID]types.Participant
	messages     []types.CensoredMessage
	nextMsgID    types.MessageID
	notes        map[types.UserID]map[types.CountryCode][]string
	victory      bool
	victoryAt    *types.Timestamp
	closed       bool
	subs         map[chan []byte]struct{}
	actions      []protocol.Action
	allowed      []string
	banned       map[types.CountryCode][]string
	replacement  string
}

func newStubRoom(id types.RoomID, allowed []string, banned map[types.CountryCode][]string, replacement string) *stubRoom {
	return &stubRoom{
		id:           id,
		participants: make(map[types.UserID]types.Participant),
		nextMsgID:    1,
		notes:        make(map[types.UserID]map[types.CountryCode][]string),
		subs:         make(map[chan []byte]struct{}),
		allowed:      allowed,
		banned:       banned,
		replacement:  replacement,
	}
}

func (r *stubRoom) subscribe() chan []byte {
	ch := make(chan []byte, 16)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()
	return ch
}

func (r *stubRoom) unsubscribe(ch chan []byte) {
	r.mu.Lock()
	if _, ok := r.subs[ch]; ok {
		delete(r.subs, ch)
		close(ch)
	}
	r.mu.Unlock()
}

func (r *stubRoom) join(user userInfo) {
	r.mu.Lock()
	r.participants[user.id] = types.Participant{
		UserID:   user.id,
		Country:  user.country,
		JoinedAt: types.Timestamp(time.Now().Unix()),
	}
	r.mu.Unlock()
	r.broadcast(nil, []string{user.id + " joined the room"}, false)
}

func (r *stubRoom) leave(user userInfo) {
	r.mu.Lock()
	delete(r.participants, user.id)
	r.mu.Unlock()
	r.broadcast(nil, []string{user.id + " left the room"}, false)
}

func (r *stubRoom) record(a protocol.Action) {
	r.mu.Lock()
	r.actions = append(r.actions, a)
	r.mu.Unlock()
}

// addMessages censors and appends texts, then broadcasts them as new_messages.
func (r *stubRoom) addMessages(sender userInfo, texts []string) {
	r.mu.Lock()
	fresh := make([]types.CensoredMessage, 0, len(texts))
	for _, text := range texts {
		content, censored := r.censor(text)
		fresh = append(fresh, types.CensoredMessage{
			ID:          r.nextMsgID,
			SenderID:    sender.id,
			Content:     content,
			WasCensored: censored,
			Timestamp:   types.Timestamp(time.Now().Unix()),
		})
		r.nextMsgID++
	}
	r.messages = append(r.messages, fresh...)
	r.mu.Unlock()
	r.broadcast(fresh, nil, false)
}

func (r *stubRoom) censor(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, words := range r.banned {
		for _, word := range words {
			if strings.Contains(lower, strings.ToLower(word)) {
				return r.replacement, true
			}
		}
	}
	return text, false
}

// submitNotes stores a player's hypotheses and reports progress; flipping the
// room into victory broadcasts the update the way the real server does.
func (r *stubRoom) submitNotes(user userInfo, notes map[types.CountryCode][]string) types.NotesProgress {
	r.mu.Lock()
	r.notes[user.id] = notes

	all := r.allBannedLocked()
	progress := r.progressLocked(all)

	var mine types.PlayerProgress
	for _, p := range progress {
		if p.UserID == user.id {
			mine = p
		}
	}

	won := len(progress) > 0
	for _, p := range progress {
		if !p.Completed {
			won = false
		}
	}
	newlyWon := won && !r.victory
	if newlyWon {
		r.victory = true
		at := types.Timestamp(time.Now().Unix())
		r.victoryAt = &at
	}
	r.mu.Unlock()

	if newlyWon {
		r.broadcast(nil, []string{"Victory! All players discovered all banned words!"}, false)
	}

	return types.NotesProgress{
		Success:         true,
		DiscoveredCount: mine.DiscoveredCount,
		TotalRequired:   mine.TotalRequired,
		VictoryAchieved: won,
	}
}

func (r *stubRoom) solve(answer map[types.CountryCode][]string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(answer) != len(r.banned) {
		return false
	}
	for country, words := range answer {
		expected, ok := r.banned[country]
		if !ok || !sameWordSet(words, expected) {
			return false
		}
	}
	r.victory = true
	if r.victoryAt == nil {
		at := types.Timestamp(time.Now().Unix())
		r.victoryAt = &at
	}
	return true
}

// solveWithNotes judges the union of every participant's notes as one answer.
func (r *stubRoom) solveWithNotes() bool {
	r.mu.Lock()
	merged := make(map[types.CountryCode][]string)
	for _, notes := range r.notes {
		for country, words := range notes {
			merged[country] = append(merged[country], words...)
		}
	}
	r.mu.Unlock()
	return r.solve(merged)
}

func sameWordSet(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, w := range a {
		set[strings.ToLower(w)] = true
	}
	if len(set) != len(b) {
		return false
	}
	for _, w := range b {
		if !set[strings.ToLower(w)] {
			return false
		}
	}
	return true
}

func (r *stubRoom) allBannedLocked() map[string]bool {
	all := make(map[string]bool)
	for _, words := range r.banned {
		for _, w := range words {
			all[strings.ToLower(w)] = true
		}
	}
	return all
}

func (r *stubRoom) progressLocked(all map[string]bool) []types.PlayerProgress {
	progress := make([]types.PlayerProgress, 0, len(r.participants))
	for _, p := range r.participants {
		discovered := make(map[string]bool)
		for _, words := range r.notes[p.UserID] {
			for _, w := range words {
				if all[strings.ToLower(w)] {
					discovered[strings.ToLower(w)] = true
				}
			}
		}
		progress = append(progress, types.PlayerProgress{
			UserID:          p.UserID,
			Country:         p.Country,
			DiscoveredCount: len(discovered),
			TotalRequired:   len(all),
			Completed:       len(discovered) >= len(all),
		})
	}
	return progress
}

func (r *stubRoom) stateLocked() types.RoomState {
	participants := make([]types.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		participants = append(participants, p)
	}
	recent := r.messages
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}
	return types.RoomState{
		RoomID:         r.id,
		Participants:   participants,
		RecentMessages: append([]types.CensoredMessage(nil), recent...),
	}
}

func (r *stubRoom) victoryLocked() *types.VictoryState {
	if !r.victory {
		return nil
	}
	return &types.VictoryState{
		Achieved:       true,
		PlayerProgress: r.progressLocked(r.allBannedLocked()),
		UnlockedAt:     r.victoryAt,
	}
}

// broadcast builds a RoomUpdate and fans it out to every subscriber. Slow
// subscribers are dropped rather than blocked on.
func (r *stubRoom) broadcast(fresh []types.CensoredMessage, notes []string, closed bool) {
	r.mu.Lock()
	if closed {
		r.closed = true
	}
	update := types.RoomUpdate{
		RoomState:   r.stateLocked(),
		NewMessages: fresh,
		RoomClosed:  r.closed,
		Victory:     r.victoryLocked(),
	}
	for _, n := range notes {
		update.Notifications = append(update.Notifications, types.Notification{Message: n})
	}
	r.pushLocked(update)
	r.mu.Unlock()
}

// push sends a caller-built update verbatim; the test scripting hook.
func (r *stubRoom) push(update types.RoomUpdate) {
	r.mu.Lock()
	r.pushLocked(update)
	r.mu.Unlock()
}

func (r *stubRoom) pushLocked(update types.RoomUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		return
	}
	for ch := range r.subs {
		select {
		case ch <- payload:
		default:
			delete(r.subs, ch)
			close(ch)
		}
	}
}

// dropSubscribers severs every live connection without marking the room
// closed, simulating a transport failure.
func (r *stubRoom) dropSubscribers() {
	r.mu.Lock()
	for ch := range r.subs {
		delete(r.subs, ch)
		close(ch)
	}
	r.mu.Unlock()
}
