// Package room owns the one streaming connection a client holds into a room,
// and folds server-pushed RoomUpdates into local view-state.
//
// A Client is an actor: a single loop goroutine owns every field, and the
// transport pumps, timers and public methods only post typed messages to its
// inbox. One update is fully reconciled before the next inbound event is
// looked at, so updates apply in arrival order without locks.
package room

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dkells/babel-client/internal/protocol"
	"github.com/dkells/babel-client/pkg/types"
)

const (
	defaultRetryMax    = 3
	defaultRetryDelay  = time.Second
	defaultDialTimeout = 10 * time.Second
	writeTimeout       = 3 * time.Second
)

type urlProvider interface {
	WebSocketURL(roomID types.RoomID, token string) string
	SpectateURL(roomID types.RoomID) string
}

type Options struct {
	Dialer      Dialer
	Logger      *zap.Logger
	RetryMax    int           // reconnect attempts before parking in Error; default 3
	RetryDelay  time.Duration // fixed delay between attempts; default 1s
	DialTimeout time.Duration
	EventBuffer int
}

// ---- inbox messages ----

type msg interface{ isMsg() }

type connectReq struct {
	roomID   types.RoomID
	token    string
	spectate bool
}

type sendReq struct{ action protocol.Action }

type leaveReq struct{ done chan struct{} }

type cleanupReq struct{ done chan struct{} }

type viewReq struct{ reply chan View }

type drainReq struct{ reply chan []string }

type transportOpened struct {
	gen  uint64
	conn Conn
}

type transportFrame struct {
	gen  uint64
	data []byte
}

type transportClosed struct {
	gen uint64
	err error
}

type retryFire struct{ gen uint64 }

func (connectReq) isMsg()      {}
func (sendReq) isMsg()         {}
func (leaveReq) isMsg()        {}
func (cleanupReq) isMsg()      {}
func (viewReq) isMsg()         {}
func (drainReq) isMsg()        {}
func (transportOpened) isMsg() {}
func (transportFrame) isMsg()  {}
func (transportClosed) isMsg() {}
func (retryFire) isMsg()       {}

type Client struct {
	inbox  chan msg
	events chan Event
	urls   urlProvider
	dialer Dialer
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	retryMax    int
	retryDelay  time.Duration
	dialTimeout time.Duration

	// Everything below is owned by the loop goroutine.
	state        ConnState
	roomID       types.RoomID
	token        string
	spectate     bool
	gen          uint64 // bumped whenever older transport events become stale
	attempts     int
	serverClosed bool
	timer        *time.Timer
	conn         Conn
	out          chan []byte

	room    *types.RoomState
	history []types.CensoredMessage
	seen    map[types.MessageID]bool
	pending []string
	victory *types.VictoryState
}

func NewClient(parent context.Context, urls urlProvider, opts Options) *Client {
	ctx, cancel := context.WithCancel(parent)

	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RetryMax == 0 {
		opts.RetryMax = defaultRetryMax
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.EventBuffer == 0 {
		opts.EventBuffer = 64
	}

	c := &Client{
		inbox:       make(chan msg, 64),
		events:      make(chan Event, opts.EventBuffer),
		urls:        urls,
		dialer:      opts.Dialer,
		log:         opts.Logger,
		ctx:         ctx,
		cancel:      cancel,
		retryMax:    opts.RetryMax,
		retryDelay:  opts.RetryDelay,
		dialTimeout: opts.DialTimeout,
		state:       StateIdle,
		seen:        make(map[types.MessageID]bool),
	}
	go c.loop()
	return c
}

// Events is the change-signal channel. The client never blocks on it: when the
// buffer is full, routine events are dropped, while the one-shot edges
// (VictoryAchieved, RoomClosed) displace older buffered events instead. Drain
// promptly to see everything.
func (c *Client) Events() <-chan Event { return c.events }

// ---- public API: every call is a message to the loop ----

func (c *Client) Connect(roomID types.RoomID, token string) {
	c.post(connectReq{roomID: roomID, token: token})
}

// Spectate opens a read-only connection; sends are rejected while spectating.
func (c *Client) Spectate(roomID types.RoomID) {
	c.post(connectReq{roomID: roomID, spectate: true})
}

func (c *Client) SendMessage(text string) {
	c.post(sendReq{action: protocol.SendMessage{Text: text}})
}

func (c *Client) SendMessageBatch(texts []string) {
	c.post(sendReq{action: protocol.SendMessageBatch{Texts: texts}})
}

func (c *Client) SubmitNotes(notes map[types.CountryCode][]string) {
	c.post(sendReq{action: protocol.SubmitNotes{Notes: notes}})
}

// LeaveRoom tells the server we are going, closes the transport and resets to
// Idle. Returns once the reset has been applied.
func (c *Client) LeaveRoom() {
	done := make(chan struct{})
	c.post(leaveReq{done: done})
	select {
	case <-done:
	case <-c.ctx.Done():
	}
}

// Cleanup closes any open transport and resets all owned state without
// notifying the server. Safe to call at any time, in any state.
func (c *Client) Cleanup() {
	done := make(chan struct{})
	c.post(cleanupReq{done: done})
	select {
	case <-done:
	case <-c.ctx.Done():
	}
}

// View returns a copy of the current state. A zero View means the client has
// been shut down.
func (c *Client) View() View {
	reply := make(chan View, 1)
	c.post(viewReq{reply: reply})
	select {
	case v := <-reply:
		return v
	case <-c.ctx.Done():
		return View{}
	}
}

// DrainNotifications empties and returns the FIFO notification queue.
func (c *Client) DrainNotifications() []string {
	reply := make(chan []string, 1)
	c.post(drainReq{reply: reply})
	select {
	case notes := <-reply:
		return notes
	case <-c.ctx.Done():
		return nil
	}
}

// Shutdown stops the actor entirely. The client is unusable afterwards.
func (c *Client) Shutdown() { c.cancel() }

func (c *Client) post(m msg) {
	select {
	case c.inbox <- m:
	case <-c.ctx.Done():
	}
}

// ---- loop ----

func (c *Client) loop() {
	for {
		select {
		case <-c.ctx.Done():
			c.stopTimer()
			c.closeOut()
			return

		case m := <-c.inbox:
			switch m := m.(type) {
			case connectReq:
				c.handleConnect(m)
			case sendReq:
				c.handleSend(m)
			case leaveReq:
				c.handleLeave()
				close(m.done)
			case cleanupReq:
				c.handleCleanup()
				close(m.done)
			case viewReq:
				m.reply <- c.snapshot()
			case drainReq:
				notes := c.pending
				c.pending = nil
				m.reply <- notes
			case transportOpened:
				c.handleOpened(m)
			case transportFrame:
				c.handleFrame(m)
			case transportClosed:
				c.handleClosed(m)
			case retryFire:
				c.handleRetry(m)
			}
		}
	}
}

func (c *Client) handleConnect(m connectReq) {
	if c.state == StateConnecting || c.state == StateConnected {
		c.log.Warn("connect ignored: connection already exists",
			zap.String("room", string(c.roomID)),
			zap.String("state", string(c.state)))
		return
	}

	c.stopTimer()
	c.attempts = 0
	c.serverClosed = false
	if m.roomID != c.roomID {
		c.resetRoomData()
	}
	c.roomID = m.roomID
	c.token = m.token
	c.spectate = m.spectate

	c.setState(StateConnecting)
	c.gen++
	go c.dial(c.gen, c.currentURL())
}

func (c *Client) currentURL() string {
	if c.spectate {
		return c.urls.SpectateURL(c.roomID)
	}
	return c.urls.WebSocketURL(c.roomID, c.token)
}

func (c *Client) dial(gen uint64, target string) {
	ctx, cancel := context.WithTimeout(c.ctx, c.dialTimeout)
	defer cancel()

	conn, err := c.dialer.Dial(ctx, target)
	if err != nil {
		c.post(transportClosed{gen: gen, err: err})
		return
	}
	c.post(transportOpened{gen: gen, conn: conn})
}

func (c *Client) handleOpened(m transportOpened) {
	if m.gen != c.gen {
		// A connect that was superseded by cleanup/reconnect; drop it.
		go m.conn.Close()
		return
	}

	c.conn = m.conn
	c.out = make(chan []byte, 16)
	c.attempts = 0
	go c.writePump(m.gen, m.conn, c.out)
	go c.readPump(m.gen, m.conn)
	c.setState(StateConnected)
}

func (c *Client) handleFrame(m transportFrame) {
	if m.gen != c.gen {
		return
	}
	update, err := protocol.DecodeUpdate(m.data)
	if err != nil {
		// Never fatal: log and drop the frame.
		c.log.Warn("dropping undecodable frame", zap.Error(err))
		return
	}
	c.reconcile(update)
}

func (c *Client) handleClosed(m transportClosed) {
	if m.gen != c.gen {
		return
	}
	// Both pumps can report the same dead transport. Bumping the generation
	// here makes the second report stale, so one failure burns one attempt.
	c.gen++
	c.closeOut()
	c.conn = nil

	if c.serverClosed {
		return
	}

	if c.attempts >= c.retryMax {
		c.setState(StateError)
		c.log.Warn("reconnect attempts exhausted",
			zap.String("room", string(c.roomID)),
			zap.Int("attempts", c.attempts),
			zap.Error(m.err))
		return
	}

	c.setState(StateDisconnected)
	c.attempts++
	c.stopTimer()
	gen := c.gen
	c.timer = time.AfterFunc(c.retryDelay, func() {
		c.post(retryFire{gen: gen})
	})
}

func (c *Client) handleRetry(m retryFire) {
	if m.gen != c.gen || c.state != StateDisconnected {
		return
	}
	c.setState(StateConnecting)
	go c.dial(c.gen, c.currentURL())
}

func (c *Client) handleSend(m sendReq) {
	if c.spectate {
		c.log.Warn("send rejected: spectator connection is read-only")
		return
	}
	if c.state != StateConnected || c.out == nil {
		c.log.Error("send dropped: no open connection",
			zap.String("state", string(c.state)))
		return
	}

	payload, err := protocol.Encode(m.action)
	if err != nil {
		c.log.Error("send dropped: unencodable action", zap.Error(err))
		return
	}

	select {
	case c.out <- payload:
	default:
		c.log.Warn("send dropped: outbound queue full")
	}
}

func (c *Client) handleLeave() {
	if c.state == StateConnected && c.out != nil && !c.spectate {
		if payload, err := protocol.Encode(protocol.LeaveRoom{}); err == nil {
			select {
			case c.out <- payload:
			default:
			}
		}
	}
	c.teardown()
}

func (c *Client) handleCleanup() {
	c.teardown()
}

// teardown closes any transport and resets every piece of owned state. Calling
// it twice in a row is a no-op the second time.
func (c *Client) teardown() {
	c.stopTimer()
	c.closeOut()
	c.conn = nil
	c.gen++
	c.roomID = ""
	c.token = ""
	c.spectate = false
	c.attempts = 0
	c.serverClosed = false
	c.resetRoomData()
	c.setState(StateIdle)
}

func (c *Client) resetRoomData() {
	c.room = nil
	c.history = nil
	c.seen = make(map[types.MessageID]bool)
	c.pending = nil
	c.victory = nil
}

// reconcile applies one RoomUpdate atomically: room state wholesale, messages
// deduped by id, notifications FIFO, victory wholesale with an edge event,
// then a server-initiated close.
func (c *Client) reconcile(u types.RoomUpdate) {
	rs := u.RoomState
	c.room = &rs

	if len(u.NewMessages) > 0 {
		fresh := make([]types.CensoredMessage, 0, len(u.NewMessages))
		for _, m := range u.NewMessages {
			if c.seen[m.ID] {
				continue
			}
			c.seen[m.ID] = true
			c.history = append(c.history, m)
			fresh = append(fresh, m)
		}
		if len(fresh) > 0 {
			c.emit(MessagesAppended{Messages: fresh})
		}
	}

	for _, n := range u.Notifications {
		c.pending = append(c.pending, n.Message)
		c.emit(NotificationPosted{Message: n.Message})
	}

	if u.Victory != nil {
		was := c.victory != nil && c.victory.Achieved
		if was && !u.Victory.Achieved {
			// Achieved victory only resets via leave/cleanup.
			c.log.Warn("ignoring victory regression in update")
		} else {
			v := *u.Victory
			c.victory = &v
			if !was && v.Achieved {
				c.emit(VictoryAchieved{State: v})
			}
		}
	}

	if u.RoomClosed {
		// Server-initiated close: not a transport error, never retried.
		c.serverClosed = true
		c.stopTimer()
		c.closeOut()
		c.conn = nil
		c.gen++
		c.setState(StateDisconnected)
		c.emit(RoomClosed{})
	}
}

func (c *Client) snapshot() View {
	v := View{
		State:                c.state,
		RoomID:               c.roomID,
		PendingNotifications: len(c.pending),
	}
	if c.room != nil {
		room := *c.room
		room.Participants = append([]types.Participant(nil), c.room.Participants...)
		room.RecentMessages = append([]types.CensoredMessage(nil), c.room.RecentMessages...)
		v.Room = &room
	}
	v.History = append([]types.CensoredMessage(nil), c.history...)
	if c.victory != nil {
		vic := *c.victory
		vic.PlayerProgress = append([]types.PlayerProgress(nil), c.victory.PlayerProgress...)
		v.Victory = &vic
	}
	return v
}

func (c *Client) setState(next ConnState) {
	if next == c.state {
		return
	}
	prev := c.state
	c.state = next
	c.emit(StateChanged{Old: prev, New: next})
}

func (c *Client) emit(e Event) {
	for {
		select {
		case c.events <- e:
			return
		default:
		}
		switch e.(type) {
		case VictoryAchieved, RoomClosed:
			// One-shot edges must reach the consumer; evict the oldest
			// buffered event to make room.
			select {
			case <-c.events:
			default:
			}
		default:
			// Consumer is slow; drop rather than stall the loop.
			c.log.Warn("event dropped: buffer full")
			return
		}
	}
}

func (c *Client) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Client) closeOut() {
	if c.out != nil {
		close(c.out)
		c.out = nil
	}
}

// ---- transport pumps ----

func (c *Client) writePump(gen uint64, conn Conn, out <-chan []byte) {
	defer conn.Close()
	for payload := range out {
		ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
		err := conn.Write(ctx, payload)
		cancel()
		if err != nil {
			c.log.Warn("write failed", zap.Error(err))
			c.post(transportClosed{gen: gen, err: err})
			for range out {
				// Drain so the loop never blocks on a dead pump.
			}
			return
		}
	}
}

func (c *Client) readPump(gen uint64, conn Conn) {
	for {
		data, err := conn.Read(c.ctx)
		if err != nil {
			c.post(transportClosed{gen: gen, err: err})
			return
		}
		c.post(transportFrame{gen: gen, data: append([]byte(nil), data...)})
	}
}
