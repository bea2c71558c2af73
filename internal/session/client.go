package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/podwave/relay/internal/backoff"
	"github.com/podwave/relay/internal/dedup"
	"github.com/podwave/relay/internal/metrics"
	"github.com/podwave/relay/internal/notify"
	"github.com/podwave/relay/internal/queue"
	"github.com/podwave/relay/internal/rooms"
	"github.com/podwave/relay/internal/transport"
)

// transitionBuffer bounds state notifications awaiting delivery.
const transitionBuffer = 16

// Client maintains a logical session with the Podwave realtime gateway
// across transport drops, reconnecting with exponential backoff and
// restoring buffered messages and room membership.
type Client interface {
	// Connect establishes the session. No-op while connected, reconnecting,
	// or failed; a failed session is reset with Disconnect.
	Connect(url string)

	// Disconnect tears the session down: cancels any pending reconnect,
	// closes the transport, and clears the outbound buffer and room
	// records. Automatic reconnection is suppressed until the next Connect.
	Disconnect()

	// Send transmits payload now when connected, otherwise buffers it for
	// replay. It never reports failure; delivery is best-effort.
	Send(payload []byte)

	// JoinRoom records room membership and announces it to the gateway
	// when connected. One room per kind; a newer join overwrites.
	JoinRoom(kind, id string)

	// LeaveRoom clears recorded membership and notifies the gateway, but
	// only when the stored id for kind equals id.
	LeaveRoom(kind, id string)

	// OnStateChange registers cb for every status transition and returns
	// its unsubscribe function. No history is replayed.
	OnStateChange(cb func(Status)) func()

	// Messages returns the deduplicated inbound message channel. The
	// channel is never closed; deliveries are dropped when it is full.
	Messages() <-chan Inbound

	// Status returns the current session status.
	Status() Status

	// ReconnectionState reports the rooms and buffered message count a
	// reconnect would restore.
	ReconnectionState() ReconnectionState

	// PendingMessageCount returns the number of buffered outbound payloads.
	PendingMessageCount() int

	// ClearPendingMessages drops all buffered outbound payloads and
	// returns how many were removed.
	ClearPendingMessages() int

	// Stats returns current session statistics.
	Stats() Stats
}

// client implements the Client interface.
type client struct {
	cfg    Config
	dial   transport.DialFunc
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	attempt    int
	gen        uint64 // bumped on every Connect/Disconnect; stale events are ignored
	url        string
	conn       transport.Conn
	retryTimer *time.Timer

	pending  *queue.Queue
	seen     *dedup.Cache
	rooms    *rooms.Tracker
	notifier *notify.Notifier[Status]

	inbound     chan Inbound
	transitions chan Status

	counters metrics.Counters
}

// New creates a session client. Zero-value config fields fall back to
// the package defaults.
func New(cfg Config) Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.DedupCapacity <= 0 {
		cfg.DedupCapacity = DefaultDedupCapacity
	}
	if cfg.DedupTrim <= 0 {
		cfg.DedupTrim = DefaultDedupTrim
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.Backoff == (backoff.Policy{}) {
		cfg.Backoff = backoff.DefaultPolicy()
	}

	dial := cfg.Dial
	if dial == nil {
		dial = transport.Dialer(transport.DefaultOptions())
	}

	c := &client{
		cfg:         cfg,
		dial:        dial,
		logger:      cfg.Logger,
		state:       StateDisconnected,
		pending:     queue.New(cfg.QueueCapacity),
		seen:        dedup.New(cfg.DedupCapacity, cfg.DedupTrim),
		rooms:       rooms.NewTracker(),
		notifier:    notify.NewNotifier[Status](cfg.Logger),
		inbound:     make(chan Inbound, cfg.Buffer),
		transitions: make(chan Status, transitionBuffer),
	}

	go c.dispatch()

	return c
}

// Connect establishes the session.
func (c *client) Connect(url string) {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		c.logger.Debug("connect ignored", "state", c.state)
		return
	}
	c.gen++
	gen := c.gen
	c.url = url
	c.mu.Unlock()

	c.logger.Info("connecting", "url", url)
	go c.runDial(gen, url)
}

// Disconnect tears the session down and suppresses reconnection.
func (c *client) Disconnect() {
	c.mu.Lock()
	c.gen++
	changed := c.state != StateDisconnected
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.attempt = 0
	cleared := c.pending.Clear()
	c.rooms.Clear()
	if changed {
		c.announceLocked()
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.logger.Info("disconnected", "cleared", cleared)
}

// Send transmits payload immediately when connected, otherwise buffers
// it for replay on the next connection.
func (c *client) Send(payload []byte) {
	c.mu.Lock()
	// Direct transmit only with an empty buffer, so a payload queued by
	// an earlier transmit failure cannot be overtaken out of order.
	if c.state == StateConnected && c.conn != nil && c.pending.Len() == 0 {
		err := c.conn.Send(payload)
		if err == nil {
			c.counters.Sent.Add(1)
			c.mu.Unlock()
			return
		}
		c.counters.SendErrors.Add(1)
		c.logger.Warn("transmit failed, buffering", "error", err)
	}
	msg := c.pending.Enqueue(payload)
	c.counters.Enqueued.Add(1)
	size := c.pending.Len()
	c.mu.Unlock()

	c.logger.Debug("message buffered", "id", msg.ID, "pending", size)
}

// JoinRoom records room membership and announces it when connected.
func (c *client) JoinRoom(kind, id string) {
	c.mu.Lock()
	c.rooms.Join(kind, id)
	if c.state == StateConnected && c.conn != nil {
		c.command(c.conn, CommandJoinRoom, kind, id)
	}
	c.mu.Unlock()

	c.logger.Info("room joined", "kind", kind, "room", id)
}

// LeaveRoom clears membership when id matches the recorded room, and
// tells the gateway when connected.
func (c *client) LeaveRoom(kind, id string) {
	c.mu.Lock()
	left := c.rooms.Leave(kind, id)
	if left && c.state == StateConnected && c.conn != nil {
		c.command(c.conn, CommandLeaveRoom, kind, id)
	}
	c.mu.Unlock()

	if left {
		c.logger.Info("room left", "kind", kind, "room", id)
	} else {
		c.logger.Debug("stale leave ignored", "kind", kind, "room", id)
	}
}

// OnStateChange registers cb for status transitions.
func (c *client) OnStateChange(cb func(Status)) func() {
	return c.notifier.Subscribe(cb)
}

// Messages returns the inbound message channel.
func (c *client) Messages() <-chan Inbound {
	return c.inbound
}

// Status returns the current session status.
func (c *client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state, Attempt: c.attempt}
}

// ReconnectionState reports what a reconnect would restore.
func (c *client) ReconnectionState() ReconnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	game, _ := c.rooms.Get(rooms.KindGame)
	collab, _ := c.rooms.Get(rooms.KindCollaborative)
	return ReconnectionState{
		GameRoomID:          game,
		CollaborativeRoomID: collab,
		PendingMessages:     c.pending.Len(),
	}
}

// PendingMessageCount returns the outbound buffer length.
func (c *client) PendingMessageCount() int {
	return c.pending.Len()
}

// ClearPendingMessages purges the outbound buffer.
func (c *client) ClearPendingMessages() int {
	cleared := c.pending.Clear()
	c.logger.Info("pending messages cleared", "count", cleared)
	return cleared
}

// Stats returns current session statistics.
func (c *client) Stats() Stats {
	c.mu.Lock()
	state, attempt := c.state, c.attempt
	c.mu.Unlock()

	return Stats{
		State:          state,
		Attempt:        attempt,
		Pending:        c.pending.Len(),
		Rooms:          c.rooms.Len(),
		QueueEvictions: c.pending.Dropped(),
		DedupEvictions: c.seen.Evictions(),
		Counters:       c.counters.Snapshot(),
	}
}

// runDial performs the initial dial for a Connect call. A failure starts
// the backoff sequence at attempt 1.
func (c *client) runDial(gen uint64, url string) {
	conn, err := c.dial(context.Background(), url)
	if err != nil {
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.state = StateReconnecting
		c.attempt = 1
		c.announceLocked()
		c.scheduleRetryLocked(gen)
		c.mu.Unlock()

		c.logger.Warn("connect failed", "url", url, "error", err)
		return
	}

	c.establish(gen, conn, false)
}

// establish installs a freshly dialed connection, replays buffered
// payloads, and, when the session is resuming after a drop, re-announces
// room membership.
func (c *client) establish(gen uint64, conn transport.Conn, resumed bool) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		conn.Close()
		return
	}
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.conn = conn
	c.state = StateConnected
	c.attempt = 0
	c.announceLocked()

	replayed := c.flushLocked(conn)

	var members []rooms.Membership
	if resumed {
		members = c.rooms.Snapshot()
		for _, m := range members {
			c.command(conn, CommandJoinRoom, m.Kind, m.ID)
		}
		c.counters.Reconnects.Add(1)
		c.counters.Rejoins.Add(int64(len(members)))
	}
	c.mu.Unlock()

	if resumed {
		c.logger.Info("session restored", "replayed", replayed, "rooms", len(members))
	} else {
		c.logger.Info("connected")
	}

	go c.watch(gen, conn)
}

// watch consumes the connection until it terminates, then drives the
// reconnect transition.
func (c *client) watch(gen uint64, conn transport.Conn) {
	for data := range conn.Messages() {
		c.handleMessage(gen, data)
	}
	c.handleClose(gen, conn.Err())
}

// handleMessage classifies one inbound payload and delivers it unless it
// is a duplicate or arrived from a superseded connection.
func (c *client) handleMessage(gen uint64, data []byte) {
	c.mu.Lock()
	stale := gen != c.gen
	c.mu.Unlock()
	if stale {
		return
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("malformed gateway message", "error", err)
		return
	}

	id := env.ID
	if id == "" {
		// The gateway never redelivers unidentified events; stamp an id
		// so downstream consumers still get a stable key.
		id = uuid.NewString()
	} else if c.seen.Seen(id) {
		c.counters.Duplicates.Add(1)
		c.logger.Debug("duplicate suppressed", "id", id)
		return
	}

	msg := Inbound{
		ID:         id,
		Type:       env.Type,
		Data:       data,
		ReceivedAt: time.Now(),
	}

	select {
	case c.inbound <- msg:
	default:
		c.counters.InboundDropped.Add(1)
		c.logger.Warn("inbound buffer full, dropping", "id", id, "type", env.Type)
	}
}

// handleClose reacts to connection termination. Manual disconnects and
// superseded connections fail the generation check and are ignored.
func (c *client) handleClose(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateReconnecting
	c.attempt = 1
	c.announceLocked()
	c.scheduleRetryLocked(gen)
	c.mu.Unlock()

	c.logger.Warn("gateway connection lost", "error", cause)
}

// attemptReconnect redials after a backoff delay, moving to the next
// attempt or to Failed once the policy is exhausted.
func (c *client) attemptReconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	attempt := c.attempt
	url := c.url
	c.mu.Unlock()

	c.logger.Info("reconnecting", "attempt", attempt, "url", url)

	conn, err := c.dial(context.Background(), url)
	if err == nil {
		c.establish(gen, conn, true)
		return
	}

	c.mu.Lock()
	if gen != c.gen || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	if c.cfg.Backoff.Exhausted(attempt) {
		c.state = StateFailed
		c.announceLocked()
		c.mu.Unlock()

		c.logger.Error("reconnection attempts exhausted",
			"attempts", attempt,
			"error", err,
		)
		return
	}
	c.attempt = attempt + 1
	c.announceLocked()
	c.scheduleRetryLocked(gen)
	c.mu.Unlock()

	c.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
}

// scheduleRetryLocked arms the reconnect timer for the current attempt.
// At most one timer is live; a new one replaces any pending timer.
// Caller holds c.mu.
func (c *client) scheduleRetryLocked(gen uint64) {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	delay := c.cfg.Backoff.Delay(c.attempt)
	c.retryTimer = time.AfterFunc(delay, func() { c.attemptReconnect(gen) })

	c.logger.Info("reconnect scheduled", "attempt", c.attempt, "delay", delay)
}

// flushLocked replays buffered payloads in enqueue order. A mid-replay
// failure leaves the unsent tail queued for the next connection.
// Caller holds c.mu.
func (c *client) flushLocked(conn transport.Conn) int {
	sent, err := c.pending.Flush(func(m queue.Message) error {
		return conn.Send(m.Payload)
	})
	if sent > 0 {
		c.counters.Replayed.Add(int64(sent))
	}
	if err != nil {
		c.counters.SendErrors.Add(1)
		c.logger.Warn("replay interrupted",
			"replayed", sent,
			"remaining", c.pending.Len(),
			"error", err,
		)
	}
	return sent
}

// command sends one control message to the gateway. Room commands are
// never buffered; on failure the membership record is left for the next
// rejoin.
func (c *client) command(conn transport.Conn, typ, kind, id string) {
	cmd := Command{Type: typ, RoomKind: kind, RoomID: id, Nonce: uuid.NewString()}
	data, _ := json.Marshal(cmd)

	if err := conn.Send(data); err != nil {
		c.counters.SendErrors.Add(1)
		c.logger.Warn("command send failed",
			"type", typ,
			"kind", kind,
			"room", id,
			"error", err,
		)
	}
}

// announceLocked queues the current status for subscriber delivery.
// Caller holds c.mu; transitions reach subscribers in commit order.
func (c *client) announceLocked() {
	st := Status{State: c.state, Attempt: c.attempt}
	select {
	case c.transitions <- st:
	default:
		c.logger.Warn("state notification dropped",
			"state", st.State,
			"attempt", st.Attempt,
		)
	}
}

// dispatch delivers state transitions to subscribers off the client's
// lock, so callbacks may call back into the client.
func (c *client) dispatch() {
	for st := range c.transitions {
		c.notifier.Publish(st)
	}
}
