package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/podwave/relay/internal/backoff"
	"github.com/podwave/relay/internal/transport"
)

// fakeConn is a scriptable transport connection.
type fakeConn struct {
	mu        sync.Mutex
	sent      [][]byte
	messages  chan []byte
	done      chan struct{}
	err       error
	closed    bool
	keepOpen  bool // leave the message channel open on close
	failAfter int  // >0: fail sends once this many succeeded; <0: fail all
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		messages: make(chan []byte, 64),
		done:     make(chan struct{}),
	}
}

func (f *fakeConn) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return transport.ErrConnClosed
	}
	if f.failAfter < 0 || (f.failAfter > 0 && len(f.sent) >= f.failAfter) {
		return errors.New("write refused")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeConn) Messages() <-chan []byte { return f.messages }
func (f *fakeConn) Done() <-chan struct{}   { return f.done }

func (f *fakeConn) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeConn) Close() error {
	f.terminate(nil)
	return nil
}

// drop simulates the gateway side failing the connection.
func (f *fakeConn) drop(err error) {
	f.terminate(err)
}

func (f *fakeConn) terminate(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.err = err
	close(f.done)
	if !f.keepOpen {
		close(f.messages)
	}
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// deliver feeds one raw inbound message to the client.
func (f *fakeConn) deliver(t *testing.T, data string) {
	t.Helper()
	select {
	case f.messages <- []byte(data):
	case <-time.After(time.Second):
		t.Fatal("deliver timed out")
	}
}

func (f *fakeConn) sentStrings() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, b := range f.sent {
		out[i] = string(b)
	}
	return out
}

func (f *fakeConn) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeDialer hands out fakeConns and scripts dial failures.
type fakeDialer struct {
	mu       sync.Mutex
	failures int // initial dials to fail; <0 fails every dial
	dials    int
	conns    []*fakeConn
	prepare  func(*fakeConn)
}

func (d *fakeDialer) dial(ctx context.Context, url string) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failures < 0 || d.dials <= d.failures {
		return nil, errors.New("gateway unreachable")
	}
	c := newFakeConn()
	if d.prepare != nil {
		d.prepare(c)
	}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) setFailures(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = n
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

// statusRecorder captures state transitions for assertions.
type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *statusRecorder) record(st Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, st)
}

func (r *statusRecorder) all() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, len(r.statuses))
	copy(out, r.statuses)
	return out
}

func (r *statusRecorder) saw(s State) bool {
	for _, st := range r.all() {
		if st.State == s {
			return true
		}
	}
	return false
}

func (r *statusRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statuses)
}

func testConfig(d *fakeDialer) Config {
	return Config{
		Dial: d.dial,
		Backoff: backoff.Policy{
			InitialDelay: 5 * time.Millisecond,
			MaxDelay:     20 * time.Millisecond,
			MaxAttempts:  5,
		},
		QueueCapacity: 10,
		DedupCapacity: 50,
		DedupTrim:     0.2,
		Buffer:        32,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitForState(t *testing.T, c Client, want State) {
	t.Helper()
	waitFor(t, func() bool { return c.Status().State == want }, "state "+string(want))
}

func readInbound(t *testing.T, c Client) Inbound {
	t.Helper()
	select {
	case msg := <-c.Messages():
		return msg
	case <-time.After(time.Second):
		t.Fatal("no inbound message")
		return Inbound{}
	}
}

func decodeCommand(t *testing.T, data string) Command {
	t.Helper()
	var cmd Command
	if err := json.Unmarshal([]byte(data), &cmd); err != nil {
		t.Fatalf("decode command %q: %v", data, err)
	}
	return cmd
}

func TestClient_Connect(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(d))

	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateConnected)

	if got := d.dialCount(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
	if st := c.Status(); st.Attempt != 0 {
		t.Errorf("attempt = %d, want 0", st.Attempt)
	}
}

func TestClient_ConnectIdempotentWhileConnected(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(d))

	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateConnected)

	c.Connect("wss://gateway.test/other")
	time.Sleep(30 * time.Millisecond)

	if got := d.dialCount(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
	if st := c.Status(); st.State != StateConnected {
		t.Errorf("state = %v, want %v", st.State, StateConnected)
	}
}

func TestClient_ConnectIgnoredWhileReconnecting(t *testing.T) {
	d := &fakeDialer{failures: -1}
	cfg := testConfig(d)
	cfg.Backoff.InitialDelay = 500 * time.Millisecond
	c := New(cfg)

	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateReconnecting)

	c.Connect("wss://gateway.test/realtime")
	time.Sleep(30 * time.Millisecond)

	if got := d.dialCount(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
	if st := c.Status(); st.State != StateReconnecting {
		t.Errorf("state = %v, want %v", st.State, StateReconnecting)
	}
}

func TestClient_SendWhileConnected(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(d))

	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateConnected)

	c.Send([]byte("hello"))

	conn := d.conn(0)
	if got := conn.sentStrings(); len(got) != 1 || got[0] != "hello" {
		t.Errorf("sent = %v, want [hello]", got)
	}
	if got := c.PendingMessageCount(); got != 0 {
		t.Errorf("pending = %d, want 0", got)
	}
	if got := c.Stats().Counters.Sent; got != 1 {
		t.Errorf("sent counter = %d, want 1", got)
	}
}

func TestClient_SendFailureBuffers(t *testing.T) {
	d := &fakeDialer{prepare: func(f *fakeConn) { f.failAfter = -1 }}
	c := New(testConfig(d))

	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateConnected)

	c.Send([]byte("a"))
	if got := c.PendingMessageCount(); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}

	// With a non-empty buffer the next send must queue behind "a"
	// rather than attempt a direct transmit.
	c.Send([]byte("b"))
	if got := c.PendingMessageCount(); got != 2 {
		t.Errorf("pending = %d, want 2", got)
	}

	stats := c.Stats()
	if stats.Counters.SendErrors != 1 {
		t.Errorf("send errors = %d, want 1", stats.Counters.SendErrors)
	}
	if stats.Counters.Enqueued != 2 {
		t.Errorf("enqueued = %d, want 2", stats.Counters.Enqueued)
	}
}

func TestClient_ReplayOrder(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(d))

	c.Send([]byte("m1"))
	c.Send([]byte("m2"))
	c.Send([]byte("m3"))
	if got := c.PendingMessageCount(); got != 3 {
		t.Fatalf("pending = %d, want 3", got)
	}

	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateConnected)

	conn := d.conn(0)
	waitFor(t, func() bool { return conn.sentCount() == 3 }, "replay of 3 messages")

	want := []string{"m1", "m2", "m3"}
	got := conn.sentStrings()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("replay[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if got := c.PendingMessageCount(); got != 0 {
		t.Errorf("pending after replay = %d, want 0", got)
	}
	if got := c.Stats().Counters.Replayed; got != 3 {
		t.Errorf("replayed counter = %d, want 3", got)
	}
}

func TestClient_QueueEvictsOldest(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(d)) // queue capacity 10

	for i := 0; i < 15; i++ {
		c.Send([]byte(fmt.Sprintf("msg-%d", i)))
	}
	if got := c.PendingMessageCount(); got != 10 {
		t.Fatalf("pending = %d, want 10", got)
	}

	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateConnected)

	conn := d.conn(0)
	waitFor(t, func() bool { return conn.sentCount() == 10 }, "replay of 10 messages")

	got := conn.sentStrings()
	if got[0] != "msg-5" || got[9] != "msg-14" {
		t.Errorf("replay window = [%s .. %s], want [msg-5 .. msg-14]", got[0], got[9])
	}
	if got := c.Stats().QueueEvictions; got != 5 {
		t.Errorf("queue evictions = %d, want 5", got)
	}
}

func TestClient_ResumableFlush(t *testing.T) {
	first := true
	d := &fakeDialer{}
	d.prepare = func(f *fakeConn) {
		if first {
			f.failAfter = 1
			first = false
		}
	}
	c := New(testConfig(d))

	c.Send([]byte("m1"))
	c.Send([]byte("m2"))
	c.Send([]byte("m3"))

	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateConnected)

	conn1 := d.conn(0)
	if got := conn1.sentStrings(); len(got) != 1 || got[0] != "m1" {
		t.Fatalf("first connection sent = %v, want [m1]", got)
	}
	if got := c.PendingMessageCount(); got != 2 {
		t.Fatalf("pending after interrupted replay = %d, want 2", got)
	}

	// The unsent tail goes out on the next connection, still in order.
	conn1.drop(errors.New("connection reset"))
	waitFor(t, func() bool { return d.conn(1) != nil && d.conn(1).sentCount() == 2 }, "resumed replay")

	conn2 := d.conn(1)
	want := []string{"m2", "m3"}
	got := conn2.sentStrings()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("resumed replay[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if got := c.PendingMessageCount(); got != 0 {
		t.Errorf("pending = %d, want 0", got)
	}
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(d))
	rec := &statusRecorder{}
	c.OnStateChange(rec.record)

	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateConnected)

	d.conn(0).drop(errors.New("connection reset"))
	waitFor(t, func() bool { return d.dialCount() == 2 && c.Status().State == StateConnected }, "reconnect")

	waitFor(t, func() bool { return rec.count() >= 3 }, "three transitions")
	want := []Status{
		{State: StateConnected},
		{State: StateReconnecting, Attempt: 1},
		{State: StateConnected},
	}
	got := rec.all()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
	if got := c.Stats().Counters.Reconnects; got != 1 {
		t.Errorf("reconnects = %d, want 1", got)
	}
}

func TestClient_FirstConnectNeverRejoins(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(d))

	c.JoinRoom("game", "g-9")
	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateConnected)
	time.Sleep(30 * time.Millisecond)

	if got := d.conn(0).sentCount(); got != 0 {
		t.Errorf("commands on first connect = %d, want 0", got)
	}
	if got := c.ReconnectionState().GameRoomID; got != "g-9" {
		t.Errorf("recorded game room = %q, want g-9", got)
	}
}

func TestClient_RejoinsRoomsOnReconnect(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(d))

	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateConnected)

	c.JoinRoom("collaborative", "room-42")
	conn1 := d.conn(0)
	if got := conn1.sentCount(); got != 1 {
		t.Fatalf("join commands = %d, want 1", got)
	}
	cmd := decodeCommand(t, conn1.sentStrings()[0])
	if cmd.Type != CommandJoinRoom || cmd.RoomKind != "collaborative" || cmd.RoomID != "room-42" {
		t.Fatalf("join command = %+v", cmd)
	}
	if cmd.Nonce == "" {
		t.Error("join command missing nonce")
	}

	// Drop and reconnect; the room is re-announced without another JoinRoom.
	conn1.drop(errors.New("connection reset"))
	waitFor(t, func() bool { return d.conn(1) != nil && d.conn(1).sentCount() == 1 }, "rejoin")

	cmd = decodeCommand(t, d.conn(1).sentStrings()[0])
	if cmd.Type != CommandJoinRoom || cmd.RoomKind != "collaborative" || cmd.RoomID != "room-42" {
		t.Errorf("rejoin command = %+v", cmd)
	}
	if got := c.Stats().Counters.Rejoins; got != 1 {
		t.Errorf("rejoins = %d, want 1", got)
	}
}

func TestClient_RejoinAfterInitialDialFailure(t *testing.T) {
	d := &fakeDialer{failures: 1}
	c := New(testConfig(d))

	c.JoinRoom("game", "g-1")
	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateConnected)

	// Connected was reached from reconnecting, so membership is announced.
	conn := d.conn(0)
	waitFor(t, func() bool { return conn.sentCount() == 1 }, "join command")
	cmd := decodeCommand(t, conn.sentStrings()[0])
	if cmd.Type != CommandJoinRoom || cmd.RoomID != "g-1" {
		t.Errorf("command = %+v", cmd)
	}
}

func TestClient_ReplayPrecedesRejoin(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(d))

	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateConnected)
	c.JoinRoom("game", "g-3")

	conn1 := d.conn(0)
	conn1.drop(errors.New("connection reset"))
	waitForState(t, c, StateReconnecting)

	c.Send([]byte("a"))
	c.Send([]byte("b"))

	waitFor(t, func() bool { return d.conn(1) != nil && d.conn(1).sentCount() == 3 }, "replay and rejoin")

	got := d.conn(1).sentStrings()
	if got[0] != "a" || got[1] != "b" {
		t.Errorf("replayed = %v, want [a b] first", got[:2])
	}
	cmd := decodeCommand(t, got[2])
	if cmd.Type != CommandJoinRoom || cmd.RoomID != "g-3" {
		t.Errorf("trailing command = %+v, want join of g-3", cmd)
	}
}

func TestClient_FailsAfterMaxAttempts(t *testing.T) {
	d := &fakeDialer{failures: -1}
	c := New(testConfig(d))
	rec := &statusRecorder{}
	c.OnStateChange(rec.record)

	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateFailed)

	// Initial dial plus five scheduled attempts, then nothing further.
	if got := d.dialCount(); got != 6 {
		t.Errorf("dials = %d, want 6", got)
	}
	time.Sleep(50 * time.Millisecond)
	if got := d.dialCount(); got != 6 {
		t.Errorf("dials after failure = %d, want 6", got)
	}

	var attempts []int
	for _, st := range rec.all() {
		if st.State == StateReconnecting {
			attempts = append(attempts, st.Attempt)
		}
	}
	want := []int{1, 2, 3, 4, 5}
	if len(attempts) != len(want) {
		t.Fatalf("reconnecting attempts = %v, want %v", attempts, want)
	}
	for i := range want {
		if attempts[i] != want[i] {
			t.Errorf("attempt[%d] = %d, want %d", i, attempts[i], want[i])
		}
	}

	all := rec.all()
	last := all[len(all)-1]
	if last.State != StateFailed || last.Attempt != 5 {
		t.Errorf("final status = %+v, want failed after attempt 5", last)
	}
}

func TestClient_ConnectIgnoredWhileFailed(t *testing.T) {
	d := &fakeDialer{failures: -1}
	c := New(testConfig(d))

	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateFailed)
	dials := d.dialCount()

	c.Connect("wss://gateway.test/realtime")
	time.Sleep(30 * time.Millisecond)
	if got := d.dialCount(); got != dials {
		t.Errorf("dials = %d, want %d", got, dials)
	}
	if st := c.Status(); st.State != StateFailed {
		t.Errorf("state = %v, want %v", st.State, StateFailed)
	}

	// Disconnect resets the failed session; connect works again.
	d.setFailures(0)
	c.Disconnect()
	waitForState(t, c, StateDisconnected)
	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateConnected)
}

func TestClient_DisconnectCancelsReconnect(t *testing.T) {
	d := &fakeDialer{failures: -1}
	c := New(testConfig(d))

	c.Connect("wss://gateway.test/realtime")
	waitFor(t, func() bool {
		st := c.Status()
		return st.State == StateReconnecting && st.Attempt >= 3
	}, "attempt 3")

	c.Disconnect()
	if st := c.Status(); st.State != StateDisconnected || st.Attempt != 0 {
		t.Fatalf("status = %+v, want disconnected", st)
	}

	dials := d.dialCount()
	time.Sleep(60 * time.Millisecond)
	if got := d.dialCount(); got != dials {
		t.Errorf("dials after disconnect = %d, want %d", got, dials)
	}

	// A fresh connect starts the sequence over at attempt 1.
	rec := &statusRecorder{}
	c.OnStateChange(rec.record)
	c.Connect("wss://gateway.test/realtime")
	waitFor(t, func() bool { return rec.saw(StateReconnecting) }, "reconnecting")

	for _, st := range rec.all() {
		if st.State == StateReconnecting {
			if st.Attempt != 1 {
				t.Errorf("first attempt after reconnect = %d, want 1", st.Attempt)
			}
			break
		}
	}
}

func TestClient_DisconnectClearsOwnedState(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(d))

	c.Send([]byte("m1"))
	c.Send([]byte("m2"))
	c.JoinRoom("game", "g-1")
	c.JoinRoom("collaborative", "c-2")

	rs := c.ReconnectionState()
	if rs.GameRoomID != "g-1" || rs.CollaborativeRoomID != "c-2" || rs.PendingMessages != 2 {
		t.Fatalf("reconnection state = %+v", rs)
	}

	c.Disconnect()

	rs = c.ReconnectionState()
	if rs.GameRoomID != "" || rs.CollaborativeRoomID != "" || rs.PendingMessages != 0 {
		t.Errorf("reconnection state after disconnect = %+v, want empty", rs)
	}
}

func TestClient_DisconnectSuppressesReconnect(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(d))

	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateConnected)

	c.Disconnect()
	waitForState(t, c, StateDisconnected)

	if !d.conn(0).isClosed() {
		t.Error("transport not closed on disconnect")
	}
	time.Sleep(50 * time.Millisecond)
	if got := d.dialCount(); got != 1 {
		t.Errorf("dials = %d, want 1 (no auto reconnect)", got)
	}
}

func TestClient_DuplicateInboundSuppressed(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(d))

	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateConnected)

	conn := d.conn(0)
	conn.deliver(t, `{"id":"evt-1","type":"game_state","seq":1}`)
	conn.deliver(t, `{"id":"evt-1","type":"game_state","seq":1}`)
	conn.deliver(t, `{"id":"evt-2","type":"game_state","seq":2}`)

	first := readInbound(t, c)
	if first.ID != "evt-1" || first.Type != "game_state" {
		t.Errorf("first = %+v", first)
	}
	second := readInbound(t, c)
	if second.ID != "evt-2" {
		t.Errorf("second = %+v, want evt-2", second)
	}

	select {
	case msg := <-c.Messages():
		t.Errorf("unexpected third message: %+v", msg)
	case <-time.After(30 * time.Millisecond):
	}

	if got := c.Stats().Counters.Duplicates; got != 1 {
		t.Errorf("duplicates = %d, want 1", got)
	}
}

func TestClient_UnidentifiedEventsAlwaysDelivered(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(d))

	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateConnected)

	conn := d.conn(0)
	conn.deliver(t, `{"type":"ping_ack"}`)
	conn.deliver(t, `{"type":"ping_ack"}`)

	first := readInbound(t, c)
	second := readInbound(t, c)
	if first.ID == "" || second.ID == "" {
		t.Error("unidentified events must get stamped ids")
	}
	if first.ID == second.ID {
		t.Error("stamped ids must be distinct")
	}
	if first.Type != "ping_ack" {
		t.Errorf("type = %q, want ping_ack", first.Type)
	}
}

func TestClient_StaleConnectionEventsIgnored(t *testing.T) {
	d := &fakeDialer{prepare: func(f *fakeConn) { f.keepOpen = true }}
	c := New(testConfig(d))

	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateConnected)

	conn := d.conn(0)
	c.Disconnect()
	waitForState(t, c, StateDisconnected)

	// The superseded transport keeps delivering; the generation check
	// discards everything it produces.
	conn.deliver(t, `{"id":"evt-9","type":"game_state"}`)
	time.Sleep(30 * time.Millisecond)

	select {
	case msg := <-c.Messages():
		t.Errorf("stale message delivered: %+v", msg)
	default:
	}
}

func TestClient_InboundBackpressureDrops(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(d)) // inbound buffer 32

	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateConnected)

	conn := d.conn(0)
	for i := 0; i < 40; i++ {
		conn.deliver(t, fmt.Sprintf(`{"id":"evt-%d","type":"game_state"}`, i))
	}

	waitFor(t, func() bool { return c.Stats().Counters.InboundDropped == 8 }, "8 drops")
}

func TestClient_SubscriberPanicIsolated(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(d))

	c.OnStateChange(func(Status) { panic("bad subscriber") })
	rec := &statusRecorder{}
	c.OnStateChange(rec.record)

	c.Connect("wss://gateway.test/realtime")
	waitFor(t, func() bool { return rec.saw(StateConnected) }, "second subscriber delivery")

	if st := c.Status(); st.State != StateConnected {
		t.Errorf("state = %v, want %v", st.State, StateConnected)
	}
}

func TestClient_UnsubscribeStopsDelivery(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(d))

	rec := &statusRecorder{}
	unsubscribe := c.OnStateChange(rec.record)

	c.Connect("wss://gateway.test/realtime")
	waitFor(t, func() bool { return rec.saw(StateConnected) }, "connected notification")

	unsubscribe()
	before := rec.count()

	d.conn(0).drop(errors.New("connection reset"))
	waitFor(t, func() bool { return d.dialCount() >= 2 }, "reconnect")
	time.Sleep(30 * time.Millisecond)

	if got := rec.count(); got != before {
		t.Errorf("notifications after unsubscribe = %d, want %d", got, before)
	}
}

func TestClient_LeaveRoomRequiresMatchingID(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(d))

	c.Connect("wss://gateway.test/realtime")
	waitForState(t, c, StateConnected)

	c.JoinRoom("game", "g-1")
	c.JoinRoom("game", "g-2") // overwrites g-1

	conn := d.conn(0)
	if got := conn.sentCount(); got != 2 {
		t.Fatalf("join commands = %d, want 2", got)
	}

	// A stale leave for the overwritten room changes nothing.
	c.LeaveRoom("game", "g-1")
	time.Sleep(20 * time.Millisecond)
	if got := conn.sentCount(); got != 2 {
		t.Errorf("commands after stale leave = %d, want 2", got)
	}
	if got := c.ReconnectionState().GameRoomID; got != "g-2" {
		t.Errorf("game room = %q, want g-2", got)
	}

	c.LeaveRoom("game", "g-2")
	waitFor(t, func() bool { return conn.sentCount() == 3 }, "leave command")
	cmd := decodeCommand(t, conn.sentStrings()[2])
	if cmd.Type != CommandLeaveRoom || cmd.RoomID != "g-2" {
		t.Errorf("leave command = %+v", cmd)
	}
	if got := c.ReconnectionState().GameRoomID; got != "" {
		t.Errorf("game room after leave = %q, want empty", got)
	}
}

func TestClient_ClearPendingMessages(t *testing.T) {
	d := &fakeDialer{}
	c := New(testConfig(d))

	c.Send([]byte("m1"))
	c.Send([]byte("m2"))
	c.Send([]byte("m3"))

	if got := c.ClearPendingMessages(); got != 3 {
		t.Errorf("cleared = %d, want 3", got)
	}
	if got := c.PendingMessageCount(); got != 0 {
		t.Errorf("pending = %d, want 0", got)
	}
}

func TestClient_DefaultsApplied(t *testing.T) {
	c := New(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}).(*client)

	if c.cfg.QueueCapacity != DefaultQueueCapacity {
		t.Errorf("queue capacity = %d, want %d", c.cfg.QueueCapacity, DefaultQueueCapacity)
	}
	if c.cfg.DedupCapacity != DefaultDedupCapacity {
		t.Errorf("dedup capacity = %d, want %d", c.cfg.DedupCapacity, DefaultDedupCapacity)
	}
	if c.cfg.DedupTrim != DefaultDedupTrim {
		t.Errorf("dedup trim = %v, want %v", c.cfg.DedupTrim, DefaultDedupTrim)
	}
	if c.cfg.Buffer != DefaultBuffer {
		t.Errorf("buffer = %d, want %d", c.cfg.Buffer, DefaultBuffer)
	}
	if c.cfg.Backoff != backoff.DefaultPolicy() {
		t.Errorf("backoff = %+v, want default policy", c.cfg.Backoff)
	}
	if c.dial == nil {
		t.Error("dial func not defaulted")
	}
}
