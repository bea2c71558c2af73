package session

import (
	"log/slog"
	"time"

	"github.com/podwave/relay/internal/backoff"
	"github.com/podwave/relay/internal/metrics"
	"github.com/podwave/relay/internal/transport"
)

// State identifies the lifecycle phase of the gateway session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

// Status is a point-in-time state snapshot. Attempt is the reconnection
// attempt number; it is meaningful only while reconnecting and after the
// session has failed, where it holds the last attempt made.
type Status struct {
	State   State `json:"state"`
	Attempt int   `json:"attempt,omitempty"`
}

// Inbound is one deduplicated message from the gateway.
type Inbound struct {
	ID         string    // Gateway event id (stamped locally when the envelope has none)
	Type       string    // Gateway event type ("" when the envelope omits it)
	Data       []byte    // Raw message bytes
	ReceivedAt time.Time // Local timestamp when the transport delivered it
}

// Command is a control message sent to the gateway.
type Command struct {
	Type     string `json:"type"`
	RoomKind string `json:"room_kind,omitempty"`
	RoomID   string `json:"room_id,omitempty"`
	Nonce    string `json:"nonce"`
}

// Gateway command types.
const (
	CommandJoinRoom  = "join_room"
	CommandLeaveRoom = "leave_room"
)

// envelope is the minimal shape peeked from every inbound message.
type envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// ReconnectionState describes what a reconnect would restore.
type ReconnectionState struct {
	GameRoomID          string `json:"game_room_id"`
	CollaborativeRoomID string `json:"collaborative_room_id"`
	PendingMessages     int    `json:"pending_messages"`
}

// Stats provides statistics about session activity.
type Stats struct {
	State          State            `json:"state"`
	Attempt        int              `json:"attempt"`
	Pending        int              `json:"pending"`
	Rooms          int              `json:"rooms"`
	QueueEvictions uint64           `json:"queue_evictions"`
	DedupEvictions uint64           `json:"dedup_evictions"`
	Counters       metrics.Snapshot `json:"counters"`
}

// Config configures a session client.
type Config struct {
	Dial          transport.DialFunc // Transport dialer (nil = WebSocket dialer with defaults)
	Backoff       backoff.Policy     // Reconnection schedule (zero value = DefaultPolicy)
	QueueCapacity int                // Outbound buffer bound; oldest entries evicted beyond it
	DedupCapacity int                // Inbound id cache bound
	DedupTrim     float64            // Fraction of oldest ids dropped when the cache overflows
	Buffer        int                // Inbound delivery channel capacity
	Logger        *slog.Logger
}

// Session defaults.
const (
	DefaultQueueCapacity = 100
	DefaultDedupCapacity = 1000
	DefaultDedupTrim     = 0.2
	DefaultBuffer        = 256
)

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backoff:       backoff.DefaultPolicy(),
		QueueCapacity: DefaultQueueCapacity,
		DedupCapacity: DefaultDedupCapacity,
		DedupTrim:     DefaultDedupTrim,
		Buffer:        DefaultBuffer,
	}
}
