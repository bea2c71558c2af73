package metrics

import "sync/atomic"

// Counters tracks session activity totals.
type Counters struct {
	Sent           atomic.Int64 // payloads transmitted while connected
	Enqueued       atomic.Int64 // payloads buffered while disconnected
	Replayed       atomic.Int64 // buffered payloads flushed after (re)connect
	SendErrors     atomic.Int64 // transport write failures
	Duplicates     atomic.Int64 // inbound messages suppressed by dedup
	InboundDropped atomic.Int64 // inbound deliveries dropped on full channel
	Reconnects     atomic.Int64 // successful reconnections
	Rejoins        atomic.Int64 // room join commands re-emitted after reconnect
}

// Snapshot is a plain-value copy of the counters.
type Snapshot struct {
	Sent           int64 `json:"sent"`
	Enqueued       int64 `json:"enqueued"`
	Replayed       int64 `json:"replayed"`
	SendErrors     int64 `json:"send_errors"`
	Duplicates     int64 `json:"duplicates"`
	InboundDropped int64 `json:"inbound_dropped"`
	Reconnects     int64 `json:"reconnects"`
	Rejoins        int64 `json:"rejoins"`
}

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Sent:           c.Sent.Load(),
		Enqueued:       c.Enqueued.Load(),
		Replayed:       c.Replayed.Load(),
		SendErrors:     c.SendErrors.Load(),
		Duplicates:     c.Duplicates.Load(),
		InboundDropped: c.InboundDropped.Load(),
		Reconnects:     c.Reconnects.Load(),
		Rejoins:        c.Rejoins.Load(),
	}
}
