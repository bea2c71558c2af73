package api

// GatewayStatusResponse from GET /gateway/status
type GatewayStatusResponse struct {
	GatewayActive       bool   `json:"gateway_active"`
	RealtimeActive      bool   `json:"realtime_active"`
	EstimatedResumeTime string `json:"gateway_estimated_resume_time,omitempty"`
}

// RoomsResponse from GET /rooms
type RoomsResponse struct {
	Rooms  []APIRoom `json:"rooms"`
	Cursor string    `json:"cursor"`
}

// APIRoom represents a room from the Podwave platform API.
type APIRoom struct {
	RoomID      string `json:"room_id"`
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Topic       string `json:"topic"`
	MemberCount int    `json:"member_count"`
	Capacity    int    `json:"capacity"`
	State       string `json:"state"` // open, locked, archived

	// Timestamps (ISO 8601)
	CreatedTime string `json:"created_time"`
	UpdatedTime string `json:"updated_time"`
}

// SingleRoomResponse from GET /rooms/{kind}/{room_id}
type SingleRoomResponse struct {
	Room APIRoom `json:"room"`
}

// ListRoomsOptions configures a ListRooms request.
type ListRoomsOptions struct {
	Limit  int
	Cursor string
	Kind   string
	State  string
}
