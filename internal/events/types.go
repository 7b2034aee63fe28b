package events

import "time"

// Event names published by the dashboard backend.
const (
	RoomUpdate     = "roomUpdate"
	ActivityUpdate = "activityUpdate"
)

// Room statuses.
const (
	RoomAvailable   = "available"
	RoomOccupied    = "occupied"
	RoomCleaning    = "cleaning"
	RoomMaintenance = "maintenance"
)

// RoomStatus is the payload of a roomUpdate event.
type RoomStatus struct {
	RoomID    string    `json:"roomId,omitempty"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Activity is the payload of an activityUpdate event: one activity log entry.
type Activity struct {
	ID        string    `json:"id"`
	HotelID   string    `json:"hotelId,omitempty"`
	Kind      string    `json:"kind,omitempty"`    // "check_in", "check_out", "housekeeping", ...
	Message   string    `json:"message,omitempty"` // Human-readable line for the log view
	CreatedAt time.Time `json:"createdAt,omitzero"`
}
