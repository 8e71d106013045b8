package domain

type WorkshopID string

type WorkshopStatus string

const (
	WorkshopScheduled WorkshopStatus = "scheduled"
	WorkshopLive      WorkshopStatus = "live"
	WorkshopCompleted WorkshopStatus = "completed"
)

// Workshop is the scheduled-event record the coordinator reads on session
// creation and writes back to on session end. The full record lives in an
// external store.
type Workshop struct {
	ID            WorkshopID     `json:"id"`
	Title         string         `json:"title"`
	HostID        UserID         `json:"host_id"`
	Capacity      int            `json:"capacity"`
	Status        WorkshopStatus `json:"status"`
	AttendeeCount int            `json:"attendee_count"`
}
