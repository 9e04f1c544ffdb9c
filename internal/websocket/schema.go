package websocket

import "github.com/stemsi/exstem-timetable/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing    Action = "ping"
	ActionRefresh Action = "refresh"
)

// RequestEnvelope is the only client message shape.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError            Event = "error"
	EventSnapshot         Event = "snapshot"
	EventTimetableUpdated Event = "timetable_updated"
	EventPong             Event = "pong"
)

// SnapshotResponse carries the full class grid, sent on connect and on
// "refresh".
type SnapshotResponse struct {
	Event     Event             `json:"event"`
	Term      string            `json:"term"`
	ClassName string            `json:"class"`
	Timetable []model.ClassSlot `json:"timetable"`
}

// UpdatedResponse is pushed after another teacher's write touched the class.
type UpdatedResponse struct {
	Event     Event             `json:"event"`
	Update    model.ClassUpdate `json:"update"`
	Timetable []model.ClassSlot `json:"timetable"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
