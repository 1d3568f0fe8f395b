package websocket

import "github.com/stemsi/exstem-portal/internal/model"

// ─── Events (Server → Faculty) ──────────────────────────────────────

type Event string

const (
	EventSnapshot Event = "snapshot"
	EventAttempt  Event = "attempt"
	EventError    Event = "error"
)

// SnapshotMessage is sent once after the connection opens. It lists the
// attempts that were already running.
type SnapshotMessage struct {
	Event    Event                `json:"event"`
	ExamID   string               `json:"exam_id"`
	Title    string               `json:"title"`
	Attempts []model.AttemptEvent `json:"attempts"`
}

// AttemptMessage wraps a single attempt state change from the monitor channel.
type AttemptMessage struct {
	Event   Event              `json:"event"`
	Attempt model.AttemptEvent `json:"attempt"`
}

type ErrorMessage struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}
