// Package issue: the reported-issue and support records, the repository contract
// every storage driver implements, and the proximity filter.
package issue

import (
	"time"

	"civic-api/internal/geo"
)

type Status string

const (
	StatusReported   Status = "reported"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
)

func (s Status) Valid() bool {
	switch s {
	case StatusReported, StatusInProgress, StatusResolved:
		return true
	}
	return false
}

// Issue is one citizen report. ID, ReportID and CreatedAt never change after creation.
type Issue struct {
	ID                 int64          `json:"id"`
	Type               string         `json:"type"`
	Coordinate         geo.Coordinate `json:"coordinate"`
	Address            string         `json:"address"`
	Notes              *string        `json:"notes,omitempty"`
	PhotoURL           *string        `json:"photoUrl,omitempty"`
	Status             Status         `json:"status"`
	UpvoteCount        int64          `json:"upvoteCount"`
	ReportID           string         `json:"reportId"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
	LastReminderSentAt *time.Time     `json:"lastReminderSentAt,omitempty"`
}

// Support is a device's endorsement of an issue; at most one per (DeviceID, IssueID).
type Support struct {
	ID        int64     `json:"id"`
	IssueID   int64     `json:"issueId"`
	DeviceID  string    `json:"deviceId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Input is the submission payload. Latitude and Longitude are pointers so a
// missing coordinate is distinguishable from (0, 0).
type Input struct {
	Type      string   `json:"type" validate:"required,max=64"`
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
	Address   string   `json:"address" validate:"required,max=512"`
	Notes     *string  `json:"notes,omitempty" validate:"omitempty,max=4000"`
	PhotoURL  *string  `json:"photoUrl,omitempty" validate:"omitempty,max=2048"`
	Status    *Status  `json:"status,omitempty"`
}

// Coordinate must only be called on validated input.
func (in Input) Coordinate() geo.Coordinate {
	return geo.Coordinate{Latitude: *in.Latitude, Longitude: *in.Longitude}
}
