package domain

import "time"

type EventType string

const (
	EventRecordPut     EventType = "record.put"
	EventRecordDelete  EventType = "record.delete"
	EventArchiveAdd    EventType = "archive.add"
	EventArchiveRemove EventType = "archive.remove"
)

// Event is published for every change to the index.
type Event struct {
	Type       EventType `json:"type"`
	URL        string    `json:"url"`
	Collection string    `json:"collection,omitempty"`
	Origin     string    `json:"origin,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
