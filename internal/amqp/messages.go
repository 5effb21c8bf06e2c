package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"moodtracker/internal/core"
)

// Op names the change carried by an EntryChangedMessage.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// EntryChangedMessage describes one committed change to a user's mood table. It
// carries the full row so consumers never read back from the database.
type EntryChangedMessage struct {
	UserID    string        `json:"user_id"`
	Date      core.DateKey  `json:"date"`
	Op        Op            `json:"op"`
	Mood      core.MoodType `json:"mood,omitempty"`
	Comment   string        `json:"comment,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewUpsertMessage builds the message for a saved entry.
func NewUpsertMessage(userID string, e core.DayEntry) *EntryChangedMessage {
	return &EntryChangedMessage{
		UserID:    userID,
		Date:      e.Date,
		Op:        OpUpsert,
		Mood:      e.Mood,
		Comment:   e.Comment,
		Timestamp: time.Now(),
	}
}

// NewDeleteMessage builds the message for a cleared day.
func NewDeleteMessage(userID string, date core.DateKey) *EntryChangedMessage {
	return &EntryChangedMessage{
		UserID:    userID,
		Date:      date,
		Op:        OpDelete,
		Timestamp: time.Now(),
	}
}

// Entry returns the row carried by an upsert message.
func (m *EntryChangedMessage) Entry() core.DayEntry {
	return core.DayEntry{Date: m.Date, Mood: m.Mood, Comment: m.Comment}
}

// Validate rejects messages no consumer could apply.
func (m *EntryChangedMessage) Validate() error {
	if m.UserID == "" {
		return fmt.Errorf("missing user_id")
	}
	if !m.Date.Valid() {
		return fmt.Errorf("invalid date %q", m.Date)
	}
	switch m.Op {
	case OpUpsert:
		if !m.Mood.Valid() {
			return fmt.Errorf("invalid mood %q", m.Mood)
		}
	case OpDelete:
	default:
		return fmt.Errorf("unknown op %q", m.Op)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *EntryChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EntryChangedMessageFromJSON decodes and validates a message.
func EntryChangedMessageFromJSON(data []byte) (*EntryChangedMessage, error) {
	var msg EntryChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid entry message: %w", err)
	}
	return &msg, nil
}
