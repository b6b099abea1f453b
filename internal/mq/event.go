package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventFileUploaded = "file.uploaded"
	EventFileDeleted  = "file.deleted"
	EventUserDeleted  = "user.deleted"
)

const (
	AttrEventType   = "event_type"
	AttrContentType = "content_type"
)

// Event describes a change to stored files or accounts.
type Event struct {
	Type     string    `json:"type"`
	UserID   int       `json:"user_id"`
	FileID   int       `json:"file_id,omitempty"`
	FileName string    `json:"file_name,omitempty"`
	ActorID  int       `json:"actor_id"`
	At       time.Time `json:"at"`
}

// PublishEvent encodes ev as JSON and publishes it. A nil *MQ drops the
// event.
func (m *MQ) PublishEvent(ctx context.Context, ev Event) error {
	if m == nil {
		return nil
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = m.Publish(ctx, data, map[string]string{
		AttrEventType:   ev.Type,
		AttrContentType: "application/json",
	})
	return err
}

// SubscribeEvents decodes each message on the bound channel as an Event.
// Undecodable messages are acknowledged and skipped.
func (m *MQ) SubscribeEvents(ctx context.Context, fn func(context.Context, Event) error) error {
	return m.Subscribe(ctx, func(ctx context.Context, msg Message) error {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return nil
		}
		return fn(ctx, ev)
	})
}
