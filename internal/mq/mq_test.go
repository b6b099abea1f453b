package mq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/mycloud-app/mycloud/config"
)

// loopback delivers published messages to subscribers synchronously.
type loopback struct {
	mu       sync.Mutex
	messages []Message
	channels []string
}

func (l *loopback) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.channels = append(l.channels, channel)
	l.messages = append(l.messages, Message{ID: "m", Data: data, Attributes: attrs})
	return "m", nil
}

func (l *loopback) Subscribe(ctx context.Context, _ string, handler Handler) error {
	l.mu.Lock()
	msgs := append([]Message(nil), l.messages...)
	l.mu.Unlock()
	for _, m := range msgs {
		if err := handler(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (l *loopback) Close() error { return nil }

func TestPublishEventRoundTrip(t *testing.T) {
	lb := &loopback{}
	q := New(lb, "events")
	ctx := context.Background()

	if err := q.PublishEvent(ctx, Event{Type: EventFileUploaded, UserID: 7, FileID: 3, FileName: "a.txt"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	lb.messages = append(lb.messages, Message{Data: []byte("not json")})

	if lb.channels[0] != "events" {
		t.Fatalf("unexpected channel %q", lb.channels[0])
	}
	if lb.messages[0].Attributes[AttrEventType] != EventFileUploaded {
		t.Fatalf("missing event type attribute")
	}
	var raw map[string]any
	if err := json.Unmarshal(lb.messages[0].Data, &raw); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}

	var got []Event
	err := q.SubscribeEvents(ctx, func(_ context.Context, ev Event) error {
		got = append(got, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if len(got) != 1 || got[0].FileID != 3 || got[0].At.IsZero() {
		t.Fatalf("unexpected events %+v", got)
	}
}

func TestNilMQDropsEvents(t *testing.T) {
	var q *MQ
	if err := q.PublishEvent(context.Background(), Event{Type: EventUserDeleted}); err != nil {
		t.Fatalf("nil publish: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}

func TestOpen(t *testing.T) {
	q, err := Open(context.Background(), config.MQConfig{})
	if err != nil || q != nil {
		t.Fatalf("expected disabled mq, got %v %v", q, err)
	}
	if _, err := Open(context.Background(), config.MQConfig{Backend: "kafka"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	_, err = Open(context.Background(), config.MQConfig{Backend: "rabbitmq"})
	if err == nil || errors.Is(err, context.Canceled) {
		t.Fatalf("expected missing url error, got %v", err)
	}
}
