package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/md-rashed-zaman/detailbook/libs/kafkax"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestReservationEventPayload(t *testing.T) {
	start := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)
	evt, err := ReservationEvent(TopicReservationCreated, model.Reservation{
		ID:        "r1",
		SubjectID: "s1",
		Status:    model.StatusPending,
		Interval:  model.Interval{Start: start, End: start.Add(time.Hour)},
	}, start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.AggregateID != "r1" || evt.EventType != TopicReservationCreated {
		t.Fatalf("unexpected envelope %+v", evt)
	}
	var body map[string]any
	if err := json.Unmarshal(evt.Payload, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "pending" || body["start_time"] != "2025-03-04T15:00:00Z" {
		t.Fatalf("unexpected payload %v", body)
	}
}

func TestTopicForStatus(t *testing.T) {
	if TopicForStatus(model.StatusCancelled) != TopicReservationCancelled {
		t.Fatal("expected cancelled topic")
	}
	if TopicForStatus(model.StatusConfirmed) != TopicReservationConfirmed {
		t.Fatal("expected confirmed topic")
	}
}

func TestToMessageCarriesHeadersAndTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	msg := toMessage(context.Background(), Record{
		ID:          1,
		EventID:     "e1",
		AggregateID: "r1",
		EventType:   TopicReservationCreated,
		Payload:     []byte(`{}`),
		Traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	})
	if msg.Topic != TopicReservationCreated || string(msg.Key) != "r1" {
		t.Fatalf("unexpected message %+v", msg)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != "e1" || meta.EventType != TopicReservationCreated {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if kafkax.HeaderValue(msg.Headers, "traceparent") == "" {
		t.Fatal("expected traceparent header from stored trace context")
	}
}
