package ipc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewEvent is the caller-supplied shape of one event to append to an
// outbox; Seq/EventID/Timestamp are assigned by AppendOutboxEvents.
type NewEvent struct {
	Type       string
	TaskID     string
	Payload    any
	TokenUsage int64
	CostUSD    float64
}

// AppendOutboxEvents appends a batch of harvested events to the agent's
// outbox under its lock, assigning sequence numbers, and returns the
// assigned events in order.
func AppendOutboxEvents(ctx context.Context, outboxPath, lockPath string, events []NewEvent) ([]OutboxEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}
	var assigned []OutboxEvent
	err := WithLock(ctx, lockPath, lockStaleAfter, func() error {
		var box Outbox
		if err := ReadJSON(outboxPath, &box); err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, e := range events {
			oe := OutboxEvent{
				Seq:        box.NextSeq,
				EventID:    uuid.NewString(),
				Timestamp:  now,
				Type:       e.Type,
				TaskID:     e.TaskID,
				Payload:    e.Payload,
				TokenUsage: e.TokenUsage,
				CostUSD:    e.CostUSD,
			}
			box.Events = append(box.Events, oe)
			box.NextSeq++
			assigned = append(assigned, oe)
		}
		return WriteJSONAtomic(outboxPath, &box)
	})
	if err != nil {
		return nil, fmt.Errorf("append outbox events: %w", err)
	}
	return assigned, nil
}

// ReadOutboxSince returns every event with seq >= sinceSeq from the outbox
// document, for an outside reader (or test harness). The coordinator's
// harvester does not call this — it reads process output and only writes the
// outbox.
func ReadOutboxSince(outboxPath string, sinceSeq int64) ([]OutboxEvent, error) {
	var box Outbox
	if err := ReadJSON(outboxPath, &box); err != nil {
		return nil, err
	}
	var out []OutboxEvent
	for _, e := range box.Events {
		if e.Seq >= sinceSeq {
			out = append(out, e)
		}
	}
	return out, nil
}
