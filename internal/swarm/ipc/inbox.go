package ipc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const lockStaleAfter = 30 * time.Second

// WriteInbox appends one message to the agent's inbox under its lock,
// assigning the next sequence number, and returns the assigned message:
// acquire lock, read, append, write-temp+rename, release.
func WriteInbox(ctx context.Context, inboxPath, lockPath string, kind, taskID string, payload any, requiresAck bool) (InboxMessage, error) {
	var msg InboxMessage
	err := WithLock(ctx, lockPath, lockStaleAfter, func() error {
		var box Inbox
		if err := ReadJSON(inboxPath, &box); err != nil {
			return err
		}
		msg = InboxMessage{
			Seq:         box.NextSeq,
			MessageID:   uuid.NewString(),
			Timestamp:   time.Now().UTC(),
			Kind:        kind,
			TaskID:      taskID,
			Payload:     payload,
			RequiresAck: requiresAck,
		}
		box.Messages = append(box.Messages, msg)
		box.NextSeq++
		return WriteJSONAtomic(inboxPath, &box)
	})
	if err != nil {
		return InboxMessage{}, fmt.Errorf("write inbox: %w", err)
	}
	return msg, nil
}

// ReadInboxSince returns every message with seq >= sinceSeq, for an agent
// side (or test harness) consuming the inbox. The coordinator itself never
// calls this — it only writes.
func ReadInboxSince(inboxPath string, sinceSeq int64) ([]InboxMessage, error) {
	var box Inbox
	if err := ReadJSON(inboxPath, &box); err != nil {
		return nil, err
	}
	var out []InboxMessage
	for _, m := range box.Messages {
		if m.Seq >= sinceSeq {
			out = append(out, m)
		}
	}
	return out, nil
}
