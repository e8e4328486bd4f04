package cachefirst

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message types understood by OnMessage.
const (
	MessageSkipWaiting        = "SKIP_WAITING"
	MessageCacheEmergencyData = "CACHE_EMERGENCY_DATA"
	MessageCacheStudentScans  = "CACHE_STUDENT_SCANS"
)

// Message is the inbound application message envelope.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OnMessage handles an explicit message from the application. Cache-write
// messages store their payload under the corresponding reserved key,
// overwriting any pending item there. SKIP_WAITING forces immediate
// activation. Unknown types are logged and ignored.
func (c *Coordinator) OnMessage(ctx context.Context, raw []byte) error {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("parsing message: %w", err)
	}

	if key, ok := c.cacheMessages[msg.Type]; ok {
		if len(msg.Payload) == 0 {
			return fmt.Errorf("message %s carries no payload", msg.Type)
		}
		if err := c.handle.Put(key, msg.Payload); err != nil {
			return fmt.Errorf("storing payload under %s: %w", key, err)
		}
		c.log.Debug().Str("type", msg.Type).Str("key", key).Msg("Stored pending sync payload")
		return nil
	}

	if msg.Type == MessageSkipWaiting {
		return c.OnActivate(ctx)
	}

	c.log.Warn().Str("type", msg.Type).Msg("Ignoring unknown message type")
	return nil
}
