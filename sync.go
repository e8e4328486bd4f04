package cachefirst

import (
	"context"
	"encoding/json"
	"fmt"
)

// Transmitter delivers pending sync payloads to their destination. It is an
// external collaborator: retry and backoff are owned by whatever schedules
// the sync trigger, never by the coordinator.
type Transmitter interface {
	Transmit(ctx context.Context, tag string, payload json.RawMessage) error
}

// OnSyncTag flushes the pending item behind the given sync tag. An absent
// item is a no-op success. The item is deleted only after the transmitter
// confirms delivery; on failure it is left intact and the error is returned
// so the trigger may reschedule.
func (c *Coordinator) OnSyncTag(ctx context.Context, tag string) error {
	key, ok := c.syncTags[tag]
	if !ok {
		return fmt.Errorf("unknown sync tag %q", tag)
	}

	b, ok, err := c.handle.Get(key)
	if err != nil {
		return fmt.Errorf("reading pending item for %s: %w", key, err)
	}
	if !ok {
		c.log.Debug().Str("tag", tag).Msg("Nothing pending to sync")
		return nil
	}

	var payload json.RawMessage
	if err := json.Unmarshal(b, &payload); err != nil {
		return fmt.Errorf("pending item under %s is not valid JSON: %w", key, err)
	}

	if c.transmitter == nil {
		return fmt.Errorf("no transmitter configured for tag %q", tag)
	}
	if err := c.transmitter.Transmit(ctx, tag, payload); err != nil {
		c.log.Warn().Err(err).Str("tag", tag).Msg("Sync transmission failed, keeping pending item")
		return err
	}

	if _, err := c.handle.Delete(key); err != nil {
		return fmt.Errorf("deleting flushed item %s: %w", key, err)
	}
	c.log.Info().Str("tag", tag).Str("key", key).Msg("Flushed pending sync item")
	return nil
}
