package cachefirst

import (
	"context"

	"github.com/google/uuid"
)

// Action is a user interaction on a displayed notification.
type Action string

const (
	ActionView    Action = "view"
	ActionDismiss Action = "dismiss"
	// ActionDefault is an interaction with the notification body itself.
	ActionDefault Action = ""
)

const (
	defaultNotificationTitle = "Emergency Alert"
	defaultNotificationBody  = "New emergency alert. Open the app for details."
)

// Notification is an alert presented to the user with a fixed set of actions.
type Notification struct {
	ID      uuid.UUID
	Title   string
	Body    string
	Actions []Action
}

// Notifier presents notifications to the user.
type Notifier interface {
	Show(ctx context.Context, n Notification) error
}

// ClientRegistry tracks open application instances.
type ClientRegistry interface {
	// ClaimAll re-binds every open instance to the current coordinator
	// without requiring a reload.
	ClaimAll(ctx context.Context) error
	// Focus brings an already-open same-origin instance to the foreground.
	// It reports false when no such instance exists.
	Focus(ctx context.Context) (bool, error)
	// OpenWindow opens a new application instance at the given URL.
	OpenWindow(ctx context.Context, url string) error
}

// OnPush presents a push payload as a notification. An absent payload gets
// the default body.
func (c *Coordinator) OnPush(ctx context.Context, payload []byte) error {
	body := string(payload)
	if body == "" {
		body = defaultNotificationBody
	}
	n := Notification{
		ID:      uuid.New(),
		Title:   defaultNotificationTitle,
		Body:    body,
		Actions: []Action{ActionView, ActionDismiss},
	}
	if c.notifier == nil {
		c.log.Warn().Msg("No notifier configured, dropping push")
		return nil
	}
	c.log.Debug().Str("id", n.ID.String()).Msg("Showing notification")
	return c.notifier.Show(ctx, n)
}

// OnNotificationAction routes a notification interaction back to the
// application: focus an open instance if there is one, otherwise open a new
// one at the entry URL.
func (c *Coordinator) OnNotificationAction(ctx context.Context, action Action) error {
	if action == ActionDismiss {
		return nil
	}
	if c.clients == nil {
		return nil
	}
	focused, err := c.clients.Focus(ctx)
	if err != nil {
		return err
	}
	if focused {
		return nil
	}
	return c.clients.OpenWindow(ctx, c.entryURL)
}
