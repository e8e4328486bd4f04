package cachefirst

import (
	"context"
	"fmt"
	"net/http"

	tee "github.com/cache-first/cache-first/pkg/response-writer-tee"
)

// State is a lifecycle state of the coordinator.
type State string

const (
	StateNew        State = "new"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActive     State = "active"
	StateSuperseded State = "superseded"
)

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()
	if c.state == "" {
		return StateNew
	}
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.stateMutex.Lock()
	c.state = s
	c.stateMutex.Unlock()
	c.log.Debug().Str("state", string(s)).Msg("Lifecycle transition")
}

// OnInstall pre-loads the static asset set into the current cache version.
// A single failing asset is logged and skipped, never aborting the install.
// When OnInstall returns, the instance is immediately eligible to supersede
// any running instance (skip-waiting semantics).
func (c *Coordinator) OnInstall(ctx context.Context) error {
	c.setState(StateInstalling)
	for _, path := range c.assets {
		if err := c.fetchAndStore(ctx, path); err != nil {
			c.log.Warn().Err(err).Str("path", path).Msg("Could not pre-load asset")
		}
	}
	c.setState(StateInstalled)
	return nil
}

// fetchAndStore requests the given path from the origin and stores the
// response if it is cacheable.
func (c *Coordinator) fetchAndStore(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return fmt.Errorf("creating request for %s: %w", path, err)
	}
	c.log.Trace().Str("path", path).Msg("Pre-loading asset from origin")

	rw := tee.NewResponseSaver()
	c.reverseproxy.ServeHTTP(rw, req)
	if rw.Err() != nil {
		return fmt.Errorf("fetching %s: %w", path, rw.Err())
	}
	if !cacheable(req, rw.StatusCode(), isBasic(rw)) {
		return fmt.Errorf("response for %s not cacheable (status %d)", path, rw.StatusCode())
	}
	return c.storeResponse(requestKey(req), rw)
}

// OnActivate prunes every cache version except the current one and takes
// control of all open application instances. The instance is Active only
// after both sub-steps complete.
func (c *Coordinator) OnActivate(ctx context.Context) error {
	c.setState(StateActivating)

	versions, err := c.store.Versions()
	if err != nil {
		return fmt.Errorf("listing cache versions: %w", err)
	}
	for _, version := range versions {
		if version == c.handle.Version() {
			continue
		}
		if err := c.store.DeleteVersion(version); err != nil {
			return fmt.Errorf("deleting superseded version %s: %w", version, err)
		}
		c.log.Debug().Str("superseded", version).Msg("Deleted superseded cache version")
	}

	// claim semantics: already-open instances are re-bound without a reload
	if c.clients != nil {
		if err := c.clients.ClaimAll(ctx); err != nil {
			return fmt.Errorf("claiming clients: %w", err)
		}
	}

	c.setState(StateActive)
	return nil
}

// Supersede marks this instance as replaced by a newer one.
func (c *Coordinator) Supersede() {
	c.setState(StateSuperseded)
}
