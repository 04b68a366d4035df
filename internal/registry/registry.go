// Package registry reconciles a configured list of counterparty sessions
// against the set actually running in an engine.Manager, reloading
// periodically and restarting sessions whose configuration changed.
// Grounded on the teacher's discovery.Scanner (discovery/scanner.go):
// fetchBMH/applyBMH/OnChange's poll-diff-notify loop carries over directly,
// generalized from a Kubernetes BareMetalHost watch to a periodic local
// YAML config reload (this process has no long-lived watch API to lean on,
// so the watchBMH long-poll path has no analog here).
package registry

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fixengine/fixengine/internal/engine"
	"github.com/fixengine/fixengine/internal/session"
	"github.com/fixengine/fixengine/internal/store"
	"github.com/fixengine/fixengine/internal/transport"
)

// Counterparty is one configured session entry: an initiator dials Address;
// an acceptor entry (Address == "") exists only so the Listener's resolve
// callback can find a Config for an inbound connection.
type Counterparty struct {
	session.Config
	Role            session.Role
	Address         string
	DialTimeout     time.Duration
	StorePath       string // not read by Registry; the Factory chooses the Store
}

// Loader fetches the current desired set of counterparty sessions, e.g. by
// re-reading a YAML config file.
type Loader func() ([]Counterparty, error)

// Factory builds the Store/Codec/Application trio for a counterparty. A
// single factory is shared by every session; callers that need per-session
// behavior can switch on cfg.ID() inside it.
type Factory func(c Counterparty) (store.Store, session.Codec, session.Application)

// Registry polls Loader on an interval and reconciles the result against
// Manager's running sessions, starting new ones, stopping removed ones, and
// restarting ones whose configuration changed.
type Registry struct {
	manager  *engine.Manager
	load     Loader
	factory  Factory
	interval time.Duration

	running map[string]Counterparty
}

// New returns a Registry. interval is the reload period (spec.md §6's
// registry.reload_interval).
func New(manager *engine.Manager, load Loader, factory Factory, interval time.Duration) *Registry {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Registry{
		manager:  manager,
		load:     load,
		factory:  factory,
		interval: interval,
		running:  make(map[string]Counterparty),
	}
}

// Run reloads and reconciles until ctx is canceled.
func (r *Registry) Run(ctx context.Context) {
	r.reload(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reload(ctx)
		}
	}
}

func (r *Registry) reload(ctx context.Context) {
	desired, err := r.load()
	if err != nil {
		log.Errorf("registry: reload failed: %v", err)
		return
	}
	r.reconcile(ctx, desired)
}

// reconcile diffs desired against the previously applied set, generalizing
// Scanner.applyBMH's field-by-field change detection to Counterparty
// equality (session.Config plus role, address and dial timeout).
func (r *Registry) reconcile(ctx context.Context, desired []Counterparty) {
	seen := make(map[string]bool, len(desired))

	for _, c := range desired {
		id := c.ID()
		seen[id] = true

		prev, exists := r.running[id]
		if exists && prev == c {
			continue
		}
		if exists {
			log.Infof("registry: configuration changed for %s, restarting", id)
			r.manager.Stop(id)
		} else {
			log.Infof("registry: new session configured: %s", id)
		}

		r.running[id] = c
		if c.Role != session.Initiator {
			// Acceptor entries are served by the Listener's resolve
			// callback; nothing to start proactively here.
			continue
		}

		st, codec, app := r.factory(c)
		dialTimeout := c.DialTimeout
		if dialTimeout <= 0 {
			dialTimeout = 10 * time.Second
		}
		address := c.Address
		dial := func(dctx context.Context) (transport.Transport, error) {
			return transport.Dial(dctx, address, dialTimeout)
		}
		r.manager.StartInitiator(ctx, c.Config, dial, st, codec, app)
	}

	for id := range r.running {
		if !seen[id] {
			log.Infof("registry: session removed from configuration: %s", id)
			r.manager.Stop(id)
			delete(r.running, id)
		}
	}
}
