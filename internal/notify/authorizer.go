package notify

import (
	"context"
	"log/slog"
	"sync"

	"tickler/internal/domain"
	"tickler/internal/logger"
)

// Authorizer holds the session's notification permission. It moves from
// default to granted or denied at most once; both are terminal.
type Authorizer struct {
	platform Platform
	log      *slog.Logger

	mu        sync.Mutex
	state     domain.Permission
	activated bool
	resolved  chan struct{}
	listeners map[int]func(domain.Permission)
	nextID    int
}

func NewAuthorizer(p Platform) *Authorizer {
	return &Authorizer{
		platform:  p,
		log:       logger.With("component", "notify"),
		state:     domain.PermissionDefault,
		resolved:  make(chan struct{}),
		listeners: make(map[int]func(domain.Permission)),
	}
}

func (a *Authorizer) PlatformName() string {
	if a.platform == nil {
		return "none"
	}
	return a.platform.Name()
}

func (a *Authorizer) State() domain.Permission {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Authorizer) Granted() bool {
	return a.State() == domain.PermissionGranted
}

// Resolved is closed once activation has settled the session state.
func (a *Authorizer) Resolved() <-chan struct{} {
	return a.resolved
}

// OnChange registers fn for the (single) state transition.
func (a *Authorizer) OnChange(fn func(domain.Permission)) (unsubscribe func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.listeners, id)
	}
}

// Activate evaluates the platform once per session. An undecided live
// permission triggers exactly one asynchronous request.
func (a *Authorizer) Activate(ctx context.Context) {
	a.mu.Lock()
	if a.activated {
		a.mu.Unlock()
		return
	}
	a.activated = true
	a.mu.Unlock()

	if a.platform == nil || !a.platform.Supported() {
		a.log.Info("notifications unavailable; alerts disabled", "platform", a.PlatformName())
		a.resolve(domain.PermissionDenied)
		return
	}
	live := a.platform.Permission(ctx)
	if live.Terminal() {
		a.resolve(live)
		return
	}
	go func() {
		outcome, err := a.platform.RequestPermission(ctx)
		if err != nil {
			a.log.Warn("permission request failed", "platform", a.platform.Name(), "error", err)
			outcome = domain.PermissionDenied
		}
		a.resolve(outcome)
	}()
}

func (a *Authorizer) resolve(p domain.Permission) {
	a.mu.Lock()
	select {
	case <-a.resolved:
		a.mu.Unlock()
		return
	default:
	}
	changed := p != a.state
	if p.Terminal() {
		a.state = p
	}
	close(a.resolved)
	fns := make([]func(domain.Permission), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	state := a.state
	a.mu.Unlock()

	a.log.Info("notification permission resolved", "platform", a.PlatformName(), "state", state)
	if !changed || !p.Terminal() {
		return
	}
	for _, fn := range fns {
		fn(state)
	}
}

// Notify delivers alert when permission is granted. Delivery failures are
// logged and absorbed; the return value reports whether the alert went out.
func (a *Authorizer) Notify(ctx context.Context, alert domain.Alert) bool {
	if !a.Granted() {
		return false
	}
	if err := a.platform.Notify(ctx, alert); err != nil {
		a.log.Warn("alert delivery failed", "platform", a.platform.Name(), "task", alert.TaskID, "error", err)
		return false
	}
	return true
}
