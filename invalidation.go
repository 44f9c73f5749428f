package pageguard

import (
	"context"
	"sync"
)

// ============================================================================
// POLICY CHANGE NOTIFICATION
// ============================================================================

// ChangeSubscriber receives resource ids whose policies changed. The policy
// store's write path publishes through a notifier so every engine instance
// can evict its stale cache entries.
type ChangeSubscriber interface {
	OnPolicyChange(ctx context.Context, resourceID string) error
}

// ChangeSubscriberFunc adapts a plain function to ChangeSubscriber
type ChangeSubscriberFunc func(ctx context.Context, resourceID string) error

func (f ChangeSubscriberFunc) OnPolicyChange(ctx context.Context, resourceID string) error {
	return f(ctx, resourceID)
}

// PolicyChangeNotifier fans policy-change events out to subscribers.
// Notification is synchronous and best-effort: a failing subscriber does not
// stop the others.
type PolicyChangeNotifier struct {
	mu          sync.RWMutex
	subscribers []ChangeSubscriber
}

func NewPolicyChangeNotifier() *PolicyChangeNotifier {
	return &PolicyChangeNotifier{}
}

// Subscribe registers a subscriber for all future change events.
func (n *PolicyChangeNotifier) Subscribe(s ChangeSubscriber) {
	n.mu.Lock()
	n.subscribers = append(n.subscribers, s)
	n.mu.Unlock()
}

// SubscribeEngine wires an engine's cache eviction to the notifier.
func (n *PolicyChangeNotifier) SubscribeEngine(e *Engine) {
	n.Subscribe(ChangeSubscriberFunc(func(_ context.Context, resourceID string) error {
		if resourceID == "" {
			e.InvalidateAll()
		} else {
			e.Invalidate(resourceID)
		}
		return nil
	}))
}

// Notify publishes a change for one resource; an empty id means everything
// changed. Returns the first subscriber error after all have been called.
func (n *PolicyChangeNotifier) Notify(ctx context.Context, resourceID string) error {
	n.mu.RLock()
	subs := make([]ChangeSubscriber, len(n.subscribers))
	copy(subs, n.subscribers)
	n.mu.RUnlock()

	var first error
	for _, s := range subs {
		if err := s.OnPolicyChange(ctx, resourceID); err != nil && first == nil {
			first = err
		}
	}
	return first
}
