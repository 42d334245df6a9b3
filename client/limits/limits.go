// Package limits evaluates subscription usage against plan limits for
// every tracked resource. All limit checks in the application run through
// this one component so the comparison logic cannot diverge per screen.
// The verdicts are a UX convenience only; the backend re-validates limits
// on every create call.
package limits

import (
	"context"
	"fmt"
	"sync"

	"ainstein.io/client/gateway"
	"ainstein.io/prm"
)

// Evaluator fetches the subscription for an organization and reports, per
// resource, whether one more unit may be created.
type Evaluator struct {
	gw          *gateway.Gateway
	safeDefault bool

	mu      sync.Mutex
	gen     uint64
	orgID   string
	loading bool
	err     error
	plan    *prm.SubscriptionPlan
}

// Option configures the Evaluator.
type Option func(*Evaluator)

// WithSafeDefault sets the verdict used when the subscription cannot be
// loaded. The default is false: create actions stay disabled on error.
func WithSafeDefault(allow bool) Option {
	return func(e *Evaluator) { e.safeDefault = allow }
}

// NewEvaluator constructs an Evaluator with no data loaded.
func NewEvaluator(gw *gateway.Gateway, opts ...Option) *Evaluator {
	e := &Evaluator{gw: gw}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load fetches the subscription for the organization. It always hits the
// backend, even for the organization already loaded; there is no cross-call
// cache. A fetch failure is captured as a terminal error state, never
// returned as a panic or propagated to dependent screens.
func (e *Evaluator) Load(ctx context.Context, orgID string) {
	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.orgID = orgID
	e.loading = true
	e.err = nil
	e.plan = nil
	e.mu.Unlock()

	var plan prm.SubscriptionPlan
	err := e.gw.Get(ctx, fmt.Sprintf("/v1/organizations/%s/subscription", orgID), &plan)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		// A newer Load superseded this one; drop the stale result.
		return
	}
	e.loading = false
	if err != nil {
		e.err = err
		return
	}
	e.plan = &plan
}

// Snapshot is an immutable view of the evaluator at one point in time.
type Snapshot struct {
	OrgID   string
	Loading bool
	Err     error

	plan        *prm.SubscriptionPlan
	safeDefault bool
}

// Snapshot returns the current state. While Loading is true every CanAdd
// verdict is false so dependent create actions stay disabled rather than
// optimistically enabled.
func (e *Evaluator) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		OrgID:       e.orgID,
		Loading:     e.loading,
		Err:         e.err,
		plan:        e.plan,
		safeDefault: e.safeDefault,
	}
}

// CanAdd reports whether one more unit of the resource may be created:
// strictly usage.current < features.limit. During loading it is always
// false; in the error state it is the configured safe default.
func (s Snapshot) CanAdd(r prm.Resource) bool {
	if s.Loading {
		return false
	}
	if s.Err != nil || s.plan == nil {
		return s.safeDefault
	}
	return s.plan.CanAdd(r)
}

// Plan returns the loaded subscription, if any.
func (s Snapshot) Plan() (prm.SubscriptionPlan, bool) {
	if s.plan == nil {
		return prm.SubscriptionPlan{}, false
	}
	return *s.plan, true
}
