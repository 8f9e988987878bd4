package enums

// PlanStatus controls whether a plan can be attached to new subscriptions.
// Retired plans keep serving the subscriptions already bound to them.
type PlanStatus string

const (
	PlanStatusActive  PlanStatus = "active"
	PlanStatusHidden  PlanStatus = "hidden"
	PlanStatusRetired PlanStatus = "retired"
)

var planStatuses = []PlanStatus{PlanStatusActive, PlanStatusHidden, PlanStatusRetired}

func (p PlanStatus) String() string { return string(p) }
func (p PlanStatus) IsValid() bool  { return oneOf(p, planStatuses) }

// Assignable reports whether admins may bind new subscriptions to the plan.
// Hidden plans are assignable but left out of public listings.
func (p PlanStatus) Assignable() bool {
	return p == PlanStatusActive || p == PlanStatusHidden
}

func ParsePlanStatus(value string) (PlanStatus, error) {
	return parse(value, planStatuses, "plan status")
}

// SubscriptionStatus tracks whether a user's plan binding is in force.
// Subscriptions are provisioned by campus admins, so there is no billing
// state here; a suspended subscription is an administrative hold.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
	SubscriptionStatusCanceled  SubscriptionStatus = "canceled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

var subscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusActive,
	SubscriptionStatusSuspended,
	SubscriptionStatusCanceled,
	SubscriptionStatusExpired,
}

func (s SubscriptionStatus) String() string { return string(s) }
func (s SubscriptionStatus) IsValid() bool  { return oneOf(s, subscriptionStatuses) }

// Entitles reports whether the subscription's plan limits apply. Anything
// else falls back to the free plan.
func (s SubscriptionStatus) Entitles() bool {
	return s == SubscriptionStatusActive
}

func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	return parse(value, subscriptionStatuses, "subscription status")
}
