// Package satellite implements the subscription lifecycle state machine and
// the biomass time-series reducer (§2, §4.3). Grounded on spec.md's
// explicit transition table; gonum.org/v1/gonum/stat.LinearRegression backs
// the reducer's trend slope, consistent with aristath-sentinel's
// pkg/formulas/stats.go regression usage (§2.2 domain stack).
package satellite

import "github.com/harvestguard/ingestcore/internal/domain"

// Event is one lifecycle trigger (§4.3).
type Event string

const (
	EventCreateOK    Event = "create-ok"
	EventCreateFail  Event = "create-fail"
	EventEndReached  Event = "end-reached"
	EventCancel      Event = "cancel-cmd"
	EventPollError   Event = "poll-error"
)

// transitions is the explicit (state, event) -> state table (§4.3, §9
// design note: "a small explicit transition table, not a generalized FSM
// library — none found in the pack for this").
var transitions = map[domain.SubscriptionStatus]map[Event]domain.SubscriptionStatus{
	domain.SubscriptionRequested: {
		EventCreateOK:   domain.SubscriptionActive,
		EventCreateFail: domain.SubscriptionFailed,
	},
	domain.SubscriptionActive: {
		EventEndReached: domain.SubscriptionExpired,
		EventCancel:     domain.SubscriptionCancelled,
		EventPollError:  domain.SubscriptionFailed,
	},
}

// Next applies event to current, returning the next status. A terminal
// current state, or an event with no transition from it, is a no-op
// (idempotent re-sweep, §4.3 "re-running a sweep for a terminal
// subscription is a no-op").
func Next(current domain.SubscriptionStatus, event Event) domain.SubscriptionStatus {
	if current.Terminal() {
		return current
	}
	if byEvent, ok := transitions[current]; ok {
		if next, ok := byEvent[event]; ok {
			return next
		}
	}
	return current
}
