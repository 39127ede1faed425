package satellite

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harvestguard/ingestcore/internal/domain"
)

func TestLifecycleHappyPath(t *testing.T) {
	s := domain.SubscriptionRequested
	s = Next(s, EventCreateOK)
	assert.Equal(t, domain.SubscriptionActive, s)

	s = Next(s, EventEndReached)
	assert.Equal(t, domain.SubscriptionExpired, s)
}

func TestLifecycleCreateFailIsTerminal(t *testing.T) {
	s := Next(domain.SubscriptionRequested, EventCreateFail)
	assert.Equal(t, domain.SubscriptionFailed, s)
}

func TestLifecycleCancel(t *testing.T) {
	s := Next(domain.SubscriptionActive, EventCancel)
	assert.Equal(t, domain.SubscriptionCancelled, s)
}

func TestLifecycleTerminalSweepIsNoOp(t *testing.T) {
	s := Next(domain.SubscriptionExpired, EventPollError)
	assert.Equal(t, domain.SubscriptionExpired, s)

	s = Next(domain.SubscriptionCancelled, EventEndReached)
	assert.Equal(t, domain.SubscriptionCancelled, s)
}

func TestLifecyclePersistentPollError(t *testing.T) {
	s := Next(domain.SubscriptionActive, EventPollError)
	assert.Equal(t, domain.SubscriptionFailed, s)
}
