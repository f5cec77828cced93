package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"reviewdesk/internal/domain"
)

func TestLogRelayNotify(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	relay := NewLogRelay(zap.New(core))

	relay.Notify(context.Background(), "carol", Outcome{
		DeliverableID: "d-1",
		ProjectID:     "proj-1",
		Title:         "Homepage mockup",
		Action:        domain.ActionSubmit,
		FromStatus:    domain.StatusDraft,
		ToStatus:      domain.StatusPendingReview,
		Version:       1,
	})

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "carol", fields["actor_id"])
		assert.Equal(t, "d-1", fields["deliverable_id"])
		assert.Equal(t, "submit", fields["action"])
		assert.Equal(t, "pending_review", fields["to_status"])
	}
}

func TestFanout(t *testing.T) {
	core1, logs1 := observer.New(zap.InfoLevel)
	core2, logs2 := observer.New(zap.InfoLevel)
	relay := Fanout{NewLogRelay(zap.New(core1)), NewLogRelay(zap.New(core2))}

	relay.Notify(context.Background(), "alice", Outcome{DeliverableID: "d-2", Action: domain.ActionApprove})

	assert.Equal(t, 1, logs1.Len())
	assert.Equal(t, 1, logs2.Len())
}

func TestNewLogRelayNilLogger(t *testing.T) {
	relay := NewLogRelay(nil)
	assert.NotNil(t, relay.Log)
	relay.Notify(context.Background(), "alice", Outcome{})
}
