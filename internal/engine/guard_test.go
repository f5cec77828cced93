package engine_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"reviewdesk/internal/domain"
	"reviewdesk/internal/engine"
)

func TestAllowedTransitions(t *testing.T) {
	type tr struct {
		role   domain.Role
		status domain.Status
		action domain.Action
	}
	allowed := map[tr]bool{
		{domain.RoleAdmin, domain.StatusDraft, domain.ActionSubmit}:               true,
		{domain.RoleAdmin, domain.StatusNeedsChanges, domain.ActionSubmit}:        true,
		{domain.RoleClient, domain.StatusPendingReview, domain.ActionApprove}:     true,
		{domain.RoleClient, domain.StatusPendingReview, domain.ActionRequestChanges}: true,
		{domain.RoleAdmin, domain.StatusApproved, domain.ActionDeliver}:           true,
	}

	roles := []domain.Role{domain.RoleAdmin, domain.RoleClient}
	statuses := []domain.Status{
		domain.StatusDraft, domain.StatusPendingReview, domain.StatusNeedsChanges,
		domain.StatusApproved, domain.StatusDelivered,
	}
	actions := []domain.Action{
		domain.ActionSubmit, domain.ActionApprove, domain.ActionRequestChanges, domain.ActionDeliver,
	}

	for _, role := range roles {
		for _, status := range statuses {
			for _, action := range actions {
				name := fmt.Sprintf("%s/%s/%s", role, status, action)
				t.Run(name, func(t *testing.T) {
					want := allowed[tr{role, status, action}]
					assert.Equal(t, want, engine.Allowed(role, status, action))
				})
			}
		}
	}
}

func TestDeliveredIsTerminal(t *testing.T) {
	for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleClient} {
		for _, action := range []domain.Action{
			domain.ActionSubmit, domain.ActionApprove, domain.ActionRequestChanges, domain.ActionDeliver,
		} {
			assert.False(t, engine.Allowed(role, domain.StatusDelivered, action),
				"%s must not %s a delivered deliverable", role, action)
		}
	}
}

func TestNextStatus(t *testing.T) {
	assert.Equal(t, domain.StatusPendingReview, engine.NextStatus(domain.ActionSubmit))
	assert.Equal(t, domain.StatusApproved, engine.NextStatus(domain.ActionApprove))
	assert.Equal(t, domain.StatusNeedsChanges, engine.NextStatus(domain.ActionRequestChanges))
	assert.Equal(t, domain.StatusDelivered, engine.NextStatus(domain.ActionDeliver))
}
