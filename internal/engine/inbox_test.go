package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewdesk/internal/domain"
	"reviewdesk/internal/engine"
)

func TestBuildInbox(t *testing.T) {
	mk := func(id string, status domain.Status) domain.Deliverable {
		return domain.Deliverable{ID: id, Status: status}
	}
	items := []domain.Deliverable{
		mk("d1", domain.StatusDraft),
		mk("d2", domain.StatusPendingReview),
		mk("d3", domain.StatusNeedsChanges),
		mk("d4", domain.StatusApproved),
		mk("d5", domain.StatusDelivered),
		mk("d6", domain.StatusPendingReview),
	}

	t.Run("client sees pending reviews", func(t *testing.T) {
		inbox := engine.BuildInbox(items, domain.RoleClient)
		require.Len(t, inbox, 2)
		assert.Equal(t, "d2", inbox[0].Deliverable.ID)
		assert.Equal(t, "d6", inbox[1].Deliverable.ID)
		for _, item := range inbox {
			assert.Equal(t, "awaiting your review", item.Reason)
		}
	})

	t.Run("admin sees revisions and approved", func(t *testing.T) {
		inbox := engine.BuildInbox(items, domain.RoleAdmin)
		require.Len(t, inbox, 2)
		assert.Equal(t, "d3", inbox[0].Deliverable.ID)
		assert.Equal(t, "awaiting revision", inbox[0].Reason)
		assert.Equal(t, "d4", inbox[1].Deliverable.ID)
		assert.Equal(t, "ready to deliver", inbox[1].Reason)
	})

	t.Run("empty input yields empty inbox", func(t *testing.T) {
		assert.Empty(t, engine.BuildInbox(nil, domain.RoleClient))
		assert.Empty(t, engine.BuildInbox(nil, domain.RoleAdmin))
	})
}
