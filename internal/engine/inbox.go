package engine

import "reviewdesk/internal/domain"

// InboxItem is a deliverable surfaced to an actor because it is waiting on
// their side of the workflow.
type InboxItem struct {
	Deliverable domain.Deliverable `json:"deliverable"`
	Reason      string             `json:"reason" doc:"Why the item is in the inbox"`
}

// BuildInbox projects a set of deliverables into the list waiting on the
// given role. Clients see what is out for their review; agency staff see
// items bounced back for revision and approved items ready to ship. The
// projection is pure: it derives entirely from status and writes nothing.
func BuildInbox(items []domain.Deliverable, role domain.Role) []InboxItem {
	out := []InboxItem{}
	for _, d := range items {
		switch role {
		case domain.RoleClient:
			if d.Status == domain.StatusPendingReview {
				out = append(out, InboxItem{Deliverable: d, Reason: "awaiting your review"})
			}
		case domain.RoleAdmin:
			switch d.Status {
			case domain.StatusNeedsChanges:
				out = append(out, InboxItem{Deliverable: d, Reason: "awaiting revision"})
			case domain.StatusApproved:
				out = append(out, InboxItem{Deliverable: d, Reason: "ready to deliver"})
			}
		}
	}
	return out
}
