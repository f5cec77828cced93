package engine

import "reviewdesk/internal/domain"

// The permission table is the single authority on who may move a deliverable
// where. UI surfaces may hide or show controls however they like; a request
// that is not in this table is rejected here regardless.
//
//	submit          admin   draft
//	submit          admin   needs_changes   (resubmit; bumps version)
//	approve         client  pending_review
//	request_changes client  pending_review
//	deliver         admin   approved
type transition struct {
	Role   domain.Role
	Status domain.Status
	Action domain.Action
}

var allowedTransitions = map[transition]struct{}{
	{domain.RoleAdmin, domain.StatusDraft, domain.ActionSubmit}:                  {},
	{domain.RoleAdmin, domain.StatusNeedsChanges, domain.ActionSubmit}:           {},
	{domain.RoleClient, domain.StatusPendingReview, domain.ActionApprove}:        {},
	{domain.RoleClient, domain.StatusPendingReview, domain.ActionRequestChanges}: {},
	{domain.RoleAdmin, domain.StatusApproved, domain.ActionDeliver}:              {},
}

// Allowed reports whether role may perform action on a deliverable currently
// in status. Pure; no I/O.
func Allowed(role domain.Role, status domain.Status, action domain.Action) bool {
	_, ok := allowedTransitions[transition{role, status, action}]
	return ok
}

// NextStatus returns the status an action produces. It only makes sense for
// actions present in the permission table.
func NextStatus(action domain.Action) domain.Status {
	switch action {
	case domain.ActionSubmit:
		return domain.StatusPendingReview
	case domain.ActionApprove:
		return domain.StatusApproved
	case domain.ActionRequestChanges:
		return domain.StatusNeedsChanges
	case domain.ActionDeliver:
		return domain.StatusDelivered
	}
	return ""
}
