package engine

import (
	"context"
	"fmt"
	"time"

	"reviewdesk/internal/domain"
	"reviewdesk/internal/events"
)

// InitProject creates a project and enrolls the creating actor as its admin.
func (e Engine) InitProject(ctx context.Context, id, name, actorID string) (domain.Project, error) {
	if id == "" {
		return domain.Project{}, ValidationError{Field: "id", Reason: "is required"}
	}
	now := e.now().UTC().Format(time.RFC3339)
	p := domain.Project{
		ID:        id,
		Name:      name,
		Status:    "active",
		CreatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if actorID != "" {
		if err := e.Repo.EnsureActorTx(ctx, tx, actorID, now); err != nil {
			return domain.Project{}, err
		}
		if err := e.Repo.UpsertMembershipTx(ctx, tx, domain.Membership{
			ProjectID: id,
			ActorID:   actorID,
			Role:      domain.RoleAdmin,
			CreatedAt: now,
		}); err != nil {
			return domain.Project{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, events.TypeProjectCreated, id, "project", id, actorID, events.EventPayload{
		"name": name,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// AddMember enrolls an actor into a project with a role. Re-adding an
// existing member updates the role.
func (e Engine) AddMember(ctx context.Context, projectID, actorID string, role domain.Role, requestedBy string) (domain.Membership, error) {
	if role != domain.RoleAdmin && role != domain.RoleClient {
		return domain.Membership{}, ValidationError{Field: "role", Reason: "must be admin or client"}
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.Membership{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	m := domain.Membership{
		ProjectID: projectID,
		ActorID:   actorID,
		Role:      role,
		CreatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Membership{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureActorTx(ctx, tx, actorID, now); err != nil {
		return domain.Membership{}, err
	}
	if err := e.Repo.UpsertMembershipTx(ctx, tx, m); err != nil {
		return domain.Membership{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeMemberAdded, projectID, "member", actorID, requestedBy, events.EventPayload{
		"role": role,
	}); err != nil {
		return domain.Membership{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Membership{}, err
	}
	return m, nil
}
