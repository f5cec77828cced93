package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reviewdesk/internal/config"
	"reviewdesk/internal/domain"
	"reviewdesk/internal/repo"
)

// ResolveProject picks the active project for a CLI invocation. It prefers
// the override flag, then the workspace config, then a single-project DB.
// If the project does not exist yet, it is created on the fly with the
// invoking actor as its admin.
func ResolveProject(ctx context.Context, workspace, projectOverride, actorID string, r repo.Repo) (string, *config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}
	projectID := projectOverride
	if projectID == "" && cfg != nil {
		projectID = cfg.Project.ID
	}
	if projectID == "" {
		if p, err := r.SingleProject(ctx); err == nil {
			projectID = p.ID
		} else {
			return "", nil, fmt.Errorf("project not specified; use --project")
		}
	}
	if cfg == nil {
		cfg = config.Default(projectID)
	}
	cfg.Project.ID = projectID

	if _, err := r.GetProject(ctx, projectID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createProject(ctx, r, projectID, cfg.Project.Name, actorID); err != nil {
			return "", nil, err
		}
	}
	return projectID, cfg, nil
}

// createProject inserts a minimal project footprint with the actor enrolled
// as admin.
func createProject(ctx context.Context, r repo.Repo, projectID, name, actorID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	p := domain.Project{
		ID:        projectID,
		Name:      name,
		Status:    "active",
		CreatedAt: now,
	}
	if err := r.InsertProjectTx(ctx, tx, p); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	if actorID == "" {
		actorID = "local-user"
	}
	if err := r.EnsureActorTx(ctx, tx, actorID, now); err != nil {
		return fmt.Errorf("ensure actor: %w", err)
	}
	if err := r.UpsertMembershipTx(ctx, tx, domain.Membership{
		ProjectID: projectID,
		ActorID:   actorID,
		Role:      domain.RoleAdmin,
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("enroll admin: %w", err)
	}
	return tx.Commit()
}
