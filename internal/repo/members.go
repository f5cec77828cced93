package repo

import (
	"context"
	"database/sql"

	"reviewdesk/internal/domain"
)

func (r Repo) EnsureActorTx(ctx context.Context, tx *sql.Tx, actorID, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, created_at) VALUES (?,?)`, actorID, now)
	return err
}

func (r Repo) UpsertMembershipTx(ctx context.Context, tx *sql.Tx, m domain.Membership) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO project_members(project_id, actor_id, role, created_at) VALUES (?,?,?,?)
ON CONFLICT(project_id, actor_id) DO UPDATE SET role=excluded.role`,
		m.ProjectID, m.ActorID, string(m.Role), m.CreatedAt)
	return err
}

func (r Repo) RemoveMembership(ctx context.Context, projectID, actorID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM project_members WHERE project_id=? AND actor_id=?`, projectID, actorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListMembers(ctx context.Context, projectID string) ([]domain.Membership, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id, actor_id, role, created_at FROM project_members WHERE project_id=? ORDER BY created_at ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Membership
	for rows.Next() {
		var m domain.Membership
		var role string
		if err := rows.Scan(&m.ProjectID, &m.ActorID, &role, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		res = append(res, m)
	}
	return res, rows.Err()
}

// MemberProjectIDs returns the projects an actor belongs to; used to scope
// client-facing listings.
func (r Repo) MemberProjectIDs(ctx context.Context, actorID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id FROM project_members WHERE actor_id=?`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
