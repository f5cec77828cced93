package repo

import (
	"context"
	"database/sql"

	"reviewdesk/internal/domain"
)

func (r Repo) InsertReviewNoteTx(ctx context.Context, tx *sql.Tx, n domain.ReviewNote) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO review_notes(id,deliverable_id,version,action,actor_id,actor_role,note,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, n.DeliverableID, n.Version, string(n.Action), n.ActorID, string(n.ActorRole), n.Note, n.CreatedAt)
	return err
}

// ListReviewNotes returns the transition audit trail for a deliverable,
// oldest first.
func (r Repo) ListReviewNotes(ctx context.Context, deliverableID string) ([]domain.ReviewNote, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,deliverable_id,version,action,actor_id,actor_role,note,created_at
FROM review_notes WHERE deliverable_id=? ORDER BY created_at ASC, id ASC`, deliverableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ReviewNote
	for rows.Next() {
		var n domain.ReviewNote
		var action, role string
		if err := rows.Scan(&n.ID, &n.DeliverableID, &n.Version, &action, &n.ActorID, &role, &n.Note, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Action = domain.Action(action)
		n.ActorRole = domain.Role(role)
		res = append(res, n)
	}
	return res, rows.Err()
}
