package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"reviewdesk/internal/domain"
	"reviewdesk/internal/events"
	"reviewdesk/internal/notify"
	"reviewdesk/internal/repo"
)

// ErrNotEditable is returned when a metadata edit targets a deliverable that
// is out for review or already past it.
var ErrNotEditable = errors.New("deliverable can only be edited in draft or needs_changes")

// ErrDeliveredLocked is returned when an administrative delete targets a
// delivered deliverable. delivered is terminal and its record is immutable.
var ErrDeliveredLocked = errors.New("delivered deliverables cannot be deleted")

// PermissionError means the actor's role may never perform the operation,
// independent of deliverable state.
type PermissionError struct {
	Role domain.Role
	Op   string
}

func (e PermissionError) Error() string {
	return fmt.Sprintf("role %s cannot %s deliverables", e.Role, e.Op)
}

// Engine runs the deliverable review workflow. Every operation is a single
// transaction: a conditional write guarded by the (status, version) pair read
// at load time, plus the audit note and event rows. Either all of it commits
// or none of it does.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Relay  notify.Relay
	Now    func() time.Time
}

func New(db *sql.DB) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Relay:  notify.NewLogRelay(nil),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// CreateOptions are parameters for creating a deliverable.
type CreateOptions struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	Type        string
	Files       []domain.FileRef
	ActorID     string
	ActorRole   domain.Role
}

// Create inserts a new deliverable in draft at version 1. Only agency staff
// create deliverables.
func (e Engine) Create(ctx context.Context, opts CreateOptions) (domain.Deliverable, error) {
	if opts.ActorRole != domain.RoleAdmin {
		return domain.Deliverable{}, PermissionError{Role: opts.ActorRole, Op: "create"}
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Deliverable{}, ValidationError{Field: "title", Reason: "is required"}
	}
	if opts.ProjectID == "" {
		return domain.Deliverable{}, ValidationError{Field: "project_id", Reason: "is required"}
	}
	if opts.Type == "" {
		opts.Type = "other"
	}
	if !domain.ValidDeliverableType(opts.Type) {
		return domain.Deliverable{}, ValidationError{Field: "type", Reason: "is not a known deliverable type"}
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Deliverable{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.ProjectID+"|"+opts.Title+"|"+now)).String()
	}
	d := domain.Deliverable{
		ID:          id,
		ProjectID:   opts.ProjectID,
		Title:       opts.Title,
		Description: opts.Description,
		Type:        opts.Type,
		Status:      domain.StatusDraft,
		Version:     1,
		Files:       opts.Files,
		CreatedBy:   opts.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Deliverable{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertDeliverableTx(ctx, tx, d); err != nil {
		return domain.Deliverable{}, fmt.Errorf("insert deliverable: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TypeDeliverableCreated, d.ProjectID, "deliverable", d.ID, opts.ActorID, events.EventPayload{
		"title":  d.Title,
		"type":   d.Type,
		"status": d.Status,
	}); err != nil {
		return domain.Deliverable{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Deliverable{}, err
	}
	return d, nil
}

// SubmitForReview moves draft or needs_changes into pending_review. On the
// needs_changes edge the version is bumped; submitted_at is stamped only on
// the first submission.
func (e Engine) SubmitForReview(ctx context.Context, id string, role domain.Role, actorID string) (domain.Deliverable, error) {
	return e.applyTransition(ctx, id, role, actorID, domain.ActionSubmit, "", func(d *domain.Deliverable, now string, from domain.Status) {
		if from == domain.StatusNeedsChanges {
			d.Version++
		}
		if d.SubmittedAt == nil {
			d.SubmittedAt = &now
		}
	})
}

// Approve moves pending_review to approved. The optional message is kept as
// an audit note.
func (e Engine) Approve(ctx context.Context, id string, role domain.Role, actorID, message string) (domain.Deliverable, error) {
	return e.applyTransition(ctx, id, role, actorID, domain.ActionApprove, strings.TrimSpace(message), func(d *domain.Deliverable, now string, _ domain.Status) {
		if d.ApprovedAt == nil {
			d.ApprovedAt = &now
		}
	})
}

// RequestChanges moves pending_review to needs_changes. Feedback is
// mandatory; a blank string never changes state.
func (e Engine) RequestChanges(ctx context.Context, id string, role domain.Role, actorID, feedback string) (domain.Deliverable, error) {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return domain.Deliverable{}, ValidationError{Field: "feedback", Reason: "must not be blank"}
	}
	return e.applyTransition(ctx, id, role, actorID, domain.ActionRequestChanges, feedback, func(d *domain.Deliverable, now string, _ domain.Status) {})
}

// Deliver moves approved to delivered, the terminal state. Final files are
// appended to the existing list so review history is preserved.
func (e Engine) Deliver(ctx context.Context, id string, role domain.Role, actorID, deliveryNotes string, finalFiles []domain.FileRef) (domain.Deliverable, error) {
	return e.applyTransition(ctx, id, role, actorID, domain.ActionDeliver, strings.TrimSpace(deliveryNotes), func(d *domain.Deliverable, now string, _ domain.Status) {
		if d.DeliveredAt == nil {
			d.DeliveredAt = &now
		}
		if len(finalFiles) > 0 {
			d.Files = append(d.Files, finalFiles...)
		}
	})
}

func (e Engine) applyTransition(ctx context.Context, id string, role domain.Role, actorID string, action domain.Action, note string, mutate func(d *domain.Deliverable, now string, from domain.Status)) (domain.Deliverable, error) {
	d, err := e.Repo.GetDeliverable(ctx, id)
	if err != nil {
		return domain.Deliverable{}, err
	}
	if !Allowed(role, d.Status, action) {
		return d, InvalidTransitionError{Role: role, Status: d.Status, Action: action}
	}
	from := d.Status
	expectedVersion := d.Version
	now := e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()

	d.Status = NextStatus(action)
	mutate(&d, now, from)
	d.UpdatedAt = now
	if err := e.Repo.SaveIfMatch(ctx, tx, d, from, expectedVersion); err != nil {
		return d, err
	}
	if note != "" || action == domain.ActionRequestChanges {
		rn := domain.ReviewNote{
			ID:            uuid.New().String(),
			DeliverableID: d.ID,
			Version:       d.Version,
			Action:        action,
			ActorID:       actorID,
			ActorRole:     role,
			Note:          note,
			CreatedAt:     now,
		}
		if err := e.Repo.InsertReviewNoteTx(ctx, tx, rn); err != nil {
			return d, fmt.Errorf("insert review note: %w", err)
		}
	}
	payload := events.EventPayload{
		"from_status": from,
		"to_status":   d.Status,
		"version":     d.Version,
	}
	if note != "" {
		payload["note"] = note
	}
	if err := e.Events.Append(ctx, tx, eventTypeFor(action), d.ProjectID, "deliverable", d.ID, actorID, payload); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	if e.Relay != nil {
		e.Relay.Notify(ctx, actorID, notify.Outcome{
			DeliverableID: d.ID,
			ProjectID:     d.ProjectID,
			Title:         d.Title,
			Action:        action,
			FromStatus:    from,
			ToStatus:      d.Status,
			Version:       d.Version,
			Note:          note,
		})
	}
	return d, nil
}

func eventTypeFor(action domain.Action) string {
	switch action {
	case domain.ActionSubmit:
		return events.TypeDeliverableSubmitted
	case domain.ActionApprove:
		return events.TypeDeliverableApproved
	case domain.ActionRequestChanges:
		return events.TypeDeliverableChangesRequested
	case domain.ActionDeliver:
		return events.TypeDeliverableDelivered
	}
	return events.TypeDeliverableUpdated
}

// UpdateOptions are metadata edits, allowed to agency staff while the
// deliverable is in draft or needs_changes. Status, version, and the
// workflow timestamps are never touched here.
type UpdateOptions struct {
	ID          string
	Title       *string
	Description *string
	Type        *string
	Files       []domain.FileRef
	FilesSet    bool
	ActorID     string
	ActorRole   domain.Role
}

func (e Engine) Update(ctx context.Context, opts UpdateOptions) (domain.Deliverable, error) {
	if opts.ActorRole != domain.RoleAdmin {
		return domain.Deliverable{}, PermissionError{Role: opts.ActorRole, Op: "edit"}
	}
	d, err := e.Repo.GetDeliverable(ctx, opts.ID)
	if err != nil {
		return domain.Deliverable{}, err
	}
	if d.Status != domain.StatusDraft && d.Status != domain.StatusNeedsChanges {
		return d, ErrNotEditable
	}
	if opts.Title != nil {
		if strings.TrimSpace(*opts.Title) == "" {
			return d, ValidationError{Field: "title", Reason: "must not be blank"}
		}
		d.Title = *opts.Title
	}
	if opts.Description != nil {
		d.Description = *opts.Description
	}
	if opts.Type != nil {
		if !domain.ValidDeliverableType(*opts.Type) {
			return d, ValidationError{Field: "type", Reason: "is not a known deliverable type"}
		}
		d.Type = *opts.Type
	}
	if opts.FilesSet {
		d.Files = opts.Files
	}
	expectedStatus, expectedVersion := d.Status, d.Version
	d.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	if err := e.Repo.SaveIfMatch(ctx, tx, d, expectedStatus, expectedVersion); err != nil {
		return d, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeDeliverableUpdated, d.ProjectID, "deliverable", d.ID, opts.ActorID, events.EventPayload{
		"title":  d.Title,
		"status": d.Status,
	}); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	return d, nil
}

// Delete removes a deliverable. This is an administrative capability, not a
// workflow transition; delivered records are kept forever.
func (e Engine) Delete(ctx context.Context, id string, role domain.Role, actorID string) error {
	if role != domain.RoleAdmin {
		return PermissionError{Role: role, Op: "delete"}
	}
	d, err := e.Repo.GetDeliverable(ctx, id)
	if err != nil {
		return err
	}
	if d.Status == domain.StatusDelivered {
		return ErrDeliveredLocked
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteDeliverableTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.TypeDeliverableDeleted, d.ProjectID, "deliverable", d.ID, actorID, events.EventPayload{
		"title":  d.Title,
		"status": d.Status,
	}); err != nil {
		return err
	}
	return tx.Commit()
}
