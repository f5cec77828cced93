package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"reviewdesk/internal/db"
	"reviewdesk/internal/domain"
	"reviewdesk/internal/engine"
	"reviewdesk/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Clock  *time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eng := engine.New(conn)
	eng.Now = func() time.Time { return clock }
	eng.Events.Now = eng.Now
	ctx := context.Background()
	if _, err := eng.InitProject(ctx, "proj-1", "Acme rebrand", "alice"); err != nil {
		t.Fatalf("init project: %v", err)
	}
	if _, err := eng.AddMember(ctx, "proj-1", "carol", domain.RoleClient, "alice"); err != nil {
		t.Fatalf("add client member: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Clock: &clock}
}

func (env testEnv) tick(d time.Duration) {
	*env.Clock = env.Clock.Add(d)
}

func (env testEnv) create(t *testing.T) domain.Deliverable {
	t.Helper()
	d, err := env.Engine.Create(env.Ctx, engine.CreateOptions{
		ProjectID:   "proj-1",
		Title:       "Homepage mockups",
		Description: "First round of homepage designs",
		Type:        "design",
		Files:       []domain.FileRef{{URL: "https://cdn.example.com/mock-v1.png", Name: "mock-v1.png"}},
		ActorID:     "alice",
		ActorRole:   domain.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("create deliverable: %v", err)
	}
	return d
}

func TestFullLifecycle(t *testing.T) {
	env := newTestEnv(t)
	d := env.create(t)
	if d.Status != domain.StatusDraft || d.Version != 1 {
		t.Fatalf("new deliverable: got status=%s version=%d", d.Status, d.Version)
	}

	d, err := env.Engine.SubmitForReview(env.Ctx, d.ID, domain.RoleAdmin, "alice")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if d.Status != domain.StatusPendingReview || d.Version != 1 {
		t.Fatalf("after submit: status=%s version=%d", d.Status, d.Version)
	}
	if d.SubmittedAt == nil {
		t.Fatal("submitted_at not set on first submission")
	}
	firstSubmitted := *d.SubmittedAt

	env.tick(time.Hour)
	d, err = env.Engine.RequestChanges(env.Ctx, d.ID, domain.RoleClient, "carol", "Logo is too small on mobile")
	if err != nil {
		t.Fatalf("request changes: %v", err)
	}
	if d.Status != domain.StatusNeedsChanges || d.Version != 1 {
		t.Fatalf("after request changes: status=%s version=%d", d.Status, d.Version)
	}

	env.tick(time.Hour)
	d, err = env.Engine.SubmitForReview(env.Ctx, d.ID, domain.RoleAdmin, "alice")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if d.Version != 2 {
		t.Fatalf("resubmission must bump version, got %d", d.Version)
	}
	if *d.SubmittedAt != firstSubmitted {
		t.Fatalf("submitted_at overwritten on resubmission: %s != %s", *d.SubmittedAt, firstSubmitted)
	}

	env.tick(time.Hour)
	d, err = env.Engine.Approve(env.Ctx, d.ID, domain.RoleClient, "carol", "Looks great now")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if d.Status != domain.StatusApproved || d.ApprovedAt == nil {
		t.Fatalf("after approve: status=%s approved_at=%v", d.Status, d.ApprovedAt)
	}

	env.tick(time.Hour)
	final := []domain.FileRef{{URL: "https://cdn.example.com/final.zip", Name: "final.zip"}}
	d, err = env.Engine.Deliver(env.Ctx, d.ID, domain.RoleAdmin, "alice", "Full package attached", final)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if d.Status != domain.StatusDelivered || d.DeliveredAt == nil {
		t.Fatalf("after deliver: status=%s delivered_at=%v", d.Status, d.DeliveredAt)
	}
	if len(d.Files) != 2 || d.Files[0].Name != "mock-v1.png" || d.Files[1].Name != "final.zip" {
		t.Fatalf("final files must be appended, got %v", d.Files)
	}

	// delivered is terminal
	if _, err := env.Engine.SubmitForReview(env.Ctx, d.ID, domain.RoleAdmin, "alice"); !engine.IsInvalidTransition(err) {
		t.Fatalf("submit after deliver: want invalid transition, got %v", err)
	}
	if _, err := env.Engine.Approve(env.Ctx, d.ID, domain.RoleClient, "carol", ""); !engine.IsInvalidTransition(err) {
		t.Fatalf("approve after deliver: want invalid transition, got %v", err)
	}
}

func TestRoleGating(t *testing.T) {
	env := newTestEnv(t)
	d := env.create(t)

	// clients never submit, admins never review
	if _, err := env.Engine.SubmitForReview(env.Ctx, d.ID, domain.RoleClient, "carol"); !engine.IsInvalidTransition(err) {
		t.Fatalf("client submit: want invalid transition, got %v", err)
	}
	if _, err := env.Engine.Approve(env.Ctx, d.ID, domain.RoleClient, "carol", ""); !engine.IsInvalidTransition(err) {
		t.Fatalf("approve in draft: want invalid transition, got %v", err)
	}

	d, err := env.Engine.SubmitForReview(env.Ctx, d.ID, domain.RoleAdmin, "alice")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.Approve(env.Ctx, d.ID, domain.RoleAdmin, "alice", ""); !engine.IsInvalidTransition(err) {
		t.Fatalf("admin approve: want invalid transition, got %v", err)
	}
	if _, err := env.Engine.RequestChanges(env.Ctx, d.ID, domain.RoleAdmin, "alice", "self review"); !engine.IsInvalidTransition(err) {
		t.Fatalf("admin request changes: want invalid transition, got %v", err)
	}
	if _, err := env.Engine.Deliver(env.Ctx, d.ID, domain.RoleAdmin, "alice", "", nil); !engine.IsInvalidTransition(err) {
		t.Fatalf("deliver before approval: want invalid transition, got %v", err)
	}
}

func TestBlankFeedbackRejected(t *testing.T) {
	env := newTestEnv(t)
	d := env.create(t)
	d, err := env.Engine.SubmitForReview(env.Ctx, d.ID, domain.RoleAdmin, "alice")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	for _, feedback := range []string{"", "   ", "\n\t"} {
		if _, err := env.Engine.RequestChanges(env.Ctx, d.ID, domain.RoleClient, "carol", feedback); !engine.IsValidation(err) {
			t.Fatalf("feedback %q: want validation error, got %v", feedback, err)
		}
	}

	got, err := env.Engine.Repo.GetDeliverable(env.Ctx, d.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != domain.StatusPendingReview {
		t.Fatalf("blank feedback must not change status, got %s", got.Status)
	}
	notes, err := env.Engine.Repo.ListReviewNotes(env.Ctx, d.ID)
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("blank feedback must not leave notes, got %d", len(notes))
	}
}

func TestFeedbackPersistedAsNote(t *testing.T) {
	env := newTestEnv(t)
	d := env.create(t)
	if _, err := env.Engine.SubmitForReview(env.Ctx, d.ID, domain.RoleAdmin, "alice"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.RequestChanges(env.Ctx, d.ID, domain.RoleClient, "carol", "  Needs more contrast  "); err != nil {
		t.Fatalf("request changes: %v", err)
	}

	notes, err := env.Engine.Repo.ListReviewNotes(env.Ctx, d.ID)
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("want 1 note, got %d", len(notes))
	}
	n := notes[0]
	if n.Note != "Needs more contrast" {
		t.Fatalf("note must carry trimmed feedback, got %q", n.Note)
	}
	if n.Action != domain.ActionRequestChanges || n.ActorID != "carol" || n.ActorRole != domain.RoleClient || n.Version != 1 {
		t.Fatalf("note metadata: %+v", n)
	}
}

func TestEventsAppendedPerTransition(t *testing.T) {
	env := newTestEnv(t)
	d := env.create(t)
	if _, err := env.Engine.SubmitForReview(env.Ctx, d.ID, domain.RoleAdmin, "alice"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.RequestChanges(env.Ctx, d.ID, domain.RoleClient, "carol", "tweak colors"); err != nil {
		t.Fatalf("request changes: %v", err)
	}

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "proj-1", "", d.ID)
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	if len(evts) != 3 {
		t.Fatalf("want 3 deliverable events, got %d", len(evts))
	}
	// newest first
	wantTypes := []string{"deliverable.changes_requested", "deliverable.submitted", "deliverable.created"}
	for i, want := range wantTypes {
		if evts[i].Type != want {
			t.Fatalf("event %d: want %s, got %s", i, want, evts[i].Type)
		}
	}
	if !strings.Contains(evts[0].Payload, `"from_status":"pending_review"`) ||
		!strings.Contains(evts[0].Payload, `"to_status":"needs_changes"`) {
		t.Fatalf("transition payload missing statuses: %s", evts[0].Payload)
	}

	// failed transition leaves no event behind
	if _, err := env.Engine.Deliver(env.Ctx, d.ID, domain.RoleAdmin, "alice", "", nil); !engine.IsInvalidTransition(err) {
		t.Fatalf("deliver from needs_changes: want invalid transition, got %v", err)
	}
	evts, err = env.Engine.Repo.LatestEvents(env.Ctx, 10, "proj-1", "", d.ID)
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	if len(evts) != 3 {
		t.Fatalf("rejected transition must not emit events, got %d", len(evts))
	}
}

func TestUpdateOnlyWhileEditable(t *testing.T) {
	env := newTestEnv(t)
	d := env.create(t)

	title := "Homepage mockups v2"
	d, err := env.Engine.Update(env.Ctx, engine.UpdateOptions{ID: d.ID, Title: &title, ActorID: "alice", ActorRole: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("update draft: %v", err)
	}
	if d.Title != title {
		t.Fatalf("title not updated: %s", d.Title)
	}

	if _, err := env.Engine.SubmitForReview(env.Ctx, d.ID, domain.RoleAdmin, "alice"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.Update(env.Ctx, engine.UpdateOptions{ID: d.ID, Title: &title, ActorID: "alice", ActorRole: domain.RoleAdmin}); !errors.Is(err, engine.ErrNotEditable) {
		t.Fatalf("update pending_review: want ErrNotEditable, got %v", err)
	}

	var perm engine.PermissionError
	if _, err := env.Engine.Update(env.Ctx, engine.UpdateOptions{ID: d.ID, Title: &title, ActorID: "carol", ActorRole: domain.RoleClient}); !errors.As(err, &perm) {
		t.Fatalf("client update: want permission error, got %v", err)
	}
}

func TestDeleteRules(t *testing.T) {
	env := newTestEnv(t)
	d := env.create(t)

	var perm engine.PermissionError
	if err := env.Engine.Delete(env.Ctx, d.ID, domain.RoleClient, "carol"); !errors.As(err, &perm) {
		t.Fatalf("client delete: want permission error, got %v", err)
	}

	// run a deliverable to terminal state
	if _, err := env.Engine.SubmitForReview(env.Ctx, d.ID, domain.RoleAdmin, "alice"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.Approve(env.Ctx, d.ID, domain.RoleClient, "carol", ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := env.Engine.Deliver(env.Ctx, d.ID, domain.RoleAdmin, "alice", "", nil); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if err := env.Engine.Delete(env.Ctx, d.ID, domain.RoleAdmin, "alice"); !errors.Is(err, engine.ErrDeliveredLocked) {
		t.Fatalf("delete delivered: want ErrDeliveredLocked, got %v", err)
	}

	d2 := env.create(t)
	if err := env.Engine.Delete(env.Ctx, d2.ID, domain.RoleAdmin, "alice"); err != nil {
		t.Fatalf("delete draft: %v", err)
	}
	if _, err := env.Engine.Repo.GetDeliverable(env.Ctx, d2.ID); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("after delete: want ErrNotFound, got %v", err)
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.SubmitForReview(env.Ctx, "missing", domain.RoleAdmin, "alice"); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := env.Engine.Approve(env.Ctx, "missing", domain.RoleClient, "carol", ""); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.Engine.Create(env.Ctx, engine.CreateOptions{ProjectID: "proj-1", Title: "x", ActorID: "carol", ActorRole: domain.RoleClient}); err == nil {
		t.Fatal("client create must fail")
	}
	if _, err := env.Engine.Create(env.Ctx, engine.CreateOptions{ProjectID: "proj-1", Title: "  ", ActorID: "alice", ActorRole: domain.RoleAdmin}); !engine.IsValidation(err) {
		t.Fatalf("blank title: want validation error, got %v", err)
	}
	if _, err := env.Engine.Create(env.Ctx, engine.CreateOptions{ProjectID: "proj-1", Title: "x", Type: "hologram", ActorID: "alice", ActorRole: domain.RoleAdmin}); !engine.IsValidation(err) {
		t.Fatalf("unknown type: want validation error, got %v", err)
	}
	if _, err := env.Engine.Create(env.Ctx, engine.CreateOptions{ProjectID: "ghost", Title: "x", ActorID: "alice", ActorRole: domain.RoleAdmin}); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("unknown project: want ErrNotFound, got %v", err)
	}
}
