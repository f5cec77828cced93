package repo_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"reviewdesk/internal/db"
	"reviewdesk/internal/domain"
	"reviewdesk/internal/migrate"
	"reviewdesk/internal/repo"
)

func newTestRepo(t *testing.T) (repo.Repo, *sql.DB) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}, conn
}

func seedProject(t *testing.T, r repo.Repo, conn *sql.DB, id string) {
	t.Helper()
	ctx := context.Background()
	tx, err := conn.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	p := domain.Project{ID: id, Name: id, Status: "active", CreatedAt: "2024-01-01T00:00:00Z"}
	if err := r.InsertProjectTx(ctx, tx, p); err != nil {
		t.Fatalf("insert project: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func seedDeliverable(t *testing.T, r repo.Repo, conn *sql.DB, d domain.Deliverable) {
	t.Helper()
	ctx := context.Background()
	tx, err := conn.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := r.InsertDeliverableTx(ctx, tx, d); err != nil {
		t.Fatalf("insert deliverable: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func draftDeliverable(id, projectID, createdAt string) domain.Deliverable {
	return domain.Deliverable{
		ID:        id,
		ProjectID: projectID,
		Title:     "Deliverable " + id,
		Type:      "design",
		Status:    domain.StatusDraft,
		Version:   1,
		CreatedBy: "alice",
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestSaveIfMatchLostRace(t *testing.T) {
	r, conn := newTestRepo(t)
	ctx := context.Background()
	seedProject(t, r, conn, "proj-1")
	seedDeliverable(t, r, conn, draftDeliverable("d1", "proj-1", "2024-01-01T00:00:00Z"))

	loaded, err := r.GetDeliverable(ctx, "d1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// first writer wins
	tx, err := conn.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	first := loaded
	first.Status = domain.StatusPendingReview
	if err := r.SaveIfMatch(ctx, tx, first, loaded.Status, loaded.Version); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// second writer holds the same stale read and must lose
	tx, err = conn.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	second := loaded
	second.Title = "edited against stale state"
	err = r.SaveIfMatch(ctx, tx, second, loaded.Status, loaded.Version)
	if !errors.Is(err, repo.ErrConcurrentModification) {
		t.Fatalf("stale save: want ErrConcurrentModification, got %v", err)
	}

	got, err := r.GetDeliverable(ctx, "d1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != domain.StatusPendingReview || got.Title == second.Title {
		t.Fatalf("loser must not write: status=%s title=%q", got.Status, got.Title)
	}
}

func TestSaveIfMatchNotFound(t *testing.T) {
	r, conn := newTestRepo(t)
	ctx := context.Background()
	tx, err := conn.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	err = r.SaveIfMatch(ctx, tx, draftDeliverable("ghost", "proj-1", "2024-01-01T00:00:00Z"), domain.StatusDraft, 1)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListDeliverablesFiltersAndPagination(t *testing.T) {
	r, conn := newTestRepo(t)
	ctx := context.Background()
	seedProject(t, r, conn, "proj-1")
	seedProject(t, r, conn, "proj-2")
	for i := 1; i <= 5; i++ {
		d := draftDeliverable(fmt.Sprintf("a%d", i), "proj-1", fmt.Sprintf("2024-01-0%dT00:00:00Z", i))
		seedDeliverable(t, r, conn, d)
	}
	other := draftDeliverable("b1", "proj-2", "2024-01-06T00:00:00Z")
	other.Status = domain.StatusPendingReview
	seedDeliverable(t, r, conn, other)

	// newest first, limited
	page, err := r.ListDeliverables(ctx, repo.DeliverableFilters{ProjectID: "proj-1", Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].ID != "a5" || page[1].ID != "a4" {
		t.Fatalf("first page: %v", ids(page))
	}

	// cursor continues after the last row of the page
	last := page[len(page)-1]
	page, err = r.ListDeliverables(ctx, repo.DeliverableFilters{
		ProjectID:       "proj-1",
		Limit:           10,
		CursorCreatedAt: last.CreatedAt,
		CursorID:        last.ID,
	})
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(page) != 3 || page[0].ID != "a3" || page[2].ID != "a1" {
		t.Fatalf("second page: %v", ids(page))
	}

	// status filter
	page, err = r.ListDeliverables(ctx, repo.DeliverableFilters{Status: domain.StatusPendingReview, Limit: 10})
	if err != nil {
		t.Fatalf("status filter: %v", err)
	}
	if len(page) != 1 || page[0].ID != "b1" {
		t.Fatalf("status filter: %v", ids(page))
	}

	// visibility scope
	page, err = r.ListDeliverables(ctx, repo.DeliverableFilters{ProjectIDs: []string{"proj-2"}, Limit: 10})
	if err != nil {
		t.Fatalf("scope filter: %v", err)
	}
	if len(page) != 1 || page[0].ID != "b1" {
		t.Fatalf("scope filter: %v", ids(page))
	}
}

func ids(ds []domain.Deliverable) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.ID
	}
	return out
}

func TestMembershipScope(t *testing.T) {
	r, conn := newTestRepo(t)
	ctx := context.Background()
	seedProject(t, r, conn, "proj-1")
	seedProject(t, r, conn, "proj-2")

	tx, err := conn.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	now := "2024-01-01T00:00:00Z"
	if err := r.EnsureActorTx(ctx, tx, "carol", now); err != nil {
		t.Fatalf("ensure actor: %v", err)
	}
	for _, pid := range []string{"proj-1", "proj-2"} {
		if err := r.UpsertMembershipTx(ctx, tx, domain.Membership{ProjectID: pid, ActorID: "carol", Role: domain.RoleClient, CreatedAt: now}); err != nil {
			t.Fatalf("upsert membership: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	scope, err := r.MemberProjectIDs(ctx, "carol")
	if err != nil {
		t.Fatalf("member projects: %v", err)
	}
	if len(scope) != 2 {
		t.Fatalf("want 2 projects, got %v", scope)
	}

	if err := r.RemoveMembership(ctx, "proj-2", "carol"); err != nil {
		t.Fatalf("remove membership: %v", err)
	}
	scope, err = r.MemberProjectIDs(ctx, "carol")
	if err != nil {
		t.Fatalf("member projects: %v", err)
	}
	if len(scope) != 1 || scope[0] != "proj-1" {
		t.Fatalf("want [proj-1], got %v", scope)
	}
}

func TestAPIKeyLookup(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	key := domain.APIKey{
		ID:        "k1",
		ActorID:   "alice",
		Role:      domain.RoleAdmin,
		Name:      "ci",
		KeyHash:   repo.HashAPIKey("secret-token"),
		CreatedAt: "2024-01-01T00:00:00Z",
	}
	if err := r.InsertAPIKey(ctx, key); err != nil {
		t.Fatalf("insert key: %v", err)
	}

	got, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey("secret-token"))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ActorID != "alice" || got.Role != domain.RoleAdmin {
		t.Fatalf("lookup: %+v", got)
	}

	if _, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey("wrong")); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
