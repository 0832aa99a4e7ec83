package repository

import (
	"context"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"resultmarketing-crm/client/internal/contacts/domain"
	"resultmarketing-crm/client/internal/db"
	"resultmarketing-crm/client/internal/db/migrate"
)

func TestListFilter(t *testing.T) {
	where, args := listFilter("u1", domain.ListOptions{})
	if where != "user_id = $1" {
		t.Errorf("where = %q", where)
	}
	if !reflect.DeepEqual(args, []interface{}{"u1"}) {
		t.Errorf("args = %v", args)
	}

	where, args = listFilter("u1", domain.ListOptions{Search: "50%_off", Category: "Client"})
	want := "user_id = $1 AND (name ILIKE $2 OR email ILIKE $2 OR company ILIKE $2 OR phone ILIKE $2) AND category = $3"
	if where != want {
		t.Errorf("where = %q, want %q", where, want)
	}
	if !reflect.DeepEqual(args, []interface{}{"u1", `%50\%\_off%`, "Client"}) {
		t.Errorf("args = %v", args)
	}
}

func TestPatchAssignments(t *testing.T) {
	sets, args := patchAssignments(domain.ContactPatch{})
	if len(sets) != 0 || len(args) != 0 {
		t.Errorf("empty patch produced %v %v", sets, args)
	}

	name, fav := " Sarah Lee ", true
	sets, args = patchAssignments(domain.ContactPatch{Name: &name, IsFavorite: &fav})
	if !reflect.DeepEqual(sets, []string{"name = $1", "is_favorite = $2"}) {
		t.Errorf("sets = %v", sets)
	}
	if !reflect.DeepEqual(args, []interface{}{"Sarah Lee", true}) {
		t.Errorf("args = %v", args)
	}
}

func openTestDB(t *testing.T) *PostgresRepository {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	if err := migrate.Run(dsn, migrate.Up); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	conn, err := db.Open(dsn)
	if err != nil {
		t.Skipf("Database connection failed (expected in test environment): %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewPostgresRepository(conn)
}

func TestPostgres_ContactLifecycle(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()
	userID := "test-" + uuid.New().String()
	t.Cleanup(func() {
		_, _ = repo.db.Exec("DELETE FROM activities WHERE user_id = $1", userID)
		_, _ = repo.db.Exec("DELETE FROM contacts WHERE user_id = $1", userID)
	})

	if _, err := repo.Create(ctx, "", &domain.Contact{Name: "x"}); err != ErrNotAuthenticated {
		t.Fatalf("Create without user err = %v, want ErrNotAuthenticated", err)
	}

	followUp := time.Now().UTC().Truncate(time.Second)
	created, err := repo.Create(ctx, userID, &domain.Contact{Name: "Ahmad bin Hassan", Company: "XYZ Corp", FollowUpDate: &followUp})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" || created.Category != domain.DefaultCategory {
		t.Errorf("created = %+v", created)
	}
	if created.FollowUpDate == nil || !created.FollowUpDate.Equal(followUp) {
		t.Errorf("FollowUpDate = %v, want %v", created.FollowUpDate, followUp)
	}

	if _, err := repo.BulkCreate(ctx, userID, []domain.Contact{{Name: "Sarah Lee", Category: "Client"}, {Name: "Lim Wei"}}); err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}

	page, err := repo.List(ctx, userID, domain.ListOptions{Search: "xyz"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Count != 1 || len(page.Items) != 1 || page.Items[0].ID != created.ID {
		t.Errorf("search page = %+v", page)
	}
	page, err = repo.List(ctx, userID, domain.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Count != 3 || len(page.Items) != 2 {
		t.Errorf("page count = %d items = %d, want 3 and 2", page.Count, len(page.Items))
	}

	company := "ABC Sdn Bhd"
	updated, err := repo.Update(ctx, userID, created.ID, domain.ContactPatch{Company: &company})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Company != company {
		t.Errorf("Company = %q, want %q", updated.Company, company)
	}
	if missing, err := repo.Update(ctx, userID, "missing", domain.ContactPatch{Company: &company}); err != nil || missing != nil {
		t.Errorf("Update missing = %v, %v; want nil, nil", missing, err)
	}

	stats, err := repo.DashboardStats(ctx, userID)
	if err != nil {
		t.Fatalf("DashboardStats: %v", err)
	}
	if stats.TotalContacts != 3 || stats.NewThisWeek != 3 || stats.FollowUpsToday != 1 {
		t.Errorf("stats = %+v", stats)
	}

	if _, err := repo.CreateActivity(ctx, userID, &domain.Activity{ContactID: created.ID, Type: domain.ActivityContactAdded, Title: "New contact added"}); err != nil {
		t.Fatalf("CreateActivity: %v", err)
	}
	acts, err := repo.RecentActivities(ctx, userID, 0)
	if err != nil {
		t.Fatalf("RecentActivities: %v", err)
	}
	if len(acts) != 1 || acts[0].ContactID != created.ID {
		t.Errorf("activities = %+v", acts)
	}

	if err := repo.Delete(ctx, userID, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, err := repo.GetByID(ctx, userID, created.ID); err != nil || got != nil {
		t.Errorf("GetByID after delete = %v, %v; want nil, nil", got, err)
	}
}
