package contacts

import (
	"context"
	"errors"
	"testing"
	"time"

	"resultmarketing-crm/client/internal/contacts/domain"
	"resultmarketing-crm/client/internal/contacts/repository"
)

// mockRepo implements repository.Repository for tests.
type mockRepo struct {
	contacts    map[string]domain.Contact
	activities  []domain.Activity
	activityErr error
	lastUser    string
	nextID      int
}

func newMockRepo() *mockRepo {
	return &mockRepo{contacts: map[string]domain.Contact{}}
}

func (m *mockRepo) List(ctx context.Context, userID string, opts domain.ListOptions) (*domain.Page, error) {
	m.lastUser = userID
	page := &domain.Page{Items: []domain.Contact{}}
	for _, c := range m.contacts {
		page.Items = append(page.Items, c)
	}
	page.Count = len(page.Items)
	return page, nil
}

func (m *mockRepo) GetByID(ctx context.Context, userID, id string) (*domain.Contact, error) {
	m.lastUser = userID
	c, ok := m.contacts[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *mockRepo) Create(ctx context.Context, userID string, c *domain.Contact) (*domain.Contact, error) {
	if userID == "" {
		return nil, repository.ErrNotAuthenticated
	}
	m.nextID++
	out := *c
	out.ID = "c" + string(rune('0'+m.nextID))
	out.UserID = userID
	m.contacts[out.ID] = out
	return &out, nil
}

func (m *mockRepo) Update(ctx context.Context, userID, id string, patch domain.ContactPatch) (*domain.Contact, error) {
	c, ok := m.contacts[id]
	if !ok {
		return nil, nil
	}
	if patch.FollowUpDate != nil {
		c.FollowUpDate = patch.FollowUpDate
	}
	m.contacts[id] = c
	return &c, nil
}

func (m *mockRepo) Delete(ctx context.Context, userID, id string) error {
	delete(m.contacts, id)
	return nil
}

func (m *mockRepo) BulkCreate(ctx context.Context, userID string, contacts []domain.Contact) ([]domain.Contact, error) {
	if userID == "" {
		return nil, repository.ErrNotAuthenticated
	}
	var out []domain.Contact
	for i := range contacts {
		c, _ := m.Create(ctx, userID, &contacts[i])
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockRepo) RecentActivities(ctx context.Context, userID string, limit int) ([]domain.Activity, error) {
	return m.activities, nil
}

func (m *mockRepo) CreateActivity(ctx context.Context, userID string, a *domain.Activity) (*domain.Activity, error) {
	if m.activityErr != nil {
		return nil, m.activityErr
	}
	out := *a
	out.UserID = userID
	m.activities = append(m.activities, out)
	return &out, nil
}

func (m *mockRepo) DashboardStats(ctx context.Context, userID string) (*domain.DashboardStats, error) {
	return &domain.DashboardStats{TotalContacts: len(m.contacts)}, nil
}

type staticUser string

func (u staticUser) UserID() string { return string(u) }

func newService(user string) (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, staticUser(user), NewRepoRecorder(repo)), repo
}

func TestService_CreateRecordsActivity(t *testing.T) {
	svc, repo := newService("user-1")
	c, err := svc.Create(context.Background(), &domain.Contact{Name: "Ahmad bin Hassan", Company: "XYZ Corp"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(repo.activities) != 1 {
		t.Fatalf("expected 1 activity, got %d", len(repo.activities))
	}
	a := repo.activities[0]
	if a.Type != domain.ActivityContactAdded {
		t.Errorf("type = %q, want %q", a.Type, domain.ActivityContactAdded)
	}
	if a.Description != "Ahmad bin Hassan from XYZ Corp" {
		t.Errorf("description = %q", a.Description)
	}
	if a.ContactID != c.ID || a.UserID != "user-1" {
		t.Errorf("activity = %+v", a)
	}
}

func TestService_ActivityFailureIsBestEffort(t *testing.T) {
	svc, repo := newService("user-1")
	repo.activityErr = errors.New("db down")
	if _, err := svc.Create(context.Background(), &domain.Contact{Name: "Sarah Lee"}); err != nil {
		t.Fatalf("Create should succeed when the activity write fails: %v", err)
	}
	if len(repo.contacts) != 1 {
		t.Errorf("contact should still be stored")
	}
}

func TestService_SignedOut(t *testing.T) {
	svc, repo := newService("")
	ctx := context.Background()
	if _, err := svc.Create(ctx, &domain.Contact{Name: "x"}); !errors.Is(err, repository.ErrNotAuthenticated) {
		t.Errorf("Create err = %v, want ErrNotAuthenticated", err)
	}
	if _, err := svc.List(ctx, domain.ListOptions{}); !errors.Is(err, repository.ErrNotAuthenticated) {
		t.Errorf("List err = %v, want ErrNotAuthenticated", err)
	}
	if _, err := svc.Stats(ctx); !errors.Is(err, repository.ErrNotAuthenticated) {
		t.Errorf("Stats err = %v, want ErrNotAuthenticated", err)
	}
	if len(repo.activities) != 0 {
		t.Error("no activity should be recorded while signed out")
	}
}

func TestService_UpdateFollowUp(t *testing.T) {
	svc, repo := newService("user-1")
	ctx := context.Background()
	c, _ := svc.Create(ctx, &domain.Contact{Name: "Lim Wei"})
	repo.activities = nil

	notes := "call back"
	if _, err := svc.Update(ctx, c.ID, domain.ContactPatch{Notes: &notes}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(repo.activities) != 0 {
		t.Errorf("plain update recorded %d activities", len(repo.activities))
	}

	when := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	if _, err := svc.Update(ctx, c.ID, domain.ContactPatch{FollowUpDate: &when}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(repo.activities) != 1 || repo.activities[0].Description != "Lim Wei on 14 Mar 2025" {
		t.Errorf("activities = %+v", repo.activities)
	}

	got, err := svc.Update(ctx, "missing", domain.ContactPatch{FollowUpDate: &when})
	if err != nil || got != nil {
		t.Errorf("Update missing = %v, %v; want nil, nil", got, err)
	}
	if len(repo.activities) != 1 {
		t.Error("missing contact should not record an activity")
	}
}

func TestService_Import(t *testing.T) {
	svc, repo := newService("user-1")
	out, err := svc.Import(context.Background(), []domain.Contact{{Name: "A"}, {Name: "B"}}, "leads.xlsx")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(out) != 2 {
		t.Errorf("imported %d, want 2", len(out))
	}
	if len(repo.activities) != 1 {
		t.Fatalf("expected 1 activity, got %d", len(repo.activities))
	}
	if got := repo.activities[0].Description; got != "2 contacts from leads.xlsx" {
		t.Errorf("description = %q", got)
	}
}

func TestService_PassesUser(t *testing.T) {
	svc, repo := newService("user-7")
	if _, err := svc.Get(context.Background(), "nope"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if repo.lastUser != "user-7" {
		t.Errorf("repository saw user %q, want user-7", repo.lastUser)
	}
}
