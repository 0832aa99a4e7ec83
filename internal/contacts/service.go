// Package contacts exposes the signed-in user's contacts and keeps the activity feed in step
// with contact changes.
package contacts

import (
	"context"
	"fmt"
	"log"

	"resultmarketing-crm/client/internal/contacts/domain"
	"resultmarketing-crm/client/internal/contacts/repository"
)

// UserSource returns the signed-in user's ID, or "" when signed out. *session.Store
// satisfies it through UserID.
type UserSource interface {
	UserID() string
}

// ActivityRecorder writes one activity-feed entry. Record is best-effort: failures are
// logged and do not affect the caller.
type ActivityRecorder interface {
	Record(ctx context.Context, userID string, a domain.Activity)
}

// RepoRecorder implements ActivityRecorder on a contacts repository.
type RepoRecorder struct {
	repo repository.Repository
}

// NewRepoRecorder returns an ActivityRecorder that persists to repo.
func NewRepoRecorder(repo repository.Repository) *RepoRecorder {
	return &RepoRecorder{repo: repo}
}

// Record writes a. Errors are logged and not returned.
func (r *RepoRecorder) Record(ctx context.Context, userID string, a domain.Activity) {
	if r.repo == nil || userID == "" {
		return
	}
	if _, err := r.repo.CreateActivity(ctx, userID, &a); err != nil {
		log.Printf("contacts: failed to record activity %s: %v", a.Type, err)
	}
}

// Service runs contact operations as the signed-in user.
type Service struct {
	repo     repository.Repository
	users    UserSource
	activity ActivityRecorder
}

// NewService returns a Service. activity may be nil to skip the activity feed.
func NewService(repo repository.Repository, users UserSource, activity ActivityRecorder) *Service {
	return &Service{repo: repo, users: users, activity: activity}
}

func (s *Service) userID() string {
	if s.users == nil {
		return ""
	}
	return s.users.UserID()
}

func (s *Service) requireUser() (string, error) {
	id := s.userID()
	if id == "" {
		return "", repository.ErrNotAuthenticated
	}
	return id, nil
}

// List returns a page of the user's contacts.
func (s *Service) List(ctx context.Context, opts domain.ListOptions) (*domain.Page, error) {
	uid, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, uid, opts)
}

// Get returns one contact, or nil if it does not exist.
func (s *Service) Get(ctx context.Context, id string) (*domain.Contact, error) {
	uid, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, uid, id)
}

// Create stores c and records a contact_added activity.
func (s *Service) Create(ctx context.Context, c *domain.Contact) (*domain.Contact, error) {
	uid := s.userID()
	created, err := s.repo.Create(ctx, uid, c)
	if err != nil {
		return nil, err
	}
	s.record(ctx, uid, domain.Activity{
		ContactID:   created.ID,
		Type:        domain.ActivityContactAdded,
		Title:       "New contact added",
		Description: describe(created),
	})
	return created, nil
}

// Update applies patch. A patch that sets a follow-up date records a follow_up activity.
func (s *Service) Update(ctx context.Context, id string, patch domain.ContactPatch) (*domain.Contact, error) {
	uid, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, uid, id, patch)
	if err != nil || updated == nil {
		return updated, err
	}
	if patch.FollowUpDate != nil {
		s.record(ctx, uid, domain.Activity{
			ContactID:   updated.ID,
			Type:        domain.ActivityFollowUp,
			Title:       "Follow-up scheduled",
			Description: fmt.Sprintf("%s on %s", updated.Name, patch.FollowUpDate.Format("2 Jan 2006")),
		})
	}
	return updated, nil
}

// Delete removes a contact.
func (s *Service) Delete(ctx context.Context, id string) error {
	uid, err := s.requireUser()
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, uid, id)
}

// Import stores contacts in bulk and records one bulk_import activity naming source.
func (s *Service) Import(ctx context.Context, contacts []domain.Contact, source string) ([]domain.Contact, error) {
	uid := s.userID()
	out, err := s.repo.BulkCreate(ctx, uid, contacts)
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		desc := fmt.Sprintf("%d contacts imported", len(out))
		if source != "" {
			desc = fmt.Sprintf("%d contacts from %s", len(out), source)
		}
		s.record(ctx, uid, domain.Activity{Type: domain.ActivityBulkImport, Title: "Bulk import", Description: desc})
	}
	return out, nil
}

// Recent returns the newest activity-feed entries.
func (s *Service) Recent(ctx context.Context, limit int) ([]domain.Activity, error) {
	uid, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	return s.repo.RecentActivities(ctx, uid, limit)
}

// Stats returns the dashboard numbers.
func (s *Service) Stats(ctx context.Context) (*domain.DashboardStats, error) {
	uid, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	return s.repo.DashboardStats(ctx, uid)
}

func (s *Service) record(ctx context.Context, uid string, a domain.Activity) {
	if s.activity != nil {
		s.activity.Record(ctx, uid, a)
	}
}

func describe(c *domain.Contact) string {
	if c.Company == "" {
		return c.Name
	}
	return c.Name + " from " + c.Company
}
