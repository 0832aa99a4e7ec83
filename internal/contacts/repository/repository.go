package repository

import (
	"context"
	"errors"
	"strings"

	"resultmarketing-crm/client/internal/contacts/domain"
)

var (
	// ErrNotAuthenticated is returned by Create when no user is signed in.
	ErrNotAuthenticated = errors.New("Not authenticated")
	// ErrNameRequired is returned when a contact has no name.
	ErrNameRequired = errors.New("contact name is required")
)

// Repository defines persistence for contacts, activities and dashboard stats.
// GetByID returns nil, nil when the contact does not exist.
type Repository interface {
	List(ctx context.Context, userID string, opts domain.ListOptions) (*domain.Page, error)
	GetByID(ctx context.Context, userID, id string) (*domain.Contact, error)
	Create(ctx context.Context, userID string, c *domain.Contact) (*domain.Contact, error)
	Update(ctx context.Context, userID, id string, patch domain.ContactPatch) (*domain.Contact, error)
	Delete(ctx context.Context, userID, id string) error
	BulkCreate(ctx context.Context, userID string, contacts []domain.Contact) ([]domain.Contact, error)
	RecentActivities(ctx context.Context, userID string, limit int) ([]domain.Activity, error)
	CreateActivity(ctx context.Context, userID string, a *domain.Activity) (*domain.Activity, error)
	DashboardStats(ctx context.Context, userID string) (*domain.DashboardStats, error)
}

// validatePatch rejects a patch that would blank the contact name.
func validatePatch(p domain.ContactPatch) error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return ErrNameRequired
	}
	return nil
}
