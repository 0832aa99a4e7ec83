package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"resultmarketing-crm/client/internal/baas"
	"resultmarketing-crm/client/internal/contacts/domain"
)

const (
	contactsTable   = "contacts"
	activitiesTable = "activities"
	statsFunction   = "get_dashboard_stats"
)

var searchColumns = []string{"name", "email", "company", "phone"}

// RESTRepository reads and writes contacts through the BaaS table API. Row-level security on the
// backend scopes every call to the bearer's user; userID filters are added on top.
type RESTRepository struct {
	client *baas.Client
}

// NewRESTRepository returns a contacts repository backed by client.
func NewRESTRepository(client *baas.Client) *RESTRepository {
	return &RESTRepository{client: client}
}

func (r *RESTRepository) scoped(table, userID string) *baas.Query {
	q := r.client.From(table)
	if userID != "" {
		q.Eq("user_id", userID)
	}
	return q
}

// List returns one page of contacts, newest first, with the exact total.
func (r *RESTRepository) List(ctx context.Context, userID string, opts domain.ListOptions) (*domain.Page, error) {
	opts = opts.Normalized()
	q := r.scoped(contactsTable, userID).
		Select("*").
		Order("created_at", false).
		Range(opts.Offset, opts.Offset+opts.Limit-1).
		CountExact()
	if opts.Search != "" {
		q.Search(opts.Search, searchColumns...)
	}
	if opts.Category != "" {
		q.Eq("category", opts.Category)
	}
	var items []domain.Contact
	count, err := q.Execute(ctx, &items)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	if items == nil {
		items = []domain.Contact{}
	}
	if count < 0 {
		count = len(items)
	}
	return &domain.Page{Items: items, Count: count}, nil
}

// GetByID returns the contact for id, or nil if not found.
func (r *RESTRepository) GetByID(ctx context.Context, userID, id string) (*domain.Contact, error) {
	var rows []domain.Contact
	if _, err := r.scoped(contactsTable, userID).Eq("id", id).Limit(1).Execute(ctx, &rows); err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Create inserts c for userID and returns the stored row.
func (r *RESTRepository) Create(ctx context.Context, userID string, c *domain.Contact) (*domain.Contact, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	row, err := prepareContact(userID, c)
	if err != nil {
		return nil, err
	}
	var out domain.Contact
	if err := r.client.From(contactsTable).Single().Insert(ctx, []domain.Contact{row}, &out); err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}
	return &out, nil
}

// Update applies patch to the contact and returns the updated row, or nil if not found.
func (r *RESTRepository) Update(ctx context.Context, userID, id string, patch domain.ContactPatch) (*domain.Contact, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	if patch == (domain.ContactPatch{}) {
		return r.GetByID(ctx, userID, id)
	}
	var rows []domain.Contact
	if err := r.scoped(contactsTable, userID).Eq("id", id).Update(ctx, patch, &rows); err != nil {
		return nil, fmt.Errorf("update contact: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Delete removes the contact. Deleting a missing contact is not an error.
func (r *RESTRepository) Delete(ctx context.Context, userID, id string) error {
	if err := r.scoped(contactsTable, userID).Eq("id", id).Delete(ctx); err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	return nil
}

// BulkCreate inserts contacts in one call.
func (r *RESTRepository) BulkCreate(ctx context.Context, userID string, contacts []domain.Contact) ([]domain.Contact, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	if len(contacts) == 0 {
		return []domain.Contact{}, nil
	}
	rows := make([]domain.Contact, 0, len(contacts))
	for i := range contacts {
		row, err := prepareContact(userID, &contacts[i])
		if err != nil {
			return nil, fmt.Errorf("contact %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	var out []domain.Contact
	if err := r.client.From(contactsTable).Insert(ctx, rows, &out); err != nil {
		return nil, fmt.Errorf("bulk create contacts: %w", err)
	}
	return out, nil
}

// RecentActivities returns the newest activities first.
func (r *RESTRepository) RecentActivities(ctx context.Context, userID string, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = domain.DefaultRecentLimit
	}
	var out []domain.Activity
	if _, err := r.scoped(activitiesTable, userID).Order("created_at", false).Limit(limit).Execute(ctx, &out); err != nil {
		return nil, fmt.Errorf("recent activities: %w", err)
	}
	if out == nil {
		out = []domain.Activity{}
	}
	return out, nil
}

// CreateActivity inserts a and returns the stored row.
func (r *RESTRepository) CreateActivity(ctx context.Context, userID string, a *domain.Activity) (*domain.Activity, error) {
	row := *a
	if row.UserID == "" {
		row.UserID = userID
	}
	var out domain.Activity
	if err := r.client.From(activitiesTable).Single().Insert(ctx, []domain.Activity{row}, &out); err != nil {
		return nil, fmt.Errorf("create activity: %w", err)
	}
	return &out, nil
}

// DashboardStats calls the get_dashboard_stats database function. The function may return
// either an object or a one-row set.
func (r *RESTRepository) DashboardStats(ctx context.Context, userID string) (*domain.DashboardStats, error) {
	var raw statsResult
	if err := r.client.RPC(ctx, statsFunction, nil, &raw); err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	return &raw.stats, nil
}

// prepareContact validates c and returns a copy owned by userID without server-assigned fields.
func prepareContact(userID string, c *domain.Contact) (domain.Contact, error) {
	if c == nil {
		return domain.Contact{}, ErrNameRequired
	}
	row := *c
	row.Normalize()
	if row.Name == "" {
		return domain.Contact{}, ErrNameRequired
	}
	row.ID = ""
	row.UserID = userID
	row.CreatedAt, row.UpdatedAt = time.Time{}, time.Time{}
	return row, nil
}

// statsResult accepts the stats as an object or as a single-element array.
type statsResult struct {
	stats domain.DashboardStats
}

func (s *statsResult) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if strings.HasPrefix(trimmed, "[") {
		var rows []domain.DashboardStats
		if err := json.Unmarshal(b, &rows); err != nil {
			return err
		}
		if len(rows) > 0 {
			s.stats = rows[0]
		}
		return nil
	}
	return json.Unmarshal(b, &s.stats)
}
