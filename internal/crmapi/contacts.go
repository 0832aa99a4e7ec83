package crmapi

import (
	"context"
	"net/url"
	"strconv"

	"resultmarketing-crm/client/internal/apiclient"
	"resultmarketing-crm/client/internal/contacts/domain"
)

// Contacts is the primary service's contacts API.
type Contacts struct {
	c Doer
}

// ContactQuery filters and pages a contact listing. Zero fields are not sent.
type ContactQuery struct {
	Limit    int
	Offset   int
	Search   string
	Category string
	Sort     string
}

func (q ContactQuery) values() url.Values {
	v := url.Values{}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	return v
}

// ContactList is one page of contacts and the total matching the query.
type ContactList struct {
	Contacts []domain.Contact `json:"contacts"`
	Total    int              `json:"total"`
}

// BulkResult reports a bulk import.
type BulkResult struct {
	Imported int              `json:"imported"`
	Failed   int              `json:"failed"`
	Contacts []domain.Contact `json:"contacts"`
}

func (r *Contacts) List(ctx context.Context, q ContactQuery) (*ContactList, error) {
	return get[ContactList](ctx, r.c, "/contacts", q.values())
}

func (r *Contacts) Get(ctx context.Context, id string) (*domain.Contact, error) {
	return get[domain.Contact](ctx, r.c, resource("/contacts", id), nil)
}

func (r *Contacts) Create(ctx context.Context, c *domain.Contact) (*domain.Contact, error) {
	return post[domain.Contact](ctx, r.c, "/contacts", c)
}

func (r *Contacts) Update(ctx context.Context, id string, patch domain.ContactPatch) (*domain.Contact, error) {
	return put[domain.Contact](ctx, r.c, resource("/contacts", id), patch)
}

func (r *Contacts) Delete(ctx context.Context, id string) error {
	return exec(ctx, r.c, apiclient.Delete(resource("/contacts", id)))
}

// BulkImport sends contacts in one call.
func (r *Contacts) BulkImport(ctx context.Context, contacts []domain.Contact) (*BulkResult, error) {
	return post[BulkResult](ctx, r.c, "/contacts/bulk", map[string]interface{}{"contacts": contacts})
}

// Search runs a free-text search; q's Search field is replaced by query.
func (r *Contacts) Search(ctx context.Context, query string, q ContactQuery) (*ContactList, error) {
	q.Search = ""
	v := q.values()
	v.Set("q", query)
	return get[ContactList](ctx, r.c, "/contacts/search", v)
}

func (r *Contacts) Stats(ctx context.Context) (*domain.DashboardStats, error) {
	return get[domain.DashboardStats](ctx, r.c, "/contacts/stats", nil)
}

// Interactions returns the interaction history of one contact.
func (r *Contacts) Interactions(ctx context.Context, contactID string) ([]Interaction, error) {
	return list[Interaction](ctx, r.c, resource("/contacts", contactID)+"/interactions", nil)
}
