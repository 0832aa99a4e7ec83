package domain

import (
	"strings"
	"time"
)

// DefaultCategory is applied to contacts created without a category.
const DefaultCategory = "Other"

// Contact is a person in the user's CRM.
type Contact struct {
	ID              string     `json:"id,omitempty"`
	UserID          string     `json:"user_id,omitempty"`
	Name            string     `json:"name"`
	Phone           string     `json:"phone,omitempty"`
	Email           string     `json:"email,omitempty"`
	Company         string     `json:"company,omitempty"`
	Position        string     `json:"position,omitempty"`
	Category        string     `json:"category,omitempty"`
	Location        string     `json:"location,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	IsFavorite      bool       `json:"is_favorite"`
	LastContactDate *time.Time `json:"last_contact_date,omitempty"`
	FollowUpDate    *time.Time `json:"follow_up_date,omitempty"`
	CreatedAt       time.Time  `json:"created_at,omitzero"`
	UpdatedAt       time.Time  `json:"updated_at,omitzero"`
}

// Normalize trims text fields and applies the default category.
func (c *Contact) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Email = strings.TrimSpace(c.Email)
	c.Company = strings.TrimSpace(c.Company)
	c.Category = strings.TrimSpace(c.Category)
	if c.Category == "" {
		c.Category = DefaultCategory
	}
}

// ContactPatch holds the contact fields to change. Nil fields are left untouched.
type ContactPatch struct {
	Name            *string    `json:"name,omitempty"`
	Phone           *string    `json:"phone,omitempty"`
	Email           *string    `json:"email,omitempty"`
	Company         *string    `json:"company,omitempty"`
	Position        *string    `json:"position,omitempty"`
	Category        *string    `json:"category,omitempty"`
	Location        *string    `json:"location,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	IsFavorite      *bool      `json:"is_favorite,omitempty"`
	LastContactDate *time.Time `json:"last_contact_date,omitempty"`
	FollowUpDate    *time.Time `json:"follow_up_date,omitempty"`
}

// Activity is an entry in the user's recent-activity feed.
type Activity struct {
	ID          string    `json:"id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	ContactID   string    `json:"contact_id,omitempty"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}

// Activity types recorded by the client.
const (
	ActivityContactAdded = "contact_added"
	ActivityBulkImport   = "bulk_import"
	ActivityFollowUp     = "follow_up"
)

// DefaultListLimit and DefaultRecentLimit are the page sizes used when none is given.
const (
	DefaultListLimit   = 50
	DefaultRecentLimit = 10
)

// ListOptions selects a page of contacts, newest first.
type ListOptions struct {
	Limit  int
	Offset int
	// Search matches name, email, company or phone, case-insensitively.
	Search   string
	Category string
}

// Normalized returns o with defaults applied.
func (o ListOptions) Normalized() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	o.Search = strings.TrimSpace(o.Search)
	o.Category = strings.TrimSpace(o.Category)
	return o
}

// Page is one page of contacts plus the total number matching the filters.
type Page struct {
	Items []Contact `json:"items"`
	Count int       `json:"count"`
}

// DashboardStats are the headline numbers on the dashboard.
type DashboardStats struct {
	TotalContacts  int     `json:"total_contacts"`
	NewThisWeek    int     `json:"new_this_week"`
	FollowUpsToday int     `json:"follow_ups_today"`
	ConversionRate float64 `json:"conversion_rate"`
}
