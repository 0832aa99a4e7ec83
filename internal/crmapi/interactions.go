package crmapi

import (
	"context"
	"net/url"
	"time"

	"resultmarketing-crm/client/internal/apiclient"
)

// Interaction is a logged call, meeting or message with a contact.
type Interaction struct {
	ID         string     `json:"id,omitempty"`
	ContactID  string     `json:"contact_id,omitempty"`
	Type       string     `json:"type,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Outcome    string     `json:"outcome,omitempty"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitzero"`
}

// Interactions is the primary service's interaction log.
type Interactions struct {
	c Doer
}

// Create logs in against contactID.
func (r *Interactions) Create(ctx context.Context, contactID string, in Interaction) (*Interaction, error) {
	in.ContactID = contactID
	return post[Interaction](ctx, r.c, "/interactions", in)
}

func (r *Interactions) List(ctx context.Context, query url.Values) ([]Interaction, error) {
	return list[Interaction](ctx, r.c, "/interactions", query)
}

// Update changes the non-empty fields of updates.
func (r *Interactions) Update(ctx context.Context, id string, updates Interaction) (*Interaction, error) {
	return put[Interaction](ctx, r.c, resource("/interactions", id), updates)
}

func (r *Interactions) Delete(ctx context.Context, id string) error {
	return exec(ctx, r.c, apiclient.Delete(resource("/interactions", id)))
}

// Reminder is a scheduled follow-up.
type Reminder struct {
	ID        string     `json:"id,omitempty"`
	ContactID string     `json:"contact_id,omitempty"`
	Title     string     `json:"title,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	Completed bool       `json:"completed,omitempty"`
	CreatedAt time.Time  `json:"created_at,omitzero"`
}

// Reminders is the primary service's follow-up reminders API.
type Reminders struct {
	c Doer
}

func (r *Reminders) List(ctx context.Context, query url.Values) ([]Reminder, error) {
	return list[Reminder](ctx, r.c, "/reminders", query)
}

func (r *Reminders) Create(ctx context.Context, rem Reminder) (*Reminder, error) {
	return post[Reminder](ctx, r.c, "/reminders", rem)
}

func (r *Reminders) Update(ctx context.Context, id string, updates Reminder) (*Reminder, error) {
	return put[Reminder](ctx, r.c, resource("/reminders", id), updates)
}

// Complete marks the reminder done.
func (r *Reminders) Complete(ctx context.Context, id string) (*Reminder, error) {
	return put[Reminder](ctx, r.c, resource("/reminders", id)+"/complete", nil)
}

func (r *Reminders) Delete(ctx context.Context, id string) error {
	return exec(ctx, r.c, apiclient.Delete(resource("/reminders", id)))
}

// Today returns the reminders due today.
func (r *Reminders) Today(ctx context.Context) ([]Reminder, error) {
	return list[Reminder](ctx, r.c, "/reminders/today", nil)
}

// list GETs path and decodes the response data as a slice; a missing slice is empty.
func list[T any](ctx context.Context, c Doer, path string, query url.Values) ([]T, error) {
	out, err := get[[]T](ctx, c, path, query)
	if err != nil {
		return nil, err
	}
	if *out == nil {
		return []T{}, nil
	}
	return *out, nil
}
