package crmapi

import (
	"context"
	"time"
)

// Payments is the subscription and billing API.
type Payments struct {
	c Doer
}

// Checkout is a hosted checkout session.
type Checkout struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// Subscription is the user's current plan.
type Subscription struct {
	Plan              string     `json:"plan"`
	Status            string     `json:"status"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
}

// Invoice is one billing record.
type Invoice struct {
	ID        string    `json:"id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	PDFURL    string    `json:"pdf_url,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

type portalLink struct {
	URL string `json:"url"`
}

type planRequest struct {
	PlanID string `json:"planId"`
}

func (r *Payments) Pricing(ctx context.Context) (*Raw, error) {
	return get[Raw](ctx, r.c, "/payments/pricing", nil)
}

func (r *Payments) Checkout(ctx context.Context, planID string) (*Checkout, error) {
	return post[Checkout](ctx, r.c, "/payments/checkout", planRequest{PlanID: planID})
}

func (r *Payments) Subscription(ctx context.Context) (*Subscription, error) {
	return get[Subscription](ctx, r.c, "/payments/subscription", nil)
}

// Cancel ends the subscription now or at the end of the billing period.
func (r *Payments) Cancel(ctx context.Context, immediately bool) (*Subscription, error) {
	return post[Subscription](ctx, r.c, "/payments/cancel", map[string]bool{"immediately": immediately})
}

func (r *Payments) Resume(ctx context.Context) (*Subscription, error) {
	return post[Subscription](ctx, r.c, "/payments/resume", nil)
}

// ChangePlan upgrades or downgrades to planID.
func (r *Payments) ChangePlan(ctx context.Context, planID string) (*Subscription, error) {
	return post[Subscription](ctx, r.c, "/payments/upgrade", planRequest{PlanID: planID})
}

// BillingPortal returns the URL of the hosted billing portal.
func (r *Payments) BillingPortal(ctx context.Context) (string, error) {
	out, err := post[portalLink](ctx, r.c, "/payments/portal", nil)
	if err != nil {
		return "", err
	}
	return out.URL, nil
}

func (r *Payments) Invoices(ctx context.Context) ([]Invoice, error) {
	return list[Invoice](ctx, r.c, "/payments/invoices", nil)
}
