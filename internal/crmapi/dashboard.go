package crmapi

import (
	"context"
	"log"
	"net/url"
	"strconv"

	"resultmarketing-crm/client/internal/contacts/domain"
)

// Dashboard assembles the home screen from the contacts, interactions and reminders APIs.
type Dashboard struct {
	c Doer
}

func (r *Dashboard) Stats(ctx context.Context) (*domain.DashboardStats, error) {
	return get[domain.DashboardStats](ctx, r.c, "/contacts/stats", nil)
}

// RecentActivities returns the newest interactions; limit defaults to 10.
func (r *Dashboard) RecentActivities(ctx context.Context, limit int) ([]Interaction, error) {
	if limit <= 0 {
		limit = domain.DefaultRecentLimit
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}, "sort": {"created_at:desc"}}
	return list[Interaction](ctx, r.c, "/interactions", q)
}

// TodayFollowUps returns the reminders due today.
func (r *Dashboard) TodayFollowUps(ctx context.Context) ([]Reminder, error) {
	return list[Reminder](ctx, r.c, "/reminders/today", nil)
}

// Health probes both services.
type Health struct {
	c  Doer
	ai Doer
}

// HealthStatus is the outcome of one probe. Error holds the failure message when OK is false.
type HealthStatus struct {
	OK    bool
	Data  Raw
	Error string
}

// CheckAPI probes the primary service. It never returns an error.
func (r *Health) CheckAPI(ctx context.Context) HealthStatus {
	return probe(ctx, r.c)
}

// CheckAI probes the AI service. It never returns an error.
func (r *Health) CheckAI(ctx context.Context) HealthStatus {
	return probe(ctx, r.ai)
}

func probe(ctx context.Context, c Doer) HealthStatus {
	out, err := get[Raw](ctx, c, "/health", nil)
	if err != nil {
		log.Printf("crmapi: %s health check failed: %v", c.Service(), err)
		return HealthStatus{Error: err.Error()}
	}
	return HealthStatus{OK: true, Data: *out}
}
