package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"resultmarketing-crm/client/internal/contacts/domain"
)

const contactColumns = `id, user_id, name, phone, email, company, position, category, location, notes,
	is_favorite, last_contact_date, follow_up_date, created_at, updated_at`

// PostgresRepository stores contacts directly in Postgres. Every query is scoped to userID.
type PostgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresRepository returns a contacts repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

// List returns one page of contacts, newest first, with the total matching the filters.
func (r *PostgresRepository) List(ctx context.Context, userID string, opts domain.ListOptions) (*domain.Page, error) {
	opts = opts.Normalized()
	where, args := listFilter(userID, opts)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT count(*) FROM contacts WHERE "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count contacts: %w", err)
	}

	n := len(args)
	query := "SELECT " + contactColumns + " FROM contacts WHERE " + where +
		" ORDER BY created_at DESC LIMIT $" + strconv.Itoa(n+1) + " OFFSET $" + strconv.Itoa(n+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()
	items := []domain.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &domain.Page{Items: items, Count: total}, nil
}

// listFilter builds the WHERE clause for List. $1 is always the user.
func listFilter(userID string, opts domain.ListOptions) (string, []interface{}) {
	clauses := []string{"user_id = $1"}
	args := []interface{}{userID}
	if opts.Search != "" {
		args = append(args, "%"+escapeLike(opts.Search)+"%")
		p := "$" + strconv.Itoa(len(args))
		clauses = append(clauses, "(name ILIKE "+p+" OR email ILIKE "+p+" OR company ILIKE "+p+" OR phone ILIKE "+p+")")
	}
	if opts.Category != "" {
		args = append(args, opts.Category)
		clauses = append(clauses, "category = $"+strconv.Itoa(len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// GetByID returns the contact for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, userID, id string) (*domain.Contact, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+contactColumns+" FROM contacts WHERE user_id = $1 AND id = $2", userID, id)
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// Create inserts c for userID and returns the stored row.
func (r *PostgresRepository) Create(ctx context.Context, userID string, c *domain.Contact) (*domain.Contact, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	row, err := prepareContact(userID, c)
	if err != nil {
		return nil, err
	}
	out, err := r.insert(ctx, r.db, row)
	if err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}
	return out, nil
}

// BulkCreate inserts contacts in one transaction; either all are stored or none.
func (r *PostgresRepository) BulkCreate(ctx context.Context, userID string, contacts []domain.Contact) ([]domain.Contact, error) {
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

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	out := make([]domain.Contact, 0, len(rows))
	for _, row := range rows {
		c, err := r.insert(ctx, tx, row)
		if err != nil {
			return nil, fmt.Errorf("bulk create contacts: %w", err)
		}
		out = append(out, *c)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (r *PostgresRepository) insert(ctx context.Context, q queryRower, c domain.Contact) (*domain.Contact, error) {
	now := r.now().UTC()
	row := q.QueryRowContext(ctx, `INSERT INTO contacts (id, user_id, name, phone, email, company, position, category,
		location, notes, is_favorite, last_contact_date, follow_up_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		RETURNING `+contactColumns,
		uuid.New().String(), c.UserID, c.Name, c.Phone, c.Email, c.Company, c.Position, c.Category,
		c.Location, c.Notes, c.IsFavorite, nullTime(c.LastContactDate), nullTime(c.FollowUpDate), now)
	return scanContact(row)
}

// Update applies patch and returns the updated row, or nil if the contact does not exist.
func (r *PostgresRepository) Update(ctx context.Context, userID, id string, patch domain.ContactPatch) (*domain.Contact, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	sets, args := patchAssignments(patch)
	if len(sets) == 0 {
		return r.GetByID(ctx, userID, id)
	}
	args = append(args, r.now().UTC())
	sets = append(sets, "updated_at = $"+strconv.Itoa(len(args)))
	args = append(args, userID, id)
	query := "UPDATE contacts SET " + strings.Join(sets, ", ") +
		" WHERE user_id = $" + strconv.Itoa(len(args)-1) + " AND id = $" + strconv.Itoa(len(args)) +
		" RETURNING " + contactColumns
	c, err := scanContact(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update contact: %w", err)
	}
	return c, nil
}

func patchAssignments(p domain.ContactPatch) ([]string, []interface{}) {
	var sets []string
	var args []interface{}
	add := func(column string, v interface{}) {
		args = append(args, v)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	if p.Name != nil {
		add("name", strings.TrimSpace(*p.Name))
	}
	if p.Phone != nil {
		add("phone", *p.Phone)
	}
	if p.Email != nil {
		add("email", *p.Email)
	}
	if p.Company != nil {
		add("company", *p.Company)
	}
	if p.Position != nil {
		add("position", *p.Position)
	}
	if p.Category != nil {
		add("category", *p.Category)
	}
	if p.Location != nil {
		add("location", *p.Location)
	}
	if p.Notes != nil {
		add("notes", *p.Notes)
	}
	if p.IsFavorite != nil {
		add("is_favorite", *p.IsFavorite)
	}
	if p.LastContactDate != nil {
		add("last_contact_date", *p.LastContactDate)
	}
	if p.FollowUpDate != nil {
		add("follow_up_date", *p.FollowUpDate)
	}
	return sets, args
}

// Delete removes the contact. Deleting a missing contact is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM contacts WHERE user_id = $1 AND id = $2", userID, id)
	return err
}

// RecentActivities returns the newest activities first.
func (r *PostgresRepository) RecentActivities(ctx context.Context, userID string, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = domain.DefaultRecentLimit
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id, COALESCE(contact_id, ''), type, title, description, created_at
		FROM activities WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent activities: %w", err)
	}
	defer rows.Close()
	out := []domain.Activity{}
	for rows.Next() {
		var a domain.Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.ContactID, &a.Type, &a.Title, &a.Description, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateActivity inserts a and returns the stored row.
func (r *PostgresRepository) CreateActivity(ctx context.Context, userID string, a *domain.Activity) (*domain.Activity, error) {
	out := *a
	if out.UserID == "" {
		out.UserID = userID
	}
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = r.now().UTC()
	}
	contactID := sql.NullString{String: out.ContactID, Valid: out.ContactID != ""}
	_, err := r.db.ExecContext(ctx, `INSERT INTO activities (id, user_id, contact_id, type, title, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		out.ID, out.UserID, contactID, out.Type, out.Title, out.Description, out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create activity: %w", err)
	}
	return &out, nil
}

// DashboardStats evaluates get_dashboard_stats for userID.
func (r *PostgresRepository) DashboardStats(ctx context.Context, userID string) (*domain.DashboardStats, error) {
	var s domain.DashboardStats
	err := r.db.QueryRowContext(ctx,
		"SELECT total_contacts, new_this_week, follow_ups_today, conversion_rate::float8 FROM get_dashboard_stats($1)", userID).
		Scan(&s.TotalContacts, &s.NewThisWeek, &s.FollowUpsToday, &s.ConversionRate)
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	return &s, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanContact(s scanner) (*domain.Contact, error) {
	var c domain.Contact
	var lastContact, followUp sql.NullTime
	err := s.Scan(&c.ID, &c.UserID, &c.Name, &c.Phone, &c.Email, &c.Company, &c.Position, &c.Category,
		&c.Location, &c.Notes, &c.IsFavorite, &lastContact, &followUp, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastContact.Valid {
		t := lastContact.Time
		c.LastContactDate = &t
	}
	if followUp.Valid {
		t := followUp.Time
		c.FollowUpDate = &t
	}
	return &c, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
