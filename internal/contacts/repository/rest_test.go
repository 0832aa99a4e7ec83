package repository

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resultmarketing-crm/client/internal/baas"
	"resultmarketing-crm/client/internal/contacts/domain"
)

type capturedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// tableServer records requests and answers each with the next canned response.
type tableServer struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
	body     string
	respHdr  map[string]string
}

func newTableServer(t *testing.T, status int, body string) (*tableServer, *RESTRepository) {
	t.Helper()
	ts := &tableServer{status: status, body: body, respHdr: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		ts.mu.Lock()
		ts.requests = append(ts.requests, capturedRequest{r.Method, r.URL.Path, r.URL.Query(), r.Header.Clone(), b})
		for k, v := range ts.respHdr {
			w.Header().Set(k, v)
		}
		status, body := ts.status, ts.body
		ts.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	client := baas.New(srv.URL, "anon", baas.WithAccessToken(func() string { return "user-token" }))
	return ts, NewRESTRepository(client)
}

func (ts *tableServer) setBody(body string) {
	ts.mu.Lock()
	ts.body = body
	ts.mu.Unlock()
}

func (ts *tableServer) setHeader(k, v string) {
	ts.mu.Lock()
	ts.respHdr[k] = v
	ts.mu.Unlock()
}

func (ts *tableServer) last(t *testing.T) capturedRequest {
	t.Helper()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	require.NotEmpty(t, ts.requests)
	return ts.requests[len(ts.requests)-1]
}

func TestREST_List(t *testing.T) {
	ts, repo := newTableServer(t, http.StatusPartialContent, `[{"id":"c1","name":"Ahmad","category":"Client"}]`)
	ts.setHeader("Content-Range", "50-50/51")

	page, err := repo.List(context.Background(), "u1", domain.ListOptions{Offset: 50, Search: " ahmad ", Category: "Client"})
	require.NoError(t, err)
	assert.Equal(t, 51, page.Count)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Ahmad", page.Items[0].Name)

	req := ts.last(t)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/rest/v1/contacts", req.Path)
	assert.Equal(t, "eq.u1", req.Query.Get("user_id"))
	assert.Equal(t, "eq.Client", req.Query.Get("category"))
	assert.Equal(t, "created_at.desc", req.Query.Get("order"))
	assert.Equal(t, "(name.ilike.*ahmad*,email.ilike.*ahmad*,company.ilike.*ahmad*,phone.ilike.*ahmad*)", req.Query.Get("or"))
	assert.Equal(t, "50-99", req.Header.Get("Range"))
	assert.Equal(t, "count=exact", req.Header.Get("Prefer"))
	assert.Equal(t, "Bearer user-token", req.Header.Get("Authorization"))
}

func TestREST_ListEmpty(t *testing.T) {
	ts, repo := newTableServer(t, http.StatusOK, `[]`)
	ts.setHeader("Content-Range", "*/0")
	page, err := repo.List(context.Background(), "u1", domain.ListOptions{})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Equal(t, 0, page.Count)
	assert.Equal(t, "0-49", ts.last(t).Header.Get("Range"))
	assert.Empty(t, ts.last(t).Query.Get("or"))
}

func TestREST_GetByID(t *testing.T) {
	ts, repo := newTableServer(t, http.StatusOK, `[{"id":"c1","name":"Sarah"}]`)
	c, err := repo.GetByID(context.Background(), "u1", "c1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Sarah", c.Name)
	assert.Equal(t, "eq.c1", ts.last(t).Query.Get("id"))

	ts.setBody(`[]`)
	c, err = repo.GetByID(context.Background(), "u1", "missing")
	require.NoError(t, err)
	assert.Nil(t, c, "missing contact is nil, nil")
}

func TestREST_Create(t *testing.T) {
	ts, repo := newTableServer(t, http.StatusCreated, `{"id":"c9","user_id":"u1","name":"Lim","category":"Other"}`)

	_, err := repo.Create(context.Background(), "", &domain.Contact{Name: "Lim"})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, "Not authenticated", err.Error())

	_, err = repo.Create(context.Background(), "u1", &domain.Contact{Name: "  "})
	assert.ErrorIs(t, err, ErrNameRequired)

	c, err := repo.Create(context.Background(), "u1", &domain.Contact{ID: "client-side", Name: " Lim "})
	require.NoError(t, err)
	assert.Equal(t, "c9", c.ID)

	req := ts.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "return=representation", req.Header.Get("Prefer"))
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(req.Body, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "u1", rows[0]["user_id"])
	assert.Equal(t, "Lim", rows[0]["name"])
	assert.Equal(t, "Other", rows[0]["category"])
	assert.NotContains(t, rows[0], "id")
	assert.NotContains(t, rows[0], "created_at")
}

func TestREST_Update(t *testing.T) {
	ts, repo := newTableServer(t, http.StatusOK, `[{"id":"c1","name":"Ahmad","company":"XYZ Corp"}]`)
	company := "XYZ Corp"
	c, err := repo.Update(context.Background(), "u1", "c1", domain.ContactPatch{Company: &company})
	require.NoError(t, err)
	assert.Equal(t, "XYZ Corp", c.Company)

	req := ts.last(t)
	assert.Equal(t, http.MethodPatch, req.Method)
	assert.JSONEq(t, `{"company":"XYZ Corp"}`, string(req.Body))
	assert.Equal(t, "eq.c1", req.Query.Get("id"))

	blank := ""
	_, err = repo.Update(context.Background(), "u1", "c1", domain.ContactPatch{Name: &blank})
	assert.ErrorIs(t, err, ErrNameRequired)

	ts.setBody(`[]`)
	c, err = repo.Update(context.Background(), "u1", "gone", domain.ContactPatch{Company: &company})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestREST_Delete(t *testing.T) {
	ts, repo := newTableServer(t, http.StatusNoContent, ``)
	require.NoError(t, repo.Delete(context.Background(), "u1", "c1"))
	req := ts.last(t)
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "eq.c1", req.Query.Get("id"))
	assert.Equal(t, "eq.u1", req.Query.Get("user_id"))
}

func TestREST_BulkCreate(t *testing.T) {
	ts, repo := newTableServer(t, http.StatusCreated, `[{"id":"a","name":"A"},{"id":"b","name":"B"}]`)
	out, err := repo.BulkCreate(context.Background(), "u1", []domain.Contact{{Name: "A"}, {Name: "B", Category: "Client"}})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	var rows []domain.Contact
	require.NoError(t, json.Unmarshal(ts.last(t).Body, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "u1", rows[1].UserID)
	assert.Equal(t, "Client", rows[1].Category)

	_, err = repo.BulkCreate(context.Background(), "u1", []domain.Contact{{Name: "A"}, {}})
	assert.ErrorIs(t, err, ErrNameRequired)

	out, err = repo.BulkCreate(context.Background(), "u1", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestREST_Activities(t *testing.T) {
	ts, repo := newTableServer(t, http.StatusOK, `[{"id":"a1","type":"contact_added","title":"New contact added"}]`)
	acts, err := repo.RecentActivities(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, "10", ts.last(t).Query.Get("limit"))
	assert.Equal(t, "/rest/v1/activities", ts.last(t).Path)

	ts.setBody(`{"id":"a2","user_id":"u1","type":"follow_up","title":"Follow-up completed"}`)
	a, err := repo.CreateActivity(context.Background(), "u1", &domain.Activity{Type: domain.ActivityFollowUp, Title: "Follow-up completed"})
	require.NoError(t, err)
	assert.Equal(t, "a2", a.ID)
	assert.Contains(t, string(ts.last(t).Body), `"user_id":"u1"`)
}

func TestREST_DashboardStats(t *testing.T) {
	for name, body := range map[string]string{
		"object": `{"total_contacts":12,"new_this_week":3,"follow_ups_today":1,"conversion_rate":24.5}`,
		"set":    `[{"total_contacts":12,"new_this_week":3,"follow_ups_today":1,"conversion_rate":24.5}]`,
	} {
		t.Run(name, func(t *testing.T) {
			ts, repo := newTableServer(t, http.StatusOK, body)
			s, err := repo.DashboardStats(context.Background(), "u1")
			require.NoError(t, err)
			assert.Equal(t, domain.DashboardStats{TotalContacts: 12, NewThisWeek: 3, FollowUpsToday: 1, ConversionRate: 24.5}, *s)
			assert.Equal(t, "/rest/v1/rpc/get_dashboard_stats", ts.last(t).Path)
		})
	}
}

func TestREST_BackendError(t *testing.T) {
	_, repo := newTableServer(t, http.StatusForbidden, `{"message":"permission denied for table contacts"}`)
	_, err := repo.List(context.Background(), "u1", domain.ListOptions{})
	require.Error(t, err)
	assert.True(t, baas.IsClientError(err))
	assert.Contains(t, err.Error(), "permission denied")
}
