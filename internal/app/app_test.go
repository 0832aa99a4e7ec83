package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resultmarketing-crm/client/internal/apiclient"
	"resultmarketing-crm/client/internal/config"
	"resultmarketing-crm/client/internal/crmapi"
	"resultmarketing-crm/client/internal/localstate"
	"resultmarketing-crm/client/internal/session"
)

func testConfig() *config.Config {
	return &config.Config{
		APIURL:           "http://127.0.0.1:1/api",
		AIAPIURL:         "http://127.0.0.1:1/api",
		LocalStateDriver: "memory",
	}
}

func TestNew_DemoMode(t *testing.T) {
	a, err := New(context.Background(), testConfig(), Options{SkipTelemetry: true})
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.Mode.DemoMode)
	assert.True(t, a.Session.IsDemo())
	assert.False(t, a.Session.Loading(), "session is initialized")
	assert.Nil(t, a.Realtime, "no realtime without a backend")
	assert.Nil(t, a.Contacts, "no contacts store without a backend or database")
	require.NotNil(t, a.API)
	assert.Equal(t, apiclient.Primary, a.Primary.Service())
	assert.Equal(t, apiclient.AI, a.AI.Service())
}

func TestNew_DemoRefusedInProduction(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	_, err := New(context.Background(), cfg, Options{SkipTelemetry: true})
	assert.ErrorIs(t, err, session.ErrDemoNotAllowed)
}

func TestNew_LiveModeWiresBackend(t *testing.T) {
	cfg := testConfig()
	cfg.SupabaseURL = "http://127.0.0.1:1"
	cfg.SupabaseAnonKey = "anon"
	state := localstate.NewMemoryStore()

	a, err := New(context.Background(), cfg, Options{SkipTelemetry: true, State: state})
	require.NoError(t, err)
	assert.False(t, a.Session.IsDemo())
	assert.NotNil(t, a.Realtime)
	assert.NotNil(t, a.Contacts)
	assert.False(t, a.Session.IsAuthenticated())
	require.NoError(t, a.Close())

	_, _, err = state.Get(context.Background(), localstate.KeyAuthSession)
	assert.NoError(t, err, "caller-supplied state is not closed by the app")
}

func TestLoginRequiredAfterUnrecoverable401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success":false,"error":"Token expired"}`))
	}))
	defer srv.Close()
	cfg := testConfig()
	cfg.APIURL = srv.URL + "/api"

	a, err := New(context.Background(), cfg, Options{SkipTelemetry: true})
	require.NoError(t, err)
	defer a.Close()
	ctx := context.Background()
	_, err = a.Session.RequestCode(ctx, "+60123456789")
	require.NoError(t, err)
	_, err = a.Session.VerifyCode(ctx, "+60123456789", "123456")
	require.NoError(t, err)

	assert.False(t, a.LoginRequired())
	_, err = a.API.Contacts.List(ctx, crmapi.ContactQuery{})
	var authErr *apiclient.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.True(t, a.LoginRequired())
}

func TestClose_Idempotent(t *testing.T) {
	a, err := New(context.Background(), testConfig(), Options{SkipTelemetry: true})
	require.NoError(t, err)
	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}
