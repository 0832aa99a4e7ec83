// Package app builds the client's object graph from config: local state, session store, request
// clients, contacts data and the realtime bridge. It is the only place that knows how they fit.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"

	"resultmarketing-crm/client/internal/apiclient"
	"resultmarketing-crm/client/internal/baas"
	"resultmarketing-crm/client/internal/config"
	"resultmarketing-crm/client/internal/contacts"
	"resultmarketing-crm/client/internal/contacts/repository"
	"resultmarketing-crm/client/internal/crmapi"
	"resultmarketing-crm/client/internal/db"
	"resultmarketing-crm/client/internal/localstate"
	"resultmarketing-crm/client/internal/policy/engine"
	"resultmarketing-crm/client/internal/realtime"
	"resultmarketing-crm/client/internal/session"
	"resultmarketing-crm/client/internal/session/domain"
	"resultmarketing-crm/client/internal/telemetry"
	otelemit "resultmarketing-crm/client/internal/telemetry/otel"
	"resultmarketing-crm/client/internal/telemetry/producer"
)

// App holds the wired client. Realtime and Contacts are nil when their backend is not configured.
type App struct {
	Config   *config.Config
	Mode     engine.ModeResult
	Session  *session.Store
	Primary  *apiclient.Client
	AI       *apiclient.Client
	API      *crmapi.API
	Contacts *contacts.Service
	Realtime *realtime.Bridge

	loginRequired atomic.Bool
	closers       []func() error
	unsubscribe   func()
}

// Options overrides parts of the graph, mainly for tests.
type Options struct {
	// Evaluator decides the session mode. Defaults to the OPA evaluator loaded from POLICY_FILE.
	Evaluator engine.Evaluator
	// State replaces the local store selected by LOCAL_STATE_DRIVER.
	State localstate.Store
	// Emitters are added to the session event fan-out.
	Emitters []telemetry.EventEmitter
	// SkipTelemetry leaves the global OTel providers untouched.
	SkipTelemetry bool
}

// New wires the client and recovers any persisted session. The returned App must be closed.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	a := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	emitters := append([]telemetry.EventEmitter(nil), opts.Emitters...)
	if !opts.SkipTelemetry {
		var attrs []attribute.KeyValue
		if cfg.Env != "" {
			attrs = append(attrs, attribute.String("deployment.environment.name", cfg.Env))
		}
		providers, err := otelemit.NewProviders(ctx, cfg.OTLPEndpoint, otelemit.DefaultServiceName, cfg.OTLPInsecure, attrs...)
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		providers.SetGlobal()
		a.closers = append(a.closers, func() error { return providers.Shutdown(context.Background()) })
		emitters = append(emitters, otelemit.NewEventEmitter(providers.LoggerProvider))
	}
	kp, err := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	if err != nil {
		return nil, fmt.Errorf("telemetry kafka: %w", err)
	}
	if kp != nil {
		a.closers = append(a.closers, kp.Close)
		emitters = append(emitters, kp)
	}

	evaluator := opts.Evaluator
	if evaluator == nil {
		ev, err := engine.NewOPAEvaluatorFromFile(cfg.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("policy: %w", err)
		}
		evaluator = ev
	}
	mode, err := evaluator.EvaluateMode(ctx, engine.ModeInput{Env: cfg.Env, BackendConfigured: !cfg.IsDemoMode()})
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	a.Mode = mode

	state := opts.State
	if state == nil {
		if state, err = localstate.Open(cfg); err != nil {
			return nil, fmt.Errorf("local state: %w", err)
		}
		a.closers = append(a.closers, state.Close)
	}

	var backend *baas.Client
	var provider session.AuthProvider
	if !cfg.IsDemoMode() {
		backend = baas.New(cfg.SupabaseURL, cfg.SupabaseAnonKey)
		provider = backend
	}

	store, err := session.New(session.Options{
		Provider:     provider,
		State:        state,
		Mode:         mode,
		OTPTTL:       cfg.OTPTTL(),
		DemoTokenTTL: cfg.DemoTokenTTL(),
		Emitter:      telemetry.Multi(emitters...),
	})
	if err != nil {
		return nil, err
	}
	a.Session = store
	a.closers = append(a.closers, store.Close)
	if backend != nil {
		backend.SetAccessToken(store.AccessToken)
	}

	onLogin := func() { a.loginRequired.Store(true) }
	a.Primary = apiclient.New(apiclient.Primary, cfg.APIURL, cfg.APITimeoutDuration(), store, apiclient.WithLoginRedirect(onLogin))
	a.AI = apiclient.New(apiclient.AI, cfg.AIAPIURL, cfg.AITimeoutDuration(), store, apiclient.WithLoginRedirect(onLogin))
	a.API = crmapi.New(a.Primary, a.AI)

	repo, err := a.contactsRepository(ctx, backend)
	if err != nil {
		return nil, err
	}
	if repo != nil {
		a.Contacts = contacts.NewService(repo, store, contacts.NewRepoRecorder(repo))
	}

	if rtURL := cfg.RealtimeURL(); rtURL != "" {
		bridge := realtime.NewBridge(rtURL, cfg.SupabaseAnonKey, store, realtime.WithHeartbeat(cfg.HeartbeatInterval()))
		a.Realtime = bridge
		a.closers = append(a.closers, bridge.Close)
		a.unsubscribe = store.Subscribe(func(ev domain.Event) {
			if ev.Type != domain.EventTokenRefreshed || ev.Credential == nil {
				return
			}
			if err := bridge.UpdateAccessToken(context.Background(), ev.Credential.AccessToken); err != nil {
				log.Printf("app: push refreshed token to realtime: %v", err)
			}
		})
	}

	if err := store.Initialize(ctx); err != nil {
		log.Printf("app: session recovery failed: %v", err)
	}
	ok = true
	return a, nil
}

// contactsRepository picks the direct database when DATABASE_URL is set, else the BaaS tables.
func (a *App) contactsRepository(ctx context.Context, backend *baas.Client) (repository.Repository, error) {
	if a.Config.DatabaseURL != "" {
		conn, err := db.OpenContext(ctx, a.Config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("contacts database: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		return repository.NewPostgresRepository(conn), nil
	}
	if backend != nil {
		return repository.NewRESTRepository(backend), nil
	}
	return nil, nil
}

// LoginRequired reports whether a request was abandoned because the session could not be renewed.
func (a *App) LoginRequired() bool {
	return a.loginRequired.Load()
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() error {
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
