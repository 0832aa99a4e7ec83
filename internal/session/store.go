// Package session owns the signed-in identity and its credential: phone OTP sign-in, recovery from
// local state, refresh, profile updates and sign-out, with observers for each lifecycle change.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"resultmarketing-crm/client/internal/baas"
	"resultmarketing-crm/client/internal/localstate"
	"resultmarketing-crm/client/internal/policy/engine"
	"resultmarketing-crm/client/internal/security"
	"resultmarketing-crm/client/internal/session/domain"
	"resultmarketing-crm/client/internal/telemetry"
)

// Sentinel errors returned by Store operations.
var (
	ErrDemoNotAllowed   = errors.New("session: demo mode is not allowed in this environment")
	ErrNoProvider       = errors.New("session: live mode requires an auth provider")
	ErrInvalidPhone     = errors.New("session: phone number is required")
	ErrInvalidCode      = errors.New("session: invalid OTP code")
	ErrNotAuthenticated = errors.New("session: not authenticated")
	ErrClosed           = errors.New("session: store closed")
)

const (
	defaultOTPTTL = 5 * time.Minute
	// refreshSkew treats a persisted credential as expired slightly early during Initialize.
	refreshSkew = 30 * time.Second
)

// AuthProvider is the remote auth service used in live mode. *baas.Client implements it.
type AuthProvider interface {
	SendOTP(ctx context.Context, phone string) error
	VerifyOTP(ctx context.Context, phone, code string) (*domain.AuthSession, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.AuthSession, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*domain.Identity, error)
	UpdateUser(ctx context.Context, accessToken string, patch domain.ProfilePatch) (*domain.Identity, error)
}

// Options configures a Store.
type Options struct {
	// Provider is required unless Mode.DemoMode is set.
	Provider AuthProvider
	// State persists the session across restarts. Defaults to an in-memory store.
	State localstate.Store
	// Mode is the session-mode policy decision.
	Mode engine.ModeResult

	OTPTTL         time.Duration
	DemoTokenTTL   time.Duration
	DemoSigningKey []byte

	// Emitter receives a telemetry event per lifecycle change. Optional.
	Emitter telemetry.EventEmitter
	Now     func() time.Time
}

// Store is the session store. It is safe for concurrent use. Observers are called synchronously,
// after the change is visible, without the store lock held.
type Store struct {
	provider AuthProvider
	local    localstate.Store
	demo     bool
	codeLen  int
	otpTTL   time.Duration
	tokens   *security.TokenProvider
	emitter  telemetry.EventEmitter
	now      func() time.Time

	mu        sync.Mutex
	state     domain.State
	identity  *domain.Identity
	cred      *domain.Credential
	challenge *domain.Challenge
	lastErr   error
	// gen changes on every sign-in and sign-out so results of in-flight calls for an older
	// identity are discarded.
	gen       uint64
	observers map[int]func(domain.Event)
	nextObs   int
	closed    bool

	// persistMu is held across the gen check and the local-state write in persist, and by
	// SignOut while it clears local state.
	persistMu sync.Mutex
}

// New returns a Store in the uninitialized state.
func New(opts Options) (*Store, error) {
	if opts.Mode.DemoMode && !opts.Mode.DemoAllowed {
		return nil, ErrDemoNotAllowed
	}
	if !opts.Mode.DemoMode && opts.Provider == nil {
		return nil, ErrNoProvider
	}
	s := &Store{
		provider:  opts.Provider,
		local:     opts.State,
		demo:      opts.Mode.DemoMode,
		codeLen:   opts.Mode.OTPCodeLength,
		otpTTL:    opts.OTPTTL,
		emitter:   opts.Emitter,
		now:       opts.Now,
		state:     domain.StateUninitialized,
		observers: make(map[int]func(domain.Event)),
	}
	if s.local == nil {
		s.local = localstate.NewMemoryStore()
	}
	if s.codeLen <= 0 {
		s.codeLen = 6
	}
	if s.otpTTL <= 0 {
		s.otpTTL = defaultOTPTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.demo {
		tokens, err := security.NewTokenProvider(opts.DemoSigningKey, opts.DemoTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("session: demo tokens: %w", err)
		}
		s.tokens = tokens
	}
	return s, nil
}

// Initialize recovers a persisted session. It always leaves the store out of the loading state;
// on failure the error is also recorded in LastError and the store is anonymous.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.state = domain.StateLoading
	gen := s.gen
	s.mu.Unlock()

	var (
		sess *domain.AuthSession
		err  error
	)
	if s.demo {
		sess, err = s.recoverDemo(ctx)
	} else {
		sess, err = s.recoverLive(ctx, gen)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr = err
		log.Printf("session: initialize: %v", err)
	}
	if s.gen != gen {
		// A sign-in or sign-out finished while recovering and already set the state.
		return err
	}
	if sess != nil {
		s.identity = &sess.Identity
		s.cred = &sess.Credential
		s.state = domain.StateAuthenticated
		s.gen++
	} else {
		s.identity, s.cred = nil, nil
		s.state = domain.StateAnonymous
	}
	return err
}

func (s *Store) recoverLive(ctx context.Context, gen uint64) (*domain.AuthSession, error) {
	raw, ok, err := s.local.Get(ctx, localstate.KeyAuthSession)
	if err != nil {
		return nil, fmt.Errorf("session: read persisted session: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var sess domain.AuthSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil || sess.Identity.ID == "" {
		s.dropPersisted(ctx, localstate.KeyAuthSession)
		return nil, nil
	}
	if !sess.Credential.Expired(s.now(), refreshSkew) {
		return &sess, nil
	}
	refreshed, err := s.provider.Refresh(ctx, sess.Credential.RefreshToken)
	if err != nil {
		s.dropPersisted(ctx, localstate.KeyAuthSession)
		return nil, fmt.Errorf("session: refresh persisted session: %w", err)
	}
	if refreshed.Identity.ID == "" {
		refreshed.Identity = sess.Identity
	}
	if err := s.persistLive(ctx, gen, refreshed); err != nil {
		return nil, nil
	}
	return refreshed, nil
}

// RequestCode starts an OTP challenge for phone. The challenge is recorded only on success.
func (s *Store) RequestCode(ctx context.Context, phone string) (*domain.Challenge, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, s.fail(ErrInvalidPhone)
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.demo {
		if err := s.local.Set(ctx, localstate.KeyDemoPhone, phone); err != nil {
			return nil, s.fail(fmt.Errorf("session: record demo phone: %w", err))
		}
	} else if err := s.provider.SendOTP(ctx, phone); err != nil {
		return nil, s.fail(fmt.Errorf("session: send code: %w", err))
	}

	now := s.now().UTC()
	c := &domain.Challenge{Phone: phone, IssuedAt: now, ExpiresAt: now.Add(s.otpTTL)}
	s.mu.Lock()
	s.challenge = c
	s.lastErr = nil
	s.mu.Unlock()
	cp := *c
	return &cp, nil
}

// VerifyCode completes sign-in. On success the identity and credential are set together and
// observers receive SIGNED_IN. On failure neither is touched.
func (s *Store) VerifyCode(ctx context.Context, phone, code string) (*domain.Identity, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, s.fail(ErrInvalidPhone)
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var (
		sess *domain.AuthSession
		err  error
	)
	if s.demo {
		sess, err = s.verifyDemo(phone, code)
	} else {
		code = strings.TrimSpace(code)
		sess, err = s.provider.VerifyOTP(ctx, phone, code)
		if err != nil {
			if baas.IsClientError(err) {
				err = fmt.Errorf("%w: %v", ErrInvalidCode, err)
			} else {
				err = fmt.Errorf("session: verify code: %w", err)
			}
		}
	}
	if err != nil {
		return nil, s.fail(err)
	}

	s.mu.Lock()
	s.identity = &sess.Identity
	s.cred = &sess.Credential
	s.state = domain.StateAuthenticated
	s.challenge = nil
	s.lastErr = nil
	s.gen++
	gen := s.gen
	ev := s.eventLocked(domain.EventSignedIn)
	s.mu.Unlock()

	if s.demo {
		if err := s.saveDemoIdentity(ctx, gen, sess.Identity); err != nil {
			log.Printf("session: %v", err)
		}
	} else {
		_ = s.persistLive(ctx, gen, sess)
	}
	s.emit(ev)
	id := sess.Identity
	return &id, nil
}

// SignOut clears the identity and credential. Remote revocation and local cleanup failures are
// logged, never returned. Calling it while signed out is a no-op.
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	cred := s.cred
	wasSignedIn := s.identity != nil
	s.identity, s.cred, s.challenge = nil, nil, nil
	s.state = domain.StateAnonymous
	s.gen++
	ev := s.eventLocked(domain.EventSignedOut)
	s.mu.Unlock()

	if !s.demo && cred != nil && cred.AccessToken != "" {
		if err := s.provider.SignOut(ctx, cred.AccessToken); err != nil {
			log.Printf("session: remote sign-out failed: %v", err)
		}
	}
	s.persistMu.Lock()
	if s.demo {
		s.dropPersisted(ctx, localstate.KeyDemoUser, localstate.KeyDemoPhone)
	} else {
		s.dropPersisted(ctx, localstate.KeyAuthSession)
	}
	s.persistMu.Unlock()

	if wasSignedIn {
		s.emit(ev)
	}
	return nil
}

// Refresh extends the credential. In demo mode it succeeds without doing anything. On failure
// the credential is left unchanged.
func (s *Store) Refresh(ctx context.Context) error {
	if s.demo {
		return s.checkOpen()
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.cred == nil || s.cred.RefreshToken == "" {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	refreshToken := s.cred.RefreshToken
	identity := *s.identity
	gen := s.gen
	s.mu.Unlock()

	sess, err := s.provider.Refresh(ctx, refreshToken)
	if err != nil {
		return s.fail(fmt.Errorf("session: refresh: %w", err))
	}
	if sess.Identity.ID == "" {
		sess.Identity = identity
	}
	if err := s.persistLive(ctx, gen, sess); err != nil {
		return err
	}

	s.mu.Lock()
	if s.gen != gen || s.identity == nil {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	s.identity = &sess.Identity
	s.cred = &sess.Credential
	ev := s.eventLocked(domain.EventTokenRefreshed)
	s.mu.Unlock()

	s.emit(ev)
	return nil
}

// UpdateProfile merges patch into the identity and returns the result.
func (s *Store) UpdateProfile(ctx context.Context, patch domain.ProfilePatch) (*domain.Identity, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.identity == nil {
		s.mu.Unlock()
		return nil, s.fail(ErrNotAuthenticated)
	}
	current := *s.identity
	cred := *s.cred
	token := cred.AccessToken
	gen := s.gen
	s.mu.Unlock()

	if patch.Empty() {
		return &current, nil
	}

	var updated domain.Identity
	if s.demo {
		updated = patch.Apply(current)
		if err := s.saveDemoIdentity(ctx, gen, updated); err != nil {
			if errors.Is(err, ErrNotAuthenticated) {
				return nil, err
			}
			return nil, s.fail(err)
		}
	} else {
		remote, err := s.provider.UpdateUser(ctx, token, patch)
		if err != nil {
			return nil, s.fail(fmt.Errorf("session: update profile: %w", err))
		}
		updated = patch.Apply(current)
		if remote != nil && remote.ID != "" {
			updated = *remote
		}
		if err := s.persistLive(ctx, gen, &domain.AuthSession{Identity: updated, Credential: cred}); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	if s.gen != gen || s.identity == nil {
		s.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	s.identity = &updated
	s.lastErr = nil
	ev := s.eventLocked(domain.EventUserUpdated)
	latest := *s.cred
	s.mu.Unlock()

	if !s.demo && latest != cred {
		// A Refresh committed meanwhile; store its credential with the new profile.
		_ = s.persistLive(ctx, gen, &domain.AuthSession{Identity: updated, Credential: latest})
	}
	s.emit(ev)
	out := updated
	return &out, nil
}

// Subscribe registers fn for lifecycle events and returns a function that removes it.
func (s *Store) Subscribe(fn func(domain.Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Identity returns a copy of the signed-in identity, or nil.
func (s *Store) Identity() *domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// UserID returns the signed-in user's ID, or "".
func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return ""
	}
	return s.identity.ID
}

// Credential returns a copy of the current credential, or nil.
func (s *Store) Credential() *domain.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return nil
	}
	c := *s.cred
	return &c
}

// AccessToken returns the current access token, or "" when signed out.
func (s *Store) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return ""
	}
	return s.cred.AccessToken
}

func (s *Store) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Loading reports whether Initialize has not finished yet.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == domain.StateUninitialized || s.state == domain.StateLoading
}

func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Store) ClearError() {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
}

// PendingChallenge returns the outstanding OTP challenge if it has not timed out.
func (s *Store) PendingChallenge() *domain.Challenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.challenge.Valid(s.now()) {
		return nil
	}
	c := *s.challenge
	return &c
}

func (s *Store) IsDemo() bool { return s.demo }

func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity != nil && s.cred != nil
}

// Close drops all observers. Later operations return ErrClosed. The local state store is owned
// by the caller and is not closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.observers = make(map[int]func(domain.Event))
	return nil
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// fail records err as the last error and returns it.
func (s *Store) fail(err error) error {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return err
}

// eventLocked snapshots the current state into an event. s.mu must be held.
func (s *Store) eventLocked(t domain.EventType) domain.Event {
	ev := domain.Event{Type: t, At: s.now().UTC()}
	if s.identity != nil {
		id := *s.identity
		ev.Identity = &id
	}
	if s.cred != nil {
		c := *s.cred
		ev.Credential = &c
	}
	return ev
}

func (s *Store) emit(ev domain.Event) {
	s.mu.Lock()
	fns := make([]func(domain.Event), 0, len(s.observers))
	for i := 0; i < s.nextObs; i++ {
		if fn, ok := s.observers[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}

	mode := "live"
	if s.demo {
		mode = "demo"
	}
	te := &telemetry.Event{
		Type:      string(ev.Type),
		Source:    "session",
		Metadata:  map[string]string{"mode": mode},
		CreatedAt: ev.At,
	}
	if ev.Identity != nil {
		te.UserID = ev.Identity.ID
	}
	telemetry.EmitAsync(s.emitter, context.Background(), te)
}

// persist writes value under key unless a sign-in or sign-out moved the store past gen, in which
// case it writes nothing and returns ErrNotAuthenticated. A SignOut that starts during the write
// clears local state only after the write is done.
func (s *Store) persist(ctx context.Context, gen uint64, key, value string) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	s.mu.Lock()
	stale := s.gen != gen
	s.mu.Unlock()
	if stale {
		return ErrNotAuthenticated
	}
	return s.local.Set(ctx, key, value)
}

// persistLive stores the live session. Write failures are logged; only a stale gen is returned.
func (s *Store) persistLive(ctx context.Context, gen uint64, sess *domain.AuthSession) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		log.Printf("session: encode session: %v", err)
		return nil
	}
	err = s.persist(ctx, gen, localstate.KeyAuthSession, string(raw))
	if errors.Is(err, ErrNotAuthenticated) {
		return err
	}
	if err != nil {
		log.Printf("session: persist session: %v", err)
	}
	return nil
}

func (s *Store) dropPersisted(ctx context.Context, keys ...string) {
	if err := s.local.Delete(ctx, keys...); err != nil {
		log.Printf("session: clear persisted state: %v", err)
	}
}
