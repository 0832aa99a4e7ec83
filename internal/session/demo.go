package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"resultmarketing-crm/client/internal/localstate"
	"resultmarketing-crm/client/internal/session/domain"
)

// demoUserPrefix prefixes generated demo user ids.
const demoUserPrefix = "demo-user-"

// verifyDemo accepts any code of exactly the configured length, counted as given, for any phone
// and creates a fresh demo identity. The caller persists it.
func (s *Store) verifyDemo(phone, code string) (*domain.AuthSession, error) {
	if len([]rune(code)) != s.codeLen {
		return nil, ErrInvalidCode
	}
	id := domain.Identity{
		ID:        demoUserPrefix + uuid.New().String(),
		Phone:     phone,
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}
	cred, err := s.mintDemoCredential(id)
	if err != nil {
		return nil, err
	}
	return &domain.AuthSession{Identity: id, Credential: *cred}, nil
}

// recoverDemo loads the persisted demo identity and mints a new credential for it.
func (s *Store) recoverDemo(ctx context.Context) (*domain.AuthSession, error) {
	raw, ok, err := s.local.Get(ctx, localstate.KeyDemoUser)
	if err != nil {
		return nil, fmt.Errorf("session: read demo user: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var id domain.Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil || id.ID == "" {
		s.dropPersisted(ctx, localstate.KeyDemoUser)
		return nil, nil
	}
	cred, err := s.mintDemoCredential(id)
	if err != nil {
		return nil, err
	}
	return &domain.AuthSession{Identity: id, Credential: *cred}, nil
}

func (s *Store) mintDemoCredential(id domain.Identity) (*domain.Credential, error) {
	token, exp, err := s.tokens.IssueAccess(id.ID, id.Phone)
	if err != nil {
		return nil, fmt.Errorf("session: mint demo credential: %w", err)
	}
	return &domain.Credential{AccessToken: token, TokenType: "bearer", ExpiresAt: exp}, nil
}

func (s *Store) saveDemoIdentity(ctx context.Context, gen uint64, id domain.Identity) error {
	raw, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("session: encode demo user: %w", err)
	}
	err = s.persist(ctx, gen, localstate.KeyDemoUser, string(raw))
	if err != nil && !errors.Is(err, ErrNotAuthenticated) {
		return fmt.Errorf("session: persist demo user: %w", err)
	}
	return err
}
