// Package session owns the authenticated identity and bearer credentials
// and keeps them in lock-step with persisted storage.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"bloodlink.org/internal/audit"
	"bloodlink.org/internal/auth"
	"bloodlink.org/internal/blood"
	"bloodlink.org/internal/obs"
	"bloodlink.org/internal/storage"
	"bloodlink.org/internal/stream"
)

// Session is the authenticated state. A valid Session always carries a
// non-empty access token.
type Session struct {
	Identity     blood.Identity
	AccessToken  string
	RefreshToken string
}

// EventKind names a session transition.
type EventKind string

const (
	EventLogin   EventKind = "login"
	EventLogout  EventKind = "logout"
	EventRestore EventKind = "restore"
	EventRefresh EventKind = "refresh"
)

// Event is delivered to subscribers after a transition completes.
type Event struct {
	Kind     EventKind
	Identity blood.Identity
	At       time.Time
}

// Backend is the subset of the gateway the session needs.
type Backend interface {
	ExchangeCredentials(ctx context.Context, username, password string) (auth.TokenPair, error)
	RefreshAccess(ctx context.Context, refreshToken string) (string, error)
	Register(ctx context.Context, reg blood.Registration) error
	Me(ctx context.Context) (blood.Profile, error)
}

// Store is the single owner of the session. Mutations are serialised;
// readers see either the previous or the next session, never a mix.
type Store struct {
	backend Backend
	storage storage.Storage
	events  *stream.Broker[Event]
	now     func() time.Time

	opMu    sync.Mutex
	mu      sync.RWMutex
	current *Session
}

// Option configures Store.
type Option func(*Store)

// WithClock overrides the event timestamp source.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// New builds a store with no active session. Call Restore to pick up a
// persisted one.
func New(backend Backend, st storage.Storage, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		storage: st,
		events:  stream.New[Event](0),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe delivers session events until ctx ends.
func (s *Store) Subscribe(ctx context.Context) <-chan Event {
	return s.events.Subscribe(ctx)
}

// Current returns the active session.
func (s *Store) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// Authorize returns ctx carrying the bearer token and acting username of the
// active session.
func (s *Store) Authorize(ctx context.Context) (context.Context, error) {
	sess, ok := s.Current()
	if !ok {
		return ctx, fmt.Errorf("%w: not logged in", blood.ErrAuthentication)
	}
	ctx = auth.ContextWithToken(ctx, sess.AccessToken)
	return auth.ContextWithActor(ctx, sess.Identity.Username), nil
}

// Restore rebuilds the session from storage. Absent or malformed state
// yields ok=false; it never returns an error.
func (s *Store) Restore(ctx context.Context) (Session, bool) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	sess, err := s.load(ctx)
	if err != nil {
		obs.Logger().WithError(err).Debug("no session restored")
		return Session{}, false
	}
	s.set(&sess)
	s.publish(EventRestore, sess.Identity)
	return sess, true
}

func (s *Store) load(ctx context.Context) (Session, error) {
	access, ok, err := s.storage.Get(ctx, storage.KeyAccessToken)
	if err != nil {
		return Session{}, err
	}
	if !ok || strings.TrimSpace(access) == "" {
		return Session{}, errors.New("no access token")
	}
	refresh, _, err := s.storage.Get(ctx, storage.KeyRefreshToken)
	if err != nil {
		return Session{}, err
	}
	raw, ok, err := s.storage.Get(ctx, storage.KeyUser)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, errors.New("no identity")
	}
	var id blood.Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return Session{}, fmt.Errorf("decode identity: %w", err)
	}
	if strings.TrimSpace(id.Username) == "" || !id.Role.Valid() {
		return Session{}, errors.New("identity incomplete")
	}
	if id.BloodGroup != "" && !id.BloodGroup.Valid() {
		return Session{}, errors.New("identity blood group invalid")
	}
	return Session{Identity: id, AccessToken: access, RefreshToken: refresh}, nil
}

// Login exchanges credentials, persists the tokens and resolves the
// identity. When the profile lookup fails the identity is recovered from the
// access token payload with role Admin; that path never fails the login.
func (s *Store) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, fmt.Errorf("%w: username and password are required", blood.ErrValidation)
	}
	ctx = audit.EnsureRequestID(ctx)

	s.opMu.Lock()
	defer s.opMu.Unlock()

	pair, err := s.backend.ExchangeCredentials(ctx, username, password)
	if err != nil {
		return Session{}, err
	}
	if strings.TrimSpace(pair.Access) == "" {
		return Session{}, fmt.Errorf("%w: empty access token", blood.ErrAuthentication)
	}

	// The previous identity must not survive next to the new tokens.
	if err := s.storage.Delete(ctx, storage.KeyUser); err != nil {
		return Session{}, s.abort(ctx, fmt.Errorf("persist session: %w", err))
	}
	if err := s.storage.Set(ctx, storage.KeyAccessToken, pair.Access); err != nil {
		return Session{}, s.abort(ctx, fmt.Errorf("persist session: %w", err))
	}
	if err := s.storage.Set(ctx, storage.KeyRefreshToken, pair.Refresh); err != nil {
		return Session{}, s.abort(ctx, fmt.Errorf("persist session: %w", err))
	}

	authed := auth.ContextWithActor(auth.ContextWithToken(ctx, pair.Access), username)
	identity, fallback := s.resolveIdentity(authed, username, pair.Access)

	raw, err := json.Marshal(identity)
	if err != nil {
		return Session{}, s.abort(ctx, err)
	}
	if err := s.storage.Set(ctx, storage.KeyUser, string(raw)); err != nil {
		return Session{}, s.abort(ctx, fmt.Errorf("persist session: %w", err))
	}

	sess := Session{Identity: identity, AccessToken: pair.Access, RefreshToken: pair.Refresh}
	s.set(&sess)
	s.publish(EventLogin, identity)

	event := "session.login"
	if fallback {
		event = "session.login_fallback"
	}
	_ = audit.LogEvent(auth.ContextWithActor(ctx, identity.Username), event, map[string]any{
		"role": string(identity.Role),
	})
	return sess, nil
}

func (s *Store) resolveIdentity(ctx context.Context, username, access string) (blood.Identity, bool) {
	profile, err := s.backend.Me(ctx)
	if err == nil {
		id := blood.IdentityFromProfile(profile)
		if id.Username == "" {
			id.Username = username
		}
		if id.Role.Valid() {
			return id, false
		}
		err = fmt.Errorf("profile carries unknown role %q", profile.Role)
	}

	id := blood.Identity{Username: username, Role: blood.RoleAdmin}
	payload, decodeErr := auth.DecodeUnverified(access)
	if decodeErr == nil {
		if payload.Username != "" {
			id.Username = payload.Username
		}
		id.UserID = payload.UserID
	}
	obs.Logger().WithFields(logrus.Fields{
		"request_id":   audit.RequestIDFromContext(ctx),
		"username":     id.Username,
		"lookup_error": err.Error(),
		"decoded":      decodeErr == nil,
	}).Warn("profile lookup failed, continuing as admin")
	return id, true
}

// abort drops any partially persisted login and returns err.
func (s *Store) abort(ctx context.Context, err error) error {
	s.clear(ctx)
	return err
}

// Logout clears memory and storage. Storage errors are logged, not returned.
// Observers hear about it only when a session was active.
func (s *Store) Logout(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	prev, had := s.Current()
	s.clear(ctx)
	if had {
		s.publish(EventLogout, prev.Identity)
		_ = audit.LogEvent(auth.ContextWithActor(audit.EnsureRequestID(ctx), prev.Identity.Username), "session.logout", nil)
	}
}

// clear drops the in-memory session and the persisted keys. When the delete
// fails the access token is blanked, which load treats as no session.
func (s *Store) clear(ctx context.Context) {
	s.set(nil)
	err := s.storage.Delete(ctx, storage.KeyAccessToken, storage.KeyRefreshToken, storage.KeyUser)
	if err == nil {
		return
	}
	obs.Logger().WithError(err).Warn("clear persisted session")
	if err := s.storage.Set(ctx, storage.KeyAccessToken, ""); err != nil {
		obs.Logger().WithError(err).Error("blank persisted access token")
	}
}

// Refresh exchanges the refresh token for a new access token. It does not
// log out on failure; that decision belongs to the caller.
func (s *Store) Refresh(ctx context.Context) (Session, error) {
	ctx = audit.EnsureRequestID(ctx)

	s.opMu.Lock()
	defer s.opMu.Unlock()

	sess, ok := s.Current()
	if !ok {
		return Session{}, fmt.Errorf("%w: not logged in", blood.ErrAuthentication)
	}
	if sess.RefreshToken == "" {
		return Session{}, fmt.Errorf("%w: no refresh token", blood.ErrAuthentication)
	}
	access, err := s.backend.RefreshAccess(ctx, sess.RefreshToken)
	if err != nil {
		return Session{}, err
	}
	if err := s.storage.Set(ctx, storage.KeyAccessToken, access); err != nil {
		return Session{}, fmt.Errorf("persist session: %w", err)
	}
	sess.AccessToken = access
	s.set(&sess)
	s.publish(EventRefresh, sess.Identity)
	_ = audit.LogEvent(auth.ContextWithActor(ctx, sess.Identity.Username), "session.refresh", nil)
	return sess, nil
}

// Register validates the form locally, creates the account and logs in
// with the same credentials.
func (s *Store) Register(ctx context.Context, reg blood.Registration) (Session, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	if err := reg.Validate(); err != nil {
		return Session{}, err
	}
	ctx = audit.EnsureRequestID(ctx)
	if err := s.backend.Register(ctx, reg); err != nil {
		return Session{}, err
	}
	_ = audit.LogEvent(auth.ContextWithActor(ctx, reg.Username), "session.register", map[string]any{
		"kind": string(reg.Kind),
	})
	return s.Login(ctx, reg.Username, reg.Password)
}

func (s *Store) set(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = sess
}

func (s *Store) publish(kind EventKind, id blood.Identity) {
	s.events.Publish(Event{Kind: kind, Identity: id, At: s.now()})
}
