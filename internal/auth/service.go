// Package auth handles accounts and sessions: passwords, magic links,
// OAuth redirects and session-change notifications.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/internal/realtime"
	"github.com/BuzzLyutic/taskboard/internal/repo"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserExists         = errors.New("user already exists")
	ErrUnknownProvider    = errors.New("unknown oauth provider")
)

const CallbackPath = "/auth/callback"

type Event string

const (
	EventSignedIn    Event = "SIGNED_IN"
	EventSignedOut   Event = "SIGNED_OUT"
	EventUserUpdated Event = "USER_UPDATED"
)

type StateChange struct {
	Event  Event
	UserID string
}

type Session struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresAt   time.Time     `json:"expires_at"`
	User        model.Profile `json:"user"`
}

// LinkSender delivers magic links to users.
type LinkSender interface {
	SendMagicLink(ctx context.Context, email, link string) error
}

// LogLinkSender writes magic links to the log instead of sending mail.
type LogLinkSender struct {
	Logger *zap.Logger
}

func (s LogLinkSender) SendMagicLink(_ context.Context, email, link string) error {
	s.Logger.Info("magic link issued", zap.String("email", email), zap.String("link", link))
	return nil
}

type OAuthProvider struct {
	AuthURL  string
	ClientID string
	Scopes   []string
}

type Config struct {
	Tokens     TokenConfig
	BaseURL    string
	BcryptCost int
	Providers  map[string]OAuthProvider

	// RedirectAllowlist holds extra origins accepted as redirect_to.
	RedirectAllowlist []string
}

type Service struct {
	profiles  repo.ProfileRepository
	hasher    *PasswordHasher
	tokens    *TokenManager
	sender    LinkSender
	logger    *zap.Logger
	baseURL   string
	redirects map[string]bool
	providers map[string]OAuthProvider

	mu      sync.Mutex
	revoked map[string]time.Time // jti -> истечение

	lmu       sync.RWMutex
	listeners map[string]func(StateChange)
}

func NewService(profiles repo.ProfileRepository, cfg Config, sender LinkSender, logger *zap.Logger) *Service {
	if sender == nil {
		sender = LogLinkSender{Logger: logger}
	}
	return &Service{
		profiles:  profiles,
		hasher:    NewPasswordHasher(cfg.BcryptCost),
		tokens:    NewTokenManager(cfg.Tokens),
		sender:    sender,
		logger:    logger,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		redirects: allowedOrigins(cfg.BaseURL, cfg.RedirectAllowlist),
		providers: cfg.Providers,
		revoked:   make(map[string]time.Time),
		listeners: make(map[string]func(StateChange)),
	}
}

func (s *Service) SignUp(ctx context.Context, email, password, fullName string) (Session, error) {
	if err := ValidateSignUp(email, password, fullName); err != nil {
		return Session{}, err
	}
	email = strings.TrimSpace(email)

	_, err := s.profiles.FindByEmail(ctx, email)
	if err == nil {
		return Session{}, ErrUserExists
	}
	if !errors.Is(err, repo.ErrorNotFound) {
		return Session{}, fmt.Errorf("failed to check email: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return Session{}, fmt.Errorf("failed to hash password: %w", err)
	}

	name := strings.TrimSpace(fullName)
	now := time.Now()
	profile, err := s.profiles.Create(ctx, model.Profile{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     &name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if errors.Is(err, repo.ErrorConflict) {
		return Session{}, ErrUserExists
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to create profile: %w", err)
	}

	s.logger.Info("user signed up", zap.String("user_id", profile.ID))
	return s.startSession(profile)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	profile, err := s.profiles.FindByEmail(ctx, email)
	if errors.Is(err, repo.ErrorNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to find profile: %w", err)
	}
	// профили из magic link не имеют пароля
	if profile.PasswordHash == "" || !s.hasher.Verify(password, profile.PasswordHash) {
		return Session{}, ErrInvalidCredentials
	}
	return s.startSession(profile)
}

// SignInWithOAuth returns the provider URL the user should be redirected to.
func (s *Service) SignInWithOAuth(provider, redirectTo string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	redirectTo, err := s.checkRedirect(redirectTo)
	if err != nil {
		return "", err
	}

	state, _, err := s.tokens.issue("", "", tokenOAuthState, redirectTo)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}

	u, err := url.Parse(p.AuthURL)
	if err != nil {
		return "", fmt.Errorf("bad auth url for %s: %w", provider, err)
	}
	q := u.Query()
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", redirectTo)
	q.Set("response_type", "code")
	q.Set("state", state)
	if len(p.Scopes) > 0 {
		q.Set("scope", strings.Join(p.Scopes, " "))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// VerifyOAuthState checks a state value returned by the provider and yields its redirect target.
func (s *Service) VerifyOAuthState(state string) (string, error) {
	claims, err := s.tokens.parse(state, tokenOAuthState)
	if err != nil {
		return "", err
	}
	return claims.RedirectTo, nil
}

// SignInWithMagicLink issues a one-time link and hands it to the LinkSender.
func (s *Service) SignInWithMagicLink(ctx context.Context, email, redirectTo string) error {
	if err := ValidateMagicLink(email); err != nil {
		return err
	}
	redirectTo, err := s.checkRedirect(redirectTo)
	if err != nil {
		return err
	}

	token, _, err := s.tokens.issue("", strings.TrimSpace(email), tokenMagicLink, redirectTo)
	if err != nil {
		return fmt.Errorf("failed to sign magic link: %w", err)
	}

	u, err := url.Parse(redirectTo)
	if err != nil {
		return fmt.Errorf("%w: bad redirect url", model.ErrValidation)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return s.sender.SendMagicLink(ctx, strings.TrimSpace(email), u.String())
}

// VerifyMagicLink consumes a magic link token. Unknown emails get a new profile.
func (s *Service) VerifyMagicLink(ctx context.Context, token string) (Session, error) {
	claims, err := s.tokens.parse(token, tokenMagicLink)
	if err != nil {
		return Session{}, err
	}
	if !s.revoke(claims) {
		return Session{}, ErrInvalidToken
	}

	profile, err := s.profiles.FindByEmail(ctx, claims.Email)
	if errors.Is(err, repo.ErrorNotFound) {
		now := time.Now()
		profile, err = s.profiles.Create(ctx, model.Profile{
			ID:        uuid.NewString(),
			Email:     claims.Email,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to resolve profile: %w", err)
	}
	return s.startSession(profile)
}

func (s *Service) SignOut(_ context.Context, accessToken string) error {
	claims, err := s.tokens.parse(accessToken, tokenAccess)
	if err != nil {
		return err
	}
	s.revoke(claims)
	s.emit(StateChange{Event: EventSignedOut, UserID: claims.Subject})
	s.logger.Info("user signed out", zap.String("user_id", claims.Subject))
	return nil
}

// Session resolves an access token to the current session.
func (s *Service) Session(ctx context.Context, accessToken string) (Session, error) {
	claims, err := s.tokens.parse(accessToken, tokenAccess)
	if err != nil {
		return Session{}, err
	}
	if s.isRevoked(claims.ID) {
		return Session{}, ErrInvalidToken
	}

	profile, err := s.profiles.Get(ctx, claims.Subject)
	if errors.Is(err, repo.ErrorNotFound) {
		return Session{}, ErrInvalidToken
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to load profile: %w", err)
	}
	return Session{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresAt:   claims.ExpiresAt.Time,
		User:        profile,
	}, nil
}

func (s *Service) Profile(ctx context.Context, userID string) (model.Profile, error) {
	return s.profiles.Get(ctx, userID)
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, p model.ProfilePatch) (model.Profile, error) {
	if p.FullName != nil && len([]rune(strings.TrimSpace(*p.FullName))) < MinFullNameLength {
		return model.Profile{}, &ValidationError{Fields: map[string]string{"full_name": "Full name must be at least 2 characters"}}
	}
	if err := s.profiles.Update(ctx, userID, p); err != nil {
		return model.Profile{}, err
	}
	s.emit(StateChange{Event: EventUserUpdated, UserID: userID})
	return s.profiles.Get(ctx, userID)
}

// OnAuthStateChange registers fn for sign-in, sign-out and profile updates.
func (s *Service) OnAuthStateChange(fn func(StateChange)) *realtime.Subscription {
	id := uuid.NewString()
	s.lmu.Lock()
	s.listeners[id] = fn
	s.lmu.Unlock()

	return realtime.NewSubscription(func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	})
}

func (s *Service) emit(change StateChange) {
	s.lmu.RLock()
	fns := make([]func(StateChange), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.RUnlock()

	for _, fn := range fns {
		fn(change)
	}
}

func (s *Service) startSession(profile model.Profile) (Session, error) {
	token, claims, err := s.tokens.issue(profile.ID, profile.Email, tokenAccess, "")
	if err != nil {
		return Session{}, fmt.Errorf("failed to generate access token: %w", err)
	}
	s.emit(StateChange{Event: EventSignedIn, UserID: profile.ID})
	return Session{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   claims.ExpiresAt.Time,
		User:        profile,
	}, nil
}

// revoke marks the token id used. It reports false if it already was.
func (s *Service) revoke(claims *Claims) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, exp := range s.revoked {
		if exp.Before(now) {
			delete(s.revoked, id)
		}
	}
	if _, ok := s.revoked[claims.ID]; ok {
		return false
	}
	s.revoked[claims.ID] = claims.ExpiresAt.Time
	return true
}

func (s *Service) isRevoked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[id]
	return ok
}
