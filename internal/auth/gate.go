package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qrattend/internal/attendance"
	"qrattend/internal/metrics"
)

var (
	// ErrAuthFailure means the identity provider rejected the credential.
	ErrAuthFailure = errors.New("authentication failed")
	// ErrUnregisteredUser means the authenticated email is not on the roster.
	ErrUnregisteredUser = errors.New("not registered")
	// ErrAmbiguousRoster means more than one roster record shares the email.
	ErrAmbiguousRoster = errors.New("email matches more than one roster record")
	// ErrSessionNotFound means the session was signed out or has expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRosterUnavailable wraps roster lookup failures.
	ErrRosterUnavailable = errors.New("roster unavailable")
)

// ProviderUser is what an identity provider vouches for.
type ProviderUser struct {
	UID   string
	Email string
}

// Provider verifies credentials issued by an external identity provider.
type Provider interface {
	Verify(ctx context.Context, credential string) (ProviderUser, error)
	// Revoke ends the user's session with the provider.
	Revoke(ctx context.Context, uid string) error
}

// Roster maps an email to the students registered under it.
type Roster interface {
	FindByEmail(ctx context.Context, email string) ([]attendance.Identity, error)
}

// SessionCache keeps the identity of each signed-in session.
type SessionCache interface {
	Save(ctx context.Context, sessionID string, id attendance.Identity, ttl time.Duration) error
	Load(ctx context.Context, sessionID string) (attendance.Identity, error)
	Delete(ctx context.Context, sessionID string) error
}

// Session is a successful sign-in.
type Session struct {
	ID        string
	Identity  attendance.Identity
	Token     string
	ExpiresAt time.Time
}

// GateConfig holds token settings for the gate.
type GateConfig struct {
	Issuer     string
	SigningKey string
	TTL        time.Duration
}

// Gate signs students in against the roster.
type Gate struct {
	provider Provider
	roster   Roster
	cache    SessionCache
	cfg      GateConfig
	log      *zap.Logger
}

// NewGate wires a gate.
func NewGate(p Provider, r Roster, c SessionCache, cfg GateConfig, log *zap.Logger) *Gate {
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{provider: p, roster: r, cache: c, cfg: cfg, log: log}
}

// SignIn verifies credential, resolves exactly one roster record and opens a session.
func (g *Gate) SignIn(ctx context.Context, credential string) (Session, error) {
	if strings.TrimSpace(credential) == "" {
		metrics.SignIns.WithLabelValues("auth_failure").Inc()
		return Session{}, fmt.Errorf("%w: empty credential", ErrAuthFailure)
	}
	user, err := g.provider.Verify(ctx, credential)
	if err != nil {
		metrics.SignIns.WithLabelValues("auth_failure").Inc()
		g.log.Warn("credential rejected", zap.Error(err))
		return Session{}, fmt.Errorf("%w: %v", ErrAuthFailure, err)
	}

	matches, err := g.roster.FindByEmail(ctx, user.Email)
	if err != nil {
		metrics.SignIns.WithLabelValues("error").Inc()
		g.log.Error("roster lookup failed", zap.String("email", user.Email), zap.Error(err))
		return Session{}, fmt.Errorf("%w: %v", ErrRosterUnavailable, err)
	}

	switch len(matches) {
	case 1:
	case 0:
		metrics.SignIns.WithLabelValues("unregistered").Inc()
		g.log.Warn("no roster record for email", zap.String("email", user.Email))
		g.revoke(ctx, user)
		return Session{}, ErrUnregisteredUser
	default:
		metrics.SignIns.WithLabelValues("ambiguous").Inc()
		rolls := make([]string, len(matches))
		for i, m := range matches {
			rolls[i] = m.Roll
		}
		g.log.Error("roster has duplicate email", zap.String("email", user.Email), zap.Strings("rolls", rolls))
		g.revoke(ctx, user)
		return Session{}, ErrAmbiguousRoster
	}

	id := matches[0]
	sid := uuid.NewString()
	tok, err := Issue(sid, id.Roll, g.cfg.Issuer, g.cfg.SigningKey, g.cfg.TTL)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	if err := g.cache.Save(ctx, sid, id, g.cfg.TTL); err != nil {
		return Session{}, fmt.Errorf("cache session: %w", err)
	}

	metrics.SignIns.WithLabelValues("ok").Inc()
	g.log.Info("signed in", zap.String("roll", id.Roll), zap.String("session", sid))
	return Session{ID: sid, Identity: id, Token: tok.Value, ExpiresAt: tok.ExpiresAt}, nil
}

func (g *Gate) revoke(ctx context.Context, user ProviderUser) {
	if user.UID == "" {
		return
	}
	if err := g.provider.Revoke(ctx, user.UID); err != nil {
		g.log.Warn("revoke provider session failed", zap.String("uid", user.UID), zap.Error(err))
	}
}

// Resolve returns the identity cached for a session.
func (g *Gate) Resolve(ctx context.Context, sessionID string) (attendance.Identity, error) {
	return g.cache.Load(ctx, sessionID)
}

// SignOut forgets the session; its token stops working.
func (g *Gate) SignOut(ctx context.Context, sessionID string) error {
	if err := g.cache.Delete(ctx, sessionID); err != nil {
		return err
	}
	g.log.Info("signed out", zap.String("session", sessionID))
	return nil
}

// Authenticate validates a bearer token and resolves its session.
func (g *Gate) Authenticate(ctx context.Context, token string) (Claims, attendance.Identity, error) {
	claims, err := Parse(token, g.cfg.SigningKey, g.cfg.Issuer)
	if err != nil {
		return Claims{}, attendance.Identity{}, err
	}
	id, err := g.Resolve(ctx, claims.ID)
	if err != nil {
		return Claims{}, attendance.Identity{}, err
	}
	if id.Roll != claims.Roll {
		return Claims{}, attendance.Identity{}, errors.New("session roll mismatch")
	}
	return claims, id, nil
}
