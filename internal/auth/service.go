package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/fitassess/internal/telemetry/tracing"
	"github.com/2beens/fitassess/pkg"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

//go:generate mockgen -source=$GOFILE -destination=service_mocks_test.go -package=auth_test

const DefaultTTL = 24 * 7 * time.Hour

var ErrWrongCredentials = errors.New("wrong credentials")

type usersRepo interface {
	Add(ctx context.Context, user User, passwordHash string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, string, error)
}

// SessionStore persists sessions across restarts.
type SessionStore interface {
	Load(ctx context.Context, token string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, token string) error
}

type Service struct {
	users    usersRepo
	sessions SessionStore
	ttl      time.Duration

	// injectable for tests
	RandStringFunc func(s int) (string, error)
	Now            func() time.Time
}

func NewService(users usersRepo, sessions SessionStore, ttl time.Duration) *Service {
	return &Service{
		users:          users,
		sessions:       sessions,
		ttl:            ttl,
		RandStringFunc: pkg.GenerateRandomString,
		Now:            time.Now,
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.auth.register")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	passwordHash, err := pkg.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := req.User()
	user.JoinedAt = s.Now()
	added, err := s.users.Add(ctx, user, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("add user: %w", err)
	}
	span.SetAttributes(attribute.Int("user.id", added.ID))

	return s.newSession(ctx, *added)
}

func (s *Service) Login(ctx context.Context, creds Credentials) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.auth.login")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	user, passwordHash, err := s.users.GetByUsername(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			log.Tracef("[username] failed login attempt for user: %s", creds.Username)
			return nil, ErrWrongCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if !pkg.CheckPasswordHash(creds.Password, passwordHash) {
		log.Tracef("[password] failed login attempt for user: %s", creds.Username)
		return nil, ErrWrongCredentials
	}

	return s.newSession(ctx, *user)
}

func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// SessionFor resolves a token into a live session. Expired sessions are dropped.
func (s *Service) SessionFor(ctx context.Context, token string) (*Session, error) {
	session, err := s.sessions.Load(ctx, token)
	if err != nil {
		return nil, err
	}

	if session.Expired(s.Now(), s.ttl) {
		if err := s.sessions.Delete(ctx, token); err != nil && !errors.Is(err, ErrSessionNotFound) {
			log.Errorf("delete expired session: %s", err)
		}
		return nil, ErrSessionNotFound
	}

	return session, nil
}

func (s *Service) newSession(ctx context.Context, user User) (*Session, error) {
	token, err := s.RandStringFunc(35)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	session := &Session{
		Token:     token,
		User:      user,
		CreatedAt: s.Now(),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}
