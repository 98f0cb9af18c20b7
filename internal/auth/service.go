package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/larrabee/ceph/internal/shared"
	"github.com/larrabee/ceph/internal/users"
)

// lookupTimeout bounds a shared identity lookup, which outlives the request
// that started it.
const lookupTimeout = 5 * time.Second

// UserSource loads accounts by username.
type UserSource interface {
	Get(ctx context.Context, username string) (users.User, error)
}

// AttemptObserver is notified of login outcomes.
type AttemptObserver interface {
	AuthAttempt(outcome string)
}

// Service wraps authentication business rules.
type Service struct {
	users    UserSource
	sessions *shared.SessionManager
	observer AttemptObserver
	logger   *slog.Logger
	lookups  singleflight.Group
}

// NewService constructs a new Service. observer and logger may be nil.
func NewService(source UserSource, sessions *shared.SessionManager, observer AttemptObserver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: source, sessions: sessions, observer: observer, logger: logger}
}

// Login validates credentials and opens a session. Unknown users, disabled
// users, users without a password and wrong passwords all yield
// shared.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (shared.Session, users.User, error) {
	user, err := s.users.Get(ctx, username)
	if err != nil {
		if !errors.Is(err, users.ErrUserNotFound) {
			s.observe("error")
			return shared.Session{}, users.User{}, fmt.Errorf("auth: load %s: %w", username, err)
		}
		s.observe("invalid")
		return shared.Session{}, users.User{}, shared.ErrInvalidCredentials
	}
	if !user.Enabled || !users.CheckPassword(user.PasswordHash, password) {
		s.observe("invalid")
		return shared.Session{}, users.User{}, shared.ErrInvalidCredentials
	}
	sess, err := s.sessions.Issue(ctx, user.Username)
	if err != nil {
		s.observe("error")
		return shared.Session{}, users.User{}, err
	}
	s.observe("success")
	s.logger.Info("login", slog.String("username", user.Username))
	return sess, user, nil
}

// CurrentIdentity resolves token to the identity of a live, enabled user.
func (s *Service) CurrentIdentity(ctx context.Context, token string) (shared.Identity, error) {
	sess, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return shared.Identity{}, err
	}
	flight := s.lookups.DoChan(sess.Username, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return s.users.Get(lookupCtx, sess.Username)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return shared.Identity{}, ctx.Err()
	case res = <-flight:
	}
	v, err := res.Val, res.Err
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return shared.Identity{}, shared.ErrUnauthenticated
		}
		return shared.Identity{}, fmt.Errorf("auth: load %s: %w", sess.Username, err)
	}
	user := v.(users.User)
	if !user.Enabled {
		return shared.Identity{}, shared.ErrUnauthenticated
	}
	return shared.Identity{
		Username:  user.Username,
		Roles:     append([]string(nil), user.Roles...),
		SessionID: sess.ID,
	}, nil
}

// Logout ends the session behind token. Unknown or expired tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	sess, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		var domainErr *shared.Error
		if errors.As(err, &domainErr) {
			return nil
		}
		return err
	}
	if err := s.sessions.Destroy(ctx, sess); err != nil {
		return err
	}
	s.logger.Info("logout", slog.String("username", sess.Username))
	return nil
}

func (s *Service) observe(outcome string) {
	if s.observer != nil {
		s.observer.AuthAttempt(outcome)
	}
}
