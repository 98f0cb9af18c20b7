package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionManager issues signed session tokens and tracks their liveness in Redis.
// A token is only honoured while its redis record exists, so logout and
// revocation take effect immediately even though the signature is still valid.
type SessionManager struct {
	client *redis.Client
	ttl    time.Duration
	secret []byte
	now    func() time.Time
}

// Session is an active authentication bound to one username.
type Session struct {
	ID        string
	Username  string
	Token     string
	ExpiresAt time.Time
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, secret string, ttl time.Duration) *SessionManager {
	return &SessionManager{
		client: client,
		ttl:    ttl,
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Issue creates a new session for username.
func (sm *SessionManager) Issue(ctx context.Context, username string) (Session, error) {
	now := sm.now()
	sess := Session{
		ID:        sm.generateSessionID(),
		Username:  username,
		ExpiresAt: now.Add(sm.ttl),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	})
	signed, err := token.SignedString(sm.secret)
	if err != nil {
		return Session{}, fmt.Errorf("session: sign token: %w", err)
	}
	sess.Token = signed

	userKey := UserSessionsKey(username)
	_, err = sm.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, SessionKey(sess.ID), username, sm.ttl)
		pipe.SAdd(ctx, userKey, sess.ID)
		pipe.Expire(ctx, userKey, sm.ttl)
		return nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("session: store: %w", err)
	}
	return sess, nil
}

// Resolve validates token and returns the live session it refers to.
func (sm *SessionManager) Resolve(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrUnauthenticated
	}
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return sm.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(sm.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, ErrSessionExpired
		}
		return Session{}, ErrUnauthenticated
	}
	if claims.ID == "" || claims.Subject == "" {
		return Session{}, ErrUnauthenticated
	}

	stored, err := sm.client.Get(ctx, SessionKey(claims.ID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionExpired
		}
		return Session{}, fmt.Errorf("session: load: %w", err)
	}
	if stored != claims.Subject {
		return Session{}, ErrUnauthenticated
	}

	sess := Session{ID: claims.ID, Username: claims.Subject, Token: token}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess, nil
}

// Destroy removes the session. Destroying an unknown session is not an error.
func (sm *SessionManager) Destroy(ctx context.Context, sess Session) error {
	_, err := sm.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, SessionKey(sess.ID))
		if sess.Username != "" {
			pipe.SRem(ctx, UserSessionsKey(sess.Username), sess.ID)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: destroy: %w", err)
	}
	return nil
}

// RevokeUser removes every session belonging to username.
func (sm *SessionManager) RevokeUser(ctx context.Context, username string) error {
	userKey := UserSessionsKey(username)
	ids, err := sm.client.SMembers(ctx, userKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: list user sessions: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, SessionKey(id))
	}
	keys = append(keys, userKey)
	if err := sm.client.Del(ctx, keys...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: revoke user sessions: %w", err)
	}
	return nil
}

func (sm *SessionManager) generateSessionID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
