package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/larrabee/ceph/internal/auth"
	"github.com/larrabee/ceph/internal/rbac"
	"github.com/larrabee/ceph/internal/shared"
	"github.com/larrabee/ceph/internal/users"
)

type stubUsers struct {
	mu    sync.Mutex
	users map[string]users.User
	calls int
}

func (s *stubUsers) Get(_ context.Context, username string) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	u, ok := s.users[username]
	if !ok {
		return users.User{}, users.ErrUserNotFound
	}
	return u, nil
}

func (s *stubUsers) set(u users.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Username] = u
}

type stubScopes struct{}

func (stubScopes) ScopesFor(_ context.Context, roles []string) (rbac.ScopeSet, error) {
	set := make(rbac.ScopeSet)
	for _, role := range roles {
		if role == "reader" {
			set.Grant(rbac.ResourceUser, rbac.ActionRead)
		}
	}
	return set, nil
}

type outcomes struct {
	mu   sync.Mutex
	seen []string
}

func (o *outcomes) AuthAttempt(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, outcome)
}

func newAuth(t *testing.T) (*auth.Service, *stubUsers, *outcomes, http.Handler) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("mypassword10#"), bcrypt.MinCost)
	require.NoError(t, err)
	source := &stubUsers{users: map[string]users.User{
		"test1":  {Username: "test1", PasswordHash: string(hash), Roles: []string{"reader"}, Enabled: true},
		"klara":  {Username: "klara", PasswordHash: string(hash), Enabled: false},
		"nopass": {Username: "nopass", Enabled: true},
	}}
	seen := &outcomes{}
	svc := auth.NewService(source, shared.NewSessionManager(client, "secret", time.Hour), seen, nil)

	r := chi.NewRouter()
	r.Route("/api/auth", auth.NewHandler(nil, svc, stubScopes{}).MountRoutes)
	r.With(svc.RequireIdentity).Get("/api/whoami", func(w http.ResponseWriter, r *http.Request) {
		id, _ := shared.IdentityFromContext(r.Context())
		_, _ = w.Write([]byte(id.Username))
	})
	return svc, source, seen, r
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestLoginCheckLogout(t *testing.T) {
	_, _, seen, h := newAuth(t)

	rr := do(t, h, http.MethodPost, "/api/auth", "", `{"username":"test1","password":"mypassword10#"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	body := decode(t, rr)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	require.Equal(t, "test1", body["username"])
	require.Equal(t, map[string]any{"user": []any{"read"}}, body["permissions"])

	rr = do(t, h, http.MethodGet, "/api/whoami", token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "test1", rr.Body.String())

	rr = do(t, h, http.MethodPost, "/api/auth/check", token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "test1", decode(t, rr)["username"])

	rr = do(t, h, http.MethodPost, "/api/auth/logout", token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, h, http.MethodPost, "/api/auth/logout", token, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/whoami", token, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "session_expired", decode(t, rr)["code"])

	require.Equal(t, []string{"success"}, seen.seen)
}

func TestLoginInvalidCredentials(t *testing.T) {
	_, _, seen, h := newAuth(t)

	for _, body := range []string{
		`{"username":"test1","password":"wrong"}`,
		`{"username":"ghost","password":"mypassword10#"}`,
		`{"username":"klara","password":"mypassword10#"}`,
		`{"username":"nopass","password":"anything"}`,
	} {
		rr := do(t, h, http.MethodPost, "/api/auth", "", body)
		require.Equal(t, http.StatusBadRequest, rr.Code, body)
		out := decode(t, rr)
		require.Equal(t, "invalid_credentials", out["code"])
		require.Equal(t, "auth", out["component"])
	}
	require.Len(t, seen.seen, 4)

	for _, body := range []string{`{"username":"test1"}`, `{"username":"test1","password":""}`} {
		rr := do(t, h, http.MethodPost, "/api/auth", "", body)
		require.Equal(t, http.StatusBadRequest, rr.Code, body)
		require.Equal(t, "invalid_credentials", decode(t, rr)["code"], body)
	}
	require.Len(t, seen.seen, 6)

	rr := do(t, h, http.MethodPost, "/api/auth", "", `{"password":"mypassword10#"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "invalid_request", decode(t, rr)["code"])
}

func TestRequireIdentityRejectsMissingToken(t *testing.T) {
	_, _, _, h := newAuth(t)

	rr := do(t, h, http.MethodGet, "/api/whoami", "", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "unauthenticated", decode(t, rr)["code"])

	rr = do(t, h, http.MethodGet, "/api/whoami", "garbage", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, h, http.MethodPost, "/api/auth/check", "", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCurrentIdentityRejectsDisabledOrDeletedUser(t *testing.T) {
	svc, source, _, _ := newAuth(t)
	ctx := context.Background()

	sess, _, err := svc.Login(ctx, "test1", "mypassword10#")
	require.NoError(t, err)

	id, err := svc.CurrentIdentity(ctx, sess.Token)
	require.NoError(t, err)
	require.Equal(t, []string{"reader"}, id.Roles)
	require.Equal(t, sess.ID, id.SessionID)

	u := source.users["test1"]
	u.Enabled = false
	source.set(u)
	_, err = svc.CurrentIdentity(ctx, sess.Token)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)

	source.mu.Lock()
	delete(source.users, "test1")
	source.mu.Unlock()
	_, err = svc.CurrentIdentity(ctx, sess.Token)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestLogoutUnknownTokenIsNoop(t *testing.T) {
	svc, _, _, _ := newAuth(t)
	require.NoError(t, svc.Logout(context.Background(), "not-a-token"))
	require.NoError(t, svc.Logout(context.Background(), ""))
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, auth.TokenFromRequest(req))

	req.Header.Set("Authorization", "bearer abc ")
	require.Equal(t, "abc", auth.TokenFromRequest(req))

	req.Header.Set("Authorization", "Basic abc")
	require.Empty(t, auth.TokenFromRequest(req))
}

// gatedUsers blocks Get until release is closed or the caller's context ends.
type gatedUsers struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedUsers) Get(ctx context.Context, username string) (users.User, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
		return users.User{Username: username, Roles: []string{"reader"}, Enabled: true}, nil
	case <-ctx.Done():
		return users.User{}, ctx.Err()
	}
}

func TestSharedLookupSurvivesFirstCallerCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "secret", time.Hour)
	source := &gatedUsers{entered: make(chan struct{}), release: make(chan struct{})}
	svc := auth.NewService(source, sessions, nil, nil)

	sess, err := sessions.Issue(context.Background(), "alice")
	require.NoError(t, err)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.CurrentIdentity(first, sess.Token)
		firstErr <- err
	}()
	<-source.entered

	type outcome struct {
		id  shared.Identity
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		id, err := svc.CurrentIdentity(context.Background(), sess.Token)
		second <- outcome{id: id, err: err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(source.release)
	got := <-second
	require.NoError(t, got.err)
	require.Equal(t, "alice", got.id.Username)
}
