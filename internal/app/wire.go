package app

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/larrabee/ceph/internal/audit"
	"github.com/larrabee/ceph/internal/auth"
	"github.com/larrabee/ceph/internal/observability"
	"github.com/larrabee/ceph/internal/passwordpolicy"
	"github.com/larrabee/ceph/internal/rbac"
	"github.com/larrabee/ceph/internal/roles"
	"github.com/larrabee/ceph/internal/shared"
	"github.com/larrabee/ceph/internal/users"
)

// Stores groups the persistence backends the services run on.
type Stores struct {
	Users users.RepositoryPort
	Roles roles.RepositoryPort
	Redis *redis.Client
	// Audit and AuditLog are optional. AuditLog serves the timeline API.
	Audit    shared.AuditRecorder
	AuditLog audit.Repository
}

// Components is the assembled access control stack.
type Components struct {
	Sessions *shared.SessionManager
	Policy   *passwordpolicy.Engine
	Roles    *roles.Registry
	Users    *users.Service
	Auth     *auth.Service
	Guard    *rbac.Guard
	Audit    *audit.Service
	Metrics  *observability.Metrics
}

// Assemble wires services over the given stores.
func Assemble(cfg *Config, stores Stores, metrics *observability.Metrics, logger *slog.Logger) *Components {
	if logger == nil {
		logger = slog.Default()
	}
	sessions := shared.NewSessionManager(stores.Redis, cfg.SessionSecret, cfg.SessionTTL)
	policy := passwordpolicy.NewEngine(cfg.PasswordPolicy(), users.CheckPassword)
	registry := roles.NewRegistry(stores.Roles, stores.Users, stores.Audit, logger)
	userService := users.NewService(users.Deps{
		Repo:     stores.Users,
		Roles:    registry,
		Policy:   policy,
		Sessions: sessions,
		Audit:    stores.Audit,
		Observer: metrics,
		Logger:   logger,
	}, users.ServiceConfig{HistorySize: cfg.PwdHistorySize, BcryptCost: cfg.BcryptCost})

	var timeline *audit.Service
	if stores.AuditLog != nil {
		timeline = audit.NewService(stores.AuditLog)
	}

	return &Components{
		Sessions: sessions,
		Policy:   policy,
		Roles:    registry,
		Users:    userService,
		Auth:     auth.NewService(userService, sessions, metrics, logger),
		Guard:    rbac.NewGuard(registry),
		Audit:    timeline,
		Metrics:  metrics,
	}
}

// Bootstrap creates the initial administrator when it does not exist yet.
func (c *Components) Bootstrap(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	if cfg.AdminUsername == "" {
		return nil
	}
	created, err := c.Users.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		return err
	}
	if created && logger != nil {
		logger.Warn("created initial administrator, change its password",
			slog.String("username", cfg.AdminUsername))
	}
	return nil
}
