// Package realm assembles a running realm from its descriptor: the user
// store chain, the hybrid and system role managers, the claim mapper, the
// caches and the listener registry, then seeds the bootstrap identities.
package realm

import (
	"context"
	"database/sql"
	"log/slog"

	_ "github.com/lib/pq"

	"idrealm/internal/authz"
	"idrealm/internal/cache"
	"idrealm/internal/claims"
	"idrealm/internal/platform/config"
	"idrealm/internal/platform/metrics"
	platformredis "idrealm/internal/platform/redis"
	"idrealm/internal/roles/hybrid"
	"idrealm/internal/roles/system"
	"idrealm/internal/userstore"
	"idrealm/internal/userstore/store/memory"
	"idrealm/internal/userstore/store/postgres"
	dErrors "idrealm/pkg/domain-errors"
	"idrealm/pkg/secrets"
)

// SystemAdminRole is the SYSTEM-domain grant seeded for the realm admin.
const SystemAdminRole = "system_admin"

// Realm is one fully wired tenant-equivalent realm.
type Realm struct {
	Users     *userstore.Manager
	Hybrid    *hybrid.Manager
	System    *system.Manager
	Authz     *authz.Manager
	Claims    *claims.Mapper
	Listeners *userstore.Listeners

	cfg        *config.Server
	logger     *slog.Logger
	dbs        []*sql.DB
	primaryOps userstore.StoreOps
}

// Options carries the optional collaborators the realm does not build
// itself.
type Options struct {
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Redis     *platformredis.Client
	Listeners *userstore.Listeners
}

// New builds the store chain from the descriptor and seeds the bootstrap
// identities. The returned realm owns any database handles it opened.
func New(ctx context.Context, cfg *config.Server, opts Options) (*Realm, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	listeners := opts.Listeners
	if listeners == nil {
		listeners = userstore.NewListeners()
	}

	r := &Realm{
		Hybrid:    hybrid.New(),
		System:    system.New(),
		Claims:    claims.New(defaultClaimMapping()),
		Listeners: listeners,
		cfg:       cfg,
		logger:    logger,
	}

	var rolesCache userstore.RolesCache
	if cfg.Realm.RolesCacheEnabled() {
		if opts.Redis != nil {
			rolesCache = cache.NewRedis(opts.Redis.Client, cfg.ServerID, cfg.Realm.RolesCacheTTL(), logger)
		} else {
			rolesCache = cache.NewMemory(cfg.ServerID, cfg.Realm.RolesCacheTTL())
		}
	}

	primaryOps, err := r.buildStore(ctx, cfg.Realm.Primary)
	if err != nil {
		return nil, err
	}
	r.primaryOps = primaryOps
	primary, err := userstore.New(cfg.Realm.Primary, &cfg.Realm, primaryOps,
		userstore.WithLogger(logger),
		userstore.WithMetrics(opts.Metrics),
		userstore.WithListeners(listeners),
		userstore.WithHybridRoles(r.Hybrid),
		userstore.WithSystemRoles(r.System),
		userstore.WithClaimMapper(r.Claims),
		userstore.WithRolesCache(rolesCache),
	)
	if err != nil {
		return nil, err
	}
	r.Users = primary

	for _, storeCfg := range cfg.Realm.Secondary {
		ops, err := r.buildStore(ctx, storeCfg)
		if err != nil {
			return nil, err
		}
		secondary, err := userstore.New(storeCfg, &cfg.Realm, ops,
			userstore.WithLogger(logger),
			userstore.WithMetrics(opts.Metrics),
		)
		if err != nil {
			return nil, err
		}
		if err := primary.AddSecondaryUserStoreManager(secondary); err != nil {
			return nil, err
		}
	}

	r.Authz = authz.New(primary)

	if err := r.seed(ctx, primaryOps); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Realm) buildStore(ctx context.Context, storeCfg config.StoreConfig) (userstore.StoreOps, error) {
	switch storeCfg.Type {
	case "", config.StoreTypeMemory:
		var opts []memory.Option
		if storeCfg.CaseInsensitiveUsername {
			opts = append(opts, memory.WithCaseInsensitiveUsernames())
		}
		return memory.New(opts...), nil
	case config.StoreTypePostgres:
		db, err := sql.Open("postgres", storeCfg.DSN)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "open database for domain %s", storeCfg.DomainName)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, dErrors.Wrap(err, dErrors.CodeDownstream, "database unreachable for domain %s", storeCfg.DomainName)
		}
		r.dbs = append(r.dbs, db)
		var opts []postgres.Option
		if storeCfg.CaseInsensitiveUsername {
			opts = append(opts, postgres.WithCaseInsensitiveUsernames())
		}
		store := postgres.New(db, opts...)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, dErrors.New(dErrors.CodeConfiguration, "unknown store type %q", storeCfg.Type)
	}
}

// seed creates the bootstrap identities: everyone and anonymous roles in the
// Internal domain, the admin role, the admin user with its membership, and
// the admin's SYSTEM grant. Seeding goes through the raw primitives so
// read-only policy and listeners do not apply to it.
func (r *Realm) seed(ctx context.Context, primaryOps userstore.StoreOps) (err error) {
	realm := &r.cfg.Realm

	for _, role := range []string{realm.EveryoneRole, realm.AnonymousRole} {
		qualified := userstore.QualifyName(userstore.InternalDomain, role)
		if exists, _ := r.Hybrid.IsExistingRole(ctx, qualified); !exists {
			if err := r.Hybrid.AddRole(ctx, qualified, nil); err != nil {
				return dErrors.Wrap(err, dErrors.CodeConfiguration, "seed role %s", qualified)
			}
		}
	}

	// Admin role lives in the primary store when it accepts writes, in the
	// Internal domain otherwise.
	adminRole := realm.AdminRole
	adminRoleInternal := r.cfg.Realm.Primary.ReadOnly || !r.cfg.Realm.Primary.WriteGroups()
	if adminRoleInternal {
		adminRole = userstore.QualifyName(userstore.InternalDomain, realm.AdminRole)
		if exists, _ := r.Hybrid.IsExistingRole(ctx, adminRole); !exists {
			if err := r.Hybrid.AddRole(ctx, adminRole, nil); err != nil {
				return dErrors.Wrap(err, dErrors.CodeConfiguration, "seed admin role")
			}
		}
	} else {
		exists, err := primaryOps.DoCheckExistingRole(ctx, realm.AdminRole)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeDownstream, "admin role check failed")
		}
		if !exists {
			if err := primaryOps.DoAddRole(ctx, realm.AdminRole, nil); err != nil {
				return dErrors.Wrap(err, dErrors.CodeConfiguration, "seed admin role")
			}
		}
	}

	adminExists, err := primaryOps.DoCheckExistingUser(ctx, realm.AdminUser)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeDownstream, "admin user check failed")
	}
	if !adminExists {
		if r.cfg.Realm.Primary.ReadOnly {
			return dErrors.New(dErrors.CodeConfiguration,
				"admin user %s must already exist in the read-only primary store", realm.AdminUser)
		}
		if realm.AdminPassword == "" {
			return dErrors.New(dErrors.CodeConfiguration, "admin_password is required to seed the admin user")
		}
		credential := secrets.FromString(realm.AdminPassword)
		defer credential.Clear()
		if err := primaryOps.DoAddUser(ctx, realm.AdminUser, credential, nil, nil, userstore.DefaultProfile); err != nil {
			return dErrors.Wrap(err, dErrors.CodeConfiguration, "seed admin user")
		}
		r.logger.InfoContext(ctx, "seeded realm admin user", "user", realm.AdminUser)
	}

	adminAware := userstore.QualifyName(r.cfg.Realm.Primary.DomainName, realm.AdminUser)
	if adminRoleInternal {
		if member, _ := r.Hybrid.IsUserInRole(ctx, adminAware, adminRole); !member {
			if err := r.Hybrid.UpdateUserListOfRole(ctx, adminRole, nil, []string{adminAware}); err != nil {
				return dErrors.Wrap(err, dErrors.CodeConfiguration, "seed admin membership")
			}
		}
	} else {
		member, err := primaryOps.DoCheckIsUserInRole(ctx, realm.AdminUser, realm.AdminRole)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeDownstream, "admin membership check failed")
		}
		if !member {
			if err := primaryOps.DoUpdateRoleListOfUser(ctx, realm.AdminUser, nil, []string{realm.AdminRole}); err != nil {
				return dErrors.Wrap(err, dErrors.CodeConfiguration, "seed admin membership")
			}
		}
	}

	if err := r.System.Grant(ctx, adminAware, SystemAdminRole); err != nil {
		return dErrors.Wrap(err, dErrors.CodeConfiguration, "seed system grant")
	}
	return nil
}

// Close releases any database handles the realm opened.
func (r *Realm) Close() error {
	var firstErr error
	for _, db := range r.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func defaultClaimMapping() map[string]string {
	return map[string]string{
		userstore.ClaimUsername:             "username",
		userstore.ClaimDisplayName:          "display_name",
		userstore.ClaimProfileConfiguration: "profile_configuration",
	}
}
