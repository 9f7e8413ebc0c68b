// Package config loads the realm descriptor and server settings. The
// descriptor is the YAML rendition of the store-chain configuration: one
// primary store plus any number of secondary stores, each with its own
// domain, policy flags and validators.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	platformredis "idrealm/internal/platform/redis"
	dErrors "idrealm/pkg/domain-errors"
)

// Store types recognized by the bootstrap.
const (
	StoreTypeMemory   = "memory"
	StoreTypePostgres = "postgres"
)

// Defaults applied when the descriptor leaves fields empty.
const (
	DefaultUsernameRegex  = `^[\p{L}\p{Nd}._@+-]{3,64}$`
	DefaultRoleNameRegex  = `^[\p{L}\p{Nd}._ -]{3,64}$`
	DefaultPasswordRegex  = `^.{5,128}$`
	DefaultMaxListSize    = 100
	DefaultAttrSeparator  = ","
	DefaultRolesCacheTTL  = 15 * time.Minute
	DefaultPrimaryDomain  = "PRIMARY"
)

// StoreConfig configures one member of the user store chain.
type StoreConfig struct {
	DomainName              string            `yaml:"domain"`
	Type                    string            `yaml:"type"`
	ReadOnly                bool              `yaml:"read_only"`
	WriteGroupsEnabled      *bool             `yaml:"write_groups_enabled"`
	SharedGroupsEnabled     bool              `yaml:"shared_groups_enabled"`
	CaseInsensitiveUsername bool              `yaml:"case_insensitive_username"`
	UsernameRegex           string            `yaml:"username_regex"`
	RoleNameRegex           string            `yaml:"role_name_regex"`
	PasswordRegex           string            `yaml:"password_regex"`
	MaxListSize             int               `yaml:"max_list_size"`
	DSN                     string            `yaml:"dsn"`
	Properties              map[string]string `yaml:"properties"`
}

// WriteGroups reports whether role mutation is allowed on this store.
// Defaults to enabled unless the store is read only.
func (s *StoreConfig) WriteGroups() bool {
	if s.ReadOnly {
		return false
	}
	if s.WriteGroupsEnabled == nil {
		return true
	}
	return *s.WriteGroupsEnabled
}

// ListLimit returns the effective max list size.
func (s *StoreConfig) ListLimit() int {
	if s.MaxListSize <= 0 {
		return DefaultMaxListSize
	}
	return s.MaxListSize
}

// RealmConfig is the descriptor for one tenant-equivalent realm.
type RealmConfig struct {
	TenantDomain string `yaml:"tenant_domain"`
	Active       *bool  `yaml:"active"`

	AdminUser     string `yaml:"admin_user"`
	AdminPassword string `yaml:"admin_password"`
	AdminRole     string `yaml:"admin_role"`
	EveryoneRole  string `yaml:"everyone_role"`
	AnonymousUser string `yaml:"anonymous_user"`
	AnonymousRole string `yaml:"anonymous_role"`

	MultiAttributeSeparator string   `yaml:"multi_attribute_separator"`
	PreferenceOrder         []string `yaml:"authentication_preference_order"`
	RestrictedRoleDomains   []string `yaml:"restricted_role_domains"`

	UserRolesCacheEnabled *bool         `yaml:"user_roles_cache_enabled"`
	UserRolesCacheTTL     time.Duration `yaml:"user_roles_cache_ttl"`

	Primary   StoreConfig   `yaml:"primary"`
	Secondary []StoreConfig `yaml:"secondary"`
}

// IsActive defaults to true.
func (r *RealmConfig) IsActive() bool {
	return r.Active == nil || *r.Active
}

// RolesCacheEnabled defaults to true.
func (r *RealmConfig) RolesCacheEnabled() bool {
	return r.UserRolesCacheEnabled == nil || *r.UserRolesCacheEnabled
}

// RolesCacheTTL returns the effective backstop TTL for role cache entries.
func (r *RealmConfig) RolesCacheTTL() time.Duration {
	if r.UserRolesCacheTTL <= 0 {
		return DefaultRolesCacheTTL
	}
	return r.UserRolesCacheTTL
}

// Separator returns the effective multi-valued claim delimiter.
func (r *RealmConfig) Separator() string {
	if r.MultiAttributeSeparator == "" {
		return DefaultAttrSeparator
	}
	return r.MultiAttributeSeparator
}

// Stores returns the primary followed by the secondary stores.
func (r *RealmConfig) Stores() []StoreConfig {
	return append([]StoreConfig{r.Primary}, r.Secondary...)
}

// KafkaConfig configures the optional audit event publisher.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Server captures process-level configuration.
type Server struct {
	Addr          string               `yaml:"addr"`
	ServerID      string               `yaml:"server_id"`
	LogLevel      string               `yaml:"log_level"`
	JWTSigningKey string               `yaml:"jwt_signing_key"`
	Redis         platformredis.Config `yaml:"redis"`
	Kafka         KafkaConfig          `yaml:"kafka"`
	Realm         RealmConfig          `yaml:"realm"`
}

// Load reads the descriptor file, applies defaults and env overrides, and
// validates the store chain.
func Load(path string) (*Server, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Server
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Server) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ServerID == "" {
		host, _ := os.Hostname()
		c.ServerID = host
	}
	if c.Realm.Primary.DomainName == "" {
		c.Realm.Primary.DomainName = DefaultPrimaryDomain
	}
	if c.Realm.AdminRole == "" {
		c.Realm.AdminRole = "admin"
	}
	if c.Realm.EveryoneRole == "" {
		c.Realm.EveryoneRole = "everyone"
	}
	if c.Realm.AnonymousUser == "" {
		c.Realm.AnonymousUser = "anonymous"
	}
	if c.Realm.AnonymousRole == "" {
		c.Realm.AnonymousRole = "anonymous"
	}
}

func (c *Server) applyEnv() {
	if v := os.Getenv("IDREALM_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("IDREALM_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("IDREALM_JWT_SIGNING_KEY"); v != "" {
		c.JWTSigningKey = v
	}
	if v := os.Getenv("IDREALM_REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("IDREALM_ADMIN_PASSWORD"); v != "" {
		c.Realm.AdminPassword = v
	}
}

// Validate enforces chain-level invariants: unique domains, at most one
// shared-groups store, compilable validators, known store types.
func (c *Server) Validate() error {
	seen := make(map[string]struct{})
	shared := 0
	for _, store := range c.Realm.Stores() {
		domain := strings.ToUpper(store.DomainName)
		if domain == "" {
			return dErrors.New(dErrors.CodeConfiguration, "user store is missing a domain name")
		}
		if _, dup := seen[domain]; dup {
			return dErrors.New(dErrors.CodeConfiguration, "duplicate user store domain %s", store.DomainName)
		}
		seen[domain] = struct{}{}

		switch store.Type {
		case "", StoreTypeMemory, StoreTypePostgres:
		default:
			return dErrors.New(dErrors.CodeConfiguration, "unknown store type %q for domain %s", store.Type, store.DomainName)
		}
		if store.Type == StoreTypePostgres && store.DSN == "" {
			return dErrors.New(dErrors.CodeConfiguration, "store %s requires a dsn", store.DomainName)
		}
		if store.SharedGroupsEnabled {
			shared++
		}
		for _, expr := range []string{store.UsernameRegex, store.RoleNameRegex, store.PasswordRegex} {
			if expr == "" {
				continue
			}
			if _, err := regexp.Compile(expr); err != nil {
				return dErrors.Wrap(err, dErrors.CodeConfiguration, "invalid validator regex for domain %s", store.DomainName)
			}
		}
	}
	if shared > 1 {
		return dErrors.New(dErrors.CodeConfiguration, "only one user store per chain may enable shared groups")
	}
	if c.Realm.AdminUser == "" {
		return dErrors.New(dErrors.CodeConfiguration, "realm requires an admin_user")
	}
	return nil
}
