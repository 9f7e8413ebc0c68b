// Package memory provides an in-process user store used for bootstrap
// realms and tests. Credentials are held as bcrypt hashes; all reads and
// writes are guarded by a single RWMutex.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	dErrors "idrealm/pkg/domain-errors"
	"idrealm/internal/userstore"
	"idrealm/pkg/secrets"
)

type userRecord struct {
	name           string
	credentialHash string
	attrs          map[string]map[string]string // profile -> attribute -> value
	roles          map[string]struct{}          // normalized role keys
}

type roleRecord struct {
	name    string
	members map[string]struct{} // normalized user keys
}

// Store is an in-memory userstore.StoreOps implementation.
type Store struct {
	mu              sync.RWMutex
	users           map[string]*userRecord
	roles           map[string]*roleRecord
	caseInsensitive bool
	readOnly        bool
}

// Option configures a Store.
type Option func(*Store)

// WithCaseInsensitiveUsernames folds username case on every lookup.
func WithCaseInsensitiveUsernames() Option {
	return func(s *Store) { s.caseInsensitive = true }
}

// WithReadOnly makes every mutating primitive fail. Used to model stores
// mounted read-only at the raw level, below the orchestrator's own policy.
func WithReadOnly() Option {
	return func(s *Store) { s.readOnly = true }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		users: make(map[string]*userRecord),
		roles: make(map[string]*roleRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) userKey(name string) string {
	if s.caseInsensitive {
		return strings.ToLower(name)
	}
	return name
}

func roleKey(name string) string {
	return strings.ToLower(name)
}

func (s *Store) guardWrite() error {
	if s.readOnly {
		return dErrors.New(dErrors.CodeReadOnly, "store is mounted read only")
	}
	return nil
}

func (s *Store) DoAuthenticate(_ context.Context, username string, credential *secrets.Secret) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[s.userKey(username)]
	if !ok {
		return false, nil
	}
	if err := secrets.Verify(credential, u.credentialHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeAuthentication) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) DoCheckExistingUser(_ context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[s.userKey(username)]
	return ok, nil
}

func (s *Store) DoCheckExistingRole(_ context.Context, role string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.roles[roleKey(role)]
	return ok, nil
}

func (s *Store) DoAddUser(_ context.Context, username string, credential *secrets.Secret, roles []string, claims map[string]string, profile string) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	hash, err := secrets.Hash(credential)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.userKey(username)
	if _, exists := s.users[key]; exists {
		return dErrors.New(dErrors.CodeAlreadyExists, "user %s already exists", username)
	}
	u := &userRecord{
		name:           username,
		credentialHash: hash,
		attrs:          map[string]map[string]string{},
		roles:          map[string]struct{}{},
	}
	if len(claims) > 0 {
		vals := make(map[string]string, len(claims))
		for k, v := range claims {
			vals[k] = v
		}
		u.attrs[profile] = vals
	}
	for _, role := range roles {
		rk := roleKey(role)
		r, ok := s.roles[rk]
		if !ok {
			return dErrors.New(dErrors.CodeNotFound, "role %s does not exist", role)
		}
		u.roles[rk] = struct{}{}
		r.members[key] = struct{}{}
	}
	s.users[key] = u
	return nil
}

func (s *Store) DoUpdateCredential(ctx context.Context, username string, newCredential, oldCredential *secrets.Secret) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	ok, err := s.DoAuthenticate(ctx, username, oldCredential)
	if err != nil {
		return err
	}
	if !ok {
		return dErrors.New(dErrors.CodeAuthentication, "old credential does not match")
	}
	return s.DoUpdateCredentialByAdmin(ctx, username, newCredential)
}

func (s *Store) DoUpdateCredentialByAdmin(_ context.Context, username string, newCredential *secrets.Secret) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	hash, err := secrets.Hash(newCredential)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[s.userKey(username)]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "user %s does not exist", username)
	}
	u.credentialHash = hash
	return nil
}

func (s *Store) DoDeleteUser(_ context.Context, username string) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.userKey(username)
	if _, ok := s.users[key]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "user %s does not exist", username)
	}
	delete(s.users, key)
	for _, r := range s.roles {
		delete(r.members, key)
	}
	return nil
}

func (s *Store) DoSetUserClaimValue(_ context.Context, username, attribute, value, profile string) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[s.userKey(username)]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "user %s does not exist", username)
	}
	if u.attrs[profile] == nil {
		u.attrs[profile] = map[string]string{}
	}
	u.attrs[profile][attribute] = value
	return nil
}

func (s *Store) DoSetUserClaimValues(_ context.Context, username string, attributes map[string]string, profile string) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[s.userKey(username)]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "user %s does not exist", username)
	}
	if u.attrs[profile] == nil {
		u.attrs[profile] = map[string]string{}
	}
	for k, v := range attributes {
		u.attrs[profile][k] = v
	}
	return nil
}

func (s *Store) DoDeleteUserClaimValue(_ context.Context, username, attribute, profile string) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[s.userKey(username)]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "user %s does not exist", username)
	}
	if vals := u.attrs[profile]; vals != nil {
		delete(vals, attribute)
	}
	return nil
}

func (s *Store) DoDeleteUserClaimValues(ctx context.Context, username string, attributes []string, profile string) error {
	for _, attr := range attributes {
		if err := s.DoDeleteUserClaimValue(ctx, username, attr, profile); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetUserPropertyValues(_ context.Context, username string, attributes []string, profile string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[s.userKey(username)]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "user %s does not exist", username)
	}
	out := make(map[string]string, len(attributes))
	vals := u.attrs[profile]
	for _, attr := range attributes {
		if v, ok := vals[attr]; ok {
			out[attr] = v
		}
	}
	return out, nil
}

func (s *Store) DoAddRole(_ context.Context, role string, members []string) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rk := roleKey(role)
	if _, exists := s.roles[rk]; exists {
		return dErrors.New(dErrors.CodeAlreadyExists, "role %s already exists", role)
	}
	r := &roleRecord{name: role, members: map[string]struct{}{}}
	for _, member := range members {
		key := s.userKey(member)
		u, ok := s.users[key]
		if !ok {
			return dErrors.New(dErrors.CodeNotFound, "user %s does not exist", member)
		}
		r.members[key] = struct{}{}
		u.roles[rk] = struct{}{}
	}
	s.roles[rk] = r
	return nil
}

func (s *Store) DoDeleteRole(_ context.Context, role string) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rk := roleKey(role)
	if _, ok := s.roles[rk]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "role %s does not exist", role)
	}
	delete(s.roles, rk)
	for _, u := range s.users {
		delete(u.roles, rk)
	}
	return nil
}

func (s *Store) DoUpdateRoleName(_ context.Context, oldName, newName string) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	oldKey, newKey := roleKey(oldName), roleKey(newName)
	r, ok := s.roles[oldKey]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "role %s does not exist", oldName)
	}
	if _, exists := s.roles[newKey]; exists && oldKey != newKey {
		return dErrors.New(dErrors.CodeAlreadyExists, "role %s already exists", newName)
	}
	delete(s.roles, oldKey)
	r.name = newName
	s.roles[newKey] = r
	for _, u := range s.users {
		if _, member := u.roles[oldKey]; member {
			delete(u.roles, oldKey)
			u.roles[newKey] = struct{}{}
		}
	}
	return nil
}

func (s *Store) DoGetRoleNames(_ context.Context, filter string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, r := range s.roles {
		if matchFilter(r.name, filter) {
			out = append(out, r.name)
		}
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DoCheckIsUserInRole(_ context.Context, username, role string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[s.userKey(username)]
	if !ok {
		return false, nil
	}
	_, member := u.roles[roleKey(role)]
	return member, nil
}

func (s *Store) DoGetUserListOfRole(_ context.Context, role string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[roleKey(role)]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "role %s does not exist", role)
	}
	out := make([]string, 0, len(r.members))
	for key := range r.members {
		if u, ok := s.users[key]; ok {
			out = append(out, u.name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) DoGetExternalRoleListOfUser(_ context.Context, username string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[s.userKey(username)]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(u.roles))
	for rk := range u.roles {
		if r, ok := s.roles[rk]; ok {
			out = append(out, r.name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) DoGetSharedRoleListOfUser(context.Context, string, string, string) ([]string, error) {
	// The memory store never participates in cross-realm sharing.
	return nil, nil
}

func (s *Store) DoUpdateUserListOfRole(_ context.Context, role string, deleted, added []string) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rk := roleKey(role)
	r, ok := s.roles[rk]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "role %s does not exist", role)
	}
	for _, member := range deleted {
		key := s.userKey(member)
		delete(r.members, key)
		if u, ok := s.users[key]; ok {
			delete(u.roles, rk)
		}
	}
	for _, member := range added {
		key := s.userKey(member)
		u, ok := s.users[key]
		if !ok {
			return dErrors.New(dErrors.CodeNotFound, "user %s does not exist", member)
		}
		r.members[key] = struct{}{}
		u.roles[rk] = struct{}{}
	}
	return nil
}

func (s *Store) DoUpdateRoleListOfUser(_ context.Context, username string, deleted, added []string) error {
	if err := s.guardWrite(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.userKey(username)
	u, ok := s.users[key]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "user %s does not exist", username)
	}
	for _, role := range deleted {
		rk := roleKey(role)
		delete(u.roles, rk)
		if r, ok := s.roles[rk]; ok {
			delete(r.members, key)
		}
	}
	for _, role := range added {
		rk := roleKey(role)
		r, ok := s.roles[rk]
		if !ok {
			return dErrors.New(dErrors.CodeNotFound, "role %s does not exist", role)
		}
		u.roles[rk] = struct{}{}
		r.members[key] = struct{}{}
	}
	return nil
}

func (s *Store) DoListUsers(_ context.Context, filter string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, u := range s.users {
		if matchFilter(u.name, filter) {
			out = append(out, u.name)
		}
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DoGetUserList(_ context.Context, attribute, value, profile string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, u := range s.users {
		if vals := u.attrs[profile]; vals != nil && matchFilter(vals[attribute], value) {
			out = append(out, u.name)
		}
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DoGetPaginatedUserList(ctx context.Context, attribute, value, profile string, limit, offset int) (userstore.PaginatedResult, error) {
	all, err := s.DoGetUserList(ctx, attribute, value, profile, 0)
	if err != nil {
		return userstore.PaginatedResult{}, err
	}
	return paginate(all, limit, offset), nil
}

func (s *Store) DoListPaginatedUsers(ctx context.Context, filter string, limit, offset int) (userstore.PaginatedResult, error) {
	all, err := s.DoListUsers(ctx, filter, 0)
	if err != nil {
		return userstore.PaginatedResult{}, err
	}
	return paginate(all, limit, offset), nil
}

// paginate slices a sorted match set. SkippedCount reports the matches
// passed over to honor the offset so chained stores can keep their offset
// accounting straight.
func paginate(all []string, limit, offset int) userstore.PaginatedResult {
	if offset > len(all) {
		return userstore.PaginatedResult{SkippedCount: len(all)}
	}
	skipped := offset
	page := all[offset:]
	if limit > 0 && len(page) > limit {
		page = page[:limit]
	}
	return userstore.PaginatedResult{Names: page, SkippedCount: skipped}
}

// matchFilter matches a value against a filter where '*' matches any run of
// characters. Matching is case-insensitive, as directory filters usually are.
func matchFilter(value, filter string) bool {
	if filter == "" || filter == "*" {
		return true
	}
	value = strings.ToLower(value)
	filter = strings.ToLower(filter)
	parts := strings.Split(filter, "*")
	if len(parts) == 1 {
		return value == filter
	}
	if !strings.HasPrefix(value, parts[0]) {
		return false
	}
	value = value[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(value, part)
		if idx < 0 {
			return false
		}
		value = value[idx+len(part):]
	}
	return strings.HasSuffix(value, parts[len(parts)-1])
}
