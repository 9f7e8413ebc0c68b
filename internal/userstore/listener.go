package userstore

import (
	"context"
	"strings"

	dErrors "idrealm/pkg/domain-errors"
	"idrealm/pkg/secrets"
)

// AuditLoggerSuffix marks the listener consulted in audit-only fan-outs.
// Bulk call sites that post-process synthetic or merged result sets notify
// only listeners whose Name carries this suffix, so business-logic
// listeners never re-run over rows they already saw per store.
const AuditLoggerSuffix = "AuditLogger"

// StoreListener is the low-level pre-hook family. A false return vetoes
// the operation: the remaining listeners and the concrete primitive are
// skipped and the operation reports a silent no-op, not an error.
type StoreListener interface {
	PreAuthenticate(ctx context.Context, username string, credential *secrets.Secret) (bool, error)
	PreAddUser(ctx context.Context, username string, credential *secrets.Secret, roles []string, claims map[string]string, profile string) (bool, error)
	PreUpdateCredential(ctx context.Context, username string, newCredential, oldCredential *secrets.Secret) (bool, error)
	PreDeleteUser(ctx context.Context, username string) (bool, error)
	PreUpdateRoleName(ctx context.Context, oldName, newName string) (bool, error)
}

// OperationListener is the pre/post hook family around every mutating and
// several read operations. The same abort-on-false contract applies to
// each phase independently. Post hooks can veto a result but never turn a
// failure into a success.
//
// Implementations embed BaseOperationListener and override what they need.
type OperationListener interface {
	// Name identifies the listener for audit-only fan-out matching.
	Name() string

	PreAuthenticate(ctx context.Context, username string, credential *secrets.Secret) (bool, error)
	PostAuthenticate(ctx context.Context, username string, authenticated bool) (bool, error)

	PreAddUser(ctx context.Context, username string, credential *secrets.Secret, roles []string, claims map[string]string, profile string) (bool, error)
	PostAddUser(ctx context.Context, username string, roles []string, claims map[string]string, profile string) (bool, error)

	PreUpdateCredential(ctx context.Context, username string, newCredential, oldCredential *secrets.Secret) (bool, error)
	PostUpdateCredential(ctx context.Context, username string) (bool, error)

	PreUpdateCredentialByAdmin(ctx context.Context, username string, newCredential *secrets.Secret) (bool, error)
	PostUpdateCredentialByAdmin(ctx context.Context, username string) (bool, error)

	PreDeleteUser(ctx context.Context, username string) (bool, error)
	PostDeleteUser(ctx context.Context, username string) (bool, error)

	PreSetUserClaimValue(ctx context.Context, username, claimURI, value, profile string) (bool, error)
	PostSetUserClaimValue(ctx context.Context, username string) (bool, error)

	PreSetUserClaimValues(ctx context.Context, username string, claims map[string]string, profile string) (bool, error)
	PostSetUserClaimValues(ctx context.Context, username string) (bool, error)

	PreDeleteUserClaimValue(ctx context.Context, username, claimURI, profile string) (bool, error)
	PostDeleteUserClaimValue(ctx context.Context, username string) (bool, error)

	PreDeleteUserClaimValues(ctx context.Context, username string, claims []string, profile string) (bool, error)
	PostDeleteUserClaimValues(ctx context.Context, username string) (bool, error)

	PreGetUserClaimValue(ctx context.Context, username, claimURI, profile string) (bool, error)
	PostGetUserClaimValue(ctx context.Context, username, claimURI, profile string, values []string) (bool, error)

	PreAddRole(ctx context.Context, role string, members []string) (bool, error)
	PostAddRole(ctx context.Context, role string, members []string) (bool, error)

	PreDeleteRole(ctx context.Context, role string) (bool, error)
	PostDeleteRole(ctx context.Context, role string) (bool, error)

	PreUpdateRoleName(ctx context.Context, oldName, newName string) (bool, error)
	PostUpdateRoleName(ctx context.Context, oldName, newName string) (bool, error)

	PreUpdateUserListOfRole(ctx context.Context, role string, deleted, added []string) (bool, error)
	PostUpdateUserListOfRole(ctx context.Context, role string, deleted, added []string) (bool, error)

	PreUpdateRoleListOfUser(ctx context.Context, username string, deleted, added []string) (bool, error)
	PostUpdateRoleListOfUser(ctx context.Context, username string, deleted, added []string) (bool, error)

	PreGetUserList(ctx context.Context, claimURI, value, profile string) (bool, error)
	PostGetUserList(ctx context.Context, claimURI, value, profile string, users []string) (bool, error)
}

// InternalRoleListener is the internal-role-aware specialization. Role
// operations on Internal/Application/Workflow domains route here instead of
// the external role hooks. Operation listeners that do not implement it are
// treated as vacuously successful for internal roles.
type InternalRoleListener interface {
	PreAddInternalRole(ctx context.Context, role string, members []string) (bool, error)
	PostAddInternalRole(ctx context.Context, role string, members []string) (bool, error)
	PreDeleteInternalRole(ctx context.Context, role string) (bool, error)
	PostDeleteInternalRole(ctx context.Context, role string) (bool, error)
}

// Failure carries a failed operation's code, formatted message and original
// arguments to the error-listener fan-out.
type Failure struct {
	Operation string
	Code      dErrors.Code
	Message   string
	Username  string
	Role      string
	Claims    []string
	Domain    string
}

// ErrorListener is invoked only on failure paths, before the error reaches
// the caller. Returning false stops further error-listener iteration; it
// never suppresses the error itself.
type ErrorListener interface {
	OnFailure(ctx context.Context, failure Failure) bool
}

// BaseOperationListener answers true for every hook. Embed it so listeners
// only override the operations they care about.
type BaseOperationListener struct{}

func (BaseOperationListener) Name() string { return "BaseOperationListener" }

func (BaseOperationListener) PreAuthenticate(context.Context, string, *secrets.Secret) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PostAuthenticate(context.Context, string, bool) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PreAddUser(context.Context, string, *secrets.Secret, []string, map[string]string, string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PostAddUser(context.Context, string, []string, map[string]string, string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PreUpdateCredential(context.Context, string, *secrets.Secret, *secrets.Secret) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PostUpdateCredential(context.Context, string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PreUpdateCredentialByAdmin(context.Context, string, *secrets.Secret) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PostUpdateCredentialByAdmin(context.Context, string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PreDeleteUser(context.Context, string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PostDeleteUser(context.Context, string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PreSetUserClaimValue(context.Context, string, string, string, string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PostSetUserClaimValue(context.Context, string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PreSetUserClaimValues(context.Context, string, map[string]string, string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PostSetUserClaimValues(context.Context, string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PreDeleteUserClaimValue(context.Context, string, string, string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PostDeleteUserClaimValue(context.Context, string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PreDeleteUserClaimValues(context.Context, string, []string, string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PostDeleteUserClaimValues(context.Context, string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PreGetUserClaimValue(context.Context, string, string, string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PostGetUserClaimValue(context.Context, string, string, string, []string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PreAddRole(context.Context, string, []string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PostAddRole(context.Context, string, []string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PreDeleteRole(context.Context, string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PostDeleteRole(context.Context, string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PreUpdateRoleName(context.Context, string, string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PostUpdateRoleName(context.Context, string, string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PreUpdateUserListOfRole(context.Context, string, []string, []string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PostUpdateUserListOfRole(context.Context, string, []string, []string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PreUpdateRoleListOfUser(context.Context, string, []string, []string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PostUpdateRoleListOfUser(context.Context, string, []string, []string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PreGetUserList(context.Context, string, string, string) (bool, error) {
	return true, nil
}
func (BaseOperationListener) PostGetUserList(context.Context, string, string, string, []string) (bool, error) {
	return true, nil
}

// Listeners is the ordered registry for all three families. Registration
// order is iteration order and is semantically significant: the first false
// return short-circuits the remaining listeners in that phase. The registry
// is append-only after wiring; no per-call mutation.
type Listeners struct {
	store     []StoreListener
	operation []OperationListener
	errors    []ErrorListener
}

// NewListeners returns an empty registry.
func NewListeners() *Listeners {
	return &Listeners{}
}

// RegisterStoreListener appends a store-level listener.
func (l *Listeners) RegisterStoreListener(sl StoreListener) {
	l.store = append(l.store, sl)
}

// RegisterOperationListener appends an operation event listener.
func (l *Listeners) RegisterOperationListener(ol OperationListener) {
	l.operation = append(l.operation, ol)
}

// RegisterErrorListener appends an error event listener.
func (l *Listeners) RegisterErrorListener(el ErrorListener) {
	l.errors = append(l.errors, el)
}

// Store returns the store-level listeners in registration order.
func (l *Listeners) Store() []StoreListener {
	return l.store
}

// Operation returns the operation listeners in registration order.
func (l *Listeners) Operation() []OperationListener {
	return l.operation
}

// AuditOnly returns only the listeners recognized as the audit logger.
func (l *Listeners) AuditOnly() []OperationListener {
	var out []OperationListener
	for _, ol := range l.operation {
		if strings.HasSuffix(ol.Name(), AuditLoggerSuffix) {
			out = append(out, ol)
		}
	}
	return out
}

// Fail offers a failure to each error listener in order. A false return
// stops iteration; the error being raised is never suppressed.
func (l *Listeners) Fail(ctx context.Context, failure Failure) {
	for _, el := range l.errors {
		if !el.OnFailure(ctx, failure) {
			return
		}
	}
}
