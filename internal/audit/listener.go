package audit

import (
	"context"
	"strconv"

	"idrealm/internal/userstore"
)

// Logger is the audit operation listener. It observes the post phase of
// every operation and publishes one event per completed call; it never
// vetoes. Its name carries the suffix that qualifies it for audit-only
// fan-outs over merged multi-store results.
type Logger struct {
	userstore.BaseOperationListener
	publisher Publisher
}

// NewLogger wires a Logger over a publisher.
func NewLogger(publisher Publisher) *Logger {
	return &Logger{publisher: publisher}
}

func (l *Logger) Name() string { return "KafkaAuditLogger" }

func (l *Logger) publish(ctx context.Context, operation, outcome string, mutate func(*Event)) (bool, error) {
	event := newEvent(ctx, operation, outcome)
	if mutate != nil {
		mutate(&event)
	}
	l.publisher.Publish(ctx, event)
	return true, nil
}

func (l *Logger) PostAuthenticate(ctx context.Context, username string, authenticated bool) (bool, error) {
	outcome := "success"
	if !authenticated {
		outcome = "denied"
	}
	return l.publish(ctx, "authenticate", outcome, func(e *Event) { e.Username = username })
}

func (l *Logger) PostAddUser(ctx context.Context, username string, roles []string, _ map[string]string, _ string) (bool, error) {
	return l.publish(ctx, "add_user", "success", func(e *Event) {
		e.Username = username
		if len(roles) > 0 {
			e.Role = roles[0]
		}
	})
}

func (l *Logger) PostUpdateCredential(ctx context.Context, username string) (bool, error) {
	return l.publish(ctx, "update_credential", "success", func(e *Event) { e.Username = username })
}

func (l *Logger) PostUpdateCredentialByAdmin(ctx context.Context, username string) (bool, error) {
	return l.publish(ctx, "update_credential_by_admin", "success", func(e *Event) { e.Username = username })
}

func (l *Logger) PostDeleteUser(ctx context.Context, username string) (bool, error) {
	return l.publish(ctx, "delete_user", "success", func(e *Event) { e.Username = username })
}

func (l *Logger) PostSetUserClaimValue(ctx context.Context, username string) (bool, error) {
	return l.publish(ctx, "set_user_claim_value", "success", func(e *Event) { e.Username = username })
}

func (l *Logger) PostSetUserClaimValues(ctx context.Context, username string) (bool, error) {
	return l.publish(ctx, "set_user_claim_values", "success", func(e *Event) { e.Username = username })
}

func (l *Logger) PostDeleteUserClaimValue(ctx context.Context, username string) (bool, error) {
	return l.publish(ctx, "delete_user_claim_value", "success", func(e *Event) { e.Username = username })
}

func (l *Logger) PostDeleteUserClaimValues(ctx context.Context, username string) (bool, error) {
	return l.publish(ctx, "delete_user_claim_values", "success", func(e *Event) { e.Username = username })
}

func (l *Logger) PostAddRole(ctx context.Context, role string, _ []string) (bool, error) {
	return l.publish(ctx, "add_role", "success", func(e *Event) { e.Role = role })
}

func (l *Logger) PostDeleteRole(ctx context.Context, role string) (bool, error) {
	return l.publish(ctx, "delete_role", "success", func(e *Event) { e.Role = role })
}

func (l *Logger) PostUpdateRoleName(ctx context.Context, oldName, newName string) (bool, error) {
	return l.publish(ctx, "update_role_name", "success", func(e *Event) {
		e.Role = oldName
		e.Message = "renamed to " + newName
	})
}

func (l *Logger) PostUpdateUserListOfRole(ctx context.Context, role string, _, _ []string) (bool, error) {
	return l.publish(ctx, "update_user_list_of_role", "success", func(e *Event) { e.Role = role })
}

func (l *Logger) PostUpdateRoleListOfUser(ctx context.Context, username string, _, _ []string) (bool, error) {
	return l.publish(ctx, "update_role_list_of_user", "success", func(e *Event) { e.Username = username })
}

func (l *Logger) PostGetUserList(ctx context.Context, claimURI, _, _ string, users []string) (bool, error) {
	return l.publish(ctx, "get_user_list", "success", func(e *Event) {
		e.Claims = []string{claimURI}
		e.Message = "matched " + strconv.Itoa(len(users)) + " users"
	})
}

func (l *Logger) PreAddInternalRole(context.Context, string, []string) (bool, error) { return true, nil }

func (l *Logger) PostAddInternalRole(ctx context.Context, role string, _ []string) (bool, error) {
	return l.publish(ctx, "add_internal_role", "success", func(e *Event) { e.Role = role })
}

func (l *Logger) PreDeleteInternalRole(context.Context, string) (bool, error) { return true, nil }

func (l *Logger) PostDeleteInternalRole(ctx context.Context, role string) (bool, error) {
	return l.publish(ctx, "delete_internal_role", "success", func(e *Event) { e.Role = role })
}

// FailureLogger mirrors failed operations to the audit stream. It always
// lets the remaining error listeners run.
type FailureLogger struct {
	publisher Publisher
}

// NewFailureLogger wires a FailureLogger over a publisher.
func NewFailureLogger(publisher Publisher) *FailureLogger {
	return &FailureLogger{publisher: publisher}
}

func (f *FailureLogger) OnFailure(ctx context.Context, failure userstore.Failure) bool {
	event := newEvent(ctx, failure.Operation, "failure")
	event.Username = failure.Username
	event.Role = failure.Role
	event.Claims = failure.Claims
	event.Code = string(failure.Code)
	event.Message = failure.Message
	if failure.Domain != "" {
		event.Domain = failure.Domain
	}
	f.publisher.Publish(ctx, event)
	return true
}
