package userstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"idrealm/internal/userstore"
)

func TestAuditOnlySelectsBySuffix(t *testing.T) {
	listeners := userstore.NewListeners()
	plain := &vetoListener{name: "businessListener"}
	audit := &vetoListener{name: "KafkaAuditLogger"}
	listeners.RegisterOperationListener(plain)
	listeners.RegisterOperationListener(audit)

	selected := listeners.AuditOnly()
	assert.Len(t, selected, 1)
	assert.Equal(t, "KafkaAuditLogger", selected[0].Name())
}

func TestFailStopsIterationOnFalse(t *testing.T) {
	listeners := userstore.NewListeners()
	first := &recordingErrorListener{stop: true}
	second := &recordingErrorListener{}
	listeners.RegisterErrorListener(first)
	listeners.RegisterErrorListener(second)

	listeners.Fail(context.Background(), userstore.Failure{Operation: "add_user"})

	assert.Len(t, first.failures, 1)
	assert.Empty(t, second.failures, "a false return stops the remaining error listeners")
}

func TestFailReachesAllWhenNoneStop(t *testing.T) {
	listeners := userstore.NewListeners()
	first := &recordingErrorListener{}
	second := &recordingErrorListener{}
	listeners.RegisterErrorListener(first)
	listeners.RegisterErrorListener(second)

	listeners.Fail(context.Background(), userstore.Failure{Operation: "delete_user"})

	assert.Len(t, first.failures, 1)
	assert.Len(t, second.failures, 1)
}

func TestBaseOperationListenerIsVacuouslyTrue(t *testing.T) {
	var base userstore.BaseOperationListener

	ok, err := base.PreAuthenticate(context.Background(), "bob", nil)
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, err = base.PostDeleteRole(context.Background(), "ops")
	assert.True(t, ok)
	assert.NoError(t, err)
}

func TestRegistrationOrderIsIterationOrder(t *testing.T) {
	listeners := userstore.NewListeners()
	a := &vetoListener{name: "a"}
	b := &vetoListener{name: "b"}
	listeners.RegisterOperationListener(a)
	listeners.RegisterOperationListener(b)

	ops := listeners.Operation()
	assert.Equal(t, "a", ops[0].Name())
	assert.Equal(t, "b", ops[1].Name())
}
