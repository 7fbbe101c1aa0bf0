package sendform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/notification-sync/internal/gateway"
	"github.com/nhle/notification-sync/internal/model"
)

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, validateEmail(" dev@example.com "))
	assert.Error(t, validateEmail(""))
	assert.Error(t, validateEmail("not an email"))
}

func TestValidateRequired(t *testing.T) {
	check := validateRequired("Title")

	assert.NoError(t, check("x"))
	assert.EqualError(t, check("   "), "Title is required")
}

func TestHandleSubmit_BuildsRequest(t *testing.T) {
	m := New(80, 24)
	*m.fb = formBindings{
		title:    " Release ",
		message:  "v2 is out",
		kind:     model.KindSuccess,
		audience: gateway.AudienceSpecific,
		email:    "pm@example.com",
	}

	msg := m.handleSubmit()()

	submit, ok := msg.(SubmitMsg)
	require.True(t, ok)
	assert.Equal(t, "Release", submit.Request.Title)
	assert.Equal(t, "v2 is out", submit.Request.Message)
	assert.Equal(t, model.KindSuccess, submit.Request.Kind)
	assert.Equal(t, "pm@example.com", submit.Request.Email)
	assert.Empty(t, submit.Request.Role)
}

func TestHandleSubmit_RoleAudience(t *testing.T) {
	m := New(80, 24)
	*m.fb = formBindings{title: "t", message: "m", kind: model.KindInfo, audience: gateway.AudienceManagers}

	submit := m.handleSubmit()().(SubmitMsg)

	assert.Equal(t, gateway.RoleProjectManager, submit.Request.Role)
}

func TestStart_ResetsFields(t *testing.T) {
	m := New(80, 24)
	m.fb.title = "left over"

	require.NotNil(t, m.Start())

	assert.Empty(t, m.fb.title)
	assert.Equal(t, model.KindInfo, m.fb.kind)
	assert.NotEmpty(t, m.View())
}
