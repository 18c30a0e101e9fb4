package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext() *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	return c
}

func TestGetActorFromContext(t *testing.T) {
	c := newTestContext()
	userID, tenantID := uuid.New(), uuid.New()
	c.Set(ContextUserID, userID.String())
	c.Set(ContextTenantID, tenantID.String())
	c.Set(ContextUserName, "Priya Menon")
	c.Set(ContextRole, "finance_admin")

	actor, err := GetActorFromContext(c)
	require.NoError(t, err)
	assert.Equal(t, userID, actor.ID)
	assert.Equal(t, tenantID, actor.TenantID)
	assert.Equal(t, "Priya Menon", actor.Name)
	assert.Equal(t, "finance_admin", actor.Role)
}

func TestGetActorFromContextFallsBackToUserIDForName(t *testing.T) {
	c := newTestContext()
	userID := uuid.New()
	c.Set(ContextUserID, userID.String())
	c.Set(ContextTenantID, uuid.NewString())

	actor, err := GetActorFromContext(c)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), actor.Name)
}

func TestGetActorFromContextRequiresTenant(t *testing.T) {
	c := newTestContext()
	c.Set(ContextUserID, uuid.NewString())

	_, err := GetActorFromContext(c)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestGetUserIDFromContextRejectsGarbage(t *testing.T) {
	c := newTestContext()
	_, err := GetUserIDFromContext(c)
	assert.ErrorIs(t, err, ErrUserIDNotFound)

	c.Set(ContextUserID, 42)
	_, err = GetUserIDFromContext(c)
	assert.Error(t, err)

	c.Set(ContextUserID, "not-a-uuid")
	_, err = GetUserIDFromContext(c)
	assert.Error(t, err)
}
