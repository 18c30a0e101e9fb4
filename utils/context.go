package utils

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joy095/payouts/logger"
	"github.com/joy095/payouts/models/payout_batch_models"
)

// Context keys set by the JWT parser.
const (
	ContextUserID   = "user_id"
	ContextUserName = "user_name"
	ContextTenantID = "tenant_id"
	ContextRole     = "role"
)

func uuidFromContext(c *gin.Context, key string, missing error) (uuid.UUID, error) {
	raw, exists := c.Get(key)
	if !exists {
		logger.ErrorLogger.Errorf("%s not found in context.", key)
		return uuid.Nil, missing
	}

	str, ok := raw.(string)
	if !ok {
		logger.ErrorLogger.Errorf("%s in context is not a string, actual type: %T", key, raw)
		return uuid.Nil, fmt.Errorf("internal server error: invalid %s format in context", key)
	}

	id, err := uuid.Parse(str)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to parse %s '%s' to UUID: %v", key, str, err)
		return uuid.Nil, fmt.Errorf("internal server error: invalid %s format", key)
	}
	return id, nil
}

// GetUserIDFromContext extracts the authenticated user's ID from the Gin
// context.
func GetUserIDFromContext(c *gin.Context) (uuid.UUID, error) {
	return uuidFromContext(c, ContextUserID, ErrUserIDNotFound)
}

// GetActorFromContext builds the operator identity every lifecycle call is
// attributed to. The display name falls back to the user id.
func GetActorFromContext(c *gin.Context) (payout_batch_models.Actor, error) {
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		return payout_batch_models.Actor{}, err
	}
	tenantID, err := uuidFromContext(c, ContextTenantID, ErrTenantNotFound)
	if err != nil {
		return payout_batch_models.Actor{}, err
	}

	name := c.GetString(ContextUserName)
	if name == "" {
		name = userID.String()
	}
	return payout_batch_models.Actor{
		ID:       userID,
		Name:     name,
		TenantID: tenantID,
		Role:     c.GetString(ContextRole),
	}, nil
}
