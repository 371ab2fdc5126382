package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler combines all handler types
type Handler struct {
	Vote         *VoteHandler
	Notification *NotificationHandler
	Identity     *IdentityHandler
}

// Dependencies are the collaborators the HTTP handlers call into.
type Dependencies struct {
	Votes         VoteSubmitter
	VoteReader    VoteLister
	Notifications NotificationLister
	Identities    IdentityStore
	Providers     IdentityBuilder
	Logger        *zap.Logger
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(deps Dependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Vote:         NewVoteHandler(deps.Votes, deps.VoteReader, logger),
		Notification: NewNotificationHandler(deps.Notifications),
		Identity:     NewIdentityHandler(deps.Providers, deps.Identities, logger),
	}
}

func extractUserID(c *gin.Context) (int, bool) {
	raw, exists := c.Get("user_id")
	if !exists {
		return 0, false
	}
	switch v := raw.(type) {
	case int:
		return v, true
	case uint:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
